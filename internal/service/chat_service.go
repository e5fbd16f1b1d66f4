// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/rag"
	"nexusmind-go/pkg/llm"
	"nexusmind-go/pkg/log"
)

// ChatService 定义了问答操作的接口。
type ChatService interface {
	Ask(ctx context.Context, brainID, question string) (string, error)
	StreamResponse(ctx context.Context, brainID, question string, writer llm.MessageWriter, shouldStop func() bool) error
}

type chatService struct {
	brains       *brain.Manager
	orchestrator *rag.Orchestrator
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(brains *brain.Manager, orchestrator *rag.Orchestrator) ChatService {
	return &chatService{
		brains:       brains,
		orchestrator: orchestrator,
	}
}

// Ask 在指定 Brain 上执行一轮阻塞式问答。
func (s *chatService) Ask(ctx context.Context, brainID, question string) (string, error) {
	b, err := s.brains.Load(ctx, brainID)
	if err != nil {
		return "", err
	}
	return s.orchestrator.Answer(ctx, b, question)
}

// StreamResponse 在指定 Brain 上执行一轮流式问答，分块经 writer 下发。
// shouldStop 在流进行中被反复检查，置位后剩余分块被丢弃。
func (s *chatService) StreamResponse(ctx context.Context, brainID, question string, writer llm.MessageWriter, shouldStop func() bool) error {
	b, err := s.brains.Load(ctx, brainID)
	if err != nil {
		return err
	}

	// 拦截下游 writer，把原始分块包装成 JSON 下发
	interceptor := &wsWriterInterceptor{writer: writer, shouldStop: shouldStop}
	if err := s.orchestrator.StreamAnswer(ctx, b, question, interceptor); err != nil {
		return err
	}

	sendCompletion(writer)
	return nil
}

// wsWriterInterceptor 对下游 writer 的封装，满足 llm.MessageWriter 接口。
type wsWriterInterceptor struct {
	writer     llm.MessageWriter
	shouldStop func() bool
}

// WriteMessage 将原始分块包装成 {"chunk":"..."} 后写入下游。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.writer.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(writer llm.MessageWriter) {
	payload := map[string]string{"event": "done"}
	b, _ := json.Marshal(payload)
	if err := writer.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("发送完成通知失败: %v", err)
	}
}
