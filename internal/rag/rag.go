// Package rag 实现检索增强生成的编排：
// 检索 -> 构造提示词 -> 生成 -> 记录历史。
// 编排器本身无状态，所有可变状态都归属于 Brain。
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/model"
	"nexusmind-go/pkg/llm"
	"nexusmind-go/pkg/log"
)

var (
	// ErrNilIndex 表示 Brain 未绑定向量索引，属于装配错误。
	ErrNilIndex = errors.New("向量索引未初始化")
	// ErrNilChatClient 表示编排器未绑定聊天客户端，属于装配错误。
	ErrNilChatClient = errors.New("聊天客户端未初始化")
)

// defaultTopK 是检索条数未配置时的默认值。
const defaultTopK = 5

// promptTemplate 将检索到的上下文与问题拼装为单条 user 消息。
const promptTemplate = "Based on the following context:\n---\n%s\n---\n\nPlease answer the question: %s"

// Orchestrator 将 Brain 的索引、历史与聊天客户端串成一次问答。
type Orchestrator struct {
	chat llm.Client
	topK int
}

// New 创建编排器。topK 小于等于 0 时使用默认值。
func New(chat llm.Client, topK int) *Orchestrator {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Orchestrator{chat: chat, topK: topK}
}

// BuildPrompt 将检索结果按由近及远的顺序拼接进提示词。
func BuildPrompt(chunks []model.Chunk, question string) string {
	contents := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		contents = append(contents, chunk.Content)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(contents, "\n"), question)
}

func (o *Orchestrator) prepare(ctx context.Context, b *brain.Brain, question string) (string, *llm.GenerationParams, error) {
	if b == nil || b.Index() == nil {
		return "", nil, ErrNilIndex
	}
	if o.chat == nil {
		return "", nil, ErrNilChatClient
	}

	chunks, err := b.Index().SimilaritySearch(ctx, question, o.topK)
	if err != nil {
		return "", nil, fmt.Errorf("检索失败: %w", err)
	}
	log.Infof("[RAG] 检索完成, BrainID: %s, 命中分块数: %d", b.ID, len(chunks))

	gen := &llm.GenerationParams{
		Model:       b.Generation.LLMModelName,
		Temperature: &b.Generation.Temperature,
		MaxTokens:   &b.Generation.MaxTokens,
	}
	return BuildPrompt(chunks, question), gen, nil
}

// Answer 执行一轮完整的问答并把结果追加进 Brain 的历史。
// 生成失败不是错误：记录一条空回答，保证历史完整反映每次提问。
func (o *Orchestrator) Answer(ctx context.Context, b *brain.Brain, question string) (string, error) {
	prompt, gen, err := o.prepare(ctx, b, question)
	if err != nil {
		return "", err
	}

	answer, err := o.chat.ChatCompletion(ctx, []llm.Message{{Role: "user", Content: prompt}}, gen)
	if err != nil {
		log.Errorf("[RAG] 生成失败, BrainID: %s, Error: %v", b.ID, err)
		answer = ""
	}

	b.AppendExchange(question, answer)
	// 只落盘快照：向量工件由索引在摄取时自行写入，
	// 问答链路重写它会用本请求的旧副本覆盖并发摄取的新向量。
	if err := b.SaveSnapshot(ctx); err != nil {
		return answer, fmt.Errorf("保存对话历史失败: %w", err)
	}
	return answer, nil
}

// answerRecorder 包装下游 writer，在透传流式分块的同时累积完整回答。
type answerRecorder struct {
	writer llm.MessageWriter
	buf    strings.Builder
}

func (r *answerRecorder) WriteMessage(messageType int, data []byte) error {
	r.buf.Write(data)
	return r.writer.WriteMessage(messageType, data)
}

// StreamAnswer 以流式方式回答，分块透传给 writer，
// 流结束后把完整回答追加进历史。
func (o *Orchestrator) StreamAnswer(ctx context.Context, b *brain.Brain, question string, writer llm.MessageWriter) error {
	prompt, gen, err := o.prepare(ctx, b, question)
	if err != nil {
		return err
	}

	recorder := &answerRecorder{writer: writer}
	if err := o.chat.StreamChatMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, gen, recorder); err != nil {
		log.Errorf("[RAG] 流式生成失败, BrainID: %s, Error: %v", b.ID, err)
	}

	b.AppendExchange(question, recorder.buf.String())
	if err := b.SaveSnapshot(ctx); err != nil {
		return fmt.Errorf("保存对话历史失败: %w", err)
	}
	return nil
}
