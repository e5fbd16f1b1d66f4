package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/service"
	"nexusmind-go/pkg/llm"
	"nexusmind-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求，包括阻塞式 HTTP 与流式 WebSocket 两种形态。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequest 定义了阻塞式问答 API 的请求体结构。
type ChatRequest struct {
	BrainID  string `json:"brain_id" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// Chat 处理一轮阻塞式问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), req.BrainID, req.Question)
	if err != nil {
		if errors.Is(err, brain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Brain 不存在"})
			return
		}
		log.Error("Chat: failed to answer question", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brain_id": req.BrainID,
		"question": req.Question,
		"answer":   answer,
	})
}

// wsChatMessage 是 WebSocket 连接上的入站消息。
// type 为 "stop" 时中断当前生成，其余消息视为一次提问。
type wsChatMessage struct {
	Type     string `json:"type"`
	BrainID  string `json:"brain_id"`
	Question string `json:"question"`
}

// wsSafeWriter 串行化对 websocket.Conn 的并发写入：
// 流式分块来自问答 goroutine，错误消息来自读循环。
type wsSafeWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSafeWriter) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(messageType, data)
}

// HandleWebSocket 处理一个传入的 WebSocket 连接。
// 提问在独立 goroutine 中流式执行，读循环保持活跃，
// 中途收到 stop 指令即可丢弃当前流的剩余分块。
func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, RemoteAddr: %s", conn.RemoteAddr())

	writer := &wsSafeWriter{conn: conn}
	ctx := c.Request.Context()

	// 每连接停止标志，收到 stop 指令后丢弃当前流的剩余分块
	var stopped atomic.Bool
	// 同一连接上一次只允许一个进行中的问答
	var streaming atomic.Bool
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var msg wsChatMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.writeWsError(writer, "无效的消息格式")
			continue
		}

		if msg.Type == "stop" {
			stopped.Store(true)
			continue
		}
		if msg.BrainID == "" || msg.Question == "" {
			h.writeWsError(writer, "缺少 brain_id 或 question 字段")
			continue
		}

		if !streaming.CompareAndSwap(false, true) {
			h.writeWsError(writer, "当前问答尚未结束")
			continue
		}
		stopped.Store(false)
		wg.Add(1)
		go func(msg wsChatMessage) {
			defer wg.Done()
			defer streaming.Store(false)
			err := h.chatService.StreamResponse(ctx, msg.BrainID, msg.Question, writer, stopped.Load)
			if err != nil {
				if errors.Is(err, brain.ErrNotFound) {
					h.writeWsError(writer, "Brain 不存在")
					return
				}
				log.Errorf("流式问答失败, BrainID: %s, Error: %v", msg.BrainID, err)
				h.writeWsError(writer, "服务器内部错误")
			}
		}(msg)
	}
}

func (h *ChatHandler) writeWsError(writer llm.MessageWriter, message string) {
	payload := map[string]string{"error": message}
	b, _ := json.Marshal(payload)
	if err := writer.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("发送 WebSocket 错误消息失败: %v", err)
	}
}
