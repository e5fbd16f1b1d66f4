// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/service"
	"nexusmind-go/pkg/log"
)

// BrainHandler 负责处理所有与 Brain 管理相关的 API 请求。
type BrainHandler struct {
	brainService service.BrainService
}

// NewBrainHandler 创建一个新的 BrainHandler 实例。
func NewBrainHandler(brainService service.BrainService) *BrainHandler {
	return &BrainHandler{brainService: brainService}
}

// CreateBrainRequest 定义了创建 Brain API 的请求体结构。
type CreateBrainRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateBrain 处理创建 Brain 的请求。
func (h *BrainHandler) CreateBrain(c *gin.Context) {
	var req CreateBrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	b, err := h.brainService.CreateBrain(c.Request.Context(), req.Name)
	if err != nil {
		log.Error("CreateBrain: failed to create brain", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"brain_id":   b.ID,
		"brain_name": b.Name,
		"created_at": b.CreatedAt,
	})
}

// GetBrain 处理查询单个 Brain 的请求。
func (h *BrainHandler) GetBrain(c *gin.Context) {
	brainID := c.Param("brain_id")

	b, err := h.brainService.GetBrain(c.Request.Context(), brainID)
	if err != nil {
		if errors.Is(err, brain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Brain 不存在"})
			return
		}
		log.Error("GetBrain: failed to load brain", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brain_id":          b.ID,
		"brain_name":        b.Name,
		"created_at":        b.CreatedAt,
		"generation_config": b.Generation,
		"vector_count":      b.Index().Count(),
		"history_length":    len(b.History),
	})
}

// RenameBrainRequest 定义了重命名 Brain API 的请求体结构。
type RenameBrainRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameBrain 处理重命名 Brain 的请求。
func (h *BrainHandler) RenameBrain(c *gin.Context) {
	brainID := c.Param("brain_id")

	var req RenameBrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	b, err := h.brainService.RenameBrain(c.Request.Context(), brainID, req.Name)
	if err != nil {
		if errors.Is(err, brain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Brain 不存在"})
			return
		}
		log.Error("RenameBrain: failed to rename brain", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brain_id":   b.ID,
		"brain_name": b.Name,
	})
}

// GetHistory 处理查询对话历史的请求。
func (h *BrainHandler) GetHistory(c *gin.Context) {
	brainID := c.Param("brain_id")

	history, err := h.brainService.GetHistory(c.Request.Context(), brainID)
	if err != nil {
		if errors.Is(err, brain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Brain 不存在"})
			return
		}
		log.Error("GetHistory: failed to load history", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brain_id": brainID,
		"history":  history,
	})
}
