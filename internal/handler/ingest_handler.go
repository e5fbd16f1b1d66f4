package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nexusmind-go/internal/service"
	"nexusmind-go/internal/splitter"
	"nexusmind-go/pkg/log"
)

// IngestHandler 负责处理所有与文件摄取相关的 API 请求。
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// UploadFile 处理文件上传的请求。
// 以 multipart 表单接收文件和目标 brain_id，返回用于查询状态的 file_id。
func (h *IngestHandler) UploadFile(c *gin.Context) {
	brainID := c.PostForm("brain_id")
	if brainID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 brain_id 参数"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 file 表单字段"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("UploadFile: failed to open uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		log.Error("UploadFile: failed to read uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	fileID, err := h.ingestService.UploadFile(c.Request.Context(), brainID, fileHeader.Filename, content)
	if err != nil {
		if errors.Is(err, splitter.ErrUnsupportedFileType) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "不支持的文件类型"})
			return
		}
		if errors.Is(err, service.ErrEmptyFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "文件内容为空"})
			return
		}
		log.Error("UploadFile: failed to ingest file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"file_id": fileID,
		"status":  "PENDING",
	})
}

// GetTaskStatus 处理查询摄取任务状态的请求。
func (h *IngestHandler) GetTaskStatus(c *gin.Context) {
	fileID := c.Param("file_id")

	status, err := h.ingestService.GetTaskStatus(c.Request.Context(), fileID)
	if err != nil {
		log.Error("GetTaskStatus: failed to query task status", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	if status == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id": fileID,
		"status":  status,
	})
}

// ListFiles 处理查询某个 Brain 下文件列表的请求。
func (h *IngestHandler) ListFiles(c *gin.Context) {
	brainID := c.Param("brain_id")

	files, err := h.ingestService.ListFiles(c.Request.Context(), brainID)
	if err != nil {
		log.Error("ListFiles: failed to list files", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brain_id": brainID,
		"files":    files,
	})
}
