package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"nexusmind-go/internal/model"
	"nexusmind-go/internal/repository"
	"nexusmind-go/internal/splitter"
	"nexusmind-go/pkg/kafka"
	"nexusmind-go/pkg/log"
	"nexusmind-go/pkg/storage"
	"nexusmind-go/pkg/tasks"
)

// ErrEmptyFile 表示上传的文件没有任何内容。
var ErrEmptyFile = errors.New("文件内容为空")

// IngestService 接口定义了文件摄取相关的业务操作。
type IngestService interface {
	UploadFile(ctx context.Context, brainID, fileName string, content []byte) (string, error)
	GetTaskStatus(ctx context.Context, fileID string) (string, error)
	ListFiles(ctx context.Context, brainID string) ([]model.FileRecord, error)
}

type ingestService struct {
	storage  storage.Storage
	fileRepo repository.FileRepository
	registry *splitter.Registry
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(st storage.Storage, fileRepo repository.FileRepository, registry *splitter.Registry) IngestService {
	return &ingestService{
		storage:  st,
		fileRepo: fileRepo,
		registry: registry,
	}
}

// UploadFile 接收文件内容，写入对象存储并投递异步摄取任务。
// 返回 FileID 作为后续查询任务状态的凭据。
func (s *ingestService) UploadFile(ctx context.Context, brainID, fileName string, content []byte) (string, error) {
	// 空文件与不支持的类型直接拒绝，不产生任务
	if len(content) == 0 {
		return "", ErrEmptyFile
	}
	if _, err := s.registry.Get(fileName); err != nil {
		return "", err
	}

	fileID := uuid.NewString()
	objectKey := "uploads/" + fileID + "/" + filepath.Base(fileName)

	log.Infof("[IngestService] 接收文件, FileID: %s, FileName: %s, Size: %d字节", fileID, fileName, len(content))

	if err := s.storage.Put(ctx, objectKey, content); err != nil {
		return "", fmt.Errorf("写入对象存储失败: %w", err)
	}

	record := &model.FileRecord{
		ID:        fileID,
		FileName:  fileName,
		ObjectKey: objectKey,
		Status:    model.FileStatusPending,
		BrainID:   brainID,
	}
	if err := s.fileRepo.CreateFileRecord(record); err != nil {
		return "", fmt.Errorf("创建文件记录失败: %w", err)
	}
	if err := s.fileRepo.SetTaskStatus(ctx, fileID, model.FileStatusPending); err != nil {
		log.Warnf("[IngestService] 初始化任务状态失败, FileID: %s, Error: %v", fileID, err)
	}

	task := tasks.IngestTask{
		FileID:    fileID,
		BrainID:   brainID,
		FileName:  fileName,
		ObjectKey: objectKey,
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		// 投递失败时标记任务失败，调用方可以重新上传
		if statusErr := s.fileRepo.SetTaskStatus(ctx, fileID, model.FileStatusFailure); statusErr != nil {
			log.Warnf("[IngestService] 更新任务状态为 FAILURE 失败, FileID: %s, Error: %v", fileID, statusErr)
		}
		return "", fmt.Errorf("投递摄取任务失败: %w", err)
	}

	log.Infof("[IngestService] 摄取任务已投递, FileID: %s, BrainID: %s", fileID, brainID)
	return fileID, nil
}

// GetTaskStatus 返回指定文件的摄取状态，未知文件返回空字符串。
func (s *ingestService) GetTaskStatus(ctx context.Context, fileID string) (string, error) {
	return s.fileRepo.GetTaskStatus(ctx, fileID)
}

// ListFiles 返回某个 Brain 已上传的全部文件记录。
func (s *ingestService) ListFiles(ctx context.Context, brainID string) ([]model.FileRecord, error) {
	return s.fileRepo.FindFilesByBrainID(brainID)
}
