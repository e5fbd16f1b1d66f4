// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"nexusmind-go/internal/model"
)

// 任务状态在 Redis 中保留的时长。
const taskStatusTTL = 7 * 24 * time.Hour

// FileRepository 接口定义了文件记录与任务状态的持久化操作。
type FileRepository interface {
	// FileRecord operations (GORM)
	CreateFileRecord(record *model.FileRecord) error
	GetFileRecord(fileID string) (*model.FileRecord, error)
	UpdateFileStatus(fileID string, status string) error
	FindFilesByBrainID(brainID string) ([]model.FileRecord, error)

	// Task status operations (Redis)
	SetTaskStatus(ctx context.Context, fileID string, status string) error
	GetTaskStatus(ctx context.Context, fileID string) (string, error)
}

// fileRepository 是 FileRepository 接口的 GORM+Redis 实现。
type fileRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB, redisClient *redis.Client) FileRepository {
	return &fileRepository{db: db, redisClient: redisClient}
}

// getTaskStatusKey generates the redis key for task status.
func (r *fileRepository) getTaskStatusKey(fileID string) string {
	return "task:" + fileID + ":status"
}

// CreateFileRecord 在数据库中创建一条文件记录。
func (r *fileRepository) CreateFileRecord(record *model.FileRecord) error {
	return r.db.Create(record).Error
}

// GetFileRecord 根据文件 ID 检索文件记录，未找到时返回 nil。
func (r *fileRepository) GetFileRecord(fileID string) (*model.FileRecord, error) {
	var record model.FileRecord
	err := r.db.Where("id = ?", fileID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// UpdateFileStatus 更新文件记录的处理状态。
func (r *fileRepository) UpdateFileStatus(fileID string, status string) error {
	return r.db.Model(&model.FileRecord{}).Where("id = ?", fileID).Update("status", status).Error
}

// FindFilesByBrainID 返回某个 Brain 下的全部文件记录，按创建时间倒序。
func (r *fileRepository) FindFilesByBrainID(brainID string) ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.Where("brain_id = ?", brainID).Order("created_at DESC").Find(&records).Error
	return records, err
}

// SetTaskStatus 在 Redis 中记录任务状态，同时同步到数据库。
func (r *fileRepository) SetTaskStatus(ctx context.Context, fileID string, status string) error {
	if err := r.redisClient.Set(ctx, r.getTaskStatusKey(fileID), status, taskStatusTTL).Err(); err != nil {
		return err
	}
	return r.UpdateFileStatus(fileID, status)
}

// GetTaskStatus 从 Redis 读取任务状态，缓存失效时回源数据库。
func (r *fileRepository) GetTaskStatus(ctx context.Context, fileID string) (string, error) {
	status, err := r.redisClient.Get(ctx, r.getTaskStatusKey(fileID)).Result()
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", err
	}
	record, err := r.GetFileRecord(fileID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.Status, nil
}
