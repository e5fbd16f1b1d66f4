// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"nexusmind-go/internal/brain"
	"nexusmind-go/pkg/log"
)

// BrainService 接口定义了 Brain 管理相关的业务操作。
type BrainService interface {
	CreateBrain(ctx context.Context, name string) (*brain.Brain, error)
	GetBrain(ctx context.Context, brainID string) (*brain.Brain, error)
	RenameBrain(ctx context.Context, brainID, name string) (*brain.Brain, error)
	GetHistory(ctx context.Context, brainID string) ([]brain.Exchange, error)
}

type brainService struct {
	brains *brain.Manager
}

// NewBrainService 创建一个新的 BrainService 实例。
func NewBrainService(brains *brain.Manager) BrainService {
	return &brainService{brains: brains}
}

// CreateBrain 创建一个新的 Brain 并返回其完整快照。
func (s *brainService) CreateBrain(ctx context.Context, name string) (*brain.Brain, error) {
	return s.brains.Create(ctx, name)
}

// GetBrain 按 ID 恢复 Brain，不存在时返回 brain.ErrNotFound。
func (s *brainService) GetBrain(ctx context.Context, brainID string) (*brain.Brain, error) {
	return s.brains.Load(ctx, brainID)
}

// RenameBrain 修改 Brain 名称并立即持久化。生成配置不可变更。
func (s *brainService) RenameBrain(ctx context.Context, brainID, name string) (*brain.Brain, error) {
	b, err := s.brains.Load(ctx, brainID)
	if err != nil {
		return nil, err
	}
	b.Name = name
	if err := b.SaveSnapshot(ctx); err != nil {
		return nil, err
	}
	log.Infof("[BrainService] 重命名成功, BrainID: %s, Name: %s", brainID, name)
	return b, nil
}

// GetHistory 返回 Brain 的完整对话历史。
func (s *brainService) GetHistory(ctx context.Context, brainID string) ([]brain.Exchange, error) {
	b, err := s.brains.Load(ctx, brainID)
	if err != nil {
		return nil, err
	}
	return b.History, nil
}
