// Package pipeline 定义了文件摄取的核心流程。
package pipeline

import (
	"context"
	"fmt"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/model"
	"nexusmind-go/internal/repository"
	"nexusmind-go/internal/splitter"
	"nexusmind-go/pkg/log"
	"nexusmind-go/pkg/tasks"
)

// Processor 封装了摄取任务的所有依赖和逻辑。
type Processor struct {
	brains   *brain.Manager
	registry *splitter.Registry
	fileRepo repository.FileRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(brains *brain.Manager, registry *splitter.Registry, fileRepo repository.FileRepository) *Processor {
	return &Processor{
		brains:   brains,
		registry: registry,
		fileRepo: fileRepo,
	}
}

// Process 是摄取任务的主函数。任何一步失败都把任务状态置为 FAILURE 后返回错误，
// 由消费者按重试策略决定是否重投。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理摄取任务, FileID: %s, FileName: %s, BrainID: %s", task.FileID, task.FileName, task.BrainID)

	if err := p.fileRepo.SetTaskStatus(ctx, task.FileID, model.FileStatusProcessing); err != nil {
		log.Warnf("[Processor] 更新任务状态为 PROCESSING 失败, FileID: %s, Error: %v", task.FileID, err)
	}

	err := p.process(ctx, task)
	if err != nil {
		log.Errorf("[Processor] 摄取任务失败, FileID: %s, Error: %v", task.FileID, err)
		if statusErr := p.fileRepo.SetTaskStatus(ctx, task.FileID, model.FileStatusFailure); statusErr != nil {
			log.Warnf("[Processor] 更新任务状态为 FAILURE 失败, FileID: %s, Error: %v", task.FileID, statusErr)
		}
		return err
	}

	if err := p.fileRepo.SetTaskStatus(ctx, task.FileID, model.FileStatusSuccess); err != nil {
		log.Warnf("[Processor] 更新任务状态为 SUCCESS 失败, FileID: %s, Error: %v", task.FileID, err)
	}
	log.Infof("[Processor] 摄取任务完成, FileID: %s", task.FileID)
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.IngestTask) error {
	// 1. 恢复或创建目标 Brain
	log.Infof("[Processor] 步骤1: 装配 Brain, BrainID: %s", task.BrainID)
	b, err := p.brains.GetOrCreate(ctx, task.BrainID, task.BrainID)
	if err != nil {
		return fmt.Errorf("装配 Brain 失败: %w", err)
	}

	// 2. 按扩展名选择处理器并切分文件
	log.Infof("[Processor] 步骤2: 切分文件, FileName: %s", task.FileName)
	proc, err := p.registry.Get(task.FileName)
	if err != nil {
		return err
	}
	file := model.NexusFile{
		FileID:   task.FileID,
		FileName: task.FileName,
		FilePath: task.ObjectKey,
		Metadata: make(map[string]string),
	}
	chunks, err := proc.Process(ctx, file)
	if err != nil {
		return fmt.Errorf("切分文件失败: %w", err)
	}
	log.Infof("[Processor] 步骤2: 切分完成, 共生成 %d 个分块", len(chunks))

	// 3. 向量化并写入索引。零分块的文件是合法的空文档，任务照常成功
	if len(chunks) > 0 {
		log.Infof("[Processor] 步骤3: 向量化并写入索引")
		skipped, err := b.Index().AddDocuments(ctx, chunks)
		if err != nil {
			return fmt.Errorf("写入向量索引失败: %w", err)
		}
		if skipped > 0 {
			log.Warnf("[Processor] 步骤3: %d 个分块因 Embedding 失败被跳过", skipped)
		}
	}

	// 4. 持久化 Brain 快照
	if err := b.Save(ctx); err != nil {
		return fmt.Errorf("保存 Brain 失败: %w", err)
	}
	return nil
}
