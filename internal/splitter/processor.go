package splitter

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"nexusmind-go/internal/model"
	"nexusmind-go/pkg/log"
	"nexusmind-go/pkg/storage"
)

// ErrUnsupportedFileType 表示没有处理器能处理该文件类型。
var ErrUnsupportedFileType = fmt.Errorf("不支持的文件类型")

// Processor 将一个逻辑文件处理为有序的 Chunk 序列。
// 读取或解码失败时返回空序列而非错误：零分块是合法且可记录的结果。
type Processor interface {
	Process(ctx context.Context, file model.NexusFile) ([]model.Chunk, error)
}

// Registry 按文件扩展名注册处理器。
type Registry struct {
	processors map[string]Processor
}

// NewRegistry 创建一个空的处理器注册表。
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register 为指定扩展名注册一个处理器，扩展名大小写不敏感。
func (r *Registry) Register(ext string, p Processor) {
	normalized := strings.ToLower(ext)
	if !strings.HasPrefix(normalized, ".") {
		normalized = "." + normalized
	}
	r.processors[normalized] = p
}

// Get 根据文件名的扩展名返回对应的处理器。
// 未注册的扩展名返回 ErrUnsupportedFileType。
func (r *Registry) Get(fileName string) (Processor, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	p, ok := r.processors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedFileType, ext)
	}
	return p, nil
}

// LineProcessor 是面向纯文本的行处理器：每个非空行生成一个 Chunk，
// 并记录 1 起始的物理行号；空行被整体跳过。
type LineProcessor struct {
	storage storage.Storage
}

// NewLineProcessor 创建一个行处理器。
func NewLineProcessor(st storage.Storage) *LineProcessor {
	return &LineProcessor{storage: st}
}

// Process 从存储读取文件内容并按行切分。
func (p *LineProcessor) Process(ctx context.Context, file model.NexusFile) ([]model.Chunk, error) {
	content, ok := readText(ctx, p.storage, file)
	if !ok {
		return nil, nil
	}

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	var chunks []model.Chunk
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			// 空行不产生空 Chunk
			continue
		}
		chunks = append(chunks, model.NewChunk(file.FileID, line, map[string]string{
			"file_name":   file.FileName,
			"line_number": strconv.Itoa(i + 1),
		}))
	}

	Finalize(chunks, fileMetadata(file, "line"))
	return chunks, nil
}

// TextProcessor 按配置的分块策略处理通用文本文件。
type TextProcessor struct {
	storage  storage.Storage
	settings Settings
}

// NewTextProcessor 创建一个策略分块处理器。
func NewTextProcessor(st storage.Storage, settings Settings) *TextProcessor {
	return &TextProcessor{storage: st, settings: settings}
}

// Process 从存储读取文件内容，按策略切分为 Chunk 序列。
func (p *TextProcessor) Process(ctx context.Context, file model.NexusFile) ([]model.Chunk, error) {
	content, ok := readText(ctx, p.storage, file)
	if !ok {
		return nil, nil
	}

	texts, err := Split(content, p.settings)
	if err != nil {
		return nil, fmt.Errorf("切分文件 '%s' 失败: %w", file.FileName, err)
	}

	chunks := make([]model.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, model.NewChunk(file.FileID, t, map[string]string{
			"file_name": file.FileName,
		}))
	}

	Finalize(chunks, fileMetadata(file, string(p.settings.Strategy)))
	return chunks, nil
}

// readText 读取并解码文件内容。读取失败返回 ok=false，调用方应以零分块继续。
func readText(ctx context.Context, st storage.Storage, file model.NexusFile) (string, bool) {
	content, err := st.Get(ctx, file.FilePath)
	if err != nil {
		log.Warnf("[Splitter] 读取文件内容失败, FileName: %s, Path: %s, Error: %v", file.FileName, file.FilePath, err)
		return "", false
	}
	return DecodeText(content), true
}

// fileMetadata 汇总合并进每个分块的文件级元数据。
func fileMetadata(file model.NexusFile, strategy string) map[string]string {
	meta := map[string]string{
		"file_name":         file.FileName,
		"file_extension":    strings.ToLower(filepath.Ext(file.FileName)),
		"chunking_strategy": strategy,
	}
	for k, v := range file.Metadata {
		meta[k] = v
	}
	return meta
}
