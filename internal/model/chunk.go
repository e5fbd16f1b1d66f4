// Package model 包含了应用的数据模型定义。
package model

import "github.com/google/uuid"

// Chunk 是最小的可检索单元：一段文本内容加上它的来源元数据。
// Chunk 在 Splitter 中创建并完成一次性的元数据补全，之后交给向量索引，
// 不再被修改。
type Chunk struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

// NewChunk 创建一个带有新生成 ChunkID 的 Chunk。
func NewChunk(documentID, content string, metadata map[string]string) Chunk {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return Chunk{
		ChunkID:    uuid.NewString(),
		DocumentID: documentID,
		Content:    content,
		Metadata:   metadata,
	}
}
