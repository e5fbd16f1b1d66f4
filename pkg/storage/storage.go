// Package storage 提供了统一的持久化对象存储能力。
// 向量索引工件和 Brain 快照都通过这里的 Storage 接口读写，
// 具体后端可以是本地磁盘或 MinIO 等对象存储服务。
package storage

import "context"

// Storage 是对象存储的窄接口：按 key 存取字节内容。
type Storage interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
