package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage 是 Storage 的本地文件系统实现。
// key 被映射为 basePath 下的相对路径。
type LocalStorage struct {
	basePath string
}

// NewLocal 创建一个本地存储实例，并确保根目录存在。
func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (s *LocalStorage) fullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Put 将内容写入 key 对应的文件，必要时创建父目录。
func (s *LocalStorage) Put(_ context.Context, key string, content []byte) error {
	path := s.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("写入文件 '%s' 失败: %w", key, err)
	}
	return nil
}

// Get 读取 key 对应文件的全部内容。
func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.fullPath(key))
	if err != nil {
		return nil, fmt.Errorf("读取文件 '%s' 失败: %w", key, err)
	}
	return content, nil
}

// Exists 检查 key 对应的文件是否存在。
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.fullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete 删除 key 对应的文件，文件不存在时视为成功。
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	err := os.Remove(s.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文件 '%s' 失败: %w", key, err)
	}
	return nil
}
