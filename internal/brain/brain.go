// Package brain 实现知识上下文聚合：
// 一个 Brain 绑定一个向量索引、一份对话历史与一份生成配置，
// 三者以 BrainID 为键共同持久化，重启后可完整恢复。
package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexusmind-go/internal/vectorstore"
	"nexusmind-go/pkg/log"
	"nexusmind-go/pkg/storage"
)

// ErrNotFound 表示指定 ID 的 Brain 没有持久化快照。
var ErrNotFound = errors.New("brain 不存在")

// 持久化键的布局：快照与向量工件分别位于 brains/ 与 vectors/ 前缀下。
func snapshotKey(id string) string { return "brains/" + id + ".json" }
func indexKey(id string) string    { return "vectors/vs_" + id + ".index" }

// Exchange 是一轮完整的问答，历史只增不改。
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GenerationConfig 是 Brain 创建时固定的生成配置。
// 后续修改全局默认值不影响已存在的 Brain。
type GenerationConfig struct {
	LLMModelName string  `json:"llm_model_name"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// Brain 是一个独立的知识上下文。
// 运行期字段（索引、存储）不进入快照，恢复时按 ID 重新装配。
type Brain struct {
	ID         string           `json:"brain_id"`
	Name       string           `json:"brain_name"`
	History    []Exchange       `json:"history"`
	Generation GenerationConfig `json:"generation_config"`
	CreatedAt  time.Time        `json:"created_at"`

	// mu 串行化历史追加与快照落盘。同一 BrainID 在进程内只有
	// 一个实例（见 Manager 缓存），向量工件只由索引自身写入，
	// 问答与摄取并发时互不覆盖。
	mu      sync.Mutex
	index   *vectorstore.FlatIndex
	storage storage.Storage
}

// Index 返回 Brain 绑定的向量索引。
func (b *Brain) Index() *vectorstore.FlatIndex { return b.index }

// AppendExchange 向历史追加一轮问答。
func (b *Brain) AppendExchange(question, answer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.History = append(b.History, Exchange{Question: question, Answer: answer})
}

// SaveSnapshot 只写 Brain 快照（名称、历史、生成配置）。
// 向量工件由索引在 AddDocuments 内同步落盘，问答链路不重写。
func (b *Brain) SaveSnapshot(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("编码 Brain 快照失败: %w", err)
	}
	if err := b.storage.Put(ctx, snapshotKey(b.ID), snapshot); err != nil {
		return fmt.Errorf("写入 Brain 快照失败: %w", err)
	}
	log.Infof("[Brain] 快照已保存, BrainID: %s, 历史轮数: %d", b.ID, len(b.History))
	return nil
}

// Save 先写 Brain 快照，再写向量工件。
// 索引为空时向量工件被跳过，但快照仍然落盘。
func (b *Brain) Save(ctx context.Context) error {
	if err := b.SaveSnapshot(ctx); err != nil {
		return err
	}
	if b.index.Count() > 0 {
		if err := b.index.Save(ctx); err != nil {
			return fmt.Errorf("写入 Brain 向量索引失败: %w", err)
		}
	}
	return nil
}

// Manager 负责 Brain 的创建、恢复与缓存。
// 同一 BrainID 在进程内只产出一个 Brain 实例：
// 问答和摄取拿到的是同一份索引与历史，互相不会用过期副本覆盖对方。
type Manager struct {
	storage  storage.Storage
	embedder vectorstore.Embedder
	defaults GenerationConfig

	mu    sync.Mutex
	cache map[string]*Brain
}

// NewManager 创建 Brain 管理器。defaults 是新建 Brain 时固定的生成配置。
func NewManager(st storage.Storage, embedder vectorstore.Embedder, defaults GenerationConfig) *Manager {
	return &Manager{
		storage:  st,
		embedder: embedder,
		defaults: defaults,
		cache:    make(map[string]*Brain),
	}
}

// Create 创建一个全新的 Brain 并立即持久化快照。
func (m *Manager) Create(ctx context.Context, name string) (*Brain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.newBrainLocked(ctx, uuid.NewString(), name)
	if err != nil {
		return nil, err
	}
	log.Infof("[Brain] 创建成功, BrainID: %s, Name: %s", b.ID, name)
	return b, nil
}

// newBrainLocked 构建并持久化一个新 Brain，写入缓存。调用方持有 m.mu。
func (m *Manager) newBrainLocked(ctx context.Context, id, name string) (*Brain, error) {
	b := &Brain{
		ID:         id,
		Name:       name,
		Generation: m.defaults,
		CreatedAt:  time.Now(),
	}
	index, err := vectorstore.Open(ctx, m.embedder, m.storage, indexKey(id))
	if err != nil {
		return nil, fmt.Errorf("创建向量索引失败: %w", err)
	}
	b.index = index
	b.storage = m.storage

	if err := b.Save(ctx); err != nil {
		return nil, err
	}
	m.cache[id] = b
	return b, nil
}

// loadLocked 从存储恢复 Brain 并写入缓存。调用方持有 m.mu。
func (m *Manager) loadLocked(ctx context.Context, id string) (*Brain, error) {
	exists, err := m.storage.Exists(ctx, snapshotKey(id))
	if err != nil {
		return nil, fmt.Errorf("检查 Brain 快照失败: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	snapshot, err := m.storage.Get(ctx, snapshotKey(id))
	if err != nil {
		return nil, fmt.Errorf("读取 Brain 快照失败: %w", err)
	}
	b := &Brain{}
	if err := json.Unmarshal(snapshot, b); err != nil {
		return nil, fmt.Errorf("解析 Brain 快照失败: %w", err)
	}

	index, err := vectorstore.Open(ctx, m.embedder, m.storage, indexKey(id))
	if err != nil {
		return nil, fmt.Errorf("恢复向量索引失败: %w", err)
	}
	b.index = index
	b.storage = m.storage

	m.cache[id] = b
	log.Infof("[Brain] 恢复成功, BrainID: %s, Name: %s, 向量数: %d", b.ID, b.Name, index.Count())
	return b, nil
}

// Load 按 ID 恢复 Brain，快照不存在时返回 ErrNotFound。
// 已在进程内活跃的 Brain 直接复用缓存实例。
func (m *Manager) Load(ctx context.Context, id string) (*Brain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.cache[id]; ok {
		return b, nil
	}
	return m.loadLocked(ctx, id)
}

// TryLoad 按 ID 恢复 Brain。快照不存在不是错误：返回 (nil, false, nil)，
// 由调用方决定是否构建默认 Brain。
func (m *Manager) TryLoad(ctx context.Context, id string) (*Brain, bool, error) {
	b, err := m.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// GetOrCreate 按 ID 恢复 Brain，不存在时创建同 ID 的新 Brain。
// 摄取链路使用该语义：首个文档到达时 Brain 随之诞生。
func (m *Manager) GetOrCreate(ctx context.Context, id, name string) (*Brain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.cache[id]; ok {
		return b, nil
	}
	b, err := m.loadLocked(ctx, id)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	b, err = m.newBrainLocked(ctx, id, name)
	if err != nil {
		return nil, err
	}
	log.Infof("[Brain] 不存在, 已创建, BrainID: %s", id)
	return b, nil
}
