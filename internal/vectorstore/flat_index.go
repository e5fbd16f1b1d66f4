// Package vectorstore 实现了基于精确最近邻检索的向量索引。
// 索引由两个平行列表构成：向量列表与 Chunk 列表，
// 位置是二者唯一的关联键，两个列表必须始终等长且顺序一致。
package vectorstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"nexusmind-go/internal/model"
	"nexusmind-go/pkg/log"
	"nexusmind-go/pkg/storage"
)

var (
	// ErrDimensionMismatch 表示新向量的维度与索引已固定的维度不一致。
	// 这通常意味着 Embedding 服务被更换，必须显式失败而不是悄悄破坏索引。
	ErrDimensionMismatch = errors.New("向量维度与索引维度不一致")

	// ErrInconsistentState 表示持久化工件不完整：
	// 向量工件与分块工件只有其一存在，索引无法安全重建。
	ErrInconsistentState = errors.New("向量索引持久化工件不完整")
)

// Embedder 将文本映射为定长数值向量。
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// 向量工件的文件头标识与版本。
var indexMagic = [4]byte{'N', 'M', 'V', 'S'}

const indexVersion uint32 = 1

// FlatIndex 是精确 L2 最近邻索引。
// 互斥锁保证单个索引的变更、检索与落盘按“每上下文单写者”串行执行；
// 不同索引之间完全独立，可以并行操作。
type FlatIndex struct {
	mu       sync.Mutex
	embedder Embedder
	storage  storage.Storage
	storeKey string

	dimension int
	vectors   [][]float32
	chunks    []model.Chunk
}

// Open 创建一个向量索引。storeKey 非空时启用持久化：
// 若存储中已有该索引的工件则在此处恢复；没有任何工件则从空索引开始。
func Open(ctx context.Context, embedder Embedder, st storage.Storage, storeKey string) (*FlatIndex, error) {
	idx := &FlatIndex{
		embedder: embedder,
		storage:  st,
		storeKey: storeKey,
	}
	if st == nil || storeKey == "" {
		return idx, nil
	}
	if err := idx.load(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// chunkKey 返回分块工件的存储键，与向量工件共享同一路径主干。
func (x *FlatIndex) chunkKey() string {
	return x.storeKey + ".chunks.json"
}

// AddDocuments 为每个分块请求 Embedding 并追加到索引。
// Embedding 失败或为空的分块被跳过（不是错误），返回被跳过的数量；
// 配置了持久化时，成功的追加在返回前同步落盘。
func (x *FlatIndex) AddDocuments(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	log.Infof("[VectorStore] 开始为 %d 个分块生成 Embedding", len(chunks))

	// 先按输入顺序收集全部 Embedding，再成对追加，保证两个列表平行
	type embedded struct {
		vector []float32
		chunk  model.Chunk
	}
	valid := make([]embedded, 0, len(chunks))
	skipped := 0
	for _, chunk := range chunks {
		vector, err := x.embedder.CreateEmbedding(ctx, chunk.Content)
		if err != nil || len(vector) == 0 {
			log.Warnf("[VectorStore] 分块 Embedding 失败, ChunkID: %s, Error: %v", chunk.ChunkID, err)
			skipped++
			continue
		}
		valid = append(valid, embedded{vector: vector, chunk: chunk})
	}

	if len(valid) == 0 {
		log.Warnf("[VectorStore] 没有任何分块获得有效 Embedding, 索引不变更")
		return skipped, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// 维度在首个有效向量处固定，之后的每个向量都必须一致
	dimension := x.dimension
	if dimension == 0 {
		dimension = len(valid[0].vector)
	}
	for _, e := range valid {
		if len(e.vector) != dimension {
			return skipped, fmt.Errorf("%w: 期望 %d, 实际 %d", ErrDimensionMismatch, dimension, len(e.vector))
		}
	}

	if x.dimension == 0 {
		log.Infof("[VectorStore] 创建新索引, 维度: %d", dimension)
		x.dimension = dimension
	}
	for _, e := range valid {
		x.vectors = append(x.vectors, e.vector)
		x.chunks = append(x.chunks, e.chunk)
	}

	log.Infof("[VectorStore] 追加 %d 个向量成功, 跳过 %d 个, 当前总量: %d", len(valid), skipped, len(x.vectors))

	if x.storage != nil && x.storeKey != "" {
		if err := x.saveLocked(ctx); err != nil {
			return skipped, fmt.Errorf("保存向量索引失败: %w", err)
		}
	}
	return skipped, nil
}

// SimilaritySearch 返回与查询最近的 k 个分块，按距离升序排列。
// 空索引或查询 Embedding 失败时返回空序列；k 大于向量总量时被收紧。
func (x *FlatIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]model.Chunk, error) {
	x.mu.Lock()
	count := len(x.vectors)
	x.mu.Unlock()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	queryVector, err := x.embedder.CreateEmbedding(ctx, query)
	if err != nil || len(queryVector) == 0 {
		// Embedding 服务降级时检索结果为空，不作为错误上抛
		log.Warnf("[VectorStore] 查询 Embedding 失败, 返回空结果, Error: %v", err)
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(queryVector) != x.dimension {
		return nil, fmt.Errorf("%w: 期望 %d, 实际 %d", ErrDimensionMismatch, x.dimension, len(queryVector))
	}

	if k > len(x.vectors) {
		k = len(x.vectors)
	}

	// 平方欧氏距离，向量不做归一化；如需余弦语义应由 Embedding 服务返回归一化向量
	distances := make([]float32, len(x.vectors))
	for i, v := range x.vectors {
		distances[i] = squaredL2(queryVector, v)
	}

	order := make([]int, len(x.vectors))
	for i := range order {
		order[i] = i
	}
	// 稳定排序：距离相同的向量按插入顺序返回
	sort.SliceStable(order, func(a, b int) bool {
		return distances[order[a]] < distances[order[b]]
	})

	results := make([]model.Chunk, 0, k)
	for _, i := range order[:k] {
		results = append(results, x.chunks[i])
	}
	return results, nil
}

// Count 返回索引中的向量数量。
func (x *FlatIndex) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.vectors)
}

// Dimension 返回索引已固定的向量维度，尚未固定时为 0。
func (x *FlatIndex) Dimension() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.dimension
}

// Save 将索引落盘。向量工件与分块工件必须成对写入。
func (x *FlatIndex) Save(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.saveLocked(ctx)
}

func (x *FlatIndex) saveLocked(ctx context.Context) error {
	if x.storage == nil || x.storeKey == "" {
		return fmt.Errorf("未配置持久化路径, 无法保存索引")
	}
	if len(x.vectors) == 0 {
		log.Warnf("[VectorStore] 索引为空, 跳过保存")
		return nil
	}

	indexBytes, err := x.encodeVectors()
	if err != nil {
		return fmt.Errorf("编码向量工件失败: %w", err)
	}
	chunkBytes, err := json.Marshal(x.chunks)
	if err != nil {
		return fmt.Errorf("编码分块工件失败: %w", err)
	}

	if err := x.storage.Put(ctx, x.storeKey, indexBytes); err != nil {
		return fmt.Errorf("写入向量工件失败: %w", err)
	}
	if err := x.storage.Put(ctx, x.chunkKey(), chunkBytes); err != nil {
		return fmt.Errorf("写入分块工件失败: %w", err)
	}

	log.Infof("[VectorStore] 已保存 %d 个向量与分块元数据, Key: %s", len(x.vectors), x.storeKey)
	return nil
}

// load 在构造时尝试恢复持久化工件。
// 两个工件都不存在表示从空索引开始；只存在其一是不一致状态，必须失败。
func (x *FlatIndex) load(ctx context.Context) error {
	indexExists, err := x.storage.Exists(ctx, x.storeKey)
	if err != nil {
		return fmt.Errorf("检查向量工件失败: %w", err)
	}
	chunksExist, err := x.storage.Exists(ctx, x.chunkKey())
	if err != nil {
		return fmt.Errorf("检查分块工件失败: %w", err)
	}

	if !indexExists && !chunksExist {
		return nil
	}
	if indexExists != chunksExist {
		return fmt.Errorf("%w: index=%v, chunks=%v (key=%s)", ErrInconsistentState, indexExists, chunksExist, x.storeKey)
	}

	indexBytes, err := x.storage.Get(ctx, x.storeKey)
	if err != nil {
		return fmt.Errorf("读取向量工件失败: %w", err)
	}
	if err := x.decodeVectors(indexBytes); err != nil {
		return fmt.Errorf("解析向量工件失败: %w", err)
	}

	chunkBytes, err := x.storage.Get(ctx, x.chunkKey())
	if err != nil {
		return fmt.Errorf("读取分块工件失败: %w", err)
	}
	var chunks []model.Chunk
	if err := json.Unmarshal(chunkBytes, &chunks); err != nil {
		return fmt.Errorf("解析分块工件失败: %w", err)
	}

	if len(chunks) != len(x.vectors) {
		return fmt.Errorf("%w: 向量 %d 个, 分块 %d 个", ErrInconsistentState, len(x.vectors), len(chunks))
	}
	x.chunks = chunks

	log.Infof("[VectorStore] 从存储恢复索引成功, Key: %s, 向量数: %d, 维度: %d", x.storeKey, len(x.vectors), x.dimension)
	return nil
}

// encodeVectors 将向量列表编码为二进制工件：
// 魔数、版本、维度、数量，随后是小端序的 float32 数据。
func (x *FlatIndex) encodeVectors() ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.Write(indexMagic[:]); err != nil {
		return nil, err
	}
	header := []uint32{indexVersion, uint32(x.dimension), uint32(len(x.vectors))}
	for _, v := range header {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	for _, vector := range x.vectors {
		if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (x *FlatIndex) decodeVectors(content []byte) error {
	buf := bytes.NewReader(content)
	var magic [4]byte
	if _, err := buf.Read(magic[:]); err != nil {
		return err
	}
	if magic != indexMagic {
		return fmt.Errorf("无效的向量工件头: %v", magic)
	}
	var version, dimension, count uint32
	for _, p := range []*uint32{&version, &dimension, &count} {
		if err := binary.Read(buf, binary.LittleEndian, p); err != nil {
			return err
		}
	}
	if version != indexVersion {
		return fmt.Errorf("不支持的向量工件版本: %d", version)
	}

	// 先核对剩余长度再分配，头部声明的 count 不可信
	expected := int64(count) * int64(dimension) * 4
	if expected != int64(buf.Len()) {
		return fmt.Errorf("向量工件数据长度不符: 期望 %d 字节, 实际 %d 字节", expected, buf.Len())
	}

	vectors := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		vector := make([]float32, dimension)
		if err := binary.Read(buf, binary.LittleEndian, vector); err != nil {
			return err
		}
		vectors = append(vectors, vector)
	}

	x.dimension = int(dimension)
	x.vectors = vectors
	return nil
}

// squaredL2 计算两个向量的平方欧氏距离。
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
