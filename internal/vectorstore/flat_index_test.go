package vectorstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusmind-go/internal/model"
	"nexusmind-go/pkg/storage"
)

// fakeEmbedder 按文本查表返回预置向量，未登记的文本返回错误。
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("未登记的文本")
	}
	return v, nil
}

func chunkOf(content string) model.Chunk {
	return model.NewChunk("doc-1", content, nil)
}

func newMemoryIndex(t *testing.T, embedder Embedder) *FlatIndex {
	t.Helper()
	idx, err := Open(context.Background(), embedder, nil, "")
	require.NoError(t, err)
	return idx
}

func TestAddDocumentsEmptyInput(t *testing.T) {
	idx := newMemoryIndex(t, &fakeEmbedder{})
	skipped, err := idx.AddDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Zero(t, idx.Count())
}

func TestAddDocumentsSkipsFailedEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"好的文本": {1, 0},
	}}
	idx := newMemoryIndex(t, embedder)

	skipped, err := idx.AddDocuments(context.Background(), []model.Chunk{
		chunkOf("好的文本"),
		chunkOf("坏的文本"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, 2, idx.Dimension())
}

func TestAddDocumentsDimensionMismatch(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"二维": {1, 0},
		"三维": {1, 0, 0},
	}}
	idx := newMemoryIndex(t, embedder)

	_, err := idx.AddDocuments(context.Background(), []model.Chunk{chunkOf("二维")})
	require.NoError(t, err)

	_, err = idx.AddDocuments(context.Background(), []model.Chunk{chunkOf("三维")})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	// 失败的追加不能破坏索引
	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, 2, idx.Dimension())
}

func TestSimilaritySearchOrdering(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"正东": {1, 0},
		"正北": {0, 1},
		"东北": {1, 1},
		"查询": {1, 0},
	}}
	idx := newMemoryIndex(t, embedder)

	_, err := idx.AddDocuments(context.Background(), []model.Chunk{
		chunkOf("正北"), chunkOf("东北"), chunkOf("正东"),
	})
	require.NoError(t, err)

	results, err := idx.SimilaritySearch(context.Background(), "查询", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "正东", results[0].Content)
	assert.Equal(t, "东北", results[1].Content)
	assert.Equal(t, "正北", results[2].Content)
}

func TestSimilaritySearchStableTieBreak(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"先入": {1, 0},
		"后入": {1, 0},
		"查询": {1, 0},
	}}
	idx := newMemoryIndex(t, embedder)

	_, err := idx.AddDocuments(context.Background(), []model.Chunk{chunkOf("先入"), chunkOf("后入")})
	require.NoError(t, err)

	// 距离相同时按插入顺序返回
	results, err := idx.SimilaritySearch(context.Background(), "查询", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "先入", results[0].Content)
	assert.Equal(t, "后入", results[1].Content)
}

func TestSimilaritySearchClampsK(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"唯一": {1, 0},
		"查询": {0, 1},
	}}
	idx := newMemoryIndex(t, embedder)

	_, err := idx.AddDocuments(context.Background(), []model.Chunk{chunkOf("唯一")})
	require.NoError(t, err)

	results, err := idx.SimilaritySearch(context.Background(), "查询", 1000)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSimilaritySearchEmptyIndex(t *testing.T) {
	idx := newMemoryIndex(t, &fakeEmbedder{})
	results, err := idx.SimilaritySearch(context.Background(), "任何问题", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSimilaritySearchQueryEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"内容": {1, 0},
	}}
	idx := newMemoryIndex(t, embedder)
	_, err := idx.AddDocuments(context.Background(), []model.Chunk{chunkOf("内容")})
	require.NoError(t, err)

	// 查询向量化失败时降级为空结果
	results, err := idx.SimilaritySearch(context.Background(), "未登记的查询", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"第一块": {1, 0, 0},
		"第二块": {0, 1, 0},
		"查询":  {1, 0, 0},
	}}

	idx, err := Open(ctx, embedder, st, "vectors/vs_test.index")
	require.NoError(t, err)
	first := chunkOf("第一块")
	first.Metadata["chunk_index"] = "1"
	_, err = idx.AddDocuments(ctx, []model.Chunk{first, chunkOf("第二块")})
	require.NoError(t, err)

	// 追加成功后两个工件都已同步落盘
	exists, err := st.Exists(ctx, "vectors/vs_test.index")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.Exists(ctx, "vectors/vs_test.index.chunks.json")
	require.NoError(t, err)
	assert.True(t, exists)

	restored, err := Open(ctx, embedder, st, "vectors/vs_test.index")
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Count())
	assert.Equal(t, 3, restored.Dimension())

	results, err := restored.SimilaritySearch(ctx, "查询", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "第一块", results[0].Content)
	assert.Equal(t, "1", results[0].Metadata["chunk_index"])
}

func TestEmptyAddDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	idx, err := Open(ctx, &fakeEmbedder{}, st, "vectors/vs_empty.index")
	require.NoError(t, err)
	_, err = idx.AddDocuments(ctx, nil)
	require.NoError(t, err)

	exists, err := st.Exists(ctx, "vectors/vs_empty.index")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOpenInconsistentArtifacts(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	embedder := &fakeEmbedder{vectors: map[string][]float32{"内容": {1, 0}}}

	idx, err := Open(ctx, embedder, st, "vectors/vs_broken.index")
	require.NoError(t, err)
	_, err = idx.AddDocuments(ctx, []model.Chunk{chunkOf("内容")})
	require.NoError(t, err)

	// 只剩其中一个工件时拒绝恢复
	require.NoError(t, st.Delete(ctx, "vectors/vs_broken.index.chunks.json"))
	_, err = Open(ctx, embedder, st, "vectors/vs_broken.index")
	require.ErrorIs(t, err, ErrInconsistentState)
}

// 头部声明的数量与实际数据不符的工件被拒绝，
// 夸大的 count 不会触发按头部声明的内存分配。
func TestOpenRejectsTruncatedArtifact(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	// 手工构造工件：声明 1<<30 个 4 维向量，数据只有一个
	buf := new(bytes.Buffer)
	buf.Write(indexMagic[:])
	for _, v := range []uint32{indexVersion, 4, 1 << 30} {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
	}
	require.NoError(t, binary.Write(buf, binary.LittleEndian, []float32{1, 2, 3, 4}))

	require.NoError(t, st.Put(ctx, "vectors/vs_evil.index", buf.Bytes()))
	require.NoError(t, st.Put(ctx, "vectors/vs_evil.index.chunks.json", []byte("[]")))

	_, err = Open(ctx, &fakeEmbedder{}, st, "vectors/vs_evil.index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "长度不符")
}
