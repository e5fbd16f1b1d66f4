package splitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusmind-go/internal/model"
	"nexusmind-go/pkg/storage"
)

func newTestStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	p := NewLineProcessor(newTestStorage(t))

	r.Register(".txt", p)
	r.Register("MD", p) // 不带点、大写也能注册

	got, err := r.Get("notes.txt")
	require.NoError(t, err)
	assert.Same(t, p, got)

	got, err = r.Get("README.md")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = r.Get("image.png")
	require.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestLineProcessorLineNumbers(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	require.NoError(t, st.Put(ctx, "docs/a.txt", []byte("First line.\nSecond line.\n\nThird line.")))

	p := NewLineProcessor(st)
	file := model.NewNexusFile("a.txt", "docs/a.txt")
	chunks, err := p.Process(ctx, file)
	require.NoError(t, err)

	// 空行被跳过，行号记录的是物理行号
	require.Len(t, chunks, 3)
	assert.Equal(t, "First line.", chunks[0].Content)
	assert.Equal(t, "1", chunks[0].Metadata["line_number"])
	assert.Equal(t, "Second line.", chunks[1].Content)
	assert.Equal(t, "2", chunks[1].Metadata["line_number"])
	assert.Equal(t, "Third line.", chunks[2].Content)
	assert.Equal(t, "4", chunks[2].Metadata["line_number"])

	assert.Equal(t, "1", chunks[0].Metadata["chunk_index"])
	assert.Equal(t, "3", chunks[2].Metadata["chunk_index"])
	assert.Equal(t, "a.txt", chunks[0].Metadata["file_name"])
	assert.Equal(t, "line", chunks[0].Metadata["chunking_strategy"])
	assert.Equal(t, file.FileID, chunks[0].DocumentID)
}

func TestLineProcessorMissingFile(t *testing.T) {
	p := NewLineProcessor(newTestStorage(t))
	file := model.NewNexusFile("gone.txt", "docs/gone.txt")

	// 读取失败产生零分块，而不是错误
	chunks, err := p.Process(context.Background(), file)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTextProcessorSplitsContent(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	require.NoError(t, st.Put(ctx, "docs/b.md", []byte("aaaa\nbbbb\ncccc")))

	settings := Settings{ChunkSize: 10, ChunkOverlap: 0, Separator: "\n", Strategy: StrategyFast}
	p := NewTextProcessor(st, settings)
	file := model.NewNexusFile("b.md", "docs/b.md")
	file.Metadata["source"] = "unit"

	chunks, err := p.Process(ctx, file)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaa\nbbbb", chunks[0].Content)
	assert.Equal(t, "fast", chunks[0].Metadata["chunking_strategy"])
	assert.Equal(t, ".md", chunks[0].Metadata["file_extension"])
	assert.Equal(t, "unit", chunks[0].Metadata["source"])
}

func TestTextProcessorEmptyFile(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	require.NoError(t, st.Put(ctx, "docs/empty.md", []byte("   \n  ")))

	p := NewTextProcessor(st, DefaultSettings())
	chunks, err := p.Process(ctx, model.NewNexusFile("empty.md", "docs/empty.md"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
