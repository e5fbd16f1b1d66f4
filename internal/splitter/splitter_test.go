package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusmind-go/internal/model"
)

func fastSettings(size, overlap int) Settings {
	return Settings{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Separator:    "\n",
		Strategy:     StrategyFast,
	}
}

func TestSplitEmptyContent(t *testing.T) {
	chunks, err := Split("", DefaultSettings())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split("   \n\t  ", DefaultSettings())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitUnknownStrategy(t *testing.T) {
	st := DefaultSettings()
	st.Strategy = "semantic"
	_, err := Split("一些内容", st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic")
}

func TestSplitInvalidChunkSize(t *testing.T) {
	st := DefaultSettings()
	st.ChunkSize = 0
	_, err := Split("一些内容", st)
	require.Error(t, err)
}

func TestFastSplitShortContent(t *testing.T) {
	chunks, err := Split("短文本", fastSettings(100, 10))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "短文本", chunks[0])
}

func TestFastSplitOnSeparator(t *testing.T) {
	chunks, err := Split("aaaa\nbbbb\ncccc", fastSettings(10, 0))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaa\nbbbb", chunks[0])
	assert.Equal(t, "cccc", chunks[1])
}

func TestFastSplitCarriesOverlap(t *testing.T) {
	chunks, err := Split("aaaa\nbbbb\ncccc", fastSettings(10, 5))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// 第二块以前一块的尾部切片开头
	assert.Equal(t, "aaaa\nbbbb", chunks[0])
	assert.Equal(t, "bbbb\ncccc", chunks[1])
}

func TestFastSplitWindowFallback(t *testing.T) {
	// 没有任何分隔符的连续文本按固定窗口硬切
	content := strings.Repeat("字", 25)
	chunks, err := Split(content, fastSettings(10, 0))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("字", 10), chunks[0])
	assert.Equal(t, strings.Repeat("字", 10), chunks[1])
	assert.Equal(t, strings.Repeat("字", 5), chunks[2])
}

func TestEffectiveHiResOverlap(t *testing.T) {
	// 配置值翻倍
	assert.Equal(t, 20, EffectiveHiResOverlap(100, 10))
	// 上限为块大小的 30%
	assert.Equal(t, 30, EffectiveHiResOverlap(100, 30))
	assert.Equal(t, 300, EffectiveHiResOverlap(1000, 200))
	assert.Equal(t, 0, EffectiveHiResOverlap(100, 0))
}

func TestHiResSplitSentenceBoundaries(t *testing.T) {
	st := Settings{ChunkSize: 6, ChunkOverlap: 0, Strategy: StrategyHiRes}
	chunks, err := Split("第一句。第二句。第三句。", st)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	// 非末尾块补句号，末尾块去掉终结性标点
	assert.Equal(t, "第一句。", chunks[0])
	assert.Equal(t, "第二句。", chunks[1])
	assert.Equal(t, "第三句", chunks[2])
}

func TestHiResSplitTrimsLeadingPunctuation(t *testing.T) {
	st := Settings{ChunkSize: 1000, ChunkOverlap: 0, Strategy: StrategyHiRes}
	chunks, err := Split("。！开头带标点的内容", st)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "开头带标点的内容", chunks[0])
}

func TestAutoStrategySelection(t *testing.T) {
	st := Settings{
		ChunkSize:     6,
		ChunkOverlap:  0,
		Strategy:      StrategyAuto,
		AutoThreshold: 20,
	}

	// 阈值之内走 HI_RES：末尾块的终结性标点被去掉
	chunks, err := Split("第一句。第二句。第三句。", st)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "第三句", chunks[len(chunks)-1])

	// 超过阈值走 FAST：原文边界不做后处理
	long := strings.Repeat("长句。", 10)
	chunks, err = Split(long, st)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "。"))
}

func TestFinalizeMetadata(t *testing.T) {
	chunks := []model.Chunk{
		model.NewChunk("doc-1", "第一块", map[string]string{"line_number": "3"}),
		model.NewChunk("doc-1", "第二块", nil),
	}
	Finalize(chunks, map[string]string{
		"file_name":   "a.txt",
		"line_number": "999", // 不能覆盖块级已有的键
	})

	assert.Equal(t, "1", chunks[0].Metadata["chunk_index"])
	assert.Equal(t, "2", chunks[1].Metadata["chunk_index"])
	assert.Equal(t, "a.txt", chunks[0].Metadata["file_name"])
	assert.Equal(t, "3", chunks[0].Metadata["line_number"])
	assert.Equal(t, "999", chunks[1].Metadata["line_number"])
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "正常的 UTF-8 文本", DecodeText([]byte("正常的 UTF-8 文本")))

	// 非法 UTF-8 退回单字节解码：不崩溃且保留全部字节
	invalid := []byte{0xff, 0xfe, 'a', 'b'}
	decoded := DecodeText(invalid)
	assert.Len(t, []rune(decoded), 4)
	assert.Contains(t, decoded, "ab")
}
