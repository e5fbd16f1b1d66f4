package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/model"
	"nexusmind-go/pkg/llm"
	"nexusmind-go/pkg/storage"
)

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

// fakeChat 记录最近一次调用的消息与参数，返回预置回答。
// block 非空时生成会阻塞到该通道关闭，用于构造生成期间的并发场景。
type fakeChat struct {
	lastMessages []llm.Message
	lastGen      *llm.GenerationParams
	reply        string
	err          error
	streamParts  []string
	block        chan struct{}
}

func (f *fakeChat) ChatCompletion(_ context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.lastMessages = messages
	f.lastGen = gen
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChat) StreamChatMessages(_ context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	f.lastMessages = messages
	f.lastGen = gen
	if f.err != nil {
		return f.err
	}
	for _, part := range f.streamParts {
		if err := writer.WriteMessage(1, []byte(part)); err != nil {
			return err
		}
	}
	return nil
}

type collectWriter struct {
	parts []string
}

func (w *collectWriter) WriteMessage(_ int, data []byte) error {
	w.parts = append(w.parts, string(data))
	return nil
}

func newTestBrain(t *testing.T, embedder *fakeEmbedder, chunks []model.Chunk) *brain.Brain {
	t.Helper()
	ctx := context.Background()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	m := brain.NewManager(st, embedder, brain.GenerationConfig{
		LLMModelName: "test-model",
		Temperature:  0.5,
		MaxTokens:    256,
	})
	b, err := m.Create(ctx, "测试")
	require.NoError(t, err)
	if len(chunks) > 0 {
		_, err = b.Index().AddDocuments(ctx, chunks)
		require.NoError(t, err)
	}
	return b
}

func TestAnswerBuildsPromptFromRetrieval(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"The sky is blue and the grass is green.": {1, 0},
		"Bananas are yellow.":                     {0, 1},
		"What color is the grass?":                {1, 0},
	}}
	b := newTestBrain(t, embedder, []model.Chunk{
		model.NewChunk("doc-1", "The sky is blue and the grass is green.", nil),
		model.NewChunk("doc-1", "Bananas are yellow.", nil),
	})
	chat := &fakeChat{reply: "The grass is green."}
	o := New(chat, 1)

	answer, err := o.Answer(ctx, b, "What color is the grass?")
	require.NoError(t, err)
	assert.Equal(t, "The grass is green.", answer)

	// 单条 user 消息，提示词同时包含检索内容与原问题
	require.Len(t, chat.lastMessages, 1)
	assert.Equal(t, "user", chat.lastMessages[0].Role)
	prompt := chat.lastMessages[0].Content
	assert.Contains(t, prompt, "the grass is green")
	assert.Contains(t, prompt, "What color is the grass?")
	assert.NotContains(t, prompt, "Bananas")

	// 生成参数来自 Brain 的固定配置
	require.NotNil(t, chat.lastGen)
	assert.Equal(t, "test-model", chat.lastGen.Model)
	assert.Equal(t, 0.5, *chat.lastGen.Temperature)
	assert.Equal(t, 256, *chat.lastGen.MaxTokens)

	// 历史同步追加
	require.Len(t, b.History, 1)
	assert.Equal(t, "What color is the grass?", b.History[0].Question)
	assert.Equal(t, "The grass is green.", b.History[0].Answer)
}

func TestAnswerWithEmptyRetrieval(t *testing.T) {
	// 空索引不阻止生成：上下文为空但仍然提问
	b := newTestBrain(t, &fakeEmbedder{}, nil)
	chat := &fakeChat{reply: "不知道"}
	o := New(chat, 5)

	answer, err := o.Answer(context.Background(), b, "任何问题")
	require.NoError(t, err)
	assert.Equal(t, "不知道", answer)
	require.Len(t, chat.lastMessages, 1)
	assert.Contains(t, chat.lastMessages[0].Content, "任何问题")
}

func TestAnswerProviderFailureRecordsEmptyAnswer(t *testing.T) {
	b := newTestBrain(t, &fakeEmbedder{}, nil)
	chat := &fakeChat{err: errors.New("provider 不可用")}
	o := New(chat, 5)

	answer, err := o.Answer(context.Background(), b, "会失败的问题")
	require.NoError(t, err)
	assert.Equal(t, "", answer)
	// 失败的轮次也进入历史
	require.Len(t, b.History, 1)
	assert.Equal(t, "会失败的问题", b.History[0].Question)
	assert.Equal(t, "", b.History[0].Answer)
}

func TestAnswerPreconditions(t *testing.T) {
	o := New(&fakeChat{}, 5)
	_, err := o.Answer(context.Background(), nil, "问题")
	require.ErrorIs(t, err, ErrNilIndex)

	b := newTestBrain(t, &fakeEmbedder{}, nil)
	o = New(nil, 5)
	_, err = o.Answer(context.Background(), b, "问题")
	require.ErrorIs(t, err, ErrNilChatClient)
}

func TestBuildPromptJoinsChunksInOrder(t *testing.T) {
	prompt := BuildPrompt([]model.Chunk{
		model.NewChunk("d", "第一段", nil),
		model.NewChunk("d", "第二段", nil),
	}, "问题")
	assert.True(t, strings.Index(prompt, "第一段") < strings.Index(prompt, "第二段"))
	assert.Contains(t, prompt, "第一段\n第二段")
}

// 问答进行期间摄取写入的新向量不会被问答结束时的保存回滚：
// 问答链路只落盘历史快照，向量工件归索引所有。
func TestAnswerDoesNotRollBackConcurrentIngest(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"旧文档": {1, 0},
		"新文档": {0, 1},
		"问题":  {1, 0},
	}}
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	defaults := brain.GenerationConfig{LLMModelName: "test-model", Temperature: 0.5, MaxTokens: 256}
	m := brain.NewManager(st, embedder, defaults)

	b, err := m.Create(ctx, "并发摄取")
	require.NoError(t, err)
	_, err = b.Index().AddDocuments(ctx, []model.Chunk{model.NewChunk("doc-1", "旧文档", nil)})
	require.NoError(t, err)

	chat := &fakeChat{reply: "回答", block: make(chan struct{})}
	o := New(chat, 1)

	done := make(chan error, 1)
	go func() {
		_, err := o.Answer(ctx, b, "问题")
		done <- err
	}()

	// 生成阻塞期间，摄取链路经同一管理器写入新向量
	ingested, err := m.GetOrCreate(ctx, b.ID, b.Name)
	require.NoError(t, err)
	_, err = ingested.Index().AddDocuments(ctx, []model.Chunk{model.NewChunk("doc-2", "新文档", nil)})
	require.NoError(t, err)

	close(chat.block)
	require.NoError(t, <-done)

	// 新进程视角：两个向量都在，历史也已落盘
	restored, err := brain.NewManager(st, embedder, defaults).Load(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Index().Count())
	assert.Len(t, restored.History, 1)
}

func TestStreamAnswerRecordsFullReply(t *testing.T) {
	b := newTestBrain(t, &fakeEmbedder{}, nil)
	chat := &fakeChat{streamParts: []string{"你", "好", "！"}}
	o := New(chat, 5)
	writer := &collectWriter{}

	err := o.StreamAnswer(context.Background(), b, "打个招呼", writer)
	require.NoError(t, err)
	assert.Equal(t, []string{"你", "好", "！"}, writer.parts)
	require.Len(t, b.History, 1)
	assert.Equal(t, "你好！", b.History[0].Answer)
}
