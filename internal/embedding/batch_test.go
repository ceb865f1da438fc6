package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient 测试用的嵌入客户端
// 向量的第一个分量编码文本长度，便于检查顺序
type mockClient struct {
	name       string
	dimensions int
	failAll    bool
	callCount  int32
}

func newMockClient() *mockClient {
	return &mockClient{name: "mock-model", dimensions: 4}
}

func (m *mockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&m.callCount, 1)
	if m.failAll {
		return nil, NewEmbeddingError(ErrCodeServerError, ErrMsgServerError)
	}
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vec := make([]float32, m.dimensions)
	vec[0] = float32(len(text))
	vec[1] = 1.0
	return vec, nil
}

func (m *mockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&m.callCount, 1)
	if m.failAll {
		return nil, NewEmbeddingError(ErrCodeServerError, ErrMsgServerError)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, m.dimensions)
		vec[0] = float32(len(text))
		vec[1] = 1.0
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *mockClient) Name() string    { return m.name }
func (m *mockClient) Dimensions() int { return m.dimensions }
func (m *mockClient) Calls() int32    { return atomic.LoadInt32(&m.callCount) }

// TestBatchProcessorOrder 测试结果与输入一一对应
func TestBatchProcessorOrder(t *testing.T) {
	client := newMockClient()
	processor := NewBatchProcessor(client, 2, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0])
	}
}

// TestBatchProcessorEmptyTextFallback 测试空文本回填零向量
func TestBatchProcessorEmptyTextFallback(t *testing.T) {
	client := newMockClient()
	processor := NewBatchProcessor(client, 4, 2)

	texts := []string{"hello", "", "world"}
	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.False(t, IsZeroVector(vectors[0]))
	assert.True(t, IsZeroVector(vectors[1]))
	assert.Len(t, vectors[1], client.Dimensions())
	assert.False(t, IsZeroVector(vectors[2]))
}

// TestBatchProcessorAllEmpty 测试全空输入不调用后端
func TestBatchProcessorAllEmpty(t *testing.T) {
	client := newMockClient()
	processor := NewBatchProcessor(client, 4, 2)

	vectors, err := processor.Process(context.Background(), []string{"", ""})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.True(t, IsZeroVector(vectors[0]))
	assert.True(t, IsZeroVector(vectors[1]))
	assert.Equal(t, int32(0), client.Calls())
}

// TestBatchProcessorWholeBatchFailure 测试批次失败时整体失败
func TestBatchProcessorWholeBatchFailure(t *testing.T) {
	client := newMockClient()
	client.failAll = true
	processor := NewBatchProcessor(client, 2, 2)

	vectors, err := processor.Process(context.Background(), []string{"a", "b", "c"})
	assert.Error(t, err)
	assert.Nil(t, vectors)
}

// TestBatchProcessorNoInput 测试空输入
func TestBatchProcessorNoInput(t *testing.T) {
	processor := NewBatchProcessor(newMockClient(), 2, 2)
	vectors, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

// TestIsZeroVector 测试零向量判定
func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector([]float32{0, 0, 0}))
	assert.False(t, IsZeroVector([]float32{0, 0.001, 0}))
	// 空向量不是有效的降级标记
	assert.False(t, IsZeroVector(nil))
}

// TestSplitIntoBatches 测试批次切分
func TestSplitIntoBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	batches := splitIntoBatches(texts, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])
}
