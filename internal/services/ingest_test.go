package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/queue"
	"github.com/fyerfyer/paper-QA-pipeline/internal/vectordb"
)

// stubEmbedder 确定性的嵌入客户端
// 相同文本永远映射到相同向量，向量分量均非零
type stubEmbedder struct {
	dims int
	fail bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	vec := make([]float32, s.dims)
	for i := range vec {
		vec[i] = float32((len(text)+i)%7) + 1
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Name() string { return "stub-embedder" }

func (s *stubEmbedder) Dimensions() int { return s.dims }

// fakeExtractor 按文件路径返回预置内容块的提取器
type fakeExtractor struct {
	blocks map[string][]extractor.ContentBlock
	failOn map[string]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, filePath string) ([]extractor.ContentBlock, error) {
	if f.failOn[filePath] {
		return nil, errors.New("corrupt pdf: unreadable xref table")
	}
	return f.blocks[filePath], nil
}

// fakePaperQueue 记录状态写回的内存队列
type fakePaperQueue struct {
	items    []queue.PaperItem
	statuses map[string]string
	notes    map[string]string
}

func newFakePaperQueue(items ...queue.PaperItem) *fakePaperQueue {
	return &fakePaperQueue{
		items:    items,
		statuses: make(map[string]string),
		notes:    make(map[string]string),
	}
}

func (q *fakePaperQueue) Pending(ctx context.Context) ([]queue.PaperItem, error) {
	return q.items, nil
}

func (q *fakePaperQueue) UpdateStatus(ctx context.Context, paperID string, status string, note string) error {
	q.statuses[paperID] = status
	if note != "" {
		q.notes[paperID] = note
	}
	return nil
}

func (q *fakePaperQueue) Close() error { return nil }

// writePaperFile 创建一个占位PDF文件，返回其路径
func writePaperFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 test fixture"), 0644))
	return path
}

// samplePaperBlocks 一篇小论文的内容块
func samplePaperBlocks() []extractor.ContentBlock {
	return []extractor.ContentBlock{
		{Kind: extractor.KindText, Page: 1, Text: "Abstract", Confidence: 1},
		{Kind: extractor.KindText, Page: 1, Text: "We study the ingestion of academic papers into a vector index and show that deterministic chunk identifiers make repeated runs idempotent.", Confidence: 1},
		{Kind: extractor.KindText, Page: 1, Text: "1. Introduction", Confidence: 1},
		{Kind: extractor.KindText, Page: 2, Text: "Large collections of PDF papers need a reliable pipeline that extracts text, classifies sections and writes embeddings to a vector index.", Confidence: 1},
		{Kind: extractor.KindFormula, Page: 2, Text: "E = mc^2", Confidence: 0.9},
	}
}

func newTestIndex(t *testing.T, dims int) vectordb.Index {
	t.Helper()
	idx, err := vectordb.NewMemoryIndex(vectordb.Config{
		Type:         "memory",
		Dimension:    dims,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)
	return idx
}

// newIngestService 组装一个带内存索引和SQLite仓储的摄取服务
func newIngestService(t *testing.T, fq *fakePaperQueue, fx extractor.Extractor, emb *stubEmbedder, idx vectordb.Index) *IngestService {
	t.Helper()
	manager, repo := setupStatusManager(t)
	return NewIngestService(fq, fx, emb, idx,
		WithPaperRepository(repo),
		WithStatusManager(manager),
		WithIngestLogger(newQuietLogger()),
	)
}

// TestIngestRunSuccess 测试单篇论文的完整摄取
func TestIngestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	path := writePaperFile(t, dir, "transformer.pdf")
	item := queue.PaperItem{ID: queue.DerivePaperID(path), Title: "Attention Is All You Need", Path: path}

	fq := newFakePaperQueue(item)
	fx := &fakeExtractor{blocks: map[string][]extractor.ContentBlock{path: samplePaperBlocks()}}
	emb := &stubEmbedder{dims: 8}
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, fx, emb, idx)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 0, report.Failed())

	result := report.Results[0]
	assert.Equal(t, models.PaperStatusDone, result.Status)
	assert.Equal(t, 1, result.Formulas)
	assert.Greater(t, result.ChunkCount, 0)

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, count)

	// 状态写回队列
	assert.Equal(t, string(models.PaperStatusDone), fq.statuses[item.ID])
	assert.Contains(t, fq.notes[item.ID], "Ingestion successful")
}

// TestIngestRunFaultIsolation 测试单篇失败不影响其它论文
func TestIngestRunFaultIsolation(t *testing.T) {
	dir := t.TempDir()
	good1 := writePaperFile(t, dir, "good1.pdf")
	bad := writePaperFile(t, dir, "bad.pdf")
	good2 := writePaperFile(t, dir, "good2.pdf")

	items := []queue.PaperItem{
		{ID: queue.DerivePaperID(good1), Title: "good one", Path: good1},
		{ID: queue.DerivePaperID(bad), Title: "corrupt one", Path: bad},
		{ID: queue.DerivePaperID(good2), Title: "good two", Path: good2},
	}

	fq := newFakePaperQueue(items...)
	fx := &fakeExtractor{
		blocks: map[string][]extractor.ContentBlock{
			good1: samplePaperBlocks(),
			good2: samplePaperBlocks(),
		},
		failOn: map[string]bool{bad: true},
	}
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, fx, &stubEmbedder{dims: 8}, idx)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 1, report.Failed())

	badID := queue.DerivePaperID(bad)
	assert.Equal(t, string(models.PaperStatusFailed), fq.statuses[badID])
	assert.Contains(t, fq.notes[badID], "corrupt pdf")

	// 失败论文之后的论文仍被处理
	assert.Equal(t, string(models.PaperStatusDone), fq.statuses[queue.DerivePaperID(good2)])
}

// TestIngestRunIdempotent 测试重复摄取不产生重复向量点
func TestIngestRunIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writePaperFile(t, dir, "paper.pdf")
	item := queue.PaperItem{ID: queue.DerivePaperID(path), Title: "some paper", Path: path}

	fq := newFakePaperQueue(item)
	fx := &fakeExtractor{blocks: map[string][]extractor.ContentBlock{path: samplePaperBlocks()}}
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, fx, &stubEmbedder{dims: 8}, idx)
	ctx := context.Background()

	report1, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report1.Succeeded())

	countAfterFirst, err := idx.Count(ctx)
	require.NoError(t, err)

	// 第二次运行覆盖相同的点ID
	report2, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report2.Succeeded())

	countAfterSecond, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, countAfterFirst, countAfterSecond)
}

// TestIngestRunConfigurationMismatch 测试维度不匹配中止整次运行
func TestIngestRunConfigurationMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writePaperFile(t, dir, "paper.pdf")
	item := queue.PaperItem{ID: queue.DerivePaperID(path), Title: "some paper", Path: path}

	fq := newFakePaperQueue(item)
	fx := &fakeExtractor{blocks: map[string][]extractor.ContentBlock{path: samplePaperBlocks()}}
	idx := newTestIndex(t, 8)

	// 嵌入器维度与索引不一致
	svc := newIngestService(t, fq, fx, &stubEmbedder{dims: 16}, idx)

	report, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsRunFatal(err))
	assert.Nil(t, report)

	// 任何论文都没被处理
	assert.Empty(t, fq.statuses)
}

// TestIngestEncodingFailure 测试嵌入后端不可用时论文标记为失败
func TestIngestEncodingFailure(t *testing.T) {
	dir := t.TempDir()
	path := writePaperFile(t, dir, "paper.pdf")
	item := queue.PaperItem{ID: queue.DerivePaperID(path), Title: "some paper", Path: path}

	fq := newFakePaperQueue(item)
	fx := &fakeExtractor{blocks: map[string][]extractor.ContentBlock{path: samplePaperBlocks()}}
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, fx, &stubEmbedder{dims: 8, fail: true}, idx)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, report.Results[0].Error, "encoding")

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestIngestMissingSource 测试源文件缺失时论文标记为失败
func TestIngestMissingSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "not-there.pdf")
	item := queue.PaperItem{ID: queue.DerivePaperID(missing), Title: "ghost paper", Path: missing}

	fq := newFakePaperQueue(item)
	fx := &fakeExtractor{}
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, fx, &stubEmbedder{dims: 8}, idx)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, string(models.PaperStatusFailed), fq.statuses[item.ID])
}

// TestIngestEmptyPaper 测试提取不到内容的论文标记为失败
func TestIngestEmptyPaper(t *testing.T) {
	dir := t.TempDir()
	path := writePaperFile(t, dir, "empty.pdf")
	item := queue.PaperItem{ID: queue.DerivePaperID(path), Title: "empty paper", Path: path}

	fq := newFakePaperQueue(item)
	fx := &fakeExtractor{blocks: map[string][]extractor.ContentBlock{path: nil}}
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, fx, &stubEmbedder{dims: 8}, idx)

	result := svc.ProcessOne(context.Background(), item)
	assert.Equal(t, models.PaperStatusFailed, result.Status)
	assert.Contains(t, result.Error, "no content extracted")
}

// TestIngestRunEmptyQueue 测试空队列的运行
func TestIngestRunEmptyQueue(t *testing.T) {
	fq := newFakePaperQueue()
	idx := newTestIndex(t, 8)

	svc := newIngestService(t, fq, &fakeExtractor{}, &stubEmbedder{dims: 8}, idx)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.NotEmpty(t, report.RunID)
}
