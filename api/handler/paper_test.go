package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/paper-QA-pipeline/api"
	"github.com/fyerfyer/paper-QA-pipeline/api/handler"
	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/queue"
	"github.com/fyerfyer/paper-QA-pipeline/internal/repository"
	"github.com/fyerfyer/paper-QA-pipeline/internal/services"
	"github.com/fyerfyer/paper-QA-pipeline/internal/vectordb"
)

// fixedExtractor 对任何可读文件返回固定内容块
type fixedExtractor struct{}

func (fixedExtractor) Extract(ctx context.Context, filePath string) ([]extractor.ContentBlock, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, err
	}
	return []extractor.ContentBlock{
		{Kind: extractor.KindText, Page: 1, Text: "Abstract", Confidence: 1},
		{Kind: extractor.KindText, Page: 1, Text: "A short abstract describing an end to end ingestion test.", Confidence: 1},
	}, nil
}

// flatEmbedder 返回常数向量的嵌入客户端
type flatEmbedder struct{ dims int }

func (f flatEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dims)
	for i := range vec {
		vec[i] = float32(i%3) + 1
	}
	return vec, nil
}

func (f flatEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f flatEmbedder) Name() string { return "flat-embedder" }

func (f flatEmbedder) Dimensions() int { return f.dims }

// testAPI 测试用的API环境
type testAPI struct {
	router *gin.Engine
	queue  *queue.LocalQueue
	index  vectordb.Index
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := filepath.Join(t.TempDir(), "api_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Paper{}))
	repo := repository.NewPaperRepositoryWithDB(db)

	idx, err := vectordb.NewMemoryIndex(vectordb.Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	localQueue := queue.NewLocalQueue(repo)
	statusManager := services.NewPaperStatusManager(repo, quiet)
	svc := services.NewIngestService(
		localQueue,
		fixedExtractor{},
		flatEmbedder{dims: 4},
		idx,
		services.WithPaperRepository(repo),
		services.WithStatusManager(statusManager),
		services.WithIngestLogger(quiet),
	)

	paperHandler := handler.NewPaperHandler(svc, statusManager, localQueue, idx, nil)
	return &testAPI{
		router: api.SetupRouter(paperHandler, nil),
		queue:  localQueue,
		index:  idx,
	}
}

// doRequest 执行一次测试请求并解析响应
func (a *testAPI) doRequest(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// TestQueuePaperAndGetStatus 测试论文入队和状态查询
func TestQueuePaperAndGetStatus(t *testing.T) {
	a := setupTestAPI(t)

	w, resp := a.doRequest(t, http.MethodPost, "/api/papers", map[string]string{
		"path":  "papers/attention.pdf",
		"title": "Attention Is All You Need",
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := resp["data"].(map[string]interface{})
	paperID := data["paper_id"].(string)
	assert.Equal(t, queue.DerivePaperID("papers/attention.pdf"), paperID)
	assert.Equal(t, "queued", data["status"])

	w, resp = a.doRequest(t, http.MethodGet, "/api/papers/"+paperID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	info := resp["data"].(map[string]interface{})
	assert.Equal(t, "queued", info["status"])
	assert.Equal(t, "Attention Is All You Need", info["title"])
}

// TestQueuePaperYearMetadata 测试入队请求中年份的透传
func TestQueuePaperYearMetadata(t *testing.T) {
	a := setupTestAPI(t)

	w, _ := a.doRequest(t, http.MethodPost, "/api/papers", map[string]interface{}{
		"path":    "papers/attention.pdf",
		"title":   "Attention Is All You Need",
		"authors": "Vaswani et al.",
		"year":    2017,
	})
	require.Equal(t, http.StatusOK, w.Code)

	items, err := a.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2017", items[0].Year)
	assert.Equal(t, "Vaswani et al.", items[0].Authors)

	// 未填写年份时保持为空
	w, _ = a.doRequest(t, http.MethodPost, "/api/papers", map[string]interface{}{
		"path": "papers/no-year.pdf",
	})
	require.Equal(t, http.StatusOK, w.Code)

	items, err = a.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		if item.Path == "papers/no-year.pdf" {
			assert.Empty(t, item.Year)
		}
	}
}

// TestQueuePaperMissingPath 测试缺少path的入队请求
func TestQueuePaperMissingPath(t *testing.T) {
	a := setupTestAPI(t)

	w, _ := a.doRequest(t, http.MethodPost, "/api/papers", map[string]string{
		"title": "no path",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetPaperStatusNotFound 测试查询不存在的论文
func TestGetPaperStatusNotFound(t *testing.T) {
	a := setupTestAPI(t)

	w, _ := a.doRequest(t, http.MethodGet, "/api/papers/no-such-id/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestListPapers 测试论文列表
func TestListPapers(t *testing.T) {
	a := setupTestAPI(t)
	ctx := context.Background()

	require.NoError(t, a.queue.Enqueue(ctx, queue.PaperItem{Title: "first", Path: "papers/a.pdf"}))
	require.NoError(t, a.queue.Enqueue(ctx, queue.PaperItem{Title: "second", Path: "papers/b.pdf"}))

	w, resp := a.doRequest(t, http.MethodGet, "/api/papers?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])
	assert.Len(t, data["papers"].([]interface{}), 2)
}

// TestListPapersStatusFilter 测试按状态筛选论文列表
func TestListPapersStatusFilter(t *testing.T) {
	a := setupTestAPI(t)
	ctx := context.Background()

	require.NoError(t, a.queue.Enqueue(ctx, queue.PaperItem{Title: "queued one", Path: "papers/a.pdf"}))

	w, resp := a.doRequest(t, http.MethodGet, "/api/papers?status=done", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["total"])
}

// TestDeletePaper 测试删除论文
func TestDeletePaper(t *testing.T) {
	a := setupTestAPI(t)
	ctx := context.Background()

	require.NoError(t, a.queue.Enqueue(ctx, queue.PaperItem{Title: "to delete", Path: "papers/a.pdf"}))
	paperID := queue.DerivePaperID("papers/a.pdf")

	w, _ := a.doRequest(t, http.MethodDelete, "/api/papers/"+paperID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.doRequest(t, http.MethodGet, "/api/papers/"+paperID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestTriggerRun 测试通过API触发摄取运行
func TestTriggerRun(t *testing.T) {
	a := setupTestAPI(t)

	// 入队一篇指向真实临时文件的论文
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 fixture"), 0644))
	require.NoError(t, a.queue.Enqueue(context.Background(), queue.PaperItem{Title: "run me", Path: path}))

	w, resp := a.doRequest(t, http.MethodPost, "/api/ingest/run", nil)
	require.Equal(t, http.StatusOK, w.Code, fmt.Sprint(resp))

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["succeeded"])
	assert.Equal(t, float64(0), data["failed"])

	count, err := a.index.Count(context.Background())
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

// TestHealthCheck 测试健康检查端点
func TestHealthCheck(t *testing.T) {
	a := setupTestAPI(t)

	w, resp := a.doRequest(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
}
