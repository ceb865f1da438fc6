package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/paper-QA-pipeline/internal/chunker"
	"github.com/fyerfyer/paper-QA-pipeline/internal/embedding"
	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/queue"
	"github.com/fyerfyer/paper-QA-pipeline/internal/repository"
	"github.com/fyerfyer/paper-QA-pipeline/internal/sections"
	"github.com/fyerfyer/paper-QA-pipeline/internal/vectordb"
	"github.com/fyerfyer/paper-QA-pipeline/pkg/storage"
)

// IngestService 摄取服务
// 负责协调论文的取件、解析、分章、分块、编码和索引写入
type IngestService struct {
	paperQueue    queue.PaperQueue           // 论文队列
	storage       storage.Storage            // 源文件存储
	extractor     extractor.Extractor        // PDF内容提取器
	classifier    *sections.Classifier       // 章节分类器
	chunker       *chunker.Chunker           // 分块器
	embedder      embedding.Client           // 嵌入模型客户端
	batch         *embedding.BatchProcessor  // 嵌入批处理器
	index         vectordb.Index             // 向量索引
	repo          repository.PaperRepository // 论文元数据存储
	statusManager *PaperStatusManager        // 论文状态管理器
	paperTimeout  time.Duration              // 单篇论文处理超时时间
	logger        *logrus.Logger             // 日志记录器
}

// IngestOption 摄取服务配置选项
type IngestOption func(*IngestService)

// NewIngestService 创建一个新的摄取服务
func NewIngestService(
	paperQueue queue.PaperQueue,
	ext extractor.Extractor,
	embedder embedding.Client,
	index vectordb.Index,
	opts ...IngestOption,
) *IngestService {
	srv := &IngestService{
		paperQueue:   paperQueue,
		extractor:    ext,
		embedder:     embedder,
		index:        index,
		classifier:   sections.NewClassifier(),
		chunker:      chunker.NewChunker(chunker.DefaultConfig()),
		paperTimeout: time.Minute * 10, // 默认单篇超时时间
		logger:       logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.batch == nil {
		srv.batch = embedding.NewBatchProcessor(embedder, 16, 4)
	}

	return srv
}

// WithStorage 设置源文件存储
func WithStorage(s storage.Storage) IngestOption {
	return func(srv *IngestService) {
		srv.storage = s
	}
}

// WithChunker 设置分块器
func WithChunker(c *chunker.Chunker) IngestOption {
	return func(srv *IngestService) {
		if c != nil {
			srv.chunker = c
		}
	}
}

// WithClassifier 设置章节分类器
func WithClassifier(c *sections.Classifier) IngestOption {
	return func(srv *IngestService) {
		if c != nil {
			srv.classifier = c
		}
	}
}

// WithBatchProcessor 设置嵌入批处理器
func WithBatchProcessor(b *embedding.BatchProcessor) IngestOption {
	return func(srv *IngestService) {
		srv.batch = b
	}
}

// WithPaperRepository 设置论文仓储
func WithPaperRepository(repo repository.PaperRepository) IngestOption {
	return func(srv *IngestService) {
		srv.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *PaperStatusManager) IngestOption {
	return func(srv *IngestService) {
		srv.statusManager = manager
	}
}

// WithPaperTimeout 设置单篇论文处理超时时间
func WithPaperTimeout(timeout time.Duration) IngestOption {
	return func(srv *IngestService) {
		if timeout > 0 {
			srv.paperTimeout = timeout
		}
	}
}

// WithIngestLogger 设置日志记录器
func WithIngestLogger(logger *logrus.Logger) IngestOption {
	return func(srv *IngestService) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// Init 初始化摄取服务
// 确保必要的依赖都已设置
func (s *IngestService) Init() error {
	if s.repo == nil {
		s.repo = repository.NewPaperRepository()
	}
	if s.statusManager == nil {
		s.statusManager = NewPaperStatusManager(s.repo, s.logger)
	}
	return nil
}

// checkConfiguration 启动前校验配置一致性
// 向量维度不匹配会污染整个索引，属于运行级致命错误
func (s *IngestService) checkConfiguration(ctx context.Context) error {
	if s.embedder.Dimensions() != s.index.Dimension() {
		return models.NewConfigurationError(
			fmt.Errorf("embedding dimensions (%d) do not match index dimensions (%d)",
				s.embedder.Dimensions(), s.index.Dimension()))
	}

	if err := s.index.EnsureReady(ctx); err != nil {
		return models.NewConfigurationError(fmt.Errorf("vector index not ready: %w", err))
	}

	return nil
}

// Run 执行一次完整的摄取运行
// 逐篇处理所有待处理论文，单篇失败不影响其它论文
// 只有配置类错误会中止整个运行
func (s *IngestService) Run(ctx context.Context) (*RunReport, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	s.logger.WithField("run_id", report.RunID).Info("Starting ingestion run")

	if err := s.checkConfiguration(ctx); err != nil {
		return nil, err
	}

	items, err := s.paperQueue.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending papers: %w", err)
	}

	if len(items) == 0 {
		s.logger.Info("No pending papers in queue")
		report.FinishedAt = time.Now()
		return report, nil
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			report.FinishedAt = time.Now()
			return report, ctx.Err()
		default:
		}

		result, procErr := s.processOne(ctx, item, report.RunID)
		report.Results = append(report.Results, result)

		// 配置类错误说明整个运行的环境坏了，继续处理只会把每篇都标成失败
		if models.IsRunFatal(procErr) {
			report.FinishedAt = time.Now()
			return report, procErr
		}
	}

	report.FinishedAt = time.Now()
	s.logger.Info(report.Summary())

	return report, nil
}

// ProcessOne 处理单篇论文的完整摄取流程
// 任何阶段失败都会把论文标记为failed并写回队列，错误不向上传播
func (s *IngestService) ProcessOne(ctx context.Context, item queue.PaperItem) PaperResult {
	result, _ := s.processOne(ctx, item, uuid.New().String())
	return result
}

// processOne 单篇摄取的实现，返回失败时的流水线错误供Run判断是否中止
func (s *IngestService) processOne(ctx context.Context, item queue.PaperItem, runID string) (PaperResult, error) {
	if err := s.Init(); err != nil {
		return PaperResult{PaperID: item.ID, Status: models.PaperStatusFailed, Error: err.Error()}, err
	}

	started := time.Now()

	result := PaperResult{
		PaperID: item.ID,
		Title:   item.Title,
	}

	ctx, cancel := context.WithTimeout(ctx, s.paperTimeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{
		"paper_id": item.ID,
		"title":    item.Title,
	})
	log.Info("Starting paper ingestion")

	// 登记论文并进入processing状态
	if err := s.registerPaper(ctx, item); err != nil {
		return s.failPaper(ctx, item, result, runID, started, err), err
	}

	// 解析PDF内容
	localPath, cleanup, err := s.materializeSource(ctx, item)
	if err != nil {
		perr := models.NewExtractionError(item.ID, err)
		return s.failPaper(ctx, item, result, runID, started, perr), perr
	}
	defer cleanup()

	blocks, err := s.extractor.Extract(ctx, localPath)
	if err != nil {
		perr := models.NewExtractionError(item.ID, err)
		return s.failPaper(ctx, item, result, runID, started, perr), perr
	}

	// 章节分类
	secs := s.classifier.Classify(blocks)

	// 分块
	chunks := s.chunker.Chunk(item.ID, secs)
	if len(chunks) == 0 {
		perr := models.NewExtractionError(item.ID, errors.New("no content extracted from paper"))
		return s.failPaper(ctx, item, result, runID, started, perr), perr
	}

	// 批量编码
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.batch.Process(ctx, texts)
	if err != nil {
		perr := models.NewEncodingError(item.ID, err)
		return s.failPaper(ctx, item, result, runID, started, perr), perr
	}

	// 组装向量点，全零向量是编码降级标记，不写入索引
	points := make([]vectordb.Point, 0, len(chunks))
	for i, c := range chunks {
		if embedding.IsZeroVector(vectors[i]) {
			log.WithField("chunk_id", c.ID).Warn("Skipping chunk with degraded embedding")
			continue
		}
		points = append(points, vectordb.Point{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: vectordb.Payload{
				PaperID:      c.PaperID,
				SectionType:  string(c.SectionType),
				Modality:     string(c.Modality),
				Text:         c.Text,
				Page:         c.Page,
				Position:     c.Position,
				SourceLength: c.SourceLength,
				Confidence:   c.Confidence,
			},
		})

		switch c.Modality {
		case chunker.ModalityFormula:
			result.Formulas++
		case chunker.ModalityImage:
			result.Images++
		}
	}

	// 写入向量索引，点ID确定性派生，重复摄取只覆盖自身
	if err := s.index.Upsert(ctx, points); err != nil {
		perr := models.NewIndexWriteError(item.ID, err)
		return s.failPaper(ctx, item, result, runID, started, perr), perr
	}

	result.ChunkCount = len(points)
	result.Status = models.PaperStatusDone
	result.Elapsed = time.Since(started)

	textChunks := result.ChunkCount - result.Formulas - result.Images
	note := fmt.Sprintf("Ingestion successful. Indexed %d text chunks, %d formulas, %d images.",
		textChunks, result.Formulas, result.Images)

	if err := s.statusManager.MarkAsDone(ctx, item.ID, runID, result.ChunkCount, note); err != nil {
		log.WithError(err).Error("Failed to mark paper as done")
	}
	if err := s.paperQueue.UpdateStatus(ctx, item.ID, string(models.PaperStatusDone), note); err != nil {
		log.WithError(err).Warn("Failed to write status back to queue")
	}

	log.WithFields(logrus.Fields{
		"chunks":   result.ChunkCount,
		"formulas": result.Formulas,
		"images":   result.Images,
		"elapsed":  result.Elapsed,
	}).Info("Paper ingestion completed")

	return result, nil
}

// registerPaper 登记论文并标记为处理中
func (s *IngestService) registerPaper(ctx context.Context, item queue.PaperItem) error {
	paper := &models.Paper{
		ID:     item.ID,
		Title:  item.Title,
		Source: item.Path,
	}
	if err := s.statusManager.MarkAsQueued(ctx, paper); err != nil {
		return fmt.Errorf("failed to register paper: %w", err)
	}

	if err := s.statusManager.MarkAsProcessing(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to mark paper as processing: %w", err)
	}

	if err := s.paperQueue.UpdateStatus(ctx, item.ID, string(models.PaperStatusProcessing), ""); err != nil {
		s.logger.WithError(err).Warn("Failed to write processing status back to queue")
	}

	return nil
}

// materializeSource 把论文源文件落到本地文件系统
// PDF提取器需要文件路径，对象存储中的文件先取到临时目录
func (s *IngestService) materializeSource(ctx context.Context, item queue.PaperItem) (string, func(), error) {
	noop := func() {}

	// 路径直接指向本地文件时不经过存储层
	if _, err := os.Stat(item.Path); err == nil {
		return item.Path, noop, nil
	}

	if s.storage == nil {
		return "", noop, fmt.Errorf("paper file not found: %s", item.Path)
	}

	reader, err := s.storage.Get(item.Path)
	if err != nil {
		return "", noop, fmt.Errorf("failed to get paper from storage: %w", err)
	}
	defer reader.Close()

	tmpFile, err := os.CreateTemp("", "paper-*"+filepath.Ext(item.Path))
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, reader); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", noop, fmt.Errorf("failed to copy paper to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", noop, fmt.Errorf("failed to close temp file: %w", err)
	}

	path := tmpFile.Name()
	return path, func() { os.Remove(path) }, nil
}

// failPaper 统一的失败处理路径
// 更新仓储和队列中的状态，返回失败结果
func (s *IngestService) failPaper(ctx context.Context, item queue.PaperItem, result PaperResult, runID string, started time.Time, err error) PaperResult {
	s.logger.WithFields(logrus.Fields{
		"paper_id": item.ID,
		"error":    err,
	}).Error("Paper ingestion failed")

	result.Status = models.PaperStatusFailed
	result.Error = err.Error()
	result.Elapsed = time.Since(started)

	if markErr := s.statusManager.MarkAsFailed(ctx, item.ID, runID, err.Error()); markErr != nil {
		s.logger.WithError(markErr).Error("Failed to mark paper as failed")
	}
	if queueErr := s.paperQueue.UpdateStatus(ctx, item.ID, string(models.PaperStatusFailed), err.Error()); queueErr != nil {
		s.logger.WithError(queueErr).Warn("Failed to write failure back to queue")
	}

	return result
}
