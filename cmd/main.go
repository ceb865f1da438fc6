package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/paper-QA-pipeline/api"
	"github.com/fyerfyer/paper-QA-pipeline/api/handler"
	"github.com/fyerfyer/paper-QA-pipeline/api/middleware"
	appconfig "github.com/fyerfyer/paper-QA-pipeline/config"
	"github.com/fyerfyer/paper-QA-pipeline/internal/cache"
	"github.com/fyerfyer/paper-QA-pipeline/internal/chunker"
	"github.com/fyerfyer/paper-QA-pipeline/internal/database"
	"github.com/fyerfyer/paper-QA-pipeline/internal/embedding"
	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
	"github.com/fyerfyer/paper-QA-pipeline/internal/queue"
	"github.com/fyerfyer/paper-QA-pipeline/internal/repository"
	"github.com/fyerfyer/paper-QA-pipeline/internal/services"
	"github.com/fyerfyer/paper-QA-pipeline/internal/vectordb"
	"github.com/fyerfyer/paper-QA-pipeline/pkg/storage"
	"github.com/fyerfyer/paper-QA-pipeline/pkg/taskqueue"
)

// 命令行选项
type cliOptions struct {
	Mode       string // 运行模式：run / worker / serve
	ConfigFile string // 配置文件路径
	LogLevel   string // 日志级别
	LogFile    string // 日志文件路径，为空时只输出到标准输出
	GinMode    string // Gin运行模式 (debug/release)
}

func main() {
	opts := parseFlags()

	// 加载.env文件中的环境变量，文件不存在时忽略
	_ = godotenv.Load()

	cfg, err := appconfig.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(opts)
	logger.Info("Starting paper ingestion pipeline...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// 创建向量索引
	index, err := setupVectorDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize vector index: %v", err)
	}
	defer index.Close()

	// 创建嵌入客户端
	embedder, err := setupEmbedding(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	// 创建源文件存储
	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建论文队列
	repo := repository.NewPaperRepository()
	localQueue := queue.NewLocalQueue(repo)
	paperQueue, err := setupPaperQueue(cfg, localQueue, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize paper queue: %v", err)
	}
	defer paperQueue.Close()

	// 创建PDF提取器
	ext := setupExtractor(cfg, logger)

	// 组装摄取服务
	statusManager := services.NewPaperStatusManager(repo, logger)
	ingestService := services.NewIngestService(
		paperQueue,
		ext,
		embedder,
		index,
		services.WithStorage(fileStorage),
		services.WithChunker(chunker.NewChunker(chunker.Config{
			ChunkSize:    cfg.Document.ChunkSize,
			ChunkOverlap: cfg.Document.ChunkOverlap,
		})),
		services.WithBatchProcessor(embedding.NewBatchProcessor(embedder, cfg.Embed.BatchSize, cfg.Embed.MaxWorkers)),
		services.WithPaperRepository(repo),
		services.WithStatusManager(statusManager),
		services.WithPaperTimeout(cfg.Ingest.PaperTimeout),
		services.WithIngestLogger(logger),
	)

	switch opts.Mode {
	case "run":
		runOnce(ingestService, logger)
	case "worker":
		runWorker(cfg, ingestService, logger)
	case "serve":
		runServer(cfg, opts, ingestService, statusManager, localQueue, index, logger)
	default:
		logger.Fatalf("Unknown mode: %s (expected run, worker or serve)", opts.Mode)
	}
}

// runOnce 执行一次摄取运行并退出
// 有论文失败时以非零状态码退出
func runOnce(svc *services.IngestService, logger *logrus.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := svc.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Ingestion run aborted")
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"succeeded": report.Succeeded(),
		"failed":    report.Failed(),
	}).Info(report.Summary())

	if report.Failed() > 0 {
		os.Exit(1)
	}
}

// runWorker 以异步任务工作者模式运行
func runWorker(cfg *appconfig.Config, svc *services.IngestService, logger *logrus.Logger) {
	tq, err := setupTaskQueue(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize task queue: %v", err)
	}
	defer tq.Close()

	worker := taskqueue.NewRedisWorker(taskQueueConfig(cfg), tq)
	worker.RegisterHandler(taskqueue.TaskIngestPaper, taskqueue.NewIngestHandler(svc, tq))

	if err := worker.Start(); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	worker.Stop()
}

// runServer 以HTTP API模式运行
func runServer(
	cfg *appconfig.Config,
	opts cliOptions,
	svc *services.IngestService,
	statusManager *services.PaperStatusManager,
	localQueue *queue.LocalQueue,
	index vectordb.Index,
	logger *logrus.Logger,
) {
	gin.SetMode(opts.GinMode)

	// 任务队列可选
	var tq taskqueue.Queue
	if cfg.TaskQueue.Enable {
		var err error
		tq, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer tq.Close()
	}

	paperHandler := handler.NewPaperHandler(svc, statusManager, localQueue, index, tq)
	var taskHandler *handler.TaskHandler
	if tq != nil {
		taskHandler = handler.NewTaskHandler(tq)
	}

	r := api.SetupRouter(paperHandler, taskHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() cliOptions {
	opts := cliOptions{}

	flag.StringVar(&opts.Mode, "mode", "run", "Run mode (run/worker/serve)")
	flag.StringVar(&opts.ConfigFile, "config", "", "Path to config file")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Log file path (empty for stdout only)")
	flag.StringVar(&opts.GinMode, "gin-mode", "release", "Gin mode (debug/release)")

	flag.Parse()
	return opts
}

// setupLogger 设置日志系统
func setupLogger(opts cliOptions) *logrus.Logger {
	logger := middleware.GetLogger()

	switch opts.LogLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// 指定日志文件时启用滚动切割
	if opts.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // 天
			Compress:   true,
		})
	}

	return logger
}

// setupDatabase 设置论文注册表数据库
func setupDatabase(cfg *appconfig.Config, logger *logrus.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %v", err)
	}

	dbConfig := &database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}

	return database.Setup(dbConfig, logger)
}

// setupStorage 设置源文件存储
func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	if cfg.Storage.Type == "minio" {
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	}

	return storage.NewLocalStorage(storage.LocalConfig{
		Path: cfg.Storage.Path,
	})
}

// setupVectorDB 设置向量索引
func setupVectorDB(cfg *appconfig.Config) (vectordb.Index, error) {
	if cfg.VectorDB.Type == "faiss" {
		if err := os.MkdirAll(filepath.Dir(cfg.VectorDB.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create vector index directory: %v", err)
		}
	}

	return vectordb.NewIndex(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Host:              cfg.VectorDB.Host,
		Port:              cfg.VectorDB.Port,
		APIKey:            cfg.VectorDB.APIKey,
		Collection:        cfg.VectorDB.Collection,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      distanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: cfg.VectorDB.AutoCreate,
	})
}

// distanceType 将配置中的距离名称映射到索引类型
func distanceType(name string) vectordb.DistanceType {
	switch name {
	case "dot":
		return vectordb.DotProduct
	case "euclidean", "l2":
		return vectordb.Euclidean
	default:
		return vectordb.Cosine
	}
}

// setupEmbedding 设置嵌入客户端
// 配置了候选后端时构建回退链，启用缓存时在外层包装缓存
func setupEmbedding(cfg *appconfig.Config, logger *logrus.Logger) (embedding.Client, error) {
	newClient := func(provider string) (embedding.Client, error) {
		return embedding.NewClient(provider,
			embedding.WithAPIKey(cfg.Embed.APIKey),
			embedding.WithBaseURL(cfg.Embed.Endpoint),
			embedding.WithModel(cfg.Embed.Model),
			embedding.WithDimensions(cfg.Embed.Dimensions),
			embedding.WithBatchSize(cfg.Embed.BatchSize),
		)
	}

	primary, err := newClient(cfg.Embed.Provider)
	if err != nil {
		return nil, err
	}

	client := primary
	if len(cfg.Embed.Fallbacks) > 0 {
		clients := []embedding.Client{primary}
		for _, provider := range cfg.Embed.Fallbacks {
			fallback, err := newClient(provider)
			if err != nil {
				return nil, err
			}
			clients = append(clients, fallback)
		}

		chain, err := embedding.NewFallbackChain(logger, clients...)
		if err != nil {
			return nil, err
		}
		client = chain
	}

	if cfg.Cache.Enable {
		cacheService, err := cache.NewCache(cache.Config{
			Type:          cfg.Cache.Type,
			RedisAddr:     cfg.Cache.Address,
			RedisPassword: cfg.Cache.Password,
			RedisDB:       cfg.Cache.DB,
			DefaultTTL:    time.Duration(cfg.Cache.TTL) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		client = embedding.NewCachedClient(client, cacheService, logger)
	}

	return client, nil
}

// setupExtractor 设置PDF内容提取器
func setupExtractor(cfg *appconfig.Config, logger *logrus.Logger) extractor.Extractor {
	var ocr extractor.OCREngine
	if cfg.OCR.Enable {
		ocr = extractor.NewHTTPOCRClient(cfg.OCR.Endpoint, time.Duration(cfg.OCR.Timeout)*time.Second)
	}

	return extractor.NewPDFExtractor(extractor.PDFConfig{
		OCR:          ocr,
		OCRThreshold: cfg.OCR.Threshold,
		ImageDir:     cfg.Document.ImageDir,
		Logger:       logger,
	})
}

// setupPaperQueue 设置论文队列
func setupPaperQueue(cfg *appconfig.Config, localQueue *queue.LocalQueue, logger *logrus.Logger) (queue.PaperQueue, error) {
	if cfg.Queue.Type == "sheets" {
		return queue.NewSheetsQueue(context.Background(), queue.SheetsConfig{
			CredentialsPath: cfg.Queue.CredentialsPath,
			SpreadsheetID:   cfg.Queue.SpreadsheetID,
			SheetName:       cfg.Queue.SheetName,
		}, logger)
	}

	return localQueue, nil
}

// taskQueueConfig 将应用配置转换为任务队列配置
func taskQueueConfig(cfg *appconfig.Config) *taskqueue.Config {
	qc := taskqueue.DefaultConfig()
	qc.RedisAddr = cfg.TaskQueue.RedisAddr
	qc.RedisPassword = cfg.TaskQueue.RedisPassword
	qc.RedisDB = cfg.TaskQueue.RedisDB
	if cfg.TaskQueue.Concurrency > 0 {
		qc.Concurrency = cfg.TaskQueue.Concurrency
	}
	if cfg.TaskQueue.RetryLimit > 0 {
		qc.RetryLimit = cfg.TaskQueue.RetryLimit
	}
	if cfg.TaskQueue.RetryDelay > 0 {
		qc.RetryDelay = time.Duration(cfg.TaskQueue.RetryDelay) * time.Second
	}
	return qc
}

// setupTaskQueue 设置异步任务队列
func setupTaskQueue(cfg *appconfig.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	qc := taskQueueConfig(cfg)

	logger.WithFields(logrus.Fields{
		"redis_addr":  qc.RedisAddr,
		"concurrency": qc.Concurrency,
		"retry_limit": qc.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue("redis", qc)
}
