package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// validate 配置结构体校验器
var validate = validator.New()

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Cache     CacheConfig     `mapstructure:"cache"`
	TaskQueue TaskQueueConfig `mapstructure:"task_queue"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Document  DocumentConfig  `mapstructure:"document"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"` // 服务器主机
	Port int    `mapstructure:"port"` // 服务器端口
}

// QueueConfig 论文队列配置
type QueueConfig struct {
	Type            string `mapstructure:"type" validate:"oneof=local sheets"` // 队列类型：local 或 sheets
	CredentialsPath string `mapstructure:"credentials_path"`                   // Google服务账号凭证路径
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`                     // Google Sheets表格ID
	SheetName       string `mapstructure:"sheet_name"`                         // 工作表名称
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type       string `mapstructure:"type" validate:"oneof=memory faiss qdrant"`         // 向量数据库类型
	Host       string `mapstructure:"host"`                                              // Qdrant主机
	Port       int    `mapstructure:"port"`                                              // Qdrant gRPC端口
	APIKey     string `mapstructure:"api_key"`                                           // Qdrant API密钥
	Collection string `mapstructure:"collection"`                                        // Qdrant集合名称
	Path       string `mapstructure:"path"`                                              // faiss索引文件路径
	Dim        int    `mapstructure:"dim" validate:"gt=0"`                               // 向量维度
	Distance   string `mapstructure:"distance" validate:"oneof=cosine euclidean l2 dot"` // 距离度量方式
	AutoCreate bool   `mapstructure:"auto_create"`                                       // 集合不存在时是否创建
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string   `mapstructure:"provider"`    // 主后端：openai, local, etc
	Fallbacks  []string `mapstructure:"fallbacks"`   // 按顺序尝试的候选后端
	Model      string   `mapstructure:"model"`       // 模型名称
	APIKey     string   `mapstructure:"api_key"`     // API密钥（如果需要）
	Endpoint   string   `mapstructure:"endpoint"`    // API端点
	BatchSize  int      `mapstructure:"batch_size"`  // 批处理大小
	MaxWorkers int      `mapstructure:"max_workers"` // 批处理并发数
	Dimensions int      `mapstructure:"dimensions"`  // 向量维度
}

// OCRConfig OCR回退配置
type OCRConfig struct {
	Enable    bool    `mapstructure:"enable"`    // 是否启用OCR回退
	Endpoint  string  `mapstructure:"endpoint"`  // OCR服务端点
	Threshold float64 `mapstructure:"threshold"` // 文本层置信度阈值，低于该值触发OCR
	Timeout   int     `mapstructure:"timeout"`   // 请求超时(秒)
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`                             // 是否启用缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`                            // Redis地址
	Password string `mapstructure:"password"`                           // Redis密码
	DB       int    `mapstructure:"db"`                                 // Redis数据库
	TTL      int    `mapstructure:"ttl"`                                // 缓存TTL（秒）
}

// TaskQueueConfig 异步任务队列配置
type TaskQueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用任务队列
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`    // 重试延迟(秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型: sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size"`    // 分块大小
	ChunkOverlap int    `mapstructure:"chunk_overlap"` // 分块重叠大小
	ImageDir     string `mapstructure:"image_dir"`     // 提取图像的存放目录
}

// IngestConfig 摄取流程配置
type IngestConfig struct {
	PaperTimeout time.Duration `mapstructure:"paper_timeout"` // 单篇论文的处理超时
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// 设置默认配置路径
	if configPath == "" {
		configPath = "config.yaml" // 默认在当前目录寻找config.yaml
	}

	// 初始化viper
	v := viper.New()
	v.SetConfigFile(configPath)

	// 尝试读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 找不到配置文件时用默认值生成一份
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
			setDefaults(v)
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err == nil {
				if err := v.WriteConfigAs(configPath); err != nil {
					log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
				}
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 设置默认值
	setDefaults(v)

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析配置到结构体
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	processEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 检查单项取值和配置项之间的一致性
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	if c.VectorDB.Dim > 0 && c.Embed.Dimensions > 0 && c.VectorDB.Dim != c.Embed.Dimensions {
		return fmt.Errorf("vectordb.dim (%d) does not match embed.dimensions (%d)",
			c.VectorDB.Dim, c.Embed.Dimensions)
	}

	if c.Queue.Type == "sheets" {
		if c.Queue.SpreadsheetID == "" {
			return fmt.Errorf("queue.spreadsheet_id is required when queue.type is sheets")
		}
		if c.Queue.CredentialsPath == "" {
			return fmt.Errorf("queue.credentials_path is required when queue.type is sheets")
		}
	}

	if c.VectorDB.Type == "qdrant" && c.VectorDB.Collection == "" {
		return fmt.Errorf("vectordb.collection is required when vectordb.type is qdrant")
	}

	if c.Document.ChunkOverlap >= c.Document.ChunkSize {
		return fmt.Errorf("document.chunk_overlap (%d) must be smaller than document.chunk_size (%d)",
			c.Document.ChunkOverlap, c.Document.ChunkSize)
	}

	return nil
}

// processEnvironmentVariables 处理配置项中的${VAR}环境变量引用
func processEnvironmentVariables(cfg *Config) {
	cfg.Embed.APIKey = expandEnv(cfg.Embed.APIKey)
	cfg.VectorDB.APIKey = expandEnv(cfg.VectorDB.APIKey)
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.TaskQueue.RedisPassword = expandEnv(cfg.TaskQueue.RedisPassword)
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVar := value[2 : len(value)-1]
		if envVal := os.Getenv(envVar); envVal != "" {
			return envVal
		}
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 论文队列默认配置
	v.SetDefault("queue.type", "local")
	v.SetDefault("queue.sheet_name", "papers")

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./papers")
	v.SetDefault("storage.bucket", "papers")
	v.SetDefault("storage.use_ssl", false)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.host", "localhost")
	v.SetDefault("vectordb.port", 6334)
	v.SetDefault("vectordb.collection", "papers")
	v.SetDefault("vectordb.path", "./vectordb/papers.index")
	v.SetDefault("vectordb.dim", 384)
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.auto_create", true)

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "all-MiniLM-L6-v2")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.max_workers", 4)
	v.SetDefault("embed.dimensions", 384)

	// OCR默认配置
	v.SetDefault("ocr.enable", false)
	v.SetDefault("ocr.endpoint", "http://localhost:8000")
	v.SetDefault("ocr.threshold", 0.5)
	v.SetDefault("ocr.timeout", 30)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 86400) // 24小时

	// 任务队列默认配置
	v.SetDefault("task_queue.enable", false)
	v.SetDefault("task_queue.redis_addr", "localhost:6379")
	v.SetDefault("task_queue.redis_db", 0)
	v.SetDefault("task_queue.concurrency", 4)
	v.SetDefault("task_queue.retry_limit", 3)
	v.SetDefault("task_queue.retry_delay", 60) // 60秒

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/papers.db")

	// 文档处理默认配置
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)

	// 摄取流程默认配置
	v.SetDefault("ingest.paper_timeout", "10m")
}
