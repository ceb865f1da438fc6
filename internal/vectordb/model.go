package vectordb

import (
	"context"
	"errors"
)

// 常用错误定义
var (
	ErrPointNotFound    = errors.New("point not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid point ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// Payload 向量点的结构化元数据
// 写入索引后支持按论文ID、章节类型和模态过滤
type Payload struct {
	PaperID      string  // 所属论文ID
	SectionType  string  // 章节类型 (abstract/introduction/methods...)
	Modality     string  // 内容模态 (text/formula/image)
	Text         string  // 分块文本内容
	Page         int     // 来源页码
	Position     int     // 在章节内的序号
	SourceLength int     // 分块前的原始文本长度
	Confidence   float64 // 提取置信度
}

// ToMap 转换为通用键值对，供远端索引存储
func (p Payload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"paper_id":      p.PaperID,
		"section_type":  p.SectionType,
		"modality":      p.Modality,
		"text":          p.Text,
		"page":          int64(p.Page),
		"position":      int64(p.Position),
		"source_length": int64(p.SourceLength),
		"confidence":    p.Confidence,
	}
}

// PayloadFromMap 从键值对还原载荷
// 缺失字段保持零值，不报错
func PayloadFromMap(m map[string]interface{}) Payload {
	p := Payload{}
	if v, ok := m["paper_id"].(string); ok {
		p.PaperID = v
	}
	if v, ok := m["section_type"].(string); ok {
		p.SectionType = v
	}
	if v, ok := m["modality"].(string); ok {
		p.Modality = v
	}
	if v, ok := m["text"].(string); ok {
		p.Text = v
	}
	p.Page = intFromAny(m["page"])
	p.Position = intFromAny(m["position"])
	p.SourceLength = intFromAny(m["source_length"])
	if v, ok := m["confidence"].(float64); ok {
		p.Confidence = v
	}
	return p
}

func intFromAny(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Point 向量索引中的一条记录
// ID由论文ID、章节类型和分块序号确定性派生，同一内容重复写入会覆盖自身
type Point struct {
	ID      string    // 确定性UUID
	Vector  []float32 // 向量表示
	Payload Payload   // 结构化元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Point    Point   // 命中的向量点
	Score    float32 // 相似度得分
	Distance float32 // 计算的距离
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	PaperIDs     []string // 按论文ID过滤
	SectionTypes []string // 按章节类型过滤
	Modalities   []string // 按模态过滤
	MinScore     float32  // 最小相似度分数
	MaxResults   int      // 最大返回结果数
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   0.0,
		MaxResults: 5,
	}
}

// Index 向量索引接口
// 摄取流水线只依赖这一接口，具体后端由配置决定
type Index interface {
	// EnsureReady 确认后端可用且集合就绪，必要时创建集合
	EnsureReady(ctx context.Context) error

	// Upsert 写入或覆盖一批向量点
	Upsert(ctx context.Context, points []Point) error

	// Search 相似度搜索
	Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error)

	// DeleteByPaperID 删除指定论文的所有向量点
	DeleteByPaperID(ctx context.Context, paperID string) error

	// Count 获取向量点总数
	Count(ctx context.Context) (int, error)

	// Dimension 返回向量维数
	Dimension() int

	// Close 关闭索引连接
	Close() error
}

// Config 向量索引配置
type Config struct {
	Type              string       // 索引类型，如 "memory", "faiss", "qdrant"
	Host              string       // 服务器地址 (qdrant)
	Port              int          // 服务器端口 (qdrant)
	APIKey            string       // 访问密钥 (qdrant)
	Collection        string       // 集合名称 (qdrant)
	Path              string       // 索引文件路径 (faiss)
	Dimension         int          // 向量维度
	DistanceType      DistanceType // 距离计算类型
	CreateIfNotExists bool         // 集合不存在时是否创建
	InMemory          bool         // 是否仅在内存中运行 (faiss)
}

// Factory 向量索引工厂函数类型
type Factory func(config Config) (Index, error)

// IndexRegistry 注册可用的向量索引实现
var IndexRegistry = map[string]Factory{}

// RegisterIndex 注册向量索引工厂函数
func RegisterIndex(name string, factory Factory) {
	IndexRegistry[name] = factory
}

// NewIndex 根据配置创建向量索引实例
func NewIndex(config Config) (Index, error) {
	factory, ok := IndexRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryIndex
	}
	return factory(config)
}
