package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// 批量写入时每批的点数
const qdrantUpsertBatchSize = 100

// 支持过滤的载荷字段，建索引加速查询
var qdrantIndexedFields = []string{"paper_id", "section_type", "modality"}

// QdrantIndex 基于Qdrant的向量索引实现
// 生产环境的默认后端，通过gRPC连接
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	distType   DistanceType
	createColl bool
}

// NewQdrantIndex 创建Qdrant向量索引
// 启动时做带重试的健康检查，Qdrant不可达则直接失败
func NewQdrantIndex(config Config) (Index, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	if config.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	idx := &QdrantIndex{
		client:     client,
		collection: config.Collection,
		dimension:  config.Dimension,
		distType:   distType,
		createColl: config.CreateIfNotExists,
	}

	if err := idx.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}

	return idx, nil
}

// healthCheckWithRetry 带指数退避的健康检查
// 初始间隔500ms，最大间隔10s，最长等待30s
func (q *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		result, err := q.client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}

	return backoff.Retry(operation, exponentialBackoff)
}

// EnsureReady 确认集合存在并配置正确，必要时创建
// 幂等，可以重复调用
func (q *QdrantIndex) EnsureReady(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	if !q.createColl {
		return fmt.Errorf("collection %s does not exist", q.collection)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrantDistance(q.distType),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// 没有载荷索引时按字段过滤会慢一到两个数量级
	for _, field := range qdrantIndexedFields {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// qdrantDistance 距离类型映射
func qdrantDistance(distType DistanceType) qdrant.Distance {
	switch distType {
	case DotProduct:
		return qdrant.Distance_Dot
	case Euclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

// Upsert 写入或覆盖一批向量点
// 按100个点一批写入，每批带指数退避重试
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(p.Vector, q.dimension); err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
	}

	for i := 0; i < len(points); i += qdrantUpsertBatchSize {
		end := i + qdrantUpsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := points[i:end]
		qdrantPoints := make([]*qdrant.PointStruct, len(batch))
		for j, p := range batch {
			qdrantPoints[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(p.Payload.ToMap()),
			}
		}

		if err := q.upsertWithRetry(ctx, qdrantPoints); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// upsertWithRetry 带指数退避重试的写入
func (q *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, exponentialBackoff)
}

// Search 相似度搜索
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, q.dimension); err != nil {
		return nil, err
	}

	limit := filter.MaxResults
	if limit <= 0 {
		limit = 10
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, result := range results {
		score := result.Score
		if score < filter.MinScore {
			continue
		}

		searchResults = append(searchResults, SearchResult{
			Point: Point{
				ID:      result.Id.GetUuid(),
				Payload: payloadFromQdrant(result.Payload),
			},
			Score:    score,
			Distance: 1 - score,
		})
	}

	return searchResults, nil
}

// qdrantFilter 将过滤条件转换为Qdrant过滤器
func qdrantFilter(filter SearchFilter) *qdrant.Filter {
	var must []*qdrant.Condition

	if len(filter.PaperIDs) == 1 {
		must = append(must, qdrant.NewMatch("paper_id", filter.PaperIDs[0]))
	} else if len(filter.PaperIDs) > 1 {
		must = append(must, qdrant.NewMatchKeywords("paper_id", filter.PaperIDs...))
	}
	if len(filter.SectionTypes) == 1 {
		must = append(must, qdrant.NewMatch("section_type", filter.SectionTypes[0]))
	} else if len(filter.SectionTypes) > 1 {
		must = append(must, qdrant.NewMatchKeywords("section_type", filter.SectionTypes...))
	}
	if len(filter.Modalities) == 1 {
		must = append(must, qdrant.NewMatch("modality", filter.Modalities[0]))
	} else if len(filter.Modalities) > 1 {
		must = append(must, qdrant.NewMatchKeywords("modality", filter.Modalities...))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// payloadFromQdrant 将Qdrant载荷还原为结构化载荷
func payloadFromQdrant(payload map[string]*qdrant.Value) Payload {
	m := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		switch key {
		case "paper_id", "section_type", "modality", "text":
			m[key] = value.GetStringValue()
		case "page", "position", "source_length":
			m[key] = value.GetIntegerValue()
		case "confidence":
			m[key] = value.GetDoubleValue()
		}
	}
	return PayloadFromMap(m)
}

// DeleteByPaperID 删除指定论文的所有向量点
func (q *QdrantIndex) DeleteByPaperID(ctx context.Context, paperID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("paper_id", paperID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for paper %s: %w", paperID, err)
	}
	return nil
}

// Count 获取向量点总数
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(count), nil
}

// Dimension 返回向量维数
func (q *QdrantIndex) Dimension() int {
	return q.dimension
}

// Close 关闭Qdrant连接
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func init() {
	RegisterIndex("qdrant", NewQdrantIndex)
}
