package vectordb

import (
	"context"
	"fmt"
	"sync"
)

// MemoryIndex 内存向量索引实现
// 用于开发和测试环境，Upsert按点ID覆盖，天然幂等
type MemoryIndex struct {
	mu           sync.RWMutex
	dimension    int
	distType     DistanceType
	points       map[string]Point    // 点ID到向量点的映射
	paperToIDs   map[string][]string // 论文ID到点ID的映射
}

// NewMemoryIndex 创建内存向量索引
func NewMemoryIndex(config Config) (Index, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryIndex{
		dimension:  config.Dimension,
		distType:   distType,
		points:     make(map[string]Point),
		paperToIDs: make(map[string][]string),
	}, nil
}

// EnsureReady 内存实现始终就绪
func (m *MemoryIndex) EnsureReady(ctx context.Context) error {
	return nil
}

// Upsert 写入或覆盖一批向量点
// 任何一个点维度不符即整批拒绝，不做部分写入
func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(p.Vector, m.dimension); err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		// 余弦距离下先归一化，搜索时只需点积
		if m.distType == Cosine {
			p.Vector = normalizeVector(p.Vector)
		}

		if _, exists := m.points[p.ID]; !exists {
			m.paperToIDs[p.Payload.PaperID] = append(m.paperToIDs[p.Payload.PaperID], p.ID)
		}
		m.points[p.ID] = p
	}

	return nil
}

// Search 相似度搜索
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, m.dimension); err != nil {
		return nil, err
	}

	if m.distType == Cosine {
		vector = normalizeVector(vector)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// 指定论文ID时走索引，不遍历全部点
	var candidates []Point
	if len(filter.PaperIDs) > 0 {
		for _, paperID := range filter.PaperIDs {
			for _, id := range m.paperToIDs[paperID] {
				if p, ok := m.points[id]; ok && MatchesFilter(p.Payload, filter) {
					candidates = append(candidates, p)
				}
			}
		}
	} else {
		candidates = make([]Point, 0, len(m.points))
		for _, p := range m.points {
			if MatchesFilter(p.Payload, filter) {
				candidates = append(candidates, p)
			}
		}
	}

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, p := range candidates {
		dist, err := ComputeDistance(vector, p.Vector, m.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, m.distType)
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Point:    p,
			Score:    score,
			Distance: dist,
		})
	}

	SortSearchResults(results)

	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	return results, nil
}

// DeleteByPaperID 删除指定论文的所有向量点
// 论文不存在时不报错
func (m *MemoryIndex) DeleteByPaperID(ctx context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, exists := m.paperToIDs[paperID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		delete(m.points, id)
	}
	delete(m.paperToIDs, paperID)

	return nil
}

// Count 获取向量点总数
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.points), nil
}

// Dimension 返回向量维数
func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

// Close 关闭索引
// 内存实现是空操作
func (m *MemoryIndex) Close() error {
	return nil
}

func init() {
	RegisterIndex("memory", NewMemoryIndex)
}
