package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissIndex 基于Faiss的本地向量索引实现
// 无需外部服务即可在单机上做精确搜索
// Faiss的平坦索引不支持原位覆盖，点被替换或删除后标记为脏，下次搜索前重建
type FaissIndex struct {
	mu        sync.RWMutex
	index     faiss.Index
	points    map[string]Point
	paperIDs  map[string][]string // 论文ID到点ID的映射
	positions map[string]int      // 点ID到索引位置的映射
	dirty     bool                // 索引与points不一致时置位
	indexPath string
	metaPath  string
	dimension int
	distType  DistanceType
}

// NewFaissIndex 创建新的Faiss向量索引
func NewFaissIndex(config Config) (Index, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	idx := &FaissIndex{
		points:    make(map[string]Point),
		paperIDs:  make(map[string][]string),
		positions: make(map[string]int),
		indexPath: indexPath,
		metaPath:  metaPath,
		dimension: config.Dimension,
		distType:  distType,
	}

	var index faiss.Index
	var err error

	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if !config.CreateIfNotExists {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
			index, err = createFaissIndex(config.Dimension, distType)
			if err != nil {
				return nil, fmt.Errorf("failed to create faiss index: %v", err)
			}
		} else if err := idx.loadMetadata(metaPath); err != nil {
			return nil, fmt.Errorf("failed to load index metadata: %v", err)
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create faiss index: %v", err)
		}
	}

	idx.index = index
	return idx, nil
}

// createFaissIndex 创建Faiss平坦索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// EnsureReady 本地索引始终就绪
func (f *FaissIndex) EnsureReady(ctx context.Context) error {
	return nil
}

// Upsert 写入或覆盖一批向量点
func (f *FaissIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(p.Vector, f.dimension); err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range points {
		if f.distType == Cosine {
			p.Vector = normalizeVector(p.Vector)
		}

		if _, exists := f.points[p.ID]; exists {
			// 覆盖已有点，Faiss无法原位替换，标记重建
			f.points[p.ID] = p
			f.dirty = true
			continue
		}

		f.points[p.ID] = p
		f.paperIDs[p.Payload.PaperID] = append(f.paperIDs[p.Payload.PaperID], p.ID)

		if !f.dirty {
			pos := int(f.index.Ntotal())
			if err := f.index.Add(p.Vector); err != nil {
				return fmt.Errorf("failed to add vector to index: %v", err)
			}
			f.positions[p.ID] = pos
		}
	}

	return nil
}

// rebuildLocked 从points重建Faiss索引
// 调用方必须持有写锁
func (f *FaissIndex) rebuildLocked() error {
	index, err := createFaissIndex(f.dimension, f.distType)
	if err != nil {
		return fmt.Errorf("failed to recreate faiss index: %v", err)
	}

	positions := make(map[string]int, len(f.points))
	pos := 0
	for id, p := range f.points {
		if err := index.Add(p.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
		positions[id] = pos
		pos++
	}

	f.index = index
	f.positions = positions
	f.dirty = false
	return nil
}

// Search 相似度搜索
func (f *FaissIndex) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, f.dimension); err != nil {
		return nil, err
	}
	if f.distType == Cosine {
		vector = normalizeVector(vector)
	}

	f.mu.Lock()
	if f.dirty {
		if err := f.rebuildLocked(); err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.points) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}
	// 过滤会丢掉一部分命中，多取一些候选
	queryLimit := k * 2
	total := int(f.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := f.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	// 反向映射位置到点ID
	posToID := make(map[int]string, len(f.positions))
	for id, pos := range f.positions {
		posToID[pos] = id
	}

	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}

		id, ok := posToID[int(idx)]
		if !ok {
			continue
		}
		p, exists := f.points[id]
		if !exists || !MatchesFilter(p.Payload, filter) {
			continue
		}

		dist := distances[i]
		score := faissScore(dist, f.distType)
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Point:    p,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// faissScore 将Faiss返回的原始距离转换为评分
// 内积度量下返回值已经是相似度，L2下用高斯衰减
func faissScore(raw float32, distType DistanceType) float32 {
	switch distType {
	case Cosine, DotProduct:
		return (raw + 1) / 2
	default:
		return DistanceToScore(raw, Euclidean)
	}
}

// DeleteByPaperID 删除指定论文的所有向量点
func (f *FaissIndex) DeleteByPaperID(ctx context.Context, paperID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids, exists := f.paperIDs[paperID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		delete(f.points, id)
		delete(f.positions, id)
	}
	delete(f.paperIDs, paperID)
	f.dirty = true

	return nil
}

// Count 获取向量点总数
func (f *FaissIndex) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.points), nil
}

// Dimension 返回向量维数
func (f *FaissIndex) Dimension() int {
	return f.dimension
}

// Close 关闭索引，落盘
func (f *FaissIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.indexPath == "" {
		return nil
	}
	if f.dirty {
		if err := f.rebuildLocked(); err != nil {
			return err
		}
	}
	return f.saveIndex()
}

// saveIndex 保存索引和元数据到文件
// 调用方必须持有写锁
func (f *FaissIndex) saveIndex() error {
	if err := os.MkdirAll(filepath.Dir(f.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(f.index, f.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return f.saveMetadata()
}

// faissMetadata 随索引文件落盘的元数据
type faissMetadata struct {
	Points    map[string]Point    `json:"points"`
	PaperIDs  map[string][]string `json:"paper_ids"`
	Positions map[string]int      `json:"positions"`
}

// saveMetadata 保存点元数据到文件
func (f *FaissIndex) saveMetadata() error {
	if f.metaPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(faissMetadata{
		Points:    f.points,
		PaperIDs:  f.paperIDs,
		Positions: f.positions,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(f.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载点元数据
func (f *FaissIndex) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}
	var meta faissMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	if meta.Points != nil {
		f.points = meta.Points
	}
	if meta.PaperIDs != nil {
		f.paperIDs = meta.PaperIDs
	}
	if meta.Positions != nil {
		f.positions = meta.Positions
	}
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterIndex("faiss", NewFaissIndex)
}
