package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将一篇论文的全部分块文本分批并行编码
// 单条空文本降级为零向量标记，整批后端失败则作为整体错误上抛
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 处理一批文本，分成多个小批次并行编码
// 返回与输入一一对应的向量：空文本的位置是零向量（调用方可见的降级标记）
// 任何一个批次失败即整体失败，不返回部分结果
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 过滤空文本，记录位置以便回填零向量
	filtered := make([]string, 0, len(texts))
	emptyAt := make(map[int]bool)
	for i, text := range texts {
		if text == "" {
			emptyAt[i] = true
		} else {
			filtered = append(filtered, text)
		}
	}

	dim := p.client.Dimensions()

	// 全是空文本时无需调用后端
	if len(filtered) == 0 {
		results := make([][]float32, len(texts))
		for i := range results {
			results[i] = make([]float32, dim)
		}
		return results, nil
	}

	batches := splitIntoBatches(filtered, p.batchSize)

	wp := workerpool.New(p.maxWorkers)
	var mu sync.Mutex
	batchVectors := make([][][]float32, len(batches))
	var processingErr error
	var errOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			select {
			case <-ctx.Done():
				errOnce.Do(func() {
					processingErr = ctx.Err()
				})
				return
			default:
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errOnce.Do(func() {
					processingErr = fmt.Errorf("batch %d failed: %w", i, err)
				})
				return
			}
			batchVectors[i] = vectors
		})
	}

	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	// 按原始顺序合并，空文本位置回填零向量
	var flat [][]float32
	for _, vectors := range batchVectors {
		flat = append(flat, vectors...)
	}

	results := make([][]float32, len(texts))
	next := 0
	for i := range texts {
		if emptyAt[i] {
			results[i] = make([]float32, dim)
			continue
		}
		results[i] = flat[next]
		next++
	}

	return results, nil
}

// IsZeroVector 判断向量是否为降级标记（全零）
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return len(v) > 0
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
