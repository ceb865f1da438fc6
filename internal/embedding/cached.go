package embedding

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/paper-QA-pipeline/internal/cache"
)

// CachedClient 带缓存的嵌入客户端
// 相同模型对相同文本的编码结果是确定的，重复摄取时直接命中缓存
type CachedClient struct {
	inner  Client
	cache  cache.Cache
	logger *logrus.Logger
}

// NewCachedClient 用缓存包装一个嵌入客户端
func NewCachedClient(inner Client, c cache.Cache, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedClient{
		inner:  inner,
		cache:  c,
		logger: logger,
	}
}

// Name 返回底层客户端名称
func (c *CachedClient) Name() string {
	return c.inner.Name()
}

// Dimensions 返回向量维度
func (c *CachedClient) Dimensions() int {
	return c.inner.Dimensions()
}

// Embed 将单个文本转换为向量，优先查缓存
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.EmbeddingKey(c.inner.Name(), text)
	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(key, vec)
	return vec, nil
}

// EmbedBatch 批量转换文本为向量
// 只把缓存未命中的文本发给后端，再按原始顺序合并结果
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missAt []int

	for i, text := range texts {
		key := cache.EmbeddingKey(c.inner.Name(), text)
		if vec, ok := c.lookup(key); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missAt = append(missAt, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range vectors {
		i := missAt[j]
		results[i] = vec
		c.store(cache.EmbeddingKey(c.inner.Name(), texts[i]), vec)
	}

	c.logger.WithFields(logrus.Fields{
		"total":  len(texts),
		"missed": len(missTexts),
	}).Debug("embedding cache lookup")

	return results, nil
}

// lookup 从缓存中读取向量，反序列化失败视为未命中
func (c *CachedClient) lookup(key string) ([]float32, bool) {
	raw, found, err := c.cache.Get(key)
	if err != nil || !found {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, false
	}
	if len(vec) != c.inner.Dimensions() {
		return nil, false
	}
	return vec, true
}

// store 将向量写入缓存，失败只记日志不影响主流程
func (c *CachedClient) store(key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, string(raw), 0); err != nil {
		c.logger.WithError(err).Warn("failed to cache embedding")
	}
}
