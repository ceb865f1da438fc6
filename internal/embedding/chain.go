package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// FallbackChain 有序的候选后端链
// 按优先级依次尝试，第一个成功的结果生效；全部失败返回类型化错误
// 所有候选必须输出相同维度的向量，否则创建时报错
type FallbackChain struct {
	clients []Client
	logger  *logrus.Logger
}

// NewFallbackChain 创建后端链
func NewFallbackChain(logger *logrus.Logger, clients ...Client) (*FallbackChain, error) {
	if len(clients) == 0 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "fallback chain requires at least one client")
	}
	if logger == nil {
		logger = logrus.New()
	}

	dim := clients[0].Dimensions()
	for _, c := range clients[1:] {
		if c.Dimensions() != dim {
			return nil, NewEmbeddingError(ErrCodeDimensionWrong,
				fmt.Sprintf("client %s outputs %d dimensions, chain expects %d",
					c.Name(), c.Dimensions(), dim))
		}
	}

	return &FallbackChain{clients: clients, logger: logger}, nil
}

// Embed 依次尝试各候选后端生成单条向量
func (f *FallbackChain) Embed(ctx context.Context, text string) ([]float32, error) {
	var errs []string
	for _, client := range f.clients {
		vector, err := client.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		f.logger.WithFields(logrus.Fields{
			"backend": client.Name(),
			"error":   err.Error(),
		}).Warn("Embedding backend failed, trying next")
		errs = append(errs, fmt.Sprintf("%s: %v", client.Name(), err))
	}
	return nil, NewEmbeddingError(ErrCodeChainExhausted,
		ErrMsgChainExhausted+": "+strings.Join(errs, "; "))
}

// EmbedBatch 依次尝试各候选后端生成整批向量
// 批失败是整体的：不会把一个批次拆给多个后端
func (f *FallbackChain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var errs []string
	for _, client := range f.clients {
		vectors, err := client.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		f.logger.WithFields(logrus.Fields{
			"backend": client.Name(),
			"error":   err.Error(),
		}).Warn("Embedding backend failed for batch, trying next")
		errs = append(errs, fmt.Sprintf("%s: %v", client.Name(), err))
	}
	return nil, NewEmbeddingError(ErrCodeChainExhausted,
		ErrMsgChainExhausted+": "+strings.Join(errs, "; "))
}

// Name 返回首选后端的模型名称
func (f *FallbackChain) Name() string {
	return f.clients[0].Name()
}

// Dimensions 返回链的统一输出维度
func (f *FallbackChain) Dimensions() int {
	return f.clients[0].Dimensions()
}
