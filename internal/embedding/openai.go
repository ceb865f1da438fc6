package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// 默认的OpenAI兼容端点
	defaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"
)

// openAIRequest OpenAI兼容嵌入接口的请求结构体
type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openAIResponse OpenAI兼容嵌入接口的响应结构体
type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient OpenAI兼容嵌入API客户端
// 也适用于提供兼容接口的其他服务（本地推理服务、DashScope兼容模式等）
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	maxRetries int
	dimensions int
}

// NewOpenAIClient 创建OpenAI兼容嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	return &OpenAIClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed 生成单条文本的向量表示
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成多条文本的向量表示
// 返回向量的顺序与输入文本一致
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqBody := openAIRequest{
		Model: c.model,
		Input: texts,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		vectors, err := c.doRequest(ctx, reqBody)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		// 客户端错误不重试
		if embErr, ok := err.(EmbeddingError); ok {
			if embErr.Code == ErrCodeInvalidAPIKey || embErr.Code == ErrCodeInvalidRequest {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

// doRequest 执行一次嵌入请求
func (c *OpenAIClient) doRequest(ctx context.Context, reqBody openAIRequest) ([][]float32, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeNetworkError, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeNetworkError, err.Error())
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// 继续解析
	case http.StatusUnauthorized:
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	case http.StatusTooManyRequests:
		return nil, NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	default:
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, "failed to parse response: "+err.Error())
	}
	if result.Error != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, result.Error.Message)
	}
	if len(result.Data) != len(reqBody.Input) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(reqBody.Input), len(result.Data)))
	}

	// 接口可能乱序返回，按index归位
	vectors := make([][]float32, len(result.Data))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, NewEmbeddingError(ErrCodeServerError, "embedding index out of range")
		}
		vectors[item.Index] = item.Embedding
	}

	// 维度校验：向量长度必须与配置一致
	for i, vec := range vectors {
		if c.dimensions > 0 && len(vec) != c.dimensions {
			return nil, NewEmbeddingError(ErrCodeDimensionWrong,
				fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(vec), c.dimensions))
		}
	}

	return vectors, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Dimensions 返回输出向量的维度
func (c *OpenAIClient) Dimensions() int {
	return c.dimensions
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
