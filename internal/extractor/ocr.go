package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPOCRClient 基于HTTP的OCR引擎客户端
// 调用外部识别服务（如tesseract服务）处理无文本层的页面
type HTTPOCRClient struct {
	baseURL    string       // OCR服务基础URL
	httpClient *http.Client // HTTP客户端
}

// ocrResponse OCR服务的响应结构
type ocrResponse struct {
	Text       string  `json:"text"`       // 识别出的文本
	Confidence float64 `json:"confidence"` // 识别置信度（0-1）
	Error      string  `json:"error"`      // 错误信息（如果有）
}

// NewHTTPOCRClient 创建OCR服务客户端
func NewHTTPOCRClient(baseURL string, timeout time.Duration) *HTTPOCRClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPOCRClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Recognize 将图像文件发送到OCR服务并返回识别文本
func (c *HTTPOCRClient) Recognize(ctx context.Context, imagePath string) (string, float64, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	// 构造multipart表单请求
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", 0, fmt.Errorf("failed to copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recognize", &buf)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("failed to decode ocr response: %w", err)
	}
	if result.Error != "" {
		return "", 0, fmt.Errorf("ocr service error: %s", result.Error)
	}

	return result.Text, result.Confidence, nil
}

// Available 检查OCR服务健康状态
func (c *HTTPOCRClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// NoopOCR 禁用OCR时的空实现
// 回退路径仍会产生低置信度空块，但不产生文本
type NoopOCR struct{}

// Recognize 始终返回空文本
func (NoopOCR) Recognize(ctx context.Context, imagePath string) (string, float64, error) {
	return "", 0, nil
}

// Available 空实现永远不可用
func (NoopOCR) Available(ctx context.Context) bool {
	return false
}
