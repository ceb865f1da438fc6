package models

import (
	"errors"
	"fmt"
)

// ErrorKind 流水线错误类别
// 区分论文级错误（只影响当前论文）和运行级错误（中止整次运行）
type ErrorKind string

const (
	// KindExtraction PDF不可读或损坏，论文级
	KindExtraction ErrorKind = "extraction"
	// KindEncoding 嵌入后端整批不可用，论文级
	KindEncoding ErrorKind = "encoding"
	// KindIndexWrite 向量索引写入失败，论文级
	KindIndexWrite ErrorKind = "index_write"
	// KindConfiguration 配置错误（维度不匹配、缺少必需配置），运行级
	KindConfiguration ErrorKind = "configuration"
)

// PipelineError 流水线错误
// 携带错误类别和关联的论文ID，供编排器决定失败范围
type PipelineError struct {
	Kind    ErrorKind // 错误类别
	PaperID string    // 关联的论文ID（运行级错误可为空）
	Err     error     // 底层错误
}

// Error 实现error接口
func (e *PipelineError) Error() string {
	if e.PaperID != "" {
		return fmt.Sprintf("%s error (paper=%s): %v", e.Kind, e.PaperID, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap 返回底层错误
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewExtractionError 创建提取错误
func NewExtractionError(paperID string, err error) *PipelineError {
	return &PipelineError{Kind: KindExtraction, PaperID: paperID, Err: err}
}

// NewEncodingError 创建嵌入批处理错误
func NewEncodingError(paperID string, err error) *PipelineError {
	return &PipelineError{Kind: KindEncoding, PaperID: paperID, Err: err}
}

// NewIndexWriteError 创建索引写入错误
func NewIndexWriteError(paperID string, err error) *PipelineError {
	return &PipelineError{Kind: KindIndexWrite, PaperID: paperID, Err: err}
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(err error) *PipelineError {
	return &PipelineError{Kind: KindConfiguration, Err: err}
}

// IsRunFatal 判断错误是否应中止整次运行
// 配置错误在处理任何论文之前中止运行，论文级错误只中止当前论文
func IsRunFatal(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind == KindConfiguration
	}
	return false
}
