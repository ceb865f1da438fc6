package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// PaperInfo 论文信息
type PaperInfo struct {
	ID          string                 `json:"id"`                     // 论文ID
	Title       string                 `json:"title"`                  // 论文标题
	Source      string                 `json:"source"`                 // 来源定位符
	Status      string                 `json:"status"`                 // 摄取状态
	Error       string                 `json:"error,omitempty"`        // 错误信息（如果有）
	Note        string                 `json:"note,omitempty"`         // 处理结果备注
	ChunkCount  int                    `json:"chunk_count"`            // 写入索引的分块数量
	LastRunID   string                 `json:"last_run_id,omitempty"`  // 最近处理此论文的运行ID
	QueuedAt    time.Time              `json:"queued_at"`              // 入队时间
	ProcessedAt *time.Time             `json:"processed_at,omitempty"` // 摄取完成时间
	Metadata    map[string]interface{} `json:"metadata,omitempty"`     // 元数据
}

// PaperInfoFromModel 将数据库模型转换为响应信息
func PaperInfoFromModel(p *models.Paper) PaperInfo {
	info := PaperInfo{
		ID:          p.ID,
		Title:       p.Title,
		Source:      p.Source,
		Status:      string(p.Status),
		Error:       p.Error,
		Note:        p.Note,
		ChunkCount:  p.ChunkCount,
		LastRunID:   p.LastRunID,
		QueuedAt:    p.QueuedAt,
		ProcessedAt: p.ProcessedAt,
	}
	if len(p.Metadata) > 0 {
		var meta map[string]interface{}
		if err := json.Unmarshal(p.Metadata, &meta); err == nil {
			info.Metadata = meta
		}
	}
	return info
}

// PaperListResponse 论文列表响应
type PaperListResponse struct {
	Total    int64       `json:"total"`     // 总数量
	Page     int         `json:"page"`      // 当前页码
	PageSize int         `json:"page_size"` // 每页大小
	Papers   []PaperInfo `json:"papers"`    // 论文列表
}

// PaperQueueResponse 论文入队响应
type PaperQueueResponse struct {
	PaperID string `json:"paper_id"`          // 论文ID
	TaskID  string `json:"task_id,omitempty"` // 异步任务ID（启用任务队列时）
	Status  string `json:"status"`            // 初始状态
}

// PaperDeleteResponse 论文删除响应
type PaperDeleteResponse struct {
	Success bool   `json:"success"`  // 是否成功
	PaperID string `json:"paper_id"` // 论文ID
}

// IngestRunResponse 摄取运行响应
type IngestRunResponse struct {
	RunID     string                 `json:"run_id"`          // 运行ID
	Succeeded int                    `json:"succeeded"`       // 成功篇数
	Failed    int                    `json:"failed"`          // 失败篇数
	Results   []services.PaperResult `json:"results"`         // 每篇论文的处理结果
	Error     string                 `json:"error,omitempty"` // 运行级错误（配置错误等）
}
