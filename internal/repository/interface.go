package repository

import "github.com/fyerfyer/paper-QA-pipeline/internal/models"

// PaperRepository 论文仓储接口
// 负责论文元数据和摄取状态的存储与检索
type PaperRepository interface {
	// Create 创建论文记录
	Create(paper *models.Paper) error

	// Upsert 创建或更新论文记录，按ID覆盖
	Upsert(paper *models.Paper) error

	// Update 更新论文记录
	Update(paper *models.Paper) error

	// GetByID 根据ID获取论文
	GetByID(id string) (*models.Paper, error)

	// List 列出论文，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Paper, int64, error)

	// ListByStatus 列出指定状态的所有论文
	ListByStatus(status models.PaperStatus) ([]*models.Paper, error)

	// Delete 删除论文记录
	Delete(id string) error

	// UpdateStatus 更新论文状态
	UpdateStatus(id string, status models.PaperStatus, errorMsg string) error

	// RecordResult 记录一次摄取的结果
	RecordResult(id string, runID string, chunkCount int, note string) error
}
