package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fyerfyer/paper-QA-pipeline/internal/database"
	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
)

// ErrPaperNotFound 论文记录不存在
var ErrPaperNotFound = errors.New("paper not found")

// paperRepository 论文仓储实现
type paperRepository struct {
	db *gorm.DB // 数据库连接
}

// NewPaperRepository 创建论文仓储实例
func NewPaperRepository() PaperRepository {
	return &paperRepository{
		db: database.MustDB(),
	}
}

// NewPaperRepositoryWithDB 使用指定的数据库连接创建论文仓储实例
func NewPaperRepositoryWithDB(db *gorm.DB) PaperRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &paperRepository{
		db: db,
	}
}

// Create 创建论文记录
func (r *paperRepository) Create(paper *models.Paper) error {
	if paper.ID == "" {
		return errors.New("paper ID cannot be empty")
	}

	return r.db.Create(paper).Error
}

// Upsert 创建或更新论文记录
// 队列同步时反复看到同一篇论文，按ID覆盖基础字段，不碰状态
func (r *paperRepository) Upsert(paper *models.Paper) error {
	if paper.ID == "" {
		return errors.New("paper ID cannot be empty")
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "source", "metadata", "updated_at"}),
	}).Create(paper).Error
}

// Update 更新论文记录
func (r *paperRepository) Update(paper *models.Paper) error {
	if paper.ID == "" {
		return errors.New("paper ID cannot be empty")
	}

	return r.db.Save(paper).Error
}

// GetByID 根据ID获取论文
func (r *paperRepository) GetByID(id string) (*models.Paper, error) {
	var paper models.Paper
	err := r.db.Where("id = ?", id).First(&paper).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaperNotFound, id)
		}
		return nil, err
	}
	return &paper, nil
}

// List 列出论文，支持分页和筛选
func (r *paperRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Paper, int64, error) {
	var papers []*models.Paper
	var total int64

	query := r.db.Model(&models.Paper{})

	if filters != nil {
		// 状态过滤
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.PaperStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			}
		}

		// 运行ID过滤
		if runID, ok := filters["run_id"].(string); ok && runID != "" {
			query = query.Where("last_run_id = ?", runID)
		}

		// 标题过滤
		if title, ok := filters["title"].(string); ok && title != "" {
			query = query.Where("title LIKE ?", "%"+title+"%")
		}
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.Order("queued_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&papers).Error
	if err != nil {
		return nil, 0, err
	}

	return papers, total, nil
}

// ListByStatus 列出指定状态的所有论文
func (r *paperRepository) ListByStatus(status models.PaperStatus) ([]*models.Paper, error) {
	var papers []*models.Paper
	err := r.db.Where("status = ?", string(status)).
		Order("queued_at ASC").
		Find(&papers).Error
	return papers, err
}

// Delete 删除论文记录
func (r *paperRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.Paper{}).Error
}

// UpdateStatus 更新论文状态
func (r *paperRepository) UpdateStatus(id string, status models.PaperStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	} else if status == models.PaperStatusDone {
		// 重新摄取成功后清除上一轮运行遗留的失败信息
		updates["error"] = ""
	}

	// 进入终态时记录处理完成时间
	if status.IsTerminal() {
		now := time.Now()
		updates["processed_at"] = &now
	}

	result := r.db.Model(&models.Paper{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPaperNotFound, id)
	}
	return nil
}

// RecordResult 记录一次摄取的结果
func (r *paperRepository) RecordResult(id string, runID string, chunkCount int, note string) error {
	result := r.db.Model(&models.Paper{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_id": runID,
			"chunk_count": chunkCount,
			"note":        note,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPaperNotFound, id)
	}
	return nil
}
