package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/repository"
)

// PaperStatusManager 论文状态管理器
// 负责管理论文摄取的生命周期状态
type PaperStatusManager struct {
	repo   repository.PaperRepository // 论文仓储接口
	logger *logrus.Logger             // 日志记录器
	mu     sync.Mutex                 // 互斥锁，保证状态转换的原子性
}

// NewPaperStatusManager 创建论文状态管理器
func NewPaperStatusManager(repo repository.PaperRepository, logger *logrus.Logger) *PaperStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &PaperStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsQueued 将论文登记为已入队状态
// 已存在的记录只刷新基础字段，不重置状态
func (m *PaperStatusManager) MarkAsQueued(ctx context.Context, paper *models.Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"paper_id": paper.ID,
		"title":    paper.Title,
	}).Info("Marking paper as queued")

	paper.Status = models.PaperStatusQueued
	return m.repo.Upsert(paper)
}

// MarkAsProcessing 将论文标记为摄取中状态
func (m *PaperStatusManager) MarkAsProcessing(ctx context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	paper, err := m.repo.GetByID(paperID)
	if err != nil {
		return fmt.Errorf("failed to get paper: %w", err)
	}

	if err := m.ValidateStateTransition(paper.Status, models.PaperStatusProcessing); err != nil {
		return fmt.Errorf("paper %s is in %s state: %w", paperID, paper.Status, err)
	}

	m.logger.WithField("paper_id", paperID).Info("Marking paper as processing")

	return m.repo.UpdateStatus(paperID, models.PaperStatusProcessing, "")
}

// MarkAsDone 将论文标记为摄取完成状态
func (m *PaperStatusManager) MarkAsDone(ctx context.Context, paperID string, runID string, chunkCount int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	paper, err := m.repo.GetByID(paperID)
	if err != nil {
		return fmt.Errorf("failed to get paper: %w", err)
	}

	if err := m.ValidateStateTransition(paper.Status, models.PaperStatusDone); err != nil {
		return fmt.Errorf("paper %s is in %s state: %w", paperID, paper.Status, err)
	}

	m.logger.WithFields(logrus.Fields{
		"paper_id":    paperID,
		"chunk_count": chunkCount,
	}).Info("Marking paper as done")

	if err := m.repo.UpdateStatus(paperID, models.PaperStatusDone, ""); err != nil {
		return err
	}

	return m.repo.RecordResult(paperID, runID, chunkCount, note)
}

// MarkAsFailed 将论文标记为摄取失败状态
func (m *PaperStatusManager) MarkAsFailed(ctx context.Context, paperID string, runID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.repo.GetByID(paperID)
	if err != nil {
		return fmt.Errorf("failed to get paper: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"paper_id": paperID,
		"error":    errorMsg,
	}).Error("Marking paper as failed")

	if err := m.repo.UpdateStatus(paperID, models.PaperStatusFailed, errorMsg); err != nil {
		return err
	}

	return m.repo.RecordResult(paperID, runID, 0, errorMsg)
}

// GetStatus 获取论文当前状态
func (m *PaperStatusManager) GetStatus(ctx context.Context, paperID string) (models.PaperStatus, error) {
	paper, err := m.repo.GetByID(paperID)
	if err != nil {
		return "", fmt.Errorf("failed to get paper status: %w", err)
	}
	return paper.Status, nil
}

// GetPaper 获取完整的论文对象
func (m *PaperStatusManager) GetPaper(ctx context.Context, paperID string) (*models.Paper, error) {
	return m.repo.GetByID(paperID)
}

// ListPapers 获取论文列表
func (m *PaperStatusManager) ListPapers(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Paper, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeletePaper 删除论文状态记录
func (m *PaperStatusManager) DeletePaper(ctx context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("paper_id", paperID).Info("Deleting paper status record")
	return m.repo.Delete(paperID)
}

// ValidateStateTransition 验证状态转换的有效性
func (m *PaperStatusManager) ValidateStateTransition(from, to models.PaperStatus) error {
	// 定义有效的状态转换
	validTransitions := map[models.PaperStatus][]models.PaperStatus{
		models.PaperStatusQueued: {
			models.PaperStatusProcessing,
			models.PaperStatusFailed, // 源文件缺失等情况直接失败
		},
		models.PaperStatusProcessing: {
			models.PaperStatusDone,
			models.PaperStatusFailed,
		},
		// 终态，done通过重新入队触发重摄取，failed允许直接重试
		models.PaperStatusDone:   {models.PaperStatusProcessing},
		models.PaperStatusFailed: {models.PaperStatusProcessing},
	}

	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}

	return errors.New("invalid state transition")
}
