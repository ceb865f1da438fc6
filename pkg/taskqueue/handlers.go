package taskqueue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/queue"
	"github.com/fyerfyer/paper-QA-pipeline/internal/services"
)

// IngestHandler 论文摄取任务处理器
// 将队列任务转交给摄取服务执行
type IngestHandler struct {
	svc    *services.IngestService
	queue  Queue
	logger *logrus.Logger
}

// NewIngestHandler 创建摄取任务处理器
func NewIngestHandler(svc *services.IngestService, q Queue) *IngestHandler {
	return &IngestHandler{
		svc:    svc,
		queue:  q,
		logger: logrus.New(),
	}
}

// ProcessTask 处理摄取任务
func (h *IngestHandler) ProcessTask(ctx context.Context, task *Task) error {
	var payload IngestPaperPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return err
	}
	if payload.Path == "" {
		return ErrInvalidPayload
	}

	item := queue.PaperItem{
		ID:      payload.PaperID,
		Title:   payload.Title,
		Authors: payload.Authors,
		Year:    payload.Year,
		Path:    payload.Path,
	}
	if item.ID == "" {
		item.ID = queue.DerivePaperID(item.Path)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"paper_id": item.ID,
		"path":     item.Path,
	}).Info("Processing paper ingestion task")

	result := h.svc.ProcessOne(ctx, item)

	taskResult := IngestPaperResult{
		PaperID:    result.PaperID,
		ChunkCount: result.ChunkCount,
		Formulas:   result.Formulas,
		Images:     result.Images,
		Error:      result.Error,
	}

	if result.Status == models.PaperStatusFailed {
		if err := h.queue.UpdateTaskStatus(ctx, task.ID, TaskStatusFailed, taskResult, result.Error); err != nil {
			h.logger.WithField("task_id", task.ID).WithError(err).Error("Failed to record task result")
		}
		return fmt.Errorf("paper ingestion failed: %s", result.Error)
	}

	if err := h.queue.UpdateTaskStatus(ctx, task.ID, TaskStatusCompleted, taskResult, ""); err != nil {
		h.logger.WithField("task_id", task.ID).WithError(err).Error("Failed to record task result")
	}
	return nil
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *IngestHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskIngestPaper}
}
