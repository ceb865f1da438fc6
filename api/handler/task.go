package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/paper-QA-pipeline/api/middleware"
	"github.com/fyerfyer/paper-QA-pipeline/api/model"
	"github.com/fyerfyer/paper-QA-pipeline/pkg/taskqueue"
)

// TaskHandler 处理任务相关的API请求
type TaskHandler struct {
	queue  taskqueue.Queue // 任务队列
	logger *logrus.Logger  // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		middleware.HandleError(c, middleware.NewValidationError("任务ID不能为空"))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("任务未找到"))
			return
		}

		h.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task")
		middleware.HandleError(c, middleware.NewInternalError("获取任务状态失败", err.Error()))
		return
	}

	// 将任务信息转换为JSON安全的Map
	taskInfo := map[string]interface{}{
		"id":         task.ID,
		"type":       string(task.Type),
		"paper_id":   task.PaperID,
		"status":     string(task.Status),
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	}

	if task.Error != "" {
		taskInfo["error"] = task.Error
	}

	if len(task.Result) > 0 {
		var result map[string]interface{}
		if err := json.Unmarshal(task.Result, &result); err == nil {
			taskInfo["result"] = result
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskInfo))
}

// GetPaperTasks 获取论文相关的所有任务
// GET /api/papers/:id/tasks
func (h *TaskHandler) GetPaperTasks(c *gin.Context) {
	paperID := c.Param("id")
	if paperID == "" {
		middleware.HandleError(c, middleware.NewValidationError("论文ID不能为空"))
		return
	}

	tasks, err := h.queue.GetTasksByPaper(c.Request.Context(), paperID)
	if err != nil {
		h.logger.WithError(err).WithField("paper_id", paperID).Error("Failed to get paper tasks")
		middleware.HandleError(c, middleware.NewInternalError("获取论文任务列表失败", err.Error()))
		return
	}

	// 将任务列表转换为JSON安全的格式
	tasksInfo := make([]map[string]interface{}, len(tasks))
	for i, task := range tasks {
		tasksInfo[i] = map[string]interface{}{
			"id":         task.ID,
			"type":       string(task.Type),
			"status":     string(task.Status),
			"created_at": task.CreatedAt,
			"updated_at": task.UpdatedAt,
		}

		if task.Error != "" {
			tasksInfo[i]["error"] = task.Error
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(map[string]interface{}{
		"paper_id": paperID,
		"tasks":    tasksInfo,
	}))
}
