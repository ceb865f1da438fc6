package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/paper-QA-pipeline/api/middleware"
	"github.com/fyerfyer/paper-QA-pipeline/api/model"
	"github.com/fyerfyer/paper-QA-pipeline/internal/queue"
	"github.com/fyerfyer/paper-QA-pipeline/internal/services"
	"github.com/fyerfyer/paper-QA-pipeline/internal/vectordb"
	"github.com/fyerfyer/paper-QA-pipeline/pkg/taskqueue"
)

// PaperHandler 处理论文相关的API请求
type PaperHandler struct {
	ingestService *services.IngestService      // 摄取服务
	statusManager *services.PaperStatusManager // 论文状态管理器
	localQueue    *queue.LocalQueue            // 本地论文队列
	index         vectordb.Index               // 向量索引
	taskQueue     taskqueue.Queue              // 异步任务队列，可为nil
	logger        *logrus.Logger               // 日志记录器
}

// NewPaperHandler 创建新的论文处理器
func NewPaperHandler(
	ingestService *services.IngestService,
	statusManager *services.PaperStatusManager,
	localQueue *queue.LocalQueue,
	index vectordb.Index,
	taskQueue taskqueue.Queue,
) *PaperHandler {
	return &PaperHandler{
		ingestService: ingestService,
		statusManager: statusManager,
		localQueue:    localQueue,
		index:         index,
		taskQueue:     taskQueue,
		logger:        middleware.GetLogger(),
	}
}

// QueuePaper 将论文加入摄取队列
// POST /api/papers
func (h *PaperHandler) QueuePaper(c *gin.Context) {
	var req model.PaperQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid paper queue request")
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	// 队列以字符串承载年份，未填写时留空
	year := ""
	if req.Year > 0 {
		year = strconv.Itoa(req.Year)
	}

	item := queue.PaperItem{
		ID:      queue.DerivePaperID(req.Path),
		Title:   req.Title,
		Authors: req.Authors,
		Year:    year,
		Path:    req.Path,
	}

	if err := h.localQueue.Enqueue(c.Request.Context(), item); err != nil {
		h.logger.WithError(err).WithField("path", req.Path).Error("Failed to enqueue paper")
		middleware.HandleError(c, middleware.NewInternalError("论文入队失败", err.Error()))
		return
	}

	resp := model.PaperQueueResponse{
		PaperID: item.ID,
		Status:  "queued",
	}

	// 启用任务队列时投递异步摄取任务
	if h.taskQueue != nil {
		payload := taskqueue.IngestPaperPayload{
			PaperID: item.ID,
			Title:   item.Title,
			Authors: item.Authors,
			Year:    item.Year,
			Path:    item.Path,
		}
		taskID, err := h.taskQueue.Enqueue(c.Request.Context(), taskqueue.TaskIngestPaper, item.ID, payload)
		if err != nil {
			h.logger.WithError(err).WithField("paper_id", item.ID).Error("Failed to enqueue ingest task")
			middleware.HandleError(c, middleware.NewInternalError("摄取任务投递失败", err.Error()))
			return
		}
		resp.TaskID = taskID
	}

	h.logger.WithFields(logrus.Fields{
		"paper_id": item.ID,
		"path":     item.Path,
	}).Info("Paper queued for ingestion")

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetPaperStatus 获取论文摄取状态
// GET /api/papers/:id/status
func (h *PaperHandler) GetPaperStatus(c *gin.Context) {
	var req model.PaperIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的论文ID"))
		return
	}

	paper, err := h.statusManager.GetPaper(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("paper_id", req.ID).Error("Failed to get paper")
		middleware.HandleError(c, middleware.NewNotFoundError("未找到论文"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.PaperInfoFromModel(paper)))
}

// ListPapers 获取论文列表
// GET /api/papers
func (h *PaperHandler) ListPapers(c *gin.Context) {
	var req model.PaperListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.RunID != "" {
		filters["run_id"] = req.RunID
	}
	if req.Title != "" {
		filters["title"] = req.Title
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	papers, total, err := h.statusManager.ListPapers(c.Request.Context(), offset, req.GetPageSize(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list papers")
		middleware.HandleError(c, middleware.NewInternalError("获取论文列表失败", err.Error()))
		return
	}

	infos := make([]model.PaperInfo, len(papers))
	for i, p := range papers {
		infos[i] = model.PaperInfoFromModel(p)
	}

	resp := model.PaperListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Papers:   infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeletePaper 删除论文及其索引数据
// DELETE /api/papers/:id
func (h *PaperHandler) DeletePaper(c *gin.Context) {
	var req model.PaperIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的论文ID"))
		return
	}

	// 先删除向量索引中的分块，再删除注册表记录
	if err := h.index.DeleteByPaperID(c.Request.Context(), req.ID); err != nil {
		h.logger.WithError(err).WithField("paper_id", req.ID).Error("Failed to delete paper vectors")
		middleware.HandleError(c, middleware.NewInternalError("删除论文索引数据失败", err.Error()))
		return
	}

	if err := h.statusManager.DeletePaper(c.Request.Context(), req.ID); err != nil {
		h.logger.WithError(err).WithField("paper_id", req.ID).Error("Failed to delete paper record")
		middleware.HandleError(c, middleware.NewInternalError("删除论文记录失败", err.Error()))
		return
	}

	h.logger.WithField("paper_id", req.ID).Info("Paper deleted")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.PaperDeleteResponse{
		Success: true,
		PaperID: req.ID,
	}))
}

// TriggerRun 触发一次摄取运行，处理队列中的所有待摄取论文
// POST /api/ingest/run
func (h *PaperHandler) TriggerRun(c *gin.Context) {
	// 运行可能耗时较长，脱离请求上下文执行
	report, err := h.ingestService.Run(context.Background())

	resp := model.IngestRunResponse{}
	if report != nil {
		resp.RunID = report.RunID
		resp.Succeeded = report.Succeeded()
		resp.Failed = report.Failed()
		resp.Results = report.Results
	}

	if err != nil {
		h.logger.WithError(err).Error("Ingestion run aborted")
		middleware.HandleError(c, middleware.NewInternalError("摄取运行中止", err.Error()))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":    resp.RunID,
		"succeeded": resp.Succeeded,
		"failed":    resp.Failed,
	}).Info("Ingestion run finished")

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
