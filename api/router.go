package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/paper-QA-pipeline/api/handler"
	"github.com/fyerfyer/paper-QA-pipeline/api/middleware"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	paperHandler *handler.PaperHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	// 创建默认的Gin路由引擎
	router := gin.Default()

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	// 创建API分组
	api := router.Group("/api")
	{
		// 论文管理API
		paperGroup := api.Group("/papers")
		{
			// 论文入队 - POST /api/papers
			paperGroup.POST("", paperHandler.QueuePaper)

			// 获取论文状态 - GET /api/papers/:id/status
			paperGroup.GET("/:id/status", paperHandler.GetPaperStatus)

			// 获取论文列表 - GET /api/papers
			paperGroup.GET("", paperHandler.ListPapers)

			// 删除论文 - DELETE /api/papers/:id
			paperGroup.DELETE("/:id", paperHandler.DeletePaper)

			// 任务队列启用时才注册任务查询端点
			if taskHandler != nil {
				// 获取论文任务列表 - GET /api/papers/:id/tasks
				paperGroup.GET("/:id/tasks", taskHandler.GetPaperTasks)
			}
		}

		// 摄取运行API
		ingestGroup := api.Group("/ingest")
		{
			// 触发摄取运行 - POST /api/ingest/run
			ingestGroup.POST("/run", paperHandler.TriggerRun)
		}

		// 任务API
		if taskHandler != nil {
			taskGroup := api.Group("/tasks")
			{
				// 获取任务状态 - GET /api/tasks/:id
				taskGroup.GET("/:id", taskHandler.GetTaskStatus)
			}
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
// 如果需要支持跨域请求，可以启用此中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
