package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/paper-QA-pipeline/api/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 应用错误类型常量
const (
	ErrorTypeValidation = "VALIDATION_ERROR" // 输入验证错误
	ErrorTypeNotFound   = "NOT_FOUND_ERROR"  // 资源不存在错误
	ErrorTypeInternal   = "INTERNAL_ERROR"   // 内部服务器错误
)

// AppError 应用错误结构体
// 处理器通过HandleError上报，由ErrorMiddleware统一转换为HTTP响应
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// ErrorMiddleware 统一错误处理中间件
// 恢复panic，并把处理器上报的错误转换为统一的错误响应
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"error": err,
					"stack": string(debug.Stack()),
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				if traceID, exists := c.Get("TraceID"); exists {
					errorResponse.TraceID = traceID.(string)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		traceID := ""
		if traceIDValue, exists := c.Get("TraceID"); exists {
			traceID = traceIDValue.(string)
		}

		appErr, ok := unwrapAppError(err)
		if !ok {
			// 未分类的错误按内部错误处理
			log.WithFields(logrus.Fields{
				"trace_id": traceID,
				"path":     c.Request.URL.Path,
			}).Error(err.Error())

			errResp := model.NewErrorResponse(
				http.StatusInternalServerError,
				"Internal server error",
			)
			errResp.TraceID = traceID
			if gin.Mode() == gin.DebugMode {
				errResp.Message = err.Error()
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
			return
		}

		log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			"trace_id":   traceID,
			"path":       c.Request.URL.Path,
		}).Error(appErr.Message)

		errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
		errResp.TraceID = traceID

		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// unwrapAppError 识别值类型和指针类型的应用错误
func unwrapAppError(err error) (AppError, bool) {
	switch e := err.(type) {
	case AppError:
		return e, true
	case *AppError:
		return *e, true
	default:
		return AppError{}, false
	}
}

// HandleError 处理器中上报错误的辅助函数
// 错误由ErrorMiddleware统一转换为响应
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
