package response

import (
	"net/http"

	"alumnigate/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response 统一返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// ========== 基础返回方法 ==========

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 成功返回（自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 通用错误返回，HTTP 状态始终为200，错误码放在 code 字段
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ValidationError 参数错误并指明出错字段
func ValidationError(c *gin.Context, field, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeInvalidParam,
		Message: message,
		Field:   field,
	})
}

// ServiceUnavailable 依赖不可用，附带检查结果
func ServiceUnavailable(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeServiceUnavailable,
		Message: message,
		Data:    data,
	})
}

// FromError 将服务层错误转换为统一返回，未分类错误不向外暴露细节
func FromError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		ServerError(c, "服务器内部错误")
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    appErr.Code(),
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// ========== HTTP错误快捷方法 ==========

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, errors.CodeForbidden, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, errors.CodeServerError, message)
}
