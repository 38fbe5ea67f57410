package errors

import (
	stderrors "errors"
	"fmt"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam       = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeConflict           = 409
	CodeBusinessRule       = 422
	CodeTooManyRequests    = 429
	CodeServerError        = 500
	CodeServiceUnavailable = 503
)

// ========== 业务错误分类 ==========

// Kind 错误类别
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindBusinessRule   Kind = "business_rule"
	KindRateLimited    Kind = "rate_limited"
	KindInfrastructure Kind = "infrastructure"
)

// AppError 带分类的业务错误
type AppError struct {
	Kind    Kind
	Field   string // 仅校验错误使用
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Code 返回对应的响应错误码
func (e *AppError) Code() int {
	switch e.Kind {
	case KindValidation:
		return CodeInvalidParam
	case KindConflict:
		return CodeConflict
	case KindNotFound:
		return CodeNotFound
	case KindBusinessRule:
		return CodeBusinessRule
	case KindRateLimited:
		return CodeTooManyRequests
	case KindInfrastructure:
		return CodeServiceUnavailable
	}
	return CodeServerError
}

// Retryable 基础设施错误可以重试，其余错误需要调用方修改输入
func (e *AppError) Retryable() bool {
	return e.Kind == KindInfrastructure
}

func NewValidation(field, message string) *AppError {
	return &AppError{Kind: KindValidation, Field: field, Message: message}
}

func NewConflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func NewNotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func NewBusinessRule(message string) *AppError {
	return &AppError{Kind: KindBusinessRule, Message: message}
}

func NewRateLimited(message string) *AppError {
	return &AppError{Kind: KindRateLimited, Message: message}
}

// NewInfrastructure 包装数据库/网络等底层故障，对外只暴露通用提示
func NewInfrastructure(err error) *AppError {
	return &AppError{Kind: KindInfrastructure, Message: "服务暂时不可用，请稍后重试", Err: err}
}

// As 提取 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind 判断错误是否属于指定类别
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
