package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	apperrors "alumnigate/pkg/errors"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息中使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct 校验结构体，返回第一个字段错误
func validateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return apperrors.NewValidation(fe.Field(), "字段 "+fe.Field()+" 验证失败: "+fe.Tag())
		}
		return apperrors.NewValidation("", "参数验证失败")
	}
	return nil
}

// validateEmail 校验邮箱格式
func validateEmail(field, email string) error {
	if email == "" {
		return apperrors.NewValidation(field, "邮箱不能为空")
	}
	if err := validate.Var(email, "email,max=200"); err != nil {
		return apperrors.NewValidation(field, "邮箱格式错误")
	}
	return nil
}

// normalizeEmail 邮箱统一小写并去除空白
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// withTimeout 为单次存储操作设置上限，超时后按可重试的基础设施错误处理
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storageError 业务错误原样返回，其余按基础设施错误包装
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflict("与已有记录冲突")
	}
	return apperrors.NewInfrastructure(err)
}
