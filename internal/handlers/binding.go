package handlers

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"alumnigate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidation 绑定错误使用 json 字段名
func RegisterValidation() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" || name == "" {
					return fld.Name
				}
				return name
			})
		}
	})
}

// bindError 把绑定错误转换为带字段名的参数错误
func bindError(c *gin.Context, err error) {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		fe := errs[0]
		response.ValidationError(c, fe.Field(), "字段 "+fe.Field()+" 验证失败: "+fe.Tag())
		return
	}
	response.BadRequest(c, "请求参数错误")
}
