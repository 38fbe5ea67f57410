package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params 规范化后的分页参数
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// FromQuery 读取 page/page_size 查询参数，非法值使用默认值
func FromQuery(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return Normalize(page, pageSize)
}

// Normalize 页码从1开始，每页数量限制在 [1, MaxPageSize]
func Normalize(page, pageSize int) Params {
	if page < 1 {
		page = DefaultPage
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Params{Page: page, PageSize: pageSize}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Scope 用于 db.Scopes(...)
func (p Params) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// TotalPages 总页数，没有记录时为0
func (p Params) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	size := int64(p.PageSize)
	return int((total + size - 1) / size)
}
