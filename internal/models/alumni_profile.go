package models

import (
	"time"
)

// AlumniProfile 校友档案，本服务只读
type AlumniProfile struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Email          string     `gorm:"size:200;not null;index" json:"email"` // 档案导入数据中同一邮箱可能出现多次
	FirstName      string     `gorm:"size:100" json:"first_name"`
	LastName       string     `gorm:"size:100" json:"last_name"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	GraduationYear *int       `json:"graduation_year,omitempty"`
	Phone          *string    `gorm:"size:30" json:"phone,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (AlumniProfile) TableName() string {
	return "alumni_profiles"
}
