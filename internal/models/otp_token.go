package models

import (
	"time"
)

// OTPToken 一次性验证码
type OTPToken struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	Email         string     `gorm:"size:200;not null;index:idx_otp_lookup,priority:1" json:"email"`
	Code          string     `gorm:"size:20;not null" json:"-"`
	TokenType     string     `gorm:"size:20;not null;index:idx_otp_lookup,priority:2" json:"token_type"`
	IdentityID    *string    `gorm:"size:36" json:"identity_id,omitempty"`
	PhoneNumber   *string    `gorm:"size:30" json:"phone_number,omitempty"`
	ExpiresAt     time.Time  `gorm:"not null;index" json:"expires_at"`
	AttemptCount  int        `gorm:"not null;default:0" json:"attempt_count"`
	IsUsed        bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index:idx_otp_lookup,priority:3" json:"created_at"`
}

// TableName 指定表名
func (OTPToken) TableName() string {
	return "otp_tokens"
}

// 验证码类型常量
const (
	OTPTypeEmail     = "email"
	OTPTypeSMS       = "sms"
	OTPTypeTOTPSetup = "totp_setup"
)

// IsValidOTPType 检查验证码类型是否合法
func IsValidOTPType(t string) bool {
	switch t {
	case OTPTypeEmail, OTPTypeSMS, OTPTypeTOTPSetup:
		return true
	}
	return false
}
