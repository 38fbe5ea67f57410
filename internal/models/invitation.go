package models

import (
	"time"

	"gorm.io/datatypes"
)

// Invitation 注册邀请
type Invitation struct {
	ID    string `gorm:"primaryKey;size:36" json:"id"`
	Email string `gorm:"size:200;not null;index:idx_invitations_email;uniqueIndex:idx_invitations_pending_email,where:status = 'pending'" json:"email"`
	// 关联的校友档案
	IdentityID     *string        `gorm:"size:36;index;uniqueIndex:idx_invitations_pending_identity,where:status = 'pending'" json:"identity_id,omitempty"`
	Token          string         `gorm:"type:text;not null;uniqueIndex" json:"token"` // 唯一可信来源
	InvitedBy      string         `gorm:"size:100;not null" json:"invited_by"`
	InvitationType string         `gorm:"size:30;not null" json:"invitation_type"`
	InvitationData datatypes.JSON `gorm:"type:json" json:"-"`
	Status         string         `gorm:"size:20;not null;default:'pending';index" json:"status"` // pending/accepted/revoked/expired
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	ExpiresAt      time.Time      `gorm:"not null;index" json:"expires_at"`
	IsUsed         bool           `gorm:"not null;default:false" json:"is_used"`
	UsedAt         *time.Time     `json:"used_at,omitempty"`
	AcceptedBy     *string        `gorm:"size:100" json:"accepted_by,omitempty"`
	ResendCount    int            `gorm:"not null;default:0" json:"resend_count"`
	LastResentAt   *time.Time     `json:"last_resent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (Invitation) TableName() string {
	return "invitations"
}

// 邀请状态常量
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusRevoked  = "revoked"
	InvitationStatusExpired  = "expired"
)

// IsValidInvitationStatus 检查状态值是否合法
func IsValidInvitationStatus(status string) bool {
	switch status {
	case InvitationStatusPending, InvitationStatusAccepted, InvitationStatusRevoked, InvitationStatusExpired:
		return true
	}
	return false
}

// IsUsable 检查邀请在指定时间是否可用
func (i *Invitation) IsUsable(now time.Time) bool {
	return i.Status == InvitationStatusPending && now.Before(i.ExpiresAt)
}

// IsTerminal 已接受或已撤销的邀请不能再改变状态
func (i *Invitation) IsTerminal() bool {
	return i.Status == InvitationStatusAccepted || i.Status == InvitationStatusRevoked
}
