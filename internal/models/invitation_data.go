package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// 邀请类型常量
const (
	InvitationTypeAlumni  = "alumni"
	InvitationTypeAdmin   = "admin"
	InvitationTypePartner = "partner"
)

// InvitationData 按邀请类型区分的附加数据
type InvitationData interface {
	InvitationType() string
}

// AlumniInvitationData 校友邀请，预填的注册信息
type AlumniInvitationData struct {
	FirstName      string `json:"first_name,omitempty" validate:"max=100"`
	LastName       string `json:"last_name,omitempty" validate:"max=100"`
	GraduationYear *int   `json:"graduation_year,omitempty" validate:"omitempty,min=1900,max=2100"`
	Message        string `json:"message,omitempty" validate:"max=1000"`
}

func (AlumniInvitationData) InvitationType() string { return InvitationTypeAlumni }

// AdminInvitationData 管理员邀请
type AdminInvitationData struct {
	Role    string `json:"role" validate:"required,oneof=moderator admin"`
	Message string `json:"message,omitempty" validate:"max=1000"`
}

func (AdminInvitationData) InvitationType() string { return InvitationTypeAdmin }

// PartnerInvitationData 合作机构邀请
type PartnerInvitationData struct {
	Organization string `json:"organization" validate:"required,max=200"`
	Message      string `json:"message,omitempty" validate:"max=1000"`
}

func (PartnerInvitationData) InvitationType() string { return InvitationTypePartner }

// NewInvitationData 返回指定类型的空数据
func NewInvitationData(invitationType string) (InvitationData, error) {
	switch invitationType {
	case InvitationTypeAlumni:
		return &AlumniInvitationData{}, nil
	case InvitationTypeAdmin:
		return &AdminInvitationData{}, nil
	case InvitationTypePartner:
		return &PartnerInvitationData{}, nil
	}
	return nil, fmt.Errorf("不支持的邀请类型: %s", invitationType)
}

// DecodeInvitationData 写入前严格解析，不允许未知字段
func DecodeInvitationData(invitationType string, raw []byte) (InvitationData, error) {
	data, err := NewInvitationData(invitationType)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return data, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ParseInvitationData 读取时宽松解析，内容损坏时返回空数据和 false
func ParseInvitationData(invitationType string, raw []byte) (InvitationData, bool) {
	data, err := NewInvitationData(invitationType)
	if err != nil {
		return emptyData{}, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return data, true
	}
	if err := json.Unmarshal(raw, data); err != nil {
		empty, _ := NewInvitationData(invitationType)
		return empty, false
	}
	return data, true
}

// emptyData 未知类型读出时的占位，序列化为 {}
type emptyData struct{}

func (emptyData) InvitationType() string { return "" }
