package handlers

import (
	"encoding/json"
	"time"

	"alumnigate/internal/middleware"
	"alumnigate/internal/services"
	"alumnigate/pkg/pagination"
	"alumnigate/pkg/response"

	"github.com/gin-gonic/gin"
)

// InvitationHandler 邀请处理器
type InvitationHandler struct {
	invitationService *services.InvitationService
}

// NewInvitationHandler 创建邀请处理器
func NewInvitationHandler(invitationService *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// CreateInvitationRequest 创建邀请请求
type CreateInvitationRequest struct {
	Email          string          `json:"email" binding:"omitempty,email,max=200"`
	IdentityID     string          `json:"identity_id" binding:"omitempty,max=36"`
	InvitedBy      string          `json:"invited_by" binding:"omitempty,max=100"`
	InvitationType string          `json:"invitation_type" binding:"required"`
	InvitationData json.RawMessage `json:"invitation_data"`
	ExpiresInDays  int             `json:"expires_in_days" binding:"omitempty,min=1,max=90"`
}

// BulkCreateInvitationRequest 批量创建邀请请求
type BulkCreateInvitationRequest struct {
	Invitations    []services.BulkInvitationItem `json:"invitations" binding:"required,min=1,max=100"`
	InvitedBy      string                        `json:"invited_by" binding:"omitempty,max=100"`
	InvitationType string                        `json:"invitation_type" binding:"required"`
	ExpiresInDays  int                           `json:"expires_in_days" binding:"omitempty,min=1,max=90"`
}

// ValidateInvitationRequest 校验邀请请求
type ValidateInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// CreateInvitation 创建邀请
// @Summary 创建邀请
// @Description 管理员邀请校友注册，同一邮箱同时只能有一个待处理邀请
// @Tags 邀请管理
// @Accept json
// @Produce json
// @Param request body CreateInvitationRequest true "邀请信息"
// @Success 200 {object} response.Response{data=services.InvitationView}
// @Router /api/v1/invitations [post]
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Email == "" && req.IdentityID == "" {
		response.BadRequest(c, "邮箱和校友档案ID至少提供一个")
		return
	}

	invitation, err := h.invitationService.Create(c.Request.Context(),
		services.InvitationTarget{Email: req.Email, IdentityID: req.IdentityID},
		h.invitedBy(c, req.InvitedBy), req.InvitationType, req.InvitationData, days(req.ExpiresInDays))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, h.invitationService.ToView(invitation))
}

// ListInvitations 获取邀请列表
// @Summary 获取邀请列表
// @Tags 邀请管理
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query string false "邀请状态(pending/accepted/revoked/expired)"
// @Success 200 {object} response.Response{data=services.InvitationPage}
// @Router /api/v1/invitations [get]
func (h *InvitationHandler) ListInvitations(c *gin.Context) {
	params := pagination.FromQuery(c)

	page, err := h.invitationService.List(c.Request.Context(), params.Page, params.PageSize, c.Query("status"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, page)
}

// ValidateInvitation 校验邀请令牌
// @Summary 校验邀请令牌
// @Description 注册页面使用，返回匹配的校友档案和年龄分级结果。令牌无效时 is_valid=false
// @Tags 邀请管理
// @Accept json
// @Produce json
// @Param request body ValidateInvitationRequest true "邀请令牌"
// @Success 200 {object} response.Response{data=services.InvitationValidation}
// @Router /api/v1/invitations/validate [post]
func (h *InvitationHandler) ValidateInvitation(c *gin.Context) {
	var req ValidateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.invitationService.Validate(c.Request.Context(), req.Token)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateInvitation 更新邀请
// @Summary 更新邀请
// @Description 注册完成流程记录接受状态等信息
// @Tags 邀请管理
// @Accept json
// @Produce json
// @Param id path string true "邀请ID"
// @Param request body services.UpdateInvitationFields true "更新字段"
// @Success 200 {object} response.Response{data=services.InvitationView}
// @Router /api/v1/invitations/{id} [put]
func (h *InvitationHandler) UpdateInvitation(c *gin.Context) {
	var req services.UpdateInvitationFields
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	invitation, err := h.invitationService.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, h.invitationService.ToView(invitation))
}

// ResendInvitation 重发邀请
// @Summary 重发邀请
// @Description 重新签发令牌并延长有效期，旧链接失效
// @Tags 邀请管理
// @Produce json
// @Param id path string true "邀请ID"
// @Success 200 {object} response.Response
// @Router /api/v1/invitations/{id}/resend [post]
func (h *InvitationHandler) ResendInvitation(c *gin.Context) {
	invitation, err := h.invitationService.Resend(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "邀请已重新发送", gin.H{
		"new_expires_at": invitation.ExpiresAt,
		"resend_count":   invitation.ResendCount,
	})
}

// RevokeInvitation 撤销邀请
// @Summary 撤销邀请
// @Tags 邀请管理
// @Produce json
// @Param id path string true "邀请ID"
// @Success 200 {object} response.Response
// @Router /api/v1/invitations/{id}/revoke [post]
func (h *InvitationHandler) RevokeInvitation(c *gin.Context) {
	if err := h.invitationService.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "邀请已撤销", nil)
}

// BulkCreateInvitations 批量创建邀请
// @Summary 批量创建邀请
// @Description 逐项创建，单项失败不影响其他项，失败项在 failed_invitations 中返回
// @Tags 邀请管理
// @Accept json
// @Produce json
// @Param request body BulkCreateInvitationRequest true "邀请列表"
// @Success 200 {object} response.Response{data=services.BulkCreateResult}
// @Router /api/v1/invitations/bulk [post]
func (h *InvitationHandler) BulkCreateInvitations(c *gin.Context) {
	var req BulkCreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result := h.invitationService.BulkCreate(c.Request.Context(), req.Invitations,
		h.invitedBy(c, req.InvitedBy), req.InvitationType, days(req.ExpiresInDays))

	response.Success(c, result)
}

// invitedBy 未指定邀请人时使用当前登录用户
func (h *InvitationHandler) invitedBy(c *gin.Context, requested string) string {
	if requested != "" {
		return requested
	}
	if caller := middleware.Caller(c); caller != nil {
		return caller.UserID
	}
	return ""
}

// days 0 表示使用默认有效期
func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
