package handlers

import (
	"alumnigate/internal/services"
	"alumnigate/pkg/response"

	"github.com/gin-gonic/gin"
)

// OTPHandler 验证码处理器
type OTPHandler struct {
	otpService *services.OTPService
}

// NewOTPHandler 创建验证码处理器
func NewOTPHandler(otpService *services.OTPService) *OTPHandler {
	return &OTPHandler{otpService: otpService}
}

// ValidateOTPRequest 校验验证码请求
type ValidateOTPRequest struct {
	Email     string `json:"email" binding:"required"`
	Code      string `json:"otp_code" binding:"required"`
	TokenType string `json:"token_type" binding:"required"`
}

// GenerateOTP 签发验证码
// @Summary 签发验证码
// @Description 由发送短信/邮件的内部服务调用，受每小时签发次数限制
// @Tags 验证码
// @Accept json
// @Produce json
// @Param request body services.GenerateOTPRequest true "验证码信息"
// @Success 200 {object} response.Response
// @Router /api/v1/otp [post]
func (h *OTPHandler) GenerateOTP(c *gin.Context) {
	var req services.GenerateOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	otp, err := h.otpService.Generate(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "验证码已生成", gin.H{
		"id":         otp.ID,
		"expires_at": otp.ExpiresAt,
	})
}

// ValidateOTP 校验验证码
// @Summary 校验验证码
// @Description 验证码错误不是请求错误，结果中 is_valid=false
// @Tags 验证码
// @Accept json
// @Produce json
// @Param request body ValidateOTPRequest true "验证码"
// @Success 200 {object} response.Response{data=services.OTPValidation}
// @Router /api/v1/otp/validate [post]
func (h *OTPHandler) ValidateOTP(c *gin.Context) {
	var req ValidateOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.otpService.Validate(c.Request.Context(), req.Email, req.Code, req.TokenType)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// GetRemainingAttempts 最近一小时剩余签发次数
// @Summary 剩余签发次数
// @Tags 验证码
// @Produce json
// @Param email query string true "邮箱"
// @Success 200 {object} response.Response
// @Router /api/v1/otp/remaining-attempts [get]
func (h *OTPHandler) GetRemainingAttempts(c *gin.Context) {
	remaining, err := h.otpService.GetRemainingAttempts(c.Request.Context(), c.Query("email"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"remaining_attempts": remaining})
}

// GetDailyCount 当天签发数量
// @Summary 当天签发数量
// @Tags 验证码
// @Produce json
// @Param email query string true "邮箱"
// @Success 200 {object} response.Response
// @Router /api/v1/otp/daily-count [get]
func (h *OTPHandler) GetDailyCount(c *gin.Context) {
	count, err := h.otpService.GetDailyCount(c.Request.Context(), c.Query("email"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"daily_count": count})
}

// CheckRateLimit 限流状态
// @Summary 签发限流状态
// @Tags 验证码
// @Produce json
// @Param email query string true "邮箱"
// @Success 200 {object} response.Response{data=services.RateLimitStatus}
// @Router /api/v1/otp/rate-limit [get]
func (h *OTPHandler) CheckRateLimit(c *gin.Context) {
	status, err := h.otpService.CheckRateLimit(c.Request.Context(), c.Query("email"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, status)
}

// CleanupExpired 清理过期验证码
// @Summary 清理过期验证码
// @Tags 验证码
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/otp/cleanup [post]
func (h *OTPHandler) CleanupExpired(c *gin.Context) {
	deleted, err := h.otpService.CleanupExpired(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"deleted_count": deleted})
}
