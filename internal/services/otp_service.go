package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"alumnigate/internal/models"
	apperrors "alumnigate/pkg/errors"
	"alumnigate/pkg/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 并发校验冲突时的最大重试次数
const otpCASRetries = 5

// OTPService 一次性验证码服务
type OTPService struct {
	db          *gorm.DB
	limiter     *RateLimiter
	log         *logrus.Logger
	timeout     time.Duration
	maxAttempts int
	defaultTTL  time.Duration
	dayLocation *time.Location
	now         func() time.Time
}

// OTPOptions 验证码参数
type OTPOptions struct {
	MaxAttempts int
	DefaultTTL  time.Duration
	DayLocation *time.Location
}

// NewOTPService 创建验证码服务
func NewOTPService(db *gorm.DB, limiter *RateLimiter, log *logrus.Logger, timeout time.Duration, opts OTPOptions) *OTPService {
	if opts.DayLocation == nil {
		opts.DayLocation = time.UTC
	}
	return &OTPService{
		db:          db,
		limiter:     limiter,
		log:         log,
		timeout:     timeout,
		maxAttempts: opts.MaxAttempts,
		defaultTTL:  opts.DefaultTTL,
		dayLocation: opts.DayLocation,
		now:         time.Now,
	}
}

// GenerateOTPRequest 签发验证码请求
type GenerateOTPRequest struct {
	Email       string     `json:"email" validate:"required,email,max=200"`
	Code        string     `json:"otp_code" validate:"required,min=4,max=20"`
	TokenType   string     `json:"token_type" validate:"required,oneof=email sms totp_setup"`
	TTLSeconds  int        `json:"ttl_seconds" validate:"omitempty,min=1,max=86400"`
	ExpiresAt   *time.Time `json:"expires_at"`
	PhoneNumber string     `json:"phone_number" validate:"omitempty,max=30"`
	IdentityID  string     `json:"identity_id" validate:"omitempty,max=36"`
}

// OTPValidation 验证码校验结果，校验失败不是错误
type OTPValidation struct {
	IsValid           bool `json:"is_valid"`
	RemainingAttempts int  `json:"remaining_attempts"`
	IsExpired         bool `json:"is_expired"`
	IsRateLimited     bool `json:"is_rate_limited"`
}

// Generate 签发验证码，同一邮箱可以同时存在多个有效验证码
func (s *OTPService) Generate(ctx context.Context, req GenerateOTPRequest) (*models.OTPToken, error) {
	req.Email = normalizeEmail(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.defaultTTL)
	if req.TTLSeconds > 0 {
		expiresAt = now.Add(time.Duration(req.TTLSeconds) * time.Second)
	}
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, apperrors.NewValidation("expires_at", "过期时间必须晚于当前时间")
		}
		expiresAt = req.ExpiresAt.UTC()
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	allowed, err := s.limiter.Allowed(ctx, req.Email)
	if err != nil {
		return nil, storageError(err)
	}
	if !allowed {
		s.log.WithField("email", req.Email).Warn("验证码签发过于频繁")
		return nil, apperrors.NewRateLimited("验证码请求过于频繁，请稍后再试")
	}

	otp := &models.OTPToken{
		Email:     req.Email,
		Code:      req.Code,
		TokenType: req.TokenType,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if req.PhoneNumber != "" {
		otp.PhoneNumber = &req.PhoneNumber
	}
	if req.IdentityID != "" {
		otp.IdentityID = &req.IdentityID
	}

	if err := s.db.WithContext(ctx).Create(otp).Error; err != nil {
		return nil, storageError(err)
	}
	if err := s.limiter.Record(ctx, req.Email); err != nil {
		// 计数失败不影响已签发的验证码
		s.log.WithError(err).WithField("email", req.Email).Warn("记录验证码签发次数失败")
	}

	metrics.OTPIssuedTotal.WithLabelValues(req.TokenType).Inc()
	s.log.WithFields(logrus.Fields{
		"email":      req.Email,
		"token_type": req.TokenType,
		"expires_at": expiresAt,
	}).Info("签发验证码")
	return otp, nil
}

// Validate 校验验证码。匹配时标记已使用，不匹配时累加尝试次数，均为条件更新。
func (s *OTPService) Validate(ctx context.Context, email, code, tokenType string) (*OTPValidation, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := validateEmail("email", email); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, apperrors.NewValidation("otp_code", "验证码不能为空")
	}
	if !models.IsValidOTPType(tokenType) {
		return nil, apperrors.NewValidation("token_type", "无效的验证码类型")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	for i := 0; i < otpCASRetries; i++ {
		now := s.now().UTC()

		var otp models.OTPToken
		err := db.Where("email = ? AND token_type = ? AND is_used = ? AND expires_at > ?", email, tokenType, false, now).
			Order("created_at DESC, id DESC").
			First(&otp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			expired, err := s.hasExpired(db, email, tokenType, now)
			if err != nil {
				return nil, err
			}
			return s.result(&OTPValidation{IsExpired: expired}, "missing"), nil
		}
		if err != nil {
			return nil, storageError(err)
		}

		if otp.AttemptCount >= s.maxAttempts {
			return s.result(&OTPValidation{IsRateLimited: true}, "rate_limited"), nil
		}

		if code == otp.Code {
			res := db.Model(&models.OTPToken{}).
				Where("id = ? AND is_used = ? AND attempt_count = ?", otp.ID, false, otp.AttemptCount).
				Updates(map[string]interface{}{
					"is_used": true,
					"used_at": now,
				})
			if res.Error != nil {
				return nil, storageError(res.Error)
			}
			if res.RowsAffected != 1 {
				continue
			}
			s.log.WithFields(logrus.Fields{"email": email, "token_type": tokenType}).Info("验证码校验通过")
			return s.result(&OTPValidation{
				IsValid:           true,
				RemainingAttempts: s.maxAttempts - otp.AttemptCount,
			}, "valid"), nil
		}

		newCount := otp.AttemptCount + 1
		res := db.Model(&models.OTPToken{}).
			Where("id = ? AND is_used = ? AND attempt_count = ?", otp.ID, false, otp.AttemptCount).
			Updates(map[string]interface{}{
				"attempt_count":   newCount,
				"last_attempt_at": now,
			})
		if res.Error != nil {
			return nil, storageError(res.Error)
		}
		if res.RowsAffected != 1 {
			continue
		}

		remaining := s.maxAttempts - newCount
		if remaining < 0 {
			remaining = 0
		}
		s.log.WithFields(logrus.Fields{
			"email":      email,
			"token_type": tokenType,
			"remaining":  remaining,
		}).Warn("验证码错误")
		return s.result(&OTPValidation{RemainingAttempts: remaining}, "mismatch"), nil
	}

	return nil, apperrors.NewConflict("验证码正在被并发校验，请重试")
}

func (s *OTPService) result(v *OTPValidation, label string) *OTPValidation {
	metrics.OTPValidationsTotal.WithLabelValues(label).Inc()
	return v
}

// hasExpired 最近一条未使用的验证码是否已过期
func (s *OTPService) hasExpired(db *gorm.DB, email, tokenType string, now time.Time) (bool, error) {
	var otp models.OTPToken
	err := db.Where("email = ? AND token_type = ? AND is_used = ?", email, tokenType, false).
		Order("created_at DESC, id DESC").
		First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err)
	}
	return !otp.ExpiresAt.After(now), nil
}

// GetRemainingAttempts 最近一小时内还能签发的次数
func (s *OTPService) GetRemainingAttempts(ctx context.Context, email string) (int, error) {
	status, err := s.CheckRateLimit(ctx, email)
	if err != nil {
		return 0, err
	}
	return status.Remaining, nil
}

// GetDailyCount 当天（按配置时区）签发的验证码数
func (s *OTPService) GetDailyCount(ctx context.Context, email string) (int64, error) {
	email = normalizeEmail(email)
	if err := validateEmail("email", email); err != nil {
		return 0, err
	}

	now := s.now().In(s.dayLocation)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.dayLocation)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var count int64
	err := s.db.WithContext(ctx).Model(&models.OTPToken{}).
		Where("email = ? AND created_at >= ?", email, startOfDay.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, storageError(err)
	}
	return count, nil
}

// CheckRateLimit 查询签发限流状态
func (s *OTPService) CheckRateLimit(ctx context.Context, email string) (*RateLimitStatus, error) {
	email = normalizeEmail(email)
	if err := validateEmail("email", email); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	status, err := s.limiter.Check(ctx, email)
	if err != nil {
		return nil, storageError(err)
	}
	return status, nil
}

// CleanupExpired 删除已过期的验证码，可与签发/校验并发执行
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now().UTC()).
		Delete(&models.OTPToken{})
	if result.Error != nil {
		return 0, storageError(result.Error)
	}

	metrics.OTPCleanupDeletedTotal.Add(float64(result.RowsAffected))
	if result.RowsAffected > 0 {
		s.log.Infof("清理过期验证码 %d 条", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
