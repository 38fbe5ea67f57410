package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"alumnigate/internal/models"
	"alumnigate/pkg/coppa"
	apperrors "alumnigate/pkg/errors"
	"alumnigate/pkg/metrics"
	"alumnigate/pkg/pagination"
	"alumnigate/pkg/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvitationNotifier 邀请邮件通知，提交事务后调用，不得阻塞
type InvitationNotifier interface {
	InvitationCreated(inv *models.Invitation)
	InvitationResent(inv *models.Invitation)
}

// InvitationService 邀请服务
type InvitationService struct {
	db         *gorm.DB
	codec      *token.Codec
	directory  DirectoryStore
	notifier   InvitationNotifier
	log        *logrus.Logger
	timeout    time.Duration
	defaultTTL time.Duration
	// dayLocation 年龄分级所用的"今天"所在时区
	dayLocation *time.Location
	now         func() time.Time
}

// NewInvitationService 创建邀请服务
func NewInvitationService(db *gorm.DB, codec *token.Codec, directory DirectoryStore, notifier InvitationNotifier,
	log *logrus.Logger, timeout, defaultTTL time.Duration) *InvitationService {
	return &InvitationService{
		db:          db,
		codec:       codec,
		directory:   directory,
		notifier:    notifier,
		log:         log,
		timeout:     timeout,
		defaultTTL:  defaultTTL,
		dayLocation: time.UTC,
		now:         time.Now,
	}
}

// WithDayLocation 设置年龄分级的日历时区，nil 保持 UTC
func (s *InvitationService) WithDayLocation(loc *time.Location) *InvitationService {
	if loc == nil {
		loc = time.UTC
	}
	s.dayLocation = loc
	return s
}

// InvitationTarget 邀请对象，邮箱与档案ID至少提供一个
type InvitationTarget struct {
	Email      string `json:"email"`
	IdentityID string `json:"identity_id"`
}

// InvitationView 对外返回的邀请，附带解析后的类型数据
type InvitationView struct {
	*models.Invitation
	InvitationData models.InvitationData `json:"invitation_data"`
}

// InvitationValidation 邀请校验结果
type InvitationValidation struct {
	IsValid           bool                  `json:"is_valid"`
	Reason            string                `json:"reason,omitempty"`
	Invitation        *InvitationView       `json:"invitation,omitempty"`
	MatchedIdentity   *models.AlumniProfile `json:"matched_identity,omitempty"`
	MatchCount        int                   `json:"match_count"`
	CoppaStatus       coppa.Status          `json:"coppa_status,omitempty"`
	CanOneClickJoin   bool                  `json:"can_one_click_join"`
	RequiresUserInput bool                  `json:"requires_user_input"`
	SuggestedFields   []string              `json:"suggested_fields"`
}

// 校验失败原因（令牌本身的原因见 token 包）
const (
	ReasonNotFound = "not_found"
	ReasonRevoked  = "revoked"
	ReasonAccepted = "accepted"
	ReasonMismatch = "mismatch"
)

// UpdateInvitationFields 可更新字段，nil 表示不修改
type UpdateInvitationFields struct {
	Status       *string    `json:"status"`
	IsUsed       *bool      `json:"is_used"`
	UsedAt       *time.Time `json:"used_at"`
	AcceptedBy   *string    `json:"accepted_by"`
	IdentityID   *string    `json:"identity_id"`
	SentAt       *time.Time `json:"sent_at"`
	ResendCount  *int       `json:"resend_count"`
	LastResentAt *time.Time `json:"last_resent_at"`
}

// InvitationPage 分页结果
type InvitationPage struct {
	Data       []*InvitationView `json:"data"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ========== 创建 ==========

// Create 创建邀请。同一目标同一时刻最多一个 pending 邀请。
// 同一目标已过期但仍为 pending 的旧邀请会在同一事务内改为 expired。
func (s *InvitationService) Create(ctx context.Context, target InvitationTarget, invitedBy, invitationType string,
	data json.RawMessage, ttl time.Duration) (*models.Invitation, error) {
	invitedBy = strings.TrimSpace(invitedBy)
	if invitedBy == "" {
		return nil, apperrors.NewValidation("invited_by", "邀请人不能为空")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	typed, err := models.DecodeInvitationData(invitationType, data)
	if err != nil {
		if _, typeErr := models.NewInvitationData(invitationType); typeErr != nil {
			return nil, apperrors.NewValidation("invitation_type", typeErr.Error())
		}
		return nil, apperrors.NewValidation("invitation_data", "邀请数据格式错误")
	}
	if err := validateStruct(typed); err != nil {
		return nil, err
	}
	dataJSON, err := json.Marshal(typed)
	if err != nil {
		return nil, apperrors.NewValidation("invitation_data", "邀请数据格式错误")
	}

	// 在事务外解析目标，事务内不做额外的查询
	email, identityID, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var invitation *models.Invitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()

		// 锁定该目标已有的 pending 邀请
		var existing []models.Invitation
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if identityID != nil {
			query = query.Where("status = ? AND (email = ? OR identity_id = ?)", models.InvitationStatusPending, email, *identityID)
		} else {
			query = query.Where("status = ? AND email = ?", models.InvitationStatusPending, email)
		}
		if err := query.Find(&existing).Error; err != nil {
			return err
		}

		var stale []string
		for _, inv := range existing {
			if inv.IsUsable(now) {
				return apperrors.NewConflict("该邮箱已有待处理的邀请")
			}
			stale = append(stale, inv.ID)
		}
		// 已过期但仍为 pending 的旧邀请显式标记为 expired，释放唯一约束
		if len(stale) > 0 {
			if err := tx.Model(&models.Invitation{}).
				Where("id IN ? AND status = ?", stale, models.InvitationStatusPending).
				Update("status", models.InvitationStatusExpired).Error; err != nil {
				return err
			}
		}

		inv, err := s.mint(now, email, identityID, invitedBy, invitationType, dataJSON, ttl)
		if err != nil {
			return err
		}
		if err := tx.Create(inv).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.NewConflict("该邮箱已有待处理的邀请")
			}
			return err
		}
		invitation = inv
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	metrics.InvitationsCreatedTotal.WithLabelValues(invitationType).Inc()
	s.log.WithFields(logrus.Fields{
		"invitation_id": invitation.ID,
		"email":         invitation.Email,
		"type":          invitationType,
		"invited_by":    invitedBy,
		"expires_at":    invitation.ExpiresAt,
	}).Info("创建邀请")

	if s.notifier != nil {
		s.notifier.InvitationCreated(invitation)
	}
	return invitation, nil
}

// mint 生成新的邀请记录与令牌
func (s *InvitationService) mint(now time.Time, email string, identityID *string, invitedBy, invitationType string,
	data []byte, ttl time.Duration) (*models.Invitation, error) {
	id := uuid.New().String()
	expiresAt := now.Add(ttl).Truncate(time.Millisecond)

	tok, err := s.codec.Generate(token.Payload{
		InvitationID: id,
		Email:        email,
		Type:         invitationType,
		ExpiresAt:    expiresAt.UnixMilli(),
		IssuedAt:     now.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	sentAt := now
	return &models.Invitation{
		ID:             id,
		Email:          email,
		IdentityID:     identityID,
		Token:          tok,
		InvitedBy:      invitedBy,
		InvitationType: invitationType,
		InvitationData: datatypes.JSON(data),
		Status:         models.InvitationStatusPending,
		SentAt:         &sentAt,
		ExpiresAt:      expiresAt,
		ResendCount:    0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// resolveTarget 将邀请对象解析为邮箱；提供档案ID时以档案邮箱为准
func (s *InvitationService) resolveTarget(ctx context.Context, target InvitationTarget) (string, *string, error) {
	email := normalizeEmail(target.Email)
	identityID := strings.TrimSpace(target.IdentityID)

	if identityID == "" {
		if err := validateEmail("email", email); err != nil {
			return "", nil, err
		}
		return email, nil, nil
	}

	profile, err := s.directory.FindByID(ctx, identityID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return "", nil, apperrors.NewValidation("identity_id", "校友档案不存在")
		}
		return "", nil, err
	}
	profileEmail := normalizeEmail(profile.Email)
	if email != "" && email != profileEmail {
		return "", nil, apperrors.NewValidation("email", "邮箱与校友档案不一致")
	}
	if err := validateEmail("email", profileEmail); err != nil {
		return "", nil, err
	}
	return profileEmail, &profile.ID, nil
}

// ========== 批量创建 ==========

// BulkInvitationItem 批量创建中的单项
type BulkInvitationItem struct {
	Email          string          `json:"email"`
	IdentityID     string          `json:"identity_id"`
	InvitationData json.RawMessage `json:"invitation_data"`
}

// BulkFailure 批量创建中失败的项
type BulkFailure struct {
	Index      int    `json:"index"`
	Email      string `json:"email,omitempty"`
	IdentityID string `json:"identity_id,omitempty"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// BulkCreateResult 批量创建结果
type BulkCreateResult struct {
	Created           int                  `json:"created"`
	Failed            int                  `json:"failed"`
	Invitations       []*models.Invitation `json:"invitations"`
	FailedInvitations []BulkFailure        `json:"failed_invitations"`
}

// BulkCreate 逐项创建邀请，每项独立事务，单项失败不影响已创建的邀请
func (s *InvitationService) BulkCreate(ctx context.Context, items []BulkInvitationItem, invitedBy, invitationType string,
	ttl time.Duration) *BulkCreateResult {
	result := &BulkCreateResult{
		Invitations:       make([]*models.Invitation, 0, len(items)),
		FailedInvitations: make([]BulkFailure, 0),
	}

	for i, item := range items {
		failure := BulkFailure{Index: i, Email: item.Email, IdentityID: item.IdentityID}

		if err := ctx.Err(); err != nil {
			failure.Kind = string(apperrors.KindInfrastructure)
			failure.Error = "请求已取消"
			result.FailedInvitations = append(result.FailedInvitations, failure)
			continue
		}

		inv, err := s.Create(ctx, InvitationTarget{Email: item.Email, IdentityID: item.IdentityID},
			invitedBy, invitationType, item.InvitationData, ttl)
		if err != nil {
			failure.Kind = string(apperrors.KindInfrastructure)
			failure.Error = "服务暂时不可用，请稍后重试"
			if appErr, ok := apperrors.As(err); ok {
				failure.Kind = string(appErr.Kind)
				failure.Error = appErr.Message
			}
			result.FailedInvitations = append(result.FailedInvitations, failure)
			continue
		}
		result.Invitations = append(result.Invitations, inv)
	}

	result.Created = len(result.Invitations)
	result.Failed = len(result.FailedInvitations)

	s.log.WithFields(logrus.Fields{
		"invited_by": invitedBy,
		"created":    result.Created,
		"failed":     result.Failed,
	}).Info("批量创建邀请")
	return result
}

// ========== 校验 ==========

// Validate 校验邀请令牌（兼容直接传入邀请ID），只读
func (s *InvitationService) Validate(ctx context.Context, tokenOrID string) (*InvitationValidation, error) {
	tokenOrID = strings.TrimSpace(tokenOrID)
	if tokenOrID == "" {
		return nil, apperrors.NewValidation("token", "邀请令牌不能为空")
	}

	inv, err := s.findUsable(ctx, tokenOrID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		reason, err := s.explainUnusable(ctx, tokenOrID)
		if err != nil {
			return nil, err
		}
		return s.invalid(reason), nil
	}

	// 对存储的令牌再做一次签名与过期校验
	verified := s.codec.Verify(inv.Token)
	if !verified.Valid {
		s.log.WithFields(logrus.Fields{
			"invitation_id": inv.ID,
			"reason":        verified.Reason,
		}).Warn("存储的邀请令牌校验失败")
		return s.invalid(verified.Reason), nil
	}
	if verified.Payload.InvitationID != inv.ID || verified.Payload.Email != inv.Email {
		s.log.WithField("invitation_id", inv.ID).Warn("邀请令牌载荷与记录不一致")
		return s.invalid(ReasonMismatch), nil
	}

	matches, err := s.directory.FindByEmail(ctx, inv.Email)
	if err != nil {
		return nil, err
	}

	result := &InvitationValidation{
		IsValid:         true,
		Invitation:      s.ToView(inv),
		MatchCount:      len(matches),
		SuggestedFields: []string{},
	}

	switch len(matches) {
	case 0:
		result.RequiresUserInput = true
		result.SuggestedFields = []string{"first_name", "last_name", "graduation_year", "birth_date"}
	default:
		identity := matches[0]
		result.MatchedIdentity = &identity
		result.CoppaStatus = coppa.ClassifyIn(s.now(), s.dayLocation, identity.BirthDate, identity.GraduationYear)
		result.CanOneClickJoin = len(matches) == 1 && result.CoppaStatus == coppa.StatusFullAccess

		switch {
		case len(matches) > 1:
			// 多条档案时需要用户补充信息以确定身份
			result.RequiresUserInput = true
			result.SuggestedFields = []string{"graduation_year", "birth_date"}
		case result.CoppaStatus == coppa.StatusUnknown:
			result.RequiresUserInput = true
			result.SuggestedFields = []string{"birth_date"}
		case result.CoppaStatus == coppa.StatusRequiresConsent:
			result.RequiresUserInput = true
			result.SuggestedFields = []string{"guardian_email"}
		}
	}

	metrics.InvitationValidationsTotal.WithLabelValues("valid").Inc()
	return result, nil
}

func (s *InvitationService) invalid(reason string) *InvitationValidation {
	metrics.InvitationValidationsTotal.WithLabelValues(reason).Inc()
	return &InvitationValidation{IsValid: false, Reason: reason, SuggestedFields: []string{}}
}

// findUsable 先按令牌查找，再按ID查找（兼容旧链接），只返回 pending 且未过期的邀请
func (s *InvitationService) findUsable(ctx context.Context, tokenOrID string) (*models.Invitation, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	var inv models.Invitation
	err := db.Where("token = ? AND status = ? AND expires_at > ?", tokenOrID, models.InvitationStatusPending, now).
		First(&inv).Error
	if err == nil {
		return &inv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageError(err)
	}

	if _, parseErr := uuid.Parse(tokenOrID); parseErr != nil {
		return nil, nil
	}
	err = db.Where("id = ? AND status = ? AND expires_at > ?", tokenOrID, models.InvitationStatusPending, now).
		First(&inv).Error
	if err == nil {
		return &inv, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, storageError(err)
}

// explainUnusable 给出邀请不可用的具体原因
func (s *InvitationService) explainUnusable(ctx context.Context, tokenOrID string) (string, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.WithContext(ctx).Where("token = ?", tokenOrID)
	if _, err := uuid.Parse(tokenOrID); err == nil {
		query = s.db.WithContext(ctx).Where("token = ? OR id = ?", tokenOrID, tokenOrID)
	}

	var inv models.Invitation
	if err := query.First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 未入库的令牌按令牌自身的问题说明
			if res := s.codec.Verify(tokenOrID); !res.Valid && res.Reason != token.ReasonMalformed {
				return res.Reason, nil
			}
			return ReasonNotFound, nil
		}
		return "", storageError(err)
	}

	switch inv.Status {
	case models.InvitationStatusRevoked:
		return ReasonRevoked, nil
	case models.InvitationStatusAccepted:
		return ReasonAccepted, nil
	}
	return token.ReasonExpired, nil
}

// ========== 重发 / 撤销 / 更新 ==========

// Resend 重新签发令牌并延长有效期，旧令牌随即失效
func (s *InvitationService) Resend(ctx context.Context, id string) (*models.Invitation, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var invitation models.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvitation(tx, id, &invitation); err != nil {
			return err
		}
		if invitation.Status != models.InvitationStatusPending {
			return apperrors.NewBusinessRule("只能重发待处理的邀请")
		}

		now := s.now().UTC()
		issuedAt := now.UnixMilli()
		// 保证新令牌的签发时间严格晚于旧令牌，令牌字符串必然不同
		if prev, ok := s.codec.Decode(invitation.Token); ok && issuedAt <= prev.IssuedAt {
			issuedAt = prev.IssuedAt + 1
		}
		expiresAt := now.Add(s.resendTTL(&invitation)).Truncate(time.Millisecond)

		newToken, err := s.codec.Generate(token.Payload{
			InvitationID: invitation.ID,
			Email:        invitation.Email,
			Type:         invitation.InvitationType,
			ExpiresAt:    expiresAt.UnixMilli(),
			IssuedAt:     issuedAt,
		})
		if err != nil {
			return err
		}

		res := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ? AND token = ?", invitation.ID, models.InvitationStatusPending, invitation.Token).
			Updates(map[string]interface{}{
				"token":          newToken,
				"expires_at":     expiresAt,
				"resend_count":   gorm.Expr("resend_count + 1"),
				"last_resent_at": now,
				"sent_at":        now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperrors.NewConflict("邀请已被并发修改，请重试")
		}
		return tx.Where("id = ?", invitation.ID).First(&invitation).Error
	})
	if err != nil {
		return nil, storageError(err)
	}

	metrics.InvitationTransitionsTotal.WithLabelValues("resend").Inc()
	s.log.WithFields(logrus.Fields{
		"invitation_id": invitation.ID,
		"resend_count":  invitation.ResendCount,
		"expires_at":    invitation.ExpiresAt,
	}).Info("重发邀请")

	if s.notifier != nil {
		s.notifier.InvitationResent(&invitation)
	}
	return &invitation, nil
}

// Revoke 撤销待处理的邀请，撤销后不可恢复
func (s *InvitationService) Revoke(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitation models.Invitation
		if err := lockInvitation(tx, id, &invitation); err != nil {
			return err
		}
		if invitation.Status != models.InvitationStatusPending {
			return apperrors.NewBusinessRule("只能撤销待处理的邀请")
		}
		return tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", id, models.InvitationStatusPending).
			Updates(map[string]interface{}{
				"status":     models.InvitationStatusRevoked,
				"updated_at": s.now().UTC(),
			}).Error
	})
	if err != nil {
		return storageError(err)
	}

	metrics.InvitationTransitionsTotal.WithLabelValues("revoke").Inc()
	s.log.WithField("invitation_id", id).Info("撤销邀请")
	return nil
}

// Update 部分更新邀请，供注册完成流程记录接受状态
func (s *InvitationService) Update(ctx context.Context, id string, fields UpdateInvitationFields) (*models.Invitation, error) {
	updates, err := s.buildUpdates(fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var invitation models.Invitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvitation(tx, id, &invitation); err != nil {
			return err
		}

		if fields.Status != nil && *fields.Status != invitation.Status {
			if invitation.IsTerminal() {
				return apperrors.NewBusinessRule("邀请已处于终态，不能修改状态")
			}
			if *fields.Status == models.InvitationStatusPending {
				return apperrors.NewBusinessRule("不能将邀请恢复为待处理")
			}
			if *fields.Status == models.InvitationStatusAccepted {
				now := s.now().UTC()
				if _, ok := updates["is_used"]; !ok {
					updates["is_used"] = true
				}
				if _, ok := updates["used_at"]; !ok {
					updates["used_at"] = now
				}
			}
		}
		updates["updated_at"] = s.now().UTC()

		if err := tx.Model(&models.Invitation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.NewConflict("该邮箱已有待处理的邀请")
			}
			return err
		}
		return tx.Where("id = ?", id).First(&invitation).Error
	})
	if err != nil {
		return nil, storageError(err)
	}

	if fields.Status != nil {
		metrics.InvitationTransitionsTotal.WithLabelValues(*fields.Status).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"invitation_id": id,
		"status":        invitation.Status,
	}).Info("更新邀请")
	return &invitation, nil
}

// Accept 注册完成后标记邀请为已接受
func (s *InvitationService) Accept(ctx context.Context, id, acceptedBy string, identityID *string) (*models.Invitation, error) {
	status := models.InvitationStatusAccepted
	fields := UpdateInvitationFields{Status: &status, AcceptedBy: &acceptedBy, IdentityID: identityID}
	return s.Update(ctx, id, fields)
}

func (s *InvitationService) buildUpdates(fields UpdateInvitationFields) (map[string]interface{}, error) {
	updates := make(map[string]interface{})
	if fields.Status != nil {
		if !models.IsValidInvitationStatus(*fields.Status) {
			return nil, apperrors.NewValidation("status", "无效的邀请状态")
		}
		updates["status"] = *fields.Status
	}
	if fields.IsUsed != nil {
		updates["is_used"] = *fields.IsUsed
	}
	if fields.UsedAt != nil {
		updates["used_at"] = fields.UsedAt.UTC()
	}
	if fields.AcceptedBy != nil {
		updates["accepted_by"] = strings.TrimSpace(*fields.AcceptedBy)
	}
	if fields.IdentityID != nil {
		// 空白视为解除关联，写 NULL 以免触发部分唯一索引
		if id := strings.TrimSpace(*fields.IdentityID); id != "" {
			updates["identity_id"] = id
		} else {
			updates["identity_id"] = nil
		}
	}
	if fields.SentAt != nil {
		updates["sent_at"] = fields.SentAt.UTC()
	}
	if fields.ResendCount != nil {
		if *fields.ResendCount < 0 {
			return nil, apperrors.NewValidation("resend_count", "重发次数不能为负数")
		}
		updates["resend_count"] = *fields.ResendCount
	}
	if fields.LastResentAt != nil {
		updates["last_resent_at"] = fields.LastResentAt.UTC()
	}
	if len(updates) == 0 {
		return nil, apperrors.NewValidation("fields", "至少需要一个更新字段")
	}
	return updates, nil
}

// lockInvitation 在事务中锁定并读取邀请
// resendTTL 沿用邀请原有的有效期长度，推算不出时退回默认值
func (s *InvitationService) resendTTL(inv *models.Invitation) time.Duration {
	if inv.SentAt != nil {
		if ttl := inv.ExpiresAt.Sub(*inv.SentAt); ttl > 0 {
			return ttl
		}
	}
	if ttl := inv.ExpiresAt.Sub(inv.CreatedAt); ttl > 0 {
		return ttl
	}
	return s.defaultTTL
}

func lockInvitation(tx *gorm.DB, id string, out *models.Invitation) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFound("邀请不存在")
	}
	return err
}

// ========== 查询 ==========

// Get 根据ID获取邀请
func (s *InvitationService) Get(ctx context.Context, id string) (*models.Invitation, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var inv models.Invitation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("邀请不存在")
		}
		return nil, storageError(err)
	}
	return &inv, nil
}

// List 分页查询邀请
func (s *InvitationService) List(ctx context.Context, page, pageSize int, status string) (*InvitationPage, error) {
	if status != "" && !models.IsValidInvitationStatus(status) {
		return nil, apperrors.NewValidation("status", "无效的邀请状态")
	}
	params := pagination.Normalize(page, pageSize)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.WithContext(ctx).Model(&models.Invitation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, storageError(err)
	}

	var invitations []models.Invitation
	if err := query.Order("created_at DESC").
		Scopes(params.Scope()).
		Find(&invitations).Error; err != nil {
		return nil, storageError(err)
	}

	result := &InvitationPage{
		Data:       make([]*InvitationView, 0, len(invitations)),
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: params.TotalPages(total),
	}
	for i := range invitations {
		result.Data = append(result.Data, s.ToView(&invitations[i]))
	}
	return result, nil
}

// ToView 转换为响应格式，损坏的附加数据降级为空对象
func (s *InvitationService) ToView(inv *models.Invitation) *InvitationView {
	data, ok := models.ParseInvitationData(inv.InvitationType, inv.InvitationData)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"invitation_id": inv.ID,
			"type":          inv.InvitationType,
		}).Warn("邀请附加数据无法解析，已按空数据返回")
	}
	return &InvitationView{Invitation: inv, InvitationData: data}
}

// ExpireStale 将已过期的 pending 邀请标记为 expired
func (s *InvitationService) ExpireStale(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationStatusPending, now).
		Updates(map[string]interface{}{
			"status":     models.InvitationStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, storageError(result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.InvitationTransitionsTotal.WithLabelValues("expire").Add(float64(result.RowsAffected))
		s.log.Infof("标记过期邀请 %d 条", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
