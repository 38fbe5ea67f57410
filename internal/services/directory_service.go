package services

import (
	"context"
	"errors"
	"time"

	"alumnigate/internal/models"
	apperrors "alumnigate/pkg/errors"

	"gorm.io/gorm"
)

// DirectoryStore 校友档案查询，只读
type DirectoryStore interface {
	FindByID(ctx context.Context, id string) (*models.AlumniProfile, error)
	FindByEmail(ctx context.Context, email string) ([]models.AlumniProfile, error)
}

// DirectoryService 基于数据库的校友档案查询
type DirectoryService struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewDirectoryService 创建档案查询服务
func NewDirectoryService(db *gorm.DB, timeout time.Duration) *DirectoryService {
	return &DirectoryService{db: db, timeout: timeout}
}

// FindByID 根据档案ID查询
func (s *DirectoryService) FindByID(ctx context.Context, id string) (*models.AlumniProfile, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var profile models.AlumniProfile
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("校友档案不存在")
		}
		return nil, storageError(err)
	}
	return &profile, nil
}

// FindByEmail 根据邮箱查询，可能返回多条
func (s *DirectoryService) FindByEmail(ctx context.Context, email string) ([]models.AlumniProfile, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var profiles []models.AlumniProfile
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", normalizeEmail(email)).
		Order("created_at ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, storageError(err)
	}
	return profiles, nil
}
