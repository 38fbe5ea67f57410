package database

import (
	"alumnigate/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Starting database migration...")

	err := db.AutoMigrate(
		&models.AlumniProfile{},
		&models.Invitation{},
		&models.OTPToken{},
	)
	if err != nil {
		log.Errorf("Database migration failed: %v", err)
		return err
	}

	log.Info("Database migration completed successfully")
	return nil
}
