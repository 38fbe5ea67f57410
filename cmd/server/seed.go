package main

import (
	"fmt"
	"time"

	"alumnigate/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// seedDemoProfiles 写入演示用校友档案，已存在的档案跳过
func seedDemoProfiles(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Starting demo profile seeding...")

	year := time.Now().UTC().Year()
	profiles := []models.AlumniProfile{
		// 成年校友，可一键加入
		{ID: "00000000-0000-4000-8000-000000000001", Email: "ada@alumni.example", FirstName: "Ada", LastName: "Lovelace",
			BirthDate: birthDate(year - 30), GraduationYear: intPtr(year - 8)},
		// 需要监护人同意
		{ID: "00000000-0000-4000-8000-000000000002", Email: "teen@alumni.example", FirstName: "Tom", LastName: "Young",
			BirthDate: birthDate(year - 15)},
		// 同一邮箱两个档案，需要补充信息
		{ID: "00000000-0000-4000-8000-000000000003", Email: "shared@alumni.example", FirstName: "Sam", LastName: "Lee",
			GraduationYear: intPtr(year - 20)},
		{ID: "00000000-0000-4000-8000-000000000004", Email: "shared@alumni.example", FirstName: "Sue", LastName: "Lee",
			GraduationYear: intPtr(year - 18)},
	}

	created := 0
	for i := range profiles {
		result := db.Where("id = ?", profiles[i].ID).FirstOrCreate(&profiles[i])
		if result.Error != nil {
			return fmt.Errorf("写入校友档案 %s 失败: %v", profiles[i].Email, result.Error)
		}
		created += int(result.RowsAffected)
	}

	log.Infof("Demo profile seeding completed, %d created", created)
	return nil
}

func birthDate(year int) *time.Time {
	t := time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func intPtr(v int) *int {
	return &v
}
