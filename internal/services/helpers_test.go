package services

import (
	"sync"
	"testing"
	"time"

	"alumnigate/internal/database"
	"alumnigate/internal/models"
	"alumnigate/pkg/logger"
	"alumnigate/pkg/token"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存库，单连接使事务串行执行
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, logger.Discard()))
	return db
}

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	c, err := token.NewCodec("test-invitation-secret")
	require.NoError(t, err)
	return c
}

func seedProfile(t *testing.T, db *gorm.DB, email string, birth *time.Time, gradYear *int) *models.AlumniProfile {
	t.Helper()
	p := &models.AlumniProfile{
		ID:             uuid.New().String(),
		Email:          email,
		FirstName:      "Test",
		LastName:       "Alumnus",
		BirthDate:      birth,
		GraduationYear: gradYear,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func yearsAgo(n int) *time.Time {
	t := time.Now().UTC().AddDate(-n, 0, -1)
	return &t
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// recordingNotifier 记录收到的通知
type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	resent  []string
}

func (n *recordingNotifier) InvitationCreated(inv *models.Invitation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, inv.ID)
}

func (n *recordingNotifier) InvitationResent(inv *models.Invitation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resent = append(n.resent, inv.ID)
}
