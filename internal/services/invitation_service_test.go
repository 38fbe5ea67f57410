package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"alumnigate/internal/models"
	"alumnigate/pkg/coppa"
	apperrors "alumnigate/pkg/errors"
	"alumnigate/pkg/logger"
	"alumnigate/pkg/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const week = 7 * 24 * time.Hour

type invitationFixture struct {
	db       *gorm.DB
	svc      *InvitationService
	codec    *token.Codec
	notifier *recordingNotifier
}

func newInvitationFixture(t *testing.T) *invitationFixture {
	t.Helper()
	db := newTestDB(t)
	codec := newTestCodec(t)
	notifier := &recordingNotifier{}
	svc := NewInvitationService(db, codec, NewDirectoryService(db, 5*time.Second), notifier,
		logger.Discard(), 5*time.Second, week)
	return &invitationFixture{db: db, svc: svc, codec: codec, notifier: notifier}
}

func (f *invitationFixture) create(t *testing.T, email string) *models.Invitation {
	t.Helper()
	inv, err := f.svc.Create(context.Background(), InvitationTarget{Email: email}, "admin-1",
		models.InvitationTypeAlumni, nil, week)
	require.NoError(t, err)
	return inv
}

func (f *invitationFixture) reload(t *testing.T, id string) *models.Invitation {
	t.Helper()
	var inv models.Invitation
	require.NoError(t, f.db.Where("id = ?", id).First(&inv).Error)
	return &inv
}

func requireKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, kind, appErr.Kind, appErr.Message)
}

func TestCreateInvitation(t *testing.T) {
	f := newInvitationFixture(t)
	before := time.Now()

	data := json.RawMessage(`{"first_name":"Ada","graduation_year":2010}`)
	inv, err := f.svc.Create(context.Background(), InvitationTarget{Email: " New@X.com "}, "admin-1",
		models.InvitationTypeAlumni, data, 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "new@x.com", inv.Email)
	assert.Equal(t, models.InvitationStatusPending, inv.Status)
	assert.Equal(t, 0, inv.ResendCount)
	assert.False(t, inv.IsUsed)
	assert.WithinDuration(t, before.Add(week), inv.ExpiresAt, 5*time.Second)
	require.NotNil(t, inv.SentAt)

	res := f.codec.Verify(inv.Token)
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, inv.ID, res.Payload.InvitationID)
	assert.Equal(t, inv.Email, res.Payload.Email)
	assert.Equal(t, models.InvitationTypeAlumni, res.Payload.Type)
	assert.Equal(t, inv.ExpiresAt.UnixMilli(), res.Payload.ExpiresAt)

	stored := f.reload(t, inv.ID)
	assert.Equal(t, inv.Token, stored.Token)
	assert.JSONEq(t, `{"first_name":"Ada","graduation_year":2010}`, string(stored.InvitationData))
	assert.Equal(t, []string{inv.ID}, f.notifier.created)
}

func TestCreateUsesDefaultTTL(t *testing.T) {
	f := newInvitationFixture(t)
	inv, err := f.svc.Create(context.Background(), InvitationTarget{Email: "ttl@x.com"}, "admin-1",
		models.InvitationTypeAlumni, nil, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(week), inv.ExpiresAt, 5*time.Second)
}

func TestCreateRejectsDuplicatePending(t *testing.T) {
	f := newInvitationFixture(t)
	f.create(t, "dup@x.com")

	_, err := f.svc.Create(context.Background(), InvitationTarget{Email: "DUP@x.com"}, "admin-2",
		models.InvitationTypeAlumni, nil, week)
	requireKind(t, err, apperrors.KindConflict)
	assert.Len(t, f.notifier.created, 1)
}

func TestConcurrentCreateKeepsSinglePending(t *testing.T) {
	f := newInvitationFixture(t)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), InvitationTarget{Email: "race@x.com"}, "admin-1",
				models.InvitationTypeAlumni, nil, week)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if apperrors.IsKind(err, apperrors.KindConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, conflicts)

	var pending int64
	require.NoError(t, f.db.Model(&models.Invitation{}).
		Where("email = ? AND status = ?", "race@x.com", models.InvitationStatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestPendingUniqueIndexRejectsSecondRow(t *testing.T) {
	f := newInvitationFixture(t)
	first := f.create(t, "index@x.com")

	second := *first
	second.ID = uuid.New().String()
	second.Token = "other-token"
	err := f.db.Create(&second).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// 非 pending 的历史记录不受唯一约束
	second.Status = models.InvitationStatusRevoked
	assert.NoError(t, f.db.Create(&second).Error)
}

func TestCreateReplacesExpiredPending(t *testing.T) {
	f := newInvitationFixture(t)
	old := f.create(t, "stale@x.com")
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("id = ?", old.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error)

	fresh := f.create(t, "stale@x.com")
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, models.InvitationStatusExpired, f.reload(t, old.ID).Status)
}

func TestCreateByIdentityID(t *testing.T) {
	f := newInvitationFixture(t)
	profile := seedProfile(t, f.db, "Linked@X.com", yearsAgo(30), nil)

	inv, err := f.svc.Create(context.Background(), InvitationTarget{IdentityID: profile.ID}, "admin-1",
		models.InvitationTypeAlumni, nil, week)
	require.NoError(t, err)
	assert.Equal(t, "linked@x.com", inv.Email)
	require.NotNil(t, inv.IdentityID)
	assert.Equal(t, profile.ID, *inv.IdentityID)

	_, err = f.svc.Create(context.Background(), InvitationTarget{IdentityID: profile.ID}, "admin-1",
		models.InvitationTypeAlumni, nil, week)
	requireKind(t, err, apperrors.KindConflict)

	_, err = f.svc.Create(context.Background(), InvitationTarget{IdentityID: uuid.New().String()}, "admin-1",
		models.InvitationTypeAlumni, nil, week)
	requireKind(t, err, apperrors.KindValidation)

	_, err = f.svc.Create(context.Background(), InvitationTarget{Email: "other@x.com", IdentityID: profile.ID}, "admin-1",
		models.InvitationTypeAlumni, nil, week)
	requireKind(t, err, apperrors.KindValidation)
}

func TestCreateValidation(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		email     string
		invitedBy string
		typ       string
		data      string
		field     string
	}{
		{"missing email", "", "admin-1", models.InvitationTypeAlumni, "", "email"},
		{"bad email", "not-an-email", "admin-1", models.InvitationTypeAlumni, "", "email"},
		{"missing inviter", "a@x.com", " ", models.InvitationTypeAlumni, "", "invited_by"},
		{"unknown type", "a@x.com", "admin-1", "vip", "", "invitation_type"},
		{"unknown field", "a@x.com", "admin-1", models.InvitationTypeAlumni, `{"nickname":"x"}`, "invitation_data"},
		{"admin without role", "a@x.com", "admin-1", models.InvitationTypeAdmin, `{}`, "role"},
		{"bad graduation year", "a@x.com", "admin-1", models.InvitationTypeAlumni, `{"graduation_year":1800}`, "graduation_year"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, InvitationTarget{Email: tc.email}, tc.invitedBy, tc.typ, json.RawMessage(tc.data), week)
			requireKind(t, err, apperrors.KindValidation)
			appErr, _ := apperrors.As(err)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Invitation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestValidateWithoutDirectoryMatch(t *testing.T) {
	f := newInvitationFixture(t)
	inv := f.create(t, "new@x.com")

	res, err := f.svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, inv.ID, res.Invitation.ID)
	assert.Nil(t, res.MatchedIdentity)
	assert.Zero(t, res.MatchCount)
	assert.False(t, res.CanOneClickJoin)
	assert.True(t, res.RequiresUserInput)
	assert.ElementsMatch(t, []string{"first_name", "last_name", "graduation_year", "birth_date"}, res.SuggestedFields)
}

func TestValidateOneClickJoin(t *testing.T) {
	f := newInvitationFixture(t)
	profile := seedProfile(t, f.db, "adult@x.com", yearsAgo(19), nil)
	inv := f.create(t, "adult@x.com")

	res, err := f.svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.NotNil(t, res.MatchedIdentity)
	assert.Equal(t, profile.ID, res.MatchedIdentity.ID)
	assert.Equal(t, coppa.StatusFullAccess, res.CoppaStatus)
	assert.True(t, res.CanOneClickJoin)
	assert.False(t, res.RequiresUserInput)
	assert.Empty(t, res.SuggestedFields)
}

func TestValidateCoppaOutcomes(t *testing.T) {
	cases := []struct {
		name      string
		birth     *time.Time
		gradYear  *int
		status    coppa.Status
		suggested []string
	}{
		{"minor needs consent", yearsAgo(16), nil, coppa.StatusRequiresConsent, []string{"guardian_email"}},
		{"child blocked", yearsAgo(13), nil, coppa.StatusBlocked, []string{}},
		{"unknown age", nil, nil, coppa.StatusUnknown, []string{"birth_date"}},
		{"graduation year estimate", nil, intPtr(time.Now().Year() - 5), coppa.StatusFullAccess, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newInvitationFixture(t)
			seedProfile(t, f.db, "member@x.com", tc.birth, tc.gradYear)
			inv := f.create(t, "member@x.com")

			res, err := f.svc.Validate(context.Background(), inv.Token)
			require.NoError(t, err)
			assert.True(t, res.IsValid)
			assert.Equal(t, tc.status, res.CoppaStatus)
			assert.Equal(t, tc.status == coppa.StatusFullAccess, res.CanOneClickJoin)
			assert.Equal(t, tc.suggested, res.SuggestedFields)
		})
	}
}

func TestValidateAgeUsesCalendarDay(t *testing.T) {
	f := newInvitationFixture(t)
	birth := time.Date(2012, 6, 15, 0, 0, 0, 0, time.UTC)
	seedProfile(t, f.db, "teen@x.com", &birth, nil)
	inv := f.create(t, "teen@x.com")
	pacific := time.FixedZone("PDT", -7*60*60)

	// 服务器时钟在西半球，14 岁生日前一天
	f.svc.now = func() time.Time { return time.Date(2026, 6, 14, 10, 0, 0, 0, pacific) }
	res, err := f.svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, coppa.StatusBlocked, res.CoppaStatus)

	// UTC 已是生日当天
	f.svc.now = func() time.Time { return time.Date(2026, 6, 14, 22, 0, 0, 0, pacific) }
	res, err = f.svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, coppa.StatusRequiresConsent, res.CoppaStatus)

	// 按洛杉矶日历仍是生日前一天
	f.svc.WithDayLocation(pacific)
	res, err = f.svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, coppa.StatusBlocked, res.CoppaStatus)
	assert.False(t, res.CanOneClickJoin)
}

func TestValidateMultipleMatches(t *testing.T) {
	f := newInvitationFixture(t)
	seedProfile(t, f.db, "twin@x.com", yearsAgo(30), nil)
	seedProfile(t, f.db, "twin@x.com", yearsAgo(31), nil)
	inv := f.create(t, "twin@x.com")

	res, err := f.svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, 2, res.MatchCount)
	assert.False(t, res.CanOneClickJoin)
	assert.True(t, res.RequiresUserInput)
	assert.Equal(t, []string{"graduation_year", "birth_date"}, res.SuggestedFields)
}

func TestValidateByInvitationID(t *testing.T) {
	f := newInvitationFixture(t)
	inv := f.create(t, "legacy@x.com")

	res, err := f.svc.Validate(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, inv.Token, res.Invitation.Token)
}

func TestValidateInvalidCases(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	revoked := f.create(t, "revoked@x.com")
	require.NoError(t, f.svc.Revoke(ctx, revoked.ID))

	expired := f.create(t, "expired@x.com")
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("id = ?", expired.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	accepted := f.create(t, "accepted@x.com")
	_, err := f.svc.Accept(ctx, accepted.ID, "user-9", nil)
	require.NoError(t, err)

	cases := map[string]string{
		revoked.Token:       ReasonRevoked,
		expired.Token:       token.ReasonExpired,
		accepted.ID:         ReasonAccepted,
		"garbage":           ReasonNotFound,
		uuid.New().String(): ReasonNotFound,
	}
	for input, reason := range cases {
		res, err := f.svc.Validate(ctx, input)
		require.NoError(t, err, input)
		assert.False(t, res.IsValid, input)
		assert.Equal(t, reason, res.Reason, input)
		assert.Nil(t, res.Invitation)
	}

	_, err = f.svc.Validate(ctx, "  ")
	requireKind(t, err, apperrors.KindValidation)
}

func TestValidateRejectsTamperedStoredToken(t *testing.T) {
	f := newInvitationFixture(t)
	inv := f.create(t, "tamper@x.com")

	other, err := token.NewCodec("another-secret")
	require.NoError(t, err)
	forged, err := other.Generate(token.Payload{
		InvitationID: inv.ID,
		Email:        inv.Email,
		Type:         inv.InvitationType,
		ExpiresAt:    inv.ExpiresAt.UnixMilli(),
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("id = ?", inv.ID).Update("token", forged).Error)

	res, err := f.svc.Validate(context.Background(), forged)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, token.ReasonBadSignature, res.Reason)
}

func TestResendRotatesToken(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()
	inv := f.create(t, "resend@x.com")

	for i := 1; i <= 2; i++ {
		prev := f.reload(t, inv.ID)
		updated, err := f.svc.Resend(ctx, inv.ID)
		require.NoError(t, err)

		assert.NotEqual(t, prev.Token, updated.Token)
		assert.Equal(t, prev.ResendCount+1, updated.ResendCount)
		assert.Equal(t, models.InvitationStatusPending, updated.Status)
		require.NotNil(t, updated.LastResentAt)
		assert.False(t, updated.ExpiresAt.Before(prev.ExpiresAt))

		old, err := f.svc.Validate(ctx, prev.Token)
		require.NoError(t, err)
		assert.False(t, old.IsValid)

		current, err := f.svc.Validate(ctx, updated.Token)
		require.NoError(t, err)
		assert.True(t, current.IsValid)
	}
	assert.Equal(t, []string{inv.ID, inv.ID}, f.notifier.resent)
}

func TestResendKeepsOriginalTTL(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()
	month := 30 * 24 * time.Hour
	inv, err := f.svc.Create(ctx, InvitationTarget{Email: "longer@x.com"}, "admin-1",
		models.InvitationTypeAlumni, nil, month)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		updated, err := f.svc.Resend(ctx, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.SentAt)
		assert.WithinDuration(t, time.Now().Add(month), updated.ExpiresAt, 5*time.Second)
		assert.WithinDuration(t, updated.SentAt.Add(month), updated.ExpiresAt, time.Second)
	}
}

func TestRevokeAndResendRejectNonPending(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	accepted := f.create(t, "done@x.com")
	_, err := f.svc.Accept(ctx, accepted.ID, "user-1", nil)
	require.NoError(t, err)

	requireKind(t, f.svc.Revoke(ctx, accepted.ID), apperrors.KindBusinessRule)
	_, err = f.svc.Resend(ctx, accepted.ID)
	requireKind(t, err, apperrors.KindBusinessRule)

	revoked := f.create(t, "gone@x.com")
	require.NoError(t, f.svc.Revoke(ctx, revoked.ID))
	assert.Equal(t, models.InvitationStatusRevoked, f.reload(t, revoked.ID).Status)
	requireKind(t, f.svc.Revoke(ctx, revoked.ID), apperrors.KindBusinessRule)
	_, err = f.svc.Resend(ctx, revoked.ID)
	requireKind(t, err, apperrors.KindBusinessRule)

	missing := uuid.New().String()
	requireKind(t, f.svc.Revoke(ctx, missing), apperrors.KindNotFound)
	_, err = f.svc.Resend(ctx, missing)
	requireKind(t, err, apperrors.KindNotFound)
}

func TestRevokedTargetCanBeInvitedAgain(t *testing.T) {
	f := newInvitationFixture(t)
	first := f.create(t, "again@x.com")
	require.NoError(t, f.svc.Revoke(context.Background(), first.ID))

	second := f.create(t, "again@x.com")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUpdateInvitation(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()
	inv := f.create(t, "update@x.com")

	_, err := f.svc.Update(ctx, inv.ID, UpdateInvitationFields{})
	requireKind(t, err, apperrors.KindValidation)

	_, err = f.svc.Update(ctx, inv.ID, UpdateInvitationFields{Status: strPtr("archived")})
	requireKind(t, err, apperrors.KindValidation)

	negative := -1
	_, err = f.svc.Update(ctx, inv.ID, UpdateInvitationFields{ResendCount: &negative})
	requireKind(t, err, apperrors.KindValidation)

	_, err = f.svc.Update(ctx, uuid.New().String(), UpdateInvitationFields{AcceptedBy: strPtr("x")})
	requireKind(t, err, apperrors.KindNotFound)

	sent := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	updated, err := f.svc.Update(ctx, inv.ID, UpdateInvitationFields{SentAt: &sent})
	require.NoError(t, err)
	require.NotNil(t, updated.SentAt)
	assert.True(t, sent.Equal(*updated.SentAt))
	assert.Equal(t, models.InvitationStatusPending, updated.Status)

	accepted, err := f.svc.Update(ctx, inv.ID, UpdateInvitationFields{
		Status:     strPtr(models.InvitationStatusAccepted),
		AcceptedBy: strPtr("user-42"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusAccepted, accepted.Status)
	assert.True(t, accepted.IsUsed)
	require.NotNil(t, accepted.UsedAt)
	require.NotNil(t, accepted.AcceptedBy)
	assert.Equal(t, "user-42", *accepted.AcceptedBy)

	_, err = f.svc.Update(ctx, inv.ID, UpdateInvitationFields{Status: strPtr(models.InvitationStatusPending)})
	requireKind(t, err, apperrors.KindBusinessRule)
	_, err = f.svc.Update(ctx, inv.ID, UpdateInvitationFields{Status: strPtr(models.InvitationStatusRevoked)})
	requireKind(t, err, apperrors.KindBusinessRule)
}

func TestUpdateBlankIdentityClearsLink(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()
	first := f.create(t, "first@x.com")
	second := f.create(t, "second@x.com")

	linked, err := f.svc.Update(ctx, first.ID, UpdateInvitationFields{IdentityID: strPtr(uuid.New().String())})
	require.NoError(t, err)
	require.NotNil(t, linked.IdentityID)

	// 两个 pending 邀请都清空关联，不能互相撞上唯一索引
	for _, id := range []string{first.ID, second.ID} {
		_, err := f.svc.Update(ctx, id, UpdateInvitationFields{IdentityID: strPtr("  ")})
		require.NoError(t, err)
		assert.Nil(t, f.reload(t, id).IdentityID)
	}
}

func TestAcceptLinksIdentity(t *testing.T) {
	f := newInvitationFixture(t)
	inv := f.create(t, "join@x.com")
	identity := uuid.New().String()

	accepted, err := f.svc.Accept(context.Background(), inv.ID, "user-7", &identity)
	require.NoError(t, err)
	require.NotNil(t, accepted.IdentityID)
	assert.Equal(t, identity, *accepted.IdentityID)
	assert.True(t, accepted.IsUsed)
}

func TestListInvitations(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		f.create(t, email)
	}
	revoked := f.create(t, "d@x.com")
	require.NoError(t, f.svc.Revoke(ctx, revoked.ID))

	page, err := f.svc.List(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 2, page.TotalPages)

	page, err = f.svc.List(ctx, 1, 10, models.InvitationStatusRevoked)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, revoked.ID, page.Data[0].ID)

	_, err = f.svc.List(ctx, 1, 10, "bogus")
	requireKind(t, err, apperrors.KindValidation)
}

func TestMalformedInvitationDataDegrades(t *testing.T) {
	f := newInvitationFixture(t)
	inv := f.create(t, "broken@x.com")
	require.NoError(t, f.db.Exec("UPDATE invitations SET invitation_data = ? WHERE id = ?", `{"first_name": 12`, inv.ID).Error)

	page, err := f.svc.List(context.Background(), 1, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, &models.AlumniInvitationData{}, page.Data[0].InvitationData)

	raw, err := json.Marshal(page.Data[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"invitation_data":{}`)
}

func TestBulkCreateIsolatesFailures(t *testing.T) {
	f := newInvitationFixture(t)
	f.create(t, "taken@x.com")

	items := []BulkInvitationItem{
		{Email: "one@x.com"},
		{Email: "taken@x.com"},
		{Email: "two@x.com", InvitationData: json.RawMessage(`{"first_name":"Two"}`)},
	}
	result := f.svc.BulkCreate(context.Background(), items, "admin-1", models.InvitationTypeAlumni, week)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Invitations, 2)
	require.Len(t, result.FailedInvitations, 1)
	assert.Equal(t, 1, result.FailedInvitations[0].Index)
	assert.Equal(t, "taken@x.com", result.FailedInvitations[0].Email)
	assert.Equal(t, string(apperrors.KindConflict), result.FailedInvitations[0].Kind)

	var pending int64
	require.NoError(t, f.db.Model(&models.Invitation{}).
		Where("status = ?", models.InvitationStatusPending).Count(&pending).Error)
	assert.Equal(t, int64(3), pending)
}

func TestExpireStale(t *testing.T) {
	f := newInvitationFixture(t)
	live := f.create(t, "live@x.com")
	old := f.create(t, "old@x.com")
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("id = ?", old.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error)

	n, err := f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, models.InvitationStatusExpired, f.reload(t, old.ID).Status)
	assert.Equal(t, models.InvitationStatusPending, f.reload(t, live.ID).Status)

	n, err = f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStorageFailureIsInfrastructure(t *testing.T) {
	f := newInvitationFixture(t)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.svc.Create(context.Background(), InvitationTarget{Email: "down@x.com"}, "admin-1",
		models.InvitationTypeAlumni, nil, week)
	requireKind(t, err, apperrors.KindInfrastructure)
	appErr, _ := apperrors.As(err)
	assert.True(t, appErr.Retryable())
	assert.NotContains(t, appErr.Message, "sql")
}
