package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/service/maillog"
	"github.com/ignite/mailguard/internal/service/validation"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestValidationRepo_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewValidationRepo(openTestDB(t))

	checked := time.Now().UTC().Truncate(time.Second)
	v := &domain.Validation{Email: "a@x.com", Domain: "x.com", Status: domain.StatusValid, Reason: "All checks passed", StatusCode: domain.StringPtr("200"), LastCheckedAt: checked}
	require.NoError(t, repo.Upsert(ctx, v))
	require.NotZero(t, v.ID)
	firstID := v.ID

	v2 := &domain.Validation{Email: "a@x.com", Domain: "x.com", Status: domain.StatusBlocked, Reason: "spam", LastCheckedAt: checked}
	require.NoError(t, repo.Upsert(ctx, v2))
	assert.Equal(t, firstID, v2.ID)

	got, err := repo.Find(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, got.Status)
	assert.Nil(t, got.StatusCode)
	assert.True(t, got.LastCheckedAt.Equal(checked))

	_, err = repo.Find(ctx, "missing@x.com")
	assert.ErrorIs(t, err, validation.ErrNotFound)
}

func TestValidationRepo_UpsertIsLastWriteWinsOnCheckTime(t *testing.T) {
	ctx := context.Background()
	repo := NewValidationRepo(openTestDB(t))

	newer := time.Now().UTC().Truncate(time.Second)
	older := newer.Add(-time.Minute)
	require.NoError(t, repo.Upsert(ctx, &domain.Validation{Email: "a@x.com", Domain: "x.com", Status: domain.StatusInvalid, Reason: "Email bounced", StatusCode: domain.StringPtr("550"), LastCheckedAt: newer}))

	late := &domain.Validation{Email: "a@x.com", Domain: "x.com", Status: domain.StatusValid, Reason: "All checks passed", StatusCode: domain.StringPtr("200"), LastCheckedAt: older}
	require.NoError(t, repo.Upsert(ctx, late))
	assert.Equal(t, domain.StatusInvalid, late.Status)

	got, err := repo.Find(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, got.Status)
	assert.Equal(t, "550", got.Code())
	assert.True(t, got.LastCheckedAt.Equal(newer))
}

func TestValidationRepo_MatchAndFindMany(t *testing.T) {
	ctx := context.Background()
	repo := NewValidationRepo(openTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, &domain.Validation{Email: "bad@spam.com", Domain: "spam.com", Status: domain.StatusBlocked, Reason: "domain", LastCheckedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &domain.Validation{Email: "me@spam.com", Domain: "spam.com", Status: domain.StatusBlocked, Reason: "mine", LastCheckedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &domain.Validation{Email: "old@ok.com", Domain: "ok.com", Status: domain.StatusValid, LastCheckedAt: now.Add(-2 * time.Hour)}))

	v, err := repo.Match(ctx, "me@spam.com", "spam.com", domain.StatusBlocked, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "mine", v.Reason)

	v, err = repo.Match(ctx, "new@spam.com", "spam.com", domain.StatusBlocked, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "spam.com", v.Domain)

	_, err = repo.Match(ctx, "x@ok.com", "ok.com", domain.StatusValid, now.Add(-time.Hour))
	assert.ErrorIs(t, err, validation.ErrNotFound)

	_, err = repo.Match(ctx, "x@ok.com", "ok.com", domain.StatusValid, time.Time{})
	assert.NoError(t, err)

	many, err := repo.FindMany(ctx, []string{"bad@spam.com", "old@ok.com", "nobody@x.com"})
	require.NoError(t, err)
	assert.Len(t, many, 2)

	rows, total, err := repo.List(ctx, validation.ListFilter{Domain: "spam.com", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, rows, 1)
}

func TestMailLogRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMailLogRepo(openTestDB(t))

	id := "abc-123"
	line := 42
	m := &domain.MailLog{
		MessageID:  &id,
		Sender:     domain.StringPtr("from@x.com"),
		Recipient:  "to@y.com",
		Subject:    "Hi",
		SourceFile: domain.StringPtr("app/notify.go"),
		SourceLine: &line,
		Owner:      &domain.OwnerRef{Kind: "order", ID: "7"},
	}
	require.NoError(t, repo.Create(ctx, m))
	assert.NotZero(t, m.ID)

	err := repo.Create(ctx, &domain.MailLog{MessageID: &id, Recipient: "other@y.com"})
	assert.ErrorIs(t, err, maillog.ErrDuplicateMessageID)

	msg := "connection reset"
	require.NoError(t, repo.UpdateStatus(ctx, id, "500", &msg))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "nope", "200", nil), maillog.ErrNotFound)

	got, err := repo.FindByMessageID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "500", *got.StatusCode)
	assert.Equal(t, "connection reset", *got.ErrorMessage)
	assert.Equal(t, 42, *got.SourceLine)
	assert.Equal(t, "order", got.Owner.Kind)

	// a later success keeps the earlier error text
	require.NoError(t, repo.UpdateStatus(ctx, id, "200", nil))
	got, err = repo.FindByMessageID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "connection reset", *got.ErrorMessage)

	require.NoError(t, repo.Create(ctx, &domain.MailLog{Recipient: "pending@y.com"}))

	rows, total, err := repo.List(ctx, maillog.ListFilter{Scope: maillog.ScopePending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "pending@y.com", rows[0].Recipient)

	rows, _, err = repo.List(ctx, maillog.ListFilter{OwnerKind: "order", OwnerID: "7"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, *rows[0].MessageID)
}

func TestMailLogRepo_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMailLogRepo(openTestDB(t))

	old := time.Now().Add(-40 * 24 * time.Hour)
	repo.now = func() time.Time { return old }
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.MailLog{Recipient: "old@x.com"}))
	}
	repo.now = time.Now
	require.NoError(t, repo.Create(ctx, &domain.MailLog{Recipient: "new@x.com"}))

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	n, err := repo.DeleteBefore(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteBefore(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, total, err := repo.List(ctx, maillog.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
