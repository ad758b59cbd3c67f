package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

func TestMarkSentIsGatedOnPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE campaign_recipients`).
		WithArgs("ses-1", at, "r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecipientRepo(db)
	applied, err := repo.MarkSent(context.Background(), "r-1", "ses-1", at)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second attempt finds the row already terminal.
	mock.ExpectExec(`UPDATE campaign_recipients`).
		WithArgs("ses-1", at, "r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err = repo.MarkSent(context.Background(), "r-1", "ses-1", at)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExcludedAlreadyTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE campaign_recipients`).
		WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRecipientRepo(db)
	applied, err := repo.MarkExcluded(context.Background(), "r-1")
	require.NoError(t, err)
	assert.False(t, applied)
}

// timeCapture records time.Time arguments so ordering can be asserted.
type timeCapture struct{ ts *[]time.Time }

func (c timeCapture) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	if ok {
		*c.ts = append(*c.ts, t)
	}
	return ok
}

func TestBulkInsertSkipsDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var createdAt []time.Time
	capture := timeCapture{ts: &createdAt}

	mock.ExpectBegin()
	stmt := mock.ExpectPrepare(`INSERT INTO campaign_recipients`)
	stmt.ExpectExec().
		WithArgs("r-1", "camp-1", "a@example.com", "A", "pending", capture).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Duplicate email hits the unique constraint and affects no rows.
	stmt.ExpectExec().
		WithArgs("r-2", "camp-1", "a@example.com", "A again", "pending", capture).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewRecipientRepo(db)
	n, err := repo.BulkInsert(context.Background(), []domain.Recipient{
		{ID: "r-1", CampaignID: "camp-1", Email: "a@example.com", Name: "A", Status: domain.RecipientPending},
		{ID: "r-2", CampaignID: "camp-1", Email: "a@example.com", Name: "A again", Status: domain.RecipientPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Timestamps are assigned client-side with per-row offsets, so insertion
	// order is preserved even though the rows share one transaction.
	require.Len(t, createdAt, 2)
	assert.True(t, createdAt[0].Before(createdAt[1]),
		"created_at must be strictly increasing across the batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkBouncedOnlyMovesSentRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE campaign_recipients SET status = 'bounced'`).
		WithArgs("ses-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecipientRepo(db)
	applied, err := repo.MarkBouncedByProviderID(context.Background(), "ses-1")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestStatsAggregatesByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT status, COUNT`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 5).
			AddRow("sent", 10).
			AddRow("failed", 1).
			AddRow("unsubscribed_excluded", 2))

	repo := NewRecipientRepo(db)
	stats, err := repo.Stats(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 10, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Excluded)
	assert.Equal(t, 18, stats.Total)
}
