package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/misor-digital/fitflow-campaigns/internal/unsub"
)

// UnsubscribeRepo implements unsub.Repository. Addresses arrive already
// normalized.
type UnsubscribeRepo struct{ db *sql.DB }

// NewUnsubscribeRepo creates a Postgres-backed unsubscribe repository.
func NewUnsubscribeRepo(db *sql.DB) *UnsubscribeRepo { return &UnsubscribeRepo{db: db} }

func (r *UnsubscribeRepo) Exists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM unsubscribes WHERE email = $1`, email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("unsubscribe lookup: %w", err)
	}
	return true, nil
}

func (r *UnsubscribeRepo) Upsert(ctx context.Context, e unsub.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO unsubscribes (email, reason, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (email) DO UPDATE SET reason = EXCLUDED.reason
	`, e.Email, e.Source)
	if err != nil {
		return fmt.Errorf("record unsubscribe: %w", err)
	}
	return nil
}
