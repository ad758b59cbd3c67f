package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

// HistoryRepo implements the append-only campaign audit trail.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed history repository.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) Append(ctx context.Context, e *domain.HistoryEntry) error {
	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode history metadata: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_history (id, campaign_id, action, changed_by, metadata, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.ID, e.CampaignID, e.Action, e.ChangedBy, metadata, e.Notes)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) List(ctx context.Context, campaignID string, limit, offset int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, action, changed_by, metadata, COALESCE(notes,''), created_at
		FROM campaign_history
		WHERE campaign_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Action, &e.ChangedBy,
			&metadata, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode history metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
