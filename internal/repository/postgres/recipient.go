package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

// RecipientRepo implements recipient persistence. Sending-state writes are
// conditional on status = 'pending' so replayed chunks cannot double-send
// or clobber a terminal row.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

const recipientColumns = `id, campaign_id, email, COALESCE(name,''), status,
	variant_label, provider_message_id, COALESCE(error,''),
	sent_at, opened_at, clicked_at, created_at`

func scanRecipient(row interface{ Scan(...interface{}) error }) (*domain.Recipient, error) {
	r := &domain.Recipient{}
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.Email, &r.Name, &r.Status,
		&r.VariantLabel, &r.ProviderMessageID, &r.Error,
		&r.SentAt, &r.OpenedAt, &r.ClickedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// BulkInsert inserts recipients in order inside one transaction. The
// UNIQUE(campaign_id, email) constraint absorbs duplicates. created_at gets
// a per-row microsecond offset so insertion order survives the shared
// transaction timestamp; the chunked drain and variant assignment both sort
// on it.
func (r *RecipientRepo) BulkInsert(ctx context.Context, recipients []domain.Recipient) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients (id, campaign_id, email, name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id, email) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	base := time.Now().UTC()
	inserted := 0
	for i, rec := range recipients {
		res, err := stmt.ExecContext(ctx, rec.ID, rec.CampaignID, rec.Email, rec.Name, rec.Status,
			base.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return 0, fmt.Errorf("insert recipient: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

func (r *RecipientRepo) DeleteByCampaign(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM campaign_recipients WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("delete recipients: %w", err)
	}
	return nil
}

// ListPending returns up to limit pending recipients in insertion order.
func (r *RecipientRepo) ListPending(ctx context.Context, campaignID string, limit int) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipientColumns+` FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	return collectRecipients(rows)
}

func (r *RecipientRepo) CountPending(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending'
	`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// ListIDs returns all recipient ids in insertion order, for variant
// assignment.
func (r *RecipientRepo) ListIDs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM campaign_recipients
		WHERE campaign_id = $1
		ORDER BY created_at ASC, id ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipient ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *RecipientRepo) SetVariantLabel(ctx context.Context, recipientID, label string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaign_recipients SET variant_label = $1 WHERE id = $2`, label, recipientID)
	if err != nil {
		return fmt.Errorf("set variant label: %w", err)
	}
	return nil
}

func (r *RecipientRepo) MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'sent', provider_message_id = $1, sent_at = $2, error = ''
		WHERE id = $3 AND status = 'pending'
	`, providerMessageID, at, id)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecipientRepo) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'failed', error = $1
		WHERE id = $2 AND status = 'pending'
	`, reason, id)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecipientRepo) MarkExcluded(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'unsubscribed_excluded'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark excluded: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns a paginated slice of a campaign's recipients, newest first,
// optionally filtered by status.
func (r *RecipientRepo) List(ctx context.Context, campaignID, status string, limit, offset int) ([]domain.Recipient, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := `WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	idx := 2
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_recipients `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipients: %w", err)
	}

	q := `SELECT ` + recipientColumns + ` FROM campaign_recipients ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	out, err := collectRecipients(rows)
	return out, total, err
}

// Stats aggregates recipient counts per status for one campaign.
func (r *RecipientRepo) Stats(ctx context.Context, campaignID string) (*domain.RecipientStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1
		GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("recipient stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.RecipientStats{}
	for rows.Next() {
		var status domain.RecipientStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case domain.RecipientPending:
			stats.Pending = n
		case domain.RecipientSent:
			stats.Sent = n
		case domain.RecipientFailed:
			stats.Failed = n
		case domain.RecipientBounced:
			stats.Bounced = n
		case domain.RecipientExcluded:
			stats.Excluded = n
		}
		stats.Total += n
	}
	return stats, rows.Err()
}

// MarkBouncedByProviderID flips a delivered row to bounced on a delivery
// event. Only sent rows move; replays are no-ops.
func (r *RecipientRepo) MarkBouncedByProviderID(ctx context.Context, providerMessageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'bounced'
		WHERE provider_message_id = $1 AND status = 'sent'
	`, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("mark bounced: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkOpenedByProviderID stamps the first open time for a message.
func (r *RecipientRepo) MarkOpenedByProviderID(ctx context.Context, providerMessageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET opened_at = $1
		WHERE provider_message_id = $2 AND opened_at IS NULL
	`, at, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("mark opened: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkClickedByProviderID stamps the first click time for a message. A
// click implies an open.
func (r *RecipientRepo) MarkClickedByProviderID(ctx context.Context, providerMessageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET clicked_at = COALESCE(clicked_at, $1), opened_at = COALESCE(opened_at, $1)
		WHERE provider_message_id = $2
	`, at, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("mark clicked: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func collectRecipients(rows *sql.Rows) ([]domain.Recipient, error) {
	var out []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
