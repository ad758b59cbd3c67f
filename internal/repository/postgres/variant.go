package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

// VariantRepo implements A/B variant persistence.
type VariantRepo struct{ db *sql.DB }

// NewVariantRepo creates a Postgres-backed variant repository.
func NewVariantRepo(db *sql.DB) *VariantRepo { return &VariantRepo{db: db} }

// CreateAll inserts the variant set in one transaction. created_at gets a
// per-row microsecond offset so insertion order survives the shared
// transaction timestamp.
func (r *VariantRepo) CreateAll(ctx context.Context, vs []domain.Variant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin variant insert: %w", err)
	}
	defer tx.Rollback()

	base := time.Now().UTC()
	for i, v := range vs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_variants (id, campaign_id, label, subject, html_content, recipient_count, created_at)
			VALUES ($1, $2, $3, $4, $5, 0, $6)
		`, v.ID, v.CampaignID, v.Label, v.Subject, v.HTMLContent,
			base.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return fmt.Errorf("insert variant %s: %w", v.Label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit variant insert: %w", err)
	}
	return nil
}

// ListByCampaign returns variants in insertion order.
func (r *VariantRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Variant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, label, subject, COALESCE(html_content,''), recipient_count, created_at
		FROM campaign_variants
		WHERE campaign_id = $1
		ORDER BY created_at ASC, id ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var out []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.CampaignID, &v.Label, &v.Subject,
			&v.HTMLContent, &v.RecipientCount, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *VariantRepo) DeleteByCampaign(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM campaign_variants WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("delete variants: %w", err)
	}
	return nil
}

func (r *VariantRepo) SetRecipientCount(ctx context.Context, variantID string, n int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaign_variants SET recipient_count = $1 WHERE id = $2`, n, variantID)
	if err != nil {
		return fmt.Errorf("set variant count: %w", err)
	}
	return nil
}

// VariantCounts aggregates delivery and engagement per variant label from
// recipient rows. Rates are computed by the caller.
func (r *VariantRepo) VariantCounts(ctx context.Context, campaignID string) ([]domain.VariantResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.label,
		       COUNT(r.id),
		       COUNT(r.id) FILTER (WHERE r.status IN ('sent','bounced')),
		       COUNT(r.id) FILTER (WHERE r.opened_at IS NOT NULL),
		       COUNT(r.id) FILTER (WHERE r.clicked_at IS NOT NULL)
		FROM campaign_variants v
		LEFT JOIN campaign_recipients r
		       ON r.campaign_id = v.campaign_id AND r.variant_label = v.label
		WHERE v.campaign_id = $1
		GROUP BY v.label, v.created_at, v.id
		ORDER BY v.created_at ASC, v.id ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("variant counts: %w", err)
	}
	defer rows.Close()

	var out []domain.VariantResult
	for rows.Next() {
		var res domain.VariantResult
		if err := rows.Scan(&res.Label, &res.Assigned, &res.Sent, &res.Opened, &res.Clicked); err != nil {
			return nil, fmt.Errorf("scan variant counts: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
