package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

// Sources implements the read-only storefront queries the recipient
// builder draws from. These tables belong to the storefront; this service
// never writes them.
type Sources struct{ db *sql.DB }

// NewSources creates a Postgres-backed contact source.
func NewSources(db *sql.DB) *Sources { return &Sources{db: db} }

// PreorderCustomers returns customers holding an unconverted preorder
// matching the filter, one row per email.
func (s *Sources) PreorderCustomers(ctx context.Context, f domain.PreorderFilter) ([]domain.Contact, error) {
	q := `
		SELECT DISTINCT ON (p.customer_email) p.customer_email, COALESCE(c.name,'')
		FROM preorders p
		LEFT JOIN customers c ON c.email = p.customer_email
		WHERE p.status = 'pending'`
	args := []interface{}{}
	idx := 1

	if f.BoxType != "" {
		q += fmt.Sprintf(" AND p.box_type = $%d", idx)
		args = append(args, f.BoxType)
		idx++
	}
	if f.From != nil {
		q += fmt.Sprintf(" AND p.created_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		q += fmt.Sprintf(" AND p.created_at < $%d", idx)
		args = append(args, *f.To)
		idx++
	}
	q += " ORDER BY p.customer_email, p.created_at ASC"

	return s.queryContacts(ctx, q, args...)
}

// Subscribers returns newsletter subscribers matching the filter.
func (s *Sources) Subscribers(ctx context.Context, f domain.LifecycleFilter) ([]domain.Contact, error) {
	q := `SELECT email, COALESCE(name,'') FROM subscribers WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if len(f.Tags) > 0 {
		// tags is a text[] column; require every requested tag.
		q += fmt.Sprintf(" AND tags @> $%d", idx)
		args = append(args, pq.Array(f.Tags))
		idx++
	}
	q += " ORDER BY email ASC"

	return s.queryContacts(ctx, q, args...)
}

// Customers returns registered customers matching the filter.
func (s *Sources) Customers(ctx context.Context, f domain.PromotionalFilter) ([]domain.Contact, error) {
	q := `SELECT email, COALESCE(name,'') FROM customers WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.OptInOnly {
		q += " AND marketing_opt_in = true"
	}
	if f.SignedUpFrom != nil {
		q += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *f.SignedUpFrom)
		idx++
	}
	q += " ORDER BY email ASC"

	return s.queryContacts(ctx, q, args...)
}

func (s *Sources) queryContacts(ctx context.Context, q string, args ...interface{}) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.Email, &c.Name); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
