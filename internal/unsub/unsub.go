// Package unsub tracks unsubscribed addresses. Lookups happen twice per
// recipient: once when the recipient set is built and again right before
// the send, so an unsubscribe that lands mid-campaign still sticks.
package unsub

import (
	"context"
	"strings"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
)

// Entry is one unsubscribed address.
type Entry struct {
	Email     string    `json:"email" db:"email"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Repository persists unsubscribe entries keyed by normalized email.
type Repository interface {
	Exists(ctx context.Context, email string) (bool, error)
	Upsert(ctx context.Context, e Entry) error
}

// Service answers and records unsubscribes.
type Service struct {
	repo Repository
}

// NewService creates an unsubscribe service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Normalize lowercases and trims an address; all storage and lookups go
// through this form.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsUnsubscribed reports whether the address has opted out.
func (s *Service) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
	return s.repo.Exists(ctx, Normalize(email))
}

// Record stores an unsubscribe. Idempotent; repeat opt-outs are upserts.
func (s *Service) Record(ctx context.Context, email, source string) error {
	normalized := Normalize(email)
	if normalized == "" {
		return nil
	}
	if err := s.repo.Upsert(ctx, Entry{Email: normalized, Source: source}); err != nil {
		return err
	}
	logger.Info("unsubscribe recorded", "email", normalized, "source", source)
	return nil
}
