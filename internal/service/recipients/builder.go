// Package recipients builds campaign recipient sets from storefront data.
//
// Each campaign type has exactly one strategy. A build is destructive: the
// caller-visible contract is that the previous recipient set is gone and the
// campaign's total_recipients matches the new row count.
package recipients

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

// Sources exposes the read-only storefront queries each strategy consumes.
type Sources interface {
	// PreorderCustomers returns customers with an unconverted preorder
	// matching the filter.
	PreorderCustomers(ctx context.Context, f domain.PreorderFilter) ([]domain.Contact, error)
	// Subscribers returns newsletter/marketing subscribers matching the
	// filter.
	Subscribers(ctx context.Context, f domain.LifecycleFilter) ([]domain.Contact, error)
	// Customers returns registered customers matching the filter.
	Customers(ctx context.Context, f domain.PromotionalFilter) ([]domain.Contact, error)
}

// Store is the recipient persistence used by the builder.
type Store interface {
	// DeleteByCampaign removes every recipient row for the campaign.
	DeleteByCampaign(ctx context.Context, campaignID string) error
	// BulkInsert inserts recipients in the given order; that order is the
	// stable insertion order the engine drains in.
	BulkInsert(ctx context.Context, recipients []domain.Recipient) (int, error)
}

// UnsubChecker answers point-in-time unsubscribe lookups at build time.
type UnsubChecker interface {
	IsUnsubscribed(ctx context.Context, email string) (bool, error)
}

// CampaignCounter updates the denormalized recipient count on the campaign.
type CampaignCounter interface {
	SetTotalRecipients(ctx context.Context, id string, n int) error
}

// Builder computes and persists a campaign's recipient set.
type Builder struct {
	sources   Sources
	store     Store
	unsub     UnsubChecker
	campaigns CampaignCounter
	history   campaign.HistoryRepository
}

// NewBuilder creates a recipient builder.
func NewBuilder(sources Sources, store Store, unsub UnsubChecker,
	campaigns CampaignCounter, history campaign.HistoryRepository) *Builder {
	return &Builder{
		sources:   sources,
		store:     store,
		unsub:     unsub,
		campaigns: campaigns,
		history:   history,
	}
}

// Build computes the recipient set for a campaign and persists it. The
// caller must have deleted any existing recipients first; Build only
// appends. Returns the number of rows created.
func (b *Builder) Build(ctx context.Context, campaignID string, t domain.CampaignType, f domain.TargetFilter) (int, error) {
	if err := f.Validate(t); err != nil {
		return 0, err
	}

	var (
		contacts []domain.Contact
		err      error
	)
	switch t {
	case domain.CampaignPreorderConversion:
		contacts, err = b.sources.PreorderCustomers(ctx, *f.Preorder)
	case domain.CampaignLifecycle:
		contacts, err = b.sources.Subscribers(ctx, *f.Lifecycle)
	case domain.CampaignPromotional:
		contacts, err = b.sources.Customers(ctx, *f.Promotional)
	default:
		return 0, fmt.Errorf("unknown campaign type %q", t)
	}
	if err != nil {
		return 0, fmt.Errorf("query %s contacts: %w", t, err)
	}

	rows := make([]domain.Recipient, 0, len(contacts))
	seen := make(map[string]bool, len(contacts))
	excluded := 0
	for _, contact := range contacts {
		email := strings.ToLower(strings.TrimSpace(contact.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		unsubbed, err := b.unsub.IsUnsubscribed(ctx, email)
		if err != nil {
			return 0, fmt.Errorf("unsubscribe lookup: %w", err)
		}
		if unsubbed {
			excluded++
			continue
		}

		rows = append(rows, domain.Recipient{
			ID:         uuid.New().String(),
			CampaignID: campaignID,
			Email:      email,
			Name:       contact.Name,
			Status:     domain.RecipientPending,
		})
	}

	n, err := b.store.BulkInsert(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("insert recipients: %w", err)
	}

	logger.Info("recipient set built",
		"campaign_id", campaignID, "type", string(t),
		"matched", len(contacts), "inserted", n, "unsubscribed_excluded", excluded)
	return n, nil
}

// Rebuild atomically replaces a campaign's recipient set after a filter
// change and recounts. total_recipients always equals the new row count
// afterwards.
func (b *Builder) Rebuild(ctx context.Context, c *domain.Campaign, actor string) (int, error) {
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return 0, campaign.ErrNotDraft
	}

	if err := b.store.DeleteByCampaign(ctx, c.ID); err != nil {
		return 0, fmt.Errorf("clear recipients: %w", err)
	}

	n, err := b.Build(ctx, c.ID, c.Type, c.TargetFilter)
	if err != nil {
		return 0, err
	}

	if err := b.campaigns.SetTotalRecipients(ctx, c.ID, n); err != nil {
		return 0, fmt.Errorf("update recipient count: %w", err)
	}

	err = b.history.Append(ctx, &domain.HistoryEntry{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		Action:     domain.HistoryRecipientsBuilt,
		ChangedBy:  actor,
		Metadata:   map[string]string{"total_recipients": fmt.Sprintf("%d", n)},
	})
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return n, nil
}
