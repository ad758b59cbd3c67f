// Package abtest manages subject/content variants for a campaign and the
// round-robin assignment of recipients to them.
package abtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

var (
	// ErrTooFewVariants is returned when a test defines fewer than two variants.
	ErrTooFewVariants = errors.New("a/b test requires at least two variants")
	// ErrDuplicateLabel is returned when two variants share a label.
	ErrDuplicateLabel = errors.New("variant labels must be unique")
	// ErrNoTest is returned when a campaign has no variants.
	ErrNoTest = errors.New("campaign has no a/b test")
	// ErrNotFinished is returned when a winner is requested before the
	// campaign reaches a terminal status.
	ErrNotFinished = errors.New("campaign has not finished sending")
)

// VariantRepository persists campaign variants. ListByCampaign must return
// variants in insertion order; assignment depends on it.
type VariantRepository interface {
	CreateAll(ctx context.Context, vs []domain.Variant) error
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.Variant, error)
	DeleteByCampaign(ctx context.Context, campaignID string) error
	SetRecipientCount(ctx context.Context, variantID string, n int) error
}

// RecipientStore exposes the recipient operations assignment needs.
// ListIDs must return recipient ids in the stable insertion order the
// engine drains in.
type RecipientStore interface {
	ListIDs(ctx context.Context, campaignID string) ([]string, error)
	SetVariantLabel(ctx context.Context, recipientID, label string) error
}

// EngagementReader aggregates per-variant delivery and engagement counts.
// Rates are left zero; the service computes them.
type EngagementReader interface {
	VariantCounts(ctx context.Context, campaignID string) ([]domain.VariantResult, error)
}

// CampaignGetter loads campaigns for status checks.
type CampaignGetter interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

// VariantInput is one variant definition supplied at creation.
type VariantInput struct {
	Label       string `json:"label"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
}

// Service implements A/B test management.
type Service struct {
	variants   VariantRepository
	recipients RecipientStore
	engagement EngagementReader
	campaigns  CampaignGetter
}

// NewService creates an A/B test service.
func NewService(variants VariantRepository, recipients RecipientStore,
	engagement EngagementReader, campaigns CampaignGetter) *Service {
	return &Service{
		variants:   variants,
		recipients: recipients,
		engagement: engagement,
		campaigns:  campaigns,
	}
}

// Create defines the variant set for a draft campaign and assigns every
// current recipient to a variant. Replaces any existing variant set.
func (s *Service) Create(ctx context.Context, campaignID string, inputs []VariantInput) ([]domain.Variant, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, campaign.ErrNotDraft
	}
	if len(inputs) < 2 {
		return nil, ErrTooFewVariants
	}
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.Label == "" || seen[in.Label] {
			return nil, ErrDuplicateLabel
		}
		seen[in.Label] = true
		if in.Subject == "" {
			return nil, fmt.Errorf("variant %q: subject is required", in.Label)
		}
	}

	if err := s.variants.DeleteByCampaign(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("clear variants: %w", err)
	}

	vs := make([]domain.Variant, 0, len(inputs))
	for _, in := range inputs {
		vs = append(vs, domain.Variant{
			ID:          uuid.New().String(),
			CampaignID:  campaignID,
			Label:       in.Label,
			Subject:     in.Subject,
			HTMLContent: in.HTMLContent,
		})
	}
	if err := s.variants.CreateAll(ctx, vs); err != nil {
		return nil, fmt.Errorf("create variants: %w", err)
	}

	if err := s.Reassign(ctx, campaignID); err != nil {
		return nil, err
	}
	return vs, nil
}

// List returns the campaign's variants in insertion order.
func (s *Service) List(ctx context.Context, campaignID string) ([]domain.Variant, error) {
	return s.variants.ListByCampaign(ctx, campaignID)
}

// Delete removes the variant set of a draft campaign.
func (s *Service) Delete(ctx context.Context, campaignID string) error {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return campaign.ErrNotDraft
	}
	return s.variants.DeleteByCampaign(ctx, campaignID)
}

// Reassign distributes recipients across variants round-robin in insertion
// order, so group sizes never differ by more than one and re-running after a
// recipient rebuild is deterministic. No-op when the campaign has no
// variants.
func (s *Service) Reassign(ctx context.Context, campaignID string) error {
	vs, err := s.variants.ListByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}

	ids, err := s.recipients.ListIDs(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	counts := make([]int, len(vs))
	for i, id := range ids {
		v := i % len(vs)
		if err := s.recipients.SetVariantLabel(ctx, id, vs[v].Label); err != nil {
			return fmt.Errorf("assign variant: %w", err)
		}
		counts[v]++
	}
	for i, v := range vs {
		if err := s.variants.SetRecipientCount(ctx, v.ID, counts[i]); err != nil {
			return fmt.Errorf("update variant count: %w", err)
		}
	}

	logger.Info("variants assigned", "campaign_id", campaignID,
		"variants", len(vs), "recipients", len(ids))
	return nil
}

// Results returns per-variant delivery and engagement figures with rates
// computed against sent counts.
func (s *Service) Results(ctx context.Context, campaignID string) ([]domain.VariantResult, error) {
	vs, err := s.variants.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, ErrNoTest
	}

	results, err := s.engagement.VariantCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].Sent > 0 {
			results[i].OpenRate = float64(results[i].Opened) / float64(results[i].Sent)
			results[i].ClickRate = float64(results[i].Clicked) / float64(results[i].Sent)
		}
	}
	return results, nil
}

// Winner picks the variant with the highest rate for the given metric once
// the campaign has reached a terminal status. An exact tie on the top rate
// means no winner, in which case Winner returns nil with no error.
func (s *Service) Winner(ctx context.Context, campaignID string, metric domain.WinnerMetric) (*domain.VariantResult, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.IsTerminal() {
		return nil, ErrNotFinished
	}

	results, err := s.Results(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	best := 0
	tied := false
	for i := 1; i < len(results); i++ {
		switch {
		case results[i].Rate(metric) > results[best].Rate(metric):
			best = i
			tied = false
		case results[i].Rate(metric) == results[best].Rate(metric):
			tied = true
		}
	}
	if tied {
		return nil, nil
	}
	return &results[best], nil
}
