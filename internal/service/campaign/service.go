package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
)

// StartTrigger records what caused a campaign to start sending.
type StartTrigger string

const (
	TriggerManual   StartTrigger = "manual"
	TriggerSchedule StartTrigger = "schedule"
)

// Service implements campaign lifecycle business logic. All public methods
// are safe for concurrent use if the underlying repositories are.
type Service struct {
	repo    Repository
	history HistoryRepository
}

// NewService creates a campaign service backed by the given repositories.
func NewService(repo Repository, history HistoryRepository) *Service {
	return &Service{repo: repo, history: history}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Type         domain.CampaignType `json:"campaign_type"`
	Name         string              `json:"name"`
	Subject      string              `json:"subject"`
	FromName     string              `json:"from_name"`
	FromEmail    string              `json:"from_email"`
	TemplateID   string              `json:"template_id"`
	HTMLContent  string              `json:"html_content"`
	TargetFilter domain.TargetFilter `json:"target_filter"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*domain.Campaign, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if in.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if in.FromEmail == "" {
		return nil, fmt.Errorf("from_email is required")
	}
	if err := in.TargetFilter.Validate(in.Type); err != nil {
		return nil, err
	}

	c := &domain.Campaign{
		ID:           uuid.New().String(),
		Type:         in.Type,
		Name:         in.Name,
		Subject:      in.Subject,
		FromName:     in.FromName,
		FromEmail:    in.FromEmail,
		HTMLContent:  in.HTMLContent,
		TargetFilter: in.TargetFilter,
		Status:       domain.CampaignDraft,
	}
	if in.TemplateID != "" {
		c.TemplateID = &in.TemplateID
	}
	if !c.HasContent() {
		return nil, ErrMissingContent
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// UpdateDraft modifies mutable fields of a draft campaign and records the
// change. A target-filter change must be followed by a recipient rebuild;
// that orchestration belongs to the caller.
func (s *Service) UpdateDraft(ctx context.Context, id, actor string, u UpdateFields) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.TargetFilter != nil {
		if err := u.TargetFilter.Validate(c.Type); err != nil {
			return err
		}
	}
	if u.TemplateID != nil || u.HTMLContent != nil {
		// Content stays one source after the update, same rule as Create.
		// Switching sources requires clearing the other in the same call.
		next := domain.Campaign{TemplateID: c.TemplateID, HTMLContent: c.HTMLContent}
		if u.TemplateID != nil {
			next.TemplateID = u.TemplateID
		}
		if u.HTMLContent != nil {
			next.HTMLContent = *u.HTMLContent
		}
		if !next.HasContent() {
			return ErrMissingContent
		}
	}
	if err := s.repo.UpdateDraft(ctx, id, u); err != nil {
		return err
	}
	return s.appendHistory(ctx, id, domain.HistoryUpdated, actor, nil, "")
}

// Delete removes a draft campaign, cascading to recipients, history, and
// variants.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Schedule moves a draft campaign to scheduled with a future start time.
// The transition is validated before anything is written, so a rejected
// schedule leaves scheduled_at untouched.
func (s *Service) Schedule(ctx context.Context, id, actor string, at time.Time) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(c.Status, domain.CampaignScheduled) {
		return nil, &TransitionError{Current: c.Status, Requested: domain.CampaignScheduled}
	}
	if err := s.repo.SetScheduledAt(ctx, id, at); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, actor, domain.CampaignScheduled, domain.HistoryScheduled,
		map[string]string{"scheduled_at": at.UTC().Format(time.RFC3339)}, "")
}

// Start transitions a draft or scheduled campaign to sending. The campaign
// must have a built recipient set. Paused campaigns go through Resume, not
// Start, even though their target status is the same.
func (s *Service) Start(ctx context.Context, id, actor string, trigger StartTrigger) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, &TransitionError{Current: c.Status, Requested: domain.CampaignSending}
	}
	if c.TotalRecipients <= 0 {
		return nil, ErrNoRecipients
	}
	return s.transition(ctx, id, actor, domain.CampaignSending, domain.HistoryStarted,
		map[string]string{"trigger": string(trigger)}, "")
}

// Pause stops a sending campaign at the next chunk boundary. The engine
// observes the status before each chunk; no in-flight send is interrupted.
func (s *Service) Pause(ctx context.Context, id, actor, reason string) (*domain.Campaign, error) {
	return s.transition(ctx, id, actor, domain.CampaignPaused, domain.HistoryPaused, nil, reason)
}

// Resume puts a paused campaign back into sending.
func (s *Service) Resume(ctx context.Context, id, actor string) (*domain.Campaign, error) {
	return s.transition(ctx, id, actor, domain.CampaignSending, domain.HistoryResumed, nil, "")
}

// Cancel terminates any non-terminal campaign. Remaining pending recipients
// are left as-is for audit.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*domain.Campaign, error) {
	return s.transition(ctx, id, actor, domain.CampaignCancelled, domain.HistoryCancelled, nil, "")
}

// Complete marks a sending campaign as finished. Called by the engine when
// no pending recipients remain.
func (s *Service) Complete(ctx context.Context, id, actor string) (*domain.Campaign, error) {
	return s.transition(ctx, id, actor, domain.CampaignCompleted, domain.HistoryCompleted, nil, "")
}

// RecordStall appends a stalled_detected history row. Detection is
// observability only; it never mutates campaign status.
func (s *Service) RecordStall(ctx context.Context, id, actor string, lastProgress time.Time) error {
	return s.appendHistory(ctx, id, domain.HistoryStalled, actor,
		map[string]string{"last_progress_at": lastProgress.UTC().Format(time.RFC3339)},
		"no progress since last activity threshold")
}

// RecordTestSend appends a test_sent history row.
func (s *Service) RecordTestSend(ctx context.Context, id, actor, toEmail string) error {
	return s.appendHistory(ctx, id, domain.HistoryTestSent, actor,
		map[string]string{"to": logger.RedactEmail(toEmail)}, "")
}

// History returns the audit trail for a campaign, newest first.
func (s *Service) History(ctx context.Context, id string, limit, offset int) ([]domain.HistoryEntry, error) {
	return s.history.List(ctx, id, limit, offset)
}

// transition performs one validated, status-gated lifecycle transition and
// writes exactly one history row.
func (s *Service) transition(ctx context.Context, id, actor string, to domain.CampaignStatus,
	action domain.HistoryAction, metadata map[string]string, notes string) (*domain.Campaign, error) {

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(c.Status, to) {
		return nil, &TransitionError{Current: c.Status, Requested: to}
	}

	applied, err := s.repo.UpdateStatusIf(ctx, id, c.Status, to)
	if err != nil {
		return nil, fmt.Errorf("transition %s to %s: %w", c.Status, to, err)
	}
	if !applied {
		// Lost a race against a concurrent transition; report against the
		// status that actually won.
		cur, gerr := s.repo.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &TransitionError{Current: cur.Status, Requested: to}
	}

	c.Status = to
	if err := s.appendHistory(ctx, id, action, actor, metadata, notes); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) appendHistory(ctx context.Context, campaignID string, action domain.HistoryAction,
	actor string, metadata map[string]string, notes string) error {

	err := s.history.Append(ctx, &domain.HistoryEntry{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		Action:     action,
		ChangedBy:  actor,
		Metadata:   metadata,
		Notes:      notes,
	})
	if err != nil {
		return fmt.Errorf("append history %s: %w", action, err)
	}
	return nil
}
