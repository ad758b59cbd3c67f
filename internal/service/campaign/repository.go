package campaign

import (
	"context"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC,
	// plus the total count before pagination.
	List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// UpdateDraft modifies mutable fields. Only draft campaigns may be
	// updated; implementations return ErrNotDraft otherwise.
	UpdateDraft(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign and cascades to recipients, history, and
	// variants. Only draft campaigns may be deleted.
	Delete(ctx context.Context, id string) error

	// UpdateStatusIf transitions status from -> to as a single conditional
	// write. Returns false (and no error) when the row was not in the
	// expected from state, which is how concurrent transitions lose.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.CampaignStatus) (bool, error)

	// SetScheduledAt stores the scheduled start time.
	SetScheduledAt(ctx context.Context, id string, at time.Time) error

	// SetTotalRecipients updates the denormalized recipient count after a
	// rebuild.
	SetTotalRecipients(ctx context.Context, id string, n int) error

	// ListDueScheduled returns scheduled campaigns whose scheduled_at has
	// passed.
	ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// ListByStatus returns all campaigns in the given status, oldest
	// updated first.
	ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error)
}

// HistoryRepository is the append-only audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, e *domain.HistoryEntry) error
	List(ctx context.Context, campaignID string, limit, offset int) ([]domain.HistoryEntry, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a draft campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name         *string              `json:"name"`
	Subject      *string              `json:"subject"`
	FromName     *string              `json:"from_name"`
	FromEmail    *string              `json:"from_email"`
	TemplateID   *string              `json:"template_id"`
	HTMLContent  *string              `json:"html_content"`
	TargetFilter *domain.TargetFilter `json:"target_filter"`
}
