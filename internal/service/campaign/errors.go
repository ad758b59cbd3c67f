package campaign

import (
	"errors"
	"fmt"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoRecipients      = errors.New("campaign has no recipients")
	ErrNotDraft          = errors.New("campaign is not in draft status")
	ErrMissingContent    = errors.New("campaign needs a template reference or inline HTML, not both")
)

// TransitionError reports a rejected lifecycle transition. It carries the
// current and requested states so operators see exactly what was refused.
type TransitionError struct {
	Current   domain.CampaignStatus
	Requested domain.CampaignStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.Current, e.Requested)
}

// Is makes errors.Is(err, ErrInvalidTransition) match TransitionError values.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
