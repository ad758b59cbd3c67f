package domain

import (
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// CampaignType determines which recipient-building strategy applies.
// Fixed at creation.
type CampaignType string

const (
	CampaignPreorderConversion CampaignType = "preorder_conversion"
	CampaignLifecycle          CampaignType = "lifecycle"
	CampaignPromotional        CampaignType = "promotional"
)

// allowedTransitions is the campaign state machine. Anything not listed here
// is rejected, never coerced.
var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignSending, CampaignScheduled},
	CampaignScheduled: {CampaignSending, CampaignCancelled},
	CampaignSending:   {CampaignPaused, CampaignCompleted, CampaignFailed, CampaignCancelled},
	CampaignPaused:    {CampaignSending, CampaignCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to CampaignStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Campaign represents one bulk email send operation with its own recipient
// set, content, and lifecycle status.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Type         CampaignType   `json:"campaign_type" db:"campaign_type"`
	Name         string         `json:"name" db:"name"`
	Subject      string         `json:"subject" db:"subject"`
	FromName     string         `json:"from_name" db:"from_name"`
	FromEmail    string         `json:"from_email" db:"from_email"`
	TemplateID   *string        `json:"template_id" db:"template_id"`
	HTMLContent  string         `json:"html_content" db:"html_content"`
	TargetFilter TargetFilter   `json:"target_filter" db:"target_filter"`
	Status       CampaignStatus `json:"status" db:"status"`
	ScheduledAt  *time.Time     `json:"scheduled_at" db:"scheduled_at"`

	// Denormalized counters, maintained by the builder and the engine.
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	SentCount       int `json:"sent_count" db:"sent_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed || c.Status == CampaignCancelled
}

// HasContent reports whether the campaign has exactly one content source
// (template reference or inline HTML).
func (c *Campaign) HasContent() bool {
	hasTemplate := c.TemplateID != nil && *c.TemplateID != ""
	hasHTML := c.HTMLContent != ""
	return hasTemplate != hasHTML
}

// TargetFilter is a tagged union keyed by the campaign type. Exactly one
// branch must be set, matching the campaign's type.
type TargetFilter struct {
	Preorder    *PreorderFilter    `json:"preorder,omitempty"`
	Lifecycle   *LifecycleFilter   `json:"lifecycle,omitempty"`
	Promotional *PromotionalFilter `json:"promotional,omitempty"`
}

// PreorderFilter targets customers with an unconverted preorder.
type PreorderFilter struct {
	BoxType string     `json:"box_type"`
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
}

// LifecycleFilter targets newsletter/marketing subscribers.
type LifecycleFilter struct {
	Tags   []string `json:"tags,omitempty"`
	Status string   `json:"status,omitempty"`
}

// PromotionalFilter targets registered customers.
type PromotionalFilter struct {
	OptInOnly    bool       `json:"opt_in_only"`
	SignedUpFrom *time.Time `json:"signed_up_from,omitempty"`
}

// Validate checks that the filter branch matches the campaign type.
func (f TargetFilter) Validate(t CampaignType) error {
	switch t {
	case CampaignPreorderConversion:
		if f.Preorder == nil {
			return fmt.Errorf("campaign type %s requires a preorder filter", t)
		}
	case CampaignLifecycle:
		if f.Lifecycle == nil {
			return fmt.Errorf("campaign type %s requires a lifecycle filter", t)
		}
	case CampaignPromotional:
		if f.Promotional == nil {
			return fmt.Errorf("campaign type %s requires a promotional filter", t)
		}
	default:
		return fmt.Errorf("unknown campaign type %q", t)
	}
	return nil
}
