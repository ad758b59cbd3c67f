package domain

import "time"

// HistoryAction names an auditable campaign event.
type HistoryAction string

const (
	HistoryStarted         HistoryAction = "started"
	HistoryPaused          HistoryAction = "paused"
	HistoryResumed         HistoryAction = "resumed"
	HistoryCancelled       HistoryAction = "cancelled"
	HistoryCompleted       HistoryAction = "completed"
	HistoryScheduled       HistoryAction = "scheduled"
	HistoryUpdated         HistoryAction = "updated"
	HistoryStalled         HistoryAction = "stalled_detected"
	HistoryTestSent        HistoryAction = "test_sent"
	HistoryRecipientsBuilt HistoryAction = "recipients_built"
)

// SystemActor is the reserved identity used when the engine or the cron
// driver mutates a campaign without a human session.
const SystemActor = "system:cron"

// HistoryEntry is one append-only audit row. Rows are never mutated or
// deleted except by cascade when a draft campaign is deleted.
type HistoryEntry struct {
	ID         string            `json:"id" db:"id"`
	CampaignID string            `json:"campaign_id" db:"campaign_id"`
	Action     HistoryAction     `json:"action" db:"action"`
	ChangedBy  string            `json:"changed_by" db:"changed_by"`
	Metadata   map[string]string `json:"metadata,omitempty" db:"metadata"`
	Notes      string            `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
