package domain

import "time"

// RecipientStatus enumerates the delivery states of a single
// (campaign, contact) pairing. Terminal statuses are write-once: the engine
// only ever transitions pending -> sent|failed|unsubscribed_excluded, and the
// webhook consumer only ever transitions sent -> bounced.
type RecipientStatus string

const (
	RecipientPending  RecipientStatus = "pending"
	RecipientSent     RecipientStatus = "sent"
	RecipientFailed   RecipientStatus = "failed"
	RecipientBounced  RecipientStatus = "bounced"
	RecipientExcluded RecipientStatus = "unsubscribed_excluded"
)

// Recipient is one row per campaign and target contact.
type Recipient struct {
	ID                string          `json:"id" db:"id"`
	CampaignID        string          `json:"campaign_id" db:"campaign_id"`
	Email             string          `json:"email" db:"email"`
	Name              string          `json:"name" db:"name"`
	Status            RecipientStatus `json:"status" db:"status"`
	VariantLabel      *string         `json:"variant_label" db:"variant_label"`
	ProviderMessageID *string         `json:"provider_message_id" db:"provider_message_id"`
	Error             string          `json:"error,omitempty" db:"error"`
	SentAt            *time.Time      `json:"sent_at" db:"sent_at"`
	OpenedAt          *time.Time      `json:"opened_at" db:"opened_at"`
	ClickedAt         *time.Time      `json:"clicked_at" db:"clicked_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Contact is a deliverable address produced by a builder strategy.
type Contact struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RecipientStats aggregates recipient counts per status for one campaign.
type RecipientStats struct {
	Pending  int `json:"pending"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Bounced  int `json:"bounced"`
	Excluded int `json:"unsubscribed_excluded"`
	Total    int `json:"total"`
}
