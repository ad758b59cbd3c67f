package domain

import "time"

// WinnerMetric selects the measurement used to pick an A/B winner.
type WinnerMetric string

const (
	MetricOpenRate  WinnerMetric = "open_rate"
	MetricClickRate WinnerMetric = "click_rate"
)

// Variant is one content alternative in an A/B test. Variants are created
// together (>=2) while the campaign is draft and are immutable afterwards.
type Variant struct {
	ID             string    `json:"id" db:"id"`
	CampaignID     string    `json:"campaign_id" db:"campaign_id"`
	Label          string    `json:"label" db:"label"`
	Subject        string    `json:"subject" db:"subject"`
	HTMLContent    string    `json:"html_content" db:"html_content"`
	RecipientCount int       `json:"recipient_count" db:"recipient_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// VariantResult aggregates delivery and engagement counts for one variant.
type VariantResult struct {
	Label     string  `json:"label"`
	Assigned  int     `json:"assigned"`
	Sent      int     `json:"sent"`
	Opened    int     `json:"opened"`
	Clicked   int     `json:"clicked"`
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

// Rate returns the result's value for the given metric.
func (r VariantResult) Rate(m WinnerMetric) float64 {
	if m == MetricClickRate {
		return r.ClickRate
	}
	return r.OpenRate
}
