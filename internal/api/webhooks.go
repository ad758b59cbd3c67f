package api

import (
	"context"
	"net/http"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
)

// RecipientEventSink applies provider delivery events to recipient rows.
type RecipientEventSink interface {
	MarkBouncedByProviderID(ctx context.Context, providerMessageID string) (bool, error)
	MarkOpenedByProviderID(ctx context.Context, providerMessageID string, at time.Time) (bool, error)
	MarkClickedByProviderID(ctx context.Context, providerMessageID string, at time.Time) (bool, error)
}

// Unsubscriber records opt-outs arriving via provider events.
type Unsubscriber interface {
	Record(ctx context.Context, email, source string) error
}

// sesEvent is the subset of the SES event destination payload we consume.
type sesEvent struct {
	EventType string `json:"eventType"`
	Mail      struct {
		MessageID   string   `json:"messageId"`
		Destination []string `json:"destination"`
	} `json:"mail"`
	Bounce struct {
		BounceType string `json:"bounceType"`
	} `json:"bounce"`
}

// SESWebhook ingests SES delivery events: permanent bounces flip recipient
// rows, complaints feed the unsubscribe registry, opens and clicks stamp
// engagement timestamps for A/B results. Unknown events are acknowledged
// and dropped; SES retries on non-2xx and these events are replay-safe.
func (h *Handlers) SESWebhook(w http.ResponseWriter, r *http.Request) {
	var ev sesEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	if ev.Mail.MessageID == "" {
		respondError(w, http.StatusBadRequest, "missing mail.messageId")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	var err error
	applied := false

	switch ev.EventType {
	case "Bounce":
		if ev.Bounce.BounceType == "Permanent" {
			applied, err = h.events.MarkBouncedByProviderID(ctx, ev.Mail.MessageID)
		}
	case "Complaint":
		for _, email := range ev.Mail.Destination {
			if err = h.unsubs.Record(ctx, email, "complaint"); err != nil {
				break
			}
		}
		applied = err == nil
	case "Open":
		applied, err = h.events.MarkOpenedByProviderID(ctx, ev.Mail.MessageID, now)
	case "Click":
		applied, err = h.events.MarkClickedByProviderID(ctx, ev.Mail.MessageID, now)
	default:
		logger.Debug("ignoring ses event", "event_type", ev.EventType)
	}

	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"applied":  applied,
	})
}
