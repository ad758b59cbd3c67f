package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/misor-digital/fitflow-campaigns/internal/auth"
	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

// RecipientReader exposes the recipient read paths the API serves.
type RecipientReader interface {
	List(ctx context.Context, campaignID, status string, limit, offset int) ([]domain.Recipient, int, error)
	Stats(ctx context.Context, campaignID string) (*domain.RecipientStats, error)
}

// TestSender renders and delivers a test email for a campaign.
type TestSender interface {
	SendTest(ctx context.Context, campaignID, toEmail string) error
}

func actorFrom(r *http.Request) string {
	if s := auth.FromContext(r.Context()); s != nil && s.Email != "" {
		return s.Email
	}
	return "operator"
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}

	actor := actorFrom(r)
	c, err := h.campaigns.Create(r.Context(), actor, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// A draft is created with its recipient set already materialized so
	// the operator sees the audience size before starting.
	if _, err := h.builder.Rebuild(r.Context(), c, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	c, err = h.campaigns.Get(r.Context(), c.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	f := campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	items, total, err := h.campaigns.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": items,
		"total":     total,
		"limit":     f.Limit,
		"offset":    f.Offset,
	})
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var u campaign.UpdateFields
	if !decodeBody(w, r, &u) {
		return
	}

	actor := actorFrom(r)
	if err := h.campaigns.UpdateDraft(r.Context(), id, actor, u); err != nil {
		respondServiceError(w, err)
		return
	}

	// A filter change invalidates the recipient set: rebuild, recount,
	// and redo any variant assignment against the new set.
	if u.TargetFilter != nil {
		c, err := h.campaigns.Get(r.Context(), id)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if _, err := h.builder.Rebuild(r.Context(), c, actor); err != nil {
			respondServiceError(w, err)
			return
		}
		if err := h.abtests.Reassign(r.Context(), id); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if !in.ScheduledAt.After(time.Now()) {
		respondError(w, http.StatusBadRequest, "scheduled_at must be in the future")
		return
	}

	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), actorFrom(r), in.ScheduledAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Start(r.Context(), chi.URLParam(r, "id"), actorFrom(r), campaign.TriggerManual)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	// Body is optional for pause.
	_ = decodeOptionalBody(r, &in)

	c, err := h.campaigns.Pause(r.Context(), chi.URLParam(r, "id"), actorFrom(r), in.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Resume(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) TestSendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in struct {
		ToEmail string `json:"to_email"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.ToEmail == "" {
		respondError(w, http.StatusBadRequest, "to_email is required")
		return
	}

	if err := h.tester.SendTest(r.Context(), id, in.ToEmail); err != nil {
		respondServiceError(w, err)
		return
	}
	actor := actorFrom(r)
	if err := h.campaigns.RecordTestSend(r.Context(), id, actor, in.ToEmail); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (h *Handlers) ListRecipients(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, total, err := h.recipients.List(r.Context(), id,
		r.URL.Query().Get("status"), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"recipients": items,
		"total":      total,
	})
}

func (h *Handlers) RecipientStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recipients.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) CampaignHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.campaigns.History(r.Context(), chi.URLParam(r, "id"),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
