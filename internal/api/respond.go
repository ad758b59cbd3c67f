package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
	"github.com/misor-digital/fitflow-campaigns/internal/service/abtest"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("encode response failed", "error", err.Error())
		}
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// respondServiceError maps service-layer errors onto HTTP codes. Invalid
// transitions carry the current and requested state so the operator UI can
// explain the conflict.
func respondServiceError(w http.ResponseWriter, err error) {
	var te *campaign.TransitionError
	switch {
	case errors.As(err, &te):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":     "INVALID_TRANSITION",
			"current":   string(te.Current),
			"requested": string(te.Requested),
		})
	case errors.Is(err, campaign.ErrNotFound):
		respondError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, campaign.ErrNotDraft):
		respondError(w, http.StatusConflict, "campaign is not editable in its current status")
	case errors.Is(err, campaign.ErrNoRecipients):
		respondError(w, http.StatusConflict, "campaign has no recipients")
	case errors.Is(err, campaign.ErrMissingContent):
		respondError(w, http.StatusBadRequest, "exactly one of template_id or html_content is required")
	case errors.Is(err, abtest.ErrTooFewVariants),
		errors.Is(err, abtest.ErrDuplicateLabel):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, abtest.ErrNoTest):
		respondError(w, http.StatusNotFound, "campaign has no a/b test")
	case errors.Is(err, abtest.ErrNotFinished):
		respondError(w, http.StatusConflict, "campaign has not finished sending")
	default:
		logger.Error("request failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
