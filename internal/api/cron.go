package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/misor-digital/fitflow-campaigns/internal/cron"
)

// CronRunner executes one bounded processing pass.
type CronRunner interface {
	Run(ctx context.Context) (cron.RunReport, error)
}

// RunCron is the external scheduler's entry point. It is guarded by a
// shared secret rather than staff auth because the caller is a platform
// scheduler, not a person.
func (h *Handlers) RunCron(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(r) {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.cron.Run(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handlers) checkInternalSecret(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	given := r.Header.Get("X-Cron-Secret")
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.cronSecret)) == 1
}
