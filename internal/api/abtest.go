package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/service/abtest"
)

func (h *Handlers) CreateABTest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Variants []abtest.VariantInput `json:"variants"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	vs, err := h.abtests.Create(r.Context(), chi.URLParam(r, "id"), in.Variants)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"variants": vs})
}

func (h *Handlers) ListVariants(w http.ResponseWriter, r *http.Request) {
	vs, err := h.abtests.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"variants": vs})
}

func (h *Handlers) DeleteABTest(w http.ResponseWriter, r *http.Request) {
	if err := h.abtests.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handlers) ABTestResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.abtests.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handlers) ABTestWinner(w http.ResponseWriter, r *http.Request) {
	metric := domain.WinnerMetric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = domain.MetricOpenRate
	}
	if metric != domain.MetricOpenRate && metric != domain.MetricClickRate {
		respondError(w, http.StatusBadRequest, "metric must be open_rate or click_rate")
		return
	}

	winner, err := h.abtests.Winner(r.Context(), chi.URLParam(r, "id"), metric)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if winner == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"winner": nil,
			"metric": metric,
			"reason": "tie",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"winner": winner,
		"metric": metric,
	})
}
