package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/misor-digital/fitflow-campaigns/internal/auth"
)

// Routes builds the router. Staff endpoints live under /api behind session
// verification with an admin or marketing role. The cron trigger and the
// SES webhook authenticate by other means and sit outside /api.
func Routes(h *Handlers, verifier auth.Verifier, metricsHandler http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/cron/run", h.RunCron)
	r.Post("/webhooks/ses", h.SESWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, "admin", "marketing"))

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)

				r.Post("/schedule", h.ScheduleCampaign)
				r.Post("/start", h.StartCampaign)
				r.Post("/pause", h.PauseCampaign)
				r.Post("/resume", h.ResumeCampaign)
				r.Post("/cancel", h.CancelCampaign)
				r.Post("/test", h.TestSendCampaign)

				r.Get("/recipients", h.ListRecipients)
				r.Get("/recipients/stats", h.RecipientStats)
				r.Get("/history", h.CampaignHistory)

				r.Route("/abtest", func(r chi.Router) {
					r.Post("/", h.CreateABTest)
					r.Get("/", h.ListVariants)
					r.Delete("/", h.DeleteABTest)
					r.Get("/results", h.ABTestResults)
					r.Get("/winner", h.ABTestWinner)
				})
			})
		})
	})

	return r
}
