// Package api exposes the operator-facing HTTP surface: campaign CRUD and
// lifecycle, A/B tests, recipient views, the cron trigger, and the SES
// event webhook.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
	"github.com/misor-digital/fitflow-campaigns/internal/service/abtest"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

// CampaignService is the lifecycle surface the handlers call.
type CampaignService interface {
	Create(ctx context.Context, actor string, in campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	UpdateDraft(ctx context.Context, id, actor string, u campaign.UpdateFields) error
	Delete(ctx context.Context, id string) error
	Schedule(ctx context.Context, id, actor string, at time.Time) (*domain.Campaign, error)
	Start(ctx context.Context, id, actor string, trigger campaign.StartTrigger) (*domain.Campaign, error)
	Pause(ctx context.Context, id, actor, reason string) (*domain.Campaign, error)
	Resume(ctx context.Context, id, actor string) (*domain.Campaign, error)
	Cancel(ctx context.Context, id, actor string) (*domain.Campaign, error)
	RecordTestSend(ctx context.Context, id, actor, toEmail string) error
	History(ctx context.Context, id string, limit, offset int) ([]domain.HistoryEntry, error)
}

// RecipientRebuilder replaces a campaign's recipient set.
type RecipientRebuilder interface {
	Rebuild(ctx context.Context, c *domain.Campaign, actor string) (int, error)
}

// ABTestService is the variant surface the handlers call.
type ABTestService interface {
	Create(ctx context.Context, campaignID string, inputs []abtest.VariantInput) ([]domain.Variant, error)
	List(ctx context.Context, campaignID string) ([]domain.Variant, error)
	Delete(ctx context.Context, campaignID string) error
	Reassign(ctx context.Context, campaignID string) error
	Results(ctx context.Context, campaignID string) ([]domain.VariantResult, error)
	Winner(ctx context.Context, campaignID string, metric domain.WinnerMetric) (*domain.VariantResult, error)
}

// Handlers carries the wired services behind the HTTP surface.
type Handlers struct {
	campaigns  CampaignService
	builder    RecipientRebuilder
	abtests    ABTestService
	recipients RecipientReader
	events     RecipientEventSink
	unsubs     Unsubscriber
	tester     TestSender
	cron       CronRunner
	cronSecret string
}

// HandlersConfig bundles the handler dependencies.
type HandlersConfig struct {
	Campaigns  CampaignService
	Builder    RecipientRebuilder
	ABTests    ABTestService
	Recipients RecipientReader
	Events     RecipientEventSink
	Unsubs     Unsubscriber
	Tester     TestSender
	Cron       CronRunner
	CronSecret string
}

// NewHandlers creates the handler set.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		campaigns:  cfg.Campaigns,
		builder:    cfg.Builder,
		abtests:    cfg.ABTests,
		recipients: cfg.Recipients,
		events:     cfg.Events,
		unsubs:     cfg.Unsubs,
		tester:     cfg.Tester,
		cron:       cfg.Cron,
		cronSecret: cfg.CronSecret,
	}
}

// Health reports service liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Server wraps the HTTP server lifecycle.
type Server struct {
	server *http.Server
}

// NewServer creates an HTTP server for the given handler on the port.
func NewServer(port int, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	logger.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// decodeOptionalBody decodes a JSON body when one is present. An empty
// body is not an error.
func decodeOptionalBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
