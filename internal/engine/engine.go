// Package engine drains a sending campaign's pending recipients in
// fixed-size chunks. Every chunk re-reads campaign status first, so
// pause/cancel take effect at chunk boundaries without interrupting an
// in-flight send, and the whole process is resumable from persisted
// recipient state.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/metrics"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
)

// Message is one rendered email handed to the transport.
type Message struct {
	To         string
	ToName     string
	FromName   string
	FromEmail  string
	Subject    string
	HTML       string
	CampaignID string
}

// Transport delivers a single message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// CampaignStore is the campaign access the engine needs.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	// RefreshCounters recomputes sent_count and failed_count from
	// recipient rows. Counters are derived, never incremented blindly.
	RefreshCounters(ctx context.Context, id string) error
}

// RecipientStore is the recipient access the engine needs. ListPending
// must return rows in stable insertion order. The Mark methods are
// conditional writes gated on status = pending; they report false when the
// row was already in a terminal status.
type RecipientStore interface {
	ListPending(ctx context.Context, campaignID string, limit int) ([]domain.Recipient, error)
	CountPending(ctx context.Context, campaignID string) (int, error)
	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	MarkExcluded(ctx context.Context, id string) (bool, error)
}

// VariantSource lists a campaign's A/B variants, in insertion order.
type VariantSource interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.Variant, error)
}

// UnsubChecker is the send-time unsubscribe recheck.
type UnsubChecker interface {
	IsUnsubscribed(ctx context.Context, email string) (bool, error)
}

// Lifecycle marks a drained campaign completed.
type Lifecycle interface {
	Complete(ctx context.Context, id, actor string) (*domain.Campaign, error)
}

// ChunkResult reports the outcome of one ProcessChunk call.
type ChunkResult struct {
	// Processed is how many recipients this chunk handled, counting
	// sends, failures, and send-time exclusions alike.
	Processed int `json:"processed"`
	// Remaining is the pending count after the chunk.
	Remaining int `json:"remaining"`
	// Completed is true once the campaign is in completed status.
	Completed bool `json:"completed"`
}

// Engine sends campaign email chunk by chunk.
type Engine struct {
	campaigns   CampaignStore
	recipients  RecipientStore
	variants    VariantSource
	unsub       UnsubChecker
	transport   Transport
	templates   TemplateLoader
	renderer    *Renderer
	lifecycle   Lifecycle
	metrics     *metrics.Metrics
	chunkSize   int
	sendTimeout time.Duration
}

// Config bundles the engine's collaborators.
type Config struct {
	Campaigns   CampaignStore
	Recipients  RecipientStore
	Variants    VariantSource
	Unsub       UnsubChecker
	Transport   Transport
	Templates   TemplateLoader
	Lifecycle   Lifecycle
	Metrics     *metrics.Metrics
	ChunkSize   int
	SendTimeout time.Duration
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Engine{
		campaigns:   cfg.Campaigns,
		recipients:  cfg.Recipients,
		variants:    cfg.Variants,
		unsub:       cfg.Unsub,
		transport:   cfg.Transport,
		templates:   cfg.Templates,
		renderer:    NewRenderer(),
		lifecycle:   cfg.Lifecycle,
		metrics:     cfg.Metrics,
		chunkSize:   cfg.ChunkSize,
		sendTimeout: cfg.SendTimeout,
	}
}

// ProcessChunk processes up to one chunk of pending recipients for the
// campaign. It is safe to call repeatedly: a campaign that is paused,
// cancelled, or already completed yields a zero-work result, and every
// recipient write is a conditional pending-gated update.
//
// Transport failures are isolated per recipient; storage failures abort
// the chunk so nothing is silently lost.
func (e *Engine) ProcessChunk(ctx context.Context, campaignID string) (ChunkResult, error) {
	start := time.Now()

	c, err := e.campaigns.Get(ctx, campaignID)
	if err != nil {
		return ChunkResult{}, err
	}

	if c.Status != domain.CampaignSending {
		remaining, err := e.recipients.CountPending(ctx, campaignID)
		if err != nil {
			return ChunkResult{}, err
		}
		return ChunkResult{Remaining: remaining, Completed: c.Status == domain.CampaignCompleted}, nil
	}

	pending, err := e.recipients.ListPending(ctx, campaignID, e.chunkSize)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return e.finish(ctx, c, 0)
	}

	content, err := e.contentFor(ctx, c)
	if err != nil {
		return ChunkResult{}, err
	}

	processed := 0
	for _, r := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := e.sendOne(ctx, c, content, r); err != nil {
			return ChunkResult{}, err
		}
		processed++
	}

	if err := e.campaigns.RefreshCounters(ctx, campaignID); err != nil {
		return ChunkResult{}, fmt.Errorf("refresh counters: %w", err)
	}
	if e.metrics != nil {
		e.metrics.ChunkDurationSeconds.WithLabelValues(string(c.Type)).Observe(time.Since(start).Seconds())
		e.metrics.ChunkProcessed.Observe(float64(processed))
	}
	return e.finish(ctx, c, processed)
}

// finish computes the remaining count and completes the campaign when the
// set is drained.
func (e *Engine) finish(ctx context.Context, c *domain.Campaign, processed int) (ChunkResult, error) {
	remaining, err := e.recipients.CountPending(ctx, c.ID)
	if err != nil {
		return ChunkResult{}, err
	}
	res := ChunkResult{Processed: processed, Remaining: remaining}
	if remaining > 0 {
		return res, nil
	}

	if _, err := e.lifecycle.Complete(ctx, c.ID, domain.SystemActor); err != nil {
		return ChunkResult{}, fmt.Errorf("complete campaign: %w", err)
	}
	res.Completed = true
	logger.Info("campaign completed", "campaign_id", c.ID,
		"total_recipients", c.TotalRecipients)
	return res, nil
}

// SendTest renders the campaign for a sample recipient and delivers it to
// an operator address. The subject is prefixed so the message can never be
// mistaken for the production send. Works in any campaign status and
// touches no recipient rows.
func (e *Engine) SendTest(ctx context.Context, campaignID, toEmail string) error {
	c, err := e.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	content, err := e.contentFor(ctx, c)
	if err != nil {
		return err
	}

	vars := map[string]interface{}{
		"name":          "Test Recipient",
		"email":         toEmail,
		"campaign_name": c.Name,
	}
	body, err := e.renderer.Render("", content.html, vars)
	if err != nil {
		return err
	}
	subject, err := e.renderer.Render("", content.subject, vars)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	_, err = e.transport.Send(sendCtx, Message{
		To:         toEmail,
		FromName:   c.FromName,
		FromEmail:  c.FromEmail,
		Subject:    "[TEST] " + subject,
		HTML:       body,
		CampaignID: c.ID,
	})
	if err != nil {
		return fmt.Errorf("test send: %w", err)
	}
	return nil
}

// variantContent is the per-label resolved subject and body.
type variantContent struct {
	subject string
	html    string
}

// chunkContent is the campaign's content resolved once per chunk.
type chunkContent struct {
	subject  string
	html     string
	variants map[string]variantContent
}

func (e *Engine) contentFor(ctx context.Context, c *domain.Campaign) (*chunkContent, error) {
	html := c.HTMLContent
	if c.TemplateID != nil && *c.TemplateID != "" {
		var err error
		html, err = e.templates.HTML(ctx, *c.TemplateID)
		if err != nil {
			return nil, err
		}
	}

	content := &chunkContent{
		subject:  c.Subject,
		html:     html,
		variants: make(map[string]variantContent),
	}

	vs, err := e.variants.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	for _, v := range vs {
		vc := variantContent{subject: v.Subject, html: v.HTMLContent}
		if vc.html == "" {
			vc.html = html
		}
		content.variants[v.Label] = vc
	}
	return content, nil
}

func (e *Engine) sendOne(ctx context.Context, c *domain.Campaign, content *chunkContent, r domain.Recipient) error {
	unsubbed, err := e.unsub.IsUnsubscribed(ctx, r.Email)
	if err != nil {
		return fmt.Errorf("unsubscribe recheck: %w", err)
	}
	if unsubbed {
		if _, err := e.recipients.MarkExcluded(ctx, r.ID); err != nil {
			return fmt.Errorf("mark excluded: %w", err)
		}
		if e.metrics != nil {
			e.metrics.EmailsExcludedTotal.WithLabelValues(string(c.Type)).Inc()
		}
		logger.Debug("recipient excluded at send time",
			"campaign_id", c.ID, "recipient", r.Email)
		return nil
	}

	subject, html, cacheKey := content.subject, content.html, c.ID
	if r.VariantLabel != nil {
		if vc, ok := content.variants[*r.VariantLabel]; ok {
			subject, html = vc.subject, vc.html
			cacheKey = c.ID + ":" + *r.VariantLabel
		}
	}

	vars := map[string]interface{}{
		"name":          r.Name,
		"email":         r.Email,
		"campaign_name": c.Name,
	}
	body, err := e.renderer.Render(cacheKey, html, vars)
	if err != nil {
		// Content is shared by the whole chunk; a broken template fails
		// every recipient, so abort instead of burning through the set.
		return err
	}
	renderedSubject, err := e.renderer.Render(cacheKey+":subject", subject, vars)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	msgID, sendErr := e.transport.Send(sendCtx, Message{
		To:         r.Email,
		ToName:     r.Name,
		FromName:   c.FromName,
		FromEmail:  c.FromEmail,
		Subject:    renderedSubject,
		HTML:       body,
		CampaignID: c.ID,
	})
	cancel()

	if sendErr != nil {
		if _, err := e.recipients.MarkFailed(ctx, r.ID, sendErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if e.metrics != nil {
			e.metrics.EmailsFailedTotal.WithLabelValues(string(c.Type)).Inc()
		}
		logger.Warn("send failed", "campaign_id", c.ID,
			"recipient", r.Email, "error", sendErr.Error())
		return nil
	}

	if _, err := e.recipients.MarkSent(ctx, r.ID, msgID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if e.metrics != nil {
		e.metrics.EmailsSentTotal.WithLabelValues(string(c.Type)).Inc()
	}
	return nil
}
