// Package cron drives the periodic work: promoting due scheduled campaigns,
// draining sending campaigns chunk by chunk, and flagging stalls.
//
// Each run is bounded by a wall-clock budget sized to fit inside the
// scheduler platform's invocation limit. The budget gates starting new
// units of work; it never interrupts a chunk already in flight. Runs are
// serialized through a shared-storage lease, so overlapping invocations
// across hosts collapse to one.
package cron

import (
	"context"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/engine"
	"github.com/misor-digital/fitflow-campaigns/internal/metrics"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/distlock"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

// CampaignSource lists the campaigns a run operates on.
type CampaignSource interface {
	ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error)
}

// Lifecycle is the slice of the campaign service the driver needs.
type Lifecycle interface {
	Start(ctx context.Context, id, actor string, trigger campaign.StartTrigger) (*domain.Campaign, error)
	RecordStall(ctx context.Context, id, actor string, lastProgress time.Time) error
}

// Processor sends one chunk for a campaign.
type Processor interface {
	ProcessChunk(ctx context.Context, campaignID string) (engine.ChunkResult, error)
}

// RunReport summarizes one driver run.
type RunReport struct {
	// Skipped is true when another run held the lease.
	Skipped bool `json:"skipped"`
	// Promoted is how many scheduled campaigns were moved to sending.
	Promoted int `json:"promoted"`
	// Processed is the total recipients handled across all chunks.
	Processed int `json:"processed"`
	// Campaigns is how many sending campaigns received at least one chunk.
	Campaigns int `json:"campaigns"`
	// Stalled is how many sending campaigns showed no recent progress.
	Stalled int `json:"stalled"`
	// BudgetExhausted is true when the run stopped on the wall-clock
	// budget with work left over.
	BudgetExhausted bool `json:"budget_exhausted"`
}

// Driver executes one bounded unit of campaign processing per run.
type Driver struct {
	campaigns      CampaignSource
	lifecycle      Lifecycle
	processor      Processor
	lease          distlock.Lease
	metrics        *metrics.Metrics
	budget         time.Duration
	stallThreshold time.Duration
}

// Config bundles the driver's collaborators.
type Config struct {
	Campaigns      CampaignSource
	Lifecycle      Lifecycle
	Processor      Processor
	Lease          distlock.Lease
	Metrics        *metrics.Metrics
	Budget         time.Duration
	StallThreshold time.Duration
}

// New creates a driver.
func New(cfg Config) *Driver {
	if cfg.Budget <= 0 {
		cfg.Budget = 50 * time.Second
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 2 * time.Hour
	}
	return &Driver{
		campaigns:      cfg.Campaigns,
		lifecycle:      cfg.Lifecycle,
		processor:      cfg.Processor,
		lease:          cfg.Lease,
		metrics:        cfg.Metrics,
		budget:         cfg.Budget,
		stallThreshold: cfg.StallThreshold,
	}
}

// Run executes one driver pass. Failures on one campaign never block the
// others; each is logged and the run moves on.
func (d *Driver) Run(ctx context.Context) (RunReport, error) {
	var report RunReport

	acquired, err := d.lease.Acquire(ctx)
	if err != nil {
		return report, err
	}
	if !acquired {
		report.Skipped = true
		d.countRun("skipped")
		logger.Info("cron run skipped, lease held elsewhere")
		return report, nil
	}
	defer func() {
		if err := d.lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("lease release failed", "error", err.Error())
		}
	}()

	start := time.Now()
	deadline := start.Add(d.budget)

	d.promoteDue(ctx, deadline, &report)
	d.processSending(ctx, deadline, &report)

	d.countRun("ok")
	if report.BudgetExhausted && d.metrics != nil {
		d.metrics.CronBudgetExhausted.Inc()
	}
	if d.metrics != nil {
		d.metrics.StalledCampaigns.Set(float64(report.Stalled))
	}

	logger.Info("cron run finished",
		"promoted", report.Promoted, "processed", report.Processed,
		"campaigns", report.Campaigns, "stalled", report.Stalled,
		"budget_exhausted", report.BudgetExhausted,
		"elapsed_ms", time.Since(start).Milliseconds())
	return report, nil
}

// RunEvery runs the driver on a ticker until the context is cancelled.
// Meant for single-host deployments without an external scheduler.
func (d *Driver) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Run(ctx); err != nil {
				logger.Error("cron run failed", "error", err.Error())
			}
		}
	}
}

func (d *Driver) promoteDue(ctx context.Context, deadline time.Time, report *RunReport) {
	due, err := d.campaigns.ListDueScheduled(ctx, time.Now())
	if err != nil {
		logger.Error("list due scheduled failed", "error", err.Error())
		return
	}
	for _, c := range due {
		if time.Now().After(deadline) {
			report.BudgetExhausted = true
			return
		}
		if _, err := d.lifecycle.Start(ctx, c.ID, domain.SystemActor, campaign.TriggerSchedule); err != nil {
			logger.Error("scheduled promotion failed",
				"campaign_id", c.ID, "error", err.Error())
			continue
		}
		report.Promoted++
		if d.metrics != nil {
			d.metrics.CampaignsPromoted.Inc()
		}
	}
}

func (d *Driver) processSending(ctx context.Context, deadline time.Time, report *RunReport) {
	sending, err := d.campaigns.ListByStatus(ctx, domain.CampaignSending)
	if err != nil {
		logger.Error("list sending campaigns failed", "error", err.Error())
		return
	}

	for _, c := range sending {
		if d.stallThreshold > 0 && time.Since(c.UpdatedAt) > d.stallThreshold {
			report.Stalled++
			if err := d.lifecycle.RecordStall(ctx, c.ID, domain.SystemActor, c.UpdatedAt); err != nil {
				logger.Error("stall record failed", "campaign_id", c.ID, "error", err.Error())
			}
		}
	}

	for _, c := range sending {
		if time.Now().After(deadline) {
			report.BudgetExhausted = true
			return
		}
		// Chunks repeat until the campaign drains or the budget expires.
		// ListByStatus orders by updated_at and every chunk bumps it, so
		// campaigns serviced this run sort behind starved ones next run.
		worked := false
		for {
			if time.Now().After(deadline) {
				report.BudgetExhausted = true
				if worked {
					report.Campaigns++
				}
				return
			}
			res, err := d.processor.ProcessChunk(ctx, c.ID)
			if err != nil {
				logger.Error("chunk failed", "campaign_id", c.ID, "error", err.Error())
				break
			}
			report.Processed += res.Processed
			worked = worked || res.Processed > 0
			if res.Completed || res.Remaining == 0 || res.Processed == 0 {
				break
			}
		}
		if worked {
			report.Campaigns++
		}
	}
}

func (d *Driver) countRun(outcome string) {
	if d.metrics != nil {
		d.metrics.CronRunsTotal.WithLabelValues(outcome).Inc()
	}
}
