package cron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misor-digital/fitflow-campaigns/internal/cron"
	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/engine"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/distlock"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
)

type memSource struct {
	due     []domain.Campaign
	sending []domain.Campaign
}

func (m *memSource) ListDueScheduled(_ context.Context, _ time.Time) ([]domain.Campaign, error) {
	return m.due, nil
}

func (m *memSource) ListByStatus(_ context.Context, _ domain.CampaignStatus) ([]domain.Campaign, error) {
	return m.sending, nil
}

type fakeLifecycle struct {
	started  []string
	triggers []campaign.StartTrigger
	stalls   []string
	startErr error
}

func (f *fakeLifecycle) Start(_ context.Context, id, _ string, trigger campaign.StartTrigger) (*domain.Campaign, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, id)
	f.triggers = append(f.triggers, trigger)
	return &domain.Campaign{ID: id, Status: domain.CampaignSending}, nil
}

func (f *fakeLifecycle) RecordStall(_ context.Context, id, _ string, _ time.Time) error {
	f.stalls = append(f.stalls, id)
	return nil
}

type fakeProcessor struct {
	results map[string][]engine.ChunkResult
	calls   map[string]int
	err     error
}

func (f *fakeProcessor) ProcessChunk(_ context.Context, campaignID string) (engine.ChunkResult, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	if f.err != nil {
		return engine.ChunkResult{}, f.err
	}
	queue := f.results[campaignID]
	i := f.calls[campaignID]
	f.calls[campaignID]++
	if i >= len(queue) {
		return engine.ChunkResult{Completed: true}, nil
	}
	return queue[i], nil
}

func redisLease(t *testing.T) (*redis.Client, distlock.Lease) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, distlock.NewRedisLease(client, "cron:run", time.Minute)
}

func sendingCampaign(id string) domain.Campaign {
	return domain.Campaign{ID: id, Status: domain.CampaignSending, UpdatedAt: time.Now()}
}

func TestRunPromotesDueScheduled(t *testing.T) {
	_, lease := redisLease(t)
	lifecycle := &fakeLifecycle{}
	d := cron.New(cron.Config{
		Campaigns: &memSource{due: []domain.Campaign{
			{ID: "camp-1", Status: domain.CampaignScheduled},
			{ID: "camp-2", Status: domain.CampaignScheduled},
		}},
		Lifecycle: lifecycle,
		Processor: &fakeProcessor{},
		Lease:     lease,
	})

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Promoted)
	assert.Equal(t, []string{"camp-1", "camp-2"}, lifecycle.started)
	assert.Equal(t, campaign.TriggerSchedule, lifecycle.triggers[0])
}

func TestRunDrainsSendingCampaigns(t *testing.T) {
	_, lease := redisLease(t)
	processor := &fakeProcessor{results: map[string][]engine.ChunkResult{
		"camp-1": {
			{Processed: 200, Remaining: 250},
			{Processed: 200, Remaining: 50},
			{Processed: 50, Remaining: 0, Completed: true},
		},
		"camp-2": {
			{Processed: 30, Remaining: 0, Completed: true},
		},
	}}
	d := cron.New(cron.Config{
		Campaigns: &memSource{sending: []domain.Campaign{
			sendingCampaign("camp-1"), sendingCampaign("camp-2"),
		}},
		Lifecycle: &fakeLifecycle{},
		Processor: processor,
		Lease:     lease,
	})

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 480, report.Processed)
	assert.Equal(t, 2, report.Campaigns)
	assert.False(t, report.BudgetExhausted)
	assert.Equal(t, 3, processor.calls["camp-1"])
}

func TestRunStopsOnBudget(t *testing.T) {
	_, lease := redisLease(t)
	processor := &fakeProcessor{results: map[string][]engine.ChunkResult{
		"camp-1": {{Processed: 200, Remaining: 800}},
	}}
	d := cron.New(cron.Config{
		Campaigns: &memSource{sending: []domain.Campaign{sendingCampaign("camp-1")}},
		Lifecycle: &fakeLifecycle{},
		Processor: processor,
		Lease:     lease,
		Budget:    time.Nanosecond,
	})

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.BudgetExhausted)
	assert.Zero(t, report.Processed)
	assert.Zero(t, processor.calls["camp-1"])
}

func TestRunSkipsWhenLeaseHeld(t *testing.T) {
	client, lease := redisLease(t)
	other := distlock.NewRedisLease(client, "cron:run", time.Minute)
	held, err := other.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, held)

	processor := &fakeProcessor{}
	d := cron.New(cron.Config{
		Campaigns: &memSource{sending: []domain.Campaign{sendingCampaign("camp-1")}},
		Lifecycle: &fakeLifecycle{},
		Processor: processor,
		Lease:     lease,
	})

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Processed)
	assert.Empty(t, processor.calls)
}

func TestRunReleasesLease(t *testing.T) {
	_, lease := redisLease(t)
	d := cron.New(cron.Config{
		Campaigns: &memSource{},
		Lifecycle: &fakeLifecycle{},
		Processor: &fakeProcessor{},
		Lease:     lease,
	})

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	// A fresh run can take the lease again.
	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
}

func TestRunRecordsStalls(t *testing.T) {
	_, lease := redisLease(t)
	lifecycle := &fakeLifecycle{}
	stale := sendingCampaign("camp-stale")
	stale.UpdatedAt = time.Now().Add(-3 * time.Hour)
	d := cron.New(cron.Config{
		Campaigns:      &memSource{sending: []domain.Campaign{stale, sendingCampaign("camp-fresh")}},
		Lifecycle:      lifecycle,
		Processor:      &fakeProcessor{},
		Lease:          lease,
		StallThreshold: 2 * time.Hour,
	})

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stalled)
	assert.Equal(t, []string{"camp-stale"}, lifecycle.stalls)
}

func TestRunIsolatesCampaignFailures(t *testing.T) {
	_, lease := redisLease(t)
	lifecycle := &fakeLifecycle{startErr: errors.New("no recipients")}
	processor := &fakeProcessor{results: map[string][]engine.ChunkResult{
		"camp-ok": {{Processed: 10, Remaining: 0, Completed: true}},
	}}
	d := cron.New(cron.Config{
		Campaigns: &memSource{
			due:     []domain.Campaign{{ID: "camp-bad", Status: domain.CampaignScheduled}},
			sending: []domain.Campaign{sendingCampaign("camp-ok")},
		},
		Lifecycle: lifecycle,
		Processor: processor,
		Lease:     lease,
	})

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Promoted)
	assert.Equal(t, 10, report.Processed)
}
