package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misor-digital/fitflow-campaigns/internal/domain"
	"github.com/misor-digital/fitflow-campaigns/internal/engine"
)

type memCampaigns struct {
	c         *domain.Campaign
	refreshes int
}

func (m *memCampaigns) Get(_ context.Context, _ string) (*domain.Campaign, error) {
	cp := *m.c
	return &cp, nil
}

func (m *memCampaigns) RefreshCounters(_ context.Context, _ string) error {
	m.refreshes++
	return nil
}

func (m *memCampaigns) Complete(_ context.Context, _, _ string) (*domain.Campaign, error) {
	if m.c.Status != domain.CampaignSending {
		return nil, errors.New("not sending")
	}
	m.c.Status = domain.CampaignCompleted
	return m.c, nil
}

type memRecipients struct {
	rows []domain.Recipient
}

func (m *memRecipients) ListPending(_ context.Context, _ string, limit int) ([]domain.Recipient, error) {
	var out []domain.Recipient
	for _, r := range m.rows {
		if r.Status == domain.RecipientPending {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memRecipients) CountPending(_ context.Context, _ string) (int, error) {
	n := 0
	for _, r := range m.rows {
		if r.Status == domain.RecipientPending {
			n++
		}
	}
	return n, nil
}

func (m *memRecipients) mark(id string, to domain.RecipientStatus, reason string) (bool, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			if m.rows[i].Status != domain.RecipientPending {
				return false, nil
			}
			m.rows[i].Status = to
			m.rows[i].Error = reason
			return true, nil
		}
	}
	return false, errors.New("no such recipient")
}

func (m *memRecipients) MarkSent(_ context.Context, id, msgID string, at time.Time) (bool, error) {
	ok, err := m.mark(id, domain.RecipientSent, "")
	if ok {
		for i := range m.rows {
			if m.rows[i].ID == id {
				m.rows[i].ProviderMessageID = &msgID
				m.rows[i].SentAt = &at
			}
		}
	}
	return ok, err
}

func (m *memRecipients) MarkFailed(_ context.Context, id, reason string) (bool, error) {
	return m.mark(id, domain.RecipientFailed, reason)
}

func (m *memRecipients) MarkExcluded(_ context.Context, id string) (bool, error) {
	return m.mark(id, domain.RecipientExcluded, "")
}

func (m *memRecipients) count(s domain.RecipientStatus) int {
	n := 0
	for _, r := range m.rows {
		if r.Status == s {
			n++
		}
	}
	return n
}

type stubVariants struct{ vs []domain.Variant }

func (s *stubVariants) ListByCampaign(_ context.Context, _ string) ([]domain.Variant, error) {
	return s.vs, nil
}

type stubUnsub struct{ emails map[string]bool }

func (s *stubUnsub) IsUnsubscribed(_ context.Context, email string) (bool, error) {
	return s.emails[email], nil
}

type fakeTransport struct {
	sent    []engine.Message
	failFor map[string]error
}

func (f *fakeTransport) Send(_ context.Context, msg engine.Message) (string, error) {
	if err := f.failFor[msg.To]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

type fixture struct {
	campaigns  *memCampaigns
	recipients *memRecipients
	transport  *fakeTransport
	engine     *engine.Engine
}

func newFixture(t *testing.T, recipientCount, chunkSize int) *fixture {
	t.Helper()
	c := &domain.Campaign{
		ID:              "camp-1",
		Type:            domain.CampaignPromotional,
		Name:            "Spring promo",
		Subject:         "Hi {{ name }}",
		FromName:        "FitFlow",
		FromEmail:       "hello@fitflow.example",
		HTMLContent:     "<p>Hello {{ name }}</p>",
		Status:          domain.CampaignSending,
		TotalRecipients: recipientCount,
	}
	campaigns := &memCampaigns{c: c}
	recipients := &memRecipients{}
	for i := 0; i < recipientCount; i++ {
		recipients.rows = append(recipients.rows, domain.Recipient{
			ID:         fmt.Sprintf("r-%04d", i),
			CampaignID: c.ID,
			Email:      fmt.Sprintf("member%d@example.com", i),
			Name:       fmt.Sprintf("Member %d", i),
			Status:     domain.RecipientPending,
		})
	}
	transport := &fakeTransport{failFor: map[string]error{}}

	eng := engine.New(engine.Config{
		Campaigns:  campaigns,
		Recipients: recipients,
		Variants:   &stubVariants{},
		Unsub:      &stubUnsub{emails: map[string]bool{}},
		Transport:  transport,
		Templates:  engine.DirTemplates{Dir: t.TempDir()},
		Lifecycle:  campaigns,
		ChunkSize:  chunkSize,
	})
	return &fixture{campaigns: campaigns, recipients: recipients, transport: transport, engine: eng}
}

func TestProcessChunkDrainsInChunks(t *testing.T) {
	fx := newFixture(t, 450, 200)
	ctx := context.Background()

	res, err := fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ChunkResult{Processed: 200, Remaining: 250}, res)

	res, err = fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ChunkResult{Processed: 200, Remaining: 50}, res)

	res, err = fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ChunkResult{Processed: 50, Remaining: 0, Completed: true}, res)

	assert.Equal(t, domain.CampaignCompleted, fx.campaigns.c.Status)
	assert.Len(t, fx.transport.sent, 450)

	// Nothing left; a fourth call is a no-op that still reports completion.
	res, err = fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ChunkResult{Completed: true}, res)
	assert.Len(t, fx.transport.sent, 450)
}

func TestProcessChunkRespectsPause(t *testing.T) {
	fx := newFixture(t, 10, 4)
	ctx := context.Background()

	_, err := fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)

	fx.campaigns.c.Status = domain.CampaignPaused
	res, err := fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ChunkResult{Processed: 0, Remaining: 6}, res)
	assert.Len(t, fx.transport.sent, 4)

	// Resume picks up exactly where the pause left off.
	fx.campaigns.c.Status = domain.CampaignSending
	res, err = fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, "member4@example.com", fx.transport.sent[4].To)
}

func TestProcessChunkIsolatesTransportFailures(t *testing.T) {
	fx := newFixture(t, 5, 10)
	fx.transport.failFor["member2@example.com"] = errors.New("mailbox unavailable")
	ctx := context.Background()

	res, err := fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
	assert.True(t, res.Completed)

	assert.Equal(t, 4, fx.recipients.count(domain.RecipientSent))
	assert.Equal(t, 1, fx.recipients.count(domain.RecipientFailed))
	for _, r := range fx.recipients.rows {
		if r.Status == domain.RecipientFailed {
			assert.Equal(t, "member2@example.com", r.Email)
			assert.Equal(t, "mailbox unavailable", r.Error)
		}
	}
}

func TestProcessChunkExcludesUnsubscribedAtSendTime(t *testing.T) {
	fx := newFixture(t, 3, 10)
	ctx := context.Background()

	eng := engine.New(engine.Config{
		Campaigns:  fx.campaigns,
		Recipients: fx.recipients,
		Variants:   &stubVariants{},
		Unsub:      &stubUnsub{emails: map[string]bool{"member1@example.com": true}},
		Transport:  fx.transport,
		Templates:  engine.DirTemplates{Dir: t.TempDir()},
		Lifecycle:  fx.campaigns,
		ChunkSize:  10,
	})

	res, err := eng.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)

	assert.Equal(t, 1, fx.recipients.count(domain.RecipientExcluded))
	assert.Len(t, fx.transport.sent, 2)
	for _, m := range fx.transport.sent {
		assert.NotEqual(t, "member1@example.com", m.To)
	}
}

func TestProcessChunkRendersRecipientVariables(t *testing.T) {
	fx := newFixture(t, 1, 10)
	ctx := context.Background()

	_, err := fx.engine.ProcessChunk(ctx, "camp-1")
	require.NoError(t, err)

	require.Len(t, fx.transport.sent, 1)
	assert.Equal(t, "Hi Member 0", fx.transport.sent[0].Subject)
	assert.Equal(t, "<p>Hello Member 0</p>", fx.transport.sent[0].HTML)
}

func TestSendTestPrefixesSubjectAndLeavesRecipientsAlone(t *testing.T) {
	fx := newFixture(t, 2, 10)

	err := fx.engine.SendTest(context.Background(), "camp-1", "ops@fitflow.example")
	require.NoError(t, err)

	require.Len(t, fx.transport.sent, 1)
	assert.Equal(t, "ops@fitflow.example", fx.transport.sent[0].To)
	assert.Equal(t, "[TEST] Hi Test Recipient", fx.transport.sent[0].Subject)
	assert.Equal(t, "<p>Hello Test Recipient</p>", fx.transport.sent[0].HTML)
	assert.Equal(t, 2, fx.recipients.count(domain.RecipientPending))
}

func TestProcessChunkUsesVariantContent(t *testing.T) {
	fx := newFixture(t, 2, 10)
	labelA, labelB := "A", "B"
	fx.recipients.rows[0].VariantLabel = &labelA
	fx.recipients.rows[1].VariantLabel = &labelB

	eng := engine.New(engine.Config{
		Campaigns:  fx.campaigns,
		Recipients: fx.recipients,
		Variants: &stubVariants{vs: []domain.Variant{
			{Label: "A", Subject: "Subject A"},
			{Label: "B", Subject: "Subject B", HTMLContent: "<p>B body</p>"},
		}},
		Unsub:     &stubUnsub{emails: map[string]bool{}},
		Transport: fx.transport,
		Templates: engine.DirTemplates{Dir: t.TempDir()},
		Lifecycle: fx.campaigns,
		ChunkSize: 10,
	})

	_, err := eng.ProcessChunk(context.Background(), "camp-1")
	require.NoError(t, err)

	require.Len(t, fx.transport.sent, 2)
	assert.Equal(t, "Subject A", fx.transport.sent[0].Subject)
	// Variant A has no body override, so the campaign body applies.
	assert.Equal(t, "<p>Hello Member 0</p>", fx.transport.sent[0].HTML)
	assert.Equal(t, "Subject B", fx.transport.sent[1].Subject)
	assert.Equal(t, "<p>B body</p>", fx.transport.sent[1].HTML)
}
