package mailer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misor-digital/fitflow-campaigns/internal/engine"
	"github.com/misor-digital/fitflow-campaigns/internal/mailer"
)

type stubSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (s *stubSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func TestSendBuildsRequest(t *testing.T) {
	stub := &stubSES{}
	s := mailer.NewSESWithClient(stub)

	id, err := s.Send(context.Background(), engine.Message{
		To:         "member@example.com",
		FromName:   "FitFlow",
		FromEmail:  "hello@fitflow.example",
		Subject:    "Your box ships Friday",
		HTML:       "<p>hi</p>",
		CampaignID: "camp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)

	require.NotNil(t, stub.input)
	assert.Equal(t, "FitFlow <hello@fitflow.example>", *stub.input.FromEmailAddress)
	assert.Equal(t, []string{"member@example.com"}, stub.input.Destination.ToAddresses)
	assert.Equal(t, "Your box ships Friday", *stub.input.Content.Simple.Subject.Data)

	require.Len(t, stub.input.EmailTags, 1)
	assert.Equal(t, "campaign_id", *stub.input.EmailTags[0].Name)
	assert.Equal(t, "camp-1", *stub.input.EmailTags[0].Value)
}

func TestSendPropagatesProviderError(t *testing.T) {
	stub := &stubSES{err: errors.New("throttled")}
	s := mailer.NewSESWithClient(stub)

	_, err := s.Send(context.Background(), engine.Message{To: "member@example.com"})
	assert.Error(t, err)
}
