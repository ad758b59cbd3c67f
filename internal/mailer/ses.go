// Package mailer implements the email transport on AWS SES.
package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/misor-digital/fitflow-campaigns/internal/engine"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
)

// SESAPI is the slice of the SES v2 client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends campaign email through AWS SES v2.
type SES struct {
	client SESAPI
}

// NewSES creates an SES transport with static credentials.
func NewSES(ctx context.Context, accessKey, secretKey, region string) (*SES, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("ses credentials are required")
	}
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SES{client: sesv2.NewFromConfig(cfg)}, nil
}

// NewSESWithClient wires an existing client. Used by tests.
func NewSESWithClient(client SESAPI) *SES {
	return &SES{client: client}
}

// Send delivers one email and returns the SES message id. The campaign id
// travels as a message tag so delivery events can be attributed.
func (s *SES) Send(ctx context.Context, msg engine.Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	logger.Debug("ses accepted message",
		"recipient", msg.To, "message_id", messageID, "campaign_id", msg.CampaignID)
	return messageID, nil
}
