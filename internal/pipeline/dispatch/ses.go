// internal/pipeline/dispatch/ses.go
package dispatch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
)

// EmailSender sends one email. Satisfied by the SES client wrapper and
// by test fakes.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SESSender delivers email through AWS SES.
type SESSender struct {
	client    *ses.Client
	fromEmail string
	log       logger.Logger
}

func NewSESSender(ctx context.Context, region, fromEmail string, log logger.Logger) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.NewFatalError("failed to load AWS config", err)
	}
	return &SESSender{
		client:    ses.NewFromConfig(awsCfg),
		fromEmail: fromEmail,
		log:       log,
	}, nil
}

func (s *SESSender) SendEmail(ctx context.Context, to, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return errors.NewDispatchFailedError("email", err)
	}

	s.log.Info("email sent via SES", map[string]interface{}{
		"to":         to,
		"message_id": aws.ToString(result.MessageId),
	})
	return nil
}
