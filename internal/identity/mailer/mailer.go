// Package mailer delivers verification codes and recovered retrieval tokens
// to applicants.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	id "intake/pkg/domain"
	"intake/pkg/email"
)

// Mailer sends applicant mail. A returned error means the message was not
// accepted for delivery.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
	SendRetrievalToken(ctx context.Context, to string, token id.RetrievalToken) error
}

// SESAPI is the part of the SES client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends plain-text mail through Amazon SES.
type SESMailer struct {
	client SESAPI
	from   string
}

// NewSES loads the default AWS configuration for region.
func NewSES(ctx context.Context, region, from string) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESWithClient(ses.NewFromConfig(cfg), from), nil
}

func NewSESWithClient(client SESAPI, from string) *SESMailer {
	return &SESMailer{client: client, from: from}
}

func (m *SESMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	body := "Your verification code is " + code + ".\nIt expires in 10 minutes. If you did not request it, ignore this message."
	return m.send(ctx, to, "Your verification code", body)
}

func (m *SESMailer) SendRetrievalToken(ctx context.Context, to string, token id.RetrievalToken) error {
	body := "Someone asked to recover the access token of an application registered to this address.\n\n" +
		"Token: " + token.String() + "\n\nYou will also need the applicant's birth date to sign in."
	return m.send(ctx, to, "Your application access token", body)
}

func (m *SESMailer) send(ctx context.Context, to, subject, body string) error {
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}

// LogMailer writes mail to the logger instead of sending it. For local
// development only: it logs secrets.
type LogMailer struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	m.logger.InfoContext(ctx, "verification code (log mailer)", "to", email.Mask(to), "code", code)
	return nil
}

func (m *LogMailer) SendRetrievalToken(ctx context.Context, to string, token id.RetrievalToken) error {
	m.logger.InfoContext(ctx, "retrieval token (log mailer)", "to", email.Mask(to), "token", token.String())
	return nil
}
