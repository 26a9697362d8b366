package mailer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, f.err
}

func TestSESMailer(t *testing.T) {
	client := &fakeSES{}
	m := NewSESWithClient(client, "noreply@intake.example")

	require.NoError(t, m.SendVerificationCode(context.Background(), "parent@example.org", "042117"))
	require.NotNil(t, client.input)
	assert.Equal(t, []string{"parent@example.org"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "noreply@intake.example", aws.ToString(client.input.Source))
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "042117")

	require.NoError(t, m.SendRetrievalToken(context.Background(), "parent@example.org", "0123456789abcdef0123456789abcdef"))
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "0123456789abcdef0123456789abcdef")

	client.err = errors.New("throttled")
	assert.ErrorContains(t, m.SendVerificationCode(context.Background(), "parent@example.org", "1"), "throttled")
}

func TestLogMailerMasksAddress(t *testing.T) {
	var buf bytes.Buffer
	m := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, m.SendVerificationCode(context.Background(), "parent@example.org", "042117"))
	assert.Contains(t, buf.String(), "p***@example.org")
	assert.NotContains(t, buf.String(), "parent@example.org")
}
