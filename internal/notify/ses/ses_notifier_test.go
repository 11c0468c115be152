package ses_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finextract/internal/config"
	"finextract/internal/notify/ses"
	"finextract/internal/port"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

func notifyConfig() *config.NotifyConfig {
	return &config.NotifyConfig{
		FromAddress: "noreply@finex.local",
		FromName:    "finex",
		Recipients:  []string{"ops@example.com", "risk@example.com"},
	}
}

func TestSESNotifier_NotifyReview(t *testing.T) {
	client := &fakeSES{}
	n, err := ses.NewSESNotifierWithClient(client, notifyConfig())
	require.NoError(t, err)

	err = n.NotifyReview(context.Background(), port.ReviewNotice{
		RunID:        uuid.New(),
		DocumentName: "stmt.pdf",
		Reasons:      []string{"1 outlier flagged"},
	})
	require.NoError(t, err)
	require.NotNil(t, client.input)
	assert.Equal(t, "finex <noreply@finex.local>", *client.input.FromEmailAddress)
	assert.Equal(t, []string{"ops@example.com", "risk@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Extraction review needed: stmt.pdf", *client.input.Content.Simple.Subject.Data)
	assert.Contains(t, *client.input.Content.Simple.Body.Text.Data, "1 outlier flagged")
}

func TestSESNotifier_SendError(t *testing.T) {
	n, err := ses.NewSESNotifierWithClient(&fakeSES{err: errors.New("throttled")}, notifyConfig())
	require.NoError(t, err)
	err = n.NotifyReview(context.Background(), port.ReviewNotice{RunID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SES SendEmail")
}

func TestNewSESNotifierWithClient_RequiresRecipients(t *testing.T) {
	cfg := notifyConfig()
	cfg.Recipients = nil
	_, err := ses.NewSESNotifierWithClient(&fakeSES{}, cfg)
	assert.Error(t, err)
}
