package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "beds@example.com"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "beds@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Bed Management", sender.fromName)

	sender = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "beds@example.com", FromName: "Bed Desk"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Bed Desk", sender.fromName)
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "charge@example.com", Subject: "Test", Body: "body"})
	assert.Error(t, err)
}

type fakeSendGrid struct {
	sent   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*sendGridResponse, error) {
	f.sent = email
	if f.err != nil {
		return nil, f.err
	}
	return &sendGridResponse{StatusCode: f.status, Body: "{}"}, nil
}

func TestSendGridSender_BuildsUrgentAlert(t *testing.T) {
	api := &fakeSendGrid{status: 202}
	sender := newSendGridSender(api, SendGridConfig{FromEmail: "beds@example.com"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To: "charge@example.com", ToName: "Charge Nurse", Subject: "[CRITICAL] ICU at critical capacity",
		Body: "ICU is 100.0% occupied <6 of 6>", Category: "capacity-alert", Urgent: true,
	})
	require.NoError(t, err)
	require.NotNil(t, api.sent)

	assert.Equal(t, "beds@example.com", api.sent.From.Address)
	assert.Equal(t, "Bed Management", api.sent.From.Name)
	require.Len(t, api.sent.Personalizations, 1)
	assert.Equal(t, "charge@example.com", api.sent.Personalizations[0].To[0].Address)
	require.Len(t, api.sent.Content, 2)
	assert.Equal(t, "text/plain", api.sent.Content[0].Type)
	assert.Contains(t, api.sent.Content[1].Value, "&lt;6 of 6&gt;")
	assert.Equal(t, []string{"capacity-alert"}, api.sent.Categories)
	assert.Equal(t, "1", api.sent.Headers["X-Priority"])
}

func TestSendGridSender_StatusHandling(t *testing.T) {
	msg := EmailMessage{To: "charge@example.com", Subject: "s", Body: "b"}

	err := newSendGridSender(&fakeSendGrid{status: 400}, SendGridConfig{}, nil).Send(context.Background(), msg)
	assert.ErrorIs(t, err, ErrEmailRejected)

	err = newSendGridSender(&fakeSendGrid{status: 503}, SendGridConfig{}, nil).Send(context.Background(), msg)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailRejected)

	err = newSendGridSender(&fakeSendGrid{err: errors.New("dial tcp")}, SendGridConfig{}, nil).Send(context.Background(), msg)
	assert.ErrorContains(t, err, "dial tcp")

	api := &fakeSendGrid{status: 202}
	require.NoError(t, newSendGridSender(api, SendGridConfig{}, nil).Send(context.Background(), msg))
	assert.Empty(t, api.sent.Categories)
	assert.Empty(t, api.sent.Headers)
}

func TestStubEmailSender_Send(t *testing.T) {
	err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "charge@example.com", Subject: "Test"})
	assert.NoError(t, err)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "beds@example.com"}, nil)
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "charge@example.com",
		Subject: "ICU at capacity",
		Body:    "plain",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)
	require.NotNil(t, api.input)
	assert.Equal(t, `"Bed Management" <beds@example.com>`, aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"charge@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "ICU at capacity", aws.ToString(api.input.Content.Simple.Subject.Data))
	assert.Equal(t, "plain", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>html</p>", aws.ToString(api.input.Content.Simple.Body.Html.Data))
	assert.Empty(t, api.input.EmailTags)
	assert.Nil(t, api.input.ConfigurationSetName)
}

func TestSESSender_TagsAndFallbackHTML(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "beds@example.com", FromName: "Bed Desk", ConfigurationSet: "alerts"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To: "charge@example.com", ToName: "Charge Nurse", Subject: "[CRITICAL] ICU",
		Body: "ICU & ER full", Category: "capacity-alert", Urgent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`"Charge Nurse" <charge@example.com>`}, api.input.Destination.ToAddresses)
	assert.Equal(t, "alerts", aws.ToString(api.input.ConfigurationSetName))
	assert.Contains(t, aws.ToString(api.input.Content.Simple.Body.Html.Data), "ICU &amp; ER full")
	require.Len(t, api.input.EmailTags, 2)
	assert.Equal(t, "capacity-alert", aws.ToString(api.input.EmailTags[0].Value))
	assert.Equal(t, "urgent", aws.ToString(api.input.EmailTags[1].Name))
}

func TestSESSender_SendErrors(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))

	var missing *SESSender
	assert.Error(t, missing.Send(context.Background(), EmailMessage{To: "x@example.com"}))

	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "beds@example.com"}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "charge@example.com", Body: "b"})
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, ErrEmailRejected)

	rejected := NewSESSender(&fakeSES{err: &types.MessageRejected{Message: aws.String("address blacklisted")}}, SESConfig{FromEmail: "beds@example.com"}, nil)
	err = rejected.Send(context.Background(), EmailMessage{To: "charge@example.com", Body: "b"})
	assert.ErrorIs(t, err, ErrEmailRejected)
	assert.ErrorContains(t, err, "address blacklisted")
}
