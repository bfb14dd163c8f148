package jobs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type capturedMail struct {
	msg *mail.Msg
}

func (c *capturedMail) rendered(t *testing.T) string {
	t.Helper()
	require.NotNil(t, c.msg)
	var buf bytes.Buffer
	_, err := c.msg.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func newTestSender(cfg SMTPConfig, captured *capturedMail, sendErr error) *SMTPSender {
	s := NewSMTPSender(cfg)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.send = func(_ context.Context, msg *mail.Msg) error {
		captured.msg = msg
		return sendErr
	}
	return s
}

func TestSMTPSenderDeliver(t *testing.T) {
	var got capturedMail
	s := newTestSender(SMTPConfig{Host: "mail.local", Port: 2525, From: "checklist@mail.local"}, &got, nil)

	err := s.Deliver(context.Background(), SendEmailPayload{
		To:      "ada@test.local",
		Subject: "Reset your password",
		Body:    "Line one\nLine two",
	})

	require.NoError(t, err)
	from, err := got.msg.GetSender(false)
	require.NoError(t, err)
	assert.Equal(t, "checklist@mail.local", from)
	to, err := got.msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@test.local"}, to)

	raw := got.rendered(t)
	assert.Contains(t, raw, "Subject: Reset your password")
	assert.Contains(t, raw, "Date: Fri, 01 Mar 2024 12:00:00 +0000")
	assert.Contains(t, raw, "Message-ID: <")
	assert.Contains(t, raw, "Line one")
	assert.Contains(t, raw, "Line two")
}

func TestSMTPSenderNewClient(t *testing.T) {
	withAuth := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: 587, Username: "relay", Password: "pw"})
	client, err := withAuth.newClient()
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewSMTPSender(SMTPConfig{Port: 25}).newClient()
	assert.Error(t, err)
}

func TestSMTPSenderEncodesNonASCIISubject(t *testing.T) {
	var got capturedMail
	s := newTestSender(SMTPConfig{Host: "mail.local", Port: 25, From: "checklist@mail.local"}, &got, nil)

	require.NoError(t, s.Deliver(context.Background(), SendEmailPayload{To: "a@test.local", Subject: "Réinitialiser"}))
	assert.Regexp(t, `(?i)Subject: =\?utf-8\?q\?`, got.rendered(t))
}

func TestSMTPSenderRejectsHeaderInjection(t *testing.T) {
	tests := []struct {
		name string
		msg  SendEmailPayload
	}{
		{name: "recipient", msg: SendEmailPayload{To: "a@test.local\r\nBcc: b@test.local"}},
		{name: "subject", msg: SendEmailPayload{To: "a@test.local", Subject: "hi\nBcc: b@test.local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got capturedMail
			s := newTestSender(SMTPConfig{Host: "mail.local", Port: 25, From: "checklist@mail.local"}, &got, nil)

			err := s.Deliver(context.Background(), tt.msg)

			assert.ErrorIs(t, err, errHeaderInjection)
			assert.Nil(t, got.msg)
		})
	}
}

func TestSMTPSenderRejectsInvalidAddresses(t *testing.T) {
	var got capturedMail
	s := newTestSender(SMTPConfig{Host: "mail.local", Port: 25, From: "checklist@mail.local"}, &got, nil)

	err := s.Deliver(context.Background(), SendEmailPayload{To: "not an address"})

	assert.ErrorContains(t, err, "recipient")
	assert.Nil(t, got.msg)
}

func TestSMTPSenderWrapsRelayErrors(t *testing.T) {
	var got capturedMail
	relayErr := errors.New("connection refused")
	s := newTestSender(SMTPConfig{Host: "mail.local", Port: 25, From: "checklist@mail.local"}, &got, relayErr)

	err := s.Deliver(context.Background(), SendEmailPayload{To: "a@test.local"})

	assert.ErrorIs(t, err, relayErr)
	assert.Contains(t, err.Error(), "mail.local:25")
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	var got capturedMail
	s := newTestSender(SMTPConfig{Host: "mail.local", Port: 25, From: "checklist@mail.local"}, &got, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Deliver(ctx, SendEmailPayload{To: "a@test.local"}), context.Canceled)
	assert.Nil(t, got.msg)
}

func TestSMTPSenderDialHonoursCancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "checklist@mail.local"})
	m, err := s.compose(SendEmailPayload{To: "a@test.local", Subject: "hi"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.dialAndSend(ctx, m))
}
