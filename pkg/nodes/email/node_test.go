package email_test

import (
	"context"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/nodes/email"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredentials map[string]any

func (s staticCredentials) Credentials(context.Context, string) (map[string]any, error) {
	return s, nil
}

var smtpSettings = staticCredentials{
	"host":     "smtp.example.com",
	"port":     float64(2525),
	"username": "mailer",
	"password": "secret",
	"from":     "noreply@example.com",
}

func TestAdapter_Execute(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)

	adapter := email.New(email.WithSendFunc(func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, auth, to, string(msg)

		return nil
	}))

	out, err := adapter.Execute(context.Background(), protocol.Input{
		Config: map[string]any{
			"to":      "a@example.com, b@example.com",
			"subject": "Welcome",
			"body":    "hello\nthere",
		},
		Credentials: smtpSettings,
	})
	require.NoError(t, err)

	assert.Equal(t, true, out["sent"])
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Welcome\r\n")
	assert.Contains(t, gotMsg, "From: noreply@example.com\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "hello\r\nthere"))
}

func TestAdapter_SMTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sendErr  error
		wantKind failures.Kind
	}{
		{"mailbox busy", &textproto.Error{Code: 451, Msg: "try again later"}, failures.KindTransient},
		{"auth failed", &textproto.Error{Code: 535, Msg: "authentication failed"}, failures.KindConfiguration},
		{"rejected", &textproto.Error{Code: 550, Msg: "no such user"}, failures.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			adapter := email.New(email.WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
				return tt.sendErr
			}))

			_, err := adapter.Execute(context.Background(), protocol.Input{
				Config:      map[string]any{"to": []any{"a@example.com"}, "subject": "hi"},
				Credentials: smtpSettings,
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, failures.KindOf(err))
		})
	}
}

func TestAdapter_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	adapter := email.New(email.WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")

		return nil
	}))

	tests := []struct {
		name    string
		config  map[string]any
		creds   protocol.CredentialSource
		wantMsg string
	}{
		{"missing to", map[string]any{"subject": "x"}, smtpSettings, `missing required field "to"`},
		{"bad recipient", map[string]any{"to": "not-an-address", "subject": "x"}, smtpSettings, "invalid recipient"},
		{"missing subject", map[string]any{"to": "a@example.com"}, smtpSettings, `missing required field "subject"`},
		{"no integration", map[string]any{"to": "a@example.com", "subject": "x"}, nil, "no email integration connected"},
		{"incomplete integration", map[string]any{"to": "a@example.com", "subject": "x"}, staticCredentials{"host": "h"}, "invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := adapter.Execute(context.Background(), protocol.Input{Config: tt.config, Credentials: tt.creds})
			require.ErrorIs(t, err, failures.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
