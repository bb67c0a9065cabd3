// Package email sends mail through the SMTP server configured in the user's email integration.
package email

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
)

const defaultPort = 587

// SendFunc has the signature of smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

type Adapter struct {
	send SendFunc
	now  func() time.Time
}

type Option func(*Adapter)

// WithSendFunc replaces the SMTP transport.
func WithSendFunc(send SendFunc) Option {
	return func(a *Adapter) { a.send = send }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{send: smtp.SendMail, now: time.Now}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type settings struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func parseSettings(creds map[string]any) (settings, error) {
	s := settings{port: defaultPort}
	s.host, _ = creds["host"].(string)
	s.username, _ = creds["username"].(string)
	s.password, _ = creds["password"].(string)
	s.from, _ = creds["from"].(string)

	if port, ok := protocol.ToFloat(creds["port"]); ok && port > 0 {
		s.port = int(port)
	}

	if s.host == "" || s.from == "" {
		return s, failures.New(failures.KindConfiguration, models.NodeTypeEmail, "email integration needs host and from: invalid credentials")
	}

	return s, nil
}

func (a *Adapter) Execute(ctx context.Context, in protocol.Input) (map[string]any, error) {
	recipients := protocol.StringList(in.Config, "to")
	if len(recipients) == 0 {
		return nil, protocol.MissingField(models.NodeTypeEmail, "to")
	}

	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return nil, failures.Newf(failures.KindConfiguration, models.NodeTypeEmail, "invalid recipient %q", rcpt)
		}
	}

	subject := protocol.String(in.Config, "subject")
	if subject == "" {
		return nil, protocol.MissingField(models.NodeTypeEmail, "subject")
	}

	if in.Credentials == nil {
		return nil, failures.New(failures.KindConfiguration, models.NodeTypeEmail, "no email integration connected")
	}

	creds, err := in.Credentials.Credentials(ctx, models.NodeTypeEmail)
	if err != nil {
		return nil, err
	}

	cfg, err := parseSettings(creds)
	if err != nil {
		return nil, err
	}

	html, _ := in.Config["html"].(bool)
	msg := buildMessage(cfg.from, recipients, subject, protocol.String(in.Config, "body"), html, a.now())

	var auth smtp.Auth
	if cfg.username != "" {
		auth = smtp.PlainAuth("", cfg.username, cfg.password, cfg.host)
	}

	addr := net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))

	done := make(chan error, 1)
	go func() {
		done <- a.send(addr, auth, cfg.from, recipients, msg)
	}()

	select {
	case <-ctx.Done():
		return nil, protocol.TransportError(models.NodeTypeEmail, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, smtpError(err)
		}
	}

	return map[string]any{
		"sent":       true,
		"recipients": recipients,
		"subject":    subject,
	}, nil
}

// smtpError maps SMTP reply codes: 4xx is transient, 535 is a credential problem, other
// 5xx replies are permanent.
func smtpError(err error) error {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return protocol.TransportError(models.NodeTypeEmail, err)
	}

	message := fmt.Sprintf("SMTP %d: %s", protoErr.Code, protoErr.Msg)

	switch {
	case protoErr.Code >= 400 && protoErr.Code < 500:
		return &failures.Error{Kind: failures.KindTransient, Op: models.NodeTypeEmail, Message: message, Err: err}
	case protoErr.Code == 535:
		return &failures.Error{Kind: failures.KindConfiguration, Op: models.NodeTypeEmail, Message: message + " (invalid credentials)", Err: err}
	default:
		return &failures.Error{Kind: failures.KindFatal, Op: models.NodeTypeEmail, Message: message, Err: err}
	}
}

func buildMessage(from string, to []string, subject, body string, html bool, now time.Time) []byte {
	contentType := "text/plain; charset=UTF-8"
	if html {
		contentType = "text/html; charset=UTF-8"
	}

	var b strings.Builder

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mimeHeader(subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: " + contentType + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(b.String())
}

func mimeHeader(value string) string {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)

	for _, r := range value {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", value)
		}
	}

	return value
}
