package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/flowforge/flowforge/pkg/failures"
)

const maxErrorBody = 512

// StatusError maps a non-2xx response from an external service to the engine taxonomy:
// 429 and 5xx are transient, 401/403 point at credentials, other 4xx are fatal.
func StatusError(service string, status int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}

		body = body[:cut] + "..."
	}

	message := "HTTP " + strconv.Itoa(status) + " " + http.StatusText(status)
	if body != "" {
		message += ": " + body
	}

	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return failures.New(failures.KindTransient, service, message)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return failures.New(failures.KindConfiguration, service, message)
	default:
		return failures.New(failures.KindFatal, service, message)
	}
}

// TransportError classifies an error returned by an HTTP client call. Timeouts and
// connection level failures are transient; cancellation is passed through untouched.
func TransportError(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var (
		netErr net.Error
		opErr  *net.OpError
		dnsErr *net.DNSError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return failures.Wrap(failures.KindTransient, service, err)
	default:
		return failures.Wrap(failures.KindFatal, service, err)
	}
}

// MissingField reports a required config field that is absent or empty.
func MissingField(nodeType, field string) error {
	return failures.Newf(failures.KindConfiguration, nodeType, "missing required field %q", field)
}
