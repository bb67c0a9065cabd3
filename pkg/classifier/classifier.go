// Package classifier maps raw failure messages to user-facing explanations.
package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

// Category identifies which rule matched.
type Category string

const (
	CategoryMissingIntegration Category = "missing_integration"
	CategoryInvalidCredential  Category = "invalid_credential"
	CategoryMissingField       Category = "missing_field"
	CategoryRateLimited        Category = "rate_limited"
	CategoryUpstreamServer     Category = "upstream_server_error"
	CategoryUpstreamClient     Category = "upstream_client_error"
	CategoryTimeout            Category = "timeout"
	CategoryNetwork            Category = "network"
	CategoryUnresolvedVariable Category = "unresolved_variable"
	CategoryMalformedJSON      Category = "malformed_json"
	CategoryUnknown            Category = "unknown"
)

// Severity is how prominently a classification should be surfaced.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Classification is the friendly rendering of a raw error.
type Classification struct {
	Category    Category `json:"category"`
	Message     string   `json:"message"`
	Action      string   `json:"action"`
	Severity    Severity `json:"severity"`
	Recoverable bool     `json:"recoverable"`
}

type rule func(raw, lower string) (Classification, bool)

var (
	integrationTypeRe = regexp.MustCompile(`(?i)\b(?:no|missing)\s+([a-z][a-z0-9_-]*)\s+integration|\b([a-z][a-z0-9_-]*)\s+integration\s+(?:not found|not connected|is not connected)`)
	missingFieldRe    = regexp.MustCompile(`(?i)(?:^|\b)([a-z][a-z0-9_-]*)?[\s:]*missing required field[\s:'"]*([a-z0-9_.\-]+)`)
	httpStatusRe      = regexp.MustCompile(`(?i)\b(?:http|status(?: code)?)[\s:=]*([1-5]\d\d)\b`)
	placeholderRe     = regexp.MustCompile(`\{\{\s*[^}]+\}\}|\$trigger\.[A-Za-z0-9_.\[\]]+|\$[A-Za-z0-9_-]+\.output[A-Za-z0-9_.\[\]]*`)
)

var nodeLabels = map[string]string{
	"email":     "Email",
	"slack":     "Slack",
	"discord":   "Discord",
	"http":      "HTTP Request",
	"transform": "Transform",
	"condition": "Condition",
	"delay":     "Delay",
	"loop":      "Loop",
	"smtp":      "Email (SMTP)",
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	matchMissingIntegration,
	matchInvalidCredential,
	matchMissingField,
	matchRateLimited,
	matchHTTPStatus,
	matchTimeout,
	matchNetwork,
	matchUnresolvedVariable,
	matchMalformedJSON,
}

// Classify returns the first matching classification for raw, or the generic fallback.
// It is pure and total.
func Classify(raw string) Classification {
	lower := strings.ToLower(raw)

	for _, match := range rules {
		if c, ok := match(raw, lower); ok {
			return c
		}
	}

	return Classification{
		Category:    CategoryUnknown,
		Message:     "Something went wrong",
		Action:      "Try running the workflow again. If the problem continues, check the step configuration.",
		Severity:    SeverityError,
		Recoverable: true,
	}
}

func label(kind string) string {
	if l, ok := nodeLabels[strings.ToLower(kind)]; ok {
		return l
	}

	if kind == "" {
		return ""
	}

	return strings.ToUpper(kind[:1]) + kind[1:]
}

func matchMissingIntegration(raw, _ string) (Classification, bool) {
	m := integrationTypeRe.FindStringSubmatch(raw)
	if m == nil {
		return Classification{}, false
	}

	kind := m[1]
	if kind == "" {
		kind = m[2]
	}

	name := label(kind)

	return Classification{
		Category:    CategoryMissingIntegration,
		Message:     "This workflow needs a connected " + name + " integration.",
		Action:      "Connect " + name + " in Settings > Integrations, then run the workflow again.",
		Severity:    SeverityError,
		Recoverable: true,
	}, true
}

func matchInvalidCredential(_, lower string) (Classification, bool) {
	for _, needle := range []string{
		"invalid_auth", "token_expired", "token expired", "token_revoked", "invalid token",
		"invalid credentials", "invalid api key", "unauthorized", "authentication failed",
		"http 401", "status 401", "failed to decrypt credential",
	} {
		if strings.Contains(lower, needle) {
			return Classification{
				Category:    CategoryInvalidCredential,
				Message:     "The credentials for this integration were rejected or have expired.",
				Action:      "Reconnect the integration in Settings > Integrations.",
				Severity:    SeverityError,
				Recoverable: true,
			}, true
		}
	}

	return Classification{}, false
}

func matchMissingField(raw, _ string) (Classification, bool) {
	m := missingFieldRe.FindStringSubmatch(raw)
	if m == nil {
		return Classification{}, false
	}

	field := m[2]
	step := "This step"

	if name, ok := nodeLabels[strings.ToLower(m[1])]; ok {
		step = "The " + name + " step"
	}

	return Classification{
		Category:    CategoryMissingField,
		Message:     step + " is missing the required field '" + field + "'.",
		Action:      "Open the step settings and fill in '" + field + "'.",
		Severity:    SeverityError,
		Recoverable: true,
	}, true
}

func matchRateLimited(_, lower string) (Classification, bool) {
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "ratelimit") ||
		strings.Contains(lower, "rate_limited") || strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "http 429") || strings.Contains(lower, "status 429") {
		return Classification{
			Category:    CategoryRateLimited,
			Message:     "The external service is rate limiting requests.",
			Action:      "Wait a moment; the run will be retried automatically.",
			Severity:    SeverityWarning,
			Recoverable: true,
		}, true
	}

	return Classification{}, false
}

func matchHTTPStatus(raw, _ string) (Classification, bool) {
	m := httpStatusRe.FindStringSubmatch(raw)
	if m == nil {
		return Classification{}, false
	}

	code, _ := strconv.Atoi(m[1])

	switch {
	case code >= 500:
		return Classification{
			Category:    CategoryUpstreamServer,
			Message:     "The external service returned an error (HTTP " + m[1] + ").",
			Action:      "The service may be having problems; the run will be retried automatically.",
			Severity:    SeverityWarning,
			Recoverable: true,
		}, true
	case code >= 400:
		return Classification{
			Category:    CategoryUpstreamClient,
			Message:     "The external service rejected the request (HTTP " + m[1] + ").",
			Action:      "Check the URL, method and body configured on this step.",
			Severity:    SeverityError,
			Recoverable: false,
		}, true
	default:
		return Classification{}, false
	}
}

func matchTimeout(_, lower string) (Classification, bool) {
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded") {
		return Classification{
			Category:    CategoryTimeout,
			Message:     "The external service took too long to respond.",
			Action:      "Try again later or increase the step timeout.",
			Severity:    SeverityWarning,
			Recoverable: true,
		}, true
	}

	return Classification{}, false
}

func matchNetwork(_, lower string) (Classification, bool) {
	for _, needle := range []string{
		"connection refused", "no such host", "network is unreachable", "connection reset",
		"econnrefused", "enotfound", "econnreset", "dial tcp", "host unreachable",
	} {
		if strings.Contains(lower, needle) {
			return Classification{
				Category:    CategoryNetwork,
				Message:     "Could not reach the external service.",
				Action:      "Check that the URL is correct and the service is online.",
				Severity:    SeverityWarning,
				Recoverable: true,
			}, true
		}
	}

	return Classification{}, false
}

func matchUnresolvedVariable(raw, lower string) (Classification, bool) {
	if !strings.Contains(lower, "unresolved variable") && !placeholderRe.MatchString(raw) {
		return Classification{}, false
	}

	ref := placeholderRe.FindString(raw)
	if ref == "" {
		ref = "a variable"
	}

	return Classification{
		Category:    CategoryUnresolvedVariable,
		Message:     "The step referenced " + ref + ", which had no value.",
		Action:      "Check that the earlier step or trigger actually provides this field.",
		Severity:    SeverityError,
		Recoverable: true,
	}, true
}

func matchMalformedJSON(_, lower string) (Classification, bool) {
	for _, needle := range []string{
		"invalid character", "unexpected end of json", "cannot unmarshal", "malformed json",
		"invalid json", "unexpected token",
	} {
		if strings.Contains(lower, needle) {
			return Classification{
				Category:    CategoryMalformedJSON,
				Message:     "Some data could not be read as valid JSON.",
				Action:      "Check the JSON in the step configuration or the incoming payload.",
				Severity:    SeverityError,
				Recoverable: false,
			}, true
		}
	}

	return Classification{}, false
}
