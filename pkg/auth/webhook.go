package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"
	HeaderSignature     = "X-Webhook-Signature"

	bearerScheme    = "Bearer "
	signaturePrefix = "sha256="
)

// Request is the part of an inbound webhook call that authentication looks at.
type Request struct {
	Authorization string
	APIKey        string
	Signature     string
	Body          []byte
}

// PlatformKey picks the platform key out of the request. Triggers using bearer auth carry
// their own token in Authorization, so only X-API-Key is considered for them.
func (r Request) PlatformKey(method models.WebhookAuthMethod) string {
	if method == models.WebhookAuthBearer {
		return strings.TrimSpace(r.APIKey)
	}

	if token, ok := bearerToken(r.Authorization); ok && IsAPIKey(token) {
		return token
	}

	return strings.TrimSpace(r.APIKey)
}

// Authenticate applies the trigger's own auth method. It returns nil or a
// *failures.Error carrying the HTTP status to answer with.
func Authenticate(trigger *models.WebhookTrigger, req Request) error {
	switch trigger.AuthMethod {
	case models.WebhookAuthBearer:
		token, ok := bearerToken(req.Authorization)
		if !ok || token == "" {
			return failures.Auth(http.StatusUnauthorized, "Missing bearer token")
		}

		if trigger.BearerToken == "" || !constantTimeEqual(token, trigger.BearerToken) {
			return failures.Auth(http.StatusUnauthorized, "Invalid bearer token")
		}

		return nil
	case models.WebhookAuthHMAC:
		signature := strings.TrimSpace(req.Signature)
		if signature == "" {
			return failures.Auth(http.StatusUnauthorized, "Missing webhook signature")
		}

		if trigger.HMACSecret == "" {
			return &failures.Error{
				Kind:    failures.KindConfiguration,
				Op:      "webhook_auth",
				Message: "HMAC secret not configured for this trigger",
				Status:  http.StatusInternalServerError,
			}
		}

		signature = strings.TrimPrefix(signature, signaturePrefix)
		if !constantTimeEqual(strings.ToLower(signature), Sign(trigger.HMACSecret, req.Body)) {
			return failures.Auth(http.StatusUnauthorized, "Invalid webhook signature")
		}

		return nil
	case models.WebhookAuthURLToken, "":
		return nil
	default:
		return &failures.Error{
			Kind:    failures.KindConfiguration,
			Op:      "webhook_auth",
			Message: "unknown auth method " + string(trigger.AuthMethod),
			Status:  http.StatusInternalServerError,
		}
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}

	return strings.TrimSpace(header[len(bearerScheme):]), true
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewWebhookToken returns a random URL-safe token for a new webhook trigger.
func NewWebhookToken() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return hex.EncodeToString(raw), nil
}
