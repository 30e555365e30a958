package helpers

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/zoworld/eventsync/functions/gateway/types"
)

func StringPtr(s string) *string {
	return &s
}

// NonEmptyPtr returns nil for an empty string.
func NonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func BoolPtr(b bool) *bool {
	return &b
}

// RedactURL keeps scheme and host only; feed URLs often embed private tokens.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

// MaskSecret shows the last four characters of a credential.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

// ErrorKind maps an error to a stable label for sync stats.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, types.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, types.ErrReconciliationWrite):
		return "write_error"
	case errors.Is(err, types.ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, types.ErrFeatureDisabled):
		return "feature_disabled"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "unexpected"
}
