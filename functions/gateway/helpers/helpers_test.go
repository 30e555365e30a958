package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

func TestLoadFeatureFlags(t *testing.T) {
	t.Setenv(constants.FEATURE_EVENT_SYNC_KEY, "")
	t.Setenv(constants.FEATURE_EVENT_WEBHOOKS_KEY, "false")
	t.Setenv(constants.FEATURE_ATTENDEE_SYNC_KEY, "off")
	t.Setenv(constants.FEATURE_ICAL_SYNC_KEY, "not-a-bool")

	flags := LoadFeatureFlags()
	if !flags.EventSync {
		t.Error("expected EventSync to default to true")
	}
	if flags.Webhooks {
		t.Error("expected Webhooks to be false")
	}
	if flags.AttendeeSync {
		t.Error("expected AttendeeSync to be false")
	}
	if !flags.IcalSync {
		t.Error("expected IcalSync to fall back to true on a bad value")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SYNC_HORIZON_DAYS", "30")
	if got := GetEnvInt("SYNC_HORIZON_DAYS", 90); got != 30 {
		t.Errorf("GetEnvInt() = %d, want 30", got)
	}
	t.Setenv("SYNC_HORIZON_DAYS", "thirty")
	if got := GetEnvInt("SYNC_HORIZON_DAYS", 90); got != 90 {
		t.Errorf("GetEnvInt() = %d, want fallback 90", got)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.lu.ma/ics/get?entity=calendar&id=cal-123&token=secret", "https://api.lu.ma/...(redacted)"},
		{"not a url", "(redacted)"},
		{"", "(redacted)"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("secret-abcd"); got != "********abcd" {
		t.Errorf("MaskSecret() = %q", got)
	}
	if got := MaskSecret("abc"); got != "****" {
		t.Errorf("MaskSecret() = %q", got)
	}
	if got := MaskSecret(""); got != "" {
		t.Errorf("MaskSecret() = %q", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"source unavailable", types.NewSourceUnavailable("luma", "cal-1", errors.New("timeout")), "source_unavailable"},
		{"invalid payload", types.NewInvalidPayload("ical", "cal-2", errors.New("missing marker")), "invalid_payload"},
		{"wrapped write", fmt.Errorf("insert: %w", types.ErrReconciliationWrite), "write_error"},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), "cancelled"},
		{"other", errors.New("boom"), "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
