package helpers

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

// LoadFeatureFlags snapshots the feature flag env vars. Callers pass the result into the
// orchestrator and webhook receiver; nothing downstream reads the environment.
func LoadFeatureFlags() types.FeatureFlags {
	return types.FeatureFlags{
		EventSync:    GetEnvBool(constants.FEATURE_EVENT_SYNC_KEY, true),
		Webhooks:     GetEnvBool(constants.FEATURE_EVENT_WEBHOOKS_KEY, true),
		AttendeeSync: GetEnvBool(constants.FEATURE_ATTENDEE_SYNC_KEY, true),
		IcalSync:     GetEnvBool(constants.FEATURE_ICAL_SYNC_KEY, true),
	}
}

func GetEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, ok := ParseBool(raw)
	if !ok {
		log.Printf("WARN: env %s=%q is not a boolean, using %v", key, raw, fallback)
		return fallback
	}
	return val
}

func GetEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("WARN: env %s=%q is not an integer, using %d", key, raw, fallback)
		return fallback
	}
	return val
}

// ParseBool accepts the usual strconv spellings plus yes/no and on/off.
func ParseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "on":
		return true, true
	case "no", "off":
		return false, true
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return val, true
}
