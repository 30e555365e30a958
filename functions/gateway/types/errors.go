package types

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrReconciliationWrite   = errors.New("reconciliation write failed")
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrDuplicateKey          = errors.New("natural key already exists")
	ErrFeatureDisabled       = errors.New("feature disabled")
	ErrNoCalendarsConfigured = errors.New("no calendars configured")
	ErrUnknownProvider       = errors.New("unknown provider")
)

// SourceError ties a source failure to the provider and calendar that produced it.
// Kind is one of ErrSourceUnavailable or ErrInvalidPayload.
type SourceError struct {
	Provider   string
	CalendarID string
	Kind       error
	Err        error
}

func (e *SourceError) Error() string {
	if e.CalendarID == "" {
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s calendar %s: %v: %v", e.Provider, e.CalendarID, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func NewSourceUnavailable(provider, calendarID string, err error) error {
	return &SourceError{Provider: provider, CalendarID: calendarID, Kind: ErrSourceUnavailable, Err: err}
}

func NewInvalidPayload(provider, calendarID string, err error) error {
	return &SourceError{Provider: provider, CalendarID: calendarID, Kind: ErrInvalidPayload, Err: err}
}
