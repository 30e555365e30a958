package types

import "time"

type SyncMode string

const (
	SyncModeDryRun SyncMode = "dry-run"
	SyncModeApply  SyncMode = "apply"
)

type Classification string

const (
	ClassificationCreated Classification = "created"
	ClassificationUpdated Classification = "updated"
	ClassificationSkipped Classification = "skipped"
	ClassificationError   Classification = "error"
)

// Skip reasons recorded alongside ClassificationSkipped.
const (
	SkipReasonStale     = "stale"
	SkipReasonUnchanged = "unchanged"
)

type RecordKind string

const (
	RecordKindEvent    RecordKind = "event"
	RecordKindAttendee RecordKind = "attendee"
)

// SyncOptions are the caller-controlled knobs of one sync invocation.
type SyncOptions struct {
	DryRun         bool   `json:"dry_run"`
	CalendarFilter string `json:"calendar_filter,omitempty"`
	Verbose        bool   `json:"verbose"`
}

func (o SyncOptions) Mode() SyncMode {
	if o.DryRun {
		return SyncModeDryRun
	}
	return SyncModeApply
}

// ReconcileResult is the outcome of reconciling one candidate record.
type ReconcileResult struct {
	Kind           RecordKind     `json:"kind" dynamodbav:"kind"`
	Classification Classification `json:"classification" dynamodbav:"classification"`
	Reason         string         `json:"reason,omitempty" dynamodbav:"reason,omitempty"`
	RowID          string         `json:"row_id,omitempty" dynamodbav:"rowId,omitempty"`
	NaturalKey     string         `json:"natural_key" dynamodbav:"naturalKey"`
	ChangedFields  []string       `json:"changed_fields,omitempty" dynamodbav:"changedFields,omitempty"`
	Error          string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

type RecordCounts struct {
	Created int `json:"created" dynamodbav:"created"`
	Updated int `json:"updated" dynamodbav:"updated"`
	Skipped int `json:"skipped" dynamodbav:"skipped"`
	Errors  int `json:"errors" dynamodbav:"errors"`
}

func (c *RecordCounts) Add(classification Classification) {
	switch classification {
	case ClassificationCreated:
		c.Created++
	case ClassificationUpdated:
		c.Updated++
	case ClassificationSkipped:
		c.Skipped++
	case ClassificationError:
		c.Errors++
	}
}

func (c *RecordCounts) Merge(other RecordCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Errors += other.Errors
}

// CalendarResult is one calendar's slot in a sync run. Error is set when the whole
// calendar could not be processed; Errors holds record-level failures.
type CalendarResult struct {
	CalendarID   string       `json:"calendar_id" dynamodbav:"calendarId"`
	CalendarName string       `json:"calendar_name,omitempty" dynamodbav:"calendarName,omitempty"`
	Provider     string       `json:"provider" dynamodbav:"provider"`
	Fetched      int          `json:"fetched" dynamodbav:"fetched"`
	Events       RecordCounts `json:"events" dynamodbav:"events"`
	Attendees    RecordCounts `json:"attendees" dynamodbav:"attendees"`
	Error        string       `json:"error,omitempty" dynamodbav:"error,omitempty"`
	ErrorKind    string       `json:"error_kind,omitempty" dynamodbav:"errorKind,omitempty"`
	Errors       []string     `json:"errors,omitempty" dynamodbav:"errors,omitempty"`
	// ErrorsDropped counts record-level failures past MaxRecordedErrors.
	ErrorsDropped int               `json:"errors_dropped,omitempty" dynamodbav:"errorsDropped,omitempty"`
	Records       []ReconcileResult `json:"records,omitempty" dynamodbav:"-"`
	DurationMs    int64             `json:"duration_ms" dynamodbav:"durationMs"`
}

func (r *CalendarResult) Record(res ReconcileResult, verbose bool) {
	switch res.Kind {
	case RecordKindAttendee:
		r.Attendees.Add(res.Classification)
	default:
		r.Events.Add(res.Classification)
	}
	if res.Classification == ClassificationError {
		r.NoteError(res.NaturalKey + ": " + res.Error)
	}
	if verbose {
		r.Records = append(r.Records, res)
	}
}

// Record-level error messages are capped so a run summary stays well under the
// DynamoDB item size limit.
const (
	MaxRecordedErrors     = 50
	MaxRecordedErrorBytes = 512
)

func (r *CalendarResult) NoteError(msg string) {
	if len(r.Errors) >= MaxRecordedErrors {
		r.ErrorsDropped++
		return
	}
	if len(msg) > MaxRecordedErrorBytes {
		msg = msg[:MaxRecordedErrorBytes] + "..."
	}
	r.Errors = append(r.Errors, msg)
}

type SyncTotals struct {
	Calendars       int          `json:"calendars" dynamodbav:"calendars"`
	CalendarsFailed int          `json:"calendars_failed" dynamodbav:"calendarsFailed"`
	Events          RecordCounts `json:"events" dynamodbav:"events"`
	Attendees       RecordCounts `json:"attendees" dynamodbav:"attendees"`
}

type SyncStats struct {
	PerCalendar []CalendarResult `json:"perCalendar" dynamodbav:"perCalendar"`
	Totals      SyncTotals       `json:"totals" dynamodbav:"totals"`
}

// SyncRun is the in-memory record of one invocation, owned by the caller.
type SyncRun struct {
	ID         string      `json:"id" dynamodbav:"id"`
	Mode       SyncMode    `json:"mode" dynamodbav:"mode"`
	Options    SyncOptions `json:"options" dynamodbav:"options"`
	StartedAt  time.Time   `json:"started_at" dynamodbav:"startedAt"`
	FinishedAt time.Time   `json:"finished_at" dynamodbav:"finishedAt"`
	DurationMs int64       `json:"duration_ms" dynamodbav:"durationMs"`
	Success    bool        `json:"success" dynamodbav:"success"`
	Stats      SyncStats   `json:"stats" dynamodbav:"stats"`
}

// Summarize recomputes totals from the per-calendar slots.
func (r *SyncRun) Summarize() {
	totals := SyncTotals{Calendars: len(r.Stats.PerCalendar)}
	for _, cal := range r.Stats.PerCalendar {
		if cal.Error != "" {
			totals.CalendarsFailed++
		}
		totals.Events.Merge(cal.Events)
		totals.Attendees.Merge(cal.Attendees)
	}
	r.Stats.Totals = totals
}
