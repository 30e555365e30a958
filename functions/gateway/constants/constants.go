package constants

type AWSReqKey string

const ApiGwV2ReqKey AWSReqKey = "ApiGwV2Req"

// for all dynamo tables, currently single region
const AWS_REGION = "us-east-1"

const SyncRunsTablePrefix = "SyncRuns"

const GO_TEST_ENV = "test"

// Providers. The provider name doubles as the `source` half of an event's natural key.
const PROVIDER_LUMA = "luma"
const PROVIDER_ICAL = "ical"

const PROVIDER_PATH_KEY = "provider"

// Luma API
const LUMA_DEFAULT_API_BASE_URL = "https://public-api.lu.ma"
const LUMA_API_KEY_HEADER = "x-luma-api-key"
const LUMA_WEBHOOK_SECRET_HEADER = "x-luma-webhook-secret"
const LUMA_LIST_EVENTS_PATH = "/public/v1/calendar/list-events"
const LUMA_GET_GUESTS_PATH = "/public/v1/event/get-guests"
const LUMA_PAGE_SIZE = 50

// Luma webhook types
const LUMA_WEBHOOK_EVENT_CREATED = "event.created"
const LUMA_WEBHOOK_EVENT_UPDATED = "event.updated"
const LUMA_WEBHOOK_EVENT_CANCELED = "event.canceled"
const LUMA_WEBHOOK_GUEST_REGISTERED = "guest.registered"
const LUMA_WEBHOOK_GUEST_UPDATED = "guest.updated"

// iCal
const ICAL_CALENDAR_MARKER = "BEGIN:VCALENDAR"
const ICAL_MAX_OCCURRENCES_PER_EVENT = 500
const DEFAULT_SYNC_HORIZON_DAYS = 90

// Feature flag env keys
const FEATURE_EVENT_SYNC_KEY = "FEATURE_EVENT_SYNC"
const FEATURE_EVENT_WEBHOOKS_KEY = "FEATURE_EVENT_WEBHOOKS"
const FEATURE_ATTENDEE_SYNC_KEY = "FEATURE_ATTENDEE_SYNC"
const FEATURE_ICAL_SYNC_KEY = "FEATURE_ICAL_SYNC"

// Sync trigger query params
const SYNC_APPLY_PARAM = "apply"
const SYNC_CALENDAR_PARAM = "calendar"
const SYNC_VERBOSE_PARAM = "verbose"

const DEFAULT_SYNC_CRON = "*/30 * * * *"
const DEFAULT_SYNC_RUNS_LIST_LIMIT = 20

// NATS change feed
const NATS_CHANGES_SUBJECT_PREFIX = "eventsync.canonical"
