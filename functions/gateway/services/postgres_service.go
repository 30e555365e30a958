package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoworld/eventsync/functions/gateway/types"
)

const pgUniqueViolation = "23505"

// pgxQuerier is the subset of *pgxpool.Pool the canonical store needs.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresService is the canonical store. Natural keys are enforced by unique
// constraints on events(source, source_id) and event_rsvps(event_id, attendee_id).
type PostgresService struct {
	DB pgxQuerier
}

func NewPostgresService(db *pgxpool.Pool) *PostgresService {
	return &PostgresService{DB: db}
}

func GetPostgresClient(ctx context.Context) (*pgxpool.Pool, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return pgxpool.New(ctx, dsn)
	}

	host := os.Getenv("POSTGRES_HOST")
	port := os.Getenv("POSTGRES_PORT")
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	dbname := os.Getenv("POSTGRES_DB")

	if host == "" || port == "" || user == "" || password == "" || dbname == "" {
		return nil, fmt.Errorf("missing required environment variables for Postgres")
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, dbname)
	return pgxpool.New(ctx, dsn)
}

const eventColumns = `id, source, source_id, calendar_id, title, description, starts_at, ends_at,
	timezone, location_address, location_lat, location_long, host_ref, cover_image_url,
	culture_tag, url, cancelled, source_modified_at, created_at, updated_at`

const rsvpColumns = `r.id, r.event_id, e.source, e.source_id, r.attendee_id, r.attendee_name, r.status,
	r.registered_at, r.checked_in_at, r.source_modified_at, r.created_at, r.updated_at`

func scanEvent(row pgx.Row) (*types.CanonicalEvent, error) {
	var ev types.CanonicalEvent
	err := row.Scan(
		&ev.ID, &ev.Source, &ev.SourceID, &ev.CalendarID, &ev.Title, &ev.Description,
		&ev.StartsAt, &ev.EndsAt, &ev.Timezone,
		&ev.Location.Address, &ev.Location.Latitude, &ev.Location.Longitude,
		&ev.HostRef, &ev.CoverImageURL, &ev.CultureTag, &ev.URL, &ev.Cancelled,
		&ev.SourceModifiedAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func scanRsvp(row pgx.Row) (*types.EventRsvp, error) {
	var r types.EventRsvp
	var status string
	err := row.Scan(
		&r.ID, &r.EventID, &r.EventSource, &r.EventSourceID, &r.AttendeeID, &r.AttendeeName, &status,
		&r.RegisteredAt, &r.CheckedInAt, &r.SourceModifiedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = types.RsvpStatus(status)
	return &r, nil
}

// writeErr maps a unique violation, or an ON CONFLICT DO NOTHING that returned no
// row, to ErrDuplicateKey.
func writeErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ErrDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", types.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

func (s *PostgresService) GetEventByKey(ctx context.Context, source, sourceID string) (*types.CanonicalEvent, error) {
	ev, err := scanEvent(s.DB.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE source = $1 AND source_id = $2`, source, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s/%s: %w", source, sourceID, err)
	}
	return ev, nil
}

func (s *PostgresService) InsertEvent(ctx context.Context, ev types.CanonicalEvent) (*types.CanonicalEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = now
	}

	inserted, err := scanEvent(s.DB.QueryRow(ctx, `
		INSERT INTO events (`+eventColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (source, source_id) DO NOTHING
		RETURNING `+eventColumns,
		ev.ID, ev.Source, ev.SourceID, ev.CalendarID, ev.Title, ev.Description,
		ev.StartsAt, ev.EndsAt, ev.Timezone,
		ev.Location.Address, ev.Location.Latitude, ev.Location.Longitude,
		ev.HostRef, ev.CoverImageURL, ev.CultureTag, ev.URL, ev.Cancelled,
		ev.SourceModifiedAt, ev.CreatedAt, ev.UpdatedAt,
	))
	if err != nil {
		return nil, writeErr(err)
	}
	return inserted, nil
}

func (s *PostgresService) UpdateEvent(ctx context.Context, ev types.CanonicalEvent) (*types.CanonicalEvent, error) {
	updated, err := scanEvent(s.DB.QueryRow(ctx, `
		UPDATE events SET
			calendar_id = $2,
			title = $3,
			description = $4,
			starts_at = $5,
			ends_at = $6,
			timezone = $7,
			location_address = $8,
			location_lat = $9,
			location_long = $10,
			host_ref = $11,
			cover_image_url = $12,
			culture_tag = $13,
			url = $14,
			cancelled = $15,
			source_modified_at = $16,
			updated_at = $17
		WHERE id = $1
		RETURNING `+eventColumns,
		ev.ID, ev.CalendarID, ev.Title, ev.Description, ev.StartsAt, ev.EndsAt, ev.Timezone,
		ev.Location.Address, ev.Location.Latitude, ev.Location.Longitude,
		ev.HostRef, ev.CoverImageURL, ev.CultureTag, ev.URL, ev.Cancelled,
		ev.SourceModifiedAt, ev.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update event %s: row not found", ev.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", ev.ID, err)
	}
	return updated, nil
}

func (s *PostgresService) GetRsvpByKey(ctx context.Context, eventID, attendeeID string) (*types.EventRsvp, error) {
	r, err := scanRsvp(s.DB.QueryRow(ctx, `
		SELECT `+rsvpColumns+`
		FROM event_rsvps r JOIN events e ON e.id = r.event_id
		WHERE r.event_id = $1 AND r.attendee_id = $2`, eventID, attendeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rsvp %s/%s: %w", eventID, attendeeID, err)
	}
	return r, nil
}

func (s *PostgresService) InsertRsvp(ctx context.Context, r types.EventRsvp) (*types.EventRsvp, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}

	inserted, err := scanRsvp(s.DB.QueryRow(ctx, `
		WITH r AS (
			INSERT INTO event_rsvps (
				id, event_id, attendee_id, attendee_name, status,
				registered_at, checked_in_at, source_modified_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (event_id, attendee_id) DO NOTHING
			RETURNING *
		)
		SELECT `+rsvpColumns+` FROM r JOIN events e ON e.id = r.event_id`,
		r.ID, r.EventID, r.AttendeeID, r.AttendeeName, string(r.Status),
		r.RegisteredAt, r.CheckedInAt, r.SourceModifiedAt, r.CreatedAt, r.UpdatedAt,
	))
	if err != nil {
		return nil, writeErr(err)
	}
	return inserted, nil
}

func (s *PostgresService) UpdateRsvp(ctx context.Context, r types.EventRsvp) (*types.EventRsvp, error) {
	updated, err := scanRsvp(s.DB.QueryRow(ctx, `
		WITH r AS (
			UPDATE event_rsvps SET
				attendee_name = $2,
				status = $3,
				registered_at = $4,
				checked_in_at = $5,
				source_modified_at = $6,
				updated_at = $7
			WHERE id = $1
			RETURNING *
		)
		SELECT `+rsvpColumns+` FROM r JOIN events e ON e.id = r.event_id`,
		r.ID, r.AttendeeName, string(r.Status), r.RegisteredAt, r.CheckedInAt,
		r.SourceModifiedAt, r.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update rsvp %s: row not found", r.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update rsvp %s: %w", r.ID, err)
	}
	return updated, nil
}

func (s *PostgresService) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *PostgresService) Close() error {
	s.DB.Close()
	return nil
}
