package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

const defaultChangesStream = "EVENTSYNC_CANONICAL"

type jetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NatsService publishes applied canonical writes to a JetStream stream so downstream
// consumers (search indexing, notifications) can follow changes.
type NatsService struct {
	conn          *nats.Conn
	js            jetStreamPublisher
	subjectPrefix string
}

func NewNatsService(ctx context.Context, conn *nats.Conn) (*NatsService, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamName := os.Getenv("NATS_CHANGES_STREAM_NAME")
	if streamName == "" {
		streamName = defaultChangesStream
	}
	subjectPrefix := constants.NATS_CHANGES_SUBJECT_PREFIX

	if _, err = js.Stream(ctx, streamName); err != nil {
		log.Printf("stream %s does not exist, creating it", streamName)
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subjectPrefix + ".>"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NatsService{
		conn:          conn,
		js:            js,
		subjectPrefix: subjectPrefix,
	}, nil
}

func GetNatsClient() (*nats.Conn, error) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		return nil, fmt.Errorf("NATS_URL environment variable is required")
	}
	return nats.Connect(url, nats.Name("eventsync"))
}

// ChangeSubject is <prefix>.<kind>.<classification>, e.g. eventsync.canonical.event.updated.
func ChangeSubject(prefix string, change types.CanonicalChange) string {
	return fmt.Sprintf("%s.%s.%s", prefix, change.Kind, change.Classification)
}

// changeMsgID lets JetStream drop a redelivered publish of the same write.
func changeMsgID(change types.CanonicalChange) string {
	return change.RowID + "@" + strconv.FormatInt(change.OccurredAt.UnixNano(), 10)
}

func (s *NatsService) PublishChange(ctx context.Context, change types.CanonicalChange) error {
	if s == nil || s.js == nil {
		return fmt.Errorf("change feed is not connected")
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	subject := ChangeSubject(s.subjectPrefix, change)
	ack, err := s.js.Publish(ctx, subject, data, jetstream.WithMsgID(changeMsgID(change)))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	if ack.Duplicate {
		log.Printf("change %s already published on stream %q", change.NaturalKey, ack.Stream)
	}
	return nil
}

func (s *NatsService) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
