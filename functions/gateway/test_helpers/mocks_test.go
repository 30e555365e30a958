package test_helpers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

func TestMockDynamoDBClient_PutItem(t *testing.T) {
	called := false
	mock := &MockDynamoDBClient{
		PutItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			called = true
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	if _, err := mock.PutItem(context.Background(), &dynamodb.PutItemInput{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Errorf("expected PutItemFunc to be called")
	}
}

func TestMockCanonicalStoreEnforcesNaturalKeys(t *testing.T) {
	store := NewMockCanonicalStore()
	ctx := context.Background()
	ev := types.CanonicalEvent{Source: "luma", SourceID: "evt-1", Title: "A", StartsAt: time.Now()}

	inserted, err := store.InsertEvent(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted.ID == "" {
		t.Errorf("expected an id to be assigned")
	}
	if _, err := store.InsertEvent(ctx, ev); !errors.Is(err, types.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	rsvp := types.EventRsvp{EventID: inserted.ID, EventSource: "luma", EventSourceID: "evt-1", AttendeeID: "gst-1", Status: types.RsvpStatusGoing}
	if _, err := store.InsertRsvp(ctx, rsvp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.InsertRsvp(ctx, rsvp); !errors.Is(err, types.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for rsvp, got %v", err)
	}

	if store.Writes() != 2 {
		t.Errorf("expected 2 writes, got %d", store.Writes())
	}
	missing, err := store.GetEventByKey(ctx, "luma", "nope")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for a missing key, got %v, %v", missing, err)
	}
}

func TestMockNatsService_PublishChange(t *testing.T) {
	mock := NewMockNatsService()
	err := mock.PublishChange(context.Background(), types.CanonicalChange{Kind: types.RecordKindEvent, NaturalKey: "event:luma:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.Published()) != 1 || len(mock.PublishedMsgs) != 1 {
		t.Errorf("expected one published change")
	}
}
