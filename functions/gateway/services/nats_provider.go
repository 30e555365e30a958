package services

import (
	"context"
	"os"
	"sync"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/test_helpers"
)

var (
	natsService     interfaces.NatsServiceInterface
	natsServiceOnce sync.Once
	natsServiceErr  error
)

// GetNatsService returns the change publisher. Without NATS_URL it returns (nil, nil)
// and changes are simply not announced.
func GetNatsService(ctx context.Context) (interfaces.NatsServiceInterface, error) {
	natsServiceOnce.Do(func() {
		if os.Getenv("GO_ENV") == constants.GO_TEST_ENV {
			natsService = test_helpers.NewMockNatsService()
			return
		}
		if os.Getenv("NATS_URL") == "" {
			return
		}
		natsService, natsServiceErr = connectNatsService(ctx, dialNatsService)
	})
	return natsService, natsServiceErr
}

func dialNatsService(ctx context.Context) (*NatsService, error) {
	conn, err := GetNatsClient()
	if err != nil {
		return nil, err
	}
	svc, err := NewNatsService(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return svc, nil
}

// connectNatsService never stores a nil *NatsService inside the interface; a failed
// dial yields a nil interface so callers can compare against nil.
func connectNatsService(ctx context.Context, dial func(ctx context.Context) (*NatsService, error)) (interfaces.NatsServiceInterface, error) {
	svc, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, nil
	}
	return svc, nil
}

// changePublisher is the publisher handed to the reconcile engine: nil whenever the
// change feed is unavailable.
func changePublisher(svc interfaces.NatsServiceInterface, err error) interfaces.ChangePublisherInterface {
	if err != nil || svc == nil {
		return nil
	}
	return svc
}
