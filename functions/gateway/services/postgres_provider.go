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
	postgresService     interfaces.PostgresServiceInterface
	postgresServiceOnce sync.Once
)

// GetPostgresService returns the process-wide canonical store. Under GO_ENV=test it is
// an in-memory store.
func GetPostgresService(ctx context.Context) interfaces.PostgresServiceInterface {
	postgresServiceOnce.Do(func() {
		if os.Getenv("GO_ENV") == constants.GO_TEST_ENV {
			postgresService = test_helpers.NewMockCanonicalStore()
		} else {
			db, err := GetPostgresClient(ctx)
			if err != nil {
				panic(err)
			}
			postgresService = NewPostgresService(db)
		}
	})
	return postgresService
}

func ResetPostgresService() {
	postgresService = nil
	postgresServiceOnce = sync.Once{}
}
