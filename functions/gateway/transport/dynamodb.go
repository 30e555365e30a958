package transport

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/test_helpers"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

var (
	db     types.DynamoDBAPI
	once   sync.Once
	testDB types.DynamoDBAPI
)

// CreateDbClient builds the sync-run log client. Locally it talks to dynamodb-local at
// DYNAMODB_ENDPOINT (default http://localhost:8000).
func CreateDbClient() types.DynamoDBAPI {
	opts := []func(*config.LoadOptions) error{config.WithRegion(constants.AWS_REGION)}

	if !helpers.IsRemoteDB() {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{AccessKeyID: "local", SecretAccessKey: "local", Source: "dynamodb-local"},
		}))
	} else if accessKeyID := os.Getenv("AWS_ACCESS_KEY"); accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     accessKeyID,
				SecretAccessKey: os.Getenv("SECRET_ACCESS_KEY"),
				Source:          ".env file",
			},
		}))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		log.Printf("ERR: loading default Dynamo client config: %v", err)
		panic(err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if helpers.IsRemoteDB() {
			return
		}
		endpoint := os.Getenv("DYNAMODB_ENDPOINT")
		if endpoint == "" {
			endpoint = "http://localhost:8000"
		}
		o.BaseEndpoint = aws.String(endpoint)
	})
}

func SetTestDB(db types.DynamoDBAPI) {
	testDB = db
}

func GetDB() types.DynamoDBAPI {
	if os.Getenv("GO_ENV") == constants.GO_TEST_ENV {
		if testDB == nil {
			log.Println("Creating mock DB for testing")
			testDB = &test_helpers.MockDynamoDBClient{}
		}
		return testDB
	}
	once.Do(func() {
		db = CreateDbClient()
	})
	return db
}
