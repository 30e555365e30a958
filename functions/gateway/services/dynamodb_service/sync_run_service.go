package dynamodb_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodb_types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-playground/validator/v10"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

var validate *validator.Validate = validator.New()

// SyncRunService keeps a log of finished sync runs in DynamoDB, keyed by run id.
type SyncRunService struct {
	db        types.DynamoDBAPI
	tableName string
}

func NewSyncRunService(db types.DynamoDBAPI) *SyncRunService {
	tableName := os.Getenv("SYNC_RUNS_TABLE_NAME")
	if tableName == "" {
		tableName = helpers.GetDbTableName(constants.SyncRunsTablePrefix)
	}
	return &SyncRunService{db: db, tableName: tableName}
}

type syncRunRecord struct {
	ID   string         `validate:"required"`
	Mode types.SyncMode `validate:"required,oneof=dry-run apply"`
}

func (s *SyncRunService) RecordSyncRun(ctx context.Context, run types.SyncRun) error {
	if err := validate.Struct(syncRunRecord{ID: run.ID, Mode: run.Mode}); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if s.tableName == "" {
		return fmt.Errorf("ERR: sync runs table name is empty")
	}

	item, err := attributevalue.MarshalMap(&run)
	if err != nil {
		return fmt.Errorf("marshal sync run: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var conflict *dynamodb_types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return fmt.Errorf("sync run %s already recorded", run.ID)
		}
		log.Printf("ERR: put sync run %s: %v", run.ID, err)
		return err
	}
	return nil
}

func (s *SyncRunService) GetSyncRun(ctx context.Context, id string) (*types.SyncRun, error) {
	result, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]dynamodb_types.AttributeValue{
			"id": &dynamodb_types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(result.Item) == 0 {
		return nil, nil
	}

	var run types.SyncRun
	if err := attributevalue.UnmarshalMap(result.Item, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListSyncRuns returns the most recent runs first. An empty mode lists both modes.
func (s *SyncRunService) ListSyncRuns(ctx context.Context, limit int, mode types.SyncMode) ([]types.SyncRun, error) {
	if limit <= 0 {
		limit = constants.DEFAULT_SYNC_RUNS_LIST_LIMIT
	}

	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}
	if mode != "" {
		filter := expression.Name("mode").Equal(expression.Value(string(mode)))
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("build filter: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var runs []types.SyncRun
	for {
		result, err := s.db.Scan(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []types.SyncRun
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, err
		}
		runs = append(runs, page...)
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
