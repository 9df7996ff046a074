package buildstate

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/order-reconciler/internal/domain"
)

// DynamoAPI is the subset of *dynamodb.Client the DynamoDB backend uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const (
	stateSK = "state"

	// DynamoDB batch limits.
	batchGetMax   = 100
	batchWriteMax = 25
	// Attempts at draining unprocessed batch items before giving up.
	batchAttempts = 5
)

// dynamoItem is one row of the single-table layout: the build state lives at
// (StateKey, "state"); each committed order at (SeenOrdersKey, orderKey).
type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data,omitempty"`
	Timestamp string `dynamodbav:"Timestamp,omitempty"`
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// DynamoRepository stores the build state as one DynamoDB item.
type DynamoRepository struct {
	client DynamoAPI
	table  string
}

func NewDynamoRepository(client DynamoAPI, table string) *DynamoRepository {
	return &DynamoRepository{client: client, table: table}
}

func (r *DynamoRepository) Load(ctx context.Context) (*domain.BuildState, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            itemKey(StateKey, stateSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load build state: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return decodeState([]byte(item.Data))
}

func (r *DynamoRepository) Save(ctx context.Context, s *domain.BuildState) error {
	raw, err := encodeState(s)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:        StateKey,
		SK:        stateSK,
		Data:      string(raw),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling build state: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.table), Item: av}); err != nil {
		return fmt.Errorf("save build state: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Delete(ctx context.Context) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       itemKey(StateKey, stateSK),
	})
	if err != nil {
		return fmt.Errorf("delete build state: %w", err)
	}
	return nil
}

// DynamoOrderIndex keeps committed order keys as items under SeenOrdersKey.
type DynamoOrderIndex struct {
	client DynamoAPI
	table  string
}

func NewDynamoOrderIndex(client DynamoAPI, table string) *DynamoOrderIndex {
	return &DynamoOrderIndex{client: client, table: table}
}

func (x *DynamoOrderIndex) Contains(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for start := 0; start < len(keys); start += batchGetMax {
		batch := keys[start:min(start+batchGetMax, len(keys))]
		req := map[string]types.KeysAndAttributes{x.table: {
			Keys:                 make([]map[string]types.AttributeValue, 0, len(batch)),
			ProjectionExpression: aws.String("SK"),
			ConsistentRead:       aws.Bool(true),
		}}
		seen := make(map[string]bool, len(batch))
		for _, k := range batch {
			if seen[k] {
				continue
			}
			seen[k] = true
			ka := req[x.table]
			ka.Keys = append(ka.Keys, itemKey(SeenOrdersKey, k))
			req[x.table] = ka
		}

		for attempt := 0; len(req) > 0; attempt++ {
			if attempt == batchAttempts {
				return nil, fmt.Errorf("seen orders lookup: unprocessed keys after %d attempts", batchAttempts)
			}
			out, err := x.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: req})
			if err != nil {
				return nil, fmt.Errorf("seen orders lookup: %w", err)
			}
			for _, item := range out.Responses[x.table] {
				var it dynamoItem
				if err := attributevalue.UnmarshalMap(item, &it); err != nil {
					return nil, fmt.Errorf("seen orders lookup: %w", err)
				}
				found[it.SK] = true
			}
			req = out.UnprocessedKeys
		}
	}
	return found, nil
}

func (x *DynamoOrderIndex) Add(ctx context.Context, keys []string) error {
	writes := make([]types.WriteRequest, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: itemKey(SeenOrdersKey, k)}})
	}
	if err := x.write(ctx, writes); err != nil {
		return fmt.Errorf("record seen orders: %w", err)
	}
	return nil
}

func (x *DynamoOrderIndex) Reset(ctx context.Context) error {
	var (
		writes []types.WriteRequest
		start  map[string]types.AttributeValue
	)
	for {
		out, err := x.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(x.table),
			KeyConditionExpression:    aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: SeenOrdersKey}},
			ProjectionExpression:      aws.String("PK, SK"),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return fmt.Errorf("reset seen orders: %w", err)
		}
		for _, item := range out.Items {
			writes = append(writes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: item}})
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	if err := x.write(ctx, writes); err != nil {
		return fmt.Errorf("reset seen orders: %w", err)
	}
	return nil
}

// write sends writes in batches, resubmitting unprocessed items.
func (x *DynamoOrderIndex) write(ctx context.Context, writes []types.WriteRequest) error {
	for start := 0; start < len(writes); start += batchWriteMax {
		req := map[string][]types.WriteRequest{x.table: writes[start:min(start+batchWriteMax, len(writes))]}
		for attempt := 0; len(req[x.table]) > 0; attempt++ {
			if attempt == batchAttempts {
				return fmt.Errorf("%d unprocessed items after %d attempts", len(req[x.table]), batchAttempts)
			}
			out, err := x.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: req})
			if err != nil {
				return err
			}
			req = out.UnprocessedItems
		}
	}
	return nil
}
