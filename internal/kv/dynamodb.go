package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the subset of *dynamodb.Client the store needs.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type dynamoItem struct {
	PK   string `dynamodbav:"pk"`
	Data string `dynamodbav:"data"`
}

// DynamoStore keeps each record as one item with a string partition key "pk"
// and the JSON document in "data".
type DynamoStore struct {
	client dynamoAPI
	table  string
}

// NewDynamoStore wraps a DynamoDB client (normally dynamodb.NewFromConfig).
func NewDynamoStore(client dynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pkKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamodb decode %s: %w", key, err)
	}
	return []byte(it.Data), nil
}

func (s *DynamoStore) Set(ctx context.Context, key string, value []byte) error {
	item, err := attributevalue.MarshalMap(dynamoItem{PK: key, Data: string(value)})
	if err != nil {
		return fmt.Errorf("dynamodb encode %s: %w", key, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	item, err := attributevalue.MarshalMap(dynamoItem{PK: key, Data: string(value)})
	if err != nil {
		return false, fmt.Errorf("dynamodb encode %s: %w", key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dynamodb put-if-absent %s: %w", key, err)
	}
	return true, nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       pkKey(key),
	}); err != nil {
		return fmt.Errorf("dynamodb delete %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) GetByPrefix(ctx context.Context, prefix string) ([]Item, error) {
	var items []Item
	err := s.scan(ctx, prefix, false, func(out *dynamodb.ScanOutput) error {
		var page []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return err
		}
		for _, it := range page {
			items = append(items, Item{Key: it.PK, Value: []byte(it.Data)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortItems(items)
	return items, nil
}

func (s *DynamoStore) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	total := 0
	err := s.scan(ctx, prefix, true, func(out *dynamodb.ScanOutput) error {
		total += int(out.Count)
		return nil
	})
	return total, err
}

func (s *DynamoStore) scan(ctx context.Context, prefix string, countOnly bool, page func(*dynamodb.ScanOutput) error) error {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String("begins_with(pk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":prefix": &types.AttributeValueMemberS{Value: prefix}},
		ConsistentRead:            aws.Bool(true),
	}
	if countOnly {
		input.Select = types.SelectCount
	}
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("dynamodb scan %s: %w", prefix, err)
		}
		if err := page(out); err != nil {
			return fmt.Errorf("dynamodb decode %s: %w", prefix, err)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}

func (s *DynamoStore) Close() error { return nil }

func pkKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: key}}
}
