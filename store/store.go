package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Store wraps a DynamoDB client with the operations the feed core needs.
// A Store holds no per-request state and is safe for concurrent use.
type Store struct {
	client DynamoAPI
	config Config
}

// New creates a new Store instance.
func New(client DynamoAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns the store's table configuration.
func (s *Store) Config() Config {
	return s.config
}

// Get retrieves an item by primary key with a strongly consistent read,
// returning ErrNotFound if the item does not exist.
func (s *Store) Get(ctx context.Context, table string, key PK) (map[string]types.AttributeValue, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return result.Item, nil
}

// QueryInput defines parameters for a single-page range query.
type QueryInput struct {
	// TableName is the DynamoDB table to query.
	TableName string

	// IndexName is the optional GSI to query.
	IndexName string

	// KeyConditionExpression is the DynamoDB key condition.
	KeyConditionExpression string

	// ExpressionAttributeValues maps expression attribute value placeholders.
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit is the maximum number of items to return (0 = no limit).
	Limit int32

	// ScanIndexForward determines sort order (true = ascending, false = descending).
	ScanIndexForward *bool

	// ExclusiveStartKey resumes iteration after a previous page's
	// LastEvaluatedKey. Nil starts from the beginning.
	ExclusiveStartKey map[string]types.AttributeValue
}

// QueryResult is a single page of query results.
type QueryResult struct {
	// Items are the matching items in sort-key order.
	Items []map[string]types.AttributeValue

	// LastEvaluatedKey resumes iteration; nil when the query stopped
	// because the relation was exhausted rather than the limit reached.
	LastEvaluatedKey map[string]types.AttributeValue
}

// Query executes a single-page range query. Unlike a paginator it never
// fetches past the requested limit; pagination is the caller's concern.
func (s *Store) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	queryInput := &dynamodb.QueryInput{
		TableName:                 aws.String(input.TableName),
		KeyConditionExpression:    aws.String(input.KeyConditionExpression),
		ExpressionAttributeValues: input.ExpressionAttributeValues,
	}

	if input.IndexName != "" {
		queryInput.IndexName = aws.String(input.IndexName)
	}
	if input.Limit > 0 {
		queryInput.Limit = aws.Int32(input.Limit)
	}
	if input.ScanIndexForward != nil {
		queryInput.ScanIndexForward = input.ScanIndexForward
	}
	if input.ExclusiveStartKey != nil {
		queryInput.ExclusiveStartKey = input.ExclusiveStartKey
	}

	page, err := s.client.Query(ctx, queryInput)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Items:            page.Items,
		LastEvaluatedKey: page.LastEvaluatedKey,
	}, nil
}

// Transact submits an all-or-nothing multi-item write. When the
// transaction is cancelled because an item's condition failed, the error
// is a *ConditionFailedError carrying that item's index; when it lost to
// a concurrent transaction, ErrTransactionConflict.
func (s *Store) Transact(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapTransactionError(err)
}

// mapTransactionError maps DynamoDB transaction cancellation errors.
func mapTransactionError(err error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				return &ConditionFailedError{Index: i}
			case "TransactionConflict":
				return ErrTransactionConflict
			}
		}
		return ErrTransactionConflict
	}

	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return ErrTransactionConflict
	}

	return err
}
