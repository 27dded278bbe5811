// Package dynamotest provides a deterministic in-memory DynamoDB double
// for the feed core's unit tests. It implements the store's client
// interface and honors the expression grammar the engine and reader
// emit: attribute_exists / attribute_not_exists conditions, ADD counter
// updates, and equality key conditions on tables and sparse indexes,
// with limits, sort order and continuation keys. Transactions are
// all-or-nothing and report per-item cancellation reasons exactly like
// the real service.
package dynamotest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Schema describes a table's key attributes.
type Schema struct {
	HashKey  string
	RangeKey string // empty for simple primary keys
}

// Index describes a global secondary index. Items missing the range
// attribute are absent from the index (sparse index semantics).
type Index struct {
	HashKey  string
	RangeKey string
}

type table struct {
	schema  Schema
	indexes map[string]Index
	items   map[string]map[string]types.AttributeValue
}

// DB is the in-memory store. Safe for concurrent use.
type DB struct {
	mu     sync.Mutex
	tables map[string]*table
}

// New creates an empty DB.
func New() *DB {
	return &DB{tables: make(map[string]*table)}
}

// CreateTable registers a table schema.
func (db *DB) CreateTable(name string, schema Schema) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[name] = &table{
		schema:  schema,
		indexes: make(map[string]Index),
		items:   make(map[string]map[string]types.AttributeValue),
	}
}

// CreateIndex registers a global secondary index on an existing table.
func (db *DB) CreateIndex(tableName, indexName string, index Index) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[tableName].indexes[indexName] = index
}

// Seed marshals v and stores it, bypassing conditions.
func (db *DB) Seed(tableName string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[tableName]
	if !ok {
		return fmt.Errorf("dynamotest: unknown table %q", tableName)
	}
	key, err := t.itemKey(item)
	if err != nil {
		return err
	}
	t.items[key] = copyItem(item)
	return nil
}

// Len reports the number of items in a table.
func (db *DB) Len(tableName string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// GetItem implements the DynamoDB GetItem API.
func (db *DB) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, fmt.Errorf("dynamotest: unknown table %q", aws.ToString(params.TableName))
	}
	key, err := t.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

// Query implements the DynamoDB Query API for equality key conditions.
func (db *DB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, fmt.Errorf("dynamotest: unknown table %q", aws.ToString(params.TableName))
	}

	hashAttr, rangeAttr := t.schema.HashKey, t.schema.RangeKey
	if name := aws.ToString(params.IndexName); name != "" {
		idx, ok := t.indexes[name]
		if !ok {
			return nil, fmt.Errorf("dynamotest: unknown index %q", name)
		}
		hashAttr, rangeAttr = idx.HashKey, idx.RangeKey
	}

	conds, err := parseKeyCondition(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var matches []map[string]types.AttributeValue
	for _, item := range t.items {
		if rangeAttr != "" && item[rangeAttr] == nil {
			continue // sparse index
		}
		ok := true
		for attr, want := range conds {
			if stringAttr(item, attr) != want {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, item)
		}
	}

	forward := true
	if params.ScanIndexForward != nil {
		forward = *params.ScanIndexForward
	}
	if rangeAttr != "" {
		sort.Slice(matches, func(i, j int) bool {
			a, b := stringAttr(matches[i], rangeAttr), stringAttr(matches[j], rangeAttr)
			if forward {
				return a < b
			}
			return a > b
		})
	}

	if start := params.ExclusiveStartKey; start != nil && rangeAttr != "" {
		after := stringAttr(start, rangeAttr)
		var rest []map[string]types.AttributeValue
		for _, item := range matches {
			v := stringAttr(item, rangeAttr)
			if (forward && v > after) || (!forward && v < after) {
				rest = append(rest, item)
			}
		}
		matches = rest
	}

	out := &dynamodb.QueryOutput{}
	limit := len(matches)
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	for _, item := range matches[:limit] {
		out.Items = append(out.Items, copyItem(item))
	}
	if limit < len(matches) && limit > 0 {
		last := matches[limit-1]
		lek := map[string]types.AttributeValue{}
		for _, attr := range []string{hashAttr, rangeAttr, t.schema.HashKey, t.schema.RangeKey} {
			if attr != "" && last[attr] != nil {
				lek[attr] = last[attr]
			}
		}
		out.LastEvaluatedKey = lek
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// TransactWriteItems implements the DynamoDB transactional write API.
// All conditions are evaluated against the pre-state; if any fails, no
// item is written and a TransactionCanceledException carries one
// cancellation reason per item.
func (db *DB) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false

	for i, item := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		ok, err := db.checkCondition(item)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{
				Code:    aws.String("ConditionalCheckFailed"),
				Message: aws.String("The conditional request failed"),
			}
			failed = true
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		if err := db.apply(item); err != nil {
			return nil, err
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (db *DB) checkCondition(item types.TransactWriteItem) (bool, error) {
	switch {
	case item.Put != nil:
		existing, err := db.lookupByItem(aws.ToString(item.Put.TableName), item.Put.Item)
		if err != nil {
			return false, err
		}
		return evalCondition(item.Put.ConditionExpression, existing)
	case item.Delete != nil:
		existing, err := db.lookupByKey(aws.ToString(item.Delete.TableName), item.Delete.Key)
		if err != nil {
			return false, err
		}
		return evalCondition(item.Delete.ConditionExpression, existing)
	case item.Update != nil:
		existing, err := db.lookupByKey(aws.ToString(item.Update.TableName), item.Update.Key)
		if err != nil {
			return false, err
		}
		return evalCondition(item.Update.ConditionExpression, existing)
	case item.ConditionCheck != nil:
		existing, err := db.lookupByKey(aws.ToString(item.ConditionCheck.TableName), item.ConditionCheck.Key)
		if err != nil {
			return false, err
		}
		return evalCondition(item.ConditionCheck.ConditionExpression, existing)
	}
	return true, nil
}

func (db *DB) apply(item types.TransactWriteItem) error {
	switch {
	case item.Put != nil:
		t := db.tables[aws.ToString(item.Put.TableName)]
		key, err := t.itemKey(item.Put.Item)
		if err != nil {
			return err
		}
		t.items[key] = copyItem(item.Put.Item)
	case item.Delete != nil:
		t := db.tables[aws.ToString(item.Delete.TableName)]
		key, err := t.itemKey(item.Delete.Key)
		if err != nil {
			return err
		}
		delete(t.items, key)
	case item.Update != nil:
		t := db.tables[aws.ToString(item.Update.TableName)]
		key, err := t.itemKey(item.Update.Key)
		if err != nil {
			return err
		}
		existing, ok := t.items[key]
		if !ok {
			existing = copyItem(item.Update.Key)
			t.items[key] = existing
		}
		if err := applyUpdate(existing, aws.ToString(item.Update.UpdateExpression), item.Update.ExpressionAttributeValues); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) lookupByItem(tableName string, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	t, ok := db.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("dynamotest: unknown table %q", tableName)
	}
	key, err := t.itemKey(item)
	if err != nil {
		return nil, err
	}
	return t.items[key], nil
}

func (db *DB) lookupByKey(tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	t, ok := db.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("dynamotest: unknown table %q", tableName)
	}
	k, err := t.itemKey(key)
	if err != nil {
		return nil, err
	}
	return t.items[k], nil
}

// itemKey composes the map key from an item's primary key attributes.
func (t *table) itemKey(item map[string]types.AttributeValue) (string, error) {
	hash := stringAttr(item, t.schema.HashKey)
	if hash == "" {
		return "", fmt.Errorf("dynamotest: item missing hash key %q", t.schema.HashKey)
	}
	if t.schema.RangeKey == "" {
		return hash, nil
	}
	rng := stringAttr(item, t.schema.RangeKey)
	if rng == "" {
		return "", fmt.Errorf("dynamotest: item missing range key %q", t.schema.RangeKey)
	}
	return hash + "\x00" + rng, nil
}

var (
	existsPattern    = regexp.MustCompile(`^attribute_exists\((\w+)\)$`)
	notExistsPattern = regexp.MustCompile(`^attribute_not_exists\((\w+)\)$`)
	addPattern       = regexp.MustCompile(`^ADD (\w+) (:\w+)$`)
	eqPattern        = regexp.MustCompile(`^(\w+) = (:\w+)$`)
)

// evalCondition evaluates a condition expression against the current
// item (nil when absent).
func evalCondition(expr *string, existing map[string]types.AttributeValue) (bool, error) {
	if expr == nil {
		return true, nil
	}
	s := strings.TrimSpace(*expr)
	if m := existsPattern.FindStringSubmatch(s); m != nil {
		return existing != nil && existing[m[1]] != nil, nil
	}
	if m := notExistsPattern.FindStringSubmatch(s); m != nil {
		return existing == nil || existing[m[1]] == nil, nil
	}
	return false, fmt.Errorf("dynamotest: unsupported condition expression %q", s)
}

// applyUpdate applies an ADD expression to an item in place.
func applyUpdate(item map[string]types.AttributeValue, expr string, values map[string]types.AttributeValue) error {
	m := addPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return fmt.Errorf("dynamotest: unsupported update expression %q", expr)
	}
	attr, placeholder := m[1], m[2]

	delta, err := numberValue(values[placeholder])
	if err != nil {
		return err
	}
	current := int64(0)
	if existing, ok := item[attr].(*types.AttributeValueMemberN); ok {
		current, err = strconv.ParseInt(existing.Value, 10, 64)
		if err != nil {
			return err
		}
	}
	item[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+delta, 10)}
	return nil
}

// parseKeyCondition parses "a = :x" or "a = :x AND b = :y" into resolved
// attribute/value pairs.
func parseKeyCondition(expr string, values map[string]types.AttributeValue) (map[string]string, error) {
	conds := make(map[string]string)
	for _, part := range strings.Split(expr, " AND ") {
		m := eqPattern.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("dynamotest: unsupported key condition %q", expr)
		}
		v, ok := values[m[2]].(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing value for %q", m[2])
		}
		conds[m[1]] = v.Value
	}
	return conds, nil
}

func numberValue(v types.AttributeValue) (int64, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamotest: expected number value, got %T", v)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func stringAttr(item map[string]types.AttributeValue, attr string) string {
	if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	dup := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		dup[k] = v
	}
	return dup
}
