// Package dynamodb implements the RemoteStore on a single DynamoDB table.
//
// Records live on the base table partitioned by owner
// (PK=<collection>#OWNER#<ownerId>, SK=<seq>#<id>) so owner queries are
// strongly consistent and come back in insertion order. A reference item
// (PK=<collection>#<id>, SK=REF) points at the record for lookups by id;
// both are written and removed in one transaction. DynamoDB has no push
// channel the client can hold, so subscriptions poll and are woken early by
// writes made through the same Store.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/feed"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

const (
	refSK               = "REF"
	refSuffix           = "#REF"
	defaultPollInterval = 2 * time.Second
)

// DBClient is the subset of the DynamoDB API the store calls.
type DBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Options configures the table and polling.
type Options struct {
	TableName    string
	PollInterval time.Duration
}

// item is the stored shape of a record.
type item struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	EntityType string         `dynamodbav:"EntityType"`
	ID         string         `dynamodbav:"ID"`
	Data       ports.Document `dynamodbav:"Data"`
	UpdatedAt  string         `dynamodbav:"UpdatedAt"`
}

// ref maps a record id to the key of its record item.
type ref struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	ID         string `dynamodbav:"ID"`
	RecordPK   string `dynamodbav:"RecordPK"`
	RecordSK   string `dynamodbav:"RecordSK"`
}

// Store implements ports.RemoteStore.
type Store struct {
	client DBClient
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pollers map[*poller]struct{}
}

// NewStore creates a store over client
func NewStore(client DBClient, opts Options, logger *zap.Logger) *Store {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:  client,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		pollers: make(map[*poller]struct{}),
	}
}

func refKey(collection, id string) string {
	return collection + "#" + id
}

func ownerKey(collection, owner string) string {
	return collection + "#OWNER#" + owner
}

func sortKey(seq int64, id string) string {
	return fmt.Sprintf("%020d#%s", seq, id)
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// Query returns matching records in insertion order. Owner-scoped queries
// read one partition; anything else scans. Both read consistently.
func (s *Store) Query(ctx context.Context, collection string, filters []ports.Filter) ([]ports.Record, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	var (
		items []map[string]types.AttributeValue
		err   error
	)
	if owner, ok := ports.OwnerFilter(filters); ok {
		items, err = s.queryOwner(ctx, collection, owner, filters)
	} else {
		items, err = s.scan(ctx, collection, filters)
	}
	if err != nil {
		return nil, s.classify("query", collection, "", err)
	}

	decoded := make([]item, 0, len(items))
	for _, raw := range items {
		var it item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			s.logger.Warn("Skipping undecodable item", zap.String("collection", collection), zap.Error(err))
			continue
		}
		decoded = append(decoded, it)
	}
	sort.SliceStable(decoded, func(i, j int) bool { return decoded[i].SK < decoded[j].SK })

	records := make([]ports.Record, len(decoded))
	for i, it := range decoded {
		records[i] = toRecord(it)
	}
	return records, nil
}

func (s *Store) queryOwner(ctx context.Context, collection, owner string, filters []ports.Filter) ([]map[string]types.AttributeValue, error) {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key("PK").Equal(expression.Value(ownerKey(collection, owner))))
	if rest := withoutOwner(filters); len(rest) > 0 {
		builder = builder.WithFilter(conditionFor(rest))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	var out []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.opts.TableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConsistentRead:            aws.Bool(true),
			ScanIndexForward:          aws.Bool(true),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

func (s *Store) scan(ctx context.Context, collection string, filters []ports.Filter) ([]map[string]types.AttributeValue, error) {
	cond := expression.Name("EntityType").Equal(expression.Value(collection))
	if len(filters) > 0 {
		cond = cond.And(conditionFor(filters))
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build scan expression: %w", err)
	}

	var out []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.opts.TableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConsistentRead:            aws.Bool(true),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// locate resolves id to the key of its record item
func (s *Store) locate(ctx context.Context, op, collection, id string) (ref, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.opts.TableName),
		Key:            keyOf(refKey(collection, id), refSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ref{}, s.classify(op, collection, id, err)
	}
	if len(result.Item) == 0 {
		return ref{}, appErrors.NewNotFoundError(collection, id)
	}

	var r ref
	if err := attributevalue.UnmarshalMap(result.Item, &r); err != nil {
		return ref{}, appErrors.NewInternalError("failed to unmarshal reference").WithCause(err)
	}
	return r, nil
}

// Get reads one record with consistent reads
func (s *Store) Get(ctx context.Context, collection, id string) (ports.Record, error) {
	r, err := s.locate(ctx, "get", collection, id)
	if err != nil {
		return ports.Record{}, err
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.opts.TableName),
		Key:            keyOf(r.RecordPK, r.RecordSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ports.Record{}, s.classify("get", collection, id, err)
	}
	if len(result.Item) == 0 {
		return ports.Record{}, appErrors.NewNotFoundError(collection, id)
	}

	var it item
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return ports.Record{}, appErrors.NewInternalError("failed to unmarshal item").WithCause(err)
	}
	return toRecord(it), nil
}

// Insert writes doc and its reference under a fresh uuid
func (s *Store) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	id := uuid.New().String()
	now := s.now().UTC()
	if doc == nil {
		doc = ports.Document{}
	}
	owner, _ := doc[ports.FieldOwnerID].(string)

	it := item{
		PK:         ownerKey(collection, owner),
		SK:         sortKey(now.UnixNano(), id),
		EntityType: collection,
		ID:         id,
		Data:       doc,
		UpdatedAt:  now.Format(time.RFC3339Nano),
	}
	r := ref{
		PK:         refKey(collection, id),
		SK:         refSK,
		EntityType: collection + refSuffix,
		ID:         id,
		RecordPK:   it.PK,
		RecordSK:   it.SK,
	}

	itemAV, err := attributevalue.MarshalMap(it)
	if err != nil {
		return "", appErrors.NewInternalError("failed to marshal item").WithCause(err)
	}
	refAV, err := attributevalue.MarshalMap(r)
	if err != nil {
		return "", appErrors.NewInternalError("failed to marshal reference").WithCause(err)
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return "", appErrors.NewInternalError("failed to build expression").WithCause(err)
	}

	put := func(av map[string]types.AttributeValue) types.TransactWriteItem {
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(s.opts.TableName),
			Item:                      av,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}}
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{put(itemAV), put(refAV)},
	})
	if err != nil {
		return "", s.classify("insert", collection, id, err)
	}

	s.logger.Debug("Item inserted", zap.String("collection", collection), zap.String("id", id))
	s.poke(collection)
	return id, nil
}

// Update sets fields on an existing record when conds hold. The owner of a
// record is part of its key and cannot be changed.
func (s *Store) Update(ctx context.Context, collection, id string, fields ports.Document, conds ...ports.Filter) error {
	if err := validateFilters(conds); err != nil {
		return err
	}
	if _, ok := fields[ports.FieldOwnerID]; ok {
		return appErrors.NewInternalError("the owner of a record cannot be changed")
	}
	r, err := s.locate(ctx, "update", collection, id)
	if err != nil {
		return err
	}

	update := expression.Set(expression.Name("UpdatedAt"), expression.Value(s.now().UTC().Format(time.RFC3339Nano)))
	for field, value := range fields {
		update = update.Set(expression.Name("Data."+field), expression.Value(value))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(guard(conds)).
		Build()
	if err != nil {
		return appErrors.NewInternalError("failed to build update expression").WithCause(err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.opts.TableName),
		Key:                                 keyOf(r.RecordPK, r.RecordSK),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return s.classify("update", collection, id, err)
	}

	s.poke(collection)
	return nil
}

// Delete removes a record and its reference when conds hold
func (s *Store) Delete(ctx context.Context, collection, id string, conds ...ports.Filter) error {
	if err := validateFilters(conds); err != nil {
		return err
	}
	r, err := s.locate(ctx, "delete", collection, id)
	if err != nil {
		return err
	}
	expr, err := expression.NewBuilder().WithCondition(guard(conds)).Build()
	if err != nil {
		return appErrors.NewInternalError("failed to build condition expression").WithCause(err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                           aws.String(s.opts.TableName),
				Key:                                 keyOf(r.RecordPK, r.RecordSK),
				ConditionExpression:                 expr.Condition(),
				ExpressionAttributeNames:            expr.Names(),
				ExpressionAttributeValues:           expr.Values(),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			}},
			{Delete: &types.Delete{
				TableName: aws.String(s.opts.TableName),
				Key:       keyOf(r.PK, r.SK),
			}},
		},
	})
	if err != nil {
		return s.classify("delete", collection, id, err)
	}

	s.poke(collection)
	return nil
}

// classify maps SDK errors onto the store contract. A failed condition with
// no old item means the record was missing.
func (s *Store) classify(op, collection, id string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return conditionFailed(op, collection, id, ccf.Item)
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return conditionFailed(op, collection, id, reason.Item)
			}
		}
	}

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("collection", collection),
		zap.Error(err),
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		fields = append(fields, zap.String("errorCode", ae.ErrorCode()))
	}
	s.logger.Warn("DynamoDB call failed", fields...)
	return appErrors.NewStoreError(op, err)
}

func conditionFailed(op, collection, id string, old map[string]types.AttributeValue) error {
	if op == "insert" {
		return appErrors.NewConflictError("record already exists: " + collection + "/" + id)
	}
	if len(old) == 0 {
		return appErrors.NewNotFoundError(collection, id)
	}
	return appErrors.NewConflictError("condition failed for " + collection + "/" + id)
}

// guard requires the item to exist and satisfy conds
func guard(conds []ports.Filter) expression.ConditionBuilder {
	cond := expression.Name("PK").AttributeExists()
	if len(conds) > 0 {
		cond = cond.And(conditionFor(conds))
	}
	return cond
}

func conditionFor(filters []ports.Filter) expression.ConditionBuilder {
	conds := make([]expression.ConditionBuilder, len(filters))
	for i, f := range filters {
		name := expression.Name("Data." + f.Field)
		switch f.Op {
		case ports.OpNotEqual:
			conds[i] = expression.Or(name.AttributeNotExists(), name.NotEqual(expression.Value(f.Value)))
		default:
			conds[i] = name.Equal(expression.Value(f.Value))
		}
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return expression.And(conds[0], conds[1], conds[2:]...)
}

func withoutOwner(filters []ports.Filter) []ports.Filter {
	rest := make([]ports.Filter, 0, len(filters))
	for _, f := range filters {
		if f.Field == ports.FieldOwnerID && f.Op == ports.OpEqual {
			continue
		}
		rest = append(rest, f)
	}
	return rest
}

func validateFilters(filters []ports.Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return appErrors.NewInternalError("invalid filter").WithCause(err)
		}
		if strings.ContainsAny(f.Field, ".[]") {
			return appErrors.NewInternalError(fmt.Sprintf("unsupported filter field %q", f.Field))
		}
	}
	return nil
}

func toRecord(it item) ports.Record {
	data := it.Data
	if data == nil {
		data = ports.Document{}
	}
	return ports.Record{ID: it.ID, Data: data}
}

// Subscribe emits the current result set, then re-queries every poll
// interval and after local writes to collection. A set is only emitted when
// it differs from the previous one. A failed poll ends the subscription.
func (s *Store) Subscribe(ctx context.Context, collection string, filters []ports.Filter) (ports.Subscription, error) {
	initial, err := s.Query(ctx, collection, filters)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p := &poller{
		Feed:       feed.New(collection, cancel),
		collection: collection,
		filters:    append([]ports.Filter(nil), filters...),
		last:       initial,
		wake:       make(chan struct{}, 1),
	}

	s.mu.Lock()
	s.pollers[p] = struct{}{}
	s.mu.Unlock()

	p.Deliver(initial)
	go s.run(pollCtx, p)
	return p, nil
}

type poller struct {
	*feed.Feed
	collection string
	filters    []ports.Filter
	last       []ports.Record
	wake       chan struct{}
}

func (s *Store) run(ctx context.Context, p *poller) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	defer func() {
		s.mu.Lock()
		delete(s.pollers, p)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			p.End(nil)
			return
		case <-ticker.C:
		case <-p.wake:
		}

		records, err := s.Query(ctx, p.collection, p.filters)
		if err != nil {
			if ctx.Err() != nil {
				p.End(nil)
				return
			}
			s.logger.Warn("Subscription poll failed", zap.String("collection", p.collection), zap.Error(err))
			p.End(err)
			return
		}
		if reflect.DeepEqual(records, p.last) {
			continue
		}
		p.last = records
		p.Deliver(records)
	}
}

// poke wakes the pollers of collection without blocking
func (s *Store) poke(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.pollers {
		if p.collection != collection {
			continue
		}
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}
