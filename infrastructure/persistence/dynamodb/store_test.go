package dynamodb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

type mockDB struct {
	mock.Mock
}

func (m *mockDB) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockDB) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockDB) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockDB) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

func newStore(db *mockDB) *Store {
	return NewStore(db, Options{TableName: "videos-table", PollInterval: time.Hour}, zap.NewNop())
}

func storedItem(t *testing.T, collection, id string, seq int64, data ports.Document) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(item{
		PK:         ownerKey(collection, data[ports.FieldOwnerID].(string)),
		SK:         sortKey(seq, id),
		EntityType: collection,
		ID:         id,
		Data:       data,
	})
	require.NoError(t, err)
	return av
}

func storedRef(t *testing.T, collection, id, owner string, seq int64) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(ref{
		PK:         refKey(collection, id),
		SK:         refSK,
		EntityType: collection + refSuffix,
		ID:         id,
		RecordPK:   ownerKey(collection, owner),
		RecordSK:   sortKey(seq, id),
	})
	require.NoError(t, err)
	return av
}

func keyValue(key map[string]types.AttributeValue, name string) string {
	v, _ := key[name].(*types.AttributeValueMemberS)
	if v == nil {
		return ""
	}
	return v.Value
}

// expectRef answers the reference lookup for id
func expectRef(t *testing.T, db *mockDB, id string, found bool) {
	out := &dynamodb.GetItemOutput{}
	if found {
		out.Item = storedRef(t, "videos", id, "u1", 7)
	}
	db.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return keyValue(in.Key, "SK") == refSK && aws.ToBool(in.ConsistentRead)
	})).Return(out, nil)
}

func TestStore_Get(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	expectRef(t, db, "v1", true)
	db.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return keyValue(in.Key, "PK") == "videos#OWNER#u1" &&
			keyValue(in.Key, "SK") == sortKey(7, "v1") &&
			aws.ToBool(in.ConsistentRead)
	})).Return(&dynamodb.GetItemOutput{
		Item: storedItem(t, "videos", "v1", 7, ports.Document{"ownerId": "u1", "title": "A", "isFavorite": true}),
	}, nil)

	rec, err := s.Get(context.Background(), "videos", "v1")

	require.NoError(t, err)
	assert.Equal(t, "v1", rec.ID)
	assert.Equal(t, "A", rec.Data["title"])
	assert.Equal(t, true, rec.Data["isFavorite"])
	db.AssertExpectations(t)
}

func TestStore_Get_Missing(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	expectRef(t, db, "nope", false)

	_, err := s.Get(context.Background(), "videos", "nope")

	assert.True(t, appErrors.IsNotFound(err))
	db.AssertNumberOfCalls(t, "GetItem", 1)
}

func TestStore_Insert(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	var captured *dynamodb.TransactWriteItemsInput
	db.On("TransactWriteItems", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	id, err := s.Insert(context.Background(), "videos", ports.Document{"ownerId": "u1", "title": "A"})

	require.NoError(t, err)
	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 2)
	assert.NotEmpty(t, id)

	var it item
	put := captured.TransactItems[0].Put
	require.NotNil(t, put)
	assert.Contains(t, aws.ToString(put.ConditionExpression), "attribute_not_exists")
	require.NoError(t, attributevalue.UnmarshalMap(put.Item, &it))
	assert.Equal(t, "videos#OWNER#u1", it.PK)
	assert.True(t, strings.HasSuffix(it.SK, "#"+id))
	assert.Equal(t, "videos", it.EntityType)
	assert.Equal(t, "A", it.Data["title"])

	var r ref
	require.NotNil(t, captured.TransactItems[1].Put)
	require.NoError(t, attributevalue.UnmarshalMap(captured.TransactItems[1].Put.Item, &r))
	assert.Equal(t, "videos#"+id, r.PK)
	assert.Equal(t, "videos#REF", r.EntityType)
	assert.Equal(t, it.PK, r.RecordPK)
	assert.Equal(t, it.SK, r.RecordSK)
}

func TestStore_GuardedWrites(t *testing.T) {
	existing := map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "videos#OWNER#u1"}}
	canceled := func(old map[string]types.AttributeValue) error {
		return &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed"), Item: old},
			{Code: aws.String("None")},
		}}
	}

	tests := []struct {
		name      string
		updateErr error
		deleteErr error
		check     func(error) bool
	}{
		{"missing record", &types.ConditionalCheckFailedException{}, canceled(nil), appErrors.IsNotFound},
		{"failed condition", &types.ConditionalCheckFailedException{Item: existing}, canceled(existing), appErrors.IsConflict},
		{"transport", errors.New("connection reset"), errors.New("connection reset"), appErrors.IsStore},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/update", func(t *testing.T) {
			db := &mockDB{}
			s := newStore(db)
			expectRef(t, db, "v1", true)
			db.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, tt.updateErr)

			err := s.Update(context.Background(), "videos", "v1", ports.Document{"isFavorite": true}, ports.Eq("ownerId", "u1"))

			assert.True(t, tt.check(err), "got %v", err)
		})
		t.Run(tt.name+"/delete", func(t *testing.T) {
			db := &mockDB{}
			s := newStore(db)
			expectRef(t, db, "v1", true)
			db.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, tt.deleteErr)

			err := s.Delete(context.Background(), "videos", "v1", ports.Eq("ownerId", "u1"))

			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestStore_WritesToUnknownID(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	expectRef(t, db, "gone", false)

	err := s.Update(context.Background(), "videos", "gone", ports.Document{"isFavorite": true})
	assert.True(t, appErrors.IsNotFound(err))

	err = s.Delete(context.Background(), "videos", "gone")
	assert.True(t, appErrors.IsNotFound(err))

	db.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}

func TestStore_Update_BuildsGuardedExpression(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	expectRef(t, db, "v1", true)
	var captured *dynamodb.UpdateItemInput
	db.On("UpdateItem", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.UpdateItemInput) }).
		Return(&dynamodb.UpdateItemOutput{}, nil)

	err := s.Update(context.Background(), "videos", "v1", ports.Document{"isFavorite": true},
		ports.Eq("ownerId", "u1"), ports.Eq("isFavorite", false))

	require.NoError(t, err)
	assert.Equal(t, "videos#OWNER#u1", keyValue(captured.Key, "PK"))
	assert.Equal(t, sortKey(7, "v1"), keyValue(captured.Key, "SK"))
	assert.Contains(t, aws.ToString(captured.ConditionExpression), "attribute_exists")
	assert.Contains(t, aws.ToString(captured.UpdateExpression), "SET")
	assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, captured.ReturnValuesOnConditionCheckFailure)
	assert.Contains(t, captured.ExpressionAttributeNames, "#0")
}

func TestStore_Update_RejectsOwnerChange(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)

	err := s.Update(context.Background(), "videos", "v1", ports.Document{"ownerId": "u2"})

	assert.Error(t, err)
	db.AssertNotCalled(t, "GetItem", mock.Anything, mock.Anything)
}

func TestStore_Delete_RemovesRecordAndReference(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	expectRef(t, db, "v1", true)
	var captured *dynamodb.TransactWriteItemsInput
	db.On("TransactWriteItems", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, s.Delete(context.Background(), "videos", "v1", ports.Eq("ownerId", "u1")))

	require.Len(t, captured.TransactItems, 2)
	record, reference := captured.TransactItems[0].Delete, captured.TransactItems[1].Delete
	require.NotNil(t, record)
	require.NotNil(t, reference)
	assert.Equal(t, "videos#OWNER#u1", keyValue(record.Key, "PK"))
	assert.Contains(t, aws.ToString(record.ConditionExpression), "attribute_exists")
	assert.Equal(t, "videos#v1", keyValue(reference.Key, "PK"))
	assert.Equal(t, refSK, keyValue(reference.Key, "SK"))
}

func TestStore_Query_ReadsOwnerPartitionConsistently(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	page2Key := map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "videos#OWNER#u1"}}

	db.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.IndexName == nil && aws.ToBool(in.ConsistentRead) && in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{storedItem(t, "videos", "b", 2, ports.Document{"ownerId": "u1"})},
		LastEvaluatedKey: page2Key,
	}, nil).Once()
	db.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.IndexName == nil && aws.ToBool(in.ConsistentRead) && in.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{storedItem(t, "videos", "a", 1, ports.Document{"ownerId": "u1"})},
	}, nil).Once()

	records, err := s.Query(context.Background(), "videos", []ports.Filter{ports.Eq("ownerId", "u1")})

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID, "sorted by insertion sequence")
	assert.Equal(t, "b", records[1].ID)
	db.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	db.AssertExpectations(t)
}

func TestStore_Query_ScanWithoutOwner(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	db.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return aws.ToBool(in.ConsistentRead)
	})).Return(&dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{storedItem(t, "lists", "l1", 1, ports.Document{"ownerId": "u1"})},
	}, nil)

	records, err := s.Query(context.Background(), "lists", []ports.Filter{ports.Eq("name", "Watch later")})

	require.NoError(t, err)
	assert.Len(t, records, 1)
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestStore_Query_Errors(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	db.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := s.Query(context.Background(), "videos", []ports.Filter{ports.Eq("ownerId", "u1")})
	assert.True(t, appErrors.IsStore(err))

	_, err = s.Query(context.Background(), "videos", []ports.Filter{{Field: "a.b", Op: ports.OpEqual, Value: 1}})
	assert.Error(t, err)
	assert.False(t, appErrors.IsStore(err))
}

func TestStore_Subscribe(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	one := storedItem(t, "videos", "a", 1, ports.Document{"ownerId": "u1"})
	two := storedItem(t, "videos", "b", 2, ports.Document{"ownerId": "u1"})

	db.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{one}}, nil).Once()
	db.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{one, two}}, nil).Once()
	db.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	db.On("TransactWriteItems", mock.Anything, mock.Anything).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	sub, err := s.Subscribe(context.Background(), "videos", []ports.Filter{ports.Eq("ownerId", "u1")})
	require.NoError(t, err)

	first := <-sub.Updates()
	assert.Len(t, first, 1)

	// A local write wakes the poller
	_, err = s.Insert(context.Background(), "videos", ports.Document{"ownerId": "u1"})
	require.NoError(t, err)
	select {
	case second := <-sub.Updates():
		assert.Len(t, second, 2)
	case <-time.After(time.Second):
		t.Fatal("no update after write")
	}

	_, err = s.Insert(context.Background(), "videos", ports.Document{"ownerId": "u1"})
	require.NoError(t, err)
	select {
	case _, open := <-sub.Updates():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not ended")
	}
	assert.True(t, appErrors.IsSync(sub.Err()))
}

func TestStore_Subscribe_Close(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	db.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	sub, err := s.Subscribe(context.Background(), "videos", []ports.Filter{ports.Eq("ownerId", "u1")})
	require.NoError(t, err)
	<-sub.Updates()

	require.NoError(t, sub.Close())

	_, open := <-sub.Updates()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pollers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStore_Subscribe_InitialFailure(t *testing.T) {
	db := &mockDB{}
	s := newStore(db)
	db.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	_, err := s.Subscribe(context.Background(), "videos", []ports.Filter{ports.Eq("ownerId", "u1")})

	assert.True(t, appErrors.IsStore(err))
}
