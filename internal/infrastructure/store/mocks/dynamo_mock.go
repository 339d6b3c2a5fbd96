package mocks

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MockDynamo keeps PutItem items in memory keyed by event_id and honours the
// attribute_not_exists condition the journal uses.
type MockDynamo struct {
	mu    sync.Mutex
	Items []map[string]types.AttributeValue
	ids   map[string]bool

	PutErr   error
	QueryOut *dynamodb.QueryOutput
}

func NewMockDynamo() *MockDynamo {
	return &MockDynamo{ids: make(map[string]bool)}
}

func (m *MockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	id := ""
	if v, ok := in.Item["event_id"].(*types.AttributeValueMemberS); ok {
		id = v.Value
	}
	if in.ConditionExpression != nil && m.ids[id] {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.ids[id] = true
	m.Items = append(m.Items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MockDynamo) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryOut != nil {
		return m.QueryOut, nil
	}
	return &dynamodb.QueryOutput{Items: m.Items}, nil
}
