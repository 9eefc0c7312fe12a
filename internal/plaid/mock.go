package plaid

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
)

// MockClient is a mock implementation of the Plaid client for testing.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	GetTransactionsFn     func(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error)
	CreateLinkTokenFn     func(ctx context.Context, userID string) (string, error)
	ExchangePublicTokenFn func(ctx context.Context, publicToken string) (string, string, error)

	// Call tracking
	GetTransactionsCalls     []GetTransactionsCall
	CreateLinkTokenCalls     []string
	ExchangePublicTokenCalls []string

	mu sync.Mutex
}

// GetTransactionsCall records the parameters of a GetTransactions call.
type GetTransactionsCall struct {
	StartDate   time.Time
	EndDate     time.Time
	AccessToken string
}

// NewMockClient creates a new mock Plaid client.
func NewMockClient() *MockClient {
	return &MockClient{
		GetTransactionsCalls: []GetTransactionsCall{},
	}
}

// GetTransactions implements TransactionFetcher.
func (m *MockClient) GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	m.GetTransactionsCalls = append(m.GetTransactionsCalls, GetTransactionsCall{
		AccessToken: accessToken,
		StartDate:   startDate,
		EndDate:     endDate,
	})
	m.mu.Unlock()

	if m.GetTransactionsFn != nil {
		return m.GetTransactionsFn(ctx, accessToken, startDate, endDate)
	}

	// Default behavior: return empty slice
	return []model.Transaction{}, nil
}

// CreateLinkToken implements Linker.
func (m *MockClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	m.CreateLinkTokenCalls = append(m.CreateLinkTokenCalls, userID)
	m.mu.Unlock()

	if m.CreateLinkTokenFn != nil {
		return m.CreateLinkTokenFn(ctx, userID)
	}
	return "link-sandbox-" + userID, nil
}

// ExchangePublicToken implements Linker.
func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	m.mu.Lock()
	m.ExchangePublicTokenCalls = append(m.ExchangePublicTokenCalls, publicToken)
	m.mu.Unlock()

	if m.ExchangePublicTokenFn != nil {
		return m.ExchangePublicTokenFn(ctx, publicToken)
	}
	return "access-sandbox-" + publicToken, "item-" + publicToken, nil
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetTransactionsCalls = []GetTransactionsCall{}
	m.CreateLinkTokenCalls = nil
	m.ExchangePublicTokenCalls = nil
}

var (
	_ TransactionFetcher = (*MockClient)(nil)
	_ Linker             = (*MockClient)(nil)
)
