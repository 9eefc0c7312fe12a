package plaid

import (
	"context"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
)

// TransactionFetcher defines the contract for fetching transaction data.
// This interface allows for easy mocking in tests and swapping data sources.
type TransactionFetcher interface {
	GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error)
}

// Linker runs the Plaid Link token flow.
type Linker interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
}
