// Package service defines the interfaces shared between application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	AddCredits(ctx context.Context, userID string, credits int) (int, error)
	SetPlaidItem(ctx context.Context, userID, accessToken, itemID string) error

	// Classified transaction operations
	UpsertClassifiedTransactions(ctx context.Context, txs []model.ClassifiedTransaction) error
	GetGigIncome(ctx context.Context, userID string, start, end time.Time) ([]model.ClassifiedTransaction, error)

	// Income summary operations
	UpsertIncomeSummary(ctx context.Context, summary *model.IncomeSummary) error
	GetIncomeSummary(ctx context.Context, userID string) (*model.IncomeSummary, error)

	// Verification record operations
	IssueVerification(ctx context.Context, rec *model.VerificationRecord) error
	GetVerificationByCode(ctx context.Context, code string) (*model.VerificationRecord, error)
	GetVerificationByHash(ctx context.Context, hash string) (*model.VerificationRecord, error)
	RecordVerificationHit(ctx context.Context, reportID string, at time.Time) (int, error)
	ListVerifications(ctx context.Context, userID string) ([]model.VerificationRecord, error)

	// Lookup throttling operations
	GetLockout(ctx context.Context, ip string) (*model.LockoutState, error)
	IncrementLookupFailures(ctx context.Context, ip string, at time.Time) (int, error)
	LockIP(ctx context.Context, ip string, until time.Time) error
	ClearLockout(ctx context.Context, ip string) error
	RecordLookupAttempt(ctx context.Context, attempt *model.LookupAttempt) error
	CountLookupAttempts(ctx context.Context, ip string, since time.Time) (int, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations that may fail transiently.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
