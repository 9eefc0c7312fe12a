// Package sync runs the fetch, classify, persist and aggregate pipeline that
// keeps a user's income summary current.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/gigproof/internal/classifier"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/income"
	"github.com/Veraticus/gigproof/internal/model"
)

// TransactionSource supplies a user's bank transactions.
type TransactionSource interface {
	GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error)
}

// Store is the persistence a sync writes to.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpsertClassifiedTransactions(ctx context.Context, txs []model.ClassifiedTransaction) error
	GetGigIncome(ctx context.Context, userID string, start, end time.Time) ([]model.ClassifiedTransaction, error)
	UpsertIncomeSummary(ctx context.Context, summary *model.IncomeSummary) error
}

// ProgressFunc is called after each transaction is classified.
type ProgressFunc func(done, total int)

// Result describes one sync run.
type Result struct {
	Summary    *model.IncomeSummary
	Fetched    int
	Classified int
	GigIncome  int
	Skipped    int
}

// Syncer wires a transaction source to the classifier, storage and
// aggregation engine.
type Syncer struct {
	store      Store
	classifier *classifier.Classifier
	engine     *income.Engine
	source     TransactionSource
	clock      common.Clock
	progress   ProgressFunc
	logger     *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSource sets the transaction source used by Sync.
func WithSource(source TransactionSource) Option {
	return func(s *Syncer) { s.source = source }
}

// WithClock overrides the clock that anchors the sync period.
func WithClock(clock common.Clock) Option {
	return func(s *Syncer) { s.clock = clock }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Syncer) { s.progress = fn }
}

// NewSyncer creates a syncer.
func NewSyncer(store Store, c *classifier.Classifier, engine *income.Engine, opts ...Option) *Syncer {
	s := &Syncer{
		store:      store,
		classifier: c,
		engine:     engine,
		clock:      common.SystemClock{},
		logger:     slog.Default().With("component", "sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync fetches the user's transactions for the default period from the
// configured source and runs them through Import.
func (s *Syncer) Sync(ctx context.Context, userID, accessToken string) (*Result, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no transaction source configured", common.ErrUpstreamUnavailable)
	}
	if accessToken == "" {
		return nil, &common.UserError{
			Err:         common.ErrBadRequest,
			UserMessage: "No bank account is linked. Link an account before syncing.",
		}
	}

	start, end := income.DefaultPeriod(s.clock.Now())

	s.logger.Info("Starting sync", "user_id", userID, "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))

	txs, err := s.source.GetTransactions(ctx, accessToken, start, end)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetching transactions: %w", common.ErrUpstreamUnavailable, err)
	}

	return s.Import(ctx, userID, txs)
}

// Import classifies and stores pre-fetched transactions, then rebuilds the
// user's income summary from everything stored for the period. Importing the
// same transactions twice leaves one row per transaction ID.
func (s *Syncer) Import(ctx context.Context, userID string, txs []model.Transaction) (*Result, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	owned := make([]model.Transaction, len(txs))
	for i, tx := range txs {
		tx.UserID = userID
		owned[i] = tx
	}

	classified := s.classifyWithProgress(owned)

	if len(classified.Classified) > 0 {
		if err := s.store.UpsertClassifiedTransactions(ctx, classified.Classified); err != nil {
			return nil, fmt.Errorf("storing classified transactions: %w", err)
		}
	}

	start, end := income.DefaultPeriod(s.clock.Now())
	gig, err := s.store.GetGigIncome(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading gig income: %w", err)
	}

	summary := s.engine.Aggregate(userID, gig, start, end)
	if err := s.store.UpsertIncomeSummary(ctx, &summary); err != nil {
		return nil, fmt.Errorf("storing income summary: %w", err)
	}

	result := &Result{
		Summary:    &summary,
		Fetched:    len(txs),
		Classified: len(classified.Classified),
		GigIncome:  classified.GigIncomeCount(),
		Skipped:    classified.Skipped,
	}

	s.logger.Info("Sync complete",
		"user_id", userID,
		"fetched", result.Fetched,
		"gig_income", result.GigIncome,
		"skipped", result.Skipped,
		"total_90_days", summary.Total90Days)

	return result, nil
}

func (s *Syncer) classifyWithProgress(txs []model.Transaction) classifier.Result {
	if s.progress == nil {
		return s.classifier.ClassifyAll(txs)
	}

	result := classifier.Result{Classified: make([]model.ClassifiedTransaction, 0, len(txs))}
	for i, tx := range txs {
		c, err := s.classifier.ClassifyOne(tx)
		if err != nil {
			s.logger.Warn("Skipping malformed transaction", "transaction_id", tx.ID, "error", err)
			result.Skipped++
		} else {
			result.Classified = append(result.Classified, c)
		}
		s.progress(i+1, len(txs))
	}
	return result
}
