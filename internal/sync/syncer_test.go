package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/gigproof/internal/classifier"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/income"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/plaid"
	"github.com/Veraticus/gigproof/internal/platform"
	"github.com/Veraticus/gigproof/internal/sync"
	"github.com/Veraticus/gigproof/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)

func sampleTransactions() []model.Transaction {
	return []model.Transaction{
		{ID: "tx-uber", Date: now.AddDate(0, 0, -3), Description: "UBER *PAYOUT", Amount: -120, CurrencyCode: "USD"},
		{ID: "tx-dd", Date: now.AddDate(0, 0, -10), Description: "DOORDASH DASHER PAY", Amount: -80, CurrencyCode: "USD"},
		{ID: "tx-groceries", Date: now.AddDate(0, 0, -4), Description: "WHOLE FOODS", Amount: 54.20, CurrencyCode: "USD"},
		{ID: "tx-uber-ride", Date: now.AddDate(0, 0, -6), Description: "UBER TRIP", Amount: 18.75, CurrencyCode: "USD"},
		{ID: "", Date: now.AddDate(0, 0, -2), Description: "LYFT PAYOUT", Amount: -40},
	}
}

func newSyncer(t *testing.T, opts ...sync.Option) (*testutil.TestDB, *sync.Syncer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	db.MustCreateUser("u1", 1)

	clock := common.NewFixedClock(now)
	c := classifier.New(platform.NewMatcher(platform.DefaultTable()), classifier.EnvironmentProduction, clock)
	opts = append([]sync.Option{sync.WithClock(clock)}, opts...)
	return db, sync.NewSyncer(db.Storage, c, income.NewEngine(clock), opts...)
}

func TestSyncer_Import(t *testing.T) {
	ctx := context.Background()
	db, syncer := newSyncer(t)

	result, err := syncer.Import(ctx, "u1", sampleTransactions())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 4, result.Classified)
	assert.Equal(t, 2, result.GigIncome)
	assert.Equal(t, 1, result.Skipped)

	require.NotNil(t, result.Summary)
	assert.InDelta(t, 200.0, result.Summary.Total90Days, 0.001)
	assert.InDelta(t, 66.67, result.Summary.MonthlyAverage, 0.001)
	assert.Equal(t, []model.PlatformTotal{
		{Name: "Uber", Total: 120, Percentage: 60},
		{Name: "DoorDash", Total: 80, Percentage: 40},
	}, result.Summary.PlatformBreakdown)

	stored, err := db.Storage.GetIncomeSummary(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, result.Summary.Total90Days, stored.Total90Days, 0.001)
	assert.Equal(t, now.AddDate(0, 0, -90), stored.PeriodStart.UTC())
	assert.Equal(t, now, stored.PeriodEnd.UTC())
}

func TestSyncer_ImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, syncer := newSyncer(t)

	first, err := syncer.Import(ctx, "u1", sampleTransactions())
	require.NoError(t, err)
	second, err := syncer.Import(ctx, "u1", sampleTransactions())
	require.NoError(t, err)

	assert.InDelta(t, first.Summary.Total90Days, second.Summary.Total90Days, 0.001)

	start, end := income.DefaultPeriod(now)
	gig, err := db.Storage.GetGigIncome(ctx, "u1", start, end)
	require.NoError(t, err)
	assert.Len(t, gig, 2)
}

func TestSyncer_ImportUnknownUser(t *testing.T) {
	_, syncer := newSyncer(t)

	_, err := syncer.Import(context.Background(), "ghost", sampleTransactions())
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = syncer.Import(context.Background(), "", sampleTransactions())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestSyncer_ImportWithNoGigIncome(t *testing.T) {
	ctx := context.Background()
	_, syncer := newSyncer(t)

	result, err := syncer.Import(ctx, "u1", []model.Transaction{
		{ID: "rent", Date: now.AddDate(0, 0, -1), Description: "RENT", Amount: 1500},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.GigIncome)
	assert.Zero(t, result.Summary.Total90Days)
	assert.Empty(t, result.Summary.PlatformBreakdown)
}

func TestSyncer_Sync(t *testing.T) {
	ctx := context.Background()
	source := plaid.NewMockClient()
	source.GetTransactionsFn = func(_ context.Context, _ string, _, _ time.Time) ([]model.Transaction, error) {
		return sampleTransactions(), nil
	}

	var progress []int
	_, syncer := newSyncer(t,
		sync.WithSource(source),
		sync.WithProgress(func(done, _ int) { progress = append(progress, done) }),
	)

	result, err := syncer.Sync(ctx, "u1", "access-sandbox-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.GigIncome)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, progress)

	require.Len(t, source.GetTransactionsCalls, 1)
	call := source.GetTransactionsCalls[0]
	assert.Equal(t, "access-sandbox-1", call.AccessToken)
	assert.Equal(t, now.AddDate(0, 0, -90), call.StartDate)
	assert.Equal(t, now, call.EndDate)
}

func TestSyncer_SyncErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("source failure is upstream unavailable", func(t *testing.T) {
		source := plaid.NewMockClient()
		source.GetTransactionsFn = func(_ context.Context, _ string, _, _ time.Time) ([]model.Transaction, error) {
			return nil, common.ErrPlaidConnection
		}
		_, syncer := newSyncer(t, sync.WithSource(source))

		_, err := syncer.Sync(ctx, "u1", "access")
		require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
		assert.ErrorIs(t, err, common.ErrPlaidConnection)
	})

	t.Run("canceled context passes through", func(t *testing.T) {
		source := plaid.NewMockClient()
		source.GetTransactionsFn = func(_ context.Context, _ string, _, _ time.Time) ([]model.Transaction, error) {
			return nil, context.Canceled
		}
		_, syncer := newSyncer(t, sync.WithSource(source))

		_, err := syncer.Sync(ctx, "u1", "access")
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, common.ErrUpstreamUnavailable))
	})

	t.Run("missing access token", func(t *testing.T) {
		_, syncer := newSyncer(t, sync.WithSource(plaid.NewMockClient()))

		_, err := syncer.Sync(ctx, "u1", "")
		assert.ErrorIs(t, err, common.ErrBadRequest)
	})

	t.Run("no source configured", func(t *testing.T) {
		_, syncer := newSyncer(t)

		_, err := syncer.Sync(ctx, "u1", "access")
		assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	})
}
