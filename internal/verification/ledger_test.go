package verification_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/testutil"
	"github.com/Veraticus/gigproof/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db     *testutil.TestDB
	clock  *common.FixedClock
	ledger *verification.Ledger
}

func newFixture(t *testing.T, opts ...verification.Option) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := common.NewFixedClock(issuedAt)
	opts = append([]verification.Option{verification.WithClock(clock)}, opts...)
	return &fixture{
		db:     db,
		clock:  clock,
		ledger: verification.NewLedger(db.Storage, opts...),
	}
}

func (f *fixture) userWithIncome(t *testing.T, id string, credits int) {
	t.Helper()
	f.db.MustCreateUser(id, credits)
	f.db.MustSaveSummary(testutil.SampleSummary(id, issuedAt))
}

// sequentialCodes yields the given codes in order, then fails.
func sequentialCodes(codes ...string) verification.CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(codes) {
			return "", fmt.Errorf("out of codes")
		}
		code := codes[i]
		i++
		return code, nil
	}
}

func TestIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("creates record and spends credit", func(t *testing.T) {
		f := newFixture(t)
		f.userWithIncome(t, "u1", 2)

		rec, err := f.ledger.Issue(ctx, "u1")
		require.NoError(t, err)

		assert.Regexp(t, `^GIG-[0-9A-F]{16}$`, rec.VerificationCode)
		assert.Len(t, rec.VerificationHash, 64)
		assert.Equal(t, issuedAt, rec.CreatedAt)
		assert.Equal(t, issuedAt.AddDate(0, 0, 90), rec.ExpiresAt)
		assert.Equal(t, 0, rec.VerificationCount)
		assert.InDelta(t, 200.0, rec.Figures.Total90Days, 0.001)

		user, err := f.db.Storage.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, user.Credits)
	})

	t.Run("codes are unique", func(t *testing.T) {
		f := newFixture(t)
		f.userWithIncome(t, "u1", 20)

		seen := map[string]bool{}
		for i := 0; i < 20; i++ {
			rec, err := f.ledger.Issue(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, seen[rec.VerificationCode])
			seen[rec.VerificationCode] = true
		}
	})

	t.Run("retries on code collision", func(t *testing.T) {
		f := newFixture(t, verification.WithCodeGenerator(
			sequentialCodes("GIG-AAAAAAAAAAAAAAAA", "GIG-AAAAAAAAAAAAAAAA", "GIG-BBBBBBBBBBBBBBBB")))
		f.userWithIncome(t, "u1", 5)

		first, err := f.ledger.Issue(ctx, "u1")
		require.NoError(t, err)
		second, err := f.ledger.Issue(ctx, "u1")
		require.NoError(t, err)

		assert.Equal(t, "GIG-AAAAAAAAAAAAAAAA", first.VerificationCode)
		assert.Equal(t, "GIG-BBBBBBBBBBBBBBBB", second.VerificationCode)

		user, err := f.db.Storage.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 3, user.Credits)
	})

	tests := []struct {
		setup   func(t *testing.T, f *fixture)
		name    string
		userID  string
		wantErr error
	}{
		{
			name:    "empty identity",
			userID:  "",
			wantErr: common.ErrUnauthorized,
		},
		{
			name:    "unknown user",
			userID:  "ghost",
			wantErr: common.ErrUnauthorized,
		},
		{
			name:   "no summary",
			userID: "u1",
			setup: func(t *testing.T, f *fixture) {
				f.db.MustCreateUser("u1", 1)
			},
			wantErr: common.ErrNoIncomeData,
		},
		{
			name:   "empty breakdown",
			userID: "u1",
			setup: func(t *testing.T, f *fixture) {
				f.db.MustCreateUser("u1", 1)
				summary := testutil.SampleSummary("u1", issuedAt)
				summary.PlatformBreakdown = nil
				f.db.MustSaveSummary(summary)
			},
			wantErr: common.ErrNoIncomeData,
		},
		{
			name:   "no credits",
			userID: "u1",
			setup: func(t *testing.T, f *fixture) {
				f.userWithIncome(t, "u1", 0)
			},
			wantErr: common.ErrInsufficientCredits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			_, err := f.ledger.Issue(ctx, tt.userID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIssue_ConcurrentLastCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.userWithIncome(t, "u1", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.Issue(ctx, "u1")
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, common.ErrInsufficientCredits):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	user, err := f.db.Storage.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Credits)
}

func TestLookup_ByCodeAndHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.userWithIncome(t, "u1", 1)

	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.ledger.Lookup(ctx, verification.LookupRequest{Code: " " + rec.VerificationCode + " ", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, model.VerificationValid, res.Status)
	assert.Equal(t, 1, res.VerificationCount)
	require.NotNil(t, res.IncomeData)
	assert.InDelta(t, 200.0, res.IncomeData.Total90Days, 0.001)
	assert.Equal(t, rec.ExpiresAt, res.IncomeData.ExpiresAt)
	assert.Contains(t, res.Message, "authentic")

	res, err = f.ledger.Lookup(ctx, verification.LookupRequest{ContentHash: rec.VerificationHash, IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, rec.VerificationCode, res.VerificationCode)
	assert.Equal(t, 2, res.VerificationCount)
}

func TestLookup_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.userWithIncome(t, "u1", 1)

	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)

	f.clock.Set(rec.ExpiresAt.Add(time.Second))
	res, err := f.ledger.Lookup(ctx, verification.LookupRequest{Code: rec.VerificationCode, IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, model.VerificationExpired, res.Status)
	assert.InDelta(t, 200.0, res.IncomeData.Total90Days, 0.001)
	assert.Contains(t, res.Message, "expired")
}

func TestLookup_BadRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		req  verification.LookupRequest
	}{
		{name: "neither", req: verification.LookupRequest{IP: "10.0.0.1"}},
		{name: "both", req: verification.LookupRequest{Code: "GIG-1", ContentHash: "abc", IP: "10.0.0.1"}},
		{name: "whitespace only", req: verification.LookupRequest{Code: "   ", IP: "10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Lookup(ctx, tt.req)
			assert.ErrorIs(t, err, common.ErrBadRequest)
		})
	}
}

func TestLookup_LockoutAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.userWithIncome(t, "u1", 1)
	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)

	const ip = "203.0.113.9"
	miss := verification.LookupRequest{Code: "GIG-0000000000000000", IP: ip}

	for i := 0; i < 5; i++ {
		_, err := f.ledger.Lookup(ctx, miss)
		require.ErrorIs(t, err, common.ErrNotFound, "attempt %d", i+1)
	}

	// Even a correct code is refused while locked
	_, err = f.ledger.Lookup(ctx, verification.LookupRequest{Code: rec.VerificationCode, IP: ip})
	require.ErrorIs(t, err, common.ErrLockedOut)
	assert.Contains(t, common.MessageOf(err), "60 minutes")

	// Other IPs are unaffected
	_, err = f.ledger.Lookup(ctx, verification.LookupRequest{Code: rec.VerificationCode, IP: "10.9.9.9"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)
	res, err := f.ledger.Lookup(ctx, verification.LookupRequest{Code: rec.VerificationCode, IP: ip})
	require.NoError(t, err)
	assert.True(t, res.Found)

	state, err := f.db.Storage.GetLockout(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 0, state.FailureCount)
}

func TestLookup_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.userWithIncome(t, "u1", 1)
	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)

	const ip = "203.0.113.10"
	miss := verification.LookupRequest{Code: "GIG-0000000000000000", IP: ip}
	hit := verification.LookupRequest{Code: rec.VerificationCode, IP: ip}

	for i := 0; i < 4; i++ {
		_, err := f.ledger.Lookup(ctx, miss)
		require.ErrorIs(t, err, common.ErrNotFound)
	}
	_, err = f.ledger.Lookup(ctx, hit)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := f.ledger.Lookup(ctx, miss)
		require.ErrorIs(t, err, common.ErrNotFound)
	}

	state, err := f.db.Storage.GetLockout(ctx, ip)
	require.NoError(t, err)
	assert.False(t, state.IsLocked(f.clock.Now()))
}

func TestLookup_HourlyRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.userWithIncome(t, "u1", 1)
	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)

	const ip = "198.51.100.20"
	hit := verification.LookupRequest{Code: rec.VerificationCode, IP: ip}

	for i := 0; i < 10; i++ {
		_, err := f.ledger.Lookup(ctx, hit)
		require.NoError(t, err, "attempt %d", i+1)
		f.clock.Advance(time.Minute)
	}

	_, err = f.ledger.Lookup(ctx, hit)
	require.ErrorIs(t, err, common.ErrRateLimited)

	// Rejected attempts do not extend the window
	f.clock.Set(issuedAt.Add(time.Hour + time.Second))
	_, err = f.ledger.Lookup(ctx, hit)
	require.NoError(t, err)
}

func TestLookup_DailyRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, verification.WithPolicy(verification.Policy{
		HourlyLimit:            100,
		DailyLimit:             3,
		MaxConsecutiveFailures: 5,
		LockoutDuration:        time.Hour,
		Validity:               90 * 24 * time.Hour,
	}))
	f.userWithIncome(t, "u1", 1)
	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)

	hit := verification.LookupRequest{Code: rec.VerificationCode, IP: "198.51.100.30"}
	for i := 0; i < 3; i++ {
		_, err := f.ledger.Lookup(ctx, hit)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Hour)
	}

	_, err = f.ledger.Lookup(ctx, hit)
	require.ErrorIs(t, err, common.ErrRateLimited)
}

func TestLookup_HMACIntegrity(t *testing.T) {
	ctx := context.Background()
	hasher, err := verification.NewHMACHasher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	f := newFixture(t, verification.WithHasher(hasher))
	f.userWithIncome(t, "u1", 1)

	rec, err := f.ledger.Issue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, verification.SchemeHMACSHA256, rec.HashScheme)

	res, err := f.ledger.Lookup(ctx, verification.LookupRequest{ContentHash: rec.VerificationHash, IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestFailureResult(t *testing.T) {
	tests := []struct {
		err  error
		want model.VerificationStatus
	}{
		{err: common.ErrNotFound, want: model.VerificationNotFound},
		{err: common.ErrRateLimited, want: model.VerificationRateLimited},
		{err: common.NewUserError("locked", common.ErrLockedOut), want: model.VerificationLockedOut},
		{err: common.ErrBadRequest, want: model.VerificationBadRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			res := verification.FailureResult(tt.err)
			assert.False(t, res.Found)
			assert.Equal(t, tt.want, res.Status)
			assert.NotEmpty(t, res.Message)
			assert.Nil(t, res.IncomeData)
		})
	}
}
