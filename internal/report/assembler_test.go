package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/report"
	"github.com/Veraticus/gigproof/internal/testutil"
	"github.com/Veraticus/gigproof/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)

type recordingRenderer struct {
	err      error
	payloads []*model.ReportPayload
}

func (r *recordingRenderer) Write(_ context.Context, payload *model.ReportPayload) error {
	r.payloads = append(r.payloads, payload)
	return r.err
}

func setup(t *testing.T, credits int) (*testutil.TestDB, *report.Assembler) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	db.MustCreateUser("u1", credits)
	db.MustSaveSummary(testutil.SampleSummary("u1", now))

	ledger := verification.NewLedger(db.Storage, verification.WithClock(common.NewFixedClock(now)))
	return db, report.NewAssembler(db.Storage, ledger)
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()
	db, assembler := setup(t, 1)

	payload, err := assembler.Assemble(ctx, "u1")
	require.NoError(t, err)

	assert.NotEmpty(t, payload.ReportID)
	assert.Regexp(t, `^GIG-[0-9A-F]{16}$`, payload.VerificationCode)
	assert.Equal(t, now.AddDate(0, 0, 90), payload.ExpiresAt)
	assert.Equal(t, model.UserInfo{Name: "Test User u1", Email: "u1@example.com"}, payload.UserInfo)
	assert.InDelta(t, 200.0, payload.Summary.Total90Days, 0.001)
	assert.Len(t, payload.Summary.PlatformBreakdown, 2)

	rec, err := db.Storage.GetVerificationByCode(ctx, payload.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, payload.ReportID, rec.ReportID)
	assert.Equal(t, rec.VerificationHash, payload.VerificationHash)
}

func TestAssemble_HashFromPayloadResolves(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	db.MustCreateUser("u1", 1)
	db.MustSaveSummary(testutil.SampleSummary("u1", now))
	ledger := verification.NewLedger(db.Storage, verification.WithClock(common.NewFixedClock(now)))

	payload, err := report.NewAssembler(db.Storage, ledger).Assemble(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, payload.VerificationHash)

	result, err := ledger.Lookup(ctx, verification.LookupRequest{ContentHash: payload.VerificationHash, IP: "198.51.100.1"})
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, payload.VerificationCode, result.VerificationCode)
	assert.Equal(t, model.VerificationValid, result.Status)
}

func TestAssemble_PropagatesIssueErrors(t *testing.T) {
	ctx := context.Background()
	_, assembler := setup(t, 0)

	_, err := assembler.Assemble(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrInsufficientCredits)

	_, err = assembler.Assemble(ctx, "")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = assembler.Assemble(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestAssemble_NoSummarySpendsNothing(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	db.MustCreateUser("u2", 1)
	ledger := verification.NewLedger(db.Storage, verification.WithClock(common.NewFixedClock(now)))

	_, err := report.NewAssembler(db.Storage, ledger).Assemble(ctx, "u2")
	require.ErrorIs(t, err, common.ErrNoIncomeData)

	user, err := db.Storage.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, user.Credits)
}

func TestAssembleAndRender(t *testing.T) {
	ctx := context.Background()

	t.Run("renders each payload", func(t *testing.T) {
		_, assembler := setup(t, 1)
		renderer := &recordingRenderer{}

		payload, err := assembler.AssembleAndRender(ctx, "u1", renderer)
		require.NoError(t, err)
		require.Len(t, renderer.payloads, 1)
		assert.Same(t, payload, renderer.payloads[0])
	})

	t.Run("renderer failure keeps the payload", func(t *testing.T) {
		_, assembler := setup(t, 1)
		renderer := &recordingRenderer{err: errors.New("sheets down")}

		payload, err := assembler.AssembleAndRender(ctx, "u1", renderer)
		require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
		require.NotNil(t, payload)
		assert.NotEmpty(t, payload.VerificationCode)
	})
}
