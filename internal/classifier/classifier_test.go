package classifier

import (
	"math"
	"testing"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestClassify_EnvironmentSensitivity(t *testing.T) {
	credit := model.Transaction{ID: "t1", Amount: -50}
	debit := model.Transaction{ID: "t2", Amount: 50}

	tests := []struct {
		label *string
		name  string
		env   Environment
		tx    model.Transaction
		want  bool
	}{
		{name: "sandbox unmatched credit", tx: credit, env: EnvironmentSandbox, want: true},
		{name: "production unmatched credit", tx: credit, env: EnvironmentProduction, want: false},
		{name: "sandbox matched debit", tx: debit, label: strPtr("Uber"), env: EnvironmentSandbox, want: true},
		{name: "production matched debit", tx: debit, label: strPtr("Uber"), env: EnvironmentProduction, want: false},
		{name: "production matched credit", tx: credit, label: strPtr("Uber"), env: EnvironmentProduction, want: true},
		{name: "sandbox unmatched debit", tx: debit, env: EnvironmentSandbox, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tx, tt.label, tt.env))
		})
	}
}

func TestStrategies(t *testing.T) {
	sandbox := SandboxStrategy{}
	production := ProductionStrategy{}

	for _, isCredit := range []bool{true, false} {
		for _, matched := range []bool{true, false} {
			assert.Equal(t, isCredit || matched, sandbox.IsGigIncome(isCredit, matched))
			assert.Equal(t, isCredit && matched, production.IsGigIncome(isCredit, matched))
		}
	}
	assert.Equal(t, "sandbox", sandbox.Name())
	assert.Equal(t, "production", production.Name())
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{in: "sandbox", want: EnvironmentSandbox},
		{in: "Development", want: EnvironmentSandbox},
		{in: "production", want: EnvironmentProduction},
		{in: "staging", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			env, err := ParseEnvironment(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, env)
		})
	}
}

func TestClassifier_ClassifyAll(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New(platform.NewMatcher(platform.DefaultTable()), EnvironmentProduction, common.NewFixedClock(now))

	source := []model.Transaction{
		{ID: "a", Date: now, Description: "UBER TRIP", Amount: -120},
		{ID: "b", Date: now, Description: "PAYROLL ACME", Amount: -900},
		{ID: "c", Date: now, Description: "DOORDASH DASHER", Amount: 15},
		{ID: "", Date: now, Description: "UBER", Amount: -10},
		{ID: "e", Description: "UBER", Amount: -10},
		{ID: "f", Date: now, Description: "UBER", Amount: math.NaN()},
	}
	original := append([]model.Transaction(nil), source[:3]...)

	result := c.ClassifyAll(source)

	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Classified, 3)
	assert.Equal(t, 1, result.GigIncomeCount())

	uber := result.Classified[0]
	require.NotNil(t, uber.PlatformLabel)
	assert.Equal(t, "Uber", *uber.PlatformLabel)
	assert.True(t, uber.IsGigIncome)
	assert.InDelta(t, 120.0, uber.IncomeAmount, 0.001)
	assert.InDelta(t, -120.0, uber.Amount, 0.001, "source sign is preserved on the embedded transaction")
	assert.Equal(t, now, uber.ClassifiedAt)

	assert.Nil(t, result.Classified[1].PlatformLabel)
	assert.False(t, result.Classified[1].IsGigIncome)

	assert.Equal(t, "DoorDash", result.Classified[2].Platform())
	assert.False(t, result.Classified[2].IsGigIncome)

	assert.Equal(t, original, source[:3], "classification must not mutate its input")
}

func TestClassifier_SandboxCountsAllCredits(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New(platform.NewMatcher(platform.DefaultTable()), EnvironmentSandbox, common.NewFixedClock(now))

	result := c.ClassifyAll([]model.Transaction{
		{ID: "a", Date: now, Description: "INTRST PYMNT", Amount: -4.22},
		{ID: "b", Date: now, Description: "CREDIT CARD 3333 PAYMENT", Amount: 25},
	})

	require.Len(t, result.Classified, 2)
	assert.True(t, result.Classified[0].IsGigIncome)
	assert.False(t, result.Classified[1].IsGigIncome)
}
