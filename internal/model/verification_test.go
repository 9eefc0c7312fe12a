package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerificationRecord_StatusAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		expiresAt time.Time
		name      string
		want      VerificationStatus
	}{
		{name: "future expiry", expiresAt: now.Add(time.Hour), want: VerificationValid},
		{name: "exact expiry still valid", expiresAt: now, want: VerificationValid},
		{name: "expired one second ago", expiresAt: now.Add(-time.Second), want: VerificationExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := VerificationRecord{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, rec.StatusAt(now))
		})
	}
}

func TestLockoutState_IsLocked(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	later := now.Add(30 * time.Minute)
	earlier := now.Add(-time.Minute)

	assert.False(t, (&LockoutState{IP: "1.2.3.4", FailureCount: 4}).IsLocked(now))
	assert.True(t, (&LockoutState{IP: "1.2.3.4", LockedUntil: &later}).IsLocked(now))
	assert.False(t, (&LockoutState{IP: "1.2.3.4", LockedUntil: &earlier}).IsLocked(now))
}

func TestIncomeSummary_FiguresIsACopy(t *testing.T) {
	summary := IncomeSummary{
		Total90Days:       200,
		PlatformBreakdown: []PlatformTotal{{Name: "Uber", Total: 200, Percentage: 100}},
	}

	figures := summary.Figures()
	summary.PlatformBreakdown[0].Total = 999

	assert.InDelta(t, 200.0, figures.PlatformBreakdown[0].Total, 0.001)
	assert.InDelta(t, 200.0, figures.Total90Days, 0.001)
}

func TestTransaction_MatchTextAndCredit(t *testing.T) {
	tx := Transaction{Description: "UBER TRIP", MerchantName: "Uber", Amount: -12.5}
	assert.Equal(t, "UBER TRIP Uber", tx.MatchText())
	assert.True(t, tx.IsCredit())

	tx = Transaction{Description: "COFFEE", Amount: 4}
	assert.Equal(t, "COFFEE", tx.MatchText())
	assert.False(t, tx.IsCredit())
}
