// Package income aggregates classified gig income into weekly windows,
// platform breakdowns and a consistency score.
package income

import (
	"math"
	"sort"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPeriodDays is the length of a standard reporting period.
	DefaultPeriodDays = 90

	// WindowLength is the width of one aggregation window.
	WindowLength = 7 * 24 * time.Hour

	// FallbackPlatformLabel groups gig income that matched no keyword.
	FallbackPlatformLabel = "Gig Platform"

	// DefaultCurrency is used when no transaction carries a currency code.
	DefaultCurrency = "USD"

	// monthsPerPeriod divides a period total into a monthly average. It is
	// fixed rather than derived from calendar months.
	monthsPerPeriod = 3
)

var hundred = decimal.NewFromInt(100)

// Engine turns classified transactions into an IncomeSummary. Windows are
// anchored to the engine's clock rather than to calendar weeks.
type Engine struct {
	clock common.Clock
}

// NewEngine creates an engine reading time from clock.
func NewEngine(clock common.Clock) *Engine {
	if clock == nil {
		clock = common.SystemClock{}
	}
	return &Engine{clock: clock}
}

// DefaultPeriod returns the standard reporting period ending at now.
func DefaultPeriod(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -DefaultPeriodDays), now
}

// Aggregate summarizes the gig income among txs for userID over the period.
// Transactions not flagged as gig income are ignored. Every gig income
// transaction counts toward the total, even if it falls outside all weekly
// windows.
func (e *Engine) Aggregate(userID string, txs []model.ClassifiedTransaction, periodStart, periodEnd time.Time) model.IncomeSummary {
	now := e.clock.Now()

	income := make([]model.ClassifiedTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsGigIncome {
			income = append(income, tx)
		}
	}

	total := decimal.Zero
	for _, tx := range income {
		total = total.Add(decimal.NewFromFloat(tx.IncomeAmount))
	}
	total = total.Round(2)

	windows := WeeklyTotals(income, now, WindowCount(periodStart, periodEnd))
	weeklyAverage := mean(windows)

	return model.IncomeSummary{
		UserID:            userID,
		WeeklyAverage:     round2(weeklyAverage),
		MonthlyAverage:    total.Div(decimal.NewFromInt(monthsPerPeriod)).Round(2).InexactFloat64(),
		Total90Days:       total.InexactFloat64(),
		PlatformBreakdown: Breakdown(income),
		ConsistencyScore:  ConsistencyScore(windows),
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		CurrencyCode:      currencyOf(income),
		UpdatedAt:         now,
	}
}

// WindowCount is the number of 7-day windows covering the period, rounded
// up. A 90-day period has 13 windows.
func WindowCount(periodStart, periodEnd time.Time) int {
	span := periodEnd.Sub(periodStart)
	if span <= 0 {
		return 1
	}
	return int(math.Ceil(float64(span) / float64(WindowLength)))
}

// WeeklyTotals sums income into count windows, most recent first. Window i
// covers [now-(i+1)*7d, now-i*7d). Transactions outside every window are
// left out.
func WeeklyTotals(txs []model.ClassifiedTransaction, now time.Time, count int) []float64 {
	sums := make([]decimal.Decimal, count)
	for i := range sums {
		sums[i] = decimal.Zero
	}

	for _, tx := range txs {
		if !tx.Date.Before(now) {
			continue
		}
		idx := int(now.Sub(tx.Date) / WindowLength)
		if idx >= count {
			continue
		}
		sums[idx] = sums[idx].Add(decimal.NewFromFloat(tx.IncomeAmount))
	}

	totals := make([]float64, count)
	for i, s := range sums {
		totals[i] = s.InexactFloat64()
	}
	return totals
}

// Breakdown groups income by platform label, sorted by total descending.
// Percentages are rounded independently, so they may sum to 99 or 101.
// When the overall total is zero every percentage is zero.
func Breakdown(txs []model.ClassifiedTransaction) []model.PlatformTotal {
	groups := make(map[string]decimal.Decimal)
	total := decimal.Zero

	for _, tx := range txs {
		label := tx.Platform()
		if label == "" {
			label = FallbackPlatformLabel
		}
		amount := decimal.NewFromFloat(tx.IncomeAmount)
		groups[label] = groups[label].Add(amount)
		total = total.Add(amount)
	}

	breakdown := make([]model.PlatformTotal, 0, len(groups))
	for name, sum := range groups {
		sum = sum.Round(2)
		pct := 0
		if total.IsPositive() {
			pct = int(sum.Div(total).Mul(hundred).Round(0).IntPart())
		}
		breakdown = append(breakdown, model.PlatformTotal{
			Name:       name,
			Total:      sum.InexactFloat64(),
			Percentage: pct,
		})
	}

	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Total != breakdown[j].Total {
			return breakdown[i].Total > breakdown[j].Total
		}
		return breakdown[i].Name < breakdown[j].Name
	})

	return breakdown
}

// ConsistencyScore rates week-to-week stability from 0 to 100 as
// (1 - coefficient of variation) * 100. A zero mean scores as a coefficient
// of 1.
func ConsistencyScore(weeklyTotals []float64) int {
	if len(weeklyTotals) == 0 {
		return 0
	}

	avg := mean(weeklyTotals)

	cv := 1.0
	if avg != 0 {
		var sq float64
		for _, w := range weeklyTotals {
			sq += (w - avg) * (w - avg)
		}
		cv = math.Sqrt(sq/float64(len(weeklyTotals))) / avg
	}

	score := (1 - cv) * 100
	score = math.Max(0, math.Min(100, score))
	return int(math.Round(score))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func currencyOf(txs []model.ClassifiedTransaction) string {
	for _, tx := range txs {
		if tx.CurrencyCode != "" {
			return tx.CurrencyCode
		}
	}
	return DefaultCurrency
}
