package model

import "time"

// PlatformTotal is one row of an income summary's platform breakdown.
type PlatformTotal struct {
	Name       string  `json:"name"`
	Total      float64 `json:"total"`
	Percentage int     `json:"percentage"`
}

// IncomeSummary is the aggregated gig income for one user over a reporting
// period. There is at most one live summary per user.
type IncomeSummary struct {
	PeriodStart       time.Time       `json:"periodStart"`
	PeriodEnd         time.Time       `json:"periodEnd"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	UserID            string          `json:"userId"`
	CurrencyCode      string          `json:"currencyCode"`
	PlatformBreakdown []PlatformTotal `json:"platformBreakdown"`
	WeeklyAverage     float64         `json:"weeklyAverage"`
	MonthlyAverage    float64         `json:"monthlyAverage"`
	Total90Days       float64         `json:"total90Days"`
	ConsistencyScore  int             `json:"consistencyScore"`
}

// Figures copies the summary's numeric fields into an immutable snapshot.
func (s *IncomeSummary) Figures() IncomeFigures {
	breakdown := make([]PlatformTotal, len(s.PlatformBreakdown))
	copy(breakdown, s.PlatformBreakdown)

	return IncomeFigures{
		Total90Days:       s.Total90Days,
		MonthlyAverage:    s.MonthlyAverage,
		WeeklyAverage:     s.WeeklyAverage,
		ConsistencyScore:  s.ConsistencyScore,
		CurrencyCode:      s.CurrencyCode,
		PlatformBreakdown: breakdown,
	}
}

// IncomeFigures is the frozen copy of summary figures bound into a
// verification record.
type IncomeFigures struct {
	CurrencyCode      string          `json:"currencyCode"`
	PlatformBreakdown []PlatformTotal `json:"platformBreakdown"`
	Total90Days       float64         `json:"total90Days"`
	MonthlyAverage    float64         `json:"monthlyAverage"`
	WeeklyAverage     float64         `json:"weeklyAverage"`
	ConsistencyScore  int             `json:"consistencyScore"`
}
