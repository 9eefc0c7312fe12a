package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
	"github.com/shopspring/decimal"
)

// Tab titles, in the order they appear in the spreadsheet.
const (
	SummaryTab      = "Summary"
	PlatformsTab    = "Platforms"
	VerificationTab = "Verification"
)

// Tabs lists every tab a report writes.
var Tabs = []string{SummaryTab, PlatformsTab, VerificationTab}

// PlatformRow is one line of the Platforms tab.
type PlatformRow struct {
	Platform   string
	Total      decimal.Decimal
	Percentage int
}

// TabData holds the rows for every tab of one report.
type TabData struct {
	Title        string
	Summary      [][]any
	Platforms    []PlatformRow
	Verification [][]any
}

// Values returns the rows to write for the named tab.
func (d TabData) Values(tab string) [][]any {
	switch tab {
	case SummaryTab:
		return d.Summary
	case PlatformsTab:
		rows := [][]any{{"Platform", "Total", "Share"}}
		for _, p := range d.Platforms {
			rows = append(rows, []any{p.Platform, p.Total.InexactFloat64(), fmt.Sprintf("%d%%", p.Percentage)})
		}
		return rows
	case VerificationTab:
		return d.Verification
	}
	return nil
}

// buildTabData lays out a report payload as spreadsheet rows. Dates are
// rendered in loc.
func buildTabData(payload *model.ReportPayload, cfg Config, loc *time.Location) TabData {
	s := payload.Summary
	date := func(t time.Time) string { return t.In(loc).Format("Jan 2, 2006") }

	summary := [][]any{
		{cfg.TitlePrefix, fmt.Sprintf("%s - %s", date(s.PeriodStart), date(s.PeriodEnd))},
		{},
		{"Name", payload.UserInfo.Name},
		{"Email", payload.UserInfo.Email},
		{},
		{"Currency", s.CurrencyCode},
		{"Total (90 days)", s.Total90Days},
		{"Monthly Average", s.MonthlyAverage},
		{"Weekly Average", s.WeeklyAverage},
		{"Consistency Score", s.ConsistencyScore},
	}

	platforms := make([]PlatformRow, 0, len(s.PlatformBreakdown))
	for _, p := range s.PlatformBreakdown {
		platforms = append(platforms, PlatformRow{
			Platform:   p.Name,
			Total:      decimal.NewFromFloat(p.Total).Round(2),
			Percentage: p.Percentage,
		})
	}

	verification := [][]any{
		{"Report ID", payload.ReportID},
		{"Verification Code", payload.VerificationCode},
		{"Content Hash", payload.VerificationHash},
		{"Valid Until", date(payload.ExpiresAt)},
		{},
		{"To confirm these figures, enter the verification code or content hash at:"},
	}
	if cfg.VerifyURL != "" {
		verification = append(verification, []any{cfg.VerifyURL})
	}
	verification = append(verification,
		[]any{"Figures shown by the verifier must match this report exactly."},
	)

	return TabData{
		Title:        fmt.Sprintf("%s %s", cfg.TitlePrefix, payload.VerificationCode),
		Summary:      summary,
		Platforms:    platforms,
		Verification: verification,
	}
}
