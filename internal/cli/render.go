package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/verification"
	"github.com/charmbracelet/lipgloss"
)

const dateFormat = "Jan 2, 2006"

// RenderSummary renders an income summary as a titled box.
func RenderSummary(s *model.IncomeSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", SubtleStyle.Render(fmt.Sprintf("%s - %s",
		s.PeriodStart.Format(dateFormat), s.PeriodEnd.Format(dateFormat))))

	rows := [][2]string{
		{"Total (90 days)", formatMoney(s.Total90Days, s.CurrencyCode)},
		{"Monthly average", formatMoney(s.MonthlyAverage, s.CurrencyCode)},
		{"Weekly average", formatMoney(s.WeeklyAverage, s.CurrencyCode)},
		{"Consistency", fmt.Sprintf("%d/100", s.ConsistencyScore)},
	}
	b.WriteString(renderPairs(rows))

	if len(s.PlatformBreakdown) > 0 {
		b.WriteString("\n\n")
		b.WriteString(RenderTable([]string{"Platform", "Total", "Share"}, breakdownRows(s)))
	} else {
		b.WriteString("\n\n" + FormatWarning("No gig income found in this period"))
	}

	return RenderBox(ChartIcon+" Gig Income", b.String())
}

func breakdownRows(s *model.IncomeSummary) [][]string {
	rows := make([][]string, 0, len(s.PlatformBreakdown))
	for _, p := range s.PlatformBreakdown {
		rows = append(rows, []string{p.Name, formatMoney(p.Total, s.CurrencyCode), fmt.Sprintf("%d%%", p.Percentage)})
	}
	return rows
}

// RenderReport renders a freshly issued report's verification details.
func RenderReport(p *model.ReportPayload) string {
	rows := [][2]string{
		{"Report ID", p.ReportID},
		{"Verification code", BoldStyle.Render(p.VerificationCode)},
		{"Content hash", p.VerificationHash},
		{"Valid until", p.ExpiresAt.Format(dateFormat)},
		{"Prepared for", fmt.Sprintf("%s <%s>", p.UserInfo.Name, p.UserInfo.Email)},
	}
	return RenderBox(KeyIcon+" Report Issued", renderPairs(rows)) + "\n" + RenderSummary(&p.Summary)
}

// RenderVerification renders a lookup result the way a lender sees it.
func RenderVerification(r *verification.Result) string {
	if !r.Found {
		return FormatError(r.Message)
	}

	status := SuccessStyle.Render(SuccessIcon + " " + string(r.Status))
	if r.Status != model.VerificationValid {
		status = WarningStyle.Render(WarningIcon + " " + string(r.Status))
	}

	rows := [][2]string{
		{"Status", status},
		{"Code", r.VerificationCode},
		{"Times verified", fmt.Sprintf("%d", r.VerificationCount)},
	}
	if r.LastVerifiedAt != nil {
		rows = append(rows, [2]string{"Last verified", r.LastVerifiedAt.Format(time.RFC1123)})
	}

	var b strings.Builder
	b.WriteString(renderPairs(rows))

	if d := r.IncomeData; d != nil {
		summary := &model.IncomeSummary{
			PeriodStart:       d.PeriodStart,
			PeriodEnd:         d.PeriodEnd,
			CurrencyCode:      d.CurrencyCode,
			PlatformBreakdown: d.PlatformBreakdown,
			Total90Days:       d.Total90Days,
			MonthlyAverage:    d.MonthlyAverage,
			WeeklyAverage:     d.WeeklyAverage,
			ConsistencyScore:  d.ConsistencyScore,
		}
		b.WriteString("\n\n" + SubtleStyle.Render(r.Message))
		return RenderBox(CheckIcon+" Verification", b.String()) + "\n" + RenderSummary(summary)
	}

	return RenderBox(CheckIcon+" Verification", b.String())
}

// RenderUsers renders the account list.
func RenderUsers(users []model.User) string {
	if len(users) == 0 {
		return FormatInfo("No users yet")
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		linked := "no"
		if u.PlaidAccessToken != "" {
			linked = "yes"
		}
		rows = append(rows, []string{u.ID, u.Name, u.Email, fmt.Sprintf("%d", u.Credits), linked})
	}
	return RenderTable([]string{"ID", "Name", "Email", "Credits", "Bank linked"}, rows)
}

// RenderTable lays out rows under a header with padded columns.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i] + TableCellStyle.GetPaddingRight()).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{renderRow(headers, TableHeaderStyle.Inherit(TableCellStyle))}
	for _, row := range rows {
		lines = append(lines, renderRow(row, TableCellStyle))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderPairs(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r[0]); w > width {
			width = w
		}
	}

	lines := make([]string, len(rows))
	for i, r := range rows {
		label := SubtleStyle.Width(width + 2).Render(r[0])
		lines[i] = lipgloss.JoinHorizontal(lipgloss.Top, label, r[1])
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatMoney(amount float64, currency string) string {
	if currency == "" || currency == "USD" {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}
