// Package cli renders GigProof's terminal output with lipgloss.
package cli

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("#2EC4B6")
	good    = lipgloss.Color("#4ECDC4")
	caution = lipgloss.Color("#FFE66D")
	bad     = lipgloss.Color("#FF6B6B")
	note    = lipgloss.Color("#95E1D3")
	muted   = lipgloss.Color("#666666")
	border  = lipgloss.Color("#333333")
)

// Text styles shared by the renderers.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	SuccessStyle = lipgloss.NewStyle().Foreground(good)
	WarningStyle = lipgloss.NewStyle().Foreground(caution)
	ErrorStyle   = lipgloss.NewStyle().Foreground(bad)
	InfoStyle    = lipgloss.NewStyle().Foreground(note)
	SubtleStyle  = lipgloss.NewStyle().Foreground(muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
)

// Layout styles.
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(1, 2)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(border)

	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	ProofIcon   = "🧾"
	BankIcon    = "🏦"
	ChartIcon   = "📊"
	KeyIcon     = "🔑"
	CheckIcon   = "✅"
)

func line(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string { return line(SuccessStyle, SuccessIcon, message) }

// FormatError prefixes message with a cross.
func FormatError(message string) string { return line(ErrorStyle, ErrorIcon, message) }

// FormatWarning prefixes message with a warning sign.
func FormatWarning(message string) string { return line(WarningStyle, WarningIcon, message) }

// FormatInfo prefixes message with an info sign.
func FormatInfo(message string) string { return line(InfoStyle, InfoIcon, message) }

// RenderBox draws content under a title inside a rounded border.
func RenderBox(title, content string) string {
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}
