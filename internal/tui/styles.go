package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	colorBrand    = lipgloss.Color("#03D47C") // Money green
	colorAccent   = lipgloss.Color("#00CCFF")
	colorBrandDim = lipgloss.Color("#0B8A57")

	colorMine   = lipgloss.Color("#03D47C")
	colorOthers = lipgloss.Color("#00CCFF")
	colorSystem = lipgloss.Color("#AAAACC")

	colorWarning = lipgloss.Color("#FF9900")
	colorError   = lipgloss.Color("#FF3366")
	colorSuccess = lipgloss.Color("#03D47C")
	colorMuted   = lipgloss.Color("#667788")

	colorBg      = lipgloss.Color("#07110D")
	colorBgPanel = lipgloss.Color("#0E1A15")
	colorBorder  = lipgloss.Color("#1F3A2E")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBrand)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrandDim)

	sidebarItemStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Padding(0, 1)

	sidebarItemSelectedStyle = lipgloss.NewStyle().
					Foreground(colorBg).
					Background(colorBrand).
					Bold(true).
					Padding(0, 1)

	sidebarItemUnreadStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true).
				Padding(0, 1)

	reportStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrandDim)

	actorMineStyle = lipgloss.NewStyle().
			Foreground(colorMine).
			Bold(true)

	actorOthersStyle = lipgloss.NewStyle().
				Foreground(colorOthers).
				Bold(true)

	systemMessageStyle = lipgloss.NewStyle().
				Foreground(colorSystem).
				Italic(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	// composerStyle frames the auto-growing input. Its vertical padding is
	// not content when measuring rows.
	composerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrand).
			Padding(0, 1)

	composerBlurredStyle = composerStyle.
				BorderForeground(colorBorder)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(colorBrand).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorBrand).
			Background(colorBgPanel).
			Padding(1, 2).
			Margin(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrand).
			Background(colorBgPanel).
			Padding(1, 2)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorBrand).
			Bold(true)

	dimmedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)
)

// renderSectionTitle renders a title that spans the full width.
func renderSectionTitle(title string, width int) string {
	return renderSectionTitleWithSuffix(title, "", width)
}

// renderSectionTitleWithSuffix renders a section title followed by suffix,
// such as a scroll position.
func renderSectionTitleWithSuffix(title, suffix string, width int) string {
	// Format: ◆── TITLE ──◆ [suffix]
	titleWithSpaces := " " + title + " "
	titleDisplayWidth := lipgloss.Width(titleWithSpaces)
	suffixDisplayWidth := lipgloss.Width(suffix)
	availableWidth := width - titleDisplayWidth - 4 - suffixDisplayWidth
	if availableWidth < 2 {
		availableWidth = 2
	}
	leftDashes := availableWidth / 2
	rightDashes := availableWidth - leftDashes

	line := "◆─" + strings.Repeat("─", leftDashes) + titleWithSpaces + strings.Repeat("─", rightDashes) + "─◆"
	if suffix != "" {
		line += suffix
	}
	return panelTitleStyle.Width(width).Render(line)
}

// truncateToWidth truncates a string to fit within maxWidth display columns
// without cutting multi-byte characters.
func truncateToWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	currentWidth := 0
	for i, r := range s {
		charWidth := lipgloss.Width(string(r))
		if currentWidth+charWidth > maxWidth {
			return s[:i]
		}
		currentWidth += charWidth
	}
	return s
}

func truncateWithEllipsis(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return truncateToWidth(s, maxWidth)
	}
	return truncateToWidth(s, maxWidth-3) + "..."
}

// formatActionTimestamp shows the time for today's messages and the date
// otherwise, in local time.
func formatActionTimestamp(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	local := ts.Local()
	n := now.Local()
	if local.Year() == n.Year() && local.YearDay() == n.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

// formatAmount formats cents as a decimal amount with the currency code.
func formatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, currency, cents/100, cents%100)
}
