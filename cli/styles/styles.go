// Package styles provides consistent styling for the cartfold CLI.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color palette
var (
	Primary      = lipgloss.Color("#F97316") // Orange
	PrimaryLight = lipgloss.Color("#FDBA74") // Light orange
	Secondary    = lipgloss.Color("#06B6D4") // Cyan

	Success      = lipgloss.Color("#10B981") // Emerald green
	Warning      = lipgloss.Color("#F59E0B") // Amber
	WarningLight = lipgloss.Color("#FBBF24") // Light amber
	Error        = lipgloss.Color("#EF4444") // Red
	Info         = lipgloss.Color("#3B82F6") // Blue

	Text      = lipgloss.Color("#F9FAFB") // Almost white
	TextMuted = lipgloss.Color("#9CA3AF") // Gray
	TextDim   = lipgloss.Color("#6B7280") // Darker gray
	Surface   = lipgloss.Color("#1F2937") // Slightly lighter
	Border    = lipgloss.Color("#374151") // Border gray
)

// Icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconDot     = "•"
	IconPending = "◌"
	IconStream  = "⇶"
	IconCart    = "🛒"
	IconPackage = "📦"
	IconFolder  = "📁"
	IconHealth  = "❤️"
	IconChart   = "📊"
	IconTomb    = "⌫"
)

// Text styles
var (
	Bold      lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Code      lipgloss.Style
)

// Status styles
var (
	SuccessStyle lipgloss.Style
	SuccessBold  lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	ErrorBold    lipgloss.Style
	InfoStyle    lipgloss.Style
)

// Box styles for containers
var (
	Box          lipgloss.Style
	BoxHighlight lipgloss.Style
	BoxSuccess   lipgloss.Style
	BoxError     lipgloss.Style
	InfoBox      lipgloss.Style
)

// Layout helpers
var (
	Indent         lipgloss.Style
	ListItem       lipgloss.Style
	ListItemBullet lipgloss.Style
)

func init() {
	build()
}

// newRoundedBox creates a box style with rounded border and specified border color.
func newRoundedBox(borderColor lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)
}

// build derives every style from the current palette.
func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	Subtitle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryLight)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Dim = lipgloss.NewStyle().Foreground(TextDim)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(WarningLight).Background(Surface).Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	SuccessBold = SuccessStyle.Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	ErrorBold = ErrorStyle.Bold(true)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)

	Box = newRoundedBox(Border)
	BoxHighlight = newRoundedBox(Primary)
	BoxSuccess = newRoundedBox(Success)
	BoxError = newRoundedBox(Error)
	InfoBox = newRoundedBox(Info).MarginTop(1)

	Indent = lipgloss.NewStyle().PaddingLeft(2)
	ListItem = lipgloss.NewStyle().PaddingLeft(1).Foreground(Text)
	ListItemBullet = lipgloss.NewStyle().Foreground(Primary).PaddingLeft(2)
}

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatStep formats a step in a process
func FormatStep(step, total int, msg string) string {
	stepStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(8)
	return stepStyle.Render(fmt.Sprintf("[%d/%d]", step, total)) + " " + msg
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(16)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// DisableColors switches rendering to plain ASCII and rebuilds every style
// without colors.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)

	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &WarningLight, &Error, &Info,
		&Text, &TextMuted, &TextDim, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
	build()
}
