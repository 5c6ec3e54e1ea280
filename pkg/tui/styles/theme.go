package styles

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette and base styles for the TUI.
type Theme struct {
	// Colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	TextDim   lipgloss.Color

	// Base styles
	Border     lipgloss.Style
	Title      lipgloss.Style
	TitleMuted lipgloss.Style
	Selected   lipgloss.Style
	Keybind    lipgloss.Style
	KeybindKey lipgloss.Style

	StepRunning lipgloss.Style
	StepSuccess lipgloss.Style
	StepFailed  lipgloss.Style
	StepPending lipgloss.Style
	StepSkipped lipgloss.Style

	HealthOK       lipgloss.Style
	HealthBad      lipgloss.Style
	HealthProgress lipgloss.Style

	PauseBanner lipgloss.Style
}

// DefaultTheme returns the default opsdash TUI theme.
func DefaultTheme() Theme {
	primary := lipgloss.Color("#7C3AED")   // Purple
	secondary := lipgloss.Color("#06B6D4") // Cyan
	success := lipgloss.Color("#22C55E")   // Green
	warning := lipgloss.Color("#EAB308")   // Yellow
	errorC := lipgloss.Color("#EF4444")    // Red
	muted := lipgloss.Color("#6B7280")     // Gray
	text := lipgloss.Color("#F9FAFB")      // White
	textDim := lipgloss.Color("#9CA3AF")   // Light gray

	return Theme{
		Primary:   primary,
		Secondary: secondary,
		Success:   success,
		Warning:   warning,
		Error:     errorC,
		Muted:     muted,
		Text:      text,
		TextDim:   textDim,

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(text),

		TitleMuted: lipgloss.NewStyle().
			Foreground(textDim),

		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(text).
			Background(lipgloss.Color("#374151")), // Dark gray background

		Keybind: lipgloss.NewStyle().
			Foreground(textDim),

		KeybindKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(secondary),

		StepRunning: lipgloss.NewStyle().
			Foreground(secondary),

		StepSuccess: lipgloss.NewStyle().
			Foreground(success),

		StepFailed: lipgloss.NewStyle().
			Foreground(errorC),

		StepPending: lipgloss.NewStyle().
			Foreground(muted),

		StepSkipped: lipgloss.NewStyle().
			Foreground(warning),

		HealthOK: lipgloss.NewStyle().
			Foreground(success),

		HealthBad: lipgloss.NewStyle().
			Foreground(errorC),

		HealthProgress: lipgloss.NewStyle().
			Foreground(secondary),

		PauseBanner: lipgloss.NewStyle().
			Bold(true).
			Foreground(text).
			Background(lipgloss.Color("#7F1D1D")). // Dark red background
			Padding(0, 1),
	}
}

// DefaultStyles returns the default theme for convenience.
var DefaultStyles = DefaultTheme()
