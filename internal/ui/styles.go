package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. Single lime accent over grays.
const (
	ColorLime     = "154" // primary accent
	ColorLimeDim  = "106" // secondary accent
	ColorWhite    = "255" // headers
	ColorGray     = "245" // labels, secondary text
	ColorDarkGray = "238" // separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds the render styles for CLI output.
type Styles struct {
	Header  lipgloss.Style
	Path    lipgloss.Style
	Heading lipgloss.Style
	Score   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Path:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Heading: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLimeDim)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Path:    lipgloss.NewStyle(),
		Heading: lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
