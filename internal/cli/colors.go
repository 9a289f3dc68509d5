package cli

import "github.com/charmbracelet/lipgloss"

// Palette shared by the CLI and the progress UI
var (
	Yellow  = lipgloss.Color("#FFD700")
	Orange  = lipgloss.Color("#FF8C00")
	Red     = lipgloss.Color("#FF4500")
	Crimson = lipgloss.Color("#DC143C")
	Gold    = lipgloss.Color("#B8860B")
)
