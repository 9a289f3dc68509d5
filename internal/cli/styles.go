package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/encodebridge/internal/metrics"
)

const (
	Name        = "encodebridge"
	Description = "Feed raw or GPU-resident pictures through FFmpeg encoders and write the elementary stream."
)

var (
	successColor = lipgloss.Color("#00AA00")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Crimson).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Orange).
			MarginTop(1).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Red)

	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Yellow)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Crimson).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

func PrintBanner() {
	fmt.Println(TitleStyle.Render(Name))
	fmt.Println(SubtitleStyle.Render(Description))
	fmt.Println()
}

func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render(Name))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError writes to stderr
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

func PrintWarning(message string) {
	fmt.Printf("%s %s\n", HighlightStyle.Render("Warning:"), message)
}

func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

func PrintSection(title string) {
	fmt.Println(HeaderStyle.Render(title))
}

func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatBytes uses binary units
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// MetricsSummary renders the session counters as key/value lines
func MetricsSummary(m *metrics.Metrics) string {
	var b strings.Builder
	rows := []struct {
		key  string
		name string
	}{
		{"Frames submitted", metrics.FramesSubmitted},
		{"Frames dropped", metrics.FramesDropped},
		{"Packets", metrics.Packets},
		{"Codec busy rounds", metrics.CodecBusyRounds},
		{"Codec deadlocks", metrics.Deadlocks},
		{"Pool allocations", metrics.PoolAllocations},
		{"Pool reuses", metrics.PoolReuses},
		{"Pool discards", metrics.PoolDiscards},
		{"Lock timeouts", metrics.LockTimeouts},
	}
	for _, r := range rows {
		b.WriteString(KeyStyle.Render(fmt.Sprintf("%-18s", r.key+":")))
		b.WriteString(ValueStyle.Render(fmt.Sprintf("%.0f", m.Total(r.name))))
		b.WriteString("\n")
	}
	b.WriteString(KeyStyle.Render(fmt.Sprintf("%-18s", "Stream size:")))
	b.WriteString(ValueStyle.Render(FormatBytes(int64(m.Total(metrics.PacketBytes)))))
	return b.String()
}

// PrintBox writes content framed in BoxStyle
func PrintBox(w io.Writer, content string) {
	fmt.Fprintln(w, BoxStyle.Render(content))
}
