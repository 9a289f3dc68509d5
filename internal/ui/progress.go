package ui

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	accentYellow = lipgloss.Color("#FFD700")
	accentOrange = lipgloss.Color("#FF8C00")
	accentRed    = lipgloss.Color("#FF4500")
	accentDeep   = lipgloss.Color("#DC143C")
	mutedGold    = lipgloss.Color("#B8860B")
)

// Progress is sent after every submitted picture
type Progress struct {
	Frame       int
	TotalFrames int
	Packets     int
	Bytes       int64
	Dropped     int
	InFlight    int
	Elapsed     time.Duration
	Encoder     string
	Format      string
	Mode        string
	FrameRate   float64
	Preview     *image.RGBA
}

// Complete is sent once the session has been closed
type Complete struct {
	OutputFile string
	HeaderFile string
	Encoder    string
	Frames     int
	Packets    int
	Bytes      int64
	Dropped    int
	Deadlocks  int
	Allocated  int
	Reused     int
	FrameRate  float64
	RenderTime time.Duration
	EncodeTime time.Duration
	CloseTime  time.Duration
	TotalTime  time.Duration
}

// Failed ends the UI with an error
type Failed struct {
	Err error
}

type quitMsg struct{}

// Model is the bubbletea model for one encode run
type Model struct {
	progressBar progress.Model
	summaryBar  progress.Model

	state    Progress
	complete *Complete
	err      error

	startTime       time.Time
	width           int
	noPreview       bool
	cachedPreview   string
	cachedFrameNum  int
	completionDelay time.Duration
}

// NewModel creates the progress model. noPreview skips the terminal preview,
// which costs more than the encode at small sizes.
func NewModel(noPreview bool) *Model {
	return &Model{
		progressBar: progress.New(
			progress.WithGradient(string(accentDeep), string(accentYellow)),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		summaryBar: progress.New(
			progress.WithGradient(string(accentDeep), string(accentYellow)),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		startTime:       time.Now(),
		completionDelay: 2 * time.Second,
		noPreview:       noPreview,
		cachedFrameNum:  -1,
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(min(msg.Width-30, 50), 10)
		return m, nil

	case Progress:
		m.state = msg
		return m, nil

	case Complete:
		m.complete = &msg
		return m, tea.Tick(m.completionDelay, func(time.Time) tea.Msg {
			return quitMsg{}
		})

	case Failed:
		m.err = msg.Err
		return m, tea.Quit

	case quitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete != nil || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Foreground(accentRed).Render("Encoding failed: "+m.err.Error()) + "\n"
	}
	if m.complete != nil {
		return m.Summary()
	}
	return m.renderProgress()
}

// Summary renders the completion report, empty until Complete arrives
func (m *Model) Summary() string {
	if m.complete == nil {
		return ""
	}
	return m.renderComplete()
}

// Err is the error delivered by Failed, if any
func (m *Model) Err() error {
	return m.err
}

func (m *Model) renderProgress() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(accentYellow).Render("encodebridge"))
	s.WriteString("\n")
	if m.state.Encoder != "" {
		s.WriteString(lipgloss.NewStyle().Foreground(accentOrange).Render(
			fmt.Sprintf("%s  │  %s  │  %s", m.state.Encoder, m.state.Format, m.state.Mode)))
	}
	s.WriteString("\n\n")

	if m.state.TotalFrames == 0 {
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Starting encoder..."))
		s.WriteString("\n")
	} else {
		percent := float64(m.state.Frame) / float64(m.state.TotalFrames)
		s.WriteString("Progress: ")
		s.WriteString(m.progressBar.ViewAs(percent))
		s.WriteString(fmt.Sprintf("  %d%%\n\n", int(percent*100)))

		elapsed := m.state.Elapsed
		if elapsed == 0 {
			elapsed = time.Since(m.startTime)
		}
		var eta time.Duration
		if percent > 0 {
			eta = time.Duration(float64(elapsed)/percent) - elapsed
		}
		s.WriteString(lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf(
			"Time: %s  │  Speed: %.1fx realtime  │  ETA: %s",
			formatDuration(elapsed), speed(m.state.Frame, m.state.FrameRate, elapsed), formatDuration(eta))))
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Faint(true).Italic(true).Render(
			fmt.Sprintf("Frame %d of %d", m.state.Frame, m.state.TotalFrames)))
		s.WriteString("\n\n")
	}

	labelStyle := lipgloss.NewStyle().Foreground(mutedGold)
	valueStyle := lipgloss.NewStyle().Bold(true)
	s.WriteString(labelStyle.Render("Packets: "))
	s.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.state.Packets)))
	s.WriteString(labelStyle.Render("  Stream: "))
	s.WriteString(valueStyle.Render(formatBytes(m.state.Bytes)))
	s.WriteString(labelStyle.Render("  In flight: "))
	s.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.state.InFlight)))
	if m.state.Dropped > 0 {
		s.WriteString(labelStyle.Render("  Dropped: "))
		s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(accentRed).Render(fmt.Sprintf("%d", m.state.Dropped)))
	}

	if !m.noPreview {
		if m.state.Preview != nil && m.state.Frame != m.cachedFrameNum {
			m.cachedPreview = RenderPreview(DownsampleFrame(m.state.Preview, DefaultPreviewConfig()))
			m.cachedFrameNum = m.state.Frame
		}
		if m.cachedPreview != "" {
			s.WriteString("\n\n")
			s.WriteString(m.cachedPreview)
		}
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(accentRed).
		Padding(1, 2).
		Render(s.String())
}

func (m *Model) renderComplete() string {
	c := m.complete
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(accentYellow).Render("✓ Encoding Complete!"))
	s.WriteString("\n\n")

	dim := lipgloss.NewStyle().Faint(true)
	s.WriteString(fmt.Sprintf("%s%s\n", dim.Render("Output:   "), c.OutputFile))
	if c.HeaderFile != "" {
		s.WriteString(fmt.Sprintf("%s%s\n", dim.Render("Header:   "), c.HeaderFile))
	}
	s.WriteString(fmt.Sprintf("%s%s\n", dim.Render("Encoder:  "), c.Encoder))
	s.WriteString(fmt.Sprintf("%s%d frames, %d packets, %d dropped\n", dim.Render("Video:    "), c.Frames, c.Packets, c.Dropped))

	videoDuration := time.Duration(0)
	if c.FrameRate > 0 {
		videoDuration = time.Duration(float64(c.Frames) / c.FrameRate * float64(time.Second))
	}
	s.WriteString(fmt.Sprintf("%s%.1fs video in %.1fs\n", dim.Render("Duration: "), videoDuration.Seconds(), c.TotalTime.Seconds()))
	s.WriteString(fmt.Sprintf("%s%s", dim.Render("Size:     "), formatBytes(c.Bytes)))
	if videoDuration > 0 {
		s.WriteString(fmt.Sprintf(" (%.0f kbit/s)", float64(c.Bytes)*8/videoDuration.Seconds()/1000))
	}
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("%s%d allocated, %d reused\n", dim.Render("Pool:     "), c.Allocated, c.Reused))
	if c.Deadlocks > 0 {
		s.WriteString(lipgloss.NewStyle().Foreground(accentRed).Render(fmt.Sprintf("Codec deadlocks: %d", c.Deadlocks)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(accentOrange).Render("Performance"))
	s.WriteString("\n")
	totalMs := max(c.TotalTime.Milliseconds(), 1)
	for _, row := range []struct {
		label string
		d     time.Duration
	}{
		{"Rendering:", c.RenderTime},
		{"Encoding:", c.EncodeTime},
		{"Flush & close:", c.CloseTime},
	} {
		ratio := float64(row.d.Milliseconds()) / float64(totalMs)
		s.WriteString(fmt.Sprintf("  %s%s (~%2d%%)  %s\n",
			dim.Render(fmt.Sprintf("%-18s", row.label)),
			fmt.Sprintf("~%-6s", formatDuration(row.d)),
			int(ratio*100),
			m.summaryBar.ViewAs(min(ratio, 1))))
	}
	s.WriteString(fmt.Sprintf("  %s%s\n", dim.Render(fmt.Sprintf("%-18s", "Total:")), formatDuration(c.TotalTime)))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(accentOrange).
		Padding(1, 2).
		Render(s.String())
}

func speed(frames int, fps float64, elapsed time.Duration) float64 {
	if fps <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(frames) / fps / elapsed.Seconds()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 2; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}
