package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/encodebridge/internal/metrics"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{100, "100 B"},
		{2048, "2.0 KB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{time.Second, "1.0s"},
		{90 * time.Second, "90.0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMetricsSummary(t *testing.T) {
	m := metrics.New()
	m.FrameSubmitted()
	m.FrameSubmitted()
	m.PacketEmitted(1500)

	out := MetricsSummary(m)
	t.Logf("\n%s", out)
	for _, want := range []string{"Frames submitted:", "2", "1.5 KB"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}
