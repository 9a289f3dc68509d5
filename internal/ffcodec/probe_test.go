package ffcodec

import (
	"testing"
)

func TestProbe(t *testing.T) {
	found := Probe()

	t.Logf("Probed %d hardware encoders", len(found))
	for _, c := range found {
		status := "not available"
		if c.Available {
			status = "AVAILABLE"
		}
		t.Logf("  %s (%s): %s", c.Description, c.Name, status)
	}
}

func TestSelect(t *testing.T) {
	found := []Candidate{
		{Name: "h264_nvenc", Accel: AccelNVENC},
		{Name: "h264_qsv", Accel: AccelQSV, Available: true},
		{Name: "h264_vaapi", Accel: AccelVAAPI, Available: true},
	}

	tests := []struct {
		accel Accel
		want  string
	}{
		{AccelAuto, "h264_qsv"},
		{AccelVAAPI, "h264_vaapi"},
		{AccelNVENC, ""},
		{AccelVideoToolbox, ""},
		{AccelNone, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.accel), func(t *testing.T) {
			got := Select(tt.accel, found)
			name := ""
			if got != nil {
				name = got.Name
			}
			if name != tt.want {
				t.Errorf("Select(%s) = %q, want %q", tt.accel, name, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	status := Status(Probe())
	t.Logf("\n%s", status)
}
