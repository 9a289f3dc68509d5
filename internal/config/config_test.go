package config

import (
	"errors"
	"runtime"
	"testing"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// TestValidate checks that each out-of-range field is reported with the
// matching sentinel, and that the default configuration passes.
func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"default", func(c *Config) {}, nil},
		{"scaled output", func(c *Config) { c.Width, c.Height = 640, 360 }, nil},
		{"missing source size", func(c *Config) { c.Source.Width = 0 }, ErrInvalidSize},
		{"half output size", func(c *Config) { c.Width = 640 }, ErrInvalidSize},
		{"negative output size", func(c *Config) { c.Width, c.Height = -1, -1 }, ErrInvalidSize},
		{"zero fps", func(c *Config) { c.FPSNum = 0 }, ErrInvalidRate},
		{"zero fps denominator", func(c *Config) { c.FPSDen = 0 }, ErrInvalidRate},
		{"negative seconds", func(c *Config) { c.KeyframeSeconds = -1 }, ErrInvalidKeyframe},
		{"negative frames", func(c *Config) {
			c.KeyframeMode = KeyframeFramesMode
			c.KeyframeFrames = -5
		}, ErrInvalidKeyframe},
		{"unknown keyframe mode", func(c *Config) { c.KeyframeMode = "bogus" }, ErrInvalidKeyframe},
		{"negative threads", func(c *Config) { c.Threads = -2 }, ErrInvalidThreads},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() returned unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// TestGOPSize verifies both keyframe interval modes, including fractional
// frame rates.
func TestGOPSize(t *testing.T) {
	testCases := []struct {
		name    string
		mode    KeyframeMode
		seconds float64
		frames  int
		num     int
		den     int
		want    int
	}{
		{"two seconds at 30", KeyframeSecondsMode, 2, 0, 30, 1, 60},
		{"half second at 60", KeyframeSecondsMode, 0.5, 0, 60, 1, 30},
		{"two seconds at 29.97", KeyframeSecondsMode, 2, 0, 30000, 1001, 59},
		{"zero seconds", KeyframeSecondsMode, 0, 0, 30, 1, 0},
		{"frames ignore rate", KeyframeFramesMode, 10, 250, 30, 1, 250},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			c.KeyframeMode = tc.mode
			c.KeyframeSeconds = tc.seconds
			c.KeyframeFrames = tc.frames
			c.FPSNum, c.FPSDen = tc.num, tc.den
			if got := c.GOPSize(); got != tc.want {
				t.Errorf("GOPSize() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOutput(t *testing.T) {
	c := Default()
	if c.Scaled() {
		t.Error("default config reports scaling")
	}
	if got := c.Output(); got != c.Source {
		t.Errorf("Output() = %v, want source %v", got, c.Source)
	}

	c.Width, c.Height = 640, 360
	c.Range = pixfmt.RangeFull
	out := c.Output()
	if out.Width != 640 || out.Height != 360 || out.Range != pixfmt.RangeFull {
		t.Errorf("Output() = %v", out)
	}
	if out.Space != c.Source.Space || out.Format != c.Source.Format {
		t.Errorf("Output() changed fields that were not overridden: %v", out)
	}
	if !c.Scaled() {
		t.Error("scaled config not reported")
	}
}

func TestResolveThreads(t *testing.T) {
	c := Default()
	if got := c.ResolveThreads(); got != runtime.NumCPU() {
		t.Errorf("automatic threads = %d, want %d", got, runtime.NumCPU())
	}
	c.Threads = 3
	if got := c.ResolveThreads(); got != 3 {
		t.Errorf("explicit threads = %d, want 3", got)
	}
}

func TestParseKeyframeMode(t *testing.T) {
	for in, want := range map[string]KeyframeMode{
		"":         KeyframeSecondsMode,
		"seconds":  KeyframeSecondsMode,
		"FRAMES":   KeyframeFramesMode,
		" frames ": KeyframeFramesMode,
	} {
		got, err := ParseKeyframeMode(in)
		if err != nil || got != want {
			t.Errorf("ParseKeyframeMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKeyframeMode("gop"); !errors.Is(err, ErrInvalidKeyframe) {
		t.Errorf("ParseKeyframeMode(gop) error = %v", err)
	}
}

// TestParseHexColor_ValidInputs verifies case handling, the optional hash
// prefix and byte ordering.
func TestParseHexColor_ValidInputs(t *testing.T) {
	testCases := []struct {
		name                string
		input               string
		wantR, wantG, wantB uint8
	}{
		{"uppercase red", "FF0000", 255, 0, 0},
		{"lowercase red", "ff0000", 255, 0, 0},
		{"hash prefix", "#FF0000", 255, 0, 0},
		{"mixed case magenta", "Ff00fF", 255, 0, 255},
		{"green", "00FF00", 0, 255, 0},
		{"blue", "0000FF", 0, 0, 255},
		{"distinct bytes", "010203", 1, 2, 3},
		{"brand yellow", "#F8B31D", 248, 179, 29},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, g, b, err := ParseHexColor(tc.input)
			if err != nil {
				t.Fatalf("ParseHexColor(%q) returned error: %v", tc.input, err)
			}
			if r != tc.wantR || g != tc.wantG || b != tc.wantB {
				t.Errorf("ParseHexColor(%q) = (%d, %d, %d), want (%d, %d, %d)",
					tc.input, r, g, b, tc.wantR, tc.wantG, tc.wantB)
			}
		})
	}
}

// TestParseHexColor_InvalidInputs verifies that malformed input is rejected.
func TestParseHexColor_InvalidInputs(t *testing.T) {
	inputs := []string{
		"FFF", "#FFF", "FFFFFFF", "#FFFFFFF", "GGGGGG", "FF00GG", "",
		"#", "FF 000", "FF#000", "##FF0000", "FF0000\n", "+FFFFF",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			if _, _, _, err := ParseHexColor(in); err == nil {
				t.Errorf("ParseHexColor(%q) expected error, got nil", in)
			}
		})
	}
}
