package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Session defaults
const (
	Width           = 1280
	Height          = 720
	FPSNum          = 30
	FPSDen          = 1
	KeyframeSeconds = 2.0
	// GPUAuto leaves device selection to the codec
	GPUAuto = -1
)

// KeyframeMode selects how the keyframe interval is expressed
type KeyframeMode string

const (
	KeyframeSecondsMode KeyframeMode = "seconds"
	KeyframeFramesMode  KeyframeMode = "frames"
)

var (
	ErrInvalidSize     = errors.New("invalid output size")
	ErrInvalidRate     = errors.New("invalid frame rate")
	ErrInvalidKeyframe = errors.New("invalid keyframe interval")
	ErrInvalidThreads  = errors.New("invalid thread count")
)

// Config is everything a session needs besides the codec itself
type Config struct {
	// Source describes the frames the producer delivers
	Source pixfmt.VideoInfo

	// Width and Height are the encoded size, zero means the source size
	Width  int
	Height int
	FPSNum int
	FPSDen int

	// Format overrides automatic format selection when not pixfmt.None
	Format pixfmt.PixelFormat
	// Range and Space override the source colour description when set
	Range pixfmt.ColorRange
	Space pixfmt.ColorSpace

	KeyframeMode    KeyframeMode
	KeyframeSeconds float64
	KeyframeFrames  int

	// Threads is the codec thread count, 0 means one per CPU
	Threads    int
	GPU        int
	Compliance int

	// CustomOptions is a `-key=value` string applied to the codec
	CustomOptions string

	// Hardware requests zero-copy encoding of GPU surfaces
	Hardware bool
}

// Default returns a software session for a 720p30 source
func Default() Config {
	return Config{
		Source: pixfmt.VideoInfo{
			Width:  Width,
			Height: Height,
			Format: pixfmt.NV12,
			Range:  pixfmt.RangeLimited,
			Space:  pixfmt.SpaceBT709,
		},
		FPSNum:          FPSNum,
		FPSDen:          FPSDen,
		KeyframeMode:    KeyframeSecondsMode,
		KeyframeSeconds: KeyframeSeconds,
		GPU:             GPUAuto,
	}
}

// Output returns the encoded picture description before format negotiation
func (c Config) Output() pixfmt.VideoInfo {
	out := c.Source
	if c.Width > 0 && c.Height > 0 {
		out.Width, out.Height = c.Width, c.Height
	}
	if c.Range != pixfmt.RangeUnspecified {
		out.Range = c.Range
	}
	if c.Space != pixfmt.SpaceUnspecified {
		out.Space = c.Space
	}
	return out
}

// Scaled reports whether the output size differs from the source
func (c Config) Scaled() bool {
	return !c.Output().SameSize(c.Source)
}

// Validate checks field ranges. It does not look at the codec.
func (c Config) Validate() error {
	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		return fmt.Errorf("%w: source %dx%d", ErrInvalidSize, c.Source.Width, c.Source.Height)
	}
	if c.Width < 0 || c.Height < 0 || (c.Width == 0) != (c.Height == 0) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, c.Width, c.Height)
	}
	if c.FPSNum <= 0 || c.FPSDen <= 0 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidRate, c.FPSNum, c.FPSDen)
	}
	switch c.KeyframeMode {
	case KeyframeSecondsMode, "":
		if c.KeyframeSeconds < 0 || math.IsNaN(c.KeyframeSeconds) {
			return fmt.Errorf("%w: %v seconds", ErrInvalidKeyframe, c.KeyframeSeconds)
		}
	case KeyframeFramesMode:
		if c.KeyframeFrames < 0 {
			return fmt.Errorf("%w: %d frames", ErrInvalidKeyframe, c.KeyframeFrames)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidKeyframe, c.KeyframeMode)
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreads, c.Threads)
	}
	return nil
}

// GOPSize returns the keyframe interval in frames, 0 leaves the codec default
func (c Config) GOPSize() int {
	if c.KeyframeMode == KeyframeFramesMode {
		return c.KeyframeFrames
	}
	fps := float64(c.FPSNum) / float64(c.FPSDen)
	return int(c.KeyframeSeconds * fps)
}

// ResolveThreads returns the configured thread count, or one per CPU
func (c Config) ResolveThreads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.NumCPU()
}

// ParseKeyframeMode accepts "seconds" and "frames"
func ParseKeyframeMode(s string) (KeyframeMode, error) {
	switch m := KeyframeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case KeyframeSecondsMode, KeyframeFramesMode:
		return m, nil
	case "":
		return KeyframeSecondsMode, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidKeyframe, s)
}

// ParseHexColor parses "RRGGBB" with an optional leading '#'
func ParseHexColor(s string) (r, g, b uint8, err error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: want 6 digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
