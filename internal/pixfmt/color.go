package pixfmt

import (
	"fmt"
	"strings"
)

// ColorRange selects limited (MPEG) or full (JPEG) quantisation
type ColorRange int

const (
	RangeUnspecified ColorRange = iota
	RangeLimited
	RangeFull
)

func (r ColorRange) String() string {
	switch r {
	case RangeLimited:
		return "partial"
	case RangeFull:
		return "full"
	default:
		return "unspecified"
	}
}

// ColorSpace is the producer-side colour description. It expands into a
// matrix, primaries and transfer characteristic.
type ColorSpace int

const (
	SpaceUnspecified ColorSpace = iota
	SpaceBT601
	SpaceBT709
	SpaceSRGB
)

func (s ColorSpace) String() string {
	switch s {
	case SpaceBT601:
		return "bt601"
	case SpaceBT709:
		return "bt709"
	case SpaceSRGB:
		return "srgb"
	default:
		return "unspecified"
	}
}

// Matrix, Primaries and Transfer values follow the ISO/IEC 23091-4 code points
// so backends can pass them through unchanged.
type (
	Matrix    int
	Primaries int
	Transfer  int
)

const (
	MatrixRGB       Matrix = 0
	MatrixBT709     Matrix = 1
	MatrixBT470BG   Matrix = 5
	MatrixSMPTE170M Matrix = 6

	PrimariesBT709   Primaries = 1
	PrimariesBT470BG Primaries = 5

	TransferBT709        Transfer = 1
	TransferSMPTE170M    Transfer = 6
	TransferIEC61966_2_1 Transfer = 13
)

// ChromaLocationCenter is the only chroma siting produced
const ChromaLocationCenter = 2

// Matrix returns the YUV matrix for s. Unspecified behaves as BT.601.
func (s ColorSpace) Matrix() Matrix {
	switch s {
	case SpaceBT709:
		return MatrixBT709
	case SpaceSRGB:
		return MatrixRGB
	default:
		return MatrixBT470BG
	}
}

func (s ColorSpace) Primaries() Primaries {
	switch s {
	case SpaceBT709, SpaceSRGB:
		return PrimariesBT709
	default:
		return PrimariesBT470BG
	}
}

func (s ColorSpace) Transfer() Transfer {
	switch s {
	case SpaceBT709:
		return TransferBT709
	case SpaceSRGB:
		return TransferIEC61966_2_1
	default:
		return TransferSMPTE170M
	}
}

// ParseRange accepts "partial"/"limited"/"mpeg" and "full"/"jpeg"
func ParseRange(name string) (ColorRange, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "partial", "limited", "mpeg", "tv":
		return RangeLimited, nil
	case "full", "jpeg", "pc":
		return RangeFull, nil
	case "":
		return RangeUnspecified, nil
	}
	return RangeUnspecified, fmt.Errorf("unknown color range %q", name)
}

// ParseSpace accepts "601", "709" and "srgb" with or without a "bt" prefix
func ParseSpace(name string) (ColorSpace, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "bt") {
	case "601":
		return SpaceBT601, nil
	case "709":
		return SpaceBT709, nil
	case "srgb":
		return SpaceSRGB, nil
	case "":
		return SpaceUnspecified, nil
	}
	return SpaceUnspecified, fmt.Errorf("unknown color space %q", name)
}

// VideoInfo is the complete description of one side of a conversion
type VideoInfo struct {
	Width  int
	Height int
	Format PixelFormat
	Range  ColorRange
	Space  ColorSpace
}

// Missing lists the unset parameters of v, empty when v is complete
func (v VideoInfo) Missing() []string {
	var missing []string
	if v.Width <= 0 || v.Height <= 0 {
		missing = append(missing, "size")
	}
	if v.Format == None {
		missing = append(missing, "format")
	}
	if v.Range == RangeUnspecified {
		missing = append(missing, "range")
	}
	if v.Space == SpaceUnspecified {
		missing = append(missing, "color space")
	}
	return missing
}

// SameSize reports whether v and o share geometry
func (v VideoInfo) SameSize(o VideoInfo) bool {
	return v.Width == o.Width && v.Height == o.Height
}

func (v VideoInfo) String() string {
	return fmt.Sprintf("%dx%d %s %s %s", v.Width, v.Height, v.Format, v.Space, v.Range)
}
