package bitstream

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
)

// Codec selects how a first packet is scanned for headers
type Codec int

const (
	// OutOfBand codecs carry configuration in codec side data
	OutOfBand Codec = iota
	H264
	HEVC
)

func (c Codec) String() string {
	switch c {
	case H264:
		return "h264"
	case HEVC:
		return "hevc"
	default:
		return "out-of-band"
	}
}

// Header is the configuration data and supplemental metadata captured from
// the first packet of a session
type Header struct {
	Config []byte
	SEI    []byte
}

// Empty reports whether nothing was captured
func (h Header) Empty() bool {
	return len(h.Config) == 0 && len(h.SEI) == 0
}

type class int

const (
	classPayload class = iota
	classConfig
	classSEI
)

func classifyH264(unit []byte) class {
	switch avc.GetNaluType(unit[0]) {
	case avc.NALU_SPS, avc.NALU_PPS:
		return classConfig
	case avc.NALU_SEI:
		return classSEI
	default:
		return classPayload
	}
}

func classifyHEVC(unit []byte) class {
	switch hevc.GetNaluType(unit[0]) {
	case hevc.NALU_VPS, hevc.NALU_SPS, hevc.NALU_PPS:
		return classConfig
	case hevc.NALU_SEI_PREFIX, hevc.NALU_SEI_SUFFIX:
		return classSEI
	default:
		return classPayload
	}
}

func extract(b []byte, classify func([]byte) class) Header {
	var config, sei [][]byte
	for _, u := range SplitUnits(b) {
		if len(u) == 0 {
			continue
		}
		switch classify(u) {
		case classConfig:
			config = append(config, u)
		case classSEI:
			sei = append(sei, u)
		}
	}
	return Header{Config: JoinUnits(config), SEI: JoinUnits(sei)}
}

// ExtractH264 bins SPS and PPS units into Config and SEI units into SEI.
// Coded slices are not retained.
func ExtractH264(b []byte) Header {
	return extract(b, classifyH264)
}

// ExtractHEVC bins VPS, SPS and PPS units into Config and prefix/suffix SEI
// units into SEI
func ExtractHEVC(b []byte) Header {
	return extract(b, classifyHEVC)
}

// Priority ranks a packet for congestion dropping, higher is more important
type Priority int

const (
	PriorityDisposable Priority = iota
	PriorityLow
	PriorityHigh
	PriorityHighest
)

func (p Priority) String() string {
	switch p {
	case PriorityDisposable:
		return "disposable"
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityHighest:
		return "highest"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// DropPriority derives a packet's priority. Keyframes are always highest.
// For H.264 a non-keyframe whose first coded slice has nal_ref_idc 0 is
// never referenced and therefore disposable.
func DropPriority(codec Codec, keyframe bool, payload []byte) Priority {
	if keyframe {
		return PriorityHighest
	}
	if codec != H264 {
		return PriorityLow
	}
	for _, u := range SplitUnits(payload) {
		if len(u) == 0 {
			continue
		}
		switch avc.GetNaluType(u[0]) {
		case avc.NALU_NON_IDR, avc.NALU_IDR:
			// nal_ref_idc
			switch (u[0] >> 5) & 0x03 {
			case 0:
				return PriorityDisposable
			case 1:
				return PriorityLow
			default:
				return PriorityHigh
			}
		}
	}
	return PriorityLow
}
