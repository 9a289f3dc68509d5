package ffcodec

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	ffmpeg "github.com/csnewman/ffmpeg-go"
)

// Accel names the acceleration family an encoder belongs to
type Accel string

const (
	AccelNone         Accel = "none" // software
	AccelAuto         Accel = "auto"
	AccelNVENC        Accel = "nvenc"
	AccelQSV          Accel = "qsv"
	AccelAMF          Accel = "amf"
	AccelVAAPI        Accel = "vaapi"
	AccelVideoToolbox Accel = "videotoolbox"
)

// Candidate is one encoder checked by Probe
type Candidate struct {
	Name        string
	Accel       Accel
	DeviceType  ffmpeg.AVHWDeviceType
	Description string
	Available   bool
}

type candidateSpec struct {
	name   string
	accel  Accel
	device ffmpeg.AVHWDeviceType
	desc   string
}

// Hardware candidates per OS, best first. VA-API and VideoToolbox want a
// frames context, the others accept system memory frames.
var (
	linuxCandidates = []candidateSpec{
		{"h264_nvenc", AccelNVENC, ffmpeg.AVHWDeviceTypeCuda, "NVIDIA NVENC H.264"},
		{"hevc_nvenc", AccelNVENC, ffmpeg.AVHWDeviceTypeCuda, "NVIDIA NVENC HEVC"},
		{"h264_qsv", AccelQSV, ffmpeg.AVHWDeviceTypeQsv, "Intel Quick Sync H.264"},
		{"h264_vaapi", AccelVAAPI, ffmpeg.AVHWDeviceTypeVaapi, "VA-API H.264"},
	}
	windowsCandidates = []candidateSpec{
		{"h264_nvenc", AccelNVENC, ffmpeg.AVHWDeviceTypeCuda, "NVIDIA NVENC H.264"},
		{"hevc_nvenc", AccelNVENC, ffmpeg.AVHWDeviceTypeCuda, "NVIDIA NVENC HEVC"},
		{"av1_nvenc", AccelNVENC, ffmpeg.AVHWDeviceTypeCuda, "NVIDIA NVENC AV1"},
		{"h264_qsv", AccelQSV, ffmpeg.AVHWDeviceTypeQsv, "Intel Quick Sync H.264"},
		{"h264_amf", AccelAMF, ffmpeg.AVHWDeviceTypeD3D11Va, "AMD AMF H.264"},
	}
	darwinCandidates = []candidateSpec{
		{"h264_videotoolbox", AccelVideoToolbox, ffmpeg.AVHWDeviceTypeVideotoolbox, "Apple VideoToolbox H.264"},
		{"hevc_videotoolbox", AccelVideoToolbox, ffmpeg.AVHWDeviceTypeVideotoolbox, "Apple VideoToolbox HEVC"},
	}
)

// SoftwareEncoders are listed alongside the hardware probe results
var SoftwareEncoders = []string{"libx264", "libx265", "libsvtav1", "prores_ks", "prores_aw"}

func candidates() []candidateSpec {
	switch runtime.GOOS {
	case "darwin":
		return darwinCandidates
	case "windows":
		return windowsCandidates
	}
	return linuxCandidates
}

// quietProbe silences FFmpeg and libva while devices are opened and returns
// the restore function
func quietProbe() func() {
	oldLevel, _ := ffmpeg.AVLogGetLevel()
	ffmpeg.AVLogSetLevel(ffmpeg.AVLogQuiet)

	oldLibva, hadLibva := os.LookupEnv("LIBVA_MESSAGING_LEVEL")
	os.Setenv("LIBVA_MESSAGING_LEVEL", "0")

	return func() {
		ffmpeg.AVLogSetLevel(oldLevel)
		if hadLibva {
			os.Setenv("LIBVA_MESSAGING_LEVEL", oldLibva)
		} else {
			os.Unsetenv("LIBVA_MESSAGING_LEVEL")
		}
	}
}

// attachFramesContext gives the codec context a small NV12-backed frames
// pool on the device. The caller unrefs the returned buffer.
func attachFramesContext(device *ffmpeg.AVBufferRef, ctx *ffmpeg.AVCodecContext, hw ffmpeg.AVPixelFormat) *ffmpeg.AVBufferRef {
	ref := ffmpeg.AVHWFrameCtxAlloc(device)
	if ref == nil {
		return nil
	}
	frames := ffmpeg.ToAVHWFramesContext(ref.Data())
	if frames == nil {
		ffmpeg.AVBufferUnref(&ref)
		return nil
	}
	frames.SetFormat(hw)
	frames.SetSwFormat(ffmpeg.AVPixFmtNv12)
	frames.SetWidth(1280)
	frames.SetHeight(720)

	if ret, _ := ffmpeg.AVHWFrameCtxInit(ref); ret < 0 {
		ffmpeg.AVBufferUnref(&ref)
		return nil
	}
	ctx.SetHwFramesCtx(ffmpeg.AVBufferRef_(ref))
	return ref
}

// encoderOpens reports whether the named encoder opens on its device. A
// device that exists but cannot run this encoder counts as unavailable.
func encoderOpens(spec candidateSpec) bool {
	restore := quietProbe()
	defer restore()

	name := ffmpeg.ToCStr(spec.name)
	defer name.Free()
	av := ffmpeg.AVCodecFindEncoderByName(name)
	if av == nil {
		return false
	}

	var device *ffmpeg.AVBufferRef
	ret, _ := ffmpeg.AVHWDeviceCtxCreate(&device, spec.device, nil, nil, 0)
	if ret < 0 || device == nil {
		return false
	}
	defer ffmpeg.AVBufferUnref(&device)

	ctx := ffmpeg.AVCodecAllocContext3(av)
	if ctx == nil {
		return false
	}
	defer ffmpeg.AVCodecFreeContext(&ctx)

	ctx.SetWidth(1280)
	ctx.SetHeight(720)
	ctx.SetTimeBase(ffmpeg.AVMakeQ(1, 30))
	ctx.SetFramerate(ffmpeg.AVMakeQ(30, 1))

	switch spec.accel {
	case AccelNVENC, AccelAMF:
		ctx.SetPixFmt(ffmpeg.AVPixFmtNv12)
		ctx.SetHwDeviceCtx(ffmpeg.AVBufferRef_(device))
	case AccelQSV, AccelVAAPI, AccelVideoToolbox:
		hw := map[Accel]ffmpeg.AVPixelFormat{
			AccelQSV:          ffmpeg.AVPixFmtQsv,
			AccelVAAPI:        ffmpeg.AVPixFmtVaapi,
			AccelVideoToolbox: ffmpeg.AVPixFmtVideotoolbox,
		}[spec.accel]
		ctx.SetPixFmt(hw)
		frames := attachFramesContext(device, ctx, hw)
		if frames == nil {
			return false
		}
		defer ffmpeg.AVBufferUnref(&frames)
	default:
		return false
	}

	ret, _ = ffmpeg.AVCodecOpen2(ctx, av, nil)
	return ret >= 0
}

// Probe opens every hardware candidate for this OS, in priority order
func Probe() []Candidate {
	var found []Candidate
	for _, spec := range candidates() {
		found = append(found, Candidate{
			Name:        spec.name,
			Accel:       spec.accel,
			DeviceType:  spec.device,
			Description: spec.desc,
			Available:   encoderOpens(spec),
		})
	}
	return found
}

// Select picks the first available candidate of the requested family. Auto
// takes the best available of any family; None and a missing family both
// return nil, meaning software.
func Select(accel Accel, found []Candidate) *Candidate {
	if accel == AccelNone {
		return nil
	}
	for i := range found {
		if !found[i].Available {
			continue
		}
		if accel == AccelAuto || found[i].Accel == accel {
			return &found[i]
		}
	}
	return nil
}

// HasEncoder reports whether this FFmpeg build includes the named encoder
func HasEncoder(name string) bool {
	n := ffmpeg.ToCStr(name)
	defer n.Free()
	return ffmpeg.AVCodecFindEncoderByName(n) != nil
}

// Status renders the probe results and the software encoders compiled in
func Status(found []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Hardware encoders:\n")
	for _, c := range found {
		status := "not available"
		if c.Available {
			status = "available"
		}
		fmt.Fprintf(&sb, "  %s (%s): %s\n", c.Description, c.Name, status)
	}
	sb.WriteString("Software encoders:\n")
	for _, name := range SoftwareEncoders {
		status := "not built"
		if HasEncoder(name) {
			status = "available"
		}
		fmt.Fprintf(&sb, "  %s: %s\n", name, status)
	}
	return sb.String()
}
