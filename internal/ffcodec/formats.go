package ffcodec

import (
	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

var toAV = map[pixfmt.PixelFormat]ffmpeg.AVPixelFormat{
	pixfmt.YUV420P:   ffmpeg.AVPixFmtYuv420P,
	pixfmt.NV12:      ffmpeg.AVPixFmtNv12,
	pixfmt.YVYU422:   ffmpeg.AVPixFmtYvyu422,
	pixfmt.YUYV422:   ffmpeg.AVPixFmtYuyv422,
	pixfmt.UYVY422:   ffmpeg.AVPixFmtUyvy422,
	pixfmt.RGBA:      ffmpeg.AVPixFmtRgba,
	pixfmt.BGRA:      ffmpeg.AVPixFmtBgra,
	pixfmt.BGR0:      ffmpeg.AVPixFmtBgr0,
	pixfmt.GRAY8:     ffmpeg.AVPixFmtGray8,
	pixfmt.YUV444P:   ffmpeg.AVPixFmtYuv444P,
	pixfmt.BGR24:     ffmpeg.AVPixFmtBgr24,
	pixfmt.YUV422P:   ffmpeg.AVPixFmtYuv422P,
	pixfmt.YUVA420P:  ffmpeg.AVPixFmtYuva420P,
	pixfmt.YUVA422P:  ffmpeg.AVPixFmtYuva422P,
	pixfmt.YUVA444P:  ffmpeg.AVPixFmtYuva444P,
	pixfmt.YUV422P10: ffmpeg.AVPixFmtYuv422P10Le,
	pixfmt.YUV444P10: ffmpeg.AVPixFmtYuv444P10Le,
	pixfmt.D3D11:     ffmpeg.AVPixFmtD3D11,
}

var fromAV = func() map[ffmpeg.AVPixelFormat]pixfmt.PixelFormat {
	m := make(map[ffmpeg.AVPixelFormat]pixfmt.PixelFormat, len(toAV))
	for k, v := range toAV {
		m[v] = k
	}
	return m
}()

// AVPixelFormat maps f to FFmpeg, AVPixFmtNone when it has no equivalent
func AVPixelFormat(f pixfmt.PixelFormat) ffmpeg.AVPixelFormat {
	if av, ok := toAV[f]; ok {
		return av
	}
	return ffmpeg.AVPixFmtNone
}

// PixelFormat maps an FFmpeg format back, pixfmt.None when unknown
func PixelFormat(av ffmpeg.AVPixelFormat) pixfmt.PixelFormat {
	return fromAV[av]
}

// The colour enums share the ISO/IEC 23091-4 code points and FFmpeg's range
// values match pixfmt.ColorRange, so they convert directly.

func avRange(r pixfmt.ColorRange) ffmpeg.AVColorRange {
	return ffmpeg.AVColorRange(r)
}

func avSpace(s pixfmt.ColorSpace) ffmpeg.AVColorSpace {
	return ffmpeg.AVColorSpace(s.Matrix())
}

func avPrimaries(s pixfmt.ColorSpace) ffmpeg.AVColorPrimaries {
	return ffmpeg.AVColorPrimaries(s.Primaries())
}

func avTransfer(s pixfmt.ColorSpace) ffmpeg.AVColorTransferCharacteristic {
	return ffmpeg.AVColorTransferCharacteristic(s.Transfer())
}
