// bench-convert times one picture conversion path so hyperfine can compare
// the built-in converters with swscale.
//
// Usage:
//
//	bench-convert [--iterations N] [--impl native|swscale] [--to nv12]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/linuxmatters/encodebridge/internal/ffcodec"
	"github.com/linuxmatters/encodebridge/internal/format"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
	"github.com/linuxmatters/encodebridge/internal/renderer"
)

const (
	width  = 1280
	height = 720
)

func main() {
	iterations := flag.Int("iterations", 1000, "number of conversions to perform")
	impl := flag.String("impl", "native", "implementation: native or swscale")
	to := flag.String("to", "nv12", "target pixel format")
	flag.Parse()

	dstFormat, err := pixfmt.ParseFormat(*to)
	if err != nil || dstFormat == pixfmt.None {
		fmt.Fprintf(os.Stderr, "Unknown target format: %s\n", *to)
		os.Exit(1)
	}

	pattern := renderer.NewPattern(width, height, 30, 1, nil, nil)
	defer pattern.Close()
	src := pattern.Frame(0, pixfmt.RangeFull, pixfmt.SpaceBT709)

	dstInfo := pixfmt.VideoInfo{Width: width, Height: height, Format: dstFormat, Range: pixfmt.RangeLimited, Space: pixfmt.SpaceBT709}
	dst, err := frame.New(dstInfo, frame.DefaultAlignment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to allocate target: %v\n", err)
		os.Exit(1)
	}

	var conv format.Converter
	switch *impl {
	case "native":
		conv, err = format.NewConverter(src.Info(), dstInfo)
	case "swscale":
		conv, err = ffcodec.NewScaler(src.Info(), dstInfo)
		if err == nil {
			defer conv.(*ffcodec.Scaler).Close()
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown implementation: %s (use 'native' or 'swscale')\n", *impl)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "No %s converter for %s: %v\n", *impl, dstInfo, err)
		os.Exit(1)
	}

	for i := 0; i < *iterations; i++ {
		if err := conv.Convert(dst, src); err != nil {
			fmt.Fprintf(os.Stderr, "Conversion failed: %v\n", err)
			os.Exit(1)
		}
	}
}
