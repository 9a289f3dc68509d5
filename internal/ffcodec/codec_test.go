package ffcodec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/codec"
	"github.com/linuxmatters/encodebridge/internal/config"
	"github.com/linuxmatters/encodebridge/internal/encoder"
	"github.com/linuxmatters/encodebridge/internal/ffcodec"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

func TestPixelFormatMapping(t *testing.T) {
	for _, f := range append(pixfmt.Formats(), pixfmt.D3D11) {
		av := ffcodec.AVPixelFormat(f)
		if back := ffcodec.PixelFormat(av); back != f {
			t.Errorf("%s -> %d -> %s", f, av, back)
		}
	}
	if got := ffcodec.PixelFormat(ffcodec.AVPixelFormat(pixfmt.None)); got != pixfmt.None {
		t.Errorf("None maps back to %s", got)
	}
}

func TestOpenUnknownEncoder(t *testing.T) {
	_, err := ffcodec.Open("no_such_encoder")
	if !errors.Is(err, ffcodec.ErrNotFound) {
		t.Fatalf("Open = %v, want ErrNotFound", err)
	}
}

func TestEncodeLibx264(t *testing.T) {
	if !ffcodec.HasEncoder("libx264") {
		t.Skip("libx264 not in this FFmpeg build")
	}

	c, err := ffcodec.Open("libx264")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Logf("libx264 capabilities %v, formats %v", c.Capabilities(), c.SupportedFormats())

	cfg := config.Default()
	cfg.Source = pixfmt.VideoInfo{Width: 320, Height: 240, Format: pixfmt.RGBA, Range: pixfmt.RangeFull, Space: pixfmt.SpaceBT709}
	cfg.Threads = 2
	cfg.KeyframeMode = config.KeyframeFramesMode
	cfg.KeyframeFrames = 10
	cfg.CustomOptions = "-preset=ultrafast -tune=zerolatency"

	var stream bytes.Buffer
	var packets int
	s, err := encoder.New(cfg, c,
		encoder.WithLogger(logging.Discard()),
		encoder.WithConverters(ffcodec.Swscale),
		encoder.WithSink(encoder.SinkFunc(func(p codec.Packet) error {
			packets++
			stream.Write(p.Data)
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("encoder.New: %v", err)
	}
	t.Logf("negotiated %s, lag %d", s.Format().Target, s.Lag())

	for pts := int64(0); pts < 30; pts++ {
		src, err := frame.New(cfg.Source, 32)
		if err != nil {
			t.Fatalf("frame.New: %v", err)
		}
		for i := range src.Planes[0] {
			src.Planes[0][i] = byte(int(pts)*5 + i)
		}
		src.PTS = pts
		if _, err := s.Encode(src); err != nil {
			t.Fatalf("Encode(%d): %v", pts, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if packets == 0 {
		t.Fatal("no packets")
	}
	if s.Header().Empty() {
		t.Fatal("no header extracted")
	}
	units := bitstream.SplitUnits(stream.Bytes())
	t.Logf("%d packets, %d NAL units, %d bytes, header %d bytes",
		packets, len(units), stream.Len(), len(s.Header().Config))
	if st := s.PoolStats(); st.InFlight != 0 {
		t.Errorf("%d frames still in flight", st.InFlight)
	}
}
