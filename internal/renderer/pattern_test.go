package renderer

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

func TestTimecode(t *testing.T) {
	p := NewPattern(64, 36, 30, 1, nil, nil)
	defer p.Close()

	tests := []struct {
		n    int64
		want string
	}{
		{0, "00:00:00:00"},
		{29, "00:00:00:29"},
		{30, "00:00:01:00"},
		{30*3661 + 5, "01:01:01:05"},
	}
	for _, tt := range tests {
		if got := p.Timecode(tt.n); got != tt.want {
			t.Errorf("Timecode(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}

	ntsc := NewPattern(64, 36, 30000, 1001, nil, nil)
	defer ntsc.Close()
	if got := ntsc.Timecode(29); got != "00:00:01:00" {
		t.Errorf("29.97 Timecode(29) = %s", got)
	}
}

func TestRenderMovesBox(t *testing.T) {
	p := NewPattern(320, 180, 30, 1, nil, nil)
	defer p.Close()

	first := append([]byte(nil), p.Render(0).Pix...)
	second := p.Render(10).Pix

	changed := 0
	for i := range first {
		if first[i] != second[i] {
			changed++
		}
	}
	if changed == 0 {
		t.Fatal("pictures 0 and 10 are identical")
	}
	t.Logf("%d bytes differ between pictures", changed)
}

func TestRenderBars(t *testing.T) {
	p := NewPattern(700, 300, 25, 1, nil, nil)
	defer p.Close()
	img := p.Render(0)

	// sample the middle of each bar, below the box
	for i, want := range bars {
		x := i*100 + 50
		if got := img.RGBAAt(x, 190); got != want {
			t.Errorf("bar %d at x=%d is %v, want %v", i, x, got, want)
		}
	}
	if got := img.RGBAAt(0, 299); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("ramp start is %v", got)
	}
}

func TestFrameWrapsPixels(t *testing.T) {
	p := NewPattern(96, 54, 30, 1, nil, nil)
	defer p.Close()

	f := p.Frame(7, pixfmt.RangeFull, pixfmt.SpaceBT709)
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := pixfmt.VideoInfo{Width: 96, Height: 54, Format: pixfmt.RGBA, Range: pixfmt.RangeFull, Space: pixfmt.SpaceBT709}
	if f.Info() != want || f.PTS != 7 {
		t.Fatalf("frame %s pts %d", f.Info(), f.PTS)
	}
}

func TestRenderWithText(t *testing.T) {
	face, err := LoadFace(24)
	if err != nil {
		t.Fatalf("LoadFace: %v", err)
	}
	plain := NewPattern(320, 180, 30, 1, nil, nil)
	defer plain.Close()
	text := NewPattern(320, 180, 30, 1, nil, face)
	defer text.Close()
	text.SetLabel("libx264")

	a := append([]byte(nil), plain.Render(3).Pix...)
	b := text.Render(3).Pix
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("text did not change the picture")
	}
}

func TestBackgroundRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bg.png")

	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.SetRGBA(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	if err := WritePNG(path, src); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	bg, err := LoadBackground(path, 80, 40)
	if err != nil {
		t.Fatalf("LoadBackground: %v", err)
	}
	if bg.Bounds().Dx() != 80 || bg.Bounds().Dy() != 40 {
		t.Fatalf("scaled to %v", bg.Bounds())
	}

	p := NewPattern(80, 40, 30, 1, bg, nil)
	defer p.Close()
	if got := p.Render(0).RGBAAt(79, 39); got.R != 200 {
		t.Errorf("background pixel %v", got)
	}

	if _, err := LoadBackground(filepath.Join(dir, "missing.png"), 8, 8); !os.IsNotExist(err) {
		t.Errorf("missing file error = %v", err)
	}
}
