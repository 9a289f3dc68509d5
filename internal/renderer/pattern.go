// Package renderer draws the synthetic source pictures fed to an encode
// session: colour bars, a moving box and a burnt-in timecode.
package renderer

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// 75% colour bars, left to right
var bars = []color.RGBA{
	{191, 191, 191, 255},
	{191, 191, 0, 255},
	{0, 191, 191, 255},
	{0, 191, 0, 255},
	{191, 0, 191, 255},
	{191, 0, 0, 255},
	{0, 0, 191, 255},
}

var (
	textColor = color.RGBA{R: 248, G: 179, B: 29, A: 255}
	boxColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Pattern renders numbered test pictures. It is not safe for concurrent use.
type Pattern struct {
	width, height int
	fpsNum        int
	fpsDen        int
	face          font.Face
	base          *image.RGBA
	img           *image.RGBA
	label         string
}

var imagePool = sync.Pool{}

// NewPattern prepares a w x h pattern. bg replaces the bars when non-nil and
// face may be nil to skip text.
func NewPattern(w, h, fpsNum, fpsDen int, bg *image.RGBA, face font.Face) *Pattern {
	base := image.NewRGBA(image.Rect(0, 0, w, h))
	if bg != nil {
		draw.Draw(base, base.Bounds(), bg, bg.Bounds().Min, draw.Src)
	} else {
		drawBars(base)
	}

	img, _ := imagePool.Get().(*image.RGBA)
	if img == nil || img.Bounds() != base.Bounds() {
		img = image.NewRGBA(base.Bounds())
	}

	return &Pattern{
		width:  w,
		height: h,
		fpsNum: fpsNum,
		fpsDen: fpsDen,
		face:   face,
		base:   base,
		img:    img,
	}
}

// SetLabel sets a caption drawn under the timecode
func (p *Pattern) SetLabel(label string) {
	p.label = label
}

func drawBars(img *image.RGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for i, c := range bars {
		x0 := i * w / len(bars)
		x1 := (i + 1) * w / len(bars)
		draw.Draw(img, image.Rect(x0, 0, x1, h*2/3), image.NewUniform(c), image.Point{}, draw.Src)
	}
	// luma ramp along the bottom third
	for x := 0; x < w; x++ {
		v := uint8(x * 255 / max(w-1, 1))
		for y := h * 2 / 3; y < h; y++ {
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
}

// Timecode formats picture n as HH:MM:SS:FF
func (p *Pattern) Timecode(n int64) string {
	fps := int64(1)
	if p.fpsDen > 0 {
		fps = max(int64(p.fpsNum)/int64(p.fpsDen), 1)
	}
	ff := n % fps
	secs := n / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, ff)
}

// Render draws picture n and returns the image. The image is reused by the
// next call.
func (p *Pattern) Render(n int64) *image.RGBA {
	copy(p.img.Pix, p.base.Pix)

	size := max(p.height/8, 2)
	span := max(p.width-size, 1)
	pos := int(n*int64(max(p.width/90, 1))) % (2 * span)
	if pos >= span {
		pos = 2*span - pos
	}
	top := p.height/3 - size/2
	draw.Draw(p.img, image.Rect(pos, top, pos+size, top+size), image.NewUniform(boxColor), image.Point{}, draw.Src)

	if p.face != nil {
		DrawCenterText(p.img, p.face, p.Timecode(n), p.height*5/6, textColor)
		if p.label != "" {
			DrawCenterText(p.img, p.face, p.label, p.height/8, textColor)
		}
	}
	return p.img
}

// Frame renders picture n and wraps it as an RGBA frame with the given colour
// description. The frame shares the pattern's pixels.
func (p *Pattern) Frame(n int64, r pixfmt.ColorRange, s pixfmt.ColorSpace) *frame.Frame {
	img := p.Render(n)
	return &frame.Frame{
		Width:    p.width,
		Height:   p.height,
		Format:   pixfmt.RGBA,
		Range:    r,
		Space:    s,
		PTS:      n,
		Planes:   [][]byte{img.Pix},
		Linesize: []int{img.Stride},
	}
}

// Close returns the picture buffer for reuse
func (p *Pattern) Close() {
	if p.img != nil {
		imagePool.Put(p.img)
		p.img = nil
	}
}
