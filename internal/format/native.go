package format

import (
	"errors"
	"math"
	"runtime"
	"sync"

	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

func isUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedConversion)
}

// nativeConverter returns a pure Go converter for src -> dst, or nil
func nativeConverter(src, dst pixfmt.VideoInfo) Converter {
	if !src.SameSize(dst) {
		return nil
	}
	if order, ok := rgbOrder(src.Format); ok {
		switch dst.Format {
		case pixfmt.YUV420P, pixfmt.NV12, pixfmt.YUV444P:
			return newRGBToYUV(src, dst, order)
		}
		return nil
	}
	if src.Range != dst.Range || src.Space != dst.Space {
		return nil
	}
	if (src.Format == pixfmt.YUV420P && dst.Format == pixfmt.NV12) ||
		(src.Format == pixfmt.NV12 && dst.Format == pixfmt.YUV420P) {
		return &chromaInterleave{src: src, dst: dst}
	}
	return nil
}

// packed RGB byte layout: offsets of R, G, B and bytes per pixel
type packedOrder struct {
	r, g, b int
	step    int
}

func rgbOrder(f pixfmt.PixelFormat) (packedOrder, bool) {
	switch f {
	case pixfmt.RGBA:
		return packedOrder{0, 1, 2, 4}, true
	case pixfmt.BGRA, pixfmt.BGR0:
		return packedOrder{2, 1, 0, 4}, true
	case pixfmt.BGR24:
		return packedOrder{2, 1, 0, 3}, true
	}
	return packedOrder{}, false
}

// coefficients are 16.16 fixed point
type coefficients struct {
	yr, yg, yb int
	ur, ug, ub int
	vr, vg, vb int
	yOffset    int
}

func newCoefficients(space pixfmt.ColorSpace, r pixfmt.ColorRange) coefficients {
	kr, kb := 0.299, 0.114
	if space == pixfmt.SpaceBT709 || space == pixfmt.SpaceSRGB {
		kr, kb = 0.2126, 0.0722
	}
	yScale, cScale, yOffset := 1.0, 1.0, 0
	if r != pixfmt.RangeFull {
		yScale, cScale, yOffset = 219.0/255.0, 224.0/255.0, 16
	}

	fix := func(v float64) int { return int(math.Round(v * 65536)) }

	var c coefficients
	c.yr = fix(kr * yScale)
	c.yb = fix(kb * yScale)
	c.yg = fix(yScale) - c.yr - c.yb

	c.ub = fix(0.5 * cScale)
	c.ur = fix(-kr / (2 * (1 - kb)) * cScale)
	c.ug = -c.ub - c.ur

	c.vr = fix(0.5 * cScale)
	c.vb = fix(-kb / (2 * (1 - kr)) * cScale)
	c.vg = -c.vr - c.vb

	c.yOffset = yOffset
	return c
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func (c *coefficients) luma(r, g, b int) uint8 {
	return clamp8((c.yr*r+c.yg*g+c.yb*b+32768)>>16 + c.yOffset)
}

func (c *coefficients) chroma(r, g, b int) (uint8, uint8) {
	u := (c.ur*r+c.ug*g+c.ub*b+32768)>>16 + 128
	v := (c.vr*r+c.vg*g+c.vb*b+32768)>>16 + 128
	return clamp8(u), clamp8(v)
}

// rgbToYUV converts packed 8-bit RGB into planar or semi-planar YUV. Chroma
// is the average of each subsampled block.
type rgbToYUV struct {
	src, dst pixfmt.VideoInfo
	order    packedOrder
	coef     coefficients
	shiftW   int
	shiftH   int
}

func newRGBToYUV(src, dst pixfmt.VideoInfo, order packedOrder) *rgbToYUV {
	d, _ := dst.Format.Describe()
	return &rgbToYUV{
		src:    src,
		dst:    dst,
		order:  order,
		coef:   newCoefficients(dst.Space, dst.Range),
		shiftW: d.ChromaShiftW,
		shiftH: d.ChromaShiftH,
	}
}

func (c *rgbToYUV) Convert(dst, src *frame.Frame) error {
	if err := checkFrames(dst, src, c.dst, c.src); err != nil {
		return err
	}
	chromaRows := dst.Format.PlaneHeight(1, dst.Height)
	parallelRows(chromaRows, func(start, end int) {
		for cy := start; cy < end; cy++ {
			c.convertRow(dst, src, cy)
		}
	})
	return nil
}

// convertRow writes one chroma row and the luma rows it covers
func (c *rgbToYUV) convertRow(dst, src *frame.Frame, cy int) {
	width, height := src.Width, src.Height
	o := c.order
	rgb := src.Planes[0]
	rgbLs := src.Linesize[0]

	y0 := cy << c.shiftH
	y1 := min(y0+1<<c.shiftH, height)

	for y := y0; y < y1; y++ {
		in := rgb[y*rgbLs:]
		out := dst.Planes[0][y*dst.Linesize[0]:]
		for x := 0; x < width; x++ {
			p := in[x*o.step:]
			out[x] = c.coef.luma(int(p[o.r]), int(p[o.g]), int(p[o.b]))
		}
	}

	chromaWidth := dst.Format.PlaneRowBytes(1, width)
	interleaved := dst.Format == pixfmt.NV12
	if interleaved {
		chromaWidth /= 2
	}

	for cx := 0; cx < chromaWidth; cx++ {
		x0 := cx << c.shiftW
		x1 := min(x0+1<<c.shiftW, width)

		var r, g, b, n int
		for y := y0; y < y1; y++ {
			row := rgb[y*rgbLs:]
			for x := x0; x < x1; x++ {
				p := row[x*o.step:]
				r += int(p[o.r])
				g += int(p[o.g])
				b += int(p[o.b])
				n++
			}
		}
		half := n / 2
		u, v := c.coef.chroma((r+half)/n, (g+half)/n, (b+half)/n)

		if interleaved {
			uv := dst.Planes[1][cy*dst.Linesize[1]+2*cx:]
			uv[0], uv[1] = u, v
			continue
		}
		dst.Planes[1][cy*dst.Linesize[1]+cx] = u
		dst.Planes[2][cy*dst.Linesize[2]+cx] = v
	}
}

// chromaInterleave converts between I420 and NV12
type chromaInterleave struct {
	src, dst pixfmt.VideoInfo
}

func (c *chromaInterleave) Convert(dst, src *frame.Frame) error {
	if err := checkFrames(dst, src, c.dst, c.src); err != nil {
		return err
	}

	rows := src.Format.PlaneHeight(0, src.Height)
	rowBytes := src.Format.PlaneRowBytes(0, src.Width)
	for y := 0; y < rows; y++ {
		copy(dst.Planes[0][y*dst.Linesize[0]:][:rowBytes], src.Planes[0][y*src.Linesize[0]:][:rowBytes])
	}

	chromaRows := src.Format.PlaneHeight(1, src.Height)
	chromaWidth := pixfmt.YUV420P.PlaneRowBytes(1, src.Width)
	parallelRows(chromaRows, func(start, end int) {
		for cy := start; cy < end; cy++ {
			if src.Format == pixfmt.YUV420P {
				u := src.Planes[1][cy*src.Linesize[1]:]
				v := src.Planes[2][cy*src.Linesize[2]:]
				uv := dst.Planes[1][cy*dst.Linesize[1]:]
				for x := 0; x < chromaWidth; x++ {
					uv[2*x] = u[x]
					uv[2*x+1] = v[x]
				}
				continue
			}
			uv := src.Planes[1][cy*src.Linesize[1]:]
			u := dst.Planes[1][cy*dst.Linesize[1]:]
			v := dst.Planes[2][cy*dst.Linesize[2]:]
			for x := 0; x < chromaWidth; x++ {
				u[x] = uv[2*x]
				v[x] = uv[2*x+1]
			}
		}
	})
	return nil
}

// parallelRows splits rows across one goroutine per CPU and waits for all
func parallelRows(rows int, fn func(start, end int)) {
	workers := runtime.NumCPU()
	if rows < workers {
		workers = rows
	}
	if workers <= 1 {
		fn(0, rows)
		return
	}
	perWorker := rows / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if w == workers-1 {
			end = rows
		}
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
