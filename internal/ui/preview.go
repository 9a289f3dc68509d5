package ui

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// PreviewConfig is the preview size in terminal cells
type PreviewConfig struct {
	Width  int
	Height int
}

// DefaultPreviewConfig is close to 16:9 once cell aspect is accounted for
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Width:  72,
		Height: 20,
	}
}

// DownsampleFrame averages each cell's region of img into one colour
func DownsampleFrame(img *image.RGBA, config PreviewConfig) [][]color.RGBA {
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	cellWidth := max(srcWidth/config.Width, 1)
	cellHeight := max(srcHeight/config.Height, 1)

	preview := make([][]color.RGBA, config.Height)
	for row := 0; row < config.Height; row++ {
		preview[row] = make([]color.RGBA, config.Width)
		for col := 0; col < config.Width; col++ {
			srcX, srcY := col*cellWidth, row*cellHeight

			var sumR, sumG, sumB, n uint32
			for y := srcY; y < srcY+cellHeight && y < srcHeight; y++ {
				for x := srcX; x < srcX+cellWidth && x < srcWidth; x++ {
					c := img.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
					sumR += uint32(c.R)
					sumG += uint32(c.G)
					sumB += uint32(c.B)
					n++
				}
			}
			if n > 0 {
				preview[row][col] = color.RGBA{R: uint8(sumR / n), G: uint8(sumG / n), B: uint8(sumB / n), A: 255}
			}
		}
	}
	return preview
}

// RenderPreview draws the grid with 24-bit ANSI background colours
func RenderPreview(preview [][]color.RGBA) string {
	if len(preview) == 0 {
		return ""
	}

	var s strings.Builder
	border := strings.Repeat("─", len(preview[0]))
	s.WriteString("  Preview:\n")
	s.WriteString("  ┌" + border + "┐\n")
	for _, row := range preview {
		s.WriteString("  │")
		for _, p := range row {
			fmt.Fprintf(&s, "\x1b[48;2;%d;%d;%dm \x1b[0m", p.R, p.G, p.B)
		}
		s.WriteString("│\n")
	}
	s.WriteString("  └" + border + "┘\n")
	return s.String()
}
