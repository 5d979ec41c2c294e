package imaging

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ITU-R BT.601 luminance weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ToGray reduces img to an 8-bit grayscale image with bounds starting at (0, 0).
//
// Color is reduced to BT.601 luminance. Transparent pixels are composited over
// white, since a digit drawn on a transparent layer is dark ink on blank paper.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			start := g.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*out.Stride:], g.Pix[start:start+b.Dx()])
		}
		return out
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = luminance(img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// luminance returns the 8-bit gray level of c over a white background.
func luminance(c color.Color) uint8 {
	_, _, _, a := c.RGBA()
	col, ok := colorful.MakeColor(c)
	if !ok {
		return 255
	}
	alpha := float64(a) / 0xffff
	y := lumaR*col.R + lumaG*col.G + lumaB*col.B
	v := (y*alpha + (1 - alpha)) * 255
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
