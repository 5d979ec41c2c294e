package normalize

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

// scaledSize returns the size of a w x h crop scaled so its longer side is
// DigitBox, keeping the aspect ratio. The shorter side is at least 1.
func scaledSize(w, h int) (int, int) {
	if w >= h {
		return DigitBox, max(1, DigitBox*h/w)
	}
	return max(1, DigitBox*w/h), DigitBox
}

// canonicalize cuts crop from the binary image, scales it into the digit box,
// centers it and adds the border.
func canonicalize(bin *image.Gray, crop image.Rectangle) *image.Gray {
	digit := imaging.Crop(bin, crop)

	nw, nh := scaledSize(crop.Dx(), crop.Dy())
	filter := imaging.Box
	if nw > crop.Dx() || nh > crop.Dy() {
		filter = imaging.Linear
	}
	scaled := imaging.Resize(digit, nw, nh, filter)

	box := imaging.New(DigitBox, DigitBox, color.Black)
	box = imaging.Paste(box, scaled, image.Pt((DigitBox-nw)/2, (DigitBox-nh)/2))

	canvas := imaging.New(knn.ImageSide, knn.ImageSide, color.Black)
	canvas = imaging.Paste(canvas, box, image.Pt(Border, Border))

	out := image.NewGray(image.Rect(0, 0, knn.ImageSide, knn.ImageSide))
	for i := range out.Pix {
		out.Pix[i] = canvas.Pix[4*i]
	}
	return out
}
