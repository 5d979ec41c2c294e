package normalize

import (
	"errors"
	"image"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

const (
	// DigitBox is the side of the square the digit is scaled into.
	DigitBox = 20

	// Border is the black padding added around the digit box.
	Border = (knn.ImageSide - DigitBox) / 2

	// Margin is the number of pixels kept around the detected region.
	Margin = 5

	// polarityThreshold is the mean intensity below which the picture is
	// treated as light-on-dark and inverted.
	polarityThreshold = 128
)

// ErrNoDigitDetected is returned when no foreground region survives the pipeline.
var ErrNoDigitDetected = errors.New("could not detect a digit")

// Analysis describes how a raw image was canonicalized.
type Analysis struct {
	// Canonical is the 28x28 foreground-high image.
	Canonical *image.Gray

	// Inverted reports whether polarity correction inverted the input.
	Inverted bool

	// Region is the bounding box of the selected region, before the margin.
	Region image.Rectangle

	// Crop is the area cut from the binary image, margin included.
	Crop image.Rectangle

	// Area is the pixel count of the selected region.
	Area int
}

// Normalize canonicalizes raw and flattens it into a knn.Sample.
func Normalize(raw *image.Gray) (knn.Sample, error) {
	canon, err := Canonical(raw)
	if err != nil {
		return nil, err
	}
	return Flatten(canon), nil
}

// Canonical returns the 28x28 canonical image of raw.
func Canonical(raw *image.Gray) (*image.Gray, error) {
	a, err := Analyze(raw)
	if err != nil {
		return nil, err
	}
	return a.Canonical, nil
}

// Flatten converts a canonical image into a knn.Sample.
func Flatten(canon *image.Gray) knn.Sample {
	return knn.SampleFromPixels(toOrigin(canon).Pix)
}

// Analyze runs the full pipeline on raw and reports the intermediate geometry.
func Analyze(raw *image.Gray) (*Analysis, error) {
	if raw == nil || raw.Bounds().Empty() {
		return nil, ErrNoDigitDetected
	}
	src := toOrigin(raw)

	a := &Analysis{}
	if meanIntensity(src) < polarityThreshold {
		src = invert(src)
		a.Inverted = true
	}

	blurred := denoise(src)
	binary := adaptiveThreshold(blurred)
	binary = closing(opening(binary))

	region, ok := largestRegion(binary)
	if !ok {
		return nil, ErrNoDigitDetected
	}
	a.Region = region.Bounds
	a.Area = region.Area

	a.Crop = region.Bounds.Inset(-Margin).Intersect(binary.Bounds())
	if a.Crop.Empty() {
		return nil, ErrNoDigitDetected
	}

	a.Canonical = canonicalize(binary, a.Crop)
	return a, nil
}

// toOrigin returns img with its bounds starting at (0, 0) and a tight stride,
// copying only when necessary.
func toOrigin(img *image.Gray) *image.Gray {
	b := img.Bounds()
	if b.Min == (image.Point{}) && img.Stride == b.Dx() {
		return img
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		start := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:], img.Pix[start:start+b.Dx()])
	}
	return out
}

func meanIntensity(img *image.Gray) float64 {
	var sum uint64
	for _, p := range img.Pix {
		sum += uint64(p)
	}
	return float64(sum) / float64(len(img.Pix))
}
