package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// MaxPreviewScale is the largest enlargement Preview accepts.
const MaxPreviewScale = 32

// PreviewResult contains an encoded image ready to return to a client.
type PreviewResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CropRegion extracts a rectangular region from img so that a single digit can
// be isolated from a larger picture.
//
// Parameters:
//   - img: The source image.
//   - x1, y1: Top-left corner, relative to the image origin (inclusive).
//   - x2, y2: Bottom-right corner, relative to the image origin (exclusive).
//
// Returns:
//   - image.Image: The cropped region, with its origin at (0,0).
//   - error: Non-nil if the region is empty or extends past the image.
func CropRegion(img image.Image, x1, y1, x2, y2 int) (image.Image, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if x1 < 0 || y1 < 0 || x2 > w || y2 > h {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (0,0)-(%d,%d)",
			x1, y1, x2, y2, w, h)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	r := image.Rect(x1, y1, x2, y2).Add(bounds.Min)
	return imaging.Crop(img, r), nil
}

// Preview encodes img as a base64 PNG, enlarged by an integer scale factor with
// nearest-neighbor sampling so individual pixels stay visible.
//
// Parameters:
//   - img: The image to encode.
//   - scale: Enlargement factor, from 1 (original size) to MaxPreviewScale.
//
// Returns:
//   - *PreviewResult: The encoded PNG and its final dimensions.
//   - error: Non-nil if scale is out of range or encoding fails.
func Preview(img image.Image, scale int) (*PreviewResult, error) {
	if scale < 1 || scale > MaxPreviewScale {
		return nil, fmt.Errorf("scale must be between 1 and %d, got %d", MaxPreviewScale, scale)
	}

	out := img
	if scale > 1 {
		b := img.Bounds()
		out = imaging.Resize(img, b.Dx()*scale, b.Dy()*scale, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &PreviewResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
