package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestCropRegion(t *testing.T) {
	img := solidImage(100, 80, color.White)
	img.Set(60, 50, color.Black)

	cropped, err := CropRegion(img, 50, 40, 70, 60)
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if cropped.Bounds().Dx() != 20 || cropped.Bounds().Dy() != 20 {
		t.Errorf("dimensions: got %v, want 20x20", cropped.Bounds())
	}
	if g := ToGray(cropped); g.GrayAt(10, 10).Y != 0 {
		t.Errorf("pixel (10,10) = %d, want 0", g.GrayAt(10, 10).Y)
	}
}

func TestCropRegion_SubImageOrigin(t *testing.T) {
	full := solidImage(100, 100, color.White)
	full.Set(55, 55, color.Black)
	sub := full.SubImage(image.Rect(50, 50, 100, 100))

	cropped, err := CropRegion(sub, 0, 0, 10, 10)
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if g := ToGray(cropped); g.GrayAt(5, 5).Y != 0 {
		t.Errorf("pixel (5,5) = %d, want 0", g.GrayAt(5, 5).Y)
	}
}

func TestCropRegion_Invalid(t *testing.T) {
	img := solidImage(50, 50, color.White)

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"negative origin", -1, 0, 10, 10},
		{"past right edge", 0, 0, 51, 10},
		{"past bottom edge", 0, 0, 10, 51},
		{"empty width", 10, 0, 10, 10},
		{"inverted height", 0, 20, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropRegion(img, tt.x1, tt.y1, tt.x2, tt.y2); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPreview(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 28, 28))
	g.SetGray(1, 2, color.Gray{Y: 255})

	result, err := Preview(g, 4)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.Width != 112 || result.Height != 112 {
		t.Errorf("dimensions: got %dx%d, want 112x112", result.Width, result.Height)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	gray := ToGray(decoded)
	if gray.GrayAt(4*1+2, 4*2+3).Y != 255 {
		t.Error("scaled foreground pixel missing")
	}
	if gray.GrayAt(0, 0).Y != 0 {
		t.Error("background should stay black")
	}
}

func TestPreview_InvalidScale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 28, 28))
	for _, scale := range []int{0, -1, MaxPreviewScale + 1, 100000} {
		t.Run(fmt.Sprintf("scale %d", scale), func(t *testing.T) {
			if _, err := Preview(img, scale); err == nil {
				t.Errorf("expected error for scale %d", scale)
			}
		})
	}
}

func TestPreview_MaxScale(t *testing.T) {
	result, err := Preview(image.NewGray(image.Rect(0, 0, 28, 28)), MaxPreviewScale)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.Width != 28*MaxPreviewScale || result.Height != 28*MaxPreviewScale {
		t.Errorf("size: got %dx%d, want %dx%d", result.Width, result.Height, 28*MaxPreviewScale, 28*MaxPreviewScale)
	}
}
