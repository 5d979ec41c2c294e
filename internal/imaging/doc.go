// Package imaging loads digit pictures from disk and prepares them for the
// normalizer.
//
// Pictures in any supported format (PNG, JPEG, GIF, BMP, TIFF) are decoded,
// optionally cropped to the region holding the digit, and reduced to the 8-bit
// grayscale RawImage the recognizer consumes. The package also encodes preview
// PNGs of canonical images for clients that want to see what the classifier saw.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner. For
// regions, (x1,y1) is inclusive and (x2,y2) is exclusive.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The conversion functions are stateless.
package imaging
