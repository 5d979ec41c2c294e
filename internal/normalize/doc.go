// Package normalize turns an arbitrary grayscale picture of one handwritten digit
// into the canonical 28x28 form used by the reference corpus.
//
// The pipeline runs in a fixed order:
//
//  1. polarity correction (light digits on a dark background are inverted)
//  2. 5x5 Gaussian denoise
//  3. Gaussian-weighted adaptive threshold (dark strokes become foreground)
//  4. 3x3 opening then closing
//  5. largest 8-connected foreground region
//  6. bounding box plus a 5 pixel margin, clipped to the image
//  7. aspect-preserving resize so the longer side is 20 pixels
//  8. centering on a black 20x20 canvas
//  9. a 4 pixel black border, giving 28x28
//  10. row-major flattening with values scaled to [0, 1]
//
// The canonical image is foreground-high: strokes are bright on black, matching
// the encoding of the reference corpus. Every function in this package is pure
// and safe for concurrent use.
package normalize
