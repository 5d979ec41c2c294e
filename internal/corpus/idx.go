package corpus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801

	// maxPayload bounds the declared archive size so a corrupt header cannot
	// request an absurd allocation.
	maxPayload = 1 << 31
)

// ErrFormat is returned for any archive that does not follow the IDX layout.
var ErrFormat = errors.New("invalid IDX archive")

// ImageSet holds the decoded contents of an image archive.
type ImageSet struct {
	Count int
	Rows  int
	Cols  int

	// Pixels holds Count images of Rows*Cols bytes each, back to back.
	Pixels []uint8
}

// Len returns the number of images in the set.
func (s *ImageSet) Len() int {
	return s.Count
}

// pixels returns the raw bytes of image i.
func (s *ImageSet) pixels(i int) []uint8 {
	size := s.Rows * s.Cols
	return s.Pixels[i*size : (i+1)*size]
}

// Image returns image i as a grayscale image.
func (s *ImageSet) Image(i int) (*image.Gray, error) {
	if i < 0 || i >= s.Count {
		return nil, fmt.Errorf("image index %d out of range [0, %d)", i, s.Count)
	}
	img := image.NewGray(image.Rect(0, 0, s.Cols, s.Rows))
	copy(img.Pix, s.pixels(i))
	return img, nil
}

// Samples converts every image into a knn.Sample.
func (s *ImageSet) Samples() []knn.Sample {
	out := make([]knn.Sample, s.Count)
	for i := range out {
		out[i] = knn.SampleFromPixels(s.pixels(i))
	}
	return out
}

// readHeader reads n big-endian uint32 values and checks the first against magic.
func readHeader(r io.Reader, magic uint32, n int) ([]uint32, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrFormat, err)
	}
	fields := make([]uint32, n)
	for i := range fields {
		fields[i] = binary.BigEndian.Uint32(buf[4*i:])
	}
	if fields[0] != magic {
		return nil, fmt.Errorf("%w: magic 0x%08x, want 0x%08x", ErrFormat, fields[0], magic)
	}
	return fields, nil
}

// readPayload reads exactly size bytes and requires the stream to end there.
func readPayload(r io.Reader, size uint64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(size)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading payload: %v", ErrFormat, err)
	}
	switch {
	case uint64(len(data)) < size:
		return nil, fmt.Errorf("%w: payload has %d bytes, header declares %d", ErrFormat, len(data), size)
	case uint64(len(data)) > size:
		return nil, fmt.Errorf("%w: trailing bytes after %d-byte payload", ErrFormat, size)
	}
	return data, nil
}

// DecodeImages reads an IDX image archive.
func DecodeImages(r io.Reader) (*ImageSet, error) {
	h, err := readHeader(r, imageMagic, 4)
	if err != nil {
		return nil, err
	}
	count, rows, cols := h[1], h[2], h[3]
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: zero image dimension %dx%d", ErrFormat, rows, cols)
	}

	perImage := uint64(rows) * uint64(cols)
	if perImage > maxPayload || uint64(count) > maxPayload/perImage {
		return nil, fmt.Errorf("%w: %d images of %dx%d exceed the size limit", ErrFormat, count, rows, cols)
	}

	data, err := readPayload(r, uint64(count)*perImage)
	if err != nil {
		return nil, err
	}
	return &ImageSet{
		Count:  int(count),
		Rows:   int(rows),
		Cols:   int(cols),
		Pixels: data,
	}, nil
}

// DecodeLabels reads an IDX label archive.
func DecodeLabels(r io.Reader) ([]knn.Label, error) {
	h, err := readHeader(r, labelMagic, 2)
	if err != nil {
		return nil, err
	}

	data, err := readPayload(r, uint64(h[1]))
	if err != nil {
		return nil, err
	}
	labels := make([]knn.Label, len(data))
	for i, b := range data {
		l := knn.Label(b)
		if !l.Valid() {
			return nil, fmt.Errorf("%w: label %d at index %d out of range", ErrFormat, b, i)
		}
		labels[i] = l
	}
	return labels, nil
}
