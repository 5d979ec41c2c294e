package corpus

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

// NewImageSet packs images into an ImageSet. Every image must have the size
// of the first one.
func NewImageSet(images []*image.Gray) (*ImageSet, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to pack")
	}
	b := images[0].Bounds()
	set := &ImageSet{
		Count:  len(images),
		Rows:   b.Dy(),
		Cols:   b.Dx(),
		Pixels: make([]uint8, 0, len(images)*b.Dx()*b.Dy()),
	}
	for i, img := range images {
		ib := img.Bounds()
		if ib.Dx() != set.Cols || ib.Dy() != set.Rows {
			return nil, fmt.Errorf("image %d is %dx%d, want %dx%d", i, ib.Dx(), ib.Dy(), set.Cols, set.Rows)
		}
		for y := ib.Min.Y; y < ib.Max.Y; y++ {
			off := img.PixOffset(ib.Min.X, y)
			set.Pixels = append(set.Pixels, img.Pix[off:off+set.Cols]...)
		}
	}
	return set, nil
}

// EncodeImages writes set as an IDX image archive.
func EncodeImages(w io.Writer, set *ImageSet) error {
	if len(set.Pixels) != set.Count*set.Rows*set.Cols {
		return fmt.Errorf("image set holds %d bytes, want %d", len(set.Pixels), set.Count*set.Rows*set.Cols)
	}
	if err := writeHeader(w, imageMagic, set.Count, set.Rows, set.Cols); err != nil {
		return err
	}
	_, err := w.Write(set.Pixels)
	return err
}

// EncodeLabels writes labels as an IDX label archive.
func EncodeLabels(w io.Writer, labels []knn.Label) error {
	if err := writeHeader(w, labelMagic, len(labels)); err != nil {
		return err
	}
	data := make([]byte, len(labels))
	for i, l := range labels {
		data[i] = byte(l)
	}
	_, err := w.Write(data)
	return err
}

func writeHeader(w io.Writer, magic uint32, fields ...int) error {
	buf := make([]byte, 4*(len(fields)+1))
	binary.BigEndian.PutUint32(buf, magic)
	for i, f := range fields {
		binary.BigEndian.PutUint32(buf[4*(i+1):], uint32(f))
	}
	_, err := w.Write(buf)
	return err
}
