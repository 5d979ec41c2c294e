package corpus

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

// openArchive opens path, unwrapping gzip compression when the stream starts
// with the gzip magic bytes.
func openArchive(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
		}
		return &archive{Reader: zr, closers: []io.Closer{zr, f}}, nil
	}
	return &archive{Reader: br, closers: []io.Closer{f}}, nil
}

type archive struct {
	io.Reader
	closers []io.Closer
}

func (a *archive) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadImagesFile decodes the image archive at path.
func ReadImagesFile(path string) (*ImageSet, error) {
	rc, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	set, err := DecodeImages(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// ReadLabelsFile decodes the label archive at path.
func ReadLabelsFile(path string) ([]knn.Label, error) {
	rc, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	labels, err := DecodeLabels(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// Pair matches decoded images with their labels. The images must be 28x28.
func Pair(images *ImageSet, labels []knn.Label) (knn.TrainingSet, error) {
	if images.Rows != knn.ImageSide || images.Cols != knn.ImageSide {
		return knn.TrainingSet{}, fmt.Errorf("%w: images are %dx%d, want %dx%d",
			ErrFormat, images.Cols, images.Rows, knn.ImageSide, knn.ImageSide)
	}
	if images.Len() != len(labels) {
		return knn.TrainingSet{}, fmt.Errorf("%w: %d images but %d labels", ErrFormat, images.Len(), len(labels))
	}
	return knn.TrainingSet{
		Samples: images.Samples(),
		Labels:  labels,
	}, nil
}

// LoadTrainingSet reads an image archive and a label archive and pairs them.
func LoadTrainingSet(imagesPath, labelsPath string) (knn.TrainingSet, error) {
	images, err := ReadImagesFile(imagesPath)
	if err != nil {
		return knn.TrainingSet{}, err
	}
	labels, err := ReadLabelsFile(labelsPath)
	if err != nil {
		return knn.TrainingSet{}, err
	}
	return Pair(images, labels)
}

// WriteArchives stores set and labels as IDX archives at imagesPath and
// labelsPath. Paths ending in ".gz" are gzip compressed.
func WriteArchives(imagesPath, labelsPath string, set *ImageSet, labels []knn.Label) error {
	if set.Len() != len(labels) {
		return fmt.Errorf("%w: %d images but %d labels", ErrFormat, set.Len(), len(labels))
	}
	if err := writeArchive(imagesPath, func(w io.Writer) error { return EncodeImages(w, set) }); err != nil {
		return err
	}
	return writeArchive(labelsPath, func(w io.Writer) error { return EncodeLabels(w, labels) })
}

func writeArchive(path string, encode func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if !strings.HasSuffix(path, ".gz") {
		if err := encode(bw); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return bw.Flush()
	}

	zw := gzip.NewWriter(bw)
	if err := encode(zw); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}
