package knn

import (
	"errors"
	"fmt"
	"math"
)

const (
	// ImageSide is the width and height of a canonical digit image.
	ImageSide = 28

	// SampleSize is the number of values in a flattened canonical image.
	SampleSize = ImageSide * ImageSide

	// MaxLabel is the largest valid digit label.
	MaxLabel = 9
)

var (
	// ErrEmptyModel is returned when a query is made against a model with no samples.
	ErrEmptyModel = errors.New("model holds no samples")

	// ErrInvalidParameter is returned for an out-of-range neighbor count or a
	// malformed query sample.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Label is a digit class in the range 0-9.
type Label uint8

// Valid reports whether l is a digit between 0 and 9.
func (l Label) Valid() bool {
	return l <= MaxLabel
}

// Sample is a row-major flattening of a 28x28 canonical image with every
// intensity scaled to [0, 1].
type Sample []float64

// SampleFromPixels converts raw 8-bit intensities into a Sample by dividing each
// value by 255. Both the corpus decoder and the image normalizer go through this
// function so that reference and query vectors share one encoding.
func SampleFromPixels(pix []uint8) Sample {
	s := make(Sample, len(pix))
	for i, p := range pix {
		s[i] = float64(p) / 255.0
	}
	return s
}

// Validate checks the length and value-range invariants of a sample.
func (s Sample) Validate() error {
	if len(s) != SampleSize {
		return fmt.Errorf("sample has %d values, want %d", len(s), SampleSize)
	}
	for i, v := range s {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("sample value %d out of range: %v", i, v)
		}
	}
	return nil
}

// TrainingSet is an ordered collection of labelled samples.
type TrainingSet struct {
	Samples []Sample
	Labels  []Label
}

// Len returns the number of labelled samples.
func (ts TrainingSet) Len() int {
	return len(ts.Samples)
}

// Validate checks that samples and labels pair up and that each is well formed.
func (ts TrainingSet) Validate() error {
	if len(ts.Samples) != len(ts.Labels) {
		return fmt.Errorf("%d samples but %d labels", len(ts.Samples), len(ts.Labels))
	}
	for i := range ts.Samples {
		if err := ts.Samples[i].Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if !ts.Labels[i].Valid() {
			return fmt.Errorf("sample %d: label %d out of range", i, ts.Labels[i])
		}
	}
	return nil
}

// Model is a trained reference set together with the hyper-parameters recorded
// at training time. A Model must not be modified after it has been built.
type Model struct {
	Samples []Sample
	Labels  []Label

	// DefaultK is the neighbor count used when a query does not specify one.
	DefaultK int
}

// Len returns the number of reference samples, treating a nil model as empty.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Samples)
}

// LabelCounts returns how many reference samples carry each label.
func (m *Model) LabelCounts() map[Label]int {
	counts := make(map[Label]int)
	if m == nil {
		return counts
	}
	for _, l := range m.Labels {
		counts[l]++
	}
	return counts
}
