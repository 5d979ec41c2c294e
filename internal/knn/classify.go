package knn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Result is the outcome of classifying one sample.
type Result struct {
	Label      Label      `json:"label"`
	Confidence float64    `json:"confidence"`
	Neighbors  []Neighbor `json:"neighbors"`
}

// Vote returns the majority label among neighbors. A tie in votes goes to the
// label whose neighbors have the smaller mean distance, then to the smaller label.
func Vote(neighbors []Neighbor) Label {
	var (
		votes [MaxLabel + 1]int
		dist  [MaxLabel + 1]float64
	)
	for _, n := range neighbors {
		if !n.Label.Valid() {
			continue
		}
		votes[n.Label]++
		dist[n.Label] += n.Distance
	}

	best := Label(0)
	for l := Label(1); l <= MaxLabel; l++ {
		switch {
		case votes[l] > votes[best]:
			best = l
		case votes[l] == votes[best] && votes[l] > 0:
			if dist[l]/float64(votes[l]) < dist[best]/float64(votes[best]) {
				best = l
			}
		}
	}
	return best
}

// Confidence maps the mean neighbor distance onto 0-100: 100 - mean*1000,
// clamped. Neighbors that all sit at distance zero score 100.
func Confidence(neighbors []Neighbor) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	dists := make([]float64, len(neighbors))
	for i, n := range neighbors {
		dists[i] = n.Distance
	}
	sum := floats.Sum(dists)
	if sum == 0 {
		return 100
	}
	mean := sum / float64(len(dists))
	return math.Max(0, math.Min(100, 100-mean*1000))
}

// Classifier labels samples using a nearest-neighbor Index.
type Classifier struct {
	index Index
}

// NewClassifier returns a Classifier that searches idx.
func NewClassifier(idx Index) *Classifier {
	return &Classifier{index: idx}
}

// Len returns the number of reference samples behind the classifier.
func (c *Classifier) Len() int {
	return c.index.Len()
}

// Classify finds the k nearest reference samples to s and votes on their labels.
func (c *Classifier) Classify(s Sample, k int) (Result, error) {
	neighbors, err := c.index.Search(s, k)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Label:      Vote(neighbors),
		Confidence: Confidence(neighbors),
		Neighbors:  neighbors,
	}, nil
}

// Classify labels s against m with a brute-force search.
func Classify(s Sample, m *Model, k int) (Result, error) {
	return NewClassifier(NewBruteForce(m)).Classify(s, k)
}
