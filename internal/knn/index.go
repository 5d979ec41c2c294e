package knn

import (
	"fmt"
	"math"
	"strings"
)

// Neighbor is a reference sample selected by a nearest-neighbor search.
type Neighbor struct {
	// Index is the position of the reference sample in the training corpus.
	Index int `json:"index"`

	// Label is the digit the reference sample is labelled with.
	Label Label `json:"label"`

	// Distance is the Euclidean distance from the query.
	Distance float64 `json:"distance"`
}

// Index answers k-nearest-neighbor queries over a Model.
//
// Search returns the k closest reference samples ordered by ascending distance,
// with ties ordered by corpus index. Implementations must be safe for concurrent
// use and must return identical results for identical inputs.
type Index interface {
	Search(q Sample, k int) ([]Neighbor, error)
	Len() int
}

// IndexKind names an Index implementation.
type IndexKind string

const (
	// IndexBruteForce scans every reference sample for each query.
	IndexBruteForce IndexKind = "brute"

	// IndexKDTree searches a k-d tree built over the reference samples.
	IndexKDTree IndexKind = "kdtree"
)

// ParseIndexKind converts a configuration string into an IndexKind.
// An empty string selects the brute-force index.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", IndexBruteForce:
		return IndexBruteForce, nil
	case IndexKDTree:
		return IndexKDTree, nil
	default:
		return "", fmt.Errorf("%w: unknown index kind %q", ErrInvalidParameter, s)
	}
}

// NewIndex builds the Index implementation named by kind over m.
func NewIndex(kind IndexKind, m *Model) (Index, error) {
	switch kind {
	case "", IndexBruteForce:
		return NewBruteForce(m), nil
	case IndexKDTree:
		return NewKDTree(m), nil
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", ErrInvalidParameter, kind)
	}
}

// checkQuery validates a search against an index holding n samples.
func checkQuery(n int, q Sample, k int) error {
	if n == 0 {
		return ErrEmptyModel
	}
	if k < 1 || k > n {
		return fmt.Errorf("%w: k=%d must be between 1 and %d", ErrInvalidParameter, k, n)
	}
	if err := q.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}

// squaredDistance returns the squared Euclidean distance between a and b.
// Ordering is done on squared distances so both indexes agree exactly.
func squaredDistance(a, b Sample) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// candidate is a neighbor under consideration, keyed by squared distance.
type candidate struct {
	index int
	sq    float64
}

// closer reports whether a precedes b in neighbor order.
func closer(a, b candidate) bool {
	if a.sq != b.sq {
		return a.sq < b.sq
	}
	return a.index < b.index
}

// nearestK keeps the k best candidates offered to it, in neighbor order.
type nearestK struct {
	k     int
	items []candidate
}

func newNearestK(k int) *nearestK {
	return &nearestK{k: k, items: make([]candidate, 0, k)}
}

func (n *nearestK) offer(c candidate) {
	if len(n.items) == n.k && !closer(c, n.items[n.k-1]) {
		return
	}
	pos := len(n.items)
	for pos > 0 && closer(c, n.items[pos-1]) {
		pos--
	}
	if len(n.items) < n.k {
		n.items = append(n.items, candidate{})
	}
	copy(n.items[pos+1:], n.items[pos:len(n.items)-1])
	n.items[pos] = c
}

// neighbors converts the kept candidates into Neighbors labelled from m.
func (n *nearestK) neighbors(m *Model) []Neighbor {
	out := make([]Neighbor, len(n.items))
	for i, c := range n.items {
		out[i] = Neighbor{
			Index:    c.index,
			Label:    m.Labels[c.index],
			Distance: math.Sqrt(c.sq),
		}
	}
	return out
}
