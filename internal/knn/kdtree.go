package knn

import "gonum.org/v1/gonum/spatial/kdtree"

// refPoint is a reference sample stored in the k-d tree. It remembers its
// corpus index so results can be ordered the same way as BruteForce.
type refPoint struct {
	vec Sample
	idx int
}

func (p refPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(refPoint)
	return p.vec[d] - q.vec[d]
}

func (p refPoint) Dims() int { return len(p.vec) }

// Distance returns the squared Euclidean distance, as kdtree expects.
func (p refPoint) Distance(c kdtree.Comparable) float64 {
	return squaredDistance(p.vec, c.(refPoint).vec)
}

// refPoints satisfies kdtree.Interface.
type refPoints []refPoint

func (p refPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p refPoints) Len() int                              { return len(p) }
func (p refPoints) Pivot(d kdtree.Dim) int                { return refPlane{Dim: d, refPoints: p}.Pivot() }
func (p refPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// refPlane pivots refPoints along one dimension. MedianOfMedians keeps tree
// construction deterministic.
type refPlane struct {
	kdtree.Dim
	refPoints
}

func (p refPlane) Less(i, j int) bool {
	return p.refPoints[i].vec[p.Dim] < p.refPoints[j].vec[p.Dim]
}
func (p refPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p refPlane) Slice(start, end int) kdtree.SortSlicer {
	p.refPoints = p.refPoints[start:end]
	return p
}
func (p refPlane) Swap(i, j int) {
	p.refPoints[i], p.refPoints[j] = p.refPoints[j], p.refPoints[i]
}

// KDTree is an Index backed by a gonum k-d tree.
//
// In 784 dimensions the tree prunes little, so it mainly pays off on small or
// clustered reference sets. Its results are identical to BruteForce: the tree
// finds the k-th nearest distance, collects every sample within that radius,
// and the candidates are then ordered by exact distance and corpus index.
type KDTree struct {
	model *Model
	tree  *kdtree.Tree
}

// NewKDTree builds a k-d tree over the samples of m.
func NewKDTree(m *Model) *KDTree {
	points := make(refPoints, m.Len())
	for i := range points {
		points[i] = refPoint{vec: m.Samples[i], idx: i}
	}
	return &KDTree{
		model: m,
		tree:  kdtree.New(points, false),
	}
}

// Len returns the number of reference samples.
func (t *KDTree) Len() int {
	return t.model.Len()
}

// Search returns the k nearest reference samples to q.
func (t *KDTree) Search(q Sample, k int) ([]Neighbor, error) {
	if err := checkQuery(t.Len(), q, k); err != nil {
		return nil, err
	}
	query := refPoint{vec: q, idx: -1}

	nk := kdtree.NewNKeeper(k)
	t.tree.NearestSet(nk, query)
	if len(nk.Heap) == 0 {
		return nil, ErrEmptyModel
	}
	radius := nk.Heap[len(nk.Heap)-1].Dist

	// Re-query by radius so samples tied with the k-th distance are all seen.
	dk := kdtree.NewDistKeeper(radius)
	t.tree.NearestSet(dk, query)

	best := newNearestK(k)
	for _, c := range dk.Heap {
		p, ok := c.Comparable.(refPoint)
		if !ok {
			continue
		}
		best.offer(candidate{index: p.idx, sq: c.Dist})
	}
	return best.neighbors(t.model), nil
}
