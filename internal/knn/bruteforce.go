package knn

// BruteForce is the reference Index: every query computes the distance to every
// stored sample.
type BruteForce struct {
	model *Model
}

// NewBruteForce returns a linear-scan index over m.
func NewBruteForce(m *Model) *BruteForce {
	return &BruteForce{model: m}
}

// Len returns the number of reference samples.
func (b *BruteForce) Len() int {
	return b.model.Len()
}

// Search returns the k nearest reference samples to q.
func (b *BruteForce) Search(q Sample, k int) ([]Neighbor, error) {
	if err := checkQuery(b.Len(), q, k); err != nil {
		return nil, err
	}

	best := newNearestK(k)
	for i, ref := range b.model.Samples {
		best.offer(candidate{index: i, sq: squaredDistance(q, ref)})
	}
	return best.neighbors(b.model), nil
}
