// Package knn implements the reference-set data model and the k-nearest-neighbor
// digit classifier.
//
// The classifier is a lazy learner: a Model is nothing more than the stored
// reference samples and their labels, plus the neighbor count chosen at training
// time. Queries are answered by an Index, of which two implementations exist:
//
//   - IndexBruteForce: a linear scan over every reference sample
//   - IndexKDTree: a gonum k-d tree that returns exactly the same neighbors
//
// The implementation is selected by configuration through NewIndex.
//
// # Distances and Ordering
//
// Distances are Euclidean over the 784-value sample vectors. Neighbors are
// ordered by ascending distance; equal distances are ordered by the position of
// the reference sample in the training corpus, so results are reproducible.
//
// # Thread Safety
//
// Models and indexes are immutable once built and may be shared by any number of
// goroutines. Retraining builds a new Model rather than modifying an existing one.
package knn
