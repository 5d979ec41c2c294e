// Package store trains digit models and persists them to disk.
//
// Training is trivial for a nearest-neighbor learner: the labelled samples are
// kept verbatim together with the default neighbor count. Models are saved as a
// bbolt database with two buckets:
//
//	meta     version, default_k, dimension, count
//	samples  big-endian uint32 index -> label byte + 784 little-endian float64 values
//
// Save writes to a temporary file in the destination directory and renames it
// into place, so a reader of path sees either the previous model or the new one.
package store
