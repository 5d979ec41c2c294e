package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

// FormatVersion identifies the on-disk layout written by Save.
const FormatVersion = 1

// batchSize is the number of samples written per bbolt transaction.
const batchSize = 5000

var (
	// ErrEmptyCorpus is returned when training on a set with no samples.
	ErrEmptyCorpus = errors.New("training corpus is empty")

	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("model file not found")

	// ErrCorruptModel is returned when a model file cannot be decoded.
	ErrCorruptModel = errors.New("model file is corrupt")
)

var (
	metaBucket    = []byte("meta")
	samplesBucket = []byte("samples")

	keyVersion   = []byte("version")
	keyDefaultK  = []byte("default_k")
	keyDimension = []byte("dimension")
	keyCount     = []byte("count")
)

// Train builds a model that stores a copy of every sample of ts. Later
// changes to ts do not reach the model.
func Train(ts knn.TrainingSet, defaultK int) (*knn.Model, error) {
	if ts.Len() == 0 {
		return nil, ErrEmptyCorpus
	}
	if defaultK < 1 {
		return nil, fmt.Errorf("%w: default k must be at least 1, got %d", knn.ErrInvalidParameter, defaultK)
	}
	if err := ts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", knn.ErrInvalidParameter, err)
	}

	m := &knn.Model{
		Samples:  make([]knn.Sample, ts.Len()),
		Labels:   make([]knn.Label, ts.Len()),
		DefaultK: defaultK,
	}
	for i, s := range ts.Samples {
		m.Samples[i] = slices.Clone(s)
	}
	copy(m.Labels, ts.Labels)
	return m, nil
}

// Save writes m to path, replacing any existing file atomically.
func Save(m *knn.Model, path string) (err error) {
	if m.Len() == 0 {
		return knn.ErrEmptyModel
	}
	if m.DefaultK < 1 {
		return fmt.Errorf("%w: default k must be at least 1, got %d", knn.ErrInvalidParameter, m.DefaultK)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary model file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	db, err := bolt.Open(tmpPath, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open temporary model file: %w", err)
	}
	if err = writeModel(db, m); err != nil {
		db.Close()
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err = db.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}

	if err = os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set model file mode: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace model file: %w", err)
	}
	return nil
}

func writeModel(db *bolt.DB, m *knn.Model) error {
	for start := 0; start < m.Len(); start += batchSize {
		end := min(start+batchSize, m.Len())
		err := db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(samplesBucket)
			if err != nil {
				return err
			}
			b.FillPercent = 1.0
			for i := start; i < end; i++ {
				if err := b.Put(indexKey(i), encodeSample(m.Labels[i], m.Samples[i])); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	// Metadata goes last so an interrupted write never looks complete.
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		for key, v := range map[string]int{
			string(keyVersion):   FormatVersion,
			string(keyDefaultK):  m.DefaultK,
			string(keyDimension): knn.SampleSize,
			string(keyCount):     m.Len(),
		} {
			if err := b.Put([]byte(key), uint32Bytes(uint32(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads a model saved by Save.
//
// Damaged files report ErrCorruptModel. A file shorter than its own page
// table, or one whose pages no longer parse, is rejected rather than read
// through the memory map.
func Load(path string) (*knn.Model, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, err
	}

	m, err := loadModel(path, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptModel, path, err)
	}
	return m, nil
}

// loadModel reads the model at path. Faults and panics raised while bbolt
// walks damaged pages come back as errors.
func loadModel(path string, size int64) (m *knn.Model, err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("unreadable page data: %v", r)
		}
	}()

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		if tx.Size() > size {
			return fmt.Errorf("file holds %d bytes, page table needs %d", size, tx.Size())
		}
		var err error
		m, err = readModel(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func readModel(tx *bolt.Tx) (*knn.Model, error) {
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return nil, errors.New("missing meta bucket")
	}
	get := func(key []byte) (int, error) {
		v := meta.Get(key)
		if len(v) != 4 {
			return 0, fmt.Errorf("missing or malformed %s", key)
		}
		return int(binary.BigEndian.Uint32(v)), nil
	}

	version, err := get(keyVersion)
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	dim, err := get(keyDimension)
	if err != nil {
		return nil, err
	}
	if dim != knn.SampleSize {
		return nil, fmt.Errorf("sample dimension %d, want %d", dim, knn.SampleSize)
	}
	defaultK, err := get(keyDefaultK)
	if err != nil {
		return nil, err
	}
	if defaultK < 1 {
		return nil, fmt.Errorf("default k %d out of range", defaultK)
	}
	count, err := get(keyCount)
	if err != nil {
		return nil, err
	}

	samples := tx.Bucket(samplesBucket)
	if samples == nil {
		return nil, errors.New("missing samples bucket")
	}

	prealloc := min(count, batchSize)
	m := &knn.Model{
		Samples:  make([]knn.Sample, 0, prealloc),
		Labels:   make([]knn.Label, 0, prealloc),
		DefaultK: defaultK,
	}
	err = samples.ForEach(func(k, v []byte) error {
		if len(k) != 4 || int(binary.BigEndian.Uint32(k)) != len(m.Samples) {
			return fmt.Errorf("unexpected sample key %x", k)
		}
		label, s, err := decodeSample(v)
		if err != nil {
			return fmt.Errorf("sample %d: %w", len(m.Samples), err)
		}
		m.Samples = append(m.Samples, s)
		m.Labels = append(m.Labels, label)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.Len() != count {
		return nil, fmt.Errorf("holds %d samples, metadata declares %d", m.Len(), count)
	}
	if count == 0 {
		return nil, errors.New("model holds no samples")
	}
	return m, nil
}

func indexKey(i int) []byte {
	return uint32Bytes(uint32(i))
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func encodeSample(label knn.Label, s knn.Sample) []byte {
	buf := make([]byte, 1+8*len(s))
	buf[0] = byte(label)
	for i, v := range s {
		binary.LittleEndian.PutUint64(buf[1+8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeSample(v []byte) (knn.Label, knn.Sample, error) {
	if len(v) != 1+8*knn.SampleSize {
		return 0, nil, fmt.Errorf("record has %d bytes, want %d", len(v), 1+8*knn.SampleSize)
	}
	label := knn.Label(v[0])
	if !label.Valid() {
		return 0, nil, fmt.Errorf("label %d out of range", v[0])
	}
	s := make(knn.Sample, knn.SampleSize)
	for i := range s {
		s[i] = math.Float64frombits(binary.LittleEndian.Uint64(v[1+8*i:]))
	}
	if err := s.Validate(); err != nil {
		return 0, nil, err
	}
	return label, s, nil
}
