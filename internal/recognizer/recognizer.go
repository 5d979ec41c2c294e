package recognizer

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/ironsheep/digit-tools-mcp/internal/corpus"
	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/normalize"
	"github.com/ironsheep/digit-tools-mcp/internal/store"
)

// Engine is an immutable model together with the index built over it.
type Engine struct {
	Model      *knn.Model
	Kind       knn.IndexKind
	index      knn.Index
	classifier *knn.Classifier
}

// NewEngine builds the index named by kind over m.
func NewEngine(m *knn.Model, kind knn.IndexKind) (*Engine, error) {
	if m.Len() == 0 {
		return nil, knn.ErrEmptyModel
	}
	idx, err := knn.NewIndex(kind, m)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Model:      m,
		Kind:       kind,
		index:      idx,
		classifier: knn.NewClassifier(idx),
	}, nil
}

// Index returns the search index over the engine's model.
func (e *Engine) Index() knn.Index {
	return e.index
}

// Classify labels a canonical sample. A k of zero selects the model default.
func (e *Engine) Classify(s knn.Sample, k int) (knn.Result, error) {
	if k == 0 {
		k = e.Model.DefaultK
	}
	return e.classifier.Classify(s, k)
}

// Info summarizes the model served by a Handle.
type Info struct {
	Loaded      bool              `json:"loaded"`
	Samples     int               `json:"samples"`
	DefaultK    int               `json:"default_k"`
	Index       knn.IndexKind     `json:"index"`
	LabelCounts map[knn.Label]int `json:"label_counts,omitempty"`
}

// Handle owns the engine used to answer recognition requests.
type Handle struct {
	kind   knn.IndexKind
	engine atomic.Pointer[Engine]

	// retrain serializes Retrain and LoadFile so concurrent rebuilds do not
	// race to the model file.
	retrain sync.Mutex
}

// NewHandle returns an empty handle that builds indexes of the given kind.
func NewHandle(kind knn.IndexKind) *Handle {
	return &Handle{kind: kind}
}

// Kind returns the index kind used for new engines.
func (h *Handle) Kind() knn.IndexKind {
	return h.kind
}

// Engine returns the current engine, or nil if none is loaded.
func (h *Handle) Engine() *Engine {
	return h.engine.Load()
}

// Swap installs e and returns the engine it replaced.
func (h *Handle) Swap(e *Engine) *Engine {
	return h.engine.Swap(e)
}

// Use builds an engine over m and installs it.
func (h *Handle) Use(m *knn.Model) error {
	e, err := NewEngine(m, h.kind)
	if err != nil {
		return err
	}
	h.Swap(e)
	return nil
}

func (h *Handle) current() (*Engine, error) {
	e := h.engine.Load()
	if e == nil {
		return nil, knn.ErrEmptyModel
	}
	return e, nil
}

// Recognize normalizes raw and classifies it with k neighbors. A k of zero
// selects the model default. normalize.ErrNoDigitDetected is returned unchanged
// when the picture holds no digit.
func (h *Handle) Recognize(raw *image.Gray, k int) (knn.Result, error) {
	e, err := h.current()
	if err != nil {
		return knn.Result{}, err
	}
	s, err := normalize.Normalize(raw)
	if err != nil {
		return knn.Result{}, err
	}
	return e.Classify(s, k)
}

// ClassifySample classifies an already canonical sample.
func (h *Handle) ClassifySample(s knn.Sample, k int) (knn.Result, error) {
	e, err := h.current()
	if err != nil {
		return knn.Result{}, err
	}
	return e.Classify(s, k)
}

// Info describes the current model.
func (h *Handle) Info() Info {
	e := h.engine.Load()
	if e == nil {
		return Info{Index: h.Kind()}
	}
	return Info{
		Loaded:      true,
		Samples:     e.Model.Len(),
		DefaultK:    e.Model.DefaultK,
		Index:       e.Kind,
		LabelCounts: e.Model.LabelCounts(),
	}
}

// LoadFile loads the model at path and installs it.
func (h *Handle) LoadFile(path string) error {
	h.retrain.Lock()
	defer h.retrain.Unlock()

	m, err := store.Load(path)
	if err != nil {
		return err
	}
	return h.Use(m)
}

// Retrain trains a model from ts, saves it to path when path is not empty, and
// installs it. On any error the current engine is left in place.
func (h *Handle) Retrain(ts knn.TrainingSet, defaultK int, path string) (Info, error) {
	h.retrain.Lock()
	defer h.retrain.Unlock()

	m, err := store.Train(ts, defaultK)
	if err != nil {
		return Info{}, err
	}
	e, err := NewEngine(m, h.kind)
	if err != nil {
		return Info{}, err
	}
	if path != "" {
		if err := store.Save(m, path); err != nil {
			return Info{}, err
		}
	}
	h.Swap(e)
	return h.Info(), nil
}

// Source names a pair of IDX archives to train from.
type Source struct {
	Images string
	Labels string
}

// Configured reports whether both archive paths are set.
func (s Source) Configured() bool {
	return s.Images != "" && s.Labels != ""
}

// LoadOrTrain installs the model at path. When the file does not exist and src
// is configured, a model is trained from src, saved to path and installed
// instead. It reports whether training took place.
func (h *Handle) LoadOrTrain(path string, src Source, defaultK int) (bool, error) {
	err := h.LoadFile(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrModelNotFound) || !src.Configured() {
		return false, err
	}

	ts, err := corpus.LoadTrainingSet(src.Images, src.Labels)
	if err != nil {
		return false, fmt.Errorf("failed to read training corpus: %w", err)
	}
	if _, err := h.Retrain(ts, defaultK, path); err != nil {
		return false, err
	}
	return true, nil
}
