// Package evaluate measures classifier accuracy over a labelled test corpus.
package evaluate

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

// DefaultKs are the neighbor counts compared when none are given.
var DefaultKs = []int{3, 5, 7, 9}

// Options controls an evaluation run.
type Options struct {
	// Ks lists the neighbor counts to evaluate. Empty means DefaultKs.
	Ks []int

	// Workers is the number of classifying goroutines. Zero means NumCPU.
	Workers int

	// Limit evaluates only the first Limit samples when positive.
	Limit int

	// Progress, when set, is called from a single goroutine after each sample.
	Progress func(done, total int)
}

// Report is the accuracy of one neighbor count.
type Report struct {
	K        int     `json:"k"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`

	// Confusion counts predictions: Confusion[actual][predicted].
	Confusion [knn.MaxLabel + 1][knn.MaxLabel + 1]int `json:"confusion"`
}

type outcome struct {
	actual    knn.Label
	predicted []knn.Label
}

// Run classifies every test sample against idx once per configured k and
// returns one Report per k in ascending order. A single search with the largest
// k serves all smaller ones, since neighbors come back nearest first.
func Run(ctx context.Context, idx knn.Index, test knn.TrainingSet, opts Options) ([]Report, error) {
	ks, err := checkKs(opts.Ks, idx.Len())
	if err != nil {
		return nil, err
	}
	if len(test.Samples) != len(test.Labels) {
		return nil, fmt.Errorf("%w: %d test samples but %d labels", knn.ErrInvalidParameter, len(test.Samples), len(test.Labels))
	}
	total := test.Len()
	if opts.Limit > 0 && opts.Limit < total {
		total = opts.Limit
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: test set is empty", knn.ErrInvalidParameter)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxK := ks[len(ks)-1]

	reports := make([]Report, len(ks))
	for i, k := range ks {
		reports[i] = Report{K: k, Total: total}
	}

	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	results := make(chan outcome)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- i:
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for i := range jobs {
				neighbors, err := idx.Search(test.Samples[i], maxK)
				if err != nil {
					return fmt.Errorf("test sample %d: %w", i, err)
				}
				res := outcome{actual: test.Labels[i], predicted: make([]knn.Label, len(ks))}
				for j, k := range ks {
					res.predicted[j] = knn.Vote(neighbors[:k])
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case results <- res:
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		wg.Wait()
		close(results)
		return nil
	})

	g.Go(func() error {
		done := 0
		for res := range results {
			for j := range reports {
				p := res.predicted[j]
				if p == res.actual {
					reports[j].Correct++
				}
				if res.actual.Valid() {
					reports[j].Confusion[res.actual][p]++
				}
			}
			done++
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range reports {
		reports[i].Accuracy = float64(reports[i].Correct) / float64(total)
	}
	return reports, nil
}

// Best returns the report with the highest accuracy, preferring the smaller k
// on ties.
func Best(reports []Report) (Report, bool) {
	if len(reports) == 0 {
		return Report{}, false
	}
	best := reports[0]
	for _, r := range reports[1:] {
		if r.Accuracy > best.Accuracy || (r.Accuracy == best.Accuracy && r.K < best.K) {
			best = r
		}
	}
	return best, true
}

// checkKs returns the sorted, de-duplicated neighbor counts to evaluate.
func checkKs(ks []int, n int) ([]int, error) {
	if n == 0 {
		return nil, knn.ErrEmptyModel
	}
	if len(ks) == 0 {
		ks = DefaultKs
	}
	seen := make(map[int]bool)
	var out []int
	for _, k := range ks {
		if k < 1 || k > n {
			return nil, fmt.Errorf("%w: k=%d must be between 1 and %d", knn.ErrInvalidParameter, k, n)
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out, nil
}
