package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/ironsheep/digit-tools-mcp/internal/config"
	"github.com/ironsheep/digit-tools-mcp/internal/corpus"
	"github.com/ironsheep/digit-tools-mcp/internal/evaluate"
	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/store"
)

type Config struct {
	imagesPath     string
	labelsPath     string
	outPath        string
	defaultK       int
	index          string
	testImagesPath string
	testLabelsPath string
	evalKs         string
	limit          int
	workers        int
	packDir        string
}

var cfg Config

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	flag.StringVar(&cfg.imagesPath, "images", "", "Path to IDX3 training images (optionally gzipped)")
	flag.StringVar(&cfg.labelsPath, "labels", "", "Path to IDX1 training labels (optionally gzipped)")
	flag.StringVar(&cfg.outPath, "out", config.DefaultModelPath, "Model file to write")
	flag.IntVar(&cfg.defaultK, "k", config.DefaultTrainK, "Neighbor count recorded in the model")
	flag.StringVar(&cfg.index, "index", string(knn.IndexBruteForce), "Search index for evaluation: brute or kdtree")
	flag.StringVar(&cfg.testImagesPath, "test-images", "", "Path to IDX3 test images; enables evaluation")
	flag.StringVar(&cfg.testLabelsPath, "test-labels", "", "Path to IDX1 test labels")
	flag.StringVar(&cfg.evalKs, "eval-k", "3,5,7,9", "Comma separated neighbor counts to evaluate")
	flag.IntVar(&cfg.limit, "limit", 0, "Evaluate only the first N test samples")
	flag.IntVar(&cfg.workers, "workers", runtime.NumCPU(), "Number of evaluation workers")
	flag.StringVar(&cfg.packDir, "pack", "", "Directory of pictures in per-digit subdirectories (0-9); packed into -images and -labels before training")
	flag.Parse()

	log.Printf("%+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if cfg.imagesPath == "" || cfg.labelsPath == "" {
		return fmt.Errorf("both -images and -labels are required")
	}
	kind, err := knn.ParseIndexKind(cfg.index)
	if err != nil {
		return err
	}
	ks, err := parseKs(cfg.evalKs)
	if err != nil {
		return err
	}

	if cfg.packDir != "" {
		if err := packArchives(cfg.packDir, cfg.imagesPath, cfg.labelsPath); err != nil {
			return err
		}
	}

	training, err := corpus.LoadTrainingSet(cfg.imagesPath, cfg.labelsPath)
	if err != nil {
		return err
	}
	log.Println("Loaded training set", training.Len())

	model, err := store.Train(training, cfg.defaultK)
	if err != nil {
		return err
	}
	if err := store.Save(model, cfg.outPath); err != nil {
		return err
	}
	log.Printf("Saved model to %s: %d samples, default k %d", cfg.outPath, model.Len(), model.DefaultK)
	counts := model.LabelCounts()
	for l := knn.Label(0); l <= knn.MaxLabel; l++ {
		log.Printf("  digit %d: %d samples", l, counts[l])
	}

	if cfg.testImagesPath == "" {
		return nil
	}
	test, err := corpus.LoadTrainingSet(cfg.testImagesPath, cfg.testLabelsPath)
	if err != nil {
		return err
	}
	log.Println("Loaded test set", test.Len())

	idx, err := knn.NewIndex(kind, model)
	if err != nil {
		return err
	}
	reports, err := evaluate.Run(ctx, idx, test, evaluate.Options{
		Ks:       ks,
		Workers:  cfg.workers,
		Limit:    cfg.limit,
		Progress: progressLogger(),
	})
	if err != nil {
		return err
	}

	for _, r := range reports {
		log.Printf("k=%d: %d/%d correct, accuracy %.2f%%", r.K, r.Correct, r.Total, r.Accuracy*100)
	}
	if best, ok := evaluate.Best(reports); ok {
		log.Printf("Best k=%d with accuracy %.2f%%", best.K, best.Accuracy*100)
	}
	return nil
}

// progressLogger logs evaluation progress every 10%.
func progressLogger() func(done, total int) {
	next := 1
	return func(done, total int) {
		if total == 0 {
			return
		}
		for next <= 10 && done*10 >= next*total {
			log.Printf("Evaluated %d%% (%d/%d)", next*10, done, total)
			next++
		}
	}
}

func parseKs(s string) ([]int, error) {
	var ks []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		k, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid -eval-k value %q: %w", f, err)
		}
		ks = append(ks, k)
	}
	return ks, nil
}
