package main

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ironsheep/digit-tools-mcp/internal/corpus"
	"github.com/ironsheep/digit-tools-mcp/internal/imaging"
	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/normalize"
)

// packDirectory canonicalizes the pictures under dir, one subdirectory per
// digit (dir/0 ... dir/9), and returns them as an image set with labels.
// Pictures without a digit are skipped.
func packDirectory(dir string) (*corpus.ImageSet, []knn.Label, error) {
	cache := imaging.NewImageCache()
	var images []*image.Gray
	var labels []knn.Label

	for l := knn.Label(0); l <= knn.MaxLabel; l++ {
		sub := filepath.Join(dir, strconv.Itoa(int(l)))
		entries, err := os.ReadDir(sub)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(sub, e.Name())
			gray, err := cache.LoadGray(path)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", path, err)
			}
			canon, err := normalize.Canonical(gray)
			if errors.Is(err, normalize.ErrNoDigitDetected) {
				log.Printf("Skipping %s: %v", path, err)
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", path, err)
			}
			cache.Evict(path)
			images = append(images, canon)
			labels = append(labels, l)
		}
	}

	if len(images) == 0 {
		return nil, nil, fmt.Errorf("no digit pictures found under %s", dir)
	}
	set, err := corpus.NewImageSet(images)
	if err != nil {
		return nil, nil, err
	}
	return set, labels, nil
}

// packArchives writes the pictures under dir as IDX archives at imagesPath and
// labelsPath.
func packArchives(dir, imagesPath, labelsPath string) error {
	set, labels, err := packDirectory(dir)
	if err != nil {
		return err
	}
	if err := corpus.WriteArchives(imagesPath, labelsPath, set, labels); err != nil {
		return err
	}
	log.Printf("Packed %d pictures from %s into %s and %s", set.Len(), dir, imagesPath, labelsPath)
	return nil
}
