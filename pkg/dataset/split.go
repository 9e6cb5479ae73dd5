package dataset

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// Default split parameters.
const (
	DefaultValidationSplit = 0.1
	DefaultSeed            = 123
)

// Sample is one labeled file of a dataset.
type Sample struct {
	Path  string
	Label gaze.Label
}

// Split controls how Load partitions the samples.
type Split struct {
	Validation float64 // fraction held out for validation, in (0, 1)
	Seed       int64
}

// DefaultSplit returns a 90/10 split with the fixed seed.
func DefaultSplit() Split {
	return Split{Validation: DefaultValidationSplit, Seed: DefaultSeed}
}

// Scan lists every sample under root. Directories must be label names;
// files within a directory are sorted by name, directories by label.
func Scan(root, ext string) ([]Sample, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		l, err := gaze.ParseLabel(e.Name())
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", root, err)
		}
		files, err := filepath.Glob(filepath.Join(root, e.Name(), "*."+ext))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, f := range files {
			samples = append(samples, Sample{Path: f, Label: l})
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Label < samples[j].Label })
	return samples, nil
}

// Partition shuffles samples with the split seed and holds out the last
// Validation fraction. The same input and split always give the same result.
func Partition(samples []Sample, s Split) (train, val []Sample, err error) {
	if s.Validation <= 0 || s.Validation >= 1 {
		return nil, nil, fmt.Errorf("dataset: validation split %v out of range (0, 1)", s.Validation)
	}
	nVal := int(s.Validation * float64(len(samples)))
	if nVal < 1 || len(samples)-nVal < 1 {
		return nil, nil, fmt.Errorf("%w: %d samples at validation split %v", ErrTooSmall, len(samples), s.Validation)
	}

	shuffled := make([]Sample, len(samples))
	copy(shuffled, samples)
	rng := rand.New(rand.NewSource(s.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	cut := len(shuffled) - nVal
	return shuffled[:cut], shuffled[cut:], nil
}

// Load scans root and partitions it.
func Load(root string, codec Codec, s Split) (train, val []Sample, err error) {
	if codec == nil {
		codec = PNGCodec{}
	}
	samples, err := Scan(root, codec.Ext())
	if err != nil {
		return nil, nil, err
	}
	return Partition(samples, s)
}
