// Package dataset manages the temporary on-disk calibration dataset:
// one directory per gaze label holding numbered grayscale samples.
//
// The tree is a scoped resource. Create always starts from an empty tree
// and Close always removes it, so callers defer Close right after Create.
// A marker file identifies a tree as a dataset; a non-empty directory
// without it is never cleared.
package dataset

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// MarkerName is the file Create leaves at the root of every tree.
const MarkerName = ".eyecommander-dataset"

var (
	// ErrNotOwned is returned for a non-empty directory that is not a dataset tree.
	ErrNotOwned = errors.New("dataset: directory is not a calibration dataset")

	// ErrAssembly is returned when the tree cannot be cleared, created or written.
	ErrAssembly = errors.New("dataset: assembly failed")

	// ErrClosed is returned when writing to a removed tree.
	ErrClosed = errors.New("dataset: closed")

	// ErrTooSmall is returned when a split cannot place a sample in each subset.
	ErrTooSmall = errors.New("dataset: too small to split")
)

// Dir is a freshly built dataset tree.
type Dir struct {
	root  string
	codec Codec

	mu     sync.Mutex
	counts [gaze.NumLabels]int
	closed bool
}

// Create removes a previous tree at root, then creates root with one
// empty subdirectory per label. root must be absent, empty or a tree left
// by an earlier Create. A nil codec uses PNG.
func Create(root string, codec Codec) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", ErrAssembly)
	}
	if codec == nil {
		codec = PNGCodec{}
	}
	if err := Remove(root); err != nil {
		return nil, fmt.Errorf("%w: clear %s: %w", ErrAssembly, root, err)
	}
	for _, l := range gaze.Labels() {
		if err := os.MkdirAll(filepath.Join(root, l.String()), 0o755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("%w: mkdir %s: %v", ErrAssembly, l, err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, MarkerName), nil, 0o644); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("%w: marker: %v", ErrAssembly, err)
	}
	return &Dir{root: root, codec: codec}, nil
}

// Remove deletes the dataset tree at root. A missing root is not an
// error; a directory that is neither empty nor marked is ErrNotOwned
// and left untouched.
func Remove(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is a file", ErrNotOwned, root)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if _, err := os.Stat(filepath.Join(root, MarkerName)); err != nil {
			return fmt.Errorf("%w: %s", ErrNotOwned, root)
		}
	}
	return os.RemoveAll(root)
}

// Root returns the tree root.
func (d *Dir) Root() string { return d.root }

// Codec returns the codec samples are written with.
func (d *Dir) Codec() Codec { return d.codec }

// ClassDir returns the directory holding samples for l.
func (d *Dir) ClassDir(l gaze.Label) string {
	return filepath.Join(d.root, l.String())
}

// SampleName returns the file name of the n-th sample (1-based) for l.
func SampleName(l gaze.Label, n int, ext string) string {
	return fmt.Sprintf("%s%d.%s", l, n, ext)
}

// Write stores images as the next numbered samples of l, in order.
// It returns the paths written.
func (d *Dir) Write(l gaze.Label, images []*image.Gray) ([]string, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: invalid label %d", ErrAssembly, int(l))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		n := d.counts[l] + 1
		path := filepath.Join(d.ClassDir(l), SampleName(l, n, d.codec.Ext()))
		if err := d.codec.Encode(path, img); err != nil {
			return paths, fmt.Errorf("%w: write %s: %v", ErrAssembly, path, err)
		}
		d.counts[l] = n
		paths = append(paths, path)
	}
	return paths, nil
}

// Count returns how many samples of l have been written.
func (d *Dir) Count(l gaze.Label) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !l.Valid() {
		return 0
	}
	return d.counts[l]
}

// Complete reports whether every label has at least one sample.
func (d *Dir) Complete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.counts {
		if c == 0 {
			return false
		}
	}
	return true
}

// Close removes the whole tree. It is safe to call more than once.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("dataset: remove %s: %w", d.root, err)
	}
	return nil
}
