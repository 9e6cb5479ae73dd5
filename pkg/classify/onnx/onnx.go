// Package onnx loads classifier models whose backbone is an ONNX graph
// run through OpenCV DNN.
//
// A model directory holds:
//
//	backbone.onnx  feature extractor, output = penultimate activations
//	head.json      final dense layer (see classify.Head)
package onnx

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-eyecommander/pkg/classify"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// File names inside a model directory.
const (
	BackboneFile = "backbone.onnx"
	HeadFile     = "head.json"
)

// Config holds backbone configuration.
type Config struct {
	ModelPath   string  // path to the ONNX backbone
	OutputLayer string  // layer to read features from; empty means the graph output
	InputWidth  int     // model input width
	InputHeight int     // model input height
	Scale       float64 // pixel scale applied before inference
}

// DefaultConfig returns defaults for a 100x100 grayscale backbone.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/base/" + BackboneFile,
		InputWidth:  100,
		InputHeight: 100,
		Scale:       1.0 / 255.0,
	}
}

// Backbone runs an ONNX feature extractor through OpenCV DNN.
type Backbone struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex // Protects inference
}

// NewBackbone loads the ONNX graph at cfg.ModelPath.
func NewBackbone(cfg Config) (*Backbone, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load ONNX backbone from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if cfg.Scale == 0 {
		cfg.Scale = 1.0 / 255.0
	}
	return &Backbone{net: net, config: cfg}, nil
}

// Features implements classify.Backbone. The whole batch goes through
// one forward pass.
func (b *Backbone) Features(batch []*image.Gray) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	mats := make([]gocv.Mat, 0, len(batch))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for i, img := range batch {
		m, err := gocv.ImageGrayToMatGray(img)
		if err != nil {
			return nil, fmt.Errorf("convert image %d: %w", i, err)
		}
		mats = append(mats, m)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	blob := gocv.NewMat()
	defer blob.Close()
	gocv.BlobFromImages(mats, &blob, b.config.Scale,
		image.Pt(b.config.InputWidth, b.config.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), false, false, gocv.MatTypeCV32F)

	b.net.SetInput(blob, "")
	out := b.net.Forward(b.config.OutputLayer)
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read backbone output: %w", err)
	}
	if len(data) == 0 || len(data)%len(batch) != 0 {
		return nil, fmt.Errorf("%w: %d output values for a batch of %d", classify.ErrShape, len(data), len(batch))
	}

	dim := len(data) / len(batch)
	feats := make([][]float32, len(batch))
	for i := range feats {
		feats[i] = append([]float32(nil), data[i*dim:(i+1)*dim]...)
	}
	return feats, nil
}

// Close releases the network.
func (b *Backbone) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net.Close()
}

// Load reads a model directory. width and height are the model input
// size; outputLayer selects the feature layer.
func Load(dir string, width, height int, outputLayer string) (*classify.Model, error) {
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(dir, BackboneFile)
	cfg.OutputLayer = outputLayer
	if width > 0 && height > 0 {
		cfg.InputWidth, cfg.InputHeight = width, height
	}

	head, err := classify.LoadHead(filepath.Join(dir, HeadFile))
	if err != nil {
		return nil, err
	}
	if head.Classes() != gaze.NumLabels {
		return nil, fmt.Errorf("%w: %s has %d classes, want %d", classify.ErrShape, dir, head.Classes(), gaze.NumLabels)
	}

	backbone, err := NewBackbone(cfg)
	if err != nil {
		return nil, err
	}
	m, err := classify.New(filepath.Base(dir), backbone, head)
	if err != nil {
		backbone.Close()
		return nil, err
	}
	return m, nil
}
