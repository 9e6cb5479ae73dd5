// Package classify implements the eye-image classifier: a frozen
// feature-extracting backbone followed by a trainable linear head.
//
// Fine-tuning only ever trains a copy of the head, so the base model a
// Trainer starts from is never modified.
package classify

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrShape is returned when features, head or outputs disagree in size.
	ErrShape = errors.New("classify: shape mismatch")

	// ErrTraining wraps every fine-tuning failure.
	ErrTraining = errors.New("classify: training failed")

	// ErrDiverged is returned when the training loss stops being finite.
	ErrDiverged = errors.New("classify: loss diverged")
)

// Backbone turns a batch of eye images into one feature vector each.
type Backbone interface {
	Features(batch []*image.Gray) ([][]float32, error)
	Close() error
}

// BackboneFunc adapts a function to Backbone.
type BackboneFunc func(batch []*image.Gray) ([][]float32, error)

// Features implements Backbone.
func (f BackboneFunc) Features(batch []*image.Gray) ([][]float32, error) { return f(batch) }

// Close implements Backbone.
func (BackboneFunc) Close() error { return nil }

// Model is a backbone plus a head. It implements gaze.Model.
type Model struct {
	backbone Backbone
	head     *Head
	name     string
}

// New builds a model. The head is used as is; callers must not mutate it
// afterwards.
func New(name string, backbone Backbone, head *Head) (*Model, error) {
	if backbone == nil {
		return nil, errors.New("classify: nil backbone")
	}
	if head == nil {
		return nil, errors.New("classify: nil head")
	}
	if err := head.Validate(); err != nil {
		return nil, err
	}
	return &Model{backbone: backbone, head: head, name: name}, nil
}

// Name identifies the model in logs.
func (m *Model) Name() string { return m.name }

// Head returns a copy of the model head.
func (m *Model) Head() *Head { return m.head.Clone() }

// Backbone returns the shared feature extractor.
func (m *Model) Backbone() Backbone { return m.backbone }

// Infer returns class probabilities for every image in batch.
func (m *Model) Infer(batch []*image.Gray) ([][]float32, error) {
	feats, err := m.backbone.Features(batch)
	if err != nil {
		return nil, fmt.Errorf("classify: %s: features: %w", m.name, err)
	}
	if len(feats) != len(batch) {
		return nil, fmt.Errorf("%w: %d feature vectors for %d images", ErrShape, len(feats), len(batch))
	}
	out := make([][]float32, len(feats))
	for i, f := range feats {
		logits, err := m.head.Logits(f)
		if err != nil {
			return nil, err
		}
		out[i] = toFloat32(Softmax(logits))
	}
	return out, nil
}

// Close releases the backbone. Tuned models share their base model's
// backbone, so only the base model should be closed.
func (m *Model) Close() error {
	return m.backbone.Close()
}
