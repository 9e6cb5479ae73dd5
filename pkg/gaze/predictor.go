package gaze

import (
	"errors"
	"fmt"
	"image"
)

// ErrBadOutput is returned when a model answers with the wrong shape.
var ErrBadOutput = errors.New("gaze: unexpected model output")

// Predictor feeds both eyes of a frame through the active model in one
// batch and smooths the results in a single shared window.
type Predictor struct {
	models *Selector
	window *Window
}

// NewPredictor creates a predictor over models and window.
func NewPredictor(models *Selector, window *Window) *Predictor {
	return &Predictor{models: models, window: window}
}

// Window returns the smoothing window.
func (p *Predictor) Window() *Window { return p.window }

// Selector returns the model selector.
func (p *Predictor) Selector() *Selector { return p.models }

// EyePair holds the normalized crops of both eyes from one frame.
type EyePair struct {
	Left  *image.Gray
	Right *image.Gray
}

// Batch assembles the two-image model input, left eye first.
func Batch(left, right *image.Gray) []*image.Gray {
	return []*image.Gray{left, right}
}

// Predict classifies both eyes, inserts both predictions into the window
// and returns the window decision. full reports whether the window had
// enough history for the decision to be trusted.
func (p *Predictor) Predict(left, right *image.Gray) (d Decision, full bool, err error) {
	out, err := p.models.Infer(Batch(left, right))
	if err != nil {
		return Decision{}, false, fmt.Errorf("gaze: infer: %w", err)
	}
	if len(out) != 2 {
		return Decision{}, false, fmt.Errorf("%w: %d results for a batch of 2", ErrBadOutput, len(out))
	}
	for i, probs := range out {
		if len(probs) != NumLabels {
			return Decision{}, false, fmt.Errorf("%w: result %d has %d classes, want %d",
				ErrBadOutput, i, len(probs), NumLabels)
		}
	}

	p.window.Insert(NewPrediction(out[0]), NewPrediction(out[1]))

	d, _ = p.window.Predict()
	return d, p.window.Full(), nil
}

// PredictPair is Predict for an EyePair.
func (p *Predictor) PredictPair(eyes EyePair) (Decision, bool, error) {
	return p.Predict(eyes.Left, eyes.Right)
}
