package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Head is the final dense layer of a model: a classes×dim weight matrix
// and one bias per class. It is the only part that fine-tuning changes.
type Head struct {
	w *mat.Dense
	b *mat.VecDense
}

// headFile is the on-disk form of a head.
type headFile struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// NewHead creates a zero-initialised head. classes and dim must be positive.
func NewHead(classes, dim int) *Head {
	return &Head{
		w: mat.NewDense(classes, dim, nil),
		b: mat.NewVecDense(classes, nil),
	}
}

// NewHeadFrom builds a head from weight rows and biases.
func NewHeadFrom(weights [][]float64, bias []float64) (*Head, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: head has no classes", ErrShape)
	}
	if len(bias) != len(weights) {
		return nil, fmt.Errorf("%w: %d bias values for %d classes", ErrShape, len(bias), len(weights))
	}
	dim := len(weights[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: head has zero input size", ErrShape)
	}
	data := make([]float64, 0, len(weights)*dim)
	for k, row := range weights {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: weight row %d has %d values, want %d", ErrShape, k, len(row), dim)
		}
		data = append(data, row...)
	}
	return &Head{
		w: mat.NewDense(len(weights), dim, data),
		b: mat.NewVecDense(len(bias), append([]float64(nil), bias...)),
	}, nil
}

// LoadHead reads a head from a JSON file.
func LoadHead(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read head: %w", err)
	}
	var h Head
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("classify: parse head %s: %w", path, err)
	}
	return &h, nil
}

// Save writes the head as JSON.
func (h *Head) Save(path string) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MarshalJSON encodes the head as weight rows and biases.
func (h *Head) MarshalJSON() ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	classes, _ := h.w.Dims()
	f := headFile{
		Weights: make([][]float64, classes),
		Bias:    append([]float64(nil), h.b.RawVector().Data...),
	}
	for k := range f.Weights {
		f.Weights[k] = mat.Row(nil, k, h.w)
	}
	return json.Marshal(f)
}

// UnmarshalJSON decodes and shape-checks a head.
func (h *Head) UnmarshalJSON(data []byte) error {
	var f headFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	parsed, err := NewHeadFrom(f.Weights, f.Bias)
	if err != nil {
		return err
	}
	*h = *parsed
	return nil
}

// Classes returns the number of output classes.
func (h *Head) Classes() int {
	if h.w == nil {
		return 0
	}
	r, _ := h.w.Dims()
	return r
}

// Dim returns the input feature size.
func (h *Head) Dim() int {
	if h.w == nil {
		return 0
	}
	_, c := h.w.Dims()
	return c
}

// Weights returns a read-only view of the weight matrix.
func (h *Head) Weights() mat.Matrix { return h.w }

// Bias returns a read-only view of the bias vector.
func (h *Head) Bias() mat.Vector { return h.b }

// SetWeight sets the weight of feature d for class k.
func (h *Head) SetWeight(k, d int, v float64) { h.w.Set(k, d, v) }

// SetBias sets the bias of class k.
func (h *Head) SetBias(k int, v float64) { h.b.SetVec(k, v) }

// Validate checks the head has weights and a bias per class.
func (h *Head) Validate() error {
	if h.w == nil || h.b == nil {
		return fmt.Errorf("%w: head has no classes", ErrShape)
	}
	if h.b.Len() != h.Classes() {
		return fmt.Errorf("%w: %d bias values for %d classes", ErrShape, h.b.Len(), h.Classes())
	}
	return nil
}

// Clone returns a deep copy.
func (h *Head) Clone() *Head {
	return &Head{w: mat.DenseCopyOf(h.w), b: mat.VecDenseCopyOf(h.b)}
}

// Logits computes W·f + b.
func (h *Head) Logits(f []float32) ([]float64, error) {
	if len(f) != h.Dim() {
		return nil, fmt.Errorf("%w: %d features, head expects %d", ErrShape, len(f), h.Dim())
	}
	var out mat.VecDense
	out.MulVec(h.w, mat.NewVecDense(len(f), toFloat64(f)))
	out.AddVec(&out, h.b)
	return out.RawVector().Data, nil
}

// Softmax converts logits to probabilities.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxL)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
