package gaze

import (
	"image"
	"sync"
)

// MockModel implements Model for testing.
type MockModel struct {
	// InferFunc is called when Infer is invoked.
	// If nil, every image is classified as Center with probability 1.
	InferFunc func(batch []*image.Gray) ([][]float32, error)

	mu    sync.Mutex
	calls []int
}

// NewMockModel returns a model that always predicts label with prob.
// The remaining mass is spread evenly over the other labels.
func NewMockModel(label Label, prob float32) *MockModel {
	return &MockModel{
		InferFunc: func(batch []*image.Gray) ([][]float32, error) {
			out := make([][]float32, len(batch))
			for i := range batch {
				out[i] = OneHot(label, prob)
			}
			return out, nil
		},
	}
}

// Infer records the batch size and calls InferFunc.
func (m *MockModel) Infer(batch []*image.Gray) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, len(batch))
	m.mu.Unlock()

	if m.InferFunc != nil {
		return m.InferFunc(batch)
	}
	out := make([][]float32, len(batch))
	for i := range batch {
		out[i] = OneHot(Center, 1)
	}
	return out, nil
}

// Calls returns the batch size of every Infer call, in order.
func (m *MockModel) Calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Infer was called.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// OneHot builds a probability vector giving prob to label and spreading
// the rest evenly.
func OneHot(label Label, prob float32) []float32 {
	rest := (1 - prob) / float32(NumLabels-1)
	v := make([]float32, NumLabels)
	for i := range v {
		v[i] = rest
	}
	if label.Valid() {
		v[label] = prob
	}
	return v
}
