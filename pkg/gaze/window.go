package gaze

// Prediction is one classifier result for one eye image.
type Prediction struct {
	Class Label
	Probs []float32
}

// NewPrediction builds a prediction from a probability vector, taking the
// first maximum as the predicted class.
func NewPrediction(probs []float32) Prediction {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return Prediction{Class: Label(best), Probs: probs}
}

// Prob returns the probability assigned to l, or 0 if the vector is short.
func (p Prediction) Prob(l Label) float64 {
	if int(l) < 0 || int(l) >= len(p.Probs) {
		return 0
	}
	return float64(p.Probs[l])
}

// Decision is the smoothed output of a Window.
type Decision struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// DefaultWindowSize is the number of predictions voted over.
const DefaultWindowSize = 12

// Window is a fixed-capacity FIFO of recent predictions.
//
// Eviction is purely count based. With two predictions per detected
// frame the smoothing latency is capacity/(2*fps): a 12-slot window at
// 30 detected frames per second spans 0.2s, at 10 fps it spans 0.6s.
//
// Window is not safe for concurrent use.
type Window struct {
	capacity int
	records  []Prediction
}

// NewWindow creates a window holding at most capacity predictions.
// A non-positive capacity falls back to DefaultWindowSize.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		capacity: capacity,
		records:  make([]Prediction, 0, capacity+2),
	}
}

// Insert appends records in order, evicting the oldest ones beyond capacity.
func (w *Window) Insert(records ...Prediction) {
	w.records = append(w.records, records...)
	if over := len(w.records) - w.capacity; over > 0 {
		n := copy(w.records, w.records[over:])
		clear(w.records[n:])
		w.records = w.records[:n]
	}
}

// Full reports whether the window holds exactly capacity records.
// Consumers should ignore Predict until the window is full.
func (w *Window) Full() bool {
	return len(w.records) == w.capacity
}

// Len returns the number of records held.
func (w *Window) Len() int {
	return len(w.records)
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return w.capacity
}

// Records returns a copy of the records, oldest first.
func (w *Window) Records() []Prediction {
	out := make([]Prediction, len(w.records))
	copy(out, w.records)
	return out
}

// Reset drops every record.
func (w *Window) Reset() {
	clear(w.records)
	w.records = w.records[:0]
}

// Predict returns the majority class over the window and the mean
// probability of that class among the records that voted for it.
// Ties go to the lowest label index. ok is false on an empty window.
func (w *Window) Predict() (d Decision, ok bool) {
	if len(w.records) == 0 {
		return Decision{}, false
	}

	var counts [NumLabels]int
	for _, r := range w.records {
		if r.Class.Valid() {
			counts[r.Class]++
		}
	}

	winner := Center
	for l := Center + 1; int(l) < NumLabels; l++ {
		if counts[l] > counts[winner] {
			winner = l
		}
	}
	if counts[winner] == 0 {
		return Decision{}, false
	}

	var sum float64
	for _, r := range w.records {
		if r.Class == winner {
			sum += r.Prob(winner)
		}
	}
	return Decision{Label: winner, Confidence: sum / float64(counts[winner])}, true
}
