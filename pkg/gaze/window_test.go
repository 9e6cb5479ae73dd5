package gaze

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pred(l Label, p float32) Prediction {
	return NewPrediction(OneHot(l, p))
}

func TestNewPrediction_Argmax(t *testing.T) {
	p := NewPrediction([]float32{0.1, 0.2, 0.6, 0.05, 0.05})
	assert.Equal(t, Left, p.Class)
	assert.InDelta(t, 0.6, p.Prob(Left), 1e-6)

	// first maximum wins
	p = NewPrediction([]float32{0.4, 0.4, 0.1, 0.05, 0.05})
	assert.Equal(t, Center, p.Class)
}

func TestWindow_Capacity(t *testing.T) {
	for _, n := range []int{0, 1, 5, 11, 12, 13, 40} {
		w := NewWindow(12)
		var inserted []Prediction
		for i := 0; i < n; i++ {
			p := pred(Label(i%NumLabels), 0.5+float32(i)/100)
			inserted = append(inserted, p)
			w.Insert(p)
		}

		want := inserted
		if len(want) > 12 {
			want = want[len(want)-12:]
		}
		require.Equal(t, len(want), w.Len(), "n=%d", n)
		got := w.Records()
		for i := range want {
			assert.Equal(t, want[i].Class, got[i].Class, "n=%d i=%d", n, i)
			assert.Equal(t, want[i].Probs, got[i].Probs, "n=%d i=%d", n, i)
		}
	}
}

func TestWindow_InsertManyAtOnce(t *testing.T) {
	w := NewWindow(3)
	w.Insert(pred(Up, 0.9), pred(Down, 0.9), pred(Left, 0.9), pred(Right, 0.9), pred(Center, 0.9))

	got := w.Records()
	require.Len(t, got, 3)
	assert.Equal(t, []Label{Left, Right, Center}, []Label{got[0].Class, got[1].Class, got[2].Class})
}

func TestWindow_FullGate(t *testing.T) {
	w := NewWindow(12)
	for i := 0; i < 11; i++ {
		w.Insert(pred(Center, 0.9))
		assert.False(t, w.Full(), "after %d inserts", i+1)
	}
	w.Insert(pred(Center, 0.9))
	assert.True(t, w.Full())

	w.Insert(pred(Up, 0.9), pred(Up, 0.9))
	assert.True(t, w.Full(), "stays full after eviction")
	assert.Equal(t, 12, w.Len())
}

func TestWindow_PairsFillAtSixFrames(t *testing.T) {
	w := NewWindow(12)
	for frame := 1; frame <= 6; frame++ {
		w.Insert(pred(Left, 0.8), pred(Left, 0.7))
		assert.Equal(t, frame == 6, w.Full(), "frame %d", frame)
	}
}

func TestWindow_MajorityIsOrderIndependent(t *testing.T) {
	base := []Prediction{
		pred(Up, 0.9), pred(Up, 0.8), pred(Up, 0.7), pred(Up, 0.6),
		pred(Left, 0.99), pred(Left, 0.99), pred(Left, 0.99),
		pred(Center, 0.5), pred(Down, 0.5), pred(Right, 0.5),
	}
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		recs := make([]Prediction, len(base))
		copy(recs, base)
		rng.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })

		w := NewWindow(len(recs))
		w.Insert(recs...)
		d, ok := w.Predict()
		require.True(t, ok)
		assert.Equal(t, Up, d.Label, "trial %d", trial)
		assert.InDelta(t, 0.75, d.Confidence, 1e-6, "trial %d", trial)
	}
}

func TestWindow_TieGoesToLowestLabel(t *testing.T) {
	tests := []struct {
		name string
		recs []Prediction
		want Label
	}{
		{"up vs down", []Prediction{pred(Up, 0.9), pred(Down, 0.6), pred(Up, 0.9), pred(Down, 0.6)}, Down},
		{"right vs left", []Prediction{pred(Right, 0.9), pred(Left, 0.6)}, Left},
		{"center vs up", []Prediction{pred(Up, 0.99), pred(Center, 0.3)}, Center},
		{"three way", []Prediction{pred(Up, 0.9), pred(Right, 0.9), pred(Left, 0.9)}, Left},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(len(tt.recs))
			w.Insert(tt.recs...)
			for i := 0; i < 3; i++ {
				d, ok := w.Predict()
				require.True(t, ok)
				assert.Equal(t, tt.want, d.Label)
			}
		})
	}
}

func TestWindow_ConfidenceOnlyOverWinners(t *testing.T) {
	w := NewWindow(12)
	w.Insert(
		Prediction{Class: Center, Probs: []float32{0.9, 0.01, 0.01, 0.04, 0.04}},
		Prediction{Class: Center, Probs: []float32{0.7, 0.1, 0.1, 0.05, 0.05}},
		Prediction{Class: Up, Probs: []float32{0.0, 0.0, 0.0, 0.01, 0.99}},
	)
	d, ok := w.Predict()
	require.True(t, ok)
	assert.Equal(t, Center, d.Label)
	assert.InDelta(t, 0.8, d.Confidence, 1e-6)
}

func TestWindow_PredictIsFreshAfterEviction(t *testing.T) {
	w := NewWindow(3)
	w.Insert(pred(Left, 0.9), pred(Left, 0.9), pred(Right, 0.9))
	d, _ := w.Predict()
	assert.Equal(t, Left, d.Label)

	w.Insert(pred(Right, 0.8), pred(Right, 0.6))
	d, _ = w.Predict()
	assert.Equal(t, Right, d.Label)
	assert.InDelta(t, (0.9+0.8+0.6)/3, d.Confidence, 1e-6)
}

func TestWindow_EmptyAndReset(t *testing.T) {
	w := NewWindow(4)
	_, ok := w.Predict()
	assert.False(t, ok)

	w.Insert(pred(Up, 0.9))
	w.Reset()
	assert.Equal(t, 0, w.Len())
	_, ok = w.Predict()
	assert.False(t, ok)
}

func TestNewWindow_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultWindowSize, NewWindow(0).Cap())
	assert.Equal(t, 7, NewWindow(7).Cap())
}
