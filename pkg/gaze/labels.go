// Package gaze turns per-frame eye classifier outputs into a stable
// gaze direction.
//
// It owns the fixed label ordering shared by every other package, the
// sliding prediction window used for majority-vote smoothing, and the
// selector that routes inference to the base or the tuned model.
package gaze

import (
	"fmt"
	"strings"
)

// Label is a gaze direction. Its integer value is the classifier output
// index, the dataset directory order and the tie-break order.
type Label int

// The label order is alphabetical so that a directory-sorted dataset
// and the model output indices agree.
const (
	Center Label = iota
	Down
	Left
	Right
	Up
)

// NumLabels is the number of gaze directions.
const NumLabels = int(Up) + 1

var labelNames = [NumLabels]string{
	Center: "center",
	Down:   "down",
	Left:   "left",
	Right:  "right",
	Up:     "up",
}

// Labels returns every label in index order.
func Labels() []Label {
	out := make([]Label, NumLabels)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// String returns the lowercase name used for directories and display.
func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("label(%d)", int(l))
	}
	return labelNames[l]
}

// Valid reports whether l is one of the five directions.
func (l Label) Valid() bool {
	return l >= 0 && int(l) < NumLabels
}

// MarshalText encodes the label by name.
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("gaze: invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a label name.
func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel maps a name (case-insensitive) to its label.
func ParseLabel(name string) (Label, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range labelNames {
		if s == n {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("gaze: unknown label %q", name)
}
