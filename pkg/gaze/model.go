package gaze

import (
	"errors"
	"image"
	"sync"
)

// Model classifies a batch of normalized eye images. It returns one
// probability vector of length NumLabels per input image.
type Model interface {
	Infer(batch []*image.Gray) ([][]float32, error)
}

// Role says which model is serving predictions.
type Role int

const (
	RoleBase Role = iota
	RoleTuned
)

func (r Role) String() string {
	if r == RoleTuned {
		return "tuned"
	}
	return "base"
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

var (
	// ErrNilModel is returned when a nil model is given to the selector.
	ErrNilModel = errors.New("gaze: nil model")

	// ErrAlreadyTuned is returned when a second tuned model is promoted.
	ErrAlreadyTuned = errors.New("gaze: tuned model already active")
)

// ActiveModel is either Base(model) or Tuned(model). The zero value is
// not usable; build it with Base or Tuned.
type ActiveModel struct {
	role  Role
	model Model
}

// Base wraps the pretrained model.
func Base(m Model) (ActiveModel, error) {
	if m == nil {
		return ActiveModel{}, ErrNilModel
	}
	return ActiveModel{role: RoleBase, model: m}, nil
}

// Tuned wraps a personalized model.
func Tuned(m Model) (ActiveModel, error) {
	if m == nil {
		return ActiveModel{}, ErrNilModel
	}
	return ActiveModel{role: RoleTuned, model: m}, nil
}

// Role returns which variant this is.
func (a ActiveModel) Role() Role { return a.role }

// Model returns the wrapped model.
func (a ActiveModel) Model() Model { return a.model }

// Selector routes inference to the active model. It starts on the base
// model and switches to a tuned model at most once per session.
//
// The mutex only guards reads from status handlers; inference itself
// stays on the frame loop.
type Selector struct {
	mu     sync.RWMutex
	active ActiveModel
	base   Model
}

// NewSelector creates a selector serving base.
func NewSelector(base Model) (*Selector, error) {
	active, err := Base(base)
	if err != nil {
		return nil, err
	}
	return &Selector{active: active, base: base}, nil
}

// Active returns the current variant.
func (s *Selector) Active() ActiveModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// BaseModel returns the pretrained model regardless of the active variant.
func (s *Selector) BaseModel() Model {
	return s.base
}

// CalibrationDone reports whether the tuned model is active.
func (s *Selector) CalibrationDone() bool {
	return s.Active().Role() == RoleTuned
}

// Promote makes tuned the active model. It fails if tuned is nil or a
// tuned model is already active; in both cases the selector is unchanged.
func (s *Selector) Promote(tuned Model) error {
	next, err := Tuned(tuned)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.role == RoleTuned {
		return ErrAlreadyTuned
	}
	s.active = next
	return nil
}

// Infer runs batch through the active model.
func (s *Selector) Infer(batch []*image.Gray) ([][]float32, error) {
	return s.Active().Model().Infer(batch)
}
