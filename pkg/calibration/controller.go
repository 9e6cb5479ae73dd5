// Package calibration runs a personalization session: it captures eye
// images for every gaze label into a temporary dataset, fine-tunes the
// model on it and hands back the tuned model.
//
// The session is an explicit state machine advanced by Tick, one call per
// camera frame:
//
//	Setup -> AwaitStart -> { AwaitClass(l) -> Capturing(l) } for each label
//	      -> Retrain -> Cleanup -> Done
//
// Cancel in a waiting state aborts the session. Cancel while capturing
// keeps the frames taken so far and moves to the next label; a label left
// without samples makes Retrain fail. Assembly and training errors end in
// Failed. The dataset tree is removed on every
// path out of the session.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-eyecommander/pkg/dataset"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
)

// DefaultFramesPerClass is how many eye pairs are captured per label.
const DefaultFramesPerClass = 50

var (
	// ErrCancelled is the session error after the user aborts.
	ErrCancelled = errors.New("calibration: cancelled")

	// ErrIncomplete is returned when retraining would start without
	// samples for every label.
	ErrIncomplete = errors.New("calibration: dataset incomplete")
)

// Retrainer fine-tunes a model on the dataset rooted at root.
type Retrainer interface {
	Retrain(ctx context.Context, root string) (gaze.Model, error)
}

// RetrainFunc adapts a function to Retrainer.
type RetrainFunc func(ctx context.Context, root string) (gaze.Model, error)

// Retrain implements Retrainer.
func (f RetrainFunc) Retrain(ctx context.Context, root string) (gaze.Model, error) {
	return f(ctx, root)
}

// Config holds session parameters.
type Config struct {
	// Root is the dataset tree; it is wiped at setup and removed at the end.
	Root string

	// FramesPerClass is the number of eye pairs captured per label.
	FramesPerClass int

	// Codec writes the samples (default PNG).
	Codec dataset.Codec
}

// DefaultConfig returns a config rooted at ./temp/data.
func DefaultConfig() Config {
	return Config{
		Root:           "temp/data",
		FramesPerClass: DefaultFramesPerClass,
	}
}

// TickInput is what one frame contributes to the session.
type TickInput struct {
	Event trigger.Event

	// Eyes is nil when no eye pair was found in the frame.
	Eyes *gaze.EyePair
}

// Status is a snapshot of the session for status displays.
type Status struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Label    string `json:"label,omitempty"`
	Captured int    `json:"captured"`
	Quota    int    `json:"quota"`
	Error    string `json:"error,omitempty"`
}

// Controller is one calibration session. It is not reusable: start a new
// session with a new Controller.
type Controller struct {
	cfg       Config
	retrainer Retrainer
	log       *slog.Logger
	id        string

	mu       sync.Mutex
	state    State
	class    int // index into gaze.Labels()
	captured int
	batch    []*image.Gray
	dir      *dataset.Dir
	tuned    gaze.Model
	err      error
}

// New creates a session in StateSetup.
func New(cfg Config, retrainer Retrainer, logger *slog.Logger) *Controller {
	if cfg.FramesPerClass <= 0 {
		cfg.FramesPerClass = DefaultFramesPerClass
	}
	if cfg.Root == "" {
		cfg.Root = DefaultConfig().Root
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Controller{
		cfg:       cfg,
		retrainer: retrainer,
		log:       logger.With("session", id),
		id:        id,
		state:     StateSetup,
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Terminal reports whether the session has ended.
func (c *Controller) Terminal() bool {
	return c.State().Terminal()
}

// WantsEyes reports whether the next tick will use an eye pair. Callers
// can skip eye detection otherwise.
func (c *Controller) WantsEyes() bool {
	return c.State() == StateCapturing
}

// Label returns the label being announced or captured.
func (c *Controller) Label() (gaze.Label, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.labelLocked()
}

func (c *Controller) labelLocked() (gaze.Label, bool) {
	if c.state != StateAwaitClass && c.state != StateCapturing {
		return 0, false
	}
	return gaze.Labels()[c.class], true
}

// Err returns the error that ended the session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		ID:       c.id,
		State:    c.state,
		Captured: c.captured,
		Quota:    c.cfg.FramesPerClass,
	}
	if l, ok := c.labelLocked(); ok {
		s.Label = l.String()
	}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	return s
}

// Result returns the tuned model. It is only available in StateDone.
func (c *Controller) Result() (gaze.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDone {
		if c.err != nil {
			return nil, c.err
		}
		return nil, &StateError{Op: "result", State: c.state}
	}
	return c.tuned, nil
}

// Tick advances the session by one frame and returns the new state.
// Ticks on a terminal session do nothing.
func (c *Controller) Tick(ctx context.Context, in TickInput) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSetup:
		c.setup()

	case StateAwaitStart:
		switch in.Event {
		case trigger.Confirm:
			c.class = 0
			c.transition(StateAwaitClass)
		case trigger.Cancel:
			c.cancel()
		}

	case StateAwaitClass:
		switch in.Event {
		case trigger.Confirm:
			c.captured = 0
			c.batch = make([]*image.Gray, 0, 2*c.cfg.FramesPerClass)
			c.transition(StateCapturing)
		case trigger.Cancel:
			c.cancel()
		}

	case StateCapturing:
		if in.Event == trigger.Cancel {
			// ends this label's capture early; the session goes on
			c.log.Info("capture stopped early", "label", gaze.Labels()[c.class], "frames", c.captured)
			c.commitClass()
			break
		}
		if in.Eyes == nil || in.Eyes.Left == nil || in.Eyes.Right == nil {
			break
		}
		c.batch = append(c.batch, in.Eyes.Left, in.Eyes.Right)
		c.captured++
		if c.captured >= c.cfg.FramesPerClass {
			c.commitClass()
		}

	case StateRetrain:
		c.retrain(ctx)

	case StateCleanup:
		c.cleanup()
	}
	return c.state
}

// Close removes the dataset tree whatever the state. Non-terminal
// sessions end as cancelled. Safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.err = ErrCancelled
		c.transition(StateCancelled)
	}
	return c.release()
}

func (c *Controller) setup() {
	dir, err := dataset.Create(c.cfg.Root, c.cfg.Codec)
	if err != nil {
		c.fail(err)
		return
	}
	c.dir = dir
	c.log.Info("calibration dataset ready", "root", dir.Root(), "frames_per_class", c.cfg.FramesPerClass)
	c.transition(StateAwaitStart)
}

// commitClass writes the captured batch and moves to the next label.
func (c *Controller) commitClass() {
	label := gaze.Labels()[c.class]
	paths, err := c.dir.Write(label, c.batch)
	if err != nil {
		c.fail(err)
		return
	}
	c.log.Info("class captured", "label", label, "frames", c.captured, "images", len(paths))
	c.batch = nil
	c.captured = 0

	c.class++
	if c.class < gaze.NumLabels {
		c.transition(StateAwaitClass)
		return
	}
	c.class = gaze.NumLabels - 1
	c.transition(StateRetrain)
}

func (c *Controller) retrain(ctx context.Context) {
	if c.dir == nil || !c.dir.Complete() {
		c.fail(ErrIncomplete)
		return
	}
	if c.retrainer == nil {
		c.fail(errors.New("calibration: no retrainer"))
		return
	}
	tuned, err := c.retrainer.Retrain(ctx, c.dir.Root())
	if err == nil && tuned == nil {
		err = gaze.ErrNilModel
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.tuned = tuned
	c.transition(StateCleanup)
}

func (c *Controller) cleanup() {
	if err := c.release(); err != nil {
		c.log.Warn("dataset cleanup failed", "error", err)
	}
	c.transition(StateDone)
}

func (c *Controller) cancel() {
	c.err = ErrCancelled
	c.batch = nil
	if err := c.release(); err != nil {
		c.log.Warn("dataset cleanup failed", "error", err)
	}
	c.transition(StateCancelled)
}

func (c *Controller) fail(err error) {
	c.err = fmt.Errorf("calibration: %s: %w", c.state, err)
	c.batch = nil
	if rerr := c.release(); rerr != nil {
		c.log.Warn("dataset cleanup failed", "error", rerr)
	}
	c.log.Error("calibration failed", "state", c.state, "error", err)
	c.transition(StateFailed)
}

func (c *Controller) release() error {
	if c.dir != nil {
		return c.dir.Close()
	}
	return nil
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	attrs := []any{"from", from, "to", to}
	if l, ok := c.labelLocked(); ok {
		attrs = append(attrs, "label", l)
	}
	c.log.Debug("calibration state", attrs...)
}
