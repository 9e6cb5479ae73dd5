// Package trigger defines the two discrete user inputs that drive
// calibration and the live loop, and a queue that merges them from
// several sources (keyboard, web API).
package trigger

import (
	"fmt"
	"strings"
)

// Event is a polled user input.
type Event int

const (
	None Event = iota
	Confirm
	Cancel
)

func (e Event) String() string {
	switch e {
	case Confirm:
		return "confirm"
	case Cancel:
		return "cancel"
	default:
		return "none"
	}
}

// Parse maps "confirm" or "cancel" to its event.
func Parse(name string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "confirm":
		return Confirm, nil
	case "cancel":
		return Cancel, nil
	}
	return None, fmt.Errorf("trigger: unknown event %q", name)
}

// Keys maps key codes, as returned by an OpenCV window poll, to events.
type Keys struct {
	Confirm []int
	Cancel  []int
}

// Key codes used by DefaultKeys.
const (
	KeyEsc   = 27
	KeyEnter = 13
	KeySpace = 32
	KeyQ     = 'q'
)

// DefaultKeys maps Space/Enter to Confirm and Esc/q to Cancel.
func DefaultKeys() Keys {
	return Keys{
		Confirm: []int{KeySpace, KeyEnter},
		Cancel:  []int{KeyEsc, KeyQ},
	}
}

// Event maps a key code to an event. Negative codes mean no key.
func (k Keys) Event(code int) Event {
	if code < 0 {
		return None
	}
	code &= 0xFF
	for _, c := range k.Cancel {
		if c == code {
			return Cancel
		}
	}
	for _, c := range k.Confirm {
		if c == code {
			return Confirm
		}
	}
	return None
}

// Queue buffers events pushed from other goroutines until the frame
// loop polls them.
type Queue struct {
	ch chan Event
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 8
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push enqueues e without blocking. It reports false if the queue is full.
func (q *Queue) Push(e Event) bool {
	if e == None {
		return true
	}
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// Poll returns the oldest pending event, or None.
func (q *Queue) Poll() Event {
	select {
	case e := <-q.ch:
		return e
	default:
		return None
	}
}

// Merge returns local if it is an event, otherwise the next queued one.
// Cancel always wins so an abort is never lost behind a confirm.
func (q *Queue) Merge(local Event) Event {
	if local == Cancel {
		return Cancel
	}
	queued := q.Poll()
	if queued != None {
		if local == Confirm && queued != Cancel {
			q.Push(queued)
			return Confirm
		}
		return queued
	}
	return local
}
