package vision

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-eyecommander/pkg/overlay"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
)

// Draw paints scene onto img, scaling reference coordinates to the
// image size.
func Draw(img *gocv.Mat, scene overlay.Scene) {
	size := image.Pt(img.Cols(), img.Rows())
	f := overlay.ScaleFactor(size)
	thick := func(t int) int { return max(1, int(float64(t)*f+0.5)) }

	for _, b := range scene.Boxes {
		r := image.Rectangle{Min: overlay.Scale(b.Rect.Min, size), Max: overlay.Scale(b.Rect.Max, size)}
		gocv.Rectangle(img, r, b.Color, thick(b.Thickness))
	}
	for _, t := range scene.Texts {
		gocv.PutText(img, t.Content, overlay.Scale(t.Origin, size), hershey(t.Font), t.Scale*f, t.Color, thick(t.Thickness))
	}
}

func hershey(f overlay.Font) gocv.HersheyFont {
	if f == overlay.FontPlain {
		return gocv.FontHersheyPlain
	}
	return gocv.FontHersheySimplex
}

// Window shows frames in a desktop window and polls the keyboard.
type Window struct {
	win   *gocv.Window
	keys  trigger.Keys
	delay int
	tap   *FrameTap
}

// NewWindow opens a window titled name. delay is the key poll timeout in
// milliseconds. tap may be nil.
func NewWindow(name string, delay int, tap *FrameTap) *Window {
	if delay <= 0 {
		delay = 1
	}
	return &Window{
		win:   gocv.NewWindow(name),
		keys:  trigger.DefaultKeys(),
		delay: delay,
		tap:   tap,
	}
}

// Show draws scene onto display, presents it and returns the key event.
func (w *Window) Show(display *gocv.Mat, scene overlay.Scene) (trigger.Event, error) {
	Draw(display, scene)
	w.tap.Offer(*display)
	w.win.IMShow(*display)
	return w.keys.Event(w.win.WaitKey(w.delay)), nil
}

// Close closes the window.
func (w *Window) Close() error {
	return w.win.Close()
}

// Headless draws frames without showing them. Events come from elsewhere.
type Headless struct {
	tap *FrameTap
}

// NewHeadless creates a headless renderer. tap may be nil.
func NewHeadless(tap *FrameTap) *Headless {
	return &Headless{tap: tap}
}

// Show draws scene onto display and hands it to the tap.
func (h *Headless) Show(display *gocv.Mat, scene overlay.Scene) (trigger.Event, error) {
	if h.tap != nil {
		Draw(display, scene)
		h.tap.Offer(*display)
	}
	return trigger.None, nil
}

// Close implements the renderer interface.
func (h *Headless) Close() error { return nil }

// FrameTap keeps the latest rendered frame as JPEG, encoding at most
// once per interval.
type FrameTap struct {
	interval time.Duration

	// OnFrame receives each newly encoded frame. Set before the first
	// Offer; it must not retain the slice past the call.
	OnFrame func(jpeg []byte)

	mu   sync.RWMutex
	last time.Time
	jpeg []byte
}

// NewFrameTap creates a tap. A zero interval encodes every frame.
func NewFrameTap(interval time.Duration) *FrameTap {
	return &FrameTap{interval: interval}
}

// Offer encodes frame if the interval has elapsed.
func (t *FrameTap) Offer(frame gocv.Mat) {
	if t == nil || frame.Empty() {
		return
	}
	data, ok := t.encode(frame)
	if ok && t.OnFrame != nil {
		t.OnFrame(data)
	}
}

// encode stores a new JPEG and returns a copy for OnFrame.
func (t *FrameTap) encode(frame gocv.Mat) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return nil, false
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, false
	}
	defer buf.Close()
	t.jpeg = append(t.jpeg[:0], buf.GetBytes()...)
	t.last = now
	if t.OnFrame == nil {
		return nil, true
	}
	return append([]byte(nil), t.jpeg...), true
}

// JPEG returns a copy of the latest frame, or an error before the first.
func (t *FrameTap) JPEG() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.jpeg) == 0 {
		return nil, fmt.Errorf("vision: no frame yet")
	}
	return append([]byte(nil), t.jpeg...), nil
}
