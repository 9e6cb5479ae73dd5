package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrEndOfStream is returned when the device stops delivering frames.
	ErrEndOfStream = errors.New("camera: end of stream")

	// ErrNoFrame is returned for a single failed read on an open device.
	// The caller skips the tick and asks again.
	ErrNoFrame = errors.New("camera: no frame")
)

// Frame is one captured image in two forms. Display is a writable copy
// (mirrored when configured) for drawing; Analysis is the unmodified
// capture for detection. The caller owns both and must Close the frame.
type Frame struct {
	Display  gocv.Mat
	Analysis gocv.Mat
}

// Close releases both images.
func (f *Frame) Close() {
	f.Display.Close()
	f.Analysis.Close()
}

// Source reads frames from an OpenCV video device.
type Source struct {
	cfg    Config
	capt   *gocv.VideoCapture
	log    *slog.Logger
	mu     sync.Mutex
	misses int
	closed bool
}

// Open opens the device described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	capt, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("camera: open device %d: %w", cfg.Device, err)
	}
	if !capt.IsOpened() {
		capt.Close()
		return nil, fmt.Errorf("camera: device %d did not open", cfg.Device)
	}

	s := &Source{cfg: cfg, capt: capt, log: logger}
	s.apply(cfg)
	logger.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return s, nil
}

func (s *Source) apply(cfg Config) {
	s.capt.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	s.capt.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	s.capt.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
}

// Apply changes the capture parameters of the open device. The device
// index cannot be changed on an open source. Suitable as a
// Manager.OnConfigChange callback.
func (s *Source) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEndOfStream
	}
	if cfg.Device != s.cfg.Device {
		return fmt.Errorf("camera: cannot switch device %d -> %d while open", s.cfg.Device, cfg.Device)
	}
	s.cfg = cfg
	s.apply(cfg)
	return nil
}

// Config returns the configuration in effect.
func (s *Source) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Next reads one frame. A failed read on an open device returns
// ErrNoFrame until MaxMisses consecutive failures, then ErrEndOfStream.
func (s *Source) Next() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.capt.IsOpened() {
		return Frame{}, ErrEndOfStream
	}

	raw := gocv.NewMat()
	if ok := s.capt.Read(&raw); !ok || raw.Empty() {
		raw.Close()
		s.misses++
		if !s.capt.IsOpened() || s.misses > s.cfg.MaxMisses {
			s.log.Warn("camera stream ended", "misses", s.misses)
			return Frame{}, ErrEndOfStream
		}
		return Frame{}, ErrNoFrame
	}
	s.misses = 0

	display := gocv.NewMat()
	if s.cfg.Mirror {
		gocv.Flip(raw, &display, 1)
	} else {
		raw.CopyTo(&display)
	}
	return Frame{Display: display, Analysis: raw}, nil
}

// Close releases the device. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.capt.Close()
}
