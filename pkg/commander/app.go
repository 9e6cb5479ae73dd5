// Package commander wires camera, eye extraction, the classifier and the
// calibration session into the gaze controller's frame loop.
package commander

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-eyecommander/internal/config"
	"github.com/teslashibe/go-eyecommander/internal/log"
	"github.com/teslashibe/go-eyecommander/pkg/calibration"
	"github.com/teslashibe/go-eyecommander/pkg/camera"
	"github.com/teslashibe/go-eyecommander/pkg/classify"
	"github.com/teslashibe/go-eyecommander/pkg/classify/onnx"
	"github.com/teslashibe/go-eyecommander/pkg/dataset"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/mqttout"
	"github.com/teslashibe/go-eyecommander/pkg/overlay"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
	"github.com/teslashibe/go-eyecommander/pkg/vision"
	"github.com/teslashibe/go-eyecommander/pkg/web"
)

// WindowTitle is the title of the desktop window.
const WindowTitle = "EyeCommander"

// FrameSource delivers camera frames.
type FrameSource interface {
	Next() (camera.Frame, error)
	Close() error
}

// EyeExtractor turns an analysis frame into a normalized eye pair.
type EyeExtractor interface {
	Extract(frame gocv.Mat) (gaze.EyePair, error)
}

// Renderer draws a scene onto the display frame, presents it and
// returns any key event.
type Renderer interface {
	Show(display *gocv.Mat, scene overlay.Scene) (trigger.Event, error)
	Close() error
}

// Sink receives debounced decisions.
type Sink interface {
	Publish(d gaze.Decision) error
}

// StatusReporter receives controller status updates.
type StatusReporter interface {
	UpdateStatus(update func(*web.Status))
}

// Components are the collaborators of an App. Init builds them from
// config; tests supply their own.
type Components struct {
	Source    FrameSource
	Eyes      EyeExtractor
	Renderer  Renderer
	Base      gaze.Model
	Retrainer calibration.Retrainer
	Codec     dataset.Codec
	Sinks     []Sink
	Status    StatusReporter
	Events    *trigger.Queue

	// Closers are released by Shutdown in reverse order.
	Closers []io.Closer
}

// App is the gaze controller.
type App struct {
	config config.Config
	log    *slog.Logger

	comp      Components
	selector  *gaze.Selector
	predictor *gaze.Predictor

	last       *gaze.Label
	lastStatus time.Time
}

// New creates an application with the given configuration.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		log:    log.With("component", "commander"),
	}, nil
}

// Init builds every component from the configuration.
// Call this after New() and before Run().
func (a *App) Init() error {
	cfg := a.config
	var comp Components
	comp.Events = trigger.NewQueue(16)
	fail := func(err error) error {
		closeAll(comp.Closers, a.log)
		return err
	}

	base, err := onnx.Load(cfg.Model.Dir, cfg.Model.ImageWidth, cfg.Model.ImageHeight, cfg.Model.OutputLayer)
	if err != nil {
		return fail(fmt.Errorf("base model: %w", err))
	}
	comp.Base = base
	comp.Closers = append(comp.Closers, base)
	a.log.Info("base model loaded", "dir", cfg.Model.Dir)

	trainer := classify.NewTrainer(classify.TrainConfig{
		Epochs:       cfg.Calibration.Epochs,
		BatchSize:    cfg.Calibration.BatchSize,
		LearningRate: cfg.Calibration.LearningRate,
		Split: dataset.Split{
			Validation: cfg.Calibration.ValidationSplit,
			Seed:       cfg.Calibration.Seed,
		},
		Codec: codecFor(cfg.Calibration.Format),
	}, log.With("component", "trainer"))
	comp.Retrainer = classify.NewTuner(trainer, base)
	comp.Codec = trainer.Config().Codec

	locator, err := vision.NewLocator(vision.LocatorConfig{
		ModelPath:      cfg.Detector.ModelPath,
		ScoreThreshold: cfg.Detector.ScoreThreshold,
		EyeScale:       cfg.Detector.EyeScale,
	})
	if err != nil {
		return fail(fmt.Errorf("eye locator: %w", err))
	}
	comp.Closers = append(comp.Closers, locator)
	comp.Eyes = vision.NewExtractor(locator, vision.NewPreprocessor(cfg.Model.ImageWidth, cfg.Model.ImageHeight))

	src, err := camera.Open(cfg.Camera, log.With("component", "camera"))
	if err != nil {
		return fail(err)
	}
	comp.Source = src
	comp.Closers = append(comp.Closers, src)
	cams := camera.NewManager(src.Config())
	cams.OnConfigChange = src.Apply

	tap := vision.NewFrameTap(200 * time.Millisecond)
	if cfg.Headless {
		comp.Renderer = vision.NewHeadless(tap)
	} else {
		comp.Renderer = vision.NewWindow(WindowTitle, 5, tap)
	}
	comp.Closers = append(comp.Closers, comp.Renderer)

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web.Port, cams, log.With("component", "web"))
		srv.OnEvent = comp.Events.Push
		srv.OnCaptureFrame = tap.JPEG
		tap.OnFrame = srv.PublishFrame
		srv.StartAsync()
		comp.Sinks = append(comp.Sinks, srv)
		comp.Status = srv
		comp.Closers = append(comp.Closers, closerFunc(srv.Shutdown))
	}

	if cfg.MQTT.Enabled() {
		pub := mqttout.New(cfg.MQTT, log.With("component", "mqtt"))
		pub.OnEvent = comp.Events.Push
		if err := pub.Connect(); err != nil {
			a.log.Warn("MQTT disabled", "error", err)
		} else {
			comp.Sinks = append(comp.Sinks, pub)
			comp.Closers = append(comp.Closers, pub)
		}
	}

	return a.Assemble(comp)
}

// Assemble installs prebuilt components.
func (a *App) Assemble(comp Components) error {
	if comp.Source == nil || comp.Eyes == nil || comp.Renderer == nil {
		return errors.New("commander: source, eyes and renderer are required")
	}
	if comp.Events == nil {
		comp.Events = trigger.NewQueue(16)
	}
	selector, err := gaze.NewSelector(comp.Base)
	if err != nil {
		return fmt.Errorf("commander: %w", err)
	}
	a.comp = comp
	a.selector = selector
	a.predictor = gaze.NewPredictor(selector, gaze.NewWindow(a.config.WindowSize))
	return nil
}

// Selector returns the model selector.
func (a *App) Selector() *gaze.Selector { return a.selector }

// Events returns the queue external inputs push events into.
func (a *App) Events() *trigger.Queue { return a.comp.Events }

// Run optionally calibrates, then runs the live loop until the user
// cancels, ctx is done or the camera stops. A failed or cancelled
// calibration leaves the base model active.
func (a *App) Run(ctx context.Context) error {
	if a.predictor == nil {
		return errors.New("commander: Run called before Init")
	}
	defer a.report(func(s *web.Status) { s.Phase = web.PhaseStopped })
	defer a.removeDataDir()

	if a.config.Calibration.Enabled {
		a.report(func(s *web.Status) { s.Phase = web.PhaseCalibrating })
		if err := a.calibrate(ctx); err != nil {
			a.log.Warn("calibration not applied, using base model", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	a.report(func(s *web.Status) {
		s.Phase = web.PhaseLive
		s.Model = a.selector.Active().Role()
		s.CalibrationDone = a.selector.CalibrationDone()
		s.WindowSize = a.predictor.Window().Cap()
	})
	a.log.Info("live loop started", "model", a.selector.Active().Role(), "window", a.predictor.Window().Cap())
	return a.live(ctx)
}

// Shutdown releases every component.
func (a *App) Shutdown() {
	closeAll(a.comp.Closers, a.log)
	a.comp.Closers = nil
}

// removeDataDir clears a calibration tree left by an earlier run.
func (a *App) removeDataDir() {
	if err := dataset.Remove(a.config.Calibration.DataDir); err != nil {
		a.log.Warn("calibration data dir not removed", "dir", a.config.Calibration.DataDir, "error", err)
	}
}

func (a *App) report(update func(*web.Status)) {
	if a.comp.Status != nil {
		a.comp.Status.UpdateStatus(update)
	}
}

func codecFor(format string) dataset.Codec {
	if format == "png" {
		return dataset.PNGCodec{}
	}
	return vision.JPEGCodec{}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}
