package commander

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-eyecommander/pkg/calibration"
	"github.com/teslashibe/go-eyecommander/pkg/camera"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/overlay"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
	"github.com/teslashibe/go-eyecommander/pkg/vision"
	"github.com/teslashibe/go-eyecommander/pkg/web"
)

// statusInterval bounds how often the live loop pushes status updates
// when the decision does not change.
const statusInterval = time.Second

// errStopped ends a loop without being an error to the caller.
var errStopped = errors.New("commander: stopped")

// step acquires one frame, lets fn look at it and build the overlay,
// presents it and returns the merged user event.
func (a *App) step(fn func(f *camera.Frame) overlay.Scene) (trigger.Event, error) {
	frame, err := a.comp.Source.Next()
	if errors.Is(err, camera.ErrNoFrame) {
		return a.comp.Events.Merge(trigger.None), nil
	}
	if errors.Is(err, camera.ErrEndOfStream) {
		return trigger.None, errStopped
	}
	if err != nil {
		return trigger.None, err
	}
	defer frame.Close()

	scene := fn(&frame)
	ev, err := a.comp.Renderer.Show(&frame.Display, scene)
	if err != nil {
		return trigger.None, fmt.Errorf("commander: render: %w", err)
	}
	return a.comp.Events.Merge(ev), nil
}

// extract returns the eye pair of frame, or nil on a detection miss.
func (a *App) extract(f *camera.Frame) *gaze.EyePair {
	pair, err := a.comp.Eyes.Extract(f.Analysis)
	if err != nil {
		if !errors.Is(err, vision.ErrNoEyes) {
			a.log.Debug("eye extraction failed", "error", err)
		}
		return nil
	}
	return &pair
}

// calibrate runs one calibration session and promotes its model. The
// dataset tree is removed however the session ends.
func (a *App) calibrate(ctx context.Context) error {
	ctrl := calibration.New(calibration.Config{
		Root:           a.config.Calibration.DataDir,
		FramesPerClass: a.config.Calibration.FramesPerClass,
		Codec:          a.comp.Codec,
	}, a.comp.Retrainer, a.log)
	defer ctrl.Close()

	a.log.Info("calibration started", "session", ctrl.ID())
	for !ctrl.Terminal() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var eyes *gaze.EyePair
		ev, err := a.step(func(f *camera.Frame) overlay.Scene {
			if ctrl.WantsEyes() {
				eyes = a.extract(f)
			}
			return ctrl.Overlay()
		})
		if errors.Is(err, errStopped) {
			return camera.ErrEndOfStream
		}
		if err != nil {
			return err
		}

		before := ctrl.State()
		after := ctrl.Tick(ctx, calibration.TickInput{Event: ev, Eyes: eyes})
		if after != before || after == calibration.StateCapturing {
			status := ctrl.Status()
			a.report(func(s *web.Status) { s.Calibration = &status })
		}
	}

	tuned, err := ctrl.Result()
	if err != nil {
		return err
	}
	if err := a.selector.Promote(tuned); err != nil {
		return err
	}
	a.log.Info("calibration done, tuned model active", "session", ctrl.ID())
	return nil
}

// live classifies every frame with detected eyes and shows the smoothed
// direction once the window is full.
func (a *App) live(ctx context.Context) error {
	for ctx.Err() == nil {
		ev, err := a.step(func(f *camera.Frame) overlay.Scene {
			scene := overlay.Guide(overlay.Neutral)
			eyes := a.extract(f)
			if eyes == nil {
				return scene
			}
			d, full, err := a.predictor.PredictPair(*eyes)
			if err != nil {
				a.log.Warn("prediction failed", "error", err)
				return scene
			}
			if full {
				scene = scene.Add(overlay.DirectionLabel(d.Label))
				a.decided(d)
			}
			return scene
		})
		if errors.Is(err, errStopped) {
			a.log.Info("camera stream ended")
			return nil
		}
		if err != nil {
			return err
		}
		if ev == trigger.Cancel {
			a.log.Info("stopped by user")
			return nil
		}
	}
	return nil
}

// decided publishes d when its label differs from the last published one.
func (a *App) decided(d gaze.Decision) {
	changed := a.last == nil || *a.last != d.Label
	if changed {
		label := d.Label
		a.last = &label
		a.log.Debug("direction", "label", d.Label, "confidence", d.Confidence)
		for _, s := range a.comp.Sinks {
			if err := s.Publish(d); err != nil {
				a.log.Warn("publish failed", "error", err)
			}
		}
	}

	if changed || time.Since(a.lastStatus) >= statusInterval {
		a.lastStatus = time.Now()
		fill := a.predictor.Window().Len()
		a.report(func(s *web.Status) {
			s.Decision = &d
			s.WindowFill = fill
		})
	}
}
