// EyeCommander - webcam gaze direction controller
// Calibrates a per-user model, then emits a smoothed gaze direction per frame
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-eyecommander/internal/config"
	"github.com/teslashibe/go-eyecommander/internal/log"
	"github.com/teslashibe/go-eyecommander/pkg/commander"
)

var version = "dev"

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)

	app, err := commander.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the file and environment configuration and applies
// command line flags on top.
func parseFlags() (config.Config, error) {
	configPath := flag.String("config", "", "YAML config file")
	noCalibrate := flag.Bool("no-calibrate", false, "Skip calibration and run on the base model")
	headless := flag.Bool("headless", false, "Run without a display window")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	modelDir := flag.String("model-dir", "", "Directory holding backbone.onnx and head.json")
	device := flag.Int("camera", -1, "Camera device index")
	port := flag.String("port", "", "HTTP API port")
	noWeb := flag.Bool("no-web", false, "Disable the HTTP API")
	broker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("eyecommander", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.LoadEnvConfig(); err != nil {
		return cfg, err
	}

	if *noCalibrate {
		cfg.Calibration.Enabled = false
	}
	if *headless {
		cfg.Headless = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *modelDir != "" {
		cfg.Model.Dir = *modelDir
	}
	if *device >= 0 {
		cfg.Camera.Device = *device
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	return cfg, nil
}
