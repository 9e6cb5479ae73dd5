// Package config loads go-eyecommander settings from defaults, an
// optional YAML file and environment variables, in that order. Flags are
// applied on top in cmd/eyecommander.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-eyecommander/pkg/camera"
	"github.com/teslashibe/go-eyecommander/pkg/mqttout"
)

// ModelConfig locates the base classifier.
type ModelConfig struct {
	Dir         string `yaml:"dir"`          // holds backbone.onnx and head.json
	OutputLayer string `yaml:"output_layer"` // backbone feature layer; empty = graph output
	ImageWidth  int    `yaml:"image_width"`
	ImageHeight int    `yaml:"image_height"`
}

// DetectorConfig configures eye localisation.
type DetectorConfig struct {
	ModelPath      string  `yaml:"model_path"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	EyeScale       float64 `yaml:"eye_scale"`
}

// CalibrationConfig configures the calibration session and fine-tuning.
type CalibrationConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DataDir         string  `yaml:"data_dir"`
	FramesPerClass  int     `yaml:"frames_per_class"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            int64   `yaml:"seed"`
	Format          string  `yaml:"format"` // "jpg" or "png"
}

// WebConfig configures the HTTP API.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Config holds all configuration for the application.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	Headless   bool   `yaml:"headless"`
	WindowSize int    `yaml:"window_size"`

	Model       ModelConfig       `yaml:"model"`
	Detector    DetectorConfig    `yaml:"detector"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Camera      camera.Config     `yaml:"camera"`
	Web         WebConfig         `yaml:"web"`
	MQTT        mqttout.Config    `yaml:"mqtt"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		LogLevel:   "info",
		WindowSize: 12,
		Model: ModelConfig{
			Dir:         "models/base",
			ImageWidth:  100,
			ImageHeight: 100,
		},
		Detector: DetectorConfig{
			ModelPath:      "models/face_detection_yunet.onnx",
			ScoreThreshold: 0.6,
			EyeScale:       0.28,
		},
		Calibration: CalibrationConfig{
			Enabled:         true,
			DataDir:         "temp/data",
			FramesPerClass:  50,
			Epochs:          5,
			BatchSize:       32,
			LearningRate:    0.001,
			ValidationSplit: 0.1,
			Seed:            123,
			Format:          "jpg",
		},
		Camera: camera.DefaultConfig(),
		Web:    WebConfig{Enabled: true, Port: "8181"},
		MQTT:   mqttout.DefaultConfig(),
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any.
// Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvConfig applies environment overrides.
// Call this after loading the file and before flag parsing is applied.
func (c *Config) LoadEnvConfig() error {
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	c.Model.Dir = envString("EYECOMMANDER_MODEL_DIR", c.Model.Dir)
	c.Detector.ModelPath = envString("EYECOMMANDER_YUNET_MODEL", c.Detector.ModelPath)
	c.Calibration.DataDir = envString("EYECOMMANDER_DATA_DIR", c.Calibration.DataDir)
	c.Web.Port = envString("EYECOMMANDER_WEB_PORT", c.Web.Port)
	c.MQTT.Broker = envString("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.TopicPrefix = envString("EYECOMMANDER_MQTT_TOPIC", c.MQTT.TopicPrefix)

	var err error
	if c.Camera.Device, err = envInt("EYECOMMANDER_CAMERA", c.Camera.Device); err != nil {
		return err
	}
	if c.Headless, err = envBool("EYECOMMANDER_HEADLESS", c.Headless); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.WindowSize < 1:
		return &ConfigError{Field: "WindowSize", Message: "window_size must be >= 1"}
	case c.Model.Dir == "":
		return &ConfigError{Field: "Model.Dir", Message: "model.dir is required"}
	case c.Model.ImageWidth < 1 || c.Model.ImageHeight < 1:
		return &ConfigError{Field: "Model.ImageWidth", Message: "model image size must be positive"}
	case c.Detector.ModelPath == "":
		return &ConfigError{Field: "Detector.ModelPath", Message: "detector.model_path is required"}
	case c.Calibration.DataDir == "":
		return &ConfigError{Field: "Calibration.DataDir", Message: "calibration.data_dir is required"}
	case !safeDataDir(c.Calibration.DataDir):
		return &ConfigError{Field: "Calibration.DataDir", Message: "calibration.data_dir must not be the filesystem root, the home directory or contain the working directory"}
	case c.Calibration.FramesPerClass < 1:
		return &ConfigError{Field: "Calibration.FramesPerClass", Message: "calibration.frames_per_class must be >= 1"}
	case c.Calibration.Epochs < 1:
		return &ConfigError{Field: "Calibration.Epochs", Message: "calibration.epochs must be >= 1"}
	case c.Calibration.BatchSize < 1:
		return &ConfigError{Field: "Calibration.BatchSize", Message: "calibration.batch_size must be >= 1"}
	case c.Calibration.LearningRate <= 0:
		return &ConfigError{Field: "Calibration.LearningRate", Message: "calibration.learning_rate must be > 0"}
	case c.Calibration.ValidationSplit <= 0 || c.Calibration.ValidationSplit >= 1:
		return &ConfigError{Field: "Calibration.ValidationSplit", Message: "calibration.validation_split must be in (0, 1)"}
	case c.Calibration.Format != "jpg" && c.Calibration.Format != "png":
		return &ConfigError{Field: "Calibration.Format", Message: "calibration.format must be jpg or png"}
	case c.Web.Enabled && c.Web.Port == "":
		return &ConfigError{Field: "Web.Port", Message: "web.port is required when the web API is enabled"}
	case c.Headless && !c.Web.Enabled && !c.MQTT.Enabled() && c.Calibration.Enabled:
		return &ConfigError{Field: "Headless", Message: "headless calibration needs the web API or MQTT for confirm/cancel"}
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Camera", Message: "camera: " + strings.Join(errs, "; ")}
	}
	return nil
}

// safeDataDir reports whether dir may be wiped as a calibration tree.
func safeDataDir(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if abs == filepath.Dir(abs) {
		return false
	}
	if home, err := os.UserHomeDir(); err == nil && abs == filepath.Clean(home) {
		return false
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(abs, wd); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
	}
	return true
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, &ConfigError{Field: key, Message: fmt.Sprintf("%s must be an integer, got %q", key, v)}
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, &ConfigError{Field: key, Message: fmt.Sprintf("%s must be a boolean, got %q", key, v)}
	}
	return b, nil
}
