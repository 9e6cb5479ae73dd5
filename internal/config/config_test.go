package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 12, cfg.WindowSize)
	assert.Equal(t, 50, cfg.Calibration.FramesPerClass)
	assert.Equal(t, int64(123), cfg.Calibration.Seed)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eyecommander.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window_size: 8
headless: true
calibration:
  frames_per_class: 20
  format: png
camera:
  device: 1
  width: 640
  height: 480
mqtt:
  broker: tcp://localhost:1883
  timeout: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WindowSize)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 20, cfg.Calibration.FramesPerClass)
	assert.Equal(t, "png", cfg.Calibration.Format)
	assert.Equal(t, 5, cfg.Calibration.Epochs, "unset keys keep defaults")
	assert.Equal(t, 1, cfg.Camera.Device)
	assert.Equal(t, 30, cfg.Camera.Framerate)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "2s", cfg.MQTT.Timeout.String())
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_size: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EYECOMMANDER_MODEL_DIR", "/opt/models/base")
	t.Setenv("EYECOMMANDER_CAMERA", "2")
	t.Setenv("EYECOMMANDER_HEADLESS", "true")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	cfg := Default()
	require.NoError(t, cfg.LoadEnvConfig())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/opt/models/base", cfg.Model.Dir)
	assert.Equal(t, 2, cfg.Camera.Device)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestLoadEnvConfigBadValues(t *testing.T) {
	t.Setenv("EYECOMMANDER_CAMERA", "front")
	cfg := Default()
	var ce *ConfigError
	require.True(t, errors.As(cfg.LoadEnvConfig(), &ce))
	assert.Equal(t, "EYECOMMANDER_CAMERA", ce.Field)

	t.Setenv("EYECOMMANDER_CAMERA", "")
	t.Setenv("EYECOMMANDER_HEADLESS", "maybe")
	assert.Error(t, cfg.LoadEnvConfig())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"window", func(c *Config) { c.WindowSize = 0 }, "WindowSize"},
		{"model dir", func(c *Config) { c.Model.Dir = "" }, "Model.Dir"},
		{"frames", func(c *Config) { c.Calibration.FramesPerClass = 0 }, "Calibration.FramesPerClass"},
		{"split", func(c *Config) { c.Calibration.ValidationSplit = 1 }, "Calibration.ValidationSplit"},
		{"format", func(c *Config) { c.Calibration.Format = "bmp" }, "Calibration.Format"},
		{"port", func(c *Config) { c.Web.Port = "" }, "Web.Port"},
		{"camera", func(c *Config) { c.Camera.Width = 1 }, "Camera"},
		{"data dir cwd", func(c *Config) { c.Calibration.DataDir = "." }, "Calibration.DataDir"},
		{"data dir parent", func(c *Config) { c.Calibration.DataDir = ".." }, "Calibration.DataDir"},
		{"data dir root", func(c *Config) { c.Calibration.DataDir = "/" }, "Calibration.DataDir"},
		{"headless without input", func(c *Config) { c.Headless = true; c.Web.Enabled = false }, "Headless"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			var ce *ConfigError
			require.ErrorAs(t, cfg.Validate(), &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	// headless without calibration needs no input channel
	cfg := Default()
	cfg.Headless, cfg.Web.Enabled, cfg.Calibration.Enabled = true, false, false
	assert.NoError(t, cfg.Validate())
}

func TestValidateDataDirHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := Default()
	cfg.Calibration.DataDir = home
	var ce *ConfigError
	require.ErrorAs(t, cfg.Validate(), &ce)
	assert.Equal(t, "Calibration.DataDir", ce.Field)

	cfg.Calibration.DataDir = filepath.Join(t.TempDir(), "data")
	assert.NoError(t, cfg.Validate())
}
