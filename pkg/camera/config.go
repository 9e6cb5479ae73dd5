// Package camera captures frames from a local video device through OpenCV.
package camera

// Config holds capture parameters. They can be changed at runtime
// through a Manager.
type Config struct {
	Device    int  `json:"device" yaml:"device"`       // OpenCV device index
	Width     int  `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int  `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int  `json:"framerate" yaml:"framerate"` // Target FPS
	Mirror    bool `json:"mirror" yaml:"mirror"`       // Mirror the display frame horizontally

	// MaxMisses is how many consecutive failed reads on an open device
	// are tolerated before the stream is considered ended.
	MaxMisses int `json:"max_misses" yaml:"max_misses"`
}

// Limits accepted by Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 1280x720 at 30 FPS with a mirrored display, the
// size overlay coordinates are laid out for.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     1280,
		Height:    720,
		Framerate: 30,
		Mirror:    true,
		MaxMisses: 30,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.MaxMisses < 0 {
		errors = append(errors, "max_misses must be >= 0")
	}

	return errors
}
