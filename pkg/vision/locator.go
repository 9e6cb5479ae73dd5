package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// LocatorConfig holds eye locator configuration.
type LocatorConfig struct {
	ModelPath      string  // Path to the YuNet ONNX model
	ScoreThreshold float64 // Minimum face confidence (default 0.6)
	NMSThreshold   float64 // Non-maximum suppression threshold
	EyeScale       float64 // Eye crop side relative to face width
}

// DefaultLocatorConfig returns production defaults.
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		ModelPath:      "models/face_detection_yunet.onnx",
		ScoreThreshold: 0.6,
		NMSThreshold:   0.3,
		EyeScale:       0.28,
	}
}

// EyeCrops are BGR crops of both eyes owned by the caller.
type EyeCrops struct {
	Left  gocv.Mat
	Right gocv.Mat
}

// Close releases both crops.
func (c *EyeCrops) Close() {
	c.Left.Close()
	c.Right.Close()
}

// Locator finds the eyes of the most prominent face using OpenCV's
// FaceDetectorYN.
type Locator struct {
	detector gocv.FaceDetectorYN
	config   LocatorConfig
	mu       sync.Mutex // Protects inference
}

// NewLocator loads the YuNet model.
func NewLocator(cfg LocatorConfig) (*Locator, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	def := DefaultLocatorConfig()
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = def.ScoreThreshold
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = def.NMSThreshold
	}
	if cfg.EyeScale <= 0 {
		cfg.EyeScale = def.EyeScale
	}

	// Input size is updated per frame
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(320, 320),
		float32(cfg.ScoreThreshold),
		float32(cfg.NMSThreshold),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Locator{detector: detector, config: cfg}, nil
}

// Faces runs detection on a BGR frame.
func (l *Locator) Faces(frame gocv.Mat) ([]Face, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.detector.SetInputSize(image.Pt(frame.Cols(), frame.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	l.detector.Detect(frame, &faces)

	out := make([]Face, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h
		// 4-5: right eye, 6-7: left eye, 8-13: nose and mouth corners
		// 14: face score
		at := func(c int) int { return int(faces.GetFloatAt(r, c)) }
		x, y := at(0), at(1)
		out = append(out, Face{
			Box:      image.Rect(x, y, x+at(2), y+at(3)),
			RightEye: image.Pt(at(4), at(5)),
			LeftEye:  image.Pt(at(6), at(7)),
			Score:    float64(faces.GetFloatAt(r, 14)),
		})
	}
	return out, nil
}

// Locate crops both eyes of the best face in frame. It returns ErrNoEyes
// when no face is found or its eyes cannot be cropped.
func (l *Locator) Locate(frame gocv.Mat) (EyeCrops, error) {
	faces, err := l.Faces(frame)
	if err != nil {
		return EyeCrops{}, err
	}
	face, ok := SelectBest(faces)
	if !ok {
		return EyeCrops{}, ErrNoEyes
	}
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	left, right, ok := EyeRegions(face, bounds, l.config.EyeScale)
	if !ok {
		return EyeCrops{}, ErrNoEyes
	}

	lr := frame.Region(left)
	defer lr.Close()
	rr := frame.Region(right)
	defer rr.Close()
	return EyeCrops{Left: lr.Clone(), Right: rr.Clone()}, nil
}

// Close releases the detector resources
func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detector.Close()
	return nil
}
