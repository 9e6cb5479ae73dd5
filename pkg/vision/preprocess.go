package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// Default model input size.
const (
	DefaultImageWidth  = 100
	DefaultImageHeight = 100
)

// Preprocessor converts an eye crop to the grayscale image the model
// expects.
type Preprocessor struct {
	Width  int
	Height int
}

// NewPreprocessor returns a preprocessor for width x height model input.
func NewPreprocessor(width, height int) Preprocessor {
	if width <= 0 || height <= 0 {
		width, height = DefaultImageWidth, DefaultImageHeight
	}
	return Preprocessor{Width: width, Height: height}
}

// Process converts a BGR (or already gray) crop to a resized *image.Gray.
func (p Preprocessor) Process(eye gocv.Mat) (*image.Gray, error) {
	if eye.Empty() {
		return nil, fmt.Errorf("vision: empty eye crop")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if eye.Channels() == 1 {
		eye.CopyTo(&gray)
	} else {
		gocv.CvtColor(eye, &gray, gocv.ColorBGRToGray)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Pt(p.Width, p.Height), 0, 0, gocv.InterpolationArea)

	img, err := resized.ToImage()
	if err != nil {
		return nil, fmt.Errorf("vision: convert eye: %w", err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("vision: unexpected image type %T", img)
	}
	return g, nil
}

// EyeFinder locates eyes in a frame.
type EyeFinder interface {
	Locate(frame gocv.Mat) (EyeCrops, error)
}

// Extractor combines a locator and a preprocessor into a single
// frame -> eye pair step.
type Extractor struct {
	finder EyeFinder
	pre    Preprocessor
}

// NewExtractor creates an extractor.
func NewExtractor(finder EyeFinder, pre Preprocessor) *Extractor {
	return &Extractor{finder: finder, pre: pre}
}

// Extract returns the normalized eye pair of frame, or ErrNoEyes.
func (e *Extractor) Extract(frame gocv.Mat) (gaze.EyePair, error) {
	crops, err := e.finder.Locate(frame)
	if err != nil {
		return gaze.EyePair{}, err
	}
	defer crops.Close()

	left, err := e.pre.Process(crops.Left)
	if err != nil {
		return gaze.EyePair{}, err
	}
	right, err := e.pre.Process(crops.Right)
	if err != nil {
		return gaze.EyePair{}, err
	}
	return gaze.EyePair{Left: left, Right: right}, nil
}
