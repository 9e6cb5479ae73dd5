// Package vision turns camera frames into normalized eye images and
// draws overlays onto display frames, all through OpenCV.
package vision

import (
	"errors"
	"image"
)

// ErrNoEyes is returned when a frame has no usable eye pair.
var ErrNoEyes = errors.New("vision: no eyes detected")

// Face is one detected face in pixel coordinates. LeftEye and RightEye
// are the subject's eyes, so LeftEye is usually on the image's right.
type Face struct {
	Box      image.Rectangle
	LeftEye  image.Point
	RightEye image.Point
	Score    float64
}

// Area returns the box area in pixels.
func (f Face) Area() int {
	return f.Box.Dx() * f.Box.Dy()
}

// SelectBest picks the face to follow from multiple detections.
// Priority: confidence * 0.7 + relative area * 0.3.
func SelectBest(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	if len(faces) == 1 {
		return faces[0], true
	}

	maxArea := 0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	best, bestScore := 0, -1.0
	for i, f := range faces {
		rel := 0.0
		if maxArea > 0 {
			rel = float64(f.Area()) / float64(maxArea)
		}
		score := f.Score*0.7 + rel*0.3
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return faces[best], true
}

// EyeRegions returns square crops centred on both eye landmarks. The side
// is eyeScale times the face width. ok is false when either crop would
// fall outside bounds or the crops are degenerate.
func EyeRegions(f Face, bounds image.Rectangle, eyeScale float64) (left, right image.Rectangle, ok bool) {
	side := int(float64(f.Box.Dx()) * eyeScale)
	if side < 4 {
		return image.Rectangle{}, image.Rectangle{}, false
	}
	square := func(c image.Point) image.Rectangle {
		half := side / 2
		return image.Rect(c.X-half, c.Y-half, c.X-half+side, c.Y-half+side)
	}
	left, right = square(f.LeftEye), square(f.RightEye)
	if !left.In(bounds) || !right.In(bounds) || left.Overlaps(right) {
		return image.Rectangle{}, image.Rectangle{}, false
	}
	return left, right, true
}
