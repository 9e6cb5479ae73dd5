// Package overlay describes what is drawn on top of a display frame.
//
// A Scene is plain data so that calibration and the live loop can say
// what to show without depending on OpenCV. Coordinates are given on a
// 1280x720 reference canvas; renderers scale them to the actual frame.
package overlay

import (
	"image"
	"image/color"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// Reference canvas size.
const (
	RefWidth  = 1280
	RefHeight = 720
)

// Font selects a Hershey face.
type Font int

const (
	FontSimplex Font = iota
	FontPlain
)

// Palette.
var (
	Green     = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red       = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Neutral   = color.RGBA{R: 255, G: 175, B: 100, A: 255}
	Prompt    = color.RGBA{R: 3, G: 158, B: 252, A: 255}
	Direction = color.RGBA{R: 3, G: 198, B: 252, A: 255}
)

// Box is a rectangle outline.
type Box struct {
	Rect      image.Rectangle
	Color     color.RGBA
	Thickness int
}

// Text is a single line of text; Origin is the bottom-left corner.
type Text struct {
	Content   string
	Origin    image.Point
	Font      Font
	Scale     float64
	Color     color.RGBA
	Thickness int
}

// Scene is everything drawn over one frame.
type Scene struct {
	Boxes []Box
	Texts []Text
}

// Add appends the elements of other to s.
func (s Scene) Add(other Scene) Scene {
	s.Boxes = append(s.Boxes, other.Boxes...)
	s.Texts = append(s.Texts, other.Texts...)
	return s
}

// Empty reports whether nothing would be drawn.
func (s Scene) Empty() bool {
	return len(s.Boxes) == 0 && len(s.Texts) == 0
}

// GuideRect is where the user should keep their head.
var GuideRect = image.Rect(420, 20, 900, 700)

// Guide is the head placement box with its caption.
func Guide(c color.RGBA) Scene {
	return Scene{
		Boxes: []Box{{Rect: GuideRect, Color: c, Thickness: 3}},
		Texts: []Text{{
			Content:   "center head inside box",
			Origin:    image.Pt(470, 50),
			Font:      FontSimplex,
			Scale:     1,
			Color:     c,
			Thickness: 1,
		}},
	}
}

// Message is a prompt line in the upper left area.
func Message(content string) Scene {
	return Scene{Texts: []Text{{
		Content:   content,
		Origin:    image.Pt(20, 210),
		Font:      FontPlain,
		Scale:     3,
		Color:     Prompt,
		Thickness: 6,
	}}}
}

// Status is a small secondary line below the prompt.
func Status(content string) Scene {
	return Scene{Texts: []Text{{
		Content:   content,
		Origin:    image.Pt(20, 260),
		Font:      FontPlain,
		Scale:     2,
		Color:     Prompt,
		Thickness: 3,
	}}}
}

var directionOrigin = [gaze.NumLabels]image.Point{
	gaze.Center: image.Pt(430, 375),
	gaze.Down:   image.Pt(500, 700),
	gaze.Left:   image.Pt(50, 375),
	gaze.Right:  image.Pt(900, 375),
	gaze.Up:     image.Pt(575, 100),
}

// DirectionOrigin is where the label for l is drawn, on the side of the
// frame the user is looking toward.
func DirectionOrigin(l gaze.Label) image.Point {
	if !l.Valid() {
		return directionOrigin[gaze.Center]
	}
	return directionOrigin[l]
}

// DirectionLabel shows the decided direction in large type.
func DirectionLabel(l gaze.Label) Scene {
	return Scene{Texts: []Text{{
		Content:   l.String(),
		Origin:    DirectionOrigin(l),
		Font:      FontPlain,
		Scale:     7,
		Color:     Direction,
		Thickness: 15,
	}}}
}

// Scale maps a point on the reference canvas onto a frame of the given size.
func Scale(p image.Point, size image.Point) image.Point {
	if size.X <= 0 || size.Y <= 0 {
		return p
	}
	return image.Pt(p.X*size.X/RefWidth, p.Y*size.Y/RefHeight)
}

// ScaleFactor is the factor applied to font sizes and line widths.
func ScaleFactor(size image.Point) float64 {
	if size.Y <= 0 {
		return 1
	}
	return float64(size.Y) / RefHeight
}
