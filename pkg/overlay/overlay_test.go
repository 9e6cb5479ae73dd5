package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

func TestDirectionOriginsAreDistinct(t *testing.T) {
	seen := map[image.Point]gaze.Label{}
	for _, l := range gaze.Labels() {
		p := DirectionOrigin(l)
		prev, dup := seen[p]
		assert.False(t, dup, "%s and %s share origin %v", prev, l, p)
		seen[p] = l
		assert.True(t, p.In(image.Rect(0, 0, RefWidth, RefHeight+1)), "%s origin %v is off canvas", l, p)
	}
	assert.Less(t, DirectionOrigin(gaze.Left).X, DirectionOrigin(gaze.Right).X)
	assert.Less(t, DirectionOrigin(gaze.Up).Y, DirectionOrigin(gaze.Down).Y)
}

func TestDirectionLabel(t *testing.T) {
	s := DirectionLabel(gaze.Right)
	require.Len(t, s.Texts, 1)
	assert.Equal(t, "right", s.Texts[0].Content)
}

func TestSceneAdd(t *testing.T) {
	s := Guide(Green).Add(Message("hello"))
	assert.Len(t, s.Boxes, 1)
	assert.Len(t, s.Texts, 2)
	assert.True(t, Scene{}.Empty())
	assert.False(t, s.Empty())
}

func TestScale(t *testing.T) {
	assert.Equal(t, image.Pt(320, 180), Scale(image.Pt(640, 360), image.Pt(640, 360)))
	assert.Equal(t, image.Pt(10, 10), Scale(image.Pt(10, 10), image.Point{}))
	assert.Equal(t, 1.5, ScaleFactor(image.Pt(1920, 1080)))
}
