package vision

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-eyecommander/pkg/overlay"
)

func TestSelectBest(t *testing.T) {
	_, ok := SelectBest(nil)
	assert.False(t, ok, "no face for empty input")

	small := Face{Box: image.Rect(0, 0, 10, 10), Score: 0.95}
	big := Face{Box: image.Rect(0, 0, 100, 100), Score: 0.9}
	got, ok := SelectBest([]Face{small, big})
	require.True(t, ok)
	assert.Equal(t, big, got, "the larger face wins")
}

func TestEyeRegions(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)
	f := Face{
		Box:      image.Rect(200, 100, 400, 300),
		RightEye: image.Pt(250, 170),
		LeftEye:  image.Pt(350, 170),
	}

	left, right, ok := EyeRegions(f, bounds, 0.25)
	require.True(t, ok)
	assert.Equal(t, 50, left.Dx())
	assert.Equal(t, 50, left.Dy())
	assert.Equal(t, 50, right.Dx())
	assert.True(t, f.LeftEye.In(left), "left crop contains its landmark")
	assert.True(t, f.RightEye.In(right), "right crop contains its landmark")

	// eye at the frame edge
	edge := f
	edge.RightEye = image.Pt(5, 170)
	_, _, ok = EyeRegions(edge, bounds, 0.25)
	assert.False(t, ok, "crop leaving the frame")

	// overlapping crops
	_, _, ok = EyeRegions(f, bounds, 0.9)
	assert.False(t, ok, "overlapping crops")

	tiny := Face{Box: image.Rect(0, 0, 8, 8), LeftEye: image.Pt(2, 2), RightEye: image.Pt(6, 2)}
	_, _, ok = EyeRegions(tiny, bounds, 0.25)
	assert.False(t, ok, "tiny face")
}

func TestPreprocessorProcess(t *testing.T) {
	eye := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 37, 53, gocv.MatTypeCV8UC3)
	defer eye.Close()

	g, err := NewPreprocessor(100, 100).Process(eye)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), g.Bounds())

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = NewPreprocessor(0, 0).Process(empty)
	assert.Error(t, err, "empty crop")
}

type fakeFinder struct {
	crops EyeCrops
	err   error
}

func (f fakeFinder) Locate(gocv.Mat) (EyeCrops, error) {
	if f.err != nil {
		return EyeCrops{}, f.err
	}
	return EyeCrops{Left: f.crops.Left.Clone(), Right: f.crops.Right.Clone()}, nil
}

func TestExtractor(t *testing.T) {
	left := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 20, 20, gocv.MatTypeCV8UC3)
	defer left.Close()
	right := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 20, 20, gocv.MatTypeCV8UC3)
	defer right.Close()
	frame := gocv.NewMat()
	defer frame.Close()

	ex := NewExtractor(fakeFinder{crops: EyeCrops{Left: left, Right: right}}, NewPreprocessor(8, 8))
	pair, err := ex.Extract(frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), pair.Left.Pix[0], "left eye")
	assert.Equal(t, uint8(255), pair.Right.Pix[0], "right eye")

	ex = NewExtractor(fakeFinder{err: ErrNoEyes}, NewPreprocessor(8, 8))
	_, err = ex.Extract(frame)
	assert.ErrorIs(t, err, ErrNoEyes)
}

func TestJPEGCodecRoundTrip(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	path := filepath.Join(t.TempDir(), "center1.jpg")

	c := JPEGCodec{}
	assert.Equal(t, "jpg", c.Ext())
	require.NoError(t, c.Encode(path, img))
	got, err := c.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), got.Bounds())
	assert.InDelta(t, 128, int(got.Pix[0]), 3)

	_, err = c.Decode(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err, "missing file")
}

func TestDrawAndTap(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 360, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	Draw(&frame, overlay.Guide(overlay.Green))
	// guide box top-left corner on a half-size frame
	c := frame.GetVecbAt(10, 210)
	assert.Equal(t, uint8(255), c[1], "green box pixel")

	tap := NewFrameTap(0)
	_, err := tap.JPEG()
	assert.Error(t, err, "no frame yet")
	h := NewHeadless(tap)
	ev, err := h.Show(&frame, overlay.DirectionLabel(0))
	require.NoError(t, err)
	assert.Zero(t, ev)
	data, err := tap.JPEG()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "JPEG start marker")
}

func TestFrameTapOnFrame(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	tap := NewFrameTap(time.Hour)
	var got [][]byte
	tap.OnFrame = func(jpeg []byte) { got = append(got, jpeg) }

	tap.Offer(frame)
	tap.Offer(frame) // inside the interval, not re-encoded
	require.Len(t, got, 1)

	latest, err := tap.JPEG()
	require.NoError(t, err)
	assert.Equal(t, latest, got[0])

	// the callback owns its copy
	got[0][0] = 0
	latest, err = tap.JPEG()
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), latest[0])
}

func TestNewLocatorInvalidPath(t *testing.T) {
	cfg := DefaultLocatorConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"
	_, err := NewLocator(cfg)
	assert.Error(t, err)
}

func TestLocateSolidImage(t *testing.T) {
	path := findModelPath()
	if path == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	cfg := DefaultLocatorConfig()
	cfg.ModelPath = path
	l, err := NewLocator(cfg)
	require.NoError(t, err)
	defer l.Close()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	_, err = l.Locate(frame)
	assert.ErrorIs(t, err, ErrNoEyes, "solid image")

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = l.Locate(empty)
	assert.Error(t, err, "empty image")
}

func findModelPath() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "models", "face_detection_yunet.onnx")
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
