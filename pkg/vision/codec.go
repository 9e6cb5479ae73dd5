package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// JPEGCodec stores dataset samples as JPEG files through OpenCV.
type JPEGCodec struct{}

// Ext implements dataset.Codec.
func (JPEGCodec) Ext() string { return "jpg" }

// Encode implements dataset.Codec.
func (JPEGCodec) Encode(path string, img *image.Gray) error {
	m, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return fmt.Errorf("vision: convert %s: %w", path, err)
	}
	defer m.Close()
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("vision: imwrite %s failed", path)
	}
	return nil
}

// Decode implements dataset.Codec.
func (JPEGCodec) Decode(path string) (*image.Gray, error) {
	m := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer m.Close()
	if m.Empty() {
		return nil, fmt.Errorf("vision: imread %s failed", path)
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("vision: convert %s: %w", path, err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("vision: %s decoded as %T", path, img)
	}
	return g, nil
}
