package dataset

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
)

// Codec reads and writes grayscale samples.
type Codec interface {
	// Ext is the file extension without the dot.
	Ext() string
	Encode(path string, img *image.Gray) error
	Decode(path string) (*image.Gray, error)
}

// PNGCodec stores samples as lossless PNG.
type PNGCodec struct{}

// Ext implements Codec.
func (PNGCodec) Ext() string { return "png" }

// Encode implements Codec.
func (PNGCodec) Encode(path string, img *image.Gray) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Decode implements Codec.
func (PNGCodec) Decode(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ToGray(img), nil
}

// ToGray converts any image to *image.Gray, returning it unchanged if it
// already is one.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	return g
}
