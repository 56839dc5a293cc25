package platform

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// CropPNG cuts the region b out of a PNG screenshot. The region is clipped to
// the image; a region entirely off the image is an error.
func CropPNG(data []byte, b core.Bounds) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.ScreenshotError("decode", err)
	}
	r := image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height).Intersect(img.Bounds())
	if r.Empty() {
		return nil, core.ScreenshotError(fmt.Sprintf("region %s is outside the %dx%d screen", b, img.Bounds().Dx(), img.Bounds().Dy()), nil)
	}

	var sub image.Image
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		sub = s.SubImage(r)
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, r.Min, draw.Src)
		sub = rgba
	}
	return EncodePNG(sub)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, core.ScreenshotError("encode", err)
	}
	return buf.Bytes(), nil
}
