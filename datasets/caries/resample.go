package caries

import "image"

import "github.com/disintegration/imaging"
import "github.com/nfnt/resize"
import "github.com/pkg/errors"
import "golang.org/x/image/draw"

// Resampler names the interpolation used to bring images to the model size
type Resampler string

const (
	// Bilinear samples with half pixel centers and no antialiasing
	Bilinear Resampler = "bilinear"
	// Linear is the imaging package linear filter, it antialiases when shrinking
	Linear Resampler = "linear"
	// Lanczos is Lanczos3
	Lanczos Resampler = "lanczos"
)

// DefaultResampler matches the usual framework resize
const DefaultResampler = Bilinear

// ParseResampler validates a resampler name, empty means the default
func ParseResampler(name string) (Resampler, error) {
	switch r := Resampler(name); r {
	case "":
		return DefaultResampler, nil
	case Bilinear, Linear, Lanczos:
		return r, nil
	}
	return "", errors.Errorf("unknown resampler %q", name)
}

// Resize stretches img to size x size, ignoring the aspect ratio
func (r Resampler) Resize(img image.Image, size int) *image.RGBA {
	var scaled image.Image
	switch r {
	case Linear:
		scaled = imaging.Resize(img, size, size, imaging.Linear)
	case Lanczos:
		scaled = resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	default:
		dst := image.NewRGBA(image.Rect(0, 0, size, size))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		return dst
	}
	if rgba, ok := scaled.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return dst
}
