// Package caries decodes the dental caries records: a JPEG image and the
// object class ids annotated on it.
package caries

import "bytes"
import "image"

import "github.com/disintegration/imaging"
import "github.com/pkg/errors"

import "github.com/neurlang/caries/tfrecord"

const (
	// ImageKey holds the encoded JPEG
	ImageKey = "image/encoded"
	// LabelKey holds the class ids of the annotated objects
	LabelKey = "image/object/class/label"
	// CariesClass is the class id of a carious lesion
	CariesClass = 1
	// Channels of a decoded sample
	Channels = 3
)

// ErrMissingImage is returned for a record without exactly one encoded image
var ErrMissingImage = errors.New("caries: record has no single image/encoded value")

// ErrNotJPEG is returned for an image in any other format
var ErrNotJPEG = errors.New("caries: image is not a JPEG")

// Sample is one decoded record. Image is size x size x 3, row major, in [0, 1].
type Sample struct {
	Image []float32
	Label float32
}

// Label is 1 when any annotated object is a caries lesion, 0 otherwise
func Label(classes []int64) float32 {
	for _, c := range classes {
		if c == CariesClass {
			return 1
		}
	}
	return 0
}

// Parse decodes a serialized example into a sample
func Parse(record []byte, size int, rs Resampler) (s Sample, err error) {
	f, err := tfrecord.ParseExample(record)
	if err != nil {
		return s, err
	}
	encoded, ok := f.Bytes(ImageKey)
	if !ok || len(encoded) != 1 {
		return s, ErrMissingImage
	}
	s.Image, err = DecodeImage(encoded[0], size, rs)
	if err != nil {
		return s, err
	}
	classes, _ := f.Int64s(LabelKey)
	s.Label = Label(classes)
	return s, nil
}

// DecodeImage decodes a JPEG into size x size x 3 floats in [0, 1].
// Grayscale images are expanded to three equal channels.
func DecodeImage(encoded []byte, size int, rs Resampler) ([]float32, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if format != "jpeg" {
		return nil, errors.Wrapf(ErrNotJPEG, "got %s", format)
	}
	img, err := imaging.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if img.Bounds().Empty() {
		return nil, errors.New("decode image: empty")
	}
	return Pixels(rs.Resize(img, size)), nil
}

// Pixels converts an RGBA image to HWC floats in [0, 1], dropping alpha
func Pixels(img *image.RGBA) []float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]float32, 0, w*h*Channels)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			out = append(out, float32(p[0])/255, float32(p[1])/255, float32(p[2])/255)
		}
	}
	return out
}
