package caries

import "bytes"
import "image"
import "image/color"
import "image/jpeg"
import "image/png"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/caries/tfrecord"

func jpegBytes(t testing.TB, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestLabel(t *testing.T) {
	for _, tc := range []struct {
		name    string
		classes []int64
		want    float32
	}{
		{"empty", nil, 0},
		{"caries", []int64{1}, 1},
		{"other", []int64{0, 2}, 0},
		{"caries among others", []int64{0, 1, 2}, 1},
		{"caries with a higher class", []int64{1, 2}, 1},
		{"higher ids only", []int64{3}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Label(tc.classes))
		})
	}
}

func TestParse(t *testing.T) {
	rec := tfrecord.MarshalExample(tfrecord.Features{
		ImageKey: tfrecord.BytesFeature(jpegBytes(t, solid(40, 30, color.RGBA{200, 100, 50, 255}))),
		LabelKey: tfrecord.Int64Feature(2, 1),
	})
	for _, rs := range []Resampler{Bilinear, Linear, Lanczos} {
		t.Run(string(rs), func(t *testing.T) {
			s, err := Parse(rec, 96, rs)
			require.NoError(t, err)
			assert.Equal(t, float32(1), s.Label)
			require.Len(t, s.Image, 96*96*3)
			for _, v := range s.Image {
				require.True(t, v >= 0 && v <= 1)
			}
			assert.InDelta(t, 200.0/255, s.Image[0], 0.05)
			assert.InDelta(t, 100.0/255, s.Image[1], 0.05)
			assert.InDelta(t, 50.0/255, s.Image[2], 0.05)
		})
	}
}

func TestParseGrayscale(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	rec := tfrecord.MarshalExample(tfrecord.Features{
		ImageKey: tfrecord.BytesFeature(jpegBytes(t, gray)),
	})
	s, err := Parse(rec, 8, Bilinear)
	require.NoError(t, err)
	assert.Equal(t, float32(0), s.Label)
	require.Len(t, s.Image, 8*8*3)
	assert.Equal(t, s.Image[0], s.Image[1])
	assert.Equal(t, s.Image[1], s.Image[2])
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(tfrecord.MarshalExample(tfrecord.Features{LabelKey: tfrecord.Int64Feature(1)}), 8, Bilinear)
	assert.ErrorIs(t, err, ErrMissingImage)

	_, err = Parse(tfrecord.MarshalExample(tfrecord.Features{ImageKey: tfrecord.BytesFeature([]byte("not a jpeg"))}), 8, Bilinear)
	assert.Error(t, err)

	_, err = Parse([]byte{0x0a, 0x05}, 8, Bilinear)
	assert.ErrorIs(t, err, tfrecord.ErrMalformed)
}

func TestDecodeImageOnlyJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(8, 8, color.White)))
	_, err := DecodeImage(buf.Bytes(), 8, Bilinear)
	assert.ErrorIs(t, err, ErrNotJPEG)

	_, err = Parse(tfrecord.MarshalExample(tfrecord.Features{ImageKey: tfrecord.BytesFeature(buf.Bytes())}), 8, Bilinear)
	assert.ErrorIs(t, err, ErrNotJPEG)

	px, err := DecodeImage(jpegBytes(t, solid(8, 8, color.White)), 8, Bilinear)
	require.NoError(t, err)
	assert.Len(t, px, 8*8*Channels)
}

func TestParseResampler(t *testing.T) {
	r, err := ParseResampler("")
	require.NoError(t, err)
	assert.Equal(t, Bilinear, r)
	r, err = ParseResampler("lanczos")
	require.NoError(t, err)
	assert.Equal(t, Lanczos, r)
	_, err = ParseResampler("cubic")
	assert.Error(t, err)
}
