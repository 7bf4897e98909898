// Package inference classifies single radiograph crops with a trained model
package inference

import "math"
import "os"

import "github.com/pkg/errors"

import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/export/tflite"
import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/learning"
import "github.com/neurlang/caries/model"
import "github.com/neurlang/caries/net/feedforward"

// Predictor returns the caries probability of an encoded image
type Predictor interface {
	PredictImage(encoded []byte) (float32, error)
}

// IsCaries thresholds a probability the way accuracy is measured in training
func IsCaries(p float32) bool {
	return p > learning.Threshold
}

// PredictFile reads an image file and runs p on it
func PredictFile(p Predictor, name string) (float32, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return 0, errors.Wrap(err, "read image")
	}
	return p.PredictImage(data)
}

// Classifier runs the full precision network
type Classifier struct {
	Net       *feedforward.FeedforwardNetwork
	Resampler caries.Resampler
	size      int
}

// Load builds the network for opts and reads the weights saved at path
func Load(path string, opts model.Options, rs caries.Resampler) (*Classifier, error) {
	net, err := model.New(opts)
	if err != nil {
		return nil, err
	}
	if err := net.ReadCompressedWeightsFromFile(path); err != nil {
		return nil, err
	}
	return &Classifier{Net: net, Resampler: rs, size: opts.ImageSize}, nil
}

// PredictImage decodes, resizes and classifies one image
func (c *Classifier) PredictImage(encoded []byte) (float32, error) {
	p, err := c.PredictBatch([][]byte{encoded})
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// PredictBatch classifies several encoded images in one forward pass
func (c *Classifier) PredictBatch(images [][]byte) ([]float32, error) {
	if len(images) == 0 {
		return nil, nil
	}
	x := layer.NewTensor(c.Net.InputShape().Batched(len(images))...)
	for i, img := range images {
		px, err := caries.DecodeImage(img, c.size, c.Resampler)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		copy(x.Sample(i), px)
	}
	return c.Net.Infer(x)
}

// Quantized runs the exported TensorFlow Lite model with the reference kernels
type Quantized struct {
	Model     *tflite.Model
	Resampler caries.Resampler
	size      int
}

// LoadTFLite reads a quantized model written by the exporter
func LoadTFLite(path string, rs caries.Resampler) (*Quantized, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read tflite")
	}
	m, err := tflite.Inspect(buf)
	if err != nil {
		return nil, err
	}
	in := m.Input()
	if len(in.Shape) != 4 || in.Shape[1] != in.Shape[2] || in.Type != tflite.Uint8 || len(in.Scale) == 0 || len(in.ZeroPoint) == 0 {
		return nil, errors.Wrapf(tflite.ErrUnsupported, "input %s %v", in.Type, in.Shape)
	}
	if out := m.Output(); out.Type != tflite.Uint8 || len(out.Scale) == 0 || len(out.ZeroPoint) == 0 {
		return nil, errors.Wrapf(tflite.ErrUnsupported, "output %s", out.Type)
	}
	return &Quantized{Model: m, Resampler: rs, size: int(in.Shape[1])}, nil
}

// PredictImage quantizes the pixels with the input parameters and
// dequantizes the single output byte.
func (q *Quantized) PredictImage(encoded []byte) (float32, error) {
	px, err := caries.DecodeImage(encoded, q.size, q.Resampler)
	if err != nil {
		return 0, err
	}
	in := q.Model.Input()
	scale, zero := float64(in.Scale[0]), float64(in.ZeroPoint[0])
	data := make([]byte, len(px))
	for i, v := range px {
		data[i] = byte(math.Max(0, math.Min(255, math.Round(float64(v)/scale+zero))))
	}
	res, err := q.Model.Run(data)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, errors.New("inference: empty output")
	}
	out := q.Model.Output()
	return out.Scale[0] * float32(int64(res[0])-out.ZeroPoint[0]), nil
}
