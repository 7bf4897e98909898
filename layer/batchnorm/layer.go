// Package batchnorm implements batch normalization over the last (channel) axis
package batchnorm

import "fmt"
import "math"

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/parallel"

// Defaults match the usual Keras layer.
const (
	DefaultMomentum = 0.99
	DefaultEpsilon  = 1e-3
)

// BatchNormLayer describes a batch normalization layer
type BatchNormLayer struct {
	momentum, epsilon float64
}

// BatchNorm normalizes with batch statistics while training and with the
// moving statistics otherwise.
type BatchNorm struct {
	shape    layer.Shape
	channels int

	gamma, beta, mean, variance *layer.Param
	momentum, epsilon           float64

	xhat   []float32
	invstd []float32
}

// MustNew creates a batch normalization layer with default momentum and epsilon
func MustNew() *BatchNormLayer {
	o, err := New(DefaultMomentum, DefaultEpsilon)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a batch normalization layer
func New(momentum, epsilon float64) (*BatchNormLayer, error) {
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("New BatchNorm: Momentum %v out of [0, 1)", momentum)
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("New BatchNorm: Epsilon %v must be positive", epsilon)
	}
	return &BatchNormLayer{momentum: momentum, epsilon: epsilon}, nil
}

// Lay turns the layer into a combiner
func (i *BatchNormLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("Lay BatchNorm: empty input shape")
	}
	c := in[len(in)-1]
	o := &BatchNorm{
		shape:    append(layer.Shape(nil), in...),
		channels: c,
		gamma:    layer.NewParam("gamma", c),
		beta:     layer.NewParam("beta", c),
		mean:     layer.NewState("moving_mean", 0, c),
		variance: layer.NewState("moving_variance", 1, c),
		momentum: i.momentum,
		epsilon:  i.epsilon,
	}
	o.gamma.Fill(1)
	return o, nil
}

// Kind is "batchnorm"
func (f *BatchNorm) Kind() string {
	return "batchnorm"
}

// Params returns gamma, beta, moving mean and moving variance
func (f *BatchNorm) Params() []*layer.Param {
	return []*layer.Param{f.gamma, f.beta, f.mean, f.variance}
}

// OutputShape equals the input shape
func (f *BatchNorm) OutputShape() layer.Shape {
	return f.shape
}

// Gamma is the learned scale
func (f *BatchNorm) Gamma() *layer.Param { return f.gamma }

// Beta is the learned offset
func (f *BatchNorm) Beta() *layer.Param { return f.beta }

// MovingMean is the inference mean
func (f *BatchNorm) MovingMean() *layer.Param { return f.mean }

// MovingVariance is the inference variance
func (f *BatchNorm) MovingVariance() *layer.Param { return f.variance }

// Epsilon is added to the variance before the square root
func (f *BatchNorm) Epsilon() float64 { return f.epsilon }

func (f *BatchNorm) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	c := f.channels
	out := &layer.Tensor{Shape: append(layer.Shape(nil), x.Shape...), Data: make([]float32, len(x.Data))}
	if !training {
		parallel.Each(c, func(ch int) {
			inv := 1 / math.Sqrt(float64(f.variance.Value[ch])+f.epsilon)
			scale := float32(float64(f.gamma.Value[ch]) * inv)
			shift := f.beta.Value[ch] - f.mean.Value[ch]*scale
			for i := ch; i < len(x.Data); i += c {
				out.Data[i] = x.Data[i]*scale + shift
			}
		})
		return out
	}

	n := len(x.Data) / c
	if len(f.xhat) != len(x.Data) {
		f.xhat = make([]float32, len(x.Data))
	}
	if len(f.invstd) != c {
		f.invstd = make([]float32, c)
	}
	m := float32(f.momentum)
	parallel.Each(c, func(ch int) {
		var sum float64
		for i := ch; i < len(x.Data); i += c {
			sum += float64(x.Data[i])
		}
		mean := sum / float64(n)
		var sq float64
		for i := ch; i < len(x.Data); i += c {
			d := float64(x.Data[i]) - mean
			sq += d * d
		}
		variance := sq / float64(n)
		inv := 1 / math.Sqrt(variance+f.epsilon)
		f.invstd[ch] = float32(inv)
		g, b := f.gamma.Value[ch], f.beta.Value[ch]
		for i := ch; i < len(x.Data); i += c {
			xh := float32((float64(x.Data[i]) - mean) * inv)
			f.xhat[i] = xh
			out.Data[i] = g*xh + b
		}
		f.mean.Value[ch] = f.mean.Value[ch]*m + float32(mean)*(1-m)
		f.variance.Value[ch] = f.variance.Value[ch]*m + float32(variance)*(1-m)
	})
	return out
}

func (f *BatchNorm) Backward(grad *layer.Tensor) *layer.Tensor {
	c := f.channels
	n := float32(len(grad.Data) / c)
	dx := &layer.Tensor{Shape: append(layer.Shape(nil), grad.Shape...), Data: make([]float32, len(grad.Data))}
	parallel.Each(c, func(ch int) {
		var dg, db float64
		for i := ch; i < len(grad.Data); i += c {
			dg += float64(grad.Data[i] * f.xhat[i])
			db += float64(grad.Data[i])
		}
		f.gamma.Grad[ch] = float32(dg)
		f.beta.Grad[ch] = float32(db)
		k := f.gamma.Value[ch] * f.invstd[ch] / n
		for i := ch; i < len(grad.Data); i += c {
			dx.Data[i] = k * (n*grad.Data[i] - float32(db) - f.xhat[i]*float32(dg))
		}
	})
	return dx
}
