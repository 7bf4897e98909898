// Package full implements a fully connected layer and combiner
package full

import "fmt"
import "math/rand"

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/parallel"

// FullLayer describes a dense layer with bias
type FullLayer struct {
	units int
	rng   *rand.Rand
}

// Full is the dense combiner. Weights are stored [units][inputs].
type Full struct {
	inputs, units int
	weights, bias *layer.Param

	x *layer.Tensor
}

// MustNew creates a new full layer with units outputs
func MustNew(units int, rng *rand.Rand) *FullLayer {
	o, err := New(units, rng)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new full layer with units outputs, Glorot uniform initialized from rng
func New(units int, rng *rand.Rand) (o *FullLayer, err error) {
	if units <= 0 {
		return nil, fmt.Errorf("New Full: Units %d must be positive", units)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &FullLayer{units: units, rng: rng}, nil
}

// Lay turns full layer into a combiner for vector inputs
func (i *FullLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("Lay Full: input shape %v is not a vector, flatten first", in)
	}
	o := &Full{inputs: in[0], units: i.units}
	o.weights = layer.NewParam("kernel", i.units, in[0])
	o.weights.GlorotUniform(i.rng, in[0], i.units)
	o.bias = layer.NewParam("bias", i.units)
	return o, nil
}

// Kind is "full"
func (f *Full) Kind() string {
	return "full"
}

// Params returns kernel and bias
func (f *Full) Params() []*layer.Param {
	return []*layer.Param{f.weights, f.bias}
}

// OutputShape is the number of units
func (f *Full) OutputShape() layer.Shape {
	return layer.Shape{f.units}
}

// Weights is the [units][inputs] kernel
func (f *Full) Weights() *layer.Param { return f.weights }

// Bias is the per unit bias
func (f *Full) Bias() *layer.Param { return f.bias }

// Inputs is the input vector size
func (f *Full) Inputs() int { return f.inputs }

// Units is the output vector size
func (f *Full) Units() int { return f.units }

func (f *Full) row(m int) []float32 {
	return f.weights.Value[m*f.inputs : (m+1)*f.inputs]
}

func (f *Full) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	batch := x.Batch()
	out := layer.NewTensor(batch, f.units)
	parallel.Each(batch, func(b int) {
		in := x.Sample(b)
		o := out.Sample(b)
		for m := range o {
			o[m] = layer.Dot(f.row(m), in) + f.bias.Value[m]
		}
	})
	if training {
		f.x = x
	}
	return out
}

func (f *Full) Backward(grad *layer.Tensor) *layer.Tensor {
	batch := grad.Batch()
	parallel.Each(f.units, func(m int) {
		dw := f.weights.Grad[m*f.inputs : (m+1)*f.inputs]
		for i := range dw {
			dw[i] = 0
		}
		var db float32
		for b := 0; b < batch; b++ {
			g := grad.Sample(b)[m]
			if g == 0 {
				continue
			}
			db += g
			layer.Axpy(g, f.x.Sample(b), dw)
		}
		f.bias.Grad[m] = db
	})
	dx := layer.NewTensor(batch, f.inputs)
	parallel.Each(batch, func(b int) {
		d := dx.Sample(b)
		for m, g := range grad.Sample(b) {
			if g == 0 {
				continue
			}
			layer.Axpy(g, f.row(m), d)
		}
	})
	return dx
}
