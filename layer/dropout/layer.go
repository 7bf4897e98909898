// Package dropout implements inverted dropout with reproducible hash masks
package dropout

import "fmt"

import "github.com/neurlang/caries/hash"
import "github.com/neurlang/caries/layer"

// DropoutLayer describes a dropout layer
type DropoutLayer struct {
	rate float64
	seed uint64
}

// Dropout zeroes units with probability rate while training and scales the
// survivors by 1/(1-rate). Outside training it is the identity.
type Dropout struct {
	shape layer.Shape
	rate  float64
	seed  uint64
	step  uint64

	mask []bool
}

// MustNew creates a dropout layer
func MustNew(rate float64, seed uint64) *DropoutLayer {
	o, err := New(rate, seed)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a dropout layer. The masks are a function of seed, the
// training step and the unit index.
func New(rate float64, seed uint64) (*DropoutLayer, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("New Dropout: Rate %v out of [0, 1)", rate)
	}
	return &DropoutLayer{rate: rate, seed: seed}, nil
}

// Lay turns the layer into a combiner
func (i *DropoutLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	return &Dropout{shape: append(layer.Shape(nil), in...), rate: i.rate, seed: i.seed}, nil
}

// Kind is "dropout"
func (f *Dropout) Kind() string {
	return "dropout"
}

// Params is empty
func (f *Dropout) Params() []*layer.Param {
	return nil
}

// OutputShape equals the input shape
func (f *Dropout) OutputShape() layer.Shape {
	return f.shape
}

// Rate is the drop probability
func (f *Dropout) Rate() float64 {
	return f.rate
}

func (f *Dropout) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	if !training || f.rate == 0 {
		return x
	}
	salt := hash.Salt(f.seed, f.step)
	f.step++
	scale := float32(1 / (1 - f.rate))
	if len(f.mask) != len(x.Data) {
		f.mask = make([]bool, len(x.Data))
	}
	y := &layer.Tensor{Shape: append(layer.Shape(nil), x.Shape...), Data: make([]float32, len(x.Data))}
	for i, v := range x.Data {
		keep := hash.Keep(uint32(i), salt, f.rate)
		f.mask[i] = keep
		if keep {
			y.Data[i] = v * scale
		}
	}
	return y
}

func (f *Dropout) Backward(grad *layer.Tensor) *layer.Tensor {
	if f.rate == 0 {
		return grad
	}
	scale := float32(1 / (1 - f.rate))
	dx := &layer.Tensor{Shape: append(layer.Shape(nil), grad.Shape...), Data: make([]float32, len(grad.Data))}
	for i, g := range grad.Data {
		if f.mask[i] {
			dx.Data[i] = g * scale
		}
	}
	return dx
}
