// Package activation implements elementwise activation layers
package activation

import "fmt"
import "math"

import "github.com/neurlang/caries/layer"

// Type names an activation function
type Type string

const (
	Relu    Type = "relu"
	Sigmoid Type = "sigmoid"
)

// ActivationLayer describes an elementwise activation
type ActivationLayer struct {
	typ Type
}

// Activation is the activation combiner. It caches its output, which is all
// both supported functions need for the backward pass.
type Activation struct {
	typ   Type
	shape layer.Shape
	y     *layer.Tensor
}

// MustNew creates an activation layer
func MustNew(typ Type) *ActivationLayer {
	o, err := New(typ)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates an activation layer
func New(typ Type) (*ActivationLayer, error) {
	switch typ {
	case Relu, Sigmoid:
		return &ActivationLayer{typ: typ}, nil
	}
	return nil, fmt.Errorf("New Activation: unknown type %q", typ)
}

// Lay turns the layer into a combiner
func (i *ActivationLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	return &Activation{typ: i.typ, shape: append(layer.Shape(nil), in...)}, nil
}

// Kind is the activation type
func (f *Activation) Kind() string {
	return string(f.typ)
}

// Type is the activation type
func (f *Activation) Type() Type {
	return f.typ
}

// Params is empty
func (f *Activation) Params() []*layer.Param {
	return nil
}

// OutputShape equals the input shape
func (f *Activation) OutputShape() layer.Shape {
	return f.shape
}

func (f *Activation) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	y := &layer.Tensor{Shape: append(layer.Shape(nil), x.Shape...), Data: make([]float32, len(x.Data))}
	switch f.typ {
	case Relu:
		for i, v := range x.Data {
			if v > 0 {
				y.Data[i] = v
			}
		}
	case Sigmoid:
		for i, v := range x.Data {
			y.Data[i] = float32(1 / (1 + math.Exp(-float64(v))))
		}
	}
	if training {
		f.y = y
	}
	return y
}

func (f *Activation) Backward(grad *layer.Tensor) *layer.Tensor {
	dx := &layer.Tensor{Shape: append(layer.Shape(nil), grad.Shape...), Data: make([]float32, len(grad.Data))}
	switch f.typ {
	case Relu:
		for i, g := range grad.Data {
			if f.y.Data[i] > 0 {
				dx.Data[i] = g
			}
		}
	case Sigmoid:
		for i, g := range grad.Data {
			y := f.y.Data[i]
			dx.Data[i] = g * y * (1 - y)
		}
	}
	return dx
}

// Is reports whether c is an activation combiner of the given type
func Is(c layer.Combiner, typ Type) bool {
	a, ok := c.(*Activation)
	return ok && a.typ == typ
}
