// Package flatten implements the layer which folds a sample into a vector
package flatten

import "github.com/neurlang/caries/layer"

// FlattenLayer describes a flatten layer
type FlattenLayer struct{}

// Flatten reshapes samples to one dimension, keeping row-major (HWC) order
type Flatten struct {
	in layer.Shape
}

// New creates a flatten layer
func New() *FlattenLayer {
	return &FlattenLayer{}
}

// Lay turns the layer into a combiner
func (i *FlattenLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	return &Flatten{in: append(layer.Shape(nil), in...)}, nil
}

// Kind is "flatten"
func (f *Flatten) Kind() string {
	return "flatten"
}

// Params is empty
func (f *Flatten) Params() []*layer.Param {
	return nil
}

// OutputShape is the size of the input sample
func (f *Flatten) OutputShape() layer.Shape {
	return layer.Shape{f.in.Size()}
}

func (f *Flatten) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	return x.Reshape(x.Batch(), f.in.Size())
}

func (f *Flatten) Backward(grad *layer.Tensor) *layer.Tensor {
	return grad.Reshape(f.in.Batched(grad.Batch())...)
}
