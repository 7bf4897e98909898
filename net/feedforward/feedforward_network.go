// Package feedforward implements a feedforward network type
package feedforward

import "fmt"

import "github.com/pkg/errors"

import "github.com/neurlang/caries/layer"

// ErrShape is returned when a tensor or a stored parameter does not fit the network
var ErrShape = errors.New("feedforward: shape mismatch")

// FeedforwardNetwork is a chain of combiners
type FeedforwardNetwork struct {
	input     layer.Shape
	combiners []layer.Combiner
}

// NamedParam is a parameter labelled with its position in the network,
// e.g. "conv2d_0/kernel".
type NamedParam struct {
	Name string
	*layer.Param
}

// Weights is a copy of every parameter value in Params order
type Weights [][]float32

// NewInput sets the per sample input shape. It must be called before NewCombiner.
func (f *FeedforwardNetwork) NewInput(shape ...int) {
	f.input = append(layer.Shape(nil), shape...)
	f.combiners = nil
}

// NewCombiner lays l on top of the current output shape
func (f *FeedforwardNetwork) NewCombiner(l layer.Layer) error {
	if f.input == nil {
		return errors.New("feedforward: NewInput must be called first")
	}
	c, err := l.Lay(f.OutputShape())
	if err != nil {
		return errors.Wrapf(err, "layer %d", len(f.combiners))
	}
	f.combiners = append(f.combiners, c)
	return nil
}

// MustNewCombiner is NewCombiner that panics
func (f *FeedforwardNetwork) MustNewCombiner(l layer.Layer) {
	if err := f.NewCombiner(l); err != nil {
		panic(err.Error())
	}
}

// Len returns the number of combiners
func (f FeedforwardNetwork) Len() int {
	return len(f.combiners)
}

// GetCombiner gets the n-th combiner
func (f FeedforwardNetwork) GetCombiner(n int) layer.Combiner {
	return f.combiners[n]
}

// InputShape is the per sample input shape
func (f FeedforwardNetwork) InputShape() layer.Shape {
	return f.input
}

// OutputShape is the per sample output shape
func (f FeedforwardNetwork) OutputShape() layer.Shape {
	if len(f.combiners) == 0 {
		return f.input
	}
	return f.combiners[len(f.combiners)-1].OutputShape()
}

func (f *FeedforwardNetwork) check(x *layer.Tensor) error {
	if len(x.Shape) == 0 || !layer.Shape(x.Shape[1:]).Equal(f.input) {
		return errors.Wrapf(ErrShape, "input %v, network expects [batch %v]", x.Shape, f.input)
	}
	if len(x.Data) != x.Shape.Size() {
		return errors.Wrapf(ErrShape, "input %v holds %d values", x.Shape, len(x.Data))
	}
	return nil
}

// Forward runs the batch through every combiner
func (f *FeedforwardNetwork) Forward(x *layer.Tensor, training bool) (*layer.Tensor, error) {
	return f.Trace(x, training, nil)
}

// Trace is Forward that reports the output of every combiner to fn
func (f *FeedforwardNetwork) Trace(x *layer.Tensor, training bool, fn func(n int, c layer.Combiner, out *layer.Tensor)) (*layer.Tensor, error) {
	if err := f.check(x); err != nil {
		return nil, err
	}
	for n, c := range f.combiners {
		x = c.Forward(x, training)
		if fn != nil {
			fn(n, c, x)
		}
	}
	return x, nil
}

// Infer returns the network output for the batch in inference mode, one
// value per sample for a single unit output.
func (f *FeedforwardNetwork) Infer(x *layer.Tensor) ([]float32, error) {
	out, err := f.Forward(x, false)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// BackwardFrom propagates grad, the gradient at the input of combiner n
// (equivalently the output of combiner n-1), down to the network input.
// Training uses n = Len() on plain losses and n = Len()-1 to skip a final
// sigmoid whose gradient is folded into the loss.
func (f *FeedforwardNetwork) BackwardFrom(n int, grad *layer.Tensor) *layer.Tensor {
	for i := n - 1; i >= 0; i-- {
		grad = f.combiners[i].Backward(grad)
	}
	return grad
}

// Params lists every parameter with its qualified name
func (f *FeedforwardNetwork) Params() (o []NamedParam) {
	for n, c := range f.combiners {
		for _, p := range c.Params() {
			o = append(o, NamedParam{Name: fmt.Sprintf("%s_%d/%s", c.Kind(), n, p.Name), Param: p})
		}
	}
	return
}

// CountParams reports the number of trainable and non trainable values
func (f *FeedforwardNetwork) CountParams() (trainable, other int) {
	for _, p := range f.Params() {
		if p.Trainable {
			trainable += len(p.Value)
		} else {
			other += len(p.Value)
		}
	}
	return
}

// Snapshot copies every parameter value
func (f *FeedforwardNetwork) Snapshot() Weights {
	params := f.Params()
	w := make(Weights, len(params))
	for i, p := range params {
		w[i] = append([]float32(nil), p.Value...)
	}
	return w
}

// Restore overwrites the parameters with a snapshot taken from the same topology
func (f *FeedforwardNetwork) Restore(w Weights) error {
	params := f.Params()
	if len(params) != len(w) {
		return errors.Wrapf(ErrShape, "snapshot has %d parameters, network %d", len(w), len(params))
	}
	for i, p := range params {
		if len(w[i]) != len(p.Value) {
			return errors.Wrapf(ErrShape, "snapshot parameter %s has %d values, want %d", p.Name, len(w[i]), len(p.Value))
		}
	}
	for i, p := range params {
		copy(p.Value, w[i])
	}
	return nil
}

// Summary lists the combiners with their output shapes
func (f *FeedforwardNetwork) Summary() (o []string) {
	o = append(o, fmt.Sprintf("input %v", f.input))
	for n, c := range f.combiners {
		var size int
		for _, p := range c.Params() {
			size += len(p.Value)
		}
		o = append(o, fmt.Sprintf("%s_%d %v params=%d", c.Kind(), n, c.OutputShape(), size))
	}
	return
}
