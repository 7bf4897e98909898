// Package conv2d implements a 2D convolution layer and combiner with same padding
package conv2d

import "fmt"
import "math/rand"

import "github.com/neurlang/caries/layer"

// Conv2DLayer describes a stride 1, same padded convolution with bias
type Conv2DLayer struct {
	filters, kernel int
	rng             *rand.Rand
}

// Conv2D is the convolution combiner. Kernels are stored OHWI:
// [filters][kernel][kernel][channels].
type Conv2D struct {
	height, width, channels int
	filters, kernel, pad    int

	weights, bias *layer.Param

	x *layer.Tensor
}

// MustNew creates a new Conv2D layer with filters and square kernel size
func MustNew(filters, kernel int, rng *rand.Rand) *Conv2DLayer {
	o, err := New(filters, kernel, rng)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new Conv2D layer with filters and square kernel size.
// The kernels are drawn from rng using Glorot uniform initialization.
func New(filters, kernel int, rng *rand.Rand) (o *Conv2DLayer, err error) {
	if filters <= 0 {
		return nil, fmt.Errorf("New Conv2D: Filters %d must be positive", filters)
	}
	if kernel <= 0 || kernel%2 == 0 {
		return nil, fmt.Errorf("New Conv2D: Kernel %d must be odd and positive", kernel)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Conv2DLayer{filters: filters, kernel: kernel, rng: rng}, nil
}

// Lay turns Conv2D layer into a combiner for HWC inputs
func (i *Conv2DLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("Lay Conv2D: input shape %v is not HWC", in)
	}
	o := &Conv2D{
		height:   in[0],
		width:    in[1],
		channels: in[2],
		filters:  i.filters,
		kernel:   i.kernel,
		pad:      (i.kernel - 1) / 2,
	}
	o.weights = layer.NewParam("kernel", i.filters, i.kernel, i.kernel, in[2])
	o.weights.GlorotUniform(i.rng, i.kernel*i.kernel*in[2], i.kernel*i.kernel*i.filters)
	o.bias = layer.NewParam("bias", i.filters)
	return o, nil
}
