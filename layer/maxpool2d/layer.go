// Package maxpool2d implements a 2D max pooling layer and combiner (valid padding, stride equal to size)
package maxpool2d

import "fmt"

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/parallel"

// MaxPool2DLayer describes a square max pooling window
type MaxPool2DLayer struct {
	size int
}

// MaxPool2D is the pooling combiner. It remembers the winning input of every
// output for the backward pass.
type MaxPool2D struct {
	height, width, channels int
	size, oh, ow            int

	argmax []int32
	in     layer.Shape
}

// New creates a new MaxPool2D layer with window size
func New(size int) (o *MaxPool2DLayer, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("New MaxPool2D: Size %d must be positive", size)
	}
	return &MaxPool2DLayer{size: size}, nil
}

// MustNew creates a new MaxPool2D layer with window size
func MustNew(size int) (o *MaxPool2DLayer) {
	o, err := New(size)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// Lay turns MaxPool2D layer into a combiner
func (i *MaxPool2DLayer) Lay(in layer.Shape) (layer.Combiner, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("Lay MaxPool2D: input shape %v is not HWC", in)
	}
	if in[0] < i.size || in[1] < i.size {
		return nil, fmt.Errorf("Lay MaxPool2D: input %v smaller than window %d", in, i.size)
	}
	return &MaxPool2D{
		height:   in[0],
		width:    in[1],
		channels: in[2],
		size:     i.size,
		oh:       in[0] / i.size,
		ow:       in[1] / i.size,
	}, nil
}

// Kind is "maxpool2d"
func (f *MaxPool2D) Kind() string {
	return "maxpool2d"
}

// Params is empty
func (f *MaxPool2D) Params() []*layer.Param {
	return nil
}

// OutputShape is the floored pooled shape
func (f *MaxPool2D) OutputShape() layer.Shape {
	return layer.Shape{f.oh, f.ow, f.channels}
}

// Size is the window side and the stride
func (f *MaxPool2D) Size() int {
	return f.size
}

func (f *MaxPool2D) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	batch := x.Batch()
	c := f.channels
	out := layer.NewTensor(batch, f.oh, f.ow, c)
	var argmax []int32
	if training {
		argmax = make([]int32, len(out.Data))
	}
	parallel.Each(batch, func(b int) {
		src := x.Sample(b)
		dst := out.Sample(b)
		base := b * len(dst)
		for oy := 0; oy < f.oh; oy++ {
			for ox := 0; ox < f.ow; ox++ {
				for ch := 0; ch < c; ch++ {
					best := -1
					var max float32
					for ky := 0; ky < f.size; ky++ {
						for kx := 0; kx < f.size; kx++ {
							idx := ((oy*f.size+ky)*f.width+(ox*f.size+kx))*c + ch
							if best < 0 || src[idx] > max {
								best, max = idx, src[idx]
							}
						}
					}
					o := (oy*f.ow+ox)*c + ch
					dst[o] = max
					if argmax != nil {
						argmax[base+o] = int32(best)
					}
				}
			}
		}
	})
	if training {
		f.argmax = argmax
		f.in = append(layer.Shape(nil), x.Shape...)
	}
	return out
}

func (f *MaxPool2D) Backward(grad *layer.Tensor) *layer.Tensor {
	dx := layer.NewTensor(f.in...)
	batch := grad.Batch()
	parallel.Each(batch, func(b int) {
		g := grad.Sample(b)
		d := dx.Sample(b)
		base := b * len(g)
		for o, v := range g {
			d[f.argmax[base+o]] += v
		}
	})
	return dx
}
