package conv2d

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/parallel"

// Kind is "conv2d"
func (f *Conv2D) Kind() string {
	return "conv2d"
}

// Params returns kernel and bias
func (f *Conv2D) Params() []*layer.Param {
	return []*layer.Param{f.weights, f.bias}
}

// OutputShape is HWF, same padding keeps the spatial size
func (f *Conv2D) OutputShape() layer.Shape {
	return layer.Shape{f.height, f.width, f.filters}
}

// Weights is the OHWI kernel
func (f *Conv2D) Weights() *layer.Param {
	return f.weights
}

// Bias is the per filter bias
func (f *Conv2D) Bias() *layer.Param {
	return f.bias
}

// Filters is the number of output channels
func (f *Conv2D) Filters() int {
	return f.filters
}

// KernelSize is the side of the square kernel
func (f *Conv2D) KernelSize() int {
	return f.kernel
}

// InputShape is the HWC input shape
func (f *Conv2D) InputShape() layer.Shape {
	return layer.Shape{f.height, f.width, f.channels}
}

// tap is the channel vector of kernel position k = (filter*kernel+ky)*kernel+kx
func (f *Conv2D) tap(k int) []float32 {
	return f.weights.Value[k*f.channels : (k+1)*f.channels]
}

func (f *Conv2D) Forward(x *layer.Tensor, training bool) *layer.Tensor {
	h, w, c, k := f.height, f.width, f.channels, f.kernel
	batch := x.Batch()
	out := layer.NewTensor(batch, h, w, f.filters)
	parallel.Each(batch, func(b int) {
		src := x.Sample(b)
		dst := out.Sample(b)
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				o := dst[(y*w+xx)*f.filters : (y*w+xx+1)*f.filters]
				copy(o, f.bias.Value)
				for ky := 0; ky < k; ky++ {
					iy := y + ky - f.pad
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := xx + kx - f.pad
						if ix < 0 || ix >= w {
							continue
						}
						in := src[(iy*w+ix)*c : (iy*w+ix+1)*c]
						for fi := range o {
							o[fi] += layer.Dot(f.tap((fi*k+ky)*k+kx), in)
						}
					}
				}
			}
		}
	})
	if training {
		f.x = x
	}
	return out
}

func (f *Conv2D) Backward(grad *layer.Tensor) *layer.Tensor {
	h, w, c, k := f.height, f.width, f.channels, f.kernel
	batch := f.x.Batch()
	dx := layer.NewTensor(f.x.Shape...)

	// parameter gradients, one filter per goroutine
	parallel.Each(f.filters, func(fi int) {
		dw := f.weights.Grad[fi*k*k*c : (fi+1)*k*k*c]
		for i := range dw {
			dw[i] = 0
		}
		var db float32
		for b := 0; b < batch; b++ {
			src := f.x.Sample(b)
			g := grad.Sample(b)
			for y := 0; y < h; y++ {
				for xx := 0; xx < w; xx++ {
					gv := g[(y*w+xx)*f.filters+fi]
					if gv == 0 {
						continue
					}
					db += gv
					for ky := 0; ky < k; ky++ {
						iy := y + ky - f.pad
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := xx + kx - f.pad
							if ix < 0 || ix >= w {
								continue
							}
							layer.Axpy(gv, src[(iy*w+ix)*c:(iy*w+ix+1)*c], dw[(ky*k+kx)*c:(ky*k+kx+1)*c])
						}
					}
				}
			}
		}
		f.bias.Grad[fi] = db
	})

	// input gradients, one sample per goroutine
	parallel.Each(batch, func(b int) {
		g := grad.Sample(b)
		d := dx.Sample(b)
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				gs := g[(y*w+xx)*f.filters : (y*w+xx+1)*f.filters]
				for ky := 0; ky < k; ky++ {
					iy := y + ky - f.pad
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := xx + kx - f.pad
						if ix < 0 || ix >= w {
							continue
						}
						din := d[(iy*w+ix)*c : (iy*w+ix+1)*c]
						for fi, gv := range gs {
							if gv == 0 {
								continue
							}
							layer.Axpy(gv, f.tap((fi*k+ky)*k+kx), din)
						}
					}
				}
			}
		}
	})
	return dx
}
