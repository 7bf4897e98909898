// Package tflite converts the trained network into an 8 bit quantized
// TensorFlow Lite flatbuffer for microcontroller inference.
//
// Weights are symmetric int8 (per output channel for convolutions), biases
// int32 and activations affine int8 with ranges from calibration. Batch
// normalization is folded into the preceding convolution, ReLU is fused and
// dropout is dropped. The graph input and output are uint8.
package tflite

import "fmt"
import "math"

import "github.com/pkg/errors"

import "github.com/neurlang/caries/layer/activation"
import "github.com/neurlang/caries/layer/batchnorm"
import "github.com/neurlang/caries/layer/conv2d"
import "github.com/neurlang/caries/layer/dropout"
import "github.com/neurlang/caries/layer/flatten"
import "github.com/neurlang/caries/layer/full"
import "github.com/neurlang/caries/layer/maxpool2d"
import "github.com/neurlang/caries/net/feedforward"

// ErrUnsupported is returned for a network the converter cannot express
var ErrUnsupported = errors.New("tflite: unsupported network")

// Options of the conversion
type Options struct {
	Description string
}

// input quantization, pixels in [0, 1] map to 0..255
const inputScale = 1.0 / 255

// output quantization of the logistic, probabilities in [0, 1)
const (
	logisticScale = 1.0 / 256
	logisticZero  = -128
)

type converter struct {
	net    *feedforward.FeedforwardNetwork
	ranges Ranges
	g      *graph

	cur   int32 // current activation tensor
	shape []int32
	quant quantization
}

// Convert builds the quantized model of net
func Convert(net *feedforward.FeedforwardNetwork, ranges Ranges, opts Options) ([]byte, error) {
	if ranges.Samples == 0 || len(ranges.Layers) != net.Len() {
		return nil, errors.New("tflite: calibration ranges missing")
	}
	in := net.InputShape()
	if len(in) != 3 {
		return nil, errors.Wrapf(ErrUnsupported, "input shape %v is not HWC", in)
	}
	c := &converter{net: net, ranges: ranges, g: newGraph()}

	shape := []int32{1, int32(in[0]), int32(in[1]), int32(in[2])}
	input := c.g.addTensor(tensor{
		name:  "input",
		shape: shape,
		typ:   Uint8,
		quant: &quantization{scale: []float32{inputScale}, zero: []int64{0}},
	})
	c.g.inputs = []int32{input}
	c.shape = shape
	c.quant = quantization{scale: []float32{inputScale}, zero: []int64{-128}}
	c.cur = c.g.addTensor(tensor{name: "input_int8", shape: shape, typ: Int8, quant: c.q()})
	c.g.addOp(opQuantize, []int32{input}, []int32{c.cur}, optionsNone, nil)

	for i := 0; i < net.Len(); {
		n, err := c.lower(i)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d (%s)", i, net.GetCombiner(i).Kind())
		}
		i += n
	}

	q := c.quant
	output := c.g.addTensor(tensor{
		name:  "output",
		shape: c.shape,
		typ:   Uint8,
		quant: &quantization{scale: q.scale, zero: []int64{q.zero[0] + 128}},
	})
	c.g.addOp(opQuantize, []int32{c.cur}, []int32{output}, optionsNone, nil)
	c.g.outputs = []int32{output}

	return c.g.serialize(opts.Description), nil
}

// q returns a copy of the current activation quantization
func (c *converter) q() *quantization {
	return &quantization{scale: append([]float32(nil), c.quant.scale...), zero: append([]int64(nil), c.quant.zero...)}
}

func (c *converter) is(i int, typ activation.Type) bool {
	return i < c.net.Len() && activation.Is(c.net.GetCombiner(i), typ)
}

// output switches the current activation to a new int8 tensor whose range is
// the calibrated output of combiner i
func (c *converter) output(i int, name string, shape []int32) int32 {
	scale, zero := activationParams(c.ranges.Layers[i])
	c.quant = quantization{scale: []float32{scale}, zero: []int64{zero}}
	c.shape = shape
	c.cur = c.g.addTensor(tensor{name: name, shape: shape, typ: Int8, quant: c.q()})
	return c.cur
}

// same switches to a new tensor keeping the quantization
func (c *converter) same(name string, shape []int32) int32 {
	c.shape = shape
	c.cur = c.g.addTensor(tensor{name: name, shape: shape, typ: Int8, quant: c.q()})
	return c.cur
}

// lower emits the operators of combiner i and returns how many combiners were consumed
func (c *converter) lower(i int) (int, error) {
	switch l := c.net.GetCombiner(i).(type) {
	case *conv2d.Conv2D:
		return c.conv(i, l)
	case *full.Full:
		return c.full(i, l)
	case *maxpool2d.MaxPool2D:
		size := int32(l.Size())
		out := l.OutputShape()
		in := c.cur
		shape := []int32{1, int32(out[0]), int32(out[1]), int32(out[2])}
		c.g.addOp(opMaxPool2D, []int32{in}, []int32{c.same(fmt.Sprintf("maxpool2d_%d", i), shape)}, optionsPool2D, pool2DOptions(size))
		return 1, nil
	case *flatten.Flatten:
		n := int32(l.OutputShape()[0])
		shape := []int32{1, n}
		in := c.cur
		target := c.g.addConst(tensor{name: fmt.Sprintf("flatten_%d/shape", i), shape: []int32{2}, typ: Int32}, int32Bytes(shape))
		c.g.addOp(opReshape, []int32{in, target}, []int32{c.same(fmt.Sprintf("flatten_%d", i), shape)}, optionsReshape, reshapeOptions(shape))
		return 1, nil
	case *dropout.Dropout:
		return 1, nil
	case *activation.Activation:
		if l.Type() != activation.Sigmoid {
			return 0, errors.Wrapf(ErrUnsupported, "standalone %s", l.Type())
		}
		in := c.cur
		c.quant = quantization{scale: []float32{logisticScale}, zero: []int64{logisticZero}}
		c.g.addOp(opLogistic, []int32{in}, []int32{c.same(fmt.Sprintf("sigmoid_%d", i), c.shape)}, optionsNone, nil)
		return 1, nil
	}
	return 0, errors.Wrapf(ErrUnsupported, "%T", c.net.GetCombiner(i))
}

// conv emits a convolution with an optional folded batch normalization and fused ReLU
func (c *converter) conv(i int, l *conv2d.Conv2D) (int, error) {
	filters, k := l.Filters(), l.KernelSize()
	in := l.InputShape()
	per := k * k * in[2]
	w := append([]float32(nil), l.Weights().Value...)
	b := append([]float32(nil), l.Bias().Value...)

	used, last := 1, i
	if i+1 < c.net.Len() {
		if bn, ok := c.net.GetCombiner(i + 1).(*batchnorm.BatchNorm); ok {
			for o := 0; o < filters; o++ {
				s := float64(bn.Gamma().Value[o]) / math.Sqrt(float64(bn.MovingVariance().Value[o])+bn.Epsilon())
				for j := o * per; j < (o+1)*per; j++ {
					w[j] = float32(float64(w[j]) * s)
				}
				b[o] = float32((float64(b[o])-float64(bn.MovingMean().Value[o]))*s + float64(bn.Beta().Value[o]))
			}
			used, last = 2, i+1
		}
	}
	var fused byte = activationNone
	if c.is(i+used, activation.Relu) {
		fused = activationRelu
		last = i + used
		used++
	}

	qw := make([]int8, 0, len(w))
	scales := make([]float32, filters)
	for o := 0; o < filters; o++ {
		q, s := quantizeSymmetric(w[o*per : (o+1)*per])
		qw = append(qw, q...)
		scales[o] = s
	}
	zeros := make([]int64, filters)
	inScale := c.quant.scale[0]
	qb := quantizeBias(b, inScale, scales)
	biasScales := make([]float32, filters)
	for o := range biasScales {
		biasScales[o] = inScale * scales[o]
	}

	name := fmt.Sprintf("conv2d_%d", i)
	weights := c.g.addConst(tensor{
		name:  name + "/kernel",
		shape: []int32{int32(filters), int32(k), int32(k), int32(in[2])},
		typ:   Int8,
		quant: &quantization{scale: scales, zero: zeros, dim: 0},
	}, int8Bytes(qw))
	bias := c.g.addConst(tensor{
		name:  name + "/bias",
		shape: []int32{int32(filters)},
		typ:   Int32,
		quant: &quantization{scale: biasScales, zero: append([]int64(nil), zeros...), dim: 0},
	}, int32Bytes(qb))

	src := c.cur
	out := c.output(last, name, []int32{1, int32(in[0]), int32(in[1]), int32(filters)})
	c.g.addOp(opConv2D, []int32{src, weights, bias}, []int32{out}, optionsConv2D, conv2DOptions(fused))
	return used, nil
}

// full emits a fully connected layer with an optional fused ReLU
func (c *converter) full(i int, l *full.Full) (int, error) {
	if len(c.shape) != 2 {
		return 0, errors.Wrapf(ErrUnsupported, "dense layer on a %v tensor, flatten first", c.shape)
	}
	used, last := 1, i
	var fused byte = activationNone
	if c.is(i+1, activation.Relu) {
		fused, used, last = activationRelu, 2, i+1
	}
	qw, scale := quantizeSymmetric(l.Weights().Value)
	inScale := c.quant.scale[0]
	qb := quantizeBias(l.Bias().Value, inScale, []float32{scale})

	name := fmt.Sprintf("full_%d", i)
	weights := c.g.addConst(tensor{
		name:  name + "/kernel",
		shape: []int32{int32(l.Units()), int32(l.Inputs())},
		typ:   Int8,
		quant: &quantization{scale: []float32{scale}, zero: []int64{0}},
	}, int8Bytes(qw))
	bias := c.g.addConst(tensor{
		name:  name + "/bias",
		shape: []int32{int32(l.Units())},
		typ:   Int32,
		quant: &quantization{scale: []float32{inScale * scale}, zero: []int64{0}},
	}, int32Bytes(qb))

	src := c.cur
	out := c.output(last, name, []int32{1, int32(l.Units())})
	c.g.addOp(opFullyConnected, []int32{src, weights, bias}, []int32{out}, optionsFullyConnected, fullyConnectedOptions(fused))
	return used, nil
}
