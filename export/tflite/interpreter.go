package tflite

import "encoding/binary"
import "math"

import "github.com/pkg/errors"

func elements(shape []int32) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

func limits(t TensorType) (lo, hi int32) {
	if t == Uint8 {
		return 0, 255
	}
	return -128, 127
}

func dequantize(q int32, t TensorInfo) float64 {
	return float64(t.Scale[0]) * float64(int64(q)-t.ZeroPoint[0])
}

func requantize(x float64, t TensorInfo) int32 {
	lo, hi := limits(t.Type)
	q := math.Round(x/float64(t.Scale[0])) + float64(t.ZeroPoint[0])
	return int32(math.Max(float64(lo), math.Min(float64(hi), q)))
}

func (m *Model) constInt8(i int32) []int32 {
	data := m.Data(i)
	out := make([]int32, len(data))
	for j, b := range data {
		out[j] = int32(int8(b))
	}
	return out
}

func (m *Model) constInt32(i int32) []int32 {
	data := m.Data(i)
	out := make([]int32, len(data)/4)
	for j := range out {
		out[j] = int32(binary.LittleEndian.Uint32(data[4*j:]))
	}
	return out
}

// Run executes the model on one quantized input with reference kernels and
// returns the quantized output. It covers the operators Convert emits.
func (m *Model) Run(input []byte) ([]byte, error) {
	in := m.Input()
	if len(input) != elements(in.Shape) {
		return nil, errors.Errorf("tflite: input holds %d values, model takes %d", len(input), elements(in.Shape))
	}
	vals := make([][]int32, len(m.Tensors))
	vals[m.Inputs[0]] = make([]int32, len(input))
	for i, b := range input {
		if in.Type == Int8 {
			vals[m.Inputs[0]][i] = int32(int8(b))
		} else {
			vals[m.Inputs[0]][i] = int32(b)
		}
	}

	for n, op := range m.Operators {
		x := vals[op.Inputs[0]]
		if x == nil {
			return nil, errors.Errorf("tflite: operator %d (%s) reads an unset tensor", n, op.Name())
		}
		xt, yt := m.Tensors[op.Inputs[0]], m.Tensors[op.Outputs[0]]
		y := make([]int32, elements(yt.Shape))
		switch op.Code {
		case opQuantize:
			for i, q := range x {
				y[i] = requantize(dequantize(q, xt), yt)
			}
		case opLogistic:
			for i, q := range x {
				y[i] = requantize(1/(1+math.Exp(-dequantize(q, xt))), yt)
			}
		case opReshape:
			copy(y, x)
		case opMaxPool2D:
			h, w, c := int(xt.Shape[1]), int(xt.Shape[2]), int(xt.Shape[3])
			oh, ow := int(yt.Shape[1]), int(yt.Shape[2])
			fh, fw, sh, sw := int(op.FilterH), int(op.FilterW), int(op.StrideH), int(op.StrideW)
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					for ch := 0; ch < c; ch++ {
						best := int32(math.MinInt32)
						for ky := 0; ky < fh; ky++ {
							for kx := 0; kx < fw; kx++ {
								iy, ix := oy*sh+ky, ox*sw+kx
								if iy < h && ix < w && x[(iy*w+ix)*c+ch] > best {
									best = x[(iy*w+ix)*c+ch]
								}
							}
						}
						y[(oy*ow+ox)*c+ch] = best
					}
				}
			}
		case opConv2D:
			wt := m.Tensors[op.Inputs[1]]
			weights, bias := m.constInt8(op.Inputs[1]), m.constInt32(op.Inputs[2])
			h, w, c := int(xt.Shape[1]), int(xt.Shape[2]), int(xt.Shape[3])
			oh, ow, f := int(yt.Shape[1]), int(yt.Shape[2]), int(yt.Shape[3])
			kh, kw := int(wt.Shape[1]), int(wt.Shape[2])
			sh, sw := int(op.StrideH), int(op.StrideW)
			var ph, pw int
			if op.Padding == paddingSame {
				ph = max(0, ((oh-1)*sh+kh-h)/2)
				pw = max(0, ((ow-1)*sw+kw-w)/2)
			}
			zp := int64(xt.ZeroPoint[0])
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					for o := 0; o < f; o++ {
						acc := int64(bias[o])
						for ky := 0; ky < kh; ky++ {
							iy := oy*sh + ky - ph
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*sw + kx - pw
								if ix < 0 || ix >= w {
									continue
								}
								src := x[(iy*w+ix)*c : (iy*w+ix+1)*c]
								tap := weights[((o*kh+ky)*kw+kx)*c:]
								for ch, v := range src {
									acc += (int64(v) - zp) * int64(tap[ch])
								}
							}
						}
						ws := wt.Scale[0]
						if len(wt.Scale) > 1 {
							ws = wt.Scale[o]
						}
						y[(oy*ow+ox)*f+o] = requantize(activate(float64(acc)*float64(xt.Scale[0])*float64(ws), op.Fused), yt)
					}
				}
			}
		case opFullyConnected:
			wt := m.Tensors[op.Inputs[1]]
			weights, bias := m.constInt8(op.Inputs[1]), m.constInt32(op.Inputs[2])
			units, inputs := int(wt.Shape[0]), int(wt.Shape[1])
			zp := int64(xt.ZeroPoint[0])
			for u := 0; u < units; u++ {
				acc := int64(bias[u])
				row := weights[u*inputs : (u+1)*inputs]
				for i, v := range x[:inputs] {
					acc += (int64(v) - zp) * int64(row[i])
				}
				y[u] = requantize(activate(float64(acc)*float64(xt.Scale[0])*float64(wt.Scale[0]), op.Fused), yt)
			}
		default:
			return nil, errors.Wrapf(ErrUnsupported, "operator %s", op.Name())
		}
		vals[op.Outputs[0]] = y
	}

	out := vals[m.Outputs[0]]
	b := make([]byte, len(out))
	for i, v := range out {
		b[i] = byte(v)
	}
	return b, nil
}

func activate(x float64, fused byte) float64 {
	if fused == activationRelu && x < 0 {
		return 0
	}
	return x
}
