package tflite

import "math"

// Range is the observed float range of a tensor
type Range struct {
	Min, Max float64
}

// affine int8 parameters covering r, the range is widened to contain 0
func activationParams(r Range) (scale float32, zero int64) {
	lo, hi := math.Min(r.Min, 0), math.Max(r.Max, 0)
	if hi-lo < 1e-9 {
		hi = lo + 1e-9
	}
	s := (hi - lo) / 255
	z := math.Round(-128 - lo/s)
	return float32(s), int64(math.Max(-128, math.Min(127, z)))
}

// symmetric int8 quantization of w with a single scale
func quantizeSymmetric(w []float32) (q []int8, scale float32) {
	var m float64
	for _, v := range w {
		m = math.Max(m, math.Abs(float64(v)))
	}
	s := m / 127
	if s == 0 {
		s = 1
	}
	q = make([]int8, len(w))
	for i, v := range w {
		q[i] = int8(math.Max(-127, math.Min(127, math.Round(float64(v)/s))))
	}
	return q, float32(s)
}

// bias quantized with the product of the input and weight scales
func quantizeBias(b []float32, inScale float32, wScales []float32) []int32 {
	q := make([]int32, len(b))
	for i, v := range b {
		ws := wScales[0]
		if len(wScales) > 1 {
			ws = wScales[i]
		}
		x := math.Round(float64(v) / (float64(inScale) * float64(ws)))
		q[i] = int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, x)))
	}
	return q
}
