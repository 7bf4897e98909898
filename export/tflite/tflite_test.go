package tflite

import "math/rand"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/layer/activation"
import "github.com/neurlang/caries/layer/batchnorm"
import "github.com/neurlang/caries/layer/maxpool2d"
import "github.com/neurlang/caries/model"
import "github.com/neurlang/caries/net/feedforward"

const size = 8

// images with pixels on the 1/255 grid, so the uint8 input is exact
func images(seed int64, n int) (*layer.Tensor, [][]byte) {
	rng := rand.New(rand.NewSource(seed))
	x := layer.NewTensor(n, size, size, 3)
	raw := make([][]byte, n)
	for b := 0; b < n; b++ {
		raw[b] = make([]byte, size*size*3)
		for i := range raw[b] {
			raw[b][i] = byte(rng.Intn(256))
			x.Sample(b)[i] = float32(raw[b][i]) / 255
		}
	}
	return x, raw
}

func calibrated(t *testing.T) (*feedforward.FeedforwardNetwork, Ranges, *layer.Tensor, [][]byte) {
	net, err := model.New(model.Options{ImageSize: size, DropoutRate: 0.5, Seed: 11})
	require.NoError(t, err)
	x, raw := images(1, 16)
	c := NewCalibrator(net)
	require.NoError(t, c.Observe(x))
	return net, c.Ranges(), x, raw
}

func TestConvert(t *testing.T) {
	net, ranges, _, _ := calibrated(t)
	buf, err := Convert(net, ranges, Options{Description: "caries"})
	require.NoError(t, err)
	require.NotEmpty(t, buf)
	assert.Equal(t, fileIdentifier, string(buf[4:8]))

	m, err := Inspect(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), m.Version)
	assert.Equal(t, "caries", m.Description)

	in, out := m.Input(), m.Output()
	assert.Equal(t, Uint8, in.Type)
	assert.Equal(t, []int32{1, size, size, 3}, in.Shape)
	assert.InDelta(t, 1.0/255, in.Scale[0], 1e-9)
	assert.Equal(t, []int64{0}, in.ZeroPoint)
	assert.Equal(t, Uint8, out.Type)
	assert.Equal(t, []int32{1, 1}, out.Shape)
	assert.InDelta(t, 1.0/256, out.Scale[0], 1e-9)
	assert.Equal(t, []int64{0}, out.ZeroPoint)

	assert.Equal(t, []string{
		"QUANTIZE",
		"CONV_2D", "MAX_POOL_2D",
		"CONV_2D", "MAX_POOL_2D",
		"CONV_2D", "MAX_POOL_2D",
		"RESHAPE", "FULLY_CONNECTED", "FULLY_CONNECTED", "LOGISTIC",
		"QUANTIZE",
	}, m.OperatorNames())

	conv := m.Operators[1]
	assert.Equal(t, byte(activationRelu), conv.Fused)
	kernel := m.Tensors[conv.Inputs[1]]
	assert.Equal(t, Int8, kernel.Type)
	assert.Equal(t, []int32{32, 3, 3, 3}, kernel.Shape)
	assert.Len(t, kernel.Scale, 32)
	assert.Equal(t, Int32, m.Tensors[conv.Inputs[2]].Type)
	for _, op := range m.Operators[1 : len(m.Operators)-1] {
		assert.Equal(t, Int8, m.Tensors[op.Outputs[0]].Type, op.Name())
	}
	assert.Equal(t, byte(activationRelu), m.Operators[8].Fused)
	assert.Equal(t, byte(activationNone), m.Operators[9].Fused)
}

func TestConvertIsDeterministic(t *testing.T) {
	net, ranges, _, _ := calibrated(t)
	a, err := Convert(net, ranges, Options{})
	require.NoError(t, err)
	b, err := Convert(net, ranges, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQuantizedMatchesFloat(t *testing.T) {
	net, ranges, x, raw := calibrated(t)
	buf, err := Convert(net, ranges, Options{})
	require.NoError(t, err)
	m, err := Inspect(buf)
	require.NoError(t, err)

	probs, err := net.Infer(x)
	require.NoError(t, err)
	for b, p := range probs {
		out, err := m.Run(raw[b])
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.InDelta(t, p, float64(out[0])/256, 0.08, "sample %d", b)
	}
}

func TestConvertRejects(t *testing.T) {
	net, _, x, _ := calibrated(t)
	_, err := Convert(net, Ranges{}, Options{})
	assert.Error(t, err)

	var bad feedforward.FeedforwardNetwork
	bad.NewInput(size, size, 3)
	bad.MustNewCombiner(batchnorm.MustNew())
	bad.MustNewCombiner(maxpool2d.MustNew(2))
	bad.MustNewCombiner(activation.MustNew(activation.Relu))
	c := NewCalibrator(&bad)
	require.NoError(t, c.Observe(x))
	_, err = Convert(&bad, c.Ranges(), Options{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestInspectRejects(t *testing.T) {
	_, err := Inspect([]byte("nope"))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Inspect([]byte{0xff, 0xff, 0xff, 0x7f, 'T', 'F', 'L', '3'})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestActivationParams(t *testing.T) {
	s, z := activationParams(Range{Min: 0, Max: 6})
	assert.InDelta(t, 6.0/255, s, 1e-7)
	assert.Equal(t, int64(-128), z)

	s, z = activationParams(Range{Min: -1.28, Max: 1.27})
	assert.InDelta(t, 0.01, s, 1e-7)
	assert.Equal(t, int64(0), z)

	// a positive only range still represents zero exactly
	s, z = activationParams(Range{Min: 2, Max: 3})
	assert.InDelta(t, 3.0/255, s, 1e-7)
	assert.Equal(t, int64(-128), z)

	q, scale := quantizeSymmetric([]float32{1, -1, 0.25})
	assert.InDelta(t, 1.0/127, scale, 1e-7)
	assert.Equal(t, []int8{127, -127, 32}, q)

	q, scale = quantizeSymmetric([]float32{0, 0})
	assert.Equal(t, float32(1), scale)
	assert.Equal(t, []int8{0, 0}, q)
}
