package trainer

import "bytes"
import "context"
import "image"
import "image/jpeg"
import "math"
import "os"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/caries/datasets"
import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/learning"
import "github.com/neurlang/caries/model"
import "github.com/neurlang/caries/net/feedforward"
import "github.com/neurlang/caries/tfrecord"

func TestSteps(t *testing.T) {
	for _, tc := range []struct {
		train, valid, batch int
		wantTrain, wantValid int
	}{
		{200, 200, 32, 6, 7},
		{100, 100, 32, 3, 4},
		{64, 64, 32, 2, 2},
		{31, 1, 32, 0, 1},
		{0, 0, 32, 0, 0},
	} {
		train, valid := Steps(tc.train, tc.valid, tc.batch)
		assert.Equal(t, tc.wantTrain, train, "%v", tc)
		assert.Equal(t, tc.wantValid, valid, "%v", tc)
	}
}

func state(t *testing.T) *State {
	net, err := model.New(model.Options{ImageSize: 8, DropoutRate: 0.5, Seed: 1})
	require.NoError(t, err)
	return &State{Net: net, Optimizer: learning.NewAdam(learning.DefaultHyperParameters(1))}
}

// mark fills every parameter with v so a restore can be told apart
func mark(net *feedforward.FeedforwardNetwork, v float32) {
	for _, p := range net.Params() {
		p.Fill(v)
	}
}

func TestEarlyStopping(t *testing.T) {
	s := state(t)
	e := NewEarlyStopping(3)
	for i, acc := range []float64{0.5, 0.6, 0.55, 0.6, 0.55} {
		mark(s.Net, float32(i+1))
		require.NoError(t, e.OnEpochEnd(s, EpochLog{Epoch: i + 1, ValAccuracy: acc}))
		assert.Equal(t, i == 4, s.Stop, "epoch %d", i+1)
	}
	assert.Equal(t, 5, e.Stopped())
	assert.Equal(t, 2, e.BestEpoch())

	require.NoError(t, e.OnTrainEnd(s))
	assert.Equal(t, float32(2), s.Net.Params()[0].Value[0])
}

func TestEarlyStoppingRestoresWithoutStop(t *testing.T) {
	s := state(t)
	e := NewEarlyStopping(15)
	for i, acc := range []float64{0.7, 0.5} {
		mark(s.Net, float32(i+1))
		require.NoError(t, e.OnEpochEnd(s, EpochLog{Epoch: i + 1, ValAccuracy: acc}))
	}
	assert.False(t, s.Stop)
	require.NoError(t, e.OnTrainEnd(s))
	assert.Equal(t, float32(1), s.Net.Params()[0].Value[0])
}

func TestReduceLROnPlateau(t *testing.T) {
	s := state(t)
	r := NewReduceLROnPlateau(0.5, 2, 0.3)
	var lrs []float64
	for i, acc := range []float64{0.5, 0.5, 0.5, 0.50005, 0.5, 0.5, 0.5, 0.9, 0.9} {
		require.NoError(t, r.OnEpochEnd(s, EpochLog{Epoch: i + 1, ValAccuracy: acc}))
		lrs = append(lrs, s.Optimizer.LR())
	}
	assert.Equal(t, []float64{1, 1, 0.5, 0.5, 0.3, 0.3, 0.3, 0.3, 0.3}, lrs)
}

func TestCheckpoint(t *testing.T) {
	s := state(t)
	path := filepath.Join(t.TempDir(), "best_model.json.lzw")
	c := NewCheckpoint(path)

	require.NoError(t, c.OnEpochEnd(s, EpochLog{Epoch: 1, ValAccuracy: 0}))
	require.FileExists(t, path)

	require.NoError(t, os.Remove(path))
	require.NoError(t, c.OnEpochEnd(s, EpochLog{Epoch: 2, ValAccuracy: 0}))
	assert.NoFileExists(t, path)

	require.NoError(t, c.OnEpochEnd(s, EpochLog{Epoch: 3, ValAccuracy: 0.1}))
	assert.FileExists(t, path)
}

func records(t *testing.T, n int) [][]byte {
	var out [][]byte
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for p := range img.Pix {
			img.Pix[p] = uint8(200 * (i % 2))
		}
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, img, nil))
		out = append(out, tfrecord.MarshalExample(tfrecord.Features{
			caries.ImageKey: tfrecord.BytesFeature(buf.Bytes()),
			caries.LabelKey: tfrecord.Int64Feature(int64(i % 2)),
		}))
	}
	return out
}

func TestFit(t *testing.T) {
	recs := records(t, 48)
	opts := datasets.Options{BatchSize: 16, ShuffleBuffer: 100, PrefetchDepth: 2, ImageSize: 8, Seed: 1}
	train := datasets.NewRecordsLoader(recs, true, opts)
	valid := datasets.NewRecordsLoader(recs[:20], false, opts)

	s := state(t)
	path := filepath.Join(t.TempDir(), "best.json.lzw")
	steps, vsteps := Steps(len(recs), 20, opts.BatchSize)
	h, err := Fit(context.Background(), s.Net, train, valid, FitOptions{
		Epochs:          3,
		StepsPerEpoch:   steps,
		ValidationSteps: vsteps,
		Optimizer:       learning.NewAdam(learning.DefaultHyperParameters(1e-3)),
		Callbacks:       []Callback{NewCheckpoint(path), NewEarlyStopping(15), NewReduceLROnPlateau(0.5, 5, 1e-6)},
	})
	require.NoError(t, err)
	require.Len(t, h.Epochs, 3)
	for _, e := range h.Epochs {
		assert.False(t, math.IsNaN(e.Loss))
		assert.True(t, e.ValAccuracy >= 0 && e.ValAccuracy <= 1)
		assert.Equal(t, 1e-3, e.LearningRate)
		assert.Len(t, e.ValDigest, 64)
	}
	assert.NotZero(t, h.BestEpoch)
	assert.FileExists(t, path)

	hp := filepath.Join(t.TempDir(), "run", "history.json")
	require.NoError(t, h.Save(hp))
	assert.FileExists(t, hp)
}

func TestEvaluateDigest(t *testing.T) {
	opts := datasets.Options{BatchSize: 8, PrefetchDepth: 1, ImageSize: 8}
	valid := datasets.NewRecordsLoader(records(t, 20), false, opts)
	s := state(t)

	a, err := Evaluate(context.Background(), s.Net, valid, 3)
	require.NoError(t, err)
	assert.Equal(t, 20, a.Samples)
	assert.Len(t, a.Digest, 64)
	b, err := Evaluate(context.Background(), s.Net, valid, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	mark(s.Net, 0.01)
	c, err := Evaluate(context.Background(), s.Net, valid, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest, c.Digest)

	_, err = Evaluate(context.Background(), s.Net, datasets.NewRecordsLoader(nil, false, opts), 1)
	assert.Error(t, err)
}

func TestFitRejects(t *testing.T) {
	s := state(t)
	src := datasets.NewRecordsLoader(nil, false, datasets.Options{BatchSize: 1, ImageSize: 8})
	_, err := Fit(context.Background(), s.Net, src, src, FitOptions{Epochs: 1, StepsPerEpoch: 0, Optimizer: s.Optimizer})
	assert.Error(t, err)

	var net feedforward.FeedforwardNetwork
	net.NewInput(8, 8, 3)
	_, err = Fit(context.Background(), &net, src, src, FitOptions{Epochs: 1, StepsPerEpoch: 1, Optimizer: s.Optimizer})
	assert.Error(t, err)
}

func TestResume(t *testing.T) {
	a, b := state(t), state(t)
	mark(a.Net, 3)
	path := filepath.Join(t.TempDir(), "m.json.lzw")
	require.NoError(t, a.Net.WriteCompressedWeightsToFile(path))

	require.NoError(t, Resume(b.Net, false, path))
	assert.NotEqual(t, a.Net.Snapshot(), b.Net.Snapshot())
	require.NoError(t, Resume(b.Net, true, path))
	assert.Equal(t, a.Net.Snapshot(), b.Net.Snapshot())
	assert.Error(t, Resume(b.Net, true, path+".missing"))
}
