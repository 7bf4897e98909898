package pipeline

import "bytes"
import "context"
import "image"
import "image/color"
import "image/jpeg"
import "math"
import "os"
import "path/filepath"
import "testing"

import "github.com/janpfeifer/must"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/caries/config"
import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/export/tflite"
import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/tfrecord"

// writeRecords writes n examples, half of them with a caries annotation
func writeRecords(t *testing.T, path string, n int) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f := must.M1(os.Create(path))
	defer f.Close()
	w := tfrecord.NewWriter(f)
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		shade := uint8(40 + 150*(i%2))
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				img.Set(x, y, color.RGBA{shade, uint8(x * 8), uint8(y * 8), 255})
			}
		}
		var buf bytes.Buffer
		must.M(jpeg.Encode(&buf, img, nil))
		labels := []int64{0}
		if i%2 == 1 {
			labels = []int64{1, 2}
		}
		must.M(w.Write(tfrecord.MarshalExample(tfrecord.Features{
			caries.ImageKey: tfrecord.BytesFeature(buf.Bytes()),
			caries.LabelKey: tfrecord.Int64Feature(labels...),
		})))
	}
}

func TestRun(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.ImageSize = 24
	cfg.Epochs = 1
	cfg.Seed = 5
	cfg.CalibrationBatches = 2
	writeRecords(t, cfg.TrainPath(), 200)
	writeRecords(t, cfg.ValidPath(), 40)

	res, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 200, res.TrainSamples)
	assert.Equal(t, 40, res.ValidSamples)
	assert.Equal(t, 6, res.TrainSteps)
	assert.Equal(t, 2, res.ValidSteps)
	require.Len(t, res.History.Epochs, 1)

	for _, path := range []string{cfg.BestModelPath(), cfg.FinalModelPath(), cfg.TFLitePath(), filepath.Join(cfg.RunLogDir(res.RunID), "history.json")} {
		assert.FileExists(t, path)
	}

	m, err := tflite.Inspect(must.M1(os.ReadFile(cfg.TFLitePath())))
	require.NoError(t, err)
	assert.Equal(t, tflite.Uint8, m.Input().Type)
	assert.Equal(t, []int32{1, 24, 24, 3}, m.Input().Shape)
	assert.Equal(t, tflite.Uint8, m.Output().Type)
	assert.Equal(t, res.TFLiteSize, m.Size)

	probs, err := res.Net.Infer(layer.NewTensor(4, 24, 24, 3))
	require.NoError(t, err)
	for _, p := range probs {
		assert.False(t, math.IsNaN(float64(p)) || math.IsInf(float64(p), 0))
		assert.True(t, p >= 0 && p <= 1)
	}

	// a second run resumes from the final model
	res2, err := Run(context.Background(), cfg, Options{Resume: true})
	require.NoError(t, err)
	assert.NotEqual(t, res.RunID, res2.RunID)
}

func TestRunMissingData(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	_, err := Run(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training set")
	assert.DirExists(t, cfg.Models())

	writeRecords(t, cfg.TrainPath(), 4)
	_, err = Run(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation set")
}

// TestRunDefaultImageSize trains one epoch at the full 96x96 input
func TestRunDefaultImageSize(t *testing.T) {
	if testing.Short() {
		t.Skip("full size run takes minutes")
	}
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Epochs = 1
	cfg.Seed = 7
	writeRecords(t, cfg.TrainPath(), 200)
	writeRecords(t, cfg.ValidPath(), 33)

	res, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, res.TrainSteps)
	assert.Equal(t, 2, res.ValidSteps)
	require.Len(t, res.History.Epochs, 1)
	assert.Len(t, res.History.Epochs[0].ValDigest, 64)

	probs, err := res.Net.Infer(layer.NewTensor(2, 96, 96, 3))
	require.NoError(t, err)
	for _, p := range probs {
		assert.False(t, math.IsNaN(float64(p)) || math.IsInf(float64(p), 0))
		assert.True(t, p >= 0 && p <= 1)
	}

	m, err := tflite.Inspect(must.M1(os.ReadFile(cfg.TFLitePath())))
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 96, 96, 3}, m.Input().Shape)
	assert.Equal(t, tflite.Uint8, m.Output().Type)
	assert.Equal(t, res.TFLiteSize, m.Size)
}
