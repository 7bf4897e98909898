package export

import "bytes"
import "context"
import "image"
import "image/jpeg"
import "os"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/caries/datasets"
import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/export/tflite"
import "github.com/neurlang/caries/model"
import "github.com/neurlang/caries/tfrecord"

func source(t *testing.T, n int) datasets.Source {
	var recs [][]byte
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 12, 12))
		for p := range img.Pix {
			img.Pix[p] = uint8(p*7 + i*13)
		}
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, img, nil))
		recs = append(recs, tfrecord.MarshalExample(tfrecord.Features{
			caries.ImageKey: tfrecord.BytesFeature(buf.Bytes()),
			caries.LabelKey: tfrecord.Int64Feature(int64(i % 2)),
		}))
	}
	return datasets.NewRecordsLoader(recs, false, datasets.Options{BatchSize: 4, ImageSize: 8, PrefetchDepth: 1})
}

func TestExport(t *testing.T) {
	net, err := model.New(model.Options{ImageSize: 8, DropoutRate: 0.5, Seed: 2})
	require.NoError(t, err)
	dir := t.TempDir()

	path := filepath.Join(dir, "final_model.json.lzw")
	require.NoError(t, SaveModel(net, path))
	back := model.MustNew(model.Options{ImageSize: 8, DropoutRate: 0.5, Seed: 3})
	require.NoError(t, back.ReadCompressedWeightsFromFile(path))
	assert.Equal(t, net.Snapshot(), back.Snapshot())

	ranges, err := Calibrate(context.Background(), net, source(t, 10), 2)
	require.NoError(t, err)
	assert.Equal(t, 8, ranges.Samples)

	buf, err := Quantize(context.Background(), net, source(t, 10), 0, "test")
	require.NoError(t, err)
	tfl := filepath.Join(dir, "models", "model_esp32.tflite")
	require.NoError(t, WriteTFLite(tfl, buf))
	data, err := os.ReadFile(tfl)
	require.NoError(t, err)
	m, err := tflite.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, tflite.Uint8, m.Input().Type)
	assert.Equal(t, tflite.Uint8, m.Output().Type)
}

func TestCalibrateEmpty(t *testing.T) {
	net := model.MustNew(model.Options{ImageSize: 8, Seed: 2})
	_, err := Calibrate(context.Background(), net, source(t, 0), 8)
	assert.Error(t, err)
}
