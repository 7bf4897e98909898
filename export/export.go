// Package export writes the trained network: the full precision weights and
// the quantized TensorFlow Lite artifact.
package export

import "context"
import "io"
import "os"
import "path/filepath"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/caries/datasets"
import "github.com/neurlang/caries/export/tflite"
import "github.com/neurlang/caries/net/feedforward"

// SaveModel writes the full precision weights
func SaveModel(net *feedforward.FeedforwardNetwork, path string) error {
	if err := net.WriteCompressedWeightsToFile(path); err != nil {
		return errors.Wrap(err, "save model")
	}
	klog.Infof("Model saved to %s", path)
	return nil
}

// Calibrate observes up to batches batches of src, all of them when batches is 0
func Calibrate(ctx context.Context, net *feedforward.FeedforwardNetwork, src datasets.Source, batches int) (tflite.Ranges, error) {
	c := tflite.NewCalibrator(net)
	it := src.Iterate(ctx)
	defer it.Close()
	for n := 0; batches == 0 || n < batches; n++ {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return tflite.Ranges{}, errors.Wrap(err, "representative data")
		}
		if err := c.Observe(b.Images); err != nil {
			return tflite.Ranges{}, err
		}
	}
	r := c.Ranges()
	if r.Samples == 0 {
		return r, errors.New("export: no representative samples")
	}
	klog.Infof("Calibrated quantization on %d samples", r.Samples)
	return r, nil
}

// Quantize calibrates on src and converts net to a uint8 TensorFlow Lite model
func Quantize(ctx context.Context, net *feedforward.FeedforwardNetwork, src datasets.Source, batches int, description string) ([]byte, error) {
	ranges, err := Calibrate(ctx, net, src, batches)
	if err != nil {
		return nil, err
	}
	buf, err := tflite.Convert(net, ranges, tflite.Options{Description: description})
	if err != nil {
		return nil, errors.Wrap(err, "convert")
	}
	return buf, nil
}

// WriteTFLite writes the artifact and logs its size
func WriteTFLite(path string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "tflite dir")
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return errors.Wrap(err, "write tflite")
	}
	klog.Infof("TFLite model saved to %s", path)
	klog.Infof("Model size: %.2f KB", float64(len(buf))/1024)
	return nil
}
