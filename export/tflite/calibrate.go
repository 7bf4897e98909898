package tflite

import "math"

import "github.com/pkg/errors"

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/net/feedforward"

// Ranges are the output ranges of every combiner seen during calibration
type Ranges struct {
	Layers  []Range
	Samples int
}

// Calibrator records activation ranges over representative batches
type Calibrator struct {
	net    *feedforward.FeedforwardNetwork
	ranges Ranges
}

// NewCalibrator starts with empty ranges
func NewCalibrator(net *feedforward.FeedforwardNetwork) *Calibrator {
	c := &Calibrator{net: net, ranges: Ranges{Layers: make([]Range, net.Len())}}
	for i := range c.ranges.Layers {
		c.ranges.Layers[i] = Range{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	return c
}

// Observe runs the batch in inference mode and widens the ranges
func (c *Calibrator) Observe(x *layer.Tensor) error {
	_, err := c.net.Trace(x, false, func(n int, _ layer.Combiner, out *layer.Tensor) {
		r := &c.ranges.Layers[n]
		for _, v := range out.Data {
			f := float64(v)
			if f < r.Min {
				r.Min = f
			}
			if f > r.Max {
				r.Max = f
			}
		}
	})
	if err != nil {
		return errors.Wrap(err, "calibrate")
	}
	c.ranges.Samples += x.Batch()
	return nil
}

// Ranges returns a copy of what was observed
func (c *Calibrator) Ranges() Ranges {
	return Ranges{Layers: append([]Range(nil), c.ranges.Layers...), Samples: c.ranges.Samples}
}
