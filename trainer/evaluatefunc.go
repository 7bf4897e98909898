package trainer

import "context"
import "io"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/caries/datasets"
import "github.com/neurlang/caries/learning"
import "github.com/neurlang/caries/net/feedforward"
import "github.com/neurlang/caries/parallel"

// Evaluation holds the validation metrics. Digest fingerprints every
// prediction in order, equal digests mean an identical validation pass.
type Evaluation struct {
	Loss     float64
	Accuracy float64
	Samples  int
	Digest   string
}

// Evaluate runs up to steps batches of src in inference mode, all of them
// when steps is 0, and returns the sample weighted loss and accuracy.
func Evaluate(ctx context.Context, net *feedforward.FeedforwardNetwork, src datasets.Source, steps int) (ev Evaluation, err error) {
	it := src.Iterate(ctx)
	defer it.Close()

	hasher := parallel.NewFloat32Hasher(0)
	var loss float64
	var correct, step int
	for steps == 0 || step < steps {
		b, err := it.Next()
		if err == io.EOF {
			if steps > 0 {
				klog.Warningf("Validation data ran out after %d of %d steps", step, steps)
			}
			break
		}
		if err != nil {
			return ev, err
		}
		probs, err := net.Infer(b.Images)
		if err != nil {
			return ev, err
		}
		first := ev.Samples
		parallel.Each(len(probs), func(i int) {
			hasher.MustPutFloat32(first+i, probs[i])
		})
		l, _ := learning.BinaryCrossEntropy(probs, b.Labels)
		loss += l * float64(b.Len())
		correct += learning.Correct(probs, b.Labels)
		ev.Samples += b.Len()
		step++
	}
	if ev.Samples == 0 {
		return ev, errors.New("trainer: no validation samples")
	}
	ev.Loss = loss / float64(ev.Samples)
	ev.Accuracy = float64(correct) / float64(ev.Samples)
	ev.Digest = hasher.HexSum()
	return ev, nil
}
