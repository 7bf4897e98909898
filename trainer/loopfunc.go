package trainer

import "context"
import "io"
import "time"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/caries/datasets"
import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/layer/activation"
import "github.com/neurlang/caries/learning"
import "github.com/neurlang/caries/net/feedforward"

// FitOptions of a training run
type FitOptions struct {
	Epochs          int
	StepsPerEpoch   int
	ValidationSteps int // 0 means a full validation pass
	Optimizer       *learning.Adam
	Callbacks       []Callback
}

// Fit trains net for up to Epochs epochs of StepsPerEpoch batches drawn from
// train, validating on valid after every epoch. The network must end in a
// sigmoid, the loss gradient is taken at its input.
func Fit(ctx context.Context, net *feedforward.FeedforwardNetwork, train, valid datasets.Source, opts FitOptions) (*History, error) {
	if net.Len() == 0 || !activation.Is(net.GetCombiner(net.Len()-1), activation.Sigmoid) {
		return nil, errors.New("trainer: network must end with a sigmoid")
	}
	if opts.StepsPerEpoch <= 0 {
		return nil, errors.Errorf("trainer: %d steps per epoch, fewer training samples than one batch", opts.StepsPerEpoch)
	}
	if opts.Optimizer == nil {
		return nil, errors.New("trainer: no optimizer")
	}

	var params []*layer.Param
	for _, p := range net.Params() {
		params = append(params, p.Param)
	}
	state := &State{Net: net, Optimizer: opts.Optimizer}
	history := &History{}

	it := train.Iterate(ctx)
	defer it.Close()

	for epoch := 1; epoch <= opts.Epochs && !state.Stop; epoch++ {
		start := time.Now()
		lr := opts.Optimizer.LR()
		var loss float64
		var correct, seen int
		for step := 1; step <= opts.StepsPerEpoch; step++ {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			b, err := it.Next()
			if err == io.EOF {
				return history, errors.New("trainer: training data ended, the training source must repeat")
			}
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d step %d", epoch, step)
			}
			l, c, err := trainStep(net, opts.Optimizer, params, b)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d step %d", epoch, step)
			}
			loss += l * float64(b.Len())
			correct += c
			seen += b.Len()
			klog.V(2).Infof("%d/%d - loss: %.4f - accuracy: %.4f", step, opts.StepsPerEpoch, loss/float64(seen), float64(correct)/float64(seen))
		}

		ev, err := Evaluate(ctx, net, valid, opts.ValidationSteps)
		if err != nil {
			return history, errors.Wrapf(err, "epoch %d validation", epoch)
		}
		log := EpochLog{
			Epoch:        epoch,
			Loss:         loss / float64(seen),
			Accuracy:     float64(correct) / float64(seen),
			ValLoss:      ev.Loss,
			ValAccuracy:  ev.Accuracy,
			ValDigest:    ev.Digest,
			LearningRate: lr,
			Seconds:      time.Since(start).Seconds(),
		}
		history.Epochs = append(history.Epochs, log)
		klog.V(1).Infof("Validation digest %s over %d samples", ev.Digest, ev.Samples)
		klog.Infof("Epoch %d/%d - %.0fs - loss: %.4f - accuracy: %.4f - val_loss: %.4f - val_accuracy: %.4f - learning_rate: %.4g",
			epoch, opts.Epochs, log.Seconds, log.Loss, log.Accuracy, log.ValLoss, log.ValAccuracy, lr)

		for _, cb := range opts.Callbacks {
			if err := cb.OnEpochEnd(state, log); err != nil {
				return history, errors.Wrapf(err, "epoch %d callback", epoch)
			}
		}
	}
	for _, cb := range opts.Callbacks {
		if err := cb.OnTrainEnd(state); err != nil {
			return history, err
		}
	}
	if best, ok := history.Best(); ok {
		history.BestEpoch = best.Epoch
	}
	history.StoppedEarly = state.Stop
	return history, nil
}

// trainStep runs forward and backward on one batch and updates the weights
func trainStep(net *feedforward.FeedforwardNetwork, opt *learning.Adam, params []*layer.Param, b *datasets.Batch) (loss float64, correct int, err error) {
	out, err := net.Forward(b.Images, true)
	if err != nil {
		return 0, 0, err
	}
	loss, dlogits := learning.BinaryCrossEntropy(out.Data, b.Labels)
	grad := &layer.Tensor{Shape: layer.Shape{b.Len(), 1}, Data: dlogits}
	net.BackwardFrom(net.Len()-1, grad)
	opt.Step(params...)
	return loss, learning.Correct(out.Data, b.Labels), nil
}
