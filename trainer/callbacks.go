package trainer

import "math"

import "k8s.io/klog/v2"

import "github.com/neurlang/caries/learning"
import "github.com/neurlang/caries/net/feedforward"

// State is what callbacks may inspect and change during a fit
type State struct {
	Net       *feedforward.FeedforwardNetwork
	Optimizer *learning.Adam
	Stop      bool
}

// Callback reacts to the end of an epoch and the end of the fit
type Callback interface {
	OnEpochEnd(s *State, log EpochLog) error
	OnTrainEnd(s *State) error
}

// Checkpoint saves the weights whenever val_accuracy improves
type Checkpoint struct {
	Path string
	best float64
	init bool
}

// NewCheckpoint saves to path
func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{Path: path}
}

func (c *Checkpoint) OnEpochEnd(s *State, log EpochLog) error {
	if !c.init {
		c.best, c.init = math.Inf(-1), true
	}
	if log.ValAccuracy > c.best {
		klog.Infof("Epoch %d: val_accuracy improved from %.5f to %.5f, saving model to %s", log.Epoch, c.best, log.ValAccuracy, c.Path)
		c.best = log.ValAccuracy
		return s.Net.WriteCompressedWeightsToFile(c.Path)
	}
	klog.Infof("Epoch %d: val_accuracy did not improve from %.5f", log.Epoch, c.best)
	return nil
}

func (c *Checkpoint) OnTrainEnd(*State) error {
	return nil
}

// EarlyStopping stops when val_accuracy has not improved for Patience epochs
// and puts back the best weights seen.
type EarlyStopping struct {
	Patience    int
	RestoreBest bool

	best        float64
	bestEpoch   int
	wait        int
	bestWeights feedforward.Weights
	stopped     int
}

// NewEarlyStopping restores the best weights at the end of the fit
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience, RestoreBest: true, best: math.Inf(-1)}
}

func (e *EarlyStopping) OnEpochEnd(s *State, log EpochLog) error {
	if e.RestoreBest && e.bestWeights == nil {
		e.bestWeights = s.Net.Snapshot()
	}
	e.wait++
	if log.ValAccuracy > e.best {
		e.best = log.ValAccuracy
		e.bestEpoch = log.Epoch
		if e.RestoreBest {
			e.bestWeights = s.Net.Snapshot()
		}
		e.wait = 0
		return nil
	}
	if e.wait >= e.Patience && log.Epoch > 1 {
		e.stopped = log.Epoch
		s.Stop = true
	}
	return nil
}

func (e *EarlyStopping) OnTrainEnd(s *State) error {
	if e.stopped > 0 {
		klog.Infof("Epoch %d: early stopping", e.stopped)
	}
	if e.RestoreBest && e.bestWeights != nil {
		klog.Infof("Restoring model weights from the end of the best epoch: %d", e.bestEpoch)
		return s.Net.Restore(e.bestWeights)
	}
	return nil
}

// Stopped is the epoch that triggered the stop, 0 when training ran to the end
func (e *EarlyStopping) Stopped() int {
	return e.stopped
}

// BestEpoch is the epoch with the best val_accuracy
func (e *EarlyStopping) BestEpoch() int {
	return e.bestEpoch
}

// ReduceLROnPlateau multiplies the learning rate by Factor when val_accuracy
// has not improved by MinDelta for Patience epochs, never going below MinLR.
type ReduceLROnPlateau struct {
	Factor   float64
	Patience int
	MinLR    float64
	MinDelta float64
	Cooldown int

	best     float64
	wait     int
	cooldown int
}

// NewReduceLROnPlateau uses the usual min delta 1e-4 and no cooldown
func NewReduceLROnPlateau(factor float64, patience int, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{Factor: factor, Patience: patience, MinLR: minLR, MinDelta: 1e-4, best: math.Inf(-1)}
}

func (r *ReduceLROnPlateau) OnEpochEnd(s *State, log EpochLog) error {
	if r.cooldown > 0 {
		r.cooldown--
		r.wait = 0
	}
	if log.ValAccuracy > r.best+r.MinDelta {
		r.best = log.ValAccuracy
		r.wait = 0
		return nil
	}
	if r.cooldown > 0 {
		return nil
	}
	r.wait++
	if r.wait < r.Patience {
		return nil
	}
	old := s.Optimizer.LR()
	if float32(old) > float32(r.MinLR) {
		lr := math.Max(old*r.Factor, r.MinLR)
		s.Optimizer.SetLR(lr)
		klog.Infof("Epoch %d: ReduceLROnPlateau reducing learning rate to %g", log.Epoch, lr)
		r.cooldown = r.Cooldown
		r.wait = 0
	}
	return nil
}

func (r *ReduceLROnPlateau) OnTrainEnd(*State) error {
	return nil
}
