// Package pipeline runs a complete training: data, model, fit and export
package pipeline

import "context"
import "path/filepath"
import "time"

import "github.com/google/uuid"
import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/caries/config"
import "github.com/neurlang/caries/datasets"
import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/export"
import "github.com/neurlang/caries/learning"
import "github.com/neurlang/caries/learning/cu"
import "github.com/neurlang/caries/model"
import "github.com/neurlang/caries/net/feedforward"
import "github.com/neurlang/caries/parallel"
import "github.com/neurlang/caries/trainer"

// Options that do not belong in the config file
type Options struct {
	Resume bool // warm start from the final model of a previous run
}

// Result of a run
type Result struct {
	RunID        string
	TrainSamples int
	ValidSamples int
	TrainSteps   int
	ValidSteps   int
	History      *trainer.History
	Net          *feedforward.FeedforwardNetwork
	TFLiteSize   int
}

// Run trains and exports. Every failure is returned, the caller decides to exit.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	start := time.Now()
	klog.Infof("Starting training at %s", start.UTC().Format(time.RFC3339))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cu.ConfigureMemoryGrowth()
	if err := cfg.CreateDirectories(); err != nil {
		return nil, err
	}
	parallel.SetWorkers(cfg.Workers)
	klog.Infof("Using %d workers", parallel.Workers())

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	resampler, err := caries.ParseResampler(cfg.Resampler)
	if err != nil {
		return nil, err
	}
	dopts := datasets.Options{
		BatchSize:     cfg.BatchSize,
		ShuffleBuffer: cfg.ShuffleBuffer,
		PrefetchDepth: cfg.PrefetchDepth,
		Workers:       cfg.Workers,
		ImageSize:     cfg.ImageSize,
		Resampler:     resampler,
		Seed:          seed,
	}
	train := datasets.NewLoader(cfg.TrainPath(), true, dopts)
	valid := datasets.NewLoader(cfg.ValidPath(), false, dopts)

	res := &Result{RunID: uuid.NewString()}
	if res.TrainSamples, err = train.Count(); err != nil {
		return nil, errors.Wrap(err, "training set")
	}
	if res.ValidSamples, err = valid.Count(); err != nil {
		return nil, errors.Wrap(err, "validation set")
	}
	res.TrainSteps, res.ValidSteps = trainer.Steps(res.TrainSamples, res.ValidSamples, cfg.BatchSize)
	klog.Infof("Training samples: %d", res.TrainSamples)
	klog.Infof("Validation samples: %d", res.ValidSamples)
	klog.Infof("Steps per epoch: %d, validation steps: %d", res.TrainSteps, res.ValidSteps)

	net, err := model.New(model.Options{ImageSize: cfg.ImageSize, DropoutRate: cfg.DropoutRate, Seed: seed})
	if err != nil {
		return nil, err
	}
	res.Net = net
	for _, line := range net.Summary() {
		klog.V(1).Info(line)
	}
	trainable, other := net.CountParams()
	klog.Infof("Model: %d trainable, %d non-trainable parameters", trainable, other)
	if err := trainer.Resume(net, opts.Resume, cfg.FinalModelPath()); err != nil {
		return nil, err
	}

	res.History, err = trainer.Fit(ctx, net, train, valid, trainer.FitOptions{
		Epochs:          cfg.Epochs,
		StepsPerEpoch:   res.TrainSteps,
		ValidationSteps: res.ValidSteps,
		Optimizer:       learning.NewAdam(learning.DefaultHyperParameters(cfg.LearningRate)),
		Callbacks: []trainer.Callback{
			trainer.NewCheckpoint(cfg.BestModelPath()),
			trainer.NewEarlyStopping(cfg.StopPatience),
			trainer.NewReduceLROnPlateau(cfg.ReduceFactor, cfg.ReducePatience, cfg.MinLearningRate),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "fit")
	}
	if err := res.History.Save(filepath.Join(cfg.RunLogDir(res.RunID), "history.json")); err != nil {
		return nil, err
	}

	if err := export.SaveModel(net, cfg.FinalModelPath()); err != nil {
		return nil, err
	}
	buf, err := export.Quantize(ctx, net, valid, cfg.CalibrationBatches, "caries classifier "+res.RunID)
	if err != nil {
		return nil, err
	}
	if err := export.WriteTFLite(cfg.TFLitePath(), buf); err != nil {
		return nil, err
	}
	res.TFLiteSize = len(buf)

	klog.Infof("Training completed in %s", time.Since(start).Round(time.Second))
	return res, nil
}
