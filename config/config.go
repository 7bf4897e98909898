// Package config holds the training run settings and the directory layout
package config

import "os"
import "path/filepath"

import "github.com/pkg/errors"
import "gopkg.in/yaml.v3"
import "k8s.io/klog/v2"

import "github.com/neurlang/caries/datasets/caries"

// Config of a training run. The zero value is not usable, start from Default.
type Config struct {
	ImageSize int `yaml:"image_size"`
	BatchSize int `yaml:"batch_size"`
	Epochs    int `yaml:"epochs"`

	BaseDir  string `yaml:"base_dir"`
	ModelDir string `yaml:"model_dir"` // empty means <base_dir>/models
	DataDir  string `yaml:"data_dir"`  // empty means <base_dir>/data
	LogsDir  string `yaml:"logs_dir"`  // empty means <base_dir>/logs

	TrainRecord string `yaml:"train_record"` // relative to data_dir
	ValidRecord string `yaml:"valid_record"` // relative to data_dir

	ShuffleBuffer int `yaml:"shuffle_buffer"`
	PrefetchDepth int `yaml:"prefetch_depth"`

	LearningRate    float64 `yaml:"learning_rate"`
	MinLearningRate float64 `yaml:"min_learning_rate"`
	ReduceFactor    float64 `yaml:"reduce_factor"`
	ReducePatience  int     `yaml:"reduce_patience"`
	StopPatience    int     `yaml:"stop_patience"`
	DropoutRate     float64 `yaml:"dropout_rate"`

	Resampler          string `yaml:"resampler"`
	CalibrationBatches int    `yaml:"calibration_batches"`
	Workers            int    `yaml:"workers"` // 0 means one per logical core
	Seed               int64  `yaml:"seed"`    // 0 means time based
}

// Default returns the settings used when no file is given
func Default() *Config {
	return &Config{
		ImageSize:          96,
		BatchSize:          32,
		Epochs:             100,
		BaseDir:            ".",
		TrainRecord:        filepath.Join("train", "teeth-ARWb-udNj.tfrecord"),
		ValidRecord:        filepath.Join("valid", "teeth-ARWb-udNj.tfrecord"),
		ShuffleBuffer:      1000,
		PrefetchDepth:      2,
		LearningRate:       1e-4,
		MinLearningRate:    1e-6,
		ReduceFactor:       0.5,
		ReducePatience:     5,
		StopPatience:       15,
		DropoutRate:        0.5,
		Resampler:          string(caries.DefaultResampler),
		CalibrationBatches: 8,
	}
}

// Load overlays the YAML file at path on the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return c, c.Validate()
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"image_size": c.ImageSize,
		"batch_size": c.BatchSize,
		"epochs":     c.Epochs,
	} {
		if v <= 0 {
			return errors.Errorf("config: %s must be positive, got %d", name, v)
		}
	}
	if c.ShuffleBuffer < 0 || c.PrefetchDepth < 0 || c.Workers < 0 || c.CalibrationBatches < 0 {
		return errors.New("config: shuffle_buffer, prefetch_depth, workers and calibration_batches can't be negative")
	}
	if c.ReducePatience < 0 || c.StopPatience < 0 {
		return errors.New("config: patience can't be negative")
	}
	if c.LearningRate <= 0 || c.MinLearningRate < 0 {
		return errors.Errorf("config: bad learning rates %v, %v", c.LearningRate, c.MinLearningRate)
	}
	if c.ReduceFactor <= 0 || c.ReduceFactor >= 1 {
		return errors.Errorf("config: reduce_factor %v out of (0, 1)", c.ReduceFactor)
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return errors.Errorf("config: dropout_rate %v out of [0, 1)", c.DropoutRate)
	}
	if _, err := caries.ParseResampler(c.Resampler); err != nil {
		return errors.Wrap(err, "config")
	}
	return nil
}

func (c *Config) dir(set, name string) string {
	if set != "" {
		return set
	}
	return filepath.Join(c.BaseDir, name)
}

// Models is the directory of the saved models
func (c *Config) Models() string { return c.dir(c.ModelDir, "models") }

// Data is the directory of the record files
func (c *Config) Data() string { return c.dir(c.DataDir, "data") }

// Logs is the directory of the run logs
func (c *Config) Logs() string { return c.dir(c.LogsDir, "logs") }

// TrainPath is the training record file
func (c *Config) TrainPath() string { return filepath.Join(c.Data(), c.TrainRecord) }

// ValidPath is the validation record file
func (c *Config) ValidPath() string { return filepath.Join(c.Data(), c.ValidRecord) }

// BestModelPath is where the checkpoint keeps the best weights
func (c *Config) BestModelPath() string { return filepath.Join(c.Models(), "best_model.json.lzw") }

// FinalModelPath is the full precision model saved after training
func (c *Config) FinalModelPath() string { return filepath.Join(c.Models(), "final_model.json.lzw") }

// TFLitePath is the quantized artifact
func (c *Config) TFLitePath() string { return filepath.Join(c.Models(), "model_esp32.tflite") }

// RunLogDir is the log directory of one run
func (c *Config) RunLogDir(runID string) string { return filepath.Join(c.Logs(), runID) }

// CreateDirectories creates the model, data and logs directories if missing
func (c *Config) CreateDirectories() error {
	for _, dir := range []string{c.Models(), c.Data(), c.Logs()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	klog.Infof("Directories created successfully")
	return nil
}
