package trainer

import "encoding/json"
import "os"
import "path/filepath"

import "github.com/pkg/errors"

// EpochLog holds the metrics of one epoch. LearningRate is the rate the epoch trained with,
// ValDigest the sha256 of the validation predictions.
type EpochLog struct {
	Epoch        int     `json:"epoch"`
	Loss         float64 `json:"loss"`
	Accuracy     float64 `json:"accuracy"`
	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
	ValDigest    string  `json:"val_digest"`
	LearningRate float64 `json:"learning_rate"`
	Seconds      float64 `json:"seconds"`
}

// History of a fit
type History struct {
	Epochs       []EpochLog `json:"epochs"`
	BestEpoch    int        `json:"best_epoch"`
	StoppedEarly bool       `json:"stopped_early"`
}

// Best is the log of the epoch with the highest val_accuracy, the first one on ties
func (h *History) Best() (best EpochLog, ok bool) {
	for i, e := range h.Epochs {
		if i == 0 || e.ValAccuracy > best.ValAccuracy {
			best = e
		}
	}
	return best, len(h.Epochs) > 0
}

// Save writes the history as indented JSON, creating the directory
func (h *History) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "history dir")
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write history")
}
