package trainer

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/caries/net/feedforward"

// Resume loads weights saved by a previous run into net when resume is set.
// A missing or incompatible file is an error.
func Resume(net *feedforward.FeedforwardNetwork, resume bool, model string) error {
	if !resume || model == "" {
		return nil
	}
	if err := net.ReadCompressedWeightsFromFile(model); err != nil {
		return errors.Wrap(err, "resume")
	}
	klog.Infof("Resumed weights from %s", model)
	return nil
}
