// Package cu probes CUDA devices before training. The network trains on the
// CPU, a device is only reported.
package cu

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

// ErrNoCUDA is returned when the binary was built without the cuda tag
var ErrNoCUDA = errors.New("cu: built without CUDA support, rebuild with -tags cuda")

// Device describes one CUDA device
type Device struct {
	Ordinal  int
	Name     string
	MemBytes int64
	Major    int
	Minor    int
}

// ConfigureMemoryGrowth lists the devices and logs them. Nothing is allocated
// up front, memory is only taken on demand. Any failure is logged and ignored.
func ConfigureMemoryGrowth() []Device {
	devices, err := Probe()
	if err != nil {
		klog.Warningf("GPU memory growth not configured: %v", err)
		return nil
	}
	if len(devices) == 0 {
		klog.Infof("No GPU found, training on CPU")
		return nil
	}
	for _, d := range devices {
		klog.Infof("GPU %d: %s, %d MB, compute %d.%d", d.Ordinal, d.Name, d.MemBytes>>20, d.Major, d.Minor)
	}
	return devices
}
