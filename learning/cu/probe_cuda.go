//go:build cuda

package cu

import "github.com/pkg/errors"
import "gorgonia.org/cu"

// Probe enumerates the CUDA devices
func Probe() ([]Device, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, errors.Wrap(err, "count CUDA devices")
	}
	devices := make([]Device, 0, n)
	for d := 0; d < n; d++ {
		dev := cu.Device(d)
		name, err := dev.Name()
		if err != nil {
			return nil, errors.Wrapf(err, "device %d name", d)
		}
		mem, err := dev.TotalMem()
		if err != nil {
			return nil, errors.Wrapf(err, "device %d memory", d)
		}
		maj, _ := dev.Attribute(cu.ComputeCapabilityMajor)
		min, _ := dev.Attribute(cu.ComputeCapabilityMinor)
		devices = append(devices, Device{Ordinal: d, Name: name, MemBytes: mem, Major: maj, Minor: min})
	}
	return devices, nil
}
