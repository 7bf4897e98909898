//go:build !cuda

package cu

// Probe reports ErrNoCUDA
func Probe() ([]Device, error) {
	return nil, ErrNoCUDA
}
