package hash

import (
	"testing"
)

// performance benchmark
func BenchmarkHash(b *testing.B) {
	n := uint32(0)
	s := uint32(0)
	for i := 0; i < b.N; i++ {
		n = Hash(n, s, 1<<24)
		s++
	}
}

// sanity check fuzz
func FuzzHash(f *testing.F) {
	f.Add(uint32(0), uint32(0), uint32(0))
	f.Fuzz(func(t *testing.T, n, s, max uint32) {
		out := Hash(n, s, max)
		if max == 0 && out != 0 {
			t.Errorf("Hash(%d, %d, 0) == %d (max=0 should be 0)", n, s, out)
		}
		if max > 1 && out >= max {
			t.Errorf("Hash(%d, %d, %d) == %d (output bigger or equal than max)", n, s, max, out)
		}
	})
}

func TestKeepRate(t *testing.T) {
	for _, rate := range []float64{0.1, 0.5, 0.9} {
		const units = 100000
		var kept int
		salt := Salt(42, 7)
		for n := uint32(0); n < units; n++ {
			if Keep(n, salt, rate) {
				kept++
			}
		}
		got := 1 - float64(kept)/units
		if got < rate-0.05 || got > rate+0.05 {
			t.Errorf("rate %.2f: dropped fraction %.3f", rate, got)
		}
	}
}

func TestKeepBounds(t *testing.T) {
	if !Keep(5, 1, 0) {
		t.Error("rate 0 must keep every unit")
	}
	if Keep(5, 1, 1) {
		t.Error("rate 1 must drop every unit")
	}
}

func TestSaltVariesWithStep(t *testing.T) {
	seen := make(map[uint32]struct{})
	for step := uint64(0); step < 1000; step++ {
		seen[Salt(1, step)] = struct{}{}
	}
	if len(seen) < 990 {
		t.Errorf("only %d distinct salts over 1000 steps", len(seen))
	}
}
