// Package hash implements the fast modular hash used to draw reproducible dropout masks
package hash

// Hash maps n salted by s into the range 0 to max-1.
func Hash(n uint32, s uint32, max uint32) uint32 {
	// mixing stage, mix input with salt using subtraction
	var m = uint32(n) - uint32(s)

	// hashing stage, use xor shift with prime coefficients
	m ^= m << 2
	m ^= m << 3
	m ^= m >> 5
	m ^= m >> 7
	m ^= m << 11
	m ^= m << 13
	m ^= m >> 17
	m ^= m << 19

	// mixing stage 2, mix input with salt using addition
	m += s

	// multiply shift instead of modulo, see
	// https://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction/
	return uint32((uint64(m) * uint64(max)) >> 32)
}

// resolution of Keep
const resolution = 1 << 24

// Salt derives a per-step salt from a seed and a step counter.
func Salt(seed uint64, step uint64) uint32 {
	s := uint32(seed) ^ uint32(seed>>32)
	return Hash(uint32(step), s, 0xffffffff) ^ Hash(uint32(step>>32), ^s, 0xffffffff)
}

// Keep reports whether unit n survives dropout with the given rate under salt s.
func Keep(n uint32, s uint32, rate float64) bool {
	if rate <= 0 {
		return true
	}
	if rate >= 1 {
		return false
	}
	return Hash(n, s, resolution) >= uint32(rate*resolution)
}
