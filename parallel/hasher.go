package parallel

import "crypto/sha256"
import "encoding/binary"
import "encoding/hex"
import "hash"
import "math"
import "sync"

const hasherBlock = 16

// Hasher digests float32 values in index order while they arrive in any
// order from parallel workers. A block of 16 values is fed to sha256 as soon
// as it and every block before it are complete.
type Hasher struct {
	mut  sync.Mutex
	sha  hash.Hash
	ate  int
	data [][64]byte
	mark []uint16
}

// NewFloat32Hasher makes a hasher sized for n values. It grows on demand.
func NewFloat32Hasher(n int) *Hasher {
	blocks := (n + hasherBlock - 1) / hasherBlock
	return &Hasher{
		sha:  sha256.New(),
		data: make([][64]byte, blocks),
		mark: make([]uint16, blocks),
	}
}

func (h *Hasher) ready() bool {
	return h.ate < len(h.data) && h.mark[h.ate] == 0xffff
}

func (h *Hasher) eat() {
	h.sha.Write(h.data[h.ate][:])
	h.ate++
}

// MustPutFloat32 stores the n-th value. Writing an index twice panics.
func (h *Hasher) MustPutFloat32(n int, value float32) {
	block, pos := n/hasherBlock, n%hasherBlock

	h.mut.Lock()
	defer h.mut.Unlock()

	if block < h.ate {
		panic("already consumed block")
	}
	for block >= len(h.data) {
		h.data = append(h.data, [64]byte{})
		h.mark = append(h.mark, 0)
	}
	mask := uint16(1) << uint(pos)
	if h.mark[block]&mask != 0 {
		panic("duplicate write")
	}
	h.mark[block] |= mask
	binary.LittleEndian.PutUint32(h.data[block][pos*4:], math.Float32bits(value))

	for h.ready() {
		h.eat()
	}
}

// Sum digests the remaining blocks, missing values counting as zero, and
// resets the hasher.
func (h *Hasher) Sum() (ret [32]byte) {
	h.mut.Lock()
	for h.ate < len(h.data) {
		h.eat()
	}
	copy(ret[:], h.sha.Sum(nil))
	h.sha.Reset()
	h.ate = 0
	h.data = h.data[:0]
	h.mark = h.mark[:0]
	h.mut.Unlock()
	return
}

// HexSum is Sum as a hex string
func (h *Hasher) HexSum() string {
	sum := h.Sum()
	return hex.EncodeToString(sum[:])
}
