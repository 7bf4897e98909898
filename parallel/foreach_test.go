package parallel

import "sync/atomic"
import "testing"

import "github.com/stretchr/testify/assert"

func TestForEachVisitsEveryIndexOnce(t *testing.T) {
	for _, limit := range []int{-1, 0, 1, 3, 64} {
		var seen [100]atomic.Int32
		ForEach(len(seen), limit, func(i int) {
			seen[i].Add(1)
		})
		for i := range seen {
			assert.EqualValues(t, 1, seen[i].Load(), "limit %d index %d", limit, i)
		}
	}
}

func TestForEachEmpty(t *testing.T) {
	called := false
	ForEach(0, 4, func(int) { called = true })
	assert.False(t, called)
}

func TestForEachRespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	ForEach(50, 2, func(int) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		running.Add(-1)
	})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSetWorkers(t *testing.T) {
	defer SetWorkers(0)
	SetWorkers(3)
	assert.Equal(t, 3, Workers())
	SetWorkers(0)
	assert.Equal(t, DefaultWorkers(), Workers())
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}
