// Package clock provides the ledger's logical clock. Heights only ever grow;
// grant timestamps and expiry checks are expressed in heights, not wall time.
package clock

import (
	"sync/atomic"
	"time"

	jujuclock "github.com/juju/clock"
)

// Clock reports the current logical height.
type Clock interface {
	Height() uint64
}

// BlockHeight derives a height from wall time: one block per Interval since
// Genesis. Times before Genesis are height 0.
type BlockHeight struct {
	clock    jujuclock.Clock
	genesis  time.Time
	interval time.Duration
}

var _ Clock = (*BlockHeight)(nil)

// NewBlockHeight returns a BlockHeight reading time from c. It panics if
// interval is not positive.
func NewBlockHeight(c jujuclock.Clock, genesis time.Time, interval time.Duration) *BlockHeight {
	if interval <= 0 {
		panic("clock: block interval must be positive")
	}
	return &BlockHeight{clock: c, genesis: genesis, interval: interval}
}

func (b *BlockHeight) Height() uint64 {
	elapsed := b.clock.Now().Sub(b.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / b.interval)
}

// Manual is a clock whose height is set explicitly. It is safe for
// concurrent use.
type Manual struct {
	height atomic.Uint64
}

var _ Clock = (*Manual)(nil)

func NewManual(height uint64) *Manual {
	m := &Manual{}
	m.height.Store(height)
	return m
}

func (m *Manual) Height() uint64 {
	return m.height.Load()
}

// Advance moves the clock forward by n blocks and returns the new height.
func (m *Manual) Advance(n uint64) uint64 {
	return m.height.Add(n)
}

// Set moves the clock to height h. Heights never decrease, so a lower h is
// ignored. It returns the resulting height.
func (m *Manual) Set(h uint64) uint64 {
	for {
		cur := m.height.Load()
		if h <= cur {
			return cur
		}
		if m.height.CompareAndSwap(cur, h) {
			return h
		}
	}
}
