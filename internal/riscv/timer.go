package riscv

import (
	"sync/atomic"
	"time"
)

// processStart anchors the monotonic host clock used to derive every
// hart's guest-frequency timer. A single package-level start point
// (rather than per-Timer) keeps sibling harts' clocks comparable.
var processStart = time.Now()

func hostNanos() uint64 {
	return uint64(time.Since(processStart).Nanoseconds())
}

// Timer converts the host monotonic clock into a guest clock running at
// freqHz, rebased whenever the guest writes to MTIME (CLINT's
// behavior). No teacher analogue exists (LC-3 has no timer device); this
// wraps the host clock the way golang.org/x/sys's presence in the
// teacher's stack suggests low-level host timing is the idiomatic
// building block, rather than a busy-counted instruction clock.
type Timer struct {
	freqHz uint64
	begin  atomic.Int64 // hostNanos() value corresponding to guest time 0
}

func NewTimer(freqHz uint64) *Timer {
	t := &Timer{freqHz: freqHz}
	t.begin.Store(int64(hostNanos()))
	return t
}

func (t *Timer) scale(nanos uint64) uint64 {
	return nanos * t.freqHz / 1_000_000_000
}

// Now returns the current guest timer value.
func (t *Timer) Now() uint64 {
	elapsed := hostNanos() - uint64(t.begin.Load())
	return t.scale(elapsed)
}

// Rebase sets the timer so that Now() immediately returns newNow (used
// when the guest writes MTIME directly).
func (t *Timer) Rebase(newNow uint64) {
	guestNanos := newNow * 1_000_000_000 / t.freqHz
	t.begin.Store(int64(hostNanos() - guestNanos))
}

// TimeCmp is the atomic compare register backing mtimecmp/stimecmp; IRQ
// delivery polls Pending() at safe points in the hart's dispatch loop.
type TimeCmp struct {
	cmp   atomic.Uint64
	timer *Timer
}

func NewTimeCmp(t *Timer) *TimeCmp {
	tc := &TimeCmp{timer: t}
	tc.cmp.Store(^uint64(0))
	return tc
}

func (tc *TimeCmp) Set(v uint64) { tc.cmp.Store(v) }
func (tc *TimeCmp) Get() uint64  { return tc.cmp.Load() }

func (tc *TimeCmp) Pending() bool {
	return tc.timer.Now() >= tc.cmp.Load()
}
