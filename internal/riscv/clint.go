package riscv

import "sync/atomic"

// CLINT register window offsets, per hart, within the per-hart stride.
const (
	clintStride    = 0x10000 // 64 KiB per hart
	clintMSIPOff   = 0x0000
	clintMTimeCmp  = 0x4000
	clintMTimeOff  = 0xBFF8
)

// CLINT is the machine's core-local interrupt controller: per-hart MSIP
// (machine software interrupt) and MTIMECMP registers, plus one shared
// MTIME register. Grounded on internal/vm/disp.go's Display/
// DisplayDriver MMIO-device-with-mutex-guarded-registers pattern,
// generalized to CLINT's three register windows and per-hart address
// stride. This is the canonical in-scope MMIO device (spec.md §1).
type CLINT struct {
	harts []*Hart
	msip  []atomic.Uint32
	timer *Timer
}

func NewCLINT(harts []*Hart, timer *Timer) *CLINT {
	return &CLINT{
		harts: harts,
		msip:  make([]atomic.Uint32, len(harts)),
		timer: timer,
	}
}

func (c *CLINT) Name() string    { return "clint" }
func (c *CLINT) MinOpSize() int  { return 4 }
func (c *CLINT) MaxOpSize() int  { return 8 }
func (c *CLINT) Reset() {
	for i := range c.msip {
		c.msip[i].Store(0)
	}
}

func (c *CLINT) hartAndOffset(offset uint64) (idx int, sub uint64, ok bool) {
	idx = int(offset / clintStride)
	if idx < 0 || idx >= len(c.harts) {
		return 0, 0, false
	}
	return idx, offset % clintStride, true
}

func (c *CLINT) Read(offset uint64, size int) (uint64, bool) {
	idx, sub, ok := c.hartAndOffset(offset)
	if !ok {
		return 0, false
	}

	switch {
	case sub == clintMSIPOff && size == 4:
		return uint64(c.msip[idx].Load()), true
	case sub == clintMTimeCmp && size == 8:
		return c.harts[idx].StimeCmp.Get(), true
	case sub == clintMTimeOff && size == 8:
		return c.timer.Now(), true
	default:
		return 0, false
	}
}

func (c *CLINT) Write(offset uint64, size int, val uint64) bool {
	idx, sub, ok := c.hartAndOffset(offset)
	if !ok {
		return false
	}

	switch {
	case sub == clintMSIPOff && size == 4:
		if val&1 != 0 {
			c.msip[idx].Store(1)
			c.harts[idx].RaiseIRQ(IntMSI)
		} else {
			c.msip[idx].Store(0)
			c.harts[idx].ClearIRQ(IntMSI)
		}
		return true

	case sub == clintMTimeCmp && size == 8:
		c.harts[idx].StimeCmp.Set(val)
		c.harts[idx].ClearIRQ(IntMTI)
		return true

	case sub == clintMTimeOff && size == 8:
		// Every hart shares this one Timer instance, so rebasing it here
		// is visible to every hart's reads without iterating them.
		c.timer.Rebase(val)
		for _, h := range c.harts {
			if h.StimeCmp.Pending() {
				h.RaiseIRQ(IntMTI)
			}
		}
		return true

	default:
		return false
	}
}

// Poll re-checks every hart's mtimecmp against the current timer value
// and asserts MTI where due. Called periodically by Machine's clock
// goroutine, since CLINT has no host interrupt source of its own to
// drive this edge.
func (c *CLINT) Poll() {
	for _, h := range c.harts {
		if h.StimeCmp.Pending() {
			h.RaiseIRQ(IntMTI)
		}
	}
}
