//go:build !windows

package riscv

import (
	"time"

	"golang.org/x/sys/unix"
)

// nanosleep blocks the calling goroutine (and, since WFI parking runs on
// a locked OS thread, the underlying thread) for d using the raw
// nanosleep(2) syscall rather than Go's runtime timer wheel. A parked
// hart's OS thread has nothing else to do while waiting on a clocksource
// deadline, so bypassing the runtime timer avoids waking the scheduler
// just to re-arm a channel send.
func nanosleep(d time.Duration) {
	if d <= 0 {
		return
	}

	ts := unix.NsecToTimespec(d.Nanoseconds())
	for {
		rem := unix.Timespec{}
		err := unix.Nanosleep(&ts, &rem)
		if err == nil {
			return
		}
		if err != unix.EINTR {
			return
		}
		ts = rem
	}
}
