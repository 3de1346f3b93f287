//go:build windows

package riscv

import "time"

// nanosleep is the portable fallback for platforms without a raw
// nanosleep(2) syscall (see sleep_unix.go).
func nanosleep(d time.Duration) {
	time.Sleep(d)
}
