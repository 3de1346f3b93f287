package riscv

import "testing"

func TestCLINT_MSIPRaisesAndClearsIRQ(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]
	clint := m.clint

	if ok := clint.Write(clintMSIPOff, 4, 1); !ok {
		t.Fatalf("msip write failed")
	}
	if h.irqMask.Load()&(uint64(1)<<IntMSI) == 0 {
		t.Errorf("MSIP write should assert MSI on the target hart")
	}

	v, ok := clint.Read(clintMSIPOff, 4)
	if !ok || v != 1 {
		t.Errorf("msip readback: ok=%v, v=%d", ok, v)
	}

	if ok := clint.Write(clintMSIPOff, 4, 0); !ok {
		t.Fatalf("msip clear failed")
	}
	if h.irqMask.Load()&(uint64(1)<<IntMSI) != 0 {
		t.Errorf("clearing MSIP should clear MSI")
	}
}

func TestCLINT_MTimeIsSharedAcrossHarts(t *testing.T) {
	t.Parallel()

	m, err := NewMachine(WithHartCount(2), WithMemory(0x8000_0000, 1<<16))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	clint := m.clint
	if ok := clint.Write(clintMTimeOff, 8, 123_456); !ok {
		t.Fatalf("mtime write failed")
	}

	for i, h := range m.Harts {
		if h.Timer != m.Harts[0].Timer {
			t.Fatalf("hart %d does not share the machine's single Timer instance", i)
		}
	}

	v0, ok := clint.Read(clintMTimeOff, 8)
	if !ok || v0 < 123_456 {
		t.Fatalf("mtime readback should reflect the rebase: got %d", v0)
	}
}

// TestCLINT_MTimeCmpInterruptScenario grounds the end-to-end timer
// scenario: writing mtimecmp while mtime is still below it must not
// raise MTI, but once mtime reaches or passes it (simulated here via
// Rebase, standing in for elapsed wall-clock time), CLINT.Poll must
// raise it.
func TestCLINT_MTimeCmpInterruptScenario(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]
	clint := m.clint

	clint.timer.Rebase(500)
	if ok := clint.Write(clintMTimeCmp, 8, 1000); !ok {
		t.Fatalf("mtimecmp write failed")
	}

	if h.StimeCmp.Pending() {
		t.Fatalf("mtimecmp=1000 with mtime=500 should not be pending yet")
	}
	if h.irqMask.Load()&(uint64(1)<<IntMTI) != 0 {
		t.Fatalf("MTI must not be asserted before mtime reaches mtimecmp")
	}

	clint.timer.Rebase(1000)
	clint.Poll()

	if h.irqMask.Load()&(uint64(1)<<IntMTI) == 0 {
		t.Fatalf("CLINT.Poll should raise MTI once mtime reaches mtimecmp")
	}

	h.CSR.mideleg = 0
	h.CSR.mie = uint64(1) << IntMTI
	h.CSR.status.SetMIE(true)

	if !h.checkInterrupts() {
		t.Fatalf("an enabled, pending MTI should be observed by checkInterrupts")
	}
	if h.pendingTrap.Cause != IntMTI || !h.pendingTrap.Interrupt {
		t.Errorf("pending trap should be the MTI interrupt, got %+v", h.pendingTrap)
	}
}
