package riscv

import "testing"

func TestCSR_ReadOnlyRangeRejectsWrite(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	// 0xC01 (time) sits in the 0b11 top-two-bits range: csr[11:10]==0b11.
	if !readOnly(csrTIME) {
		t.Fatalf("csrTIME should be in the read-only range")
	}

	_, ok := h.CSRReadWrite(csrTIME, 0x1234, CSRSwap, true)
	if ok {
		t.Errorf("write to a read-only CSR should fail")
	}

	// A read-only pass (write=false) on the same address still works.
	if _, ok := h.CSRReadWrite(csrTIME, 0, CSRSwap, false); !ok {
		t.Errorf("read of a read-only CSR should still succeed")
	}
}

func TestCSR_PrivilegeGating(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]
	h.Priv = PrivUser

	// mstatus is an M-mode-only CSR: addr[9:8] == 0b11 > PrivUser.
	if _, ok := h.CSRReadWrite(csrMSTATUS, 0, CSRSwap, true); ok {
		t.Errorf("user mode should not be able to access mstatus")
	}

	h.Priv = PrivMachine
	if _, ok := h.CSRReadWrite(csrMSTATUS, 0, CSRSwap, false); !ok {
		t.Errorf("machine mode should be able to read mstatus")
	}
}

func TestCSR_SATPWarlRejectsReservedMode(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	before := h.CSR.satp

	// mode 2 is reserved (not Bare/Sv32/Sv39/Sv48/Sv57).
	reserved := uint64(2) << 60
	h.writeSatp(reserved)

	if h.CSR.satp != before {
		t.Errorf("reserved satp.MODE should be dropped silently: got %#x, want unchanged %#x",
			h.CSR.satp, before)
	}
}

func TestCSR_SATPWriteFlushesTLB(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	h.TLBs.Read.insert(1, 2, false)

	h.writeSatp(uint64(SatpSv39)<<60 | 1)

	if _, ok := h.TLBs.Read.lookup(1); ok {
		t.Errorf("a real satp change should flush every TLB")
	}
}

func TestCSR_SSTATUSMasksToSupervisorView(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]
	h.Priv = PrivSupervisor

	// Writing sstatus with MIE (an M-only bit) set should not leak into
	// the supervisor's own readback, nor into mstatus.MIE.
	_, ok := h.CSRReadWrite(csrSSTATUS, statusMIE|statusSIE, CSRSwap, true)
	if !ok {
		t.Fatalf("sstatus write should be permitted from S-mode")
	}

	if h.CSR.status.MIE() {
		t.Errorf("sstatus write should not set mstatus.MIE")
	}
	if !h.CSR.status.SIE() {
		t.Errorf("sstatus write should set the SIE bit it is allowed to touch")
	}
}

// TestCSR_MstatusSDRecomputedOnWrite grounds the single end-to-end CSR
// scenario named in the testable-properties list: csrrw x0, mstatus, x1
// with a value that tries to force SD set directly. SD is a derived
// summary bit (FS==3 or XS==3), so a bare attempt to set bit 63 by hand,
// with FS/XS left clear, must not stick.
func TestCSR_MstatusSDRecomputedOnWrite(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	priorMstatus, _ := h.CSRReadWrite(csrMSTATUS, 0, CSRSwap, false)

	h.SetX(1, 0x8000_0000_0000_0000)

	old, ok := h.CSRReadWrite(csrMSTATUS, h.GetX(1), CSRSwap, true)
	if !ok {
		t.Fatalf("csrrw to mstatus should succeed from M-mode")
	}
	if old != priorMstatus {
		t.Errorf("csrrw should return the prior mstatus: want %#x, got %#x", priorMstatus, old)
	}

	if h.CSR.status.Raw()&statusSD != 0 {
		t.Errorf("SD must be recomputed from FS/XS, not settable by a raw write")
	}
}

func TestCSR_UnknownAddressFails(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	if _, ok := h.CSRReadWrite(0x7FF, 0, CSRSwap, true); ok {
		t.Errorf("an unimplemented csr address should report ok=false")
	}
}
