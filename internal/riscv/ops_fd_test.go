package riscv

import "testing"

const opcodeOPFP = uint32(0x53)

// TestOpsFD_LoadStoreRoundTrip grounds FLW/FSW against a RAM-backed
// Machine: storing f2's pattern through memory and loading it back into
// f3 must reproduce the original bits NaN-boxed into the upper half.
func TestOpsFD_LoadStoreRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	const addr = 0x8000_0100
	h.SetX(1, addr)
	h.F[2] = 0xFFFFFFFF3F800000 // 1.0f, already NaN-boxed

	fsw := encodeR(0b0100111, 2, 0, 0, 1, 2) // fsw f2, 0(x1)
	opFSW(h, fsw)
	if h.pendingTrap != nil {
		t.Fatalf("fsw: unexpected trap: %v", h.pendingTrap)
	}

	flw := encodeI(0b0000111, 2, 3, 1, 0) // flw f3, 0(x1)
	opFLW(h, flw)
	if h.pendingTrap != nil {
		t.Fatalf("flw: unexpected trap: %v", h.pendingTrap)
	}

	if got := h.fGetS(3); got != 1.0 {
		t.Errorf("round trip: want 1.0, got %v", got)
	}
}

func TestOpsFD_FADD_S(t *testing.T) {
	t.Parallel()

	h := &Hart{RV64: true}
	h.fSetS(1, 2)
	h.fSetS(2, 3)

	add := encodeR(opcodeOPFP, 0, 0, 3, 1, 2) // fadd.s f3, f1, f2
	opOpFP(h, add)

	if got := h.fGetS(3); got != 5 {
		t.Errorf("fadd.s: want 5, got %v", got)
	}
}

func TestOpsFD_FEQ_S(t *testing.T) {
	t.Parallel()

	h := &Hart{RV64: true}
	h.fSetS(1, 4)
	h.fSetS(2, 4)

	feq := encodeR(opcodeOPFP, 2, 0x50, 5, 1, 2) // feq.s x5, f1, f2
	opOpFP(h, feq)

	if got := h.GetX(5); got != 1 {
		t.Errorf("feq.s: want 1, got %d", got)
	}
}

func TestOpsFD_FSGNJN_S(t *testing.T) {
	t.Parallel()

	h := &Hart{RV64: true}
	h.fSetS(1, 5)
	h.fSetS(2, 1)

	fsgnjn := encodeR(opcodeOPFP, 1, 0x10, 3, 1, 2) // fsgnjn.s f3, f1, f2
	opOpFP(h, fsgnjn)

	if got := h.fGetS(3); got != -5 {
		t.Errorf("fsgnjn.s: want -5, got %v", got)
	}
}
