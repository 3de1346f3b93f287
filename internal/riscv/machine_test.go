package riscv

import "testing"

// TestScenario1_ECallEntersMachineTrap is spec.md §8 scenario 1: addi x1,
// x0, 42; ecall at pc=0x80000000 in M-mode with mtvec=0x80001000 direct.
func TestScenario1_ECallEntersMachineTrap(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]
	h.CSR.mtvec = 0x8000_1000

	addi := encodeI(opcodeOPIMM, 0, 1, 0, 42)
	ecall := uint32(0x0000_0073)

	prog := make([]byte, 8)
	storeLE(prog[0:4], uint64(addi))
	storeLE(prog[4:8], uint64(ecall))
	if !m.WriteRAM(0x8000_0000, prog) {
		t.Fatalf("writing program failed")
	}

	oldMIE := h.CSR.status.MIE()

	if err := h.Step(); err != nil {
		t.Fatalf("step addi: %v", err)
	}
	if h.X[1] != 42 {
		t.Fatalf("x1: want 42, got %d", h.X[1])
	}

	if err := h.Step(); err != nil {
		t.Fatalf("step ecall: %v", err)
	}

	if h.PC != 0x8000_1000 {
		t.Errorf("pc: want %#x, got %#x", uint64(0x8000_1000), h.PC)
	}
	if h.CSR.mcause != ExcEcallM {
		t.Errorf("mcause: want %d, got %d", uint64(ExcEcallM), h.CSR.mcause)
	}
	if h.CSR.mepc != 0x8000_0004 {
		t.Errorf("mepc: want %#x, got %#x", uint64(0x8000_0004), h.CSR.mepc)
	}
	if h.CSR.status.MPP() != PrivMachine {
		t.Errorf("mstatus.MPP: want M, got %s", h.CSR.status.MPP())
	}
	if h.CSR.status.MPIE() != oldMIE {
		t.Errorf("mstatus.MPIE should equal the pre-trap MIE (%v), got %v", oldMIE, h.CSR.status.MPIE())
	}
	if h.CSR.status.MIE() {
		t.Errorf("mstatus.MIE must be clear after trap entry")
	}
}

// TestScenario2_UnmappedLoadFaultsToSupervisor is spec.md §8 scenario 2:
// a load from an unmapped physical address in U-mode, delegated to
// S-mode, reports a load-access-fault with the faulting address in
// stval and the instruction's own pc in sepc.
func TestScenario2_UnmappedLoadFaultsToSupervisor(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	h.CSR.medeleg = uint64(1) << ExcLoadAccessFault
	h.CSR.stvec = 0x8000_9000
	h.Priv = PrivUser

	const loadPC = 0x8000_0000
	h.PC = loadPC
	h.SetX(1, 0xFEEDFACE)

	lw := encodeI(opcodeLOAD, 2, 2, 1, 0) // lw x2, 0(x1)
	if !m.WriteRAM(loadPC, []byte{
		byte(lw), byte(lw >> 8), byte(lw >> 16), byte(lw >> 24),
	}) {
		t.Fatalf("writing load instruction failed")
	}

	if err := h.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	if h.CSR.scause != ExcLoadAccessFault {
		t.Errorf("scause: want %d, got %d", uint64(ExcLoadAccessFault), h.CSR.scause)
	}
	if h.CSR.stval != 0xFEEDFACE {
		t.Errorf("stval: want %#x, got %#x", uint64(0xFEEDFACE), h.CSR.stval)
	}
	if h.CSR.sepc != loadPC {
		t.Errorf("sepc: want %#x, got %#x", uint64(loadPC), h.CSR.sepc)
	}
	if h.Priv != PrivSupervisor {
		t.Errorf("delegated trap should land in S-mode, got %s", h.Priv)
	}
}

// TestScenario3_CLINTTimerInterrupt is spec.md §8 scenario 3.
func TestScenario3_CLINTTimerInterrupt(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]
	clint := m.clint

	h.CSR.status.SetMIE(true)
	h.CSR.mie = uint64(1) << IntMTI
	h.CSR.mtvec = 0x8000_A000

	clint.timer.Rebase(500)
	if ok := clint.Write(clintMTimeCmp, 8, 1000); !ok {
		t.Fatalf("mtimecmp write failed")
	}

	// mtime hasn't reached mtimecmp yet: no trap should be pending.
	if h.checkInterrupts() {
		t.Fatalf("trap should not be pending before mtime reaches mtimecmp")
	}

	clint.timer.Rebase(1000)
	clint.Poll()

	if err := h.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	if h.CSR.mcause != InterruptBit|IntMTI {
		t.Errorf("mcause: want %#x, got %#x", InterruptBit|uint64(IntMTI), h.CSR.mcause)
	}
	if h.PC != 0x8000_A000 {
		t.Errorf("pc should jump to mtvec: got %#x", h.PC)
	}
}

// TestScenario4_SFENCEVMAInvalidatesStaleMapping is spec.md §8 scenario 4.
func TestScenario4_SFENCEVMAInvalidatesStaleMapping(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	installSv39PageTable(t, m, h, 0, 0x1000, pteV|pteR|pteW|pteX|pteU)

	paddr, _, trap := h.translate(0, AccessRead)
	if trap != nil {
		t.Fatalf("unexpected trap priming the TLB: %v", trap)
	}
	if paddr != 0x1000 {
		t.Fatalf("priming read: want paddr 0x1000, got %#x", paddr)
	}

	rewriteLeafPTE(t, m, 0, 0x3000, pteV|pteR|pteW|pteX|pteU)

	// SFENCE.VMA x0, x0 (rs1 field is x0: flush everything) must
	// invalidate the stale entry rather than a single address.
	sfenceVMA := encodeR(opcodeSYSTEM, 0, 0x09, 0, 0, 0)
	opSFENCEVMA(h, sfenceVMA)

	paddr, _, trap = h.translate(0, AccessRead)
	if trap != nil {
		t.Fatalf("unexpected trap after sfence.vma: %v", trap)
	}
	if paddr != 0x3000 {
		t.Errorf("post-flush read should observe the new mapping: want 0x3000, got %#x", paddr)
	}
}

// TestScenario5_LRSCRaceAcrossTwoHarts is spec.md §8 scenario 5, scaled
// down from 1,000,000 iterations per hart to keep the test's wall-clock
// cost reasonable; the property under test (no lost updates across a
// contended lr.w/sc.w loop) does not depend on the iteration count.
func TestScenario5_LRSCRaceAcrossTwoHarts(t *testing.T) {
	t.Parallel()

	const itersPerHart = 2000
	const counterAddr = 0x8000_0000

	m, err := NewMachine(
		WithHartCount(2),
		WithRV64(true),
		WithExtensions(ExtA|ExtZicsr),
		WithMemory(counterAddr, PageSize),
	)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if !m.WriteRAM(counterAddr, make([]byte, 8)) {
		t.Fatalf("zeroing counter failed")
	}

	lrInsn := encodeR(0b0101111, 2, amoFuncLR<<2, 5, 1, 0)  // lr.w x5, (x1)
	addInsn := encodeI(opcodeOPIMM, 0, 5, 5, 1)              // addi x5, x5, 1
	scInsn := encodeR(0b0101111, 2, amoFuncSC<<2, 6, 1, 5)   // sc.w x6, x5, (x1)

	lrFn := m.Harts[0].decoder.Decode(lrInsn, 4)
	addFn := m.Harts[0].decoder.Decode(addInsn, 4)
	scFn := m.Harts[0].decoder.Decode(scInsn, 4)
	if lrFn == nil || addFn == nil || scFn == nil {
		t.Fatalf("lr.w/addi/sc.w must all decode")
	}

	run := func(h *Hart) {
		h.SetX(1, counterAddr)
		for done := 0; done < itersPerHart; {
			lrFn(h, lrInsn)
			addFn(h, addInsn)
			scFn(h, scInsn)

			if h.GetX(6) == 0 {
				done++
			}
		}
	}

	done := make(chan struct{}, 2)
	for _, h := range m.Harts {
		h := h
		go func() {
			run(h)
			done <- struct{}{}
		}()
	}
	<-done
	<-done

	buf := make([]byte, 8)
	if !m.ReadRAM(buf, counterAddr) {
		t.Fatalf("reading counter failed")
	}
	final := loadLE(buf)
	if final != uint64(itersPerHart*len(m.Harts)) {
		t.Errorf("counter: want %d, got %d", itersPerHart*len(m.Harts), final)
	}
}

// TestScenario6_CSRRWMstatusOldValueAndWARL is spec.md §8 scenario 6:
// csrrw x0, mstatus, x1 with x1=0x8000000000000000. Since rd is x0 the
// destination register always reads zero regardless of the CSR's old
// value (see Hart.GetX/SetX in hart.go for that general rule); what this
// scenario actually pins down is CSRReadWrite's own return value and the
// WARL recomputation of SD, both exercised directly here against the
// same CSR address and operand the instruction would use.
func TestScenario6_CSRRWMstatusOldValueAndWARL(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	h := m.Harts[0]

	prior, ok := h.CSRReadWrite(csrMSTATUS, 0, CSRSwap, false)
	if !ok {
		t.Fatalf("reading mstatus failed")
	}

	h.SetX(1, 0x8000_0000_0000_0000)

	old, ok := h.CSRReadWrite(csrMSTATUS, h.GetX(1), CSRSwap, true)
	if !ok {
		t.Fatalf("csrrw to mstatus failed")
	}
	if old != prior {
		t.Errorf("returned old-value should be the prior mstatus: want %#x, got %#x", prior, old)
	}

	if h.CSR.status.Raw()&statusSD != 0 {
		t.Errorf("mstatus.SD must be recomputed (FS/XS both clear), not settable by a raw write")
	}
}
