package riscv

import (
	"testing"
)

// newTestMachine builds a single-hart RV64 machine with the M, A, C,
// Zicsr and Zifencei extensions, ready to step instructions directly
// against its RAM without starting any goroutines.
func newTestMachine(t *testing.T) *Machine {
	t.Helper()

	m, err := NewMachine(
		WithHartCount(1),
		WithRV64(true),
		WithExtensions(ExtM|ExtA|ExtC|ExtZicsr|ExtZifencei),
		WithMemory(0x8000_0000, 1<<20),
		WithResetPC(0x8000_0000),
	)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

// Sv39 three-level page table fixture, reused by tlb_test.go and
// machine_test.go's paging scenario: a root table pointing at a
// second-level table pointing at a third-level table holding one leaf
// PTE for vaddr 0, all carved out of the test machine's own RAM.
const (
	testSv39Root  = 0x8001_0000
	testSv39Mid   = 0x8001_1000
	testSv39Leaf  = 0x8001_2000
)

// installSv39PageTable wires up a full Sv39 walk for virtual page 0 (vaddr
// is ignored: every level uses index 0), whose leaf maps to physical page
// targetAddr (must be page-aligned) with the given PTE flags, points the
// hart's satp at the root table, and sets h.Priv to User so translate()
// actually walks rather than short-circuiting the machine-mode passthrough.
func installSv39PageTable(t *testing.T, m *Machine, h *Hart, vaddr, targetAddr, flags uint64) {
	t.Helper()

	if targetAddr&pageMask != 0 {
		t.Fatalf("targetAddr %#x must be page-aligned", targetAddr)
	}

	// Non-leaf entries: valid, no R/W/X, PPN points at the next table.
	writePTE(t, m, testSv39Root, (testSv39Mid>>12)<<10|pteV)
	writePTE(t, m, testSv39Mid, (testSv39Leaf>>12)<<10|pteV)
	writePTE(t, m, testSv39Leaf, (targetAddr>>12)<<10|flags)

	h.CSR.satp = uint64(SatpSv39)<<60 | (testSv39Root >> 12)
	h.Priv = PrivUser
	h.TLBs.FlushAll()

	_ = vaddr // the fixture only ever covers vaddr 0's VPN chain (all index-0)
}

// rewriteLeafPTE repoints the fixture's leaf entry at a new physical
// page, simulating the guest remapping a page without an intervening
// TLB flush.
func rewriteLeafPTE(t *testing.T, m *Machine, vaddr, targetAddr, flags uint64) {
	t.Helper()
	if targetAddr&pageMask != 0 {
		t.Fatalf("targetAddr %#x must be page-aligned", targetAddr)
	}
	writePTE(t, m, testSv39Leaf, (targetAddr>>12)<<10|flags)
	_ = vaddr
}

func writePTE(t *testing.T, m *Machine, addr, val uint64) {
	t.Helper()
	if !m.AS.Write(addr, 8, val) {
		t.Fatalf("writing pte at %#x failed", addr)
	}
}

// encodeR builds an R-type instruction word.
func encodeR(opcode, funct3, funct7, rdN, rs1N, rs2N uint32) uint32 {
	return funct7<<25 | rs2N<<20 | rs1N<<15 | funct3<<12 | rdN<<7 | opcode
}

// encodeI builds an I-type instruction word.
func encodeI(opcode, funct3, rdN, rs1N uint32, imm uint32) uint32 {
	return (imm&0xFFF)<<20 | rs1N<<15 | funct3<<12 | rdN<<7 | opcode
}

const (
	opcodeOP     = 0b0110011
	opcodeOPIMM  = 0b0010011
	opcodeSYSTEM = 0b1110011
	opcodeLOAD   = 0b0000011
	opcodeSTORE  = 0b0100011
)
