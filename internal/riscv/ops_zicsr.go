package riscv

// registerZicsr installs CSRRW/CSRRS/CSRRC and their *I immediate forms
// (SYSTEM opcode, funct3 1-3 and 5-7).
func registerZicsr(d *Decoder) {
	d.set(op5System<<4|1<<1, opCSRRW)
	d.set(op5System<<4|2<<1, opCSRRS)
	d.set(op5System<<4|3<<1, opCSRRC)
	d.set(op5System<<4|5<<1, opCSRRWI)
	d.set(op5System<<4|6<<1, opCSRRSI)
	d.set(op5System<<4|7<<1, opCSRRCI)
}

func csrAddr(insn uint32) uint16 { return uint16(insn >> 20) }

func doCSR(h *Hart, insn uint32, value uint64, op CSROp, write bool) {
	old, ok := h.CSRReadWrite(csrAddr(insn), value, op, write)
	if !ok {
		h.raise(illegalInstruction(uint64(insn)))
		return
	}
	h.SetX(rd(insn), old)
}

func opCSRRW(h *Hart, insn uint32) {
	doCSR(h, insn, h.GetX(rs1(insn)), CSRSwap, true)
}

func opCSRRS(h *Hart, insn uint32) {
	doCSR(h, insn, h.GetX(rs1(insn)), CSRSet, rs1(insn) != 0)
}

func opCSRRC(h *Hart, insn uint32) {
	doCSR(h, insn, h.GetX(rs1(insn)), CSRClear, rs1(insn) != 0)
}

func opCSRRWI(h *Hart, insn uint32) {
	doCSR(h, insn, uint64(rs1(insn)), CSRSwap, true)
}

func opCSRRSI(h *Hart, insn uint32) {
	doCSR(h, insn, uint64(rs1(insn)), CSRSet, rs1(insn) != 0)
}

func opCSRRCI(h *Hart, insn uint32) {
	doCSR(h, insn, uint64(rs1(insn)), CSRClear, rs1(insn) != 0)
}
