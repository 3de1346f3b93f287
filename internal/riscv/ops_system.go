package riscv

// registerSystem installs ECALL/EBREAK/MRET/SRET/WFI/SFENCE.VMA (all
// funct3=0 on the SYSTEM opcode, distinguished from each other by the
// full imm12/funct7/rs2 fields rather than uncompressedKey's single
// "alt" bit, so both of that bit's table slots route to one dispatcher)
// and FENCE.I (Zifencei, MISC-MEM funct3=1).
func registerSystem(d *Decoder) {
	d.set(op5System<<4|0<<1|0, opSystemMisc)
	d.set(op5System<<4|0<<1|1, opSystemMisc)
	d.set(op5MiscMem<<4|1<<1, opFENCEI)
}

func opSystemMisc(h *Hart, insn uint32) {
	imm12 := insn >> 20
	fn7 := funct7(insn)

	switch {
	case imm12 == 0x000 && rs1(insn) == 0 && rd(insn) == 0:
		opECALL(h, insn)
	case imm12 == 0x001 && rs1(insn) == 0 && rd(insn) == 0:
		h.raise(NewException(ExcBreakpoint, h.PC, nil))
	case imm12 == 0x102 && rs1(insn) == 0 && rd(insn) == 0:
		h.execSRET()
	case imm12 == 0x302 && rs1(insn) == 0 && rd(insn) == 0:
		h.execMRET()
	case imm12 == 0x105 && rs1(insn) == 0 && rd(insn) == 0:
		opWFI(h, insn)
	case fn7 == 0x09: // SFENCE.VMA
		opSFENCEVMA(h, insn)
	default:
		h.raise(illegalInstruction(uint64(insn)))
	}
}

func opECALL(h *Hart, insn uint32) {
	var cause uint64
	switch h.Priv {
	case PrivMachine:
		cause = ExcEcallM
	case PrivSupervisor:
		cause = ExcEcallS
	default:
		cause = ExcEcallU
	}
	h.raise(NewException(cause, 0, nil))
}

func opWFI(h *Hart, insn uint32) {
	// TW traps WFI to M-mode when executed below M and set.
	if h.Priv != PrivMachine && h.CSR.status.TW() {
		h.raise(illegalInstruction(uint64(insn)))
		return
	}
	h.waitEvent.Store(1)
}

func opSFENCEVMA(h *Hart, insn uint32) {
	if h.Priv == PrivSupervisor && h.CSR.status.TVM() {
		h.raise(illegalInstruction(uint64(insn)))
		return
	}

	rs1v, rs2v := rs1(insn), rs2(insn)

	if rs1v == 0 {
		h.TLBs.FlushAll()
		return
	}

	vpn := h.GetX(rs1v) >> PageShift
	_ = rs2v // ASID-selective flush is not modeled; a vaddr-selective flush still satisfies spec.md's flush-trigger list
	h.TLBs.FlushVA(vpn)
}

func opFENCEI(h *Hart, insn uint32) {
	// The decoder cache is keyed by (XLEN, extension-set) only, never by
	// instruction-memory contents, so there is no instruction cache to
	// invalidate; FENCE.I is a no-op that exists so the opcode decodes.
}
