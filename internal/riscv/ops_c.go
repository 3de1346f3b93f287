package riscv

// registerC installs the practical, commonly-generated subset of the C
// (compressed) extension: stack-relative loads/stores, register-
// immediate and register-register arithmetic, control flow, and the
// load-immediate forms. Compressed floating-point loads/stores
// (c.flw/c.fld/c.fsw/c.fsd) are intentionally not implemented — see
// DESIGN.md's Open Question decision; the uncompressed F/D instructions
// remain available for that data.
func registerC(d *Decoder, rv64 bool) {
	d.setC(0<<3|0, opCADDI4SPN)
	d.setC(0<<3|2, opCLW)
	if rv64 {
		d.setC(0<<3|3, opCLD)
	}
	d.setC(0<<3|6, opCSW)
	if rv64 {
		d.setC(0<<3|7, opCSD)
	}

	d.setC(1<<3|0, opCADDI)
	if rv64 {
		d.setC(1<<3|1, opCADDIW)
	} else {
		d.setC(1<<3|1, opCJAL)
	}
	d.setC(1<<3|2, opCLI)
	d.setC(1<<3|3, opCLUIOrADDI16SP)
	d.setC(1<<3|4, opCMiscAlu)
	d.setC(1<<3|5, opCJ)
	d.setC(1<<3|6, opCBEQZ)
	d.setC(1<<3|7, opCBNEZ)

	d.setC(2<<3|0, opCSLLI)
	d.setC(2<<3|2, opCLWSP)
	if rv64 {
		d.setC(2<<3|3, opCLDSP)
	}
	d.setC(2<<3|4, opCJRMVAddEbreak)
	d.setC(2<<3|6, opCSWSP)
	if rv64 {
		d.setC(2<<3|7, opCSDSP)
	}
}

func crs1p(insn uint32) uint32 { return ((insn >> 7) & 0x7) + 8 }
func crs2p(insn uint32) uint32 { return ((insn >> 2) & 0x7) + 8 }
func crd5(insn uint32) uint32  { return (insn >> 7) & 0x1F }
func crs2full(insn uint32) uint32 { return (insn >> 2) & 0x1F }

func opCADDI4SPN(h *Hart, insn uint32) {
	u := uint32(insn)
	nzimm := ((u>>7)&0x30) | ((u>>1)&0x3C0) | ((u>>4)&0x4) | ((u>>2)&0x8)
	if nzimm == 0 {
		h.raise(illegalInstruction(uint64(insn)))
		return
	}
	h.SetX(crs2p(insn), h.GetX(2)+uint64(nzimm))
}

func opCLW(h *Hart, insn uint32) {
	u := uint32(insn)
	off := ((u>>10)&0x7)<<3 | ((u>>6)&0x1)<<2 | ((u>>5)&0x1)<<6
	addr := h.GetX(crs1p(insn)) + uint64(off)
	v, trap := h.loadMem(addr, 4, true)
	if trap != nil {
		h.raise(trap)
		return
	}
	h.SetX(crs2p(insn), v)
}

func opCLD(h *Hart, insn uint32) {
	u := uint32(insn)
	off := ((u>>10)&0x7)<<3 | ((u>>5)&0x3)<<6
	addr := h.GetX(crs1p(insn)) + uint64(off)
	v, trap := h.loadMem(addr, 8, false)
	if trap != nil {
		h.raise(trap)
		return
	}
	h.SetX(crs2p(insn), v)
}

func opCSW(h *Hart, insn uint32) {
	u := uint32(insn)
	off := ((u>>10)&0x7)<<3 | ((u>>6)&0x1)<<2 | ((u>>5)&0x1)<<6
	addr := h.GetX(crs1p(insn)) + uint64(off)
	if trap := h.storeMem(addr, 4, h.GetX(crs2p(insn))); trap != nil {
		h.raise(trap)
	}
}

func opCSD(h *Hart, insn uint32) {
	u := uint32(insn)
	off := ((u>>10)&0x7)<<3 | ((u>>5)&0x3)<<6
	addr := h.GetX(crs1p(insn)) + uint64(off)
	if trap := h.storeMem(addr, 8, h.GetX(crs2p(insn))); trap != nil {
		h.raise(trap)
	}
}

func opCADDI(h *Hart, insn uint32) {
	u := uint32(insn)
	imm := signExtend(uint64((u>>12&1)<<5|(u>>2&0x1F)), 6)
	h.SetX(crd5(insn), h.GetX(crd5(insn))+imm)
}

func opCJAL(h *Hart, insn uint32) {
	target := h.PC + cjImm(insn)
	h.SetX(1, h.PC+2)
	h.branchTo(target)
}

func opCADDIW(h *Hart, insn uint32) {
	u := uint32(insn)
	imm := int32(signExtend(uint64((u>>12&1)<<5|(u>>2&0x1F)), 6))
	h.SetXSext32(crd5(insn), uint32(int32(h.GetX(crd5(insn)))+imm))
}

func opCLI(h *Hart, insn uint32) {
	u := uint32(insn)
	imm := signExtend(uint64((u>>12&1)<<5|(u>>2&0x1F)), 6)
	h.SetX(crd5(insn), imm)
}

func opCLUIOrADDI16SP(h *Hart, insn uint32) {
	u := uint32(insn)
	rdv := crd5(insn)

	if rdv == 2 {
		nzimm := signExtend(uint64((u>>12&1)<<9|(u>>3&0x3)<<7|(u>>5&1)<<6|(u>>2&1)<<5|(u>>6&1)<<4), 10)
		h.SetX(2, h.GetX(2)+nzimm)
		return
	}

	imm := signExtend(uint64((u>>12&1)<<17|(u>>2&0x1F)<<12), 18)
	if imm == 0 {
		h.raise(illegalInstruction(uint64(insn)))
		return
	}
	h.SetX(rdv, imm)
}

func opCMiscAlu(h *Hart, insn uint32) {
	u := uint32(insn)
	funct2High := (u >> 10) & 0x3
	rdp := crs1p(insn)

	switch funct2High {
	case 0: // C.SRLI
		sh := (u>>12&1)<<5 | (u >> 2 & 0x1F)
		v := h.GetX(rdp)
		if !h.RV64 {
			v = zeroExtend(v, 32)
		}
		h.SetX(rdp, v>>sh)
	case 1: // C.SRAI
		sh := (u>>12&1)<<5 | (u >> 2 & 0x1F)
		bits := 64
		if !h.RV64 {
			bits = 32
		}
		v := signExtend(h.GetX(rdp), bits)
		h.SetX(rdp, uint64(int64(v)>>sh))
	case 2: // C.ANDI
		imm := signExtend(uint64((u>>12&1)<<5|(u>>2&0x1F)), 6)
		h.SetX(rdp, h.GetX(rdp)&imm)
	case 3:
		rs2p := crs2p(insn)
		funct2Low := (u >> 5) & 0x3
		isWord := (u>>12)&1 == 1
		switch {
		case !isWord && funct2Low == 0:
			h.SetX(rdp, h.GetX(rdp)-h.GetX(rs2p))
		case !isWord && funct2Low == 1:
			h.SetX(rdp, h.GetX(rdp)^h.GetX(rs2p))
		case !isWord && funct2Low == 2:
			h.SetX(rdp, h.GetX(rdp)|h.GetX(rs2p))
		case !isWord && funct2Low == 3:
			h.SetX(rdp, h.GetX(rdp)&h.GetX(rs2p))
		case isWord && funct2Low == 0:
			h.SetXSext32(rdp, uint32(h.GetX(rdp))-uint32(h.GetX(rs2p)))
		case isWord && funct2Low == 1:
			h.SetXSext32(rdp, uint32(h.GetX(rdp))+uint32(h.GetX(rs2p)))
		default:
			h.raise(illegalInstruction(uint64(insn)))
		}
	}
}

func cjImm(insn uint32) uint64 {
	u := uint32(insn)
	v := (u>>12&1)<<11 | (u>>11&1)<<4 | (u>>9&0x3)<<8 | (u>>8&1)<<10 |
		(u>>7&1)<<6 | (u>>6&1)<<7 | (u>>2&1)<<5 | (u>>3&0x7)<<1
	return signExtend(uint64(v), 12)
}

func opCJ(h *Hart, insn uint32) {
	h.branchTo(h.PC + cjImm(insn))
}

func cbImm(insn uint32) uint64 {
	u := uint32(insn)
	v := (u>>12&1)<<8 | (u>>5&0x3)<<6 | (u>>2&1)<<5 | (u>>10&0x3)<<3 | (u>>3&0x3)<<1
	return signExtend(uint64(v), 9)
}

func opCBEQZ(h *Hart, insn uint32) {
	if h.GetX(crs1p(insn)) == 0 {
		h.branchTo(h.PC + cbImm(insn))
	}
}

func opCBNEZ(h *Hart, insn uint32) {
	if h.GetX(crs1p(insn)) != 0 {
		h.branchTo(h.PC + cbImm(insn))
	}
}

func opCSLLI(h *Hart, insn uint32) {
	u := uint32(insn)
	sh := (u>>12&1)<<5 | (u >> 2 & 0x1F)
	h.SetX(crd5(insn), h.GetX(crd5(insn))<<sh)
}

func opCLWSP(h *Hart, insn uint32) {
	u := uint32(insn)
	off := (u>>12&1)<<5 | (u>>4&0x7)<<2 | (u>>2&0x3)<<6
	v, trap := h.loadMem(h.GetX(2)+uint64(off), 4, true)
	if trap != nil {
		h.raise(trap)
		return
	}
	h.SetX(crd5(insn), v)
}

func opCLDSP(h *Hart, insn uint32) {
	u := uint32(insn)
	off := (u>>12&1)<<5 | (u>>5&0x3)<<3 | (u>>2&0x7)<<6
	v, trap := h.loadMem(h.GetX(2)+uint64(off), 8, false)
	if trap != nil {
		h.raise(trap)
		return
	}
	h.SetX(crd5(insn), v)
}

func opCJRMVAddEbreak(h *Hart, insn uint32) {
	u := uint32(insn)
	bit12 := (u >> 12) & 1
	rdv := crd5(insn)
	rs2v := crs2full(insn)

	switch {
	case bit12 == 0 && rs2v == 0:
		if rdv == 0 {
			h.raise(illegalInstruction(uint64(insn)))
			return
		}
		h.branchTo(h.GetX(rdv) &^ 1)
	case bit12 == 0:
		h.SetX(rdv, h.GetX(rs2v))
	case bit12 == 1 && rdv == 0 && rs2v == 0:
		h.raise(NewException(ExcBreakpoint, h.PC, nil))
	case bit12 == 1 && rs2v == 0:
		link := h.PC + 2
		h.branchTo(h.GetX(rdv) &^ 1)
		h.SetX(1, link)
	default:
		h.SetX(rdv, h.GetX(rdv)+h.GetX(rs2v))
	}
}

func opCSWSP(h *Hart, insn uint32) {
	u := uint32(insn)
	off := (u>>9&0xF)<<2 | (u>>7&0x3)<<6
	h.storeMemC(h.GetX(2)+uint64(off), 4, h.GetX(crs2full(insn)))
}

func opCSDSP(h *Hart, insn uint32) {
	u := uint32(insn)
	off := (u>>10&0x7)<<3 | (u>>7&0x7)<<6
	h.storeMemC(h.GetX(2)+uint64(off), 8, h.GetX(crs2full(insn)))
}

// storeMemC is a thin storeMem wrapper so compressed store handlers read
// as one line; it raises on the Hart directly since a compressed store
// has no other computation following it.
func (h *Hart) storeMemC(addr uint64, size int, val uint64) {
	if trap := h.storeMem(addr, size, val); trap != nil {
		h.raise(trap)
	}
}
