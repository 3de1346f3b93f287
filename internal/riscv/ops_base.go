package riscv

// registerBaseI installs RV32I (and, when rv64, the RV64I additions) into
// the decoder's uncompressed table.
func registerBaseI(d *Decoder, rv64 bool) {
	d.set(op5LUI<<4, opLUI)
	d.set(op5AUIPC<<4, opAUIPC)
	d.set(op5JAL<<4, opJAL)
	d.set(op5JALR<<4|0<<1, opJALR)

	branch := map[uint32]OpFunc{0: opBEQ, 1: opBNE, 4: opBLT, 5: opBGE, 6: opBLTU, 7: opBGEU}
	for f3, fn := range branch {
		d.set(op5Branch<<4|f3<<1, fn)
	}

	loads := map[uint32]OpFunc{0: opLB, 1: opLH, 2: opLW, 4: opLBU, 5: opLHU}
	for f3, fn := range loads {
		d.set(op5Load<<4|f3<<1, fn)
	}

	stores := map[uint32]OpFunc{0: opSB, 1: opSH, 2: opSW}
	for f3, fn := range stores {
		d.set(op5Store<<4|f3<<1, fn)
	}

	d.set(op5OpImm<<4|0<<1, opADDI)
	d.set(op5OpImm<<4|2<<1, opSLTI)
	d.set(op5OpImm<<4|3<<1, opSLTIU)
	d.set(op5OpImm<<4|4<<1, opXORI)
	d.set(op5OpImm<<4|6<<1, opORI)
	d.set(op5OpImm<<4|7<<1, opANDI)
	d.set(op5OpImm<<4|1<<1|0, opSLLI)
	d.set(op5OpImm<<4|5<<1|0, opSRLI) // distinguished from SRAI inside the handler
	d.set(op5OpImm<<4|5<<1|1, opSRAI)

	d.set(op5Op<<4|0<<1|0, opADD)
	d.set(op5Op<<4|0<<1|1, opSUB)
	d.set(op5Op<<4|1<<1|0, opSLL)
	d.set(op5Op<<4|2<<1|0, opSLT)
	d.set(op5Op<<4|3<<1|0, opSLTU)
	d.set(op5Op<<4|4<<1|0, opXOR)
	d.set(op5Op<<4|5<<1|0, opSRL)
	d.set(op5Op<<4|5<<1|1, opSRA)
	d.set(op5Op<<4|6<<1|0, opOR)
	d.set(op5Op<<4|7<<1|0, opAND)

	d.set(op5MiscMem<<4|0<<1, opFENCE)

	if rv64 {
		d.set(op5Load<<4|6<<1, opLWU)
		d.set(op5Load<<4|3<<1, opLD)
		d.set(op5Store<<4|3<<1, opSD)

		d.set(op5OpImm32<<4|0<<1, opADDIW)
		d.set(op5OpImm32<<4|1<<1|0, opSLLIW)
		d.set(op5OpImm32<<4|5<<1|0, opSRLIW)
		d.set(op5OpImm32<<4|5<<1|1, opSRAIW)

		d.set(op5Op32<<4|0<<1|0, opADDW)
		d.set(op5Op32<<4|0<<1|1, opSUBW)
		d.set(op5Op32<<4|1<<1|0, opSLLW)
		d.set(op5Op32<<4|5<<1|0, opSRLW)
		d.set(op5Op32<<4|5<<1|1, opSRAW)
	}
}

func opLUI(h *Hart, insn uint32)   { h.SetX(rd(insn), immU(insn)) }
func opAUIPC(h *Hart, insn uint32) { h.SetX(rd(insn), h.PC+immU(insn)) }

func opJAL(h *Hart, insn uint32) {
	target := h.PC + immJ(insn)
	if target&1 != 0 {
		h.raise(misaligned(ExcInstrAddrMisaligned, target))
		return
	}
	h.SetX(rd(insn), h.PC+4)
	h.branchTo(target)
}

func opJALR(h *Hart, insn uint32) {
	base := h.GetX(rs1(insn))
	target := (base + immI(insn)) &^ 1
	if target&1 != 0 {
		h.raise(misaligned(ExcInstrAddrMisaligned, target))
		return
	}
	link := h.PC + 4
	h.branchTo(target)
	h.SetX(rd(insn), link)
}

func branchOp(cond func(a, b uint64) bool, signed bool) OpFunc {
	return func(h *Hart, insn uint32) {
		a, b := h.GetX(rs1(insn)), h.GetX(rs2(insn))
		var taken bool
		if signed {
			taken = cond(a, b)
		} else {
			taken = cond(a, b)
		}
		if taken {
			target := h.PC + immB(insn)
			if target&1 != 0 {
				h.raise(misaligned(ExcInstrAddrMisaligned, target))
				return
			}
			h.branchTo(target)
		}
	}
}

func opBEQ(h *Hart, insn uint32) { branchOp(func(a, b uint64) bool { return a == b }, false)(h, insn) }
func opBNE(h *Hart, insn uint32) { branchOp(func(a, b uint64) bool { return a != b }, false)(h, insn) }
func opBLT(h *Hart, insn uint32) {
	branchOp(func(a, b uint64) bool { return int64(a) < int64(b) }, true)(h, insn)
}
func opBGE(h *Hart, insn uint32) {
	branchOp(func(a, b uint64) bool { return int64(a) >= int64(b) }, true)(h, insn)
}
func opBLTU(h *Hart, insn uint32) { branchOp(func(a, b uint64) bool { return a < b }, false)(h, insn) }
func opBGEU(h *Hart, insn uint32) { branchOp(func(a, b uint64) bool { return a >= b }, false)(h, insn) }

func loadOp(size int, signed bool) OpFunc {
	return func(h *Hart, insn uint32) {
		addr := h.GetX(rs1(insn)) + immI(insn)
		v, trap := h.loadMem(addr, size, signed)
		if trap != nil {
			h.raise(trap)
			return
		}
		h.SetX(rd(insn), v)
	}
}

func opLB(h *Hart, insn uint32)  { loadOp(1, true)(h, insn) }
func opLH(h *Hart, insn uint32)  { loadOp(2, true)(h, insn) }
func opLW(h *Hart, insn uint32)  { loadOp(4, true)(h, insn) }
func opLBU(h *Hart, insn uint32) { loadOp(1, false)(h, insn) }
func opLHU(h *Hart, insn uint32) { loadOp(2, false)(h, insn) }
func opLWU(h *Hart, insn uint32) { loadOp(4, false)(h, insn) }
func opLD(h *Hart, insn uint32)  { loadOp(8, false)(h, insn) }

func storeOp(size int) OpFunc {
	return func(h *Hart, insn uint32) {
		addr := h.GetX(rs1(insn)) + immS(insn)
		if trap := h.storeMem(addr, size, h.GetX(rs2(insn))); trap != nil {
			h.raise(trap)
		}
	}
}

func opSB(h *Hart, insn uint32) { storeOp(1)(h, insn) }
func opSH(h *Hart, insn uint32) { storeOp(2)(h, insn) }
func opSW(h *Hart, insn uint32) { storeOp(4)(h, insn) }
func opSD(h *Hart, insn uint32) { storeOp(8)(h, insn) }

func opADDI(h *Hart, insn uint32)  { h.SetX(rd(insn), h.GetX(rs1(insn))+immI(insn)) }
func opSLTI(h *Hart, insn uint32) {
	v := uint64(0)
	if int64(h.GetX(rs1(insn))) < int64(immI(insn)) {
		v = 1
	}
	h.SetX(rd(insn), v)
}
func opSLTIU(h *Hart, insn uint32) {
	v := uint64(0)
	if h.GetX(rs1(insn)) < immI(insn) {
		v = 1
	}
	h.SetX(rd(insn), v)
}
func opXORI(h *Hart, insn uint32) { h.SetX(rd(insn), h.GetX(rs1(insn))^immI(insn)) }
func opORI(h *Hart, insn uint32)  { h.SetX(rd(insn), h.GetX(rs1(insn))|immI(insn)) }
func opANDI(h *Hart, insn uint32) { h.SetX(rd(insn), h.GetX(rs1(insn))&immI(insn)) }

func opSLLI(h *Hart, insn uint32) {
	h.SetX(rd(insn), h.GetX(rs1(insn))<<shamt(insn, h.RV64))
}
func opSRLI(h *Hart, insn uint32) {
	sh := shamt(insn, h.RV64)
	v := h.GetX(rs1(insn))
	if !h.RV64 {
		v = zeroExtend(v, 32)
	}
	h.SetX(rd(insn), v>>sh)
}
func opSRAI(h *Hart, insn uint32) {
	sh := shamt(insn, h.RV64)
	bits := 64
	if !h.RV64 {
		bits = 32
	}
	v := signExtend(h.GetX(rs1(insn)), bits)
	h.SetX(rd(insn), uint64(int64(v)>>sh))
}

// opADD and the other OP handlers below with funct7 bit5 clear resolve
// the MUL-family aliasing noted in decode.go's uncompressedKey doc
// comment by inspecting the full funct7 value directly.
func opADD(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opMUL(h, insn)
		return
	}
	h.SetX(rd(insn), h.GetX(rs1(insn))+h.GetX(rs2(insn)))
}

func opSUB(h *Hart, insn uint32) { h.SetX(rd(insn), h.GetX(rs1(insn))-h.GetX(rs2(insn))) }

func opSLL(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opMULH(h, insn)
		return
	}
	mask := uint32(0x3F)
	if !h.RV64 {
		mask = 0x1F
	}
	h.SetX(rd(insn), h.GetX(rs1(insn))<<(uint32(h.GetX(rs2(insn)))&mask))
}

func opSLT(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opMULHSU(h, insn)
		return
	}
	v := uint64(0)
	if int64(h.GetX(rs1(insn))) < int64(h.GetX(rs2(insn))) {
		v = 1
	}
	h.SetX(rd(insn), v)
}

func opSLTU(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opMULHU(h, insn)
		return
	}
	v := uint64(0)
	if h.GetX(rs1(insn)) < h.GetX(rs2(insn)) {
		v = 1
	}
	h.SetX(rd(insn), v)
}

func opXOR(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opDIV(h, insn)
		return
	}
	h.SetX(rd(insn), h.GetX(rs1(insn))^h.GetX(rs2(insn)))
}

func opSRL(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opDIVU(h, insn)
		return
	}
	mask := uint32(0x3F)
	if !h.RV64 {
		mask = 0x1F
	}
	v := h.GetX(rs1(insn))
	if !h.RV64 {
		v = zeroExtend(v, 32)
	}
	h.SetX(rd(insn), v>>(uint32(h.GetX(rs2(insn)))&mask))
}

func opSRA(h *Hart, insn uint32) {
	mask := uint32(0x3F)
	bits := 64
	if !h.RV64 {
		mask = 0x1F
		bits = 32
	}
	v := signExtend(h.GetX(rs1(insn)), bits)
	h.SetX(rd(insn), uint64(int64(v)>>(uint32(h.GetX(rs2(insn)))&mask)))
}

func opOR(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opREM(h, insn)
		return
	}
	h.SetX(rd(insn), h.GetX(rs1(insn))|h.GetX(rs2(insn)))
}

func opAND(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opREMU(h, insn)
		return
	}
	h.SetX(rd(insn), h.GetX(rs1(insn))&h.GetX(rs2(insn)))
}

func opFENCE(h *Hart, insn uint32) {
	// A single-goroutine-per-hart, strongly ordered Go memory-access
	// pattern on the address space needs no host fence instruction; this
	// is a no-op that exists so the opcode decodes instead of trapping.
}

// --- RV64I *W forms ---

func opADDIW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))+uint32(immI(insn)))
}
func opSLLIW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))<<(shamt(insn, false)&0x1F))
}
func opSRLIW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))>>(shamt(insn, false)&0x1F))
}
func opSRAIW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(int32(uint32(h.GetX(rs1(insn))))>>(shamt(insn, false)&0x1F)))
}

func opADDW(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opMULW(h, insn)
		return
	}
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))+uint32(h.GetX(rs2(insn))))
}
func opSUBW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))-uint32(h.GetX(rs2(insn))))
}
func opSLLW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))<<(uint32(h.GetX(rs2(insn)))&0x1F))
}
func opSRLW(h *Hart, insn uint32) {
	if funct7(insn) == 0x01 {
		opDIVUW(h, insn)
		return
	}
	h.SetXSext32(rd(insn), uint32(h.GetX(rs1(insn)))>>(uint32(h.GetX(rs2(insn)))&0x1F))
}
func opSRAW(h *Hart, insn uint32) {
	h.SetXSext32(rd(insn), uint32(int32(uint32(h.GetX(rs1(insn))))>>(uint32(h.GetX(rs2(insn)))&0x1F)))
}
