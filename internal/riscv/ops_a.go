package riscv

// registerA installs the A (atomics) extension: LR/SC and the AMO family,
// for both .W and .D (RV64 only) widths. The AMO funct5 field (insn[31:27])
// carries more information than uncompressedKey's single "alt" bit can
// resolve, so — the same pattern ops_m.go uses for the M extension's
// aliasing — both table slots for a given (opcode, funct3) route to one
// handler that switches on the raw funct5 itself.
func registerA(d *Decoder, rv64 bool) {
	d.set(op5AMO<<4|2<<1|0, opAMOW)
	d.set(op5AMO<<4|2<<1|1, opAMOW)

	if rv64 {
		d.set(op5AMO<<4|3<<1|0, opAMOD)
		d.set(op5AMO<<4|3<<1|1, opAMOD)
	}
}

const (
	amoFuncLR      = 0x02
	amoFuncSC      = 0x03
	amoFuncSwap    = 0x01
	amoFuncAdd     = 0x00
	amoFuncXor     = 0x04
	amoFuncAnd     = 0x0C
	amoFuncOr      = 0x08
	amoFuncMin     = 0x10
	amoFuncMax     = 0x14
	amoFuncMinU    = 0x18
	amoFuncMaxU    = 0x1C
)

func opAMOW(h *Hart, insn uint32) { execAMO(h, insn, 4) }
func opAMOD(h *Hart, insn uint32) { execAMO(h, insn, 8) }

func execAMO(h *Hart, insn uint32, size int) {
	funct5 := insn >> 27
	addr := h.GetX(rs1(insn))

	if addr&uint64(size-1) != 0 {
		h.raise(misaligned(ExcStoreAddrMisaligned, addr))
		return
	}

	as := h.machine.AS

	switch funct5 {
	case amoFuncLR:
		paddr, _, trap := h.translate(addr, AccessRead)
		if trap != nil {
			h.raise(trap)
			return
		}

		as.LockAtomics()
		v, ok := as.Read(paddr, size)
		if ok {
			h.resMu.Lock()
			h.reservation.valid = true
			h.reservation.paddr = paddr
			h.reservation.size = size
			h.resMu.Unlock()
		}
		as.UnlockAtomics()

		if !ok {
			h.raise(accessFault(ExcLoadAccessFault, addr))
			return
		}
		h.SetX(rd(insn), signExtend(v, size*8))
		return

	case amoFuncSC:
		paddr, _, trap := h.translate(addr, AccessWrite)
		if trap != nil {
			h.raise(trap)
			return
		}

		as.LockAtomics()

		h.resMu.Lock()
		matched := h.reservation.valid && h.reservation.paddr == paddr && h.reservation.size == size
		h.resMu.Unlock()

		storeOK := false
		if matched {
			storeOK = as.Write(paddr, size, h.GetX(rs2(insn)))
		}
		if matched && storeOK {
			h.machine.invalidateReservations(paddr, size)
		}

		as.UnlockAtomics()

		if matched && !storeOK {
			h.raise(accessFault(ExcStoreAccessFault, addr))
			return
		}

		h.resMu.Lock()
		h.reservation.valid = false
		h.resMu.Unlock()

		if matched && storeOK {
			h.SetX(rd(insn), 0)
		} else {
			h.SetX(rd(insn), 1)
		}
		return
	}

	// AMOs (other than LR/SC) both read and write memory, so, matching
	// loadMem/storeMem's own split, validate both permissions before
	// touching the data; the two translations resolve to the same
	// physical address for any vaddr that isn't faulting.
	if _, _, trap := h.translate(addr, AccessRead); trap != nil {
		h.raise(trap)
		return
	}
	paddr, _, trap := h.translate(addr, AccessWrite)
	if trap != nil {
		h.raise(trap)
		return
	}

	rhs := h.GetX(rs2(insn))

	as.LockAtomics()
	old, ok := as.Read(paddr, size)
	if !ok {
		as.UnlockAtomics()
		h.raise(accessFault(ExcLoadAccessFault, addr))
		return
	}
	old = signExtend(old, size*8)

	var result uint64

	switch funct5 {
	case amoFuncSwap:
		result = rhs
	case amoFuncAdd:
		result = old + rhs
	case amoFuncXor:
		result = old ^ rhs
	case amoFuncAnd:
		result = old & rhs
	case amoFuncOr:
		result = old | rhs
	case amoFuncMin:
		if int64(old) < int64(rhs) {
			result = old
		} else {
			result = rhs
		}
	case amoFuncMax:
		if int64(old) > int64(rhs) {
			result = old
		} else {
			result = rhs
		}
	case amoFuncMinU:
		if old < rhs {
			result = old
		} else {
			result = rhs
		}
	case amoFuncMaxU:
		if old > rhs {
			result = old
		} else {
			result = rhs
		}
	default:
		as.UnlockAtomics()
		h.raise(illegalInstruction(uint64(insn)))
		return
	}

	storeOK := as.Write(paddr, size, result)
	if storeOK {
		h.machine.invalidateReservations(paddr, size)
	}
	as.UnlockAtomics()

	if !storeOK {
		h.raise(accessFault(ExcStoreAccessFault, addr))
		return
	}

	h.SetX(rd(insn), old)
}
