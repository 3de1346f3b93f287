package riscv

// checkInterrupts computes whether a pending, enabled, non-delegated-away
// interrupt should preempt the next instruction, and if so stages it in
// h.pendingTrap. Grounded on internal/vm/intr.go's priority-indexed ISR
// table and Requested(curr Priority) check, generalized from LC-3's flat
// 8-level priority scheme to RISC-V's M/S delegation and per-level
// enable masks.
func (h *Hart) checkInterrupts() bool {
	pending := h.pendingInterruptBits()
	if pending == 0 {
		return false
	}

	// Highest-priority bit wins: RISC-V privileged spec order is
	// MEI, MSI, MTI, SEI, SSI, STI (external > software > timer, M over S).
	priority := []uint64{IntMEI, IntMSI, IntMTI, IntSEI, IntSSI, IntSTI}

	for _, bit := range priority {
		mask := uint64(1) << bit
		if pending&mask == 0 {
			continue
		}

		if !h.interruptEnabled(bit) {
			continue
		}

		h.pendingTrap = NewInterrupt(bit)
		return true
	}

	return false
}

// pendingInterruptBits ORs together externally asserted bits (irqMask,
// e.g. CLINT's MSIP/MTIP) with locally computed ones (STI from Sstc's
// stimecmp comparison).
func (h *Hart) pendingInterruptBits() uint64 {
	bits := h.irqMask.Load() | h.CSR.mip

	if h.ext.Has(ExtSstc) && h.CSR.sstcArmed && h.StimeCmp.Pending() {
		bits |= uint64(1) << IntSTI
	}

	return bits
}

func (h *Hart) interruptEnabled(bit uint64) bool {
	mask := uint64(1) << bit
	delegatedToS := h.CSR.mideleg&mask != 0

	if delegatedToS {
		if h.CSR.mie&mask == 0 {
			return false
		}
		switch h.Priv {
		case PrivSupervisor:
			return h.CSR.status.SIE()
		case PrivUser:
			return true
		default:
			return false
		}
	}

	// Handled at M regardless of current privilege, but masked unless
	// either we're below M, or we're at M and MIE is set.
	if h.CSR.mie&mask == 0 {
		return false
	}
	switch h.Priv {
	case PrivMachine:
		return h.CSR.status.MIE()
	default:
		return true
	}
}

// computeTvecTarget applies a trap vector's MODE field: 0 (Direct) jumps
// to BASE always; 1 (Vectored) adds 4*cause for interrupts only.
func computeTvecTarget(tvec uint64, cause uint64, isInterrupt bool) uint64 {
	base := tvec &^ 0x3
	mode := tvec & 0x3

	if isInterrupt && mode == 1 {
		return base + 4*cause
	}

	return base
}

// enterTrap performs the privileged trap-entry sequence: choose the
// handling level via delegation, save epc/cause/tval, push the
// IE/PIE/PP stack, and redirect PC. Grounded on internal/vm/intr.go's
// trap/ISR vector-table constants and entry sequencing, generalized to
// RISC-V's two-level (M/S) delegation instead of LC-3's flat vector
// table.
func (h *Hart) enterTrap(t *TrapError) {
	mask := uint64(1) << t.Cause
	delegated := false

	if t.Interrupt {
		delegated = h.CSR.mideleg&mask != 0
	} else {
		delegated = h.CSR.medeleg&mask != 0
	}

	level := PrivMachine
	if delegated && h.Priv != PrivMachine {
		level = PrivSupervisor
	}

	cause := t.Cause
	if t.Interrupt {
		cause |= InterruptBit
	}

	if level == PrivSupervisor {
		h.CSR.sepc = h.PC
		h.CSR.scause = cause
		h.CSR.stval = t.Tval
		h.CSR.status.SetSPIE(h.CSR.status.SIE())
		h.CSR.status.SetSIE(false)
		h.CSR.status.SetSPP(h.Priv)
		h.Priv = PrivSupervisor
		h.branchTo(computeTvecTarget(h.CSR.stvec, t.Cause, t.Interrupt))
	} else {
		h.CSR.mepc = h.PC
		h.CSR.mcause = cause
		h.CSR.mtval = t.Tval
		h.CSR.status.SetMPIE(h.CSR.status.MIE())
		h.CSR.status.SetMIE(false)
		h.CSR.status.SetMPP(h.Priv)
		h.Priv = PrivMachine
		h.branchTo(computeTvecTarget(h.CSR.mtvec, t.Cause, t.Interrupt))
	}
}

// execMRET/execSRET implement the xRET instructions (ops_system.go wires
// them to the decoder). Any privilege-mode change triggers a conservative
// TLB flush since MPRV/MPP/SUM/MXR-affecting state may change underneath
// translation, per spec.md §4.2's flush-trigger list.
func (h *Hart) execMRET() {
	mpp := h.CSR.status.MPP()
	h.CSR.status.SetMIE(h.CSR.status.MPIE())
	h.CSR.status.SetMPIE(true)
	h.CSR.status.SetMPP(PrivUser)
	h.Priv = mpp
	h.branchTo(h.CSR.mepc)
	h.TLBs.FlushAll()
}

func (h *Hart) execSRET() {
	spp := h.CSR.status.SPP()
	h.CSR.status.SetSIE(h.CSR.status.SPIE())
	h.CSR.status.SetSPIE(true)
	h.CSR.status.SetSPP(PrivUser)
	h.Priv = spp
	h.branchTo(h.CSR.sepc)
	h.TLBs.FlushAll()
}
