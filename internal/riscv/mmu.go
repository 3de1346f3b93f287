package riscv

// AccessKind distinguishes the three TLB arrays and the permission bits
// checked against a leaf PTE.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExec
)

// satp.MODE field values (RISC-V privileged spec table 4.3/4.4).
const (
	SatpBare = 0
	SatpSv32 = 1
	SatpSv39 = 8
	SatpSv48 = 9
	SatpSv57 = 10
)

// pagingScheme parameterizes the generic multi-level walker over the
// four supported modes. Grounded on spec.md §4.2's mode list; the
// level/field-width breakdown follows the RISC-V privileged
// specification's Sv32/39/48/57 tables. Bit-field naming conventions
// (flat multi-level walk, explicit per-level masks) echo the structuring
// style of other_examples's ARM64 MMU init code, though none of that
// code's logic transfers (different PTE format entirely).
type pagingScheme struct {
	levels  int
	vpnBits int // bits per VPN field (constant across levels here)
	pteSize int // bytes per PTE
}

var pagingSchemes = map[uint64]pagingScheme{
	SatpSv32: {levels: 2, vpnBits: 10, pteSize: 4},
	SatpSv39: {levels: 3, vpnBits: 9, pteSize: 8},
	SatpSv48: {levels: 4, vpnBits: 9, pteSize: 8},
	SatpSv57: {levels: 5, vpnBits: 9, pteSize: 8},
}

// PTE bit layout, shared across Sv32/39/48/57.
const (
	pteV = uint64(1) << 0
	pteR = uint64(1) << 1
	pteW = uint64(1) << 2
	pteX = uint64(1) << 3
	pteU = uint64(1) << 4
	pteG = uint64(1) << 5
	pteA = uint64(1) << 6
	pteD = uint64(1) << 7
)

// tlbTag folds the VPN with the ASID so that switching satp's ASID alone
// cannot hit a stale entry without an explicit flush. It does not encode
// effective privilege, SUM, or MXR — a cached translation was checked
// against those at insert time, so (*Hart).applyStatusWrite flushes every
// TLB outright whenever MPRV/MPP/SUM/MXR changes (spec.md §4.2's
// flush-trigger list), rather than widening the tag to discriminate them.
func (h *Hart) tlbTag(vpn uint64, asid uint64) uint64 {
	return (vpn & tlbTagModeMask) | (asid << 52)
}

// translate resolves a virtual address for the given access kind,
// consulting the TLB first and walking the page tables on a miss.
func (h *Hart) translate(vaddr uint64, kind AccessKind) (paddr uint64, mmio bool, trap *TrapError) {
	mode := h.CSR.satpMode()
	effPriv := h.effectivePriv(kind)

	if mode == SatpBare || effPriv == PrivMachine {
		return vaddr, h.machine.AS.IsMMIO(vaddr), nil
	}

	asid := h.CSR.satpASID()
	vpn := vaddr >> PageShift
	tag := h.tlbTag(vpn, asid)
	tlb := h.TLBs.For(kind)

	if e, ok := tlb.lookup(tag); ok {
		return e.ppn<<PageShift | (vaddr & pageMask), e.mmio, nil
	}

	ppn, mmioBit, trap := h.walk(vaddr, kind, effPriv)
	if trap != nil {
		return 0, false, trap
	}

	tlb.insert(tag, ppn, mmioBit)

	return ppn<<PageShift | (vaddr & pageMask), mmioBit, nil
}

func (h *Hart) walk(vaddr uint64, kind AccessKind, effPriv PrivMode) (ppn uint64, mmio bool, trap *TrapError) {
	mode := h.CSR.satpMode()
	scheme, ok := pagingSchemes[mode]
	if !ok {
		// satp.MODE is WARL-protected on write (see csr.go), so a
		// reserved value here would mean a corrupted CSR; treat
		// conservatively as Bare.
		return vaddr >> PageShift, h.machine.AS.IsMMIO(vaddr), nil
	}

	var faultCode uint64
	switch kind {
	case AccessWrite:
		faultCode = ExcStorePageFault
	case AccessExec:
		faultCode = ExcInstrPageFault
	default:
		faultCode = ExcLoadPageFault
	}

	tableAddr := h.CSR.satpPPN() << PageShift

	for level := scheme.levels - 1; level >= 0; level-- {
		shift := PageShift + level*scheme.vpnBits
		idx := (vaddr >> shift) & ((uint64(1) << scheme.vpnBits) - 1)
		pteAddr := tableAddr + idx*uint64(scheme.pteSize)

		raw, ok := h.machine.AS.Read(pteAddr, scheme.pteSize)
		if !ok {
			return 0, false, pageFault(faultCode, vaddr)
		}

		if raw&pteV == 0 || (raw&pteR == 0 && raw&pteW != 0) {
			return 0, false, pageFault(faultCode, vaddr)
		}

		if raw&(pteR|pteX) == 0 {
			// Pointer to next level.
			tableAddr = ptePPN(raw) << PageShift
			continue
		}

		// Leaf PTE: permission checks.
		if !h.checkPermissions(raw, kind, effPriv) {
			return 0, false, pageFault(faultCode, vaddr)
		}

		// Misaligned superpage: lower-level VPN bits of the PPN must
		// be zero, else a page fault.
		if level > 0 {
			lowMask := (uint64(1) << (level * scheme.vpnBits)) - 1
			if ptePPN(raw)&lowMask != 0 {
				return 0, false, pageFault(faultCode, vaddr)
			}
		}

		if raw&pteA == 0 || (kind == AccessWrite && raw&pteD == 0) {
			raw |= pteA
			if kind == AccessWrite {
				raw |= pteD
			}
			h.machine.AS.Write(pteAddr, scheme.pteSize, raw)
		}

		leafPPN := ptePPN(raw)
		if level > 0 {
			// Superpage: splice in the low VPN bits of vaddr itself.
			lowShift := uint(level * scheme.vpnBits)
			lowMask := (uint64(1) << lowShift) - 1
			leafPPN = (leafPPN &^ lowMask) | ((vaddr >> PageShift) & lowMask)
		}

		return leafPPN, h.machine.AS.IsMMIO(leafPPN << PageShift), nil
	}

	return 0, false, pageFault(faultCode, vaddr)
}

// ptePPN extracts the PPN field, which for all four schemes sits above
// bit 10 of the PTE (the low 10 bits are flags + reserved).
func ptePPN(pte uint64) uint64 { return pte >> 10 }

func (h *Hart) checkPermissions(pte uint64, kind AccessKind, effPriv PrivMode) bool {
	switch kind {
	case AccessExec:
		if pte&pteX == 0 {
			return false
		}
	case AccessWrite:
		if pte&pteW == 0 {
			return false
		}
	default:
		if pte&pteR == 0 && !(h.CSR.status.MXR() && pte&pteX != 0) {
			return false
		}
	}

	isUser := pte&pteU != 0
	if effPriv == PrivUser && !isUser {
		return false
	}
	if effPriv == PrivSupervisor && isUser && !h.CSR.status.SUM() {
		return false
	}

	return true
}

// effectivePriv returns the privilege level translation is performed
// under: MPRV redirects M-mode data accesses (not instruction fetches)
// through MPP's translation/protection, per the privileged spec.
func (h *Hart) effectivePriv(kind AccessKind) PrivMode {
	if h.Priv == PrivMachine && kind != AccessExec && h.CSR.status.MPRV() {
		return h.CSR.status.MPP()
	}
	return h.Priv
}
