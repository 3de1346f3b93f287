package riscv

import "math/rand"

// CSR addresses actually implemented. The space is 4096 entries wide;
// anything not listed here fails CSRReadWrite with ok=false, and the
// caller raises illegal-instruction, per spec.md §4.3's closing sentence.
const (
	csrFFlags    = 0x001
	csrFRM       = 0x002
	csrFCSR      = 0x003
	csrSSTATUS   = 0x100
	csrSIE       = 0x104
	csrSTVEC     = 0x105
	csrSCOUNTEREN = 0x106
	csrSENVCFG   = 0x10A
	csrSSCRATCH  = 0x140
	csrSEPC      = 0x141
	csrSCAUSE    = 0x142
	csrSTVAL     = 0x143
	csrSIP       = 0x144
	csrSTIMECMP  = 0x14D
	csrSATP      = 0x180
	csrMSTATUS   = 0x300
	csrMISA      = 0x301
	csrMEDELEG   = 0x302
	csrMIDELEG   = 0x303
	csrMIE       = 0x304
	csrMTVEC     = 0x305
	csrMCOUNTEREN = 0x306
	csrMENVCFG   = 0x30A
	csrMSCRATCH  = 0x340
	csrMEPC      = 0x341
	csrMCAUSE    = 0x342
	csrMTVAL     = 0x343
	csrMIP       = 0x344
	csrMSECCFG   = 0x747
	csrSEED      = 0x015
	csrMHARTID   = 0xF14
	csrTIME      = 0xC01
	csrTIMEH     = 0xC81
)

// CSRFile holds every control/status register a hart implements.
// Grounded on spec.md §4.3 and the teacher's switch-dispatched
// internal/vm/intr.go style (a switch over CSR address, rather than a
// table — spec.md makes no table-for-performance demand here the way it
// does for the decoder).
type CSRFile struct {
	status  Status
	misa    uint64
	medeleg uint64
	mideleg uint64
	mie     uint64
	mip     uint64
	mtvec   uint64
	stvec   uint64
	mcounteren uint64
	scounteren uint64
	menvcfg uint64
	senvcfg uint64
	mscratch uint64
	sscratch uint64
	mepc    uint64
	sepc    uint64
	mcause  uint64
	scause  uint64
	mtval   uint64
	stval   uint64
	mseccfg uint64
	satp    uint64
	mhartid uint64
	fcsr    uint64 // [7:5]=frm [4:0]=fflags

	stimecmp  uint64
	sstcArmed bool
}

func NewCSRFile(hartID uint64, misa uint64) CSRFile {
	return CSRFile{
		misa:    misa,
		mhartid: hartID,
	}
}

func (c *CSRFile) satpMode() uint64 { return c.satp >> 60 }
func (c *CSRFile) satpASID() uint64 { return (c.satp >> 44) & 0xFFFF }
func (c *CSRFile) satpPPN() uint64  { return c.satp & ((uint64(1) << 44) - 1) }

// CSROp selects swap/set/clear semantics for CSRRW/CSRRS/CSRRC (and the
// *I immediate forms, which the opcode handler reduces to the same op).
type CSROp uint8

const (
	CSRSwap CSROp = iota
	CSRSet
	CSRClear
)

// readOnly reports whether addr is in the read-only CSR range
// (csr[11:10] == 0b11); a SWAP, or a SET/CLEAR that would actually
// modify bits, is illegal there.
func readOnly(addr uint16) bool { return (addr>>10)&0x3 == 0x3 }

// CSRReadWrite performs one atomic read-modify-write CSR operation. If
// write is false, value is ignored and no write is attempted (the
// CSRRS/CSRRC rs1==x0 / rd==x0 fast paths are the caller's
// responsibility — this always computes the old value so rd can be
// filled even when no write occurs).
func (h *Hart) CSRReadWrite(addr uint16, value uint64, op CSROp, write bool) (old uint64, ok bool) {
	if PrivMode((addr>>8)&0x3) > h.Priv {
		return 0, false
	}

	if write && readOnly(addr) && (op == CSRSwap || value != 0) {
		return 0, false
	}

	if !h.RV64 {
		value = zeroExtend(value, 32)
	}

	old, ok = h.csrRead(addr)
	if !ok {
		return 0, false
	}

	if !write {
		return old, true
	}

	var newVal uint64
	switch op {
	case CSRSwap:
		newVal = value
	case CSRSet:
		newVal = old | value
		if value == 0 {
			return old, true // CSRRS/CSRRC with rs1=x0: no write attempted
		}
	case CSRClear:
		newVal = old &^ value
		if value == 0 {
			return old, true
		}
	}

	return old, h.csrWrite(addr, newVal)
}

func (h *Hart) csrRead(addr uint16) (uint64, bool) {
	c := &h.CSR
	switch addr {
	case csrFFlags:
		return c.fcsr & 0x1F, true
	case csrFRM:
		return (c.fcsr >> 5) & 0x7, true
	case csrFCSR:
		return c.fcsr & 0xFF, true
	case csrSSTATUS:
		return c.status.Raw() & sstatusMask, true
	case csrSIE:
		return c.mie & sieMask, true
	case csrSTVEC:
		return c.stvec, true
	case csrSCOUNTEREN:
		return c.scounteren, true
	case csrSENVCFG:
		return c.senvcfg, true
	case csrSSCRATCH:
		return c.sscratch, true
	case csrSEPC:
		return c.sepc, true
	case csrSCAUSE:
		return c.scause, true
	case csrSTVAL:
		return c.stval, true
	case csrSIP:
		return c.mip & sieMask, true
	case csrSTIMECMP:
		return c.stimecmp, true
	case csrSATP:
		return c.satp, true
	case csrMSTATUS:
		return c.status.Raw(), true
	case csrMISA:
		return c.misa, true
	case csrMEDELEG:
		return c.medeleg, true
	case csrMIDELEG:
		return c.mideleg, true
	case csrMIE:
		return c.mie, true
	case csrMTVEC:
		return c.mtvec, true
	case csrMCOUNTEREN:
		return c.mcounteren, true
	case csrMENVCFG:
		return c.menvcfg, true
	case csrMSCRATCH:
		return c.mscratch, true
	case csrMEPC:
		return c.mepc, true
	case csrMCAUSE:
		return c.mcause, true
	case csrMTVAL:
		return c.mtval, true
	case csrMIP:
		return c.mip, true
	case csrMSECCFG:
		return c.mseccfg, true
	case csrSEED:
		return h.readSeed()
	case csrMHARTID:
		return c.mhartid, true
	case csrTIME:
		if !h.counterEnabled(1) { // counteren.TM
			return 0, false
		}
		return h.Timer.Now(), true
	case csrTIMEH:
		if !h.counterEnabled(1) {
			return 0, false
		}
		return h.Timer.Now() >> 32, true
	default:
		return 0, false
	}
}

func (h *Hart) csrWrite(addr uint16, v uint64) bool {
	c := &h.CSR
	switch addr {
	case csrFFlags:
		c.fcsr = (c.fcsr &^ 0x1F) | (v & 0x1F)
	case csrFRM:
		c.fcsr = (c.fcsr &^ (0x7 << 5)) | ((v & 0x7) << 5)
	case csrFCSR:
		c.fcsr = v & 0xFF
	case csrSSTATUS:
		before := c.status.Raw()
		c.status.SetRaw((c.status.Raw() &^ sstatusMask) | (v & sstatusMask))
		h.applyStatusWrite(before)
	case csrSIE:
		c.mie = (c.mie &^ sieMask) | (v & sieMask)
	case csrSTVEC:
		c.stvec = v &^ 0x2
	case csrSCOUNTEREN:
		c.scounteren = v
	case csrSENVCFG:
		c.senvcfg = v
	case csrSSCRATCH:
		c.sscratch = v
	case csrSEPC:
		c.sepc = v &^ 1
	case csrSCAUSE:
		c.scause = v
	case csrSTVAL:
		c.stval = v
	case csrSIP:
		c.mip = (c.mip &^ sieMask) | (v & sieMask & sipWritable)
	case csrSTIMECMP:
		c.stimecmp = v
		c.sstcArmed = true
		h.StimeCmp.Set(v)
	case csrSATP:
		h.writeSatp(v)
	case csrMSTATUS:
		before := c.status.Raw()
		c.status.SetRaw(v)
		h.applyStatusWrite(before)
	case csrMISA:
		// WARL: this module does not support toggling extensions at
		// runtime, so writes are ignored but still reported ok.
	case csrMEDELEG:
		c.medeleg = v
	case csrMIDELEG:
		c.mideleg = v
	case csrMIE:
		c.mie = v
	case csrMTVEC:
		c.mtvec = v &^ 0x2
	case csrMCOUNTEREN:
		c.mcounteren = v
	case csrMENVCFG:
		c.menvcfg = v
	case csrMSCRATCH:
		c.mscratch = v
	case csrMEPC:
		c.mepc = v &^ 1
	case csrMCAUSE:
		c.mcause = v
	case csrMTVAL:
		c.mtval = v
	case csrMIP:
		c.mip = (c.mip &^ mipWritable) | (v & mipWritable)
	case csrMSECCFG:
		c.mseccfg = v
	case csrMHARTID:
		return false // read-only (0b11 range); CSRReadWrite already refuses writes here
	default:
		return false
	}

	return true
}

// writeSatp implements the WARL open-question decision: a reserved MODE
// value leaves satp unchanged (the write is dropped, not trapped); a
// supported mode/ASID/PPN change flushes every TLB.
func (h *Hart) writeSatp(v uint64) {
	mode := v >> 60
	maxMode := uint64(SatpSv57)
	if !h.RV64 {
		maxMode = SatpSv32
	}

	if _, ok := pagingSchemes[mode]; !ok && mode != SatpBare {
		return
	}
	if mode == SatpSv32 && h.RV64 {
		return
	}
	if mode != SatpBare && mode != SatpSv32 && !h.RV64 {
		return
	}
	_ = maxMode

	if v != h.CSR.satp {
		h.CSR.satp = v
		h.TLBs.FlushAll()
	}
}

func (h *Hart) counterEnabled(bit uint) bool {
	if h.Priv == PrivMachine {
		return true
	}
	if h.CSR.mcounteren&(1<<bit) == 0 {
		return false
	}
	if h.Priv == PrivSupervisor {
		return true
	}
	return h.CSR.scounteren&(1<<bit) != 0
}

func (h *Hart) readSeed() (uint64, bool) {
	gated := h.CSR.mseccfg
	switch h.Priv {
	case PrivMachine:
	case PrivSupervisor:
		if gated&(1<<9) == 0 { // SSEED
			return 0, false
		}
	default:
		if gated&(1<<8) == 0 { // USEED
			return 0, false
		}
	}
	return uint64(pseudoEntropy()) | 1<<31 /* OPST=ES16 valid */, true
}

// uxlSxlFixedRV64 is the WARL value UXL/SXL are hardwired to on an RV64
// hart: this module has no per-privilege-level variable XLEN (Hart.RV64 is
// one fixed bool for the whole hart), so a write attempting to change
// either field is dropped rather than silently accepted and then ignored.
// On RV32 these fields don't exist in mstatus at all, so they're left at
// zero there.
const uxlSxlFixedRV64 = uint64(2)<<statusUXLShift | uint64(2)<<statusSXLShift

// statusTranslationMask covers every status bit that changes how a
// virtual address translates or what permissions a translation checks:
// MPRV (redirects M-mode data accesses through MPP's view), MPP (which
// privilege MPRV redirects to), SUM (whether S-mode may touch U pages),
// and MXR (whether loads may execute-and-read). A cached TLB entry was
// resolved (and its permissions checked) under the old values of these
// bits, so any change to them must flush before the next access can
// trust a hit against it.
const statusTranslationMask = statusMPRV | statusMPPMask | statusSUM | statusMXR

// applyStatusWrite recomputes derived state after any mstatus/sstatus
// write: the SD summary bit, and a TLB flush whenever MPRV/MPP/SUM/MXR
// changed, per spec.md §4.2's flush-trigger list. before is mstatus's raw
// value prior to this write, so the caller must capture it ahead of
// SetRaw.
func (h *Hart) applyStatusWrite(before uint64) {
	h.clampUXLSXL()
	h.CSR.status.recomputeSD()

	if before&statusTranslationMask != h.CSR.status.Raw()&statusTranslationMask {
		h.TLBs.FlushAll()
	}
}

// clampUXLSXL pins UXL/SXL to the hart's one fixed XLEN: this module gives
// every privilege level the same width for the hart's lifetime, so a guest
// attempting to negotiate a narrower U/S-mode XLEN (valid per the ISA but
// unimplemented here) gets WARL'd back to the hart's native width rather
// than silently accepted and then never acted upon.
func (h *Hart) clampUXLSXL() {
	if !h.RV64 {
		return
	}
	h.CSR.status.SetRaw((h.CSR.status.Raw() &^ (statusUXLMask | statusSXLMask)) | uxlSxlFixedRV64)
}

// sstatusMask/sieMask restrict the S-mode views to their defined subset
// of the M-mode registers.
const (
	sstatusMask = statusSIE | statusSPIE | statusUBE | statusSPP | statusFSMask |
		statusXSMask | statusSUM | statusMXR | statusUXLMask | statusSD
	sieMask     = uint64(1)<<IntSSI | uint64(1)<<IntSTI | uint64(1)<<IntSEI
	sipWritable = uint64(1) << IntSSI
	mipWritable = uint64(1)<<IntSSI | uint64(1)<<IntMSI
)

// pseudoEntropy backs the Zkr "seed" CSR. No hardware entropy source is
// available to a software model; math/rand stands in for one, so the
// values are not cryptographically strong.
func pseudoEntropy() uint16 {
	return uint16(rand.Uint32())
}
