package riscv

import "math"

// registerF/registerD install the single- and double-precision floating
// point extensions. Arithmetic is computed with Go's host math package,
// always rounding to nearest-even: the rounding mode in frm or in the
// instruction's rm field is not applied, and no handler sets the
// exception flags (NV/DZ/OF/UF/NX) in fflags; fflags changes only through
// CSR writes.
func registerF(d *Decoder, rv64 bool) {
	d.set(op5LoadFP<<4|2<<1, opFLW)
	d.set(op5StoreFP<<4|2<<1, opFSW)
	registerFPArith(d, false)
}

func registerD(d *Decoder, rv64 bool) {
	d.set(op5LoadFP<<4|3<<1, opFLD)
	d.set(op5StoreFP<<4|3<<1, opFSD)
	registerFPArith(d, true)
}

// registerFPArith wires the OP-FP opcode's funct7-selected operations.
// funct7[6:2] (5 bits) selects the operation; funct7[1:0] selects the
// format (00=S, 01=D). uncompressedKey's alt bit is funct7 bit5, which
// is part of that 5-bit selector, so — as with the M/A extensions — both
// alt=0/1 slots for affected funct3 route through one dispatcher that
// inspects the whole funct7 field.
func registerFPArith(d *Decoder, double bool) {
	for f3 := uint32(0); f3 < 8; f3++ {
		d.set(op5OpFP<<4|f3<<1|0, opOpFP)
		d.set(op5OpFP<<4|f3<<1|1, opOpFP)
	}
	d.set(op5MAdd<<4|0<<1|0, opFMADD)
	d.set(op5MAdd<<4|0<<1|1, opFMADD)
	d.set(op5MSub<<4|0<<1|0, opFMSUB)
	d.set(op5MSub<<4|0<<1|1, opFMSUB)
	d.set(op5NMSub<<4|0<<1|0, opFNMSUB)
	d.set(op5NMSub<<4|0<<1|1, opFNMSUB)
	d.set(op5NMAdd<<4|0<<1|0, opFNMADD)
	d.set(op5NMAdd<<4|0<<1|1, opFNMADD)
}

func (h *Hart) fGetS(i uint32) float32 { return math.Float32frombits(uint32(h.F[i])) }
func (h *Hart) fGetD(i uint32) float64 { return math.Float64frombits(h.F[i]) }

func (h *Hart) fSetS(i uint32, v float32) {
	// NaN-boxing: a single-precision result fills the upper 32 bits of
	// the 64-bit register with all ones.
	h.F[i] = 0xFFFFFFFF00000000 | uint64(math.Float32bits(v))
}

func (h *Hart) fSetD(i uint32, v float64) {
	h.F[i] = math.Float64bits(v)
}

func opFLW(h *Hart, insn uint32) {
	addr := h.GetX(rs1(insn)) + immI(insn)
	v, trap := h.loadMem(addr, 4, false)
	if trap != nil {
		h.raise(trap)
		return
	}
	h.F[rd(insn)] = 0xFFFFFFFF00000000 | v
}

func opFLD(h *Hart, insn uint32) {
	addr := h.GetX(rs1(insn)) + immI(insn)
	v, trap := h.loadMem(addr, 8, false)
	if trap != nil {
		h.raise(trap)
		return
	}
	h.F[rd(insn)] = v
}

func opFSW(h *Hart, insn uint32) {
	addr := h.GetX(rs1(insn)) + immS(insn)
	if trap := h.storeMem(addr, 4, h.F[rs2(insn)]&0xFFFFFFFF); trap != nil {
		h.raise(trap)
	}
}

func opFSD(h *Hart, insn uint32) {
	addr := h.GetX(rs1(insn)) + immS(insn)
	if trap := h.storeMem(addr, 8, h.F[rs2(insn)]); trap != nil {
		h.raise(trap)
	}
}

// opOpFP dispatches every OP-FP instruction by its full funct7 (selects
// operation + format) and funct3 (rounding mode, or sub-selector for
// compare/class/move groups).
func opOpFP(h *Hart, insn uint32) {
	fn7 := funct7(insn)
	op, double := fn7>>2, fn7&0x1 == 1

	switch op {
	case 0x00: // FADD
		fpBinOp(h, insn, double, func(a, b float64) float64 { return a + b })
	case 0x01: // FSUB
		fpBinOp(h, insn, double, func(a, b float64) float64 { return a - b })
	case 0x02: // FMUL
		fpBinOp(h, insn, double, func(a, b float64) float64 { return a * b })
	case 0x03: // FDIV
		fpBinOp(h, insn, double, func(a, b float64) float64 { return a / b })
	case 0x0B: // FSQRT
		if double {
			h.fSetD(rd(insn), math.Sqrt(h.fGetD(rs1(insn))))
		} else {
			h.fSetS(rd(insn), float32(math.Sqrt(float64(h.fGetS(rs1(insn))))))
		}
	case 0x04: // FSGNJ/FSGNJN/FSGNJX
		opFSGNJ(h, insn, double)
	case 0x05: // FMIN/FMAX
		opFMinMax(h, insn, double)
	case 0x14: // FEQ/FLT/FLE
		opFCompare(h, insn, double)
	case 0x18: // FCVT.W(U)/L(U).S/D — float to int
		opFCVTToInt(h, insn, double)
	case 0x1A: // FCVT.S/D.W(U)/L(U) — int to float
		opFCVTFromInt(h, insn, double)
	case 0x08: // FCVT.S.D / FCVT.D.S
		if double {
			h.fSetD(rd(insn), float64(h.fGetS(rs1(insn))))
		} else {
			h.fSetS(rd(insn), float32(h.fGetD(rs1(insn))))
		}
	case 0x1C: // FMV.X.W/D, FCLASS
		opFMoveOrClass(h, insn, double)
	case 0x1E: // FMV.W.X / FMV.D.X
		if double {
			h.F[rd(insn)] = h.GetX(rs1(insn))
		} else {
			h.fSetS(rd(insn), math.Float32frombits(uint32(h.GetX(rs1(insn)))))
		}
	default:
		h.raise(illegalInstruction(uint64(insn)))
	}
}

func fpBinOp(h *Hart, insn uint32, double bool, op func(a, b float64) float64) {
	if double {
		h.fSetD(rd(insn), op(h.fGetD(rs1(insn)), h.fGetD(rs2(insn))))
	} else {
		r := float32(op(float64(h.fGetS(rs1(insn))), float64(h.fGetS(rs2(insn)))))
		h.fSetS(rd(insn), r)
	}
}

func opFSGNJ(h *Hart, insn uint32, double bool) {
	f3 := funct3(insn)
	if double {
		a, b := h.fGetD(rs1(insn)), h.fGetD(rs2(insn))
		var sign float64
		switch f3 {
		case 0:
			sign = math.Copysign(1, b)
		case 1:
			sign = -math.Copysign(1, b)
		case 2:
			sign = math.Copysign(1, a) * math.Copysign(1, b)
		}
		h.fSetD(rd(insn), math.Copysign(a, sign))
		return
	}
	a, b := float64(h.fGetS(rs1(insn))), float64(h.fGetS(rs2(insn)))
	var sign float64
	switch f3 {
	case 0:
		sign = math.Copysign(1, b)
	case 1:
		sign = -math.Copysign(1, b)
	case 2:
		sign = math.Copysign(1, a) * math.Copysign(1, b)
	}
	h.fSetS(rd(insn), float32(math.Copysign(a, sign)))
}

func opFMinMax(h *Hart, insn uint32, double bool) {
	isMax := funct3(insn) == 1
	if double {
		a, b := h.fGetD(rs1(insn)), h.fGetD(rs2(insn))
		if isMax {
			h.fSetD(rd(insn), math.Max(a, b))
		} else {
			h.fSetD(rd(insn), math.Min(a, b))
		}
		return
	}
	a, b := float64(h.fGetS(rs1(insn))), float64(h.fGetS(rs2(insn)))
	if isMax {
		h.fSetS(rd(insn), float32(math.Max(a, b)))
	} else {
		h.fSetS(rd(insn), float32(math.Min(a, b)))
	}
}

func opFCompare(h *Hart, insn uint32, double bool) {
	var a, b float64
	if double {
		a, b = h.fGetD(rs1(insn)), h.fGetD(rs2(insn))
	} else {
		a, b = float64(h.fGetS(rs1(insn))), float64(h.fGetS(rs2(insn)))
	}

	var result bool
	switch funct3(insn) {
	case 0: // FLE
		result = a <= b
	case 1: // FLT
		result = a < b
	case 2: // FEQ
		result = a == b
	}

	v := uint64(0)
	if result {
		v = 1
	}
	h.SetX(rd(insn), v)
}

func opFCVTToInt(h *Hart, insn uint32, double bool) {
	var v float64
	if double {
		v = h.fGetD(rs1(insn))
	} else {
		v = float64(h.fGetS(rs1(insn)))
	}

	signed := rs2(insn)&1 == 0
	is64 := rs2(insn)&2 != 0

	if signed {
		i := int64(v)
		if is64 {
			h.SetX(rd(insn), uint64(i))
		} else {
			h.SetXSext32(rd(insn), uint32(int32(i)))
		}
		return
	}

	u := uint64(v)
	if is64 {
		h.SetX(rd(insn), u)
	} else {
		h.SetXSext32(rd(insn), uint32(u))
	}
}

func opFCVTFromInt(h *Hart, insn uint32, double bool) {
	signed := rs2(insn)&1 == 0
	is64 := rs2(insn)&2 != 0

	var v float64
	x := h.GetX(rs1(insn))

	switch {
	case signed && is64:
		v = float64(int64(x))
	case signed && !is64:
		v = float64(int32(uint32(x)))
	case !signed && is64:
		v = float64(x)
	default:
		v = float64(uint32(x))
	}

	if double {
		h.fSetD(rd(insn), v)
	} else {
		h.fSetS(rd(insn), float32(v))
	}
}

func opFMoveOrClass(h *Hart, insn uint32, double bool) {
	if funct3(insn) == 1 {
		// FCLASS
		var v float64
		if double {
			v = h.fGetD(rs1(insn))
		} else {
			v = float64(h.fGetS(rs1(insn)))
		}
		h.SetX(rd(insn), fclass(v))
		return
	}

	if double {
		h.SetX(rd(insn), h.F[rs1(insn)])
	} else {
		h.SetXSext32(rd(insn), uint32(h.F[rs1(insn)]))
	}
}

func fclass(v float64) uint64 {
	switch {
	case math.IsInf(v, -1):
		return 1 << 0
	case v < 0 && !math.IsInf(v, 0):
		return 1 << 1
	case math.IsInf(v, 1):
		return 1 << 7
	case v > 0:
		return 1 << 6
	case v == 0 && math.Signbit(v):
		return 1 << 3
	case v == 0:
		return 1 << 4
	case math.IsNaN(v):
		return 1 << 9
	default:
		return 0
	}
}

func opFMADD(h *Hart, insn uint32)  { fusedMulAdd(h, insn, 1, 1) }
func opFMSUB(h *Hart, insn uint32)  { fusedMulAdd(h, insn, 1, -1) }
func opFNMSUB(h *Hart, insn uint32) { fusedMulAdd(h, insn, -1, 1) }
func opFNMADD(h *Hart, insn uint32) { fusedMulAdd(h, insn, -1, -1) }

// fusedMulAdd computes sign1*(rs1*rs2) + sign2*rs3, covering all four
// fused multiply-add opcodes from one routine.
func fusedMulAdd(h *Hart, insn uint32, sign1, sign2 float64) {
	double := funct7(insn)&1 == 1
	rs3 := insn >> 27

	if double {
		r := sign1*(h.fGetD(rs1(insn))*h.fGetD(rs2(insn))) + sign2*h.fGetD(rs3)
		h.fSetD(rd(insn), r)
		return
	}

	r := float32(sign1*(float64(h.fGetS(rs1(insn)))*float64(h.fGetS(rs2(insn)))) + sign2*float64(h.fGetS(rs3)))
	h.fSetS(rd(insn), r)
}
