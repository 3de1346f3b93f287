package riscv

import "testing"

// TestDecoder_MExtensionSharesBaseSlot grounds decode.go's uncompressedKey
// doc comment: ADD (funct7=0) and MUL (funct7=1) occupy the same 9-bit
// table key, so the shared handler must dispatch on the raw funct7 field
// rather than the table lookup alone.
func TestDecoder_MExtensionSharesBaseSlot(t *testing.T) {
	t.Parallel()

	d := GetDecoder(true, ExtM)

	add := encodeR(opcodeOP, 0, 0x00, 1, 2, 3)
	mul := encodeR(opcodeOP, 0, 0x01, 1, 2, 3)

	fnAdd := d.Decode(add, 4)
	fnMul := d.Decode(mul, 4)

	if fnAdd == nil || fnMul == nil {
		t.Fatalf("both ADD and MUL must decode: add=%v mul=%v", fnAdd, fnMul)
	}

	h := &Hart{RV64: true}
	h.SetX(2, 3)
	h.SetX(3, 4)

	fnAdd(h, add)
	if h.GetX(1) != 7 {
		t.Errorf("ADD: want 7, got %d", h.GetX(1))
	}

	fnMul(h, mul)
	if h.GetX(1) != 12 {
		t.Errorf("MUL: want 12, got %d", h.GetX(1))
	}
}

func TestDecoder_AExtensionFunct5Dispatch(t *testing.T) {
	t.Parallel()

	d := GetDecoder(true, ExtA)

	// AMOSWAP.W and AMOADD.W share the (opcode, funct3) slot and are
	// told apart only by the raw funct5 field (insn[31:27]).
	swap := encodeR(0b0101111, 2, amoFuncSwap<<2, 1, 2, 3)
	add := encodeR(0b0101111, 2, amoFuncAdd<<2, 1, 2, 3)

	fnSwap := d.Decode(swap, 4)
	fnAdd := d.Decode(add, 4)

	if fnSwap == nil || fnAdd == nil {
		t.Fatalf("both AMOSWAP.W and AMOADD.W must decode")
	}
}

// TestDecoder_RV64WDivideNeedsExtM grounds the M-extension slots that have
// no base-ISA alias at all (DIVW/REMW/REMUW on OP-32), using DIVW: without
// ExtM registered, that table slot stays nil.
func TestDecoder_RV64WDivideNeedsExtM(t *testing.T) {
	t.Parallel()

	without := GetDecoder(true, ExtensionSet(0))
	with := GetDecoder(true, ExtM)

	divw := encodeR(0b0111011, 4, 0x01, 1, 2, 3)

	if fn := without.Decode(divw, 4); fn != nil {
		t.Errorf("DIVW should not decode without ExtM")
	}
	if fn := with.Decode(divw, 4); fn == nil {
		t.Errorf("DIVW should decode with ExtM")
	}
}

func TestDecoder_IllegalInstructionIsNilSlot(t *testing.T) {
	t.Parallel()

	d := GetDecoder(true, ExtM)

	// opcode 0x7F (all opcode bits set) is reserved and never registered.
	insn := uint32(0x7F)
	if fn := d.Decode(insn, 4); fn != nil {
		t.Errorf("unregistered opcode should decode to nil")
	}
}

func TestDecoder_IsMemoizedPerKey(t *testing.T) {
	t.Parallel()

	d1 := GetDecoder(true, ExtM|ExtA)
	d2 := GetDecoder(true, ExtM|ExtA)

	if d1 != d2 {
		t.Errorf("GetDecoder should return the cached pointer for an identical (xlen, ext) key")
	}

	d3 := GetDecoder(false, ExtM|ExtA)
	if d1 == d3 {
		t.Errorf("a different XLEN must build a distinct decoder")
	}
}
