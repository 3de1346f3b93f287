package riscv

import "sync"

// OpFunc executes one decoded instruction against a hart. insn is the
// raw 16 or 32-bit instruction word (right-justified in the uint32).
type OpFunc func(h *Hart, insn uint32)

// Decoder holds the two literal function-pointer tables spec.md §4.4
// calls for: a 512-entry table for uncompressed instructions and a
// 32-entry table for compressed ones. Grounded directly on spec.md's
// explicit performance callout for a table over a switch — the one
// place this module deliberately departs from the teacher's own
// switch-based Decode() (internal/vm/exec.go), because spec.md overrides
// it here.
type Decoder struct {
	table      [512]OpFunc
	compressed [32]OpFunc
	rv64       bool
	ext        ExtensionSet
}

// uncompressedKey folds opcode[6:2] (5 bits), funct3 (3 bits), and
// funct7 bit 5 (1 bit) into a 9-bit index. funct7 carries more
// information than that single bit for the R-type ALU opcodes (OP,
// OP-32), where the M extension's funct7=0000001 aliases the base ISA's
// funct7=0000000 entries at this resolution; the shared handlers
// (opADD, opSLL, ... and their OP-32 counterparts such as opADDW) resolve
// that ambiguity with a direct look at the raw funct7 instead of
// growing the table past the 512-slot budget spec.md sets.
func uncompressedKey(insn uint32) uint32 {
	op := opcode5(insn)
	f3 := funct3(insn)
	alt := (insn >> 30) & 1
	return op<<4 | f3<<1 | alt
}

func compressedKey(insn uint32) uint32 {
	quadrant := insn & 0x3
	f3 := (insn >> 13) & 0x7
	return quadrant<<3 | f3
}

var (
	decoderCacheMu sync.Mutex
	decoderCache   = map[uint32]*Decoder{}
)

func cacheKey(rv64 bool, ext ExtensionSet) uint32 {
	k := uint32(ext) << 1
	if rv64 {
		k |= 1
	}
	return k
}

// GetDecoder returns the memoized Decoder for (rv64, ext), building and
// caching it on first use. A hart picks its decoder once, when it is
// built; later writes to status (FS, UXL/SXL) do not change which decoder
// the hart uses.
func GetDecoder(rv64 bool, ext ExtensionSet) *Decoder {
	key := cacheKey(rv64, ext)

	decoderCacheMu.Lock()
	defer decoderCacheMu.Unlock()

	if d, ok := decoderCache[key]; ok {
		return d
	}

	d := BuildDecoder(rv64, ext)
	decoderCache[key] = d

	return d
}

// BuildDecoder populates both tables for one (XLEN, extension-set)
// combination. Unpopulated slots are left nil; the dispatch loop treats
// a nil entry as illegal-instruction.
func BuildDecoder(rv64 bool, ext ExtensionSet) *Decoder {
	d := &Decoder{rv64: rv64, ext: ext}

	registerBaseI(d, rv64)
	registerZicsr(d)
	registerSystem(d)

	if ext.Has(ExtM) {
		registerM(d, rv64)
	}
	if ext.Has(ExtA) {
		registerA(d, rv64)
	}
	if ext.Has(ExtF) {
		registerF(d, rv64)
	}
	if ext.Has(ExtD) {
		registerD(d, rv64)
	}
	if ext.Has(ExtC) {
		registerC(d, rv64)
	}

	return d
}

func (d *Decoder) set(key uint32, fn OpFunc) {
	d.table[key&0x1FF] = fn
}

func (d *Decoder) setC(key uint32, fn OpFunc) {
	d.compressed[key&0x1F] = fn
}

// Decode returns the OpFunc for insn, or nil if no extension registered
// a handler for it (illegal-instruction).
func (d *Decoder) Decode(insn uint32, size int) OpFunc {
	if size == 2 {
		return d.compressed[compressedKey(insn)&0x1F]
	}
	return d.table[uncompressedKey(insn)&0x1FF]
}
