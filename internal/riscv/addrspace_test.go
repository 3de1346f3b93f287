package riscv

import (
	"errors"
	"testing"
)

func TestAddressSpace_AttachOverlapRejected(t *testing.T) {
	t.Parallel()

	as := NewAddressSpace()

	if err := as.AttachRAM(0x1000, make([]byte, PageSize)); err != nil {
		t.Fatalf("first attach: %v", err)
	}

	err := as.AttachRAM(0x1000, make([]byte, PageSize))
	if !errors.Is(err, ErrRegionOverlap) {
		t.Fatalf("expected overlap on identical range, got %v", err)
	}

	err = as.AttachRAM(0x1000-PageSize, make([]byte, 2*PageSize))
	if !errors.Is(err, ErrRegionOverlap) {
		t.Fatalf("expected overlap on partial range, got %v", err)
	}

	if err := as.AttachRAM(0x1000+PageSize, make([]byte, PageSize)); err != nil {
		t.Fatalf("adjacent attach should succeed: %v", err)
	}
}

func TestAddressSpace_AttachRejectedWhileRunning(t *testing.T) {
	t.Parallel()

	as := NewAddressSpace()
	as.Lock()
	defer as.Unlock()

	if err := as.AttachRAM(0x2000, make([]byte, PageSize)); !errors.Is(err, ErrMachineRunning) {
		t.Fatalf("expected ErrMachineRunning, got %v", err)
	}
}

func TestAddressSpace_ReadWriteRAM(t *testing.T) {
	t.Parallel()

	as := NewAddressSpace()
	if err := as.AttachRAM(0x8000_0000, make([]byte, PageSize)); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if ok := as.Write(0x8000_0000, 4, 0xCAFEBABE); !ok {
		t.Fatalf("write failed")
	}

	v, ok := as.Read(0x8000_0000, 4)
	if !ok || v != 0xCAFEBABE {
		t.Fatalf("read back: ok=%v, v=%#x", ok, v)
	}

	if _, ok := as.Read(0x9000_0000, 4); ok {
		t.Errorf("unmapped address should miss")
	}
}

// fakeDevice is a minimal MMIODevice exercising the width-coercion paths:
// min/max op size force the AddressSpace to widen narrow accesses and
// split wide ones before reaching the device.
type fakeDevice struct {
	reg     uint64
	minOp   int
	maxOp   int
	reads   []int
	writes  []int
}

func (d *fakeDevice) Name() string { return "fake" }
func (d *fakeDevice) MinOpSize() int { return d.minOp }
func (d *fakeDevice) MaxOpSize() int { return d.maxOp }
func (d *fakeDevice) Reset()         { d.reg = 0 }

func (d *fakeDevice) Read(offset uint64, size int) (uint64, bool) {
	d.reads = append(d.reads, size)
	mask := uint64(1)<<(uint(size)*8) - 1
	if size == 8 {
		mask = ^uint64(0)
	}
	return (d.reg >> (offset * 8)) & mask, true
}

func (d *fakeDevice) Write(offset uint64, size int, val uint64) bool {
	d.writes = append(d.writes, size)
	mask := uint64(1)<<(uint(size)*8) - 1
	if size == 8 {
		mask = ^uint64(0)
	}
	shift := offset * 8
	d.reg = (d.reg &^ (mask << shift)) | ((val & mask) << shift)
	return true
}

func TestAddressSpace_MMIOWidensNarrowAccess(t *testing.T) {
	t.Parallel()

	as := NewAddressSpace()
	dev := &fakeDevice{minOp: 4, maxOp: 8}
	if err := as.AttachMMIO(0x1000_0000, 0x1000_1000, dev); err != nil {
		t.Fatalf("attach mmio: %v", err)
	}

	dev.reg = 0x1122_3344
	v, ok := as.Read(0x1000_0000, 1)
	if !ok || v != 0x44 {
		t.Fatalf("widened read: ok=%v, v=%#x", ok, v)
	}
	if len(dev.reads) != 1 || dev.reads[0] != dev.minOp {
		t.Errorf("expected one %d-byte device read, got %v", dev.minOp, dev.reads)
	}

	if ok := as.Write(0x1000_0000, 1, 0xFF); !ok {
		t.Fatalf("widened write failed")
	}
	if dev.reg&0xFF != 0xFF || dev.reg&0xFFFFFF00 != 0x1122_3300 {
		t.Errorf("widened write should only touch the low byte: got %#x", dev.reg)
	}
}

func TestAddressSpace_MMIOSplitsWideAccess(t *testing.T) {
	t.Parallel()

	as := NewAddressSpace()
	dev := &fakeDevice{minOp: 4, maxOp: 4}
	if err := as.AttachMMIO(0x2000_0000, 0x2000_1000, dev); err != nil {
		t.Fatalf("attach mmio: %v", err)
	}

	if ok := as.Write(0x2000_0000, 8, 0x0102030405060708); !ok {
		t.Fatalf("split write failed")
	}
	if len(dev.writes) != 2 {
		t.Fatalf("expected two chunked writes, got %d", len(dev.writes))
	}

	v, ok := as.Read(0x2000_0000, 8)
	if !ok || v != 0x0102030405060708 {
		t.Fatalf("split read: ok=%v, v=%#x", ok, v)
	}
	if len(dev.reads) != 2 {
		t.Errorf("expected two chunked reads, got %d", len(dev.reads))
	}
}
