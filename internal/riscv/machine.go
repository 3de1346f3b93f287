package riscv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rvvm/internal/log"
)

// Machine owns the shared AddressSpace and every Hart, and drives their
// lifecycle. Grounded on internal/vm/vm.go's LC3 struct and its
// two-phase option-function New(opts ...OptionFn) constructor,
// generalized from one fixed CPU to a configurable number of harts.
type Machine struct {
	AS    *AddressSpace
	Harts []*Hart

	clint *CLINT

	running atomic.Bool
	wg      sync.WaitGroup
	logger  *log.Logger

	clockStop chan struct{}
}

// MachineOption configures a Machine at construction, in the teacher's
// option-function style (internal/vm/vm.go's OptionFn).
type MachineOption func(*machineConfig)

type machineConfig struct {
	hartCount int
	rv64      bool
	ext       ExtensionSet
	memSize   uint64
	memBase   uint64
	resetPC   uint64
	clintBase uint64
	logger    *log.Logger
}

func WithHartCount(n int) MachineOption { return func(c *machineConfig) { c.hartCount = n } }
func WithRV64(rv64 bool) MachineOption  { return func(c *machineConfig) { c.rv64 = rv64 } }
func WithExtensions(ext ExtensionSet) MachineOption {
	return func(c *machineConfig) { c.ext = ext }
}
func WithMemory(base, size uint64) MachineOption {
	return func(c *machineConfig) { c.memBase, c.memSize = base, size }
}
func WithResetPC(pc uint64) MachineOption { return func(c *machineConfig) { c.resetPC = pc } }
func WithCLINTBase(base uint64) MachineOption {
	return func(c *machineConfig) { c.clintBase = base }
}
func WithMachineLogger(l *log.Logger) MachineOption {
	return func(c *machineConfig) { c.logger = l }
}

// NewMachine builds a Machine: RAM, one CLINT, and hartCount harts, all
// reset at resetPC in M-mode with satp Bare.
func NewMachine(opts ...MachineOption) (*Machine, error) {
	cfg := machineConfig{
		hartCount: 1,
		rv64:      true,
		ext:       ExtM | ExtA | ExtC | ExtZicsr | ExtZifencei,
		memSize:   64 << 20,
		memBase:   0x8000_0000,
		resetPC:   0x8000_0000,
		clintBase: 0x0200_0000,
		logger:    log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.hartCount < 1 {
		return nil, fmt.Errorf("riscv: hart count must be >= 1, got %d", cfg.hartCount)
	}

	m := &Machine{
		AS:     NewAddressSpace(),
		logger: cfg.logger,
	}

	ram := make([]byte, cfg.memSize)
	if err := m.AS.AttachRAM(cfg.memBase, ram); err != nil {
		return nil, fmt.Errorf("riscv: attaching ram: %w", err)
	}

	timer := NewTimer(10_000_000) // 10 MHz guest timebase, a common CLINT default, shared by every hart
	for i := 0; i < cfg.hartCount; i++ {
		h := NewHart(i, m, cfg.rv64, cfg.ext, cfg.resetPC, timer)
		m.Harts = append(m.Harts, h)
	}

	m.clint = NewCLINT(m.Harts, timer)
	if err := m.AS.AttachMMIO(cfg.clintBase, cfg.clintBase+clintStride*uint64(cfg.hartCount), m.clint); err != nil {
		return nil, fmt.Errorf("riscv: attaching clint: %w", err)
	}

	return m, nil
}

// WriteRAM/ReadRAM are the embedding API's bulk guest-memory accessors,
// used by the CLI's image loader and the monitor's memory-dump command.
func (m *Machine) WriteRAM(addr uint64, data []byte) bool { return m.AS.WriteBytes(addr, data) }
func (m *Machine) ReadRAM(dst []byte, addr uint64) bool   { return m.AS.ReadBytes(dst, addr) }

// AttachMMIO/DetachMMIO let a caller (the CLI, a test) wire up additional
// devices beyond CLINT before Start.
func (m *Machine) AttachMMIO(begin, end uint64, dev MMIODevice) error {
	return m.AS.AttachMMIO(begin, end, dev)
}

func (m *Machine) DetachMMIO(begin uint64) error {
	return m.AS.DetachMMIO(begin)
}

// Start spawns one goroutine per hart and a CLINT timer-poll goroutine,
// per SPEC_FULL.md §4.6's goroutine realization of "one OS thread per
// hart."
func (m *Machine) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}

	m.AS.Lock()
	m.clockStop = make(chan struct{})

	m.logger.Info("machine starting", log.Any("harts", len(m.Harts)))

	m.wg.Add(len(m.Harts))
	for _, h := range m.Harts {
		h := h
		go func() {
			defer m.wg.Done()
			h.Run(ctx)
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.clockLoop(ctx)
	}()
}

func (m *Machine) clockLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clockStop:
			return
		case <-ticker.C:
			m.clint.Poll()
		}
	}
}

// Wait blocks until every hart and the clock loop have returned (the
// context was cancelled, or Pause was called).
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Pause requests every hart stop at its next safe point, wakes any
// parked in WFI, and waits for them to return.
func (m *Machine) Pause() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}

	for _, h := range m.Harts {
		h.requestPause()
	}
	close(m.clockStop)

	m.wg.Wait()
	m.AS.Unlock()

	m.logger.Info("machine paused")
}

func (m *Machine) Running() bool { return m.running.Load() }

// invalidateReservations clears every hart's outstanding LR reservation
// that overlaps [paddr, paddr+size). Called from inside the store's
// AddressSpace.LockAtomics critical section so a concurrent LR/SC on
// another hart can't race the check. A reservation belongs to whichever
// hart issued the LR, not to the store invalidating it, hence the loop
// over every hart rather than just the caller.
func (m *Machine) invalidateReservations(paddr uint64, size int) {
	storeEnd := paddr + uint64(size)
	for _, h := range m.Harts {
		h.resMu.Lock()
		if h.reservation.valid {
			resEnd := h.reservation.paddr + uint64(h.reservation.size)
			if h.reservation.paddr < storeEnd && paddr < resEnd {
				h.reservation.valid = false
			}
		}
		h.resMu.Unlock()
	}
}

func (m *Machine) String() string {
	return fmt.Sprintf("machine{harts=%d}", len(m.Harts))
}
