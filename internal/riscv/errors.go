package riscv

import (
	"errors"
	"fmt"
)

// Sentinel errors, in the teacher's house style (internal/vm/mem.go,
// internal/vm/intr.go): plain errors.New values, wrapped with fmt.Errorf
// "%w" at call sites, tested with errors.Is/errors.As.
var (
	ErrAccessFault        = errors.New("riscv: access fault")
	ErrPageFault          = errors.New("riscv: page fault")
	ErrIllegalInstruction = errors.New("riscv: illegal instruction")
	ErrMisaligned         = errors.New("riscv: misaligned access")
	ErrNoDevice           = errors.New("riscv: no device at address")
	ErrRegionOverlap      = errors.New("riscv: overlapping memory region")
	ErrMachineRunning     = errors.New("riscv: machine is running")
	ErrUnknownCSR         = errors.New("riscv: unknown or inaccessible csr")
)

// TrapError carries a trap cause and trap value (the faulting address or
// the offending instruction bits, depending on cause) up through the
// fetch/decode/execute pipeline to the point where a trap is entered.
// It implements the Go 1.20 error-tree protocol (Is/As), mirroring
// internal/vm/intr.go's interrupt/acv types.
type TrapError struct {
	Cause      uint64
	Tval       uint64
	Interrupt  bool
	underlying error
}

func (e *TrapError) Error() string {
	if e.Interrupt {
		return fmt.Sprintf("riscv: interrupt %d (tval=%#x)", e.Cause, e.Tval)
	}
	return fmt.Sprintf("riscv: exception %d (tval=%#x): %s", e.Cause, e.Tval, e.underlying)
}

func (e *TrapError) Unwrap() error { return e.underlying }

func (e *TrapError) Is(target error) bool {
	if e.underlying != nil {
		return errors.Is(e.underlying, target)
	}
	return false
}

// NewException builds an exception TrapError (bit 63 of the eventual
// mcause/scause clear).
func NewException(code uint64, tval uint64, wraps error) *TrapError {
	return &TrapError{Cause: code, Tval: tval, underlying: wraps}
}

// NewInterrupt builds an interrupt TrapError (bit 63 set).
func NewInterrupt(code uint64) *TrapError {
	return &TrapError{Cause: code, Interrupt: true}
}

func accessFault(code uint64, addr uint64) *TrapError {
	return NewException(code, addr, ErrAccessFault)
}

func pageFault(code uint64, addr uint64) *TrapError {
	return NewException(code, addr, ErrPageFault)
}

func misaligned(code uint64, addr uint64) *TrapError {
	return NewException(code, addr, ErrMisaligned)
}

func illegalInstruction(insn uint64) *TrapError {
	return NewException(ExcIllegalInstruction, insn, ErrIllegalInstruction)
}
