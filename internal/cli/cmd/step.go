package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"rvvm/internal/cli"
	"rvvm/internal/log"
	"rvvm/internal/riscv"
	"rvvm/internal/tty"
)

// Step returns the "step" sub-command: an interactive single-instruction
// monitor. Grounded on internal/vm/exec.go's fetch/decode/execute stage
// naming and the teacher's internal/tty raw-terminal console, adapted
// from LC-3's keyboard/display wiring to a line-oriented REPL reading
// step/regs/mem/quit commands.
func Step() cli.Command {
	return &stepper{
		hartCount: 1,
		rv64:      true,
		extFlags:  "macfd",
		memSize:   64 << 20,
		memBase:   0x8000_0000,
		loadAddr:  0x8000_0000,
		format:    "raw",
	}
}

type stepper struct {
	logLevel  string
	hartCount int
	rv64      bool
	extFlags  string
	memSize   int64
	memBase   uint64
	loadAddr  uint64
	format    string
}

func (*stepper) Description() string {
	return "single-instruction monitor for a RISC-V machine"
}

func (*stepper) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `step [flags] FILE

Load a guest image and single-step hart 0 interactively. Commands:

	step [N]     execute N instructions (default 1)
	regs         print pc, the privilege mode and the general-purpose registers
	mem ADDR LEN dump LEN bytes of physical memory at ADDR (both hex)
	quit         exit the monitor`)

	return err
}

func (s *stepper) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("step", flag.ExitOnError)
	fs.StringVar(&s.logLevel, "loglevel", "info", "log level: debug, info, warn, error")
	fs.IntVar(&s.hartCount, "harts", s.hartCount, "number of hardware threads")
	fs.BoolVar(&s.rv64, "rv64", s.rv64, "64-bit machine (false selects RV32)")
	fs.StringVar(&s.extFlags, "ext", s.extFlags, "extension letters to enable: m a f d c")
	fs.Int64Var(&s.memSize, "memsize", s.memSize, "RAM size in bytes")
	fs.Var(hexUint64{&s.memBase}, "membase", "RAM physical base address")
	fs.Var(hexUint64{&s.loadAddr}, "loadaddr", "physical address to load a raw/hex image at (ignored for elf)")
	fs.StringVar(&s.format, "format", s.format, "guest image format: raw, elf, hex")

	return fs
}

func (s *stepper) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		_ = s.Usage(out)
		return 1
	}

	if err := log.LogLevel.UnmarshalText([]byte(s.logLevel)); err != nil {
		logger.Error("bad log level", "err", err)
		return 1
	}

	ext := parseExtensions(s.extFlags)

	m, err := riscv.NewMachine(
		riscv.WithHartCount(s.hartCount),
		riscv.WithRV64(s.rv64),
		riscv.WithExtensions(ext),
		riscv.WithMemory(s.memBase, uint64(s.memSize)),
		riscv.WithResetPC(s.loadAddr),
		riscv.WithMachineLogger(logger),
	)
	if err != nil {
		logger.Error("building machine", "err", err)
		return 1
	}

	if err := loadImage(m, args[0], s.format, s.loadAddr); err != nil {
		logger.Error("loading image", "err", err)
		return 1
	}

	m.AS.Lock()

	console, err := tty.NewConsole(os.Stdin, os.Stdout, "(rvvm) ")
	if err != nil {
		logger.Error("opening console", "err", err)
		return 1
	}
	defer func() { _ = console.Restore() }()

	h := m.Harts[0]

	for {
		line, err := console.ReadLine()
		if err != nil {
			return 0
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "q":
			return 0

		case "step", "s":
			n := 1
			if len(fields) > 1 {
				if v, err := strconv.Atoi(fields[1]); err == nil {
					n = v
				}
			}
			for i := 0; i < n; i++ {
				if err := h.Step(); err != nil {
					console.Printf("step error: %s\r\n", err)
					break
				}
			}
			console.Printf("pc=%#016x\r\n", h.PC)

		case "regs", "r":
			printRegs(console, h)

		case "mem", "m":
			if len(fields) != 3 {
				console.Printf("usage: mem ADDR LEN\r\n")
				continue
			}
			printMem(console, m, fields[1], fields[2])

		default:
			console.Printf("unknown command %q\r\n", fields[0])
		}
	}
}

func printRegs(console *tty.Console, h *riscv.Hart) {
	console.Printf("pc=%#016x priv=%s\r\n", h.PC, h.Priv)
	for i := 0; i < 32; i += 4 {
		console.Printf("x%-2d=%#016x x%-2d=%#016x x%-2d=%#016x x%-2d=%#016x\r\n",
			i, h.X[i], i+1, h.X[i+1], i+2, h.X[i+2], i+3, h.X[i+3])
	}
}

func printMem(console *tty.Console, m *riscv.Machine, addrStr, lenStr string) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 64)
	if err != nil {
		console.Printf("bad address %q\r\n", addrStr)
		return
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(lenStr, "0x"), 16, 31)
	n := int(v)
	if err != nil || n <= 0 {
		console.Printf("bad length %q\r\n", lenStr)
		return
	}

	buf := make([]byte, n)
	if !m.ReadRAM(buf, addr) {
		console.Printf("unmapped address %#x\r\n", addr)
		return
	}

	for i := 0; i < len(buf); i += 16 {
		end := i + 16
		if end > len(buf) {
			end = len(buf)
		}
		console.Printf("%#016x  % x\r\n", addr+uint64(i), buf[i:end])
	}
}
