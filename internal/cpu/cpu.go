// Package cpu implements an ARM7TDMI (ARMv4T) interpreter: ARM-32 and
// Thumb-16 decoding, banked registers across the seven processor modes, and
// the 2-stage prefetch pipeline described by the memory bus it drives.
package cpu

import (
	"bytes"
	"encoding/gob"
)

// Bus is everything the CPU needs from its memory system. It is satisfied
// by *bus.Bus; the interface lives here (rather than importing the bus
// package) so the two packages only depend on each other through this one
// narrow seam, matching the bidirectional CPU-bus link called out by the
// ownership model: the bus needs the CPU's PC to enforce BIOS protection,
// the CPU needs the bus for every fetch and data access.
type Bus interface {
	Read8(addr uint32) byte
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, v byte)
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)

	// Tick advances every other subsystem (timers, DMA, PPU, APU) by cycles
	// CPU cycles, as charged by the scheduler driving Step.
	Tick(cycles int)

	// SetPC lets the bus enforce the BIOS-region read protection rule.
	SetPC(pc uint32)

	// IRQPending reports the interrupt controller's combined
	// IME & (IE & IF) != 0 condition.
	IRQPending() bool
}

// CPU is the ARM7TDMI interpreter core.
type CPU struct {
	Registers

	pipe      [2]uint32
	pipeValid bool

	halted bool

	bus Bus
}

// NewCPU constructs a CPU wired to bus, in SVC mode with the pipeline
// invalidated so the first Step performs a full 2-fetch refill.
func NewCPU(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.Registers.Reset()
	return c
}

// Bus exposes the underlying bus for tooling (save states, debuggers).
func (c *CPU) Bus() Bus { return c.bus }

// Halted reports whether the CPU is parked in a low-power wait, entered via
// the HLE BIOS Halt/Stop SWI convention wired by internal/emu.
func (c *CPU) Halted() bool     { return c.halted }
func (c *CPU) SetHalted(v bool) { c.halted = v }

// invalidate marks the pipeline empty; the next Step performs a 2-fetch
// refill before executing anything, costing a fixed 2 cycles.
func (c *CPU) invalidate() { c.pipeValid = false }

// instrSize returns the size in bytes of the currently selected state's
// instructions: 4 for ARM, 2 for Thumb.
func (c *CPU) instrSize() uint32 {
	if c.Thumb() {
		return 2
	}
	return 4
}

// fetch reads one instruction word/halfword at pc, per the current state bit.
func (c *CPU) fetch(pc uint32) uint32 {
	c.bus.SetPC(pc)
	if c.Thumb() {
		return uint32(c.bus.Read16(pc &^ 1))
	}
	return c.bus.Read32(pc &^ 3)
}

// refill performs the documented 2-fetch pipeline refill. r[15] always holds
// the architectural PC value (executing_addr + 2*instrSize); the first fetch
// address is therefore r[15] - 2*instrSize.
func (c *CPU) refill() {
	base := c.r[15] - 2*c.instrSize()
	c.pipe[0] = c.fetch(base)
	c.pipe[1] = c.fetch(base + c.instrSize())
	c.pipeValid = true
}

// setExecAddr installs addr as the address of the instruction about to
// execute, maintaining the r[15] = executing_addr + 2*instrSize invariant.
func (c *CPU) setExecAddr(addr uint32) {
	c.r[15] = addr + 2*c.instrSize()
}

// Step executes exactly one instruction (or one failed-condition skip, or
// one pipeline refill) and returns the number of cycles it cost.
//
// Exception entry is checked once between instructions, per the ordering
// contract: interrupts never preempt an in-flight instruction.
func (c *CPU) Step() int {
	if c.halted {
		if c.bus.IRQPending() {
			c.halted = false
		} else {
			c.bus.Tick(1)
			return 1
		}
	}

	if !c.IRQDisabled() && c.bus.IRQPending() {
		cycles := c.enterIRQ()
		c.bus.Tick(cycles)
		return cycles
	}

	if !c.pipeValid {
		c.refill()
		c.bus.Tick(2)
		return 2
	}

	opcode := c.pipe[0]
	executingPC := c.r[15] - 2*c.instrSize()

	var cycles int
	invalidated := false
	if c.Thumb() {
		cycles, invalidated = c.execThumb(uint16(opcode), executingPC)
	} else {
		cycles, invalidated = c.execARM(opcode, executingPC)
	}

	// Mandated ordering: execute pipe[0] first; only if it did NOT
	// invalidate the pipeline do we shift pipe[1] forward and refill.
	if invalidated {
		c.pipeValid = false
	} else {
		c.pipe[0] = c.pipe[1]
		c.pipe[1] = c.fetch(c.r[15])
		c.r[15] += c.instrSize()
	}

	c.bus.Tick(cycles)
	return cycles
}

// enterIRQ switches to IRQ mode, banks SPSR_irq/LR_irq, masks further IRQs,
// forces ARM state, and redirects the pipeline to the IRQ vector. LR_irq is
// set to executing_addr + 8 (ARM) or + 4 (Thumb): with the pipeline's PC
// already two instrSizes ahead of the executing instruction, that is simply
// the live PC.
func (c *CPU) enterIRQ() int {
	priorCPSR := c.CPSR()
	returnPC := c.r[15]
	c.SwitchMode(ModeIRQ)
	c.SetSPSR(priorCPSR)
	c.r[14] = returnPC
	c.SetIRQDisabled(true)
	c.SetThumb(false)
	c.setExecAddr(0x18)
	c.invalidate()
	c.refill()
	return 2
}

// SkipBIOS installs the documented post-BIOS register state (spec.md §6's
// skip_bios): System mode, the three mode stack pointers seeded, PC at
// entry, IRQs enabled, ARM state. The pipeline is left invalid so the next
// Step performs a normal 2-fetch refill from entry.
func (c *CPU) SkipBIOS(entry uint32) {
	c.Registers.Reset()
	c.SwitchMode(ModeSVC)
	c.r[13] = 0x03007FE0
	c.SwitchMode(ModeIRQ)
	c.r[13] = 0x03007FA0
	c.SwitchMode(ModeSYS)
	c.r[13] = 0x03007F00
	c.SetThumb(false)
	c.SetIRQDisabled(false)
	c.setExecAddr(entry)
	c.invalidate()
}

// enterSWI switches to SVC mode for a software interrupt raised by the SWI
// instruction itself; see execARM/execThumb's SWI handling.
func (c *CPU) enterSWI(returnPC uint32) {
	priorCPSR := c.CPSR()
	c.SwitchMode(ModeSVC)
	c.SetSPSR(priorCPSR)
	c.r[14] = returnPC
	c.SetIRQDisabled(true)
	c.SetThumb(false)
	c.setExecAddr(0x08)
	c.invalidate()
	c.refill()
}

// condPass evaluates one of the 16 ARM condition codes against NZCV.
func (c *CPU) condPass(cond uint32) bool {
	n, z, ci, v := c.N(), c.Z(), c.C(), c.V()
	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS/HS
		return ci
	case 0x3: // CC/LO
		return !ci
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return ci && !z
	case 0x9: // LS
		return !ci || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	default: // 0xF: treated as "always" on ARMv4
		return true
	}
}

// cpuState is the gob-serializable save-state snapshot: the full register
// file plus the pipeline and halt status the scheduler needs restored
// exactly (a load mid-pipeline must not trigger a spurious refill).
type cpuState struct {
	R             [16]uint32
	CPSR          uint32
	BankedR13     [numBanks]uint32
	BankedR14     [numBanks]uint32
	BankedR8_12   [5]uint32
	FIQR8_12      [5]uint32
	SPSR          [numBanks]uint32
	Pipe          [2]uint32
	PipeValid     bool
	Halted        bool
}

// SaveState returns the CPU's gob-encoded snapshot.
func (c *CPU) SaveState() []byte {
	s := cpuState{
		R: c.r, CPSR: c.cpsr,
		BankedR13: c.bankedR13, BankedR14: c.bankedR14,
		BankedR8_12: c.bankedR8_12, FIQR8_12: c.fiqR8_12,
		SPSR: c.spsr,
		Pipe: c.pipe, PipeValid: c.pipeValid, Halted: c.halted,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState.
func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.r, c.cpsr = s.R, s.CPSR
	c.bankedR13, c.bankedR14 = s.BankedR13, s.BankedR14
	c.bankedR8_12, c.fiqR8_12 = s.BankedR8_12, s.FIQR8_12
	c.spsr = s.SPSR
	c.pipe, c.pipeValid, c.halted = s.Pipe, s.PipeValid, s.Halted
}

// readR reads a general register for use as an operand, returning the
// documented PC-ahead value (executing_addr + 12) when n==15 so register-
// specified shifts observe the pipeline's actual lookahead.
func (c *CPU) readR(n int) uint32 {
	if n == 15 {
		return c.r[15] + 4
	}
	return c.r[n]
}
