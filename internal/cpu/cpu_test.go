package cpu

import "testing"

// fakeBus is a flat 32-bit address space backing store satisfying the Bus
// interface, used to exercise the interpreter in isolation from the real
// memory-region decode in internal/bus.
type fakeBus struct {
	mem        map[uint32]byte
	irqPending bool
	lastPC     uint32
	ticked     int
}

func newFakeBus() *fakeBus { return &fakeBus{mem: make(map[uint32]byte)} }

func (b *fakeBus) Read8(addr uint32) byte { return b.mem[addr] }
func (b *fakeBus) Write8(addr uint32, v byte) { b.mem[addr] = v }

func (b *fakeBus) Read16(addr uint32) uint16 {
	aligned := addr &^ 1
	raw := uint16(b.Read8(aligned)) | uint16(b.Read8(aligned+1))<<8
	rot := (addr & 1) * 8
	if rot == 0 {
		return raw
	}
	return raw>>rot | raw<<(16-rot)
}
func (b *fakeBus) Write16(addr uint32, v uint16) {
	b.Write8(addr, byte(v))
	b.Write8(addr+1, byte(v>>8))
}

func (b *fakeBus) Read32(addr uint32) uint32 {
	return uint32(b.Read16(addr)) | uint32(b.Read16(addr+2))<<16
}
func (b *fakeBus) Write32(addr uint32, v uint32) {
	b.Write16(addr, uint16(v))
	b.Write16(addr+2, uint16(v>>16))
}

func (b *fakeBus) Tick(cycles int)      { b.ticked += cycles }
func (b *fakeBus) SetPC(pc uint32)      { b.lastPC = pc }
func (b *fakeBus) IRQPending() bool     { return b.irqPending }

func (b *fakeBus) loadARM(addr uint32, instrs ...uint32) {
	for i, v := range instrs {
		b.Write32(addr+uint32(i*4), v)
	}
}

func (b *fakeBus) loadThumb(addr uint32, instrs ...uint16) {
	for i, v := range instrs {
		b.Write16(addr+uint32(i*2), v)
	}
}

func newARMCPU(bus *fakeBus, pc uint32) *CPU {
	c := NewCPU(bus)
	c.SwitchMode(ModeSYS)
	c.r[15] = pc
	c.invalidate()
	return c
}

func newThumbCPU(bus *fakeBus, pc uint32) *CPU {
	c := NewCPU(bus)
	c.SwitchMode(ModeSYS)
	c.SetThumb(true)
	c.r[15] = pc
	c.invalidate()
	return c
}

// stepExec runs Steps until exactly one non-refill instruction has executed
// (skipping the 2-cycle pipeline refill Steps the interpreter issues after
// any invalidation), returning that instruction's cycle count.
func stepExec(c *CPU, bus *fakeBus, n int) {
	for i := 0; i < n; i++ {
		if !c.pipeValid {
			c.Step() // refill
		}
		c.Step()
	}
}

func TestARMADDFlags(t *testing.T) {
	bus := newFakeBus()
	// ADDS R0,R1,R2
	bus.loadARM(0x0000, 0xE0910002)
	c := newARMCPU(bus, 0x0000)
	c.r[1] = 0x7FFFFFFF
	c.r[2] = 1
	stepExec(c, bus, 1)

	if c.r[0] != 0x80000000 {
		t.Fatalf("R0 got %#x want 0x80000000", c.r[0])
	}
	if !c.N() || c.Z() || c.C() || !c.V() {
		t.Fatalf("flags got N=%v Z=%v C=%v V=%v want N=1 Z=0 C=0 V=1", c.N(), c.Z(), c.C(), c.V())
	}
}

func TestThumbLSLCarry(t *testing.T) {
	bus := newFakeBus()
	// LSL R0,R1,#1  (format F1: op=00 imm5=1 rs=1 rd=0)
	instr := uint16(0x0000) | (1 << 6) | (1 << 3) | 0
	bus.loadThumb(0x0000, instr)
	c := newThumbCPU(bus, 0x0000)
	c.r[1] = 0x80000001
	stepExec(c, bus, 1)

	if c.r[0] != 0x00000002 {
		t.Fatalf("R0 got %#x want 2", c.r[0])
	}
	if !c.C() || c.N() || c.Z() {
		t.Fatalf("flags got C=%v N=%v Z=%v want C=1 N=0 Z=0", c.C(), c.N(), c.Z())
	}
}

func TestLDRRotate(t *testing.T) {
	bus := newFakeBus()
	bus.Write8(0x03000000, 0x11)
	bus.Write8(0x03000001, 0x22)
	bus.Write8(0x03000002, 0x33)
	bus.Write8(0x03000003, 0x44)
	// LDR R0,[R1] with I=0 (register form unused; use immediate offset 0):
	// cond=AL(1110) 01 0 1 1 0 0 0 0001 0000 000000000000
	instr := uint32(0xE5910000)
	bus.loadARM(0x0000, instr)
	c := newARMCPU(bus, 0x0000)
	c.r[1] = 0x03000002
	stepExec(c, bus, 1)

	if c.r[0] != 0x22114433 {
		t.Fatalf("R0 got %#x want 0x22114433", c.r[0])
	}
}

func TestLDRHRotate(t *testing.T) {
	bus := newFakeBus()
	bus.Write8(0x03000000, 0x11)
	bus.Write8(0x03000001, 0x22)
	// LDRH R0,[R1] immediate offset 0, pre-indexed, up.
	instr := uint32(0xE1D100B0)
	bus.loadARM(0x0000, instr)
	c := newARMCPU(bus, 0x0000)
	c.r[1] = 0x03000001
	stepExec(c, bus, 1)

	if c.r[0] != 0x00001122 {
		t.Fatalf("R0 got %#x want 0x00001122", c.r[0])
	}
}

func TestBlockTransferQuirk(t *testing.T) {
	bus := newFakeBus()
	// STM R4!,{R4,R5}  P=0,U=1,W=1,S=0,L=0 : cond 100 0 1 0 1 0 0100 0000000000110000
	instr := uint32(0xE8A40030)
	bus.loadARM(0x0000, instr)
	c := newARMCPU(bus, 0x0000)
	c.r[4] = 0x03000000
	c.r[5] = 0x11111111
	stepExec(c, bus, 1)

	if v := bus.Read32(0x03000000); v != 0x03000000 {
		t.Fatalf("mem[0x03000000] got %#x want 0x03000000", v)
	}
	if v := bus.Read32(0x03000004); v != 0x11111111 {
		t.Fatalf("mem[0x03000004] got %#x want 0x11111111", v)
	}
	if c.r[4] != 0x03000008 {
		t.Fatalf("R4 got %#x want 0x03000008", c.r[4])
	}
}

func TestConditionCodes(t *testing.T) {
	c := newARMCPU(newFakeBus(), 0)
	c.SetNZCV(true, false, false, true) // N=1 Z=0 C=0 V=1
	if !c.condPass(0xA) { // GE: N==V
		t.Fatalf("GE should pass when N==V")
	}
	if c.condPass(0xB) { // LT: N!=V
		t.Fatalf("LT should fail when N==V")
	}
	if !c.condPass(0xF) {
		t.Fatalf("cond 0xF must always pass on ARMv4")
	}
}

func TestBarrelShifterEdgeCases(t *testing.T) {
	res, carry := shiftImmediate(ShiftLSR, 0x80000000, 0, false)
	if res != 0 || !carry {
		t.Fatalf("LSR #0 (encodes #32) got res=%#x carry=%v want res=0 carry=true", res, carry)
	}
	res, carry = shiftImmediate(ShiftASR, 0x80000000, 0, false)
	if res != 0xFFFFFFFF || !carry {
		t.Fatalf("ASR #0 (encodes #32) got res=%#x carry=%v want res=0xFFFFFFFF carry=true", res, carry)
	}
	res, carry = shiftImmediate(ShiftROR, 0x00000001, 0, true)
	if res != 0x80000000 || !carry {
		t.Fatalf("ROR #0 (RRX) got res=%#x carry=%v want res=0x80000000 carry=true", res, carry)
	}
	res, carry = shiftRegister(ShiftLSL, 0xFFFFFFFF, 0, true)
	if res != 0xFFFFFFFF || !carry {
		t.Fatalf("shift amount=0 must preserve value and carry, got res=%#x carry=%v", res, carry)
	}
}

func TestModeSwitchRestoresBankedRegisters(t *testing.T) {
	c := newARMCPU(newFakeBus(), 0)
	for i := 8; i <= 14; i++ {
		c.r[i] = uint32(i)
	}
	c.SwitchMode(ModeFIQ)
	for i := 8; i <= 14; i++ {
		c.r[i] = uint32(0x1000 + i)
	}
	c.SwitchMode(ModeSYS)
	for i := 8; i <= 14; i++ {
		if c.r[i] != uint32(i) {
			t.Fatalf("R%d after FIQ round-trip got %#x want %#x", i, c.r[i], i)
		}
	}
}

func TestIRQEntryAndReturn(t *testing.T) {
	bus := newFakeBus()
	bus.loadARM(0x0000, 0xE1A00000) // MOV R0,R0 (NOP)
	c := newARMCPU(bus, 0x0000)
	c.SetNZCV(true, false, false, false)
	priorCPSR := c.CPSR()

	bus.irqPending = true
	c.Step() // enters IRQ instead of executing the NOP

	if c.Mode() != ModeIRQ {
		t.Fatalf("mode got %v want ModeIRQ", c.Mode())
	}
	if c.r[15] != 0x18+8 {
		t.Fatalf("PC got %#x want vector 0x18 plus pipeline lookahead", c.r[15])
	}
	if c.SPSR() != priorCPSR {
		t.Fatalf("SPSR_irq got %#x want prior CPSR %#x", c.SPSR(), priorCPSR)
	}

	bus.irqPending = false
	// SUBS PC,LR,#4 : cond AL, opcode SUB(0010), S=1, Rn=14, Rd=15, imm=4
	bus.loadARM(0x18, 0xE25EF004)
	c.refill()
	stepExec(c, bus, 1)

	if c.Mode() != ModeSYS {
		t.Fatalf("mode after SUBS PC,LR,#4 got %v want ModeSYS", c.Mode())
	}
	if !c.N() {
		t.Fatalf("CPSR should have been restored from SPSR (N flag lost)")
	}
}

func TestTimerCascadeIsOutsideCPUScope(t *testing.T) {
	// Timer cascade behavior is exercised in internal/timer; this package
	// only guarantees Step() charges Bus.Tick with the cycles it returns.
	bus := newFakeBus()
	bus.loadARM(0x0000, 0xE1A00000) // MOV R0,R0
	c := newARMCPU(bus, 0x0000)
	stepExec(c, bus, 1)
	if bus.ticked == 0 {
		t.Fatalf("expected Step to have ticked the bus")
	}
}
