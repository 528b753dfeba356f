package dma

import "testing"

type fakeBus struct{ mem map[uint32]uint32 }

func newFakeBus() *fakeBus { return &fakeBus{mem: make(map[uint32]uint32)} }

func (b *fakeBus) Read16(addr uint32) uint16  { return uint16(b.mem[addr]) }
func (b *fakeBus) Write16(addr uint32, v uint16) { b.mem[addr] = uint32(v) }
func (b *fakeBus) Read32(addr uint32) uint32   { return b.mem[addr] }
func (b *fakeBus) Write32(addr uint32, v uint32) { b.mem[addr] = v }

func TestImmediateTransferRunsOnEnableAndClearsOnNonRepeat(t *testing.T) {
	bus := newFakeBus()
	bus.mem[0x02000000] = 0xDEADBEEF
	b := NewBank(bus, nil)

	b.WriteSrc(0, 0x02000000)
	b.WriteDst(0, 0x03000000)
	b.WriteCount(0, 1)
	// control: 32-bit, immediate timing, enable, no repeat
	b.WriteControl(0, 1<<10|1<<15)

	if got := bus.mem[0x03000000]; got != 0xDEADBEEF {
		t.Fatalf("dest after immediate DMA = %#x, want 0xDEADBEEF", got)
	}
	if b.ReadControl(0)&(1<<15) != 0 {
		t.Fatal("enable bit must clear after a non-repeating transfer completes")
	}
}

func TestRepeatTransferKeepsEnableAndReloadsCount(t *testing.T) {
	bus := newFakeBus()
	bus.mem[0x02000000] = 0x11
	b := NewBank(bus, nil)

	b.WriteSrc(0, 0x02000000)
	b.WriteDst(0, 0x03000000)
	b.WriteCount(0, 1)
	b.WriteControl(0, 1<<9|1<<15) // repeat + enable, 16-bit, immediate

	if b.ReadControl(0)&(1<<15) == 0 {
		t.Fatal("enable bit must stay set for a repeating channel")
	}
}

func TestVBlankTriggerOnlyRunsArmedChannels(t *testing.T) {
	bus := newFakeBus()
	bus.mem[0x02000000] = 0x42
	b := NewBank(bus, nil)

	b.WriteSrc(0, 0x02000000)
	b.WriteDst(0, 0x03000000)
	b.WriteCount(0, 1)
	b.WriteControl(0, 1<<12|1<<15) // timing=VBlank, enable

	if bus.mem[0x03000000] != 0 {
		t.Fatal("VBlank-armed channel must not run before TriggerVBlank")
	}
	b.TriggerVBlank()
	if bus.mem[0x03000000] != 0x42 {
		t.Fatalf("dest after TriggerVBlank = %#x, want 0x42", bus.mem[0x03000000])
	}
}

func TestFifoTransferForces4Words32BitFixedDest(t *testing.T) {
	bus := newFakeBus()
	b := NewBank(bus, nil)

	b.WriteSrc(1, 0x02000000)
	b.WriteDst(1, 0x040000A0)
	b.WriteCount(1, 100) // ignored by FIFO transfers
	b.WriteControl(1, 1<<10|3<<12|1<<15) // 32-bit, timing=special, enable

	srcBase := uint32(0x02000000)
	for i := uint32(0); i < 4; i++ {
		bus.mem[srcBase+i*4] = 0x1000 + i
	}
	b.TriggerFifo(1)

	if bus.mem[0x040000A0] != 0x1003 {
		t.Fatalf("last FIFO word at fixed dest = %#x, want last source word 0x1003", bus.mem[0x040000A0])
	}
	if b.ReadControl(1)&(1<<15) == 0 {
		t.Fatal("a FIFO refill transfer must not clear the channel's own enable bit")
	}
}

func TestDestIncReloadReloadsFromLatchAfterTransfer(t *testing.T) {
	bus := newFakeBus()
	bus.mem[0x02000000] = 1
	bus.mem[0x02000002] = 2
	b := NewBank(bus, nil)

	b.WriteSrc(0, 0x02000000)
	b.WriteDst(0, 0x03000000)
	b.WriteCount(0, 2)
	b.WriteControl(0, 3<<5|1<<9|1<<15) // dst=inc+reload, repeat, enable, 16-bit immediate

	if bus.mem[0x03000000] != 1 || bus.mem[0x03000002] != 2 {
		t.Fatalf("expected both units transferred before reload, got %#x %#x", bus.mem[0x03000000], bus.mem[0x03000002])
	}
}
