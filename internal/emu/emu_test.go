package emu

import "testing"

// loopROM returns a synthetic cartridge image that spins in place at the
// entry point (ARM "B $", branch to self) so RunFrame has something to
// execute without depending on any BIOS or real game code.
func loopROM() []byte {
	rom := make([]byte, 0xC0)
	var branchToSelf uint32 = 0xEAFFFFFE
	rom[0] = byte(branchToSelf)
	rom[1] = byte(branchToSelf >> 8)
	rom[2] = byte(branchToSelf >> 16)
	rom[3] = byte(branchToSelf >> 24)
	return rom
}

func newRunningMachine() *Machine {
	m := New(Config{})
	_ = m.LoadROM(loopROM())
	m.SkipBIOS()
	return m
}

func TestRunFrameCompletesAllScanlines(t *testing.T) {
	m := newRunningMachine()
	m.RunFrame()
	if got := m.bus.PPU().VCount(); got != 0 {
		t.Fatalf("VCOUNT after one frame = %d, want 0 (wrapped back to start)", got)
	}
}

func TestRunFrameRaisesVBlankIRQFlag(t *testing.T) {
	m := newRunningMachine()
	m.RunFrame()
	if m.bus.IRQ().IF()&1 == 0 {
		t.Fatal("VBlank IF bit not set after a completed frame")
	}
}

func TestSkipBIOSEntersSystemModeAtCartridge(t *testing.T) {
	m := New(Config{})
	_ = m.LoadROM(loopROM())
	m.SkipBIOS()
	if m.cpu.Mode() != 0x1F { // ModeSYS
		t.Fatalf("mode after SkipBIOS = %#x, want System (0x1F)", m.cpu.Mode())
	}
}

func TestVCountWalksEveryScanlineExactlyOnce(t *testing.T) {
	m := newRunningMachine()
	seen := make(map[uint8]int)
	for i := 0; i < ScanlinesPerFrame; i++ {
		seen[m.bus.PPU().VCount()]++
		m.stepScanline()
	}
	if len(seen) != ScanlinesPerFrame {
		t.Fatalf("distinct VCOUNT values observed = %d, want %d", len(seen), ScanlinesPerFrame)
	}
	for line, count := range seen {
		if count != 1 {
			t.Fatalf("VCOUNT=%d observed %d times, want exactly once", line, count)
		}
	}
}

func TestVBlankStatusSpansVCount160Through227(t *testing.T) {
	m := newRunningMachine()
	for i := 0; i < ScanlinesPerFrame; i++ {
		line := m.bus.PPU().VCount()
		inVBlank := m.bus.PPU().InVBlank()
		wantVBlank := line >= VisibleScanlines
		if inVBlank != wantVBlank {
			t.Fatalf("at VCOUNT=%d, InVBlank()=%v, want %v", line, inVBlank, wantVBlank)
		}
		m.stepScanline()
	}
}

func TestVBlankIRQRaisedExactlyOncePerFrame(t *testing.T) {
	m := newRunningMachine()
	m.bus.IRQ().SetIE(1) // enable VBlank IRQ so IF actually reflects a fresh request
	for i := 0; i < ScanlinesPerFrame; i++ {
		m.stepScanline()
	}
	// IF's VBlank bit is raised exactly once in the frame; it stays set since
	// nothing acknowledges it, so this only confirms it reaches set state,
	// matching spec.md §8's "VBlank IRQ is raised exactly once" property at
	// the interrupt-controller level (request count is verified directly by
	// internal/ppu's TestVBlankIRQRaisedOnRisingEdgeOnly).
	if m.bus.IRQ().IF()&1 == 0 {
		t.Fatal("VBlank IF bit should be set after one frame")
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	m := newRunningMachine()
	m.RunFrame()
	snapshot := m.SaveState()
	vcountAfterFirstFrame := m.bus.PPU().VCount()

	m.RunFrame()
	if m.bus.PPU().VCount() != vcountAfterFirstFrame {
		t.Fatalf("sanity check: VCOUNT should be identical across frames for this ROM")
	}

	m.LoadState(snapshot)
	if got := m.bus.PPU().VCount(); got != vcountAfterFirstFrame {
		t.Fatalf("VCOUNT after LoadState = %d, want %d", got, vcountAfterFirstFrame)
	}
}
