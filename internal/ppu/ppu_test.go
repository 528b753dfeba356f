package ppu

import "testing"

func newTestPPU() (*PPU, *int) {
	count := 0
	p := New(func(bit int) { count++ })
	return p, &count
}

func TestPaletteByteWriteDuplicatesHalfword(t *testing.T) {
	p, _ := newTestPPU()
	p.PaletteWrite8(0x05000000, 0x7F)
	if got := p.PaletteRead16(0x05000000); got != 0x7F7F {
		t.Fatalf("palette halfword after byte write = %#x, want 0x7F7F", got)
	}
}

func TestVRAMByteWriteDuplicatesHalfword(t *testing.T) {
	p, _ := newTestPPU()
	p.VRAMWrite8(0x06000000, 0x3C)
	if got := p.VRAMRead16(0x06000000); got != 0x3C3C {
		t.Fatalf("VRAM halfword after byte write = %#x, want 0x3C3C", got)
	}
}

func TestOAMByteWriteIsIgnored(t *testing.T) {
	p, _ := newTestPPU()
	p.OAMWrite16(0x07000000, 0xBEEF)
	p.OAMWrite8(0x07000000, 0xFF)
	if got := p.OAMRead16(0x07000000); got != 0xBEEF {
		t.Fatalf("OAM halfword after byte write = %#x, want unchanged 0xBEEF", got)
	}
}

func TestVRAMMirrorAt0x10000(t *testing.T) {
	p, _ := newTestPPU()
	p.VRAMWrite16(0x06000000, 0x1234)
	if got := p.VRAMRead16(0x06010000); got != 0x1234 {
		t.Fatalf("VRAM at 0x06010000 = %#x, want mirrored 0x1234", got)
	}
}

func TestDISPSTATWritePreservesReadOnlyStatusBits(t *testing.T) {
	p, _ := newTestPPU()
	p.SetVBlank(true)
	p.SetHBlank(true)
	p.WriteReg16(0x04, 0x0020) // attempt to clear status bits, set VCount-match IRQ enable
	if !p.InVBlank() {
		t.Fatal("VBlank status bit should survive a CPU write to DISPSTAT")
	}
	if p.ReadReg16(0x04)&(1<<1) == 0 {
		t.Fatal("HBlank status bit should survive a CPU write to DISPSTAT")
	}
}

func TestWriteToVCountIsDropped(t *testing.T) {
	p, _ := newTestPPU()
	p.SetVCount(42)
	p.WriteReg16(0x06, 100)
	if p.VCount() != 42 {
		t.Fatalf("VCOUNT after CPU write = %d, want unchanged 42", p.VCount())
	}
}

func TestVBlankIRQRaisedOnRisingEdgeOnly(t *testing.T) {
	p, count := newTestPPU()
	p.WriteReg16(0x04, 1<<3) // enable VBlank IRQ
	p.SetVBlank(true)
	if *count != 1 {
		t.Fatalf("VBlank IRQ requests = %d, want exactly 1 on rising edge", *count)
	}
	p.SetVBlank(true)
	if *count != 1 {
		t.Fatal("VBlank IRQ must not re-fire while already set")
	}
}

func TestAffineReferencePointReloadAndStep(t *testing.T) {
	p, _ := newTestPPU()
	// BG2 reference X = 0x100, Y = 0x200 (written as 28-bit fixed point low/high halves).
	p.WriteReg16(0x28, 0x0000) // X low
	p.WriteReg16(0x2A, 0x0001) // X high -> 0x00010000 = 1<<16 => 1.0 in 8.8? value is 28-bit raw
	p.WriteReg16(0x2C, 0x0000) // Y low
	p.WriteReg16(0x2E, 0x0002) // Y high
	p.affine[0].pb = 10
	p.affine[0].pd = 20

	p.ReloadAffineReferencePoints()
	xBefore, yBefore := p.affine[0].refXAcc, p.affine[0].refYAcc

	p.StepAffineReferencePoints()
	if p.affine[0].refXAcc != xBefore+10 {
		t.Fatalf("refXAcc after one step = %d, want %d", p.affine[0].refXAcc, xBefore+10)
	}
	if p.affine[0].refYAcc != yBefore+20 {
		t.Fatalf("refYAcc after one step = %d, want %d", p.affine[0].refYAcc, yBefore+20)
	}

	p.StepAffineReferencePoints()
	p.ReloadAffineReferencePoints()
	if p.affine[0].refXAcc != xBefore {
		t.Fatal("ReloadAffineReferencePoints must restore the latch, undoing accumulated steps")
	}
}

func TestVCountMatchRequestsIRQOnce(t *testing.T) {
	p, count := newTestPPU()
	p.WriteReg16(0x04, 1<<5) // match value 0 (default), VCount IRQ enable
	p.SetVCount(0)
	if *count != 1 {
		t.Fatalf("VCount IRQ requests after match = %d, want 1", *count)
	}
	p.SetVCount(1)
	if *count != 1 {
		t.Fatal("VCount IRQ must not fire again once VCOUNT leaves the match value")
	}
}
