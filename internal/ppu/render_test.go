package ppu

import "testing"

// TestWindowGatesBackgroundOutsideWindow exercises spec.md §4.3's window
// contract directly: WIN0 covering columns [0,10) with WININ enabling BG2
// inside it and WINOUT disabling BG2 outside it should leave the background
// visible only within the window, backdrop everywhere else.
func TestWindowGatesBackgroundOutsideWindow(t *testing.T) {
	p, _ := newTestPPU()

	for x := 0; x < ScreenWidth; x++ {
		p.VRAMWrite16(uint32(x*2), 0x001F) // red, mode 3 direct color
	}

	const dispcnt = 3 /* mode 3 */ | (1 << 10) /* BG2 enable */ | (1 << 13) /* WIN0 enable */
	p.WriteReg16(0x00, dispcnt)
	p.WriteReg16(0x40, 0x000A) // WIN0H: X1=0, X2=10
	p.WriteReg16(0x44, 0x00A0) // WIN0V: Y1=0, Y2=160
	p.WriteReg16(0x48, 0x0004) // WININ: BG2 enabled inside WIN0
	p.WriteReg16(0x4A, 0x0000) // WINOUT: everything disabled outside

	p.SetVCount(0)
	p.RenderScanline()

	fb := p.Framebuffer()
	if got := fb[5]; got != 0x001F {
		t.Fatalf("column 5 (inside WIN0) = %#x, want 0x001F", got)
	}
	if got := fb[50]; got != 0x0000 {
		t.Fatalf("column 50 (outside WIN0) = %#x, want backdrop 0x0000", got)
	}
}

// TestWindowDisabledLeavesEverythingVisible checks the no-window fast path:
// with WIN0/WIN1/WINOBJ all disabled in DISPCNT, layers render exactly as if
// windowing didn't exist.
func TestWindowDisabledLeavesEverythingVisible(t *testing.T) {
	p, _ := newTestPPU()
	for x := 0; x < ScreenWidth; x++ {
		p.VRAMWrite16(uint32(x*2), 0x001F)
	}
	p.WriteReg16(0x00, 3|(1<<10)) // mode 3, BG2 enable, no window bits
	p.SetVCount(0)
	p.RenderScanline()

	fb := p.Framebuffer()
	if got := fb[50]; got != 0x001F {
		t.Fatalf("column 50 with windowing disabled = %#x, want 0x001F", got)
	}
}

// TestAlphaBlendSpriteOverBackground is spec.md §8's concrete scenario 6:
// mode 3, BG2 paints red at column 10, a sprite paints blue over it with OBJ
// as the blend first-target and BG2 as the second-target, BLDCNT mode 1
// (alpha blend), EVA=EVB=8. The composited column is the per-channel
// average of red and blue, clamped to 5 bits.
func TestAlphaBlendSpriteOverBackground(t *testing.T) {
	p, _ := newTestPPU()

	// BG2: red pixel at column 10.
	p.VRAMWrite16(20, 0x001F)

	// Sprite tile 0, 4bpp: pixel column 2 of the tile (screen column 10,
	// sprite X=8) is palette index 1.
	p.VRAMWrite16(0x10000, 0x0100)
	p.PaletteWrite16(0x202, 0x7C00) // OBJ palette bank, index 1: blue

	p.OAMWrite16(0, 0) // attr0: Y=0, square, 4bpp, not disabled
	p.OAMWrite16(2, 8) // attr1: X=8, 8x8
	p.OAMWrite16(4, 0) // attr2: tile 0, palette 0, priority 0

	const dispcnt = 3 /* mode 3 */ | (1 << 10) /* BG2 enable */ | (1 << 12) /* OBJ enable */ | (1 << 6) /* 1D mapping */
	p.WriteReg16(0x00, dispcnt)
	p.WriteReg16(0x50, (1<<4)|(1<<10)|(1<<6)) // BLDCNT: OBJ first-target, BG2 second-target, mode 1
	p.WriteReg16(0x52, 8|8<<8)                // BLDALPHA: EVA=8, EVB=8

	p.SetVCount(0)
	p.RenderScanline()

	fb := p.Framebuffer()
	if got := fb[10]; got != 0x3C0F {
		t.Fatalf("blended column 10 = %#x, want 0x3C0F", got)
	}
}
