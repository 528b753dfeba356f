// Package ppu implements the GBA's scanline picture processor: six graphics
// modes, regular and affine backgrounds, sprites, and blend/window effects,
// driven externally by the frame scheduler rather than self-ticking by dot
// count (the scheduler already knows the exact HDraw/HBlank/VBlank
// boundaries, per spec.md §4.3's frame protocol).
package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester mirrors the teacher's PPU->bus IRQ callback signature:
// bit 0 is VBlank, bit 1 HBlank, bit 2 VCount-match, matching irq.Source's
// ordering so the owner can pass irq.Controller.Request directly.
type InterruptRequester func(bit int)

const (
	ScreenWidth  = 240
	ScreenHeight = 160

	layerBG0      = 0
	layerBG1      = 1
	layerBG2      = 2
	layerBG3      = 3
	layerOBJ      = 4
	layerBackdrop = 5
)

// affineBG holds one affine background's transform matrix and the two
// reference-point registers: a host-written latch and the per-scanline
// internal accumulator spec.md §3 calls out separately.
type affineBG struct {
	pa, pb, pc, pd int16

	refXLatch, refYLatch int32
	refXAcc, refYAcc      int32
}

// PPU owns VRAM/OAM/Palette RAM and every graphics control register. The
// scheduler drives it by calling SetVCount/SetHBlank/SetVBlank/RenderScanline
// at the exact boundaries spec.md §4.3 documents, rather than the PPU
// tracking dots itself.
type PPU struct {
	vram [0x18000]byte // 96 KiB, 0x06000000-0x06017FFF, mirrored per spec.md §3
	oam  [0x400]byte   // 128 entries x 8 bytes
	pram [0x400]byte   // 256 BG + 256 OBJ 15-bit color entries

	dispcnt  uint16
	dispstat uint16
	vcount   uint8

	bgcnt  [4]uint16
	bghofs [4]uint16
	bgvofs [4]uint16

	affine [2]affineBG // index 0 = BG2, 1 = BG3

	win0h, win1h uint16
	win0v, win1v uint16
	winin, winout uint16
	mosaic       uint16

	bldcnt uint16
	bldab  uint16 // EVA (bits 0-4), EVB (bits 8-12)
	bldy   uint16 // EVY (bits 0-4)

	framebuffer [ScreenWidth * ScreenHeight]uint16

	// Per-scanline scratch, reused every RenderScanline call.
	lineColor  [ScreenWidth]uint16
	lineTop    [ScreenWidth]uint8
	lineSub    [ScreenWidth]uint16
	lineSubTop [ScreenWidth]uint8
	lineHasSub [ScreenWidth]bool

	// Per-scanline window visibility, rebuilt by buildWindowMasks before
	// composition whenever any of WIN0/WIN1/WINOBJ is enabled in DISPCNT.
	winBGEnable     [4][ScreenWidth]bool
	winOBJEnable    [ScreenWidth]bool
	winEffectEnable [ScreenWidth]bool

	req InterruptRequester
}

// New constructs a PPU. req is called to raise VBlank(0)/HBlank(1)/
// VCount(2) interrupts; the caller (internal/bus) wires it to the shared
// irq.Controller.
func New(req InterruptRequester) *PPU {
	return &PPU{req: req}
}

// DISPCNT field accessors.
func (p *PPU) mode() int       { return int(p.dispcnt & 0x7) }
func (p *PPU) frameSelect() int {
	if p.dispcnt&(1<<4) != 0 {
		return 1
	}
	return 0
}
func (p *PPU) objMapping1D() bool   { return p.dispcnt&(1<<6) != 0 }
func (p *PPU) forcedBlank() bool    { return p.dispcnt&(1<<7) != 0 }
func (p *PPU) bgEnabled(n int) bool { return p.dispcnt&(1<<uint(8+n)) != 0 }
func (p *PPU) objEnabled() bool     { return p.dispcnt&(1<<12) != 0 }
func (p *PPU) win0Enabled() bool    { return p.dispcnt&(1<<13) != 0 }
func (p *PPU) win1Enabled() bool    { return p.dispcnt&(1<<14) != 0 }
func (p *PPU) winObjEnabled() bool  { return p.dispcnt&(1<<15) != 0 }
func (p *PPU) anyWindowEnabled() bool {
	return p.win0Enabled() || p.win1Enabled() || p.winObjEnabled()
}

// VCount returns the current scanline, maintained by the scheduler via
// SetVCount.
func (p *PPU) VCount() uint8 { return p.vcount }

// SetVCount writes VCOUNT and updates the read-only VCount-match status bit,
// requesting the VCount IRQ on a fresh match if enabled. Spec.md §4.3
// invariant (i): writes to VCOUNT from the CPU are silently dropped (there
// is no MMIO write path to this method; only the scheduler calls it).
func (p *PPU) SetVCount(v uint8) {
	p.vcount = v
	matchVal := uint8(p.dispstat >> 8)
	if v == matchVal {
		wasSet := p.dispstat&(1<<2) != 0
		p.dispstat |= 1 << 2
		if !wasSet && p.dispstat&(1<<5) != 0 {
			p.req(2)
		}
	} else {
		p.dispstat &^= 1 << 2
	}
}

// SetVBlank sets or clears the DISPSTAT VBlank status bit, requesting the
// VBlank IRQ on the rising edge if enabled.
func (p *PPU) SetVBlank(v bool) {
	was := p.dispstat&1 != 0
	if v {
		p.dispstat |= 1
	} else {
		p.dispstat &^= 1
	}
	if v && !was && p.dispstat&(1<<3) != 0 {
		p.req(0)
	}
}

// SetHBlank sets or clears the DISPSTAT HBlank status bit, requesting the
// HBlank IRQ on the rising edge if enabled.
func (p *PPU) SetHBlank(v bool) {
	was := p.dispstat&(1<<1) != 0
	if v {
		p.dispstat |= 1 << 1
	} else {
		p.dispstat &^= 1 << 1
	}
	if v && !was && p.dispstat&(1<<4) != 0 {
		p.req(1)
	}
}

// InVBlank/InHBlank let the scheduler query status without re-deriving it.
func (p *PPU) InVBlank() bool { return p.dispstat&1 != 0 }

// ReloadAffineReferencePoints reloads both affine BGs' internal accumulators
// from their host-written latches. Called by the scheduler at the start of
// every VBlank, per spec.md §3 invariant (iii).
func (p *PPU) ReloadAffineReferencePoints() {
	for i := range p.affine {
		p.affine[i].refXAcc = p.affine[i].refXLatch
		p.affine[i].refYAcc = p.affine[i].refYLatch
	}
}

// StepAffineReferencePoints advances both affine BGs' accumulators by
// (PB,PD) after a rendered scanline, per spec.md §3 invariant (iii).
func (p *PPU) StepAffineReferencePoints() {
	for i := range p.affine {
		p.affine[i].refXAcc += int32(p.affine[i].pb)
		p.affine[i].refYAcc += int32(p.affine[i].pd)
	}
}

// Framebuffer returns the completed 240x160 15-bit BGR pixel array.
func (p *PPU) Framebuffer() *[ScreenWidth * ScreenHeight]uint16 { return &p.framebuffer }

// RenderScanline composes VCOUNT's current scanline into the framebuffer.
// Callers must only invoke this while VCOUNT<160 (visible lines); the
// scheduler is responsible for that gating.
func (p *PPU) RenderScanline() {
	y := int(p.vcount)
	if p.forcedBlank() {
		for x := 0; x < ScreenWidth; x++ {
			p.framebuffer[y*ScreenWidth+x] = 0x7FFF
		}
		return
	}

	backdrop := p.paletteColor(0, 0)
	for x := 0; x < ScreenWidth; x++ {
		p.lineColor[x] = backdrop
		p.lineTop[x] = layerBackdrop
		p.lineHasSub[x] = false
	}

	p.buildWindowMasks(y)

	switch p.mode() {
	case 0:
		p.renderMode0(y)
	case 1:
		p.renderMode1(y)
	case 2:
		p.renderMode2(y)
	case 3:
		p.renderBitmapMode3(y)
	case 4:
		p.renderBitmapMode4(y)
	case 5:
		p.renderBitmapMode5(y)
	}

	p.applyBlend()

	base := y * ScreenWidth
	copy(p.framebuffer[base:base+ScreenWidth], p.lineColor[:])
}

// paletteColor reads a 15-bit BGR color from BG palette (bank 0) or OBJ
// palette (bank 1) at the given palette/sub-palette index.
func (p *PPU) paletteColor(bank int, index int) uint16 {
	off := bank*0x200 + index*2
	return uint16(p.pram[off]) | uint16(p.pram[off+1])<<8
}

// --- Register MMIO (0x04000000 offsets), dispatched by internal/bus/io.go ---

// ReadReg16 reads a 16-bit PPU register by its I/O-page offset.
func (p *PPU) ReadReg16(offset uint32) uint16 {
	switch offset {
	case 0x00:
		return p.dispcnt
	case 0x04:
		return p.dispstat
	case 0x06:
		return uint16(p.vcount)
	case 0x08, 0x0A, 0x0C, 0x0E:
		return p.bgcnt[(offset-0x08)/2]
	case 0x28, 0x2C: // BG2X/BG3X low/high not separately readable; reads as 0
		return 0
	case 0x40:
		return p.win0h
	case 0x42:
		return p.win1h
	case 0x44:
		return p.win0v
	case 0x46:
		return p.win1v
	case 0x48:
		return p.winin
	case 0x4A:
		return p.winout
	case 0x4C:
		return p.mosaic
	case 0x50:
		return p.bldcnt
	case 0x52:
		return p.bldab
	case 0x54:
		return p.bldy
	default:
		return 0
	}
}

// WriteReg16 writes a 16-bit PPU register by its I/O-page offset, rejecting
// writes to DISPSTAT's read-only status bits and to VCOUNT entirely, per
// spec.md §4.1.
func (p *PPU) WriteReg16(offset uint32, v uint16) {
	switch offset {
	case 0x00:
		p.dispcnt = v
	case 0x04:
		p.dispstat = (p.dispstat & 0x0007) | (v &^ 0x0007)
	case 0x06:
		// VCOUNT is not CPU-writable.
	case 0x08, 0x0A, 0x0C, 0x0E:
		p.bgcnt[(offset-0x08)/2] = v
	case 0x10, 0x14, 0x18, 0x1C:
		p.bghofs[(offset-0x10)/4] = v & 0x1FF
	case 0x12, 0x16, 0x1A, 0x1E:
		p.bgvofs[(offset-0x12)/4] = v & 0x1FF
	case 0x20:
		p.affine[0].pa = int16(v)
	case 0x22:
		p.affine[0].pb = int16(v)
	case 0x24:
		p.affine[0].pc = int16(v)
	case 0x26:
		p.affine[0].pd = int16(v)
	case 0x30:
		p.affine[1].pa = int16(v)
	case 0x32:
		p.affine[1].pb = int16(v)
	case 0x34:
		p.affine[1].pc = int16(v)
	case 0x36:
		p.affine[1].pd = int16(v)
	case 0x28:
		p.setRefXLow(0, v)
	case 0x2A:
		p.setRefXHigh(0, v)
	case 0x2C:
		p.setRefYLow(0, v)
	case 0x2E:
		p.setRefYHigh(0, v)
	case 0x38:
		p.setRefXLow(1, v)
	case 0x3A:
		p.setRefXHigh(1, v)
	case 0x3C:
		p.setRefYLow(1, v)
	case 0x3E:
		p.setRefYHigh(1, v)
	case 0x40:
		p.win0h = v
	case 0x42:
		p.win1h = v
	case 0x44:
		p.win0v = v
	case 0x46:
		p.win1v = v
	case 0x48:
		p.winin = v
	case 0x4A:
		p.winout = v
	case 0x4C:
		p.mosaic = v
	case 0x50:
		p.bldcnt = v
	case 0x52:
		p.bldab = v
	case 0x54:
		p.bldy = v
	}
}

// setRefXLow/High and setRefYLow/High latch a 28-bit signed fixed-point
// affine reference point from its split 16-bit MMIO halves, sign-extending
// from bit 27 and re-applying to the live accumulator immediately (real
// hardware applies a fresh reference write mid-frame too; only VBlank
// reload restores it from the latch afterward).
func signExtend28(v uint32) int32 {
	v &= 0x0FFFFFFF
	if v&0x08000000 != 0 {
		return int32(v | 0xF0000000)
	}
	return int32(v)
}

func (p *PPU) setRefXLow(bg int, v uint16) {
	cur := uint32(p.affine[bg].refXLatch) & 0xFFFF0000
	p.affine[bg].refXLatch = signExtend28(cur | uint32(v))
	p.affine[bg].refXAcc = p.affine[bg].refXLatch
}
func (p *PPU) setRefXHigh(bg int, v uint16) {
	cur := uint32(p.affine[bg].refXLatch) & 0x0000FFFF
	p.affine[bg].refXLatch = signExtend28(cur | uint32(v)<<16)
	p.affine[bg].refXAcc = p.affine[bg].refXLatch
}
func (p *PPU) setRefYLow(bg int, v uint16) {
	cur := uint32(p.affine[bg].refYLatch) & 0xFFFF0000
	p.affine[bg].refYLatch = signExtend28(cur | uint32(v))
	p.affine[bg].refYAcc = p.affine[bg].refYLatch
}
func (p *PPU) setRefYHigh(bg int, v uint16) {
	cur := uint32(p.affine[bg].refYLatch) & 0x0000FFFF
	p.affine[bg].refYLatch = signExtend28(cur | uint32(v)<<16)
	p.affine[bg].refYAcc = p.affine[bg].refYLatch
}

// --- VRAM/OAM/Palette direct access, used by internal/bus for the regions
// it owns but PPU backs. Byte writes to Palette/VRAM duplicate into both
// bytes of the aligned halfword; byte writes to OAM are ignored; both
// quirks are documented in spec.md §3 and enforced here rather than in bus,
// since only the owner knows the region's true width-splitting rule.

func (p *PPU) vramAddr(addr uint32) uint32 {
	rel := addr & 0x1FFFF
	if rel >= 0x18000 {
		rel -= 0x8000
	}
	return rel
}

func (p *PPU) VRAMRead8(addr uint32) byte { return p.vram[p.vramAddr(addr)] }
func (p *PPU) VRAMWrite8(addr uint32, v byte) {
	rel := p.vramAddr(addr) &^ 1
	p.vram[rel] = v
	p.vram[rel+1] = v
}
func (p *PPU) VRAMRead16(addr uint32) uint16 {
	rel := p.vramAddr(addr) &^ 1
	return uint16(p.vram[rel]) | uint16(p.vram[rel+1])<<8
}
func (p *PPU) VRAMWrite16(addr uint32, v uint16) {
	rel := p.vramAddr(addr) &^ 1
	p.vram[rel] = byte(v)
	p.vram[rel+1] = byte(v >> 8)
}
func (p *PPU) VRAMRead32(addr uint32) uint32 {
	rel := p.vramAddr(addr) &^ 3
	return uint32(p.vram[rel]) | uint32(p.vram[rel+1])<<8 | uint32(p.vram[rel+2])<<16 | uint32(p.vram[rel+3])<<24
}
func (p *PPU) VRAMWrite32(addr uint32, v uint32) {
	rel := p.vramAddr(addr) &^ 3
	p.vram[rel] = byte(v)
	p.vram[rel+1] = byte(v >> 8)
	p.vram[rel+2] = byte(v >> 16)
	p.vram[rel+3] = byte(v >> 24)
}

func (p *PPU) OAMRead8(addr uint32) byte { return p.oam[addr&0x3FF] }
func (p *PPU) OAMWrite8(addr uint32, v byte) {
	// 8-bit writes to OAM are ignored on real hardware.
}
func (p *PPU) OAMRead16(addr uint32) uint16 {
	rel := addr & 0x3FF &^ 1
	return uint16(p.oam[rel]) | uint16(p.oam[rel+1])<<8
}
func (p *PPU) OAMWrite16(addr uint32, v uint16) {
	rel := addr & 0x3FF &^ 1
	p.oam[rel] = byte(v)
	p.oam[rel+1] = byte(v >> 8)
}
func (p *PPU) OAMRead32(addr uint32) uint32 {
	rel := addr & 0x3FF &^ 3
	return uint32(p.oam[rel]) | uint32(p.oam[rel+1])<<8 | uint32(p.oam[rel+2])<<16 | uint32(p.oam[rel+3])<<24
}
func (p *PPU) OAMWrite32(addr uint32, v uint32) {
	rel := addr & 0x3FF &^ 3
	p.oam[rel] = byte(v)
	p.oam[rel+1] = byte(v >> 8)
	p.oam[rel+2] = byte(v >> 16)
	p.oam[rel+3] = byte(v >> 24)
}

func (p *PPU) PaletteRead8(addr uint32) byte { return p.pram[addr&0x3FF] }
func (p *PPU) PaletteWrite8(addr uint32, v byte) {
	rel := addr & 0x3FF &^ 1
	p.pram[rel] = v
	p.pram[rel+1] = v
}
func (p *PPU) PaletteRead16(addr uint32) uint16 {
	rel := addr & 0x3FF &^ 1
	return uint16(p.pram[rel]) | uint16(p.pram[rel+1])<<8
}
func (p *PPU) PaletteWrite16(addr uint32, v uint16) {
	rel := addr & 0x3FF &^ 1
	p.pram[rel] = byte(v)
	p.pram[rel+1] = byte(v >> 8)
}
func (p *PPU) PaletteRead32(addr uint32) uint32 {
	rel := addr & 0x3FF &^ 3
	return uint32(p.pram[rel]) | uint32(p.pram[rel+1])<<8 | uint32(p.pram[rel+2])<<16 | uint32(p.pram[rel+3])<<24
}
func (p *PPU) PaletteWrite32(addr uint32, v uint32) {
	rel := addr & 0x3FF &^ 3
	p.pram[rel] = byte(v)
	p.pram[rel+1] = byte(v >> 8)
	p.pram[rel+2] = byte(v >> 16)
	p.pram[rel+3] = byte(v >> 24)
}

// ppuState is the gob-serializable save-state snapshot.
type ppuState struct {
	VRAM, OAM, PRAM          []byte
	DISPCNT, DISPSTAT        uint16
	VCOUNT                   uint8
	BGCNT, BGHOFS, BGVOFS    [4]uint16
	Affine                   [2]affineBG
	Win0H, Win1H, Win0V, Win1V uint16
	WinIn, WinOut, Mosaic    uint16
	BldCnt, BldAB, BldY      uint16
}

// SaveState returns the PPU's gob-encoded snapshot.
func (p *PPU) SaveState() []byte {
	s := ppuState{
		VRAM: append([]byte(nil), p.vram[:]...),
		OAM:  append([]byte(nil), p.oam[:]...),
		PRAM: append([]byte(nil), p.pram[:]...),
		DISPCNT: p.dispcnt, DISPSTAT: p.dispstat, VCOUNT: p.vcount,
		BGCNT: p.bgcnt, BGHOFS: p.bghofs, BGVOFS: p.bgvofs,
		Affine: p.affine,
		Win0H: p.win0h, Win1H: p.win1h, Win0V: p.win0v, Win1V: p.win1v,
		WinIn: p.winin, WinOut: p.winout, Mosaic: p.mosaic,
		BldCnt: p.bldcnt, BldAB: p.bldab, BldY: p.bldy,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState.
func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	copy(p.vram[:], s.VRAM)
	copy(p.oam[:], s.OAM)
	copy(p.pram[:], s.PRAM)
	p.dispcnt, p.dispstat, p.vcount = s.DISPCNT, s.DISPSTAT, s.VCOUNT
	p.bgcnt, p.bghofs, p.bgvofs = s.BGCNT, s.BGHOFS, s.BGVOFS
	p.affine = s.Affine
	p.win0h, p.win1h, p.win0v, p.win1v = s.Win0H, s.Win1H, s.Win0V, s.Win1V
	p.winin, p.winout, p.mosaic = s.WinIn, s.WinOut, s.Mosaic
	p.bldcnt, p.bldab, p.bldy = s.BldCnt, s.BldAB, s.BldY
}
