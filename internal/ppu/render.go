package ppu

// paint composites a new opaque pixel onto column x, pushing whatever was
// previously there down into the "second layer" bookkeeping blending reads
// from (spec.md §4.3 invariant (iii)). Composition proceeds back-to-front,
// so every call here is logically the new topmost pixel.
func (p *PPU) paint(x int, layer uint8, color uint16) {
	p.lineSub[x] = p.lineColor[x]
	p.lineSubTop[x] = p.lineTop[x]
	p.lineHasSub[x] = true
	p.lineColor[x] = color
	p.lineTop[x] = layer
}

func (p *PPU) bgPriority(n int) int { return int(p.bgcnt[n] & 0x3) }

// windowRect decodes a WIN*H/WIN*V register pair into screen-space bounds,
// per spec.md §3's "Window bounds and masks". X2/Y2 past the screen edge (or
// an inverted range) is the documented hardware quirk of clamping to the
// full screen rather than producing an empty window.
func windowRect(h, v uint16) (x1, x2, y1, y2 int) {
	x1 = int(h>>8) & 0xFF
	x2 = int(h & 0xFF)
	if x2 < x1 || x2 > ScreenWidth {
		x2 = ScreenWidth
	}
	y1 = int(v>>8) & 0xFF
	y2 = int(v & 0xFF)
	if y2 < y1 || y2 > ScreenHeight {
		y2 = ScreenHeight
	}
	return
}

// buildWindowMasks computes, for every column of scanline y, which BG
// layers/OBJ/the blend-effect are visible — WIN0 takes priority over WIN1,
// which takes priority over WINOUT, per spec.md §4.3's window/blend
// contract. With no window enabled in DISPCNT, every layer and the effect
// flag are left visible so callers never need a separate unwindowed path.
func (p *PPU) buildWindowMasks(y int) {
	if !p.anyWindowEnabled() {
		for x := 0; x < ScreenWidth; x++ {
			for n := 0; n < 4; n++ {
				p.winBGEnable[n][x] = true
			}
			p.winOBJEnable[x] = true
			p.winEffectEnable[x] = true
		}
		return
	}

	win0x1, win0x2, win0y1, win0y2 := windowRect(p.win0h, p.win0v)
	win1x1, win1x2, win1y1, win1y2 := windowRect(p.win1h, p.win1v)
	win0Row := p.win0Enabled() && y >= win0y1 && y < win0y2
	win1Row := p.win1Enabled() && y >= win1y1 && y < win1y2

	for x := 0; x < ScreenWidth; x++ {
		var bits uint16
		switch {
		case win0Row && x >= win0x1 && x < win0x2:
			bits = p.winin & 0x3F
		case win1Row && x >= win1x1 && x < win1x2:
			bits = (p.winin >> 8) & 0x3F
		default:
			bits = p.winout & 0x3F
		}
		for n := 0; n < 4; n++ {
			p.winBGEnable[n][x] = bits&(1<<uint(n)) != 0
		}
		p.winOBJEnable[x] = bits&(1<<4) != 0
		p.winEffectEnable[x] = bits&(1<<5) != 0
	}
}

// vramHalf reads a VRAM-relative halfword directly, used by the tile/map
// decode paths below where the address is already an offset into vram
// rather than a bus address.
func (p *PPU) vramHalf(addr uint32) uint16 {
	if int(addr)+1 >= len(p.vram) {
		return 0
	}
	return uint16(p.vram[addr]) | uint16(p.vram[addr+1])<<8
}

func (p *PPU) oamHalf(off int) uint16 {
	return uint16(p.oam[off]) | uint16(p.oam[off+1])<<8
}

// renderTiled composes the active set of background layers (regular text
// or affine rotate/scale, per the affine map) back-to-front by priority,
// BG index high-to-low within a priority level, interleaving sprites of
// that same priority on top — spec.md §4.3's "Scanline composition".
func (p *PPU) renderTiled(y int, active, affine [4]bool) {
	spriteColor, spriteOpaque := p.buildSpriteLines(y)
	for level := 3; level >= 0; level-- {
		for n := 3; n >= 0; n-- {
			if !active[n] || !p.bgEnabled(n) || p.bgPriority(n) != level {
				continue
			}
			for x := 0; x < ScreenWidth; x++ {
				if !p.winBGEnable[n][x] {
					continue
				}
				var c uint16
				var ok bool
				if affine[n] {
					c, ok = p.affineBGPixel(n, x, y)
				} else {
					c, ok = p.regularBGPixel(n, x, y)
				}
				if ok {
					p.paint(x, uint8(n), c)
				}
			}
		}
		for x := 0; x < ScreenWidth; x++ {
			if spriteOpaque[level][x] && p.winOBJEnable[x] {
				p.paint(x, layerOBJ, spriteColor[level][x])
			}
		}
	}
}

func (p *PPU) renderMode0(y int) {
	p.renderTiled(y, [4]bool{true, true, true, true}, [4]bool{false, false, false, false})
}

func (p *PPU) renderMode1(y int) {
	p.renderTiled(y, [4]bool{true, true, true, false}, [4]bool{false, false, true, false})
}

func (p *PPU) renderMode2(y int) {
	p.renderTiled(y, [4]bool{false, false, true, true}, [4]bool{false, false, true, true})
}

// regularBGPixel samples one text-mode background's scanline at screen
// column x, decoding BGxCNT's char base, screen base, color depth, and
// screen size, and applying the BG's scroll offsets with wraparound.
func (p *PPU) regularBGPixel(n int, screenX, screenY int) (uint16, bool) {
	bgcnt := p.bgcnt[n]
	charBase := uint32((bgcnt>>2)&0x3) * 0x4000
	screenBase := uint32((bgcnt>>8)&0x1F) * 0x800
	colorMode8bpp := bgcnt&(1<<7) != 0
	size := (bgcnt >> 14) & 0x3

	mapWidthTiles, mapHeightTiles := 32, 32
	switch size {
	case 1:
		mapWidthTiles = 64
	case 2:
		mapHeightTiles = 64
	case 3:
		mapWidthTiles, mapHeightTiles = 64, 64
	}
	mapWidthPx := mapWidthTiles * 8
	mapHeightPx := mapHeightTiles * 8

	effX := (screenX + int(p.bghofs[n])) % mapWidthPx
	effY := (screenY + int(p.bgvofs[n])) % mapHeightPx
	if effX < 0 {
		effX += mapWidthPx
	}
	if effY < 0 {
		effY += mapHeightPx
	}

	tileCol := effX / 8
	tileRow := effY / 8
	blockX := tileCol / 32
	blockY := tileRow / 32
	localTileX := tileCol % 32
	localTileY := tileRow % 32

	var blockIndex uint32
	switch size {
	case 1:
		blockIndex = uint32(blockX)
	case 2:
		blockIndex = uint32(blockY)
	case 3:
		blockIndex = uint32(blockY*2 + blockX)
	}

	entryAddr := screenBase + blockIndex*0x800 + uint32(localTileY*32+localTileX)*2
	entry := p.vramHalf(entryAddr)
	tileID := uint32(entry & 0x3FF)
	hFlip := entry&0x400 != 0
	vFlip := entry&0x800 != 0
	palBank := uint32((entry >> 12) & 0xF)

	px := effX % 8
	py := effY % 8
	if hFlip {
		px = 7 - px
	}
	if vFlip {
		py = 7 - py
	}

	if colorMode8bpp {
		addr := charBase + tileID*64 + uint32(py*8+px)
		if int(addr) >= len(p.vram) {
			return 0, false
		}
		idx := p.vram[addr]
		if idx == 0 {
			return 0, false
		}
		return p.paletteColor(0, int(idx)), true
	}

	addr := charBase + tileID*32 + uint32(py*4+px/2)
	if int(addr) >= len(p.vram) {
		return 0, false
	}
	b := p.vram[addr]
	var nibble byte
	if px&1 == 1 {
		nibble = b >> 4
	} else {
		nibble = b & 0xF
	}
	if nibble == 0 {
		return 0, false
	}
	return p.paletteColor(0, int(palBank)*16+int(nibble)), true
}

// affineBGPixel samples an affine (rotate/scale) background at screen
// column x, walking the per-scanline reference-point accumulator forward
// by PA/PC per column (the vertical step by PB/PD happens once per
// scanline via StepAffineReferencePoints, driven by the scheduler).
func (p *PPU) affineBGPixel(n int, x, y int) (uint16, bool) {
	aff := &p.affine[n-2]
	bgcnt := p.bgcnt[n]
	charBase := uint32((bgcnt>>2)&0x3) * 0x4000
	screenBase := uint32((bgcnt>>8)&0x1F) * 0x800
	wrap := bgcnt&(1<<13) != 0
	size := (bgcnt >> 14) & 0x3
	mapSizeTiles := 16 << uint(size) // 16,32,64,128
	mapSizePx := int32(mapSizeTiles * 8)

	srcX := (aff.refXAcc + int32(x)*int32(aff.pa)) >> 8
	srcY := (aff.refYAcc + int32(x)*int32(aff.pc)) >> 8

	if wrap {
		srcX = ((srcX % mapSizePx) + mapSizePx) % mapSizePx
		srcY = ((srcY % mapSizePx) + mapSizePx) % mapSizePx
	} else if srcX < 0 || srcY < 0 || srcX >= mapSizePx || srcY >= mapSizePx {
		return 0, false
	}

	tileX := srcX / 8
	tileY := srcY / 8
	mapAddr := screenBase + uint32(tileY)*uint32(mapSizeTiles) + uint32(tileX)
	if int(mapAddr) >= len(p.vram) {
		return 0, false
	}
	tileID := uint32(p.vram[mapAddr])

	px := srcX % 8
	py := srcY % 8
	tileAddr := charBase + tileID*64 + uint32(py*8+px)
	if int(tileAddr) >= len(p.vram) {
		return 0, false
	}
	idx := p.vram[tileAddr]
	if idx == 0 {
		return 0, false
	}
	return p.paletteColor(0, int(idx)), true
}

// spriteShapeSize maps OAM attr0's shape (rows) and attr1's size (cols) to
// the sprite's pixel dimensions, per spec.md §4.3's 3x4 table.
var spriteShapeSize = [3][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},   // square
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},   // horizontal
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},   // vertical
}

const objCharBase = 0x10000 // OBJ tile VRAM, 0x06010000

// buildSpriteLines renders every enabled, non-affine OAM sprite onto this
// scanline's priority-bucketed pixel lines. Affine (rotate/scale) sprites
// are omitted, the compatibility tier spec.md §4.3 explicitly allows.
// Sprites are walked from OAM index 127 down to 0 so a lower index's pixel
// wins ties at the same priority, matching real hardware's draw order.
func (p *PPU) buildSpriteLines(y int) (color [4][ScreenWidth]uint16, opaque [4][ScreenWidth]bool) {
	if !p.objEnabled() {
		return
	}
	mapping1D := p.objMapping1D()

	for idx := 127; idx >= 0; idx-- {
		base := idx * 8
		attr0 := p.oamHalf(base)
		if attr0&0x100 != 0 { // rotation/scaling flag: affine sprite, omitted
			continue
		}
		if (attr0>>8)&0x3 == 2 { // disable bit
			continue
		}
		attr1 := p.oamHalf(base + 2)
		attr2 := p.oamHalf(base + 4)

		shape := (attr0 >> 14) & 0x3
		size := (attr1 >> 14) & 0x3
		if shape == 3 {
			continue
		}
		dim := spriteShapeSize[shape][size]
		width, height := dim[0], dim[1]

		spriteY := int(attr0 & 0xFF)
		if spriteY >= 160 {
			spriteY -= 256
		}
		if y < spriteY || y >= spriteY+height {
			continue
		}

		spriteX := int(attr1 & 0x1FF)
		if spriteX >= ScreenWidth {
			spriteX -= 512
		}

		hFlip := attr1&0x1000 != 0
		vFlip := attr1&0x2000 != 0
		colorMode8bpp := attr0&0x2000 != 0
		priority := int((attr2 >> 10) & 0x3)
		palette := uint32((attr2 >> 12) & 0xF)
		tileNum := uint32(attr2 & 0x3FF)

		row := y - spriteY
		if vFlip {
			row = height - 1 - row
		}
		tileRow := row / 8
		rowInTile := row % 8
		tilesPerRow := width / 8
		step := uint32(1)
		if colorMode8bpp {
			step = 2
		}

		for dx := 0; dx < width; dx++ {
			screenX := spriteX + dx
			if screenX < 0 || screenX >= ScreenWidth {
				continue
			}
			srcCol := dx
			if hFlip {
				srcCol = width - 1 - dx
			}
			tileCol := srcCol / 8
			pixelX := srcCol % 8

			var tileN uint32
			if mapping1D {
				tileN = tileNum + uint32(tileRow*tilesPerRow+tileCol)*step
			} else {
				tileN = tileNum + uint32(tileRow)*32*step + uint32(tileCol)*step
			}
			tileAddr := uint32(objCharBase) + tileN*32

			var c uint16
			var ok bool
			if colorMode8bpp {
				addr := tileAddr + uint32(rowInTile*8+pixelX)
				if int(addr) < len(p.vram) {
					if v := p.vram[addr]; v != 0 {
						c, ok = p.paletteColor(1, int(v)), true
					}
				}
			} else {
				addr := tileAddr + uint32(rowInTile*4+pixelX/2)
				if int(addr) < len(p.vram) {
					b := p.vram[addr]
					var nibble byte
					if pixelX&1 == 1 {
						nibble = b >> 4
					} else {
						nibble = b & 0xF
					}
					if nibble != 0 {
						c, ok = p.paletteColor(1, int(palette)*16+int(nibble)), true
					}
				}
			}
			if ok {
				color[priority][screenX] = c
				opaque[priority][screenX] = true
			}
		}
	}
	return
}

// renderBitmapLayer composes BG2's bitmap pixel (from bgPixel) with
// sprites, interleaved by priority just like the tiled modes, but with
// only one background layer to place.
func (p *PPU) renderBitmapLayer(y int, bgPixel func(x int) (uint16, bool)) {
	spriteColor, spriteOpaque := p.buildSpriteLines(y)
	pr := p.bgPriority(2)
	enabled := p.bgEnabled(2)
	for level := 3; level >= 0; level-- {
		if enabled && level == pr {
			for x := 0; x < ScreenWidth; x++ {
				if !p.winBGEnable[2][x] {
					continue
				}
				if c, ok := bgPixel(x); ok {
					p.paint(x, layerBG2, c)
				}
			}
		}
		for x := 0; x < ScreenWidth; x++ {
			if spriteOpaque[level][x] && p.winOBJEnable[x] {
				p.paint(x, layerOBJ, spriteColor[level][x])
			}
		}
	}
}

// renderBitmapMode3 draws the 240x160, single-buffered 15-bit direct-color
// bitmap.
func (p *PPU) renderBitmapMode3(y int) {
	p.renderBitmapLayer(y, func(x int) (uint16, bool) {
		addr := uint32((y*ScreenWidth + x) * 2)
		return p.vramHalf(addr) & 0x7FFF, true
	})
}

// renderBitmapMode4 draws the 240x160, double-buffered 8bpp paletted
// bitmap (frame selected by DISPCNT bit 4).
func (p *PPU) renderBitmapMode4(y int) {
	frameBase := uint32(0)
	if p.frameSelect() == 1 {
		frameBase = 0xA000
	}
	p.renderBitmapLayer(y, func(x int) (uint16, bool) {
		addr := frameBase + uint32(y*ScreenWidth+x)
		if int(addr) >= len(p.vram) {
			return 0, false
		}
		idx := p.vram[addr]
		if idx == 0 {
			return 0, false
		}
		return p.paletteColor(0, int(idx)), true
	})
}

// renderBitmapMode5 draws the 160x128, double-buffered 15-bit
// direct-color bitmap; rows/columns outside the smaller visible area show
// nothing for this layer.
func (p *PPU) renderBitmapMode5(y int) {
	const w, h = 160, 128
	frameBase := uint32(0)
	if p.frameSelect() == 1 {
		frameBase = 0xA000
	}
	p.renderBitmapLayer(y, func(x int) (uint16, bool) {
		if x >= w || y >= h {
			return 0, false
		}
		addr := frameBase + uint32((y*w+x)*2)
		return p.vramHalf(addr) & 0x7FFF, true
	})
}

func layerToBit(layer uint8) uint {
	switch layer {
	case layerBG0:
		return 0
	case layerBG1:
		return 1
	case layerBG2:
		return 2
	case layerBG3:
		return 3
	case layerOBJ:
		return 4
	default:
		return 5 // backdrop
	}
}

func splitBGR(c uint16) (r, g, b uint8) {
	return uint8(c & 0x1F), uint8((c >> 5) & 0x1F), uint8((c >> 10) & 0x1F)
}

func mergeBGR(r, g, b uint8) uint16 {
	return uint16(r) | uint16(g)<<5 | uint16(b)<<10
}

func clamp5(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 31 {
		return 31
	}
	return uint8(v)
}

func clampCoef(v uint16) uint16 {
	if v > 16 {
		return 16
	}
	return v
}

func blendAlpha(top, sub uint16, eva, evb uint16) uint16 {
	r1, g1, b1 := splitBGR(top)
	r2, g2, b2 := splitBGR(sub)
	r := clamp5((int(r1)*int(eva) + int(r2)*int(evb)) / 16)
	g := clamp5((int(g1)*int(eva) + int(g2)*int(evb)) / 16)
	b := clamp5((int(b1)*int(eva) + int(b2)*int(evb)) / 16)
	return mergeBGR(r, g, b)
}

func brighten(c uint16, evy uint16) uint16 {
	r, g, b := splitBGR(c)
	nr := clamp5(int(r) + (31-int(r))*int(evy)/16)
	ng := clamp5(int(g) + (31-int(g))*int(evy)/16)
	nb := clamp5(int(b) + (31-int(b))*int(evy)/16)
	return mergeBGR(nr, ng, nb)
}

func darken(c uint16, evy uint16) uint16 {
	r, g, b := splitBGR(c)
	nr := clamp5(int(r) - int(r)*int(evy)/16)
	ng := clamp5(int(g) - int(g)*int(evy)/16)
	nb := clamp5(int(b) - int(b)*int(evy)/16)
	return mergeBGR(nr, ng, nb)
}

// applyBlend implements BLDCNT/BLDALPHA/BLDY: alpha blend between the top
// and second-from-top layers, or brighten/darken the top layer toward
// white/black, per spec.md §4.3's "Blend and effects".
func (p *PPU) applyBlend() {
	mode := (p.bldcnt >> 6) & 0x3
	if mode == 0 {
		return
	}
	eva := clampCoef(p.bldab & 0x1F)
	evb := clampCoef((p.bldab >> 8) & 0x1F)
	evy := clampCoef(p.bldy & 0x1F)

	for x := 0; x < ScreenWidth; x++ {
		if !p.winEffectEnable[x] {
			continue
		}
		firstBit := layerToBit(p.lineTop[x])
		if p.bldcnt&(1<<firstBit) == 0 {
			continue
		}
		switch mode {
		case 1:
			if !p.lineHasSub[x] {
				continue
			}
			secondBit := layerToBit(p.lineSubTop[x])
			if p.bldcnt&(1<<(8+secondBit)) == 0 {
				continue
			}
			p.lineColor[x] = blendAlpha(p.lineColor[x], p.lineSub[x], eva, evb)
		case 2:
			p.lineColor[x] = brighten(p.lineColor[x], evy)
		case 3:
			p.lineColor[x] = darken(p.lineColor[x], evy)
		}
	}
}
