// Package bus implements the GBA's flat 32-bit address space: nine
// fixed-decode regions (BIOS, EWRAM, IWRAM, I/O, Palette, VRAM, OAM, ROM,
// SRAM/Flash), region-specific mirroring and width-splitting quirks, and
// MMIO dispatch to the subsystems that own each register range.
package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/FabianRolfMatthiasNoll/gbacore/internal/apu"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cart"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/dma"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/irq"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/timer"
)

const (
	biosSize  = 0x4000
	ewramSize = 0x40000
	iwramSize = 0x8000
	ioSize    = 0x400
)

// Bus wires every memory region and owns the subsystems MMIO dispatches to.
// The CPU, PPU, APU, DMA, timer, and IRQ subsystems reach each other only
// through the bus, per spec.md §5's "MMIO is the only legal cross-subsystem
// channel".
type Bus struct {
	bios  [biosSize]byte
	ewram [ewramSize]byte
	iwram [iwramSize]byte
	ioRaw [ioSize]byte // fallthrough backing for offsets no subsystem owns

	cart cart.Cartridge

	ppuUnit *ppu.PPU
	apuUnit *apu.APU
	dmaBank *dma.Bank
	timers  *timer.Bank
	irqCtl  *irq.Controller

	keyinput uint16 // active-low keypad state, reset value 0x03FF
	keycnt   uint16

	waitcnt uint16
	postFlg byte
	haltcnt byte
	halted  func(bool)

	pc          uint32
	lastBiosVal uint32 // last successful aligned BIOS word read
	openBus     uint32

	fifoPendingLow [2]uint16  // low halfword of an in-progress 32-bit FIFO store
	dmaAddrLatch   [4][2]uint32 // [channel][0=src,1=dst], halves of DMAxSAD/DAD

	debugBuf    [0x100]byte // mGBA-style debug string port backing, 0x04FFF600
	debugWriter func(level int, msg string)
}

// debugStringAddr/debugFlagAddr are the mGBA-community debug-output
// convention cpurunner watches: a NUL-terminated string written at
// debugStringAddr, flushed by a level write at debugFlagAddr. Real hardware
// has no such port; it only exists for HLE test-ROM conformance tooling,
// per SPEC_FULL.md §5.
const (
	debugStringAddr = 0x04FFF600
	debugFlagAddr   = 0x04FFF700
)

// SetDebugWriter installs the callback invoked whenever a test ROM flushes
// the debug string port. level is the raw byte written to debugFlagAddr.
func (b *Bus) SetDebugWriter(f func(level int, msg string)) { b.debugWriter = f }

func (b *Bus) flushDebugString(level byte) {
	if b.debugWriter == nil {
		return
	}
	n := 0
	for n < len(b.debugBuf) && b.debugBuf[n] != 0 {
		n++
	}
	b.debugWriter(int(level), string(b.debugBuf[:n]))
}

// New constructs a fully wired Bus around the given cartridge. sampleRate is
// forwarded to the APU for its output ring's sample rate.
func New(c cart.Cartridge, sampleRate int) *Bus {
	b := &Bus{cart: c}
	b.irqCtl = &irq.Controller{}
	b.ppuUnit = ppu.New(func(bit int) { b.irqCtl.Request(irq.Source(bit)) })
	b.dmaBank = dma.NewBank(b, func(ch int) { b.irqCtl.Request(irq.DMA0 + irq.Source(ch)) })
	b.apuUnit = apu.New(sampleRate, b.dmaBank)
	b.timers = timer.NewBank(func(ch int) {
		if b.timers.IRQEnabled(ch) {
			b.irqCtl.Request(irq.Timer0 + irq.Source(ch))
		}
		b.apuUnit.TimerOverflow(ch)
	})
	b.keyinput = 0x03FF
	return b
}

// PPU/APU/DMA/Timers/IRQ/Cart expose the owned subsystems to the frame
// scheduler (internal/emu), which drives their frame-boundary events
// directly rather than through MMIO (the scheduler isn't a subsystem
// itself, so it isn't bound by the MMIO-only rule of spec.md §5).
func (b *Bus) PPU() *ppu.PPU         { return b.ppuUnit }
func (b *Bus) APU() *apu.APU         { return b.apuUnit }
func (b *Bus) DMA() *dma.Bank        { return b.dmaBank }
func (b *Bus) Timers() *timer.Bank   { return b.timers }
func (b *Bus) IRQ() *irq.Controller  { return b.irqCtl }
func (b *Bus) Cart() cart.Cartridge  { return b.cart }

// SetCart swaps the cartridge after construction (used when the ROM loads
// after the machine is already initialized).
func (b *Bus) SetCart(c cart.Cartridge) { b.cart = c }

// LoadBIOS copies data into the BIOS region, truncating/zero-padding to
// biosSize.
func (b *Bus) LoadBIOS(data []byte) {
	n := copy(b.bios[:], data)
	for i := n; i < biosSize; i++ {
		b.bios[i] = 0
	}
}

// PatchBIOS overwrites a slice of the BIOS region starting at offset. Used
// by internal/emu's skip_bios HLE path to install the IRQ trampoline
// without needing a full BIOS image (spec.md §6).
func (b *Bus) PatchBIOS(offset uint32, data []byte) {
	copy(b.bios[offset:], data)
}

// SetPC lets the CPU report its current PC so the BIOS-protection rule
// (spec.md §4.1) can tell whether a BIOS read is legitimate.
func (b *Bus) SetPC(pc uint32) { b.pc = pc }

// Tick advances the timers and APU by cycles CPU cycles. DMA VBlank/HBlank/
// FIFO triggers and PPU scanline rendering are driven explicitly by the
// scheduler at the exact frame-protocol boundaries (spec.md §4.3), not from
// Tick, since their timing doesn't derive from a cycle count alone.
func (b *Bus) Tick(cycles int) {
	b.timers.Tick(cycles)
	b.apuUnit.Tick(cycles)
}

// IRQPending reports the interrupt controller's combined pending condition,
// forwarded for cpu.Bus.
func (b *Bus) IRQPending() bool { return b.irqCtl.Pending() }

// SetKey updates one active-low keypad bit (spec.md §6's bit map): pressed
// clears the bit, released sets it.
func (b *Bus) SetKey(bit uint, pressed bool) {
	if pressed {
		b.keyinput &^= 1 << bit
	} else {
		b.keyinput |= 1 << bit
	}
}

// region tags the nine fixed address-space regions keyed by the address's
// top byte (spec.md §3).
type region int

const (
	regionOpen region = iota
	regionBIOS
	regionEWRAM
	regionIWRAM
	regionIO
	regionPalette
	regionVRAM
	regionOAM
	regionROM
	regionSRAM
)

func decode(addr uint32) region {
	switch addr >> 24 {
	case 0x00:
		return regionBIOS
	case 0x02:
		return regionEWRAM
	case 0x03:
		return regionIWRAM
	case 0x04:
		return regionIO
	case 0x05:
		return regionPalette
	case 0x06:
		return regionVRAM
	case 0x07:
		return regionOAM
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		return regionROM
	case 0x0E, 0x0F:
		return regionSRAM
	default:
		return regionOpen
	}
}

// Read8 reads one byte. Palette/VRAM/OAM route through the PPU's own
// byte-read accessors (no width-splitting quirk applies to reads).
func (b *Bus) Read8(addr uint32) byte {
	switch decode(addr) {
	case regionBIOS:
		return byte(b.readBIOS8(addr))
	case regionEWRAM:
		return b.ewram[addr&(ewramSize-1)]
	case regionIWRAM:
		return b.iwram[addr&(iwramSize-1)]
	case regionIO:
		return byte(b.ioRead16(addr &^ 1) >> ((addr & 1) * 8))
	case regionPalette:
		return b.ppuUnit.PaletteRead8(addr)
	case regionVRAM:
		return b.ppuUnit.VRAMRead8(addr)
	case regionOAM:
		return b.ppuUnit.OAMRead8(addr)
	case regionROM:
		return b.cart.Read8(addr)
	case regionSRAM:
		return b.cart.Read8(addr)
	default:
		return byte(b.openBus)
	}
}

// Write8 writes one byte, applying the documented special rules: palette
// writes duplicate into both bytes of the aligned halfword; OAM byte writes
// are ignored; VRAM byte writes duplicate like palette (spec.md §3).
func (b *Bus) Write8(addr uint32, v byte) {
	if addr >= debugStringAddr && addr < debugStringAddr+uint32(len(b.debugBuf)) {
		b.debugBuf[addr-debugStringAddr] = v
		return
	}
	if addr == debugFlagAddr {
		b.flushDebugString(v)
		return
	}
	switch decode(addr) {
	case regionEWRAM:
		b.ewram[addr&(ewramSize-1)] = v
	case regionIWRAM:
		b.iwram[addr&(iwramSize-1)] = v
	case regionIO:
		cur := b.ioRead16(addr &^ 1)
		if addr&1 == 0 {
			cur = (cur & 0xFF00) | uint16(v)
		} else {
			cur = (cur & 0x00FF) | uint16(v)<<8
		}
		b.ioWrite16(addr&^1, cur)
	case regionPalette:
		b.ppuUnit.PaletteWrite8(addr, v)
	case regionVRAM:
		b.ppuUnit.VRAMWrite8(addr, v)
	case regionOAM:
		b.ppuUnit.OAMWrite8(addr, v)
	case regionSRAM:
		b.cart.Write8(addr, v)
	}
}

// Read16 reads a halfword at the aligned address, then — for a caller that
// requested an address that was not itself aligned — rotates the result
// right by (addr&1)*8 bits per spec.md §4.1's misaligned-load contract
// ("a misaligned halfword load is rotated by 8 bits"), the same pattern
// Read32 uses for its (addr&3)*8 word rotate.
func (b *Bus) Read16(addr uint32) uint16 {
	aligned := addr &^ 1
	var raw uint16
	switch decode(aligned) {
	case regionBIOS:
		raw = uint16(b.readBIOSWord(aligned) >> ((aligned & 2) * 8))
	case regionEWRAM:
		off := aligned & (ewramSize - 1)
		raw = uint16(b.ewram[off]) | uint16(b.ewram[off+1])<<8
	case regionIWRAM:
		off := aligned & (iwramSize - 1)
		raw = uint16(b.iwram[off]) | uint16(b.iwram[off+1])<<8
	case regionIO:
		raw = b.ioRead16(aligned)
	case regionPalette:
		raw = b.ppuUnit.PaletteRead16(aligned)
	case regionVRAM:
		raw = b.ppuUnit.VRAMRead16(aligned)
	case regionOAM:
		raw = b.ppuUnit.OAMRead16(aligned)
	case regionROM:
		raw = uint16(b.cart.Read8(aligned)) | uint16(b.cart.Read8(aligned+1))<<8
	case regionSRAM:
		v := b.cart.Read8(aligned)
		raw = uint16(v) | uint16(v)<<8
	default:
		raw = uint16(b.openBus)
	}
	rot := (addr & 1) * 8
	if rot == 0 {
		return raw
	}
	return raw>>rot | raw<<(16-rot)
}

func (b *Bus) Write16(addr uint32, v uint16) {
	addr &^= 1
	if addr >= debugStringAddr && addr < debugStringAddr+uint32(len(b.debugBuf)) {
		b.debugBuf[addr-debugStringAddr] = byte(v)
		b.debugBuf[addr-debugStringAddr+1] = byte(v >> 8)
		return
	}
	if addr == debugFlagAddr {
		b.flushDebugString(byte(v))
		return
	}
	switch decode(addr) {
	case regionEWRAM:
		off := addr & (ewramSize - 1)
		b.ewram[off] = byte(v)
		b.ewram[off+1] = byte(v >> 8)
	case regionIWRAM:
		off := addr & (iwramSize - 1)
		b.iwram[off] = byte(v)
		b.iwram[off+1] = byte(v >> 8)
	case regionIO:
		b.ioWrite16(addr, v)
	case regionPalette:
		b.ppuUnit.PaletteWrite16(addr, v)
	case regionVRAM:
		b.ppuUnit.VRAMWrite16(addr, v)
	case regionOAM:
		b.ppuUnit.OAMWrite16(addr, v)
	case regionSRAM:
		b.cart.Write8(addr, byte(v))
	}
}

// Read32 reads a word, masking to a multiple of 4, then — for a caller that
// requested an address that was not itself aligned — rotates the result
// right by (addr&3)*8 bits per spec.md §4.1's misaligned-load contract.
func (b *Bus) Read32(addr uint32) uint32 {
	aligned := addr &^ 3
	var v uint32
	switch decode(aligned) {
	case regionBIOS:
		v = b.readBIOSWord(aligned)
	case regionEWRAM:
		off := aligned & (ewramSize - 1)
		v = uint32(b.ewram[off]) | uint32(b.ewram[off+1])<<8 | uint32(b.ewram[off+2])<<16 | uint32(b.ewram[off+3])<<24
	case regionIWRAM:
		off := aligned & (iwramSize - 1)
		v = uint32(b.iwram[off]) | uint32(b.iwram[off+1])<<8 | uint32(b.iwram[off+2])<<16 | uint32(b.iwram[off+3])<<24
	case regionIO:
		v = uint32(b.ioRead16(aligned)) | uint32(b.ioRead16(aligned+2))<<16
	case regionPalette:
		v = b.ppuUnit.PaletteRead32(aligned)
	case regionVRAM:
		v = b.ppuUnit.VRAMRead32(aligned)
	case regionOAM:
		v = b.ppuUnit.OAMRead32(aligned)
	case regionROM:
		v = uint32(b.cart.Read8(aligned)) | uint32(b.cart.Read8(aligned+1))<<8 |
			uint32(b.cart.Read8(aligned+2))<<16 | uint32(b.cart.Read8(aligned+3))<<24
	case regionSRAM:
		bv := b.cart.Read8(aligned)
		v = uint32(bv) * 0x01010101
	default:
		v = b.openBus
	}
	b.openBus = v
	rot := (addr & 3) * 8
	if rot != 0 {
		v = v>>rot | v<<(32-rot)
	}
	return v
}

// Write32 writes a word masked to a multiple of 4, with no rotate applied
// (misaligned stores write to the aligned address verbatim, per spec.md
// §4.1).
func (b *Bus) Write32(addr uint32, v uint32) {
	aligned := addr &^ 3
	if aligned >= debugStringAddr && aligned < debugStringAddr+uint32(len(b.debugBuf)) {
		off := aligned - debugStringAddr
		b.debugBuf[off] = byte(v)
		b.debugBuf[off+1] = byte(v >> 8)
		b.debugBuf[off+2] = byte(v >> 16)
		b.debugBuf[off+3] = byte(v >> 24)
		return
	}
	if aligned == debugFlagAddr {
		b.flushDebugString(byte(v))
		return
	}
	switch decode(aligned) {
	case regionEWRAM:
		off := aligned & (ewramSize - 1)
		b.ewram[off] = byte(v)
		b.ewram[off+1] = byte(v >> 8)
		b.ewram[off+2] = byte(v >> 16)
		b.ewram[off+3] = byte(v >> 24)
	case regionIWRAM:
		off := aligned & (iwramSize - 1)
		b.iwram[off] = byte(v)
		b.iwram[off+1] = byte(v >> 8)
		b.iwram[off+2] = byte(v >> 16)
		b.iwram[off+3] = byte(v >> 24)
	case regionIO:
		b.ioWrite16(aligned, uint16(v))
		b.ioWrite16(aligned+2, uint16(v>>16))
	case regionPalette:
		b.ppuUnit.PaletteWrite32(aligned, v)
	case regionVRAM:
		b.ppuUnit.VRAMWrite32(aligned, v)
	case regionOAM:
		b.ppuUnit.OAMWrite32(aligned, v)
	case regionSRAM:
		b.cart.Write8(aligned, byte(v))
	}
}

// readBIOS8 returns one byte of a BIOS-protected read (Read8 into the BIOS
// region), synthesized from readBIOSWord so the open-bus-on-foreign-PC rule
// only needs to live in one place.
func (b *Bus) readBIOS8(addr uint32) uint32 {
	word := b.readBIOSWord(addr &^ 3)
	return (word >> ((addr & 3) * 8)) & 0xFF
}

// readBIOSWord enforces the BIOS protection rule (spec.md §4.1): a read is
// only honored while PC is executing inside the BIOS region; otherwise the
// last successful aligned BIOS word read is replayed.
func (b *Bus) readBIOSWord(addr uint32) uint32 {
	if b.pc < biosSize {
		off := addr & (biosSize - 1)
		v := uint32(b.bios[off]) | uint32(b.bios[off+1])<<8 | uint32(b.bios[off+2])<<16 | uint32(b.bios[off+3])<<24
		b.lastBiosVal = v
		return v
	}
	return b.lastBiosVal
}

// --- I/O page dispatch (0x04000000-0x040003FF) ---

func (b *Bus) ioRead16(addr uint32) uint16 {
	off := addr & 0x3FF
	switch {
	case off < 0x58:
		return b.ppuUnit.ReadReg16(off)
	case off >= 0x60 && off < 0xA0:
		return b.apuUnit.ReadReg16(off)
	case off == 0xA0, off == 0xA2, off == 0xA4, off == 0xA6:
		return 0 // FIFO data registers are write-only
	case off >= 0xB0 && off < 0xE0:
		return b.dmaReadReg(off)
	case off >= 0x100 && off < 0x110:
		return b.timerReadReg(off)
	case off == 0x130:
		return b.keyinput
	case off == 0x132:
		return b.keycnt
	case off == 0x200:
		return b.irqCtl.IE()
	case off == 0x202:
		return b.irqCtl.IF()
	case off == 0x204:
		return b.waitcnt
	case off == 0x208:
		if b.irqCtl.IME() {
			return 1
		}
		return 0
	default:
		return uint16(b.ioRaw[off]) | uint16(b.ioRaw[off+1])<<8
	}
}

func (b *Bus) ioWrite16(addr uint32, v uint16) {
	off := addr & 0x3FF
	switch {
	case off < 0x58:
		b.ppuUnit.WriteReg16(off, v)
	case off >= 0x60 && off < 0xA0:
		b.apuUnit.WriteReg16(off, v)
	case off == 0xA0, off == 0xA2:
		// low/high halfword of a 32-bit FIFO A store; full word handled in
		// Write32's regionIO path via two ioWrite16 calls, reassembled here.
		b.fifoHalfwordWrite(0, off, v)
	case off == 0xA4, off == 0xA6:
		b.fifoHalfwordWrite(1, off, v)
	case off >= 0xB0 && off < 0xE0:
		b.dmaWriteReg(off, v)
	case off >= 0x100 && off < 0x110:
		b.timerWriteReg(off, v)
	case off == 0x130:
		// KEYINPUT is read-only.
	case off == 0x132:
		b.keycnt = v
	case off == 0x200:
		b.irqCtl.SetIE(v)
	case off == 0x202:
		b.irqCtl.WriteIF(v)
	case off == 0x204:
		b.waitcnt = v
	case off == 0x208:
		b.irqCtl.SetIME(v&1 != 0)
	case off == 0x301:
		b.haltcnt = byte(v)
		if b.halted != nil {
			b.halted(v&0x80 == 0) // bit 7 clear = halt, set = stop
		}
	default:
		b.ioRaw[off] = byte(v)
		b.ioRaw[off+1] = byte(v >> 8)
	}
}

// fifoHalfwordWrite accumulates the low/high halfwords of a 32-bit FIFO
// store so a 16-bit MMIO write path can still feed the APU's 32-bit-oriented
// FIFO.
func (b *Bus) fifoHalfwordWrite(idx int, off uint32, v uint16) {
	base := uint32(0xA0)
	if idx == 1 {
		base = 0xA4
	}
	if off == base {
		b.fifoPendingLow[idx] = v
		return
	}
	b.apuUnit.WriteFIFO(idx, uint32(b.fifoPendingLow[idx])|uint32(v)<<16)
}

// SetHaltCallback lets internal/emu observe HALTCNT writes (used to park
// the CPU in its low-power wait per the BIOS Halt/Stop SWI convention).
func (b *Bus) SetHaltCallback(f func(stop bool)) { b.halted = f }

func (b *Bus) timerReadReg(off uint32) uint16 {
	ch := int((off - 0x100) / 4)
	if (off-0x100)%4 == 0 {
		return b.timers.Read(ch)
	}
	return b.timers.ReadControl(ch)
}

func (b *Bus) timerWriteReg(off uint32, v uint16) {
	ch := int((off - 0x100) / 4)
	if (off-0x100)%4 == 0 {
		b.timers.WriteReload(ch, v)
	} else {
		b.timers.WriteControl(ch, v)
	}
}

func (b *Bus) dmaReadReg(off uint32) uint16 {
	ch := int((off - 0xB0) / 0xC)
	rel := (off - 0xB0) % 0xC
	if rel == 0x8 {
		return b.dmaBank.ReadControl(ch)
	}
	return 0 // source/dest/count are write-only on real hardware
}

func (b *Bus) dmaWriteReg(off uint32, v uint16) {
	ch := int((off - 0xB0) / 0xC)
	rel := (off - 0xB0) % 0xC
	switch {
	case rel == 0x0 || rel == 0x2:
		b.writeDMAAddrHalf(ch, true, rel == 0x2, v)
	case rel == 0x4 || rel == 0x6:
		b.writeDMAAddrHalf(ch, false, rel == 0x6, v)
	case rel == 0x8:
		b.dmaBank.WriteCount(ch, v)
	case rel == 0xA:
		b.dmaBank.WriteControl(ch, v)
	}
}

// writeDMAAddrHalf tracks the low/high halfwords of a channel's source/dest
// 32-bit MMIO register between the two 16-bit writes real ROMs issue.
func (b *Bus) writeDMAAddrHalf(ch int, isSrc bool, high bool, v uint16) {
	idx := 1
	if isSrc {
		idx = 0
	}
	if high {
		b.dmaAddrLatch[ch][idx] = (b.dmaAddrLatch[ch][idx] & 0xFFFF) | uint32(v)<<16
	} else {
		b.dmaAddrLatch[ch][idx] = (b.dmaAddrLatch[ch][idx] &^ 0xFFFF) | uint32(v)
	}
	if isSrc {
		b.dmaBank.WriteSrc(ch, b.dmaAddrLatch[ch][idx])
	} else {
		b.dmaBank.WriteDst(ch, b.dmaAddrLatch[ch][idx])
	}
}

// --- Save state ---

type busState struct {
	EWRAM, IWRAM, IORaw  []byte
	BIOS                 []byte
	KeyInput, KeyCnt     uint16
	WaitCnt              uint16
	PostFlg, HaltCnt     byte
	LastBiosVal, OpenBus uint32
	PPU, APU, Cart       []byte
	DMA, Timers, IRQ     []byte
}

// SaveState returns a gob-encoded snapshot of the whole bus, including
// every owned subsystem (spec.md §3 "Lifecycles").
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		EWRAM: append([]byte(nil), b.ewram[:]...),
		IWRAM: append([]byte(nil), b.iwram[:]...),
		IORaw: append([]byte(nil), b.ioRaw[:]...),
		BIOS:  append([]byte(nil), b.bios[:]...),
		KeyInput: b.keyinput, KeyCnt: b.keycnt, WaitCnt: b.waitcnt,
		PostFlg: b.postFlg, HaltCnt: b.haltcnt,
		LastBiosVal: b.lastBiosVal, OpenBus: b.openBus,
		PPU: b.ppuUnit.SaveState(), APU: b.apuUnit.SaveState(), Cart: b.cart.SaveState(),
		DMA: b.dmaBank.SaveState(), Timers: b.timers.SaveState(),
		IRQ: b.irqCtl.SaveState(),
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState.
func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	copy(b.ewram[:], s.EWRAM)
	copy(b.iwram[:], s.IWRAM)
	copy(b.ioRaw[:], s.IORaw)
	copy(b.bios[:], s.BIOS)
	b.keyinput, b.keycnt, b.waitcnt = s.KeyInput, s.KeyCnt, s.WaitCnt
	b.postFlg, b.haltcnt = s.PostFlg, s.HaltCnt
	b.lastBiosVal, b.openBus = s.LastBiosVal, s.OpenBus

	b.ppuUnit.LoadState(s.PPU)
	b.apuUnit.LoadState(s.APU)
	b.cart.LoadState(s.Cart)
	b.dmaBank.LoadState(s.DMA)
	b.timers.LoadState(s.Timers)
	b.irqCtl.LoadState(s.IRQ)
}
