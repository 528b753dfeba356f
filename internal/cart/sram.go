package cart

// romMirrorSize is the size of one ROM mirror window (0x08000000, 0x0A000000,
// 0x0C000000 all alias the same cartridge ROM on real hardware).
const romMirrorSize = 0x02000000

// Cart is a flat ROM + flat battery-backed-SRAM cartridge: no bank
// switching, no flash/EEPROM command interpreter, matching spec.md §1's
// explicit exclusion of cartridge chip-state-machine logic.
type Cart struct {
	rom  []byte
	sram []byte
}

// NewCart constructs a Cart from ROM bytes, sizing its SRAM backing from the
// header's detected save size (defaulting to 64 KiB, the common SRAM size,
// when the header can't be parsed).
func NewCart(rom []byte) *Cart {
	sramSize := 64 * 1024
	if h, err := ParseHeader(rom); err == nil {
		sramSize = h.SRAMSizeBytes
	}
	return &Cart{rom: rom, sram: make([]byte, sramSize)}
}

// Read8 implements Cartridge.
func (c *Cart) Read8(addr uint32) byte {
	switch {
	case addr >= 0x08000000 && addr < 0x0E000000:
		return c.readROM(addr)
	case addr >= 0x0E000000:
		return c.readSRAM(addr)
	default:
		return 0xFF
	}
}

// Write8 implements Cartridge. ROM writes are dropped (real hardware routes
// them to a flash/EEPROM command interpreter this core doesn't model).
func (c *Cart) Write8(addr uint32, v byte) {
	if addr >= 0x0E000000 {
		c.writeSRAM(addr, v)
	}
}

func (c *Cart) readROM(addr uint32) byte {
	if len(c.rom) == 0 {
		return 0xFF
	}
	offset := int(addr & (romMirrorSize - 1))
	// Oversized offsets (ROM smaller than the 32 MiB window) mirror back to
	// the start of the image rather than panicking, per spec.md §7's
	// recoverable-error handling for out-of-range offsets.
	offset %= len(c.rom)
	return c.rom[offset]
}

func (c *Cart) readSRAM(addr uint32) byte {
	if len(c.sram) == 0 {
		return 0xFF
	}
	offset := int(addr-0x0E000000) % len(c.sram)
	return c.sram[offset]
}

func (c *Cart) writeSRAM(addr uint32, v byte) {
	if len(c.sram) == 0 {
		return
	}
	offset := int(addr-0x0E000000) % len(c.sram)
	c.sram[offset] = v
}

// SaveRAM implements BatteryBacked.
func (c *Cart) SaveRAM() []byte {
	out := make([]byte, len(c.sram))
	copy(out, c.sram)
	return out
}

// LoadRAM implements BatteryBacked.
func (c *Cart) LoadRAM(data []byte) {
	n := copy(c.sram, data)
	for i := n; i < len(c.sram); i++ {
		c.sram[i] = 0xFF
	}
}

// SaveState implements Cartridge.
func (c *Cart) SaveState() []byte {
	return append([]byte(nil), c.sram...)
}

// LoadState implements Cartridge.
func (c *Cart) LoadState(data []byte) {
	copy(c.sram, data)
}
