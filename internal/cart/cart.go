package cart

// Cartridge is the minimal interface the bus needs for the ROM and
// SRAM/Flash regions (0x08000000-0x0FFFFFFF). Save-chip state machines
// (flash/EEPROM command sequences) are out of scope; implementations back
// save storage with a flat byte array.
type Cartridge interface {
	Read8(addr uint32) byte
	Write8(addr uint32, v byte)
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges whose external save
// RAM should persist to host storage between sessions.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}
