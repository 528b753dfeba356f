package cart

import "testing"

func makeROM(size int) []byte {
	rom := make([]byte, size)
	copy(rom[titleOffset:], []byte("TESTGAME"))
	copy(rom[gameCodeOffset:], []byte("ABCD"))
	copy(rom[makerCodeOffset:], []byte("01"))
	rom[fixedValueOffset] = fixedValueWant
	return rom
}

func TestCartROMReadMirrorsOversizedOffset(t *testing.T) {
	rom := makeROM(0x1000)
	rom[0] = 0xAA
	c := NewCart(rom)
	if v := c.Read8(0x08000000); v != 0xAA {
		t.Fatalf("first byte got %#x want 0xAA", v)
	}
	if v := c.Read8(0x08000000 + 0x1000); v != 0xAA {
		t.Fatalf("wrapped read at +0x1000 got %#x want 0xAA (mirrors offset 0)", v)
	}
}

func TestCartSRAMReadWrite(t *testing.T) {
	c := NewCart(makeROM(0x1000))
	c.Write8(0x0E000000, 0x42)
	if v := c.Read8(0x0E000000); v != 0x42 {
		t.Fatalf("SRAM byte got %#x want 0x42", v)
	}
}

func TestCartSaveRAMRoundTrip(t *testing.T) {
	c := NewCart(makeROM(0x1000))
	c.Write8(0x0E000005, 0x99)
	saved := c.SaveRAM()

	c2 := NewCart(makeROM(0x1000))
	c2.LoadRAM(saved)
	if v := c2.Read8(0x0E000005); v != 0x99 {
		t.Fatalf("restored SRAM byte got %#x want 0x99", v)
	}
}
