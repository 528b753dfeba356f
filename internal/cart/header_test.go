package cart

import "testing"

func TestParseHeaderFields(t *testing.T) {
	rom := makeROM(0x1000)
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Title != "TESTGAME" {
		t.Fatalf("title got %q want TESTGAME", h.Title)
	}
	if h.GameCode != "ABCD" {
		t.Fatalf("game code got %q want ABCD", h.GameCode)
	}
	if h.MakerCode != "01" {
		t.Fatalf("maker code got %q want 01", h.MakerCode)
	}
}

func TestHeaderChecksumOK(t *testing.T) {
	rom := makeROM(0x1000)
	var sum byte
	for addr := titleOffset; addr < checksumOffset; addr++ {
		sum -= rom[addr]
	}
	sum -= 0x19
	rom[checksumOffset] = sum

	if !HeaderChecksumOK(rom) {
		t.Fatalf("expected computed checksum to validate")
	}
	rom[checksumOffset] ^= 0xFF
	if HeaderChecksumOK(rom) {
		t.Fatalf("corrupted checksum should not validate")
	}
}
