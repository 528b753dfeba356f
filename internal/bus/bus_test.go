package bus

import (
	"testing"

	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cart"
)

func newTestBus() *Bus { return New(cart.NewCart(nil), 32768) }

func TestPaletteByteWriteDuplicatesHalfword(t *testing.T) {
	b := newTestBus()
	b.Write8(0x05000000, 0x55)
	if got := b.Read16(0x05000000); got != 0x5555 {
		t.Fatalf("palette halfword after byte write = %#x, want 0x5555", got)
	}
}

func TestOAMByteWriteIsIgnored(t *testing.T) {
	b := newTestBus()
	b.Write16(0x07000000, 0xABCD)
	b.Write8(0x07000000, 0xFF)
	if got := b.Read16(0x07000000); got != 0xABCD {
		t.Fatalf("OAM halfword after byte write = %#x, want unchanged 0xABCD", got)
	}
}

func TestUnalignedWordLoadRotates(t *testing.T) {
	b := newTestBus()
	b.Write8(0x03000000, 0x11)
	b.Write8(0x03000001, 0x22)
	b.Write8(0x03000002, 0x33)
	b.Write8(0x03000003, 0x44)
	if got := b.Read32(0x03000002); got != 0x22114433 {
		t.Fatalf("unaligned Read32(+2) = %#x, want 0x22114433", got)
	}
}

func TestUnalignedHalfwordLoadRotates(t *testing.T) {
	b := newTestBus()
	b.Write8(0x03000000, 0x11)
	b.Write8(0x03000001, 0x22)
	if got := b.Read16(0x03000001); got != 0x1122 {
		t.Fatalf("unaligned Read16(+1) = %#x, want 0x1122", got)
	}
}

func TestMisalignedWordStoreWritesAlignedNoRotate(t *testing.T) {
	b := newTestBus()
	b.Write32(0x03000002, 0xAABBCCDD)
	if got := b.Read32(0x03000000); got != 0xAABBCCDD {
		t.Fatalf("Write32 at an unaligned addr should write the aligned word verbatim, got %#x", got)
	}
}

func TestEWRAMMirrorsWithin1MiB(t *testing.T) {
	b := newTestBus()
	b.Write8(0x02000000, 0x42)
	if got := b.Read8(0x02040000); got != 0x42 {
		t.Fatalf("EWRAM mirror at +256KiB = %#x, want 0x42", got)
	}
}

func TestBIOSReadProtection(t *testing.T) {
	b := newTestBus()
	b.LoadBIOS([]byte{0x11, 0x22, 0x33, 0x44})
	b.SetPC(0x00000000) // executing inside BIOS: read is honored
	if got := b.Read32(0x00000000); got != 0x44332211 {
		t.Fatalf("in-BIOS read = %#x, want 0x44332211", got)
	}
	b.SetPC(0x08000000) // executing from ROM: BIOS reads replay the last value
	if got := b.Read32(0x00000000); got != 0x44332211 {
		t.Fatalf("out-of-BIOS read = %#x, want replayed last successful value", got)
	}
}

func TestDebugPortFlushesNULTerminatedString(t *testing.T) {
	b := newTestBus()
	var gotLevel int
	var gotMsg string
	b.SetDebugWriter(func(level int, msg string) { gotLevel, gotMsg = level, msg })

	msg := "hello"
	for i, ch := range msg {
		b.Write8(debugStringAddr+uint32(i), byte(ch))
	}
	b.Write8(debugFlagAddr, 3)

	if gotLevel != 3 || gotMsg != "hello" {
		t.Fatalf("debug writer got level=%d msg=%q, want level=3 msg=%q", gotLevel, gotMsg, "hello")
	}
}

func TestIFWriteOneClearsBit(t *testing.T) {
	b := newTestBus()
	b.IRQ().Request(0) // VBlank
	if b.Read16(0x04000202)&1 == 0 {
		t.Fatal("IF VBlank bit should be set after Request")
	}
	b.Write16(0x04000202, 1) // write-1-to-clear
	if b.Read16(0x04000202)&1 != 0 {
		t.Fatal("writing 1 to an IF bit should clear it")
	}
}
