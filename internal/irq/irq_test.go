package irq

import "testing"

func TestWriteIFClearsOnlySetBits(t *testing.T) {
	c := &Controller{}
	c.Request(VBlank)
	c.Request(Timer0)
	c.WriteIF(1 << uint(VBlank))
	if c.IF()&(1<<uint(VBlank)) != 0 {
		t.Fatal("VBlank bit should have been cleared")
	}
	if c.IF()&(1<<uint(Timer0)) == 0 {
		t.Fatal("Timer0 bit should be untouched by a write that didn't target it")
	}
}

func TestPendingRequiresIMEAndMaskOverlap(t *testing.T) {
	c := &Controller{}
	c.Request(VBlank)
	if c.Pending() {
		t.Fatal("no interrupt should be pending with IME=0 and IE=0")
	}
	c.SetIME(true)
	if c.Pending() {
		t.Fatal("no interrupt should be pending until IE enables VBlank")
	}
	c.SetIE(1 << uint(VBlank))
	if !c.Pending() {
		t.Fatal("interrupt should be pending once IME=1 and IE&IF overlap")
	}
}
