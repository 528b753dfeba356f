package timer

import "testing"

func TestCascadeIncrementsOnOverflow(t *testing.T) {
	b := NewBank(nil)
	// Timer0: prescaler=1 (divisor 1), reload=0xFFFE, enabled.
	b.WriteReload(0, 0xFFFE)
	b.WriteControl(0, 1<<7) // prescaler select 0 (divisor 1), enable
	// Timer1: cascade + enabled.
	b.WriteControl(1, 1<<2|1<<7)

	b.Tick(4)

	if got := b.Read(1); got != 2 {
		t.Fatalf("timer1 counter after 4 cycles = %d, want 2", got)
	}
}

func TestOverflowFiresCallbackAndReloads(t *testing.T) {
	fired := -1
	b := NewBank(func(ch int) { fired = ch })
	b.WriteReload(0, 0xFFFF)
	b.WriteControl(0, 1<<7)

	b.Tick(1)

	if fired != 0 {
		t.Fatalf("onOverflow channel = %d, want 0", fired)
	}
	if got := b.Read(0); got != 0xFFFF {
		t.Fatalf("counter after overflow = %#x, want reload value 0xFFFF", got)
	}
}

func TestEnableRisingEdgeReloadsCounterAndClearsAccumulator(t *testing.T) {
	b := NewBank(nil)
	b.WriteReload(0, 0x1234)
	b.WriteControl(0, 1<<7)
	if got := b.Read(0); got != 0x1234 {
		t.Fatalf("counter after enable = %#x, want reload 0x1234", got)
	}
}

func TestDisabledTimerDoesNotAccumulate(t *testing.T) {
	b := NewBank(nil)
	b.WriteReload(0, 0)
	b.Tick(1000) // never enabled
	if got := b.Read(0); got != 0 {
		t.Fatalf("disabled timer counter = %d, want 0", got)
	}
}

func TestCascadeChainStopsAtNonCascadeTimer(t *testing.T) {
	fired := []int{}
	b := NewBank(func(ch int) { fired = append(fired, ch) })
	b.WriteReload(0, 0xFFFF)
	b.WriteControl(0, 1<<7)
	b.WriteReload(1, 0xFFFF)
	b.WriteControl(1, 1<<2|1<<7) // cascade
	b.WriteReload(2, 0xFFFF)
	b.WriteControl(2, 1<<7) // enabled but NOT cascade

	b.Tick(1) // overflows timer0, cascades into timer1 only

	if len(fired) != 2 || fired[0] != 0 || fired[1] != 1 {
		t.Fatalf("overflow callbacks = %v, want [0 1] (chain stops before non-cascade timer2)", fired)
	}
}
