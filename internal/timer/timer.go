// Package timer implements the GBA's four cascadable 16-bit timers.
package timer

import (
	"bytes"
	"encoding/gob"
)

// prescalerDivisors maps TAC-style select bits 0..3 to their cycle divisor,
// same table shape as the teacher's DIV/TIMA falling-edge divisor switch in
// internal/bus/bus.go, widened from the DMG's single four-way select to one
// per channel.
var prescalerDivisors = [4]int{1, 64, 256, 1024}

// Timer holds one channel's live register state.
type Timer struct {
	enable    bool
	cascade   bool
	irqEnable bool
	prescaler uint8 // 0..3, indexes prescalerDivisors

	reload  uint16
	counter uint16
	accum   int // cycles accumulated toward the next prescaler tick
}

// Bank owns all four timers and the cross-channel cascade/overflow wiring.
// onOverflow(n) is called when timer n overflows, after its own reload and
// cascade walk, so the caller (internal/irq, internal/apu via DMA FIFO
// refill) can react; it mirrors the teacher's IF-bit-raising closure pattern
// used for PPU interrupts in internal/bus/bus.go.
type Bank struct {
	t          [4]Timer
	onOverflow func(channel int)
}

// NewBank constructs a Bank wired to onOverflow, called once per channel
// overflow (after reload, before the cascade walk notifies higher channels).
func NewBank(onOverflow func(channel int)) *Bank {
	return &Bank{onOverflow: onOverflow}
}

// Read returns a channel's live counter value (TMxCNT_L reads live, per
// spec.md §4.1's "each timer's counter (read live)").
func (b *Bank) Read(channel int) uint16 { return b.t[channel].counter }

// ReadControl packs a channel's control word (TMxCNT_H): bits 0-1 prescaler
// select, bit 2 cascade, bit 6 IRQ-enable, bit 7 enable.
func (b *Bank) ReadControl(channel int) uint16 {
	t := &b.t[channel]
	v := uint16(t.prescaler & 0x3)
	if t.cascade {
		v |= 1 << 2
	}
	if t.irqEnable {
		v |= 1 << 6
	}
	if t.enable {
		v |= 1 << 7
	}
	return v
}

// WriteReload latches TMxCNT_L; it only takes effect on the next enable
// rising edge or the next overflow reload, matching real hardware (writing
// reload does not retroactively change a running counter).
func (b *Bank) WriteReload(channel int, v uint16) {
	b.t[channel].reload = v
}

// WriteControl writes TMxCNT_H, detecting the enable rising edge that
// reloads the counter and clears the prescaler accumulator.
func (b *Bank) WriteControl(channel int, v uint16) {
	t := &b.t[channel]
	wasEnabled := t.enable
	t.prescaler = uint8(v & 0x3)
	t.cascade = v&(1<<2) != 0
	t.irqEnable = v&(1<<6) != 0
	t.enable = v&(1<<7) != 0
	if t.enable && !wasEnabled {
		t.counter = t.reload
		t.accum = 0
	}
}

// Tick advances every non-cascade, enabled timer by cycles CPU cycles. Cascade
// timers never accumulate cycles directly; they only advance when their
// preceding channel overflows (see overflow).
func (b *Bank) Tick(cycles int) {
	for ch := 0; ch < 4; ch++ {
		t := &b.t[ch]
		if !t.enable || t.cascade {
			continue
		}
		b.advance(ch, cycles)
	}
}

// advance accumulates cycles toward channel ch's prescaler and increments
// its counter (recursively handling overflow/reload/cascade) as many times
// as the accumulated cycles demand.
func (b *Bank) advance(ch int, cycles int) {
	t := &b.t[ch]
	divisor := prescalerDivisors[t.prescaler&0x3]
	t.accum += cycles
	for t.accum >= divisor {
		t.accum -= divisor
		b.increment(ch)
	}
}

// increment bumps channel ch's counter by one, handling overflow: reload,
// IRQ request, overflow notification, then cascade into ch+1.
func (b *Bank) increment(ch int) {
	t := &b.t[ch]
	t.counter++
	if t.counter != 0 {
		return
	}
	t.counter = t.reload
	if b.onOverflow != nil {
		b.onOverflow(ch)
	}
	b.cascadeInto(ch + 1)
}

// cascadeInto walks the cascade chain starting at channel ch: while the
// channel is enabled-and-cascade, it is incremented by one (which itself may
// overflow and recurse into ch+1). The chain stops at the first non-cascade
// timer or after channel 3.
func (b *Bank) cascadeInto(ch int) {
	if ch > 3 {
		return
	}
	t := &b.t[ch]
	if !t.enable || !t.cascade {
		return
	}
	b.increment(ch)
}

// bankState is the gob-serializable snapshot for save states.
type timerState struct {
	Enable, Cascade, IRQEnable bool
	Prescaler                  uint8
	Reload, Counter            uint16
	Accum                      int
}

type bankState struct {
	Timers [4]timerState
}

// SaveState returns the bank's gob-encoded snapshot.
func (b *Bank) SaveState() []byte {
	var s bankState
	for i, t := range b.t {
		s.Timers[i] = timerState{
			Enable: t.enable, Cascade: t.cascade, IRQEnable: t.irqEnable,
			Prescaler: t.prescaler, Reload: t.reload, Counter: t.counter, Accum: t.accum,
		}
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState.
func (b *Bank) LoadState(data []byte) {
	var s bankState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	for i, ts := range s.Timers {
		b.t[i] = Timer{
			enable: ts.Enable, cascade: ts.Cascade, irqEnable: ts.IRQEnable,
			prescaler: ts.Prescaler, reload: ts.Reload, counter: ts.Counter, accum: ts.Accum,
		}
	}
}

// IRQEnabled reports whether channel ch currently has its IRQ-enable bit
// set, used by the owner to decide whether to request the Timer-N interrupt
// from onOverflow.
func (b *Bank) IRQEnabled(ch int) bool { return b.t[ch].irqEnable }
