// Package dma implements the GBA's four DMA channels: immediate, VBlank,
// HBlank, and special (audio-FIFO-refill / video-capture) triggers.
package dma

import (
	"bytes"
	"encoding/gob"
)

// Bus is the subset of the memory bus a DMA transfer needs. It mirrors
// cpu.Bus's narrow-interface seam so this package never imports internal/bus.
type Bus interface {
	Read16(addr uint32) uint16
	Write16(addr uint32, v uint16)
	Read32(addr uint32) uint32
	Write32(addr uint32, v uint32)
}

// Adjust enumerates the address-adjust modes for a DMA channel's source or
// destination.
type Adjust int

const (
	AdjustInc Adjust = iota
	AdjustDec
	AdjustFixed
	AdjustIncReload // destination-only
)

// Timing enumerates a channel's trigger source.
type Timing int

const (
	TimingImmediate Timing = iota
	TimingVBlank
	TimingHBlank
	TimingSpecial
)

var srcAddrMask = [4]uint32{0x07FFFFFF, 0x0FFFFFFF, 0x0FFFFFFF, 0x0FFFFFFF}
var dstAddrMask = [4]uint32{0x07FFFFFF, 0x07FFFFFF, 0x07FFFFFF, 0x0FFFFFFF}

// Channel holds one DMA channel's latched and live register state.
type Channel struct {
	srcLatch, dstLatch uint32
	countLatch         uint32

	curSrc, curDst uint32
	curCount       uint32

	srcAdjust  Adjust
	dstAdjust  Adjust
	repeat     bool
	is32       bool
	timing     Timing
	irqOnDone  bool
	enabled    bool
}

// Bank owns all four channels and the bus/IRQ wiring needed to execute a
// transfer and report completion.
type Bank struct {
	ch    [4]Channel
	bus   Bus
	onIRQ func(channel int)
}

// NewBank constructs a Bank. onIRQ is called with the channel index when a
// completed transfer has its IRQ-on-done bit set.
func NewBank(bus Bus, onIRQ func(channel int)) *Bank {
	return &Bank{bus: bus, onIRQ: onIRQ}
}

// WriteSrc latches a channel's source address (DMAxSAD).
func (b *Bank) WriteSrc(ch int, v uint32) { b.ch[ch].srcLatch = v }

// WriteDst latches a channel's destination address (DMAxDAD).
func (b *Bank) WriteDst(ch int, v uint32) { b.ch[ch].dstLatch = v }

// WriteCount latches a channel's transfer count (DMAxCNT_L). 0 means the
// hardware maximum: 0x4000 for channels 0-2, 0x10000 for channel 3.
func (b *Bank) WriteCount(ch int, v uint16) { b.ch[ch].countLatch = uint32(v) }

// ReadControl packs a channel's control word (DMAxCNT_H) for MMIO reads.
func (b *Bank) ReadControl(ch int) uint16 {
	c := &b.ch[ch]
	v := uint16(c.dstAdjust&0x3) << 5
	v |= uint16(c.srcAdjust&0x3) << 7
	if c.repeat {
		v |= 1 << 9
	}
	if c.is32 {
		v |= 1 << 10
	}
	v |= uint16(c.timing&0x3) << 12
	if c.irqOnDone {
		v |= 1 << 14
	}
	if c.enabled {
		v |= 1 << 15
	}
	return v
}

// WriteControl writes DMAxCNT_H, decoding every control field and, on an
// enable rising edge, copying the latches into the live current-source/
// current-dest/current-count registers and (for timing=immediate) executing
// the transfer synchronously.
func (b *Bank) WriteControl(ch int, v uint16) {
	c := &b.ch[ch]
	wasEnabled := c.enabled

	c.dstAdjust = Adjust((v >> 5) & 0x3)
	c.srcAdjust = Adjust((v >> 7) & 0x3)
	c.repeat = v&(1<<9) != 0
	c.is32 = v&(1<<10) != 0
	c.timing = Timing((v >> 12) & 0x3)
	c.irqOnDone = v&(1<<14) != 0
	c.enabled = v&(1<<15) != 0

	if c.enabled && !wasEnabled {
		c.curSrc = c.srcLatch & srcAddrMask[ch]
		c.curDst = c.dstLatch & dstAddrMask[ch]
		c.curCount = c.countLatch
		if c.curCount == 0 {
			if ch == 3 {
				c.curCount = 0x10000
			} else {
				c.curCount = 0x4000
			}
		}
		if c.timing == TimingImmediate {
			b.run(ch)
		}
	}
}

// TriggerVBlank runs every enabled channel armed for the VBlank trigger.
// Called by the scheduler when VCOUNT reaches 160.
func (b *Bank) TriggerVBlank() {
	for ch := 0; ch < 4; ch++ {
		if b.ch[ch].enabled && b.ch[ch].timing == TimingVBlank {
			b.run(ch)
		}
	}
}

// TriggerHBlank runs every enabled channel armed for the HBlank trigger.
// Callers must only invoke this for visible scanlines (VCOUNT<160).
func (b *Bank) TriggerHBlank() {
	for ch := 0; ch < 4; ch++ {
		if b.ch[ch].enabled && b.ch[ch].timing == TimingHBlank {
			b.run(ch)
		}
	}
}

// TriggerFifo runs the audio-FIFO-refill transfer for DMA channel 1 or 2 if
// it is armed for the special trigger, forcing the documented 4-word,
// 32-bit, fixed-destination shape regardless of the channel's own count and
// destination-adjust fields. Called by internal/apu when a FIFO empties
// below its low-water mark.
func (b *Bank) TriggerFifo(ch int) {
	if ch != 1 && ch != 2 {
		return
	}
	c := &b.ch[ch]
	if !c.enabled || c.timing != TimingSpecial {
		return
	}
	b.runFifo(ch)
}

// run executes a channel's configured transfer in full, applying the
// documented post-transfer bookkeeping (reload-on-inc+reload, repeat vs.
// enable-clear, IRQ-on-done).
func (b *Bank) run(ch int) {
	c := &b.ch[ch]
	unitBytes := uint32(2)
	if c.is32 {
		unitBytes = 4
	}

	for i := uint32(0); i < c.curCount; i++ {
		if c.is32 {
			b.bus.Write32(c.curDst, b.bus.Read32(c.curSrc))
		} else {
			b.bus.Write16(c.curDst, b.bus.Read16(c.curSrc))
		}
		c.curSrc = adjustAddr(c.curSrc, c.srcAdjust, unitBytes) & srcAddrMask[ch]
		c.curDst = adjustAddr(c.curDst, c.dstAdjust, unitBytes) & dstAddrMask[ch]
	}

	b.finish(ch)
}

// runFifo executes the forced 4-unit 32-bit fixed-destination audio refill
// transfer, leaving the channel's own count/adjust/width fields untouched
// for its next ordinary trigger.
func (b *Bank) runFifo(ch int) {
	c := &b.ch[ch]
	dst := c.curDst
	for i := 0; i < 4; i++ {
		b.bus.Write32(dst, b.bus.Read32(c.curSrc))
		c.curSrc = adjustAddr(c.curSrc, c.srcAdjust, 4) & srcAddrMask[ch]
	}
	// FIFO transfers never clear enable or fire IRQ: they are a side
	// transfer, not the channel's own completion.
}

// finish applies the inc+reload destination reload and the repeat/enable
// and IRQ-on-done bookkeeping shared by every non-FIFO transfer.
func (b *Bank) finish(ch int) {
	c := &b.ch[ch]
	if c.dstAdjust == AdjustIncReload {
		c.curDst = c.dstLatch & dstAddrMask[ch]
	}
	if !c.repeat {
		c.enabled = false
	} else {
		c.curCount = c.countLatch
		if c.curCount == 0 {
			if ch == 3 {
				c.curCount = 0x10000
			} else {
				c.curCount = 0x4000
			}
		}
	}
	if c.irqOnDone && b.onIRQ != nil {
		b.onIRQ(ch)
	}
}

func adjustAddr(addr uint32, adj Adjust, unitBytes uint32) uint32 {
	switch adj {
	case AdjustInc, AdjustIncReload:
		return addr + unitBytes
	case AdjustDec:
		return addr - unitBytes
	default: // AdjustFixed
		return addr
	}
}

// Enabled reports whether channel ch is currently armed (used by tests and
// by save-state round-tripping).
func (b *Bank) Enabled(ch int) bool { return b.ch[ch].enabled }

// channelState/bankState are the gob-serializable snapshot shapes.
type channelState struct {
	SrcLatch, DstLatch, CountLatch uint32
	CurSrc, CurDst, CurCount       uint32
	SrcAdjust, DstAdjust           Adjust
	Repeat, Is32, IRQOnDone, Enabled bool
	Timing                         Timing
}

type bankState struct {
	Channels [4]channelState
}

// SaveState returns the bank's gob-encoded snapshot.
func (b *Bank) SaveState() []byte {
	var s bankState
	for i, c := range b.ch {
		s.Channels[i] = channelState{
			SrcLatch: c.srcLatch, DstLatch: c.dstLatch, CountLatch: c.countLatch,
			CurSrc: c.curSrc, CurDst: c.curDst, CurCount: c.curCount,
			SrcAdjust: c.srcAdjust, DstAdjust: c.dstAdjust,
			Repeat: c.repeat, Is32: c.is32, IRQOnDone: c.irqOnDone, Enabled: c.enabled,
			Timing: c.timing,
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
	for i, cs := range s.Channels {
		b.ch[i] = Channel{
			srcLatch: cs.SrcLatch, dstLatch: cs.DstLatch, countLatch: cs.CountLatch,
			curSrc: cs.CurSrc, curDst: cs.CurDst, curCount: cs.CurCount,
			srcAdjust: cs.SrcAdjust, dstAdjust: cs.DstAdjust,
			repeat: cs.Repeat, is32: cs.Is32, irqOnDone: cs.IRQOnDone, enabled: cs.Enabled,
			timing: cs.Timing,
		}
	}
}
