package cpu

// Mode is the 5-bit processor mode field of CPSR.
type Mode uint32

const (
	ModeUSR Mode = 0x10
	ModeFIQ Mode = 0x11
	ModeIRQ Mode = 0x12
	ModeSVC Mode = 0x13
	ModeABT Mode = 0x17
	ModeUND Mode = 0x1B
	ModeSYS Mode = 0x1F
)

// CPSR/SPSR bit layout.
const (
	flagN uint32 = 1 << 31
	flagZ uint32 = 1 << 30
	flagC uint32 = 1 << 29
	flagV uint32 = 1 << 28
	flagI uint32 = 1 << 7
	flagF uint32 = 1 << 6
	flagT uint32 = 1 << 5
	modeMask uint32 = 0x1F
)

// bank identifies a register-banking slot. USR and SYS share one slot: they
// have no private R8-R14 of their own beyond the one set used by both.
type bank int

const (
	bankUSR bank = iota
	bankFIQ
	bankSVC
	bankABT
	bankIRQ
	bankUND
	numBanks
)

func bankForMode(m Mode) bank {
	switch m {
	case ModeFIQ:
		return bankFIQ
	case ModeSVC:
		return bankSVC
	case ModeABT:
		return bankABT
	case ModeIRQ:
		return bankIRQ
	case ModeUND:
		return bankUND
	default: // ModeUSR, ModeSYS, and any stray value
		return bankUSR
	}
}

// Registers holds the visible R0-R15, CPSR, and the banked storage for the
// inactive modes' private R8-R14 and SPSR. Only R13/R14 (and, for FIQ,
// R8-R12) are ever banked; the active mode's copies always live in r[8:15].
type Registers struct {
	r    [16]uint32
	cpsr uint32

	bankedR13     [numBanks]uint32
	bankedR14     [numBanks]uint32
	bankedR8_12   [5]uint32 // normal (non-FIQ) R8-R12, held while FIQ is active
	fiqR8_12      [5]uint32 // FIQ's private R8-R12, held while any other mode is active
	spsr          [numBanks]uint32
}

// Reset puts the register file into the documented post-skip_bios state.
// Callers that want the raw power-on state should zero a Registers value
// and call SwitchMode(ModeSVC) then set PC/CPSR directly instead.
func (r *Registers) Reset() {
	*r = Registers{}
	r.cpsr = uint32(ModeSVC)
}

func (r *Registers) Mode() Mode { return Mode(r.cpsr & modeMask) }

func (r *Registers) Thumb() bool { return r.cpsr&flagT != 0 }
func (r *Registers) SetThumb(t bool) {
	if t {
		r.cpsr |= flagT
	} else {
		r.cpsr &^= flagT
	}
}

func (r *Registers) IRQDisabled() bool { return r.cpsr&flagI != 0 }
func (r *Registers) SetIRQDisabled(v bool) {
	if v {
		r.cpsr |= flagI
	} else {
		r.cpsr &^= flagI
	}
}

func (r *Registers) FIQDisabled() bool { return r.cpsr&flagF != 0 }
func (r *Registers) SetFIQDisabled(v bool) {
	if v {
		r.cpsr |= flagF
	} else {
		r.cpsr &^= flagF
	}
}

func (r *Registers) N() bool { return r.cpsr&flagN != 0 }
func (r *Registers) Z() bool { return r.cpsr&flagZ != 0 }
func (r *Registers) C() bool { return r.cpsr&flagC != 0 }
func (r *Registers) V() bool { return r.cpsr&flagV != 0 }

func (r *Registers) SetNZCV(n, z, c, v bool) {
	var f uint32
	if n {
		f |= flagN
	}
	if z {
		f |= flagZ
	}
	if c {
		f |= flagC
	}
	if v {
		f |= flagV
	}
	r.cpsr = (r.cpsr &^ (flagN | flagZ | flagC | flagV)) | f
}

func (r *Registers) SetNZ(v uint32) {
	r.SetNZC(v, r.C())
}

func (r *Registers) SetNZC(v uint32, c bool) {
	n := v&0x80000000 != 0
	z := v == 0
	r.SetNZCV(n, z, c, r.V())
}

// CPSR returns the raw packed word.
func (r *Registers) CPSR() uint32 { return r.cpsr }

// SetCPSR installs a raw CPSR word, performing the mode switch (register
// banking) implied by any change to the mode field.
func (r *Registers) SetCPSR(v uint32) {
	newMode := Mode(v & modeMask)
	if newMode != r.Mode() {
		r.switchBank(newMode)
	}
	r.cpsr = v
}

// HasSPSR reports whether the current mode owns a saved-PSR slot.
func (r *Registers) HasSPSR() bool { return bankForMode(r.Mode()) != bankUSR }

func (r *Registers) SPSR() uint32 { return r.spsr[bankForMode(r.Mode())] }

func (r *Registers) SetSPSR(v uint32) {
	if b := bankForMode(r.Mode()); b != bankUSR {
		r.spsr[b] = v
	}
}

// SwitchMode changes CPSR's mode field, banking R13/R14 (and R8-R12 for FIQ)
// as required. It does not touch any other CPSR bit.
func (r *Registers) SwitchMode(newMode Mode) {
	if newMode == r.Mode() {
		return
	}
	r.switchBank(newMode)
	r.cpsr = (r.cpsr &^ modeMask) | uint32(newMode)
}

// switchBank performs the register-file swap for a mode transition without
// touching CPSR itself (the caller installs the new mode bits).
func (r *Registers) switchBank(newMode Mode) {
	oldMode := r.Mode()
	oldBank := bankForMode(oldMode)
	newBank := bankForMode(newMode)

	r.bankedR13[oldBank] = r.r[13]
	r.bankedR14[oldBank] = r.r[14]

	wasFIQ := oldMode == ModeFIQ
	willBeFIQ := newMode == ModeFIQ
	switch {
	case wasFIQ && !willBeFIQ:
		copy(r.fiqR8_12[:], r.r[8:13])
		copy(r.r[8:13], r.bankedR8_12[:])
	case !wasFIQ && willBeFIQ:
		copy(r.bankedR8_12[:], r.r[8:13])
		copy(r.r[8:13], r.fiqR8_12[:])
	}

	r.r[13] = r.bankedR13[newBank]
	r.r[14] = r.bankedR14[newBank]
}

// R reads a visible register, substituting the PC-relative read-ahead value
// callers must supply separately when r==15 (see CPU.readR for that).
func (r *Registers) R(n int) uint32 { return r.r[n] }
func (r *Registers) SetR(n int, v uint32) { r.r[n] = v }
