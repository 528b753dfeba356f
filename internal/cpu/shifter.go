package cpu

// ShiftType enumerates the four barrel-shifter operations encoded in bits
// [6:5] of a shifted-register operand.
type ShiftType int

const (
	ShiftLSL ShiftType = iota
	ShiftLSR
	ShiftASR
	ShiftROR
)

// shiftImmediate applies a shift with an immediate amount, per the ARMv4T
// data-processing operand-2 contract: LSL #0 is a no-op that preserves the
// incoming carry; LSR #0 and ASR #0 are encoded forms of #32; ROR #0 is RRX.
func shiftImmediate(t ShiftType, value uint32, amount uint, carryIn bool) (result uint32, carryOut bool) {
	switch t {
	case ShiftLSL:
		if amount == 0 {
			return value, carryIn
		}
		return value << amount, (value>>(32-amount))&1 != 0
	case ShiftLSR:
		if amount == 0 {
			amount = 32
		}
		return shiftLSR(value, amount)
	case ShiftASR:
		if amount == 0 {
			amount = 32
		}
		return shiftASR(value, amount)
	case ShiftROR:
		if amount == 0 {
			// RRX: rotate right by 1 through carry.
			out := value&1 != 0
			res := value >> 1
			if carryIn {
				res |= 0x80000000
			}
			return res, out
		}
		return shiftROR(value, amount)
	}
	return value, carryIn
}

// shiftRegister applies a shift whose amount comes from the bottom byte of a
// register, per the register-specified-shift contract: amount 0 is a no-op
// on value and carry for every shift type; amounts above 32 saturate.
func shiftRegister(t ShiftType, value uint32, amount uint, carryIn bool) (result uint32, carryOut bool) {
	if amount == 0 {
		return value, carryIn
	}
	switch t {
	case ShiftLSL:
		switch {
		case amount < 32:
			return value << amount, (value>>(32-amount))&1 != 0
		case amount == 32:
			return 0, value&1 != 0
		default:
			return 0, false
		}
	case ShiftLSR:
		switch {
		case amount < 32:
			return shiftLSR(value, amount)
		case amount == 32:
			return 0, value&0x80000000 != 0
		default:
			return 0, false
		}
	case ShiftASR:
		if amount >= 32 {
			amount = 32
		}
		return shiftASR(value, amount)
	case ShiftROR:
		amount %= 32
		if amount == 0 {
			return value, value&0x80000000 != 0
		}
		return shiftROR(value, amount)
	}
	return value, carryIn
}

func shiftLSR(value uint32, amount uint) (uint32, bool) {
	carry := (value>>(amount-1))&1 != 0
	return value >> amount, carry
}

func shiftASR(value uint32, amount uint) (uint32, bool) {
	signed := int32(value)
	carry := (value>>(amount-1))&1 != 0
	return uint32(signed >> amount), carry
}

func shiftROR(value uint32, amount uint) (uint32, bool) {
	amount %= 32
	if amount == 0 {
		return value, value&0x80000000 != 0
	}
	res := (value >> amount) | (value << (32 - amount))
	carry := (value>>(amount-1))&1 != 0
	return res, carry
}

// rotateRight32 rotates a 32-bit word, used for the data-processing rotated
// immediate operand and for misaligned-word-load rotation.
func rotateRight32(value uint32, amount uint) uint32 {
	amount %= 32
	if amount == 0 {
		return value
	}
	return (value >> amount) | (value << (32 - amount))
}
