package cpu

// bits extracts an inclusive [hi:lo] bitfield.
func bits(v uint32, hi, lo uint) uint32 {
	return (v >> lo) & ((uint32(1) << (hi - lo + 1)) - 1)
}

func signExtend(v uint32, signBit uint) uint32 {
	mask := uint32(1) << signBit
	v &= (mask << 1) - 1
	if v&mask != 0 {
		return v | ^((mask << 1) - 1)
	}
	return v
}

// branchTo redirects execution to target, adjusting for the current state
// bit's alignment and invalidating the pipeline. Callers that also exchange
// state (BX) must set the T bit before calling this so the fetch-base is
// computed for the new state.
func (c *CPU) branchTo(target uint32) {
	if c.Thumb() {
		target &^= 1
		c.r[15] = target + 4
	} else {
		target &^= 3
		c.r[15] = target + 8
	}
	c.invalidate()
}

// execARM decodes and executes one ARM instruction, in the fixed priority
// order documented for the ARM decoder. It returns the cycle cost and
// whether the pipeline was invalidated by this instruction.
func (c *CPU) execARM(instr uint32, pc uint32) (int, bool) {
	cond := bits(instr, 31, 28)
	if !c.condPass(cond) {
		return 1, false
	}

	switch {
	case bits(instr, 27, 24) == 0xF:
		return c.armSWI(pc)
	case bits(instr, 27, 25) == 0b101:
		return c.armBranch(instr, pc)
	case bits(instr, 27, 25) == 0b100:
		return c.armBlockTransfer(instr)
	case bits(instr, 27, 25) == 0b011 && instr&0x10 != 0:
		return c.armUndefined()
	case bits(instr, 27, 26) == 0b01:
		return c.armSingleTransfer(instr, pc)
	case instr&0x0FFFFFF0 == 0x012FFF10:
		return c.armBX(instr)
	case bits(instr, 27, 23) == 0b00010 && bits(instr, 21, 20) == 0 && instr&0xF0 == 0x90:
		return c.armSWP(instr)
	case bits(instr, 27, 23) == 0b00001 && instr&0xF0 == 0x90:
		return c.armMulLong(instr)
	case bits(instr, 27, 22) == 0 && instr&0xF0 == 0x90:
		return c.armMul(instr)
	case bits(instr, 27, 25) == 0 && instr&0x90 == 0x90 && bits(instr, 6, 5) != 0:
		return c.armHalfwordTransfer(instr, pc)
	case bits(instr, 27, 26) == 0 && bits(instr, 24, 23) == 0b10 && bits(instr, 20, 20) == 0:
		return c.armPSRTransfer(instr)
	default:
		return c.armDataProcessing(instr, pc)
	}
}

func (c *CPU) armSWI(pc uint32) (int, bool) {
	c.enterSWI(pc + 4)
	return 2, true
}

func (c *CPU) armUndefined() (int, bool) {
	// Acknowledged approximation: real hardware traps to the UND vector;
	// this interpreter logs nothing (the emu layer owns diagnostics) and
	// treats it as a no-op, per the documented recoverable-error tier.
	return 1, false
}

func (c *CPU) armBranch(instr uint32, pc uint32) (int, bool) {
	link := bits(instr, 24, 24) != 0
	offset := int32(signExtend(bits(instr, 23, 0), 23)) << 2
	target := uint32(int32(pc+8) + offset)
	if link {
		c.r[14] = pc + 4
	}
	c.branchTo(target)
	return 3, true
}

func (c *CPU) armBX(instr uint32) (int, bool) {
	rm := int(bits(instr, 3, 0))
	target := c.readR(rm)
	c.SetThumb(target&1 != 0)
	c.branchTo(target)
	return 3, true
}

// armDataProcessing implements the 16 ALU opcodes over an immediate or
// shifted-register operand-2.
func (c *CPU) armDataProcessing(instr uint32, pc uint32) (int, bool) {
	immediate := bits(instr, 25, 25) != 0
	opcode := bits(instr, 24, 21)
	s := bits(instr, 20, 20) != 0
	rn := int(bits(instr, 19, 16))
	rd := int(bits(instr, 15, 12))

	var op2 uint32
	var shiftCarry bool
	carryIn := c.C()

	if immediate {
		imm8 := bits(instr, 7, 0)
		rot := bits(instr, 11, 8) * 2
		op2 = rotateRight32(imm8, uint(rot))
		if rot == 0 {
			shiftCarry = carryIn
		} else {
			shiftCarry = op2&0x80000000 != 0
		}
	} else {
		rm := int(bits(instr, 3, 0))
		shiftType := ShiftType(bits(instr, 6, 5))
		if bits(instr, 4, 4) != 0 {
			// Register-specified shift amount, from the bottom byte of Rs.
			rs := int(bits(instr, 11, 8))
			amount := uint(c.R(rs) & 0xFF)
			val := c.readR(rm)
			if rm == 15 {
				val = c.r[15] + 4 // Rm=R15 with register-shift reads PC+4 more.
			}
			op2, shiftCarry = shiftRegister(shiftType, val, amount, carryIn)
		} else {
			amount := uint(bits(instr, 11, 7))
			op2, shiftCarry = shiftImmediate(shiftType, c.readR(rm), amount, carryIn)
		}
	}

	opnd1 := c.readR(rn)
	var result uint32
	var writesResult = true
	var logical bool

	switch opcode {
	case 0x0: // AND
		result = opnd1 & op2
		logical = true
	case 0x1: // EOR
		result = opnd1 ^ op2
		logical = true
	case 0x2: // SUB
		result = opnd1 - op2
	case 0x3: // RSB
		result = op2 - opnd1
	case 0x4: // ADD
		result = opnd1 + op2
	case 0x5: // ADC
		result = opnd1 + op2 + b2u(carryIn)
	case 0x6: // SBC
		result = opnd1 - op2 - (1 - b2u(carryIn))
	case 0x7: // RSC
		result = op2 - opnd1 - (1 - b2u(carryIn))
	case 0x8: // TST
		result = opnd1 & op2
		logical = true
		writesResult = false
		s = true
	case 0x9: // TEQ
		result = opnd1 ^ op2
		logical = true
		writesResult = false
		s = true
	case 0xA: // CMP
		result = opnd1 - op2
		writesResult = false
		s = true
	case 0xB: // CMN
		result = opnd1 + op2
		writesResult = false
		s = true
	case 0xC: // ORR
		result = opnd1 | op2
		logical = true
	case 0xD: // MOV
		result = op2
		logical = true
	case 0xE: // BIC
		result = opnd1 &^ op2
		logical = true
	case 0xF: // MVN
		result = ^op2
		logical = true
	}

	invalidated := false
	if writesResult {
		if rd == 15 {
			if s {
				if c.HasSPSR() {
					c.SetCPSR(c.SPSR())
				}
			}
			c.branchTo(result)
			invalidated = true
		} else {
			c.r[rd] = result
		}
	}

	if s && rd != 15 {
		if logical {
			c.SetNZC(result, shiftCarry)
		} else {
			switch opcode {
			case 0x2, 0xA: // SUB, CMP
				carry := opnd1 >= op2
				overflow := addOverflow(opnd1, ^op2+1, result) // sub overflow via two's complement add
				c.SetNZCV(result&0x80000000 != 0, result == 0, carry, subOverflow(opnd1, op2, result))
				_ = overflow
			case 0x3: // RSB
				carry := op2 >= opnd1
				c.SetNZCV(result&0x80000000 != 0, result == 0, carry, subOverflow(op2, opnd1, result))
			case 0x4, 0xB: // ADD, CMN
				carry := uint64(opnd1)+uint64(op2) > 0xFFFFFFFF
				c.SetNZCV(result&0x80000000 != 0, result == 0, carry, addOverflow(opnd1, op2, result))
			case 0x5: // ADC
				carry := uint64(opnd1)+uint64(op2)+uint64(b2u(carryIn)) > 0xFFFFFFFF
				c.SetNZCV(result&0x80000000 != 0, result == 0, carry, addOverflow(opnd1, op2, result))
			case 0x6: // SBC
				borrow := uint64(opnd1) - uint64(op2) - uint64(1-b2u(carryIn))
				carry := opnd1 >= op2+(1-b2u(carryIn))
				c.SetNZCV(result&0x80000000 != 0, result == 0, carry, subOverflow(opnd1, op2, result))
				_ = borrow
			case 0x7: // RSC
				carry := op2 >= opnd1+(1-b2u(carryIn))
				c.SetNZCV(result&0x80000000 != 0, result == 0, carry, subOverflow(op2, opnd1, result))
			}
		}
	}

	cycles := 1
	if !immediate && bits(instr, 4, 4) != 0 {
		cycles++ // register-specified shift costs an extra internal cycle
	}
	if rd == 15 {
		cycles += 2
	}
	return cycles, invalidated
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func addOverflow(a, b, result uint32) bool {
	return (a^result)&(b^result)&0x80000000 != 0
}

func subOverflow(a, b, result uint32) bool {
	return (a^b)&(a^result)&0x80000000 != 0
}

func (c *CPU) armPSRTransfer(instr uint32) (int, bool) {
	useSPSR := bits(instr, 22, 22) != 0
	if bits(instr, 21, 21) == 0 {
		// MRS Rd, CPSR|SPSR
		rd := int(bits(instr, 15, 12))
		if useSPSR {
			c.r[rd] = c.SPSR()
		} else {
			c.r[rd] = c.CPSR()
		}
		return 1, false
	}

	// MSR CPSR|SPSR, operand (field mask in bits 19-16)
	var op uint32
	if bits(instr, 25, 25) != 0 {
		imm8 := bits(instr, 7, 0)
		rot := bits(instr, 11, 8) * 2
		op = rotateRight32(imm8, uint(rot))
	} else {
		rm := int(bits(instr, 3, 0))
		op = c.readR(rm)
	}

	fieldMask := bits(instr, 19, 16)
	var mask uint32
	if fieldMask&0x1 != 0 {
		mask |= 0x000000FF // control field (mode, T, I, F) - writable only in privileged modes; approximated as always writable
	}
	if fieldMask&0x2 != 0 {
		mask |= 0x0000FF00
	}
	if fieldMask&0x4 != 0 {
		mask |= 0x00FF0000
	}
	if fieldMask&0x8 != 0 {
		mask |= 0xFF000000
	}

	if useSPSR {
		if c.HasSPSR() {
			c.SetSPSR((c.SPSR() &^ mask) | (op & mask))
		}
		return 1, false
	}

	newCPSR := (c.CPSR() &^ mask) | (op & mask)
	c.SetCPSR(newCPSR)
	return 1, false
}

func (c *CPU) armMul(instr uint32) (int, bool) {
	rd := int(bits(instr, 19, 16))
	rn := int(bits(instr, 15, 12))
	rs := int(bits(instr, 11, 8))
	rm := int(bits(instr, 3, 0))
	accumulate := bits(instr, 21, 21) != 0
	s := bits(instr, 20, 20) != 0

	result := c.R(rm) * c.R(rs)
	if accumulate {
		result += c.R(rn)
	}
	c.r[rd] = result
	if s {
		c.SetNZC(result, c.C())
	}
	return 2, false
}

func (c *CPU) armMulLong(instr uint32) (int, bool) {
	rdHi := int(bits(instr, 19, 16))
	rdLo := int(bits(instr, 15, 12))
	rs := int(bits(instr, 11, 8))
	rm := int(bits(instr, 3, 0))
	signed := bits(instr, 22, 22) != 0
	accumulate := bits(instr, 21, 21) != 0
	s := bits(instr, 20, 20) != 0

	var result uint64
	if signed {
		result = uint64(int64(int32(c.R(rm))) * int64(int32(c.R(rs))))
	} else {
		result = uint64(c.R(rm)) * uint64(c.R(rs))
	}
	if accumulate {
		result += uint64(c.R(rdHi))<<32 | uint64(c.R(rdLo))
	}
	c.r[rdLo] = uint32(result)
	c.r[rdHi] = uint32(result >> 32)
	if s {
		c.SetNZCV(c.r[rdHi]&0x80000000 != 0, result == 0, c.C(), c.V())
	}
	return 3, false
}

func (c *CPU) armSWP(instr uint32) (int, bool) {
	byteSwap := bits(instr, 22, 22) != 0
	rn := int(bits(instr, 19, 16))
	rd := int(bits(instr, 15, 12))
	rm := int(bits(instr, 3, 0))
	addr := c.R(rn)
	if byteSwap {
		old := c.bus.Read8(addr)
		c.bus.Write8(addr, byte(c.R(rm)))
		c.r[rd] = uint32(old)
	} else {
		old := c.bus.Read32(addr &^ 3)
		old = rotateRight32(old, uint(addr&3)*8)
		c.bus.Write32(addr&^3, c.R(rm))
		c.r[rd] = old
	}
	return 4, false
}

// armHalfwordTransfer implements LDRH/STRH/LDRSB/LDRSH and their immediate
// and register-offset addressing-mode variants.
func (c *CPU) armHalfwordTransfer(instr uint32, pc uint32) (int, bool) {
	pre := bits(instr, 24, 24) != 0
	up := bits(instr, 23, 23) != 0
	immOffset := bits(instr, 22, 22) != 0
	writeback := bits(instr, 21, 21) != 0
	load := bits(instr, 20, 20) != 0
	rn := int(bits(instr, 19, 16))
	rd := int(bits(instr, 15, 12))
	sh := bits(instr, 6, 5)

	var offset uint32
	if immOffset {
		offset = bits(instr, 11, 8)<<4 | bits(instr, 3, 0)
	} else {
		rm := int(bits(instr, 3, 0))
		offset = c.R(rm)
	}

	base := c.R(rn)
	if rn == 15 {
		base = pc + 8
	}
	var addr uint32
	if up {
		addr = base + offset
	} else {
		addr = base - offset
	}

	effective := base
	if pre {
		effective = addr
	}

	invalidated := false
	if load {
		var value uint32
		switch sh {
		case 0b01: // unsigned halfword
			value = uint32(c.bus.Read16(effective))
		case 0b10: // signed byte
			value = uint32(int32(int8(c.bus.Read8(effective))))
		case 0b11: // signed halfword
			if effective&1 != 0 {
				// Misaligned LDRSH loads a sign-extended byte instead.
				value = uint32(int32(int8(c.bus.Read8(effective))))
			} else {
				value = uint32(int32(int16(c.bus.Read16(effective))))
			}
		}
		if rd == 15 {
			c.branchTo(value &^ 3)
			invalidated = true
		} else {
			c.r[rd] = value
		}
	} else {
		value := c.R(rd)
		if rd == 15 {
			value = pc + 12
		}
		c.bus.Write16(effective&^1, uint16(value))
	}

	if !pre {
		addr = effective
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
		c.r[rn] = addr
	} else if writeback && rn != 15 {
		c.r[rn] = addr
	}

	return 3, invalidated
}

// armSingleTransfer implements LDR/STR byte and word variants.
func (c *CPU) armSingleTransfer(instr uint32, pc uint32) (int, bool) {
	immediate := bits(instr, 25, 25) == 0 // I=0 means 12-bit immediate offset here (inverted vs data-processing)
	pre := bits(instr, 24, 24) != 0
	up := bits(instr, 23, 23) != 0
	byteAccess := bits(instr, 22, 22) != 0
	writeback := bits(instr, 21, 21) != 0
	load := bits(instr, 20, 20) != 0
	rn := int(bits(instr, 19, 16))
	rd := int(bits(instr, 15, 12))

	var offset uint32
	if immediate {
		offset = bits(instr, 11, 0)
	} else {
		rm := int(bits(instr, 3, 0))
		shiftType := ShiftType(bits(instr, 6, 5))
		amount := uint(bits(instr, 11, 7))
		offset, _ = shiftImmediate(shiftType, c.R(rm), amount, c.C())
	}

	base := c.R(rn)
	if rn == 15 {
		base = pc + 8
	}
	var target uint32
	if up {
		target = base + offset
	} else {
		target = base - offset
	}

	effective := base
	if pre {
		effective = target
	}

	invalidated := false
	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.bus.Read8(effective))
		} else {
			raw := c.bus.Read32(effective &^ 3)
			value = rotateRight32(raw, uint(effective&3)*8)
		}
		if rd == 15 {
			c.branchTo(value &^ 3)
			invalidated = true
		} else {
			c.r[rd] = value
		}
	} else {
		value := c.R(rd)
		if rd == 15 {
			value = pc + 12
		}
		if byteAccess {
			c.bus.Write8(effective, byte(value))
		} else {
			c.bus.Write32(effective&^3, value)
		}
	}

	if !pre {
		c.r[rn] = target
	} else if writeback && rn != 15 {
		c.r[rn] = target
	}

	cycles := 3
	if load && rd == 15 {
		cycles += 2
	}
	return cycles, invalidated
}

// armBlockTransfer implements LDM/STM with the four addressing modes and the
// documented ARM7TDMI quirks (empty list, user-bank force, base-in-list).
func (c *CPU) armBlockTransfer(instr uint32) (int, bool) {
	pre := bits(instr, 24, 24) != 0
	up := bits(instr, 23, 23) != 0
	userBank := bits(instr, 22, 22) != 0
	writeback := bits(instr, 21, 21) != 0
	load := bits(instr, 20, 20) != 0
	rn := int(bits(instr, 19, 16))
	list := bits(instr, 15, 0)

	base := c.R(rn)
	count := 0
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}

	invalidated := false

	if list == 0 {
		// ARM7TDMI quirk: empty list transfers R15 only and adjusts the
		// base by 0x40 regardless of direction flags' usual stride.
		addr := base
		if !up {
			addr -= 0x40
		}
		if pre == up {
			addr += 4 // account for pre-index on the single implied transfer
		}
		if load {
			val := c.bus.Read32(addr &^ 3)
			c.branchTo(val &^ 3)
			invalidated = true
		} else {
			c.bus.Write32(addr&^3, c.r[15]+4)
		}
		if up {
			c.r[rn] = base + 0x40
		} else {
			c.r[rn] = base - 0x40
		}
		return 3, invalidated
	}

	// Compute the lowest address touched and walk upward; P/U select which
	// end of the block the base sits at.
	var startAddr uint32
	if up {
		startAddr = base
		if pre {
			startAddr += 4
		}
	} else {
		startAddr = base - uint32(count)*4
		if !pre {
			startAddr += 4
		}
	}

	forceUser := userBank && (!load || list&(1<<15) == 0)
	restoreMode := Mode(0)
	if forceUser {
		restoreMode = c.Mode()
		c.SwitchMode(ModeUSR)
	}

	addr := startAddr
	firstReg := -1
	newBase := base
	if up {
		newBase = base + uint32(count)*4
	} else {
		newBase = base - uint32(count)*4
	}

	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) == 0 {
			continue
		}
		if firstReg == -1 {
			firstReg = i
		}
		if load {
			val := c.bus.Read32(addr)
			if i == 15 {
				if userBank { // S bit with R15 in list: exception return
					if c.HasSPSR() {
						c.SetCPSR(c.SPSR())
					}
				}
				c.branchTo(val &^ 3)
				invalidated = true
			} else {
				c.r[i] = val
			}
		} else {
			var val uint32
			if i == rn && i != firstReg {
				val = newBase // STM with base not first in list stores post-writeback value
			} else if i == 15 {
				val = c.r[15] + 4
			} else {
				val = c.r[i]
			}
			c.bus.Write32(addr, val)
		}
		addr += 4
	}

	if forceUser {
		c.SwitchMode(restoreMode)
	}

	if writeback {
		baseInList := list&(1<<uint(rn)) != 0
		if !(load && baseInList) { // LDM writeback suppressed when base is loaded
			c.r[rn] = newBase
		}
	}

	cycles := 2 + count
	return cycles, invalidated
}
