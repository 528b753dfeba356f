package cpu

// execThumb decodes and executes one Thumb-16 instruction, in the fixed
// priority order documented for the 19 Thumb formats.
func (c *CPU) execThumb(instr uint16, pc uint32) (int, bool) {
	switch {
	case instr&0xF000 == 0xF000:
		return c.thumbLongBL(instr, pc)
	case instr&0xFF00 == 0xDF00:
		return c.thumbSWI(pc)
	case instr&0xF000 == 0xD000:
		return c.thumbBcc(instr, pc)
	case instr&0xF800 == 0xE000:
		return c.thumbB(instr, pc)
	case instr&0xF600 == 0xB400:
		return c.thumbPushPop(instr)
	case instr&0xFF00 == 0xB000:
		return c.thumbAddSP(instr)
	case instr&0xF000 == 0xC000:
		return c.thumbSTMLDMIA(instr)
	case instr&0xF000 == 0xA000:
		return c.thumbAddRdPCSP(instr, pc)
	case instr&0xF000 == 0x9000:
		return c.thumbSPRelLS(instr)
	case instr&0xF000 == 0x8000:
		return c.thumbLoadStoreHalfword(instr)
	case instr&0xE000 == 0x6000:
		return c.thumbImmOffsetLS(instr)
	case instr&0xF200 == 0x5200:
		return c.thumbSignExtendedLS(instr)
	case instr&0xF200 == 0x5000:
		return c.thumbRegOffsetLS(instr)
	case instr&0xF800 == 0x4800:
		return c.thumbPCRelLDR(instr, pc)
	case instr&0xFC00 == 0x4400:
		return c.thumbHiRegBX(instr)
	case instr&0xFC00 == 0x4000:
		return c.thumbALU(instr)
	case instr&0xE000 == 0x2000:
		return c.thumbImmOp(instr)
	case instr&0xF800 == 0x1800:
		return c.thumbAddSub(instr)
	default: // instr&0xE000 == 0x0000
		return c.thumbShiftImm(instr)
	}
}

func reg3(instr uint16, shift uint) int { return int(bits(uint32(instr), shift+2, shift)) }

func (c *CPU) thumbSWI(pc uint32) (int, bool) {
	c.enterSWI(pc + 2)
	return 2, true
}

func (c *CPU) thumbBcc(instr uint16, pc uint32) (int, bool) {
	cond := uint32(bits(uint32(instr), 11, 8))
	if cond == 0xE {
		return 1, false // undefined in ARMv4T Thumb; acknowledged no-op
	}
	if !c.condPass(cond) {
		return 1, false
	}
	offset := int32(signExtend(uint32(instr)&0xFF, 7)) << 1
	target := uint32(int32(pc+4) + offset)
	c.branchTo(target)
	return 3, true
}

func (c *CPU) thumbB(instr uint16, pc uint32) (int, bool) {
	offset := int32(signExtend(uint32(instr)&0x7FF, 10)) << 1
	target := uint32(int32(pc+4) + offset)
	c.branchTo(target)
	return 3, true
}

// thumbLongBL implements the two-halfword BL sequence: H=0 stashes the
// shifted-left upper offset into LR without altering PC; H=1 computes the
// real target from LR and leaves the return address (with bit0 set) in LR.
func (c *CPU) thumbLongBL(instr uint16, pc uint32) (int, bool) {
	h := bits(uint32(instr), 11, 11)
	offset11 := uint32(instr) & 0x7FF
	if h == 0 {
		upper := int32(signExtend(offset11, 10)) << 12
		c.r[14] = uint32(int32(pc+4) + upper)
		return 2, false
	}
	nextInstr := pc + 2
	target := c.r[14] + (offset11 << 1)
	c.r[14] = nextInstr | 1
	c.branchTo(target)
	return 3, true
}

func (c *CPU) thumbPushPop(instr uint16) (int, bool) {
	pop := bits(uint32(instr), 11, 11) != 0
	withExtra := bits(uint32(instr), 8, 8) != 0
	rlist := uint32(instr) & 0xFF

	count := 0
	for i := 0; i < 8; i++ {
		if rlist&(1<<uint(i)) != 0 {
			count++
		}
	}
	if withExtra {
		count++
	}

	invalidated := false
	if pop {
		addr := c.r[13]
		for i := 0; i < 8; i++ {
			if rlist&(1<<uint(i)) != 0 {
				c.r[i] = c.bus.Read32(addr)
				addr += 4
			}
		}
		if withExtra {
			val := c.bus.Read32(addr)
			addr += 4
			c.branchTo(val &^ 1)
			invalidated = true
		}
		c.r[13] = addr
	} else {
		addr := c.r[13] - uint32(count)*4
		c.r[13] = addr
		for i := 0; i < 8; i++ {
			if rlist&(1<<uint(i)) != 0 {
				c.bus.Write32(addr, c.r[i])
				addr += 4
			}
		}
		if withExtra {
			c.bus.Write32(addr, c.r[14])
		}
	}
	return 2 + count, invalidated
}

func (c *CPU) thumbAddSP(instr uint16) (int, bool) {
	neg := bits(uint32(instr), 7, 7) != 0
	imm := (uint32(instr) & 0x7F) << 2
	if neg {
		c.r[13] -= imm
	} else {
		c.r[13] += imm
	}
	return 1, false
}

func (c *CPU) thumbSTMLDMIA(instr uint16) (int, bool) {
	load := bits(uint32(instr), 11, 11) != 0
	rb := reg3(instr, 8)
	rlist := uint32(instr) & 0xFF

	count := 0
	for i := 0; i < 8; i++ {
		if rlist&(1<<uint(i)) != 0 {
			count++
		}
	}

	base := c.r[rb]
	addr := base
	firstReg := -1
	for i := 0; i < 8; i++ {
		if rlist&(1<<uint(i)) == 0 {
			continue
		}
		if firstReg == -1 {
			firstReg = i
		}
		if load {
			c.r[i] = c.bus.Read32(addr)
		} else {
			if i == rb && i != firstReg {
				c.bus.Write32(addr, base+uint32(count)*4)
			} else {
				c.bus.Write32(addr, c.r[i])
			}
		}
		addr += 4
	}
	if !(load && rlist&(1<<uint(rb)) != 0) {
		c.r[rb] = addr
	}
	return 2 + count, false
}

func (c *CPU) thumbAddRdPCSP(instr uint16, pc uint32) (int, bool) {
	useSP := bits(uint32(instr), 11, 11) != 0
	rd := reg3(instr, 8)
	imm := (uint32(instr) & 0xFF) << 2
	if useSP {
		c.r[rd] = c.r[13] + imm
	} else {
		c.r[rd] = (pc+4)&^3 + imm
	}
	return 1, false
}

func (c *CPU) thumbSPRelLS(instr uint16) (int, bool) {
	load := bits(uint32(instr), 11, 11) != 0
	rd := reg3(instr, 8)
	imm := (uint32(instr) & 0xFF) << 2
	addr := c.r[13] + imm
	if load {
		c.r[rd] = c.bus.Read32(addr &^ 3)
	} else {
		c.bus.Write32(addr&^3, c.r[rd])
	}
	return 2, false
}

func (c *CPU) thumbLoadStoreHalfword(instr uint16) (int, bool) {
	load := bits(uint32(instr), 11, 11) != 0
	imm5 := bits(uint32(instr), 10, 6)
	rb := reg3(instr, 3)
	rd := reg3(instr, 0)
	addr := c.r[rb] + imm5<<1
	if load {
		c.r[rd] = uint32(c.bus.Read16(addr))
	} else {
		c.bus.Write16(addr&^1, uint16(c.r[rd]))
	}
	return 2, false
}

func (c *CPU) thumbImmOffsetLS(instr uint16) (int, bool) {
	byteAccess := bits(uint32(instr), 12, 12) != 0
	load := bits(uint32(instr), 11, 11) != 0
	imm5 := bits(uint32(instr), 10, 6)
	rb := reg3(instr, 3)
	rd := reg3(instr, 0)

	if byteAccess {
		addr := c.r[rb] + imm5
		if load {
			c.r[rd] = uint32(c.bus.Read8(addr))
		} else {
			c.bus.Write8(addr, byte(c.r[rd]))
		}
	} else {
		addr := c.r[rb] + imm5<<2
		if load {
			c.r[rd] = rotateRight32(c.bus.Read32(addr&^3), uint(addr&3)*8)
		} else {
			c.bus.Write32(addr&^3, c.r[rd])
		}
	}
	return 2, false
}

func (c *CPU) thumbSignExtendedLS(instr uint16) (int, bool) {
	opc := bits(uint32(instr), 11, 10)
	ro := reg3(instr, 6)
	rb := reg3(instr, 3)
	rd := reg3(instr, 0)
	addr := c.r[rb] + c.r[ro]

	switch opc {
	case 0b00: // STRH
		c.bus.Write16(addr&^1, uint16(c.r[rd]))
	case 0b01: // LDRSB
		c.r[rd] = uint32(int32(int8(c.bus.Read8(addr))))
	case 0b10: // LDRH
		c.r[rd] = uint32(c.bus.Read16(addr))
	case 0b11: // LDRSH (misaligned loads a sign-extended byte)
		if addr&1 != 0 {
			c.r[rd] = uint32(int32(int8(c.bus.Read8(addr))))
		} else {
			c.r[rd] = uint32(int32(int16(c.bus.Read16(addr))))
		}
	}
	return 2, false
}

func (c *CPU) thumbRegOffsetLS(instr uint16) (int, bool) {
	load := bits(uint32(instr), 11, 11) != 0
	byteAccess := bits(uint32(instr), 10, 10) != 0
	ro := reg3(instr, 6)
	rb := reg3(instr, 3)
	rd := reg3(instr, 0)
	addr := c.r[rb] + c.r[ro]

	if byteAccess {
		if load {
			c.r[rd] = uint32(c.bus.Read8(addr))
		} else {
			c.bus.Write8(addr, byte(c.r[rd]))
		}
	} else {
		if load {
			c.r[rd] = rotateRight32(c.bus.Read32(addr&^3), uint(addr&3)*8)
		} else {
			c.bus.Write32(addr&^3, c.r[rd])
		}
	}
	return 2, false
}

func (c *CPU) thumbPCRelLDR(instr uint16, pc uint32) (int, bool) {
	rd := reg3(instr, 8)
	imm := (uint32(instr) & 0xFF) << 2
	addr := (pc+4)&^3 + imm
	c.r[rd] = c.bus.Read32(addr)
	return 3, false
}

func (c *CPU) thumbHiRegBX(instr uint16) (int, bool) {
	op := bits(uint32(instr), 9, 8)
	h1 := bits(uint32(instr), 7, 7)
	h2 := bits(uint32(instr), 6, 6)
	rd := reg3(instr, 0) + int(h1)<<3
	rs := reg3(instr, 3) + int(h2)<<3

	srcVal := c.readR(rs)
	invalidated := false
	switch op {
	case 0b00: // ADD
		result := c.readR(rd) + srcVal
		if rd == 15 {
			c.branchTo(result)
			invalidated = true
		} else {
			c.r[rd] = result
		}
	case 0b01: // CMP
		a := c.readR(rd)
		result := a - srcVal
		c.SetNZCV(result&0x80000000 != 0, result == 0, a >= srcVal, subOverflow(a, srcVal, result))
	case 0b10: // MOV
		if rd == 15 {
			c.branchTo(srcVal)
			invalidated = true
		} else {
			c.r[rd] = srcVal
		}
	case 0b11: // BX
		c.SetThumb(srcVal&1 != 0)
		c.branchTo(srcVal)
		invalidated = true
	}
	return 3, invalidated
}

func (c *CPU) thumbALU(instr uint16) (int, bool) {
	op := bits(uint32(instr), 9, 6)
	rs := reg3(instr, 3)
	rd := reg3(instr, 0)

	a := c.r[rd]
	b := c.r[rs]
	carryIn := c.C()
	var result uint32
	writes := true

	switch op {
	case 0x0: // AND
		result = a & b
		c.SetNZC(result, carryIn)
	case 0x1: // EOR
		result = a ^ b
		c.SetNZC(result, carryIn)
	case 0x2: // LSL
		amount := uint(b & 0xFF)
		var carry bool
		result, carry = shiftRegister(ShiftLSL, a, amount, carryIn)
		c.SetNZC(result, carry)
	case 0x3: // LSR
		amount := uint(b & 0xFF)
		var carry bool
		result, carry = shiftRegister(ShiftLSR, a, amount, carryIn)
		c.SetNZC(result, carry)
	case 0x4: // ASR
		amount := uint(b & 0xFF)
		var carry bool
		result, carry = shiftRegister(ShiftASR, a, amount, carryIn)
		c.SetNZC(result, carry)
	case 0x5: // ADC
		sum := uint64(a) + uint64(b) + uint64(b2u(carryIn))
		result = uint32(sum)
		c.SetNZCV(result&0x80000000 != 0, result == 0, sum > 0xFFFFFFFF, addOverflow(a, b, result))
	case 0x6: // SBC
		result = a - b - (1 - b2u(carryIn))
		c.SetNZCV(result&0x80000000 != 0, result == 0, a >= b+(1-b2u(carryIn)), subOverflow(a, b, result))
	case 0x7: // ROR
		amount := uint(b & 0xFF)
		var carry bool
		result, carry = shiftRegister(ShiftROR, a, amount, carryIn)
		c.SetNZC(result, carry)
	case 0x8: // TST
		result = a & b
		c.SetNZC(result, carryIn)
		writes = false
	case 0x9: // NEG
		result = 0 - b
		c.SetNZCV(result&0x80000000 != 0, result == 0, 0 >= b, subOverflow(0, b, result))
	case 0xA: // CMP
		result = a - b
		c.SetNZCV(result&0x80000000 != 0, result == 0, a >= b, subOverflow(a, b, result))
		writes = false
	case 0xB: // CMN
		sum := uint64(a) + uint64(b)
		result = uint32(sum)
		c.SetNZCV(result&0x80000000 != 0, result == 0, sum > 0xFFFFFFFF, addOverflow(a, b, result))
		writes = false
	case 0xC: // ORR
		result = a | b
		c.SetNZC(result, carryIn)
	case 0xD: // MUL
		result = a * b
		c.SetNZC(result, carryIn)
	case 0xE: // BIC
		result = a &^ b
		c.SetNZC(result, carryIn)
	case 0xF: // MVN
		result = ^b
		c.SetNZC(result, carryIn)
	}

	if writes {
		c.r[rd] = result
	}
	return 1, false
}

func (c *CPU) thumbImmOp(instr uint16) (int, bool) {
	op := bits(uint32(instr), 12, 11)
	rd := reg3(instr, 8)
	imm := uint32(instr) & 0xFF

	switch op {
	case 0b00: // MOV
		c.r[rd] = imm
		c.SetNZC(imm, c.C())
	case 0b01: // CMP
		a := c.r[rd]
		result := a - imm
		c.SetNZCV(result&0x80000000 != 0, result == 0, a >= imm, subOverflow(a, imm, result))
	case 0b10: // ADD
		a := c.r[rd]
		sum := uint64(a) + uint64(imm)
		result := uint32(sum)
		c.r[rd] = result
		c.SetNZCV(result&0x80000000 != 0, result == 0, sum > 0xFFFFFFFF, addOverflow(a, imm, result))
	case 0b11: // SUB
		a := c.r[rd]
		result := a - imm
		c.r[rd] = result
		c.SetNZCV(result&0x80000000 != 0, result == 0, a >= imm, subOverflow(a, imm, result))
	}
	return 1, false
}

func (c *CPU) thumbAddSub(instr uint16) (int, bool) {
	immFlag := bits(uint32(instr), 10, 10) != 0
	sub := bits(uint32(instr), 9, 9) != 0
	rs := reg3(instr, 3)
	rd := reg3(instr, 0)
	nOrRn := uint32(bits(uint32(instr), 8, 6))

	var b uint32
	if immFlag {
		b = nOrRn
	} else {
		b = c.r[nOrRn]
	}
	a := c.r[rs]

	var result uint32
	if sub {
		result = a - b
		c.r[rd] = result
		c.SetNZCV(result&0x80000000 != 0, result == 0, a >= b, subOverflow(a, b, result))
	} else {
		sum := uint64(a) + uint64(b)
		result = uint32(sum)
		c.r[rd] = result
		c.SetNZCV(result&0x80000000 != 0, result == 0, sum > 0xFFFFFFFF, addOverflow(a, b, result))
	}
	return 1, false
}

func (c *CPU) thumbShiftImm(instr uint16) (int, bool) {
	op := bits(uint32(instr), 12, 11)
	imm5 := uint(bits(uint32(instr), 10, 6))
	rs := reg3(instr, 3)
	rd := reg3(instr, 0)

	var shiftType ShiftType
	switch op {
	case 0b00:
		shiftType = ShiftLSL
	case 0b01:
		shiftType = ShiftLSR
	case 0b10:
		shiftType = ShiftASR
	}
	result, carry := shiftImmediate(shiftType, c.r[rs], imm5, c.C())
	c.r[rd] = result
	c.SetNZC(result, carry)
	return 1, false
}
