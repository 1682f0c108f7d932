// ops_alu.go - Group 1 ALU opcodes (ADD/OR/ADC/SBB/AND/SUB/XOR/CMP), INC/DEC,
// and the multiply/divide group (§4.4, 25% instruction-semantics share).
//
// Grounded on cpu_x86_grp.go's opGrp1_* family: same eight-way op switch and
// per-width flag-calculator calls, generalized from direct readRM8/writeRM8
// calls to the RegRef-based decodeModRM/readRef/writeRef path decode.go
// provides, and from six duplicated case blocks (one per opcode form) to a
// single parameterized handler registered six times.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// aluOpKind is the Group 1 operation selector, matching the ModR/M reg
// field encoding order: ADD OR ADC SBB AND SUB XOR CMP.
type aluOpKind int

const (
	aluADD aluOpKind = iota
	aluOR
	aluADC
	aluSBB
	aluAND
	aluSUB
	aluXOR
	aluCMP
)

// aluCompute applies op to (a,b) at the given width, setting flags, and
// returns the result (the caller discards it for CMP).
func (c *CPU) aluCompute(op aluOpKind, a, b uint32, size opSize) uint32 {
	switch op {
	case aluADD:
		return c.flagAdd(a, b, size)
	case aluADC:
		return c.flagAdc(a, b, size)
	case aluSUB, aluCMP:
		return c.flagSub(a, b, size)
	case aluSBB:
		return c.flagSbb(a, b, size)
	case aluOR:
		return c.flagLogic(a|b, size)
	case aluAND:
		return c.flagLogic(a&b, size)
	case aluXOR:
		return c.flagLogic(a^b, size)
	default:
		return 0
	}
}

// aluRegRM8/16/32 implement the Eb,Gb / Gb,Eb (and 32-bit Ev,Gv / Gv,Ev)
// opcode forms: toReg selects which operand decodeModRM's pair is the
// destination.
func (c *CPU) aluRegRM8(op aluOpKind, toReg bool) {
	reg, rm := c.decodeModRM(RefByte)
	if toReg {
		a, b := c.readRef8(reg), c.readRef8(rm)
		result := c.aluCompute(op, uint32(a), uint32(b), size8)
		if op != aluCMP {
			c.writeRef8(reg, byte(result))
		}
	} else {
		a, b := c.readRef8(rm), c.readRef8(reg)
		result := c.aluCompute(op, uint32(a), uint32(b), size8)
		if op != aluCMP {
			c.writeRef8(rm, byte(result))
		}
	}
	c.cyclesOP += 2
}

func (c *CPU) aluRegRM(op aluOpKind, toReg bool) {
	size := c.operandSize()
	if size == size16 {
		reg, rm := c.decodeModRM(RefWord)
		if toReg {
			result := c.aluCompute(op, uint32(c.readRef16(reg)), uint32(c.readRef16(rm)), size16)
			if op != aluCMP {
				c.writeRef16(reg, uint16(result))
			}
		} else {
			result := c.aluCompute(op, uint32(c.readRef16(rm)), uint32(c.readRef16(reg)), size16)
			if op != aluCMP {
				c.writeRef16(rm, uint16(result))
			}
		}
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		if toReg {
			result := c.aluCompute(op, c.readRef32(reg), c.readRef32(rm), size32)
			if op != aluCMP {
				c.writeRef32(reg, result)
			}
		} else {
			result := c.aluCompute(op, c.readRef32(rm), c.readRef32(reg), size32)
			if op != aluCMP {
				c.writeRef32(rm, result)
			}
		}
	}
	c.cyclesOP += 2
}

// aluAccImm8/Iz implement the AL,Ib / eAX,Iz short encodings.
func (c *CPU) aluAccImm8(op aluOpKind) {
	b := c.fetch8()
	result := c.aluCompute(op, uint32(c.AL()), uint32(b), size8)
	if op != aluCMP {
		c.SetAL(byte(result))
	}
	c.cyclesOP++
}

func (c *CPU) aluAccImm(op aluOpKind) {
	if c.operandSize() == size16 {
		b := c.fetch16()
		result := c.aluCompute(op, uint32(c.AX()), uint32(b), size16)
		if op != aluCMP {
			c.SetAX(uint16(result))
		}
	} else {
		b := c.fetch32()
		result := c.aluCompute(op, c.EAX(), b, size32)
		if op != aluCMP {
			c.SetEAX(result)
		}
	}
	c.cyclesOP++
}

// opGrp1Eb implements opcodes 0x80 and 0x82: Eb,Ib with the reg field of
// ModR/M selecting the ALU operation.
func (c *CPU) opGrp1Eb() {
	reg, rm := c.decodeModRMGroup(RefByte)
	b := c.fetch8()
	op := aluOpKind(reg.RegIndex)
	result := c.aluCompute(op, uint32(c.readRef8(rm)), uint32(b), size8)
	if op != aluCMP {
		c.writeRef8(rm, byte(result))
	}
	c.cyclesOP += 2
}

// opGrp1Ev implements opcode 0x81 (Ev,Iz) and 0x83 (Ev,Ib sign-extended).
func (c *CPU) opGrp1Ev(signExtend bool) {
	size := c.operandSize()
	if size == size16 {
		reg, rm := c.decodeModRMGroup(RefWord)
		var imm uint16
		if signExtend {
			imm = uint16(int16(int8(c.fetch8())))
		} else {
			imm = c.fetch16()
		}
		op := aluOpKind(reg.RegIndex)
		result := c.aluCompute(op, uint32(c.readRef16(rm)), uint32(imm), size16)
		if op != aluCMP {
			c.writeRef16(rm, uint16(result))
		}
	} else {
		reg, rm := c.decodeModRMGroup(RefDWord)
		var imm uint32
		if signExtend {
			imm = uint32(int32(int8(c.fetch8())))
		} else {
			imm = c.fetch32()
		}
		op := aluOpKind(reg.RegIndex)
		result := c.aluCompute(op, c.readRef32(rm), imm, size32)
		if op != aluCMP {
			c.writeRef32(rm, result)
		}
	}
	c.cyclesOP += 2
}

// decodeModRMGroup is decodeModRM for the group opcodes, where the ModR/M
// reg field is a sub-opcode selector rather than a second operand; it still
// returns it as a RegRef so callers can read its RegIndex uniformly.
func (c *CPU) decodeModRMGroup(width RegRefKind) (reg RegRef, rm RegRef) {
	return c.decodeModRM(width)
}

// --- INC/DEC ----------------------------------------------------------------

// opIncDecReg implements opcodes 0x40-0x4F (INC/DEC of a GP register,
// invalid in 32-bit/64-bit encoded forms on 386+ where they're reused as
// REX, but this core never emits 64-bit mode so they stay live).
func (c *CPU) opIncDecReg(regIndex int, dec bool) {
	if c.operandSize() == size16 {
		c.setReg16(regIndex, uint16(c.flagIncDec(uint32(c.reg16(regIndex)), dec, size16)))
	} else {
		c.setReg32(regIndex, c.flagIncDec(c.reg32(regIndex), dec, size32))
	}
	c.cyclesOP++
}

// aluIncDecRefByte/aluIncDecRef implement the INC/DEC sub-opcodes (0,1) of
// Groups 4 and 5 (opcode 0xFE for byte, 0xFF for word/dword).
func (c *CPU) aluIncDecRefByte(rm RegRef, dec bool) {
	c.writeRef8(rm, byte(c.flagIncDec(uint32(c.readRef8(rm)), dec, size8)))
}

func (c *CPU) aluIncDecRef(rm RegRef, dec bool) {
	if c.operandSize() == size16 {
		c.writeRef16(rm, uint16(c.flagIncDec(uint32(c.readRef16(rm)), dec, size16)))
	} else {
		c.writeRef32(rm, c.flagIncDec(c.readRef32(rm), dec, size32))
	}
}

// --- Multiply/divide group (F6/F7 reg field 4-7, and the two-operand IMUL
// forms 0x69/0x6B/0x0FAF) ----------------------------------------------------

// mulDivEb/Ev implement F6/F7's TEST/NOT/NEG/MUL/IMUL/DIV/IDIV sub-opcodes.
// sub 0=TEST(Ib/Iz) 2=NOT 3=NEG 4=MUL 5=IMUL 6=DIV 7=IDIV; sub 1 is an
// undocumented alias of TEST on real silicon, modeled the same way.
func (c *CPU) mulDivEb(sub int) {
	_, rm := c.decodeModRMGroup(RefByte)
	switch sub {
	case 0, 1:
		imm := c.fetch8()
		c.flagLogic(uint32(c.readRef8(rm))&uint32(imm), size8)
	case 2:
		c.writeRef8(rm, ^c.readRef8(rm))
	case 3:
		v := c.readRef8(rm)
		result := c.flagSub(0, uint32(v), size8)
		c.setFlag(FlagCF, v != 0)
		c.writeRef8(rm, byte(result))
	case 4:
		a, b := c.AL(), c.readRef8(rm)
		result := uint16(a) * uint16(b)
		c.SetAX(result)
		wide := result>>8 != 0
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	case 5:
		a, b := int8(c.AL()), int8(c.readRef8(rm))
		result := int16(a) * int16(b)
		c.SetAX(uint16(result))
		wide := result != int16(int8(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	case 6:
		c.divU8(c.readRef8(rm))
	case 7:
		c.divS8(c.readRef8(rm))
	}
	c.cyclesOP += 3
}

func (c *CPU) mulDivEv(sub int) {
	size := c.operandSize()
	if size == size16 {
		c.mulDivEv16(sub)
	} else {
		c.mulDivEv32(sub)
	}
	c.cyclesOP += 3
}

func (c *CPU) mulDivEv16(sub int) {
	_, rm := c.decodeModRMGroup(RefWord)
	switch sub {
	case 0, 1:
		imm := c.fetch16()
		c.flagLogic(uint32(c.readRef16(rm))&uint32(imm), size16)
	case 2:
		c.writeRef16(rm, ^c.readRef16(rm))
	case 3:
		v := c.readRef16(rm)
		result := c.flagSub(0, uint32(v), size16)
		c.setFlag(FlagCF, v != 0)
		c.writeRef16(rm, uint16(result))
	case 4:
		a, b := c.AX(), c.readRef16(rm)
		result := uint32(a) * uint32(b)
		c.SetAX(uint16(result))
		c.SetDX(uint16(result >> 16))
		wide := result>>16 != 0
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	case 5:
		a, b := int16(c.AX()), int16(c.readRef16(rm))
		result := int32(a) * int32(b)
		c.SetAX(uint16(result))
		c.SetDX(uint16(result >> 16))
		wide := result != int32(int16(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	case 6:
		c.divU16(c.readRef16(rm))
	case 7:
		c.divS16(c.readRef16(rm))
	}
}

func (c *CPU) mulDivEv32(sub int) {
	_, rm := c.decodeModRMGroup(RefDWord)
	switch sub {
	case 0, 1:
		imm := c.fetch32()
		c.flagLogic(c.readRef32(rm)&imm, size32)
	case 2:
		c.writeRef32(rm, ^c.readRef32(rm))
	case 3:
		v := c.readRef32(rm)
		result := c.flagSub(0, v, size32)
		c.setFlag(FlagCF, v != 0)
		c.writeRef32(rm, result)
	case 4:
		a, b := uint64(c.EAX()), uint64(c.readRef32(rm))
		result := a * b
		c.SetEAX(uint32(result))
		c.SetEDX(uint32(result >> 32))
		wide := result>>32 != 0
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	case 5:
		a, b := int64(int32(c.EAX())), int64(int32(c.readRef32(rm)))
		result := a * b
		c.SetEAX(uint32(result))
		c.SetEDX(uint32(result >> 32))
		wide := result != int64(int32(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	case 6:
		c.divU32(c.readRef32(rm))
	case 7:
		c.divS32(c.readRef32(rm))
	}
}

// divU8/S8/U16/S16/U32/S32 implement DIV/IDIV, raising #DE on divide
// overflow or divide-by-zero per §4.4's documented behavior: the dividend
// registers are left unmodified and EIP does not advance past the
// instruction, matching real silicon's "faulting instruction restarts".
func (c *CPU) divU8(divisor byte) {
	if divisor == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	dividend := c.AX()
	q, r := dividend/uint16(divisor), dividend%uint16(divisor)
	if q > 0xFF {
		c.raiseFault(ExcDE, 0)
		return
	}
	c.SetAL(byte(q))
	c.SetAH(byte(r))
}

func (c *CPU) divS8(divisor byte) {
	d := int8(divisor)
	if d == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	dividend := int16(c.AX())
	q, r := dividend/int16(d), dividend%int16(d)
	if q > 127 || q < -128 {
		c.raiseFault(ExcDE, 0)
		return
	}
	c.SetAL(byte(int8(q)))
	c.SetAH(byte(int8(r)))
}

func (c *CPU) divU16(divisor uint16) {
	if divisor == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	dividend := uint32(c.DX())<<16 | uint32(c.AX())
	q, r := dividend/uint32(divisor), dividend%uint32(divisor)
	if q > 0xFFFF {
		c.raiseFault(ExcDE, 0)
		return
	}
	c.SetAX(uint16(q))
	c.SetDX(uint16(r))
}

func (c *CPU) divS16(divisor uint16) {
	d := int16(divisor)
	if d == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	dividend := int32(uint32(c.DX())<<16 | uint32(c.AX()))
	q, r := dividend/int32(d), dividend%int32(d)
	if q > 32767 || q < -32768 {
		c.raiseFault(ExcDE, 0)
		return
	}
	c.SetAX(uint16(int16(q)))
	c.SetDX(uint16(int16(r)))
}

func (c *CPU) divU32(divisor uint32) {
	if divisor == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	dividend := uint64(c.EDX())<<32 | uint64(c.EAX())
	q, r := dividend/uint64(divisor), dividend%uint64(divisor)
	if q > 0xFFFFFFFF {
		c.raiseFault(ExcDE, 0)
		return
	}
	c.SetEAX(uint32(q))
	c.SetEDX(uint32(r))
}

func (c *CPU) divS32(divisor uint32) {
	d := int32(divisor)
	if d == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	dividend := int64(uint64(c.EDX())<<32 | uint64(c.EAX()))
	q, r := dividend/int64(d), dividend%int64(d)
	if q > 0x7FFFFFFF || q < -0x80000000 {
		c.raiseFault(ExcDE, 0)
		return
	}
	c.SetEAX(uint32(int32(q)))
	c.SetEDX(uint32(int32(r)))
}

// opIMULGvEvImm implements the three-operand IMUL forms (0x69/0x6B) and
// opIMULGvEv below the 0F AF two-operand form, both sharing the
// overflow-via-truncation-compare test mulDivEv's case 5 uses.
func (c *CPU) opIMULGvEvImm(byteImm bool) {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		var imm int16
		if byteImm {
			imm = int16(int8(c.fetch8()))
		} else {
			imm = int16(c.fetch16())
		}
		result := int32(int16(c.readRef16(rm))) * int32(imm)
		c.writeRef16(reg, uint16(result))
		wide := result != int32(int16(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		var imm int32
		if byteImm {
			imm = int32(int8(c.fetch8()))
		} else {
			imm = int32(c.fetch32())
		}
		result := int64(int32(c.readRef32(rm))) * int64(imm)
		c.writeRef32(reg, uint32(result))
		wide := result != int64(int32(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	}
	c.cyclesOP += 3
}

func (c *CPU) opIMULGvEv() {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		result := int32(int16(c.readRef16(reg))) * int32(int16(c.readRef16(rm)))
		c.writeRef16(reg, uint16(result))
		wide := result != int32(int16(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		result := int64(int32(c.readRef32(reg))) * int64(int32(c.readRef32(rm)))
		c.writeRef32(reg, uint32(result))
		wide := result != int64(int32(result))
		c.setFlag(FlagCF, wide)
		c.setFlag(FlagOF, wide)
	}
	c.cyclesOP += 3
}

// registerALUOps wires every opcode this file implements into the base
// dispatch table (called from tick.go's initOpcodeTables).
func registerALUOps(table *[256]func(*CPU)) {
	ops := [8]aluOpKind{aluADD, aluOR, aluADC, aluSBB, aluAND, aluSUB, aluXOR, aluCMP}
	for i, op := range ops {
		op := op
		base := byte(i * 8)
		table[base+0x00] = func(c *CPU) { c.aluRegRM8(op, false) }
		table[base+0x01] = func(c *CPU) { c.aluRegRM(op, false) }
		table[base+0x02] = func(c *CPU) { c.aluRegRM8(op, true) }
		table[base+0x03] = func(c *CPU) { c.aluRegRM(op, true) }
		table[base+0x04] = func(c *CPU) { c.aluAccImm8(op) }
		table[base+0x05] = func(c *CPU) { c.aluAccImm(op) }
	}

	table[0x80] = func(c *CPU) { c.opGrp1Eb() }
	table[0x81] = func(c *CPU) { c.opGrp1Ev(false) }
	table[0x82] = func(c *CPU) { c.opGrp1Eb() }
	table[0x83] = func(c *CPU) { c.opGrp1Ev(true) }

	for i := 0; i < 8; i++ {
		i := i
		table[0x40+i] = func(c *CPU) { c.opIncDecReg(i, false) }
		table[0x48+i] = func(c *CPU) { c.opIncDecReg(i, true) }
	}

	table[0xF6] = func(c *CPU) {
		mod := c.fetchModRM()
		c.mulDivEb(int((mod >> 3) & 7))
	}
	table[0xF7] = func(c *CPU) {
		mod := c.fetchModRM()
		c.mulDivEv(int((mod >> 3) & 7))
	}

	table[0xFE] = func(c *CPU) {
		mod := c.fetchModRM()
		_, rm := c.decodeModRMGroup(RefByte)
		c.aluIncDecRefByte(rm, (mod>>3)&7 == 1)
		c.cyclesOP += 2
	}
	table[0xFF] = func(c *CPU) { c.opGrp5() }

	table[0x69] = func(c *CPU) { c.opIMULGvEvImm(false) }
	table[0x6B] = func(c *CPU) { c.opIMULGvEvImm(true) }
}

// opGrp5 implements opcode 0xFF: INC/DEC Ev (sub-opcodes 0/1) here, and
// hands the CALL/JMP/PUSH near/far indirect sub-opcodes (2-7) to
// grp5ControlTransfer in ops_control.go.
func (c *CPU) opGrp5() {
	mod := c.fetchModRM()
	sub := int((mod >> 3) & 7)
	switch sub {
	case 0, 1:
		width := RefWord
		if c.operandSize() == size32 {
			width = RefDWord
		}
		_, rm := c.decodeModRMGroup(width)
		c.aluIncDecRef(rm, sub == 1)
		c.cyclesOP += 2
	default:
		c.grp5ControlTransfer(sub)
	}
}
