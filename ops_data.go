// ops_data.go - data movement: MOV, PUSH/POP, XCHG, LEA, LAHF/SAHF, and the
// far-pointer segment loads LDS/LES/LFS/LGS/LSS (§4.4).
//
// Grounded on cpu_x86_ops.go's MOV/PUSH/POP family: same opcode shapes,
// generalized onto the RegRef/decodeModRM path in place of direct
// readRM8/writeRM8 calls.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

func (c *CPU) opMovRegRM8(toReg bool) {
	reg, rm := c.decodeModRM(RefByte)
	if toReg {
		c.writeRef8(reg, c.readRef8(rm))
	} else {
		c.writeRef8(rm, c.readRef8(reg))
	}
	c.cyclesOP++
}

func (c *CPU) opMovRegRM(toReg bool) {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		if toReg {
			c.writeRef16(reg, c.readRef16(rm))
		} else {
			c.writeRef16(rm, c.readRef16(reg))
		}
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		if toReg {
			c.writeRef32(reg, c.readRef32(rm))
		} else {
			c.writeRef32(rm, c.readRef32(reg))
		}
	}
	c.cyclesOP++
}

// opMovRMImm8/Iz implement the C6/C7 immediate-to-Eb/Ev forms (ModR/M reg
// field is always 0 for MOV in this group, unlike Group 1).
func (c *CPU) opMovRMImm8() {
	_, rm := c.decodeModRMGroup(RefByte)
	c.writeRef8(rm, c.fetch8())
	c.cyclesOP++
}

func (c *CPU) opMovRMImm() {
	if c.operandSize() == size16 {
		_, rm := c.decodeModRMGroup(RefWord)
		c.writeRef16(rm, c.fetch16())
	} else {
		_, rm := c.decodeModRMGroup(RefDWord)
		c.writeRef32(rm, c.fetch32())
	}
	c.cyclesOP++
}

// opMovRegImm8/Iv implement B0-B7/B8-BF: register encoded in the opcode's
// low 3 bits, immediate of the matching width.
func (c *CPU) opMovRegImm8(regIndex int) {
	c.setReg8(regIndex, c.fetch8())
	c.cyclesOP++
}

func (c *CPU) opMovRegImm(regIndex int) {
	if c.operandSize() == size16 {
		c.setReg16(regIndex, c.fetch16())
	} else {
		c.setReg32(regIndex, c.fetch32())
	}
	c.cyclesOP++
}

// opMovAccMoffs implements A0-A3: AL/eAX <-> a direct-addressed memory
// operand, no ModR/M byte.
func (c *CPU) opMovAccMoffs(toAcc, wide bool) {
	var offset uint32
	if c.addr16() {
		offset = uint32(c.fetch16())
	} else {
		offset = c.fetch32()
	}
	seg := c.segmentFor(SegDS)
	if wide {
		if toAcc {
			v, _ := c.MMU_rw(seg, c.Seg[seg], offset, false, c.addr16())
			if c.operandSize() == size32 {
				vv, _ := c.MMU_rdw(seg, c.Seg[seg], offset, false, c.addr16())
				c.SetEAX(vv)
			} else {
				c.SetAX(v)
			}
		} else {
			if c.operandSize() == size32 {
				c.MMU_wdw(seg, c.Seg[seg], offset, c.EAX(), c.addr16())
			} else {
				c.MMU_ww(seg, c.Seg[seg], offset, c.AX(), c.addr16())
			}
		}
	} else {
		if toAcc {
			v, _ := c.MMU_rb(seg, c.Seg[seg], offset, false, c.addr16())
			c.SetAL(v)
		} else {
			c.MMU_wb(seg, c.Seg[seg], offset, c.AL(), c.addr16())
		}
	}
	c.cyclesOP++
}

// opMovSegRM/RMSeg implement 8E/8C: MOV to/from a segment register.
func (c *CPU) opMovRMToSeg() {
	reg, rm := c.decodeModRM(RefWord)
	ok := c.setSeg(reg.RegIndex&7, c.readRef16(rm))
	if ok && reg.RegIndex&7 == SegSS {
		c.inhibitIRQ = true // MOV-to-SS shadows the next instruction boundary (§4.6)
	}
	c.cyclesOP += 2
}

func (c *CPU) opMovSegToRM() {
	reg, rm := c.decodeModRM(RefWord)
	c.writeRef16(rm, c.getSeg(reg.RegIndex&7))
	c.cyclesOP++
}

// --- PUSH/POP ----------------------------------------------------------------

func (c *CPU) pushOperand(v uint32) {
	if c.operandSize() == size16 {
		c.push16(uint16(v))
	} else {
		c.push32w(v)
	}
}

func (c *CPU) popOperand() uint32 {
	if c.operandSize() == size16 {
		v, _ := c.MMU_rw(SegSS, c.Seg[SegSS], c.gp[RegESP], false, true)
		c.adjustESP(2, false)
		return uint32(v)
	}
	v, _ := c.MMU_rdw(SegSS, c.Seg[SegSS], c.gp[RegESP], false, false)
	c.adjustESP(4, true)
	return v
}

func (c *CPU) opPushReg(regIndex int) {
	c.pushOperand(c.reg32(regIndex))
	c.cyclesOP += 2
}

func (c *CPU) opPopReg(regIndex int) {
	v := c.popOperand()
	if c.operandSize() == size16 {
		c.setReg16(regIndex, uint16(v))
	} else {
		c.setReg32(regIndex, v)
	}
	c.cyclesOP += 2
}

func (c *CPU) opPushImm(byteImm bool) {
	var v uint32
	if byteImm {
		v = uint32(int32(int8(c.fetch8())))
	} else if c.operandSize() == size16 {
		v = uint32(c.fetch16())
	} else {
		v = c.fetch32()
	}
	c.pushOperand(v)
	c.cyclesOP += 2
}

func (c *CPU) opPushRM() {
	width := RefWord
	if c.operandSize() == size32 {
		width = RefDWord
	}
	_, rm := c.decodeModRMGroup(width)
	if width == RefWord {
		c.pushOperand(uint32(c.readRef16(rm)))
	} else {
		c.pushOperand(c.readRef32(rm))
	}
	c.cyclesOP += 2
}

func (c *CPU) opPopRM() {
	width := RefWord
	if c.operandSize() == size32 {
		width = RefDWord
	}
	_, rm := c.decodeModRMGroup(width)
	v := c.popOperand()
	if width == RefWord {
		c.writeRef16(rm, uint16(v))
	} else {
		c.writeRef32(rm, v)
	}
	c.cyclesOP += 2
}

func (c *CPU) opPushSeg(idx int) {
	c.pushOperand(uint32(c.getSeg(idx)))
	c.cyclesOP += 2
}

func (c *CPU) opPopSeg(idx int) {
	v := c.popOperand()
	c.setSeg(idx, uint16(v))
	if idx == SegSS {
		c.inhibitIRQ = true
	}
	c.cyclesOP += 2
}

// opPushA/PopA implement 0x60/0x61 (186+): push/pop all eight GP registers.
func (c *CPU) opPushA() {
	orig := c.gp[RegESP]
	order := []int{RegEAX, RegECX, RegEDX, RegEBX, RegESP, RegEBP, RegESI, RegEDI}
	for _, r := range order {
		v := c.reg32(r)
		if r == RegESP {
			v = orig
		}
		c.pushOperand(v)
	}
	c.cyclesOP += 4
}

func (c *CPU) opPopA() {
	order := []int{RegEDI, RegESI, RegEBP, RegESP, RegEBX, RegEDX, RegECX, RegEAX}
	for _, r := range order {
		v := c.popOperand()
		if r == RegESP {
			continue // discarded, matching POPA's documented behavior
		}
		if c.operandSize() == size16 {
			c.setReg16(r, uint16(v))
		} else {
			c.setReg32(r, v)
		}
	}
	c.cyclesOP += 4
}

// --- XCHG --------------------------------------------------------------------

func (c *CPU) opXchgRegRM8() {
	reg, rm := c.decodeModRM(RefByte)
	a, b := c.readRef8(reg), c.readRef8(rm)
	c.writeRef8(reg, b)
	c.writeRef8(rm, a)
	c.cyclesOP += 3
}

func (c *CPU) opXchgRegRM() {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		a, b := c.readRef16(reg), c.readRef16(rm)
		c.writeRef16(reg, b)
		c.writeRef16(rm, a)
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		a, b := c.readRef32(reg), c.readRef32(rm)
		c.writeRef32(reg, b)
		c.writeRef32(rm, a)
	}
	c.cyclesOP += 3
}

func (c *CPU) opXchgAXReg(regIndex int) {
	if c.operandSize() == size16 {
		a, b := c.AX(), c.reg16(regIndex)
		c.SetAX(b)
		c.setReg16(regIndex, a)
	} else {
		a, b := c.EAX(), c.reg32(regIndex)
		c.SetEAX(b)
		c.setReg32(regIndex, a)
	}
	c.cyclesOP += 3
}

// --- LEA ---------------------------------------------------------------------

func (c *CPU) opLea() {
	width := RefWord
	if c.operandSize() == size32 {
		width = RefDWord
	}
	reg, rm := c.decodeModRM(width)
	if rm.Kind != RefMemory {
		c.raiseFault(ExcUD, 0) // LEA with a register r/m operand (§8 boundary case)
		return
	}
	if width == RefWord {
		c.writeRef16(reg, uint16(rm.Offset))
	} else {
		c.writeRef32(reg, rm.Offset)
	}
	c.cyclesOP++
}

// --- LAHF/SAHF -----------------------------------------------------------

func (c *CPU) opLahf() {
	c.SetAH(byte(c.EFLAGS))
	c.cyclesOP++
}

func (c *CPU) opSahf() {
	v := uint32(c.AH())
	preserved := c.EFLAGS &^ 0xFF
	c.EFLAGS = preserved | (v & 0xD5) | (1 << 1)
	c.cyclesOP++
}

// --- Far-pointer segment loads: LDS/LES/LFS/LGS/LSS --------------------------

func (c *CPU) opLoadFarPtr(segIdx int) {
	width := RefWord
	if c.operandSize() == size32 {
		width = RefDWord
	}
	reg, rm := c.decodeModRM(width)
	if rm.Kind != RefMemory {
		c.raiseFault(ExcUD, 0)
		return
	}
	var offset uint32
	if width == RefWord {
		offset = uint32(c.readRef16(rm))
	} else {
		offset = c.readRef32(rm)
	}
	selOffset := rm.Offset + 2
	if width == RefDWord {
		selOffset = rm.Offset + 4
	}
	sel, _ := c.MMU_rw(rm.Segment, c.Seg[rm.Segment], selOffset, false, rm.Is16Bit)
	if !c.setSeg(segIdx, sel) {
		return
	}
	if width == RefWord {
		c.writeRef16(reg, uint16(offset))
	} else {
		c.writeRef32(reg, offset)
	}
	c.cyclesOP += 4
}

// registerDataOps wires every opcode this file implements.
func registerDataOps(table *[256]func(*CPU)) {
	table[0x88] = func(c *CPU) { c.opMovRegRM8(false) }
	table[0x89] = func(c *CPU) { c.opMovRegRM(false) }
	table[0x8A] = func(c *CPU) { c.opMovRegRM8(true) }
	table[0x8B] = func(c *CPU) { c.opMovRegRM(true) }
	table[0x8C] = func(c *CPU) { c.opMovSegToRM() }
	table[0x8E] = func(c *CPU) { c.opMovRMToSeg() }
	table[0xC6] = func(c *CPU) { c.opMovRMImm8() }
	table[0xC7] = func(c *CPU) { c.opMovRMImm() }
	table[0xA0] = func(c *CPU) { c.opMovAccMoffs(true, false) }
	table[0xA1] = func(c *CPU) { c.opMovAccMoffs(true, true) }
	table[0xA2] = func(c *CPU) { c.opMovAccMoffs(false, false) }
	table[0xA3] = func(c *CPU) { c.opMovAccMoffs(false, true) }

	for i := 0; i < 8; i++ {
		i := i
		table[0xB0+i] = func(c *CPU) { c.opMovRegImm8(i) }
		table[0xB8+i] = func(c *CPU) { c.opMovRegImm(i) }
		table[0x50+i] = func(c *CPU) { c.opPushReg(i) }
		table[0x58+i] = func(c *CPU) { c.opPopReg(i) }
		table[0x90+i] = func(c *CPU) {
			if i == 0 {
				c.cyclesOP++ // NOP
				return
			}
			c.opXchgAXReg(i)
		}
	}

	table[0x68] = func(c *CPU) { c.opPushImm(false) }
	table[0x6A] = func(c *CPU) { c.opPushImm(true) }
	table[0x60] = func(c *CPU) { c.opPushA() }
	table[0x61] = func(c *CPU) { c.opPopA() }

	table[0x06] = func(c *CPU) { c.opPushSeg(SegES) }
	table[0x07] = func(c *CPU) { c.opPopSeg(SegES) }
	table[0x0E] = func(c *CPU) { c.opPushSeg(SegCS) }
	table[0x16] = func(c *CPU) { c.opPushSeg(SegSS) }
	table[0x17] = func(c *CPU) { c.opPopSeg(SegSS) }
	table[0x1E] = func(c *CPU) { c.opPushSeg(SegDS) }
	table[0x1F] = func(c *CPU) { c.opPopSeg(SegDS) }

	table[0x86] = func(c *CPU) { c.opXchgRegRM8() }
	table[0x87] = func(c *CPU) { c.opXchgRegRM() }

	table[0x8D] = func(c *CPU) { c.opLea() }
	table[0x9F] = func(c *CPU) { c.opLahf() }
	table[0x9E] = func(c *CPU) { c.opSahf() }

	table[0xC5] = func(c *CPU) { c.opLoadFarPtr(SegDS) }
	table[0xC4] = func(c *CPU) { c.opLoadFarPtr(SegES) }
}

// register0FDataOps wires the 0F-prefixed LFS/LGS/LSS and MOVZX/MOVSX,
// called from ops_system.go's registerSystemOps alongside the rest of the
// 0F map.
func register0FDataOps(table *[256]func(*CPU)) {
	table[0xB4] = func(c *CPU) { c.opLoadFarPtr(SegFS) }
	table[0xB5] = func(c *CPU) { c.opLoadFarPtr(SegGS) }
	table[0xB2] = func(c *CPU) { c.opLoadFarPtr(SegSS) }

	table[0xB6] = func(c *CPU) { c.opMovZXSX(false, false) }
	table[0xB7] = func(c *CPU) { c.opMovZXSX(false, true) }
	table[0xBE] = func(c *CPU) { c.opMovZXSX(true, false) }
	table[0xBF] = func(c *CPU) { c.opMovZXSX(true, true) }
}

// opMovZXSX implements MOVZX/MOVSX (0F B6/B7/BE/BF): srcSign selects
// zero- vs sign-extension, srcWord selects an 8 vs 16-bit source.
func (c *CPU) opMovZXSX(srcSign, srcWord bool) {
	destWidth := RefWord
	if c.operandSize() == size32 {
		destWidth = RefDWord
	}
	srcWidth := RefByte
	if srcWord {
		srcWidth = RefWord
	}
	c.fetchModRM()
	reg := RegRef{Kind: destWidth, RegIndex: int(c.modReg())}
	rm := c.decodeRM(srcWidth, c.addr16())

	var src32 uint32
	if srcWord {
		v := c.readRef16(rm)
		if srcSign {
			src32 = uint32(int32(int16(v)))
		} else {
			src32 = uint32(v)
		}
	} else {
		v := c.readRef8(rm)
		if srcSign {
			src32 = uint32(int32(int8(v)))
		} else {
			src32 = uint32(v)
		}
	}

	if destWidth == RefWord {
		c.writeRef16(reg, uint16(src32))
	} else {
		c.writeRef32(reg, src32)
	}
	c.cyclesOP += 2
}
