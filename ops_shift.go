// ops_shift.go - Group 2 shift/rotate opcodes, bit test (BT/BTS/BTR/BTC),
// BSF/BSR, and SHLD/SHRD (§4.4).
//
// Grounded on cpu_x86_grp.go's shiftRotate8/16/32 and opBT_Ev_Gv/opBSF_Gv_Ev
// family: same per-width flag derivation (CF from the last bit shifted out,
// OF only defined for count==1), generalized onto the RegRef read/write path
// and a single parameterized width-independent rotate count mask.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// shiftOpKind is the Group 2 sub-opcode selector (ModR/M reg field).
type shiftOpKind int

const (
	shROL shiftOpKind = iota
	shROR
	shRCL
	shRCR
	shSHL
	shSHR
	shSALAlias // undocumented alias of SHL
	shSAR
)

// shift8 applies op to val with the given rotate/shift count (already
// masked to 0-31 by the caller) and sets CF/OF/SF/ZF/PF as appropriate.
func (c *CPU) shift8(val byte, count byte, op shiftOpKind) byte {
	count &= 0x1F
	if count == 0 {
		return val
	}
	var result byte
	switch op {
	case shROL:
		n := count % 8
		result = val<<n | val>>(8-n)
		c.setFlag(FlagCF, result&1 != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>7)^(result&1) != 0)
		}
	case shROR:
		n := count % 8
		result = val>>n | val<<(8-n)
		c.setFlag(FlagCF, result&0x80 != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>7)^((result>>6)&1) != 0)
		}
	case shRCL:
		cf := uint16(0)
		if c.CF() {
			cf = 1
		}
		v := uint16(val)
		for i := byte(0); i < count%9; i++ {
			newCF := (v >> 8) & 1
			v = ((v << 1) | cf) & 0x1FF
			cf = newCF
		}
		result = byte(v)
		c.setFlag(FlagCF, cf != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>7)^byte(cf) != 0)
		}
	case shRCR:
		cf := byte(0)
		if c.CF() {
			cf = 1
		}
		v := val
		for i := byte(0); i < count%9; i++ {
			newCF := v & 1
			v = (v >> 1) | (cf << 7)
			cf = newCF
		}
		result = v
		c.setFlag(FlagCF, cf != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>7)^((result>>6)&1) != 0)
		}
	case shSHL, shSALAlias:
		if count >= 8 {
			c.setFlag(FlagCF, count == 8 && val&1 != 0)
			result = 0
		} else {
			c.setFlag(FlagCF, (val>>(8-count))&1 != 0)
			result = val << count
		}
		if count == 1 {
			c.setFlag(FlagOF, (result>>7)^(val>>7) != 0)
		}
		c.setFlagsCommon(uint32(result), size8)
	case shSHR:
		if count >= 8 {
			c.setFlag(FlagCF, count == 8 && val&0x80 != 0)
			result = 0
		} else {
			c.setFlag(FlagCF, (val>>(count-1))&1 != 0)
			result = val >> count
		}
		if count == 1 {
			c.setFlag(FlagOF, val&0x80 != 0)
		}
		c.setFlagsCommon(uint32(result), size8)
	case shSAR:
		sv := int8(val)
		if count >= 8 {
			if sv < 0 {
				result = 0xFF
				c.setFlag(FlagCF, true)
			} else {
				result = 0
				c.setFlag(FlagCF, false)
			}
		} else {
			c.setFlag(FlagCF, (val>>(count-1))&1 != 0)
			result = byte(sv >> count)
		}
		if count == 1 {
			c.setFlag(FlagOF, false)
		}
		c.setFlagsCommon(uint32(result), size8)
	}
	return result
}

func (c *CPU) shift16(val uint16, count byte, op shiftOpKind) uint16 {
	count &= 0x1F
	if count == 0 {
		return val
	}
	var result uint16
	switch op {
	case shROL:
		n := count % 16
		result = val<<n | val>>(16-n)
		c.setFlag(FlagCF, result&1 != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>15)^(result&1) != 0)
		}
	case shROR:
		n := count % 16
		result = val>>n | val<<(16-n)
		c.setFlag(FlagCF, result&0x8000 != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>15)^((result>>14)&1) != 0)
		}
	case shRCL:
		cf := uint32(0)
		if c.CF() {
			cf = 1
		}
		v := uint32(val)
		for i := byte(0); i < count%17; i++ {
			newCF := (v >> 16) & 1
			v = ((v << 1) | cf) & 0x1FFFF
			cf = newCF
		}
		result = uint16(v)
		c.setFlag(FlagCF, cf != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>15)^uint16(cf) != 0)
		}
	case shRCR:
		cf := uint16(0)
		if c.CF() {
			cf = 1
		}
		v := val
		for i := byte(0); i < count%17; i++ {
			newCF := v & 1
			v = (v >> 1) | (cf << 15)
			cf = newCF
		}
		result = v
		c.setFlag(FlagCF, cf != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>15)^((result>>14)&1) != 0)
		}
	case shSHL, shSALAlias:
		if count >= 16 {
			c.setFlag(FlagCF, count == 16 && val&1 != 0)
			result = 0
		} else {
			c.setFlag(FlagCF, (val>>(16-count))&1 != 0)
			result = val << count
		}
		if count == 1 {
			c.setFlag(FlagOF, (result>>15)^(val>>15) != 0)
		}
		c.setFlagsCommon(uint32(result), size16)
	case shSHR:
		if count >= 16 {
			c.setFlag(FlagCF, count == 16 && val&0x8000 != 0)
			result = 0
		} else {
			c.setFlag(FlagCF, (val>>(count-1))&1 != 0)
			result = val >> count
		}
		if count == 1 {
			c.setFlag(FlagOF, val&0x8000 != 0)
		}
		c.setFlagsCommon(uint32(result), size16)
	case shSAR:
		sv := int16(val)
		if count >= 16 {
			if sv < 0 {
				result = 0xFFFF
				c.setFlag(FlagCF, true)
			} else {
				result = 0
				c.setFlag(FlagCF, false)
			}
		} else {
			c.setFlag(FlagCF, (val>>(count-1))&1 != 0)
			result = uint16(sv >> count)
		}
		if count == 1 {
			c.setFlag(FlagOF, false)
		}
		c.setFlagsCommon(uint32(result), size16)
	}
	return result
}

func (c *CPU) shift32(val uint32, count byte, op shiftOpKind) uint32 {
	count &= 0x1F
	if count == 0 {
		return val
	}
	var result uint32
	switch op {
	case shROL:
		result = val<<count | val>>(32-count)
		c.setFlag(FlagCF, result&1 != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>31)^(result&1) != 0)
		}
	case shROR:
		result = val>>count | val<<(32-count)
		c.setFlag(FlagCF, result&0x80000000 != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>31)^((result>>30)&1) != 0)
		}
	case shRCL:
		cf := uint32(0)
		if c.CF() {
			cf = 1
		}
		v := val
		for i := byte(0); i < count; i++ {
			newCF := v >> 31
			v = (v << 1) | cf
			cf = newCF
		}
		result = v
		c.setFlag(FlagCF, cf != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>31)^cf != 0)
		}
	case shRCR:
		cf := uint32(0)
		if c.CF() {
			cf = 1
		}
		v := val
		for i := byte(0); i < count; i++ {
			newCF := v & 1
			v = (v >> 1) | (cf << 31)
			cf = newCF
		}
		result = v
		c.setFlag(FlagCF, cf != 0)
		if count == 1 {
			c.setFlag(FlagOF, (result>>31)^((result>>30)&1) != 0)
		}
	case shSHL, shSALAlias:
		c.setFlag(FlagCF, (val>>(32-count))&1 != 0)
		result = val << count
		if count == 1 {
			c.setFlag(FlagOF, (result>>31)^(val>>31) != 0)
		}
		c.setFlagsCommon(result, size32)
	case shSHR:
		c.setFlag(FlagCF, (val>>(count-1))&1 != 0)
		result = val >> count
		if count == 1 {
			c.setFlag(FlagOF, val&0x80000000 != 0)
		}
		c.setFlagsCommon(result, size32)
	case shSAR:
		c.setFlag(FlagCF, (val>>(count-1))&1 != 0)
		result = uint32(int32(val) >> count)
		if count == 1 {
			c.setFlag(FlagOF, false)
		}
		c.setFlagsCommon(result, size32)
	}
	return result
}

func (c *CPU) opGrp2Eb(countSrc int) {
	mod := c.fetchModRM()
	op := shiftOpKind((mod >> 3) & 7)
	_, rm := c.decodeModRMGroup(RefByte)
	count := c.shiftCount(countSrc)
	c.writeRef8(rm, c.shift8(c.readRef8(rm), count, op))
	c.cyclesOP += 3
}

func (c *CPU) opGrp2Ev(countSrc int) {
	mod := c.fetchModRM()
	op := shiftOpKind((mod >> 3) & 7)
	if c.operandSize() == size16 {
		_, rm := c.decodeModRMGroup(RefWord)
		count := c.shiftCount(countSrc)
		c.writeRef16(rm, c.shift16(c.readRef16(rm), count, op))
	} else {
		_, rm := c.decodeModRMGroup(RefDWord)
		count := c.shiftCount(countSrc)
		c.writeRef32(rm, c.shift32(c.readRef32(rm), count, op))
	}
	c.cyclesOP += 3
}

// shiftCount resolves the count operand for the three Group 2 encodings:
// 0 = literal 1 (opcodes D0/D1), 1 = CL (D2/D3), 2 = Ib (C0/C1).
func (c *CPU) shiftCount(src int) byte {
	switch src {
	case 0:
		return 1
	case 1:
		return c.reg8(1) // CL
	default:
		return c.fetch8()
	}
}

// --- Bit test: BT/BTS/BTR/BTC (0F A3/AB/B3/BB, reg,reg/mem form) and the
// 0F BA immediate-bit group ---------------------------------------------------

type bitOp int

const (
	bitBT bitOp = iota
	bitBTS
	bitBTR
	bitBTC
)

func (c *CPU) opBitRegRM(op bitOp) {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		bit := c.readRef16(reg) & 15
		val := c.readRef16(rm)
		c.setFlag(FlagCF, (val>>bit)&1 != 0)
		c.applyBit16(op, rm, val, bit)
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		bit := c.readRef32(reg) & 31
		val := c.readRef32(rm)
		c.setFlag(FlagCF, (val>>bit)&1 != 0)
		c.applyBit32(op, rm, val, bit)
	}
	c.cyclesOP += 3
}

func (c *CPU) opBitImmGroup() {
	mod := c.fetchModRM()
	op := bitOp(((mod >> 3) & 7) - 4)
	if c.operandSize() == size16 {
		_, rm := c.decodeModRMGroup(RefWord)
		bit := c.fetch8() & 15
		val := c.readRef16(rm)
		c.setFlag(FlagCF, (val>>bit)&1 != 0)
		c.applyBit16(op, rm, val, uint16(bit))
	} else {
		_, rm := c.decodeModRMGroup(RefDWord)
		bit := c.fetch8() & 31
		val := c.readRef32(rm)
		c.setFlag(FlagCF, (val>>bit)&1 != 0)
		c.applyBit32(op, rm, val, uint32(bit))
	}
	c.cyclesOP += 3
}

func (c *CPU) applyBit16(op bitOp, rm RegRef, val, bit uint16) {
	switch op {
	case bitBTS:
		c.writeRef16(rm, val|1<<bit)
	case bitBTR:
		c.writeRef16(rm, val&^(1<<bit))
	case bitBTC:
		c.writeRef16(rm, val^1<<bit)
	}
}

func (c *CPU) applyBit32(op bitOp, rm RegRef, val, bit uint32) {
	switch op {
	case bitBTS:
		c.writeRef32(rm, val|1<<bit)
	case bitBTR:
		c.writeRef32(rm, val&^(1<<bit))
	case bitBTC:
		c.writeRef32(rm, val^1<<bit)
	}
}

// --- BSF/BSR -----------------------------------------------------------------

func (c *CPU) opBsf(reverse bool) {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		val := c.readRef16(rm)
		if val == 0 {
			c.setFlag(FlagZF, true)
			return
		}
		c.setFlag(FlagZF, false)
		c.writeRef16(reg, bitScan16(val, reverse))
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		val := c.readRef32(rm)
		if val == 0 {
			c.setFlag(FlagZF, true)
			return
		}
		c.setFlag(FlagZF, false)
		c.writeRef32(reg, bitScan32(val, reverse))
	}
	c.cyclesOP += 10
}

func bitScan16(val uint16, reverse bool) uint16 {
	if reverse {
		for i := 15; i >= 0; i-- {
			if val>>uint(i)&1 != 0 {
				return uint16(i)
			}
		}
	}
	for i := 0; i < 16; i++ {
		if val>>uint(i)&1 != 0 {
			return uint16(i)
		}
	}
	return 0
}

func bitScan32(val uint32, reverse bool) uint32 {
	if reverse {
		for i := 31; i >= 0; i-- {
			if val>>uint(i)&1 != 0 {
				return uint32(i)
			}
		}
	}
	for i := 0; i < 32; i++ {
		if val>>uint(i)&1 != 0 {
			return uint32(i)
		}
	}
	return 0
}

// --- SHLD/SHRD ---------------------------------------------------------------

func (c *CPU) opShld(countSrc int) { c.doubleShift(countSrc, true) }
func (c *CPU) opShrd(countSrc int) { c.doubleShift(countSrc, false) }

// doubleShift implements SHLD/SHRD (0F A4/A5 and 0F AC/AD): dst is shifted
// by count bits, with bits shifted in from src rather than zero/sign-fill.
func (c *CPU) doubleShift(countSrc int, left bool) {
	if c.operandSize() == size16 {
		reg, rm := c.decodeModRM(RefWord)
		var count byte
		if countSrc == 0 {
			count = c.reg8(1) & 0x1F
		} else {
			count = c.fetch8() & 0x1F
		}
		if count == 0 {
			return
		}
		dst, src := c.readRef16(rm), c.readRef16(reg)
		var result uint32
		if left {
			result = uint32(dst)<<count | uint32(src)>>(16-count)
			c.setFlag(FlagCF, (dst>>(16-count))&1 != 0)
		} else {
			result = uint32(dst)>>count | uint32(src)<<(16-count)
			c.setFlag(FlagCF, (dst>>(count-1))&1 != 0)
		}
		r16 := uint16(result)
		c.setFlagsCommon(uint32(r16), size16)
		c.writeRef16(rm, r16)
	} else {
		reg, rm := c.decodeModRM(RefDWord)
		var count byte
		if countSrc == 0 {
			count = c.reg8(1) & 0x1F
		} else {
			count = c.fetch8() & 0x1F
		}
		if count == 0 {
			return
		}
		dst, src := c.readRef32(rm), c.readRef32(reg)
		var result uint64
		if left {
			result = uint64(dst)<<count | uint64(src)>>(32-count)
			c.setFlag(FlagCF, (dst>>(32-count))&1 != 0)
		} else {
			result = uint64(dst)>>count | uint64(src)<<(32-count)
			c.setFlag(FlagCF, (dst>>(count-1))&1 != 0)
		}
		r32 := uint32(result)
		c.setFlagsCommon(r32, size32)
		c.writeRef32(rm, r32)
	}
	c.cyclesOP += 3
}

func registerShiftOps(table *[256]func(*CPU)) {
	table[0xD0] = func(c *CPU) { c.opGrp2Eb(0) }
	table[0xD1] = func(c *CPU) { c.opGrp2Ev(0) }
	table[0xD2] = func(c *CPU) { c.opGrp2Eb(1) }
	table[0xD3] = func(c *CPU) { c.opGrp2Ev(1) }
	table[0xC0] = func(c *CPU) { c.opGrp2Eb(2) }
	table[0xC1] = func(c *CPU) { c.opGrp2Ev(2) }
}

// register0FShiftOps wires the 0F-prefixed bit/double-shift opcodes.
func register0FShiftOps(table *[256]func(*CPU)) {
	table[0xA3] = func(c *CPU) { c.opBitRegRM(bitBT) }
	table[0xAB] = func(c *CPU) { c.opBitRegRM(bitBTS) }
	table[0xB3] = func(c *CPU) { c.opBitRegRM(bitBTR) }
	table[0xBB] = func(c *CPU) { c.opBitRegRM(bitBTC) }
	table[0xBA] = func(c *CPU) { c.opBitImmGroup() }

	table[0xBC] = func(c *CPU) { c.opBsf(false) }
	table[0xBD] = func(c *CPU) { c.opBsf(true) }

	table[0xA4] = func(c *CPU) { c.opShld(1) }
	table[0xA5] = func(c *CPU) { c.opShld(0) }
	table[0xAC] = func(c *CPU) { c.opShrd(1) }
	table[0xAD] = func(c *CPU) { c.opShrd(0) }
}
