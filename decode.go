// decode.go - instruction fetch, prefix handling, ModR/M+SIB decode (§4.3).
//
// Grounded on cpu_x86.go's Step() prefix loop and calcEffectiveAddress16/32,
// generalized from flat 32-bit-only addressing to the full 16-bit and
// 32-bit addressing tables with segmentation, and from untyped uint32
// addresses to the tagged RegRef variant the design notes call for.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// RegRefKind tags what a decoded ModR/M operand refers to.
type RegRefKind int

const (
	RefByte RegRefKind = iota
	RefWord
	RefDWord
	RefMemory
)

// RegRef is the tagged variant the design notes call for in place of
// pointer-heavy register aliasing: either a typed register index or a
// memory reference carrying everything mmu.go needs to resolve it.
type RegRef struct {
	Kind RegRefKind

	// Register form.
	RegIndex int

	// Memory form.
	Segment  int // descriptor-cache index, subject to override
	Offset   uint32
	Is16Bit  bool // 16-bit vs 32-bit effective address
}

func (c *CPU) segmentFor(def int) int {
	if c.prefixSeg >= 0 {
		return c.prefixSeg
	}
	return def
}

// fetch8/16/32 read through the MMU at CS:EIP and advance EIP, treating the
// access as an opcode/operand fetch (segdesc resolves per current mode).
func (c *CPU) fetch8() byte {
	v, ok := c.MMU_rb(SegCS, c.Seg[SegCS], c.EIP, true, true)
	if !ok {
		return 0
	}
	c.EIP++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(lo) | uint16(hi)<<8
}

func (c *CPU) fetch32() uint32 {
	lo := c.fetch16()
	hi := c.fetch16()
	return uint32(lo) | uint32(hi)<<16
}

// --- ModR/M and SIB ---------------------------------------------------------

func (c *CPU) fetchModRM() byte {
	if !c.modrmValid {
		c.modrm = c.fetch8()
		c.modrmValid = true
	}
	return c.modrm
}

func (c *CPU) modMod() byte { return c.modrm >> 6 }
func (c *CPU) modReg() byte { return (c.modrm >> 3) & 7 }
func (c *CPU) modRM() byte  { return c.modrm & 7 }

func (c *CPU) fetchSIB() byte {
	if !c.sibValid {
		c.sib = c.fetch8()
		c.sibValid = true
	}
	return c.sib
}

func (c *CPU) sibScale() byte { return c.sib >> 6 }
func (c *CPU) sibIndex() byte { return (c.sib >> 3) & 7 }
func (c *CPU) sibBase() byte  { return c.sib & 7 }

// decodeRM decodes the r/m field of the current ModR/M into a RegRef, given
// the operand width in play (after the 0x66 prefix is folded in by the
// caller). addr16 selects the 16-bit vs 32-bit addressing table per the
// 0x67 prefix.
func (c *CPU) decodeRM(width RegRefKind, addr16 bool) RegRef {
	mod := c.modMod()
	if mod == 3 {
		return RegRef{Kind: width, RegIndex: int(c.modRM())}
	}
	if addr16 {
		return c.decodeMem16(mod)
	}
	return c.decodeMem32(mod)
}

// decodeMem16 implements the 16-bit addressing table (§4.3).
func (c *CPU) decodeMem16(mod byte) RegRef {
	rm := c.modRM()
	seg := SegDS
	var offset uint16

	switch rm {
	case 0:
		offset = c.BX() + c.SI()
	case 1:
		offset = c.BX() + c.DI()
	case 2:
		offset = c.BP() + c.SI()
		seg = SegSS
	case 3:
		offset = c.BP() + c.DI()
		seg = SegSS
	case 4:
		offset = c.SI()
	case 5:
		offset = c.DI()
	case 6:
		if mod == 0 {
			offset = c.fetch16() // disp16 substitutes for BP
		} else {
			offset = c.BP()
			seg = SegSS
		}
	case 7:
		offset = c.BX()
	}

	switch mod {
	case 1:
		disp := int8(c.fetch8())
		offset = uint16(int16(offset) + int16(disp))
	case 2:
		offset += c.fetch16()
	}

	return RegRef{Kind: RefMemory, Segment: c.segmentFor(seg), Offset: uint32(offset), Is16Bit: true}
}

// decodeMem32 implements the 32-bit addressing table including SIB (§4.3).
func (c *CPU) decodeMem32(mod byte) RegRef {
	rm := c.modRM()
	seg := SegDS
	var addr uint32

	if rm == 4 {
		c.fetchSIB()
		scale := c.sibScale()
		index := c.sibIndex()
		base := c.sibBase()

		if base == 5 && mod == 0 {
			addr = c.fetch32()
		} else {
			addr = c.reg32(int(base))
			if base == RegESP || base == RegEBP {
				seg = SegSS
			}
		}
		if index != 4 {
			addr += c.reg32(int(index)) << scale
		}
	} else if rm == 5 && mod == 0 {
		addr = c.fetch32()
	} else {
		addr = c.reg32(int(rm))
		if rm == RegESP || rm == RegEBP {
			seg = SegSS
		}
	}

	switch mod {
	case 1:
		disp := int8(c.fetch8())
		addr = uint32(int32(addr) + int32(disp))
	case 2:
		addr += c.fetch32()
	}

	return RegRef{Kind: RefMemory, Segment: c.segmentFor(seg), Offset: addr, Is16Bit: false}
}

// --- RegRef read/write, dispatching on the tag -----------------------------

func (c *CPU) readRef8(r RegRef) byte {
	if r.Kind != RefMemory {
		return c.reg8(r.RegIndex)
	}
	v, _ := c.MMU_rb(r.Segment, c.Seg[r.Segment], r.Offset, false, r.Is16Bit)
	return v
}

func (c *CPU) writeRef8(r RegRef, v byte) bool {
	if r.Kind != RefMemory {
		c.setReg8(r.RegIndex, v)
		return true
	}
	return c.MMU_wb(r.Segment, c.Seg[r.Segment], r.Offset, v, r.Is16Bit)
}

func (c *CPU) readRef16(r RegRef) uint16 {
	if r.Kind != RefMemory {
		return c.reg16(r.RegIndex)
	}
	v, _ := c.MMU_rw(r.Segment, c.Seg[r.Segment], r.Offset, false, r.Is16Bit)
	return v
}

func (c *CPU) writeRef16(r RegRef, v uint16) bool {
	if r.Kind != RefMemory {
		c.setReg16(r.RegIndex, v)
		return true
	}
	return c.MMU_ww(r.Segment, c.Seg[r.Segment], r.Offset, v, r.Is16Bit)
}

func (c *CPU) readRef32(r RegRef) uint32 {
	if r.Kind != RefMemory {
		return c.reg32(r.RegIndex)
	}
	v, _ := c.MMU_rdw(r.Segment, c.Seg[r.Segment], r.Offset, false, r.Is16Bit)
	return v
}

func (c *CPU) writeRef32(r RegRef, v uint32) bool {
	if r.Kind != RefMemory {
		c.setReg32(r.RegIndex, v)
		return true
	}
	return c.MMU_wdw(r.Segment, c.Seg[r.Segment], r.Offset, v, r.Is16Bit)
}

// eaCycleCost charges a flat 5 cycles for any memory operand, plus 2 with a
// segment-override prefix (§4.3); it does not distinguish addressing modes
// (register-indirect, direct, base+index, displacement forms all cost the
// same). Register operands cost 0.
func (c *CPU) eaCycleCost(r RegRef) uint64 {
	if r.Kind != RefMemory {
		return 0
	}
	cost := uint64(5)
	if c.prefixSeg >= 0 {
		cost += 2
	}
	return cost
}

// decodeModRM is the common entry point executor ops use: fetches ModR/M
// (and SIB if needed), returns (regRef, rmRef) for the given operand width.
func (c *CPU) decodeModRM(width RegRefKind) (reg RegRef, rm RegRef) {
	c.fetchModRM()
	reg = RegRef{Kind: width, RegIndex: int(c.modReg())}
	rm = c.decodeRM(width, c.addr16())
	c.cyclesEA += c.eaCycleCost(rm)
	return
}
