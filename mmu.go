// mmu.go - CPU-facing memory access functions and the segment -> align ->
// paging check order (§4.2).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// Special segdesc sentinel values a caller may pass instead of a real
// segment-cache index (§4.2).
const (
	SegRawLinear    = -1 // segment<<4 base, real-mode convenience
	SegNone         = -2 // no segmentation at all
	SegESLiteral    = -3 // force ES regardless of any override prefix
	SegDirectPaged  = -4 // direct linear address, still subject to paging
	SegDirectNoPage = -128 // direct linear address, bypass paging too
)

// linearize resolves (segdesc, segmentValue, offset) to a linear address
// and performs the segment-level check (§4.2 step 1). segCache is a real
// descriptor-cache index (0-7) when segdesc >= 0.
func (c *CPU) linearize(segdesc int, segmentValue uint16, offset uint32, size uint32, kind accessKind, is16Bit bool) (uint32, bool) {
	switch segdesc {
	case SegRawLinear:
		return (uint32(segmentValue) << 4) + offset, true
	case SegNone, SegDirectPaged, SegDirectNoPage:
		return offset, true
	}

	idx := segdesc
	if segdesc == SegESLiteral {
		idx = SegES
	}
	sc := &c.segCache[idx]

	if !sc.present {
		vec := ExcGP
		if idx == SegSS {
			vec = ExcSS
		}
		return 0, c.raiseFault(vec, 0)
	}
	if !sc.inBounds(offset, size) {
		vec := ExcGP
		if idx == SegSS {
			vec = ExcSS
		}
		return 0, c.raiseFault(vec, 0)
	}
	sz := size16
	if !is16Bit {
		sz = size32
	}
	right := sc.rights[rightsIndex(kind, c.CPL, false, sz)]
	if !right {
		return 0, c.raiseFault(ExcGP, 0)
	}
	return sc.base + offset, true
}

// checkAlignment implements §4.2 step 2: CPL=3, CR0.AM, EFLAGS.AC, and a
// boundary-straddling access together raise #AC.
func (c *CPU) checkAlignment(linear uint32, size uint32) bool {
	if c.CPL != 3 || c.CR0&crAM == 0 || !c.AC() {
		return true
	}
	if linear%size != 0 {
		return c.raiseFault(ExcAC, 0)
	}
	return true
}

// resolvePhysical runs the full three-step access check order for a single
// transaction: segment, alignment, paging (§4.2).
func (c *CPU) resolvePhysical(segdesc int, segmentValue uint16, offset uint32, size uint32, kind accessKind, isOpcodeFetch, is16Bit bool) (uint32, bool) {
	linear, ok := c.linearize(segdesc, segmentValue, offset, size, kind, is16Bit)
	if !ok {
		return 0, false
	}
	if !c.checkAlignment(linear, size) {
		return 0, false
	}
	if segdesc == SegDirectNoPage {
		return linear, true
	}
	return c.translate(linear, kind == accessWrite, isOpcodeFetch)
}

// --- Multi-byte accesses are decomposed into byte checks at request time,
// then executed as a single transaction (§4.2: "matches real silicon's
// behavior of potentially faulting on the last byte of a misaligned word").

func (c *CPU) MMU_rb(segdesc int, segmentValue uint16, offset uint32, isOpcodeFetch, is16Bit bool) (byte, bool) {
	phys, ok := c.resolvePhysical(segdesc, segmentValue, offset, 1, accessRead, isOpcodeFetch, is16Bit)
	if !ok {
		return 0, false
	}
	v, fault := c.m.PhysMem.Read8(phys)
	if fault {
		return 0, c.raiseFault(ExcGP, 0)
	}
	return v, true
}

func (c *CPU) MMU_wb(segdesc int, segmentValue uint16, offset uint32, v byte, is16Bit bool) bool {
	phys, ok := c.resolvePhysical(segdesc, segmentValue, offset, 1, accessWrite, false, is16Bit)
	if !ok {
		return false
	}
	if fault := c.m.PhysMem.Write8(phys, v); fault {
		return c.raiseFault(ExcGP, 0)
	}
	return true
}

// MMU_rw/ww decompose the word access into two byte-granular checks (so a
// fault on the second byte of a page-crossing word is caught) and then
// perform it as one transaction once both checks pass.
func (c *CPU) MMU_rw(segdesc int, segmentValue uint16, offset uint32, isOpcodeFetch, is16Bit bool) (uint16, bool) {
	lo, ok := c.probeByte(segdesc, segmentValue, offset, accessRead, isOpcodeFetch, is16Bit)
	if !ok {
		return 0, false
	}
	hi, ok := c.probeByte(segdesc, segmentValue, offset+1, accessRead, isOpcodeFetch, is16Bit)
	if !ok {
		return 0, false
	}
	return uint16(lo) | uint16(hi)<<8, true
}

func (c *CPU) MMU_ww(segdesc int, segmentValue uint16, offset uint32, v uint16, is16Bit bool) bool {
	if !c.probeByteForWrite(segdesc, segmentValue, offset, is16Bit) {
		return false
	}
	if !c.probeByteForWrite(segdesc, segmentValue, offset+1, is16Bit) {
		return false
	}
	_ = c.MMU_wb(segdesc, segmentValue, offset, byte(v), is16Bit)
	_ = c.MMU_wb(segdesc, segmentValue, offset+1, byte(v>>8), is16Bit)
	return true
}

func (c *CPU) MMU_rdw(segdesc int, segmentValue uint16, offset uint32, isOpcodeFetch, is16Bit bool) (uint32, bool) {
	lo, ok := c.MMU_rw(segdesc, segmentValue, offset, isOpcodeFetch, is16Bit)
	if !ok {
		return 0, false
	}
	hi, ok := c.MMU_rw(segdesc, segmentValue, offset+2, isOpcodeFetch, is16Bit)
	if !ok {
		return 0, false
	}
	return uint32(lo) | uint32(hi)<<16, true
}

func (c *CPU) MMU_wdw(segdesc int, segmentValue uint16, offset uint32, v uint32, is16Bit bool) bool {
	// Probe every byte of the dword before committing any write, so a
	// fault on the last byte of a misaligned dword leaves the first bytes
	// unwritten (§8 scenario 5).
	for i := uint32(0); i < 4; i++ {
		if !c.probeByteForWrite(segdesc, segmentValue, offset+i, is16Bit) {
			return false
		}
	}
	if !c.MMU_ww(segdesc, segmentValue, offset, uint16(v), is16Bit) {
		return false
	}
	return c.MMU_ww(segdesc, segmentValue, offset+2, uint16(v>>16), is16Bit)
}

// probeByte performs the full check-order for a single byte without
// committing a physical read value into architectural state beyond the
// return value - used so multi-byte helpers can validate every byte first.
func (c *CPU) probeByte(segdesc int, segmentValue uint16, offset uint32, kind accessKind, isOpcodeFetch, is16Bit bool) (byte, bool) {
	phys, ok := c.resolvePhysical(segdesc, segmentValue, offset, 1, kind, isOpcodeFetch, is16Bit)
	if !ok {
		return 0, false
	}
	v, fault := c.m.PhysMem.Read8(phys)
	if fault {
		return 0, c.raiseFault(ExcGP, 0)
	}
	return v, true
}

func (c *CPU) probeByteForWrite(segdesc int, segmentValue uint16, offset uint32, is16Bit bool) bool {
	_, ok := c.resolvePhysical(segdesc, segmentValue, offset, 1, accessWrite, false, is16Bit)
	return ok
}
