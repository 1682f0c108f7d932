// segment.go - segment descriptor cache (§3, §4.2).
//
// Grounded on the teacher's calcEffectiveAddress16/32 default-segment
// selection (cpu_x86.go), generalized from a flat model to a real
// descriptor cache with precalculated base/limit/roof/rights fields.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// Descriptor type-field values relevant to segment (non-gate) descriptors.
const (
	descTypeDataRO       = 0x0
	descTypeDataRW       = 0x2
	descTypeDataRODown   = 0x4
	descTypeDataRWDown   = 0x6
	descTypeCodeEx       = 0x8
	descTypeCodeExRead   = 0xA
	descTypeCodeConform  = 0xC
	descTypeCodeConfRead = 0xE
)

// segDescCache is one entry of the 8-slot descriptor cache: the raw 8-byte
// descriptor plus precalculated fields, recomputed atomically whenever the
// segment register is loaded.
type segDescCache struct {
	raw [8]byte

	base  uint32
	limit uint32 // already expanded as appropriate for the granularity bit
	roof  uint32 // for top-down segments: the wrap boundary

	topdown    bool
	present    bool
	executable bool
	conforming bool
	writable   bool
	readable   bool
	dpl        int
	typ        int

	// rights is a 256-entry decision table keyed by
	// (access_kind<<6 | requestedCPL<<4 | alignBit<<3 | opSizeBits),
	// precomputed so mmu.go never has to re-derive DPL/type logic per byte.
	rights [256]bool
}

// accessKind distinguishes the three ways a segment can be touched, used to
// index the rights table.
type accessKind int

const (
	accessRead accessKind = iota
	accessWrite
	accessExecute
)

func rightsIndex(kind accessKind, cpl int, align bool, size opSize) int {
	idx := int(kind) << 6
	idx |= (cpl & 3) << 4
	if align {
		idx |= 1 << 3
	}
	idx |= int(size) & 0x3
	return idx & 0xFF
}

// decodeDescriptor unpacks a raw 8-byte GDT/LDT descriptor into base/limit/
// rights fields following the canonical Intel layout.
func decodeDescriptor(raw [8]byte) (base, limit uint32, g, db bool, typ int, s, present bool, dpl int) {
	limit = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[6]&0xF)<<16
	base = uint32(raw[2]) | uint32(raw[3])<<8 | uint32(raw[4])<<16 | uint32(raw[7])<<24
	typ = int(raw[5] & 0xF)
	s = raw[5]&0x10 != 0
	dpl = int((raw[5] >> 5) & 3)
	present = raw[5]&0x80 != 0
	g = raw[6]&0x80 != 0
	db = raw[6]&0x40 != 0
	if g {
		limit = (limit << 12) | 0xFFF
	}
	return
}

// recalc rebuilds every precomputed field of a cache entry from its raw
// bytes. Called by segmentWritten so no other code path can observe a stale
// precalc (§3 invariant).
func (sc *segDescCache) recalc() {
	base, limit, _, _, typ, s, present, dpl := decodeDescriptor(sc.raw)
	sc.base = base
	sc.limit = limit
	sc.present = present
	sc.dpl = dpl
	sc.typ = typ

	if !s {
		// System descriptor (gate/TSS/LDT): not a data/code segment view,
		// used as-is by task.go/interrupt.go for base/limit only.
		sc.executable = false
		sc.conforming = false
		sc.writable = false
		sc.readable = false
		sc.topdown = false
		sc.roof = 0xFFFFFFFF
		return
	}

	sc.executable = typ&descTypeCodeEx != 0
	if sc.executable {
		sc.conforming = typ&0x4 != 0
		sc.readable = typ&0x2 != 0
		sc.writable = false
		sc.topdown = false
		sc.roof = sc.limit
	} else {
		sc.readable = true
		sc.writable = typ&0x2 != 0
		sc.topdown = typ&0x4 != 0
		if sc.topdown {
			// Top-down (expand-down) data segment: valid offsets are
			// (limit, 0xFFFF] or (limit, 0xFFFFFFFF], i.e. offset must
			// exceed the limit rather than stay below it.
			sc.roof = ^uint32(0)
		} else {
			sc.roof = sc.limit
		}
	}

	for i := range sc.rights {
		sc.rights[i] = sc.computeRight(i)
	}
}

func (sc *segDescCache) computeRight(idx int) bool {
	kind := accessKind((idx >> 6) & 0x3)
	cpl := (idx >> 4) & 0x3
	if !sc.present {
		return false
	}
	switch kind {
	case accessExecute:
		return sc.executable && (sc.conforming || sc.dpl >= cpl)
	case accessWrite:
		if sc.executable {
			return false
		}
		return sc.writable && sc.dpl >= cpl
	default: // accessRead
		if sc.executable {
			return sc.readable
		}
		return true
	}
}

// inBounds reports whether offset is a legal access into this segment at
// the given size, honoring expand-down semantics (§4.2 step 1).
func (sc *segDescCache) inBounds(offset uint32, size uint32) bool {
	end := offset + size - 1
	if end < offset {
		return false // wrapped
	}
	if sc.topdown {
		return offset > sc.limit
	}
	return end <= sc.limit
}

// segmentWritten loads a selector into Seg[idx] and recalculates the cache
// entry. Returns false (with a fault raised) on a protection violation; the
// raw real-mode/V86 path never faults.
func (c *CPU) segmentWritten(idx int, selector uint16) bool {
	if c.Mode == ModeReal || c.Mode == ModeV86 {
		c.Seg[idx] = selector
		sc := &c.segCache[idx]
		sc.base = uint32(selector) << 4
		sc.limit = 0xFFFF
		sc.roof = 0xFFFF
		sc.present = true
		sc.executable = idx == SegCS
		sc.conforming = false
		sc.writable = true
		sc.readable = true
		sc.topdown = false
		sc.typ = descTypeDataRW
		for i := range sc.rights {
			sc.rights[i] = true
		}
		return true
	}

	// Protected mode: null selector is legal for DS/ES/FS/GS (deferred
	// fault until use) but illegal for SS (§8 boundary case) and CS.
	sel := selector &^ 3
	rpl := int(selector & 3)
	if sel == 0 {
		if idx == SegSS || idx == SegCS {
			return c.raiseFault(ExcGP, 0)
		}
		c.Seg[idx] = selector
		c.segCache[idx] = segDescCache{present: false}
		return true
	}

	raw, ok := c.fetchDescriptor(selector)
	if !ok {
		return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
	}

	var sc segDescCache
	sc.raw = raw
	sc.recalc()

	if !sc.present {
		vec := ExcNP
		if idx == SegSS {
			vec = ExcSS
		}
		return c.raiseFault(vec, uint32(selector)&0xFFF8)
	}

	switch idx {
	case SegSS:
		if sc.executable || !sc.writable || (sc.dpl != c.CPL || rpl != c.CPL) {
			return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
		}
	case SegCS:
		if !sc.executable {
			return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
		}
		if sc.conforming {
			if sc.dpl > c.CPL {
				return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
			}
			// Conforming segment: CPL is NOT changed (§8 boundary case).
		} else {
			if sc.dpl != c.CPL || rpl > c.CPL {
				return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
			}
		}
	default:
		if sc.executable && !sc.readable {
			return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
		}
		maxCPL := c.CPL
		if rpl > maxCPL {
			maxCPL = rpl
		}
		if !sc.executable && maxCPL > sc.dpl {
			return c.raiseFault(ExcGP, uint32(selector)&0xFFF8)
		}
	}

	c.Seg[idx] = selector
	c.segCache[idx] = sc
	if idx == SegSS {
		c.deriveCPL()
	}
	return true
}

// fetchDescriptor reads an 8-byte descriptor from the GDT or the current
// LDT, depending on the selector's table-indicator bit.
func (c *CPU) fetchDescriptor(selector uint16) ([8]byte, bool) {
	var raw [8]byte
	index := uint32(selector>>3) * 8
	var tableBase uint32
	var tableLimit uint32
	if selector&4 != 0 {
		tableBase = c.segCache[SegLDTR].base
		tableLimit = c.segCache[SegLDTR].limit
	} else {
		tableBase = c.GDTR.Base
		tableLimit = uint32(c.GDTR.Limit)
	}
	if index+7 > tableLimit {
		return raw, false
	}
	addr := tableBase + index
	for i := 0; i < 8; i++ {
		v, fault := c.m.PhysMem.Read8(addr + uint32(i))
		if fault {
			return raw, false
		}
		raw[i] = v
	}
	return raw, true
}
