// paging.go - TLB and page-table walk (§4.2).
//
// Grounded on memory_bus.go's page-keyed IORegion map for the "cache keyed
// by page number" shape, generalized here to a 4KB-page virtual-to-physical
// TLB rather than an I/O region lookup.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

const (
	pageSize   = 0x1000
	pageMask   = pageSize - 1
	tlbEntries = 64 // direct-mapped
)

// tlbEntry caches one linear-page -> physical-page translation plus rights.
type tlbEntry struct {
	valid    bool
	linear   uint32 // page number (linear >> 12)
	physical uint32 // page number
	writable bool
	user     bool
	global   bool
}

// TLB is a direct-mapped translation cache, per CPU.
type TLB struct {
	entries [tlbEntries]tlbEntry
}

func tlbSlot(linearPage uint32) int {
	return int(linearPage) % tlbEntries
}

// Paging_initTLB clears every entry unconditionally - used on hard reset.
func (c *CPU) Paging_initTLB() {
	c.tlb = TLB{}
}

// Paging_clearTLB is the CR3-write variant: preserves global entries on
// Pentium Pro+ (CR4.PGE), matching real silicon's selective flush.
func (c *CPU) Paging_clearTLB() {
	if c.Model >= ModelPentiumPro && c.CR4&cr4PGE != 0 {
		for i := range c.tlb.entries {
			e := &c.tlb.entries[i]
			if e.valid && !e.global {
				*e = tlbEntry{}
			}
		}
		return
	}
	c.tlb = TLB{}
}

// pfErrorCode bits (§4.2): present, write, user, reserved.
const (
	pfPresent  = 1 << 0
	pfWrite    = 1 << 1
	pfUser     = 1 << 2
	pfReserved = 1 << 3
)

// translate walks (or hits the TLB for) a linear address, returning the
// physical address. On failure it raises #PF with CR2 set to the faulting
// linear address and the four-bit error code populated, and returns false.
func (c *CPU) translate(linear uint32, write bool, isOpcodeFetch bool) (uint32, bool) {
	if c.CR0&crPG == 0 || c.Mode == ModeReal {
		return linear, true
	}

	user := c.CPL == 3
	page := linear >> 12
	slot := tlbSlot(page)
	e := &c.tlb.entries[slot]
	if e.valid && e.linear == page {
		if write && !e.writable {
			return 0, c.pageFault(linear, write, user, false)
		}
		if user && e.user == false {
			return 0, c.pageFault(linear, write, user, false)
		}
		return (e.physical << 12) | (linear & pageMask), true
	}

	phys, writable, uaccess, present, reserved, ok := c.walkPageTables(linear)
	if !ok {
		return 0, false
	}
	if !present {
		return 0, c.pageFault(linear, write, user, reserved)
	}
	if user && !uaccess {
		return 0, c.pageFault(linear, write, user, reserved)
	}
	if write && !writable {
		return 0, c.pageFault(linear, write, user, reserved)
	}

	*e = tlbEntry{valid: true, linear: page, physical: phys, writable: writable, user: uaccess}
	return (phys << 12) | (linear & pageMask), true
}

func (c *CPU) pageFault(linear uint32, write, user, reserved bool) bool {
	code := uint32(0) // present bit cleared = not-present fault
	if write {
		code |= pfWrite
	}
	if user {
		code |= pfUser
	}
	if reserved {
		code |= pfReserved
	}
	c.CR2 = linear
	return c.raiseFault(ExcPF, code)
}

// walkPageTables performs the two-level 4KB-page walk (CR4.PSE 4MB pages
// are not modeled; the spec's scenario 5 only exercises 4KB granularity).
// Returns (physicalPage, writable, userAccessible, present, reservedBitSet, ok).
// ok is always true: a physical-memory access failure while walking is
// reported as present=false, the same as a not-present entry.
func (c *CPU) walkPageTables(linear uint32) (phys uint32, writable, user, present, reserved bool, ok bool) {
	pdIndex := (linear >> 22) & 0x3FF
	ptIndex := (linear >> 12) & 0x3FF

	pdeAddr := (c.CR3 &^ pageMask) + pdIndex*4
	pdeRaw, fault := c.m.PhysMem.Read32(pdeAddr)
	if fault {
		return 0, false, false, false, false, true
	}
	if pdeRaw&1 == 0 {
		return 0, false, false, false, false, true
	}
	pdWritable := pdeRaw&2 != 0
	pdUser := pdeRaw&4 != 0

	pteAddr := ((pdeRaw &^ pageMask) + ptIndex*4)
	pteRaw, fault := c.m.PhysMem.Read32(pteAddr)
	if fault {
		return 0, false, false, false, false, true
	}
	if pteRaw&1 == 0 {
		return 0, false, false, false, false, true
	}

	writable = pdWritable && (pteRaw&2 != 0)
	user = pdUser && (pteRaw&4 != 0)
	present = true
	phys = pteRaw >> 12
	ok = true
	return
}
