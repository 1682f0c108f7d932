package pcx86

import "testing"

// buildPageTables wires a single page directory entry -> single page table
// at the given physical addresses, with entries for ptIndexes marked present
// (mapping 1:1 to physPage+i) and every other entry left zeroed (not present).
func buildPageTables(m *Machine, pdBase, ptBase uint32, physPage uint32, presentPTIndexes ...uint32) {
	m.PhysMem.Write32(pdBase, ptBase|7) // present|writable|user
	present := make(map[uint32]bool)
	for _, i := range presentPTIndexes {
		present[i] = true
	}
	for i := uint32(0); i < 1024; i++ {
		if present[i] {
			m.PhysMem.Write32(ptBase+i*4, (physPage+i)<<12|7)
		}
	}
}

func TestPageFaultMisalignedDwordWriteAcrossPageBoundary(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 128})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	c := m.BSP()

	const pdBase = 0x4000
	const ptBase = 0x5000
	const physPage = 0x10 // -> physical 0x10000, page 1 of the mapped pair

	// linear 0x1FFE..0x2001 straddles page 1 (present) and page 2 (absent).
	buildPageTables(m, pdBase, ptBase, physPage, 1)

	c.CR3 = pdBase
	c.CR0 |= crPE | crPG
	c.deriveCPL()
	c.Paging_clearTLB()

	ok := c.MMU_wdw(SegDirectPaged, 0, 0x1FFE, 0xAABBCCDD, false)
	if ok {
		t.Fatalf("write across a not-present page must fault")
	}
	if !c.faultRaised || c.faultVector != ExcPF {
		t.Fatalf("want #PF, got raised=%v vector=%v", c.faultRaised, c.faultVector)
	}
	if c.CR2 != 0x2000 {
		t.Fatalf("CR2 = %#x, want 0x00002000", c.CR2)
	}
	// present=0 (cleared), write=1, user=0 (CPL0) -> error code 0b010 = 2.
	if c.faultErrorCode != pfWrite {
		t.Fatalf("error code = %#x, want %#x (write, not-present, supervisor)", c.faultErrorCode, pfWrite)
	}

	// The first two bytes (within the present page) must not have been
	// written since the whole dword is probed before any byte is committed.
	b0, _ := m.PhysMem.Read8(0x10000 + 0xFFE)
	b1, _ := m.PhysMem.Read8(0x10000 + 0xFFF)
	if b0 != 0 || b1 != 0 {
		t.Fatalf("bytes in the present page must be untouched on a failed probe, got %#x %#x", b0, b1)
	}
}

func TestPageFaultUserModeSetsUserBit(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 128})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	c := m.BSP()

	const pdBase = 0x4000
	const ptBase = 0x5000
	buildPageTables(m, pdBase, ptBase, 0x10) // no PTE present at all

	c.CR3 = pdBase
	c.CR0 |= crPE | crPG
	c.Seg[SegSS] = 3 // RPL=3 -> CPL=3
	c.deriveCPL()
	c.Paging_clearTLB()

	ok := c.MMU_wdw(SegDirectPaged, 0, 0x1000, 0, false)
	if ok {
		t.Fatalf("write to a not-present page must fault")
	}
	if c.faultErrorCode&pfUser == 0 {
		t.Fatalf("error code must have the user bit set at CPL3, got %#x", c.faultErrorCode)
	}
}

func TestTLBHitSkipsPageWalk(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: ModelPentium, MemoryKB: 128})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	c := m.BSP()

	const pdBase = 0x4000
	const ptBase = 0x5000
	buildPageTables(m, pdBase, ptBase, 0x10, 0)

	c.CR3 = pdBase
	c.CR0 |= crPE | crPG
	c.deriveCPL()
	c.Paging_clearTLB()

	phys, ok := c.translate(0x0010, false, false)
	if !ok || phys != 0x10010 {
		t.Fatalf("translate(0x10) = %#x,%v want 0x10010,true", phys, ok)
	}

	// Corrupt the backing PTE after the TLB has cached the mapping; a cache
	// hit must not re-walk and must still return the originally cached page.
	m.PhysMem.Write32(ptBase, 0)
	phys, ok = c.translate(0x0020, false, false)
	if !ok || phys != 0x10020 {
		t.Fatalf("TLB hit should bypass the (now-cleared) page table, got %#x,%v", phys, ok)
	}
}
