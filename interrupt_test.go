package pcx86

import "testing"

// writeGateOrDesc writes one 8-byte IDT/GDT-style gate/descriptor entry.
func writeGateOrDesc(m *Machine, addr uint32, b0, b1, b2, b3, b4, b5, b6, b7 byte) {
	buf := [8]byte{b0, b1, b2, b3, b4, b5, b6, b7}
	for i, b := range buf {
		m.PhysMem.Write8(addr+uint32(i), b)
	}
}

// TestInterruptNotPresentSelectorEscalatesToNP builds a vector whose IDT gate
// points at a not-present GDT code segment, and a #NP handler gate wired to
// a valid segment. Delivering the original vector must not invoke it
// directly - it must redirect into #NP with an error code built from the
// offending selector (§4.6 step 4 / §8 not-present-selector scenario).
func TestInterruptNotPresentSelectorEscalatesToNP(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 128})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	c := m.BSP()
	c.CR0 |= crPE
	c.deriveCPL()
	if c.Mode != ModeProtected || c.CPL != 0 {
		t.Fatalf("setup: mode=%v cpl=%d, want protected/0", c.Mode, c.CPL)
	}

	const gdtBase = 0x2000
	const idtBase = 0x1000
	c.GDTR = descTableReg{Base: gdtBase, Limit: 0xFFFF}
	c.IDTR = descTableReg{Base: idtBase, Limit: 0xFFFF}

	// GDT selector 0x08: present bit clear -> this is the faulty segment.
	writeGateOrDesc(m, gdtBase+8, 0, 0, 0, 0, 0, 0x00, 0, 0)
	// GDT selector 0x10: flat, present, non-conforming code segment.
	writeGateOrDesc(m, gdtBase+16, 0xFF, 0xFF, 0, 0, 0, 0x9A, 0xCF, 0)

	// IDT[0x20]: interrupt gate -> selector 0x08 (the not-present segment).
	writeGateOrDesc(m, idtBase+0x20*8, 0, 0, 0x08, 0x00, 0, 0x8E, 0, 0)
	// IDT[0x0B] (#NP handler): interrupt gate -> selector 0x10, entry 0x4000.
	writeGateOrDesc(m, idtBase+0x0B*8, 0x00, 0x40, 0x10, 0x00, 0, 0x8E, 0, 0)

	c.beginInstruction()
	c.deliverException(Exception(0x20), 0, false, true)

	if c.Seg[SegCS] != 0x10 {
		t.Fatalf("CS after #NP delivery = %#x, want 0x0010", c.Seg[SegCS])
	}
	if c.EIP != 0x4000 {
		t.Fatalf("EIP after #NP delivery = %#x, want 0x4000", c.EIP)
	}

	wantCode := uint32(0x08) | 1 // selector&0xFFF8 | EXT(external-to-delivery bit)
	esp := c.gp[RegESP]
	codeOnStack, _ := c.MMU_rw(SegSS, c.Seg[SegSS], esp, false, true)
	if uint32(codeOnStack) != wantCode {
		t.Fatalf("pushed #NP error code = %#x, want %#x", codeOnStack, wantCode)
	}
}

func TestInterruptRealModeVectorIsFlatIVT(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	c := m.BSP() // boots real mode

	// IVT[0x21]: CS:IP = 0x0060:0x0200.
	m.PhysMem.Write16(0x21*4, 0x0200)
	m.PhysMem.Write16(0x21*4+2, 0x0060)

	c.beginInstruction()
	c.deliverException(Exception(0x21), 0, false, true)

	if c.Seg[SegCS] != 0x0060 || c.EIP != 0x0200 {
		t.Fatalf("real-mode vector dispatch CS:IP = %04X:%04X, want 0060:0200", c.Seg[SegCS], c.EIP)
	}
	if c.IF() || c.TF() {
		t.Fatalf("IF/TF must be cleared on interrupt entry")
	}
}

func TestTripleFaultSchedulesHardReset(t *testing.T) {
	c := newTestCPU(t)
	c.triggerTripleFault()
	if !c.resetPending || c.resetPendingKind != resetHard {
		t.Fatalf("triple fault must schedule a pending hard reset")
	}
}
