package pcx86

import "testing"

// TestRepMovswWrapsIndexesWithinRealModeSegment exercises §8 scenario 3:
// REP MOVSW with DF=1 starting SI=0000h, DI=000Ah, CX=3 must wrap SI/DI
// within the 16-bit real-mode segment rather than letting the decrement spill
// into the upper half of ESI/EDI (the stepIndex fix).
func TestRepMovswWrapsIndexesWithinRealModeSegment(t *testing.T) {
	c := newTestCPU(t)
	c.SetSI(0x0000)
	c.SetDI(0x000A)
	c.SetCX(3)
	c.setFlag(FlagDF, true)

	m := c.m
	m.PhysMem.Write16(0x0000, 0x1111)
	m.PhysMem.Write16(0xFFFE, 0x2222)
	m.PhysMem.Write16(0xFFFC, 0x3333)

	c.repSegOverride = -1
	c.beginRep(repMovs, size16)
	for c.repActive {
		c.stepRepIteration()
	}

	if c.SI() != 0xFFFA {
		t.Fatalf("SI = %#x, want 0xFFFA", c.SI())
	}
	if c.DI() != 0x0004 {
		t.Fatalf("DI = %#x, want 0x0004", c.DI())
	}
	if c.CX() != 0 {
		t.Fatalf("CX = %#x, want 0", c.CX())
	}
	// EDI/ESI upper halves must stay zero: no 32-bit spill from the wrap.
	if c.EDI() != 0x0004 || c.ESI() != 0xFFFA {
		t.Fatalf("ESI/EDI = %#x/%#x, want no sign-extended upper half", c.ESI(), c.EDI())
	}

	if v, _ := m.PhysMem.Read16(0x000A); v != 0x1111 {
		t.Fatalf("ES:000A = %#x, want 0x1111", v)
	}
	if v, _ := m.PhysMem.Read16(0x0008); v != 0x2222 {
		t.Fatalf("ES:0008 = %#x, want 0x2222", v)
	}
	if v, _ := m.PhysMem.Read16(0x0006); v != 0x3333 {
		t.Fatalf("ES:0006 = %#x, want 0x3333", v)
	}
}

func TestRepWithZeroCountExecutesNoIterations(t *testing.T) {
	c := newTestCPU(t)
	c.SetCX(0)
	c.setFlag(FlagZF, true)
	c.SetSI(0x0100)
	c.SetDI(0x0200)

	c.repSegOverride = -1
	c.beginRep(repCmps, size8)

	if c.repActive {
		t.Fatalf("REP with CX=0 must not become active")
	}
	if c.SI() != 0x0100 || c.DI() != 0x0200 {
		t.Fatalf("SI/DI must be untouched by a zero-count REP, got %#x/%#x", c.SI(), c.DI())
	}
}

func TestRepeCmpsStopsOnFirstMismatch(t *testing.T) {
	c := newTestCPU(t)
	c.SetSI(0x0000)
	c.SetDI(0x0010)
	c.SetCX(5)
	c.setFlag(FlagDF, false)
	c.prefixRepE = true
	c.repIsRepE = true

	m := c.m
	for i := 0; i < 5; i++ {
		m.PhysMem.Write8(uint32(i), 0xAA)
		m.PhysMem.Write8(uint32(0x10+i), 0xAA)
	}
	m.PhysMem.Write8(0x02, 0xBB) // third byte differs

	c.repSegOverride = -1
	c.beginRep(repCmps, size8)
	for c.repActive {
		c.stepRepIteration()
	}

	if c.CX() != 2 {
		t.Fatalf("REPE CMPSB must stop after the mismatch at element 2, CX = %d, want 2", c.CX())
	}
	if c.ZF() {
		t.Fatalf("ZF must be clear after the mismatching compare")
	}
}

// TestInterruptMidRepResumesAtLastPrefixNotFirst exercises the documented
// 8086/286 erratum: ES: REP STOSB (26 F3 AA) interrupted between elements
// must resume at the F3 byte, not at the 0x26 segment override ahead of it -
// the override is lost on resumption, same as on real silicon.
func TestInterruptMidRepResumesAtLastPrefixNotFirst(t *testing.T) {
	c := newTestCPU(t)
	c.SetAL(0x5A)
	c.SetDI(0x0300)
	c.SetCX(5)
	c.SetSP(0x2000)
	writeCodeBytes(c, 0x26, 0xF3, 0xAA) // ES: REP STOSB
	eipBefore := c.EIP

	c.Step()
	if !c.repActive {
		t.Fatalf("setup: REP STOSB with CX=5 must still be active after one element")
	}
	wantPrefixEIP := eipBefore + 1 // the F3 byte, one past the 0x26 override
	if c.repPrefixEIP != wantPrefixEIP {
		t.Fatalf("repPrefixEIP = %#x, want %#x", c.repPrefixEIP, wantPrefixEIP)
	}

	// IVT[0x21]: CS:IP = 0x0060:0x0200, as in the flat-IVT dispatch test.
	c.m.PhysMem.Write16(0x21*4, 0x0200)
	c.m.PhysMem.Write16(0x21*4+2, 0x0060)

	c.beginInstructionForInterrupt()
	c.deliverException(Exception(0x21), 0, false, true)

	sp := c.gp[RegESP]
	pushedIP, _ := c.MMU_rw(SegSS, c.Seg[SegSS], sp, false, true)
	if uint32(pushedIP) != wantPrefixEIP {
		t.Fatalf("pushed return IP = %#x, want %#x (the F3 byte, not the 0x26 override)", pushedIP, wantPrefixEIP)
	}
}
