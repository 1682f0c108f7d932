package pcx86

import "testing"

func TestStepAddAXBX(t *testing.T) {
	// §8 scenario 2: "ADD AX,BX" (opcode 01 D8) with AX=7FFFh, BX=0001h.
	c := newTestCPU(t)
	c.SetAX(0x7FFF)
	c.SetBX(0x0001)
	writeCodeBytes(c, 0x01, 0xD8)

	eipBefore := c.EIP
	cycles := c.Step()
	if cycles == 0 {
		t.Fatalf("Step must charge at least 1 cycle")
	}
	if c.AX() != 0x8000 {
		t.Fatalf("AX = %#x, want 0x8000", c.AX())
	}
	if c.EIP != eipBefore+2 {
		t.Fatalf("EIP advanced by %d, want 2", c.EIP-eipBefore)
	}
	if !c.SF() || c.ZF() || !c.OF() || c.CF() {
		t.Fatalf("flags SF=%v ZF=%v OF=%v CF=%v, want SF=1 ZF=0 OF=1 CF=0",
			c.SF(), c.ZF(), c.OF(), c.CF())
	}
}

func TestStepPushPopRoundTrip(t *testing.T) {
	c := newTestCPU(t)
	c.SetSP(0x0100)
	c.SetBX(0xBEEF)
	// PUSH BX (53); POP CX (59).
	writeCodeBytes(c, 0x53, 0x59)

	espBefore := c.SP()
	c.Step() // PUSH BX
	if c.SP() != espBefore-2 {
		t.Fatalf("SP after PUSH = %#x, want %#x", c.SP(), espBefore-2)
	}
	c.Step() // POP CX
	if c.SP() != espBefore {
		t.Fatalf("SP after the PUSH/POP pair must return to its starting value, got %#x want %#x", c.SP(), espBefore)
	}
	if c.CX() != 0xBEEF {
		t.Fatalf("CX after POP = %#x, want 0xBEEF", c.CX())
	}
}

func TestStepUndefinedOpcodeRaisesUD(t *testing.T) {
	c := newTestCPU(t)
	writeCodeBytes(c, 0x0F, 0xFF) // 0F FF is unassigned in every model here
	c.Step()
	if c.CPL != 0 {
		t.Fatalf("sanity: CPL should remain 0 in real mode")
	}
	// The #UD should have been delivered through the real-mode IVT; EIP must
	// have moved to whatever IVT[6] points at, not fallen through silently.
	// With a zeroed IVT, that is CS:IP = 0000:0000.
	if c.Seg[SegCS] != 0 || c.EIP != 0 {
		t.Fatalf("CS:IP after #UD via the zeroed IVT = %04X:%08X, want 0000:00000000", c.Seg[SegCS], c.EIP)
	}
}

// TestStepPushWrapsSPAcrossZero exercises PUSH from SP=0000h: the decrement
// must wrap within the 16-bit real-mode stack segment (SP -> FFFEh) rather
// than spilling into the upper half of ESP, which would make the write land
// outside the segment's 0xFFFF limit and spuriously fault.
func TestStepPushWrapsSPAcrossZero(t *testing.T) {
	c := newTestCPU(t)
	c.SetSP(0x0000)
	c.SetAX(0x1234)
	writeCodeBytes(c, 0x50) // PUSH AX

	c.Step()
	if c.SP() != 0xFFFE {
		t.Fatalf("SP after PUSH from 0000h = %#x, want 0xFFFE", c.SP())
	}
	if c.ESP() != 0x0000FFFE {
		t.Fatalf("ESP = %#x, want no sign-extended upper half (0x0000FFFE)", c.ESP())
	}
	if v, _ := c.m.PhysMem.Read16(0xFFFE); v != 0x1234 {
		t.Fatalf("word at SS:FFFE = %#x, want 0x1234", v)
	}
}

// TestStepAddMemoryOperandUsesRealModeAddressingTable exercises a ModR/M
// memory operand through Step() in the CPU's default boot mode (real mode,
// no 0x67 prefix): decodeModRM must still pick the 16-bit addressing table,
// not the 32-bit SIB table, since operandSize()/addr16() both default to
// 16-bit-ness in real mode by the CS.D-bit trick, not by the 0x67 byte
// having been seen.
//
// ADD AX,[0050h] (mod=00,rm=110 -> direct disp16 in the 16-bit table; the
// same bit pattern means "[ESI], no displacement" in the 32-bit table) is
// the sharpest opcode/ModRM combination to tell the two tables apart: a
// wrong 32-bit decode reads from ESI instead of the disp16 operand and
// never consumes the two displacement bytes that follow the ModRM byte.
func TestStepAddMemoryOperandUsesRealModeAddressingTable(t *testing.T) {
	c := newTestCPU(t)
	c.SetAX(0x0002)
	c.SetSI(0x1234) // must NOT be used as a base register by a 16-bit decode
	writeCodeBytes(c, 0x03, 0x06, 0x50, 0x00)
	c.m.PhysMem.Write16(0x0050, 0x0005)

	eipBefore := c.EIP
	c.Step()

	if c.AX() != 0x0007 {
		t.Fatalf("AX = %#x, want 0x0007 (operand read from disp16 0050h)", c.AX())
	}
	if c.EIP != eipBefore+4 {
		t.Fatalf("EIP advanced by %d, want 4 (opcode+modrm+disp16)", c.EIP-eipBefore)
	}
}

func TestStepRepStosbFillsThreeBytes(t *testing.T) {
	c := newTestCPU(t)
	c.SetAL(0x5A)
	c.SetDI(0x0200)
	c.SetCX(3)
	// REP STOSB.
	writeCodeBytes(c, 0xF3, 0xAA)

	c.Step()
	for c.repActive {
		c.stepRepIteration()
	}

	if c.CX() != 0 {
		t.Fatalf("CX after REP STOSB(3) = %d, want 0", c.CX())
	}
	if c.DI() != 0x0203 {
		t.Fatalf("DI after REP STOSB(3) = %#x, want 0x0203", c.DI())
	}
	for off := uint32(0); off < 3; off++ {
		v, _ := c.m.PhysMem.Read8(0x0200 + off)
		if v != 0x5A {
			t.Fatalf("byte at ES:%#x = %#x, want 0x5A", 0x0200+off, v)
		}
	}
}
