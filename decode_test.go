package pcx86

import "testing"

// writeCodeBytes is a small test helper that pokes instruction bytes
// directly into physical memory at CS:EIP so Step()/decodeModRM can fetch
// them without a loader. The reset CS:EIP (linear FFFFFFF0 on 386+) lies
// beyond the test machine's RAM, so it first moves CS:EIP to 0100:0000
// (linear 0x1000).
func writeCodeBytes(c *CPU, bytes ...byte) {
	c.setSeg(SegCS, 0x0100)
	c.EIP = 0
	base := c.segCache[SegCS].base + c.EIP
	for i, b := range bytes {
		c.m.PhysMem.Write8(base+uint32(i), b)
	}
}

func TestDecodeMem16AddressingTable(t *testing.T) {
	c := newTestCPU(t)
	c.SetBX(0x0100)
	c.SetSI(0x0010)

	// mod=00 rm=000 -> [BX+SI], no displacement.
	c.modrm = 0x00
	c.modrmValid = true
	ref := c.decodeMem16(0)
	if ref.Kind != RefMemory || ref.Offset != 0x0110 {
		t.Fatalf("[BX+SI] offset = %#x, want 0x0110", ref.Offset)
	}
	if ref.Segment != SegDS {
		t.Fatalf("[BX+SI] default segment must be DS")
	}
}

func TestDecodeMem16BPUsesSS(t *testing.T) {
	c := newTestCPU(t)
	c.SetBP(0x0200)

	// mod=01 rm=110 -> [BP+disp8], default segment switches to SS.
	writeCodeBytes(c, 0x05) // disp8 = 5
	c.modrm = 0x46          // mod=01 reg=000 rm=110
	c.modrmValid = true
	ref := c.decodeMem16(1)
	if ref.Segment != SegSS {
		t.Fatalf("[BP+disp8] must default to SS, got segment %d", ref.Segment)
	}
	if ref.Offset != 0x0205 {
		t.Fatalf("[BP+disp8] offset = %#x, want 0x0205", ref.Offset)
	}
}

func TestDecodeMem16Mod00RM6IsDisp16(t *testing.T) {
	c := newTestCPU(t)
	writeCodeBytes(c, 0x34, 0x12) // disp16 = 0x1234
	c.modrm = 0x06                // mod=00 reg=000 rm=110
	c.modrmValid = true
	ref := c.decodeMem16(0)
	if ref.Offset != 0x1234 {
		t.Fatalf("mod=00,rm=110 must substitute disp16, got offset %#x", ref.Offset)
	}
	if ref.Segment != SegDS {
		t.Fatalf("disp16-only form must still default to DS, got %d", ref.Segment)
	}
}

func TestDecodeMem32SIBNoIndex(t *testing.T) {
	c := newTestCPU(t)
	c.SetEAX(0x1000)

	c.modrm = 0x04 // mod=00 reg=000 rm=100 (SIB follows)
	c.modrmValid = true
	c.sib = 0x20 // scale=00 index=100(none) base=000(EAX)
	c.sibValid = true
	ref := c.decodeMem32(0)
	if ref.Offset != 0x1000 {
		t.Fatalf("SIB base=EAX index=none offset = %#x, want 0x1000", ref.Offset)
	}
}

func TestDecodeMem32SIBScaledIndex(t *testing.T) {
	c := newTestCPU(t)
	c.SetEAX(0x1000) // base
	c.SetECX(0x0002) // index

	c.modrm = 0x04
	c.modrmValid = true
	c.sib = (2 << 6) | (1 << 3) | 0 // scale=2 (x4), index=ECX, base=EAX
	c.sibValid = true
	ref := c.decodeMem32(0)
	want := uint32(0x1000 + 0x0002*4)
	if ref.Offset != want {
		t.Fatalf("SIB scaled index offset = %#x, want %#x", ref.Offset, want)
	}
}

func TestDecodeMem32EBPMod00IsDisp32Only(t *testing.T) {
	c := newTestCPU(t)
	writeCodeBytes(c, 0x78, 0x56, 0x34, 0x12) // disp32 = 0x12345678
	c.modrm = 0x05                            // mod=00 reg=000 rm=101 (EBP -> disp32)
	c.modrmValid = true
	ref := c.decodeMem32(0)
	if ref.Offset != 0x12345678 {
		t.Fatalf("mod=00,rm=101 must be disp32-only, got offset %#x", ref.Offset)
	}
}

func TestDecodeMem32ESPBaseDefaultsToSS(t *testing.T) {
	c := newTestCPU(t)
	c.SetESP(0x2000)

	c.modrm = 0x04 // SIB follows
	c.modrmValid = true
	c.sib = 0x24 // scale=0 index=100(none) base=100(ESP)
	c.sibValid = true
	ref := c.decodeMem32(0)
	if ref.Segment != SegSS {
		t.Fatalf("ESP as SIB base must default segment to SS, got %d", ref.Segment)
	}
}

func TestDecodeRMRegisterForm(t *testing.T) {
	c := newTestCPU(t)
	c.modrm = 0xC3 // mod=11 reg=000 rm=011 -> register form, rm=BX/EBX
	c.modrmValid = true
	ref := c.decodeRM(RefDWord, true)
	if ref.Kind != RefDWord || ref.RegIndex != RegEBX {
		t.Fatalf("register-form ModR/M must decode to RegEBX, got kind=%v idx=%d", ref.Kind, ref.RegIndex)
	}
}

func TestSegmentOverridePrefixWins(t *testing.T) {
	c := newTestCPU(t)
	c.prefixSeg = SegFS
	c.SetBX(0)
	c.SetSI(0)
	c.modrm = 0x00
	c.modrmValid = true
	ref := c.decodeMem16(0)
	if ref.Segment != SegFS {
		t.Fatalf("segment-override prefix must win over the addressing mode's default, got %d", ref.Segment)
	}
}
