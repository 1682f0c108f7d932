package pcx86

import "testing"

func newTestCPU(t *testing.T) *CPU {
	t.Helper()
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m.BSP()
}

func TestFlagAddOverflow(t *testing.T) {
	c := newTestCPU(t)
	// §8 scenario 2: AX=7FFFh + BX=0001h -> AX=8000h, SF=1 ZF=0 OF=1 CF=0 PF=1 AF=1.
	result := c.flagAdd(0x7FFF, 0x0001, size16)
	if result != 0x8000 {
		t.Fatalf("result = %#x, want 0x8000", result)
	}
	if !c.SF() || c.ZF() || !c.OF() || c.CF() || !c.PF() || !c.AF() {
		t.Fatalf("flags = SF=%v ZF=%v OF=%v CF=%v PF=%v AF=%v, want SF=1 ZF=0 OF=1 CF=0 PF=1 AF=1",
			c.SF(), c.ZF(), c.OF(), c.CF(), c.PF(), c.AF())
	}
}

func TestFlagAddCarryOut(t *testing.T) {
	c := newTestCPU(t)
	result := c.flagAdd(0xFF, 0x01, size8)
	if result != 0x00 {
		t.Fatalf("result = %#x, want 0", result)
	}
	if !c.CF() || !c.ZF() || c.SF() {
		t.Fatalf("CF=%v ZF=%v SF=%v, want CF=1 ZF=1 SF=0", c.CF(), c.ZF(), c.SF())
	}
}

func TestFlagSubBorrow(t *testing.T) {
	c := newTestCPU(t)
	result := c.flagSub(0x00, 0x01, size8)
	if result != 0xFF {
		t.Fatalf("result = %#x, want 0xFF", result)
	}
	if !c.CF() || !c.SF() || c.ZF() {
		t.Fatalf("CF=%v SF=%v ZF=%v, want CF=1 SF=1 ZF=0", c.CF(), c.SF(), c.ZF())
	}
}

func TestFlagLogicClearsCFOF(t *testing.T) {
	c := newTestCPU(t)
	c.setFlag(FlagCF, true)
	c.setFlag(FlagOF, true)
	c.flagLogic(0x00FF&0x0F0F, size16)
	if c.CF() || c.OF() {
		t.Fatalf("CF/OF must be cleared by a logic op, got CF=%v OF=%v", c.CF(), c.OF())
	}
}

func TestFlagIncDecPreservesCF(t *testing.T) {
	c := newTestCPU(t)
	c.setFlag(FlagCF, true)
	c.flagIncDec(0x7FFF, false, size16)
	if !c.CF() {
		t.Fatalf("INC must not touch CF")
	}
	if !c.OF() {
		t.Fatalf("INC of 0x7FFF must set OF")
	}
}

func TestParityTable(t *testing.T) {
	cases := []struct {
		v    byte
		even bool
	}{
		{0x00, true},
		{0x01, false},
		{0x03, true},
		{0xFF, true},
		{0x0F, true},
		{0x07, false},
	}
	for _, tc := range cases {
		if parityTable[tc.v] != tc.even {
			t.Errorf("parityTable[%#x] = %v, want %v", tc.v, parityTable[tc.v], tc.even)
		}
	}
}

func TestEflagsWriteFilter(t *testing.T) {
	// Bit 1 is always forced set, bits 3/5 always cleared, regardless of model.
	v := eflagsWriteFilter(Model386, 0)
	if v&(1<<1) == 0 {
		t.Fatalf("bit 1 must be forced set")
	}
	if v&(1<<3) != 0 || v&(1<<5) != 0 {
		t.Fatalf("bits 3/5 must be cleared, got %#x", v)
	}

	// 286 clears bit 15 and the 386+ flags.
	v = eflagsWriteFilter(Model286, 0xFFFFFFFF)
	if v&(1<<15) != 0 {
		t.Fatalf("286 must clear bit 15")
	}
	if v&FlagVM != 0 || v&FlagAC != 0 {
		t.Fatalf("286 must clear VM/AC, got %#x", v)
	}

	// 186 and earlier force the high nibble to all ones.
	v = eflagsWriteFilter(Model186, 0)
	if v&0xF000 != 0xF000 {
		t.Fatalf("186 must force high nibble to 1s, got %#x", v)
	}
}
