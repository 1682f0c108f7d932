package pcx86

import "testing"

func TestRegisterAliasing(t *testing.T) {
	c := newTestCPU(t)
	c.SetEAX(0x12345678)
	if c.AX() != 0x5678 {
		t.Fatalf("AX = %#x, want 0x5678", c.AX())
	}
	if c.AL() != 0x78 {
		t.Fatalf("AL = %#x, want 0x78", c.AL())
	}
	if c.AH() != 0x56 {
		t.Fatalf("AH = %#x, want 0x56", c.AH())
	}

	c.SetAL(0xFF)
	if c.EAX() != 0x123456FF {
		t.Fatalf("EAX after SetAL = %#x, want 0x123456FF", c.EAX())
	}
	c.SetAH(0x00)
	if c.EAX() != 0x123400FF {
		t.Fatalf("EAX after SetAH = %#x, want 0x123400FF", c.EAX())
	}
}

func TestRealModeBoot(t *testing.T) {
	// §8 scenario 1: RESET -> CS:IP = F000:FFF0, 386+ CS.base forced so
	// the first fetch reads linear FFFFFFF0.
	c := newTestCPU(t)
	if c.Seg[SegCS] != 0xF000 || c.EIP != 0xFFF0 {
		t.Fatalf("CS:IP = %04X:%04X, want F000:FFF0", c.Seg[SegCS], c.EIP)
	}
	if c.segCache[SegCS].base != 0xFFFF0000 {
		t.Fatalf("CS base = %#x, want 0xFFFF0000 on 386+", c.segCache[SegCS].base)
	}
	linear := c.segCache[SegCS].base + c.EIP
	if linear != 0xFFFFFFF0 {
		t.Fatalf("first fetch linear = %#x, want 0xFFFFFFF0", linear)
	}
}

func TestRealModeBoot8086(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model8086, MemoryKB: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	c := m.BSP()
	if c.segCache[SegCS].base != 0xF0000 {
		t.Fatalf("8086 CS base = %#x, want 0xF0000", c.segCache[SegCS].base)
	}
}

func TestCPLDerivation(t *testing.T) {
	c := newTestCPU(t)
	c.deriveCPL()
	if c.CPL != 0 || c.Mode != ModeReal {
		t.Fatalf("real mode must force CPL=0, got CPL=%d mode=%v", c.CPL, c.Mode)
	}

	c.CR0 |= crPE
	c.EFLAGS |= FlagVM
	c.deriveCPL()
	if c.CPL != 3 || c.Mode != ModeV86 {
		t.Fatalf("V86 must force CPL=3, got CPL=%d mode=%v", c.CPL, c.Mode)
	}

	c.EFLAGS &^= FlagVM
	c.Seg[SegSS] = 2 // RPL=2
	c.deriveCPL()
	if c.CPL != 2 || c.Mode != ModeProtected {
		t.Fatalf("protected-mode CPL must track SS.RPL, got CPL=%d mode=%v", c.CPL, c.Mode)
	}
}

func TestCR0ETHardwired(t *testing.T) {
	c := newTestCPU(t) // Model386
	if c.CR0&crET == 0 {
		t.Fatalf("CR0.ET must be hardwired to 1 on 386+")
	}
}

func TestAPWaitsForSIPI(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model486, MemoryKB: 64, NumCPUs: 2})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	ap := m.CPUs[1]
	if !ap.waitingForSIPI || !ap.Halted {
		t.Fatalf("AP must boot waiting for SIPI and halted")
	}

	ap.DeliverSIPI(0x12)
	if ap.waitingForSIPI || ap.Halted {
		t.Fatalf("SIPI must clear waitingForSIPI and Halted")
	}
	if ap.Seg[SegCS] != 0x1200 || ap.EIP != 0 {
		t.Fatalf("SIPI(0x12) must set CS:IP=1200:0000, got %04X:%04X", ap.Seg[SegCS], ap.EIP)
	}
}

func TestResetKindPreservesState(t *testing.T) {
	c := newTestCPU(t)
	c.TSC = 1234
	c.MSR[0] = 0xAA
	c.resetCPU(resetInit)
	if c.TSC != 1234 {
		t.Fatalf("INIT must preserve TSC, got %d", c.TSC)
	}
	if c.MSR[0] != 0xAA {
		t.Fatalf("INIT must preserve MSRs")
	}

	c.resetCPU(resetHard)
	if c.TSC != 0 || c.MSR[0] != 0 {
		t.Fatalf("hard reset must clear TSC and MSRs")
	}
}

func TestRegisterDump(t *testing.T) {
	c := newTestCPU(t)
	c.SetEAX(0xDEADBEEF)
	dump := c.RegisterDump()
	if dump.GP[RegEAX] != 0xDEADBEEF {
		t.Fatalf("dump.GP[EAX] = %#x, want 0xDEADBEEF", dump.GP[RegEAX])
	}
	if dump.Mode != ModeReal {
		t.Fatalf("dump.Mode = %v, want ModeReal", dump.Mode)
	}
}
