// ops_system.go - privileged/system instructions: descriptor table loads,
// control/debug register moves, CPUID/RDMSR/WRMSR, flag-bit singletons,
// BCD adjust, sign extension, and HLT/WAIT (§4.2, §4.6, §4.7).
//
// Grounded on cpu_x86_ops.go's opCLI/opSTI/opCLD/opSTD/opCMC/opCLC/opSTC,
// opDAA/opDAS/opAAA/opAAS/opAAM/opAAD, opCBW/opCWD, and opHLT/opWAIT: same
// single-flag-twiddle and BCD-adjust bodies, carried over almost verbatim
// since these never needed generalizing past width/prefix dispatch. The
// descriptor-table loads and CRn/DRn moves have no teacher analogue (its
// 8086/386 core never modeled protected mode this deeply) and are built in
// the same dispatch-table idiom as the rest of this package instead.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// --- Flag bit singletons -----------------------------------------------------

func (c *CPU) opClc() { c.setFlag(FlagCF, false) }
func (c *CPU) opStc() { c.setFlag(FlagCF, true) }
func (c *CPU) opCli() { c.setFlag(FlagIF, false) }
func (c *CPU) opSti() {
	c.setFlag(FlagIF, true)
	// STI takes effect after the next instruction (§4.6): a poll right
	// after STI must not fire until that instruction has retired.
	c.inhibitIRQ = true
}
func (c *CPU) opCld() { c.setFlag(FlagDF, false) }
func (c *CPU) opStd() { c.setFlag(FlagDF, true) }
func (c *CPU) opCmc() { c.setFlag(FlagCF, !c.CF()) }

// --- BCD adjust ---------------------------------------------------------------

func (c *CPU) opDaa() {
	al, cf, af := c.AL(), c.CF(), c.AF()
	if al&0x0F > 9 || af {
		al += 6
		c.setFlag(FlagAF, true)
	}
	if al > 0x9F || cf {
		al += 0x60
		c.setFlag(FlagCF, true)
	}
	c.SetAL(al)
	c.setFlag(FlagSF, al&0x80 != 0)
	c.setFlag(FlagZF, al == 0)
	c.setFlag(FlagPF, parity(al))
}

func (c *CPU) opDas() {
	al, cf, af := c.AL(), c.CF(), c.AF()
	if al&0x0F > 9 || af {
		al -= 6
		c.setFlag(FlagAF, true)
	}
	if al > 0x9F || cf {
		al -= 0x60
		c.setFlag(FlagCF, true)
	}
	c.SetAL(al)
	c.setFlag(FlagSF, al&0x80 != 0)
	c.setFlag(FlagZF, al == 0)
	c.setFlag(FlagPF, parity(al))
}

func (c *CPU) opAaa() {
	if c.AL()&0x0F > 9 || c.AF() {
		c.SetAL(c.AL() + 6)
		c.SetAH(c.AH() + 1)
		c.setFlag(FlagAF, true)
		c.setFlag(FlagCF, true)
	} else {
		c.setFlag(FlagAF, false)
		c.setFlag(FlagCF, false)
	}
	c.SetAL(c.AL() & 0x0F)
}

func (c *CPU) opAas() {
	if c.AL()&0x0F > 9 || c.AF() {
		c.SetAL(c.AL() - 6)
		c.SetAH(c.AH() - 1)
		c.setFlag(FlagAF, true)
		c.setFlag(FlagCF, true)
	} else {
		c.setFlag(FlagAF, false)
		c.setFlag(FlagCF, false)
	}
	c.SetAL(c.AL() & 0x0F)
}

func (c *CPU) opAam() {
	base := c.fetch8()
	if base == 0 {
		c.raiseFault(ExcDE, 0)
		return
	}
	ah, al := c.AL()/base, c.AL()%base
	c.SetAH(ah)
	c.SetAL(al)
	c.setFlag(FlagSF, al&0x80 != 0)
	c.setFlag(FlagZF, al == 0)
	c.setFlag(FlagPF, parity(al))
}

func (c *CPU) opAad() {
	base := c.fetch8()
	al := c.AH()*base + c.AL()
	c.SetAL(al)
	c.SetAH(0)
	c.setFlag(FlagSF, al&0x80 != 0)
	c.setFlag(FlagZF, al == 0)
	c.setFlag(FlagPF, parity(al))
}

func (c *CPU) opSalc() {
	if c.CF() {
		c.SetAL(0xFF)
	} else {
		c.SetAL(0)
	}
}

// --- Sign extension (CBW/CWDE, CWD/CDQ) ---------------------------------------

func (c *CPU) opCbw() {
	if c.operandSize() == size16 {
		c.SetAX(uint16(int16(int8(c.AL()))))
	} else {
		c.setReg32(RegEAX, uint32(int32(int16(c.AX()))))
	}
}

func (c *CPU) opCwd() {
	if c.operandSize() == size16 {
		if c.AX()&0x8000 != 0 {
			c.SetDX(0xFFFF)
		} else {
			c.SetDX(0)
		}
	} else {
		if c.reg32(RegEAX)&0x80000000 != 0 {
			c.setReg32(RegEDX, 0xFFFFFFFF)
		} else {
			c.setReg32(RegEDX, 0)
		}
	}
}

// --- HLT / WAIT / NOP ----------------------------------------------------------

func (c *CPU) opHlt() {
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	c.Halted = true
}

func (c *CPU) opWait() {} // FPU synchronization, no FPU modeled

func (c *CPU) opNop() {}

// --- Descriptor table loads: LGDT/LIDT/LLDT/LTR/SGDT/SIDT/SLDT/STR -----------
// (0F 00 Group 6, 0F 01 Group 7)

func (c *CPU) opGrp6() {
	mod := c.fetchModRM()
	sub := int((mod >> 3) & 7)
	_, rm := c.decodeModRMGroup(RefWord)
	switch sub {
	case 0: // SLDT
		c.writeRef16(rm, c.Seg[SegLDTR])
	case 1: // STR
		c.writeRef16(rm, c.Seg[SegTR])
	case 2: // LLDT
		if c.CPL != 0 {
			c.raiseFault(ExcGP, 0)
			return
		}
		c.setSeg(SegLDTR, c.readRef16(rm))
	case 3: // LTR
		if c.CPL != 0 {
			c.raiseFault(ExcGP, 0)
			return
		}
		c.setSeg(SegTR, c.readRef16(rm))
	default:
		c.raiseFault(ExcUD, 0)
	}
}

func (c *CPU) opGrp7() {
	mod := c.fetchModRM()
	sub := int((mod >> 3) & 7)
	if sub <= 3 {
		_, rm := c.decodeModRMGroup(RefMemory)
		if rm.Kind != RefMemory {
			c.raiseFault(ExcUD, 0)
			return
		}
		switch sub {
		case 0: // SGDT
			c.writeDescTable(rm, c.GDTR)
		case 1: // SIDT
			c.writeDescTable(rm, c.IDTR)
		case 2: // LGDT
			if c.CPL != 0 {
				c.raiseFault(ExcGP, 0)
				return
			}
			c.GDTR = c.readDescTable(rm)
		case 3: // LIDT
			if c.CPL != 0 {
				c.raiseFault(ExcGP, 0)
				return
			}
			c.IDTR = c.readDescTable(rm)
		}
		return
	}
	_, rm := c.decodeModRMGroup(RefWord)
	switch sub {
	case 4: // SMSW
		c.writeRef16(rm, uint16(c.CR0))
	case 6: // LMSW
		if c.CPL != 0 {
			c.raiseFault(ExcGP, 0)
			return
		}
		msw := c.readRef16(rm)
		c.CR0 = (c.CR0 &^ 0xFFFF) | uint32(msw&0xFFFF) | (c.CR0 & 1)
		c.deriveCPL()
	case 7: // INVLPG - memory operand, flush whole TLB (no selective walk tracked)
		if c.CPL != 0 {
			c.raiseFault(ExcGP, 0)
			return
		}
		c.Paging_clearTLB()
	default:
		c.raiseFault(ExcUD, 0)
	}
}

// writeDescTable stores a 6-byte pseudo-descriptor (16-bit limit, 32-bit
// base) at rm's memory address for SGDT/SIDT.
func (c *CPU) writeDescTable(rm RegRef, reg descTableReg) {
	c.MMU_ww(rm.Segment, c.Seg[rm.Segment], rm.Offset, reg.Limit, rm.Is16Bit)
	c.MMU_wdw(rm.Segment, c.Seg[rm.Segment], rm.Offset+2, reg.Base, rm.Is16Bit)
}

func (c *CPU) readDescTable(rm RegRef) descTableReg {
	limit, _ := c.MMU_rw(rm.Segment, c.Seg[rm.Segment], rm.Offset, false, rm.Is16Bit)
	base, _ := c.MMU_rdw(rm.Segment, c.Seg[rm.Segment], rm.Offset+2, false, rm.Is16Bit)
	return descTableReg{Base: base, Limit: limit}
}

// --- CLTS (0F 06) -------------------------------------------------------------

func (c *CPU) opClts() {
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	c.CR0 &^= crTS
}

// --- MOV to/from control and debug registers (0F 20-23) ----------------------

func (c *CPU) opMovFromCR() {
	mod := c.fetchModRM()
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	crIdx := int((mod >> 3) & 7)
	gp := int(mod & 7)
	c.setReg32(gp, c.crValue(crIdx))
}

func (c *CPU) opMovToCR() {
	mod := c.fetchModRM()
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	crIdx := int((mod >> 3) & 7)
	gp := int(mod & 7)
	c.setCRValue(crIdx, c.reg32(gp))
}

func (c *CPU) crValue(idx int) uint32 {
	switch idx {
	case 0:
		return c.CR0
	case 2:
		return c.CR2
	case 3:
		return c.CR3
	case 4:
		return c.CR4
	default:
		c.raiseFault(ExcUD, 0)
		return 0
	}
}

func (c *CPU) setCRValue(idx int, v uint32) {
	switch idx {
	case 0:
		c.CR0 = v
		c.deriveCPL()
	case 2:
		c.CR2 = v
	case 3:
		c.CR3 = v
		c.Paging_clearTLB()
	case 4:
		prevPGE := c.CR4 & cr4PGE
		c.CR4 = v
		if prevPGE != 0 && v&cr4PGE == 0 {
			c.Paging_clearTLB()
		}
	default:
		c.raiseFault(ExcUD, 0)
	}
}

func (c *CPU) opMovFromDR() {
	mod := c.fetchModRM()
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	dr := int((mod >> 3) & 7)
	gp := int(mod & 7)
	c.setReg32(gp, c.DR[dr])
}

func (c *CPU) opMovToDR() {
	mod := c.fetchModRM()
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	dr := int((mod >> 3) & 7)
	gp := int(mod & 7)
	c.DR[dr] = c.reg32(gp)
}

// --- CPUID / RDMSR / WRMSR ----------------------------------------------------

// opCpuid implements the subset of leaves a boot ROM or OS's early probe
// reads: vendor string (leaf 0), feature bits (leaf 1), and a TLB/cache
// descriptor leaf (leaf 2) whose content CPUIDMode lets a scenario vary,
// per the documented "minimal leaf-2 divergence" knob.
func (c *CPU) opCpuid() {
	leaf := c.reg32(RegEAX)
	switch leaf {
	case 0:
		c.setReg32(RegEAX, 2)
		c.setReg32(RegEBX, 0x756E6547) // "Genu"
		c.setReg32(RegEDX, 0x49656E69) // "ineI"
		c.setReg32(RegECX, 0x6C65746E) // "ntel"
	case 1:
		c.setReg32(RegEAX, c.cpuidSignature())
		c.setReg32(RegEBX, 0)
		c.setReg32(RegECX, 0)
		c.setReg32(RegEDX, c.cpuidFeatureBits())
	case 2:
		switch c.m.Config.CPUIDMode {
		case 1:
			c.setReg32(RegEAX, 0x01010101)
		default:
			c.setReg32(RegEAX, 0x03020101)
		}
		c.setReg32(RegEBX, 0)
		c.setReg32(RegECX, 0)
		c.setReg32(RegEDX, 0)
	default:
		c.setReg32(RegEAX, 0)
		c.setReg32(RegEBX, 0)
		c.setReg32(RegECX, 0)
		c.setReg32(RegEDX, 0)
	}
}

func (c *CPU) cpuidSignature() uint32 {
	switch c.Model {
	case ModelPentium:
		return 0x00000520
	case ModelPentiumPro:
		return 0x00000611
	case ModelPentiumII:
		return 0x00000633
	default:
		return 0x00000400
	}
}

func (c *CPU) cpuidFeatureBits() uint32 {
	const (
		featFPU = 1 << 0
		featTSC = 1 << 4
		featMSR = 1 << 5
		featPSE = 1 << 3
		featPGE = 1 << 13
	)
	if c.Model < ModelPentium {
		return 0
	}
	bits := uint32(featFPU | featTSC | featMSR | featPSE)
	if c.Model >= ModelPentiumPro {
		bits |= featPGE
	}
	return bits
}

func (c *CPU) opRdmsr() {
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	idx := c.reg32(RegECX)
	if idx >= msrCount {
		c.raiseFault(ExcGP, 0)
		return
	}
	v := c.MSR[idx]
	c.setReg32(RegEAX, uint32(v))
	c.setReg32(RegEDX, uint32(v>>32))
}

func (c *CPU) opWrmsr() {
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	idx := c.reg32(RegECX)
	if idx >= msrCount {
		c.raiseFault(ExcGP, 0)
		return
	}
	c.MSR[idx] = uint64(c.reg32(RegEAX)) | uint64(c.reg32(RegEDX))<<32
}

// --- LOADALL (286/386 undocumented bulk register load, used by some boot
// ROMs/debuggers to seed protected-mode state without going through a
// descriptor-table dance) --------------------------------------------------

// opLoadall286 reads the fixed 102-byte ES:0x0800-relative table the 286's
// undocumented 0F 05 LOADALL used.
func (c *CPU) opLoadall286() {
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	base := uint32(c.Seg[SegES])<<4 + 0x0800
	read16 := func(off uint32) uint16 {
		v, _ := c.m.PhysMem.Read16(base + off)
		return v
	}
	c.EFLAGS = uint32(read16(0x1C))
	c.setSeg(SegCS, read16(0x22))
	c.setReg16(RegESP, read16(0x24))
	c.setSeg(SegSS, read16(0x26))
	c.setSeg(SegDS, read16(0x28))
	c.setSeg(SegES, read16(0x2A))
	c.EIP = uint32(read16(0x20))
	c.setReg16(RegEDI, read16(0x2C))
	c.setReg16(RegESI, read16(0x2E))
	c.setReg16(RegEBP, read16(0x30))
	c.setReg16(RegEDX, read16(0x34))
	c.setReg16(RegECX, read16(0x36))
	c.setReg16(RegEBX, read16(0x38))
	c.setReg16(RegEAX, read16(0x3A))
}

// opLoadall386 reads the 386's larger undocumented LOADALL table (0F 07),
// used here only for the fields this core models: CRn, the GP/segment
// files, and EIP/EFLAGS. Table layout follows the documented 0x66-byte
// offsets relative to EDI at entry.
func (c *CPU) opLoadall386() {
	if c.CPL != 0 {
		c.raiseFault(ExcGP, 0)
		return
	}
	base := c.reg32(RegEDI)
	read32 := func(off uint32) uint32 {
		v, _ := c.m.PhysMem.Read32(base + off)
		return v
	}
	c.CR0 = read32(0x00)
	c.EFLAGS = read32(0x04)
	c.EIP = read32(0x08)
	c.setReg32(RegEDI, read32(0x1C))
	c.setReg32(RegESI, read32(0x20))
	c.setReg32(RegEBP, read32(0x24))
	c.setReg32(RegEDX, read32(0x2C))
	c.setReg32(RegECX, read32(0x30))
	c.setReg32(RegEBX, read32(0x34))
	c.setReg32(RegEAX, read32(0x38))
	c.deriveCPL()
}

// --- Table wiring --------------------------------------------------------------

func registerSystemOps(base *[256]func(*CPU), extended *[256]func(*CPU)) {
	base[0xF8] = func(c *CPU) { c.opClc() }
	base[0xF9] = func(c *CPU) { c.opStc() }
	base[0xFA] = func(c *CPU) { c.opCli() }
	base[0xFB] = func(c *CPU) { c.opSti() }
	base[0xFC] = func(c *CPU) { c.opCld() }
	base[0xFD] = func(c *CPU) { c.opStd() }
	base[0xF5] = func(c *CPU) { c.opCmc() }

	base[0x27] = func(c *CPU) { c.opDaa() }
	base[0x2F] = func(c *CPU) { c.opDas() }
	base[0x37] = func(c *CPU) { c.opAaa() }
	base[0x3F] = func(c *CPU) { c.opAas() }
	base[0xD4] = func(c *CPU) { c.opAam() }
	base[0xD5] = func(c *CPU) { c.opAad() }
	base[0xD6] = func(c *CPU) { c.opSalc() }

	base[0x98] = func(c *CPU) { c.opCbw() }
	base[0x99] = func(c *CPU) { c.opCwd() }

	base[0xF4] = func(c *CPU) { c.opHlt() }
	base[0x9B] = func(c *CPU) { c.opWait() }
	// 0x90 (NOP) is wired in registerDataOps as the i==0 case of the
	// XCHG AX,reg loop, which is what NOP actually is.

	base[0xE4] = func(c *CPU) { c.opInImm8(false) }
	base[0xE5] = func(c *CPU) { c.opInImm8(true) }
	base[0xE6] = func(c *CPU) { c.opOutImm8(false) }
	base[0xE7] = func(c *CPU) { c.opOutImm8(true) }
	base[0xEC] = func(c *CPU) { c.opInDX(false) }
	base[0xED] = func(c *CPU) { c.opInDX(true) }
	base[0xEE] = func(c *CPU) { c.opOutDX(false) }
	base[0xEF] = func(c *CPU) { c.opOutDX(true) }

	register0FDataOps(extended)
	register0FControlOps(extended)
	register0FShiftOps(extended)

	extended[0x00] = func(c *CPU) { c.opGrp6() }
	extended[0x01] = func(c *CPU) { c.opGrp7() }
	extended[0x06] = func(c *CPU) { c.opClts() }
	extended[0x20] = func(c *CPU) { c.opMovFromCR() }
	extended[0x22] = func(c *CPU) { c.opMovToCR() }
	extended[0x21] = func(c *CPU) { c.opMovFromDR() }
	extended[0x23] = func(c *CPU) { c.opMovToDR() }
	extended[0xA2] = func(c *CPU) { c.opCpuid() }
	extended[0xAF] = func(c *CPU) { c.opIMULGvEv() }
	extended[0x32] = func(c *CPU) { c.opRdmsr() }
	extended[0x30] = func(c *CPU) { c.opWrmsr() }
	extended[0x05] = func(c *CPU) { c.opLoadall286() }
	extended[0x07] = func(c *CPU) { c.opLoadall386() }
}

// --- Direct port I/O (non-string IN/OUT) --------------------------------------

func (c *CPU) opInImm8(wide bool) {
	port := uint16(c.fetch8())
	c.portIn(port, wide)
}

func (c *CPU) opInDX(wide bool) {
	c.portIn(c.DX(), wide)
}

func (c *CPU) portIn(port uint16, wide bool) {
	if wide && c.operandSize() == size32 {
		lo, _ := c.biu.BIU_request_io_rb(port)
		var b [4]byte
		b[0] = lo
		b[1], _ = c.biu.BIU_request_io_rb(port + 1)
		b[2], _ = c.biu.BIU_request_io_rb(port + 2)
		b[3], _ = c.biu.BIU_request_io_rb(port + 3)
		c.setReg32(RegEAX, uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16|uint32(b[3])<<24)
	} else if wide {
		lo, _ := c.biu.BIU_request_io_rb(port)
		hi, _ := c.biu.BIU_request_io_rb(port + 1)
		c.SetAX(uint16(lo) | uint16(hi)<<8)
	} else {
		v, _ := c.biu.BIU_request_io_rb(port)
		c.SetAL(v)
	}
}

func (c *CPU) opOutImm8(wide bool) {
	port := uint16(c.fetch8())
	c.portOut(port, wide)
}

func (c *CPU) opOutDX(wide bool) {
	c.portOut(c.DX(), wide)
}

func (c *CPU) portOut(port uint16, wide bool) {
	if wide && c.operandSize() == size32 {
		v := c.reg32(RegEAX)
		c.biu.BIU_request_io_wb(port, byte(v))
		c.biu.BIU_request_io_wb(port+1, byte(v>>8))
		c.biu.BIU_request_io_wb(port+2, byte(v>>16))
		c.biu.BIU_request_io_wb(port+3, byte(v>>24))
	} else if wide {
		v := c.AX()
		c.biu.BIU_request_io_wb(port, byte(v))
		c.biu.BIU_request_io_wb(port+1, byte(v>>8))
	} else {
		c.biu.BIU_request_io_wb(port, c.AL())
	}
}
