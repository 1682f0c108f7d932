// ops_control.go - control transfer: Jcc/JMP/CALL/RET/LOOP/INT/IRET,
// ENTER/LEAVE, and the protected-mode task-switch state machine (§4.4,
// §4.6).
//
// Grounded on cpu_x86_ops.go's opJMP_rel/opCALL_rel/opRET/opIRET family:
// same rel8/rel16/rel32 EIP arithmetic and push/pop shape, generalized onto
// pushOperand/popOperand (ops_data.go) and the gate-aware INT/IRET path
// deliverException (interrupt.go) already implements for hardware vectors.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// --- Unconditional jumps/calls -----------------------------------------------

func (c *CPU) opJmpRel8() {
	offset := int8(c.fetch8())
	c.EIP = uint32(int32(c.EIP) + int32(offset))
	c.cyclesOP += 2
	c.biu.flushPrefetch()
}

func (c *CPU) opJmpRel() {
	if c.operandSize() == size16 {
		offset := int16(c.fetch16())
		c.EIP = uint32(int32(c.EIP)+int32(offset)) & 0xFFFF
	} else {
		offset := int32(c.fetch32())
		c.EIP = uint32(int32(c.EIP) + offset)
	}
	c.cyclesOP += 2
	c.biu.flushPrefetch()
}

func (c *CPU) opJmpFar() {
	var offset uint32
	if c.operandSize() == size16 {
		offset = uint32(c.fetch16())
	} else {
		offset = c.fetch32()
	}
	seg := c.fetch16()
	if !c.setSeg(SegCS, seg) {
		return
	}
	c.EIP = offset
	c.cyclesOP += 4
	c.biu.flushPrefetch()
}

func (c *CPU) opCallRel() {
	if c.operandSize() == size16 {
		offset := int16(c.fetch16())
		c.push16(uint16(c.EIP))
		c.EIP = uint32(int32(c.EIP)+int32(offset)) & 0xFFFF
	} else {
		offset := int32(c.fetch32())
		c.push32w(c.EIP)
		c.EIP = uint32(int32(c.EIP) + offset)
	}
	c.cyclesOP += 3
	c.biu.flushPrefetch()
}

func (c *CPU) opCallFar() {
	var offset uint32
	if c.operandSize() == size16 {
		offset = uint32(c.fetch16())
	} else {
		offset = c.fetch32()
	}
	seg := c.fetch16()
	oldCS, oldEIP := c.Seg[SegCS], c.EIP
	if !c.setSeg(SegCS, seg) {
		return
	}
	c.pushOperand(uint32(oldCS))
	c.pushOperand(oldEIP)
	c.EIP = offset
	c.cyclesOP += 6
	c.biu.flushPrefetch()
}

func (c *CPU) opRetNear(popBytes uint32) {
	c.EIP = c.popOperand()
	if popBytes > 0 {
		c.adjustESP(int32(popBytes), c.operandSize() == size32)
	}
	c.cyclesOP += 2
	c.biu.flushPrefetch()
}

func (c *CPU) opRetFar(popBytes uint32) {
	newEIP := c.popOperand()
	newCS := uint16(c.popOperand())
	if !c.setSeg(SegCS, newCS) {
		return
	}
	c.EIP = newEIP
	if popBytes > 0 {
		c.adjustESP(int32(popBytes), c.operandSize() == size32)
	}
	c.cyclesOP += 4
	c.biu.flushPrefetch()
}

// grp5ControlTransfer implements 0xFF's indirect CALL/JMP/PUSH sub-opcodes
// (2: CALL near indirect, 3: CALL far indirect, 4: JMP near indirect,
// 5: JMP far indirect, 6: PUSH), called from ops_alu.go's opGrp5 once it's
// ruled out INC/DEC (sub 0/1).
func (c *CPU) grp5ControlTransfer(sub int) {
	width := RefWord
	if c.operandSize() == size32 {
		width = RefDWord
	}
	_, rm := c.decodeModRMGroup(width)

	switch sub {
	case 2: // CALL near indirect
		target := c.readRefWidth(rm, width)
		c.pushOperand(c.EIP)
		c.EIP = target
		c.biu.flushPrefetch()
	case 3: // CALL far indirect
		if rm.Kind != RefMemory {
			c.raiseFault(ExcUD, 0)
			return
		}
		target := c.readRefWidth(rm, width)
		selOff := rm.Offset + uint32(2)
		if width == RefDWord {
			selOff = rm.Offset + 4
		}
		sel, _ := c.MMU_rw(rm.Segment, c.Seg[rm.Segment], selOff, false, rm.Is16Bit)
		oldCS, oldEIP := c.Seg[SegCS], c.EIP
		if !c.setSeg(SegCS, sel) {
			return
		}
		c.pushOperand(uint32(oldCS))
		c.pushOperand(oldEIP)
		c.EIP = target
		c.biu.flushPrefetch()
	case 4: // JMP near indirect
		c.EIP = c.readRefWidth(rm, width)
		c.biu.flushPrefetch()
	case 5: // JMP far indirect
		if rm.Kind != RefMemory {
			c.raiseFault(ExcUD, 0)
			return
		}
		target := c.readRefWidth(rm, width)
		selOff := rm.Offset + uint32(2)
		if width == RefDWord {
			selOff = rm.Offset + 4
		}
		sel, _ := c.MMU_rw(rm.Segment, c.Seg[rm.Segment], selOff, false, rm.Is16Bit)
		if !c.setSeg(SegCS, sel) {
			return
		}
		c.EIP = target
		c.biu.flushPrefetch()
	case 6: // PUSH Ev
		c.pushOperand(c.readRefWidth(rm, width))
	case 7:
		c.raiseFault(ExcUD, 0)
	}
	c.cyclesOP += 4
}

func (c *CPU) readRefWidth(rm RegRef, width RegRefKind) uint32 {
	if width == RefWord {
		return uint32(c.readRef16(rm))
	}
	return c.readRef32(rm)
}

// --- Conditional jumps --------------------------------------------------------

func (c *CPU) jccRel8(cond bool) {
	offset := int8(c.fetch8())
	if cond {
		c.EIP = uint32(int32(c.EIP) + int32(offset))
		c.biu.flushPrefetch()
	}
	c.cyclesOP += 2
}

func (c *CPU) jccRel(cond bool) {
	if c.operandSize() == size16 {
		offset := int16(c.fetch16())
		if cond {
			c.EIP = uint32(int32(c.EIP)+int32(offset)) & 0xFFFF
			c.biu.flushPrefetch()
		}
	} else {
		offset := int32(c.fetch32())
		if cond {
			c.EIP = uint32(int32(c.EIP) + offset)
			c.biu.flushPrefetch()
		}
	}
	c.cyclesOP += 2
}

// ccEval evaluates condition code n (Intel's standard Jcc/SETcc/CMOVcc
// ordering: 0=O 1=NO 2=B 3=NB 4=Z 5=NZ 6=BE 7=NBE 8=S 9=NS A=P B=NP C=L
// D=NL E=LE F=NLE), shared by Jcc and by opSetcc below.
func (c *CPU) ccEval(n int) bool {
	switch n {
	case 0x0:
		return c.OF()
	case 0x1:
		return !c.OF()
	case 0x2:
		return c.CF()
	case 0x3:
		return !c.CF()
	case 0x4:
		return c.ZF()
	case 0x5:
		return !c.ZF()
	case 0x6:
		return c.CF() || c.ZF()
	case 0x7:
		return !c.CF() && !c.ZF()
	case 0x8:
		return c.SF()
	case 0x9:
		return !c.SF()
	case 0xA:
		return c.PF()
	case 0xB:
		return !c.PF()
	case 0xC:
		return c.SF() != c.OF()
	case 0xD:
		return c.SF() == c.OF()
	case 0xE:
		return c.ZF() || c.SF() != c.OF()
	case 0xF:
		return !c.ZF() && c.SF() == c.OF()
	}
	return false
}

func (c *CPU) opJcxz() {
	offset := int8(c.fetch8())
	var cond bool
	if c.addr16() {
		cond = c.CX() == 0
	} else {
		cond = c.ECX() == 0
	}
	if cond {
		c.EIP = uint32(int32(c.EIP) + int32(offset))
		c.biu.flushPrefetch()
	}
	c.cyclesOP += 5
}

// --- LOOP family --------------------------------------------------------------

func (c *CPU) opLoop(requireZF int) { // requireZF: -1 LOOP, 0 LOOPNE, 1 LOOPE
	offset := int8(c.fetch8())
	var count uint32
	if c.addr16() {
		c.SetCX(c.CX() - 1)
		count = uint32(c.CX())
	} else {
		c.SetECX(c.ECX() - 1)
		count = c.ECX()
	}
	cond := count != 0
	switch requireZF {
	case 0:
		cond = cond && !c.ZF()
	case 1:
		cond = cond && c.ZF()
	}
	if cond {
		c.EIP = uint32(int32(c.EIP) + int32(offset))
		c.biu.flushPrefetch()
	}
	c.cyclesOP += 5
}

// --- Software interrupts / IRET -------------------------------------------

func (c *CPU) opInt3() {
	c.beginInstructionForInterrupt2()
	c.deliverException(ExcBP, 0, false, false)
	c.cyclesOP += 5
}

func (c *CPU) opIntImm() {
	vector := c.fetch8()
	c.beginInstructionForInterrupt2()
	c.deliverException(Exception(vector), 0, false, false)
	c.cyclesOP += 5
}

func (c *CPU) opInto() {
	if c.OF() {
		c.beginInstructionForInterrupt2()
		c.deliverException(ExcOF, 0, false, false)
	}
	c.cyclesOP += 3
}

// beginInstructionForInterrupt2 moves instrStartEIP past the INT/INT3/INTO
// instruction (EIP already follows its opcode and immediate byte), so the
// pushed return address is the next instruction, as for any trap;
// instrStartCS is left as captured at Step() entry. Software interrupts are
// delivered with external=false since they are not IRQ/NMI lines; faultLevel
// is reset first so a bare INT starts deliverException's escalation counter
// from zero rather than escalating.
func (c *CPU) beginInstructionForInterrupt2() {
	c.instrStartEIP = c.EIP
	c.faultLevel = 0
}

func (c *CPU) opIret() {
	is32 := c.operandSize() == size32
	newEIP := c.popOperand()
	newCS := uint16(c.popOperand())
	newFlags := c.popOperand()

	changingRings := c.Mode == ModeProtected && int(newCS&3) > c.CPL
	var newSS uint16
	var newESP uint32
	if changingRings {
		newESP = c.popOperand()
		newSS = uint16(c.popOperand())
	}

	if !c.setSeg(SegCS, newCS) {
		return
	}
	c.EIP = newEIP

	mask := uint32(0xFFFF)
	if is32 {
		mask = 0xFFFFFFFF
	}
	preserved := c.EFLAGS &^ mask
	c.EFLAGS = eflagsWriteFilter(c.Model, preserved|(newFlags&mask))
	c.deriveCPL()

	if changingRings {
		c.setSeg(SegSS, newSS)
		c.gp[RegESP] = newESP
	}
	c.cyclesOP += 4
	c.biu.flushPrefetch()
}

// --- ENTER/LEAVE ---------------------------------------------------------

func (c *CPU) opEnter() {
	allocSize := c.fetch16()
	nestLevel := c.fetch8() & 0x1F

	frameTemp := c.gp[RegESP]
	c.pushOperand(c.gp[RegEBP])

	if nestLevel > 0 {
		bp := c.gp[RegEBP]
		for i := byte(1); i < nestLevel; i++ {
			bp -= 2
			v, _ := c.MMU_rw(SegSS, c.Seg[SegSS], bp, false, c.addr16())
			c.pushOperand(uint32(v))
		}
		c.pushOperand(frameTemp)
	}

	c.gp[RegEBP] = frameTemp
	c.adjustESP(-int32(allocSize), c.operandSize() == size32)
	c.cyclesOP += 8
}

func (c *CPU) opLeave() {
	if c.operandSize() == size32 {
		c.gp[RegESP] = c.gp[RegEBP]
	} else {
		c.setReg16(RegESP, c.reg16(RegEBP))
	}
	c.gp[RegEBP] = c.popOperand()
	c.cyclesOP += 2
}

func registerControlOps(table *[256]func(*CPU)) {
	table[0xEB] = func(c *CPU) { c.opJmpRel8() }
	table[0xE9] = func(c *CPU) { c.opJmpRel() }
	table[0xEA] = func(c *CPU) { c.opJmpFar() }
	table[0xE8] = func(c *CPU) { c.opCallRel() }
	table[0x9A] = func(c *CPU) { c.opCallFar() }
	table[0xC3] = func(c *CPU) { c.opRetNear(0) }
	table[0xC2] = func(c *CPU) { c.opRetNear(uint32(c.fetch16())) }
	table[0xCB] = func(c *CPU) { c.opRetFar(0) }
	table[0xCA] = func(c *CPU) { c.opRetFar(uint32(c.fetch16())) }

	for cc := 0; cc < 16; cc++ {
		cc := cc
		table[0x70+cc] = func(c *CPU) { c.jccRel8(c.ccEval(cc)) }
	}
	table[0xE3] = func(c *CPU) { c.opJcxz() }
	table[0xE0] = func(c *CPU) { c.opLoop(0) }
	table[0xE1] = func(c *CPU) { c.opLoop(1) }
	table[0xE2] = func(c *CPU) { c.opLoop(-1) }

	table[0xCC] = func(c *CPU) { c.opInt3() }
	table[0xCD] = func(c *CPU) { c.opIntImm() }
	table[0xCE] = func(c *CPU) { c.opInto() }
	table[0xCF] = func(c *CPU) { c.opIret() }

	table[0xC8] = func(c *CPU) { c.opEnter() }
	table[0xC9] = func(c *CPU) { c.opLeave() }
}

// register0FControlOps wires the 0F-prefixed Jcc rel16/32 forms and
// SETcc, called from ops_system.go's registerSystemOps.
func register0FControlOps(table *[256]func(*CPU)) {
	for cc := 0; cc < 16; cc++ {
		cc := cc
		table[0x80+cc] = func(c *CPU) { c.jccRel(c.ccEval(cc)) }
		table[0x90+cc] = func(c *CPU) { c.opSetcc(cc) }
	}
}

// --- Task switch through a task gate --------------------------------------

// tss32 is the subset of the 32-bit TSS layout a task switch touches
// (Intel's full layout; offsets are absolute byte positions into the TSS).
const (
	tssEIP   = 0x20
	tssEFLAGS = 0x24
	tssEAX   = 0x28
	tssECX   = 0x2C
	tssEDX   = 0x30
	tssEBX   = 0x34
	tssESP   = 0x38
	tssEBP   = 0x3C
	tssESI   = 0x40
	tssEDI   = 0x44
	tssES    = 0x48
	tssCS    = 0x4C
	tssSS    = 0x50
	tssDS    = 0x54
	tssFS    = 0x58
	tssGS    = 0x5C
	tssLDT   = 0x60
)

// taskSwitchThroughGate implements the task switch through an IDT task gate
// (§4.6, 386+ only; far JMP/CALL to a task gate does not reach it): save the outgoing task's architectural
// state into its TSS, load the incoming task's state from the new TSS
// named by selector, and update TR. Decomposed into the same save/load
// micro-steps a hardware task switch goes through rather than one opaque
// copy, so a fault partway (e.g. the new TSS not present) leaves the CPU in
// a diagnosable state.
func (c *CPU) taskSwitchThroughGate(selector uint16) {
	oldTSSBase := c.segCache[SegTR].base

	c.writeTSSField(oldTSSBase, tssEIP, c.EIP)
	c.writeTSSField(oldTSSBase, tssEFLAGS, c.EFLAGS)
	c.writeTSSField(oldTSSBase, tssEAX, c.EAX())
	c.writeTSSField(oldTSSBase, tssECX, c.ECX())
	c.writeTSSField(oldTSSBase, tssEDX, c.EDX())
	c.writeTSSField(oldTSSBase, tssEBX, c.EBX())
	c.writeTSSField(oldTSSBase, tssESP, c.ESP())
	c.writeTSSField(oldTSSBase, tssEBP, c.EBP())
	c.writeTSSField(oldTSSBase, tssESI, c.ESI())
	c.writeTSSField(oldTSSBase, tssEDI, c.EDI())
	c.writeTSSField16(oldTSSBase, tssES, c.Seg[SegES])
	c.writeTSSField16(oldTSSBase, tssCS, c.Seg[SegCS])
	c.writeTSSField16(oldTSSBase, tssSS, c.Seg[SegSS])
	c.writeTSSField16(oldTSSBase, tssDS, c.Seg[SegDS])
	c.writeTSSField16(oldTSSBase, tssFS, c.Seg[SegFS])
	c.writeTSSField16(oldTSSBase, tssGS, c.Seg[SegGS])

	if !c.setSeg(SegTR, selector) {
		return
	}
	newTSSBase := c.segCache[SegTR].base

	c.EIP = c.readTSSField(newTSSBase, tssEIP)
	c.EFLAGS = eflagsWriteFilter(c.Model, c.readTSSField(newTSSBase, tssEFLAGS))
	c.SetEAX(c.readTSSField(newTSSBase, tssEAX))
	c.SetECX(c.readTSSField(newTSSBase, tssECX))
	c.SetEDX(c.readTSSField(newTSSBase, tssEDX))
	c.SetEBX(c.readTSSField(newTSSBase, tssEBX))
	c.SetESP(c.readTSSField(newTSSBase, tssESP))
	c.SetEBP(c.readTSSField(newTSSBase, tssEBP))
	c.SetESI(c.readTSSField(newTSSBase, tssESI))
	c.SetEDI(c.readTSSField(newTSSBase, tssEDI))

	ldtSel := uint16(c.readTSSField(newTSSBase, tssLDT))
	c.setSeg(SegLDTR, ldtSel)
	c.deriveCPL()
	c.setSeg(SegES, c.readTSSField16(newTSSBase, tssES))
	c.setSeg(SegSS, c.readTSSField16(newTSSBase, tssSS))
	c.setSeg(SegDS, c.readTSSField16(newTSSBase, tssDS))
	c.setSeg(SegFS, c.readTSSField16(newTSSBase, tssFS))
	c.setSeg(SegGS, c.readTSSField16(newTSSBase, tssGS))
	c.setSeg(SegCS, c.readTSSField16(newTSSBase, tssCS))

	c.setFlag(FlagNT, true)
}

func (c *CPU) writeTSSField(base uint32, off uint32, v uint32) {
	c.m.PhysMem.Write32(base+off, v)
}

func (c *CPU) writeTSSField16(base uint32, off uint32, v uint16) {
	c.m.PhysMem.Write16(base+off, v)
}

func (c *CPU) readTSSField(base uint32, off uint32) uint32 {
	v, _ := c.m.PhysMem.Read32(base + off)
	return v
}

func (c *CPU) readTSSField16(base uint32, off uint32) uint16 {
	v, _ := c.m.PhysMem.Read16(base + off)
	return v
}

func (c *CPU) opSetcc(cc int) {
	_, rm := c.decodeModRM(RefByte)
	v := byte(0)
	if c.ccEval(cc) {
		v = 1
	}
	c.writeRef8(rm, v)
	c.cyclesOP += 3
}
