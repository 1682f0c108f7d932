// ops_string.go - string instructions (MOVS/CMPS/SCAS/LODS/STOS/INS/OUTS)
// and the interruptible REP state machine (§4.4, §5, §8 scenario 3).
//
// Grounded on cpu_x86_ops.go's opMOVSB/opSTOSB/opCMPSB/opSCASB/opLODSB: same
// ESI/EDI stepping and DF-direction arithmetic, generalized from the
// teacher's single uninterruptible for-loop (the whole REP count executes
// inside one opcode dispatch) to one element per Step() call, so
// pollInterrupts can run between iterations and, per the documented 8086
// REP bug, a faulted/interrupted REP resumes at the REP prefix byte rather
// than the string opcode.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// repStringOp identifies which string opcode a resumable REP is repeating.
type repStringOp int

const (
	repMovs repStringOp = iota
	repCmps
	repStos
	repLods
	repScas
	repIns
	repOuts
)

// beginRep captures the frozen prefix state and hands off to
// stepRepIteration for the first element; called from each string opcode's
// handler when a REP/REPE/REPNE prefix was present.
func (c *CPU) beginRep(op repStringOp, size opSize) {
	if c.CX() == 0 && c.addr16() {
		return // REP with CX=0 executes zero iterations (§8 edge case)
	}
	if !c.addr16() && c.ECX() == 0 {
		return
	}
	c.repActive = true
	c.repOpKind = op
	c.repElemSize = size
	c.repAddr16 = c.addr16()
	c.repSegOverride = c.prefixSeg
	c.repIsRepE = c.prefixRepE
	c.stepRepIteration()
}

// stepRepIteration executes exactly one element of the active REP string
// operation, decrements the count register, and decides whether to keep
// repActive set for the next Step() call. Returns the cycles charged.
func (c *CPU) stepRepIteration() uint64 {
	c.cyclesOP = 0

	switch c.repOpKind {
	case repMovs:
		c.elemMovs(c.repElemSize)
	case repCmps:
		c.elemCmps(c.repElemSize)
	case repStos:
		c.elemStos(c.repElemSize)
	case repLods:
		c.elemLods(c.repElemSize)
	case repScas:
		c.elemScas(c.repElemSize)
	case repIns:
		c.elemIns(c.repElemSize)
	case repOuts:
		c.elemOuts(c.repElemSize)
	}
	c.cyclesOP++

	if c.faultRaised {
		// Leaving repActive set means the instruction resumes at this
		// same REP rather than re-fetching the prefix byte, matching the
		// documented "resume at the REP prefix, not the string opcode"
		// behavior once the fault is handled and IP is restored there
		// (deliverFault rolls EIP back to instrStartEIP, and
		// beginInstructionForInterrupt already pulled that forward to
		// repPrefixEIP when repActive, so no extra bookkeeping is needed
		// here).
		return c.deliverFault()
	}

	c.decrementRepCount()
	done := c.repCountExhausted()
	if c.repOpKind == repCmps || c.repOpKind == repScas {
		if c.repIsRepE && !c.ZF() {
			done = true
		}
		if !c.repIsRepE && c.ZF() {
			done = true
		}
	}
	if done {
		c.repActive = false
	}
	c.TSC += c.cyclesOP
	return c.cyclesOP
}

func (c *CPU) decrementRepCount() {
	if c.repAddr16 {
		c.SetCX(c.CX() - 1)
	} else {
		c.SetECX(c.ECX() - 1)
	}
}

func (c *CPU) repCountExhausted() bool {
	if c.repAddr16 {
		return c.CX() == 0
	}
	return c.ECX() == 0
}

// stringDelta returns the per-element ESI/EDI step, honoring DF and the
// element size.
func (c *CPU) stringDelta(size opSize) int32 {
	n := int32(1)
	switch size {
	case size16:
		n = 2
	case size32:
		n = 4
	}
	if c.DF() {
		return -n
	}
	return n
}

// stepIndex advances SI or EDI by delta, wrapping within 16 bits when the
// active addressing mode is 16-bit rather than letting the upper half of
// the register pick up sign-extended garbage (§8 boundary case: "16-bit
// address wrap at FFFFh in real mode for arithmetic on the index register").
func (c *CPU) stepIndex(regIdx int, delta int32) {
	if c.repAddr16 {
		c.setReg16(regIdx, uint16(int32(c.reg16(regIdx))+delta))
		return
	}
	c.gp[regIdx] = uint32(int32(c.gp[regIdx]) + delta)
}

func (c *CPU) elemMovs(size opSize) {
	seg := c.repSegOverride
	if seg < 0 {
		seg = SegDS
	}
	delta := c.stringDelta(size)
	switch size {
	case size8:
		v, _ := c.MMU_rb(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.MMU_wb(SegES, c.Seg[SegES], c.gp[RegEDI], v, c.repAddr16)
	case size16:
		v, _ := c.MMU_rw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.MMU_ww(SegES, c.Seg[SegES], c.gp[RegEDI], v, c.repAddr16)
	case size32:
		v, _ := c.MMU_rdw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.MMU_wdw(SegES, c.Seg[SegES], c.gp[RegEDI], v, c.repAddr16)
	}
	c.stepIndex(RegESI, delta)
	c.stepIndex(RegEDI, delta)
}

func (c *CPU) elemCmps(size opSize) {
	seg := c.repSegOverride
	if seg < 0 {
		seg = SegDS
	}
	delta := c.stringDelta(size)
	switch size {
	case size8:
		a, _ := c.MMU_rb(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		b, _ := c.MMU_rb(SegES, c.Seg[SegES], c.gp[RegEDI], false, c.repAddr16)
		c.flagSub(uint32(a), uint32(b), size8)
	case size16:
		a, _ := c.MMU_rw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		b, _ := c.MMU_rw(SegES, c.Seg[SegES], c.gp[RegEDI], false, c.repAddr16)
		c.flagSub(uint32(a), uint32(b), size16)
	case size32:
		a, _ := c.MMU_rdw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		b, _ := c.MMU_rdw(SegES, c.Seg[SegES], c.gp[RegEDI], false, c.repAddr16)
		c.flagSub(a, b, size32)
	}
	c.stepIndex(RegESI, delta)
	c.stepIndex(RegEDI, delta)
}

func (c *CPU) elemStos(size opSize) {
	delta := c.stringDelta(size)
	switch size {
	case size8:
		c.MMU_wb(SegES, c.Seg[SegES], c.gp[RegEDI], c.AL(), c.repAddr16)
	case size16:
		c.MMU_ww(SegES, c.Seg[SegES], c.gp[RegEDI], c.AX(), c.repAddr16)
	case size32:
		c.MMU_wdw(SegES, c.Seg[SegES], c.gp[RegEDI], c.EAX(), c.repAddr16)
	}
	c.stepIndex(RegEDI, delta)
}

func (c *CPU) elemLods(size opSize) {
	seg := c.repSegOverride
	if seg < 0 {
		seg = SegDS
	}
	delta := c.stringDelta(size)
	switch size {
	case size8:
		v, _ := c.MMU_rb(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.SetAL(v)
	case size16:
		v, _ := c.MMU_rw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.SetAX(v)
	case size32:
		v, _ := c.MMU_rdw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.SetEAX(v)
	}
	c.stepIndex(RegESI, delta)
}

func (c *CPU) elemScas(size opSize) {
	delta := c.stringDelta(size)
	switch size {
	case size8:
		v, _ := c.MMU_rb(SegES, c.Seg[SegES], c.gp[RegEDI], false, c.repAddr16)
		c.flagSub(uint32(c.AL()), uint32(v), size8)
	case size16:
		v, _ := c.MMU_rw(SegES, c.Seg[SegES], c.gp[RegEDI], false, c.repAddr16)
		c.flagSub(uint32(c.AX()), uint32(v), size16)
	case size32:
		v, _ := c.MMU_rdw(SegES, c.Seg[SegES], c.gp[RegEDI], false, c.repAddr16)
		c.flagSub(c.EAX(), v, size32)
	}
	c.stepIndex(RegEDI, delta)
}

func (c *CPU) elemIns(size opSize) {
	delta := c.stringDelta(size)
	port := c.DX()
	switch size {
	case size8:
		v, _ := c.biu.BIU_request_io_rb(port)
		c.MMU_wb(SegES, c.Seg[SegES], c.gp[RegEDI], v, c.repAddr16)
	case size16:
		lo, _ := c.biu.BIU_request_io_rb(port)
		hi, _ := c.biu.BIU_request_io_rb(port + 1)
		c.MMU_ww(SegES, c.Seg[SegES], c.gp[RegEDI], uint16(lo)|uint16(hi)<<8, c.repAddr16)
	case size32:
		var v uint32
		for i := uint32(0); i < 4; i++ {
			b, _ := c.biu.BIU_request_io_rb(port + uint16(i))
			v |= uint32(b) << (8 * i)
		}
		c.MMU_wdw(SegES, c.Seg[SegES], c.gp[RegEDI], v, c.repAddr16)
	}
	c.stepIndex(RegEDI, delta)
}

func (c *CPU) elemOuts(size opSize) {
	seg := c.repSegOverride
	if seg < 0 {
		seg = SegDS
	}
	delta := c.stringDelta(size)
	port := c.DX()
	switch size {
	case size8:
		v, _ := c.MMU_rb(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.biu.BIU_request_io_wb(port, v)
	case size16:
		v, _ := c.MMU_rw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		c.biu.BIU_request_io_wb(port, byte(v))
		c.biu.BIU_request_io_wb(port+1, byte(v>>8))
	case size32:
		v, _ := c.MMU_rdw(seg, c.Seg[seg], c.gp[RegESI], false, c.repAddr16)
		for i := uint32(0); i < 4; i++ {
			c.biu.BIU_request_io_wb(port+uint16(i), byte(v>>(8*i)))
		}
	}
	c.stepIndex(RegESI, delta)
}

// --- Opcode handlers: dispatch into beginRep when a REP prefix is active,
// otherwise execute exactly the one element the bare opcode specifies.

func (c *CPU) opStringDispatch(op repStringOp, size opSize) {
	if c.prefixRepE || c.prefixRepNE {
		c.beginRep(op, size)
		return
	}
	c.repAddr16 = c.addr16()
	c.repSegOverride = c.prefixSeg
	switch op {
	case repMovs:
		c.elemMovs(size)
	case repCmps:
		c.elemCmps(size)
	case repStos:
		c.elemStos(size)
	case repLods:
		c.elemLods(size)
	case repScas:
		c.elemScas(size)
	case repIns:
		c.elemIns(size)
	case repOuts:
		c.elemOuts(size)
	}
	c.cyclesOP++
}

func registerStringOps(table *[256]func(*CPU)) {
	table[0xA4] = func(c *CPU) { c.opStringDispatch(repMovs, size8) }
	table[0xA5] = func(c *CPU) { c.opStringDispatch(repMovs, c.operandSize()) }
	table[0xA6] = func(c *CPU) { c.opStringDispatch(repCmps, size8) }
	table[0xA7] = func(c *CPU) { c.opStringDispatch(repCmps, c.operandSize()) }
	table[0xAA] = func(c *CPU) { c.opStringDispatch(repStos, size8) }
	table[0xAB] = func(c *CPU) { c.opStringDispatch(repStos, c.operandSize()) }
	table[0xAC] = func(c *CPU) { c.opStringDispatch(repLods, size8) }
	table[0xAD] = func(c *CPU) { c.opStringDispatch(repLods, c.operandSize()) }
	table[0xAE] = func(c *CPU) { c.opStringDispatch(repScas, size8) }
	table[0xAF] = func(c *CPU) { c.opStringDispatch(repScas, c.operandSize()) }
	table[0x6C] = func(c *CPU) { c.opStringDispatch(repIns, size8) }
	table[0x6D] = func(c *CPU) { c.opStringDispatch(repIns, c.operandSize()) }
	table[0x6E] = func(c *CPU) { c.opStringDispatch(repOuts, size8) }
	table[0x6F] = func(c *CPU) { c.opStringDispatch(repOuts, c.operandSize()) }
}
