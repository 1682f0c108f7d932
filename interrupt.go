// interrupt.go - hardware interrupt polling and the multi-phase
// interrupt/exception delivery state machine (§4.6).
//
// Grounded on cpu_x86.go's handleInterrupt/SetIRQ (push flags/CS/IP, clear
// IF/TF, load the vector table entry), generalized from the flat real-mode
// table it assumes to the full real/V86/protected gate dispatch, stack
// switching, and double/triple-fault escalation §4.6 specifies.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// gate types, IDT entry byte 5 low nibble.
const (
	gateTask      = 0x5
	gateIntr16    = 0x6
	gateTrap16    = 0x7
	gateIntr32    = 0xE
	gateTrap32    = 0xF
)

// pollInterrupts implements §4.6's polling rule: only at instruction
// boundaries, only if the prior instruction didn't set inhibitIRQ, and only
// if IF is set (NMI bypasses IF). Returns true if an interrupt entry was
// started this micro-step.
func (c *CPU) pollInterrupts() bool {
	if c.resetPending {
		c.serviceResetPending()
		return true
	}

	if c.m.PIC.nmiPending {
		c.m.PIC.nmiPending = false
		c.beginInstructionForInterrupt()
		c.deliverException(ExcNMI, 0, false, true)
		return true
	}

	if c.inhibitIRQ {
		c.inhibitIRQ = false
		return false
	}

	if !c.IF() {
		return false
	}

	// A REP in progress polls for interrupts between elements (§4.4/§5)
	// but never mid-element; repActive only goes false between
	// stepRepIteration calls, so this check is always at an element
	// boundary.
	vector, ok := c.m.PIC.acknowledgeirqrequest()
	if !ok {
		return false
	}
	c.beginInstructionForInterrupt()
	c.deliverException(Exception(vector), 0, false, true)
	return true
}

// beginInstructionForInterrupt snapshots pipeline state for an externally
// delivered interrupt. Mid-REP, instrStartEIP is pulled forward to
// repPrefixEIP - the REP prefix byte itself, not the first byte of the
// whole encoding - so the pushed return address resumes at the REP prefix.
// Any prefixes stacked ahead of it (a segment override, say) are not
// re-applied on resumption, matching the documented 8086/286 erratum.
func (c *CPU) beginInstructionForInterrupt() {
	if c.repActive {
		c.instrStartEIP = c.repPrefixEIP
		return
	}
	c.beginInstruction()
}

func (c *CPU) irqWillWake() bool {
	return c.m.PIC.nmiPending || (c.IF() && c.m.PIC.hasPending())
}

// deliverException runs the full phase list from §4.6. external marks a
// maskable/NMI hardware interrupt (no error code, no fault-checkpoint
// rollback needed since it arrives cleanly at an instruction boundary);
// non-external callers (deliverFault) have already rolled back.
func (c *CPU) deliverException(vector Exception, errorCode uint32, hasCode, external bool) {
	if !external {
		// Escalation: a fault raised while already delivering one escalates
		// to #DF, and a fault while delivering #DF triple-faults (§4.6,
		// §7). faultLevel tracks the nesting depth.
		c.faultLevel++
		if c.faultLevel == 2 {
			vector = ExcDF
			errorCode = 0
			hasCode = true
		} else if c.faultLevel >= 3 {
			c.faultLevel = 0
			c.triggerTripleFault()
			return
		}
	} else {
		c.faultLevel = 0
	}
	defer func() { c.faultLevel = 0 }()

	if c.Mode != ModeProtected {
		c.deliverRealModeVector(vector, external)
		return
	}

	idtBase := c.IDTR.Base
	idtLimit := uint32(c.IDTR.Limit)
	entryOff := uint32(vector) * 8
	if entryOff+7 > idtLimit {
		c.deliverException(ExcGP, uint32(vector)*8+2, true, false)
		return
	}

	var raw [8]byte
	for i := 0; i < 8; i++ {
		v, fault := c.m.PhysMem.Read8(idtBase + entryOff + uint32(i))
		if fault {
			c.deliverException(ExcGP, uint32(vector)*8+2, true, false)
			return
		}
		raw[i] = v
	}

	// IDT gate layout: bytes 0-1 offset low, 2-3 selector, 4 unused,
	// 5 type/attrs, 6-7 offset high.
	selector := uint16(raw[0+2]) | uint16(raw[3])<<8
	offsetLowField := uint32(raw[0]) | uint32(raw[1])<<8
	offsetHighField := uint32(raw[6]) | uint32(raw[7])<<8
	targetOffset := offsetLowField | offsetHighField<<16
	typ := raw[5] & 0x1F
	present := raw[5]&0x80 != 0

	if !present {
		c.deliverException(ExcNP, uint32(vector)*8+2, true, false)
		return
	}
	if typ == gateTask {
		c.taskSwitchThroughGate(selector)
		return
	}

	is32 := typ == gateIntr32 || typ == gateTrap32
	isTrap := typ == gateTrap16 || typ == gateTrap32

	csRaw, ok := c.fetchDescriptor(selector)
	if !ok || selector&^3 == 0 {
		c.deliverException(ExcGP, uint32(selector)&0xFFF8|1, true, false)
		return
	}
	var sc segDescCache
	sc.raw = csRaw
	sc.recalc()
	if !sc.present {
		c.deliverException(ExcNP, uint32(selector)&0xFFF8|1, true, false)
		return
	}
	if !sc.executable {
		c.deliverException(ExcGP, uint32(selector)&0xFFF8|1, true, false)
		return
	}
	if !sc.conforming && sc.dpl > c.CPL {
		c.deliverException(ExcGP, uint32(selector)&0xFFF8|1, true, false)
		return
	}

	newCPL := c.CPL
	if !sc.conforming {
		newCPL = sc.dpl
	}

	oldSS, oldESP, oldEFLAGS := c.Seg[SegSS], c.gp[RegESP], c.EFLAGS
	changingRings := newCPL < c.CPL

	if changingRings {
		// Stack switch from the TSS for the new ring (§4.6 step 4).
		newSS, newESP, ok := c.loadStackFromTSS(newCPL)
		if !ok {
			return
		}
		c.setSeg(SegSS, newSS)
		c.gp[RegESP] = newESP
		c.pushInterruptFrame(is32, oldSS, oldESP, oldEFLAGS, vector, errorCode, hasCode, true)
	} else {
		c.pushInterruptFrame(is32, oldSS, oldESP, oldEFLAGS, vector, errorCode, hasCode, false)
	}

	c.CPL = newCPL
	c.setSeg(SegCS, (selector&^3)|uint16(newCPL))
	c.EIP = targetOffset

	if !isTrap {
		c.setFlag(FlagIF, false)
	}
	c.setFlag(FlagTF, false)
	c.setFlag(FlagNT, false)
	c.setFlag(FlagRF, false)
}

// pushInterruptFrame pushes (ss,esp) when changing rings, then
// EFLAGS/CS/EIP, then the error code if the vector carries one (§4.6 step 4).
func (c *CPU) pushInterruptFrame(is32 bool, oldSS uint16, oldESP, oldEFLAGS uint32, vector Exception, errorCode uint32, hasCode, changingRings bool) {
	push := c.push16
	if is32 {
		push = func(v uint16) { c.push32w(uint32(v)) }
	}
	if changingRings {
		push(oldSS)
		if is32 {
			c.push32w(oldESP)
		} else {
			push(uint16(oldESP))
		}
	}
	push(uint16(oldEFLAGS))
	push(c.instrStartCS)
	if is32 {
		c.push32w(c.instrStartEIP)
	} else {
		push(uint16(c.instrStartEIP))
	}
	if hasCode {
		push(uint16(errorCode))
	}
}

func (c *CPU) push16(v uint16) {
	c.adjustESP(-2, false)
	c.MMU_ww(SegSS, c.Seg[SegSS], c.gp[RegESP], v, true)
}

func (c *CPU) push32w(v uint32) {
	c.adjustESP(-4, true)
	c.MMU_wdw(SegSS, c.Seg[SegSS], c.gp[RegESP], v, false)
}

// deliverRealModeVector is the real-mode/V86 path: a flat 256-entry,
// 4-byte-per-entry table at linear 0 (§4.6 applies to real mode as a
// degenerate case of the gate dispatch - always an interrupt gate, no
// privilege checks, no stack switch).
func (c *CPU) deliverRealModeVector(vector Exception, external bool) {
	addr := uint32(vector) * 4
	ip, f1 := c.m.PhysMem.Read16(addr)
	cs, f2 := c.m.PhysMem.Read16(addr + 2)
	if f1 || f2 {
		return
	}
	c.push16(uint16(c.EFLAGS))
	c.push16(c.instrStartCS)
	c.push16(uint16(c.instrStartEIP))
	c.setFlag(FlagIF, false)
	c.setFlag(FlagTF, false)
	c.Seg[SegCS] = cs
	c.segCache[SegCS].base = uint32(cs) << 4
	c.EIP = uint32(ip)
}

// triggerTripleFault is §7's "user-visible failure": log and reboot at the
// next instruction boundary.
func (c *CPU) triggerTripleFault() {
	c.m.logger.Printf("cpu%d: triple fault at CS:EIP=%04X:%08X, resetting", c.Index, c.Seg[SegCS], c.EIP)
	c.resetPending = true
	c.resetPendingKind = resetHard
}

func (c *CPU) serviceResetPending() {
	kind := c.resetPendingKind
	c.resetPending = false
	c.resetCPU(kind)
}

// loadStackFromTSS reads SSn/ESPn from the current TSS for the target
// privilege level (protected-mode ring change). Simplified 32-bit TSS
// layout only, which is all a Pentium-class guest expects.
func (c *CPU) loadStackFromTSS(cpl int) (uint16, uint32, bool) {
	tssBase := c.segCache[SegTR].base
	off := uint32(4 + cpl*8)
	esp, f1 := c.m.PhysMem.Read32(tssBase + off)
	ss, f2 := c.m.PhysMem.Read16(tssBase + off + 4)
	if f1 || f2 {
		c.raiseFault(ExcTS, uint32(c.Seg[SegTR])&0xFFF8)
		return 0, 0, false
	}
	return ss, esp, true
}
