// step.go - per-instruction fetch/prefix/dispatch loop (§4.3, §4.4).
//
// Grounded on cpu_x86.go's Step(): same prefix-consuming for-loop shape and
// undefined-opcode handling, generalized to group-last-wins prefix bitsets,
// the 0F escape, snapshot/rollback around the whole instruction, and the
// EIP-delta invariant (§8 property 4).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// Step executes one instruction, or resumes one iteration of an in-progress
// REP string instruction. Returns the number of cycles it consumed.
func (c *CPU) Step() uint64 {
	if c.Halted && !c.irqWillWake() {
		return 0
	}

	if c.pollInterrupts() {
		// Interrupt delivery may itself fault (§8 scenario 4); either
		// way the delivery machine charges its own cycles and this
		// micro-step is done.
		return c.cyclesTotal()
	}

	if c.repActive {
		return c.stepRepIteration()
	}

	c.beginInstruction()

	for {
		c.opcode = c.fetch8()
		if c.faultRaised {
			return c.deliverFault()
		}

		switch c.opcode {
		case 0xF0: // LOCK
			c.prefixLock = true
			continue
		case 0xF2: // REPNE/REPNZ
			c.prefixRepNE = true
			c.repPrefixEIP = c.EIP - 1 // fetch8 already advanced past it
			continue
		case 0xF3: // REP/REPE/REPZ
			c.prefixRepE = true
			c.repPrefixEIP = c.EIP - 1
			continue
		case 0x26:
			c.prefixSeg = SegES
			continue
		case 0x2E:
			c.prefixSeg = SegCS
			continue
		case 0x36:
			c.prefixSeg = SegSS
			continue
		case 0x3E:
			c.prefixSeg = SegDS
			continue
		case 0x64:
			if c.Model >= Model386 {
				c.prefixSeg = SegFS
				continue
			}
		case 0x65:
			if c.Model >= Model386 {
				c.prefixSeg = SegGS
				continue
			}
		case 0x66:
			if c.Model >= Model386 {
				c.prefixOpSize = true
				continue
			}
		case 0x67:
			if c.Model >= Model386 {
				c.prefixAddrSize = true
				continue
			}
		case 0x0F:
			c.is0F = true
			c.opcode = c.fetch8()
			if c.faultRaised {
				return c.deliverFault()
			}
			c.dispatchExtended()
			goto done
		}

		c.dispatchBase()
		goto done
	}

done:
	if c.faultRaised {
		return c.deliverFault()
	}
	return c.finishInstruction()
}

// beginInstruction resets per-instruction pipeline state and snapshots the
// fault/commit checkpoint (§3).
func (c *CPU) beginInstruction() {
	c.instrStartEIP = c.EIP
	c.instrStartCS = c.Seg[SegCS]
	c.prefixLock = false
	c.prefixRepNE = false
	c.prefixRepE = false
	c.prefixSeg = -1
	c.prefixOpSize = false
	c.prefixAddrSize = false
	c.modrmValid = false
	c.sibValid = false
	c.is0F = false
	c.cyclesOP, c.cyclesEA, c.cyclesPrefix, c.cyclesHWOP = 0, 0, 0, 0
	c.snapshot()
}

func (c *CPU) dispatchBase() {
	h := c.m.baseOps[c.opcode]
	if h == nil {
		c.raiseFault(ExcUD, 0)
		return
	}
	h(c)
}

func (c *CPU) dispatchExtended() {
	h := c.m.extendedOps[c.opcode]
	if h == nil {
		c.raiseFault(ExcUD, 0)
		return
	}
	h(c)
}

// operandSize resolves the effective operand size from CS.D and the 0x66
// prefix (§4.3 group 3: "flips operand-size from the CS.D default").
func (c *CPU) operandSize() opSize {
	is32Default := c.segCache[SegCS].raw[6]&0x40 != 0 // D/B bit
	if c.Model < Model386 {
		is32Default = false
	}
	if c.prefixOpSize {
		is32Default = !is32Default
	}
	if is32Default {
		return size32
	}
	return size16
}

func (c *CPU) addr16() bool {
	is32Default := c.segCache[SegCS].raw[6]&0x40 != 0
	if c.Model < Model386 {
		is32Default = false
	}
	if c.prefixAddrSize {
		is32Default = !is32Default
	}
	return !is32Default
}

// adjustESP steps the stack pointer by delta. The stack-pointer width
// follows SS's D/B bit, not the wide argument (the caller's operand width):
// on a 16-bit stack segment the step wraps within the low 16 bits of ESP
// instead of spilling into its upper half - the same class of fix stepIndex
// applies to ESI/EDI in ops_string.go, needed because real/V86-mode and
// 16-bit stack segments have a 0xFFFF limit that segDescCache.inBounds
// enforces against the full 32-bit value.
func (c *CPU) adjustESP(delta int32, wide bool) {
	if c.segCache[SegSS].raw[6]&0x40 != 0 {
		c.gp[RegESP] = uint32(int32(c.gp[RegESP]) + delta)
		return
	}
	c.setReg16(RegESP, uint16(int32(c.reg16(RegESP))+delta))
}

// cyclesTotal sums every cycle-accounting bucket (§3).
func (c *CPU) cyclesTotal() uint64 {
	return c.cyclesOP + c.cyclesEA + c.cyclesPrefix + c.cyclesHWOP +
		c.cyclesPrefetch + c.cyclesException + c.cyclesStallBIU + c.cyclesStallBUS
}

// finishInstruction commits cycle accounting and guarantees a minimum
// charge, matching the teacher's "minimum 1 cycle per instruction".
func (c *CPU) finishInstruction() uint64 {
	total := c.cyclesTotal()
	if total == 0 {
		total = 1
		c.cyclesOP = 1
	}
	c.TSC += total
	return total
}

// deliverFault rolls back to the pre-instruction checkpoint and runs the
// interrupt-entry state machine against the pending fault vector. Mid-REP,
// the return address must resume at the REP prefix byte rather than the
// instruction's first byte, same as beginInstructionForInterrupt does for
// externally delivered interrupts (§4.4's documented 8086/286 erratum).
func (c *CPU) deliverFault() uint64 {
	vector := c.faultVector
	errCode := c.faultErrorCode
	hasCode := c.faultHasCode
	c.faultRaised = false
	c.rollback()
	if c.repActive {
		c.instrStartEIP = c.repPrefixEIP
	}
	c.deliverException(vector, errCode, hasCode, false)
	return c.cyclesTotal() + 1
}
