// reset.go - CPU reset/INIT/SIPI lifecycle (§3 "Lifecycle").
//
// Grounded on cpu_x86.go's Reset(), generalized from "always clear
// everything" to the three reset flavors §3 distinguishes, plus the
// wait-for-SIPI boot sequence APs use.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// resetCPU re-runs CPU initialization per the requested flavor:
//   - resetHard: full power-on, clears TSC and all MSRs.
//   - resetInit: preserves TSC and MSRs, clears architectural state.
//   - resetSoftLocal: preserves everything except architectural state
//     (used for the JMP-to-self local reset sequence some BIOSes issue).
func (c *CPU) resetCPU(kind resetKind) {
	c.gp = [8]uint32{}
	c.EFLAGS = FlagIF | (1 << 1)
	c.CR0 = crET // CR0.ET hardwired to 1 on 386SX+ (§3 invariant)
	if c.Model < Model386 {
		c.CR0 = 0
	}
	c.CR2, c.CR3, c.CR4 = 0, 0, 0
	c.DR = [8]uint32{}

	c.GDTR = descTableReg{}
	c.IDTR = descTableReg{Limit: 0x3FF} // real-mode IVT: 256*4 bytes

	c.Seg = [8]uint16{}
	c.segCache = [8]segDescCache{}
	c.Mode = ModeReal
	c.CPL = 0
	for _, i := range []int{SegES, SegSS, SegDS, SegFS, SegGS} {
		c.segmentWritten(i, 0) // real-mode 64KB segments at base 0
	}

	c.phase = fetchNewOpcode
	c.modrmValid, c.sibValid = false, false
	c.prefixSeg = -1
	c.repActive = false
	c.faultRaised = false
	c.faultLevel = 0
	c.inhibitIRQ = false

	c.cyclesOP, c.cyclesEA, c.cyclesPrefix, c.cyclesHWOP = 0, 0, 0, 0
	c.cyclesPrefetch, c.cyclesException, c.cyclesStallBIU, c.cyclesStallBUS = 0, 0, 0, 0

	if kind == resetHard {
		c.TSC = 0
		c.MSR = [msrCount]uint64{}
	}

	if c.biu != nil {
		c.Paging_initTLB()
		c.biu.flushPrefetch()
	}

	if c.Index == 0 {
		// BSP (§8 scenario 1): CS:IP = F000:FFF0, with CS's cached base
		// forced to FFFF0000 on 386+ so the very first fetch reads linear
		// FFFFFFF0; on 8086 the cached base is the conventional CS<<4.
		c.Seg[SegCS] = 0xF000
		c.EIP = 0xFFF0
		if c.Model >= Model386 {
			c.segCache[SegCS].base = 0xFFFF0000
		} else {
			c.segCache[SegCS].base = 0xF0000
		}
		c.segCache[SegCS].limit = 0xFFFF
		c.segCache[SegCS].roof = 0xFFFF
		c.segCache[SegCS].present = true
		c.segCache[SegCS].executable = true
		c.segCache[SegCS].readable = true
		for i := range c.segCache[SegCS].rights {
			c.segCache[SegCS].rights[i] = true
		}
		c.waitingForSIPI = false
		c.Halted = false
	} else {
		// AP: waits for a Startup IPI (§3 "AP cores boot into waiting for
		// SIPI").
		c.waitingForSIPI = true
		c.Halted = true
	}
}

// DeliverSIPI resumes an AP at CS=vv00h:IP=0000h (§4.6).
func (c *CPU) DeliverSIPI(vector byte) {
	if !c.waitingForSIPI {
		return
	}
	c.waitingForSIPI = false
	c.Halted = false
	c.receivedSIPI = vector
	c.Seg[SegCS] = uint16(vector) << 8
	c.segCache[SegCS].base = uint32(vector) << 12
	c.segCache[SegCS].limit = 0xFFFF
	c.segCache[SegCS].roof = 0xFFFF
	c.segCache[SegCS].present = true
	c.segCache[SegCS].executable = true
	c.segCache[SegCS].readable = true
	for i := range c.segCache[SegCS].rights {
		c.segCache[SegCS].rights[i] = true
	}
	c.EIP = 0
}
