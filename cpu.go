// cpu.go - x86 CPU state: register file, control/debug registers, pipeline
// and cycle-accounting state (§3).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// CPUModel selects the reserved-bit masks and feature gates that vary
// across the x86 generations this core emulates.
type CPUModel int

const (
	Model8086 CPUModel = iota
	Model186
	Model286
	Model386
	Model486
	ModelPentium
	ModelPentiumPro
	ModelPentiumII
)

// GP register indices, matching the ModR/M reg-field encoding order used
// throughout decode.go: EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI.
const (
	RegEAX = 0
	RegECX = 1
	RegEDX = 2
	RegEBX = 3
	RegESP = 4
	RegEBP = 5
	RegESI = 6
	RegEDI = 7
)

// Segment descriptor cache slot indices (§3: "8 entries, one per segment
// register including TR and LDTR").
const (
	SegES = 0
	SegCS = 1
	SegSS = 2
	SegDS = 3
	SegFS = 4
	SegGS = 5
	SegTR = 6
	SegLDTR = 7
)

// CPUMode is the operating mode derived from CR0.PE and EFLAGS.VM (§3 invariant).
type CPUMode int

const (
	ModeReal CPUMode = iota
	ModeV86
	ModeProtected
)

// resetKind distinguishes the three reset flavors resetCPU(flags) handles.
type resetKind int

const (
	resetHard resetKind = iota
	resetInit
	resetSoftLocal
)

// fetchPhase is the resumable fetch sub-state machine (§4.3).
type fetchPhase int

const (
	fetchNewOpcode fetchPhase = iota
	fetchPrefixOrOpcode
	fetch0FEscape
	fetchDone
)

// faultCheckpoint is the pre-instruction snapshot every exception rolls back
// to before dispatching the vector (§3 "Fault/commit checkpoint").
type faultCheckpoint struct {
	CS, SS       uint16
	EIP, ESP, EBP uint32
	EFLAGS       uint32
	CPL          int
}

// msrCount mirrors the "0x5C named slots" the data model calls for.
const msrCount = 0x5C

// CPU is one logical processor (BSP or AP). All instruction semantics live
// as methods that read and write this struct directly - no external
// arguments, per §4.4.
type CPU struct {
	Index int // 0 = BSP, 1 = AP
	m     *Machine

	// General-purpose register file, addressed 8/16/32 through the
	// accessors below. Backing storage is the 32-bit view; byte/word
	// views mask into the low bits, little-endian.
	gp [8]uint32

	EIP uint32

	// Segment selectors (raw 16-bit values); SEG[i] mirrors into
	// segCache[i] on every write through setSeg (§3 invariant).
	Seg [8]uint16

	segCache [8]segDescCache
	tlb      TLB

	EFLAGS uint32

	CR0, CR1unused, CR2, CR3, CR4 uint32
	DR [8]uint32
	TR3, TR4, TR5, TR6, TR7 uint32 // 486/Pentium test registers

	GDTR, IDTR descTableReg
	// LDTR/TR selectors live in Seg[SegLDTR]/Seg[SegTR]; their bases and
	// limits live in segCache[SegLDTR]/segCache[SegTR] like any other
	// segment, per the unified descriptor-cache design.

	Model CPUModel
	Mode  CPUMode
	CPL   int

	Halted          bool
	waitingForSIPI  bool
	receivedSIPI    byte
	resetPending    bool
	resetPendingKind resetKind

	// Pipeline / fetch state.
	phase          fetchPhase
	opcode         byte
	is0F           bool
	modrm          byte
	modrmValid     bool
	sib            byte
	sibValid       bool
	instrStartEIP  uint32
	instrStartCS   uint16

	prefixLock   bool
	prefixRepNE  bool
	prefixRepE   bool
	prefixSeg    int // -1 = none, else a Seg* index
	prefixOpSize bool
	prefixAddrSize bool
	// repPrefixEIP holds the address of the F2/F3 byte actually consumed by
	// the prefix loop, so a REP interrupted mid-flight resumes at that byte
	// rather than at the instruction's first byte - the documented 8086/286
	// erratum where earlier prefixes (e.g. a segment override before REP)
	// are lost on resumption.
	repPrefixEIP uint32

	// String-instruction REP state machine (resumable, §4.4/§5): repOpKind
	// identifies which string op is repeating, repElemSize/repAddr16/
	// repSegOverride freeze the operand/address size and segment override
	// in effect when REP began, since a resumed iteration doesn't re-fetch
	// prefixes.
	repActive      bool
	repOpKind      repStringOp
	repElemSize    opSize
	repAddr16      bool
	repSegOverride int
	repIsRepE      bool // CMPS/SCAS only: true=REPE/REPZ, false=REPNE/REPNZ

	// Cycle accounting (§3).
	cyclesOP, cyclesEA, cyclesPrefix, cyclesHWOP       uint64
	cyclesPrefetch, cyclesException                    uint64
	cyclesStallBIU, cyclesStallBUS                     uint64
	TSC       uint64
	tscTiming uint64

	checkpoint faultCheckpoint

	faultRaised    bool
	faultVector    Exception
	faultErrorCode uint32
	faultHasCode   bool
	faultLevel     int // escalation counter: 0 idle, 1 delivering a fault, 2 delivering #DF, 3 -> triple fault

	MSR [msrCount]uint64

	lastArith arithTemp

	biu *BIU

	inhibitIRQ bool // set by MOV-to-SS / POP-SS, consulted once then cleared

	activeBreakpoint [4]uint32
	breakpointEnabled [4]bool
}

type descTableReg struct {
	Base  uint32
	Limit uint16
}

// NewCPU allocates a logical processor bound to the given BIU and performs
// a hard reset.
func NewCPU(index int, m *Machine, biu *BIU) *CPU {
	c := &CPU{Index: index, m: m, biu: biu, Model: m.Config.Model}
	c.resetCPU(resetHard)
	return c
}

// --- 8/16/32-bit aliased GP register access -------------------------------

func (c *CPU) reg32(i int) uint32  { return c.gp[i] }
func (c *CPU) setReg32(i int, v uint32) { c.gp[i] = v }

func (c *CPU) reg16(i int) uint16 { return uint16(c.gp[i]) }
func (c *CPU) setReg16(i int, v uint16) {
	c.gp[i] = (c.gp[i] &^ 0xFFFF) | uint32(v)
}

// reg8 and setReg8 take the "byte register index" encoding used by ModR/M:
// 0-3 are AL/CL/DL/BL (low byte), 4-7 are AH/CH/DH/BH (high byte of the
// corresponding 0-3 register).
func (c *CPU) reg8(i int) byte {
	if i < 4 {
		return byte(c.gp[i])
	}
	return byte(c.gp[i-4] >> 8)
}

func (c *CPU) setReg8(i int, v byte) {
	if i < 4 {
		c.gp[i] = (c.gp[i] &^ 0xFF) | uint32(v)
		return
	}
	c.gp[i-4] = (c.gp[i-4] &^ 0xFF00) | (uint32(v) << 8)
}

func (c *CPU) EAX() uint32 { return c.gp[RegEAX] }
func (c *CPU) ECX() uint32 { return c.gp[RegECX] }
func (c *CPU) EDX() uint32 { return c.gp[RegEDX] }
func (c *CPU) EBX() uint32 { return c.gp[RegEBX] }
func (c *CPU) ESP() uint32 { return c.gp[RegESP] }
func (c *CPU) EBP() uint32 { return c.gp[RegEBP] }
func (c *CPU) ESI() uint32 { return c.gp[RegESI] }
func (c *CPU) EDI() uint32 { return c.gp[RegEDI] }

func (c *CPU) SetEAX(v uint32) { c.gp[RegEAX] = v }
func (c *CPU) SetECX(v uint32) { c.gp[RegECX] = v }
func (c *CPU) SetEDX(v uint32) { c.gp[RegEDX] = v }
func (c *CPU) SetEBX(v uint32) { c.gp[RegEBX] = v }
func (c *CPU) SetESP(v uint32) { c.gp[RegESP] = v }
func (c *CPU) SetEBP(v uint32) { c.gp[RegEBP] = v }
func (c *CPU) SetESI(v uint32) { c.gp[RegESI] = v }
func (c *CPU) SetEDI(v uint32) { c.gp[RegEDI] = v }

func (c *CPU) AX() uint16 { return c.reg16(RegEAX) }
func (c *CPU) BX() uint16 { return c.reg16(RegEBX) }
func (c *CPU) CX() uint16 { return c.reg16(RegECX) }
func (c *CPU) DX() uint16 { return c.reg16(RegEDX) }
func (c *CPU) SI() uint16 { return c.reg16(RegESI) }
func (c *CPU) DI() uint16 { return c.reg16(RegEDI) }
func (c *CPU) BP() uint16 { return c.reg16(RegEBP) }
func (c *CPU) SP() uint16 { return c.reg16(RegESP) }

func (c *CPU) SetAX(v uint16) { c.setReg16(RegEAX, v) }
func (c *CPU) SetBX(v uint16) { c.setReg16(RegEBX, v) }
func (c *CPU) SetCX(v uint16) { c.setReg16(RegECX, v) }
func (c *CPU) SetDX(v uint16) { c.setReg16(RegEDX, v) }
func (c *CPU) SetSI(v uint16) { c.setReg16(RegESI, v) }
func (c *CPU) SetDI(v uint16) { c.setReg16(RegEDI, v) }
func (c *CPU) SetBP(v uint16) { c.setReg16(RegEBP, v) }
func (c *CPU) SetSP(v uint16) { c.setReg16(RegESP, v) }

func (c *CPU) AL() byte { return c.reg8(0) }
func (c *CPU) AH() byte { return c.reg8(4) }
func (c *CPU) SetAL(v byte) { c.setReg8(0, v) }
func (c *CPU) SetAH(v byte) { c.setReg8(4, v) }

// --- Segment register access, keeping the descriptor cache in sync --------

// setSeg loads a new selector into the given segment register and
// recalculates the descriptor cache entry atomically (§3 invariant: "no
// operation may read stale precalcs"). The segment-load access checks
// (present, type, DPL/CPL/RPL) belong to segment.go's segmentWritten.
func (c *CPU) setSeg(idx int, selector uint16) bool {
	return c.segmentWritten(idx, selector)
}

func (c *CPU) getSeg(idx int) uint16 { return c.Seg[idx] }

// deriveCPL recomputes CPL from CR0.PE and EFLAGS.VM per §3's invariant.
func (c *CPU) deriveCPL() {
	switch {
	case c.CR0&crPE == 0:
		c.Mode = ModeReal
		c.CPL = 0
	case c.EFLAGS&FlagVM != 0:
		c.Mode = ModeV86
		c.CPL = 3
	default:
		c.Mode = ModeProtected
		c.CPL = int(c.Seg[SegSS] & 3)
	}
}

// Control register bits referenced outside cr0/cr4 files.
const (
	crPE uint32 = 1 << 0
	crMP uint32 = 1 << 1
	crEM uint32 = 1 << 2
	crTS uint32 = 1 << 3
	crET uint32 = 1 << 4
	crNE uint32 = 1 << 5
	crWP uint32 = 1 << 16
	crAM uint32 = 1 << 18
	crPG uint32 = 1 << 31

	cr4VME uint32 = 1 << 0
	cr4PSE uint32 = 1 << 4
	cr4PAE uint32 = 1 << 5
	cr4PGE uint32 = 1 << 7
	cr4DE  uint32 = 1 << 3
)

// snapshot captures the fault/commit checkpoint at instruction entry.
func (c *CPU) snapshot() {
	c.checkpoint = faultCheckpoint{
		CS: c.Seg[SegCS], SS: c.Seg[SegSS],
		EIP: c.EIP, ESP: c.gp[RegESP], EBP: c.gp[RegEBP],
		EFLAGS: c.EFLAGS, CPL: c.CPL,
	}
}

// rollback restores the checkpoint before an exception is delivered (§7):
// architectural registers only; memory writes the instruction already made
// are not undone.
func (c *CPU) rollback() {
	c.Seg[SegCS] = c.checkpoint.CS
	c.Seg[SegSS] = c.checkpoint.SS
	c.EIP = c.checkpoint.EIP
	c.gp[RegESP] = c.checkpoint.ESP
	c.gp[RegEBP] = c.checkpoint.EBP
	c.EFLAGS = c.checkpoint.EFLAGS
	c.CPL = c.checkpoint.CPL
}
