// machine.go - the top-level arena: CPUs, BIUs, physical memory, ports and
// devices addressed by index (§9 "Cyclic references... each component is
// allocated in an arena and addressed by index").
//
// Grounded on cpu_x86.go's NewCPU_X86(bus) constructor shape and on the
// teacher's CPUX86Config-style struct-literal configuration (no CLI/config
// framework inside the core, per SPEC_FULL.md §A).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

import (
	"log"
	"os"
)

// MachineConfig is the host configuration consumed at construction (§6).
type MachineConfig struct {
	Model      CPUModel
	BusWidth8  bool // true on 8088/8086-class parts
	MHz        float64
	Turbo      bool
	CyclesExact bool // false = IPS clocking mode
	CPUIDMode  int   // 0 modern, 1 limited, 2 DX-on-start
	MemoryKB   int
	Arch       string // "XT"/"AT"/"Compaq"/"PS2"/"i430fx"/"i440fx"
	NumCPUs    int    // 1 or 2 (BSP + one AP)

	Logger *log.Logger
}

// Machine owns every component and is the single struct every operation
// takes a pointer to (§9 "Global mutable state... encapsulate in a single
// Machine struct").
type Machine struct {
	Config MachineConfig

	CPUs    []*CPU
	BIUs    []*BIU
	PhysMem *PhysMem
	IOPorts *IOPorts
	PIC     *PIC

	PS2      *PS2Controller
	Keyboard *PS2Keyboard
	Mouse    *PS2Mouse
	UARTs    [4]*UART
	Joystick *JoystickPort

	baseOps     [256]func(*CPU)
	extendedOps [256]func(*CPU)

	ActiveCPU int // round-robin index into CPUs (§5)

	ClockAccumNS int64 // sub-tick remainder, in ns scaled by masterClockHz (§4.8)
	DeviceTicks14M uint64

	CMOS [256]byte

	logger  *log.Logger
	OnFatal func(error)
}

const defaultMemoryKB = 16 * 1024 // 16MB, matching the teacher's default

// NewMachine builds a fully wired machine: physical memory, port space,
// PIC, 8042/PS2/UART/joystick devices, one or two CPUs each with its own
// BIU, and the opcode dispatch tables.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.MemoryKB <= 0 {
		cfg.MemoryKB = defaultMemoryKB
	}
	if cfg.NumCPUs <= 0 {
		cfg.NumCPUs = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "pcx86: ", log.LstdFlags)
	}

	m := &Machine{
		Config:  cfg,
		PhysMem: NewPhysMem(cfg.MemoryKB * 1024),
		IOPorts: NewIOPorts(),
		PIC:     NewPIC(),
		logger:  logger,
	}

	m.initOpcodeTables()

	m.PS2 = NewPS2Controller(m)
	m.Keyboard = NewPS2Keyboard(m.PS2)
	m.Mouse = NewPS2Mouse(m.PS2)
	m.PS2.attach(m.Keyboard, m.Mouse)

	for i, base := range uartBasePorts {
		u := NewUART(m.PIC, []int{4, 3, 4, 3}[i])
		m.UARTs[i] = u
		m.IOPorts.Map(base, base+7, u)
	}

	m.Joystick = NewJoystickPort()
	joyEnd := uint16(portJoystickATEnd)
	if cfg.Arch == "XT" {
		joyEnd = portJoystickXTEnd
	}
	m.IOPorts.Map(portJoystickATStart, joyEnd, m.Joystick)

	masterPIC := &picPort{pic: m.PIC, which: 0}
	slavePIC := &picPort{pic: m.PIC, which: 1}
	m.IOPorts.Map(0x20, 0x21, masterPIC)
	m.IOPorts.Map(0xA0, 0xA1, slavePIC)
	m.IOPorts.Map(port8042Data, port8042Data, m.PS2)
	m.IOPorts.Map(port8042Status, port8042Status, m.PS2)

	for i := 0; i < cfg.NumCPUs; i++ {
		biu := NewBIU(m, cfg.Model)
		cpu := NewCPU(i, m, biu)
		biu.bind(cpu)
		m.CPUs = append(m.CPUs, cpu)
		m.BIUs = append(m.BIUs, biu)
	}

	return m, nil
}

// BSP returns the bootstrap processor.
func (m *Machine) BSP() *CPU { return m.CPUs[0] }

// LoadCMOS installs a 64, 128 or 256-byte CMOS image (§6 "Persisted state").
func (m *Machine) LoadCMOS(image []byte) error {
	if len(image) != 64 && len(image) != 128 && len(image) != 256 {
		err := &HostError{Subsystem: "cmos", Err: errInvalidCMOSSize}
		m.raiseError("cmos", errInvalidCMOSSize)
		return err
	}
	copy(m.CMOS[:], image)
	return nil
}

var errInvalidCMOSSize = cmosSizeError{}

type cmosSizeError struct{}

func (cmosSizeError) Error() string { return "CMOS image must be 64, 128 or 256 bytes" }

// RaiseIRQ/LowerIRQ/RaiseNMI are the device-facing interrupt-request
// lines named in §6.
func (m *Machine) RaiseIRQ(n int)  { m.PIC.raiseirq(n) }
func (m *Machine) LowerIRQ(n int)  { m.PIC.lowerirq(n) }
func (m *Machine) RaiseNMI()       { m.PIC.RaiseNMI() }

// RegisterDump is the CPU register-dump surface for a debugger/monitor
// frontend (§6); this module does not provide an interactive debugger,
// only the data shape one would consume.
type RegisterDump struct {
	GP       [8]uint32
	Seg      [8]uint16
	EIP      uint32
	EFLAGS   uint32
	CR0, CR2, CR3, CR4 uint32
	DR       [8]uint32
	GDTRBase uint32
	GDTRLimit uint16
	IDTRBase uint32
	IDTRLimit uint16
	CPL      int
	Mode     CPUMode
	TSC      uint64
	Halted   bool
	ResetPending bool
}

func (c *CPU) RegisterDump() RegisterDump {
	return RegisterDump{
		GP:     c.gp,
		Seg:    c.Seg,
		EIP:    c.EIP,
		EFLAGS: c.EFLAGS,
		CR0:    c.CR0, CR2: c.CR2, CR3: c.CR3, CR4: c.CR4,
		DR:        c.DR,
		GDTRBase:  c.GDTR.Base,
		GDTRLimit: c.GDTR.Limit,
		IDTRBase:  c.IDTR.Base,
		IDTRLimit: c.IDTR.Limit,
		CPL:       c.CPL,
		Mode:      c.Mode,
		TSC:       c.TSC,
		Halted:    c.Halted,
		ResetPending: c.resetPending,
	}
}
