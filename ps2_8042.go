// ps2_8042.go - 8042 keyboard/mouse controller (§4.7, SPEC_FULL.md §C.1/C.2).
//
// Grounded on SDLPoP/headers/hardware/8042.h's status-register bit layout
// and the PS2_FIRSTPORTINTERRUPTENABLED-family RAM-byte macros
// (original_source/), which the distilled spec only sketches; reproduced
// here rather than inventing a layout, per SPEC_FULL.md §C.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// Status register bits at port 0x64 (read).
const (
	statusOutputFull   = 1 << 0
	statusInputFull    = 1 << 1
	statusSystemFlag   = 1 << 2 // soft vs power-on reset
	statusCommandData  = 1 << 3 // last write targeted 0x64 vs 0x60
	statusKeyboardLock = 1 << 4
	statusAuxData      = 1 << 5 // data-from-aux-port
	statusTimeout      = 1 << 6
	statusParityError  = 1 << 7
)

// Command-byte (RAM byte 0) bit layout.
const (
	cmdIRQ1Enable         = 1 << 0
	cmdIRQ12Enable        = 1 << 1
	cmdSystemPassedPOST   = 1 << 2
	cmdFirstPortDisable   = 1 << 4
	cmdSecondPortDisable  = 1 << 5
	cmdFirstPortTranslate = 1 << 6
)

type ps2Device interface {
	hostWrite(b byte)      // controller -> device (data or parameter byte)
	drain() (byte, bool)   // device -> controller FIFO
	hasOutput() bool
	reset()
}

// PS2Controller is the 8042: 32 bytes of internal RAM (byte 0 is the
// command byte), two device ports, and the 0x60/0x64 register pair.
type PS2Controller struct {
	m   *Machine
	ram [32]byte

	status byte

	awaitingParam bool // next data-port write is a controller parameter
	paramKind     byte // which command is awaiting its parameter

	outputFIFO *ByteFIFO
	auxNext    bool // next byte in outputFIFO came from the aux (mouse) port

	keyboard ps2Device
	mouse    ps2Device

	keyboardDisabled bool
	mouseDisabled    bool

	nextWriteTarget byte // 0 = first port (keyboard), 1 = second port (mouse), 2 = controller command pending
}

func NewPS2Controller(m *Machine) *PS2Controller {
	c := &PS2Controller{m: m, outputFIFO: NewByteFIFO(16, false)}
	c.ram[0] = cmdIRQ1Enable | cmdFirstPortTranslate
	c.status = statusSystemFlag
	return c
}

func (c *PS2Controller) attach(kb ps2Device, mouse ps2Device) {
	c.keyboard = kb
	c.mouse = mouse
}

// In implements port reads: 0x60 drains the output FIFO, 0x64 returns the
// status register.
func (c *PS2Controller) In(port uint16) byte {
	switch port {
	case port8042Data:
		v, ok := c.outputFIFO.Pop()
		if !ok {
			c.status &^= statusOutputFull
			return 0
		}
		if c.outputFIFO.Empty() {
			c.status &^= statusOutputFull
		}
		return v
	case port8042Status:
		return c.status
	}
	return 0xFF
}

// Out implements port writes: 0x60 sends to the selected device or
// supplies a pending controller parameter; 0x64 issues a controller
// command.
func (c *PS2Controller) Out(port uint16, v byte) {
	switch port {
	case port8042Data:
		c.status &^= statusCommandData
		if c.awaitingParam {
			c.applyParam(v)
			return
		}
		switch c.nextWriteTarget {
		case 1:
			if c.mouse != nil {
				c.mouse.hostWrite(v)
			}
		default:
			if c.keyboard != nil {
				c.keyboard.hostWrite(v)
			}
		}
		c.nextWriteTarget = 0
		c.pumpOutputs()
	case port8042Command:
		c.status |= statusCommandData
		c.handleCommand(v)
	}
}

func (c *PS2Controller) applyParam(v byte) {
	c.awaitingParam = false
	switch c.paramKind {
	case 0x60: // write command byte
		c.ram[0] = v
	case 0xD1: // write output port (A20 etc.), ignored beyond storage
		c.ram[1] = v
	}
}

func (c *PS2Controller) handleCommand(cmd byte) {
	switch cmd {
	case 0x20: // read command byte
		c.outputFIFO.Push(c.ram[0])
		c.status |= statusOutputFull
	case 0x60: // write command byte (parameter follows)
		c.awaitingParam = true
		c.paramKind = 0x60
	case 0xA7: // disable second port
		c.mouseDisabled = true
		c.ram[0] |= cmdSecondPortDisable
	case 0xA8: // enable second port
		c.mouseDisabled = false
		c.ram[0] &^= cmdSecondPortDisable
	case 0xA9: // test second port
		c.outputFIFO.Push(0x00)
		c.status |= statusOutputFull
	case 0xAA: // self test
		c.outputFIFO.Push(0x55)
		c.status |= statusOutputFull
	case 0xAB: // test first port
		c.outputFIFO.Push(0x00)
		c.status |= statusOutputFull
	case 0xAD: // disable first port
		c.keyboardDisabled = true
		c.ram[0] |= cmdFirstPortDisable
	case 0xAE: // enable first port
		c.keyboardDisabled = false
		c.ram[0] &^= cmdFirstPortDisable
	case 0xD1: // write output port
		c.awaitingParam = true
		c.paramKind = 0xD1
	case 0xD4: // next data-port byte goes to the mouse
		c.nextWriteTarget = 1
	}
}

// pumpOutputs drains any bytes the keyboard/mouse devices have queued into
// the controller's output FIFO and raises IRQ1/IRQ12 as configured.
func (c *PS2Controller) pumpOutputs() {
	if c.keyboard != nil {
		for c.keyboard.hasOutput() {
			b, ok := c.keyboard.drain()
			if !ok {
				break
			}
			c.outputFIFO.Push(b)
			c.status |= statusOutputFull
			c.status &^= statusAuxData
			if c.ram[0]&cmdIRQ1Enable != 0 {
				c.m.RaiseIRQ(1)
			}
		}
	}
	if c.mouse != nil {
		for c.mouse.hasOutput() {
			b, ok := c.mouse.drain()
			if !ok {
				break
			}
			c.outputFIFO.Push(b)
			c.status |= statusOutputFull | statusAuxData
			if c.ram[0]&cmdIRQ12Enable != 0 {
				c.m.RaiseIRQ(12)
			}
		}
	}
}

// Tick lets the controller poll its devices each device-clock tick, so
// timer-driven events (BAT completion, typematic repeat) surface without a
// host write.
func (c *PS2Controller) Tick(ticks14M uint64) {
	c.pumpOutputs()
}
