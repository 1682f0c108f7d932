// ps2_mouse.go - PS/2 mouse: stream/remote/wrap modes (§4.7, SPEC_FULL.md §C.3).
//
// Grounded on UniPCemu/hardware/ps2_mouse.c via original_source/, which
// implements all three modes where the distilled spec only sketches them;
// wrap mode's echo-every-byte-until-0xEC behavior is carried over verbatim.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

type mouseMode int

const (
	mouseStream mouseMode = iota
	mouseRemote
	mouseWrap
)

// PS2Mouse implements a 3-byte packet queue (button state + dx + dy).
type PS2Mouse struct {
	ctrl *PS2Controller
	out  *ByteFIFO

	mode mouseMode

	resolution byte // 1/2/4/8 counts/mm, stored as the 0-3 command code
	scaling2to1 bool
	reportingEnabled bool

	buttons byte
	dx, dy  int32 // accumulated since last packet
}

func NewPS2Mouse(ctrl *PS2Controller) *PS2Mouse {
	return &PS2Mouse{ctrl: ctrl, out: NewByteFIFO(32, true), resolution: 2}
}

func (m *PS2Mouse) hasOutput() bool     { return !m.out.Empty() }
func (m *PS2Mouse) drain() (byte, bool) { return m.out.Pop() }

func (m *PS2Mouse) reset() {
	m.mode = mouseStream
	m.reportingEnabled = false
	m.resolution = 2
	m.scaling2to1 = false
	m.out.Push(kbAck)
}

func (m *PS2Mouse) hostWrite(b byte) {
	if m.mode == mouseWrap && b != 0xEC {
		// Wrap mode echoes every received byte until 0xEC, per the
		// original's documented behavior (SPEC_FULL.md §C.3).
		m.out.Push(b)
		return
	}

	switch b {
	case 0xFF: // reset
		m.reset()
		m.out.Push(kbBATPass)
	case 0xFE: // resend
		// nothing buffered to resend in this simplified model
	case 0xF6: // set defaults
		m.resolution = 2
		m.scaling2to1 = false
		m.mode = mouseStream
		m.out.Push(kbAck)
	case 0xF5: // disable data reporting
		m.reportingEnabled = false
		m.out.Push(kbAck)
	case 0xF4: // enable data reporting
		m.reportingEnabled = true
		m.out.Push(kbAck)
	case 0xF3: // set sample rate (parameter ignored beyond ack)
		m.out.Push(kbAck)
	case 0xF2: // get device ID
		m.out.Push(kbAck)
		m.out.Push(0x00)
	case 0xF0: // set remote mode
		m.mode = mouseRemote
		m.out.Push(kbAck)
	case 0xEE: // set wrap mode
		m.mode = mouseWrap
		m.out.Push(kbAck)
	case 0xEC: // reset wrap mode
		m.mode = mouseStream
		m.out.Push(kbAck)
	case 0xEB: // read data (remote-mode poll)
		m.out.Push(kbAck)
		m.emitPacket()
	case 0xEA: // set stream mode
		m.mode = mouseStream
		m.out.Push(kbAck)
	case 0xE9: // status request
		m.out.Push(kbAck)
		status := byte(0)
		if m.reportingEnabled {
			status |= 1 << 5
		}
		if m.scaling2to1 {
			status |= 1 << 4
		}
		m.out.Push(status)
		m.out.Push(m.resolution)
		m.out.Push(100) // sample rate placeholder
	case 0xE8: // set resolution (parameter ignored beyond ack)
		m.out.Push(kbAck)
	case 0xE7: // set scaling 2:1
		m.scaling2to1 = true
		m.out.Push(kbAck)
	case 0xE6: // set scaling 1:1
		m.scaling2to1 = false
		m.out.Push(kbAck)
	default:
		m.out.Push(kbResend)
	}
}

// Move accumulates relative motion from the host input producer.
func (m *PS2Mouse) Move(dx, dy int32, buttons byte) {
	m.dx += dx
	m.dy += dy
	m.buttons = buttons
	if m.mode == mouseStream && m.reportingEnabled {
		m.emitPacket()
	}
}

// emitPacket applies the 2:1 scaling curve when enabled and pushes the
// 3-byte packet (button state, dx, dy with sign/overflow bits folded in).
func (m *PS2Mouse) emitPacket() {
	dx, dy := m.dx, m.dy
	if m.scaling2to1 {
		dx = scale2to1(dx)
		dy = scale2to1(dy)
	}
	m.dx, m.dy = 0, 0

	b0 := m.buttons & 0x07
	if dx < 0 {
		b0 |= 1 << 4
	}
	if dy < 0 {
		b0 |= 1 << 5
	}
	b0 |= 1 << 3 // bit 3 always set

	m.out.Push(b0)
	m.out.Push(byte(int8(clamp9(dx))))
	m.out.Push(byte(int8(clamp9(dy))))
}

func clamp9(v int32) int32 {
	if v > 255 {
		return 255
	}
	if v < -255 {
		return -255
	}
	return v
}

// scale2to1 is the piecewise curve the 2:1 scaling mode applies: small
// moves pass through unscaled, larger ones are doubled/rounded per the
// documented PS/2 mouse table.
func scale2to1(v int32) int32 {
	sign := int32(1)
	if v < 0 {
		sign = -1
		v = -v
	}
	var out int32
	switch {
	case v == 0:
		out = 0
	case v == 1:
		out = 1
	case v == 2:
		out = 1
	case v == 3:
		out = 3
	case v == 4:
		out = 6
	case v == 5:
		out = 9
	default:
		out = v * 2
	}
	return out * sign
}
