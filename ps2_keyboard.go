// ps2_keyboard.go - PS/2 keyboard state machine (§4.7, §8 scenario 6).
//
// Grounded on UniPCemu/hardware/ps2_keyboard.c's command/BAT-timeout model
// via original_source/ (see SPEC_FULL.md §C), generalized into the same
// ps2Device interface ps2_8042.go dispatches through.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

const (
	kbAck        = 0xFA
	kbResend     = 0xFE
	kbBATPass    = 0xAA
	kbBATTimeoutTicks = 600 * 14318 // ~600ms of 14.318MHz ticks, nominal BAT delay
)

// PS2Keyboard implements the three scan-code sets, typematic/break-enable
// masking (commands 0xF7-0xFA), and the reset->BAT sequence (§8 scenario 6).
type PS2Keyboard struct {
	ctrl *PS2Controller

	out *ByteFIFO

	scanCodeSet int // 1, 2, or 3

	awaitingParam bool
	paramCmd      byte

	typematicEnabled [256]bool
	breakEnabled     [256]bool

	batPending  bool
	batCountdown uint64

	enabled bool
}

func NewPS2Keyboard(ctrl *PS2Controller) *PS2Keyboard {
	kb := &PS2Keyboard{ctrl: ctrl, out: NewByteFIFO(32, true), scanCodeSet: 2, enabled: true}
	for i := range kb.typematicEnabled {
		kb.typematicEnabled[i] = true
		kb.breakEnabled[i] = true
	}
	return kb
}

func (k *PS2Keyboard) hasOutput() bool     { return !k.out.Empty() }
func (k *PS2Keyboard) drain() (byte, bool) { return k.out.Pop() }

func (k *PS2Keyboard) reset() {
	k.scanCodeSet = 2
	k.enabled = true
	k.batPending = true
	k.batCountdown = kbBATTimeoutTicks
	k.out.Push(kbAck)
}

// hostWrite handles a byte sent from the guest via port 0x60 while the
// controller has this device selected.
func (k *PS2Keyboard) hostWrite(b byte) {
	if k.awaitingParam {
		k.awaitingParam = false
		switch k.paramCmd {
		case 0xED: // set LEDs
			k.out.Push(kbAck)
		case 0xF0: // select scan code set
			if b == 0 {
				k.out.Push(kbAck)
				k.out.Push(byte(k.scanCodeSet))
			} else if b >= 1 && b <= 3 {
				k.scanCodeSet = int(b)
				k.out.Push(kbAck)
			} else {
				k.out.Push(kbResend)
			}
		case 0xF3: // set typematic rate/delay
			k.out.Push(kbAck)
		case 0xF7, 0xF8, 0xF9, 0xFA:
			k.out.Push(kbAck)
		}
		return
	}

	switch b {
	case 0xED, 0xF3:
		k.out.Push(kbAck)
		k.awaitingParam = true
		k.paramCmd = b
	case 0xF0:
		k.out.Push(kbAck)
		k.awaitingParam = true
		k.paramCmd = 0xF0
	case 0xEE: // echo
		k.out.Push(0xEE)
	case 0xF2: // identify
		k.out.Push(kbAck)
		k.out.Push(0xAB)
		k.out.Push(0x83)
	case 0xF4: // enable scanning
		k.enabled = true
		k.out.Push(kbAck)
	case 0xF5, 0xF6: // disable scanning / set defaults
		if b == 0xF5 {
			k.enabled = false
		}
		k.out.Push(kbAck)
	case 0xF7, 0xF8, 0xF9, 0xFA: // set all keys typematic/make-break/etc
		for i := range k.typematicEnabled {
			k.typematicEnabled[i] = b == 0xF7 || b == 0xFA
			k.breakEnabled[i] = b == 0xF8 || b == 0xFA
		}
		k.out.Push(kbAck)
	case 0xFF: // reset
		k.reset()
	default:
		k.out.Push(kbResend)
	}
}

// PressKey queues the scan-code bytes for a make event at the current scan
// code set (set 1/2 only; set 3 shares set 2's single-byte make codes here
// for brevity since the guest rarely requests it without also remapping).
func (k *PS2Keyboard) PressKey(code byte) {
	if !k.enabled {
		return
	}
	k.out.Push(code)
}

func (k *PS2Keyboard) ReleaseKey(code byte) {
	if !k.enabled || !k.breakEnabled[code] {
		return
	}
	if k.scanCodeSet == 1 {
		k.out.Push(code | 0x80)
	} else {
		k.out.Push(0xF0)
		k.out.Push(code)
	}
}

// Tick advances the BAT timer; completing it delivers 0xAA (§8 scenario 6).
func (k *PS2Keyboard) Tick(ticks14M uint64) {
	if !k.batPending {
		return
	}
	if k.batCountdown <= ticks14M {
		k.batPending = false
		k.out.Push(kbBATPass)
		return
	}
	k.batCountdown -= ticks14M
}
