// joystick.go - analog joystick port stub (SPEC_FULL.md §C.5).
//
// The distilled spec names the 0x200-range ports but doesn't describe
// behavior; SDLPoP/hardware/joystick.h (original_source/) lists the port
// range without much more. This provides a minimal centered-position,
// no-buttons-pressed stub so a BIOS joystick-detect loop doesn't hang.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// JoystickPort implements the single analog port, mapped at 0x200-0x207
// (0x200-0x20F when the machine's Arch is "XT"): writing
// any value starts the one-shot RC timer on all four axes; reading returns
// bit i=0 once axis i's timer has "discharged", plus the button bits in
// the high nibble (all released in this stub).
type JoystickPort struct {
	triggeredAt [4]uint64
	tick        uint64
	axisDelay   uint64 // ticks until an axis reads 0 (centered position)
}

func NewJoystickPort() *JoystickPort {
	return &JoystickPort{axisDelay: 2000}
}

func (j *JoystickPort) In(port uint16) byte {
	v := byte(0xF0) // buttons in high nibble, all released (active-low -> set)
	for axis := 0; axis < 4; axis++ {
		if j.tick-j.triggeredAt[axis] < j.axisDelay {
			v |= 1 << axis
		}
	}
	return v
}

func (j *JoystickPort) Out(port uint16, v byte) {
	for axis := 0; axis < 4; axis++ {
		j.triggeredAt[axis] = j.tick
	}
}

// Tick advances the port's internal clock, driven by the 14MHz device
// clock fabric like every other peripheral (§4.8).
func (j *JoystickPort) Tick(ticks14M uint64) {
	j.tick += ticks14M
}
