package pcx86

import "testing"

// TestPS2KeyboardResetSequence exercises §8 scenario 6: writing 0xFF to port
// 0x60 acks immediately with 0xFA, then after the BAT timer elapses the
// keyboard posts 0xAA, and IRQ1 is raised for each byte while the command
// byte's IRQ1 bit is enabled.
func TestPS2KeyboardResetSequence(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	m.PS2.Out(port8042Data, 0xFF) // reset command to the keyboard

	if v := m.PS2.In(port8042Data); v != kbAck {
		t.Fatalf("first byte after reset = %#x, want 0xFA (ACK)", v)
	}
	if _, ok := m.PIC.acknowledgeirqrequest(); !ok {
		t.Fatalf("ACK byte must raise IRQ1 (command byte defaults to IRQ1 enabled)")
	}

	// Before the BAT timer elapses, nothing else should be queued.
	m.Keyboard.Tick(1)
	if m.Keyboard.hasOutput() {
		t.Fatalf("BAT pass must not post before the timeout elapses")
	}

	m.Keyboard.Tick(kbBATTimeoutTicks)
	m.PS2.Tick(0)
	if v := m.PS2.In(port8042Data); v != kbBATPass {
		t.Fatalf("byte after BAT timeout = %#x, want 0xAA (BAT pass)", v)
	}
}

func TestPS2KeyboardCommandSetScanCodeSet(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.PS2.Out(port8042Data, 0xF0) // select scan code set
	if v := m.PS2.In(port8042Data); v != kbAck {
		t.Fatalf("0xF0 command byte = %#x, want ACK", v)
	}
	m.PS2.Out(port8042Data, 0x01) // set 1
	if v := m.PS2.In(port8042Data); v != kbAck {
		t.Fatalf("scan code set parameter = %#x, want ACK", v)
	}
	if m.Keyboard.scanCodeSet != 1 {
		t.Fatalf("scanCodeSet = %d, want 1", m.Keyboard.scanCodeSet)
	}
}

func TestPS2KeyboardDisabledSuppressesKeyEvents(t *testing.T) {
	m, err := NewMachine(MachineConfig{Model: Model386, MemoryKB: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.PS2.Out(port8042Data, 0xF5) // disable scanning
	m.PS2.In(port8042Data)        // drain the ACK

	m.Keyboard.PressKey(0x1E)
	if m.Keyboard.hasOutput() {
		t.Fatalf("a disabled keyboard must not queue scan codes")
	}
}
