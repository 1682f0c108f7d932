package pcx86

import "testing"

func TestPICAcknowledgePriorityAndRemap(t *testing.T) {
	p := NewPIC()
	p.SetRemap(0, 0x08)
	p.SetRemap(1, 0x70)

	p.raiseirq(3)
	p.raiseirq(1) // higher priority (lower line number wins)

	vec, ok := p.acknowledgeirqrequest()
	if !ok || vec != 0x08+1 {
		t.Fatalf("acknowledge = %#x,%v, want 0x09,true (IRQ1 wins priority)", vec, ok)
	}
	vec, ok = p.acknowledgeirqrequest()
	if !ok || vec != 0x08+3 {
		t.Fatalf("acknowledge = %#x,%v, want 0x0B,true (IRQ3 next)", vec, ok)
	}
	if _, ok := p.acknowledgeirqrequest(); ok {
		t.Fatalf("no IRQ should remain pending")
	}
}

func TestPICSlaveLinesRemapIndependently(t *testing.T) {
	p := NewPIC()
	p.SetRemap(1, 0x70)
	p.raiseirq(8) // slave line 0

	vec, ok := p.acknowledgeirqrequest()
	if !ok || vec != 0x70 {
		t.Fatalf("slave IRQ8 -> vector %#x,%v, want 0x70,true", vec, ok)
	}
}

func TestPICMaskSuppressesAcknowledge(t *testing.T) {
	p := NewPIC()
	p.SetMask(5, true)
	p.raiseirq(5)
	if _, ok := p.acknowledgeirqrequest(); ok {
		t.Fatalf("masked IRQ must not be acknowledged")
	}
	if p.hasPending() {
		t.Fatalf("hasPending must ignore masked lines")
	}
}

func TestPICPortICW1RemapsVectorBase(t *testing.T) {
	p := NewPIC()
	port := &picPort{pic: p, which: 0}

	port.Out(0x20, 0x11) // ICW1: expect ICW4
	port.Out(0x21, 0x20) // ICW2: new vector base
	port.Out(0x21, 0x04) // ICW3: cascade wiring, ignored
	port.Out(0x21, 0x01) // ICW4

	if p.vectorBase[0] != 0x20 {
		t.Fatalf("vectorBase[0] = %#x, want 0x20 after ICW2", p.vectorBase[0])
	}

	// After init completes, data-port writes set the OCW1 mask register.
	port.Out(0x21, 0x02) // mask IRQ1 only
	if !p.mask[1] || p.mask[0] || p.mask[2] {
		t.Fatalf("OCW1 mask bits mismatched: mask=%v", p.mask[:3])
	}
	if port.In(0x21) != 0x02 {
		t.Fatalf("reading the mask register back must return what was written")
	}
}

func TestPICNMIBypassesMask(t *testing.T) {
	p := NewPIC()
	p.RaiseNMI()
	if !p.nmiPending {
		t.Fatalf("RaiseNMI must latch nmiPending")
	}
}
