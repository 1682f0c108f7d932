package pcx86

import "testing"

func TestUARTLoopbackEchoesTHRIntoRBR(t *testing.T) {
	pic := NewPIC()
	u := NewUART(pic, 4)
	u.Out(uartMCR, 0x10) // loopback enable
	u.Out(uartTHR, 0x41)

	v, ok := u.rx.Pop()
	if !ok || v != 0x41 {
		t.Fatalf("loopback THR write must land in RX, got %#x,%v", v, ok)
	}
	if u.lsr&lsrDataReady == 0 {
		t.Fatalf("LSR.DataReady must be set after a loopback byte arrives")
	}
}

func TestUARTIIRPriorityOrder(t *testing.T) {
	pic := NewPIC()
	u := NewUART(pic, 4)
	u.Out(uartIER, 0x0F) // enable all four classic causes

	u.interruptCauses[intRLS] = true
	u.interruptCauses[intRX] = true
	u.interruptCauses[intTHRE] = true
	u.interruptCauses[intMSR] = true

	if got := u.readIIR(); got != 0x06 {
		t.Fatalf("IIR = %#x, want 0x06 (RLS wins over RX/THRE/MSR)", got)
	}
	u.interruptCauses[intRLS] = false
	if got := u.readIIR(); got != 0x04 {
		t.Fatalf("IIR = %#x, want 0x04 (RX wins over THRE/MSR)", got)
	}
	u.interruptCauses[intRX] = false
	if got := u.readIIR(); got != 0x02 {
		t.Fatalf("IIR = %#x, want 0x02 (THRE wins over MSR)", got)
	}
	u.interruptCauses[intTHRE] = false
	if got := u.readIIR(); got != 0x00 {
		t.Fatalf("IIR = %#x, want 0x00 (MSR only cause left)", got)
	}
	u.interruptCauses[intMSR] = false
	if got := u.readIIR(); got != 0x01 {
		t.Fatalf("IIR = %#x, want 0x01 (no interrupt pending)", got)
	}
}

func TestUARTDeliverByteRaisesIRQWhenEnabled(t *testing.T) {
	pic := NewPIC()
	u := NewUART(pic, 4)
	u.Out(uartIER, 0x01) // enable RX-available interrupt

	u.DeliverByte(0x58)

	vec, ok := pic.acknowledgeirqrequest()
	if !ok || vec != pic.vectorBase[0]+4 {
		t.Fatalf("DeliverByte with RX interrupt enabled must raise IRQ4, got %#x,%v", vec, ok)
	}
	if v := u.In(uartRBR); v != 0x58 {
		t.Fatalf("RBR read = %#x, want 0x58", v)
	}
}
