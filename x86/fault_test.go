package x86

import "testing"

func TestFault_RealModeDispatchPushesFlagsCSIP(t *testing.T) {
	c := newTestCPU()
	c.idtBase = 0x0000
	// vector 0 -> offset at linear 0: far pointer (IP=0x1234, CS=0x0200).
	c.bus.WriteByte(0, 0x34)
	c.bus.WriteByte(1, 0x12)
	c.bus.WriteByte(2, 0x00)
	c.bus.WriteByte(3, 0x02)
	c.EIP = 0x5000
	c.seg[SegCS].fromReal(0x0100)
	sp := uint32(0x1000)
	c.ESP = sp
	c.seg[SegSS].fromReal(0)

	c.dispatchFault(c.makeFault(VecDIVErr, false, 0))

	if c.EIP != 0x1234 {
		t.Errorf("EIP: got 0x%X, want 0x1234", c.EIP)
	}
	if c.getSeg(SegCS) != 0x0200 {
		t.Errorf("CS: got 0x%X, want 0x0200", c.getSeg(SegCS))
	}
	if c.ESP != sp-6 {
		t.Errorf("ESP: got 0x%X, want 0x%X (3 words pushed)", c.ESP, sp-6)
	}
}

func TestFault_DoubleFaultSynthesizedOnReentry(t *testing.T) {
	c := newTestCPU()
	c.idtBase = 0
	for v := 0; v < 16; v++ {
		addr := uint32(v * 4)
		c.bus.WriteByte(addr, 0x00)
		c.bus.WriteByte(addr+1, 0x00)
		c.bus.WriteByte(addr+2, 0x00)
		c.bus.WriteByte(addr+3, 0x00)
	}
	c.ESP = 0x2000
	c.seg[SegSS].fromReal(0)

	c.dispatchFault(c.makeFault(VecGP, true, 0))
	if c.nFault != VecGP {
		t.Fatalf("nFault after first fault: got %d, want %d", c.nFault, VecGP)
	}

	c.dispatchFault(c.makeFault(VecNP, true, 0))
	if c.nFault != VecDF {
		t.Fatalf("nFault after re-entrant fault: got %d, want VecDF (%d)", c.nFault, VecDF)
	}
	if c.shutdown {
		t.Fatal("a single double fault must not trigger shutdown")
	}
}

func TestFault_TripleFaultShutsDown(t *testing.T) {
	c := newTestCPU()
	c.idtBase = 0
	c.ESP = 0x2000
	c.seg[SegSS].fromReal(0)

	c.dispatchFault(c.makeFault(VecGP, true, 0))
	c.dispatchFault(c.makeFault(VecNP, true, 0)) // synthesizes VecDF
	c.dispatchFault(c.makeFault(VecDF, true, 0)) // a fault while handling VecDF: triple fault

	if !c.shutdown {
		t.Fatal("a fault while already dispatching a double fault must shut the CPU down")
	}
	if !c.Halted {
		t.Error("shutdown must also halt the CPU")
	}
}

func TestFault_ProtectedModeHonorsIDTLimit(t *testing.T) {
	c := protCPU()
	c.idtBase, c.idtLimit = 0x1000, 0x07 // room for exactly one 8-byte gate (vector 0)
	c.ESP = 0x2000
	c.seg[SegSS] = SegShadow{Base: 0, Limit: 0xFFFF, Acc: accPresent | accS | segTypeWritable, valid: true}

	// Vector 1 needs bytes 8..15, beyond the limit, so #GP is raised; the #GP
	// gate (vector 13) is beyond the limit too, so delivery escalates to a
	// double fault, whose gate is also out of reach: shutdown.
	c.invokeGate(1, false, 0, true)
	if c.nFault != VecDF || !c.shutdown {
		t.Fatalf("out-of-limit IDT fetches should escalate to #DF and shutdown, got nFault=%d shutdown=%v", c.nFault, c.shutdown)
	}
}

func TestFault_SoftwareIntRequiresGateDPL(t *testing.T) {
	c := protCPU()
	c.CPL = 3
	c.idtBase, c.idtLimit = 0x1000, 0xFF
	c.ESP = 0x2000
	c.seg[SegSS] = SegShadow{Base: 0, Limit: 0xFFFF, Acc: accPresent | accS | segTypeWritable, DPL: 3, valid: true}

	// Ring-0-only interrupt gate at vector 5: selector=0x0008, acc=0x8E
	// (P=1, DPL=0, type=IntGate386).
	raw := [8]byte{0x00, 0x10, 0x08, 0x00, 0, 0x8E, 0, 0}
	base := c.idtBase + 5*8
	for i, b := range raw {
		c.bus.WriteByte(base+uint32(i), b)
	}
	// A deliverable #GP handler: GDT slot 1 (the selector both gates use) is
	// a conforming ring-0 code segment, and vector 13 is an interrupt gate
	// into it, so the #GP is delivered on the current stack instead of
	// escalating to a double fault.
	writeDescAt(c, 1, Descriptor{Limit: 0xFFFF, Acc: accPresent | accS | segTypeCode | segTypeConforming | segTypeReadable})
	gp := [8]byte{0x00, 0x20, 0x08, 0x00, 0, 0x8E, 0, 0}
	for i, b := range gp {
		c.bus.WriteByte(c.idtBase+VecGP*8+uint32(i), b)
	}

	c.invokeGate(5, false, 0, false) // software INT, not external
	if c.nFault != VecGP {
		t.Fatalf("software INT into a ring-0 gate from CPL=3 must #GP, got nFault=%d", c.nFault)
	}
}
