package x86

import "testing"

// TestDecode_PushWordLeavesSPUnchangedOnFault exercises the decode.go fix:
// an SS-limit-violating push must not touch SP before reporting the fault.
func TestDecode_PushWordLeavesSPUnchangedOnFault(t *testing.T) {
	c := protCPU()
	c.seg[SegSS] = SegShadow{Base: 0, Limit: 3, Acc: accPresent | accS | segTypeWritable, valid: true}
	c.SetSP(0) // SP-2 underflows past the 4-byte limit

	if f := c.pushWord(0x1234); f == nil {
		t.Fatal("expected a fault pushing past the SS limit")
	}
	if c.SP() != 0 {
		t.Errorf("SP: got %d, want 0 (unchanged on fault)", c.SP())
	}
}

// TestData_PushaStopsOnFirstFaultingPush covers §5's named example: PUSHA
// crossing an SS limit must stop at the first faulting element rather than
// writing through the violation for every register.
func TestData_PushaStopsOnFirstFaultingPush(t *testing.T) {
	c := protCPU()
	c.seg[SegSS] = SegShadow{Base: 0, Limit: 7, Ext: extBig, Acc: accPresent | accS | segTypeWritable, valid: true}
	c.ESP = 8
	c.EAX = 0xAABBCCDD
	c.ECX = 0x11223344

	c.baseOps[0x60](c) // PUSHA

	if c.ESP != 0 {
		t.Fatalf("ESP: got 0x%X, want 0 (two successful 4-byte pushes from 8)", c.ESP)
	}
	// First push (AX) lands at offset 4, second push (CX) at offset 0; the
	// third (DX) must never have been written.
	if got := uint16(c.bus.ReadByteDirect(4)) | uint16(c.bus.ReadByteDirect(5))<<8; got != 0xCCDD {
		t.Errorf("pushed AX low word: got 0x%X, want 0xCCDD", got)
	}
	if got := uint16(c.bus.ReadByteDirect(0)) | uint16(c.bus.ReadByteDirect(1))<<8; got != 0x3344 {
		t.Errorf("pushed CX low word: got 0x%X, want 0x3344", got)
	}
}

// TestControl_CallFarDirectValidatesCSBeforePush covers the review's ordering
// fix: a CALL ptr16:32 to an invalid destination selector must not push
// anything onto the stack (§4.4 "on failure, no state changes").
func TestControl_CallFarDirectValidatesCSBeforePush(t *testing.T) {
	c := protCPU()
	c.CPL = 0
	c.seg[SegCS] = SegShadow{Base: 0, Limit: 0xFFFF, Acc: accPresent | accS | segTypeCode | segTypeReadable, valid: true}
	c.seg[SegSS] = SegShadow{Base: 0x8000, Limit: 0xFFFF, Ext: extBig, Acc: accPresent | accS | segTypeWritable, valid: true}
	c.ESP = 0x1000
	c.EIP = 0x100

	// Operand stream: dword offset 0x9999_0000, word selector pointing at
	// GDT slot 1, which holds a non-code (data) descriptor -> loadCS must
	// reject it with #GP.
	c.bus.WriteByte(0x100, 0x00)
	c.bus.WriteByte(0x101, 0x00)
	c.bus.WriteByte(0x102, 0x99)
	c.bus.WriteByte(0x103, 0x99)
	c.bus.WriteByte(0x104, 0x08) // selector = 1*8
	c.bus.WriteByte(0x105, 0x00)
	writeDescAt(c, 1, Descriptor{Limit: 0xFFFF, Base: 0x2000, Acc: accPresent | accS})
	// GDT slot 2: the #GP handler's own code segment, ring 0.
	writeDescAt(c, 2, Descriptor{Limit: 0xFFFF, Base: 0x6000, Acc: accPresent | accS | segTypeCode | segTypeReadable})
	// IDT vector 13 (#GP): a present 386 interrupt gate into GDT slot 2, so
	// the dispatched fault resolves in one hop instead of cascading into a
	// double fault for want of a handler.
	c.idtBase, c.idtLimit = 0x4000, 0xFFFF
	gate := [8]byte{0x00, 0x00, 0x10, 0x00, 0x00, accPresent | SysTypeIntGate386, 0x00, 0x00}
	for i, b := range gate {
		c.bus.WriteByte(c.idtBase+VecGP*8+uint32(i), b)
	}

	sp := c.ESP
	c.callFarDirect()

	if c.nFault != VecGP {
		t.Fatalf("nFault: got %d, want VecGP (%d)", c.nFault, VecGP)
	}
	// The only stack writes must be the #GP handler's own EFLAGS/CS/EIP/
	// error-code frame (4 dwords) -- callFarDirect's own CS:EIP push must
	// never have happened, since loadCS rejected the destination first.
	if want := sp - 16; c.ESP != want {
		t.Errorf("ESP: got 0x%X, want 0x%X (only the #GP frame pushed, not the far-call return address)", c.ESP, want)
	}
}

// TestControl_FarTransferRoutesCallGate exercises the new gate-dispatch path:
// a far CALL through a call gate must load the gate's target CS and push the
// caller's CS:EIP rather than treating the gate selector as a plain code
// segment.
func TestControl_FarTransferRoutesCallGate(t *testing.T) {
	c := protCPU()
	c.CPL = 3
	c.seg[SegCS] = SegShadow{Selector: 0x1B, Base: 0x9000, Limit: 0xFFFF, DPL: 3, Acc: accPresent | accS | segTypeCode | segTypeReadable | 3<<5, valid: true}
	c.seg[SegSS] = SegShadow{Base: 0xA000, Limit: 0xFFFF, Ext: extBig, Acc: accPresent | accS | segTypeWritable, valid: true}
	c.ESP = 0x2000
	c.EIP = 0x2222

	// GDT slot 2: target code segment, same DPL as caller (no privilege
	// raise, to isolate the gate-dispatch mechanics from the inter-privilege
	// stack switch).
	writeDescAt(c, 2, Descriptor{
		Limit: 0xFFFF, Base: 0x5000,
		Acc: accPresent | accS | segTypeCode | segTypeReadable | 3<<5,
	})

	// GDT slot 1: a 386 call gate -> selector 0x10 (slot 2), offset 0x7777,
	// 2 params, DPL 3.
	gateAddr := c.gdtBase + 1*8
	raw := [8]byte{0x77, 0x77, 0x10, 0x00, 0x02, accPresent | 3<<5 | SysTypeCallGate386, 0x00, 0x00}
	for i, b := range raw {
		c.bus.WriteByte(gateAddr+uint32(i), b)
	}

	handled, f := c.farTransfer(1*8|3, 0xDEAD, true)
	if !handled {
		t.Fatal("farTransfer must report handled=true for a call-gate selector")
	}
	if f != nil {
		t.Fatalf("unexpected fault dispatching through the call gate: %+v", f)
	}
	if c.EIP != 0x7777 {
		t.Errorf("EIP: got 0x%X, want 0x7777 (the gate's offset, not the operand's 0xDEAD)", c.EIP)
	}
	if c.getSeg(SegCS)&^3 != 0x10 {
		t.Errorf("CS: got selector 0x%X, want index pointing at GDT slot 2 (0x10)", c.getSeg(SegCS))
	}
	if c.CPL != 3 {
		t.Errorf("CPL: got %d, want 3 (no privilege change, gate target DPL == caller CPL)", c.CPL)
	}
	wantESP := uint32(0x2000 - 8) // two dwords: old CS, old EIP
	if c.ESP != wantESP {
		t.Errorf("ESP: got 0x%X, want 0x%X (old CS/EIP pushed, no stack switch)", c.ESP, wantESP)
	}
}

// TestString_RunStringStopsAfterOneIterationUnderRep covers the REP
// interruptibility fix: a single runString call under a REP prefix must
// perform exactly one iteration and rewind EIP to opLIP when more remain,
// rather than looping to completion.
func TestString_RunStringStopsAfterOneIterationUnderRep(t *testing.T) {
	c := newTestCPU()
	c.seg[SegCS].fromReal(0) // CS base 0: linear opLIP 0x500 is offset 0x500
	c.seg[SegES].fromReal(0)
	c.prefixRep = 1
	c.ECX = 3
	c.opLIP = 0x500
	c.EIP = 0x505 // pretend the opcode+prefix bytes already advanced EIP

	c.runString(Width8, false, c.stosBody)

	if c.ECX != 2 {
		t.Errorf("ECX: got %d, want 2 (exactly one iteration consumed)", c.ECX)
	}
	if c.EIP != c.opLIP {
		t.Errorf("EIP: got 0x%X, want rewound to opLIP 0x%X (more REP iterations remain)", c.EIP, c.opLIP)
	}
}

// TestString_RunStringDoesNotRewindOnLastIteration ensures the final REP
// iteration leaves EIP alone so execution falls through past the opcode.
func TestString_RunStringDoesNotRewindOnLastIteration(t *testing.T) {
	c := newTestCPU()
	c.seg[SegES].fromReal(0)
	c.prefixRep = 1
	c.ECX = 1
	c.opLIP = 0x500
	c.EIP = 0x505

	c.runString(Width8, false, c.stosBody)

	if c.ECX != 0 {
		t.Errorf("ECX: got %d, want 0", c.ECX)
	}
	if c.EIP != 0x505 {
		t.Errorf("EIP: got 0x%X, want 0x505 (no more iterations, no rewind)", c.EIP)
	}
}
