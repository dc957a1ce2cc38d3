package x86

import "testing"

func newTestCPU() *CPU {
	bus := NewFlatBus(1024 * 1024)
	return NewCPU(Model80386, bus)
}

func TestFlags_AddCarryZeroOverflow(t *testing.T) {
	c := newTestCPU()
	c.SetAX(0xFFFF)
	c.SetBX(0x0001)
	r := c.aluAdd(Width16, uint32(c.AX()), uint32(c.BX()))
	c.SetAX(uint16(r))
	if c.AX() != 0x0000 {
		t.Fatalf("AX: got 0x%04X, want 0x0000", c.AX())
	}
	if !c.CF() {
		t.Error("CF: want set")
	}
	if !c.ZF() {
		t.Error("ZF: want set")
	}
	if c.OF() {
		t.Error("OF: want clear")
	}
	if c.SF() {
		t.Error("SF: want clear")
	}
	if !c.AF() {
		t.Error("AF: want set")
	}
	if !c.PF() {
		t.Error("PF: want set")
	}
}

func TestFlags_SubUnderflowSetsCF(t *testing.T) {
	c := newTestCPU()
	r := c.aluSub(Width8, 0x00, 0x01)
	if r != 0xFF {
		t.Fatalf("result: got 0x%02X, want 0xFF", r)
	}
	if !c.CF() {
		t.Error("CF: want set for 0-1 byte subtraction")
	}
	if c.ZF() {
		t.Error("ZF: want clear")
	}
	if !c.SF() {
		t.Error("SF: want set")
	}
}

func TestFlags_MaterializeBeforeOverwrite(t *testing.T) {
	c := newTestCPU()
	c.aluAdd(Width8, 0xFF, 0x01) // CF=1, ZF=1
	if !c.CF() {
		t.Fatal("precondition: CF should be set")
	}
	// A logical op explicitly clears CF/OF and must not corrupt the
	// not-yet-read bits from the previous arithmetic op once they are gone.
	c.aluAnd(Width8, 0x0F, 0xF0)
	if c.CF() {
		t.Error("CF: want cleared by logical op")
	}
	if !c.ZF() {
		t.Error("ZF: want set (0x0F & 0xF0 == 0)")
	}
}

func TestFlags_PSRoundTrip(t *testing.T) {
	c := newTestCPU()
	c.aluAdd(Width16, 0x7FFF, 0x0001) // sets OF
	saved := c.PS()
	c.SetPS(0)
	c.SetPS(saved)
	if !c.OF() {
		t.Error("OF should survive a PS round trip")
	}
}

func TestFlags_INCPreservesCF(t *testing.T) {
	c := newTestCPU()
	c.SetCF(true)
	c.aluInc(Width8, 0x0F)
	if !c.CF() {
		t.Error("INC must not clear a pre-existing CF")
	}
	if !c.AF() {
		t.Error("AF: want set (0x0F+1 nibble carry)")
	}
}
