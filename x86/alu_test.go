package x86

import "testing"

func TestALU_DivByZeroFaults(t *testing.T) {
	c := newTestCPU()
	_, _, ok := c.aluDiv(Width16, 0x00010000, 0)
	if ok {
		t.Fatal("division by zero must report !ok")
	}
}

func TestALU_DivQuotientOverflow(t *testing.T) {
	c := newTestCPU()
	// dividend so large the byte quotient can't represent it.
	_, _, ok := c.aluDiv(Width8, 0x10000, 1)
	if ok {
		t.Fatal("quotient overflow must report !ok")
	}
}

func TestALU_IDivSignedOverflow(t *testing.T) {
	c := newTestCPU()
	_, _, ok := c.aluIDiv(Width16, -40000, -1)
	if ok {
		t.Fatal("signed quotient overflow must report !ok")
	}
}

func TestALU_MulSetsCFOnOverflow(t *testing.T) {
	c := newTestCPU()
	_, hi := c.aluMul(Width8, 0x10, 0x10)
	if hi == 0 {
		t.Fatal("0x10*0x10 should overflow byte width")
	}
	if !c.CF() || !c.OF() {
		t.Error("MUL overflow must set both CF and OF")
	}
}

func TestALU_MulNoOverflow(t *testing.T) {
	c := newTestCPU()
	lo, hi := c.aluMul(Width8, 0x02, 0x03)
	if lo != 6 || hi != 0 {
		t.Fatalf("2*3: got lo=%d hi=%d, want 6,0", lo, hi)
	}
	if c.CF() || c.OF() {
		t.Error("MUL without overflow must clear CF/OF")
	}
}

func TestALU_ShlCarryAndOverflow(t *testing.T) {
	c := newTestCPU()
	r := c.aluShl(Width8, 0x80, 1)
	if r != 0 {
		t.Fatalf("0x80<<1 (byte): got 0x%02X, want 0x00", r)
	}
	if !c.CF() {
		t.Error("CF: want set (bit shifted out was 1)")
	}
}

func TestALU_SarPreservesSign(t *testing.T) {
	c := newTestCPU()
	r := c.aluSar(Width8, 0x80, 4)
	if r != 0xF8 {
		t.Fatalf("SAR 0x80>>4: got 0x%02X, want 0xF8", r)
	}
}

func TestALU_RolRestoresOnFullRotation(t *testing.T) {
	c := newTestCPU()
	r := c.aluRol(Width8, 0x81, 8)
	if r != 0x81 {
		t.Fatalf("ROL by width: got 0x%02X, want 0x81", r)
	}
}

func TestALU_RcrThroughCarry(t *testing.T) {
	c := newTestCPU()
	c.SetCF(true)
	r := c.aluRcr(Width8, 0x00, 1)
	if r != 0x80 {
		t.Fatalf("RCR with CF=1 into empty byte: got 0x%02X, want 0x80", r)
	}
}
