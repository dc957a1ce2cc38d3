package x86

import "testing"

func TestSnapshot_RoundTripPreservesArchitecturalState(t *testing.T) {
	c := newTestCPU()
	c.SetAX(0x1234)
	c.EBX = 0xDEADBEEF
	c.EIP = 0x00100020
	c.aluAdd(Width16, 0x7FFF, 1) // sets OF/SF via the lazy cache
	c.CPL = 2
	c.protMode = true
	c.gdtBase, c.gdtLimit = 0x9000, 0x3F

	snap := c.Save()

	other := newTestCPU()
	other.Restore(snap)

	if other.AX() != 0x1234 {
		t.Errorf("AX: got 0x%04X, want 0x1234", other.AX())
	}
	if other.EBX != 0xDEADBEEF {
		t.Errorf("EBX: got 0x%08X, want 0xDEADBEEF", other.EBX)
	}
	if other.EIP != c.EIP {
		t.Errorf("EIP: got 0x%X, want 0x%X", other.EIP, c.EIP)
	}
	if other.CPL != 2 {
		t.Errorf("CPL: got %d, want 2", other.CPL)
	}
	if !other.protMode {
		t.Error("protMode must survive a round trip")
	}
	if other.gdtBase != 0x9000 || other.gdtLimit != 0x3F {
		t.Errorf("GDT: got base=0x%X limit=0x%X, want base=0x9000 limit=0x3F", other.gdtBase, other.gdtLimit)
	}
	if other.OF() != c.OF() || other.SF() != c.SF() {
		t.Error("lazy flag cache bits must survive a round trip")
	}
}

func TestSnapshot_RestoreOverwritesDestinationState(t *testing.T) {
	c := newTestCPU()
	c.SetAX(0xFFFF)
	snap := c.Save()

	dirty := newTestCPU()
	dirty.SetAX(0x0001)
	dirty.EIP = 0xFF
	dirty.Restore(snap)

	if dirty.AX() != 0xFFFF {
		t.Errorf("Restore must overwrite pre-existing state: AX got 0x%04X, want 0xFFFF", dirty.AX())
	}
	if dirty.EIP != 0xFFF0 {
		t.Errorf("Restore must overwrite EIP: got 0x%X, want 0xFFF0 (the source CPU's reset IP)", dirty.EIP)
	}
}
