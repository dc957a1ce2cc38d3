package x86

import "testing"

// writeDescAt encodes d and stores it at a GDT slot: index 1 means offset 8
// (index 0 is the mandatory null descriptor).
func writeDescAt(c *CPU, index int, d Descriptor) {
	raw := d.Encode()
	base := c.gdtBase + uint32(index*8)
	for i, b := range raw {
		c.bus.WriteByte(base+uint32(i), b)
	}
}

func protCPU() *CPU {
	c := newTestCPU()
	c.protMode = true
	c.CR0 |= cr0PE
	c.gdtBase, c.gdtLimit = 0x1000, 0xFFFF
	return c
}

func TestSegment_LoadDataSegRejectsLowerDPL(t *testing.T) {
	c := protCPU()
	c.CPL = 3
	d := Descriptor{Limit: 0xFFFF, Base: 0x2000, Acc: accPresent | accS | segTypeWritable}
	writeDescAt(c, 1, d) // DPL defaults to ring 0
	sel := uint16(1*8 | 3)
	if f := c.loadDataSeg(SegDS, sel); f == nil {
		t.Fatal("expected #GP loading a ring-0 data segment at CPL=3")
	}
}

func TestSegment_LoadDataSegAllowsMatchingDPL(t *testing.T) {
	c := protCPU()
	c.CPL = 3
	dpl := byte(3) << 5
	d := Descriptor{Limit: 0xFFFF, Base: 0x2000, Acc: accPresent | accS | segTypeWritable | dpl}
	writeDescAt(c, 1, d)
	sel := uint16(1*8 | 3)
	if f := c.loadDataSeg(SegDS, sel); f != nil {
		t.Fatalf("unexpected fault loading matching-DPL data segment: %+v", f)
	}
	if c.seg[SegDS].Base != 0x2000 {
		t.Errorf("Base: got 0x%X, want 0x2000", c.seg[SegDS].Base)
	}
}

func TestSegment_LoadSSRejectsNonWritable(t *testing.T) {
	c := protCPU()
	c.CPL = 0
	// Data segment without the writable bit set.
	d := Descriptor{Limit: 0xFFFF, Base: 0x3000, Acc: accPresent | accS}
	writeDescAt(c, 1, d)
	if f := c.loadSS(uint16(1 * 8)); f == nil {
		t.Fatal("expected #SS loading a read-only segment into SS")
	}
}

func TestSegment_LoadSSRequiresRPLEqualsCPL(t *testing.T) {
	c := protCPU()
	c.CPL = 0
	d := Descriptor{Limit: 0xFFFF, Base: 0x3000, Acc: accPresent | accS | segTypeWritable}
	writeDescAt(c, 1, d)
	sel := uint16(1*8 | 3) // RPL=3, CPL=0: mismatch
	if f := c.loadSS(sel); f == nil {
		t.Fatal("expected #SS when RPL != CPL")
	}
}

func TestSegment_LoadCSConformingAllowsLowerCPLCaller(t *testing.T) {
	c := protCPU()
	c.CPL = 3
	dpl := byte(1) << 5
	d := Descriptor{
		Limit: 0xFFFF, Base: 0x4000,
		Acc: accPresent | accS | segTypeCode | segTypeConforming | segTypeReadable | dpl,
	}
	writeDescAt(c, 1, d)
	sel := uint16(1*8 | 3)
	if f := c.loadCS(sel, 0); f != nil {
		t.Fatalf("conforming code segment with DPL <= CPL must load: %+v", f)
	}
	if c.CPL != 3 {
		t.Errorf("CPL must not change on a conforming-segment CS load: got %d", c.CPL)
	}
}

func TestSegment_LoadCSNonConformingRequiresExactMatch(t *testing.T) {
	c := protCPU()
	c.CPL = 3
	dpl := byte(0) << 5
	d := Descriptor{
		Limit: 0xFFFF, Base: 0x4000,
		Acc: accPresent | accS | segTypeCode | segTypeReadable | dpl,
	}
	writeDescAt(c, 1, d)
	sel := uint16(1*8 | 3)
	if f := c.loadCS(sel, 0); f == nil {
		t.Fatal("non-conforming code segment at a different DPL than CPL must fault")
	}
}

func TestSegment_LinearRejectsOutOfLimitOffset(t *testing.T) {
	c := protCPU()
	c.seg[SegDS] = SegShadow{Base: 0x1000, Limit: 0x0F, Acc: accPresent | accS | segTypeWritable, valid: true}
	if _, f := c.linear(SegDS, 0x10, 1, false); f == nil {
		t.Fatal("offset beyond limit must fault")
	}
	if _, f := c.linear(SegDS, 0x0F, 1, false); f != nil {
		t.Fatalf("offset at limit must not fault: %+v", f)
	}
}

func TestSegment_LinearExpandDownInvertsLimitCheck(t *testing.T) {
	c := protCPU()
	// Expand-down: valid offsets are those ABOVE the limit, up to the
	// segment's upper bound (0xFFFF for a 16-bit expand-down segment).
	c.seg[SegDS] = SegShadow{
		Base: 0x1000, Limit: 0x8000,
		Acc: accPresent | accS | segTypeWritable | segTypeExpDown, valid: true,
	}
	if _, f := c.linear(SegDS, 0x4000, 1, false); f == nil {
		t.Fatal("expand-down: offset below the limit is out of range, should fault")
	}
	if _, f := c.linear(SegDS, 0x9000, 1, false); f != nil {
		t.Fatalf("expand-down: offset above the limit should be in range: %+v", f)
	}
}

func TestSegment_NullIfPrivilegedNullsLowerDPL(t *testing.T) {
	c := protCPU()
	c.seg[SegDS] = SegShadow{Selector: 0x10, DPL: 0, Acc: accPresent | accS, valid: true}
	c.nullIfPrivileged(3)
	if c.seg[SegDS].Selector != 0 {
		t.Errorf("DS selector: got 0x%X, want nulled", c.seg[SegDS].Selector)
	}
}

func TestSegment_NullIfPrivilegedKeepsConformingCode(t *testing.T) {
	c := protCPU()
	c.seg[SegDS] = SegShadow{
		Selector: 0x10, DPL: 0,
		Acc:   accPresent | accS | segTypeCode | segTypeConforming,
		valid: true,
	}
	c.nullIfPrivileged(3)
	if c.seg[SegDS].Selector == 0 {
		t.Error("conforming code segment must survive a privilege-level drop")
	}
}
