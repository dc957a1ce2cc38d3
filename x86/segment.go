package x86

// SegShadow is the shadow record a loaded selector carries (§3): linear
// base, scalar limit, access/extension bytes, descriptor privilege level,
// and the linear address of the source descriptor (for accessed-bit and
// TSS-busy write-back). Segment records never retain a pointer back to the
// owning CPU (§9) — every method here takes the CPU explicitly.
type SegShadow struct {
	Selector   uint16
	Base       uint32
	Limit      uint32
	Acc        byte
	Ext        byte
	DPL        int
	descLinear uint32 // linear address of this descriptor in GDT/LDT; 0 if real-mode/null
	valid      bool
}

func (s *SegShadow) fromDescriptor(selector uint16, d Descriptor, descLinear uint32) {
	s.Selector = selector
	s.Base = d.Base
	s.Limit = d.Limit
	s.Acc = d.Acc
	s.Ext = d.Ext
	s.DPL = d.DPL()
	s.descLinear = descLinear
	s.valid = true
}

func (s *SegShadow) fromReal(selector uint16) {
	s.Selector = selector
	s.Base = uint32(selector) << 4
	s.Limit = 0xFFFF
	s.Acc = accPresent | accS | segTypeCode | segTypeReadable // harmless default, real mode ignores type checks
	s.Ext = 0
	s.DPL = 0
	s.descLinear = 0
	s.valid = true
}

func (s *SegShadow) descriptor() Descriptor {
	return Descriptor{Limit: s.Limit, Base: s.Base, Acc: s.Acc, Ext: s.Ext}
}

// descriptorTable resolves a selector's table base/limit: bit 2 (TI) selects
// GDT (TI=0) or the current LDT (TI=1).
func (c *CPU) descriptorTable(selector uint16) (base uint32, limit uint32) {
	if selector&4 != 0 {
		return c.ldtBase, c.ldtLimit
	}
	return c.gdtBase, c.gdtLimit
}

// fetchDescriptor reads and decodes the 8-byte descriptor a selector
// indexes, per §4.2: "Fault with GP(selector) if index*8+7 > the selected
// table's limit." Returns the descriptor, its linear address (for
// write-back), and ok=false if the limit check failed (caller raises the
// appropriate fault with the selector as the error-code operand).
func (c *CPU) fetchDescriptor(selector uint16) (Descriptor, uint32, bool) {
	base, limit := c.descriptorTable(selector)
	index := uint32(selector &^ 7)
	if index+7 > limit {
		return Descriptor{}, 0, false
	}
	addr := base + index
	var raw [8]byte
	for i := range raw {
		raw[i] = c.bus.ReadByteDirect(addr + uint32(i))
	}
	return DecodeDescriptor(raw), addr, true
}

// writeBackDescriptor stores a modified descriptor (accessed bit, TSS busy
// bit) back to memory at its source linear address (§3 invariant (c)/(d)).
func (c *CPU) writeBackDescriptor(linear uint32, d Descriptor) {
	if linear == 0 {
		return // real-mode shadow, nothing to write back
	}
	raw := d.Encode()
	for i, b := range raw {
		c.bus.WriteByte(linear+uint32(i), b)
	}
}

// loadSegReal performs an unchecked real-mode segment load: base = selector<<4.
func (c *CPU) loadSegReal(idx int, selector uint16) {
	c.seg[idx].fromReal(selector)
	if idx == SegSS {
		c.noIntrAfterNext = true
	}
}

// loadCS loads CS for a transfer that does not pass through a gate: a
// direct far JMP/CALL, a far RET, IRET, and the CS reload of a task switch.
// In protected mode a non-conforming target needs RPL <= CPL and DPL == CPL,
// and a conforming target needs DPL <= CPL, so CPL is never changed here.
// targetCPL is not used.
func (c *CPU) loadCS(selector uint16, targetCPL int) *Fault {
	if !c.Model.HasProtectedMode() || !c.protMode {
		c.loadSegReal(SegCS, selector)
		c.CPL = 0
		return nil
	}
	if selector&^7 == 0 {
		return c.faultGP(selector)
	}
	d, linear, ok := c.fetchDescriptor(selector)
	if !ok {
		return c.faultGP(selector)
	}
	if !d.IsCode() {
		return c.faultGP(selector)
	}
	if !d.Present() {
		return c.faultNP(selector)
	}
	rpl := int(selector & 3)
	if d.Conforming() {
		if d.DPL() > c.CPL {
			return c.faultGP(selector)
		}
	} else {
		if rpl > c.CPL || d.DPL() != c.CPL {
			return c.faultGP(selector)
		}
	}
	newCPL := c.CPL
	if !d.Conforming() {
		newCPL = d.DPL()
	}
	c.commitCSLoad(selector, d, linear, newCPL)
	return nil
}

// commitCSLoad writes the shared tail of a validated CS load: mark the
// descriptor accessed, install the shadow record, write the descriptor back
// (accessed-bit persistence, §3), and adopt newCPL.
func (c *CPU) commitCSLoad(selector uint16, d Descriptor, linear uint32, newCPL int) {
	d.Acc |= segTypeAccessed
	c.seg[SegCS].fromDescriptor(selector, d, linear)
	c.writeBackDescriptor(linear, d)
	c.CPL = newCPL
	c.seg[SegCS].Selector = (selector &^ 3) | uint16(c.CPL)
}

// loadCSViaGate loads CS for a control transfer that has already passed
// through a call gate or an IDT interrupt/trap gate (§4.2/§4.5): unlike loadCS's
// plain selector-load rule (non-conforming requires DPL == CPL exactly), a
// gated transfer allows a non-conforming target whose DPL is more
// privileged than the caller (DPL < CPL), raising CPL to the target's DPL.
// Conforming targets never change CPL. desc must already be known IsCode;
// the caller's own DPL>=gate-DPL check must already have passed.
func (c *CPU) loadCSViaGate(selector uint16, desc Descriptor, linear uint32, oldCPL int) (newCPL int, f *Fault) {
	if !desc.Present() {
		return 0, c.faultNP(selector)
	}
	if desc.DPL() > oldCPL {
		return 0, c.faultGP(selector)
	}
	newCPL = oldCPL
	if !desc.Conforming() {
		newCPL = desc.DPL()
	}
	c.commitCSLoad(selector, desc, linear, newCPL)
	return newCPL, nil
}

// loadSS implements §4.2's SS loader: must be a writable data segment,
// DPL==RPL==CPL.
func (c *CPU) loadSS(selector uint16) *Fault {
	if !c.Model.HasProtectedMode() || !c.protMode {
		c.loadSegReal(SegSS, selector)
		return nil
	}
	if selector&^3 == 0 {
		return c.faultGP(0)
	}
	d, linear, ok := c.fetchDescriptor(selector)
	if !ok {
		return c.faultGP(selector)
	}
	rpl := int(selector & 3)
	if !d.IsData() || !d.Writable() || rpl != c.CPL || d.DPL() != c.CPL {
		return c.faultSS(selector)
	}
	if !d.Present() {
		return c.faultSS(selector) // NP on SS reports via SS_FAULT per real silicon
	}
	d.Acc |= segTypeAccessed
	c.seg[SegSS].fromDescriptor(selector, d, linear)
	c.writeBackDescriptor(linear, d)
	c.noIntrAfterNext = true
	return nil
}

// loadDataSeg implements the DS/ES/FS/GS loader (§4.2): segment must be
// readable (readable code or any data segment).
func (c *CPU) loadDataSeg(idx int, selector uint16) *Fault {
	if !c.Model.HasProtectedMode() || !c.protMode {
		c.loadSegReal(idx, selector)
		return nil
	}
	if selector&^3 == 0 {
		c.seg[idx] = SegShadow{Selector: selector}
		return nil
	}
	d, linear, ok := c.fetchDescriptor(selector)
	if !ok {
		return c.faultGP(selector)
	}
	if !d.Readable() {
		return c.faultGP(selector)
	}
	if !d.Present() {
		return c.faultNP(selector)
	}
	rpl := int(selector & 3)
	if rpl > d.DPL() || c.CPL > d.DPL() {
		if !(d.IsCode() && d.Conforming()) {
			return c.faultGP(selector)
		}
	}
	d.Acc |= segTypeAccessed
	c.seg[idx].fromDescriptor(selector, d, linear)
	c.writeBackDescriptor(linear, d)
	return nil
}

// nullIfPrivileged implements §4.2's post-far-return rule: "any of
// DS/ES/FS/GS whose DPL < new CPL (and which is not a conforming code
// segment) is forcibly nulled."
func (c *CPU) nullIfPrivileged(newCPL int) {
	for _, idx := range []int{SegDS, SegES, SegFS, SegGS} {
		s := &c.seg[idx]
		if !s.valid || s.Selector&^3 == 0 {
			continue
		}
		isConformingCode := s.Acc&accS != 0 && s.Acc&segTypeCode != 0 && s.Acc&segTypeConforming != 0
		if s.DPL < newCPL && !isConformingCode {
			*s = SegShadow{Selector: 0}
		}
	}
}

// loadLDT implements §4.2's LDT loader: the selector must reference a
// present LDT descriptor in the GDT.
func (c *CPU) loadLDT(selector uint16) *Fault {
	if selector&^3 == 0 {
		c.ldtSelector, c.ldtBase, c.ldtLimit = 0, 0, 0
		return nil
	}
	if selector&4 != 0 {
		return c.faultTS(selector)
	}
	d, _, ok := c.fetchDescriptor(selector)
	if !ok || !d.IsLDT() {
		return c.faultTS(selector)
	}
	if !d.Present() {
		return c.faultTS(selector)
	}
	c.ldtSelector = selector
	c.ldtBase = d.Base
	c.ldtLimit = d.Limit
	return nil
}

// loadTR implements §4.2's LTR loader: selector must reference a non-busy
// TSS; the descriptor's TYPE is then flipped to *_BUSY via write-back.
func (c *CPU) loadTR(selector uint16) *Fault {
	if selector&^3 == 0 || selector&4 != 0 {
		return c.faultGP(selector)
	}
	d, linear, ok := c.fetchDescriptor(selector)
	if !ok || !d.IsTSS() || d.TSSBusy() {
		return c.faultGP(selector)
	}
	if !d.Present() {
		return c.faultNP(selector)
	}
	d.Acc |= 0x02 // flip TSS16/32-avail -> busy (bit1 of the 4-bit type field)
	c.writeBackDescriptor(linear, d)
	c.tr.fromDescriptor(selector, d, linear)
	return nil
}

// loadVER implements §4.2's "VER load": a permissive load used by
// LAR/LSL/VERR/VERW that succeeds for any in-limit descriptor with no
// privilege effect — the caller performs its own check.
func (c *CPU) loadVER(selector uint16) (Descriptor, bool) {
	if selector&^3 == 0 {
		return Descriptor{}, false
	}
	d, _, ok := c.fetchDescriptor(selector)
	return d, ok
}

// linear translates (segment, offset) to a linear address, enforcing the
// limit/expand-down rule of §4.2. A violation through SS raises SS_FAULT;
// through every other segment, GP_FAULT.
func (c *CPU) linear(segIdx int, offset uint32, size uint32, write bool) (uint32, *Fault) {
	s := &c.seg[segIdx]
	if c.protMode && c.Model.HasProtectedMode() {
		inLimit := false
		if s.Acc&segTypeExpDown != 0 && s.Acc&accS != 0 && s.Acc&segTypeCode == 0 {
			upper := uint32(0xFFFF)
			if s.Ext&extBig != 0 {
				upper = 0xFFFFFFFF
			}
			inLimit = offset > s.Limit && offset+size-1 <= upper
		} else {
			inLimit = uint64(offset)+uint64(size)-1 <= uint64(s.Limit)
		}
		if !inLimit {
			if segIdx == SegSS {
				return 0, c.faultSS(0)
			}
			return 0, c.faultGP(0)
		}
		if write && s.Acc&accS != 0 && !s.descriptor().Writable() && segIdx != SegSS {
			return 0, c.faultGP(0)
		}
	}
	addr := s.Base + offset
	if c.CR0&cr0PG != 0 && c.Model == Model80386 {
		return c.translatePage(addr, write)
	}
	return addr & c.Model.addressMask(), nil
}
