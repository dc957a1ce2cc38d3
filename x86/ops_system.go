package x86

// installSystemOps wires the 0x0F-prefixed descriptor-table-management and
// control/debug-register instruction set (§4.2's "supplemented" group):
// SGDT/SIDT/SLDT/STR/LGDT/LIDT/LLDT/LTR/CLTS/SMSW/LMSW/LAR/LSL/VERR/VERW and
// MOV to/from CR0-3/DR0-7.
func (c *CPU) installSystemOps() {
	// 0x0F 00: SLDT/STR/LLDT/LTR/VERR/VERW, /reg selects
	c.extendedOps[0x00] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		switch reg & 7 {
		case 0: // SLDT
			c.writeRM(rm, Width16, uint32(c.ldtSelector))
		case 1: // STR
			c.writeRM(rm, Width16, uint32(c.tr.Selector))
		case 2: // LLDT
			v, f := c.readRM(rm, Width16)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			if f := c.loadLDT(uint16(v)); f != nil {
				c.dispatchFault(f)
			}
		case 3: // LTR
			v, f := c.readRM(rm, Width16)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			if f := c.loadTR(uint16(v)); f != nil {
				c.dispatchFault(f)
			}
		case 4: // VERR
			v, f := c.readRM(rm, Width16)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			d, ok := c.loadVER(uint16(v))
			c.materializeAll()
			c.setDirectFlag(flagZF, ok && d.Readable() && (d.Conforming() || (d.DPL() >= c.CPL && d.DPL() >= int(v&3))))
		case 5: // VERW
			v, f := c.readRM(rm, Width16)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			d, ok := c.loadVER(uint16(v))
			c.materializeAll()
			c.setDirectFlag(flagZF, ok && d.Writable() && d.DPL() >= c.CPL && d.DPL() >= int(v&3))
		}
	}

	// 0x0F 01: SGDT/SIDT/LGDT/LIDT/SMSW/LMSW
	c.extendedOps[0x01] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		switch reg & 7 {
		case 0: // SGDT
			c.storeDescTableReg(rm, c.gdtLimit, c.gdtBase)
		case 1: // SIDT
			c.storeDescTableReg(rm, c.idtLimit, c.idtBase)
		case 2: // LGDT
			limit, base := c.loadDescTableReg(rm)
			c.gdtLimit, c.gdtBase = limit, base
		case 3: // LIDT
			limit, base := c.loadDescTableReg(rm)
			c.idtLimit, c.idtBase = limit, base
		case 4: // SMSW
			c.writeRM(rm, Width16, c.CR0&0xFFFF)
		case 6: // LMSW
			v, f := c.readRM(rm, Width16)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			c.CR0 = (c.CR0 &^ 0xF) | (v & 0xF)
			c.protMode = c.CR0&0x1 != 0
		}
	}

	// 0x0F 02/03: LAR/LSL
	c.extendedOps[0x02] = func(c *CPU) { c.execLarLsl(true) }
	c.extendedOps[0x03] = func(c *CPU) { c.execLarLsl(false) }

	// 0x0F 06: CLTS
	c.extendedOps[0x06] = func(c *CPU) { c.CR0 &^= 0x8 }

	// 0x0F 20-23: MOV r32,CRn / MOV CRn,r32 / MOV r32,DRn / MOV DRn,r32
	c.extendedOps[0x20] = func(c *CPU) {
		_, reg := c.decodeModRM()
		c.setReg32(c.modrm&7, c.readCR(reg&7))
	}
	c.extendedOps[0x22] = func(c *CPU) {
		_, reg := c.decodeModRM()
		c.writeCR(reg&7, c.getReg32(c.modrm&7))
	}
	c.extendedOps[0x21] = func(c *CPU) {
		_, reg := c.decodeModRM()
		c.setReg32(c.modrm&7, c.DR[reg&7])
	}
	c.extendedOps[0x23] = func(c *CPU) {
		_, reg := c.decodeModRM()
		c.DR[reg&7] = c.getReg32(c.modrm & 7)
	}
}

func (c *CPU) readCR(n byte) uint32 {
	switch n {
	case 0:
		return c.CR0
	case 2:
		return c.CR2
	case 3:
		return c.CR3
	default:
		return 0
	}
}

func (c *CPU) writeCR(n byte, v uint32) {
	switch n {
	case 0:
		c.CR0 = v
		c.protMode = v&0x1 != 0
	case 2:
		c.CR2 = v
	case 3:
		c.CR3 = v
	}
}

// storeDescTableReg writes a 6-byte pseudo-descriptor (limit:16, base:32) to
// memory for SGDT/SIDT. On the 80286 the sixth byte (base bits 24-31) is
// stored as 0xFF; on the 80386 it is the true base byte (see DESIGN.md open
// question).
func (c *CPU) storeDescTableReg(rm modrmOperand, limit, base uint32) {
	if rm.isReg {
		c.dispatchFault(c.faultUD())
		return
	}
	if c.Model == Model80286 {
		base |= 0xFF000000
	}
	c.writeMemWidth(rm.seg, rm.off, Width16, limit)
	c.writeMemWidth(rm.seg, rm.off+2, Width32, base)
}

func (c *CPU) loadDescTableReg(rm modrmOperand) (limit, base uint32) {
	if rm.isReg {
		c.dispatchFault(c.faultUD())
		return 0, 0
	}
	l, _ := c.readMemWidth(rm.seg, rm.off, Width16)
	b, _ := c.readMemWidth(rm.seg, rm.off+2, Width32)
	if !c.Model.Is32() {
		b &= 0x00FFFFFF
	}
	return l, b
}

func (c *CPU) execLarLsl(isLar bool) {
	rm, reg := c.decodeModRM()
	v, f := c.readRM(rm, Width16)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	d, ok := c.loadVER(uint16(v))
	valid := ok && (d.IsSegment() || d.IsLDT() || d.IsTSS() || d.IsCallGate())
	if valid && !d.IsGate() {
		rpl := int(uint16(v) & 3)
		if !d.Conforming() && (d.DPL() < c.CPL || d.DPL() < rpl) {
			valid = false
		}
	}
	c.materializeAll()
	c.setDirectFlag(flagZF, valid)
	if !valid {
		return
	}
	w := c.opWidth()
	if isLar {
		c.setRegWidth(w, reg, uint32(d.Acc)<<8|uint32(d.Ext&0xF0)<<8)
	} else {
		c.setRegWidth(w, reg, d.Limit)
	}
}
