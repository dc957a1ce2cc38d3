package x86

// stringStep returns +width or -width depending on DF, for SI/DI advance.
func (c *CPU) stringStep(w Width) int32 {
	if c.DF() {
		return -int32(w.Bytes())
	}
	return int32(w.Bytes())
}

func (c *CPU) advanceIndex32(reg byte, step int32) {
	if c.addrWidth32() {
		c.setReg32(reg, uint32(int32(c.getReg32(reg))+step))
	} else {
		c.setReg16(reg, uint16(int16(c.getReg16(reg))+int16(step)))
	}
}

func (c *CPU) indexVal(reg byte) uint32 {
	if c.addrWidth32() {
		return c.getReg32(reg)
	}
	return uint32(c.getReg16(reg))
}

const (
	regSI = 6
	regDI = 7
)

// repPrefixActive reports whether the REP/REPE/REPNE loop should continue
// executing this iteration; returns false once CX/ECX has reached zero
// without ever running the body.
func (c *CPU) cxZero() bool {
	if c.addrWidth32() {
		return c.ECX == 0
	}
	return c.CX() == 0
}

func (c *CPU) decCx() {
	if c.addrWidth32() {
		c.ECX--
	} else {
		c.SetCX(c.CX() - 1)
	}
}

// runString executes body for exactly one REP iteration per call (or
// exactly once, absent a REP prefix) and returns, rather than looping to
// completion: Step() checks for a pending interrupt after every call it
// makes, so one iteration per call is what gives a REP-prefixed string
// instruction an interruptible burst boundary between iterations (§4.5).
// When iterations remain, EIP is rewound to the start of this instruction
// (opLIP, its linear address, minus the CS base) so the next Step() call
// re-fetches and re-executes the same REP opcode rather than advancing past it.
func (c *CPU) runString(w Width, zfExit bool, body func(w Width) bool) {
	if c.prefixRep == 0 {
		body(w)
		return
	}
	if c.cxZero() {
		return
	}
	if !body(w) {
		return // body faulted; it has already dispatched the fault
	}
	c.decCx()
	if zfExit {
		wantZF := c.prefixRep == 1 // REPE/REPZ continues while ZF=1
		if c.ZF() != wantZF {
			return
		}
	}
	if !c.cxZero() {
		c.EIP = c.opLIP - c.seg[SegCS].Base
	}
}

func (c *CPU) installStringOps() {
	c.baseOps[0xA4] = func(c *CPU) { c.runString(Width8, false, c.movsBody) }
	c.baseOps[0xA5] = func(c *CPU) { c.runString(c.opWidth(), false, c.movsBody) }
	c.baseOps[0xA6] = func(c *CPU) { c.runString(Width8, true, c.cmpsBody) }
	c.baseOps[0xA7] = func(c *CPU) { c.runString(c.opWidth(), true, c.cmpsBody) }
	c.baseOps[0xAA] = func(c *CPU) { c.runString(Width8, false, c.stosBody) }
	c.baseOps[0xAB] = func(c *CPU) { c.runString(c.opWidth(), false, c.stosBody) }
	c.baseOps[0xAC] = func(c *CPU) { c.runString(Width8, false, c.lodsBody) }
	c.baseOps[0xAD] = func(c *CPU) { c.runString(c.opWidth(), false, c.lodsBody) }
	c.baseOps[0xAE] = func(c *CPU) { c.runString(Width8, true, c.scasBody) }
	c.baseOps[0xAF] = func(c *CPU) { c.runString(c.opWidth(), true, c.scasBody) }
	c.baseOps[0x6C] = func(c *CPU) { c.runString(Width8, false, c.insBody) }
	c.baseOps[0x6D] = func(c *CPU) { c.runString(c.opWidth(), false, c.insBody) }
	c.baseOps[0x6E] = func(c *CPU) { c.runString(Width8, false, c.outsBody) }
	c.baseOps[0x6F] = func(c *CPU) { c.runString(c.opWidth(), false, c.outsBody) }
}

func (c *CPU) movsBody(w Width) bool {
	v, f := c.readMemWidth(c.effSeg(), c.indexVal(regSI), w)
	if f != nil {
		c.dispatchFault(f)
		return false
	}
	if f := c.writeMemWidth(SegES, c.indexVal(regDI), w, v); f != nil {
		c.dispatchFault(f)
		return false
	}
	step := c.stringStep(w)
	c.advanceIndex32(regSI, step)
	c.advanceIndex32(regDI, step)
	return true
}

func (c *CPU) cmpsBody(w Width) bool {
	a, f := c.readMemWidth(c.effSeg(), c.indexVal(regSI), w)
	if f != nil {
		c.dispatchFault(f)
		return false
	}
	b, f2 := c.readMemWidth(SegES, c.indexVal(regDI), w)
	if f2 != nil {
		c.dispatchFault(f2)
		return false
	}
	c.aluCmp(w, a, b)
	step := c.stringStep(w)
	c.advanceIndex32(regSI, step)
	c.advanceIndex32(regDI, step)
	return true
}

func (c *CPU) stosBody(w Width) bool {
	if f := c.writeMemWidth(SegES, c.indexVal(regDI), w, c.getRegWidth(w, 0)); f != nil {
		c.dispatchFault(f)
		return false
	}
	c.advanceIndex32(regDI, c.stringStep(w))
	return true
}

func (c *CPU) lodsBody(w Width) bool {
	v, f := c.readMemWidth(c.effSeg(), c.indexVal(regSI), w)
	if f != nil {
		c.dispatchFault(f)
		return false
	}
	c.setRegWidth(w, 0, v)
	c.advanceIndex32(regSI, c.stringStep(w))
	return true
}

func (c *CPU) scasBody(w Width) bool {
	v, f := c.readMemWidth(SegES, c.indexVal(regDI), w)
	if f != nil {
		c.dispatchFault(f)
		return false
	}
	c.aluCmp(w, c.getRegWidth(w, 0), v)
	c.advanceIndex32(regDI, c.stringStep(w))
	return true
}

func (c *CPU) insBody(w Width) bool {
	v := c.bus.In(c.DX(), w)
	if f := c.writeMemWidth(SegES, c.indexVal(regDI), w, v); f != nil {
		c.dispatchFault(f)
		return false
	}
	c.advanceIndex32(regDI, c.stringStep(w))
	return true
}

func (c *CPU) outsBody(w Width) bool {
	v, f := c.readMemWidth(c.effSeg(), c.indexVal(regSI), w)
	if f != nil {
		c.dispatchFault(f)
		return false
	}
	c.bus.Out(c.DX(), w, v)
	c.advanceIndex32(regSI, c.stringStep(w))
	return true
}
