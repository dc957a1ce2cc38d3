package x86

// testCond evaluates one of the 16 standard condition codes used by Jcc,
// LOOPcc and SETcc (encoded in the low nibble of the opcode).
func (c *CPU) testCond(cond byte) bool {
	switch cond & 0xF {
	case 0x0:
		return c.OF()
	case 0x1:
		return !c.OF()
	case 0x2:
		return c.CF()
	case 0x3:
		return !c.CF()
	case 0x4:
		return c.ZF()
	case 0x5:
		return !c.ZF()
	case 0x6:
		return c.CF() || c.ZF()
	case 0x7:
		return !c.CF() && !c.ZF()
	case 0x8:
		return c.SF()
	case 0x9:
		return !c.SF()
	case 0xA:
		return c.PF()
	case 0xB:
		return !c.PF()
	case 0xC:
		return c.SF() != c.OF()
	case 0xD:
		return c.SF() == c.OF()
	case 0xE:
		return c.ZF() || (c.SF() != c.OF())
	default:
		return !c.ZF() && (c.SF() == c.OF())
	}
}

// pushReturnAddr pushes the address of the instruction following a near
// CALL, in the current operand width.
func (c *CPU) pushReturnAddr(w Width) *Fault { return c.pushOperand(w, c.EIP) }

func (c *CPU) installControlOps() {
	for i := byte(0); i < 16; i++ {
		cond := i
		c.baseOps[0x70+cond] = func(c *CPU) {
			rel := int32(int8(c.fetch8()))
			if c.testCond(cond) {
				c.EIP = uint32(int32(c.EIP) + rel)
			}
		}
	}

	// LOOP/LOOPE/LOOPNE/JCXZ (0xE0-0xE3)
	c.baseOps[0xE0] = func(c *CPU) { c.execLoop(func() bool { return !c.ZF() }) }
	c.baseOps[0xE1] = func(c *CPU) { c.execLoop(func() bool { return c.ZF() }) }
	c.baseOps[0xE2] = func(c *CPU) { c.execLoop(func() bool { return true }) }
	c.baseOps[0xE3] = func(c *CPU) {
		rel := int32(int8(c.fetch8()))
		if c.cxZero() {
			c.EIP = uint32(int32(c.EIP) + rel)
		}
	}

	// JMP short/near/far, CALL near/far
	c.baseOps[0xEB] = func(c *CPU) {
		rel := int32(int8(c.fetch8()))
		c.EIP = uint32(int32(c.EIP) + rel)
	}
	c.baseOps[0xE9] = func(c *CPU) {
		w := c.opWidth()
		rel := int32(c.fetchImmForWidth(w))
		if w == Width16 {
			rel = int32(int16(rel))
		}
		c.EIP = uint32(int32(c.EIP) + rel)
	}
	c.baseOps[0xE8] = func(c *CPU) {
		w := c.opWidth()
		rel := int32(c.fetchImmForWidth(w))
		if w == Width16 {
			rel = int32(int16(rel))
		}
		if f := c.pushReturnAddr(w); f != nil {
			c.dispatchFault(f)
			return
		}
		c.EIP = uint32(int32(c.EIP) + rel)
	}
	c.baseOps[0xEA] = func(c *CPU) { c.jmpFarDirect() }
	c.baseOps[0x9A] = func(c *CPU) { c.callFarDirect() }

	// RET near/far
	c.baseOps[0xC3] = func(c *CPU) {
		v, f := c.popOperand(c.opWidth())
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.EIP = v
	}
	c.baseOps[0xC2] = func(c *CPU) {
		delta := c.fetch16()
		v, f := c.popOperand(c.opWidth())
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.EIP = v
		c.adjustSP(uint32(delta))
	}
	c.baseOps[0xCB] = func(c *CPU) { c.retFar(0) }
	c.baseOps[0xCA] = func(c *CPU) { c.retFar(c.fetch16()) }

	// INT3/INT n/INTO/IRET
	c.baseOps[0xCC] = func(c *CPU) { c.invokeGate(VecBreakpoint, false, 0, false) }
	c.baseOps[0xCD] = func(c *CPU) { n := c.fetch8(); c.invokeGate(int(n), false, 0, false) }
	c.baseOps[0xCE] = func(c *CPU) {
		if c.OF() {
			c.invokeGate(VecOverflow, false, 0, false)
		}
	}
	c.baseOps[0xCF] = func(c *CPU) { c.execIret() }

	// BOUND Gv,Ma (0x62) -- 80186+
	c.baseOps[0x62] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		if rm.isReg {
			c.dispatchFault(c.faultUD())
			return
		}
		w := c.opWidth()
		lower, f := c.readMemWidth(rm.seg, rm.off, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		upper, f2 := c.readMemWidth(rm.seg, rm.off+uint32(w.Bytes()), w)
		if f2 != nil {
			c.dispatchFault(f2)
			return
		}
		idx := int32(c.getRegWidth(w, reg))
		if w == Width16 {
			if idx < int32(int16(lower)) || idx > int32(int16(upper)) {
				c.dispatchFault(c.faultBR())
			}
		} else {
			if idx < int32(lower) || idx > int32(upper) {
				c.dispatchFault(c.faultBR())
			}
		}
	}
}

func (c *CPU) execLoop(cond func() bool) {
	rel := int32(int8(c.fetch8()))
	c.decCx()
	if !c.cxZero() && cond() {
		c.EIP = uint32(int32(c.EIP) + rel)
	}
}

func (c *CPU) adjustSP(delta uint32) {
	if c.stackWidth32() {
		c.ESP += delta
	} else {
		c.SetSP(c.SP() + uint16(delta))
	}
}

// callFarDirect implements CALL ptr16:16/32 (0x9A): classify the destination
// selector (plain code segment, call gate, or TSS/task gate) before writing
// anything observable, then push CS:IP only once the destination is valid
// (§4.4 "on failure, no state changes").
func (c *CPU) callFarDirect() {
	w := c.opWidth()
	offset := c.fetchImmForWidth(w)
	selector := c.fetch16()
	if handled, f := c.farTransfer(selector, offset, true); handled {
		if f != nil {
			c.dispatchFault(f)
		}
		return
	}
	oldCS, oldEIP := uint32(c.getSeg(SegCS)), c.EIP
	if f := c.loadCS(selector, c.CPL); f != nil {
		c.dispatchFault(f)
		return
	}
	if f := c.pushOperand(w, oldCS); f != nil {
		c.dispatchFault(f)
		return
	}
	if f := c.pushOperand(w, oldEIP); f != nil {
		c.dispatchFault(f)
		return
	}
	c.EIP = offset
}

func (c *CPU) jmpFarDirect() {
	w := c.opWidth()
	offset := c.fetchImmForWidth(w)
	selector := c.fetch16()
	if handled, f := c.farTransfer(selector, offset, false); handled {
		if f != nil {
			c.dispatchFault(f)
		}
		return
	}
	if f := c.loadCS(selector, c.CPL); f != nil {
		c.dispatchFault(f)
		return
	}
	c.EIP = offset
}

func (c *CPU) callFarIndirect(rm modrmOperand, w Width) {
	if rm.isReg {
		c.dispatchFault(c.faultUD())
		return
	}
	offset, f := c.readMemWidth(rm.seg, rm.off, w)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	selector, f2 := c.readMemWidth(rm.seg, rm.off+uint32(w.Bytes()), Width16)
	if f2 != nil {
		c.dispatchFault(f2)
		return
	}
	if handled, gf := c.farTransfer(uint16(selector), offset, true); handled {
		if gf != nil {
			c.dispatchFault(gf)
		}
		return
	}
	oldCS, oldEIP := uint32(c.getSeg(SegCS)), c.EIP
	if f := c.loadCS(uint16(selector), c.CPL); f != nil {
		c.dispatchFault(f)
		return
	}
	if f := c.pushOperand(w, oldCS); f != nil {
		c.dispatchFault(f)
		return
	}
	if f := c.pushOperand(w, oldEIP); f != nil {
		c.dispatchFault(f)
		return
	}
	c.EIP = offset
}

func (c *CPU) jmpFarIndirect(rm modrmOperand, w Width) {
	if rm.isReg {
		c.dispatchFault(c.faultUD())
		return
	}
	offset, f := c.readMemWidth(rm.seg, rm.off, w)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	selector, f2 := c.readMemWidth(rm.seg, rm.off+uint32(w.Bytes()), Width16)
	if f2 != nil {
		c.dispatchFault(f2)
		return
	}
	if handled, gf := c.farTransfer(uint16(selector), offset, false); handled {
		if gf != nil {
			c.dispatchFault(gf)
		}
		return
	}
	if f := c.loadCS(uint16(selector), c.CPL); f != nil {
		c.dispatchFault(f)
		return
	}
	c.EIP = offset
}

// farTransfer classifies a far CALL/JMP destination selector in protected
// mode (§4.2 "Gates", §4.7 "Triggered by: far jump/call to a TSS or task
// gate"): a TSS selector or task gate drives a task switch through
// switchTask; a call gate drives callGateTransfer; a plain code-segment
// selector is left to the caller's existing loadCS path (handled=false).
// Real mode has no descriptor tables, so it always falls through.
func (c *CPU) farTransfer(selector uint16, offset uint32, isCall bool) (handled bool, f *Fault) {
	if !c.protMode || !c.Model.HasProtectedMode() {
		return false, nil
	}
	desc, _, ok := c.fetchDescriptor(selector)
	if !ok {
		return true, c.faultGP(selector)
	}
	if desc.IsTSS() {
		c.switchTask(selector, isCall)
		return true, nil
	}
	if desc.IsTaskGate() {
		c.switchTask(desc.GateSelector(), isCall)
		return true, nil
	}
	if desc.IsCallGate() {
		return true, c.callGateTransfer(desc, isCall)
	}
	return false, nil
}

// callGateTransfer implements §4.2's call-gate semantics: the gate's own DPL
// must be >= CPL, the target code segment is loaded through loadCSViaGate
// (which, unlike a plain loadCS, allows the gate to raise privilege to a
// more-trusted non-conforming target), and for an inter-privilege CALL the
// gate's parameter count of words is copied from the caller's stack onto the
// new one, per §4.4 step 3. A JMP through a call gate never changes
// privilege or stacks and pushes no return address.
func (c *CPU) callGateTransfer(gate Descriptor, isCall bool) *Fault {
	if gate.DPL() < c.CPL {
		return c.faultGP(gate.GateSelector())
	}
	target := gate.GateSelector()
	targetDesc, targetLinear, ok := c.fetchDescriptor(target)
	if !ok || !targetDesc.IsCode() {
		return c.faultGP(target)
	}
	oldCPL := c.CPL
	w := Width16
	if gate.Gate32() {
		w = Width32
	}

	if !isCall {
		if !targetDesc.Conforming() && targetDesc.DPL() != oldCPL {
			return c.faultGP(target)
		}
		if _, f := c.loadCSViaGate(target, targetDesc, targetLinear, oldCPL); f != nil {
			return f
		}
		c.EIP = gate.GateOffset()
		return nil
	}

	oldCS, oldEIP := uint32(c.getSeg(SegCS)), c.EIP
	newCPL, f := c.loadCSViaGate(target, targetDesc, targetLinear, oldCPL)
	if f != nil {
		return f
	}
	if newCPL < oldCPL {
		oldSS, oldESP := c.getSeg(SegSS), c.ESP
		count := gate.GateParamCount()
		params := make([]uint32, count)
		for i := byte(0); i < count; i++ {
			v, f := c.readMemWidth(SegSS, oldESP+uint32(i)*uint32(w.Bytes()), w)
			if f != nil {
				return f
			}
			params[i] = v
		}
		newSS, newESP := c.tssStackFor(newCPL)
		if f := c.loadSS(newSS); f != nil {
			return f
		}
		c.ESP = newESP
		if f := c.pushOperand(w, uint32(oldSS)); f != nil {
			return f
		}
		if f := c.pushOperand(w, oldESP); f != nil {
			return f
		}
		for i := int(count) - 1; i >= 0; i-- {
			if f := c.pushOperand(w, params[i]); f != nil {
				return f
			}
		}
	}
	if f := c.pushOperand(w, oldCS); f != nil {
		return f
	}
	if f := c.pushOperand(w, oldEIP); f != nil {
		return f
	}
	c.EIP = gate.GateOffset()
	return nil
}

// retFar implements RETF [imm16]: peek (not pop) EIP and CS, validate the
// new CS through loadCS, and only then commit the stack-pointer advance
// (§4.4 "validate the destination CS before writing anything observable").
// A failed validation leaves SP untouched for the retry.
func (c *CPU) retFar(extraPop uint16) {
	w := c.opWidth()
	oldCPL := c.CPL
	newEIP, f := c.peekStack(w, 0)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	newCS, f2 := c.peekStack(w, 1)
	if f2 != nil {
		c.dispatchFault(f2)
		return
	}
	if f := c.loadCS(uint16(newCS), c.CPL); f != nil {
		c.dispatchFault(f)
		return
	}
	c.adjustSP(2 * uint32(w.Bytes()))
	c.EIP = newEIP
	if extraPop != 0 {
		c.adjustSP(uint32(extraPop))
	}
	if c.CPL > oldCPL {
		oldSS, f := c.peekStack(w, 0)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		oldESP, f2 := c.peekStack(w, 1)
		if f2 != nil {
			c.dispatchFault(f2)
			return
		}
		if f := c.loadSS(uint16(oldSS)); f != nil {
			c.dispatchFault(f)
			return
		}
		if c.stackWidth32() {
			c.ESP = oldESP
		} else {
			c.SetSP(uint16(oldESP))
		}
		c.nullIfPrivileged(c.CPL)
	}
}

// execIret implements IRET/IRETD (§4.5): peek IP/CS/flags and validate the
// new CS before committing the stack advance; if a task switch is pending
// via the NT flag, route through switchTask instead (back-link restore).
func (c *CPU) execIret() {
	if c.NT() {
		t := c.tr
		c.switchTask(tssBackLink(c.bus, t.Base, c.tr.Ext&extBig != 0), false)
		c.nFault = -1
		return
	}
	w := c.opWidth()
	oldCPL := c.CPL
	newEIP, f := c.peekStack(w, 0)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	newCS, f2 := c.peekStack(w, 1)
	if f2 != nil {
		c.dispatchFault(f2)
		return
	}
	newFlags, f3 := c.peekStack(w, 2)
	if f3 != nil {
		c.dispatchFault(f3)
		return
	}
	if f := c.loadCS(uint16(newCS), c.CPL); f != nil {
		c.dispatchFault(f)
		return
	}
	c.adjustSP(3 * uint32(w.Bytes()))
	c.EIP = newEIP
	c.SetPS(newFlags)
	if c.CPL > oldCPL {
		oldSS, f := c.peekStack(w, 0)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		oldESP, f2 := c.peekStack(w, 1)
		if f2 != nil {
			c.dispatchFault(f2)
			return
		}
		if f := c.loadSS(uint16(oldSS)); f != nil {
			c.dispatchFault(f)
			return
		}
		if c.stackWidth32() {
			c.ESP = oldESP
		} else {
			c.SetSP(uint16(oldESP))
		}
		c.nullIfPrivileged(c.CPL)
	}
	c.nFault = -1
}

func tssBackLink(bus Bus, base uint32, is32 bool) uint16 {
	if is32 {
		return uint16(readTSS386(bus, base).backLink)
	}
	return readTSS286(bus, base).backLink
}
