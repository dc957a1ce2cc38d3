package x86

// aluBinOp is one of the eight ALU families addressed by the immediate-group
// opcodes (0x80-0x83) and the /reg field of a ModR/M byte in that group, and
// by the six-form opcode blocks 0x00-0x3D.
type aluBinOp struct {
	apply       func(c *CPU, w Width, d, s uint32) uint32
	noWriteback bool
}

var aluBinOps = [8]aluBinOp{
	0: {apply: (*CPU).aluAdd},
	1: {apply: (*CPU).aluOr},
	2: {apply: (*CPU).aluAdc},
	3: {apply: (*CPU).aluSbb},
	4: {apply: (*CPU).aluAnd},
	5: {apply: (*CPU).aluSub},
	6: {apply: (*CPU).aluXor},
	7: {apply: (*CPU).aluSub, noWriteback: true}, // CMP
}

// installArithGroup wires the six-opcode pattern every ALU family uses:
// Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,Ib / eAX,Iz (§4.3).
func (c *CPU) installArithGroup(base byte, op aluBinOp) {
	c.baseOps[base+0] = func(c *CPU) { c.execRMReg(Width8, op, true) }
	c.baseOps[base+1] = func(c *CPU) { c.execRMReg(c.opWidth(), op, true) }
	c.baseOps[base+2] = func(c *CPU) { c.execRMReg(Width8, op, false) }
	c.baseOps[base+3] = func(c *CPU) { c.execRMReg(c.opWidth(), op, false) }
	c.baseOps[base+4] = func(c *CPU) {
		s := uint32(c.fetch8())
		r := op.apply(c, Width8, uint32(c.AL()), s)
		if !op.noWriteback {
			c.SetAL(byte(r))
		}
	}
	c.baseOps[base+5] = func(c *CPU) {
		w := c.opWidth()
		s := c.fetchImmForWidth(w)
		r := op.apply(c, w, c.getRegWidth(w, 0), s)
		if !op.noWriteback {
			c.setRegWidth(w, 0, r)
		}
	}
}

// fetchImmForWidth fetches an Iz-class immediate: a word immediate at
// 16-bit operand size, a dword immediate at 32-bit operand size.
func (c *CPU) fetchImmForWidth(w Width) uint32 {
	if w == Width16 {
		return uint32(c.fetch16())
	}
	return c.fetch32()
}

// execRMReg executes a ModR/M (rm,reg) ALU op. toRM selects direction:
// true writes the result to rm (Eb,Gb / Ev,Gv form), false writes to the
// reg field (Gb,Eb / Gv,Ev form).
func (c *CPU) execRMReg(w Width, op aluBinOp, toRM bool) {
	rm, reg := c.decodeModRM()
	rmVal, f := c.readRM(rm, w)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	regVal := c.getRegWidth(w, reg)
	var d, s uint32
	if toRM {
		d, s = rmVal, regVal
	} else {
		d, s = regVal, rmVal
	}
	r := op.apply(c, w, d, s)
	if op.noWriteback {
		return
	}
	if toRM {
		if f := c.writeRM(rm, w, r); f != nil {
			c.dispatchFault(f)
		}
	} else {
		c.setRegWidth(w, reg, r)
	}
}

// installArithGroups wires 0x00-0x3D (eight families x six forms) and the
// 0x80-0x83 immediate group (ALU op against an immediate into Eb/Ev).
func (c *CPU) installArithGroups() {
	for i, op := range aluBinOps {
		c.installArithGroup(byte(i*8), op)
	}

	grpImm := func(immWidth func(Width) uint32, signExtendByte bool) func(*CPU) {
		return func(c *CPU) {
			rm, reg := c.decodeModRM()
			w := c.opWidth()
			op := aluBinOps[reg&7]
			var s uint32
			if signExtendByte {
				s = uint32(int32(int8(c.fetch8()))) & w.maxVal()
			} else {
				s = immWidth(w)
			}
			d, f := c.readRM(rm, w)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			r := op.apply(c, w, d, s)
			if op.noWriteback {
				return
			}
			if f := c.writeRM(rm, w, r); f != nil {
				c.dispatchFault(f)
			}
		}
	}
	c.baseOps[0x80] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		op := aluBinOps[reg&7]
		s := uint32(c.fetch8())
		d, f := c.readRM(rm, Width8)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		r := op.apply(c, Width8, d, s)
		if !op.noWriteback {
			if f := c.writeRM(rm, Width8, r); f != nil {
				c.dispatchFault(f)
			}
		}
	}
	c.baseOps[0x81] = grpImm(c.fetchImmForWidth, false)
	c.baseOps[0x83] = grpImm(nil, true)

	c.baseOps[0x84] = func(c *CPU) { c.execTest(Width8) }
	c.baseOps[0x85] = func(c *CPU) { c.execTest(c.opWidth()) }
	c.baseOps[0xA8] = func(c *CPU) {
		s := uint32(c.fetch8())
		c.aluTest(Width8, uint32(c.AL()), s)
	}
	c.baseOps[0xA9] = func(c *CPU) {
		w := c.opWidth()
		s := c.fetchImmForWidth(w)
		c.aluTest(w, c.getRegWidth(w, 0), s)
	}

	c.baseOps[0xF6] = func(c *CPU) { c.execUnaryGroup(Width8) }
	c.baseOps[0xF7] = func(c *CPU) { c.execUnaryGroup(c.opWidth()) }
	c.baseOps[0xFE] = func(c *CPU) { c.execIncDecGroup(Width8) }
	c.baseOps[0xFF] = func(c *CPU) { c.execIncDecGroup(c.opWidth()) }
}

func (c *CPU) execTest(w Width) {
	rm, reg := c.decodeModRM()
	rmVal, f := c.readRM(rm, w)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	c.aluTest(w, rmVal, c.getRegWidth(w, reg))
}

// execUnaryGroup dispatches 0xF6/0xF7's /reg field: TEST, NOT, NEG, MUL,
// IMUL, DIV, IDIV.
func (c *CPU) execUnaryGroup(w Width) {
	rm, reg := c.decodeModRM()
	switch reg & 7 {
	case 0, 1: // TEST Eb/Ev, Ib/Iz
		var s uint32
		if w == Width8 {
			s = uint32(c.fetch8())
		} else {
			s = c.fetchImmForWidth(w)
		}
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.aluTest(w, d, s)
	case 2: // NOT
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.writeRM(rm, w, c.aluNot(w, d))
	case 3: // NEG
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.writeRM(rm, w, c.aluNeg(w, d))
	case 4: // MUL
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		lo, hi := c.aluMul(w, c.getRegWidth(w, 0), d)
		c.storeWideResult(w, lo, hi)
	case 5: // IMUL
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		lo, hi := c.aluIMul(w, c.getRegWidth(w, 0), d)
		c.storeWideResult(w, lo, hi)
	case 6: // DIV
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.execDiv(w, d, false)
	case 7: // IDIV
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.execDiv(w, d, true)
	}
}

func (c *CPU) storeWideResult(w Width, lo, hi uint32) {
	switch w {
	case Width8:
		c.SetAX(uint16(lo) | uint16(hi)<<8)
	case Width16:
		c.SetAX(uint16(lo))
		c.SetDX(uint16(hi))
	default:
		c.EAX = lo
		c.EDX = hi
	}
}

func (c *CPU) execDiv(w Width, divisor uint32, signed bool) {
	if signed {
		var dividend int64
		var divisorSigned int32
		switch w {
		case Width8:
			dividend = int64(int16(c.AX()))
			divisorSigned = int32(int8(divisor))
		case Width16:
			dividend = int64(int32(uint32(c.DX())<<16 | uint32(c.AX())))
			divisorSigned = int32(int16(divisor))
		default:
			dividend = int64(uint64(c.EDX))<<32 | int64(c.EAX)
			divisorSigned = int32(divisor)
		}
		q, r, ok := c.aluIDiv(w, dividend, divisorSigned)
		if !ok {
			c.dispatchFault(c.faultDE())
			return
		}
		c.storeDivResult(w, q, r)
		return
	}
	var dividend uint64
	switch w {
	case Width8:
		dividend = uint64(c.AX())
	case Width16:
		dividend = uint64(c.DX())<<16 | uint64(c.AX())
	default:
		dividend = uint64(c.EDX)<<32 | uint64(c.EAX)
	}
	q, r, ok := c.aluDiv(w, dividend, divisor)
	if !ok {
		c.dispatchFault(c.faultDE())
		return
	}
	c.storeDivResult(w, q, r)
}

func (c *CPU) storeDivResult(w Width, q, r uint32) {
	switch w {
	case Width8:
		c.SetAL(byte(q))
		c.SetAH(byte(r))
	case Width16:
		c.SetAX(uint16(q))
		c.SetDX(uint16(r))
	default:
		c.EAX = q
		c.EDX = r
	}
}

// execIncDecGroup dispatches 0xFE (INC/DEC Eb only) and 0xFF (INC/DEC/CALL/
// JMP/PUSH Ev, per the /reg field).
func (c *CPU) execIncDecGroup(w Width) {
	rm, reg := c.decodeModRM()
	if w == Width8 && reg&7 > 1 {
		c.dispatchFault(c.faultUD())
		return
	}
	switch reg & 7 {
	case 0:
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.writeRM(rm, w, c.aluInc(w, d))
	case 1:
		d, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.writeRM(rm, w, c.aluDec(w, d))
	case 2: // CALL near indirect
		target, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		if f := c.pushReturnAddr(w); f != nil {
			c.dispatchFault(f)
			return
		}
		c.EIP = target
	case 3: // CALL far indirect
		c.callFarIndirect(rm, w)
	case 4: // JMP near indirect
		target, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.EIP = target
	case 5: // JMP far indirect
		c.jmpFarIndirect(rm, w)
	case 6: // PUSH Ev
		v, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		if f := c.pushOperand(w, v); f != nil {
			c.dispatchFault(f)
		}
	}
}
