package x86

// pushOperand/popOperand push or pop a width-generic value, used by PUSH r/m
// (0xFF /6), PUSH imm, and the control-transfer helpers.
func (c *CPU) pushOperand(w Width, v uint32) *Fault {
	if w == Width16 {
		return c.pushWord(uint16(v))
	}
	return c.pushDword(v)
}

func (c *CPU) popOperand(w Width) (uint32, *Fault) {
	if w == Width16 {
		v, f := c.popWord()
		return uint32(v), f
	}
	return c.popDword()
}

func (c *CPU) installDataOps() {
	// MOV Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev
	c.baseOps[0x88] = func(c *CPU) { c.execMovRM(Width8, true) }
	c.baseOps[0x89] = func(c *CPU) { c.execMovRM(c.opWidth(), true) }
	c.baseOps[0x8A] = func(c *CPU) { c.execMovRM(Width8, false) }
	c.baseOps[0x8B] = func(c *CPU) { c.execMovRM(c.opWidth(), false) }

	// MOV Ew,Sw / MOV Sw,Ew (segment register moves)
	c.baseOps[0x8C] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		c.writeRM(rm, Width16, uint32(c.getSeg(int(reg&7)%numSegs)))
	}
	c.baseOps[0x8E] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		v, f := c.readRM(rm, Width16)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.loadSegRegByIndex(int(reg&7)%numSegs, uint16(v))
	}

	// LEA Gv,M
	c.baseOps[0x8D] = func(c *CPU) {
		rm, reg := c.decodeModRM()
		if rm.isReg {
			c.dispatchFault(c.faultUD())
			return
		}
		c.setRegWidth(c.opWidth(), reg, rm.off)
	}

	// MOV AL/eAX,moffs and moffs,AL/eAX
	c.baseOps[0xA0] = func(c *CPU) {
		off := c.fetchMoffs()
		v, f := c.readMemWidth(c.effSeg(), off, Width8)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.SetAL(byte(v))
	}
	c.baseOps[0xA1] = func(c *CPU) {
		off := c.fetchMoffs()
		w := c.opWidth()
		v, f := c.readMemWidth(c.effSeg(), off, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.setRegWidth(w, 0, v)
	}
	c.baseOps[0xA2] = func(c *CPU) {
		off := c.fetchMoffs()
		if f := c.writeMemWidth(c.effSeg(), off, Width8, uint32(c.AL())); f != nil {
			c.dispatchFault(f)
		}
	}
	c.baseOps[0xA3] = func(c *CPU) {
		off := c.fetchMoffs()
		w := c.opWidth()
		if f := c.writeMemWidth(c.effSeg(), off, w, c.getRegWidth(w, 0)); f != nil {
			c.dispatchFault(f)
		}
	}

	// MOV reg,imm (0xB0-0xBF)
	for i := byte(0); i < 8; i++ {
		idx := i
		c.baseOps[0xB0+idx] = func(c *CPU) { c.setReg8(idx, c.fetch8()) }
	}
	for i := byte(0); i < 8; i++ {
		idx := i
		c.baseOps[0xB8+idx] = func(c *CPU) {
			w := c.opWidth()
			c.setRegWidth(w, idx, c.fetchImmForWidth(w))
		}
	}

	// MOV Eb,Ib / Ev,Iz (0xC6/0xC7)
	c.baseOps[0xC6] = func(c *CPU) {
		rm, _ := c.decodeModRM()
		c.writeRM(rm, Width8, uint32(c.fetch8()))
	}
	c.baseOps[0xC7] = func(c *CPU) {
		rm, _ := c.decodeModRM()
		w := c.opWidth()
		c.writeRM(rm, w, c.fetchImmForWidth(w))
	}

	// PUSH/POP reg (0x50-0x5F)
	for i := byte(0); i < 8; i++ {
		idx := i
		c.baseOps[0x50+idx] = func(c *CPU) {
			w := c.opWidth()
			if f := c.pushOperand(w, c.getRegWidth(w, idx)); f != nil {
				c.dispatchFault(f)
			}
		}
		c.baseOps[0x58+idx] = func(c *CPU) {
			w := c.opWidth()
			v, f := c.popOperand(w)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			c.setRegWidth(w, idx, v)
		}
	}
	c.baseOps[0x68] = func(c *CPU) {
		w := c.opWidth()
		if f := c.pushOperand(w, c.fetchImmForWidth(w)); f != nil {
			c.dispatchFault(f)
		}
	}
	c.baseOps[0x6A] = func(c *CPU) {
		v := uint32(int32(int8(c.fetch8())))
		w := c.opWidth()
		if f := c.pushOperand(w, v&w.maxVal()); f != nil {
			c.dispatchFault(f)
		}
	}

	// Segment PUSH/POP: ES=0x06/0x07, CS=0x0E, SS=0x16/0x17, DS=0x1E/0x1F
	segPush := func(idx int) func(*CPU) {
		return func(c *CPU) {
			w := c.opWidth()
			if f := c.pushOperand(w, uint32(c.getSeg(idx))); f != nil {
				c.dispatchFault(f)
			}
		}
	}
	segPop := func(idx int) func(*CPU) {
		return func(c *CPU) {
			w := c.opWidth()
			v, f := c.popOperand(w)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			c.loadSegRegByIndex(idx, uint16(v))
		}
	}
	c.baseOps[0x06] = segPush(SegES)
	c.baseOps[0x07] = segPop(SegES)
	c.baseOps[0x0E] = segPush(SegCS)
	c.baseOps[0x16] = segPush(SegSS)
	c.baseOps[0x17] = segPop(SegSS)
	c.baseOps[0x1E] = segPush(SegDS)
	c.baseOps[0x1F] = segPop(SegDS)

	// XCHG eAX,reg (0x91-0x97), XCHG Eb,Gb/Ev,Gv (0x86/0x87)
	for i := byte(1); i < 8; i++ {
		idx := i
		c.baseOps[0x90+idx] = func(c *CPU) {
			w := c.opWidth()
			a, b := c.getRegWidth(w, 0), c.getRegWidth(w, idx)
			c.setRegWidth(w, 0, b)
			c.setRegWidth(w, idx, a)
		}
	}
	c.baseOps[0x90] = func(c *CPU) {} // NOP (XCHG eAX,eAX)
	c.baseOps[0x86] = func(c *CPU) { c.execXchg(Width8) }
	c.baseOps[0x87] = func(c *CPU) { c.execXchg(c.opWidth()) }

	// CBW/CWDE (0x98), CWD/CDQ (0x99)
	c.baseOps[0x98] = func(c *CPU) {
		if c.opWidth() == Width32 {
			c.EAX = uint32(int32(int16(c.AX())))
		} else {
			c.SetAX(uint16(int16(int8(c.AL()))))
		}
	}
	c.baseOps[0x99] = func(c *CPU) {
		if c.opWidth() == Width32 {
			if int32(c.EAX) < 0 {
				c.EDX = 0xFFFFFFFF
			} else {
				c.EDX = 0
			}
		} else {
			if int16(c.AX()) < 0 {
				c.SetDX(0xFFFF)
			} else {
				c.SetDX(0)
			}
		}
	}

	// LAHF/SAHF (0x9E/0x9F)
	c.baseOps[0x9F] = func(c *CPU) { c.SetAH(byte(c.PS())) }
	c.baseOps[0x9E] = func(c *CPU) {
		c.materializeAll()
		c.Flags = (c.Flags &^ 0xFF) | uint32(c.AH())&0xD5 | flagBit1
	}

	// PUSHF/POPF (0x9C/0x9D)
	c.baseOps[0x9C] = func(c *CPU) {
		if f := c.pushOperand(c.opWidth(), c.PS()); f != nil {
			c.dispatchFault(f)
		}
	}
	c.baseOps[0x9D] = func(c *CPU) {
		v, f := c.popOperand(c.opWidth())
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.SetPS(v)
	}

	// PUSHA/POPA (0x60/0x61) -- 80186+
	c.baseOps[0x60] = func(c *CPU) {
		w := c.opWidth()
		sp := c.getRegWidth(w, 4)
		order := []byte{0, 1, 2, 3, 4, 5, 6, 7}
		for _, r := range order {
			v := sp
			if r != 4 {
				v = c.getRegWidth(w, r)
			}
			if f := c.pushOperand(w, v); f != nil {
				c.dispatchFault(f)
				return
			}
		}
	}
	c.baseOps[0x61] = func(c *CPU) {
		w := c.opWidth()
		for _, r := range []byte{7, 6, 5, 4, 3, 2, 1, 0} {
			v, f := c.popOperand(w)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			if r != 4 {
				c.setRegWidth(w, r, v)
			}
		}
	}

	// ENTER/LEAVE (0xC8/0xC9) -- 80186+
	c.baseOps[0xC8] = func(c *CPU) {
		size := c.fetch16()
		level := c.fetch8() & 0x1F
		w := c.opWidth()
		if f := c.pushOperand(w, c.getRegWidth(w, 5)); f != nil {
			c.dispatchFault(f)
			return
		}
		frameTemp := c.spValue()
		if level > 0 {
			bp := c.getRegWidth(w, 5)
			for i := byte(1); i < level; i++ {
				bp -= uint32(w.Bytes())
				v, f := c.readMemWidth(SegSS, bp, w)
				if f != nil {
					c.dispatchFault(f)
					return
				}
				if f := c.pushOperand(w, v); f != nil {
					c.dispatchFault(f)
					return
				}
			}
			if f := c.pushOperand(w, frameTemp); f != nil {
				c.dispatchFault(f)
				return
			}
		}
		c.setRegWidth(w, 5, frameTemp)
		if c.stackWidth32() {
			c.ESP -= uint32(size)
		} else {
			c.SetSP(c.SP() - size)
		}
	}
	c.baseOps[0xC9] = func(c *CPU) {
		w := c.opWidth()
		bp := c.getRegWidth(w, 5)
		if c.stackWidth32() {
			c.ESP = bp
		} else {
			c.SetSP(uint16(bp))
		}
		v, f := c.popOperand(w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		c.setRegWidth(w, 5, v)
	}

	// NOP-class prefixes and HLT/CLC/STC/CLI/STI/CLD/STD
	c.baseOps[0xF4] = func(c *CPU) { c.Halted = true }
	c.baseOps[0xF5] = func(c *CPU) { c.SetCF(!c.CF()) }
	c.baseOps[0xF8] = func(c *CPU) { c.SetCF(false) }
	c.baseOps[0xF9] = func(c *CPU) { c.SetCF(true) }
	c.baseOps[0xFA] = func(c *CPU) { c.SetIF(false) }
	c.baseOps[0xFB] = func(c *CPU) {
		c.SetIF(true)
		c.noIntrAfterNext = true
	}
	c.baseOps[0xFC] = func(c *CPU) { c.SetDF(false) }
	c.baseOps[0xFD] = func(c *CPU) { c.SetDF(true) }
}

func (c *CPU) execMovRM(w Width, toRM bool) {
	rm, reg := c.decodeModRM()
	if toRM {
		if f := c.writeRM(rm, w, c.getRegWidth(w, reg)); f != nil {
			c.dispatchFault(f)
		}
		return
	}
	v, f := c.readRM(rm, w)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	c.setRegWidth(w, reg, v)
}

func (c *CPU) execXchg(w Width) {
	rm, reg := c.decodeModRM()
	rmVal, f := c.readRM(rm, w)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	regVal := c.getRegWidth(w, reg)
	c.writeRM(rm, w, regVal)
	c.setRegWidth(w, reg, rmVal)
}

// fetchMoffs fetches the address-size-dependent offset operand of the
// 0xA0-0xA3 direct-memory MOV forms.
func (c *CPU) fetchMoffs() uint32 {
	if c.addrWidth32() {
		return c.fetch32()
	}
	return uint32(c.fetch16())
}

func (c *CPU) effSeg() int {
	if c.prefixSeg >= 0 {
		return c.prefixSeg
	}
	return SegDS
}

// loadSegRegByIndex routes a selector load to the appropriate loader
// (§4.2): SS has its own privilege rule, CS is never loaded by plain MOV
// (that opcode simply doesn't exist), the rest use the data-segment loader.
func (c *CPU) loadSegRegByIndex(idx int, selector uint16) {
	var f *Fault
	switch idx {
	case SegSS:
		f = c.loadSS(selector)
	default:
		f = c.loadDataSeg(idx, selector)
	}
	if f != nil {
		c.dispatchFault(f)
	}
}
