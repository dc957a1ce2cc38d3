package x86

// fetch8 reads the next instruction byte from CS:EIP and advances EIP.
func (c *CPU) fetch8() byte {
	addr, _ := c.linear(SegCS, c.EIP, 1, false)
	v := c.bus.ReadByte(addr)
	c.EIP++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(lo) | uint16(hi)<<8
}

func (c *CPU) fetch32() uint32 {
	lo := c.fetch16()
	hi := c.fetch16()
	return uint32(lo) | uint32(hi)<<16
}

func (c *CPU) fetchWidth(w Width) uint32 {
	if w == Width8 {
		return uint32(c.fetch8())
	}
	if w == Width16 {
		return uint32(c.fetch16())
	}
	return c.fetch32()
}

// readMem/writeMem access a (segment, offset) location through the
// segmentation+paging unit, width-generic.
func (c *CPU) readMemWidth(seg int, off uint32, w Width) (uint32, *Fault) {
	addr, f := c.linear(seg, off, uint32(w.Bytes()), false)
	if f != nil {
		return 0, f
	}
	switch w {
	case Width8:
		return uint32(c.bus.ReadByte(addr)), nil
	case Width16:
		return uint32(c.bus.ReadByte(addr)) | uint32(c.bus.ReadByte(addr+1))<<8, nil
	default:
		return uint32(c.bus.ReadByte(addr)) | uint32(c.bus.ReadByte(addr+1))<<8 |
			uint32(c.bus.ReadByte(addr+2))<<16 | uint32(c.bus.ReadByte(addr+3))<<24, nil
	}
}

func (c *CPU) writeMemWidth(seg int, off uint32, w Width, v uint32) *Fault {
	addr, f := c.linear(seg, off, uint32(w.Bytes()), true)
	if f != nil {
		return f
	}
	c.bus.WriteByte(addr, byte(v))
	if w >= Width16 {
		c.bus.WriteByte(addr+1, byte(v>>8))
	}
	if w == Width32 {
		c.bus.WriteByte(addr+2, byte(v>>16))
		c.bus.WriteByte(addr+3, byte(v>>24))
	}
	return nil
}

// modrmOperand is a decoded ModR/M operand site: either a register (isReg
// true, reg holds its index) or a memory location (seg, linear offset
// precomputed into off).
type modrmOperand struct {
	isReg bool
	reg   byte
	seg   int
	off   uint32
}

// decodeModRM reads (and caches) the ModR/M byte, and any following SIB and
// displacement bytes, resolving the r/m field into a modrmOperand. regField
// returns the middle three bits (the /digit or second register operand).
func (c *CPU) decodeModRM() (rm modrmOperand, regField byte) {
	if !c.modrmLoaded {
		c.modrm = c.fetch8()
		c.modrmLoaded = true
	}
	mod := c.modrm >> 6
	regField = (c.modrm >> 3) & 7
	rmField := c.modrm & 7

	if mod == 3 {
		return modrmOperand{isReg: true, reg: rmField}, regField
	}

	seg := SegDS
	if c.prefixSeg >= 0 {
		seg = c.prefixSeg
	}
	var off uint32

	if c.addrWidth32() {
		if rmField == 4 {
			if !c.sibLoaded {
				c.sib = c.fetch8()
				c.sibLoaded = true
			}
			scale := c.sib >> 6
			index := (c.sib >> 3) & 7
			base := c.sib & 7
			var indexVal uint32
			if index != 4 {
				indexVal = c.getReg32(index) << scale
			}
			if base == 5 && mod == 0 {
				off = indexVal + c.fetch32()
			} else {
				off = indexVal + c.getReg32(base)
				if base == 4 || base == 5 {
					// ESP/EBP base: SS is the default segment.
					if c.prefixSeg < 0 {
						seg = SegSS
					}
				}
			}
		} else if rmField == 5 && mod == 0 {
			off = c.fetch32()
		} else {
			off = c.getReg32(rmField)
			if rmField == 5 && c.prefixSeg < 0 {
				seg = SegSS
			}
		}
		switch mod {
		case 1:
			off += uint32(int32(int8(c.fetch8())))
		case 2:
			off += c.fetch32()
		}
	} else {
		switch rmField {
		case 0:
			off = uint32(c.SI()) + uint32(c.BX())
		case 1:
			off = uint32(c.DI()) + uint32(c.BX())
		case 2:
			off = uint32(c.SI()) + uint32(c.BP())
			if c.prefixSeg < 0 {
				seg = SegSS
			}
		case 3:
			off = uint32(c.DI()) + uint32(c.BP())
			if c.prefixSeg < 0 {
				seg = SegSS
			}
		case 4:
			off = uint32(c.SI())
		case 5:
			off = uint32(c.DI())
		case 6:
			if mod == 0 {
				off = uint32(c.fetch16())
			} else {
				off = uint32(c.BP())
				if c.prefixSeg < 0 {
					seg = SegSS
				}
			}
		case 7:
			off = uint32(c.BX())
		}
		switch mod {
		case 1:
			off += uint32(int16(int8(c.fetch8())))
		case 2:
			off += uint32(c.fetch16())
		}
		off &= 0xFFFF
	}

	return modrmOperand{isReg: false, seg: seg, off: off}, regField
}

func (c *CPU) readRM(rm modrmOperand, w Width) (uint32, *Fault) {
	if rm.isReg {
		return c.getRegWidth(w, rm.reg), nil
	}
	return c.readMemWidth(rm.seg, rm.off, w)
}

func (c *CPU) writeRM(rm modrmOperand, w Width, v uint32) *Fault {
	if rm.isReg {
		c.setRegWidth(w, rm.reg, v)
		return nil
	}
	return c.writeMemWidth(rm.seg, rm.off, w, v)
}

// Stack helpers. Width of SP/ESP update follows the stack segment's B bit
// (big=32-bit ESP) independent of operand-size prefix (§4.4).
func (c *CPU) stackWidth32() bool { return c.seg[SegSS].Ext&extBig != 0 }

// pushWord/pushDword/popWord/popDword validate the stack access before
// committing any SP/ESP change (§4.2 "if offset > limit, raise the
// appropriate fault ... SS for SS"): on a faulting access, the stack pointer
// is left exactly where it was, so a restarted instruction (PUSHA crossing
// an SS limit, e.g.) doesn't see a partially-adjusted SP.
func (c *CPU) pushWord(v uint16) *Fault {
	var sp uint32
	if c.stackWidth32() {
		sp = c.ESP - 2
	} else {
		sp = uint32(c.SP() - 2)
	}
	if f := c.writeMemWidth(SegSS, sp, Width16, uint32(v)); f != nil {
		return f
	}
	if c.stackWidth32() {
		c.ESP = sp
	} else {
		c.SetSP(uint16(sp))
	}
	return nil
}

func (c *CPU) pushDword(v uint32) *Fault {
	var sp uint32
	if c.stackWidth32() {
		sp = c.ESP - 4
	} else {
		sp = uint32(c.SP() - 4)
	}
	if f := c.writeMemWidth(SegSS, sp, Width32, v); f != nil {
		return f
	}
	if c.stackWidth32() {
		c.ESP = sp
	} else {
		c.SetSP(uint16(sp))
	}
	return nil
}

func (c *CPU) popWord() (uint16, *Fault) {
	v, f := c.readMemWidth(SegSS, c.spValue(), Width16)
	if f != nil {
		return 0, f
	}
	if c.stackWidth32() {
		c.ESP += 2
	} else {
		c.SetSP(c.SP() + 2)
	}
	return uint16(v), nil
}

func (c *CPU) popDword() (uint32, *Fault) {
	v, f := c.readMemWidth(SegSS, c.spValue(), Width32)
	if f != nil {
		return 0, f
	}
	if c.stackWidth32() {
		c.ESP += 4
	} else {
		c.SetSP(c.SP() + 4)
	}
	return v, nil
}

func (c *CPU) spValue() uint32 {
	if c.stackWidth32() {
		return c.ESP
	}
	return uint32(c.SP())
}

// peekStack reads a stack slot at the given word/dword depth below the
// current SP/ESP without advancing it, used to validate a control-transfer
// destination (new CS, for far RET/IRET) before committing to the pop
// (§4.4: "validate the destination CS before writing anything observable").
func (c *CPU) peekStack(w Width, depth uint32) (uint32, *Fault) {
	off := c.spValue() + depth*uint32(w.Bytes())
	return c.readMemWidth(SegSS, off, w)
}
