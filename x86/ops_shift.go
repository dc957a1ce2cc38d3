package x86

// shiftDispatch maps a ModR/M /reg field (0-7) to ROL/ROR/RCL/RCR/SHL/SHR/
// SHL(alias)/SAR.
func (c *CPU) applyShift(reg byte, w Width, d uint32, count byte) uint32 {
	switch reg & 7 {
	case 0:
		return c.aluRol(w, d, count)
	case 1:
		return c.aluRor(w, d, count)
	case 2:
		return c.aluRcl(w, d, count)
	case 3:
		return c.aluRcr(w, d, count)
	case 4, 6:
		return c.aluShl(w, d, count)
	case 5:
		return c.aluShr(w, d, count)
	default:
		return c.aluSar(w, d, count)
	}
}

func (c *CPU) installShiftOps() {
	exec := func(w Width, countOf func(c *CPU) byte) func(*CPU) {
		return func(c *CPU) {
			rm, reg := c.decodeModRM()
			count := countOf(c)
			d, f := c.readRM(rm, w)
			if f != nil {
				c.dispatchFault(f)
				return
			}
			r := c.applyShift(reg, w, d, count)
			if f := c.writeRM(rm, w, r); f != nil {
				c.dispatchFault(f)
			}
		}
	}
	one := func(c *CPU) byte { return 1 }
	byCL := func(c *CPU) byte { return c.shiftCount(c.CL()) }
	byImm := func(c *CPU) byte { return c.shiftCount(c.fetch8()) }

	c.baseOps[0xD0] = exec(Width8, one)
	c.baseOps[0xD1] = func(c *CPU) { exec(c.opWidth(), one)(c) }
	c.baseOps[0xD2] = exec(Width8, byCL)
	c.baseOps[0xD3] = func(c *CPU) { exec(c.opWidth(), byCL)(c) }
	c.baseOps[0xC0] = exec(Width8, byImm)
	c.baseOps[0xC1] = func(c *CPU) { exec(c.opWidth(), byImm)(c) }
}
