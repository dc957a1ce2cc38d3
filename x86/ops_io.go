package x86

func (c *CPU) installIOOps() {
	c.baseOps[0xE4] = func(c *CPU) { p := c.fetch8(); c.SetAL(byte(c.bus.In(uint16(p), Width8))) }
	c.baseOps[0xE5] = func(c *CPU) {
		p := c.fetch8()
		w := c.opWidth()
		c.setRegWidth(w, 0, c.bus.In(uint16(p), w))
	}
	c.baseOps[0xE6] = func(c *CPU) { p := c.fetch8(); c.bus.Out(uint16(p), Width8, uint32(c.AL())) }
	c.baseOps[0xE7] = func(c *CPU) {
		p := c.fetch8()
		w := c.opWidth()
		c.bus.Out(uint16(p), w, c.getRegWidth(w, 0))
	}
	c.baseOps[0xEC] = func(c *CPU) { c.SetAL(byte(c.bus.In(c.DX(), Width8))) }
	c.baseOps[0xED] = func(c *CPU) {
		w := c.opWidth()
		c.setRegWidth(w, 0, c.bus.In(c.DX(), w))
	}
	c.baseOps[0xEE] = func(c *CPU) { c.bus.Out(c.DX(), Width8, uint32(c.AL())) }
	c.baseOps[0xEF] = func(c *CPU) {
		w := c.opWidth()
		c.bus.Out(c.DX(), w, c.getRegWidth(w, 0))
	}
}
