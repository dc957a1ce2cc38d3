package x86

// initBaseOps builds the 256-entry base opcode table (§3 "Index into a
// 256-entry opcode table"). Unpopulated entries fault #UD, matching real
// silicon's behaviour for opcodes this core does not implement.
func (c *CPU) initBaseOps() {
	for i := range c.baseOps {
		c.baseOps[i] = (*CPU).opUndefined
	}
	c.installArithGroups()
	c.installDataOps()
	c.installShiftOps()
	c.installStringOps()
	c.installControlOps()
	c.installIOOps()
	c.baseOps[0x0F] = (*CPU).dispatchExtended
	c.installPrefixOps()
	c.installSegOverrides()
}

// initExtendedOps builds the 256-entry 0x0F-prefixed table.
func (c *CPU) initExtendedOps() {
	for i := range c.extendedOps {
		c.extendedOps[i] = (*CPU).opUndefined
	}
	c.installSystemOps()
	for i := byte(0); i < 16; i++ {
		cond := i
		c.extendedOps[0x80+cond] = func(c *CPU) {
			w := c.opWidth()
			rel := int32(c.fetchImmForWidth(w))
			if w == Width16 {
				rel = int32(int16(rel))
			}
			if c.testCond(cond) {
				c.EIP = uint32(int32(c.EIP) + rel)
			}
		}
		c.extendedOps[0x90+cond] = func(c *CPU) {
			rm, _ := c.decodeModRM()
			v := uint32(0)
			if c.testCond(cond) {
				v = 1
			}
			c.writeRM(rm, Width8, v)
		}
	}
	c.extendedOps[0xA2] = func(c *CPU) {} // CPUID stub: no-op (out of scope)
	c.extendedOps[0xAF] = func(c *CPU) { // IMUL Gv,Ev
		rm, reg := c.decodeModRM()
		w := c.opWidth()
		s, f := c.readRM(rm, w)
		if f != nil {
			c.dispatchFault(f)
			return
		}
		lo, _ := c.aluIMul(w, c.getRegWidth(w, reg), s)
		c.setRegWidth(w, reg, lo)
	}
	c.extendedOps[0xB6] = func(c *CPU) { c.execMovExtend(Width8, false) }  // MOVZX Gv,Eb
	c.extendedOps[0xB7] = func(c *CPU) { c.execMovExtend(Width16, false) } // MOVZX Gv,Ew
	c.extendedOps[0xBE] = func(c *CPU) { c.execMovExtend(Width8, true) }   // MOVSX Gv,Eb
	c.extendedOps[0xBF] = func(c *CPU) { c.execMovExtend(Width16, true) }  // MOVSX Gv,Ew
}

func (c *CPU) execMovExtend(srcW Width, signed bool) {
	rm, reg := c.decodeModRM()
	v, f := c.readRM(rm, srcW)
	if f != nil {
		c.dispatchFault(f)
		return
	}
	dstW := c.opWidth()
	if signed {
		c.setRegWidth(dstW, reg, uint32(signExtend(srcW, v))&dstW.maxVal())
	} else {
		c.setRegWidth(dstW, reg, v)
	}
}

func (c *CPU) dispatchExtended() {
	op := c.fetch8()
	c.extendedOps[op](c)
}

func (c *CPU) opUndefined() {
	c.dispatchFault(c.faultUD())
}

// installPrefixOps wires the prefix bytes that modify how the *next* opcode
// is fetched/decoded rather than being opcodes in their own right: 0x66/0x67
// operand/address size, 0xF0 LOCK, 0xF2/0xF3 REPNE/REP.
func (c *CPU) installPrefixOps() {
	c.baseOps[0x66] = func(c *CPU) { c.prefixOpSize = true; c.stepOneOpcode() }
	c.baseOps[0x67] = func(c *CPU) { c.prefixAddrSize = true; c.stepOneOpcode() }
	c.baseOps[0xF0] = func(c *CPU) { c.prefixLock = true; c.stepOneOpcode() }
	c.baseOps[0xF2] = func(c *CPU) { c.prefixRep = 2; c.stepOneOpcode() }
	c.baseOps[0xF3] = func(c *CPU) { c.prefixRep = 1; c.stepOneOpcode() }
}

func (c *CPU) installSegOverrides() {
	install := func(opcode byte, seg int) {
		c.baseOps[opcode] = func(c *CPU) { c.prefixSeg = seg; c.stepOneOpcode() }
	}
	install(0x26, SegES)
	install(0x2E, SegCS)
	install(0x36, SegSS)
	install(0x3E, SegDS)
	install(0x64, SegFS)
	install(0x65, SegGS)
}

// stepOneOpcode fetches and executes the next opcode byte, reusing the
// prefix state already accumulated on c (§3's "prefix flag set lives for
// exactly one instruction" -- prefixes chain by re-entering this, not by
// looping in Step).
func (c *CPU) stepOneOpcode() {
	c.opcode = c.fetch8()
	c.baseOps[c.opcode](c)
}

// Step executes exactly one architectural instruction: prefix accumulation,
// opcode dispatch, and (if armed) pending-interrupt delivery at the
// following instruction boundary. It never blocks and never consumes a bus
// Tick itself -- callers that want cycle accounting use StepCPU.
func (c *CPU) Step() {
	if c.shutdown {
		return
	}
	if c.Halted {
		if c.checkInterrupts() {
			c.Halted = false
		} else {
			return
		}
	}

	c.clearPrefixes()
	c.opLIP, _ = c.linear(SegCS, c.EIP, 1, false)
	c.noIntrAfterNext = false

	c.stepOneOpcode()

	if !c.noIntrAfterNext {
		c.checkInterrupts()
	}
}

// checkInterrupts delivers a pending NMI or (if IF is set) a pending
// maskable IRQ at an instruction boundary. Returns true if anything was
// delivered (used to wake a Halted core).
func (c *CPU) checkInterrupts() bool {
	if c.nmiPending.CompareAndSwap(true, false) {
		c.invokeGate(VecNMI, false, 0, true)
		return true
	}
	if c.IF() && c.irqPending.CompareAndSwap(true, false) {
		vector := byte(c.irqVector.Load())
		c.deliverIRQ(vector)
		return true
	}
	return false
}

// StepCPU runs instructions until at least cyclesBudget cycles have been
// consumed or the core halts/shuts down, per §6's control interface
// "stepCPU(cyclesBudget) runs one burst and returns cycles consumed". Every
// Step is charged exactly one cycle; there is no per-instruction cycle
// count (§1 non-goal). A triple fault is a host-visible event
// (the burst cannot continue), so it is the one condition StepCPU reports
// back as a *HostError rather than leaving the caller to poll Shutdown().
func (c *CPU) StepCPU(cyclesBudget int) (int, *HostError) {
	spent := 0
	for spent < cyclesBudget {
		if c.shutdown {
			return spent, newHostError(c, "triple fault", nil)
		}
		if c.Halted && !c.irqPending.Load() && !c.nmiPending.Load() {
			break
		}
		before := c.Cycles
		c.Step()
		c.Cycles++
		spent += int(c.Cycles - before)
		c.bus.Tick(1)
	}
	return spent, nil
}
