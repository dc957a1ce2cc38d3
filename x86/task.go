package x86

// tss286Layout and tss386Layout describe the two task-state-segment layouts switchTask
// must read and write (§4.5 task switch). Only the fields the core actually
// touches are modelled; peripherals never see these types.
type tss286Layout struct {
	backLink                                          uint16
	sp0, ss0, sp1, ss1, sp2, ss2                       uint16
	ip, flags                                          uint16
	ax, cx, dx, bx, sp, bp, si, di                     uint16
	es, cs, ss, ds                                     uint16
	ldt                                                uint16
}

const tss286Size = 44

func readTSS286(bus Bus, base uint32) tss286Layout {
	r16 := func(off uint32) uint16 {
		return uint16(bus.ReadByteDirect(base+off)) | uint16(bus.ReadByteDirect(base+off+1))<<8
	}
	return tss286Layout{
		backLink: r16(0),
		sp0: r16(2), ss0: r16(4), sp1: r16(6), ss1: r16(8), sp2: r16(10), ss2: r16(12),
		ip: r16(14), flags: r16(16),
		ax: r16(18), cx: r16(20), dx: r16(22), bx: r16(24),
		sp: r16(26), bp: r16(28), si: r16(30), di: r16(32),
		es: r16(34), cs: r16(36), ss: r16(38), ds: r16(40),
		ldt: r16(42),
	}
}

func writeTSS286(bus Bus, base uint32, t tss286Layout) {
	w16 := func(off uint32, v uint16) {
		bus.WriteByte(base+off, byte(v))
		bus.WriteByte(base+off+1, byte(v>>8))
	}
	w16(0, t.backLink)
	w16(2, t.sp0)
	w16(4, t.ss0)
	w16(6, t.sp1)
	w16(8, t.ss1)
	w16(10, t.sp2)
	w16(12, t.ss2)
	w16(14, t.ip)
	w16(16, t.flags)
	w16(18, t.ax)
	w16(20, t.cx)
	w16(22, t.dx)
	w16(24, t.bx)
	w16(26, t.sp)
	w16(28, t.bp)
	w16(30, t.si)
	w16(32, t.di)
	w16(34, t.es)
	w16(36, t.cs)
	w16(38, t.ss)
	w16(40, t.ds)
	w16(42, t.ldt)
}

type tss386Layout struct {
	backLink                                uint32
	esp0, ss0, esp1, ss1, esp2, ss2          uint32
	cr3, eip, eflags                        uint32
	eax, ecx, edx, ebx, esp, ebp, esi, edi   uint32
	es, cs, ss, ds, fs, gs                   uint32
	ldt                                      uint32
	ioMapBase                                uint32
}

func readTSS386(bus Bus, base uint32) tss386Layout {
	r32 := func(off uint32) uint32 {
		return uint32(bus.ReadByteDirect(base+off)) | uint32(bus.ReadByteDirect(base+off+1))<<8 |
			uint32(bus.ReadByteDirect(base+off+2))<<16 | uint32(bus.ReadByteDirect(base+off+3))<<24
	}
	return tss386Layout{
		backLink: r32(0) & 0xFFFF,
		esp0: r32(4), ss0: r32(8) & 0xFFFF, esp1: r32(12), ss1: r32(16) & 0xFFFF,
		esp2: r32(20), ss2: r32(24) & 0xFFFF,
		cr3: r32(28), eip: r32(32), eflags: r32(36),
		eax: r32(40), ecx: r32(44), edx: r32(48), ebx: r32(52),
		esp: r32(56), ebp: r32(60), esi: r32(64), edi: r32(68),
		es: r32(72) & 0xFFFF, cs: r32(76) & 0xFFFF, ss: r32(80) & 0xFFFF,
		ds: r32(84) & 0xFFFF, fs: r32(88) & 0xFFFF, gs: r32(92) & 0xFFFF,
		ldt: r32(96) & 0xFFFF,
	}
}

func writeTSS386(bus Bus, base uint32, t tss386Layout) {
	w32 := func(off uint32, v uint32) {
		bus.WriteByte(base+off, byte(v))
		bus.WriteByte(base+off+1, byte(v>>8))
		bus.WriteByte(base+off+2, byte(v>>16))
		bus.WriteByte(base+off+3, byte(v>>24))
	}
	w32(0, t.backLink)
	w32(32, t.eip)
	w32(36, t.eflags)
	w32(40, t.eax)
	w32(44, t.ecx)
	w32(48, t.edx)
	w32(52, t.ebx)
	w32(56, t.esp)
	w32(60, t.ebp)
	w32(64, t.esi)
	w32(68, t.edi)
	w32(72, t.es)
	w32(76, t.cs)
	w32(80, t.ss)
	w32(84, t.ds)
	w32(88, t.fs)
	w32(92, t.gs)
}

// switchTask implements §4.5's task switch algorithm: save the outgoing
// task's register state into its TSS, load the incoming TSS and set its busy
// bit, clear the outgoing task's busy bit on a non-nesting (JMP/IRET)
// switch, and update the back-link and set NT on a nesting (CALL/INT)
// switch.
func (c *CPU) switchTask(newSelector uint16, nesting bool) {
	newDesc, newLinear, ok := c.fetchDescriptor(newSelector)
	if !ok || !newDesc.IsTSS() {
		c.dispatchFault(c.faultGP(newSelector))
		return
	}

	oldTRSelector := c.tr.Selector
	oldTRBase := c.tr.Base

	is32 := newDesc.TSS32()
	if is32 {
		t := readTSS386(c.bus, oldTRBase)
		t.eax, t.ecx, t.edx, t.ebx = c.EAX, c.ECX, c.EDX, c.EBX
		t.esp, t.ebp, t.esi, t.edi = c.ESP, c.EBP, c.ESI, c.EDI
		t.eip, t.eflags = c.EIP, c.PS()
		t.es, t.cs, t.ss, t.ds = uint32(c.getSeg(SegES)), uint32(c.getSeg(SegCS)), uint32(c.getSeg(SegSS)), uint32(c.getSeg(SegDS))
		t.fs, t.gs = uint32(c.getSeg(SegFS)), uint32(c.getSeg(SegGS))
		writeTSS386(c.bus, oldTRBase, t)
	} else {
		t := readTSS286(c.bus, oldTRBase)
		t.ax, t.cx, t.dx, t.bx = c.AX(), c.CX(), c.DX(), c.BX()
		t.sp, t.bp, t.si, t.di = c.SP(), c.BP(), c.SI(), c.DI()
		t.ip, t.flags = c.IP(), uint16(c.PS())
		t.es, t.cs, t.ss, t.ds = c.getSeg(SegES), c.getSeg(SegCS), c.getSeg(SegSS), c.getSeg(SegDS)
		writeTSS286(c.bus, oldTRBase, t)
	}

	if !nesting {
		oldDesc, oldLinear, ok := c.fetchDescriptor(oldTRSelector)
		if ok {
			oldDesc.Acc &^= 0x02
			c.writeBackDescriptor(oldLinear, oldDesc)
		}
	}

	newDesc.Acc |= 0x02
	c.writeBackDescriptor(newLinear, newDesc)
	c.tr.fromDescriptor(newSelector, newDesc, newLinear)

	if is32 {
		t := readTSS386(c.bus, newDesc.Base)
		if nesting {
			t.backLink = uint32(oldTRSelector)
			writeTSS386(c.bus, newDesc.Base, t)
		}
		c.EAX, c.ECX, c.EDX, c.EBX = t.eax, t.ecx, t.edx, t.ebx
		c.ESP, c.EBP, c.ESI, c.EDI = t.esp, t.ebp, t.esi, t.edi
		c.EIP = t.eip
		c.SetPS(t.eflags)
		c.CR3 = t.cr3
		c.loadLDT(uint16(t.ldt))
		c.loadCS(uint16(t.cs), 0)
		c.loadSS(uint16(t.ss))
		c.loadDataSeg(SegDS, uint16(t.ds))
		c.loadDataSeg(SegES, uint16(t.es))
		c.loadDataSeg(SegFS, uint16(t.fs))
		c.loadDataSeg(SegGS, uint16(t.gs))
	} else {
		t := readTSS286(c.bus, newDesc.Base)
		if nesting {
			t.backLink = oldTRSelector
			writeTSS286(c.bus, newDesc.Base, t)
		}
		c.SetAX(t.ax)
		c.SetCX(t.cx)
		c.SetDX(t.dx)
		c.SetBX(t.bx)
		c.SetSP(t.sp)
		c.SetBP(t.bp)
		c.SetSI(t.si)
		c.SetDI(t.di)
		c.EIP = uint32(t.ip)
		c.SetPS(uint32(t.flags))
		c.loadLDT(t.ldt)
		c.loadCS(t.cs, 0)
		c.loadSS(t.ss)
		c.loadDataSeg(SegDS, t.ds)
		c.loadDataSeg(SegES, t.es)
	}

	c.SetNT(nesting)
}

// tssStackFor reads the privilege-level-N stack pointer out of the current
// TSS, used when a gate transfer raises CPL (§4.5 "inner stack switch").
func (c *CPU) tssStackFor(level int) (selector uint16, esp uint32) {
	if c.tr.Ext&extBig != 0 || c.tr.Acc&0x08 != 0 {
		t := readTSS386(c.bus, c.tr.Base)
		switch level {
		case 0:
			return uint16(t.ss0), t.esp0
		case 1:
			return uint16(t.ss1), t.esp1
		default:
			return uint16(t.ss2), t.esp2
		}
	}
	t := readTSS286(c.bus, c.tr.Base)
	switch level {
	case 0:
		return t.ss0, uint32(t.sp0)
	case 1:
		return t.ss1, uint32(t.sp1)
	default:
		return t.ss2, uint32(t.sp2)
	}
}
