package x86

// Interrupt/exception vectors (§4.6). Numbers are Intel's fixed assignment;
// names follow the fault classes the design notes use (DIV_ERR, GP_FAULT, ...).
const (
	VecDIVErr       = 0x00
	VecDebug        = 0x01
	VecNMI          = 0x02
	VecBreakpoint   = 0x03
	VecOverflow     = 0x04
	VecBoundErr     = 0x05
	VecUD           = 0x06
	VecNM           = 0x07
	VecDF           = 0x08
	VecCoprocSeg    = 0x09 // reserved on 386+, carried for 286 compatibility
	VecTS           = 0x0A
	VecNP           = 0x0B
	VecSS           = 0x0C
	VecGP           = 0x0D
	VecPF           = 0x0E
	VecMF           = 0x10
)

// Error-code bit layout (§4.6): bit0 EXT, bit1 IDT, bit2 LDT, bits3-15 index.
const (
	errEXT = 1 << 0
	errIDT = 1 << 1
	errLDT = 1 << 2
)

// Fault is the internal control-flow signal an opcode handler returns to
// request fault/exception dispatch. It is never surfaced to a Bus or CLI
// caller as a Go error value -- dispatchFault consumes it and drives the IDT
// dispatch machinery; only a resulting shutdown reaches the host, as the
// *HostError that StepCPU returns.
type Fault struct {
	Vector    int
	HasCode   bool
	Code      uint32
	restartIP uint32 // opLIP: where to rewind EIP for a restartable fault
}

func (c *CPU) makeFault(vector int, hasCode bool, code uint32) *Fault {
	return &Fault{Vector: vector, HasCode: hasCode, Code: code, restartIP: c.opLIP}
}

func (c *CPU) faultGP(selectorOrZero uint16) *Fault {
	return c.makeFault(VecGP, true, uint32(selectorOrZero&^3))
}

func (c *CPU) faultNP(selectorOrZero uint16) *Fault {
	return c.makeFault(VecNP, true, uint32(selectorOrZero&^3))
}

func (c *CPU) faultSS(selectorOrZero uint16) *Fault {
	return c.makeFault(VecSS, true, uint32(selectorOrZero&^3))
}

func (c *CPU) faultTS(selectorOrZero uint16) *Fault {
	return c.makeFault(VecTS, true, uint32(selectorOrZero&^3))
}

func (c *CPU) faultUD() *Fault { return c.makeFault(VecUD, false, 0) }

func (c *CPU) faultNM() *Fault { return c.makeFault(VecNM, false, 0) }

func (c *CPU) faultDE() *Fault { return c.makeFault(VecDIVErr, false, 0) }

func (c *CPU) faultBR() *Fault { return c.makeFault(VecBoundErr, false, 0) }

func (c *CPU) faultPF(code uint32) *Fault {
	return c.makeFault(VecPF, true, code)
}

// idtVectorAddr computes the IDT slot address for vector n: 8 bytes per
// entry in protected mode (gate descriptors), 4 bytes per entry
// (segment:offset) in real mode (§4.5 "INT n / INTO / INT3").
func (c *CPU) idtVectorAddr(vector int) uint32 {
	if c.protMode && c.Model.HasProtectedMode() {
		return c.idtBase + uint32(vector)*8
	}
	return c.idtBase + uint32(vector)*4
}

// dispatchFault drives one fault/interrupt through the IDT, implementing
// §4.6's nFault bookkeeping: double-fault synthesis when a fault is already
// in flight, triple-fault shutdown when a double fault cannot itself be
// delivered.
func (c *CPU) dispatchFault(f *Fault) {
	if c.nFault >= 0 {
		if c.nFault == VecDF {
			// Already delivering the double-fault handler itself: any
			// further fault here (e.g. its own exception-frame push also
			// hitting the same broken stack) is the triple-fault case,
			// regardless of what this new fault's own vector happens to be.
			c.shutdown = true
			c.Halted = true
			if c.log != nil {
				c.log.HostFault("triple fault: shutdown", f.restartIP, c.CPL, c.Model.String())
			}
			return
		}
		f = &Fault{Vector: VecDF, HasCode: true, Code: 0, restartIP: f.restartIP}
	}
	c.nFault = f.Vector
	c.EIP = f.restartIP - c.seg[SegCS].Base
	c.invokeGate(f.Vector, f.HasCode, f.Code, true)
}

// deliverIRQ is the hardware-interrupt path through INT n: no DPL check and
// no error code.
func (c *CPU) deliverIRQ(vector byte) {
	c.invokeGate(int(vector), false, 0, true)
}

// invokeGate performs the common tail of §4.5's INT n description: real-mode
// (offset,segment) far call semantics, or protected-mode gate load/classify/
// invoke, shared by software INT n, hardware IRQ delivery, and fault dispatch.
func (c *CPU) invokeGate(vector int, forceErrCode bool, errCode uint32, external bool) {
	if !c.protMode || !c.Model.HasProtectedMode() {
		addr := c.idtVectorAddr(vector)
		offset := uint32(c.bus.ReadByteDirect(addr)) | uint32(c.bus.ReadByteDirect(addr+1))<<8
		segment := uint16(c.bus.ReadByteDirect(addr+2)) | uint16(c.bus.ReadByteDirect(addr+3))<<8
		if f := c.pushWord(uint16(c.PS())); f != nil {
			c.dispatchFault(f)
			return
		}
		if f := c.pushWord(c.getSeg(SegCS)); f != nil {
			c.dispatchFault(f)
			return
		}
		if f := c.pushWord(uint16(c.EIP)); f != nil {
			c.dispatchFault(f)
			return
		}
		c.SetIF(false)
		c.SetTF(false)
		c.loadSegReal(SegCS, segment)
		c.EIP = uint32(offset)
		return
	}

	base, limit := c.idtBase, c.idtLimit
	index := uint32(vector) * 8
	if index+7 > limit {
		c.dispatchFault(c.makeFault(VecGP, true, uint32(vector)*8+2|errIDT))
		return
	}
	var raw [8]byte
	for i := range raw {
		raw[i] = c.bus.ReadByteDirect(base + index + uint32(i))
	}
	gate := DecodeDescriptor(raw)

	if !external && !forceErrCode {
		// software INT n: DPL >= CPL check (hardware IRQs and CPU-raised
		// faults bypass this per §4.5).
		if gate.DPL() < c.CPL {
			c.dispatchFault(c.makeFault(VecGP, true, uint32(vector)*8+2|errIDT))
			return
		}
	}
	if !gate.Present() {
		c.dispatchFault(c.makeFault(VecNP, true, uint32(vector)*8+2|errIDT))
		return
	}

	if gate.IsTaskGate() {
		c.switchTask(gate.GateSelector(), true)
		if forceErrCode {
			if f := c.pushWord(uint16(errCode)); f != nil {
				c.dispatchFault(f)
			}
		}
		return
	}

	target := gate.GateSelector()
	offset := gate.GateOffset()
	oldCPL, oldCS := c.CPL, uint32(c.getSeg(SegCS))
	targetDesc, targetLinear, ok := c.fetchDescriptor(target)
	if !ok || !targetDesc.IsCode() {
		c.dispatchFault(c.faultGP(target))
		return
	}
	newCPL, ff := c.loadCSViaGate(target, targetDesc, targetLinear, oldCPL)
	if ff != nil {
		c.dispatchFault(ff)
		return
	}
	if newCPL < oldCPL {
		oldSS, oldESP := c.getSeg(SegSS), c.ESP
		newSS, newESP := c.tssStackFor(newCPL)
		if ff := c.loadSS(newSS); ff != nil {
			c.dispatchFault(ff)
			return
		}
		c.ESP = newESP
		if f := c.pushDwordOrWord(gate.Gate32(), uint32(oldSS)); f != nil {
			c.dispatchFault(f)
			return
		}
		if f := c.pushDwordOrWord(gate.Gate32(), oldESP); f != nil {
			c.dispatchFault(f)
			return
		}
	}
	if f := c.pushDwordOrWord(gate.Gate32(), c.PS()); f != nil {
		c.dispatchFault(f)
		return
	}
	if f := c.pushDwordOrWord(gate.Gate32(), oldCS); f != nil {
		c.dispatchFault(f)
		return
	}
	if f := c.pushDwordOrWord(gate.Gate32(), c.EIP); f != nil {
		c.dispatchFault(f)
		return
	}
	if forceErrCode {
		if f := c.pushDwordOrWord(gate.Gate32(), errCode); f != nil {
			c.dispatchFault(f)
			return
		}
	}
	if gate.IsIntGate() {
		c.SetIF(false)
	}
	c.SetTF(false)
	c.SetNT(false)
	c.EIP = offset
}

func (c *CPU) pushDwordOrWord(is32 bool, v uint32) *Fault {
	if is32 {
		return c.pushDword(v)
	}
	return c.pushWord(uint16(v))
}
