package x86

import (
	"sync/atomic"

	"github.com/vertex86/x86core/x86/diag"
)

// Bus is the narrow interface the core requires of its memory/IO
// collaborator (§6 "external interfaces"). Everything outside this package —
// machine container, peripherals, disk/ROM loading — lives behind it.
type Bus interface {
	ReadByte(addr uint32) byte
	WriteByte(addr uint32, v byte)
	// ReadByteDirect bypasses any bus-side side effects (latches, MMIO
	// traps) for descriptor/TSS/page-table walks, which must not be
	// observable as ordinary instruction fetches or data accesses.
	ReadByteDirect(addr uint32) byte
	In(port uint16, width Width) uint32
	Out(port uint16, width Width, v uint32)
	Tick(cycles int)
}

// CPU holds the full architectural and micro-architectural state of one
// emulated core (§3 "Types"). It never retains host-side concerns --
// logging, configuration, peripheral wiring -- those live in the collaborators
// reached through Bus and in the cmd/x86core CLI layer.
type CPU struct {
	Model Model

	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32
	EIP                uint32

	seg [numSegs]SegShadow

	Flags uint32
	flagCache

	CPL      int
	protMode bool // CR0.PE mirror, gates every protected-mode check

	CR0, CR2, CR3 uint32
	DR            [8]uint32

	gdtBase, gdtLimit uint32
	idtBase, idtLimit uint32
	ldtSelector       uint16
	ldtBase, ldtLimit uint32
	tr                SegShadow // task register shadow (selector + TSS base/limit/type)

	Halted bool
	Cycles uint64

	irqPending atomic.Bool
	irqVector  atomic.Uint32
	nmiPending atomic.Bool

	noIntrAfterNext bool // MOV SS/POP SS inhibit-interrupts-for-one-instruction (§4.2)

	prefixSeg      int
	prefixRep      int
	prefixOpSize   bool
	prefixAddrSize bool
	prefixLock     bool
	opcode         byte
	modrm          byte
	modrmLoaded    bool
	sib            byte
	sibLoaded      bool

	bus Bus

	opLIP uint32 // linear CS:EIP at which the current instruction began fetching

	baseOps     [256]func(*CPU)
	extendedOps [256]func(*CPU)

	regs32 [8]*uint32

	nFault   int  // vector of the fault being delivered, or -1; for double/triple fault detection (§5)
	shutdown bool // triple fault -> CPU shutdown state

	log *diag.Logger
}

// SetLogger attaches a diagnostics logger; nil (the default) discards
// host-level diagnostics.
func (c *CPU) SetLogger(l *diag.Logger) { c.log = l }

// NewCPU builds a CPU of the given model, wired to bus, with its dispatch
// tables and register pointer array initialised. The returned CPU is in the
// post-reset state (Reset is called once here and again by callers that want
// to re-arm the core).
func NewCPU(model Model, bus Bus) *CPU {
	c := &CPU{Model: model, bus: bus}
	c.regs32 = [8]*uint32{&c.EAX, &c.ECX, &c.EDX, &c.EBX, &c.ESP, &c.EBP, &c.ESI, &c.EDI}
	c.initBaseOps()
	c.initExtendedOps()
	c.Reset()
	return c
}

// Reset restores architectural reset state (§6 control interface): GPRs
// zeroed, CS:IP at the model's reset vector, flags at their fixed reset
// value, descriptor tables empty, CPL 0, real mode.
func (c *CPU) Reset() {
	c.EAX, c.EBX, c.ECX, c.EDX = 0, 0, 0, 0
	c.ESI, c.EDI, c.EBP, c.ESP = 0, 0, 0, 0
	cs, ip := c.Model.resetCSIP()
	c.seg[SegCS].fromReal(cs)
	c.EIP = uint32(ip)
	for _, idx := range []int{SegDS, SegES, SegSS, SegFS, SegGS} {
		c.seg[idx].fromReal(0)
	}
	c.resultType = 0
	c.Flags = flagBit1 | c.Model.psSet()
	c.CPL = 0
	c.protMode = false
	c.CR0, c.CR2, c.CR3 = 0, 0, 0
	c.gdtBase, c.gdtLimit = 0, 0xFFFF
	c.idtBase, c.idtLimit = 0, 0xFFFF
	c.ldtSelector, c.ldtBase, c.ldtLimit = 0, 0, 0
	c.tr = SegShadow{}
	c.Halted = false
	c.Cycles = 0
	c.nFault = -1
	c.shutdown = false
	c.noIntrAfterNext = false
	c.irqPending.Store(false)
	c.nmiPending.Store(false)
	c.clearPrefixes()
}

func (c *CPU) clearPrefixes() {
	c.prefixSeg = -1
	c.prefixRep = 0
	c.prefixOpSize = false
	c.prefixAddrSize = false
	c.prefixLock = false
	c.modrmLoaded = false
	c.sibLoaded = false
}

// RaiseIRQ latches a maskable external interrupt request (§5). Safe to call
// from another goroutine (the peripheral side of Bus).
func (c *CPU) RaiseIRQ(vector byte) {
	c.irqVector.Store(uint32(vector))
	c.irqPending.Store(true)
}

// RaiseNMI latches a non-maskable interrupt request.
func (c *CPU) RaiseNMI() {
	c.nmiPending.Store(true)
}

// Running reports whether the core is outside a Halted/shutdown state and
// able to execute the next instruction.
func (c *CPU) Running() bool { return !c.Halted && !c.shutdown }

// Shutdown reports triple-fault shutdown state (§5).
func (c *CPU) Shutdown() bool { return c.shutdown }

// opWidth returns the effective operand width for the current instruction,
// folding in the 0x66 prefix per model.
func (c *CPU) opWidth() Width {
	w16 := !c.Model.Is32()
	if c.prefixOpSize {
		w16 = !w16
	}
	if w16 {
		return Width16
	}
	return Width32
}

// addrWidth32 reports whether effective-address computation should use
// 32-bit semantics, folding in the 0x67 prefix per model.
func (c *CPU) addrWidth32() bool {
	a32 := c.Model.Is32()
	if c.prefixAddrSize {
		a32 = !a32
	}
	return a32
}
