package x86

// Snapshot is the persisted-state layout of §6: every piece of state needed
// to resume execution bit-for-bit, independent of the Bus backing memory.
type Snapshot struct {
	Model Model
	PS    uint32

	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32
	EIP                uint32

	Segs [numSegs]SegShadow

	CR0, CR2, CR3     uint32
	DR                [8]uint32
	GDTBase, GDTLimit uint32
	IDTBase, IDTLimit uint32
	LDT               SegShadow
	TR                SegShadow

	CPL      int
	ProtMode bool

	NFault int

	ResultDst, ResultSrc, ResultArith, ResultType uint32
	FSubtract                                     bool

	Halted bool
	Cycles uint64
}

// Save captures a full Snapshot of the CPU's architectural and cached-flag
// state (§6 "Persisted state layout").
func (c *CPU) Save() Snapshot {
	ldt := SegShadow{Selector: c.ldtSelector, Base: c.ldtBase, Limit: c.ldtLimit}
	return Snapshot{
		Model: c.Model,
		PS:    c.PS(),
		EAX: c.EAX, EBX: c.EBX, ECX: c.ECX, EDX: c.EDX,
		ESI: c.ESI, EDI: c.EDI, EBP: c.EBP, ESP: c.ESP,
		EIP:  c.EIP,
		Segs: c.seg,
		CR0:  c.CR0, CR2: c.CR2, CR3: c.CR3,
		DR:       c.DR,
		GDTBase:  c.gdtBase, GDTLimit: c.gdtLimit,
		IDTBase:  c.idtBase, IDTLimit: c.idtLimit,
		LDT:      ldt,
		TR:       c.tr,
		CPL:      c.CPL,
		ProtMode: c.protMode,
		NFault:   c.nFault,
		ResultDst: c.resultDst, ResultSrc: c.resultSrc, ResultArith: c.resultArith,
		ResultType: c.resultType, FSubtract: c.fSubtract,
		Halted: c.Halted,
		Cycles: c.Cycles,
	}
}

// Restore loads a Snapshot previously produced by Save, replacing all
// architectural state. The bus/memory image is the caller's responsibility.
func (c *CPU) Restore(s Snapshot) {
	c.Model = s.Model
	c.EAX, c.EBX, c.ECX, c.EDX = s.EAX, s.EBX, s.ECX, s.EDX
	c.ESI, c.EDI, c.EBP, c.ESP = s.ESI, s.EDI, s.EBP, s.ESP
	c.EIP = s.EIP
	c.seg = s.Segs
	c.CR0, c.CR2, c.CR3 = s.CR0, s.CR2, s.CR3
	c.DR = s.DR
	c.gdtBase, c.gdtLimit = s.GDTBase, s.GDTLimit
	c.idtBase, c.idtLimit = s.IDTBase, s.IDTLimit
	c.ldtSelector, c.ldtBase, c.ldtLimit = s.LDT.Selector, s.LDT.Base, s.LDT.Limit
	c.tr = s.TR
	c.CPL = s.CPL
	c.protMode = s.ProtMode
	c.nFault = s.NFault
	c.resultDst, c.resultSrc, c.resultArith = s.ResultDst, s.ResultSrc, s.ResultArith
	c.resultType, c.fSubtract = s.ResultType, s.FSubtract
	c.Halted = s.Halted
	c.Cycles = s.Cycles
	c.Flags = (s.PS & c.Model.psDirect()) | c.Model.psSet()
}
