package x86

// Width identifies an operand width for both the ALU and the lazy flag
// cache. The three values double as the resultType width marker from §3:
// BYTE=0x80, WORD=0x8000, DWORD=0x80000000 — each is the mask of the
// operand's most significant bit, used directly by the flag formulas below.
type Width uint32

const (
	Width8  Width = 0x00000080
	Width16 Width = 0x00008000
	Width32 Width = 0x80000000
)

// Bytes returns the operand width in bytes.
func (w Width) Bytes() int {
	switch w {
	case Width8:
		return 1
	case Width16:
		return 2
	default:
		return 4
	}
}

// maxVal returns the all-ones mask for the width, e.g. 0xFF for Width8 —
// exactly the "(type-1)|type" term from the §3 ZF formula.
func (w Width) maxVal() uint32 { return (uint32(w) - 1) | uint32(w) }

// Direct processor-status bits (§3: TF,IF,DF,IOPL,NT,RF,VM,AC,VIF,VIP,ID are
// stored directly; CF,PF,AF,ZF,SF,OF are lazily cached, see below).
const (
	flagCF   uint32 = 1 << 0
	flagBit1 uint32 = 1 << 1
	flagPF   uint32 = 1 << 2
	flagAF   uint32 = 1 << 4
	flagZF   uint32 = 1 << 6
	flagSF   uint32 = 1 << 7
	flagTF   uint32 = 1 << 8
	flagIF   uint32 = 1 << 9
	flagDF   uint32 = 1 << 10
	flagOF   uint32 = 1 << 11
	flagIOPL uint32 = 3 << 12
	flagNT   uint32 = 1 << 14
	flagRF   uint32 = 1 << 16
	flagVM   uint32 = 1 << 17
	flagAC   uint32 = 1 << 18
	flagVIF  uint32 = 1 << 19
	flagVIP  uint32 = 1 << 20
	flagID   uint32 = 1 << 21
)

// Presence bits packed into the low 6 bits of resultType (§3: "a bitmask of
// which of {CF,PF,AF,ZF,SF,OF} are currently represented by the cached
// result"). These never collide with the width markers (bits 7/15/31).
const (
	presentCF uint32 = 1 << 0
	presentPF uint32 = 1 << 1
	presentAF uint32 = 1 << 2
	presentZF uint32 = 1 << 3
	presentSF uint32 = 1 << 4
	presentOF uint32 = 1 << 5
	presentAll = presentCF | presentPF | presentAF | presentZF | presentSF | presentOF
)

const widthBits = uint32(Width8) | uint32(Width16) | uint32(Width32)

// flagCache is the CPU-private lazy flag state from §3: four cache words
// (resultDst, resultSrc, resultArith, resultType) plus the fSubtract bit the
// design notes describe as "adjusting the cached values" for subtraction.
// It is embedded directly into CPU rather than boxed, since exactly one
// instance exists per CPU and it is mutated on essentially every ALU op.
type flagCache struct {
	resultDst   uint32
	resultSrc   uint32
	resultArith uint32
	resultType  uint32 // width bit | presentAll subset
	fSubtract   bool
}

func parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// flushFlag materialises a single cached flag (identified by its present*
// bit) from the cache into c.Flags directly. Called only for flags that are
// about to fall out of the cache, per the §9 design note: "compute and
// commit any not-yet-cached flag bit before overwriting the cache type,
// using a pre-shift mask derived from the old resultType."
func (c *CPU) flushFlag(bit uint32) {
	w := Width(c.resultType & widthBits)
	d, s, a, sub := c.resultDst, c.resultSrc, c.resultArith, c.fSubtract
	switch bit {
	case presentCF:
		c.setDirectFlag(flagCF, computeCF(w, d, s, sub))
	case presentPF:
		c.setDirectFlag(flagPF, parity(byte(a)))
	case presentAF:
		c.setDirectFlag(flagAF, computeAF(d, s, sub))
	case presentZF:
		c.setDirectFlag(flagZF, a&w.maxVal() == 0)
	case presentSF:
		c.setDirectFlag(flagSF, a&uint32(w) != 0)
	case presentOF:
		c.setDirectFlag(flagOF, computeOF(w, d, s, a, sub))
	}
}

func computeCF(w Width, d, s uint32, sub bool) bool {
	max := w.maxVal()
	if sub {
		return d&max < s&max
	}
	return (uint64(d&max) + uint64(s&max)) > uint64(max)
}

func computeAF(d, s uint32, sub bool) bool {
	if sub {
		return d&0xF < s&0xF
	}
	return (d&0xF)+(s&0xF) > 0xF
}

func computeOF(w Width, d, s, a uint32, sub bool) bool {
	if sub {
		return (d^s)&(d^a)&uint32(w) != 0
	}
	return (^(d ^ s)) & (d ^ a) & uint32(w) != 0
}

// setDirectFlag sets or clears a single directly-stored bit in c.Flags.
func (c *CPU) setDirectFlag(bit uint32, set bool) {
	if set {
		c.Flags |= bit
	} else {
		c.Flags &^= bit
	}
}

// beginCache flushes any cached flag not present in newPresent into PS; the
// caller then installs the fresh cache for the upcoming op. The cache
// installers call this before overwriting the cached operands, satisfying the
// "materialise before overwrite" invariant even when, e.g., an INC result
// won't cache CF.
func (c *CPU) beginCache(w Width, newPresent uint32) {
	if c.resultType != 0 {
		toFlush := (c.resultType &^ widthBits) &^ newPresent
		for bit := uint32(1); bit <= presentOF; bit <<= 1 {
			if toFlush&bit != 0 {
				c.flushFlag(bit)
			}
		}
	}
}

// cacheArith installs D,S,A into the lazy cache with the full arithmetic
// flag set {CF,PF,AF,ZF,SF,OF} represented, per §4.3's ADD/ADC/SUB/SBB/CMP
// contract.
func (c *CPU) cacheArith(w Width, d, s, a uint32, sub bool) {
	c.beginCache(w, presentAll)
	c.resultDst, c.resultSrc, c.resultArith = d, s, a
	c.resultType = uint32(w) | presentAll
	c.fSubtract = sub
}

// cacheArithNoCF installs D,S,A caching only {PF,AF,ZF,SF,OF} — used by
// INC/DEC's "NOTCF" contract (§4.3: "INC/DEC set NOTCF to signal that CF
// must be preserved from PS rather than recomputed"). Because beginCache
// flushes CF out of any outgoing cache before this call, PS's CF bit already
// holds the correct pre-op value and is left untouched.
func (c *CPU) cacheArithNoCF(w Width, d, s, a uint32, sub bool) {
	const present = presentPF | presentAF | presentZF | presentSF | presentOF
	c.beginCache(w, present)
	c.resultDst, c.resultSrc, c.resultArith = d, s, a
	c.resultType = uint32(w) | present
	c.fSubtract = sub
}

// cacheLogic installs a logical-operation result with cached flags
// {PF,AF,ZF,SF} plus explicit CF=0,OF=0 per §4.3 ("AF is undefined on real
// hardware but is computed consistently" — this engine always reports 0).
func (c *CPU) cacheLogic(w Width, a uint32) {
	const present = presentPF | presentAF | presentZF | presentSF
	c.beginCache(w, present|presentCF|presentOF)
	c.resultDst, c.resultSrc, c.resultArith = 0, 0, a
	c.resultType = uint32(w) | present
	c.fSubtract = false
	c.setDirectFlag(flagCF, false)
	c.setDirectFlag(flagOF, false)
}

// materializeAll flushes every currently cached flag into c.Flags and empties
// the cache. Called whenever PS is read in full (PS()) or whenever a
// non-ALU operation (shift, rotate, direct flag write, PS load) needs every
// flag bit to be authoritative in c.Flags before it proceeds.
func (c *CPU) materializeAll() {
	if c.resultType == 0 {
		return
	}
	present := c.resultType &^ widthBits
	for bit := uint32(1); bit <= presentOF; bit <<= 1 {
		if present&bit != 0 {
			c.flushFlag(bit)
		}
	}
	c.resultType = 0
}

// PS returns the full processor status word: invariant (a) of §3 — the
// materialisation of cached flags plus directly-stored bits, masked by the
// model's PS_DIRECT and OR'd with PS_SET.
func (c *CPU) PS() uint32 {
	c.materializeAll()
	return (c.Flags & c.Model.psDirect()) | c.Model.psSet()
}

// SetPS loads the full processor status word, discarding any pending lazy
// cache (every flag bit is now directly authoritative).
func (c *CPU) SetPS(v uint32) {
	c.resultType = 0
	c.Flags = (v & c.Model.psDirect()) | c.Model.psSet()
}

// Individual flag readers. Each materialises only the one bit it needs when
// that bit is still cached, leaving the rest of the cache (and hence the
// rest of c.Flags) untouched — cheaper than a full PS() round trip on the
// hot Jcc path.
func (c *CPU) flagBit(direct uint32, present uint32) bool {
	if c.resultType&present != 0 {
		c.flushFlag(present)
		c.resultType &^= present
	}
	return c.Flags&direct != 0
}

func (c *CPU) CF() bool { return c.flagBit(flagCF, presentCF) }
func (c *CPU) PF() bool { return c.flagBit(flagPF, presentPF) }
func (c *CPU) AF() bool { return c.flagBit(flagAF, presentAF) }
func (c *CPU) ZF() bool { return c.flagBit(flagZF, presentZF) }
func (c *CPU) SF() bool { return c.flagBit(flagSF, presentSF) }
func (c *CPU) OF() bool { return c.flagBit(flagOF, presentOF) }

func (c *CPU) TF() bool   { return c.Flags&flagTF != 0 }
func (c *CPU) IF() bool   { return c.Flags&flagIF != 0 }
func (c *CPU) DF() bool   { return c.Flags&flagDF != 0 }
func (c *CPU) NT() bool   { return c.Flags&flagNT != 0 }
func (c *CPU) RF() bool   { return c.Flags&flagRF != 0 }
func (c *CPU) VM() bool   { return c.Flags&flagVM != 0 }
func (c *CPU) IOPL() int  { return int((c.Flags & flagIOPL) >> 12) }

func (c *CPU) setFlag(bit uint32, v bool) {
	c.materializeAll()
	c.setDirectFlag(bit, v)
}

func (c *CPU) SetCF(v bool)   { c.setFlag(flagCF, v) }
func (c *CPU) SetTF(v bool)   { c.setFlag(flagTF, v) }
func (c *CPU) SetIF(v bool)   { c.setFlag(flagIF, v) }
func (c *CPU) SetDF(v bool)   { c.setFlag(flagDF, v) }
func (c *CPU) SetOF(v bool)   { c.setFlag(flagOF, v) }
func (c *CPU) SetNT(v bool)   { c.setFlag(flagNT, v) }
func (c *CPU) SetRF(v bool)   { c.setFlag(flagRF, v) }
func (c *CPU) SetVM(v bool)   { c.setFlag(flagVM, v) }
func (c *CPU) SetIOPL(v int) {
	c.materializeAll()
	c.Flags = (c.Flags &^ flagIOPL) | (uint32(v&3) << 12)
}
