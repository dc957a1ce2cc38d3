// Package x86 implements the execution core of an Intel x86 CPU emulator,
// 8086/8088 through the early 80386: registers and flags, real-mode and
// protected-mode segmentation, instruction semantics, interrupts and faults,
// and descriptor/TSS loading. It does not model peripherals, the machine
// container, or the interactive debugger — those are external collaborators
// reached only through the Bus interface.
package x86

// Model identifies the emulated CPU generation. Behavior that differs by
// model (PUSH SP timing, PS reserved-bit masks, paging availability, the
// SGDT/SIDT sixth byte) is gated on this field rather than duplicated into
// per-model types, matching the teacher's single-struct-many-fields shape.
type Model int

const (
	Model8086 Model = iota
	Model8088
	Model80186
	Model80188
	Model80286
	Model80386
)

func (m Model) String() string {
	switch m {
	case Model8086:
		return "8086"
	case Model8088:
		return "8088"
	case Model80186:
		return "80186"
	case Model80188:
		return "80188"
	case Model80286:
		return "80286"
	case Model80386:
		return "80386"
	default:
		return "unknown"
	}
}

// Is32 reports whether the model natively supports 32-bit operand/address
// size extensions (0x66/0x67 prefixes, EAX-class registers, paging).
func (m Model) Is32() bool {
	return m == Model80386
}

// HasProtectedMode reports whether the model implements CR0.PE / descriptor
// tables at all. 8086/8088/80186/80188 are real-mode only.
func (m Model) HasProtectedMode() bool {
	return m == Model80286 || m == Model80386
}

// addressMask returns the linear address mask for the model: 20-bit on
// 8086/8088/80186/80188, 24-bit on 80286, 32-bit on 80386 (§6).
func (m Model) addressMask() uint32 {
	switch m {
	case Model80286:
		return 0x00FFFFFF
	case Model80386:
		return 0xFFFFFFFF
	default:
		return 0x000FFFFF
	}
}

// psDirect and psSet implement invariant (a) of §3: PS as externally read is
// the materialisation of cached flags plus directly-stored bits, masked by
// PS_DIRECT and OR'd with PS_SET. On the 8086/8088 the IOPL field and NT are
// not implemented in hardware and read back forced to 1; on 80286+ they are
// real, software-visible bits.
func (m Model) psDirect() uint32 {
	switch m {
	case Model80386:
		return 0x003F7FD5
	case Model80286:
		return 0x00007FD5
	default:
		return 0x00000FD5
	}
}

func (m Model) psSet() uint32 {
	switch m {
	case Model80286, Model80386:
		return flagBit1
	default:
		return flagBit1 | flagIOPL | flagNT
	}
}

// resetCSIP returns the architectural reset CS:IP pair (§6 control
// interface, resetRegs).
func (m Model) resetCSIP() (cs uint16, ip uint16) {
	if m == Model8086 || m == Model8088 {
		return 0xFFFF, 0x0000
	}
	return 0xF000, 0xFFF0
}
