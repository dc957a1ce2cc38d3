// Package diag wraps the standard log package for the core's host-level
// diagnostics. Architectural exceptions (faults/interrupts the guest
// program can see and handle via the IDT) are never logged here -- only
// host-level invariant violations the embedding machine's operator needs to
// see: bus contract violations, corrupted shadow state, a fault handler
// faulting past the triple-fault detector.
package diag

import (
	"io"
	"log"
	"os"
)

// Logger is a thin *log.Logger wrapper tagged with the reporting component
// (e.g. "cpu", "machinedesc", "cli"), mirroring the teacher's
// "X86: Undefined opcode 0x%02X at EIP=0x%08X" message texture.
type Logger struct {
	l *log.Logger
}

// New builds a Logger writing to os.Stderr by default.
func New(component string) *Logger {
	return &Logger{l: log.New(os.Stderr, component+": ", log.LstdFlags)}
}

// SetOutput redirects the logger, letting an embedding machine capture or
// silence core diagnostics.
func (lg *Logger) SetOutput(w io.Writer) { lg.l.SetOutput(w) }

// HostFault reports a category-(b) host-level invariant violation: the
// instruction's linear address, CPL, and model, plus a free-form reason.
func (lg *Logger) HostFault(reason string, opLIP uint32, cpl int, model string) {
	lg.l.Printf("%s at EIP=0x%08X CPL=%d model=%s", reason, opLIP, cpl, model)
}

func (lg *Logger) Printf(format string, args ...any) { lg.l.Printf(format, args...) }
