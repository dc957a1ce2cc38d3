package x86

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// VectorCase is one JSON single-step test record, shaped after the
// teacher's Tom Harte harness but generalized with an optional protected
// mode `sregs` block (base/limit/acc/ext) alongside the flat real-mode
// register state.
type VectorCase struct {
	Name    string       `json:"name"`
	Initial VectorState  `json:"initial"`
	Final   VectorState  `json:"final"`
	Cycles  int          `json:"cycles"`
}

type VectorRegs struct {
	AX, BX, CX, DX uint16
	SI, DI, BP, SP uint16
	IP             uint16
	CS, DS, ES, SS uint16
	Flags          uint16
}

type VectorSreg struct {
	Selector uint16 `json:"selector"`
	Base     uint32 `json:"base"`
	Limit    uint32 `json:"limit"`
	Acc      byte   `json:"acc"`
	Ext      byte   `json:"ext"`
}

type VectorState struct {
	Regs  VectorRegs            `json:"regs"`
	Sregs map[string]VectorSreg `json:"sregs"`
	RAM   [][2]uint32           `json:"ram"`
}

// LoadVectors reads every *.json file in dir and decodes it as a
// []VectorCase, concatenating all files' cases.
func LoadVectors(dir string) ([]VectorCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("vectors: read dir: %w", err)
	}
	var all []VectorCase
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("vectors: read %s: %w", e.Name(), err)
		}
		var cases []VectorCase
		if err := json.Unmarshal(data, &cases); err != nil {
			return nil, fmt.Errorf("vectors: decode %s: %w", e.Name(), err)
		}
		all = append(all, cases...)
	}
	return all, nil
}

// ApplyInitial sets the CPU and bus to a vector case's initial state.
func ApplyInitial(c *CPU, bus *FlatBus, st VectorState) {
	for i := range bus.Mem {
		bus.Mem[i] = 0
	}
	c.SetAX(st.Regs.AX)
	c.SetBX(st.Regs.BX)
	c.SetCX(st.Regs.CX)
	c.SetDX(st.Regs.DX)
	c.SetSI(st.Regs.SI)
	c.SetDI(st.Regs.DI)
	c.SetBP(st.Regs.BP)
	c.SetSP(st.Regs.SP)
	c.EIP = uint32(st.Regs.IP)
	c.seg[SegCS].fromReal(st.Regs.CS)
	c.seg[SegDS].fromReal(st.Regs.DS)
	c.seg[SegES].fromReal(st.Regs.ES)
	c.seg[SegSS].fromReal(st.Regs.SS)
	c.Flags = uint32(st.Regs.Flags)
	c.resultType = 0

	for name, sr := range st.Sregs {
		idx := sregIndex(name)
		if idx < 0 {
			continue
		}
		c.seg[idx] = SegShadow{Selector: sr.Selector, Base: sr.Base, Limit: sr.Limit, Acc: sr.Acc, Ext: sr.Ext, DPL: int(sr.Acc>>5) & 3, valid: true}
	}

	for _, entry := range st.RAM {
		addr, v := entry[0], byte(entry[1])
		if int(addr) < len(bus.Mem) {
			bus.Mem[addr] = v
		}
	}

	c.Halted = false
	c.Cycles = 0
}

func sregIndex(name string) int {
	switch name {
	case "es":
		return SegES
	case "cs":
		return SegCS
	case "ss":
		return SegSS
	case "ds":
		return SegDS
	case "fs":
		return SegFS
	case "gs":
		return SegGS
	default:
		return -1
	}
}

// VerifyFinal compares the CPU's register state against a vector case's
// expected final state, returning every mismatch found (empty = pass).
func VerifyFinal(c *CPU, expected VectorRegs) []string {
	var mismatches []string
	check := func(name string, got, want uint16) {
		if got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s: got 0x%04X, want 0x%04X", name, got, want))
		}
	}
	check("ax", c.AX(), expected.AX)
	check("bx", c.BX(), expected.BX)
	check("cx", c.CX(), expected.CX)
	check("dx", c.DX(), expected.DX)
	check("si", c.SI(), expected.SI)
	check("di", c.DI(), expected.DI)
	check("bp", c.BP(), expected.BP)
	check("sp", c.SP(), expected.SP)
	check("ip", c.IP(), expected.IP)
	check("flags", uint16(c.PS()), expected.Flags)
	return mismatches
}

// RunVectors executes every case in dir against a fresh 8088-model CPU and
// returns a pass/fail tally plus the first few failure descriptions,
// backing both vectors_test.go and the selftest CLI subcommand.
func RunVectors(dir string) (passed, failed int, failures []string, err error) {
	cases, err := LoadVectors(dir)
	if err != nil {
		return 0, 0, nil, err
	}
	bus := NewFlatBus(1024 * 1024)
	c := NewCPU(Model8088, bus)
	for _, tc := range cases {
		ApplyInitial(c, bus, tc.Initial)
		c.Step()
		mismatches := VerifyFinal(c, tc.Final.Regs)
		if len(mismatches) == 0 {
			passed++
			continue
		}
		failed++
		if len(failures) < 20 {
			failures = append(failures, fmt.Sprintf("%s: %v", tc.Name, mismatches))
		}
	}
	return passed, failed, failures, nil
}
