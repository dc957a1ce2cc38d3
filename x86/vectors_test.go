package x86

import (
	"flag"
	"path/filepath"
	"testing"
)

var vectorsDir = flag.String("vectors", filepath.Join("..", "testdata", "vectors"), "directory of single-step JSON test vectors")

// TestVectors_Suite runs every fixture under -vectors against a fresh 8088
// CPU, reporting every mismatch so a single bad opcode doesn't hide the rest.
func TestVectors_Suite(t *testing.T) {
	cases, err := LoadVectors(*vectorsDir)
	if err != nil {
		t.Skipf("no vectors found in %s: %v", *vectorsDir, err)
	}
	if len(cases) == 0 {
		t.Skip("vectors directory contains no cases")
	}

	bus := NewFlatBus(1024 * 1024)
	c := NewCPU(Model8088, bus)
	for _, tc := range cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			ApplyInitial(c, bus, tc.Initial)
			c.Step()
			if mismatches := VerifyFinal(c, tc.Final.Regs); len(mismatches) > 0 {
				t.Errorf("%s: %v", tc.Name, mismatches)
			}
		})
	}
}

func TestVectors_RunVectorsTallies(t *testing.T) {
	passed, failed, failures, err := RunVectors(*vectorsDir)
	if err != nil {
		t.Skipf("no vectors found in %s: %v", *vectorsDir, err)
	}
	if passed == 0 && failed == 0 {
		t.Skip("vectors directory contains no cases")
	}
	if failed > 0 {
		t.Errorf("%d/%d vectors failed: %v", failed, passed+failed, failures)
	}
}
