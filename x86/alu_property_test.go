package x86

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

// TestALU_ZFMatchesResultAcrossWidths is a §8-style quantified property:
// for every width and a spread of operand pairs, ZF must equal (result==0).
// The three widths are independent of each other, so they run concurrently
// via errgroup rather than a sequential sub-test loop.
func TestALU_ZFMatchesResultAcrossWidths(t *testing.T) {
	widths := []Width{Width8, Width16, Width32}
	var g errgroup.Group
	for _, w := range widths {
		w := w
		g.Go(func() error {
			c := newTestCPU()
			max := w.maxVal()
			samples := []uint32{0, 1, max, max / 2, max - 1}
			for _, d := range samples {
				for _, s := range samples {
					r := c.aluAdd(w, d, s)
					want := r&max == 0
					if c.ZF() != want {
						t.Errorf("width %v: ADD(0x%X,0x%X)=0x%X ZF=%v want %v", w, d, s, r, c.ZF(), want)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// TestALU_SFMatchesMSBAcrossWidths checks SF equals the result's MSB for
// every width, independently and concurrently.
func TestALU_SFMatchesMSBAcrossWidths(t *testing.T) {
	widths := []Width{Width8, Width16, Width32}
	var g errgroup.Group
	for _, w := range widths {
		w := w
		g.Go(func() error {
			c := newTestCPU()
			max := w.maxVal()
			samples := []uint32{0, 1, uint32(w), max}
			for _, d := range samples {
				for _, s := range samples {
					r := c.aluSub(w, d, s)
					want := r&uint32(w) != 0
					if c.SF() != want {
						t.Errorf("width %v: SUB(0x%X,0x%X)=0x%X SF=%v want %v", w, d, s, r, c.SF(), want)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
