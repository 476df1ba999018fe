package minimizer

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestIsValidAAOnlyAsPrefix(t *testing.T) {
	// "AA.." (A=0) as a prefix is fine; AA anywhere else is not.
	size := 4
	aaPrefix := Mmer(0b00_00_01_10) // AA C T
	expect.True(t, IsValid(aaPrefix, size))

	aaMiddle := Mmer(0b01_00_00_10) // C AA T
	expect.False(t, IsValid(aaMiddle, size))
}

func TestCanonicalIsIdempotent(t *testing.T) {
	size := 5
	for v := Mmer(0); v < 64; v++ {
		c1, _ := Canonical(v, size)
		c2, _ := Canonical(c1, size)
		expect.EQ(t, c2, c1)
	}
}

func TestWindowTieBreakLeftmost(t *testing.T) {
	// Two equal canonical values at different positions: the earliest
	// position must remain the reported minimizer.
	w := NewWindow(3, 2, LexOrder{})
	vals := []Mmer{1, 1, 1, 2}
	var gotPos []int
	for _, v := range vals {
		if _, pos, _, ok := w.Push(v); ok {
			gotPos = append(gotPos, pos)
		}
	}
	// window size 3: first result at push#3 (index2), min among [1,1,1] at pos0
	expect.EQ(t, gotPos[0], 0)
	// next push slides to [1,1,2], front still pos1 (earliest remaining 1)
	expect.EQ(t, gotPos[1], 1)
}

func TestWindowSlidesMinimumCorrectly(t *testing.T) {
	w := NewWindow(3, 2, LexOrder{})
	vals := []Mmer{5, 3, 4, 1, 9}
	var mins []Mmer
	for _, v := range vals {
		if m, _, _, ok := w.Push(v); ok {
			mins = append(mins, m)
		}
	}
	expect.EQ(t, len(mins), 3)
	expect.EQ(t, mins[0], Mmer(3)) // min(5,3,4)
	expect.EQ(t, mins[1], Mmer(1)) // min(3,4,1)
	expect.EQ(t, mins[2], Mmer(1)) // min(4,1,9)
}

func TestFreqOrderRarestIsSmallest(t *testing.T) {
	counts := []uint64{100, 1, 50, 2}
	fo := NewFreqOrder(counts)
	expect.True(t, fo.Less(1, 3)) // count 1 < count 2
	expect.True(t, fo.Less(3, 2)) // count 2 < count 50
	expect.False(t, fo.Less(0, 2))
}
