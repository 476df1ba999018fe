package kmer

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestRoundTrip64(t *testing.T) {
	for _, k := range []int{1, 4, 8, 21, 32} {
		c := NewCodec64(k)
		s := repeatPattern("ACGT", k)
		got := c.Decode(c.Encode(s))
		expect.EQ(t, got, s)
	}
}

func TestRoundTrip128(t *testing.T) {
	for _, k := range []int{33, 40, 63, 64} {
		c := NewCodec128(k)
		s := repeatPattern("ACGTGGCATTAC", k)
		got := c.Decode(c.Encode(s))
		expect.EQ(t, got, s)
	}
}

func TestCanonicalStability64(t *testing.T) {
	c := NewCodec64(5)
	for _, s := range []string{"ACGTA", "TTTTT", "AAAAA", "CGCGC", "GATCG"} {
		x := c.Encode(s)
		can := c.Canonical(x)
		rc := c.ReverseComplement(x)
		expect.EQ(t, c.Canonical(rc), can)
		expect.EQ(t, c.Canonical(can), can)
	}
}

func TestCanonicalStability128(t *testing.T) {
	c := NewCodec128(40)
	s := repeatPattern("ACGTGGCATTAC", 40)
	x := c.Encode(s)
	can := c.Canonical(x)
	rc := c.ReverseComplement(x)
	expect.True(t, c.Canonical(rc).Equal(can))
	expect.True(t, c.Canonical(can).Equal(can))
}

func TestPalindrome64(t *testing.T) {
	// ACGT reverse-complemented is ACGT again.
	c := NewCodec64(4)
	x := c.Encode("ACGT")
	expect.EQ(t, c.ReverseComplement(x), x)
}

func TestReverseComplementKnownValue(t *testing.T) {
	c := NewCodec64(3)
	x := c.Encode("AAC") // rc should be GTT
	expect.EQ(t, c.Decode(c.ReverseComplement(x)), "GTT")
}

func TestShiftInMatchesEncode(t *testing.T) {
	c := NewCodec64(4)
	seq := "ACGTACGT"
	var roll Kmer64
	for i := 0; i < len(seq); i++ {
		roll = c.ShiftIn(roll, baseOf[seq[i]])
		if i >= 3 {
			want := c.Encode(seq[i-3 : i+1])
			expect.EQ(t, roll, want)
		}
	}
}

func TestExtractMmer(t *testing.T) {
	c := NewCodec64(8)
	x := c.Encode("ACGTACGT")
	got := c.ExtractMmer(x, 2, 4)
	want := NewCodec64(4).Encode("GTAC")
	expect.EQ(t, got, uint32(want))
}

func repeatPattern(pattern string, n int) string {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = pattern[i%len(pattern)]
	}
	return string(b)
}
