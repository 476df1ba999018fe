package skio

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestEncodeDecodeEntryRoundTrip(t *testing.T) {
	seq := "ACTGACTGACTG" // k=10, count=3
	enc, err := EncodeEntry(seq, 10)
	expect.NoError(t, err)
	expect.EQ(t, enc[0], byte(3))

	got, rest, ok := DecodeEntry(enc, 10)
	expect.True(t, ok)
	expect.EQ(t, got, seq)
	expect.EQ(t, len(rest), 0)
}

func TestEncodeEntryRejectsBadCount(t *testing.T) {
	_, err := EncodeEntry("AC", 10)
	expect.NotNil(t, err)
}

func TestEncodeEntryRejectsAmbiguousBase(t *testing.T) {
	_, err := EncodeEntry("ACNGACTGAC", 10)
	expect.NotNil(t, err)
}

func TestDecodeEntryDetectsShortBuffer(t *testing.T) {
	_, _, ok := DecodeEntry([]byte{5}, 10)
	expect.False(t, ok)
}

func TestMultipleEntriesConcatenate(t *testing.T) {
	a, err := EncodeEntry("ACTGACTGACTG", 10) // count=3
	expect.NoError(t, err)
	b, err := EncodeEntry("GGGGCCCC", 8) // count=1
	expect.NoError(t, err)
	buf := append(append([]byte{}, a...), b...)

	s1, rest, ok := DecodeEntry(buf, 10)
	expect.True(t, ok)
	expect.EQ(t, s1, "ACTGACTGACTG")
	s2, rest, ok := DecodeEntry(rest, 8)
	expect.True(t, ok)
	expect.EQ(t, s2, "GGGGCCCC")
	expect.EQ(t, len(rest), 0)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample0.part3.skm")
	k := 10

	w, err := Create(path, k, false)
	expect.NoError(t, err)
	seqs := []string{
		"ACTGACTGACTG",
		"GGGGCCCCAA",
		"TTTTTTTTTT",
	}
	for _, s := range seqs {
		expect.NoError(t, w.Append(s))
	}
	expect.NoError(t, w.Close())

	r, err := Open(path, k)
	expect.NoError(t, err)
	var got []string
	for {
		s, ok, err := r.Next()
		expect.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, s)
	}
	expect.NoError(t, r.Close())
	expect.EQ(t, len(got), len(seqs))
	for i, s := range seqs {
		expect.EQ(t, got[i], s)
	}
}

func TestWriterReaderRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample0.part3.skm.zst")
	k := 12

	w, err := Create(path, k, true)
	expect.NoError(t, err)
	expect.NoError(t, w.Append("ACTGACTGACTGA"))
	expect.NoError(t, w.Close())

	r, err := Open(path, k)
	expect.NoError(t, err)
	s, ok, err := r.Next()
	expect.NoError(t, err)
	expect.True(t, ok)
	expect.EQ(t, s, "ACTGACTGACTGA")
	_, ok, err = r.Next()
	expect.NoError(t, err)
	expect.False(t, ok)
	expect.NoError(t, r.Close())
}
