package repart

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("not a repartition file"), 0644)
}

func TestBuildLexicographicCoversAllValues(t *testing.T) {
	m := 4
	counts := make([]uint64, size(m))
	r := rand.New(rand.NewSource(1))
	for i := range counts {
		counts[i] = uint64(r.Intn(1000))
	}
	tbl := Build(counts, 8, m, Lexicographic)
	expect.EQ(t, tbl.Len(), size(m))
	for v := 0; v < tbl.Len(); v++ {
		p := tbl.Get(uint32(v))
		expect.True(t, p < tbl.P)
	}
}

func TestBuildLexicographicIsMonotonicByValue(t *testing.T) {
	// Contiguous-range assignment: partition ids must never decrease as v
	// increases.
	m := 3
	counts := make([]uint64, size(m))
	for i := range counts {
		counts[i] = 1
	}
	tbl := Build(counts, 4, m, Lexicographic)
	last := uint16(0)
	for v := 0; v < tbl.Len(); v++ {
		p := tbl.Get(uint32(v))
		expect.True(t, p >= last)
		last = p
	}
}

func TestBuildFrequencyBalancesLoad(t *testing.T) {
	m := 4
	counts := make([]uint64, size(m))
	r := rand.New(rand.NewSource(2))
	var total uint64
	for i := range counts {
		counts[i] = uint64(r.Intn(500) + 1)
		total += counts[i]
	}
	p := 4
	tbl := Build(counts, p, m, Frequency)
	load := make([]uint64, p)
	for v := 0; v < tbl.Len(); v++ {
		load[tbl.Get(uint32(v))] += counts[v]
	}
	avg := total / uint64(p)
	for _, l := range load {
		// No partition should be wildly unbalanced relative to the mean
		// under greedy least-loaded assignment.
		expect.True(t, l < avg*3)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	m := 4
	counts := make([]uint64, size(m))
	r := rand.New(rand.NewSource(3))
	for i := range counts {
		counts[i] = uint64(r.Intn(200))
	}
	a := Build(counts, 8, m, Frequency)
	b := Build(counts, 8, m, Frequency)
	for v := 0; v < a.Len(); v++ {
		expect.EQ(t, a.Get(uint32(v)), b.Get(uint32(v)))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := 3
	counts := make([]uint64, size(m))
	for i := range counts {
		counts[i] = uint64(i + 1)
	}
	orig := Build(counts, 4, m, Lexicographic)

	path := filepath.Join(dir, "repart.bin")
	expect.NoError(t, Save(path, "", orig))

	got, err := Load(path, "")
	expect.NoError(t, err)
	expect.EQ(t, got.P, orig.P)
	expect.EQ(t, got.M, orig.M)
	expect.EQ(t, got.Len(), orig.Len())
	for v := 0; v < orig.Len(); v++ {
		expect.EQ(t, got.Get(uint32(v)), orig.Get(uint32(v)))
	}
}

func TestSaveLoadRoundTripWithFreqOrder(t *testing.T) {
	dir := t.TempDir()
	m := 3
	counts := make([]uint64, size(m))
	r := rand.New(rand.NewSource(4))
	for i := range counts {
		counts[i] = uint64(r.Intn(100))
	}
	orig := Build(counts, 4, m, Frequency)

	path := filepath.Join(dir, "repart.bin")
	freqPath := filepath.Join(dir, "repart.freq.bin")
	expect.NoError(t, Save(path, freqPath, orig))

	got, err := Load(path, freqPath)
	expect.NoError(t, err)
	expect.EQ(t, got.Mode, Frequency)
	expect.EQ(t, len(got.FreqOrder), len(orig.FreqOrder))
	for i := range orig.FreqOrder {
		expect.EQ(t, got.FreqOrder[i], orig.FreqOrder[i])
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.bin")
	// Write a file too short/garbled to carry a valid trailer.
	expect.NoError(t, writeGarbage(path))
	_, err := Load(path, "")
	expect.NotNil(t, err)
}
