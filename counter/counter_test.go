package counter

import (
	"sort"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/kmtricks/kmtricks-go/kmer"
)

func TestSaturateClamps(t *testing.T) {
	expect.EQ(t, Saturate(5, 1), uint64(5))
	expect.EQ(t, Saturate(1000, 1), uint64(255))
	expect.EQ(t, Saturate(1<<20, 2), uint64(1<<16-1))
}

func TestKmerCounterCollapsesDuplicateKmers(t *testing.T) {
	k := 8
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	c := NewKmerCounter(codec, 1, 1, nil, nil)

	// Two super-k-mers whose single k-mer is the same sequence.
	c.AddSuperKmer("ACGTACGT", k)
	c.AddSuperKmer("ACGTACGT", k)

	var entries []Entry
	c.Finish(func(e Entry) { entries = append(entries, e) })
	expect.EQ(t, len(entries), 1)
	expect.EQ(t, entries[0].Count, uint64(2))
}

func TestKmerCounterHonorsMinAbundance(t *testing.T) {
	k := 6
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	hist := histogram.New(1, uint8(k), 1, 20)
	c := NewKmerCounter(codec, 2, 1, hist, nil)

	c.AddSuperKmer("ACGTAC", k) // appears once only -> below min-abundance
	c.AddSuperKmer("GGGGCC", k)
	c.AddSuperKmer("GGGGCC", k) // appears twice -> kept

	var entries []Entry
	c.Finish(func(e Entry) { entries = append(entries, e) })
	expect.EQ(t, len(entries), 1)
	expect.GE(t, hist.UniqTotal(), uint64(1))
}

func TestKmerCounterEmitsSortedOrder(t *testing.T) {
	k := 8
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	c := NewKmerCounter(codec, 1, 1, nil, nil)

	for _, s := range []string{"TTTTTTTT", "AAAAAAAA", "CCCCCCCC", "GGGGGGGG"} {
		c.AddSuperKmer(s, k)
	}
	var entries []Entry
	c.Finish(func(e Entry) { entries = append(entries, e) })
	expect.True(t, sort.SliceIsSorted(entries, func(i, j int) bool {
		return codec.Less(entries[i].Key, entries[j].Key)
	}))
}

func TestVectorSortCollapsesRuns(t *testing.T) {
	hashes := []uint64{5, 3, 5, 5, 1, 3}
	var entries []Entry
	VectorSort(hashes, 1, 1, nil, func(e Entry) { entries = append(entries, e) })
	expect.EQ(t, len(entries), 3)
	expect.EQ(t, entries[0].Key, uint64(1))
	expect.EQ(t, entries[1].Key, uint64(3))
	expect.EQ(t, entries[1].Count, uint64(2))
	expect.EQ(t, entries[2].Key, uint64(5))
	expect.EQ(t, entries[2].Count, uint64(3))
}

func TestVectorSortHonorsMinAbundance(t *testing.T) {
	hist := histogram.New(1, 21, 1, 20)
	hashes := []uint64{1, 2, 2, 3, 3, 3}
	var entries []Entry
	VectorSort(hashes, 2, 1, hist, func(e Entry) { entries = append(entries, e) })
	expect.EQ(t, len(entries), 2) // 2 (count 2) and 3 (count 3) kept; 1 (count 1) dropped
	expect.EQ(t, hist.UniqTotal(), uint64(1))
}

func TestSpillerSpillsAndMerges(t *testing.T) {
	dir := t.TempDir()
	s := NewSpiller(4, dir)
	vals := []uint64{10, 20, 10, 30, 40, 20, 10, 50, 60, 70}
	for _, v := range vals {
		expect.NoError(t, s.Add(v))
	}
	var entries []Entry
	expect.NoError(t, s.Finish(1, 1, nil, func(e Entry) { entries = append(entries, e) }))

	counts := map[uint64]uint64{}
	for _, e := range entries {
		counts[e.Key.(uint64)] = e.Count
	}
	expect.EQ(t, counts[10], uint64(3))
	expect.EQ(t, counts[20], uint64(2))
	expect.EQ(t, counts[30], uint64(1))
	expect.True(t, sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Key.(uint64) < entries[j].Key.(uint64)
	}))
}

func TestSpillerHonorsMinAbundance(t *testing.T) {
	dir := t.TempDir()
	hist := histogram.New(2, 21, 1, 20)
	s := NewSpiller(1000, dir) // large budget: never spills
	for _, v := range []uint64{1, 1, 2} {
		expect.NoError(t, s.Add(v))
	}
	var entries []Entry
	expect.NoError(t, s.Finish(2, 1, hist, func(e Entry) { entries = append(entries, e) }))
	expect.EQ(t, len(entries), 1)
	expect.EQ(t, entries[0].Key, uint64(1))
	expect.EQ(t, hist.UniqTotal(), uint64(1))
}
