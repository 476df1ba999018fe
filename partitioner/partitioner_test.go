package partitioner

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/minimizer"
	"github.com/kmtricks/kmtricks-go/repart"
)

func identityTable(p, m int) *repart.Table {
	t := repart.NewTable(p, m, repart.Lexicographic)
	for v := 0; v < t.Len(); v++ {
		t.Set(uint32(v), uint16(v%p))
	}
	return t
}

func TestProcessReadCoversEveryKmer(t *testing.T) {
	k, m, p := 10, 5, 4
	table := identityTable(p, m)
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	pt := New(k, m, minimizer.LexOrder{}, table, codec, NewStats(p))

	read := "ACGTACGTACGTACGTACGTACGT" // len 24, k-mer count = 15
	var total int
	pt.ProcessRead(read, func(sk SuperKmer) {
		count := len(sk.Seq) - k + 1
		expect.GE(t, count, 1)
		total += count
	})
	expect.EQ(t, total, len(read)-k+1)
}

func TestProcessReadConcatenationReconstructsRead(t *testing.T) {
	k, m, p := 8, 4, 4
	table := identityTable(p, m)
	pt := New(k, m, minimizer.LexOrder{}, table, nil, nil)

	read := "ACGTACGTTTTTGGGGCCCCAAAA"
	var reconstructed string
	var first = true
	pt.ProcessRead(read, func(sk SuperKmer) {
		if first {
			reconstructed = sk.Seq
			first = false
			return
		}
		// Each subsequent super-k-mer overlaps the previous one by k-1
		// bases (its first k-mer starts one base after the previous one's
		// last k-mer), so appending only its new suffix reconstructs the
		// original read.
		overlap := k - 1
		reconstructed += sk.Seq[overlap:]
	})
	expect.EQ(t, reconstructed, read)
}

func TestProcessReadSkipsShortReads(t *testing.T) {
	k, m, p := 20, 8, 4
	table := identityTable(p, m)
	pt := New(k, m, minimizer.LexOrder{}, table, nil, nil)

	var calls int
	pt.ProcessRead("ACGTACGT", func(sk SuperKmer) { calls++ })
	expect.EQ(t, calls, 0)
}

func TestProcessReadSplitsAtAmbiguousBases(t *testing.T) {
	k, m, p := 6, 3, 4
	table := identityTable(p, m)
	pt := New(k, m, minimizer.LexOrder{}, table, nil, nil)

	var seqs []string
	pt.ProcessRead("ACGTACNACGTGG", func(sk SuperKmer) { seqs = append(seqs, sk.Seq) })
	for _, s := range seqs {
		for i := 0; i < len(s); i++ {
			expect.True(t, kmer.IsValidBase(s[i]))
		}
	}
}

func TestProcessReadExactlyKBases(t *testing.T) {
	k, m, p := 10, 5, 4
	table := identityTable(p, m)
	pt := New(k, m, minimizer.LexOrder{}, table, nil, nil)

	var calls int
	var seq string
	pt.ProcessRead("ACGTACGTAC", func(sk SuperKmer) {
		calls++
		seq = sk.Seq
	})
	expect.EQ(t, calls, 1)
	expect.EQ(t, seq, "ACGTACGTAC")
}

func TestStatsAccumulateAcrossSuperKmers(t *testing.T) {
	k, m, p := 8, 4, 4
	table := identityTable(p, m)
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	stats := NewStats(p)
	pt := New(k, m, minimizer.LexOrder{}, table, codec, stats)

	pt.ProcessRead("ACGTACGTTTTTGGGGCCCCAAAAACGTACGTTTTTGGGG", func(SuperKmer) {})

	var totalKmers uint64
	for part := 0; part < p; part++ {
		for radix := 0; radix < 256; radix++ {
			for cls := 0; cls < KxClasses; cls++ {
				totalKmers += stats.TotalKmers[part][radix][cls]
			}
		}
	}
	expect.GE(t, totalKmers, uint64(1))
}
