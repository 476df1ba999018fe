// Package partitioner slices reads into super-k-mers — maximal runs of
// consecutive k-mers sharing a minimizer — and routes each to the
// partition its minimizer is assigned in a repartition table.
package partitioner

import (
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/minimizer"
	"github.com/kmtricks/kmtricks-go/repart"
)

// KxClasses is the number of kx-size buckets stats are tracked in: 0..4,
// the (capped) length of a run of consecutive same-orientation k-mers
// within one super-k-mer, matching the 256 x 5 bucket grid the per-
// partition counter sorts into.
const KxClasses = 5

// SuperKmer is one emitted run: Seq is the full nucleotide run (length
// k+count-1, count = number of k-mers it covers), Partition is where the
// repartition table routes its minimizer, and Minimizer is that canonical
// m-mer value (needed by callers that persist per-minimizer groupings,
// e.g. the kff output format).
type SuperKmer struct {
	Seq       string
	Partition uint16
	Minimizer uint32
}

// Stats accumulates, per (partition, radix, kx-class), the number of
// distinct super-k-mers and the total k-mer count they cover. The counter
// uses these to size its per-bucket arrays ahead of sorting.
type Stats struct {
	P int

	// DistinctSuperKmers[partition][radix][kxClass]
	DistinctSuperKmers [][256][KxClasses]uint64
	// TotalKmers[partition][radix][kxClass]
	TotalKmers [][256][KxClasses]uint64
}

// NewStats allocates a zeroed Stats for p partitions.
func NewStats(p int) *Stats {
	return &Stats{
		P:                  p,
		DistinctSuperKmers: make([][256][KxClasses]uint64, p),
		TotalKmers:         make([][256][KxClasses]uint64, p),
	}
}

func (s *Stats) record(partition uint16, radix uint8, kxClass int, kmerCount uint64) {
	s.DistinctSuperKmers[partition][radix][kxClass]++
	s.TotalKmers[partition][radix][kxClass] += kmerCount
}

// Partitioner slices one sample's reads into super-k-mers using a fixed
// (k, m) shape, a minimizer Comparator, and a repartition table. An
// optional k-mer Codec enables per-super-k-mer stats (canonical
// orientation runs and the 8-bit radix of its k-mers); pass a nil Codec
// (and nil Stats) to skip stats collection entirely.
type Partitioner struct {
	k, m  int
	table *repart.Table
	codec kmer.Codec
	win   *minimizer.Window
	stats *Stats

	mmerMask uint32
}

// New builds a Partitioner for k-mer length k, m-mer length m, minimizer
// comparator cmp, and repartition table table. codec and stats may both be
// nil to skip stats collection; otherwise stats must not be shared across
// concurrent Partitioners without external synchronization.
func New(k, m int, cmp minimizer.Comparator, table *repart.Table, codec kmer.Codec, stats *Stats) *Partitioner {
	size := k - m + 1
	if size < 1 {
		panic("partitioner: k must be >= m")
	}
	var mask uint32
	if m == 16 {
		mask = ^uint32(0)
	} else {
		mask = (uint32(1) << uint(2*m)) - 1
	}
	return &Partitioner{
		k:        k,
		m:        m,
		table:    table,
		codec:    codec,
		win:      minimizer.NewWindow(size, m, cmp),
		stats:    stats,
		mmerMask: mask,
	}
}

// ProcessRead slices read into super-k-mers and invokes emit for each one,
// in left-to-right order. Reads (or ambiguous-base-delimited sub-runs)
// shorter than k are skipped, per the discard-short-reads edge case.
func (p *Partitioner) ProcessRead(read string, emit func(SuperKmer)) {
	offset := 0
	for offset < len(read) {
		end := kmer.NextAmbiguous(read, offset)
		p.processRun(read[offset:end], emit)
		offset = end + 1 // skip the ambiguous base itself
	}
}

// run holds the mutable state of one in-progress super-k-mer scan over a
// single unambiguous-base run.
type runState struct {
	runStart    int  // run-relative start of the current super-k-mer
	curMin      minimizer.Mmer
	curMinValid bool
	kmerCount   uint64 // k-mers covered by the current super-k-mer so far
	kxStart     int    // k-mer index where the current orientation run began
	kxLastFwd   bool
	haveKx      bool
}

// processRun handles one maximal run of unambiguous bases.
func (p *Partitioner) processRun(run string, emit func(SuperKmer)) {
	if len(run) < p.k {
		return
	}
	p.win.Reset()
	st := &runState{}
	var mmerRaw uint32

	closeSuperKmer := func(endExclusive int) {
		if endExclusive <= st.runStart {
			return
		}
		seq := run[st.runStart:endExclusive]
		var part uint16
		if st.curMinValid {
			part = p.table.Get(uint32(st.curMin))
		}
		emit(SuperKmer{Seq: seq, Partition: part, Minimizer: uint32(st.curMin)})
		if p.stats != nil && st.kmerCount > 0 {
			radix := p.radixOf(seq)
			lastKmerIdx := endExclusive - p.k
			kxLen := lastKmerIdx - st.kxStart + 1
			if kxLen < 1 {
				kxLen = 1
			}
			cls := kxLen - 1
			if cls >= KxClasses {
				cls = KxClasses - 1
			}
			p.stats.record(part, radix, cls, st.kmerCount)
		}
		st.kmerCount = 0
		st.haveKx = false
	}

	for i := 0; i < len(run); i++ {
		code, _ := kmer.BaseCode(run[i])
		mmerRaw = ((mmerRaw << 2) | uint32(code)) & p.mmerMask

		if i < p.m-1 {
			continue // not yet a full m-mer
		}
		minVal, _, _, ok := p.win.Push(minimizer.Mmer(mmerRaw))
		if !ok {
			continue
		}
		kPos := i - p.k + 1 // 0-based k-mer start index within run; this m-mer ends the window for the k-mer ending at i
		if kPos < 0 {
			continue
		}
		kmerEnd := kPos + p.k // == i+1

		if !st.curMinValid {
			st.curMin, st.curMinValid = minVal, true
			st.runStart = kPos
		} else if minVal != st.curMin {
			closeSuperKmer(kmerEnd - 1)
			st.runStart = kPos
			st.curMin = minVal
		}

		if p.stats != nil && p.codec != nil {
			isFwd := p.isForward(run[kPos:kmerEnd])
			if !st.haveKx {
				st.kxStart, st.kxLastFwd, st.haveKx = kPos, isFwd, true
			} else if isFwd != st.kxLastFwd {
				st.kxStart, st.kxLastFwd = kPos, isFwd
			}
			st.kmerCount++
		}
	}
	closeSuperKmer(len(run))
}

// radixOf returns the 8-bit canonical-prefix radix of the first k-mer in
// seq, used to bucket this super-k-mer's stats.
func (p *Partitioner) radixOf(seq string) uint8 {
	if p.codec == nil || len(seq) < p.k {
		return 0
	}
	key, ok := p.codec.Encode(seq[:p.k])
	if !ok {
		return 0
	}
	return p.codec.Radix(p.codec.Canonical(key))
}

// isForward reports whether s's forward encoding, rather than its reverse
// complement, is the canonical (lexicographically smaller) form.
func (p *Partitioner) isForward(s string) bool {
	key, ok := p.codec.Encode(s)
	if !ok {
		return true
	}
	canon := p.codec.Canonical(key)
	return equalKeys(canon, key)
}

func equalKeys(a, b interface{}) bool {
	switch av := a.(type) {
	case kmer.Kmer64:
		bv, ok := b.(kmer.Kmer64)
		return ok && av == bv
	case kmer.Kmer128:
		bv, ok := b.(kmer.Kmer128)
		return ok && av.Equal(bv)
	default:
		return false
	}
}
