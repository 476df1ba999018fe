// Package counter implements the per-partition counter: reconstructs
// k-mers (or their hash images) from a partition's super-k-mers, sorts
// them, collapses runs of equal keys into (key, saturated count) pairs,
// and routes low-abundance keys into the sample's histogram instead of the
// output stream.
package counter

import (
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/kmtricks/kmtricks-go/kmer"
	"v.io/x/lib/vlog"
)

// MaxSaturatedCount returns the largest value a count of the given byte
// width can hold; counts are clamped ("saturated") to this value rather
// than overflowing.
func MaxSaturatedCount(width int) uint64 {
	switch width {
	case 1:
		return 1<<8 - 1
	case 2:
		return 1<<16 - 1
	default:
		return 1<<32 - 1
	}
}

// Saturate clamps v to the representable maximum for the given count
// width.
func Saturate(v uint64, width int) uint64 {
	if max := MaxSaturatedCount(width); v > max {
		return max
	}
	return v
}

// Entry is one emitted (key, count) pair. Key is a kmer.Codec key
// (Kmer64/Kmer128) in k-mer mode, or a uint64 hash value in hash mode,
// boxed the same way Codec already boxes keys as interface{}.
type Entry struct {
	Key   interface{}
	Count uint64
}

// KxClasses mirrors partitioner.KxClasses without importing package
// partitioner, avoiding a dependency cycle (partitioner doesn't need
// anything from counter, but keeping this package's bucket grid
// independently named documents that the two are the same fixed shape by
// convention, not by shared code).
const KxClasses = 5

// KmerCounter reconstructs and sorts canonical k-mers bucketed by
// (radix, kx-class), grounded on spec.md §4.5's kmer-mode algorithm.
type KmerCounter struct {
	codec       kmer.Codec
	minAbundance uint64
	countWidth  int
	hist        *histogram.Histogram

	buckets [256][KxClasses][]interface{}
}

// NewKmerCounter builds a counter for one (sample, partition) using codec
// to canonicalize and order keys. hints, if non-nil, gives expected bucket
// sizes (e.g. from partitioner.Stats.DistinctSuperKmers) so buckets can be
// preallocated instead of growing by repeated append.
func NewKmerCounter(codec kmer.Codec, minAbundance uint64, countWidth int, hist *histogram.Histogram, hints *[256][KxClasses]uint64) *KmerCounter {
	c := &KmerCounter{codec: codec, minAbundance: minAbundance, countWidth: countWidth, hist: hist}
	if hints != nil {
		for r := 0; r < 256; r++ {
			for k := 0; k < KxClasses; k++ {
				if n := (*hints)[r][k]; n > 0 {
					c.buckets[r][k] = make([]interface{}, 0, n)
				}
			}
		}
	}
	return c
}

// AddSuperKmer reconstructs every k-mer in seq (length k+count-1) and
// buckets its canonical form by radix and kx-class, where kx-class is the
// length (capped at KxClasses) of the run of consecutive same-orientation
// k-mers this super-k-mer contributes.
func (c *KmerCounter) AddSuperKmer(seq string, k int) {
	count := len(seq) - k + 1
	if count < 1 {
		return
	}
	var kxStart int
	var kxLastFwd bool
	haveKx := false

	for i := 0; i < count; i++ {
		key, ok := c.codec.Encode(seq[i : i+k])
		if !ok {
			continue
		}
		canon := c.codec.Canonical(key)
		isFwd := c.codec.Equal(canon, key)
		if !haveKx {
			kxStart, kxLastFwd, haveKx = i, isFwd, true
		} else if isFwd != kxLastFwd {
			kxStart, kxLastFwd = i, isFwd
		}
		radix := c.codec.Radix(canon)
		kxLen := i - kxStart + 1
		cls := kxLen - 1
		if cls >= KxClasses {
			cls = KxClasses - 1
		}
		c.buckets[radix][cls] = append(c.buckets[radix][cls], canon)
	}
}

// bucketLeaf is one llrb.Comparable leaf over a single sorted bucket,
// mirroring sorter.mergeLeaf from cmd/bio-bam-sort/sorter/sort.go: it
// holds a cursor into its bucket and compares on the current key, with the
// bucket's (radix,kxClass) index breaking ties so equal keys from
// different buckets still merge deterministically.
type bucketLeaf struct {
	codec  kmer.Codec
	seq    int
	bucket []interface{}
	pos    int
}

func (l *bucketLeaf) key() interface{} { return l.bucket[l.pos] }

func (l *bucketLeaf) Compare(other llrb.Comparable) int {
	o := other.(*bucketLeaf)
	a, b := l.key(), o.key()
	switch {
	case l.codec.Less(a, b):
		return -1
	case l.codec.Less(b, a):
		return 1
	default:
		if l.seq == o.seq {
			return 0
		}
		if l.seq < o.seq {
			return -1
		}
		return 1
	}
}

// Finish sorts every non-empty bucket and N-way merges them via an llrb
// tree (the same merge shape as sorter.internalMergeShards), collapsing
// consecutive equal keys into a single (key, saturated count) entry. Keys
// whose count falls below minAbundance are folded into the histogram
// instead of being passed to emit.
func (c *KmerCounter) Finish(emit func(Entry)) {
	tree := llrb.Tree{}
	seq := 0
	total := 0
	for r := 0; r < 256; r++ {
		for k := 0; k < KxClasses; k++ {
			b := c.buckets[r][k]
			if len(b) == 0 {
				continue
			}
			sort.Slice(b, func(i, j int) bool { return c.codec.Less(b[i], b[j]) })
			tree.Insert(&bucketLeaf{codec: c.codec, seq: seq, bucket: b})
			seq++
			total += len(b)
		}
	}
	vlog.VI(1).Infof("counter: merging %d radix/kx buckets, %d k-mer instances", seq, total)

	var curKey interface{}
	var curCount uint64
	haveCur := false

	flush := func() {
		if !haveCur {
			return
		}
		if curCount >= c.minAbundance {
			emit(Entry{Key: curKey, Count: Saturate(curCount, c.countWidth)})
		} else if c.hist != nil {
			c.hist.Add(uint32(curCount))
		}
	}

	for tree.Len() > 0 {
		var top *bucketLeaf
		tree.Do(func(item llrb.Comparable) bool {
			top = item.(*bucketLeaf)
			return false
		})
		k := top.key()
		if haveCur && c.codec.Equal(curKey, k) {
			curCount++
		} else {
			flush()
			curKey, curCount, haveCur = k, 1, true
		}
		tree.DeleteMin()
		top.pos++
		if top.pos < len(top.bucket) {
			tree.Insert(top)
		}
	}
	flush()
}
