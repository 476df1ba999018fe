package minimizer

import "sort"

// Comparator orders two m-mer candidates for minimizer selection. Less(a,b)
// reports whether a should be preferred over b as the minimizer.
type Comparator interface {
	Less(a, b Mmer) bool
}

// LexOrder is the Comparator for minimizer-type 0 (lexicographic): plain
// numeric order over the already-sentinel-substituted candidate values.
type LexOrder struct{}

func (LexOrder) Less(a, b Mmer) bool { return a < b }

// FreqOrder is the Comparator for minimizer-type 1 (frequency mode): a
// precomputed permutation of m-mer values by observed frequency, rarest
// ranked smallest. Ties are broken by m-mer value.
type FreqOrder struct {
	Rank []uint32 // Rank[v] = rank of m-mer value v, smaller = rarer
}

// NewFreqOrder builds a FreqOrder from per-value occurrence counts (counts[v]
// = observed frequency of m-mer value v); rarest values get the smallest
// rank.
func NewFreqOrder(counts []uint64) FreqOrder {
	n := len(counts)
	idx := make([]uint32, n)
	for i := range idx {
		idx[i] = uint32(i)
	}
	// Stable sort ascending by count, tie-broken by value (idx is already
	// in ascending value order, and sort.SliceStable preserves that for
	// equal counts).
	sortByCount(idx, counts)
	rank := make([]uint32, n)
	for r, v := range idx {
		rank[v] = uint32(r)
	}
	return FreqOrder{Rank: rank}
}

func sortByCount(idx []uint32, counts []uint64) {
	sort.SliceStable(idx, func(i, j int) bool {
		return counts[idx[i]] < counts[idx[j]]
	})
}

func (f FreqOrder) Less(a, b Mmer) bool {
	ra, rb := f.Rank[a], f.Rank[b]
	if ra != rb {
		return ra < rb
	}
	return a < b
}

// candidate is one position's canonicalized, validity-substituted m-mer
// value together with its position, used by the sliding window.
type candidate struct {
	pos int
	v   Mmer
	fwd bool
}

// Window computes, for each k-mer position in a read, the minimizer m-mer
// among the k-m+1 overlapping m-mer candidates, in amortized O(1) per base,
// using a monotonic deque to track the running canonical minimum m-mer.
type Window struct {
	size int // window length = k-m+1
	msize int
	cmp  Comparator
	deque []candidate // front = current minimum
	pos  int          // next position to push
}

// NewWindow creates a sliding window of the given length (k-m+1 positions)
// over m-mers of size msize, ordered by cmp.
func NewWindow(size, msize int, cmp Comparator) *Window {
	return &Window{size: size, msize: msize, cmp: cmp, deque: make([]candidate, 0, size)}
}

// valueFor canonicalizes raw and substitutes the sentinel if the canonical
// form is not a valid minimizer candidate.
func valueFor(raw Mmer, msize int) (Mmer, bool) {
	canon, fwd := Canonical(raw, msize)
	if !IsValid(canon, msize) {
		return SentinelMax(msize), fwd
	}
	return canon, fwd
}

// Push advances the window by one m-mer candidate (the m-mer ending at the
// next k-mer position) and returns the window's current minimum once the
// window is full (ok=false until then).
func (w *Window) Push(raw Mmer) (min Mmer, minPos int, fwd bool, ok bool) {
	v, f := valueFor(raw, w.msize)
	c := candidate{pos: w.pos, v: v, fwd: f}
	w.pos++

	// Evict from the back any candidate raw strictly beats; a tie leaves
	// the back candidate in place, since it is earlier and equally good,
	// which breaks ties in favor of the leftmost position.
	for len(w.deque) > 0 && w.cmp.Less(c.v, w.deque[len(w.deque)-1].v) {
		w.deque = w.deque[:len(w.deque)-1]
	}
	w.deque = append(w.deque, c)

	// Evict from the front any candidate that has fallen out of the window.
	for len(w.deque) > 0 && w.deque[0].pos <= c.pos-w.size {
		w.deque = w.deque[1:]
	}

	if c.pos < w.size-1 {
		return 0, 0, false, false
	}
	front := w.deque[0]
	return front.v, front.pos, front.fwd, true
}

// Reset clears the window for reuse on a new read/sub-sequence.
func (w *Window) Reset() {
	w.deque = w.deque[:0]
	w.pos = 0
}
