// Package merger implements the per-partition merger of spec.md §4.6: an
// N-way merge across one partition's per-sample count streams, solidity
// filtering, and emission of count/pa/bf/bft/bfc matrix rows.
package merger

// Row is one merged matrix row: Key is the k-mer/hash this row covers
// (a kmer.Kmer64, kmer.Kmer128, or uint64 hash, matching whichever key
// type the partition's sample streams carry), and Values holds each
// sample's abundance at that key in sample-column order, post-solidity
// (a value of 0 means the sample either never had this key, or had it but
// failed the solidity predicate).
type Row struct {
	Key    interface{}
	Values []uint64
}

// KeyOrder supplies the total order and equality Row keys are merged and
// deduplicated by, letting Merge work identically over kmer.Codec
// keys (via CodecOrder) and raw uint64 hash keys (via HashOrder) without
// depending on kmer.Codec directly.
type KeyOrder struct {
	Less  func(a, b interface{}) bool
	Equal func(a, b interface{}) bool
}

// HashOrder orders raw uint64 hash keys (hash mode), where no kmer.Codec
// is involved.
var HashOrder = KeyOrder{
	Less:  func(a, b interface{}) bool { return a.(uint64) < b.(uint64) },
	Equal: func(a, b interface{}) bool { return a.(uint64) == b.(uint64) },
}

// codecOrderer is implemented by kmer.Codec; declared locally to avoid
// merger depending on the exact interface shape beyond what it needs.
type codecOrderer interface {
	Less(a, b interface{}) bool
	Equal(a, b interface{}) bool
}

// CodecOrder adapts a kmer.Codec (or anything exposing the same
// Less/Equal methods) to a KeyOrder, for kmer-mode merging.
func CodecOrder(c codecOrderer) KeyOrder {
	return KeyOrder{Less: c.Less, Equal: c.Equal}
}
