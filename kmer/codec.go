package kmer

// Codec is the width-independent boundary the rest of the pipeline programs
// against (partitioner, counter, merger) instead of depending on Kmer64 or
// Kmer128 directly.
//
// Keys flowing through Codec are opaque comparable/encodable values; callers
// use type assertions to Kmer64/Kmer128 only at the few points (sorting,
// bucketing) that need the concrete representation, matching how the rest
// of the codebase treats Width as an enum picked once per run.
type Codec interface {
	Width() Width
	K() int
	Encode(s string) (key interface{}, ok bool)
	Decode(key interface{}) string
	Canonical(key interface{}) interface{}
	ReverseComplement(key interface{}) interface{}
	Hash(key interface{}) uint64
	// ShiftIn/ShiftInReverse advance a rolling k-mer by one base, letting
	// package partitioner track a read's forward and reverse-complement
	// k-mer incrementally (amortized O(1) per base) without depending on
	// Kmer64/Kmer128 directly.
	ShiftIn(key interface{}, base uint8) interface{}
	ShiftInReverse(key interface{}, base uint8) interface{}
	// Radix returns the 8-bit prefix (first 4 bases) of a key, the bucket
	// index package counter sorts k-mers into before the N-way merge.
	Radix(key interface{}) uint8
	// Less gives the total order package counter and package merger sort
	// and N-way-merge keys by.
	Less(a, b interface{}) bool
	// Equal reports key equality, used to collapse runs of the same k-mer
	// during merge.
	Equal(a, b interface{}) bool
}

// codec64 adapts Codec64 to the Codec interface.
type codec64 struct {
	*Codec64
	hasher Hasher64
}

func (c *codec64) Width() Width { return Width64 }
func (c *codec64) K() int       { return c.Codec64.K }
func (c *codec64) Encode(s string) (interface{}, bool) {
	v := c.Codec64.Encode(s)
	return v, v != InvalidKmer64
}
func (c *codec64) Decode(key interface{}) string        { return c.Codec64.Decode(key.(Kmer64)) }
func (c *codec64) Canonical(key interface{}) interface{} { return c.Codec64.Canonical(key.(Kmer64)) }
func (c *codec64) ReverseComplement(key interface{}) interface{} {
	return c.Codec64.ReverseComplement(key.(Kmer64))
}
func (c *codec64) Hash(key interface{}) uint64           { return c.hasher.Hash64(uint64(key.(Kmer64))) }
func (c *codec64) ShiftIn(key interface{}, base uint8) interface{} {
	return c.Codec64.ShiftIn(key.(Kmer64), base)
}
func (c *codec64) ShiftInReverse(key interface{}, base uint8) interface{} {
	return c.Codec64.ShiftInReverse(key.(Kmer64), base)
}
func (c *codec64) Radix(key interface{}) uint8 {
	return uint8(c.Codec64.ExtractMmer(key.(Kmer64), 0, radixBases(c.Codec64.K)))
}
func (c *codec64) Less(a, b interface{}) bool  { return a.(Kmer64) < b.(Kmer64) }
func (c *codec64) Equal(a, b interface{}) bool { return a.(Kmer64) == b.(Kmer64) }

// codec128 adapts Codec128 to the Codec interface.
type codec128 struct {
	*Codec128
	hasher Hasher64
}

func (c *codec128) Width() Width { return Width128 }
func (c *codec128) K() int       { return c.Codec128.K }
func (c *codec128) Encode(s string) (interface{}, bool) {
	v := c.Codec128.Encode(s)
	invalid := Kmer128{^uint64(0), ^uint64(0)}
	return v, v != invalid
}
func (c *codec128) Decode(key interface{}) string { return c.Codec128.Decode(key.(Kmer128)) }
func (c *codec128) Canonical(key interface{}) interface{} {
	return c.Codec128.Canonical(key.(Kmer128))
}
func (c *codec128) ReverseComplement(key interface{}) interface{} {
	return c.Codec128.ReverseComplement(key.(Kmer128))
}
func (c *codec128) Hash(key interface{}) uint64 {
	k := key.(Kmer128)
	return c.hasher.Hash128(k.Hi, k.Lo)
}
func (c *codec128) ShiftIn(key interface{}, base uint8) interface{} {
	return c.Codec128.ShiftIn(key.(Kmer128), base)
}
func (c *codec128) ShiftInReverse(key interface{}, base uint8) interface{} {
	return c.Codec128.ShiftInReverse(key.(Kmer128), base)
}
func (c *codec128) Radix(key interface{}) uint8 {
	return uint8(c.Codec128.ExtractMmer(key.(Kmer128), 0, radixBases(c.Codec128.K)))
}
func (c *codec128) Less(a, b interface{}) bool  { return a.(Kmer128).Less(b.(Kmer128)) }
func (c *codec128) Equal(a, b interface{}) bool { return a.(Kmer128).Equal(b.(Kmer128)) }

// radixBases returns how many leading bases form the 8-bit radix prefix:
// 4 bases (8 bits) normally, or fewer if k itself is smaller than 4.
func radixBases(k int) int {
	if k < 4 {
		return k
	}
	return 4
}

// NewCodec builds the width-appropriate Codec for k-mer length k, using
// hasher for Codec.Hash.
func NewCodec(k int, hasher Hasher64) Codec {
	if WidthForK(k) == Width64 {
		return &codec64{Codec64: NewCodec64(k), hasher: hasher}
	}
	return &codec128{Codec128: NewCodec128(k), hasher: hasher}
}
