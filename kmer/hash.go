package kmer

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
	"github.com/minio/highwayhash"
)

// Hasher64 is the width-independent hash boundary: both a fast
// xxhash-family hash and a byte-reversal hash live behind it so hash-mode
// counting and bloom windows can pick either without the rest of the
// pipeline caring which one is active.
type Hasher64 interface {
	// Hash64 hashes a Width64 packed k-mer.
	Hash64(v uint64) uint64
	// Hash128 hashes a Width128 packed k-mer given as (hi,lo) words.
	Hash128(hi, lo uint64) uint64
}

// FarmHasher is the fast, well-distributed general-purpose hash, grounded on
// fusion.hashKmer (fusion/kmer_index.go), which hashes a Kmer with
// farm.Hash64WithSeed. This is the hash used for hash-mode counting and the
// Bloom hash window, since it need not be stable across runs of the
// pipeline — only within one run.
type FarmHasher struct{}

func (FarmHasher) Hash64(v uint64) uint64 {
	return farm.Hash64WithSeed(nil, v)
}

func (FarmHasher) Hash128(hi, lo uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], hi)
	binary.LittleEndian.PutUint64(buf[8:16], lo)
	return farm.Hash64(buf[:])
}

// ReversalHasher is the byte-reversal hash needed for compatibility with
// existing run directories. It reuses the same revByteTable machinery as
// ReverseComplement, but without complementing, so that it is a pure
// deterministic function of the packed bit pattern with no dependency on
// any external hash library — required for byte-for-byte reproducibility
// of old run directories even if the farm/highwayhash dependencies change
// behavior upstream.
type ReversalHasher struct{}

func (ReversalHasher) Hash64(v uint64) uint64 {
	var out uint64
	for i := 0; i < 8; i++ {
		b := byte(v >> (uint(i) * 8))
		out = (out << 8) | uint64(revByteTable[b])
	}
	return mix64(out ^ v)
}

func (ReversalHasher) Hash128(hi, lo uint64) uint64 {
	h := ReversalHasher{}
	return mix64(h.Hash64(hi) ^ (h.Hash64(lo) * 0x9E3779B97F4A7C15))
}

// mix64 is a standard splitmix64 finalizer, applied after the byte reversal
// to spread entropy across all bits (a pure byte reversal alone leaves the
// low bits of the input as the high bits of the output, which would bias a
// modulo-P partition or modulo-w hash window).
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return x
}

// rowChecksumKey is the fixed highwayhash key ChecksumBytes uses,
// mirroring cmd/bio-pamtool/checksum.go's use of a single fixed key for
// content checksums rather than a per-call random one — determinism, not
// secrecy, is the goal here. No other package in this module calls
// ChecksumBytes.
var rowChecksumKey = make([]byte, highwayhash.Size)

// ChecksumBytes returns a content checksum of b using highwayhash, as
// fusion/postprocess.go's groupCandidatesByGenePair does for deduplication
// keys.
func ChecksumBytes(b []byte) [highwayhash.Size]byte {
	return highwayhash.Sum(b, rowChecksumKey)
}
