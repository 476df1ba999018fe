// Package skio implements the partitioned, append-only super-k-mer store:
// one file per (sample, partition), holding the super-k-mers the
// partitioner routed there.
package skio

import (
	"fmt"

	"github.com/kmtricks/kmtricks-go/kmer"
)

// MaxCount is the largest run length a single super-k-mer entry can encode
// (the count byte is unsigned 8-bit).
const MaxCount = 255

// EncodeEntry packs a super-k-mer's full nucleotide run (length k+count-1)
// into its on-disk form: 1 byte count, then ceil((k+count-1)/4) bytes of
// 2-bit packed sequence.
func EncodeEntry(seq string, k int) ([]byte, error) {
	runLen := len(seq)
	count := runLen - k + 1
	if count < 1 || count > MaxCount {
		return nil, fmt.Errorf("skio: super-k-mer run length %d invalid for k=%d (count=%d)", runLen, k, count)
	}
	packed, ok := kmer.PackSequence(seq)
	if !ok {
		return nil, fmt.Errorf("skio: super-k-mer sequence contains a non-ACGT base")
	}
	out := make([]byte, 1+len(packed))
	out[0] = byte(count)
	copy(out[1:], packed)
	return out, nil
}

// DecodeEntry reads one entry from the front of buf and returns the
// unpacked sequence along with the remaining bytes of buf after it.
func DecodeEntry(buf []byte, k int) (seq string, rest []byte, ok bool) {
	if len(buf) < 1 {
		return "", buf, false
	}
	count := int(buf[0])
	runLen := k + count - 1
	packedLen := (runLen + 3) / 4
	if len(buf) < 1+packedLen {
		return "", buf, false
	}
	seq = kmer.UnpackSequence(buf[1:1+packedLen], runLen)
	return seq, buf[1+packedLen:], true
}
