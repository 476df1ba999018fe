package counter

import (
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// WriteVector persists the "vector" output format of spec.md §6: a dense
// w-bit vector over one partition's hash window, bit i set iff some k-mer
// hashed to partition*w+i, skipping counts entirely. hashes need not be
// sorted or deduplicated; out-of-window values are ignored defensively
// (callers are expected to only pass a partition's own hash-mode entries).
func WriteVector(path string, partition uint16, w uint64, hashes []uint64) (err error) {
	windowStart := uint64(partition) * w
	bits := make([]byte, (w+7)/8)
	for _, h := range hashes {
		if h < windowStart || h >= windowStart+w {
			continue
		}
		pos := h - windowStart
		bits[pos/8] |= 1 << (pos % 8)
	}

	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(ctx, path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	w2 := f.Writer(ctx)
	hdr := rundir.BitVectorFileHeader{PartitionID: partition, Bytes: uint64(len(bits)), NbBits: w}
	if err = hdr.Write(w2); err != nil {
		return err
	}
	_, err = w2.Write(bits)
	return err
}

// ReadVector reads back a vector file written by WriteVector.
func ReadVector(path string) (hdr rundir.BitVectorFileHeader, bits []byte, err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(ctx, path); err != nil {
		return hdr, nil, err
	}
	defer file.CloseAndReport(ctx, f, &err)
	r := f.Reader(ctx)
	if hdr, err = rundir.ReadBitVectorFileHeader(r); err != nil {
		return hdr, nil, err
	}
	bits = make([]byte, hdr.Bytes)
	_, err = io.ReadFull(r, bits)
	return hdr, bits, err
}
