// Package bloom implements the Bloom-filter projection of spec.md §4.7:
// flipping per-partition bf/bft matrices (or direct per-partition "vector"
// files) into one concatenated Bloom filter per sample.
package bloom

import (
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// bitWriter accumulates bits into a byte slice at arbitrary (non-byte
// aligned) offsets, needed because each partition contributes w bits and
// w need not be a multiple of 8.
type bitWriter struct {
	bits   []byte
	cursor uint64 // next bit offset to write at
}

func newBitWriter(totalBits uint64) *bitWriter {
	return &bitWriter{bits: make([]byte, (totalBits+7)/8)}
}

func (bw *bitWriter) appendBit(set bool) {
	if set {
		bw.bits[bw.cursor/8] |= 1 << (bw.cursor % 8)
	}
	bw.cursor++
}

func (bw *bitWriter) bytes() []byte { return bw.bits }

// ProjectFromVectors concatenates P per-partition "vector" files (written
// by counter.WriteVector), in partition order, into one sample's Bloom
// filter of length P*w bits — spec.md §4.7's "alternative path [that]
// skips merging entirely".
func ProjectFromVectors(paths []string, w uint64) ([]byte, uint64, error) {
	total := uint64(len(paths)) * w
	bw := newBitWriter(total)
	for _, path := range paths {
		hdr, bits, err := readVectorFile(path)
		if err != nil {
			return nil, 0, err
		}
		if hdr.NbBits != w {
			return nil, 0, fmt.Errorf("bloom: partition %s has window width %d, expected %d", path, hdr.NbBits, w)
		}
		for i := uint64(0); i < w; i++ {
			bw.appendBit(bits[i/8]&(1<<(i%8)) != 0)
		}
	}
	return bw.bytes(), total, nil
}

// ProjectFromBFMatrix concatenates one sample's column out of P per-
// partition bf-mode matrices (written by merger.NewBFWriter), in partition
// order, into that sample's Bloom filter of length P*w bits.
func ProjectFromBFMatrix(paths []string, sampleIndex int, w uint64) ([]byte, uint64, error) {
	total := uint64(len(paths)) * w
	bw := newBitWriter(total)
	for _, path := range paths {
		hdr, bits, err := readBitMatrixFile(path)
		if err != nil {
			return nil, 0, err
		}
		if hdr.NbRowsPadded != w {
			return nil, 0, fmt.Errorf("bloom: partition %s has %d rows, expected window width %d", path, hdr.NbRowsPadded, w)
		}
		rb := hdr.RowBytes
		for pos := uint64(0); pos < w; pos++ {
			byteIdx := pos*rb + uint64(sampleIndex)/8
			bitIdx := uint64(sampleIndex) % 8
			bw.appendBit(bits[byteIdx]&(1<<bitIdx) != 0)
		}
	}
	return bw.bytes(), total, nil
}

// ProjectFromBFTMatrix is ProjectFromBFMatrix's analogue for bft-mode
// (transposed) matrices: rows are samples, columns are window positions.
func ProjectFromBFTMatrix(paths []string, sampleIndex int, w uint64) ([]byte, uint64, error) {
	total := uint64(len(paths)) * w
	bw := newBitWriter(total)
	for _, path := range paths {
		hdr, bits, err := readBitMatrixFile(path)
		if err != nil {
			return nil, 0, err
		}
		if hdr.NbColsPadded != w {
			return nil, 0, fmt.Errorf("bloom: partition %s has %d columns, expected window width %d", path, hdr.NbColsPadded, w)
		}
		rb := hdr.RowBytes
		rowStart := uint64(sampleIndex) * rb
		for pos := uint64(0); pos < w; pos++ {
			byteIdx := rowStart + pos/8
			bitIdx := pos % 8
			bw.appendBit(bits[byteIdx]&(1<<bitIdx) != 0)
		}
	}
	return bw.bytes(), total, nil
}

// Save persists a projected filter under rundir.BloomFileHeader.
func Save(path string, sampleID uint32, bits []byte, nbBits uint64) (err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(ctx, path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := f.Writer(ctx)
	hdr := rundir.BloomFileHeader{SampleID: sampleID, NbBits: nbBits, Bytes: uint64(len(bits))}
	if err = hdr.Write(w); err != nil {
		return err
	}
	_, err = w.Write(bits)
	return err
}

// ReadBloomFile reads back a sample's projected Bloom filter, previously
// written by Save.
func ReadBloomFile(path string) (hdr rundir.BloomFileHeader, bits []byte, err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(ctx, path); err != nil {
		return hdr, nil, err
	}
	defer file.CloseAndReport(ctx, f, &err)
	r := f.Reader(ctx)
	if hdr, err = rundir.ReadBloomFileHeader(r); err != nil {
		return hdr, nil, err
	}
	bits = make([]byte, hdr.Bytes)
	_, err = io.ReadFull(r, bits)
	return hdr, bits, err
}

func readVectorFile(path string) (hdr rundir.BitVectorFileHeader, bits []byte, err error) {
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

func readBitMatrixFile(path string) (hdr rundir.BitMatrixFileHeader, bits []byte, err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(ctx, path); err != nil {
		return hdr, nil, err
	}
	defer file.CloseAndReport(ctx, f, &err)
	r := f.Reader(ctx)
	if hdr, err = rundir.ReadBitMatrixFileHeader(r); err != nil {
		return hdr, nil, err
	}
	bits = make([]byte, hdr.NbRowsPadded*hdr.RowBytes)
	_, err = io.ReadFull(r, bits)
	return hdr, bits, err
}
