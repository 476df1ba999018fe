package merger

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// RowProcessor is spec.md §6's "process(partition, key, per_sample_counts)"
// plugin contract, given a real Go shape: the merger calls Process once
// per surviving row (after solidity filtering) and Close once the
// partition's merge is done. A build tagged with an external plugin could
// satisfy this via the standard library's plugin.Open; this package's own
// count/pa/bf/bft/bfc writers below are themselves RowProcessors, used by
// default when no external one is registered, so the contract is real and
// exercised without requiring actual `.so` loading machinery.
type RowProcessor interface {
	Process(row Row) error
	Close() error
}

// Matrix type discriminants, stored in the matrix file headers.
const (
	MatrixCount uint8 = iota
	MatrixPA
	MatrixBF
	MatrixBFT
	MatrixBFC
)

// CountWriter emits spec.md §4.6 "count" mode: each row as (key, N
// fixed-width counts).
type CountWriter struct {
	f          file.File
	w          io.Writer
	countWidth int
}

// NewCountWriter opens path and writes a CountMatrixFileHeader up front.
func NewCountWriter(path string, partition uint16, k uint8, keyW uint8, countWidth int, nSamples int, isHashes bool) (*CountWriter, error) {
	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	w := f.Writer(ctx)
	hdr := rundir.CountMatrixFileHeader{
		KmerFileHeader: rundir.KmerFileHeader{
			KeyWidth: keyW, CountWidth: uint8(countWidth), PartitionID: partition, K: k, IsHashes: isHashes,
		},
		MatrixType: MatrixCount,
		NbCounts:   uint32(nSamples),
	}
	if err := hdr.Write(w); err != nil {
		file.CloseAndReport(ctx, f, &err)
		return nil, err
	}
	return &CountWriter{f: f, w: w, countWidth: countWidth}, nil
}

func (cw *CountWriter) Process(row Row) error {
	if err := writeKey(cw.w, row.Key); err != nil {
		return err
	}
	for _, v := range row.Values {
		sat := counter.Saturate(v, cw.countWidth)
		switch cw.countWidth {
		case 1:
			if err := binary.Write(cw.w, binary.LittleEndian, uint8(sat)); err != nil {
				return err
			}
		case 2:
			if err := binary.Write(cw.w, binary.LittleEndian, uint16(sat)); err != nil {
				return err
			}
		default:
			if err := binary.Write(cw.w, binary.LittleEndian, uint32(sat)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cw *CountWriter) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), cw.f, &err)
	return nil
}

// PAWriter emits spec.md §4.6 "pa" mode: each row as (key, N-bit
// presence/absence vector).
type PAWriter struct {
	f file.File
	w io.Writer
	n int
}

// NewPAWriter opens path and writes a PAMatrixFileHeader up front.
func NewPAWriter(path string, partition uint16, k uint8, keyW uint8, nSamples int, isHashes bool) (*PAWriter, error) {
	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	w := f.Writer(ctx)
	hdr := rundir.PAMatrixFileHeader{
		KmerFileHeader: rundir.KmerFileHeader{KeyWidth: keyW, PartitionID: partition, K: k, IsHashes: isHashes},
		BitsInUse:      uint32(nSamples),
		RowBytes:       uint32(rowBytes(uint64(nSamples))),
	}
	if err := hdr.Write(w); err != nil {
		file.CloseAndReport(ctx, f, &err)
		return nil, err
	}
	return &PAWriter{f: f, w: w, n: nSamples}, nil
}

func (pw *PAWriter) Process(row Row) error {
	if err := writeKey(pw.w, row.Key); err != nil {
		return err
	}
	bv := newBitVector(uint64(pw.n))
	for i, v := range row.Values {
		if v > 0 {
			bv.set(uint64(i))
		}
	}
	_, err := pw.w.Write(bv.bytes())
	return err
}

func (pw *PAWriter) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), pw.f, &err)
	return nil
}

// bfWriter is shared by bf and bft: a dense matrix over a partition's hash
// window, built up in memory as rows arrive (out-of-window keys are
// skipped: every hash-mode key lands in exactly one partition's window by
// construction) and flushed at Close.
type bfWriter struct {
	path        string
	partition   uint16
	windowStart uint64
	w           uint64 // window width
	n           int    // sample count
	transposed  bool
	bits        bitVector
}

func newBFWriter(path string, partition uint16, w uint64, n int, transposed bool) *bfWriter {
	var nbits uint64
	if transposed {
		nbits = uint64(n) * rowBytes(w) * 8
	} else {
		nbits = w * rowBytes(uint64(n)) * 8
	}
	return &bfWriter{
		path: path, partition: partition, windowStart: uint64(partition) * w, w: w, n: n,
		transposed: transposed, bits: newBitVector(nbits),
	}
}

// NewBFWriter builds the "bf" dense bit-matrix row processor: rows are
// window positions, columns are samples.
func NewBFWriter(path string, partition uint16, w uint64, n int) RowProcessor {
	return newBFWriter(path, partition, w, n, false)
}

// NewBFTWriter builds the "bft" transposed form: rows are samples, columns
// are window positions.
func NewBFTWriter(path string, partition uint16, w uint64, n int) RowProcessor {
	return newBFWriter(path, partition, w, n, true)
}

func (b *bfWriter) Process(row Row) error {
	hash, ok := row.Key.(uint64)
	if !ok {
		return fmt.Errorf("merger: bf/bft mode requires hash keys, got %T", row.Key)
	}
	if hash < b.windowStart || hash >= b.windowStart+b.w {
		return nil
	}
	pos := hash - b.windowStart
	if b.transposed {
		rb := rowBytes(b.w)
		for i, v := range row.Values {
			if v > 0 {
				b.bits.set(uint64(i)*rb*8 + pos)
			}
		}
	} else {
		rb := rowBytes(uint64(b.n))
		for i, v := range row.Values {
			if v > 0 {
				b.bits.set(pos*rb*8 + uint64(i))
			}
		}
	}
	return nil
}

func (b *bfWriter) Close() (err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(ctx, b.path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := f.Writer(ctx)

	mt := MatrixBF
	rows, cols, rb := b.w, uint64(b.n), rowBytes(uint64(b.n))
	if b.transposed {
		mt = MatrixBFT
		rows, cols, rb = uint64(b.n), b.w, rowBytes(b.w)
	}
	hdr := rundir.BitMatrixFileHeader{
		MatrixType: mt, PartitionID: b.partition,
		NbRowsPadded: rows, NbColsPadded: cols, RowBytes: rb,
	}
	if err = hdr.Write(w); err != nil {
		return err
	}
	_, err = w.Write(b.bits.bytes())
	return err
}

// bfcWriter implements spec.md §4.6's "bfc" counting-Bloom mode: one cell
// per (window position, sample), each cell holding the saturated count
// clamped to BitWidth bits. spec.md itself flags this path as only
// partially specified ("unclear whether bfc is meant to be accepted for
// kmer:...:* combinations" — resolved as hash-mode-only in DESIGN.md); this
// repo stores each cell as one byte holding the value masked to BitWidth
// bits rather than packing multiple cells per byte, trading some space for
// a format simple enough to be unambiguous given the spec's own admitted
// gap.
type bfcWriter struct {
	path        string
	partition   uint16
	windowStart uint64
	w           uint64
	n           int
	bitWidth    int
	cells       []byte
}

// NewBFCWriter builds the "bfc" row processor.
func NewBFCWriter(path string, partition uint16, w uint64, n int, bitWidth int) RowProcessor {
	return &bfcWriter{
		path: path, partition: partition, windowStart: uint64(partition) * w, w: w, n: n,
		bitWidth: bitWidth, cells: make([]byte, w*uint64(n)),
	}
}

func (b *bfcWriter) Process(row Row) error {
	hash, ok := row.Key.(uint64)
	if !ok {
		return fmt.Errorf("merger: bfc mode requires hash keys, got %T", row.Key)
	}
	if hash < b.windowStart || hash >= b.windowStart+b.w {
		return nil
	}
	pos := hash - b.windowStart
	mask := uint64(1)<<uint(b.bitWidth) - 1
	for i, v := range row.Values {
		if v == 0 {
			continue
		}
		if v > mask {
			v = mask
		}
		b.cells[pos*uint64(b.n)+uint64(i)] = byte(v)
	}
	return nil
}

func (b *bfcWriter) Close() (err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(ctx, b.path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := f.Writer(ctx)
	hdr := rundir.BitMatrixFileHeader{
		MatrixType: MatrixBFC, PartitionID: b.partition,
		NbRowsPadded: b.w, NbColsPadded: uint64(b.n), RowBytes: uint64(b.n),
	}
	if err = hdr.Write(w); err != nil {
		return err
	}
	_, err = w.Write(b.cells)
	return err
}
