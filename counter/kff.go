package counter

import (
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/rundir"
	"github.com/kmtricks/kmtricks-go/skio"
)

// KffWriter persists the "kff" output format of spec.md §4.5: rather than
// flattening a partition's super-k-mers into individual (key, count)
// records the way Writer does, it keeps each super-k-mer compacted (via
// skio's own entry codec) and appends one abundance value per k-mer
// position it spans, so a reader can walk minimizer-grouped runs without
// re-deriving them from individually keyed records.
type KffWriter struct {
	f      file.File
	w      io.Writer
	header rundir.KffFileHeader
}

// CreateKff opens path for writing and emits header immediately.
func CreateKff(path string, header rundir.KffFileHeader) (kw *KffWriter, err error) {
	vctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(vctx, path); err != nil {
		return nil, err
	}
	w := f.Writer(vctx)
	if err = header.Write(w); err != nil {
		file.CloseAndReport(vctx, f, &err)
		return nil, err
	}
	return &KffWriter{f: f, w: w, header: header}, nil
}

// WriteRecord appends one compacted super-k-mer (seq, length k+len(counts)-1)
// together with its per-position abundance stream; counts[i] is the final
// saturated count of the k-mer starting at position i of seq.
func (kw *KffWriter) WriteRecord(seq string, counts []uint64) error {
	k := int(kw.header.K)
	if len(seq)-k+1 != len(counts) {
		return fmt.Errorf("counter: kff record has %d k-mer positions but %d counts", len(seq)-k+1, len(counts))
	}
	enc, err := skio.EncodeEntry(seq, k)
	if err != nil {
		return err
	}
	if _, err := kw.w.Write(enc); err != nil {
		return err
	}
	for _, c := range counts {
		if err := writeCount(kw.w, c, int(kw.header.CountWidth)); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (kw *KffWriter) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), kw.f, &err)
	return nil
}

// KffReader reads back a stream written by KffWriter.
type KffReader struct {
	f      file.File
	r      io.Reader
	Header rundir.KffFileHeader
}

// OpenKff reads the header and positions the reader at the first record.
func OpenKff(path string) (kr *KffReader, err error) {
	vctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(vctx, path); err != nil {
		return nil, err
	}
	r := f.Reader(vctx)
	hdr, err := rundir.ReadKffFileHeader(r)
	if err != nil {
		file.CloseAndReport(vctx, f, &err)
		return nil, err
	}
	return &KffReader{f: f, r: r, Header: hdr}, nil
}

// Next returns the next compacted super-k-mer and its abundance stream, or
// ok=false at end of stream. Each returned count slice is freshly allocated.
func (kr *KffReader) Next() (seq string, counts []uint64, ok bool, err error) {
	k := int(kr.Header.K)
	var countByte [1]byte
	if _, err = io.ReadFull(kr.r, countByte[:]); err != nil {
		if err == io.EOF {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}
	run := int(countByte[0])
	runLen := k + run - 1
	packedLen := (runLen + 3) / 4
	packed := make([]byte, packedLen)
	if _, err = io.ReadFull(kr.r, packed); err != nil {
		return "", nil, false, err
	}
	rec := append(countByte[:], packed...)
	seq, _, decOK := skio.DecodeEntry(rec, k)
	if !decOK {
		return "", nil, false, fmt.Errorf("counter: corrupt kff record")
	}
	counts = make([]uint64, run)
	for i := range counts {
		if counts[i], err = readCount(kr.r, int(kr.Header.CountWidth)); err != nil {
			return "", nil, false, err
		}
	}
	return seq, counts, true, nil
}

// Close closes the underlying file.
func (kr *KffReader) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), kr.f, &err)
	return nil
}
