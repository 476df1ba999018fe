package merger

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// writeKey serializes a Row key the same way counter.Writer does, so
// matrix output files share the kmer-or-hash key encoding of spec.md §6.
func writeKey(w io.Writer, key interface{}) error {
	switch k := key.(type) {
	case kmer.Kmer64:
		return binary.Write(w, binary.LittleEndian, uint64(k))
	case kmer.Kmer128:
		return binary.Write(w, binary.LittleEndian, [2]uint64{k.Hi, k.Lo})
	case uint64:
		return binary.Write(w, binary.LittleEndian, k)
	default:
		return fmt.Errorf("merger: unsupported key type %T", key)
	}
}

func keyWidth(key interface{}) uint8 {
	if _, ok := key.(kmer.Kmer128); ok {
		return 16
	}
	return 8
}

// readKey is writeKey's inverse, used by the matrix readers below and by
// package filtertool, which needs to merge-join an existing count-matrix
// file against a new sample's counter.Reader stream without depending on
// merger's row-processor internals.
func readKey(r io.Reader, keyW uint8, isHashes bool) (interface{}, error) {
	if keyW == 16 {
		var words [2]uint64
		if err := binary.Read(r, binary.LittleEndian, &words); err != nil {
			return nil, err
		}
		return kmer.Kmer128{Hi: words[0], Lo: words[1]}, nil
	}
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	if isHashes {
		return v, nil
	}
	return kmer.Kmer64(v), nil
}

// CountMatrixReader reads back a matrix file written by CountWriter: one
// (key, N fixed-width counts) row at a time, in ascending key order.
type CountMatrixReader struct {
	f      file.File
	r      io.Reader
	Header rundir.CountMatrixFileHeader
}

// OpenCountMatrix opens path and reads its header.
func OpenCountMatrix(path string) (cr *CountMatrixReader, err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	r := f.Reader(ctx)
	hdr, err := rundir.ReadCountMatrixFileHeader(r)
	if err != nil {
		file.CloseAndReport(ctx, f, &err)
		return nil, err
	}
	return &CountMatrixReader{f: f, r: r, Header: hdr}, nil
}

// Next returns the next row, or ok=false at end of stream.
func (cr *CountMatrixReader) Next() (row Row, ok bool, err error) {
	key, err := readKey(cr.r, cr.Header.KeyWidth, cr.Header.IsHashes)
	if err != nil {
		if err == io.EOF {
			return Row{}, false, nil
		}
		return Row{}, false, err
	}
	values := make([]uint64, cr.Header.NbCounts)
	for i := range values {
		v, err := readCountWidth(cr.r, int(cr.Header.CountWidth))
		if err != nil {
			return Row{}, false, err
		}
		values[i] = v
	}
	return Row{Key: key, Values: values}, true, nil
}

// Close releases the underlying file.
func (cr *CountMatrixReader) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), cr.f, &err)
	return nil
}

func readCountWidth(r io.Reader, width int) (uint64, error) {
	switch width {
	case 1:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case 2:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	default:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	}
}

// PAMatrixReader reads back a matrix file written by PAWriter: one (key,
// N-bit presence/absence vector) row at a time.
type PAMatrixReader struct {
	f      file.File
	r      io.Reader
	Header rundir.PAMatrixFileHeader
}

// OpenPAMatrix opens path and reads its header.
func OpenPAMatrix(path string) (pr *PAMatrixReader, err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	r := f.Reader(ctx)
	hdr, err := rundir.ReadPAMatrixFileHeader(r)
	if err != nil {
		file.CloseAndReport(ctx, f, &err)
		return nil, err
	}
	return &PAMatrixReader{f: f, r: r, Header: hdr}, nil
}

// Next returns the next row (Values holding 0/1 per sample), or ok=false at
// end of stream.
func (pr *PAMatrixReader) Next() (row Row, ok bool, err error) {
	key, err := readKey(pr.r, pr.Header.KeyWidth, pr.Header.IsHashes)
	if err != nil {
		if err == io.EOF {
			return Row{}, false, nil
		}
		return Row{}, false, err
	}
	buf := make([]byte, pr.Header.RowBytes)
	if _, err := io.ReadFull(pr.r, buf); err != nil {
		return Row{}, false, err
	}
	values := make([]uint64, pr.Header.BitsInUse)
	for i := range values {
		if buf[i/8]&(1<<(uint(i)%8)) != 0 {
			values[i] = 1
		}
	}
	return Row{Key: key, Values: values}, true, nil
}

// Close releases the underlying file.
func (pr *PAMatrixReader) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), pr.f, &err)
	return nil
}
