package counter

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// Writer persists the (key, count) stream Finish emits, in the on-disk
// format spec.md §6 assigns to "kmer" and "hash" output files: a
// rundir.KmerFileHeader followed by fixed-width (key, count) pairs, key
// width given by the header (8 bytes for Width64/hash keys, 16 for
// Width128) and count width by header.CountWidth.
type Writer struct {
	f      file.File
	w      io.Writer
	header rundir.KmerFileHeader
	keyLen int
}

// Create opens path for writing and emits header immediately, matching
// skio.Writer's "header up front, then a stream of fixed records" shape.
func Create(path string, header rundir.KmerFileHeader) (wr *Writer, err error) {
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
	keyLen := 8
	if header.KeyWidth == 16 {
		keyLen = 16
	}
	return &Writer{f: f, w: w, header: header, keyLen: keyLen}, nil
}

// WriteEntry appends one (key, count) record. Key must be a kmer.Kmer64,
// kmer.Kmer128, or uint64 (hash mode), matching header.KeyWidth/IsHashes.
func (cw *Writer) WriteEntry(e Entry) error {
	switch k := e.Key.(type) {
	case kmer.Kmer64:
		if cw.keyLen != 8 {
			return fmt.Errorf("counter: Kmer64 key but header KeyWidth=%d", cw.keyLen)
		}
		if err := binary.Write(cw.w, binary.LittleEndian, uint64(k)); err != nil {
			return err
		}
	case kmer.Kmer128:
		if cw.keyLen != 16 {
			return fmt.Errorf("counter: Kmer128 key but header KeyWidth=%d", cw.keyLen)
		}
		if err := binary.Write(cw.w, binary.LittleEndian, [2]uint64{k.Hi, k.Lo}); err != nil {
			return err
		}
	case uint64:
		if cw.keyLen != 8 {
			return fmt.Errorf("counter: hash key but header KeyWidth=%d", cw.keyLen)
		}
		if err := binary.Write(cw.w, binary.LittleEndian, k); err != nil {
			return err
		}
	default:
		return fmt.Errorf("counter: unsupported key type %T", e.Key)
	}
	return writeCount(cw.w, e.Count, int(cw.header.CountWidth))
}

// Close flushes and closes the underlying file.
func (cw *Writer) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), cw.f, &err)
	return nil
}

func writeCount(w io.Writer, count uint64, width int) error {
	switch width {
	case 1:
		return binary.Write(w, binary.LittleEndian, uint8(count))
	case 2:
		return binary.Write(w, binary.LittleEndian, uint16(count))
	default:
		return binary.Write(w, binary.LittleEndian, uint32(count))
	}
}

func readCount(r io.Reader, width int) (uint64, error) {
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

// Reader reads back a stream written by Writer.
type Reader struct {
	f      file.File
	r      io.Reader
	Header rundir.KmerFileHeader
	keyLen int
}

// Open reads the header and positions the reader at the first record.
func Open(path string) (rd *Reader, err error) {
	vctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(vctx, path); err != nil {
		return nil, err
	}
	r := f.Reader(vctx)
	hdr, err := rundir.ReadKmerFileHeader(r)
	if err != nil {
		file.CloseAndReport(vctx, f, &err)
		return nil, err
	}
	keyLen := 8
	if hdr.KeyWidth == 16 {
		keyLen = 16
	}
	return &Reader{f: f, r: r, Header: hdr, keyLen: keyLen}, nil
}

// Next returns the next (key, count) entry, or ok=false at end of stream.
func (cr *Reader) Next() (e Entry, ok bool, err error) {
	if cr.keyLen == 16 {
		var words [2]uint64
		if err = binary.Read(cr.r, binary.LittleEndian, &words); err != nil {
			if err == io.EOF {
				return Entry{}, false, nil
			}
			return Entry{}, false, err
		}
		e.Key = kmer.Kmer128{words[0], words[1]}
	} else {
		var v uint64
		if err = binary.Read(cr.r, binary.LittleEndian, &v); err != nil {
			if err == io.EOF {
				return Entry{}, false, nil
			}
			return Entry{}, false, err
		}
		if cr.Header.IsHashes {
			e.Key = v
		} else {
			e.Key = kmer.Kmer64(v)
		}
	}
	count, err := readCount(cr.r, int(cr.Header.CountWidth))
	if err != nil {
		return Entry{}, false, err
	}
	e.Count = count
	return e, true, nil
}

// Close closes the underlying file.
func (cr *Reader) Close() (err error) {
	defer file.CloseAndReport(vcontext.Background(), cr.f, &err)
	return nil
}
