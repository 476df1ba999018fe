package skio

import (
	"context"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/vcontext"
)

// blockSize is the target size, pre-compression, of one accumulated block
// before it is flushed to the recordio stream, mirroring sortShardWriter's
// fixed per-block buffer.
const blockSize = 1 << 20

// Writer appends super-k-mer entries to one partition's file. One Writer
// must be used by exactly one goroutine per (sample, partition), per the
// one-writer-per-file ownership rule; cross-partition writers operate on
// distinct files and need no coordination between them.
type Writer struct {
	k    int
	mu   sync.Mutex
	buf  []byte
	rio  recordio.Writer
	f    file.File
	ctx  context.Context
}

// Create opens path for writing a new partition file. When compress is
// true, every flushed block is zstd-compressed by recordio's own
// transformer rather than hand-rolled per-block compression.
func Create(path string, k int, compress bool) (*Writer, error) {
	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	opts := recordio.WriterOpts{}
	if compress {
		opts.Transformers = []string{"zstd"}
	}
	w := &Writer{
		k:   k,
		buf: make([]byte, 0, blockSize),
		rio: recordio.NewWriter(f.Writer(ctx), opts),
		f:   f,
		ctx: ctx,
	}
	return w, nil
}

// Append encodes seq (length k+count-1, count in [1,MaxCount]) as one
// super-k-mer entry and appends it to the current block, flushing first if
// the entry would not fit within blockSize.
func (w *Writer) Append(seq string) error {
	enc, err := EncodeEntry(seq, w.k)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 && len(w.buf)+len(enc) > blockSize {
		if err := w.flushLocked(); err != nil {
			return err
		}
	}
	w.buf = append(w.buf, enc...)
	return nil
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	block := w.buf
	w.buf = make([]byte, 0, blockSize)
	w.rio.Append(block)
	w.rio.Flush()
	return nil
}

// Close flushes any buffered entries and closes the underlying file.
func (w *Writer) Close() (err error) {
	w.mu.Lock()
	if ferr := w.flushLocked(); ferr != nil && err == nil {
		err = ferr
	}
	w.mu.Unlock()
	if rerr := w.rio.Finish(); rerr != nil && err == nil {
		err = rerr
	}
	file.CloseAndReport(w.ctx, w.f, &err)
	return err
}

// Reader iterates a partition file's super-k-mers in write order. One
// Reader must be used by exactly one goroutine per (sample, partition).
type Reader struct {
	k   int
	rio recordio.Scanner
	f   file.File
	ctx context.Context
	cur []byte // unconsumed tail of the current block
}

// Open opens path for reading, previously written by a Writer with the
// same k.
func Open(path string, k int) (*Reader, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		k:   k,
		rio: recordio.NewScanner(f.Reader(ctx), recordio.ScannerOpts{}),
		f:   f,
		ctx: ctx,
	}, nil
}

// Next returns the next super-k-mer's full nucleotide run, or ok=false once
// the file is exhausted.
func (r *Reader) Next() (seq string, ok bool, err error) {
	for {
		if len(r.cur) > 0 {
			if s, next, decOK := DecodeEntry(r.cur, r.k); decOK {
				r.cur = next
				return s, true, nil
			}
		}
		if !r.rio.Scan() {
			return "", false, r.rio.Err()
		}
		r.cur = r.rio.Get().([]byte)
	}
}

// Close releases the underlying file.
func (r *Reader) Close() (err error) {
	if ferr := r.rio.Finish(); ferr != nil {
		err = ferr
	}
	file.CloseAndReport(r.ctx, r.f, &err)
	return err
}
