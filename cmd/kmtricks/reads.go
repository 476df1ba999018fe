package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/kmtricks/kmtricks-go/encoding/fasta"
	"github.com/kmtricks/kmtricks-go/encoding/fastq"
)

// forEachRead streams every read sequence in path, transparently
// decompressing gzip (compress.NewReaderPath) and dispatching on file
// extension, mirroring cmd/bio-fusion/main.go's readFASTQ: open via
// file.Open, layer compress.NewReaderPath over the raw reader, then feed
// the result to a format-specific scanner. FASTQ is streamed record by
// record; FASTA is read eagerly (encoding/fasta.New) since the package
// has no streaming reader, then walked sequence by sequence.
func forEachRead(ctx context.Context, path string, fn func(seq string)) error {
	f, err := file.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("kmtricks: opening %s: %w", path, err)
	}
	defer func() { _ = f.Close(ctx) }()

	var r io.Reader = f.Reader(ctx)
	if u := compress.NewReaderPath(r, f.Name()); u != nil {
		r = u
	}

	switch {
	case isFastaPath(f.Name()):
		return forEachFastaRead(r, fn)
	default:
		return forEachFastqRead(r, fn)
	}
}

// isFastaPath reports whether path's extension (ignoring a trailing .gz)
// names a FASTA file; anything else is treated as FASTQ, the more common
// format for kmtricks' read-file inputs.
func isFastaPath(path string) bool {
	p := strings.TrimSuffix(path, ".gz")
	return strings.HasSuffix(p, ".fasta") || strings.HasSuffix(p, ".fa") || strings.HasSuffix(p, ".fna")
}

func forEachFastqRead(r io.Reader, fn func(seq string)) error {
	sc := fastq.NewScanner(r, fastq.Seq)
	var rd fastq.Read
	for sc.Scan(&rd) {
		fn(rd.Seq)
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("kmtricks: reading fastq: %w", err)
	}
	return nil
}

func forEachFastaRead(r io.Reader, fn func(seq string)) error {
	fa, err := fasta.New(r)
	if err != nil {
		return fmt.Errorf("kmtricks: reading fasta: %w", err)
	}
	for _, name := range fa.SeqNames() {
		n, err := fa.Len(name)
		if err != nil {
			return err
		}
		seq, err := fa.Get(name, 0, n)
		if err != nil {
			return err
		}
		fn(seq)
	}
	return nil
}
