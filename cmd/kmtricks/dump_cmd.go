package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kmtricks/kmtricks-go/bloom"
	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/merger"
)

// dumpCount prints every (key, count) record of a kmer/hash count file,
// decoding kmer-mode keys back to nucleotide strings when width permits.
func dumpCount(path string, k int) error {
	r, err := counter.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	for {
		e, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if r.Header.IsHashes {
			fmt.Printf("%d\t%d\n", e.Key.(uint64), e.Count)
		} else {
			fmt.Printf("%s\t%d\n", codec.Decode(e.Key), e.Count)
		}
	}
}

// dumpKff prints every compacted super-k-mer record of a "kff" output
// file: the decoded nucleotide run followed by its per-position abundance
// stream.
func dumpKff(path string) error {
	r, err := counter.OpenKff(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		seq, counts, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fmt.Printf("%s\t%v\n", seq, counts)
	}
}

func dumpCountMatrix(path string, k int) error {
	r, err := merger.OpenCountMatrix(path)
	if err != nil {
		return err
	}
	defer r.Close()
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	for {
		row, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		key := row.Key
		if !r.Header.IsHashes {
			key = codec.Decode(row.Key)
		}
		fmt.Printf("%v\t%v\n", key, row.Values)
	}
}

func dumpPAMatrix(path string, k int) error {
	r, err := merger.OpenPAMatrix(path)
	if err != nil {
		return err
	}
	defer r.Close()
	codec := kmer.NewCodec(k, kmer.FarmHasher{})
	for {
		row, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		key := row.Key
		if !r.Header.IsHashes {
			key = codec.Decode(row.Key)
		}
		fmt.Printf("%v\t%v\n", key, row.Values)
	}
}

func dumpHist(path string) error {
	h, err := histogram.Load(path)
	if err != nil {
		return err
	}
	fmt.Printf("# sample=%d k=%d range=[%d,%d)\n", h.SampleID, h.K, h.Lower, h.Upper)
	fmt.Printf("oob_low\t%d\t%d\n", h.OOBLowUniq, h.OOBLowOcc)
	for v := h.Lower; v < h.Upper; v++ {
		fmt.Printf("%d\t%d\n", v, h.UniqAt(v))
	}
	fmt.Printf("oob_high\t%d\t%d\n", h.OOBHighUniq, h.OOBHighOcc)
	return nil
}

func dumpBloom(path string) error {
	hdr, bits, err := bloom.ReadBloomFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("# sample=%d bits=%d\n", hdr.SampleID, hdr.NbBits)
	set := uint64(0)
	for i := uint64(0); i < hdr.NbBits; i++ {
		if bits[i/8]&(1<<(i%8)) != 0 {
			set++
		}
	}
	fmt.Printf("bits_set\t%d\n", set)
	return nil
}

func runDumpCmd(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	var file, what string
	var k int
	fs.StringVar(&file, "file", "", "Path to the binary file to dump")
	fs.StringVar(&what, "what", "", "count|kff|matrix-count|matrix-pa|hist|bloom")
	fs.IntVar(&k, "kmer-size", 0, "K-mer length (required for count/matrix-count/matrix-pa, to decode keys)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if file == "" || what == "" {
		return fmt.Errorf("kmtricks dump: --file and --what are required")
	}
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("kmtricks dump: %w", err)
	}
	switch what {
	case "count":
		return dumpCount(file, k)
	case "kff":
		return dumpKff(file)
	case "matrix-count":
		return dumpCountMatrix(file, k)
	case "matrix-pa":
		return dumpPAMatrix(file, k)
	case "hist":
		return dumpHist(file)
	case "bloom":
		return dumpBloom(file)
	default:
		return fmt.Errorf("kmtricks dump: unknown --what %q", what)
	}
}
