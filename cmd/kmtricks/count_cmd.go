package main

import (
	"flag"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/rundir"
	"github.com/kmtricks/kmtricks-go/skio"
)

// histLower/histUpper bound the in-band abundance histogram range this
// command tracks; abundances outside fold into the out-of-band totals.
const (
	histLower = 1
	histUpper = 256
)

// countWidthBytes is the on-disk count width in bytes, the same for every
// saturating abundance cap; 4 bytes covers every hard-min/soft-min value
// this implementation accepts (spec.md §3 lists 8/16/32-bit widths as the
// choice, so this repo fixes 32-bit, the widest and simplest to reason
// about uniformly across kmer/hash modes).
const countWidthBytes = 4

// doCountKmer implements spec.md §4.5's k-mer mode counter for one
// (sample, partition): reconstruct canonical k-mers from the partition's
// super-k-mers, bucket/sort/merge them via KmerCounter, and emit
// (kmer, saturated count) honoring hard-min, routing the rest to hist.
func doCountKmer(runDir string, sample rundir.Sample, partition int, k int, codec kmer.Codec, hardMin uint64, hist *histogram.Histogram) error {
	skPath := superKmerPath(runDir, sample.ID, partition)
	rd, err := skio.Open(skPath, k)
	if err != nil {
		return errors.E(err, fmt.Sprintf("count: opening super-kmers for sample %s partition %d", sample.ID, partition))
	}

	kc := counter.NewKmerCounter(codec, hardMin, countWidthBytes, hist, nil)
	for {
		seq, ok, err := rd.Next()
		if err != nil {
			rd.Close()
			return errors.E(err, fmt.Sprintf("count: reading super-kmers for sample %s partition %d", sample.ID, partition))
		}
		if !ok {
			break
		}
		kc.AddSuperKmer(seq, k)
	}
	if err := rd.Close(); err != nil {
		return err
	}

	outPath := countPath(runDir, sample.ID, partition)
	if err := ensureDir(outPath); err != nil {
		return err
	}
	keyW := uint8(8)
	if codec.Width() == kmer.Width128 {
		keyW = 16
	}
	w, err := counter.Create(outPath, rundir.KmerFileHeader{
		KeyWidth: keyW, CountWidth: countWidthBytes, SampleID: 0, PartitionID: uint16(partition),
		K: uint8(k), IsHashes: false,
	})
	if err != nil {
		return err
	}
	var writeErr error
	kc.Finish(func(e counter.Entry) {
		if writeErr == nil {
			writeErr = w.WriteEntry(e)
		}
	})
	if writeErr != nil {
		w.Close()
		return writeErr
	}
	return w.Close()
}

// doCountKff implements spec.md §4.5's "kff" output format: count every
// k-mer exactly as doCountKmer does (so hard-min filtering and the
// histogram behave identically), then re-walk the partition's
// super-k-mers a second time, attaching each k-mer position's final
// saturated count (0 if it fell below hard-min and was folded into hist)
// and writing the whole run through a counter.KffWriter instead of
// flattening it into individually keyed records.
func doCountKff(runDir string, sample rundir.Sample, partition int, k int, codec kmer.Codec, hardMin uint64, hist *histogram.Histogram) error {
	skPath := superKmerPath(runDir, sample.ID, partition)
	rd, err := skio.Open(skPath, k)
	if err != nil {
		return errors.E(err, fmt.Sprintf("count: opening super-kmers for sample %s partition %d", sample.ID, partition))
	}

	kc := counter.NewKmerCounter(codec, hardMin, countWidthBytes, hist, nil)
	var seqs []string
	for {
		seq, ok, err := rd.Next()
		if err != nil {
			rd.Close()
			return errors.E(err, fmt.Sprintf("count: reading super-kmers for sample %s partition %d", sample.ID, partition))
		}
		if !ok {
			break
		}
		seqs = append(seqs, seq)
		kc.AddSuperKmer(seq, k)
	}
	if err := rd.Close(); err != nil {
		return err
	}

	counted := make(map[interface{}]uint64)
	kc.Finish(func(e counter.Entry) { counted[e.Key] = e.Count })

	outPath := countPath(runDir, sample.ID, partition)
	if err := ensureDir(outPath); err != nil {
		return err
	}
	kw, err := counter.CreateKff(outPath, rundir.KffFileHeader{
		PartitionID: uint16(partition), K: uint8(k), CountWidth: countWidthBytes,
	})
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		n := len(seq) - k + 1
		counts := make([]uint64, n)
		for i := 0; i < n; i++ {
			key, ok := codec.Encode(seq[i : i+k])
			if !ok {
				continue
			}
			counts[i] = counted[codec.Canonical(key)]
		}
		if err := kw.WriteRecord(seq, counts); err != nil {
			kw.Close()
			return err
		}
	}
	return kw.Close()
}

// doCountHash implements spec.md §4.5's hash mode counter for one
// (sample, partition): reduce each canonical k-mer's hash into the full
// [0,totalWindow) hash space, keep only those landing in this partition's
// sub-window [partition*window, partition*window+window), and collapse
// into (hash, saturated count) via either the vector-sort or hash-map-
// with-spill strategy, chosen by an estimated-size-vs-budget comparison
// mirroring how cmd/bio-bam-sort/sorter.Sorter picks between an
// in-memory sort and a spilled merge.
func doCountHash(runDir string, sample rundir.Sample, partition int, k int, codec kmer.Codec, window, totalWindow, hardMin, memBudget uint64, hist *histogram.Histogram, writeVector bool) error {
	skPath := superKmerPath(runDir, sample.ID, partition)
	rd, err := skio.Open(skPath, k)
	if err != nil {
		return errors.E(err, fmt.Sprintf("count: opening super-kmers for sample %s partition %d", sample.ID, partition))
	}

	lo := uint64(partition) * window
	hi := lo + window

	var hashes []uint64
	var spiller *counter.Spiller
	var vecBits []byte
	if writeVector {
		vecBits = make([]byte, (window+7)/8)
	}

	spillThreshold := memBudget / 8 // bytes per in-memory uint64 hash
	spillIfNeeded := func() error {
		if spiller != nil || uint64(len(hashes)) <= spillThreshold {
			return nil
		}
		spiller = counter.NewSpiller(len(hashes), "")
		for _, h := range hashes {
			if err := spiller.Add(h); err != nil {
				return err
			}
		}
		hashes = nil
		return nil
	}

	for {
		seq, ok, err := rd.Next()
		if err != nil {
			rd.Close()
			return err
		}
		if !ok {
			break
		}
		for i := 0; i+k <= len(seq); i++ {
			key, ok := codec.Encode(seq[i : i+k])
			if !ok {
				continue
			}
			h := codec.Hash(codec.Canonical(key)) % totalWindow
			if h < lo || h >= hi {
				continue
			}
			if vecBits != nil {
				pos := h - lo
				vecBits[pos/8] |= 1 << (pos % 8)
			}
			if spiller != nil {
				if err := spiller.Add(h); err != nil {
					rd.Close()
					return err
				}
				continue
			}
			hashes = append(hashes, h)
			if err := spillIfNeeded(); err != nil {
				rd.Close()
				return err
			}
		}
	}
	if err := rd.Close(); err != nil {
		return err
	}

	outPath := countPath(runDir, sample.ID, partition)
	if err := ensureDir(outPath); err != nil {
		return err
	}
	w, err := counter.Create(outPath, rundir.KmerFileHeader{
		KeyWidth: 8, CountWidth: countWidthBytes, PartitionID: uint16(partition), K: uint8(k), IsHashes: true,
	})
	if err != nil {
		return err
	}
	var writeErr error
	emit := func(e counter.Entry) {
		if writeErr == nil {
			writeErr = w.WriteEntry(e)
		}
	}
	if spiller != nil {
		if err := spiller.Finish(hardMin, countWidthBytes, hist, emit); err != nil {
			w.Close()
			return err
		}
	} else {
		counter.VectorSort(hashes, hardMin, countWidthBytes, hist, emit)
	}
	if writeErr != nil {
		w.Close()
		return writeErr
	}
	if err := w.Close(); err != nil {
		return err
	}

	if vecBits != nil {
		vecPath := vectorPath(runDir, sample.ID, partition)
		if err := ensureDir(vecPath); err != nil {
			return err
		}
		return writeRawVector(vecPath, uint16(partition), window, vecBits)
	}
	return nil
}

func writeRawVector(path string, partition uint16, w uint64, bits []byte) (err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(ctx, path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	fw := f.Writer(ctx)
	hdr := rundir.BitVectorFileHeader{PartitionID: partition, Bytes: uint64(len(bits)), NbBits: w}
	if err = hdr.Write(fw); err != nil {
		return err
	}
	_, err = fw.Write(bits)
	return err
}

// doCount dispatches to the kmer- or hash-mode counter for one
// (sample, partition), per --mode's key selector, then (if --hist) saves
// the partition's histogram shard for later aggregation.
func doCount(runDir string, man *rundir.Manifest, sample rundir.Sample, partition int, codec kmer.Codec, mode parsedMode, hardMin, memBudget uint64, keepHist bool) error {
	var hist *histogram.Histogram
	if keepHist {
		hist = histogram.New(0, uint8(man.Config.K), histLower, histUpper)
	}

	var err error
	switch {
	case mode.Format == "kff":
		err = doCountKff(runDir, sample, partition, man.Config.K, codec, hardMin, hist)
	case mode.Kmer:
		err = doCountKmer(runDir, sample, partition, man.Config.K, codec, hardMin, hist)
	default:
		writeVector := mode.Format == "bf" || mode.Format == "bft"
		err = doCountHash(runDir, sample, partition, man.Config.K, codec, man.Config.HashWindow/uint64(man.Config.P), man.Config.HashWindow, hardMin, memBudget, hist, writeVector)
	}
	if err != nil {
		return errors.E(err, fmt.Sprintf("count: sample %s partition %d", sample.ID, partition))
	}

	if keepHist {
		histPath := partitionHistPath(runDir, sample.ID, partition)
		if err := ensureDir(histPath); err != nil {
			return err
		}
		if err := hist.Save(histPath); err != nil {
			return errors.E(err, fmt.Sprintf("count: saving histogram for sample %s partition %d", sample.ID, partition))
		}
	}
	return nil
}

func runCountCmd(args []string) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var sampleID string
	var memBudgetMB uint64
	fs.StringVar(&sampleID, "sample", "", "Sample id to process (default: all)")
	fs.Uint64Var(&memBudgetMB, "mem-budget-mb", 512, "Per-partition hash-mode memory budget, in MB")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks count: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks count: loading manifest: %w", err)
	}
	mode, err := parseMode(c.mode)
	if err != nil {
		return err
	}
	codec := codecFor(man.Config)

	for _, s := range man.Samples {
		if sampleID != "" && s.ID != sampleID {
			continue
		}
		for p := 0; p < man.Config.P; p++ {
			if err := doCount(c.runDir, man, s, p, codec, mode, c.hardMin, memBudgetMB<<20, c.hist); err != nil {
				return err
			}
		}
		log.Printf("count: sample %s done", s.ID)
	}
	man.MarkDone("count")
	return man.Save(c.runDir)
}
