package main

import (
	"flag"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/merger"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// loadSampleHistograms opens every sample's whole-run histogram (built by
// the aggregate stage), returning a nil entry for any sample whose
// histogram is missing — soft-min autocompute (quantile mode) is the only
// caller that needs these, and it fails loudly itself if a required entry
// is nil.
func loadSampleHistograms(runDir string, samples []rundir.Sample) []*histogram.Histogram {
	out := make([]*histogram.Histogram, len(samples))
	for i, s := range samples {
		if h, err := histogram.Load(sampleHistPath(runDir, s.ID)); err == nil {
			out[i] = h
		}
	}
	return out
}

// buildRowProcessor opens the partition's output matrix writer for the
// requested output format, per spec.md §4.6's five matrix modes.
func buildRowProcessor(runDir string, partition, nSamples, p int, mode parsedMode, k int, keyW uint8, isHashes bool, totalHashWindow uint64, bitWidth int) (merger.RowProcessor, error) {
	path := matrixPath(runDir, partition)
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	subWindow := totalHashWindow / uint64(p)
	switch mode.Format {
	case "count":
		return merger.NewCountWriter(path, uint16(partition), uint8(k), keyW, countWidthBytes, nSamples, isHashes)
	case "pa":
		return merger.NewPAWriter(path, uint16(partition), uint8(k), keyW, nSamples, isHashes)
	case "bf":
		return merger.NewBFWriter(path, uint16(partition), subWindow, nSamples), nil
	case "bft":
		return merger.NewBFTWriter(path, uint16(partition), subWindow, nSamples), nil
	case "bfc":
		return merger.NewBFCWriter(path, uint16(partition), subWindow, nSamples, bitWidth), nil
	case "kff":
		return nil, fmt.Errorf("merge: kff is a per-sample counter output, not a mergeable matrix format; run count with --mode kmer:kff:bin per sample instead")
	default:
		return nil, fmt.Errorf("merge: unsupported --mode format %q", mode.Format)
	}
}

// doMerge implements spec.md §4.6's per-partition merger: N-way merge
// every sample's count stream for partition p, apply the solidity
// predicate chain, and emit surviving rows through the format-appropriate
// RowProcessor.
func doMerge(runDir string, man *rundir.Manifest, partition int, mode parsedMode, codec kmer.Codec, softMinSpec merger.SoftMinSpec, recurrenceMin, shareMin, bitWidth int) error {
	n := len(man.Samples)
	streams := make([]*merger.SampleStream, n)
	for i, s := range man.Samples {
		st, err := merger.OpenSampleStream(countPath(runDir, s.ID, partition), i)
		if err != nil {
			return errors.E(err, fmt.Sprintf("merge: opening sample %s partition %d", s.ID, partition))
		}
		streams[i] = st
	}
	defer func() {
		for _, st := range streams {
			st.Close()
		}
	}()

	hists := loadSampleHistograms(runDir, man.Samples)
	softMin, err := merger.ResolveSoftMin(softMinSpec, n, hists)
	if err != nil {
		return errors.E(err, "merge: resolving soft-min")
	}

	var order merger.KeyOrder
	isHashes := !mode.Kmer
	var keyW uint8 = 8
	if mode.Kmer {
		order = merger.CodecOrder(codec)
		if codec.Width() == kmer.Width128 {
			keyW = 16
		}
	} else {
		order = merger.HashOrder
	}

	proc, err := buildRowProcessor(runDir, partition, n, man.Config.P, mode, man.Config.K, keyW, isHashes, man.Config.HashWindow, bitWidth)
	if err != nil {
		return errors.E(err, fmt.Sprintf("merge: partition %d", partition))
	}

	if err := merger.MergePartition(streams, n, order, softMin, recurrenceMin, shareMin, proc); err != nil {
		proc.Close()
		return errors.E(err, fmt.Sprintf("merge: partition %d", partition))
	}
	return proc.Close()
}

func runMergeCmd(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var partition int
	fs.IntVar(&partition, "partition", -1, "Partition id to merge (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks merge: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks merge: loading manifest: %w", err)
	}
	mode, err := parseMode(c.mode)
	if err != nil {
		return err
	}
	codec := codecFor(man.Config)
	softMinSpec := parseSoftMin(c.softMin)

	run := func(p int) error {
		return doMerge(c.runDir, man, p, mode, codec, softMinSpec, c.recurrenceMin, c.shareMin, c.bitWidth)
	}
	if partition >= 0 {
		if err := run(partition); err != nil {
			return err
		}
	} else {
		for p := 0; p < man.Config.P; p++ {
			if err := run(p); err != nil {
				return err
			}
		}
	}
	log.Printf("merge: done")
	man.MarkDone("merge")
	return man.Save(c.runDir)
}
