package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/filtertool"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/merger"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// filteredMatrixPath is where kmtricks filter writes its output: the
// existing matrix, restricted to keys also present in newSample, under its
// own subdirectory so a filter run never overwrites the run directory's
// original matrices.
func filteredMatrixPath(runDir, newSample string, partition int) string {
	return filepath.Join(runDir, "filtered", newSample, fmt.Sprintf("part%04d.matrix", partition))
}

// doFilter implements spec.md §2's filter/intersection tool for one
// partition: keep the rows of this run's existing matrix whose key is
// also present in newSample's own count stream (already computed by a
// prior repart/superk/count pass against this run's repartition table),
// optionally appending newSample's abundance as an extra column.
func doFilter(runDir string, man *rundir.Manifest, partition int, newSample string, mode parsedMode, codec kmer.Codec, appendColumn bool) error {
	var src filtertool.MatrixSource
	switch mode.Format {
	case "count":
		r, err := merger.OpenCountMatrix(matrixPath(runDir, partition))
		if err != nil {
			return errors.E(err, fmt.Sprintf("filter: opening matrix partition %d", partition))
		}
		defer r.Close()
		src = r
	case "pa":
		r, err := merger.OpenPAMatrix(matrixPath(runDir, partition))
		if err != nil {
			return errors.E(err, fmt.Sprintf("filter: opening matrix partition %d", partition))
		}
		defer r.Close()
		src = r
	default:
		return fmt.Errorf("filter: unsupported --mode format %q (must be count or pa)", mode.Format)
	}

	newReader, err := counter.Open(countPath(runDir, newSample, partition))
	if err != nil {
		return errors.E(err, fmt.Sprintf("filter: opening new sample %s partition %d", newSample, partition))
	}
	defer newReader.Close()

	var order merger.KeyOrder
	isHashes := !mode.Kmer
	keyW := uint8(8)
	if mode.Kmer {
		order = merger.CodecOrder(codec)
		if codec.Width() == kmer.Width128 {
			keyW = 16
		}
	} else {
		order = merger.HashOrder
	}

	outPath := filteredMatrixPath(runDir, newSample, partition)
	if err := ensureDir(outPath); err != nil {
		return err
	}

	existingN := len(man.Samples)
	outN := existingN
	if appendColumn {
		outN++
	}

	var proc merger.RowProcessor
	switch mode.Format {
	case "count":
		proc, err = merger.NewCountWriter(outPath, uint16(partition), uint8(man.Config.K), keyW, countWidthBytes, outN, isHashes)
	case "pa":
		proc, err = merger.NewPAWriter(outPath, uint16(partition), uint8(man.Config.K), keyW, outN, isHashes)
	}
	if err != nil {
		return errors.E(err, fmt.Sprintf("filter: opening output partition %d", partition))
	}

	if err := filtertool.Filter(src, newReader, order, appendColumn, proc); err != nil {
		proc.Close()
		return errors.E(err, fmt.Sprintf("filter: partition %d", partition))
	}
	return proc.Close()
}

func runFilterCmd(args []string) error {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var newSample string
	var partition int
	var appendColumn bool
	fs.StringVar(&newSample, "new-sample", "", "Sample id whose count file (already produced against this run's repartition table) filters the existing matrix")
	fs.IntVar(&partition, "partition", -1, "Partition id to filter (default: all)")
	fs.BoolVar(&appendColumn, "append-column", false, "Append the new sample's abundance as an extra matrix column")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" || newSample == "" {
		return fmt.Errorf("kmtricks filter: --run-dir and --new-sample are required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks filter: loading manifest: %w", err)
	}
	mode, err := parseMode(c.mode)
	if err != nil {
		return err
	}
	codec := codecFor(man.Config)

	run := func(p int) error {
		return doFilter(c.runDir, man, p, newSample, mode, codec, appendColumn)
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
	log.Printf("filter: sample %s filtered against %d partitions", newSample, man.Config.P)
	return nil
}
