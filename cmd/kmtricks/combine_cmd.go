package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/merger"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// combineMatrixPath is where kmtricks combine writes its output, under
// its own out-dir rather than any one input run's directory.
func combineMatrixPath(outDir string, partition int) string {
	return filepath.Join(outDir, fmt.Sprintf("part%04d.matrix", partition))
}

// combineSource tracks one input run's matrix row stream for a single
// partition, plus the column count it contributes to the combined row.
type combineSource struct {
	src        matrixRowSource
	nSamples   int
	cur        merger.Row
	haveCur    bool
}

// matrixRowSource is the common shape of CountMatrixReader/PAMatrixReader,
// reused here rather than depending on filtertool.MatrixSource so combine
// does not have to route a merger.RowProcessor plugin through it.
type matrixRowSource interface {
	Next() (merger.Row, bool, error)
	Close() error
}

func (s *combineSource) advance() error {
	row, ok, err := s.src.Next()
	if err != nil {
		return err
	}
	s.cur, s.haveCur = row, ok
	return nil
}

// doCombine implements spec.md §6's combine tool: an N-way column
// concatenation merge-join across multiple compatible runs' same-
// partition matrix, generalizing merger.Merge's single-minimum-key loop
// from per-sample streams to per-run matrix streams whose columns are
// concatenated in run order rather than assigned by sample index.
func doCombine(runDirs []string, outDir string, partition int, mode parsedMode, codec kmer.Codec, mans []*rundir.Manifest) (err error) {
	sources := make([]*combineSource, len(runDirs))
	totalN := 0
	for i, rd := range runDirs {
		var rs matrixRowSource
		switch mode.Format {
		case "count":
			rs, err = merger.OpenCountMatrix(matrixPath(rd, partition))
		case "pa":
			rs, err = merger.OpenPAMatrix(matrixPath(rd, partition))
		default:
			return fmt.Errorf("combine: unsupported --mode format %q (must be count or pa)", mode.Format)
		}
		if err != nil {
			return errors.E(err, fmt.Sprintf("combine: opening %s partition %d", rd, partition))
		}
		n := len(mans[i].Samples)
		totalN += n
		sources[i] = &combineSource{src: rs, nSamples: n}
		if err := sources[i].advance(); err != nil {
			return err
		}
	}
	defer func() {
		for _, s := range sources {
			s.src.Close()
		}
	}()

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

	outPath := combineMatrixPath(outDir, partition)
	if err := ensureDir(outPath); err != nil {
		return err
	}
	var proc merger.RowProcessor
	switch mode.Format {
	case "count":
		proc, err = merger.NewCountWriter(outPath, uint16(partition), uint8(mans[0].Config.K), keyW, countWidthBytes, totalN, isHashes)
	case "pa":
		proc, err = merger.NewPAWriter(outPath, uint16(partition), uint8(mans[0].Config.K), keyW, totalN, isHashes)
	}
	if err != nil {
		return errors.E(err, fmt.Sprintf("combine: opening output partition %d", partition))
	}

	for {
		var minIdx = -1
		for i, s := range sources {
			if !s.haveCur {
				continue
			}
			if minIdx == -1 || order.Less(s.cur.Key, sources[minIdx].cur.Key) {
				minIdx = i
			}
		}
		if minIdx == -1 {
			break
		}
		minKey := sources[minIdx].cur.Key

		values := make([]uint64, totalN)
		offset := 0
		for _, s := range sources {
			if s.haveCur && order.Equal(s.cur.Key, minKey) {
				copy(values[offset:offset+s.nSamples], s.cur.Values)
				if err := s.advance(); err != nil {
					proc.Close()
					return err
				}
			}
			offset += s.nSamples
		}
		if err := proc.Process(merger.Row{Key: minKey, Values: values}); err != nil {
			proc.Close()
			return errors.E(err, fmt.Sprintf("combine: partition %d", partition))
		}
	}
	return proc.Close()
}

func runCombineCmd(args []string) error {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	var runDirsFlag, outDir, modeStr string
	var partition int
	fs.StringVar(&runDirsFlag, "run-dirs", "", "Comma-separated list of compatible run directories to combine")
	fs.StringVar(&outDir, "out-dir", "", "Output directory for the combined matrices")
	fs.StringVar(&modeStr, "mode", "kmer:count:bin", "(kmer|hash):(count|pa):(text|bin), must match every input run")
	fs.IntVar(&partition, "partition", -1, "Partition id to combine (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if runDirsFlag == "" || outDir == "" {
		return fmt.Errorf("kmtricks combine: --run-dirs and --out-dir are required")
	}
	runDirs := strings.Split(runDirsFlag, ",")
	if len(runDirs) < 2 {
		return fmt.Errorf("kmtricks combine: --run-dirs must name at least two run directories")
	}
	mode, err := parseMode(modeStr)
	if err != nil {
		return err
	}

	mans := make([]*rundir.Manifest, len(runDirs))
	for i, rd := range runDirs {
		rd = strings.TrimSpace(rd)
		runDirs[i] = rd
		man, err := rundir.LoadManifest(rd)
		if err != nil {
			return fmt.Errorf("kmtricks combine: loading manifest for %s: %w", rd, err)
		}
		if i > 0 && !man.Config.Compatible(mans[0].Config) {
			return fmt.Errorf("kmtricks combine: %s is not repart-compatible with %s (k, m, or p differ)", rd, runDirs[0])
		}
		mans[i] = man
	}
	codec := codecFor(mans[0].Config)

	run := func(p int) error {
		return doCombine(runDirs, outDir, p, mode, codec, mans)
	}
	if partition >= 0 {
		if err := run(partition); err != nil {
			return err
		}
	} else {
		for p := 0; p < mans[0].Config.P; p++ {
			if err := run(p); err != nil {
				return err
			}
		}
	}
	log.Printf("combine: %d run directories combined into %s", len(runDirs), outDir)
	return nil
}
