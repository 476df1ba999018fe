package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/bloom"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// doFormat implements spec.md §4.9's Format(s) level / §4.7's Bloom-matrix
// projection: build sampleIndex's Bloom filter by concatenating its
// per-partition window across every partition, in partition order.
// Prefers the per-partition bf/bft matrices the merge stage wrote; if
// merge never ran (the "alternative path [that] skips merging entirely"),
// falls back to the per-(sample,partition) vector files the count stage
// wrote instead.
func doFormat(runDir string, man *rundir.Manifest, sampleIndex int, mode parsedMode) error {
	sample := man.Samples[sampleIndex]
	w := man.Config.HashWindow / uint64(man.Config.P)

	matrixPaths := make([]string, man.Config.P)
	haveMatrices := true
	for p := 0; p < man.Config.P; p++ {
		path := matrixPath(runDir, p)
		if _, err := os.Stat(path); err != nil {
			haveMatrices = false
			break
		}
		matrixPaths[p] = path
	}

	var bits []byte
	var nbBits uint64
	var err error
	switch {
	case haveMatrices && mode.Format == "bf":
		bits, nbBits, err = bloom.ProjectFromBFMatrix(matrixPaths, sampleIndex, w)
	case haveMatrices && mode.Format == "bft":
		bits, nbBits, err = bloom.ProjectFromBFTMatrix(matrixPaths, sampleIndex, w)
	default:
		vecPaths := make([]string, man.Config.P)
		for p := 0; p < man.Config.P; p++ {
			vecPaths[p] = vectorPath(runDir, sample.ID, p)
		}
		bits, nbBits, err = bloom.ProjectFromVectors(vecPaths, w)
	}
	if err != nil {
		return errors.E(err, fmt.Sprintf("format: sample %s", sample.ID))
	}

	outPath := bloomFilterPath(runDir, sample.ID)
	if err := ensureDir(outPath); err != nil {
		return err
	}
	if err := bloom.Save(outPath, uint32(sampleIndex), bits, nbBits); err != nil {
		return errors.E(err, fmt.Sprintf("format: saving Bloom filter for sample %s", sample.ID))
	}
	log.Printf("format: sample %s Bloom filter written (%d bits)", sample.ID, nbBits)
	return nil
}

func runFormatCmd(args []string) error {
	fs := flag.NewFlagSet("format", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var sampleID string
	fs.StringVar(&sampleID, "sample", "", "Sample id to process (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks format: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks format: loading manifest: %w", err)
	}
	mode, err := parseMode(c.mode)
	if err != nil {
		return err
	}
	if mode.Format != "bf" && mode.Format != "bft" {
		return fmt.Errorf("kmtricks format: Bloom projection requires --mode ...:bf|bft:..., got %q", mode.Format)
	}

	for i, s := range man.Samples {
		if sampleID != "" && s.ID != sampleID {
			continue
		}
		if err := doFormat(c.runDir, man, i, mode); err != nil {
			return err
		}
	}
	man.MarkDone("format")
	return man.Save(c.runDir)
}
