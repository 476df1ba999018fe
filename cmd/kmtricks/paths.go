package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kmtricks/kmtricks-go/rundir"
)

// The run directory's per-sample/per-partition file layout. rundir.Layout
// only creates the five top-level subdirectories; everything below that
// (one folder per sample) is created on demand by ensureDir, the same
// os.MkdirAll-before-write idiom pileup/snp/pileup.go uses for its own
// temp directory.

func superKmerPath(runDir, sampleID string, partition int) string {
	return filepath.Join(runDir, rundir.SuperKDir, sampleID, fmt.Sprintf("part%04d.bin", partition))
}

func countPath(runDir, sampleID string, partition int) string {
	return filepath.Join(runDir, rundir.CountsDir, sampleID, fmt.Sprintf("part%04d.cnt", partition))
}

func vectorPath(runDir, sampleID string, partition int) string {
	return filepath.Join(runDir, rundir.CountsDir, sampleID, fmt.Sprintf("part%04d.vec", partition))
}

func partitionHistPath(runDir, sampleID string, partition int) string {
	return filepath.Join(runDir, rundir.HistDir, sampleID, fmt.Sprintf("part%04d.hist", partition))
}

func sampleHistPath(runDir, sampleID string) string {
	return filepath.Join(runDir, rundir.HistDir, sampleID+".hist")
}

func matrixPath(runDir string, partition int) string {
	return filepath.Join(runDir, rundir.MatrixDir, fmt.Sprintf("part%04d.matrix", partition))
}

func bloomFilterPath(runDir, sampleID string) string {
	return filepath.Join(runDir, rundir.FiltersDir, sampleID+".bf")
}

// ensureDir creates path's parent directory (and any missing ancestors) so
// a subsequent file.Create for path succeeds even the first time a given
// sample or partition is touched.
func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
