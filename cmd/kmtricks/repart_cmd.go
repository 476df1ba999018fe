package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/minimizer"
	"github.com/kmtricks/kmtricks-go/repart"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// sampleMmerPrefixReads caps how many reads are sampled per input file
// when building the repartition table, matching the spirit of spec.md
// §4.3's "a sampled prefix of the input bank" without committing to the
// original's exact sampling ratio, which the spec leaves unspecified.
const sampleMmerPrefixReads = 200000

const repartTablePath = "repartition.bin"
const freqOrderPath = "minim_freq.bin"

// repartitionPaths returns the fixed filenames a run directory's repart
// stage writes, relative to runDir.
func repartitionPaths(runDir string) (table, freq string) {
	return filepath.Join(runDir, repartTablePath), filepath.Join(runDir, "repartition_freq.bin")
}

// sampleMmerCounts scans a prefix of every sample's reads, tallying
// canonical m-mer occurrences into a dense 4^m array, the input Build
// needs.
func sampleMmerCounts(ctx context.Context, samples []rundir.Sample, m int) ([]uint64, error) {
	counts := make([]uint64, 1<<uint(2*m))
	mask := uint32(1)<<uint(2*m) - 1
	for _, s := range samples {
		for _, path := range s.Files {
			n := 0
			err := forEachRead(ctx, path, func(seq string) {
				if n >= sampleMmerPrefixReads {
					return
				}
				n++
				tallyMmers(seq, m, mask, counts)
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return counts, nil
}

func tallyMmers(seq string, m int, mask uint32, counts []uint64) {
	var raw uint32
	have := 0
	for i := 0; i < len(seq); i++ {
		code, ok := kmer.BaseCode(seq[i])
		if !ok {
			raw, have = 0, 0
			continue
		}
		raw = ((raw << 2) | uint32(code)) & mask
		have++
		if have < m {
			continue
		}
		canon, _ := minimizer.Canonical(minimizer.Mmer(raw), m)
		counts[uint32(canon)]++
	}
}

// buildFreqRank builds the minimizer-selection frequency rank
// (independent of repart.Table.FreqOrder, which governs partition
// assignment rather than minimizer tie-breaking) and persists it so
// later stages reconstruct the identical Comparator.
func buildFreqRank(counts []uint64) []uint32 {
	return minimizer.NewFreqOrder(counts).Rank
}

func saveFreqRank(path string, rank []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint64(len(rank))); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, rank)
}

func loadFreqRank(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var n uint64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	rank := make([]uint32, n)
	if err := binary.Read(f, binary.LittleEndian, rank); err != nil {
		return nil, err
	}
	return rank, nil
}

// doRepart implements spec.md §4.3/§4.9's Repart level: sample m-mer
// counts, build the repartition table (and, in frequency-minimizer mode,
// the minimizer rank sidecar), and persist both to the run directory.
func doRepart(ctx context.Context, runDir string, man *rundir.Manifest) error {
	cfg := man.Config
	counts, err := sampleMmerCounts(ctx, man.Samples, cfg.M)
	if err != nil {
		return errors.E(err, "repart: sampling m-mer counts")
	}

	table := repart.Build(counts, cfg.P, cfg.M, repartMode(cfg))
	tablePath, freqPath := repartitionPaths(runDir)
	if err := repart.Save(tablePath, freqPath, table); err != nil {
		return errors.E(err, "repart: saving repartition table")
	}

	if cfg.MinimizerType == 1 {
		rank := buildFreqRank(counts)
		if err := saveFreqRank(filepath.Join(runDir, freqOrderPath), rank); err != nil {
			return errors.E(err, "repart: saving minimizer frequency rank")
		}
	}

	log.Printf("repart: built %d-partition table over %d m-mer values", cfg.P, len(counts))
	man.MarkDone("repart")
	return man.Save(runDir)
}

// loadRepartTable reopens the persisted table for the superk/count stages.
func loadRepartTable(runDir string) (*repart.Table, error) {
	tablePath, freqPath := repartitionPaths(runDir)
	return repart.Load(tablePath, freqPath)
}

// loadMinimizerComparator reconstructs the Comparator the repart stage
// used, loading the frequency rank sidecar if present.
func loadMinimizerComparator(runDir string, cfg rundir.Config) (minimizer.Comparator, error) {
	if cfg.MinimizerType != 1 {
		return minimizer.LexOrder{}, nil
	}
	rank, err := loadFreqRank(filepath.Join(runDir, freqOrderPath))
	if err != nil {
		return nil, err
	}
	return minimizer.FreqOrder{Rank: rank}, nil
}

func runRepartCmd(args []string) error {
	fs := flag.NewFlagSet("repart", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks repart: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks repart: loading manifest: %w", err)
	}
	return doRepart(context.Background(), c.runDir, man)
}
