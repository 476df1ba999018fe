package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/kmer"
	"github.com/kmtricks/kmtricks-go/minimizer"
	"github.com/kmtricks/kmtricks-go/partitioner"
	"github.com/kmtricks/kmtricks-go/repart"
	"github.com/kmtricks/kmtricks-go/rundir"
	"github.com/kmtricks/kmtricks-go/skio"
)

// superKWriters lazily opens one skio.Writer per partition a sample's
// reads actually touch, since most samples never emit a super-k-mer into
// every one of P partitions.
type superKWriters struct {
	runDir, sampleID string
	k                int
	compress         bool
	writers          map[int]*skio.Writer
}

func newSuperKWriters(runDir, sampleID string, k int, compress bool) *superKWriters {
	return &superKWriters{runDir: runDir, sampleID: sampleID, k: k, compress: compress, writers: map[int]*skio.Writer{}}
}

func (s *superKWriters) get(partition int) (*skio.Writer, error) {
	if w, ok := s.writers[partition]; ok {
		return w, nil
	}
	path := superKmerPath(s.runDir, s.sampleID, partition)
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	w, err := skio.Create(path, s.k, s.compress)
	if err != nil {
		return nil, err
	}
	s.writers[partition] = w
	return w, nil
}

func (s *superKWriters) closeAll() error {
	var first error
	for _, w := range s.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// doSuperK implements spec.md §4.4's Partitioner over one sample's input
// files (the SuperK(s) level of §4.9): stream every read, slice into
// super-k-mers via the shared repartition table and minimizer comparator,
// and append each to its partition's file.
func doSuperK(ctx context.Context, runDir string, man *rundir.Manifest, sample rundir.Sample, table *repart.Table, cmp minimizer.Comparator, codec kmer.Codec, compress bool) error {
	stats := partitioner.NewStats(man.Config.P)
	part := partitioner.New(man.Config.K, man.Config.M, cmp, table, codec, stats)

	writers := newSuperKWriters(runDir, sample.ID, man.Config.K, compress)
	var writeErr error
	emit := func(sk partitioner.SuperKmer) {
		if writeErr != nil {
			return
		}
		w, err := writers.get(int(sk.Partition))
		if err != nil {
			writeErr = err
			return
		}
		if err := w.Append(sk.Seq); err != nil {
			writeErr = err
		}
	}

	for _, path := range sample.Files {
		if err := forEachRead(ctx, path, func(seq string) {
			part.ProcessRead(seq, emit)
		}); err != nil {
			writers.closeAll()
			return errors.E(err, fmt.Sprintf("superk: sample %s", sample.ID))
		}
		if writeErr != nil {
			writers.closeAll()
			return errors.E(writeErr, fmt.Sprintf("superk: sample %s", sample.ID))
		}
	}

	if err := writers.closeAll(); err != nil {
		return errors.E(err, fmt.Sprintf("superk: sample %s", sample.ID))
	}
	log.Printf("superk: sample %s done", sample.ID)
	return nil
}

func runSuperKCmd(args []string) error {
	fs := flag.NewFlagSet("superk", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var sampleID string
	fs.StringVar(&sampleID, "sample", "", "Sample id to process (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks superk: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks superk: loading manifest: %w", err)
	}
	table, err := loadRepartTable(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks superk: loading repartition table: %w", err)
	}
	cmp, err := loadMinimizerComparator(c.runDir, man.Config)
	if err != nil {
		return fmt.Errorf("kmtricks superk: loading minimizer comparator: %w", err)
	}
	codec := codecFor(man.Config)

	ctx := context.Background()
	for _, s := range man.Samples {
		if sampleID != "" && s.ID != sampleID {
			continue
		}
		if err := doSuperK(ctx, c.runDir, man, s, table, cmp, codec, c.cpr); err != nil {
			return err
		}
	}
	man.MarkDone("superk")
	return man.Save(c.runDir)
}
