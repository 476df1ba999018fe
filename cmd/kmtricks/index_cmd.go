package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/bloom"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// indexFileName is the sidecar manifest kmtricks index writes alongside a
// run's per-sample Bloom filters, per spec.md §4.7's "output carries a
// format header identifying it as a classic Bloom filter suitable for
// external search-tree tools" — spec.md §1 explicitly puts the tree
// itself out of scope ("only their interfaces matter"), so this command
// stops at validating and cataloging the filters an external indexer
// would consume, rather than building a search structure over them.
const indexFileName = "index.json"

// indexEntry is one sample's catalog row.
type indexEntry struct {
	SampleID string `json:"sample_id"`
	Path     string `json:"path"`
	NbBits   uint64 `json:"nb_bits"`
}

// indexManifest is the sidecar's top-level shape.
type indexManifest struct {
	K         int          `json:"k"`
	NbSamples int          `json:"nb_samples"`
	Entries   []indexEntry `json:"entries"`
}

func runIndexCmd(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks index: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks index: loading manifest: %w", err)
	}

	idx := indexManifest{K: man.Config.K, NbSamples: len(man.Samples)}
	for _, s := range man.Samples {
		path := bloomFilterPath(c.runDir, s.ID)
		hdr, _, err := bloom.ReadBloomFile(path)
		if err != nil {
			return fmt.Errorf("kmtricks index: sample %s: %w", s.ID, err)
		}
		idx.Entries = append(idx.Entries, indexEntry{SampleID: s.ID, Path: path, NbBits: hdr.NbBits})
	}

	js, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	outPath := filepath.Join(c.runDir, rundir.FiltersDir, indexFileName)
	if err := os.WriteFile(outPath, js, 0o644); err != nil {
		return err
	}
	log.Printf("index: %d sample filter(s) cataloged at %s", len(idx.Entries), outPath)
	return nil
}
