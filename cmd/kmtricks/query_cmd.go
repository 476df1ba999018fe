package main

import (
	"flag"
	"fmt"

	"github.com/kmtricks/kmtricks-go/bloom"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// bitSet reports whether bit i of bits is set.
func bitSet(bits []byte, i uint64) bool {
	return bits[i/8]&(1<<(i%8)) != 0
}

// doQuery implements spec.md §6's query tool: for a single query sequence,
// test every one of its k-mers against every sample's Bloom filter and
// report the fraction found per sample, the same presence test an
// external search-tree tool would run against the filters kmtricks index
// catalogs — spec.md puts the tree traversal itself out of scope, but the
// single-filter membership test it would be built on is in scope as the
// Bloom matrix's whole purpose.
func doQuery(runDir string, man *rundir.Manifest, seq string) error {
	codec := codecFor(man.Config)
	k := man.Config.K
	if len(seq) < k {
		return fmt.Errorf("query: sequence shorter than k=%d", k)
	}

	var hashes []uint64
	for i := 0; i+k <= len(seq); i++ {
		key, ok := codec.Encode(seq[i : i+k])
		if !ok {
			continue
		}
		hashes = append(hashes, codec.Hash(codec.Canonical(key))%man.Config.HashWindow)
	}
	if len(hashes) == 0 {
		return fmt.Errorf("query: sequence contains no valid k-mers")
	}

	for _, s := range man.Samples {
		hdr, bits, err := bloom.ReadBloomFile(bloomFilterPath(runDir, s.ID))
		if err != nil {
			fmt.Printf("%s\terror: %v\n", s.ID, err)
			continue
		}
		hit := 0
		for _, h := range hashes {
			if h < hdr.NbBits && bitSet(bits, h) {
				hit++
			}
		}
		fmt.Printf("%s\t%d/%d\n", s.ID, hit, len(hashes))
	}
	return nil
}

func runQueryCmd(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var seq string
	fs.StringVar(&seq, "sequence", "", "Nucleotide sequence to query against every sample's Bloom filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" || seq == "" {
		return fmt.Errorf("kmtricks query: --run-dir and --sequence are required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks query: loading manifest: %w", err)
	}
	return doQuery(c.runDir, man, seq)
}
