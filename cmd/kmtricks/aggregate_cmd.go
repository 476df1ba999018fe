package main

import (
	"flag"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// doAggregate implements spec.md §5's "sample-level merge runs serially on
// completion of all partitions for that sample": combine one sample's P
// per-partition histogram shards (written by the count stage when --hist
// is set) into a single whole-sample histogram.
func doAggregate(runDir string, man *rundir.Manifest, sample rundir.Sample) error {
	var whole *histogram.Histogram
	for p := 0; p < man.Config.P; p++ {
		h, err := histogram.Load(partitionHistPath(runDir, sample.ID, p))
		if err != nil {
			continue // a partition whose shard is missing or unreadable is skipped
		}
		if whole == nil {
			whole = histogram.New(h.SampleID, h.K, h.Lower, h.Upper)
		}
		if err := whole.Merge(h); err != nil {
			return errors.E(err, fmt.Sprintf("aggregate: sample %s partition %d", sample.ID, p))
		}
	}
	if whole == nil {
		whole = histogram.New(0, uint8(man.Config.K), histLower, histUpper)
	}
	outPath := sampleHistPath(runDir, sample.ID)
	if err := ensureDir(outPath); err != nil {
		return err
	}
	return whole.Save(outPath)
}

func runAggregateCmd(args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var sampleID string
	fs.StringVar(&sampleID, "sample", "", "Sample id to aggregate (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks aggregate: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks aggregate: loading manifest: %w", err)
	}
	for _, s := range man.Samples {
		if sampleID != "" && s.ID != sampleID {
			continue
		}
		if err := doAggregate(c.runDir, man, s); err != nil {
			return err
		}
		log.Printf("aggregate: sample %s histogram written", s.ID)
	}
	return nil
}
