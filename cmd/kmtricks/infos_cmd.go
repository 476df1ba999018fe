package main

import (
	"flag"
	"fmt"

	"github.com/kmtricks/kmtricks-go/rundir"
)

// stageOrder lists spec.md §4.9's DAG levels in execution order, for
// infos' progress report.
var stageOrder = []string{"repart", "superk", "count", "merge", "format"}

func runInfosCmd(args []string) error {
	fs := flag.NewFlagSet("infos", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks infos: --run-dir is required")
	}
	man, err := rundir.LoadManifest(c.runDir)
	if err != nil {
		return fmt.Errorf("kmtricks infos: loading manifest: %w", err)
	}
	fmt.Printf("run-dir\t%s\n", c.runDir)
	fmt.Printf("k=%d m=%d p=%d minimizer-type=%d repartition-type=%d hash-window=%d encoding=%s\n",
		man.Config.K, man.Config.M, man.Config.P, man.Config.MinimizerType, man.Config.RepartitionType,
		man.Config.HashWindow, man.Config.Encoding)
	fmt.Printf("samples\t%d\n", len(man.Samples))
	for _, s := range man.Samples {
		fmt.Printf("  %s\t%d file(s)", s.ID, len(s.Files))
		if s.MinAbundance != 0 {
			fmt.Printf("\tmin-abundance=%d", s.MinAbundance)
		}
		fmt.Println()
	}
	fmt.Println("progress")
	for _, stage := range stageOrder {
		status := "pending"
		if man.IsDone(stage) {
			status = "done"
		}
		fmt.Printf("  %s\t%s\n", stage, status)
	}
	return nil
}
