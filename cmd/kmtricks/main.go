package main

import (
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
)

// subcommands maps spec.md §6's CLI surface onto this binary's runXxxCmd
// entry points, each owning its own flag.FlagSet.
var subcommands = map[string]func([]string) error{
	"pipeline":  runPipelineCmd,
	"repart":    runRepartCmd,
	"superk":    runSuperKCmd,
	"count":     runCountCmd,
	"merge":     runMergeCmd,
	"format":    runFormatCmd,
	"filter":    runFilterCmd,
	"aggregate": runAggregateCmd,
	"dump":      runDumpCmd,
	"combine":   runCombineCmd,
	"index":     runIndexCmd,
	"query":     runQueryCmd,
	"infos":     runInfosCmd,
}

func main() {
	cleanup := grail.Init()
	defer cleanup()

	if len(os.Args) < 2 {
		log.Fatal("usage: kmtricks <subcommand> [flags]; subcommands: pipeline, repart, superk, count, merge, format, filter, aggregate, dump, combine, index, query, infos")
	}
	cmd, ok := subcommands[os.Args[1]]
	if !ok {
		log.Fatalf("kmtricks: unknown subcommand %q", os.Args[1])
	}
	if err := cmd(os.Args[2:]); err != nil {
		log.Error.Printf("kmtricks %s: %v", os.Args[1], err)
		os.Exit(1)
	}
}
