package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/kmtricks/kmtricks-go/rundir"
	"github.com/kmtricks/kmtricks-go/scheduler"
	"github.com/kmtricks/kmtricks-go/taskpool"
	"github.com/kmtricks/kmtricks-go/xsignal"
)

// initManifest builds a fresh manifest from --file and the core config
// flags and lays out the run directory's subdirectories. Per spec.md
// §6, --run-dir must not pre-exist for pipeline: this is always a new
// run, never a resume (resuming a partially-completed run directory is
// what repart/superk/count/merge/format's own --run-dir-only invocation
// is for, driven externally stage by stage).
func initManifest(c *coreFlags) (*rundir.Manifest, error) {
	if _, err := os.Stat(c.runDir); err == nil {
		return nil, fmt.Errorf("kmtricks pipeline: --run-dir %s already exists", c.runDir)
	}
	if c.file == "" {
		return nil, fmt.Errorf("kmtricks pipeline: --file is required to start a new run in %s", c.runDir)
	}
	f, err := os.Open(c.file)
	if err != nil {
		return nil, fmt.Errorf("kmtricks pipeline: opening --file: %w", err)
	}
	defer f.Close()
	samples, err := rundir.ParseFof(f)
	if err != nil {
		return nil, fmt.Errorf("kmtricks pipeline: parsing --file: %w", err)
	}
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, err
	}
	for _, dir := range rundir.Layout(c.runDir) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	man := rundir.NewManifest(cfg, samples)
	if err := man.Save(c.runDir); err != nil {
		return nil, err
	}
	return man, nil
}

// runPipelineCmd implements spec.md §6's end-to-end driver: it builds a
// fresh run directory's manifest, then walks the DAG level by level,
// fanning each level's per-(sample|partition) work out over a shared
// taskpool.Pool and fencing between levels with a scheduler.Scheduler —
// stopping early if --until names an earlier stage, or if a task's error
// cancels the shared xsignal.Token.
func runPipelineCmd(args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	c := &coreFlags{}
	registerCoreFlags(fs, c)
	var nbCores int
	var maxMemoryMB, memBudgetMB uint64
	fs.IntVar(&nbCores, "nb-cores", runtime.NumCPU(), "Worker pool size")
	fs.Uint64Var(&maxMemoryMB, "max-memory-mb", 4096, "Total memory pool cap across in-flight count tasks")
	fs.Uint64Var(&memBudgetMB, "mem-budget-mb", 512, "Per-partition hash-mode memory budget, in MB")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.runDir == "" {
		return fmt.Errorf("kmtricks pipeline: --run-dir is required")
	}

	man, err := initManifest(c)
	if err != nil {
		return err
	}
	mode, err := parseMode(c.mode)
	if err != nil {
		return err
	}
	codec := codecFor(man.Config)
	softMinSpec := parseSoftMin(c.softMin)

	cancel := xsignal.New()
	stop := xsignal.NotifyOnSignals(cancel)
	defer stop()

	pool := &taskpool.Pool{Workers: nbCores, HighWaterMark: nbCores * 4, Cancel: cancel}
	pool.Start()
	sched := scheduler.New(pool, cancel)
	memPool := scheduler.NewMemoryPool(maxMemoryMB << 20)

	reachedUntil := func(stage string) bool { return stage == c.until }

	finish := func() error {
		if err := pool.JoinAll(); err != nil {
			return err
		}
		return sched.Err()
	}

	if !man.IsDone("repart") {
		if err := sched.RunLevel([]taskpool.Task{&funcTask{level: scheduler.LevelRepart, run: func() error {
			ctx := context.Background()
			return doRepart(ctx, c.runDir, man)
		}}}); err != nil {
			finish()
			return err
		}
	}
	if reachedUntil("repart") {
		return finish()
	}

	table, err := loadRepartTable(c.runDir)
	if err != nil {
		finish()
		return err
	}
	cmp, err := loadMinimizerComparator(c.runDir, man.Config)
	if err != nil {
		finish()
		return err
	}

	if !man.IsDone("superk") {
		var tasks []taskpool.Task
		for _, s := range man.Samples {
			s := s
			tasks = append(tasks, &funcTask{level: scheduler.LevelSuperK, run: func() error {
				return doSuperK(context.Background(), c.runDir, man, s, table, cmp, codec, c.cpr)
			}})
		}
		if err := sched.RunLevel(tasks); err != nil {
			finish()
			return err
		}
		man.MarkDone("superk")
		if err := man.Save(c.runDir); err != nil {
			finish()
			return err
		}
	}
	if reachedUntil("superk") {
		return finish()
	}

	if !man.IsDone("count") {
		var tasks []taskpool.Task
		for _, s := range man.Samples {
			for p := 0; p < man.Config.P; p++ {
				s, p := s, p
				tasks = append(tasks, &funcTask{level: scheduler.LevelCount, run: func() error {
					budget := memBudgetMB << 20
					if err := memPool.Reserve(budget); err != nil {
						return err
					}
					defer memPool.Release(budget)
					return doCount(c.runDir, man, s, p, codec, mode, c.hardMin, budget, c.hist)
				}})
			}
		}
		if err := sched.RunLevel(tasks); err != nil {
			finish()
			return err
		}
		if c.hist {
			var aggTasks []taskpool.Task
			for _, s := range man.Samples {
				s := s
				aggTasks = append(aggTasks, &funcTask{level: scheduler.LevelCount, run: func() error {
					return doAggregate(c.runDir, man, s)
				}})
			}
			if err := sched.RunLevel(aggTasks); err != nil {
				finish()
				return err
			}
		}
		man.MarkDone("count")
		if err := man.Save(c.runDir); err != nil {
			finish()
			return err
		}
	}
	if reachedUntil("count") {
		return finish()
	}

	if !man.IsDone("merge") {
		var tasks []taskpool.Task
		for p := 0; p < man.Config.P; p++ {
			p := p
			tasks = append(tasks, &funcTask{level: scheduler.LevelMerge, run: func() error {
				return doMerge(c.runDir, man, p, mode, codec, softMinSpec, c.recurrenceMin, c.shareMin, c.bitWidth)
			}})
		}
		if err := sched.RunLevel(tasks); err != nil {
			finish()
			return err
		}
		man.MarkDone("merge")
		if err := man.Save(c.runDir); err != nil {
			finish()
			return err
		}
	}
	if reachedUntil("merge") {
		return finish()
	}

	if (mode.Format == "bf" || mode.Format == "bft") && !man.IsDone("format") {
		var tasks []taskpool.Task
		for i := range man.Samples {
			i := i
			tasks = append(tasks, &funcTask{level: scheduler.LevelFormat, run: func() error {
				return doFormat(c.runDir, man, i, mode)
			}})
		}
		if err := sched.RunLevel(tasks); err != nil {
			finish()
			return err
		}
		man.MarkDone("format")
		if err := man.Save(c.runDir); err != nil {
			finish()
			return err
		}
	}

	if err := finish(); err != nil {
		return err
	}
	log.Printf("pipeline: run %s complete", c.runDir)
	return nil
}
