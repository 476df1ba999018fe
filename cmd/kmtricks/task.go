package main

// funcTask adapts a plain closure to taskpool.Task, since every stage
// below (superk/count/merge/format) needs only Exec — none has a
// meaningfully separate cheap pre-process step or a post-process cleanup
// beyond what Exec itself already does — matching how lightly
// cmd/bio-fusion/main.go's own per-file work units are wrapped before
// being handed to its worker pool.
type funcTask struct {
	level int
	run   func() error
}

func (t *funcTask) PreProcess() error            { return nil }
func (t *funcTask) Exec() error                  { return t.run() }
func (t *funcTask) PostProcess(clear bool) error { return nil }
func (t *funcTask) Level() int                   { return t.level }
