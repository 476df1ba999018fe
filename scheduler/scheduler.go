// Package scheduler orchestrates the pipeline DAG of spec.md §4.9 over a
// fixed taskpool.Pool: Config -> Repart -> SuperK(s) -> Count(s,p) ->
// Merge(p) -> Format(s). It does not know what any task computes — only
// that a level's tasks must all finish (successfully or not) before the
// next level's tasks are submitted, the "fence" the spec requires.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/kmtricks/kmtricks-go/taskpool"
	"github.com/kmtricks/kmtricks-go/xsignal"
)

// Level mirrors spec.md §4.9's five named levels plus the Config level
// (level 0) that precedes Repart, used only to label tasks for logging and
// for tests asserting fence order; the fence itself is driven by the
// sequence of RunLevel calls, not by these numeric values.
const (
	LevelConfig = iota
	LevelRepart
	LevelSuperK
	LevelCount
	LevelMerge
	LevelFormat
)

// MemoryPool is the mutex-protected global reservation counter spec.md
// §4.9/§5 calls for ("Memory pool: mutex-protected global counter of
// reserved bytes"), grounded on cmd/bio-fusion/main.go's memStats — a
// sync.Mutex-guarded running total updated from multiple goroutines —
// generalized from a read-only stats snapshot into a blocking
// reserve/release budget.
type MemoryPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	cap      uint64
	reserved uint64
}

// NewMemoryPool creates a pool with the given byte cap.
func NewMemoryPool(capBytes uint64) *MemoryPool {
	p := &MemoryPool{cap: capBytes}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Cap returns the configured byte cap.
func (p *MemoryPool) Cap() uint64 { return p.cap }

// Reserved returns the currently reserved byte count.
func (p *MemoryPool) Reserved() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved
}

// Reserve blocks until bytes can be added to the reservation without
// exceeding the cap. If bytes alone exceeds the cap, Reserve fails
// immediately rather than blocking forever — spec.md §7's memory error,
// "a partition's required memory exceeds the cap even at max pool size".
func (p *MemoryPool) Reserve(bytes uint64) error {
	if bytes > p.cap {
		return fmt.Errorf("scheduler: required %d bytes exceeds memory cap %d", bytes, p.cap)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.reserved+bytes > p.cap {
		p.cond.Wait()
	}
	p.reserved += bytes
	return nil
}

// Release gives bytes back to the pool, waking any Reserve callers blocked
// on the budget.
func (p *MemoryPool) Release(bytes uint64) {
	p.mu.Lock()
	p.reserved -= bytes
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Scheduler drives a sequence of task levels over a shared taskpool.Pool,
// fencing each level behind the previous one's completion. Grounded on
// cmd/bio-fusion/main.go's processFASTQ, which hand-rolls the same fence
// between two fixed stages (close(reqCh); wg1.Wait(); close(resCh);
// wg2.Wait()); Scheduler generalizes that into one fence per DAG level
// instead of exactly two.
type Scheduler struct {
	Pool   *taskpool.Pool
	Cancel *xsignal.Token

	mu   sync.Mutex
	errs []error
}

// New builds a Scheduler over an already-Start'd pool.
func New(pool *taskpool.Pool, cancel *xsignal.Token) *Scheduler {
	return &Scheduler{Pool: pool, Cancel: cancel}
}

func (s *Scheduler) recordErr(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// Err returns the first error recorded across every RunLevel call so far,
// or nil.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// fenceTask wraps a domain taskpool.Task so RunLevel's WaitGroup is
// signaled exactly once regardless of which lifecycle phase the task
// fails at: Pool.worker calls Exec then, only on success, PostProcess — so
// fenceTask must itself decide which of the two phases is "last" for a
// given task and release the fence there, never leaving the WaitGroup
// permanently short by one.
type fenceTask struct {
	taskpool.Task
	wg *sync.WaitGroup
	s  *Scheduler
}

func (f *fenceTask) Exec() error {
	err := f.Task.Exec()
	if err != nil {
		f.s.recordErr(err)
		f.wg.Done()
	}
	return err
}

func (f *fenceTask) PostProcess(clear bool) error {
	defer f.wg.Done()
	err := f.Task.PostProcess(clear)
	if err != nil {
		f.s.recordErr(err)
	}
	return err
}

// RunLevel submits every task in level to the pool and blocks until each
// has completed — successfully or not — before returning, which is the
// fence that keeps the caller's next RunLevel from racing ahead of this
// one's producers ("not submitting a task until all its predecessors have
// signaled completion"). If the scheduler is already cancelled, RunLevel
// returns immediately without submitting anything. If cancellation fires
// while this level is in flight, RunLevel returns the cancellation's error
// without waiting for tasks the pool silently skipped (Pool.worker checks
// Cancel between tasks and, for a cancelled pool, never calls Exec or
// PostProcess at all — those tasks would otherwise never signal the
// fence).
func (s *Scheduler) RunLevel(level []taskpool.Task) error {
	if s.Cancel != nil && s.Cancel.Cancelled() {
		return s.Cancel.Err()
	}
	if len(level) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(level))
	for _, t := range level {
		ft := &fenceTask{Task: t, wg: &wg, s: s}
		if err := s.Pool.Submit(ft); err != nil {
			s.recordErr(err)
			wg.Done()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if s.Cancel != nil {
		select {
		case <-done:
		case <-s.Cancel.Done():
			return s.Cancel.Err()
		}
	} else {
		<-done
	}
	return s.Err()
}
