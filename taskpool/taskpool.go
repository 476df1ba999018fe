// Package taskpool implements the fixed worker pool of spec.md §4.8: a
// bounded FIFO of tasks drained by a fixed number of goroutines, each task
// going through pre-process/exec/post-process, with backpressure on
// enqueue. Grounded on cmd/bio-fusion/main.go's processFASTQ: a bounded
// channel of work (reqCh), a fixed pool of goroutines draining it
// (parallelism := runtime.NumCPU()), and a sync.WaitGroup fence at
// shutdown.
package taskpool

import (
	"sync"

	"github.com/kmtricks/kmtricks-go/xsignal"
)

// Task is one unit of scheduled work, carrying the three-phase lifecycle
// spec.md §4.8 requires: PreProcess runs on the submitting goroutine
// (cheap, e.g. validating inputs exist) before the task is ever handed to
// a worker; Exec does the real work on a worker goroutine; PostProcess
// also runs on the worker, after Exec, and is responsible for writing the
// task's completion sentinel (and deleting input files, if the caller's
// Pool was configured with Clear).
type Task interface {
	PreProcess() error
	Exec() error
	PostProcess(clear bool) error
	// Level is used only for the scheduler's DAG fences; the pool itself
	// runs tasks within a level in arbitrary order.
	Level() int
}

// Pool is a fixed-size worker pool draining a FIFO task queue, with
// enqueue blocking once HighWaterMark tasks are in flight (queued or
// executing) — the backpressure spec.md §4.8 requires.
type Pool struct {
	Workers       int
	HighWaterMark int
	Clear         bool
	Cancel        *xsignal.Token

	once    sync.Once
	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.Mutex
	cond    *sync.Cond
	inFlight int
	errOnce sync.Once
	firstErr error
}

// Start launches the pool's fixed goroutines. Must be called once before
// any Submit.
func (p *Pool) Start() {
	p.once.Do(func() {
		if p.Workers <= 0 {
			p.Workers = 1
		}
		p.cond = sync.NewCond(&p.mu)
		p.tasks = make(chan Task, p.HighWaterMark)
		for i := 0; i < p.Workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		if p.Cancel != nil && p.Cancel.Cancelled() {
			p.finishOne()
			continue
		}
		if err := t.Exec(); err != nil {
			p.reportError(err)
		} else if err := t.PostProcess(p.Clear); err != nil {
			p.reportError(err)
		}
		p.finishOne()
	}
}

func (p *Pool) reportError(err error) {
	p.errOnce.Do(func() { p.firstErr = err })
	if p.Cancel != nil {
		p.Cancel.Cancel(err)
	}
}

func (p *Pool) finishOne() {
	p.mu.Lock()
	p.inFlight--
	p.cond.Signal()
	p.mu.Unlock()
}

// Submit blocks until fewer than HighWaterMark tasks are in flight, runs
// t's PreProcess on the calling goroutine, and enqueues t for a worker.
// A PreProcess error is reported the same way an Exec/PostProcess error
// is, and the task is never enqueued.
func (p *Pool) Submit(t Task) error {
	if p.HighWaterMark > 0 {
		p.mu.Lock()
		for p.inFlight >= p.HighWaterMark {
			p.cond.Wait()
		}
		p.inFlight++
		p.mu.Unlock()
	} else {
		p.mu.Lock()
		p.inFlight++
		p.mu.Unlock()
	}
	if err := t.PreProcess(); err != nil {
		p.reportError(err)
		p.finishOne()
		return err
	}
	p.tasks <- t
	return nil
}

// JoinAll closes the task queue once no more Submits are coming and waits
// for every queued task to drain, per spec.md §4.8's join_all.
func (p *Pool) JoinAll() error {
	close(p.tasks)
	p.wg.Wait()
	return p.firstErr
}
