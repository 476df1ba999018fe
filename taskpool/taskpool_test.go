package taskpool

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grailbio/testutil/expect"
)

type countingTask struct {
	pre, exec, post int32
	failExec        bool
	level           int
}

func (t *countingTask) PreProcess() error {
	atomic.AddInt32(&t.pre, 1)
	return nil
}
func (t *countingTask) Exec() error {
	atomic.AddInt32(&t.exec, 1)
	if t.failExec {
		return errors.New("exec failed")
	}
	return nil
}
func (t *countingTask) PostProcess(clear bool) error {
	atomic.AddInt32(&t.post, 1)
	return nil
}
func (t *countingTask) Level() int { return t.level }

func TestPoolRunsEveryTaskThroughFullLifecycle(t *testing.T) {
	p := &Pool{Workers: 4}
	p.Start()

	tasks := make([]*countingTask, 50)
	for i := range tasks {
		tasks[i] = &countingTask{}
		expect.NoError(t, p.Submit(tasks[i]))
	}
	expect.NoError(t, p.JoinAll())

	for _, tk := range tasks {
		expect.EQ(t, tk.pre, int32(1))
		expect.EQ(t, tk.exec, int32(1))
		expect.EQ(t, tk.post, int32(1))
	}
}

func TestPoolReportsFirstExecError(t *testing.T) {
	p := &Pool{Workers: 2}
	p.Start()

	expect.NoError(t, p.Submit(&countingTask{failExec: true}))
	for i := 0; i < 5; i++ {
		expect.NoError(t, p.Submit(&countingTask{}))
	}
	err := p.JoinAll()
	expect.NotNil(t, err)
}

func TestPoolBackpressureBlocksSubmitUntilSlotFrees(t *testing.T) {
	p := &Pool{Workers: 1, HighWaterMark: 1}
	p.Start()

	first := &gateTask{release: make(chan struct{})}
	expect.NoError(t, p.Submit(first)) // fills the single slot; the worker is now blocked in Exec

	second := &gateTask{release: make(chan struct{})}
	submitted := make(chan struct{})
	go func() {
		p.Submit(second)
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("second Submit returned before the first task finished; high-water mark not enforced")
	case <-time.After(100 * time.Millisecond):
	}

	close(first.release) // let the first task's Exec return, freeing a slot

	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("second Submit never returned after a slot freed")
	}
	close(second.release)
	expect.NoError(t, p.JoinAll())
}

type gateTask struct{ release chan struct{} }

func (g *gateTask) PreProcess() error            { return nil }
func (g *gateTask) Exec() error                  { <-g.release; return nil }
func (g *gateTask) PostProcess(clear bool) error { return nil }
func (g *gateTask) Level() int                   { return 0 }
