package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kmtricks/kmtricks-go/taskpool"
	"github.com/kmtricks/kmtricks-go/xsignal"
)

type fakeTask struct {
	level   int
	exec    func() error
	post    func(clear bool) error
	didExec int32
	didPost int32
}

func (t *fakeTask) PreProcess() error { return nil }
func (t *fakeTask) Exec() error {
	atomic.AddInt32(&t.didExec, 1)
	if t.exec != nil {
		return t.exec()
	}
	return nil
}
func (t *fakeTask) PostProcess(clear bool) error {
	atomic.AddInt32(&t.didPost, 1)
	if t.post != nil {
		return t.post(clear)
	}
	return nil
}
func (t *fakeTask) Level() int { return t.level }

func newPool(cancel *xsignal.Token) *taskpool.Pool {
	p := &taskpool.Pool{Workers: 4, HighWaterMark: 16, Cancel: cancel}
	p.Start()
	return p
}

func TestRunLevelFencesBeforeNextLevel(t *testing.T) {
	cancel := xsignal.New()
	pool := newPool(cancel)
	sched := New(pool, cancel)

	var mu sync.Mutex
	var order []string

	mkLevel := func(name string, n int) []taskpool.Task {
		var tasks []taskpool.Task
		for i := 0; i < n; i++ {
			idx := i
			tasks = append(tasks, &fakeTask{
				level: LevelSuperK,
				exec: func() error {
					time.Sleep(time.Millisecond)
					mu.Lock()
					order = append(order, fmt.Sprintf("%s-exec-%d", name, idx))
					mu.Unlock()
					return nil
				},
			})
		}
		return tasks
	}

	require.NoError(t, sched.RunLevel(mkLevel("L1", 8)))
	require.NoError(t, sched.RunLevel(mkLevel("L2", 8)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 16)
	// Every L1 entry must precede every L2 entry since RunLevel fences.
	sawL2 := false
	for _, o := range order {
		if len(o) >= 2 && o[:2] == "L2" {
			sawL2 = true
		}
		if len(o) >= 2 && o[:2] == "L1" {
			require.False(t, sawL2, "L1 task executed after an L2 task: %v", order)
		}
	}

	require.NoError(t, pool.JoinAll())
}

func TestRunLevelPropagatesExecError(t *testing.T) {
	cancel := xsignal.New()
	pool := newPool(cancel)
	sched := New(pool, cancel)

	boom := fmt.Errorf("boom")
	tasks := []taskpool.Task{
		&fakeTask{exec: func() error { return boom }},
		&fakeTask{},
	}
	err := sched.RunLevel(tasks)
	require.Error(t, err)
	require.NoError(t, pool.JoinAll())
}

func TestRunLevelReturnsImmediatelyWhenAlreadyCancelled(t *testing.T) {
	cancel := xsignal.New()
	cancel.Cancel(fmt.Errorf("pre-cancelled"))
	pool := newPool(cancel)
	sched := New(pool, cancel)

	task := &fakeTask{}
	err := sched.RunLevel([]taskpool.Task{task})
	require.Error(t, err)
	require.EqualValues(t, 0, atomic.LoadInt32(&task.didExec))
	require.NoError(t, pool.JoinAll())
}

func TestMemoryPoolReserveRelease(t *testing.T) {
	p := NewMemoryPool(100)
	require.NoError(t, p.Reserve(60))
	require.EqualValues(t, 60, p.Reserved())

	err := make(chan error, 1)
	go func() { err <- p.Reserve(60) }()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-err:
		t.Fatal("second reservation should have blocked")
	default:
	}

	p.Release(60)
	require.NoError(t, <-err)
	require.EqualValues(t, 60, p.Reserved())
}

func TestMemoryPoolRejectsOversizedRequest(t *testing.T) {
	p := NewMemoryPool(10)
	require.Error(t, p.Reserve(11))
}
