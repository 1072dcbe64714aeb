// Package scheduler implements the multi-core work-stealing scheduler:
// one Worker goroutine per configured worker, each with a local FIFO run queue, sibling
// stealer handles, and a shared submission queue newly spawned processes
// land in first. Grounded on
// original_source/src/concurrency/scheduler.rs's Scheduler and pool.rs's
// SchedulerPool.
package scheduler

import (
	"sync"
	"time"

	"tinytotvm/process"
)

// Worker runs processes pulled from (in priority order) the pool's
// submission queue, its own local queue, then by stealing from a
// sibling. crossbeam_deque's Worker/Stealer split becomes a single
// mutex-guarded slice per worker here -- Go has no lock-free deque in
// the standard library, and the pool's per-process workload is coarse
// enough (thousands of reductions per turn, not nanoseconds) that the
// mutex is never the bottleneck.
type Worker struct {
	id       int
	mu       sync.Mutex
	local    []*process.Proc
	siblings []*Worker
}

func newWorker(id int) *Worker {
	return &Worker{id: id}
}

func (w *Worker) setSiblings(all []*Worker) {
	w.siblings = make([]*Worker, 0, len(all)-1)
	for _, sib := range all {
		if sib != w {
			w.siblings = append(w.siblings, sib)
		}
	}
}

// Push enqueues a process onto this worker's local queue.
func (w *Worker) Push(p *process.Proc) {
	w.mu.Lock()
	w.local = append(w.local, p)
	w.mu.Unlock()
}

func (w *Worker) pop() *process.Proc {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.local) == 0 {
		return nil
	}
	p := w.local[0]
	w.local = w.local[1:]
	return p
}

// steal removes and returns one process from the front of w's queue, on
// behalf of a sibling that has run dry.
func (w *Worker) steal() *process.Proc {
	return w.pop()
}

func (w *Worker) stealFromSiblings() *process.Proc {
	for _, sib := range w.siblings {
		if p := sib.steal(); p != nil {
			return p
		}
	}
	return nil
}

// run is the per-worker scheduling loop: submission queue, then local
// queue, then stealing, then a brief sleep, exactly the priority order
// run_scheduler_loop uses.
func (w *Worker) run(pool *Pool) {
	for {
		if pool.isShuttingDown() {
			return
		}

		if p, ok := pool.popSubmission(); ok {
			pool.execute(w, p)
			continue
		}
		if p := w.pop(); p != nil {
			pool.execute(w, p)
			continue
		}
		if p := w.stealFromSiblings(); p != nil {
			pool.execute(w, p)
			continue
		}

		time.Sleep(time.Millisecond)
	}
}
