package riscv

import (
	"runtime"
	"sync"
)

// workerPool runs submitted funcs on a fixed set of worker goroutines
// without spinning up a goroutine per call. No code in this package
// calls getPool or Submit outside the tests. Lazily constructed with
// sync.Once, the same package-level-singleton shape as internal/log's
// DefaultLogger, per SPEC_FULL.md §5's Design Note on global state.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

var (
	poolOnce   sync.Once
	globalPool *workerPool
)

func getPool() *workerPool {
	poolOnce.Do(func() {
		globalPool = newWorkerPool(runtime.GOMAXPROCS(0))
	})
	return globalPool
}

func newWorkerPool(n int) *workerPool {
	if n < 1 {
		n = 1
	}

	p := &workerPool{tasks: make(chan func(), 64)}
	p.wg.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.tasks {
				fn()
			}
		}()
	}

	return p
}

// Submit enqueues fn for execution on a pool worker. When the queue is
// full it runs fn on the caller's goroutine instead, so the caller then
// waits for fn to finish.
func (p *workerPool) Submit(fn func()) {
	select {
	case p.tasks <- fn:
	default:
		// Pool saturated: run inline rather than block the hart that
		// is likely waiting on this very side effect.
		fn()
	}
}
