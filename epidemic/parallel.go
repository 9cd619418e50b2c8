package epidemic

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum site count to use the worker pool.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 256

// workChunk is a range of active-site positions for one worker.
type workChunk struct {
	start, end int
	fn         func(start, end int)
}

// workerPool runs chunked loops on persistent goroutines.
type workerPool struct {
	numWorkers int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

// newWorkerPool sizes the pool; n <= 0 uses GOMAXPROCS.
func newWorkerPool(n int) *workerPool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &workerPool{numWorkers: n}
}

// start launches persistent worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// run calls fn over [0, n) split into contiguous chunks and returns once
// every chunk is done. fn must only write to positions in its own range.
func (p *workerPool) run(n int, fn func(start, end int)) {
	if n < parallelThreshold || p.numWorkers == 1 {
		fn(0, n)
		return
	}
	p.start()

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	numChunks := 0
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		numChunks++
	}
	for i := 0; i < numChunks; i++ {
		<-p.doneChan
	}
}
