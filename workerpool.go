package main

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// ErrPoolClosed is returned by handles submitted after Close
var ErrPoolClosed = errors.New("worker pool closed")

// TaskPanicError wraps a panic recovered inside a pool task
type TaskPanicError struct {
	Value any
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Handle tracks one submitted task
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task has finished and returns its error
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

type poolTask struct {
	fn     func() error
	handle *Handle
}

// WorkerPool is a fixed set of goroutines shared by every simulation phase
type WorkerPool struct {
	tasks  chan poolTask
	size   int
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// DefaultWorkerCount is twice the available hardware parallelism
func DefaultWorkerCount() int {
	return 2 * runtime.NumCPU()
}

// NewWorkerPool starts size workers. size <= 0 uses DefaultWorkerCount.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkerCount()
	}
	p := &WorkerPool{
		tasks: make(chan poolTask, size*4),
		size:  size,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Size returns the number of workers
func (p *WorkerPool) Size() int {
	return p.size
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.handle.err = runTask(t.fn)
		close(t.handle.done)
	}
}

func runTask(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Submit schedules task on any idle worker
func (p *WorkerPool) Submit(task func() error) *Handle {
	h := &Handle{done: make(chan struct{})}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		h.err = ErrPoolClosed
		close(h.done)
		return h
	}
	p.tasks <- poolTask{fn: task, handle: h}
	return h
}

// Close stops the workers after queued tasks drain
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// JoinAll blocks until every handle has completed. It is the only barrier
// between phases. All task failures are joined into the returned error.
func JoinAll(handles []*Handle) error {
	var errs []error
	for _, h := range handles {
		if err := h.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SplitEvenly divides n items into k contiguous chunk sizes. The first n%k
// chunks get one extra item.
func SplitEvenly(n, k int) []int {
	if k < 1 {
		k = 1
	}
	if n < 0 {
		n = 0
	}
	base := n / k
	remainder := n % k
	sizes := make([]int, k)
	for i := range sizes {
		sizes[i] = base
		if i < remainder {
			sizes[i]++
		}
	}
	return sizes
}

// Chunk is a contiguous index range handed to one task
type Chunk struct {
	Index int // position of the chunk in the partition
	Start int
	End   int // exclusive
}

// ChunkError reports a failed chunk
type ChunkError struct {
	Chunk Chunk
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d [%d,%d): %v", e.Chunk.Index, e.Chunk.Start, e.Chunk.End, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Chunks partitions [0,n) into k chunks with SplitEvenly, skipping empty ones
func Chunks(n, k int) []Chunk {
	sizes := SplitEvenly(n, k)
	chunks := make([]Chunk, 0, len(sizes))
	start := 0
	for i, size := range sizes {
		if size == 0 {
			continue
		}
		chunks = append(chunks, Chunk{Index: i, Start: start, End: start + size})
		start += size
	}
	return chunks
}

// RunChunks runs fn once per chunk of [0,n) across the pool and joins.
// Errors and panics are reported as *ChunkError.
func (p *WorkerPool) RunChunks(n int, fn func(Chunk) error) error {
	chunks := Chunks(n, p.size)
	handles := make([]*Handle, len(chunks))
	for i, c := range chunks {
		c := c
		handles[i] = p.Submit(func() error {
			if err := runTask(func() error { return fn(c) }); err != nil {
				return &ChunkError{Chunk: c, Err: err}
			}
			return nil
		})
	}
	return JoinAll(handles)
}
