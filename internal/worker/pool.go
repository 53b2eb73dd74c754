package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrIncomplete is returned by Wait when the pool was cancelled before every
// submitted task ran.
var ErrIncomplete = errors.New("pool stopped before all tasks ran")

// Task is one unit of work. It should return promptly once ctx is done.
type Task[T any] func(ctx context.Context) T

type slot[T any] struct {
	index int
	task  Task[T]
}

// Pool runs tasks on a fixed number of goroutines and returns their results
// in submission order, whatever order they finish in.
//
// Submit and Wait are called from one goroutine; tasks run on the workers.
type Pool[T any] struct {
	workers   int
	queue     chan slot[T]
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu      sync.Mutex
	results []T
	ran     []bool
}

// NewPool creates a pool bound to ctx. workers below 1 means 1.
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		workers: workers,
		queue:   make(chan slot[T], workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool[T]) Workers() int {
	return p.workers
}

// Start launches the workers.
func (p *Pool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool[T]) work() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case s, ok := <-p.queue:
			if !ok || p.ctx.Err() != nil {
				return
			}
			out := s.task(p.ctx)

			p.mu.Lock()
			p.results[s.index] = out
			p.ran[s.index] = true
			p.mu.Unlock()
		}
	}
}

// Submit queues task. Every call takes a result slot; it returns false when
// the pool is already cancelled and the task was dropped.
func (p *Pool[T]) Submit(task Task[T]) bool {
	p.mu.Lock()
	index := len(p.results)
	var zero T
	p.results = append(p.results, zero)
	p.ran = append(p.ran, false)
	p.mu.Unlock()

	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.queue <- slot[T]{index: index, task: task}:
		return true
	}
}

// Wait stops accepting tasks, waits for the workers and returns one result per
// Submit call. Dropped tasks leave the zero value and make the error wrap
// ErrIncomplete together with the context's error.
func (p *Pool[T]) Wait() ([]T, error) {
	p.closeQueue()
	p.wg.Wait()
	err := p.incomplete()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results, err
}

// Shutdown cancels running tasks and returns once every worker has exited.
func (p *Pool[T]) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool[T]) closeQueue() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
}

func (p *Pool[T]) incomplete() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	missing := 0
	for _, ok := range p.ran {
		if !ok {
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	cause := p.ctx.Err()
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %d of %d tasks dropped: %w", ErrIncomplete, missing, len(p.ran), cause)
}
