package worker

import (
	"context"
	"sync"
	"sync/atomic"
)

type ProcessFunc[T any] func(ctx context.Context, job T) error

type WorkerPool[T any] struct {
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	wg         sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
}

type Stats struct {
	Succeeded int64
	Failed    int64
}

func NewWorkerPool[T any](numWorkers int, bufferSize int, processor ProcessFunc[T]) *WorkerPool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
	}
}

func (wp *WorkerPool[T]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
}

func (wp *WorkerPool[T]) worker(ctx context.Context) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := wp.processor(ctx, job); err != nil {
				wp.failed.Add(1)
			} else {
				wp.succeeded.Add(1)
			}
		}
	}
}

// Submit queues job, blocking while the buffer is full. It gives up and
// returns ctx.Err() once ctx is done.
func (wp *WorkerPool[T]) Submit(ctx context.Context, job T) error {
	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits for workers to drain it. Submit must not be
// called after Stop.
func (wp *WorkerPool[T]) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
}

func (wp *WorkerPool[T]) Stats() Stats {
	return Stats{
		Succeeded: wp.succeeded.Load(),
		Failed:    wp.failed.Load(),
	}
}
