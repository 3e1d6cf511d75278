package worker

import (
	"context"
	"errors"
	"sync"

	"creditchat/backend/pkg/logger"
)

// ErrPoolClosed is returned by Submit after Shutdown has started.
var ErrPoolClosed = errors.New("worker pool closed")

// ErrPoolBusy is returned by Submit when the queue is full.
var ErrPoolBusy = errors.New("worker pool queue full")

// Task is a unit of work executed on a pool worker. The context passed in is
// the pool's run context, not the submitting request's context, so work
// survives client disconnects and ends only at pool shutdown or completion.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of goroutines with a bounded queue.
type Pool struct {
	tasks   chan Task
	log     *logger.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given worker count and queue depth.
func NewPool(workers, queueDepth int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan Task, queueDepth),
		log:     log,
		baseCtx: ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	return p
}

func (p *Pool) run(slot int) {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("Worker task panicked", "slot", slot, "panic", r)
				}
			}()
			task(p.baseCtx)
		}()
	}
}

// Submit enqueues a task. It fails fast with ErrPoolBusy when the queue is
// full and ErrPoolClosed once shutdown has begun.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolBusy
	}
}

// Shutdown stops accepting work and waits for in-flight tasks to drain.
// When ctx expires first, the pool's run context is cancelled so running
// tasks can observe it and bail out.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
