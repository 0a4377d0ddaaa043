package concurrent

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs jobs on a fixed set of goroutines fed by a bounded queue. Submission
// never blocks: a full queue is reported to the caller, who keeps the job and
// retries later. A handler error stops the whole pool and is returned by Close.
type Pool[J any] struct {
	jobs   chan J
	group  *errgroup.Group
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewPool[J any](ctx context.Context, workers, queue int, handle func(context.Context, J) error) *Pool[J] {
	workers = max(workers, 1)
	queue = max(queue, workers)

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool[J]{
		jobs:   make(chan J, queue),
		group:  group,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job, ok := <-p.jobs:
					if !ok {
						return nil
					}
					if err := handle(gctx, job); err != nil {
						return err
					}
				}
			}
		})
	}
	return p
}

// TrySubmit queues job if there is room. It returns ErrPoolClosed after Close
// and false when the queue is full.
func (p *Pool[J]) TrySubmit(job J) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return true, nil
	default:
		return false, nil
	}
}

// Close stops accepting jobs, lets workers drain the queue and waits for them.
func (p *Pool[J]) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	err := p.group.Wait()
	p.cancel()
	return err
}

// Stop cancels running handlers and abandons queued jobs.
func (p *Pool[J]) Stop() error {
	p.cancel()
	return p.Close()
}
