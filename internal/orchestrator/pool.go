package orchestrator

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/stanstork/reconciler/internal/metrics"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
// Submit blocks while the queue is full.
type Pool struct {
	size    int
	queue   chan func(context.Context)
	done    chan struct{}
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	group   *errgroup.Group
	senders sync.WaitGroup
}

func NewPool(size, queueSize int, m *metrics.Metrics) *Pool {
	if size <= 0 {
		size = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		size:    size,
		queue:   make(chan func(context.Context), queueSize),
		done:    make(chan struct{}),
		metrics: m,
	}
}

// Start launches the workers. Tasks receive ctx; cancelling it does not
// drop queued tasks, Stop drains them and they see the cancelled ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for task := range p.queue {
				p.metrics.SetQueueDepth(len(p.queue))
				task(gctx)
			}
			return nil
		})
	}
	p.group = g
}

func (p *Pool) Submit(ctx context.Context, task func(context.Context)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.senders.Add(1)
	p.mu.RUnlock()
	defer p.senders.Done()

	select {
	case p.queue <- task:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks and waits for queued and running ones. When the
// pool was never started, queued tasks run inline with a cancelled context.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	g := p.group
	p.mu.Unlock()

	// no sender can be mid-send once this returns, so closing the queue is safe
	p.senders.Wait()
	close(p.queue)

	if g == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		for task := range p.queue {
			task(ctx)
		}
		return nil
	}
	return g.Wait()
}
