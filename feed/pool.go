package feed

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Job is a unit of work run on a pool worker. ctx is cancelled when the pool
// stops.
type Job func(ctx context.Context)

// Pool runs network calls on a fixed set of worker goroutines so callers
// never block on I/O
type Pool struct {
	maxWorkers int
	queue      chan Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
}

func NewPool(ctx context.Context, maxWorkers int, maxQueueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxQueueSize < 1 {
		maxQueueSize = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		maxWorkers: maxWorkers,
		queue:      make(chan Job, maxQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			p.wg.Add(1)
			go p.startWorker(i)
		}
	})
}

func (p *Pool) startWorker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			log.Debugf("Worker %d: Shutting down", id)
			return
		case job := <-p.queue:
			job(p.ctx)
		}
	}
}

// Submit queues job. It returns false if the pool is stopped or the queue is
// full.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}

	select {
	case p.queue <- job:
		return true
	default:
		log.Warn("Worker queue full, rejecting job")
		return false
	}
}

// Stop cancels running jobs and waits for the workers to exit. Queued jobs
// that have not started are dropped.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}
