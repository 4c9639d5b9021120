package services

import (
	"context"
	"sync"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// job is a unit of background work.
type job struct {
	name string
	run  func(ctx context.Context) error
}

// workerPool runs background ingestion with bounded concurrency.
// Close stops accepting work and waits for queued jobs to finish.
type workerPool struct {
	queue chan job

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWorkerPool(workers, queueSize int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}
	p := &workerPool{
		queue:   make(chan job, queueSize),
		running: true,
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *workerPool) work() {
	defer p.wg.Done()
	for j := range p.queue {
		// Jobs outlive the request that submitted them.
		if err := j.run(context.Background()); err != nil {
			logger.Error("background %s failed: %v", j.name, err)
			continue
		}
		logger.Debug("background %s done", j.name)
	}
}

// Submit queues a job. It blocks only while the queue is full.
func (p *workerPool) Submit(ctx context.Context, name string, run func(ctx context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return domain.ErrClosed
	}

	select {
	case p.queue <- job{name: name, run: run}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return domain.ErrClosed
	}
}

// Close drains queued jobs. It returns early with ctx's error if ctx ends first.
func (p *workerPool) Close(ctx context.Context) error {
	// Unblock submitters waiting on a full queue before taking the write lock.
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	if p.running {
		p.running = false
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
