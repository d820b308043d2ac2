package flipr

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/scheduler"
)

// Poller runs one fetch immediately on Start and then on every interval
// until Stop. A cycle still running when the next one is due is skipped.
type Poller struct {
	name     string
	interval time.Duration
	sched    scheduler.Scheduler
	cycle    func(ctx context.Context)
	log      *zap.SugaredLogger

	mu      sync.Mutex
	running bool
	jobID   int
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	busy sync.Mutex
}

func NewPoller(name string, interval time.Duration, sched scheduler.Scheduler, cycle func(ctx context.Context), log *zap.SugaredLogger) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		sched:    sched,
		cycle:    cycle,
		log:      log,
	}
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	id, err := p.sched.AddFunc(scheduler.Every(p.interval), func() { p.tick(ctx) })
	if err != nil {
		cancel()
		return err
	}

	p.running = true
	p.jobID = id
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
	return nil
}

// Stop removes the schedule, cancels in-flight requests and waits for the
// current cycle to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.sched.RemoveFunc(p.jobID)
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !p.busy.TryLock() {
		p.log.Debugw("previous poll still running, skipping", "accessory", p.name)
		return
	}
	defer p.busy.Unlock()
	p.cycle(ctx)
}
