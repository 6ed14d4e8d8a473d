package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by operations on a runner that has stopped.
var ErrStopped = errors.New("simulation stopped")

// RunnerOptions configures the background worker.
type RunnerOptions struct {
	StepsPerSecond float64         // 0 = unthrottled
	MaxSteps       int64           // stop after this many steps; 0 = unlimited
	OnStep         func(gen int64) // called on the worker after every step, outside the lock
}

// Runner drives a Simulation on one background goroutine.
//
// The worker holds the write lock for the duration of a step. View takes the read
// lock, so readers always observe a step-consistent state. Injections are queued and
// applied by the worker at the start of the next step.
type Runner struct {
	sim  *Simulation
	mu   sync.RWMutex
	opts RunnerOptions

	qmu   sync.Mutex
	queue []Injection

	gen atomic.Int64

	subMu      sync.Mutex
	subs       map[int]chan int64
	nextSub    int
	subsClosed bool

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// NewRunner wraps sim. The runner is idle until Start.
func NewRunner(sim *Simulation, opts RunnerOptions) *Runner {
	if opts.StepsPerSecond == 0 {
		opts.StepsPerSecond = sim.Config().Loop.StepsPerSecond
	}
	return &Runner{
		sim:  sim,
		opts: opts,
		subs: make(map[int]chan int64),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the worker. It returns ErrStopped if the runner was stopped and
// is a no-op if already running. The worker exits when ctx is done, Stop is
// called, or MaxSteps is reached.
func (r *Runner) Start(ctx context.Context) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.run(ctx)
	})
	return nil
}

// Stop asks the worker to exit after the current step and waits for it. Stopping
// is one-way.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		close(r.stop)
	})
	// A runner that never started has no worker to close done.
	r.startOnce.Do(func() {
		r.closeSubscribers()
		close(r.done)
	})
	<-r.done
}

// Done is closed when the worker has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Running reports whether the worker is active.
func (r *Runner) Running() bool {
	return r.started.Load() && !r.stopped.Load()
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	defer r.closeSubscribers()
	defer r.stopped.Store(true)

	var tick <-chan time.Time
	if r.opts.StepsPerSecond > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / r.opts.StepsPerSecond))
		defer ticker.Stop()
		tick = ticker.C
	}

	slog.Info("simulation worker started",
		"n", r.sim.Config().Grid.N,
		"steps_per_second", r.opts.StepsPerSecond,
		"max_steps", r.opts.MaxSteps,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation worker cancelled", "step", r.gen.Load())
			return
		case <-r.stop:
			slog.Info("simulation worker stopped", "step", r.gen.Load())
			return
		default:
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			}
		}

		r.step()

		if r.opts.MaxSteps > 0 && r.gen.Load() >= r.opts.MaxSteps {
			slog.Info("max steps reached", "step", r.gen.Load())
			return
		}
	}
}

// step runs one step under the write lock, then notifies.
func (r *Runner) step() {
	r.qmu.Lock()
	pending := r.queue
	r.queue = nil
	r.qmu.Unlock()

	r.mu.Lock()
	r.sim.Step(pending...)
	gen := r.gen.Add(1)
	r.mu.Unlock()

	if r.opts.OnStep != nil {
		r.opts.OnStep(gen)
	}
	r.notify(gen)
}

// Step runs a single step synchronously. It is meant for callers that drive the
// simulation themselves instead of starting the worker.
func (r *Runner) Step() error {
	if r.stopped.Load() {
		return ErrStopped
	}
	if r.started.Load() {
		return errors.New("runner: Step called while the worker is running")
	}
	r.step()
	return nil
}

// View calls fn with the simulation under the read lock. fn must not retain
// references to field slices after it returns.
func (r *Runner) View(fn func(s *Simulation)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.sim)
}

// Inject validates inj and queues it for the next step. Out-of-range coordinates
// return an error wrapping fluid.ErrOutOfRange.
func (r *Runner) Inject(inj Injection) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	cfg := r.sim.Config()
	if err := inj.Validate(cfg.Grid.N, cfg.Dye.Channels); err != nil {
		return err
	}
	r.qmu.Lock()
	r.queue = append(r.queue, inj)
	r.qmu.Unlock()
	return nil
}

// Generation returns the number of completed steps since the runner was created.
func (r *Runner) Generation() int64 { return r.gen.Load() }

// Subscribe returns a channel that receives the latest generation after each step.
// Notifications coalesce: a slow reader sees only the newest generation. The
// channel is closed when the worker exits; cancel unsubscribes early.
func (r *Runner) Subscribe() (<-chan int64, func()) {
	ch := make(chan int64, 1)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.subsClosed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	cancel := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (r *Runner) notify(gen int64) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- gen:
		default:
			// Drop the stale generation and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- gen:
			default:
			}
		}
	}
}

func (r *Runner) closeSubscribers() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.subsClosed {
		return
	}
	r.subsClosed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}
