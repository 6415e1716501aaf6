package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rpigarage/internal/reconcile"
)

const (
	defaultBufferSize    = 128
	defaultPruneInterval = time.Hour
	writeTimeout         = 5 * time.Second
)

// Logger is the subset of logging.Logger used by the recorder.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// BufferSize is how many events may wait to be written.
	BufferSize int

	// Retention is how long rows are kept. Zero disables pruning.
	Retention time.Duration

	// PruneInterval is how often old rows are pruned.
	PruneInterval time.Duration

	Logger Logger
}

// Recorder writes engine events to a Repository in the background.
// It implements reconcile.Observer.
type Recorder struct {
	repo   Repository
	opts   RecorderOptions
	events chan reconcile.Event

	dropped atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started bool
}

// NewRecorder creates a recorder. Call Start before handing it to the engine.
func NewRecorder(repo Repository, opts RecorderOptions) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Recorder{
		repo:   repo,
		opts:   opts,
		events: make(chan reconcile.Event, opts.BufferSize),
		done:   make(chan struct{}),
	}
}

// Observe queues ev for writing. It never blocks; events arriving while the
// buffer is full, or after Close, are dropped.
func (r *Recorder) Observe(ev reconcile.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- ev:
	default:
		if r.dropped.Add(1) == 1 {
			r.opts.Logger.Warn("door event journal is falling behind, dropping events")
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Start launches the writer goroutine. It prunes once at startup when
// retention is set.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.run(context.WithoutCancel(ctx))
}

// Close stops accepting events, writes what is already queued and waits
// for the writer to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	var prune <-chan time.Time
	if r.opts.Retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(r.opts.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.write(ctx, ev)
		case <-prune:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev reconcile.Event) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, ev); err != nil {
		r.opts.Logger.Error("recording door event", "kind", string(ev.Kind), "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	n, err := r.repo.Prune(ctx, r.opts.Retention)
	if err != nil {
		r.opts.Logger.Error("pruning door event journal", "error", err)
		return
	}
	if n > 0 {
		r.opts.Logger.Info("pruned door event journal", "rows", n, "retention", r.opts.Retention)
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
