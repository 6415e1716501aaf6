package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/shadow"
)

// Engine defaults.
const (
	// DefaultPulseDuration is how long the relay is held per toggle.
	DefaultPulseDuration = 500 * time.Millisecond

	// DefaultQueueSize is the capacity of the event queue.
	DefaultQueueSize = 64

	// dedupeWindow is how many recent toggle tokens are remembered.
	dedupeWindow = 16

	// pulseQueueSize bounds pulses waiting for the actuation worker.
	pulseQueueSize = 8
)

// Options configures an Engine.
type Options struct {
	// Thing is the shadow the engine reports to.
	Thing string

	// EndpointID is written into every section the engine publishes.
	EndpointID string

	// PulseDuration defaults to DefaultPulseDuration.
	PulseDuration time.Duration

	// QueueSize defaults to DefaultQueueSize.
	QueueSize int

	Logger    Logger
	Observers []Observer
}

type inputKind int

const (
	inputInitial inputKind = iota
	inputEdge
	inputDesired
)

// input is one queued event.
type input struct {
	kind    inputKind
	state   door.PhysicalState
	desired shadow.DesiredUpdate
}

// pulseRequest asks the actuation worker for one relay pulse.
type pulseRequest struct {
	token string
}

// Engine reconciles the door with its device shadow.
//
// Thread Safety:
//   - OnSensorEdge, OnDesiredUpdate and Snapshot are safe for concurrent use.
//   - Start and Stop may each be called once.
type Engine struct {
	sensor   door.Sensor
	actuator door.Actuator
	shadow   ShadowTransport
	opts     Options
	logger   Logger

	events chan input
	pulses chan pulseRequest
	quit   chan struct{}

	lifeMu    sync.Mutex
	started   atomic.Bool
	stopOnce  sync.Once
	loopDone  chan struct{}
	workDone  chan struct{}
	publishWG sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	// Owned by the event loop.
	slot   string
	recent [dedupeWindow]string
	next   int

	// Observable copy of engine state for Snapshot.
	mu       sync.Mutex
	snapshot Snapshot
}

// New creates an Engine. Nothing runs until Start.
func New(sensor door.Sensor, actuator door.Actuator, transport ShadowTransport, opts Options) *Engine {
	if opts.PulseDuration <= 0 {
		opts.PulseDuration = DefaultPulseDuration
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Engine{
		sensor:   sensor,
		actuator: actuator,
		shadow:   transport,
		opts:     opts,
		logger:   logger,
		events:   make(chan input, opts.QueueSize),
		pulses:   make(chan pulseRequest, pulseQueueSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		workDone: make(chan struct{}),
	}
}

// Start launches the event loop and actuation worker, subscribes to
// desired updates, attaches the sensor callbacks and queues an initial
// report of the current door position.
//
// Cancelling ctx does not stop the engine; call Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	select {
	case <-e.quit:
		e.lifeMu.Unlock()
		return ErrStopped
	default:
	}
	if e.started.Load() {
		e.lifeMu.Unlock()
		return ErrAlreadyStarted
	}

	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.started.Store(true)

	e.mu.Lock()
	e.snapshot.Running = true
	e.mu.Unlock()

	go e.loop()
	go e.work()
	e.lifeMu.Unlock()

	// Queued first so it is handled before any edge or request.
	if err := e.enqueue(input{kind: inputInitial}); err != nil {
		e.Stop()
		return err
	}

	if err := e.shadow.SubscribeDesired(e.opts.Thing, func(u shadow.DesiredUpdate) {
		if err := e.OnDesiredUpdate(u); err != nil {
			e.logger.Debug("desired update dropped", "error", err)
		}
	}); err != nil {
		e.Stop()
		return err
	}

	e.sensor.OnEdge(
		func() { e.edge(door.Open) },
		func() { e.edge(door.Closed) },
	)

	e.logger.Info("reconciliation engine started",
		"thing", e.opts.Thing,
		"pulse_duration", e.opts.PulseDuration,
	)
	return nil
}

// Stop stops accepting input, handles what is already queued, waits for
// queued pulses to finish and then abandons outstanding publish
// acknowledgments. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.lifeMu.Lock()
		close(e.quit)
		started := e.started.Load()
		e.lifeMu.Unlock()
		if !started {
			return
		}

		e.sensor.OnEdge(nil, nil)
		<-e.loopDone
		<-e.workDone
		e.cancel()
		e.publishWG.Wait()

		e.mu.Lock()
		e.snapshot.Running = false
		e.mu.Unlock()

		e.logger.Info("reconciliation engine stopped")
	})
}

// OnSensorEdge queues a sensor transition.
func (e *Engine) OnSensorEdge(state door.PhysicalState) error {
	return e.enqueue(input{kind: inputEdge, state: state})
}

// OnDesiredUpdate queues an accepted desired update.
func (e *Engine) OnDesiredUpdate(u shadow.DesiredUpdate) error {
	return e.enqueue(input{kind: inputDesired, desired: u})
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

func (e *Engine) edge(state door.PhysicalState) {
	if err := e.OnSensorEdge(state); err != nil {
		e.logger.Debug("sensor edge dropped", "state", state.String(), "error", err)
	}
}

// enqueue blocks while the queue is full, until the engine stops.
func (e *Engine) enqueue(in input) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-e.quit:
		return ErrStopped
	default:
	}

	select {
	case e.events <- in:
		return nil
	case <-e.quit:
		return ErrStopped
	}
}

// loop is the single consumer of the event queue.
func (e *Engine) loop() {
	defer close(e.loopDone)
	defer close(e.pulses)

	for {
		select {
		case in := <-e.events:
			e.handle(in)
		case <-e.quit:
			for {
				select {
				case in := <-e.events:
					e.handle(in)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) handle(in input) {
	switch in.kind {
	case inputInitial:
		e.report(EventInitialReport, e.sensor.Read())
	case inputEdge:
		e.report(EventSensorEdge, in.state)
	case inputDesired:
		e.handleDesired(in.desired)
	}
}

// report publishes the door position with whatever token is waiting, as
// an echo-only desired section, then clears the slot.
func (e *Engine) report(kind EventKind, state door.PhysicalState) {
	token := e.slot
	status := door.ReportedFor(state)

	e.publish(
		shadow.ReportedSection{DoorStatus: status, CorrelationToken: shadow.Token(token), EndpointID: e.opts.EndpointID},
		shadow.DesiredSection{CorrelationToken: shadow.Token(token), EndpointID: e.opts.EndpointID},
		token,
	)
	e.slot = ""

	e.logger.Info("door status reported",
		"status", string(status),
		"correlation_token", token,
		"initial", kind == EventInitialReport,
	)

	e.update(func(s *Snapshot) {
		s.Physical = state
		s.Reported = status
		s.PendingToken = false
		if kind == EventSensorEdge {
			s.Stats.SensorEdges++
		}
	})
	e.emit(Event{Kind: kind, Physical: state, Reported: status, CorrelationToken: token})
}

// handleDesired acts on a toggle request. Anything else is ignored.
func (e *Engine) handleDesired(u shadow.DesiredUpdate) {
	if !u.DoorStatus.IsSignal() {
		e.logger.Debug("ignoring desired update", "door_status", string(u.DoorStatus), "version", u.Version)
		e.update(func(s *Snapshot) { s.Stats.Ignored++ })
		e.emit(Event{Kind: EventDesiredIgnored, Desired: u.DoorStatus, CorrelationToken: u.CorrelationToken})
		return
	}

	token := u.CorrelationToken
	if e.seen(token) {
		e.logger.Info("dropping redelivered toggle request", "correlation_token", token)
		e.update(func(s *Snapshot) { s.Stats.Duplicates++ })
		e.emit(Event{Kind: EventSignalDuplicate, Desired: u.DoorStatus, CorrelationToken: token})
		return
	}
	e.remember(token)

	physical := e.sensor.Read()
	current := door.ReportedFor(physical)
	target := door.TargetFor(physical)

	e.slot = token
	e.publish(
		shadow.ReportedSection{DoorStatus: current, CorrelationToken: shadow.Token(token), EndpointID: e.opts.EndpointID},
		shadow.DesiredSection{DoorStatus: target, CorrelationToken: shadow.Token(token), EndpointID: e.opts.EndpointID},
		token,
	)

	e.logger.Info("toggle requested",
		"current", string(current),
		"target", string(target),
		"correlation_token", token,
	)

	e.update(func(s *Snapshot) {
		s.Physical = physical
		s.Reported = current
		s.PendingToken = token != ""
		s.Stats.Signals++
	})
	e.emit(Event{Kind: EventSignal, Physical: physical, Reported: current, Desired: target, CorrelationToken: token})

	// Only now, after the publish has gone out, may the relay move.
	e.pulses <- pulseRequest{token: token}
}

// seen reports whether a non-empty token was handled recently.
func (e *Engine) seen(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range e.recent {
		if t == token {
			return true
		}
	}
	return false
}

func (e *Engine) remember(token string) {
	if token == "" {
		return
	}
	e.recent[e.next] = token
	e.next = (e.next + 1) % dedupeWindow
}

// publish issues the update and watches its outcome off the loop.
func (e *Engine) publish(reported shadow.ReportedSection, desired shadow.DesiredSection, token string) {
	done := e.shadow.PublishUpdate(e.ctx, e.opts.Thing, reported, desired)
	e.update(func(s *Snapshot) { s.Stats.Publishes++ })

	e.publishWG.Add(1)
	go func() {
		defer e.publishWG.Done()

		err := <-done
		if err == nil {
			e.emit(Event{Kind: EventPublishAccepted, Reported: reported.DoorStatus, Desired: desired.DoorStatus, CorrelationToken: token})
			return
		}

		if e.ctx.Err() != nil {
			e.logger.Debug("publish outcome abandoned at shutdown", "correlation_token", token, "error", err)
			return
		}

		e.logger.Error("shadow update failed",
			"reported", string(reported.DoorStatus),
			"desired", string(desired.DoorStatus),
			"correlation_token", token,
			"error", err,
		)
		e.update(func(s *Snapshot) { s.Stats.PublishFailures++ })
		e.emit(Event{Kind: EventPublishFailed, Reported: reported.DoorStatus, Desired: desired.DoorStatus, CorrelationToken: token, Error: err.Error()})
	}()
}

// work is the actuation worker.
func (e *Engine) work() {
	defer close(e.workDone)

	for req := range e.pulses {
		e.actuator.Signal(e.opts.PulseDuration)

		e.logger.Info("relay pulsed", "duration", e.opts.PulseDuration, "correlation_token", req.token)
		e.update(func(s *Snapshot) { s.Stats.Pulses++ })
		e.emit(Event{Kind: EventPulse, CorrelationToken: req.token})
	}
}

func (e *Engine) update(fn func(*Snapshot)) {
	e.mu.Lock()
	fn(&e.snapshot)
	e.snapshot.LastEvent = time.Now()
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, o := range e.opts.Observers {
		o.Observe(ev)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
