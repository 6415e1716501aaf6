package gpio

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/nerrad567/rpigarage/internal/door"
)

// defaultEdgePoll bounds a single WaitForEdge call when none is configured.
const defaultEdgePoll = time.Second

var (
	hostOnce sync.Once
	hostErr  error
)

// initHost loads the periph host drivers once per process.
func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("%w: %w", ErrHostInit, err)
		}
	})
	return hostErr
}

// lookupPin resolves a BCM GPIO number to a pin.
func lookupPin(number int) (gpio.PinIO, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(strconv.Itoa(number))
	if p == nil {
		return nil, fmt.Errorf("%w: GPIO%d", ErrPinNotFound, number)
	}
	return p, nil
}

// PeriphSensor reads the reed switch and watches it for transitions.
//
// A watcher goroutine blocks in WaitForEdge for at most the poll interval,
// then compares the pin level with the last seen level. Only real level
// changes fire callbacks, so contact bounce that settles back to the same
// level is swallowed and an edge missed by the driver is still caught on
// the next poll.
type PeriphSensor struct {
	pin  gpio.PinIO
	poll time.Duration

	mu      sync.Mutex
	onOpen  func()
	onClose func()

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPeriphSensor configures the given BCM pin as the reed switch input.
func NewPeriphSensor(number int, poll time.Duration) (*PeriphSensor, error) {
	p, err := lookupPin(number)
	if err != nil {
		return nil, err
	}
	return newPeriphSensor(p, poll)
}

func newPeriphSensor(p gpio.PinIO, poll time.Duration) (*PeriphSensor, error) {
	if err := p.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("%w: %s as input: %w", ErrPinSetup, p.Name(), err)
	}
	if poll <= 0 {
		poll = defaultEdgePoll
	}

	s := &PeriphSensor{
		pin:  p,
		poll: poll,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.watch(p.Read())
	return s, nil
}

// Read returns the current reed switch position.
func (s *PeriphSensor) Read() door.PhysicalState {
	return levelToState(s.pin.Read())
}

// OnEdge replaces the transition callbacks.
func (s *PeriphSensor) OnEdge(onOpen, onClose func()) {
	s.mu.Lock()
	s.onOpen, s.onClose = onOpen, onClose
	s.mu.Unlock()
}

// Close stops the watcher and releases the pin.
func (s *PeriphSensor) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		err = s.pin.Halt()
	})
	return err
}

func (s *PeriphSensor) watch(last gpio.Level) {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.pin.WaitForEdge(s.poll)

		level := s.pin.Read()
		if level == last {
			continue
		}
		last = level
		s.fire(levelToState(level))
	}
}

func (s *PeriphSensor) fire(state door.PhysicalState) {
	s.mu.Lock()
	cb := s.onClose
	if state == door.Open {
		cb = s.onOpen
	}
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func levelToState(l gpio.Level) door.PhysicalState {
	if l == gpio.High {
		return door.Open
	}
	return door.Closed
}

// PeriphRelay drives the opener relay. It is active high.
type PeriphRelay struct {
	pin    gpio.PinIO
	logger Logger
	mu     sync.Mutex
}

// NewPeriphRelay configures the given BCM pin as the relay output, released.
func NewPeriphRelay(number int, logger Logger) (*PeriphRelay, error) {
	p, err := lookupPin(number)
	if err != nil {
		return nil, err
	}
	return newPeriphRelay(p, logger)
}

func newPeriphRelay(p gpio.PinIO, logger Logger) (*PeriphRelay, error) {
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: %s as output: %w", ErrPinSetup, p.Name(), err)
	}
	return &PeriphRelay{pin: p, logger: logger}, nil
}

// Signal closes the relay for pulse. Overlapping calls are serialised.
func (r *PeriphRelay) Signal(pulse time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pin.Out(gpio.High); err != nil {
		r.warn("relay assert failed", err)
		return
	}
	time.Sleep(pulse)
	if err := r.pin.Out(gpio.Low); err != nil {
		r.warn("relay release failed", err)
	}
}

// Close releases the relay and the pin.
func (r *PeriphRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("releasing relay: %w", err)
	}
	return r.pin.Halt()
}

func (r *PeriphRelay) warn(msg string, err error) {
	if r.logger != nil {
		r.logger.Warn(msg, "pin", r.pin.Name(), "error", err)
	}
}
