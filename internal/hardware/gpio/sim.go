package gpio

import (
	"sync"
	"time"

	"github.com/nerrad567/rpigarage/internal/door"
)

// SimDoor is an in-memory garage door driven by SimRelay and observed by
// SimSensor.
//
// A pulse on a closed door reports Open straight away (the door leaves the
// reed switch) and finishes travelling after travelTime. A pulse on an
// open door reports Closed only after travelTime. A pulse while the door
// is still travelling down stops it, leaving it open.
type SimDoor struct {
	travelTime time.Duration

	mu      sync.Mutex
	state   door.PhysicalState
	closing *time.Timer
	pulses  int
	onOpen  func()
	onClose func()
}

// NewSimDoor returns a simulated door in the given position.
func NewSimDoor(initial door.PhysicalState, travelTime time.Duration) *SimDoor {
	return &SimDoor{state: initial, travelTime: travelTime}
}

// State returns the simulated reed switch position.
func (d *SimDoor) State() door.PhysicalState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Pulses returns how many times the relay has been pressed.
func (d *SimDoor) Pulses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pulses
}

// Set moves the door by hand, as if someone used the wall button.
// Callbacks fire only if the position changes.
func (d *SimDoor) Set(state door.PhysicalState) {
	d.mu.Lock()
	if d.closing != nil {
		d.closing.Stop()
		d.closing = nil
	}
	d.setLocked(state)
}

// press handles one relay pulse.
func (d *SimDoor) press() {
	d.mu.Lock()
	d.pulses++

	if d.closing != nil {
		d.closing.Stop()
		d.closing = nil
		d.mu.Unlock()
		return
	}

	if d.state == door.Closed {
		d.setLocked(door.Open)
		return
	}

	d.closing = time.AfterFunc(d.travelTime, func() {
		d.mu.Lock()
		d.closing = nil
		d.setLocked(door.Closed)
	})
	d.mu.Unlock()
}

// setLocked changes state and fires the matching callback after unlocking.
// It must be called with d.mu held and releases it.
func (d *SimDoor) setLocked(state door.PhysicalState) {
	if d.state == state {
		d.mu.Unlock()
		return
	}
	d.state = state
	cb := d.onClose
	if state == door.Open {
		cb = d.onOpen
	}
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (d *SimDoor) register(onOpen, onClose func()) {
	d.mu.Lock()
	d.onOpen, d.onClose = onOpen, onClose
	d.mu.Unlock()
}

// stop cancels any travel in progress.
func (d *SimDoor) stop() {
	d.mu.Lock()
	if d.closing != nil {
		d.closing.Stop()
		d.closing = nil
	}
	d.mu.Unlock()
}

// SimSensor is the reed switch of a SimDoor.
type SimSensor struct {
	door *SimDoor
}

// NewSimSensor returns a sensor observing d.
func NewSimSensor(d *SimDoor) *SimSensor {
	return &SimSensor{door: d}
}

// Read returns the simulated position.
func (s *SimSensor) Read() door.PhysicalState {
	return s.door.State()
}

// OnEdge replaces the transition callbacks.
func (s *SimSensor) OnEdge(onOpen, onClose func()) {
	s.door.register(onOpen, onClose)
}

// Close detaches the callbacks.
func (s *SimSensor) Close() error {
	s.door.register(nil, nil)
	return nil
}

// SimRelay is the opener relay of a SimDoor.
type SimRelay struct {
	door *SimDoor
	mu   sync.Mutex
}

// NewSimRelay returns a relay that drives d.
func NewSimRelay(d *SimDoor) *SimRelay {
	return &SimRelay{door: d}
}

// Signal holds the simulated button for pulse, then the door reacts.
func (r *SimRelay) Signal(pulse time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	time.Sleep(pulse)
	r.door.press()
}

// Close stops any travel in progress.
func (r *SimRelay) Close() error {
	r.door.stop()
	return nil
}
