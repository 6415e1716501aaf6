package door

import "time"

// PhysicalState is the binary reading of the reed switch.
// The values match the input pin level: low is closed, high is open.
type PhysicalState int

const (
	// Closed means the reed switch is open-circuit and the pin reads low.
	Closed PhysicalState = 0

	// Open means the pin reads high.
	Open PhysicalState = 1
)

// String returns "open" or "closed".
func (s PhysicalState) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// ReportedStatus is the doorStatus value in the shadow's reported section.
type ReportedStatus string

// Reported statuses.
const (
	StatusOpened ReportedStatus = "opened"
	StatusClosed ReportedStatus = "closed"
)

// DesiredCommand is the doorStatus value in the shadow's desired section.
// Remote callers set CommandSignaled; the agent writes CommandOpened or
// CommandClosed back as the target after acting on it.
type DesiredCommand string

// Desired commands.
const (
	CommandNone     DesiredCommand = ""
	CommandSignaled DesiredCommand = "signaled"
	CommandOpened   DesiredCommand = "opened"
	CommandClosed   DesiredCommand = "closed"
)

// IsSignal reports whether the command asks for a toggle.
func (c DesiredCommand) IsSignal() bool {
	return c == CommandSignaled
}

// ReportedFor maps a physical reading to the status reported for it.
func ReportedFor(s PhysicalState) ReportedStatus {
	if s == Closed {
		return StatusClosed
	}
	return StatusOpened
}

// TargetFor returns the state a toggle moves the door to: the opposite of
// the current reading.
func TargetFor(s PhysicalState) DesiredCommand {
	if s == Open {
		return CommandClosed
	}
	return CommandOpened
}

// Sensor exposes the door position.
type Sensor interface {
	// Read returns the current position. It has no side effects.
	Read() PhysicalState

	// OnEdge registers the transition callbacks. A second call replaces the
	// first registration. Callbacks run on a goroutine owned by the sensor.
	OnEdge(onOpen, onClose func())
}

// Actuator presses the door opener button.
type Actuator interface {
	// Signal closes the relay, holds it for pulse, then releases it. It
	// blocks for the whole pulse and reports nothing back.
	Signal(pulse time.Duration)
}
