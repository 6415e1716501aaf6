package reconcile

import (
	"context"
	"time"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/shadow"
)

// ShadowTransport is what the engine needs from the shadow service.
// *shadow.Client satisfies it.
type ShadowTransport interface {
	SubscribeDesired(thing string, cb func(shadow.DesiredUpdate)) error
	PublishUpdate(ctx context.Context, thing string, reported shadow.ReportedSection, desired shadow.DesiredSection) <-chan error
}

// Logger is the subset of logging.Logger used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventKind identifies what the engine did.
type EventKind string

// Event kinds.
const (
	// EventInitialReport is the reported state published on Start.
	EventInitialReport EventKind = "initial_report"

	// EventSensorEdge is a report published for a sensor transition.
	EventSensorEdge EventKind = "sensor_edge"

	// EventSignal is a handled toggle request: published and pulse queued.
	EventSignal EventKind = "signal"

	// EventSignalDuplicate is a toggle request dropped as a redelivery.
	EventSignalDuplicate EventKind = "signal_duplicate"

	// EventDesiredIgnored is a desired update that was not a toggle request.
	EventDesiredIgnored EventKind = "desired_ignored"

	// EventPulse is a completed relay pulse.
	EventPulse EventKind = "pulse"

	// EventPublishAccepted is a publish the shadow service accepted.
	EventPublishAccepted EventKind = "publish_accepted"

	// EventPublishFailed is a publish that failed or was rejected.
	EventPublishFailed EventKind = "publish_failed"
)

// Event describes one thing the engine did. Fields that do not apply to a
// kind are left at their zero value.
type Event struct {
	Kind             EventKind           `json:"kind"`
	Time             time.Time           `json:"time"`
	Physical         door.PhysicalState  `json:"-"`
	Reported         door.ReportedStatus `json:"reported,omitempty"`
	Desired          door.DesiredCommand `json:"desired,omitempty"`
	CorrelationToken string              `json:"correlationToken,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// Observer receives engine events. Observe may be called from several
// engine goroutines at once and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Stats counts engine activity since Start.
type Stats struct {
	SensorEdges     uint64 `json:"sensorEdges"`
	Signals         uint64 `json:"signals"`
	Duplicates      uint64 `json:"duplicates"`
	Ignored         uint64 `json:"ignored"`
	Pulses          uint64 `json:"pulses"`
	Publishes       uint64 `json:"publishes"`
	PublishFailures uint64 `json:"publishFailures"`
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	Running bool `json:"running"`

	// Physical is the last position the engine read or was told about.
	Physical door.PhysicalState `json:"-"`

	// Reported is Physical as it is reported to the shadow.
	Reported door.ReportedStatus `json:"doorStatus"`

	// PendingToken is true while a toggle request's token waits for the
	// next sensor edge report.
	PendingToken bool `json:"pendingToken"`

	LastEvent time.Time `json:"lastEvent"`
	Stats     Stats     `json:"stats"`
}
