package gpio

import (
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger used by the drivers.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Hardware bundles the door sensor and relay for one driver.
type Hardware struct {
	Sensor door.Sensor
	Relay  door.Actuator

	// Sim is set when the sim driver is in use, so the bench can move the
	// door by hand.
	Sim *SimDoor

	closers []io.Closer
}

// Open sets up the sensor on reedPin and the relay on relayPin using the
// configured driver.
//
// Parameters:
//   - cfg: Hardware configuration (driver, edge poll, sim travel time)
//   - relayPin: BCM number of the relay output
//   - reedPin: BCM number of the reed switch input
//   - logger: Optional logger for relay failures (may be nil)
//
// Returns:
//   - *Hardware: Ready sensor and relay; Close releases both
//   - error: ErrUnknownDriver, ErrHostInit, ErrPinNotFound or ErrPinSetup
func Open(cfg config.HardwareConfig, relayPin, reedPin int, logger Logger) (*Hardware, error) {
	switch cfg.Driver {
	case config.DriverSim:
		d := NewSimDoor(door.Closed, cfg.SimTravelTime)
		sensor, relay := NewSimSensor(d), NewSimRelay(d)
		if logger != nil {
			logger.Info("using simulated door", "travel_time", cfg.SimTravelTime)
		}
		return &Hardware{
			Sensor:  sensor,
			Relay:   relay,
			Sim:     d,
			closers: []io.Closer{relay, sensor},
		}, nil

	case config.DriverPeriph, "":
		relay, err := NewPeriphRelay(relayPin, logger)
		if err != nil {
			return nil, fmt.Errorf("opening relay: %w", err)
		}
		sensor, err := NewPeriphSensor(reedPin, cfg.EdgePollInterval)
		if err != nil {
			_ = relay.Close()
			return nil, fmt.Errorf("opening reed sensor: %w", err)
		}
		return &Hardware{
			Sensor:  sensor,
			Relay:   relay,
			closers: []io.Closer{relay, sensor},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Close releases the relay and the sensor.
func (h *Hardware) Close() error {
	var errs []error
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
