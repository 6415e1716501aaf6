package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/infrastructure/config"
)

func TestSimDoor_PulseOpensImmediately(t *testing.T) {
	d := NewSimDoor(door.Closed, time.Hour)
	sensor, relay := NewSimSensor(d), NewSimRelay(d)
	onOpen, onClose, events := edgeRecorder()
	sensor.OnEdge(onOpen, onClose)

	relay.Signal(time.Millisecond)

	assert.Equal(t, door.Open, waitEdge(t, events))
	assert.Equal(t, door.Open, sensor.Read())
	assert.Equal(t, 1, d.Pulses())
}

func TestSimDoor_PulseClosesAfterTravel(t *testing.T) {
	d := NewSimDoor(door.Open, 50*time.Millisecond)
	sensor, relay := NewSimSensor(d), NewSimRelay(d)
	onOpen, onClose, events := edgeRecorder()
	sensor.OnEdge(onOpen, onClose)

	relay.Signal(time.Millisecond)
	assert.Equal(t, door.Open, sensor.Read(), "still open while travelling")

	assert.Equal(t, door.Closed, waitEdge(t, events))
	assert.Equal(t, door.Closed, sensor.Read())
}

func TestSimDoor_PulseWhileClosingStops(t *testing.T) {
	d := NewSimDoor(door.Open, 100*time.Millisecond)
	sensor, relay := NewSimSensor(d), NewSimRelay(d)
	onOpen, onClose, events := edgeRecorder()
	sensor.OnEdge(onOpen, onClose)

	relay.Signal(time.Millisecond)
	relay.Signal(time.Millisecond)

	select {
	case got := <-events:
		t.Fatalf("unexpected edge %s after stopping", got)
	case <-time.After(250 * time.Millisecond):
	}
	assert.Equal(t, door.Open, sensor.Read())
	assert.Equal(t, 2, d.Pulses())
}

func TestSimDoor_SetFiresOnlyOnChange(t *testing.T) {
	d := NewSimDoor(door.Closed, time.Second)
	sensor := NewSimSensor(d)
	onOpen, onClose, events := edgeRecorder()
	sensor.OnEdge(onOpen, onClose)

	d.Set(door.Closed)
	assert.Empty(t, events)

	d.Set(door.Open)
	assert.Equal(t, door.Open, waitEdge(t, events))
}

func TestSimSensor_CloseDetachesCallbacks(t *testing.T) {
	d := NewSimDoor(door.Closed, time.Second)
	sensor := NewSimSensor(d)
	onOpen, onClose, events := edgeRecorder()
	sensor.OnEdge(onOpen, onClose)

	require.NoError(t, sensor.Close())
	d.Set(door.Open)

	assert.Empty(t, events)
}

func TestOpen_SimDriver(t *testing.T) {
	hw, err := Open(config.HardwareConfig{Driver: config.DriverSim, SimTravelTime: time.Second}, 17, 27, nil)
	require.NoError(t, err)
	defer hw.Close()

	require.NotNil(t, hw.Sim)
	assert.Equal(t, door.Closed, hw.Sensor.Read())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.HardwareConfig{Driver: "wiringpi"}, 17, 27, nil)
	assert.True(t, errors.Is(err, ErrUnknownDriver))
}
