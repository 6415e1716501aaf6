package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDoorEvents   = "door_events"
	MeasurementDoorPosition = "door_position"
)

// DoorEvent is one reconciliation event as written to InfluxDB.
type DoorEvent struct {
	Thing            string
	Kind             string
	Reported         string
	Desired          string
	CorrelationToken string
	Error            string
	Time             time.Time
}

// WriteDoorEvent queues a door_events point, and a door_position point
// when the event carries a reported status. The write is non-blocking.
func (c *Client) WriteDoorEvent(ev DoorEvent) {
	if !c.IsConnected() {
		return
	}
	for _, p := range doorEventPoints(ev) {
		c.writeAPI.WritePoint(p)
	}
}

// doorEventPoints builds the points for ev. Tokens are fields, not tags,
// to keep series cardinality bounded.
func doorEventPoints(ev DoorEvent) []*write.Point {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	fields := map[string]interface{}{
		"failed": ev.Error != "",
	}
	if ev.Reported != "" {
		fields["reported"] = ev.Reported
	}
	if ev.Desired != "" {
		fields["desired"] = ev.Desired
	}
	if ev.CorrelationToken != "" {
		fields["correlation_token"] = ev.CorrelationToken
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
	}

	points := []*write.Point{
		write.NewPoint(MeasurementDoorEvents,
			map[string]string{"thing": ev.Thing, "kind": ev.Kind},
			fields, at),
	}

	if ev.Reported != "" {
		open := 0
		if ev.Reported == "opened" {
			open = 1
		}
		points = append(points, write.NewPoint(MeasurementDoorPosition,
			map[string]string{"thing": ev.Thing},
			map[string]interface{}{"open": open},
			at))
	}

	return points
}
