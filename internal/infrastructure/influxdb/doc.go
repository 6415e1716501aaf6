// Package influxdb exports door activity to InfluxDB.
//
// Every reconciliation event becomes a door_events point tagged with the
// thing name and event kind. Events that carry a reported status also
// produce a door_position point (open=1, closed=0), which graphs how long
// the door stays open.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDoorEvent(influxdb.DoorEvent{Thing: "GarageDoor", Kind: "sensor_edge", Reported: "opened"})
//
// # Error Handling
//
// Writes are batched and non-blocking. Failures surface through the
// SetOnError callback; connection and health check errors are returned
// directly.
package influxdb
