// Package door defines the vocabulary shared by the garage agent: the
// physical state read from the reed switch, the status values written to
// the device shadow, and the capability interfaces for the sensor and the
// relay.
//
// Two mappings from a physical reading drive everything the agent reports:
//
//	physical   ReportedFor   TargetFor
//	Closed     "closed"      "opened"
//	Open       "opened"      "closed"
//
// ReportedFor is what the door is doing now; TargetFor is what a toggle
// request will make it do.
package door
