// Package history keeps a local journal of door reconciliation events.
//
// The journal is a SQLite table (door_events) written by a Recorder that
// observes the reconcile engine. Writes happen on the recorder's own
// goroutine, so a slow disk never holds up the event loop; when the buffer
// is full, events are dropped and counted.
//
// The journal answers "what happened to the door recently" from the
// status API even when the shadow service is unreachable. Old rows are
// pruned on a timer according to the configured retention.
package history
