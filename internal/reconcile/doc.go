// Package reconcile keeps the device shadow in step with the garage door.
//
// The Engine reacts to two kinds of input:
//
//   - Sensor edges. The new position is published as reported state,
//     together with whatever correlation token is waiting to be confirmed,
//     and the token slot is then cleared.
//   - Accepted desired updates. Only doorStatus "signaled" is acted on: the
//     engine reads the door, publishes what it is doing now (reported) and
//     what it is about to become (desired), both tagged with the caller's
//     token, and then pulses the relay.
//
// # Concurrency
//
// Both inputs are queued onto one ordered channel with a single consumer
// goroutine, which owns the correlation token slot. Sensor and shadow
// callbacks only enqueue, so they never race on the slot and never wait
// for the relay. Relay pulses run on a separate actuation worker; a pulse
// is queued only after its publish has been issued.
//
//	sensor ─┐                          ┌─▶ shadow.PublishUpdate
//	        ├─▶ events ─▶ event loop ──┤
//	shadow ─┘                          └─▶ pulses ─▶ actuation worker ─▶ relay
//
// Publish outcomes are awaited off the loop; failures are logged and
// reported to observers, never retried.
//
// Confirmation that the door actually moved arrives later as an ordinary
// sensor edge. The engine cannot tell a jammed door from one that moved.
package reconcile
