// Package shadow speaks the AWS IoT device shadow protocol over MQTT.
//
// The agent uses three topics per thing:
//
//	$aws/things/<thing>/shadow/update            publish reported/desired state
//	$aws/things/<thing>/shadow/update/accepted   every accepted update
//	$aws/things/<thing>/shadow/update/rejected   rejected updates (code, message)
//
// Every update the client publishes carries a fresh clientToken. The shadow
// service echoes it on update/accepted or update/rejected, which is how
// PublishUpdate learns the outcome. Accepted documents carrying one of the
// client's own tokens are never passed to the desired-state callback.
//
// Wire shape of both sections:
//
//	{ "doorStatus": "opened" | "closed" | "signaled",
//	  "correlationToken": string | null,
//	  "endpointId": string }
//
// doorStatus is omitted when empty; correlationToken is always present and
// null when there is no token.
package shadow
