// Package mqtt provides the MQTT session between the garage agent and the
// AWS IoT Core message broker.
//
// This package manages:
//   - Mutual TLS using the device certificate, private key and root CA
//   - Connection with auto-reconnect and subscription restoration
//   - Message publishing, both blocking and with an asynchronous completion
//   - Topic subscriptions with handler panic recovery
//   - An optional availability topic (online/offline plus Last Will)
//
// # Architecture
//
// The agent is a plain MQTT client. Shadow semantics (topics, documents,
// client tokens) live in the shadow package, which uses this client as its
// transport.
//
//	reconcile.Engine ↔ shadow.Client ↔ mqtt.Client ↔ AWS IoT Core
//
// # Security Considerations
//
//   - The broker authenticates the device by its X.509 certificate; there
//     are no usernames or passwords
//   - TLS 1.2 is the minimum accepted version
//   - Plain tcp:// is only available with mqtt.tls=false, for a local broker
//     during bench testing
//
// # Usage
//
//	client, err := mqtt.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("$aws/things/Garage/shadow/update/accepted", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	done := client.PublishAsync("$aws/things/Garage/shadow/update", payload, 1, false)
//	if err := <-done; err != nil {
//	    log.Printf("publish failed: %v", err)
//	}
package mqtt
