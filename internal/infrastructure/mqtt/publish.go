package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages.
// AWS IoT rejects messages above 128KB, and shadow documents are limited
// further by the shadow service itself.
const maxPayloadSize = 128 << 10

// Publish sends a message and waits for the broker to acknowledge it.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (typically JSON, max 128KB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (not supported by AWS IoT; valid against other brokers)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token, err := c.publish(topic, payload, qos, retained)
	if err != nil {
		return err
	}

	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAsync issues a publish and returns immediately.
//
// The returned channel receives exactly one value once the broker has
// acknowledged the message (nil) or the publish has failed, then is closed.
// Validation and connection errors are delivered the same way, so callers
// have a single place to observe the outcome.
//
// The channel is buffered; callers that do not care about the outcome may
// drop it.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool) <-chan error {
	done := make(chan error, 1)

	token, err := c.publish(topic, payload, qos, retained)
	if err != nil {
		done <- err
		close(done)
		return done
	}

	go func() {
		defer close(done)
		<-token.Done()
		if err := token.Error(); err != nil {
			done <- fmt.Errorf("%w: %w", ErrPublishFailed, err)
			return
		}
		done <- nil
	}()

	return done
}

// publish validates inputs and hands the message to paho.
func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) (pahomqtt.Token, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	return c.client.Publish(topic, qos, retained, payload), nil
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return c.qos
}
