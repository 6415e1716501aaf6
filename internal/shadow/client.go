package shadow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nerrad567/rpigarage/internal/infrastructure/mqtt"
)

// ownTokenMemory is how many of the client's own recent tokens are
// remembered so that late echoes (after an ack timeout) are still ignored.
const ownTokenMemory = 64

// Transport is the MQTT capability the shadow client needs.
// *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishAsync(topic string, payload []byte, qos byte, retained bool) <-chan error
}

// Logger is the subset of logging.Logger used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Client.
type Options struct {
	// QoS for subscriptions and publishes. AWS IoT supports 0 and 1.
	QoS byte

	// AckTimeout bounds the wait for update/accepted or update/rejected.
	// Zero completes PublishUpdate as soon as the broker has the message.
	AckTimeout time.Duration

	Logger Logger
}

// Client publishes shadow updates and delivers desired-state changes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	transport  Transport
	qos        byte
	ackTimeout time.Duration
	logger     Logger

	// subMu serialises subscription setup. mu is never held across a
	// Subscribe call because message handlers take it.
	subMu sync.Mutex

	mu        sync.Mutex
	things    map[string]*thingState
	pending   map[string]chan error
	ownTokens [ownTokenMemory]string
	ownNext   int
	closed    bool
}

// thingState tracks the subscriptions for one thing.
type thingState struct {
	onDesired func(DesiredUpdate)
}

// NewClient creates a shadow client over transport.
func NewClient(transport Transport, opts Options) *Client {
	return &Client{
		transport:  transport,
		qos:        opts.QoS,
		ackTimeout: opts.AckTimeout,
		logger:     opts.Logger,
		things:     make(map[string]*thingState),
		pending:    make(map[string]chan error),
	}
}

// SubscribeDesired delivers desired-state changes for thing to cb.
//
// cb receives every accepted update that carries a desired section and was
// not published by this client. Documents without state or without
// state.desired are dropped. Delivery is at-least-once; cb must tolerate
// duplicates. A second call replaces cb.
func (c *Client) SubscribeDesired(thing string, cb func(DesiredUpdate)) error {
	if err := c.ensureSubscribed(thing); err != nil {
		return err
	}

	c.mu.Lock()
	c.things[thing].onDesired = cb
	c.mu.Unlock()
	return nil
}

// PublishUpdate publishes both sections in one update and returns a channel
// that receives the outcome exactly once, then closes:
//   - nil when the shadow service accepts the update
//   - ErrUpdateRejected (wrapped, with code and message) when it rejects it
//   - ErrAckTimeout when no answer arrives within the ack timeout
//   - the transport error when the publish itself fails
//   - ctx.Err() when ctx is cancelled first
//
// The publish is issued before PublishUpdate returns.
func (c *Client) PublishUpdate(ctx context.Context, thing string, reported ReportedSection, desired DesiredSection) <-chan error {
	result := make(chan error, 1)
	fail := func(err error) <-chan error {
		result <- err
		close(result)
		return result
	}

	if err := c.ensureSubscribed(thing); err != nil {
		return fail(err)
	}

	clientToken := uuid.NewString()
	payload, err := json.Marshal(UpdateRequest{
		State:       UpdateState{Reported: reported, Desired: desired},
		ClientToken: clientToken,
	})
	if err != nil {
		return fail(fmt.Errorf("encoding shadow update: %w", err))
	}

	ack := make(chan error, 1)
	c.mu.Lock()
	c.pending[clientToken] = ack
	c.ownTokens[c.ownNext] = clientToken
	c.ownNext = (c.ownNext + 1) % ownTokenMemory
	c.mu.Unlock()

	published := c.transport.PublishAsync(Topics{}.Update(thing), payload, c.qos, false)

	go func() {
		defer close(result)
		defer c.forget(clientToken)

		select {
		case err := <-published:
			if err != nil {
				result <- err
				return
			}
		case <-ctx.Done():
			result <- ctx.Err()
			return
		}

		if c.ackTimeout <= 0 {
			result <- nil
			return
		}

		timer := time.NewTimer(c.ackTimeout)
		defer timer.Stop()

		select {
		case err := <-ack:
			result <- err
		case <-timer.C:
			result <- fmt.Errorf("%w: client token %s after %v", ErrAckTimeout, clientToken, c.ackTimeout)
		case <-ctx.Done():
			result <- ctx.Err()
		}
	}()

	return result
}

// Close unsubscribes from every thing. Pending publishes still complete.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	things := make([]string, 0, len(c.things))
	for thing := range c.things {
		things = append(things, thing)
	}
	c.mu.Unlock()

	var firstErr error
	for _, thing := range things {
		for _, topic := range []string{Topics{}.UpdateAccepted(thing), Topics{}.UpdateRejected(thing)} {
			if err := c.transport.Unsubscribe(topic); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ensureSubscribed subscribes to the response topics of thing once.
func (c *Client) ensureSubscribed(thing string) error {
	if thing == "" {
		return ErrInvalidThing
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	_, subscribed := c.things[thing]
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if subscribed {
		return nil
	}

	if err := c.transport.Subscribe(Topics{}.UpdateAccepted(thing), c.qos, c.handleAccepted(thing)); err != nil {
		return fmt.Errorf("subscribing to update/accepted: %w", err)
	}
	if err := c.transport.Subscribe(Topics{}.UpdateRejected(thing), c.qos, c.handleRejected); err != nil {
		_ = c.transport.Unsubscribe(Topics{}.UpdateAccepted(thing))
		return fmt.Errorf("subscribing to update/rejected: %w", err)
	}

	c.mu.Lock()
	c.things[thing] = &thingState{}
	c.mu.Unlock()
	return nil
}

// handleAccepted returns the update/accepted handler for thing.
func (c *Client) handleAccepted(thing string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		var doc AcceptedDocument
		if err := json.Unmarshal(payload, &doc); err != nil {
			c.debug("ignoring undecodable accepted document", "thing", thing, "error", err)
			return nil
		}

		if c.complete(doc.ClientToken, nil) || c.isOwn(doc.ClientToken) {
			return nil
		}

		if doc.State == nil || doc.State.Desired == nil {
			c.debug("ignoring accepted document without desired state", "thing", thing, "version", doc.Version)
			return nil
		}

		c.mu.Lock()
		var cb func(DesiredUpdate)
		if ts, ok := c.things[thing]; ok {
			cb = ts.onDesired
		}
		c.mu.Unlock()

		if cb != nil {
			cb(DesiredUpdate{
				DoorStatus:       doc.State.Desired.DoorStatus,
				CorrelationToken: TokenValue(doc.State.Desired.CorrelationToken),
				Version:          doc.Version,
			})
		}
		return nil
	}
}

// handleRejected completes the publish a rejection belongs to.
func (c *Client) handleRejected(topic string, payload []byte) error {
	var doc RejectedDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("decoding rejected document: %w", err)
	}

	err := fmt.Errorf("%w: %d %s", ErrUpdateRejected, doc.Code, doc.Message)
	if !c.complete(doc.ClientToken, err) && c.logger != nil {
		c.logger.Warn("shadow update rejected", "topic", topic, "code", doc.Code, "message", doc.Message, "client_token", doc.ClientToken)
	}
	return nil
}

// complete delivers the outcome to a pending publish. It reports whether
// clientToken belonged to one.
func (c *Client) complete(clientToken string, err error) bool {
	if clientToken == "" {
		return false
	}

	c.mu.Lock()
	ack, ok := c.pending[clientToken]
	if ok {
		delete(c.pending, clientToken)
	}
	c.mu.Unlock()

	if ok {
		ack <- err
	}
	return ok
}

// isOwn reports whether clientToken was issued by this client recently.
func (c *Client) isOwn(clientToken string) bool {
	if clientToken == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.ownTokens {
		if t == clientToken {
			return true
		}
	}
	return false
}

func (c *Client) forget(clientToken string) {
	c.mu.Lock()
	delete(c.pending, clientToken)
	c.mu.Unlock()
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
