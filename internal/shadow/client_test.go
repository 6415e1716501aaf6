package shadow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/rpigarage/internal/door"
	"github.com/nerrad567/rpigarage/internal/infrastructure/mqtt"
)

const thing = "GarageDoor"

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu           sync.Mutex
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	subscribeErr error
	publishErr   error
}

type mockPublish struct {
	Topic   string
	Payload []byte
	QoS     byte
}

func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *MockTransport) PublishAsync(topic string, payload []byte, qos byte, _ bool) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos})
	done := make(chan error, 1)
	done <- m.publishErr
	close(done)
	return done
}

func (m *MockTransport) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockTransport) SimulateMessage(t *testing.T, topic string, payload string) {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	require.True(t, ok, "no subscription on %s", topic)
	_ = handler(topic, []byte(payload))
}

// lastRequest decodes the most recent publish.
func lastRequest(t *testing.T, m *MockTransport) UpdateRequest {
	t.Helper()
	published := m.GetPublished()
	require.NotEmpty(t, published)
	var req UpdateRequest
	require.NoError(t, json.Unmarshal(published[len(published)-1].Payload, &req))
	return req
}

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish outcome")
		return nil
	}
}

func sampleSections(token string) (ReportedSection, DesiredSection) {
	return ReportedSection{DoorStatus: door.StatusOpened, CorrelationToken: Token(token), EndpointID: "garage-01"},
		DesiredSection{DoorStatus: door.CommandClosed, CorrelationToken: Token(token), EndpointID: "garage-01"}
}

// =============================================================================
// Wire Format Tests
// =============================================================================

func TestTopics(t *testing.T) {
	assert.Equal(t, "$aws/things/GarageDoor/shadow/update", Topics{}.Update(thing))
	assert.Equal(t, "$aws/things/GarageDoor/shadow/update/accepted", Topics{}.UpdateAccepted(thing))
	assert.Equal(t, "$aws/things/GarageDoor/shadow/update/rejected", Topics{}.UpdateRejected(thing))
}

func TestUpdateRequest_NullTokenAndEchoOnlyDesired(t *testing.T) {
	req := UpdateRequest{State: UpdateState{
		Reported: ReportedSection{DoorStatus: door.StatusOpened, EndpointID: "garage-01"},
		Desired:  DesiredSection{EndpointID: "garage-01"},
	}}

	payload, err := json.Marshal(req)
	require.NoError(t, err)

	assert.JSONEq(t, `{"state":{
		"reported":{"doorStatus":"opened","correlationToken":null,"endpointId":"garage-01"},
		"desired":{"correlationToken":null,"endpointId":"garage-01"}
	}}`, string(payload))
}

func TestToken(t *testing.T) {
	assert.Nil(t, Token(""))
	require.NotNil(t, Token("t1"))
	assert.Equal(t, "t1", *Token("t1"))
	assert.Equal(t, "", TokenValue(nil))
	assert.Equal(t, "t1", TokenValue(Token("t1")))
}

// =============================================================================
// Desired Update Tests
// =============================================================================

func TestSubscribeDesired_DeliversDesiredSection(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	var got []DesiredUpdate
	require.NoError(t, client.SubscribeDesired(thing, func(u DesiredUpdate) { got = append(got, u) }))

	transport.SimulateMessage(t, Topics{}.UpdateAccepted(thing),
		`{"state":{"desired":{"doorStatus":"signaled","correlationToken":"t1"}},"version":7,"timestamp":1}`)

	require.Len(t, got, 1)
	assert.Equal(t, door.CommandSignaled, got[0].DoorStatus)
	assert.Equal(t, "t1", got[0].CorrelationToken)
	assert.Equal(t, int64(7), got[0].Version)
}

func TestSubscribeDesired_IgnoresDocumentsWithoutDesired(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	var calls int
	require.NoError(t, client.SubscribeDesired(thing, func(DesiredUpdate) { calls++ }))

	for _, payload := range []string{
		`{}`,
		`{"version":3}`,
		`{"state":{}}`,
		`{"state":{"reported":{"doorStatus":"opened"}}}`,
		`not json`,
	} {
		transport.SimulateMessage(t, Topics{}.UpdateAccepted(thing), payload)
	}

	assert.Zero(t, calls)
}

func TestSubscribeDesired_EmptyDesiredIsDelivered(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	var got []DesiredUpdate
	require.NoError(t, client.SubscribeDesired(thing, func(u DesiredUpdate) { got = append(got, u) }))

	transport.SimulateMessage(t, Topics{}.UpdateAccepted(thing), `{"state":{"desired":{}}}`)

	require.Len(t, got, 1)
	assert.Equal(t, door.CommandNone, got[0].DoorStatus)
}

func TestSubscribeDesired_IgnoresOwnUpdates(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	var calls int
	require.NoError(t, client.SubscribeDesired(thing, func(DesiredUpdate) { calls++ }))

	reported, desired := sampleSections("t1")
	result := client.PublishUpdate(context.Background(), thing, reported, desired)
	require.NoError(t, waitResult(t, result))

	// Late echo of our own update.
	req := lastRequest(t, transport)
	transport.SimulateMessage(t, Topics{}.UpdateAccepted(thing),
		`{"state":{"desired":{"doorStatus":"closed","correlationToken":"t1"}},"clientToken":"`+req.ClientToken+`"}`)

	assert.Zero(t, calls)
}

func TestSubscribeDesired_Errors(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	assert.ErrorIs(t, client.SubscribeDesired("", func(DesiredUpdate) {}), ErrInvalidThing)

	transport.subscribeErr = mqtt.ErrNotConnected
	assert.ErrorIs(t, client.SubscribeDesired(thing, func(DesiredUpdate) {}), mqtt.ErrNotConnected)
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishUpdate_Accepted(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1, AckTimeout: time.Second})

	reported, desired := sampleSections("t1")
	result := client.PublishUpdate(context.Background(), thing, reported, desired)

	published := transport.GetPublished()
	require.Len(t, published, 1)
	assert.Equal(t, Topics{}.Update(thing), published[0].Topic)
	assert.Equal(t, byte(1), published[0].QoS)

	req := lastRequest(t, transport)
	assert.NotEmpty(t, req.ClientToken)
	assert.Equal(t, door.StatusOpened, req.State.Reported.DoorStatus)
	assert.Equal(t, door.CommandClosed, req.State.Desired.DoorStatus)
	assert.Equal(t, "t1", TokenValue(req.State.Reported.CorrelationToken))
	assert.Equal(t, "t1", TokenValue(req.State.Desired.CorrelationToken))

	transport.SimulateMessage(t, Topics{}.UpdateAccepted(thing),
		`{"state":{"reported":{"doorStatus":"opened"}},"clientToken":"`+req.ClientToken+`"}`)

	assert.NoError(t, waitResult(t, result))
}

func TestPublishUpdate_Rejected(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1, AckTimeout: time.Second})

	reported, desired := sampleSections("t1")
	result := client.PublishUpdate(context.Background(), thing, reported, desired)
	req := lastRequest(t, transport)

	transport.SimulateMessage(t, Topics{}.UpdateRejected(thing),
		`{"code":400,"message":"Missing required node: state","clientToken":"`+req.ClientToken+`"}`)

	err := waitResult(t, result)
	assert.ErrorIs(t, err, ErrUpdateRejected)
	assert.Contains(t, err.Error(), "Missing required node")
}

func TestPublishUpdate_AckTimeout(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1, AckTimeout: 20 * time.Millisecond})

	reported, desired := sampleSections("")
	err := waitResult(t, client.PublishUpdate(context.Background(), thing, reported, desired))

	assert.ErrorIs(t, err, ErrAckTimeout)
}

func TestPublishUpdate_NoAckWait(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	reported, desired := sampleSections("")
	assert.NoError(t, waitResult(t, client.PublishUpdate(context.Background(), thing, reported, desired)))
}

func TestPublishUpdate_TransportError(t *testing.T) {
	transport := NewMockTransport()
	transport.publishErr = mqtt.ErrNotConnected
	client := NewClient(transport, Options{QoS: 1, AckTimeout: time.Second})

	reported, desired := sampleSections("t1")
	err := waitResult(t, client.PublishUpdate(context.Background(), thing, reported, desired))

	assert.ErrorIs(t, err, mqtt.ErrNotConnected)
}

func TestPublishUpdate_ContextCancelled(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1, AckTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	reported, desired := sampleSections("t1")
	result := client.PublishUpdate(ctx, thing, reported, desired)
	cancel()

	assert.ErrorIs(t, waitResult(t, result), context.Canceled)
}

func TestPublishUpdate_ResultChannelCloses(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})

	reported, desired := sampleSections("")
	result := client.PublishUpdate(context.Background(), thing, reported, desired)
	require.NoError(t, waitResult(t, result))

	_, open := <-result
	assert.False(t, open)
}

func TestPublishUpdate_UnknownRejectionIsNotFatal(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})
	require.NoError(t, client.SubscribeDesired(thing, func(DesiredUpdate) {}))

	transport.SimulateMessage(t, Topics{}.UpdateRejected(thing), `{"code":409,"message":"Version conflict","clientToken":"someone-else"}`)
}

func TestClose(t *testing.T) {
	transport := NewMockTransport()
	client := NewClient(transport, Options{QoS: 1})
	require.NoError(t, client.SubscribeDesired(thing, func(DesiredUpdate) {}))

	require.NoError(t, client.Close())
	assert.ElementsMatch(t, []string{Topics{}.UpdateAccepted(thing), Topics{}.UpdateRejected(thing)}, transport.unsubscribed)

	reported, desired := sampleSections("")
	err := waitResult(t, client.PublishUpdate(context.Background(), thing, reported, desired))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoError(t, client.Close())
}
