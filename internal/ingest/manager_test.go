package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/config"
	"github.com/Travis-L-R/meshinfo/internal/ingest"
	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// --- fakes ---

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	mu         sync.Mutex
	opts       *mqtt.ClientOptions
	connectErr error
	publishErr error
	callback   mqtt.MessageHandler
	subscribed []string
	published  []string
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return &fakeToken{err: c.connectErr} }
func (c *fakeClient) Disconnect(uint)        {}
func (c *fakeClient) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic)
	return &fakeToken{err: c.publishErr}
}
func (c *fakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.callback = callback
	return &fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token       { return &fakeToken{} }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)   {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// deliver feeds one message through the subscription callback.
func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	cb(c, &fakeMessage{topic: topic, payload: payload})
}

// dropConnection simulates a transport failure.
func (c *fakeClient) dropConnection(err error) {
	c.opts.OnConnectionLost(c, err)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	ready   chan *fakeClient
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{ready: make(chan *fakeClient, 8)}
}

func (f *fakeFactory) new(opts *mqtt.ClientOptions) mqtt.Client {
	c := &fakeClient{opts: opts}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	f.ready <- c
	return c
}

func (f *fakeFactory) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// recordingHandler captures dispatched packets in order.
type recordingHandler struct {
	mu      sync.Mutex
	packets []*mesh.Packet
}

func (h *recordingHandler) Handle(pkt *mesh.Packet, _ ingest.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, pkt)
}

func (h *recordingHandler) texts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, p := range h.packets {
		out = append(out, p.Text)
	}
	return out
}

// passDecoder treats the payload as the message text; payloads starting
// with '?' fail to decode.
type passDecoder struct{}

func (passDecoder) Decode(f ingest.Frame) (*mesh.Packet, error) {
	if len(f.Payload) > 0 && f.Payload[0] == '?' {
		return nil, errors.New("malformed payload")
	}
	return &mesh.Packet{Kind: mesh.PacketMessage, From: "1a2b3c4d", Text: string(f.Payload)}, nil
}

func brokerConfig() config.BrokerConfig {
	return config.BrokerConfig{Host: "localhost", Port: 1883, ClientID: "test", Topic: "msh/#"}
}

func waitForClient(t *testing.T, f *fakeFactory) *fakeClient {
	t.Helper()
	select {
	case c := <-f.ready:
		// The subscribe callback is registered right after the factory
		// returns; wait for it.
		require.Eventually(t, func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.callback != nil
		}, time.Second, time.Millisecond)
		return c
	case <-time.After(time.Second):
		t.Fatal("no client session started")
		return nil
	}
}

// --- tests ---

func TestStreamDispatchesInOrder(t *testing.T) {
	store := mesh.NewStore()
	handler := &recordingHandler{}
	m := ingest.NewManager(brokerConfig(), store, passDecoder{}, handler, zap.NewNop())
	factory := newFakeFactory()
	m.SetClientFactory(factory.new)
	m.SetReconnectWait(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	client := waitForClient(t, factory)
	client.deliver("msh/1", []byte("one"))
	client.deliver("msh/1", []byte("two"))
	client.deliver("msh/1", []byte("three"))

	require.Eventually(t, func() bool { return len(handler.texts()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, handler.texts())
	assert.Equal(t, []string{"msh/#"}, client.subscribed)
}

func TestReconnectResumesWithoutReprocessing(t *testing.T) {
	store := mesh.NewStore()
	handler := &recordingHandler{}
	m := ingest.NewManager(brokerConfig(), store, passDecoder{}, handler, zap.NewNop())
	factory := newFakeFactory()
	m.SetClientFactory(factory.new)
	m.SetReconnectWait(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	first := waitForClient(t, factory)
	first.deliver("msh/1", []byte("one"))
	first.deliver("msh/1", []byte("two"))
	require.Eventually(t, func() bool { return len(handler.texts()) == 2 }, time.Second, time.Millisecond)

	first.dropConnection(errors.New("connection reset"))

	second := waitForClient(t, factory)
	second.deliver("msh/1", []byte("three"))

	require.Eventually(t, func() bool { return len(handler.texts()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, handler.texts(),
		"already-handled messages must not be reprocessed after reconnect")
	assert.Equal(t, 2, factory.sessionCount())
}

func TestDecodeFailureDropsMessageAndContinues(t *testing.T) {
	store := mesh.NewStore()
	handler := &recordingHandler{}
	m := ingest.NewManager(brokerConfig(), store, passDecoder{}, handler, zap.NewNop())
	factory := newFakeFactory()
	m.SetClientFactory(factory.new)
	m.SetReconnectWait(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	client := waitForClient(t, factory)
	client.deliver("msh/1", []byte("good"))
	client.deliver("msh/1", []byte("?broken"))
	client.deliver("msh/1", []byte("also good"))

	require.Eventually(t, func() bool { return len(handler.texts()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"good", "also good"}, handler.texts())
}

func TestConnectRecordsSession(t *testing.T) {
	store := mesh.NewStore()
	m := ingest.NewManager(brokerConfig(), store, passDecoder{}, &recordingHandler{}, zap.NewNop())
	factory := newFakeFactory()
	m.SetClientFactory(factory.new)
	m.SetReconnectWait(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitForClient(t, factory)
	require.Eventually(t, func() bool {
		return !store.Snapshot().ConnectedAt.IsZero()
	}, time.Second, time.Millisecond)
}

func TestPublishBestEffort(t *testing.T) {
	store := mesh.NewStore()
	m := ingest.NewManager(brokerConfig(), store, passDecoder{}, &recordingHandler{}, zap.NewNop())
	factory := newFakeFactory()
	m.SetClientFactory(factory.new)
	m.SetReconnectWait(time.Millisecond)

	// Not connected yet: publish reports failure, does not panic.
	assert.False(t, m.Publish("msh/announce", []byte("hi")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	client := waitForClient(t, factory)
	require.Eventually(t, func() bool { return m.Publish("msh/announce", []byte("hi")) },
		time.Second, time.Millisecond)

	client.publishErr = errors.New("broker rejected")
	assert.False(t, m.Publish("msh/announce", []byte("hi")))
}
