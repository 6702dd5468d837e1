// Package ingest maintains the live MQTT subscription and feeds every
// received message through decode-and-dispatch into the mesh Store.
package ingest

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/config"
	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// Frame is one raw broker delivery with its locally attached receipt
// timestamp; the transport does not supply one.
type Frame struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Decoder turns a raw frame into a typed mesh packet. The concrete
// decoding library sits behind this boundary.
type Decoder interface {
	Decode(Frame) (*mesh.Packet, error)
}

// PacketHandler receives every successfully decoded packet together
// with its frame. Handling is strictly sequential per stream.
type PacketHandler interface {
	Handle(*mesh.Packet, Frame)
}

// ClientFactory builds an MQTT client for one connection session.
type ClientFactory func(*mqtt.ClientOptions) mqtt.Client

// Manager keeps a subscription to the configured topics alive for the
// lifetime of the process, reconnecting after transport failures with
// a fixed backoff.
type Manager struct {
	cfg     config.BrokerConfig
	store   *mesh.Store
	decoder Decoder
	handler PacketHandler
	logger  *zap.Logger

	newClient     ClientFactory
	reconnectWait time.Duration

	mu     sync.RWMutex
	client mqtt.Client // current session's client, nil while disconnected
}

// NewManager creates a Manager. The configuration has already been
// validated, so at least one topic is present.
func NewManager(cfg config.BrokerConfig, store *mesh.Store, decoder Decoder, handler PacketHandler, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		store:         store,
		decoder:       decoder,
		handler:       handler,
		logger:        logger,
		newClient:     mqtt.NewClient,
		reconnectWait: 5 * time.Second,
	}
}

// SetClientFactory overrides how session clients are built.
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.newClient = f
}

// SetReconnectWait overrides the fixed backoff between sessions.
func (m *Manager) SetReconnectWait(d time.Duration) {
	m.reconnectWait = d
}

// Run loops connect → subscribe → stream until ctx is cancelled. A
// failed session is logged and retried after the fixed backoff; there
// is no terminal failure state.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if err := m.session(ctx); err != nil {
			m.logger.Warn("Disconnected from MQTT broker, reconnecting",
				zap.String("broker", m.cfg.URL()),
				zap.Duration("backoff", m.reconnectWait),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.reconnectWait):
		}
	}
}

// session runs one connection from connect to transport failure.
func (m *Manager) session(ctx context.Context) error {
	frames := make(chan Frame, 256)
	lost := make(chan error, 1)

	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.URL()).
		SetClientID(m.cfg.ClientID).
		SetUsername(m.cfg.Username).
		SetPassword(m.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(10 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := m.newClient(opts)
	m.logger.Info("Connecting to MQTT broker", zap.String("broker", m.cfg.URL()))
	if err := m.connect(ctx, client); err != nil {
		return err
	}
	m.logger.Info("Connected to MQTT broker", zap.String("broker", m.cfg.URL()))

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		frames <- Frame{Topic: msg.Topic(), Payload: msg.Payload(), Received: time.Now()}
	}
	for _, topic := range m.cfg.TopicList() {
		token := client.Subscribe(topic, 0, onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			client.Disconnect(250)
			return err
		}
		m.logger.Info("Subscribed to topic", zap.String("topic", topic))
	}

	m.store.SetConnectedAt(time.Now())
	m.setClient(client)
	defer func() {
		m.setClient(nil)
		client.Disconnect(250)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-lost:
			return err
		case f := <-frames:
			m.dispatch(f)
		}
	}
}

// connect performs the broker connect with a few in-session retries;
// the outer loop's fixed backoff covers everything beyond them.
func (m *Manager) connect(ctx context.Context, client mqtt.Client) error {
	return retry.Do(func() error {
		token := client.Connect()
		token.Wait()
		return token.Error()
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(1*time.Second),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("Connect retry", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
}

// dispatch decodes one frame and hands it to the handler. Decode
// failures drop the message; they never stop the stream.
func (m *Manager) dispatch(f Frame) {
	pkt, err := m.decoder.Decode(f)
	if err != nil {
		m.logger.Warn("Dropping undecodable message",
			zap.String("topic", f.Topic),
			zap.Int("size", len(f.Payload)),
			zap.Error(err),
		)
		return
	}
	m.handler.Handle(pkt, f)
}

// Publish sends an outbound announcement, best effort. Failure is
// logged and reported as false, never raised.
func (m *Manager) Publish(topic string, payload []byte) bool {
	client := m.currentClient()
	if client == nil {
		m.logger.Warn("Publish skipped, not connected", zap.String("topic", topic))
		return false
	}
	token := client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		m.logger.Warn("Publish failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	m.logger.Info("Published message", zap.String("topic", topic), zap.Int("size", len(payload)))
	return true
}

func (m *Manager) setClient(c mqtt.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = c
}

func (m *Manager) currentClient() mqtt.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}
