package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/automata-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/automata-agent/internal/metrics"
	"github.com/nerrad567/automata-agent/internal/registration"
)

const (
	// defaultSubscribeQoS replaces an out-of-range configured QoS.
	defaultSubscribeQoS byte = 1

	// publishQoS keeps outbound telemetry at-most-once.
	publishQoS byte = 0

	// presenceStatus is the value carried by the retained presence record.
	presenceStatus = "offline"

	defaultInboxSize = 64
)

// Transport is the messaging client used by the session. Satisfied by *mqtt.Client.
type Transport interface {
	Connect(opts mqtt.ConnectOptions) error
	Subscribe(topic string, qos byte) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Disconnect()
}

// Registrar provides identity and broker endpoint. Satisfied by *registration.Manager.
type Registrar interface {
	DeviceID() string
	Registered() bool
	Broker() registration.Broker
	FetchCredentials(ctx context.Context) (registration.Broker, error)
}

// Logger defines the logging interface for the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds session settings.
type Config struct {
	DeviceName string
	MAC        string

	Username  string
	Password  string
	TLS       bool
	KeepAlive time.Duration

	BaseTopic   string
	StatusTopic string

	// UseServerCredentials fetches the broker endpoint before each connect.
	UseServerCredentials bool

	InboxSize int

	// SubscribeQoS applies to command subscriptions and the presence record.
	SubscribeQoS byte
}

// Message is one inbound message queued for the loop.
type Message struct {
	Topic   string
	Payload []byte
}

// Manager is the messaging session manager.
type Manager struct {
	cfg       Config
	transport Transport
	registrar Registrar
	topics    mqtt.Topics
	logger    Logger

	inbox chan Message

	mu           sync.RWMutex
	open         bool
	subscribedID string
}

// New creates a session manager.
func New(cfg Config, transport Transport, registrar Registrar, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.SubscribeQoS > 2 {
		cfg.SubscribeQoS = defaultSubscribeQoS
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Manager{
		cfg:       cfg,
		transport: transport,
		registrar: registrar,
		topics:    mqtt.Topics{Base: cfg.BaseTopic},
		logger:    logger,
		inbox:     make(chan Message, size),
	}
}

// ClientID is "automata-<lower_underscored name>-<mac>".
func ClientID(deviceName, mac string) string {
	name := strings.ReplaceAll(strings.ToLower(deviceName), " ", "_")
	return "automata-" + name + "-" + mac
}

// Topics returns the topic builder for this session.
func (m *Manager) Topics() mqtt.Topics {
	return m.topics
}

// Connected reports whether the session is open.
func (m *Manager) Connected() bool {
	return m.transport.IsConnected()
}

// EnsureConnected opens the session if it is not open. Calling it while
// connected performs no transport calls, unless the device id changed since
// the last subscribe, in which case the new per-device topics are subscribed.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	deviceID := m.registrar.DeviceID()
	if deviceID == "" || !m.registrar.Registered() {
		return ErrNotRegistered
	}

	if m.transport.IsConnected() {
		m.mu.RLock()
		stale := m.subscribedID != deviceID
		m.mu.RUnlock()
		if stale {
			return m.subscribe(deviceID)
		}
		return nil
	}

	m.markLost(nil)

	if m.cfg.UseServerCredentials {
		if _, err := m.registrar.FetchCredentials(ctx); err != nil {
			m.logger.Warn("fetching broker credentials failed, using previous endpoint", "error", err)
		}
	}
	broker := m.registrar.Broker()

	presence, err := m.presenceRecord(deviceID)
	if err != nil {
		return err
	}

	clientID := ClientID(m.cfg.DeviceName, m.cfg.MAC)
	err = m.transport.Connect(mqtt.ConnectOptions{
		Host:      broker.Host,
		Port:      broker.Port,
		TLS:       m.cfg.TLS,
		ClientID:  clientID,
		Username:  m.cfg.Username,
		Password:  m.cfg.Password,
		KeepAlive: m.cfg.KeepAlive,
		Will: &mqtt.Will{
			Topic:    m.cfg.StatusTopic,
			Payload:  presence,
			QoS:      m.cfg.SubscribeQoS,
			Retained: true,
		},
		OnMessage:        m.enqueue,
		OnConnectionLost: m.markLost,
	})
	metrics.RecordSessionConnect(err == nil)
	if err != nil {
		m.logger.Debug("messaging connect failed", "broker", broker.Host, "port", broker.Port, "error", err)
		return err
	}

	if err := m.subscribe(deviceID); err != nil {
		m.transport.Disconnect()
		return err
	}

	if err := m.transport.Publish(m.cfg.StatusTopic, presence, m.cfg.SubscribeQoS, true); err != nil {
		m.logger.Warn("publishing presence record failed", "error", err)
	}

	m.mu.Lock()
	m.open = true
	m.mu.Unlock()

	m.logger.Info("messaging session established", "client_id", clientID, "broker", broker.Host)
	return nil
}

func (m *Manager) subscribe(deviceID string) error {
	for _, topic := range []string{m.topics.Update(deviceID), m.topics.ActionFor(deviceID)} {
		if err := m.transport.Subscribe(topic, m.cfg.SubscribeQoS); err != nil {
			return fmt.Errorf("subscribing %s: %w", topic, err)
		}
	}

	m.mu.Lock()
	m.subscribedID = deviceID
	m.mu.Unlock()

	m.logger.Info("subscribed to device topics", "device_id", deviceID)
	return nil
}

func (m *Manager) presenceRecord(deviceID string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"status":    presenceStatus,
		"device_id": deviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding presence record: %w", err)
	}
	return payload, nil
}

// Publish sends payload best effort. It returns false without blocking
// when the session is down, and false when the transport publish fails.
func (m *Manager) Publish(topic string, payload []byte, retained bool) bool {
	if !m.transport.IsConnected() {
		return false
	}
	if err := m.transport.Publish(topic, payload, publishQoS, retained); err != nil {
		m.logger.Debug("publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// enqueue is the transport delivery callback. It runs on transport
// goroutines and only hands the message to the loop.
func (m *Manager) enqueue(topic string, payload []byte) {
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	select {
	case m.inbox <- msg:
	default:
		metrics.RecordInboxDrop()
		m.logger.Warn("inbox full, dropping message", "topic", topic)
	}
}

// markLost closes a session the transport dropped without a Disconnect.
// Commands queued for it are discarded: their acks could not be published.
// Runs on paho goroutines when the broker drops the link, and on the loop
// when EnsureConnected finds the transport down.
func (m *Manager) markLost(err error) {
	m.mu.Lock()
	wasOpen := m.open
	m.open = false
	m.subscribedID = ""
	m.mu.Unlock()

	dropped := m.drain()
	if wasOpen {
		metrics.SessionClosed()
		m.logger.Warn("messaging session lost", "error", err, "dropped_commands", dropped)
	}
}

// drain discards queued messages and returns how many there were.
func (m *Manager) drain() int {
	n := 0
	for {
		select {
		case <-m.inbox:
			n++
		default:
			return n
		}
	}
}

// Pump delivers queued messages to handler on the caller's goroutine and
// returns how many were handled. Only messages already queued when Pump is
// called are delivered, and nothing is delivered unless the session is open.
func (m *Manager) Pump(handler func(Message)) int {
	m.mu.RLock()
	open := m.open
	m.mu.RUnlock()
	if !open || !m.transport.IsConnected() {
		m.drain()
		return 0
	}

	n := len(m.inbox)
	for i := 0; i < n; i++ {
		select {
		case msg := <-m.inbox:
			handler(msg)
		default:
			return i
		}
	}
	return n
}

// Disconnect tears the session down and discards undelivered messages.
func (m *Manager) Disconnect() {
	m.transport.Disconnect()

	m.mu.Lock()
	wasOpen := m.open
	m.open = false
	m.subscribedID = ""
	m.mu.Unlock()

	m.drain()

	if wasOpen {
		metrics.SessionClosed()
		m.logger.Info("messaging session closed")
	}
}
