package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/nerrad567/automata-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/automata-agent/internal/registration"
)

// MockTransport records transport calls in order.
type MockTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	opts       mqtt.ConnectOptions
	calls      []string
	published  []PublishedMessage
}

type PublishedMessage struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func (m *MockTransport) Connect(opts mqtt.ConnectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "connect")
	if m.connectErr != nil {
		return m.connectErr
	}
	m.opts = opts
	m.connected = true
	return nil
}

func (m *MockTransport) Subscribe(topic string, _ byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "subscribe "+topic)
	return nil
}

func (m *MockTransport) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "publish "+topic)
	m.published = append(m.published, PublishedMessage{topic, payload, retained})
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "disconnect")
	m.connected = false
}

func (m *MockTransport) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// SimulateMessage delivers a message as the broker would.
func (m *MockTransport) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.opts.OnMessage
	m.mu.Unlock()
	handler(topic, payload)
}

// DropLink simulates the broker closing the connection. It reports the
// loss to the session the way paho does when report is true.
func (m *MockTransport) DropLink(report bool) {
	m.mu.Lock()
	m.connected = false
	lost := m.opts.OnConnectionLost
	m.mu.Unlock()
	if report && lost != nil {
		lost(errors.New("connection reset by peer"))
	}
}

func (m *MockTransport) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

type mockRegistrar struct {
	deviceID   string
	registered bool
	broker     registration.Broker
	fetched    *registration.Broker
	fetchCalls int
}

func (r *mockRegistrar) DeviceID() string            { return r.deviceID }
func (r *mockRegistrar) Registered() bool            { return r.registered }
func (r *mockRegistrar) Broker() registration.Broker { return r.broker }
func (r *mockRegistrar) FetchCredentials(context.Context) (registration.Broker, error) {
	r.fetchCalls++
	if r.fetched == nil {
		return r.broker, errors.New("backend unavailable")
	}
	r.broker = *r.fetched
	return r.broker, nil
}

func testConfig() Config {
	return Config{
		DeviceName:   "Greenhouse Sensor",
		MAC:          "AA:BB:CC:DD:EE:FF",
		BaseTopic:    "automata",
		StatusTopic:  "automata/status",
		InboxSize:    4,
		SubscribeQoS: 1,
	}
}

func newTestSession(reg *mockRegistrar) (*Manager, *MockTransport) {
	tr := &MockTransport{}
	return New(testConfig(), tr, reg, nil), tr
}

func TestClientID(t *testing.T) {
	if got := ClientID("Greenhouse Sensor 2", "AA:BB"); got != "automata-greenhouse_sensor_2-AA:BB" {
		t.Errorf("ClientID() = %q", got)
	}
}

func TestEnsureConnected_NotRegistered(t *testing.T) {
	tests := []struct {
		name string
		reg  *mockRegistrar
	}{
		{"no device id", &mockRegistrar{registered: true}},
		{"stale id from previous boot", &mockRegistrar{deviceID: "dev-old"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr := newTestSession(tt.reg)
			if err := s.EnsureConnected(context.Background()); !errors.Is(err, ErrNotRegistered) {
				t.Errorf("EnsureConnected() error = %v, want ErrNotRegistered", err)
			}
			if len(tr.Calls()) != 0 {
				t.Errorf("transport calls = %v, want none", tr.Calls())
			}
		})
	}
}

func TestEnsureConnected_Sequence(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-123", registered: true, broker: registration.Broker{Host: "broker.local", Port: 1883}}
	s, tr := newTestSession(reg)

	if err := s.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}

	want := []string{
		"connect",
		"subscribe automata/update/dev-123",
		"subscribe automata/action/dev-123",
		"publish automata/status",
	}
	if got := tr.Calls(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	if tr.opts.ClientID != "automata-greenhouse_sensor-AA:BB:CC:DD:EE:FF" {
		t.Errorf("ClientID = %q", tr.opts.ClientID)
	}
	if tr.opts.Host != "broker.local" || tr.opts.Port != 1883 {
		t.Errorf("broker = %s:%d", tr.opts.Host, tr.opts.Port)
	}

	presence := tr.published[0]
	if !presence.Retained {
		t.Error("presence record not retained")
	}
	var doc map[string]string
	if err := json.Unmarshal(presence.Payload, &doc); err != nil {
		t.Fatalf("decoding presence: %v", err)
	}
	if doc["status"] != "offline" || doc["device_id"] != "dev-123" {
		t.Errorf("presence = %v", doc)
	}
	if tr.opts.Will == nil || string(tr.opts.Will.Payload) != string(presence.Payload) || !tr.opts.Will.Retained {
		t.Error("last will does not match the presence record")
	}
}

func TestEnsureConnected_Idempotent(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-123", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)

	for i := 0; i < 5; i++ {
		if err := s.EnsureConnected(context.Background()); err != nil {
			t.Fatalf("EnsureConnected() #%d error = %v", i, err)
		}
	}
	if got := len(tr.Calls()); got != 4 {
		t.Errorf("transport calls = %d (%v), want 4", got, tr.Calls())
	}
}

func TestEnsureConnected_ResubscribesAfterIDChange(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-123", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)
	s.EnsureConnected(context.Background()) //nolint:errcheck // Checked via calls

	reg.deviceID = "dev-456"
	if err := s.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}

	calls := tr.Calls()
	tail := calls[len(calls)-2:]
	if tail[0] != "subscribe automata/update/dev-456" || tail[1] != "subscribe automata/action/dev-456" {
		t.Errorf("calls = %v", calls)
	}
}

func TestEnsureConnected_ConnectFailure(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-123", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)
	tr.connectErr = mqtt.ErrConnectionFailed

	if err := s.EnsureConnected(context.Background()); !errors.Is(err, mqtt.ErrConnectionFailed) {
		t.Errorf("EnsureConnected() error = %v, want ErrConnectionFailed", err)
	}
	if got := tr.Calls(); len(got) != 1 {
		t.Errorf("calls after failed connect = %v, want only connect", got)
	}
}

func TestEnsureConnected_ServerCredentials(t *testing.T) {
	static := registration.Broker{Host: "localhost", Port: 1883}

	t.Run("fetched endpoint used", func(t *testing.T) {
		reg := &mockRegistrar{deviceID: "dev-1", registered: true, broker: static, fetched: &registration.Broker{Host: "cloud", Port: 8883}}
		tr := &MockTransport{}
		cfg := testConfig()
		cfg.UseServerCredentials = true
		s := New(cfg, tr, reg, nil)

		s.EnsureConnected(context.Background()) //nolint:errcheck // Checked via opts
		if tr.opts.Host != "cloud" || tr.opts.Port != 8883 {
			t.Errorf("broker = %s:%d, want cloud:8883", tr.opts.Host, tr.opts.Port)
		}
	})

	t.Run("fetch failure keeps previous endpoint", func(t *testing.T) {
		reg := &mockRegistrar{deviceID: "dev-1", registered: true, broker: static}
		tr := &MockTransport{}
		cfg := testConfig()
		cfg.UseServerCredentials = true
		s := New(cfg, tr, reg, nil)

		if err := s.EnsureConnected(context.Background()); err != nil {
			t.Fatalf("EnsureConnected() error = %v", err)
		}
		if reg.fetchCalls != 1 {
			t.Errorf("fetch calls = %d, want 1", reg.fetchCalls)
		}
		if tr.opts.Host != "localhost" || tr.opts.Port != 1883 {
			t.Errorf("broker = %s:%d, want localhost:1883", tr.opts.Host, tr.opts.Port)
		}
	})
}

func TestPublish_Disconnected(t *testing.T) {
	s, tr := newTestSession(&mockRegistrar{})

	if ok := s.Publish("automata/sendData", []byte(`{}`), false); ok {
		t.Error("Publish() = true while disconnected")
	}
	if len(tr.Calls()) != 0 {
		t.Errorf("transport calls = %v, want none", tr.Calls())
	}
}

func TestPump_DeliversOnCallerAndDropsOverflow(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-1", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)
	s.EnsureConnected(context.Background()) //nolint:errcheck // Checked via pump

	for i := 0; i < 6; i++ {
		tr.SimulateMessage(fmt.Sprintf("automata/action/dev-1#%d", i), []byte(`{}`))
	}

	var got []string
	n := s.Pump(func(msg Message) { got = append(got, msg.Topic) })
	if n != 4 || len(got) != 4 {
		t.Fatalf("Pump() = %d (%v), want 4 (inbox size)", n, got)
	}
	if got[0] != "automata/action/dev-1#0" {
		t.Errorf("first message = %q", got[0])
	}
	if n := s.Pump(func(Message) {}); n != 0 {
		t.Errorf("second Pump() = %d, want 0", n)
	}
}

func TestDisconnect_DiscardsQueued(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-1", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)
	s.EnsureConnected(context.Background()) //nolint:errcheck // Checked below

	tr.SimulateMessage("automata/update/dev-1", []byte(`{}`))
	s.Disconnect()

	if s.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	if n := s.Pump(func(Message) { t.Error("handler called after Disconnect") }); n != 0 {
		t.Errorf("Pump() = %d, want 0", n)
	}
}

// Across random interleavings of registration flips and link drops, a
// connect is never issued while the registrar reports unregistered.
func TestNeverConnectsWhileUnregistered(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	reg := &mockRegistrar{deviceID: "dev-1", broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			reg.registered = !reg.registered
		case 1:
			s.Disconnect()
		}

		before := len(tr.Calls())
		s.EnsureConnected(context.Background()) //nolint:errcheck // Property checked below
		calls := tr.Calls()[before:]
		for _, c := range calls {
			if c == "connect" && !reg.registered {
				t.Fatalf("step %d: connect issued while unregistered", i)
			}
		}
	}
}

func TestPump_NothingDeliveredAfterBrokerDrop(t *testing.T) {
	tests := []struct {
		name   string
		report bool
	}{
		{"loss reported by transport", true},
		{"loss found by reconnect", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &mockRegistrar{deviceID: "dev-123", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
			s, tr := newTestSession(reg)
			if err := s.EnsureConnected(context.Background()); err != nil {
				t.Fatalf("EnsureConnected() error = %v", err)
			}

			tr.SimulateMessage("automata/action/dev-123", []byte(`{"reboot":true}`))
			tr.DropLink(tt.report)
			tr.FailConnect(mqtt.ErrConnectionFailed)

			if err := s.EnsureConnected(context.Background()); !errors.Is(err, mqtt.ErrConnectionFailed) {
				t.Fatalf("EnsureConnected() error = %v, want ErrConnectionFailed", err)
			}
			if n := s.Pump(func(msg Message) { t.Errorf("dispatched %s with no open session", msg.Topic) }); n != 0 {
				t.Errorf("Pump() = %d, want 0", n)
			}

			// The queued command belonged to the lost session.
			tr.FailConnect(nil)
			if err := s.EnsureConnected(context.Background()); err != nil {
				t.Fatalf("reconnect error = %v", err)
			}
			if n := s.Pump(func(msg Message) { t.Errorf("stale command %s delivered after reconnect", msg.Topic) }); n != 0 {
				t.Errorf("Pump() after reconnect = %d, want 0", n)
			}
		})
	}
}

func TestPump_DeliversAfterReconnect(t *testing.T) {
	reg := &mockRegistrar{deviceID: "dev-123", registered: true, broker: registration.Broker{Host: "b", Port: 1883}}
	s, tr := newTestSession(reg)
	s.EnsureConnected(context.Background()) //nolint:errcheck // Checked via calls

	tr.DropLink(true)
	if err := s.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}

	calls := tr.Calls()
	want := []string{
		"connect",
		"subscribe automata/update/dev-123",
		"subscribe automata/action/dev-123",
		"publish automata/status",
	}
	if got := calls[len(calls)-4:]; fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("reconnect calls = %v, want %v", got, want)
	}

	tr.SimulateMessage("automata/action/dev-123", []byte(`{}`))
	if n := s.Pump(func(Message) {}); n != 1 {
		t.Errorf("Pump() = %d, want 1", n)
	}
}
