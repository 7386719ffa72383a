package telemetry

import (
	"encoding/json"
	"sync"
	"testing"
)

type published struct {
	topic   string
	payload []byte
}

type mockSession struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (s *mockSession) Publish(topic string, payload []byte, _ bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.messages = append(s.messages, published{topic, payload})
	return true
}

type staticIdentity string

func (i staticIdentity) DeviceID() string { return string(i) }

type mockSink struct {
	mu     sync.Mutex
	events []string
	docs   []any
}

func (s *mockSink) Broadcast(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.docs = append(s.docs, payload)
}

type mockMirror struct {
	deviceID string
	kind     string
	doc      map[string]any
}

func (m *mockMirror) WriteTelemetry(deviceID, kind string, doc map[string]any) {
	m.deviceID, m.kind, m.doc = deviceID, kind, doc
}

func decode(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	return doc
}

func TestPublish_TopicsAndStamp(t *testing.T) {
	tests := []struct {
		name      string
		publish   func(p *Publisher, data map[string]any) bool
		wantTopic string
	}{
		{"live", (*Publisher).PublishLive, "automata/sendLiveData"},
		{"snapshot", (*Publisher).PublishSnapshot, "automata/sendData"},
		{"action", (*Publisher).PublishAction, "automata/action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &mockSession{connected: true}
			p := New("automata", sess, staticIdentity("dev-123"), nil, nil, nil)

			data := map[string]any{"temp": 21.5}
			if !tt.publish(p, data) {
				t.Fatal("publish returned false on a connected session")
			}

			if len(sess.messages) != 1 {
				t.Fatalf("published %d messages, want 1", len(sess.messages))
			}
			msg := sess.messages[0]
			if msg.topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", msg.topic, tt.wantTopic)
			}
			doc := decode(t, msg.payload)
			if doc["device_id"] != "dev-123" {
				t.Errorf("device_id = %v, want dev-123", doc["device_id"])
			}
			if doc["temp"] != 21.5 {
				t.Errorf("temp = %v, want 21.5", doc["temp"])
			}
			if _, mutated := data["device_id"]; mutated {
				t.Error("caller's document was modified")
			}
		})
	}
}

func TestPublishLive_FansOutWhileDisconnected(t *testing.T) {
	sess := &mockSession{connected: false}
	sink := &mockSink{}
	p := New("automata", sess, staticIdentity("dev-123"), sink, nil, nil)

	if p.PublishLive(map[string]any{"x": 1}) {
		t.Error("PublishLive() = true with the session down")
	}

	if len(sink.events) != 1 || sink.events[0] != KindLive {
		t.Fatalf("events = %v, want [live]", sink.events)
	}
	doc, ok := sink.docs[0].(map[string]any)
	if !ok {
		t.Fatalf("event payload type = %T", sink.docs[0])
	}
	if doc["device_id"] != "dev-123" || doc["x"] != 1 {
		t.Errorf("event payload = %v", doc)
	}
}

func TestPublishSnapshot_Mirrors(t *testing.T) {
	sess := &mockSession{connected: true}
	mirror := &mockMirror{}
	sink := &mockSink{}
	p := New("automata", sess, staticIdentity("dev-123"), sink, mirror, nil)

	p.PublishSnapshot(map[string]any{"humidity": 40.0})

	if mirror.deviceID != "dev-123" || mirror.kind != KindSnapshot {
		t.Errorf("mirror got (%q, %q)", mirror.deviceID, mirror.kind)
	}
	if mirror.doc["humidity"] != 40.0 {
		t.Errorf("mirror doc = %v", mirror.doc)
	}
	if len(sink.events) != 0 {
		t.Errorf("snapshot reached the live stream: %v", sink.events)
	}
}

func TestPublish_Unserialisable(t *testing.T) {
	sess := &mockSession{connected: true}
	p := New("automata", sess, staticIdentity("dev-123"), nil, nil, nil)

	if p.PublishSnapshot(map[string]any{"bad": make(chan int)}) {
		t.Error("PublishSnapshot() = true for an unserialisable document")
	}
	if len(sess.messages) != 0 {
		t.Errorf("published %d messages, want 0", len(sess.messages))
	}
}
