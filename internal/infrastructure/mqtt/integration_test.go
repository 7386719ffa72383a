//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
		done     = make(chan struct{}, 1)
	)

	c := NewClient()
	err := c.Connect(ConnectOptions{
		Host:     "127.0.0.1",
		Port:     1883,
		ClientID: "automata-int-roundtrip",
		OnMessage: func(topic string, _ []byte) {
			mu.Lock()
			received = append(received, topic)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	topics := Topics{Base: "automata-int"}
	if err := c.Subscribe(topics.ActionFor("dev-int"), 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Publish(topics.ActionFor("dev-int"), []byte(`{"on":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 || received[0] != "automata-int/action/dev-int" {
		t.Errorf("received = %v", received)
	}
}

func TestIntegration_ReconnectReplacesSession(t *testing.T) {
	c := NewClient()
	opts := ConnectOptions{Host: "127.0.0.1", Port: 1883, ClientID: "automata-int-reconnect"}

	for i := 0; i < 2; i++ {
		if err := c.Connect(opts); err != nil {
			t.Fatalf("Connect() #%d error = %v", i+1, err)
		}
		if !c.IsConnected() {
			t.Fatalf("IsConnected() = false after Connect #%d", i+1)
		}
	}

	c.Disconnect()
	if c.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
}
