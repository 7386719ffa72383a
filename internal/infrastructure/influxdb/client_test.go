package influxdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/nerrad567/automata-agent/internal/infrastructure/config"
	"github.com/nerrad567/automata-agent/internal/infrastructure/influxdb"
)

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "automata-dev-token",
		Org:           "automata",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// pingServer answers the InfluxDB /ping and /health endpoints.
func pingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Healthy(t *testing.T) {
	srv := pingServer(t, http.StatusNoContent)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
	// Writes after Close are dropped silently
	client.WriteTelemetry("dev-1", "live", map[string]any{"temperature": 21.5})
}

func TestConnect_Unreachable(t *testing.T) {
	srv := pingServer(t, http.StatusServiceUnavailable)

	_, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestTelemetryFields(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want map[string]any
	}{
		{
			name: "numbers and bools kept",
			doc:  map[string]any{"temperature": 21.5, "relay": true, "count": 3},
			want: map[string]any{"temperature": 21.5, "relay": true, "count": int64(3)},
		},
		{
			name: "strings, nested and device_id dropped",
			doc: map[string]any{
				"device_id": "dev-1",
				"label":     "greenhouse",
				"nested":    map[string]any{"a": 1.0},
				"humidity":  40.0,
			},
			want: map[string]any{"humidity": 40.0},
		},
		{
			name: "empty document",
			doc:  map[string]any{},
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := influxdb.TelemetryFields(tt.doc)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TelemetryFields() = %v, want %v", got, tt.want)
			}
		})
	}
}
