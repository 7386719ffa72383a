package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/automata-agent/internal/backend"
	"github.com/nerrad567/automata-agent/internal/metrics"
	"github.com/nerrad567/automata-agent/internal/network"
	"github.com/nerrad567/automata-agent/internal/store"
)

const (
	defaultAttributeType = "INFO"
	deviceType           = "sensor"
	statusOnline         = "ONLINE"
	attributeDataType    = "String"

	// maxBackoffShift caps the exponent so the shift cannot overflow.
	maxBackoffShift = 30
)

// Poster sends a JSON document to a backend endpoint. Satisfied by *backend.Client.
type Poster interface {
	Post(ctx context.Context, endpoint string, body any) ([]byte, error)
}

// Logger defines the logging interface for the manager.
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

// Config holds the device description and retry policy.
type Config struct {
	Name     string
	Category string

	// Type defaults to "sensor".
	Type           string
	UpdateInterval time.Duration

	// Host identity reported to the backend.
	Hostname string
	MAC      string
	IP       string

	RetryInterval time.Duration
	Backoff       bool
	BaseDelay     time.Duration
	MaxBackoff    time.Duration
	MaxRetries    uint32
}

// Manager runs the registration protocol.
//
// Mutating methods are called from the lifecycle loop only. Accessors are
// safe from any goroutine.
type Manager struct {
	cfg    Config
	poster Poster
	kv     store.KV
	logger Logger

	mu         sync.RWMutex
	deviceID   string
	record     Record
	attempted  bool
	attributes []Attribute
	broker     Broker
	ip         string
}

// NewManager creates a manager. broker is the static messaging endpoint
// used until credentials are fetched from the backend.
func NewManager(cfg Config, poster Poster, kv store.KV, broker Broker, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Type == "" {
		cfg.Type = deviceType
	}
	return &Manager{
		cfg:    cfg,
		poster: poster,
		kv:     kv,
		logger: logger,
		broker: broker,
		ip:     cfg.IP,
	}
}

// Load restores the previously assigned device id. It is sent as the prior
// id in the next request; the device still starts unregistered.
func (m *Manager) Load(ctx context.Context) error {
	id, err := m.kv.Get(ctx, store.KeyDeviceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading device id: %w", err)
	}

	m.mu.Lock()
	m.deviceID = id
	m.mu.Unlock()
	return nil
}

// AddAttribute appends an attribute descriptor. Only allowed before the
// first registration attempt.
func (m *Manager) AddAttribute(a Attribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempted {
		return ErrAttributesFrozen
	}
	if a.Type == "" {
		a.Type = defaultAttributeType
	}
	m.attributes = append(m.attributes, a)
	return nil
}

// SetIP updates the address reported in accessUrl.
func (m *Manager) SetIP(ip string) {
	m.mu.Lock()
	m.ip = ip
	m.mu.Unlock()
}

// IP returns the address reported in accessUrl.
func (m *Manager) IP() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ip
}

// DeviceID returns the current device id (empty until assigned).
func (m *Manager) DeviceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deviceID
}

// MAC returns the hardware address captured at boot.
func (m *Manager) MAC() string {
	return m.cfg.MAC
}

// Registered reports whether the current power cycle has a valid registration.
func (m *Manager) Registered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.Registered
}

// Record returns a snapshot of the registration record.
func (m *Manager) Record() Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}

// Broker returns the messaging endpoint to connect to.
func (m *Manager) Broker() Broker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.broker
}

// Wait returns the minimum time between the last attempt and the next one.
func (m *Manager) Wait() time.Duration {
	m.mu.RLock()
	retries := m.record.RetryCount
	m.mu.RUnlock()

	wait := m.cfg.RetryInterval
	if !m.cfg.Backoff {
		return wait
	}

	shift := retries
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	backoff := time.Duration(1<<shift) * m.cfg.BaseDelay
	if backoff > m.cfg.MaxBackoff || backoff < 0 {
		backoff = m.cfg.MaxBackoff
	}
	return max(wait, backoff)
}

// Due reports whether an attempt should be made at now.
func (m *Manager) Due(now time.Time) bool {
	m.mu.RLock()
	registered, attempted, last := m.record.Registered, m.attempted, m.record.LastAttempt
	m.mu.RUnlock()

	if registered {
		return false
	}
	if !attempted {
		return true
	}
	return now.Sub(last) >= m.Wait()
}

// Attempt performs one registration exchange. On success the new device id
// is persisted and the record reset; on any failure the retry count grows.
func (m *Manager) Attempt(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	m.attempted = true
	m.record.LastAttempt = now
	req := m.buildRequestLocked()
	attempt := m.record.RetryCount + 1
	m.mu.Unlock()

	m.logger.Info("registering device", "attempt", attempt)

	id, err := m.register(ctx, req)
	if err != nil {
		m.mu.Lock()
		m.record.RetryCount++
		retries := m.record.RetryCount
		m.mu.Unlock()

		metrics.RecordRegistration(false, retries)
		if m.cfg.MaxRetries > 0 && retries > m.cfg.MaxRetries {
			m.logger.Warn("device registration keeps failing", "attempts", retries, "max_retries", m.cfg.MaxRetries, "error", err)
		} else {
			m.logger.Warn("device registration failed", "attempt", retries, "error", err)
		}
		return err
	}

	if err := m.kv.Put(ctx, store.KeyDeviceID, id); err != nil {
		m.logger.Error("persisting device id failed", "error", err)
	}

	m.mu.Lock()
	m.deviceID = id
	m.record.Registered = true
	m.record.RetryCount = 0
	m.mu.Unlock()

	metrics.RecordRegistration(true, 0)
	m.logger.Info("device registered", "device_id", id)
	return nil
}

func (m *Manager) register(ctx context.Context, req registerRequest) (string, error) {
	body, err := m.poster.Post(ctx, backend.EndpointRegister, req)
	if err != nil {
		return "", err
	}

	var resp registerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", fmt.Errorf("%w: missing id", ErrMalformedResponse)
	}
	return resp.ID, nil
}

func (m *Manager) buildRequestLocked() registerRequest {
	attrs := make([]attributePayload, 0, len(m.attributes))
	for _, a := range m.attributes {
		attrs = append(attrs, attributePayload{
			Value:         "",
			DisplayName:   a.DisplayName,
			Key:           a.Key,
			Units:         a.Unit,
			Type:          a.Type,
			Extras:        a.Extras,
			Visible:       true,
			ValueDataType: attributeDataType,
		})
	}

	return registerRequest{
		Name:           m.cfg.Name,
		DeviceID:       m.deviceID,
		Type:           m.cfg.Type,
		Category:       m.cfg.Category,
		UpdateInterval: m.cfg.UpdateInterval.Milliseconds(),
		Status:         statusOnline,
		Host:           m.cfg.Hostname,
		MacAddr:        m.cfg.MAC,
		Reboot:         false,
		Sleep:          false,
		AccessURL:      "http://" + m.ip,
		Attributes:     attrs,
	}
}

// SetDeviceID assigns a new identity (from an update command) and persists it.
func (m *Manager) SetDeviceID(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyDeviceID
	}

	m.mu.Lock()
	changed := m.deviceID != id
	m.deviceID = id
	m.mu.Unlock()

	if !changed {
		return nil
	}
	if err := m.kv.Put(ctx, store.KeyDeviceID, id); err != nil {
		return fmt.Errorf("persisting device id: %w", err)
	}
	m.logger.Info("device id reassigned", "device_id", id)
	return nil
}

// Invalidate marks the device unregistered.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.record.Registered = false
	m.mu.Unlock()
}

// FetchCredentials asks the backend for the messaging endpoint. On any
// failure the previous endpoint is kept and returned with the error.
func (m *Manager) FetchCredentials(ctx context.Context) (Broker, error) {
	previous := m.Broker()

	body, err := m.poster.Post(ctx, backend.EndpointServerCreds, credentialsRequest{MQTT: true, DeviceID: m.DeviceID()})
	if err != nil {
		return previous, err
	}

	var resp credentialsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return previous, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if resp.Host == "" || resp.Port <= 0 || resp.Port > 65535 {
		return previous, fmt.Errorf("%w: incomplete broker endpoint", ErrMalformedResponse)
	}

	broker := Broker{Host: resp.Host, Port: resp.Port}
	m.mu.Lock()
	m.broker = broker
	m.mu.Unlock()
	return broker, nil
}

// FetchNetworkList asks the backend for its known networks, caches the raw
// document under store.KeyWiFiList and returns the parsed credentials.
func (m *Manager) FetchNetworkList(ctx context.Context) ([]network.Credential, error) {
	body, err := m.poster.Post(ctx, backend.EndpointWiFiList, networkListRequest{WiFi: "get"})
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: network list", ErrMalformedResponse)
	}
	creds := network.ParseNetworkList(body)

	if err := m.kv.Put(ctx, store.KeyWiFiList, string(body)); err != nil {
		m.logger.Warn("caching network list failed", "error", err)
	}
	return creds, nil
}

// CachedNetworkList returns the network list stored by a previous fetch.
func (m *Manager) CachedNetworkList(ctx context.Context) []network.Credential {
	raw, err := m.kv.Get(ctx, store.KeyWiFiList)
	if err != nil {
		return nil
	}
	return network.ParseNetworkList([]byte(raw))
}
