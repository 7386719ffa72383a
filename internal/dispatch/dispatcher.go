package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/automata-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/automata-agent/internal/metrics"
	"github.com/nerrad567/automata-agent/internal/session"
	"github.com/nerrad567/automata-agent/internal/store"
)

// ackPayload is published after every parsed action.
var ackPayload = []byte(`{"key":"actionAck","actionAck":"Success"}`)

// Action is one inbound action.
type Action struct {
	// Payload is the decoded action document.
	Payload map[string]any

	// Raw is the payload as received.
	Raw []byte

	// Reboot is set when the document carries "reboot": true.
	Reboot bool

	// Token is the optional "token" field authorising a reboot.
	Token string
}

// ActionHandler is the application callback. It must return promptly.
type ActionHandler func(Action)

// Session is the messaging session the dispatcher acknowledges on.
type Session interface {
	Publish(topic string, payload []byte, retained bool) bool
	Disconnect()
}

// Identity owns the device id. Satisfied by *registration.Manager.
type Identity interface {
	DeviceID() string
	SetDeviceID(ctx context.Context, id string) error
	Invalidate()
}

// Restarter restarts the device.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Logger defines the logging interface for the dispatcher.
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

// Config holds dispatcher settings.
type Config struct {
	BaseTopic string

	// RebootSecret, when set, requires reboot directives to carry a valid token.
	RebootSecret string
}

// Dispatcher routes inbound messages.
type Dispatcher struct {
	cfg       Config
	topics    mqtt.Topics
	session   Session
	identity  Identity
	kv        store.KV
	restarter Restarter
	logger    Logger

	handler ActionHandler

	mu     sync.RWMutex
	config []byte
}

// New creates a dispatcher.
func New(cfg Config, sess Session, identity Identity, kv store.KV, restarter Restarter, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		cfg:       cfg,
		topics:    mqtt.Topics{Base: cfg.BaseTopic},
		session:   sess,
		identity:  identity,
		kv:        kv,
		restarter: restarter,
		logger:    logger,
	}
}

// SetRestarter replaces the restart collaborator.
func (d *Dispatcher) SetRestarter(r Restarter) {
	d.restarter = r
}

// OnAction registers the application callback. Must be called before Run.
func (d *Dispatcher) OnAction(h ActionHandler) {
	d.handler = h
}

// Load restores the cached configuration document.
func (d *Dispatcher) Load(ctx context.Context) {
	raw, err := d.kv.Get(ctx, store.KeyConfig)
	if err != nil {
		return
	}
	d.mu.Lock()
	d.config = []byte(raw)
	d.mu.Unlock()
}

// Config returns a copy of the cached configuration document, or nil.
func (d *Dispatcher) Config() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.config == nil {
		return nil
	}
	return append([]byte(nil), d.config...)
}

// Handle processes one inbound message. It is the session pump handler.
func (d *Dispatcher) Handle(ctx context.Context, msg session.Message) error {
	id := d.identity.DeviceID()
	if id == "" {
		return nil
	}

	switch {
	case strings.HasSuffix(msg.Topic, "/update/"+id):
		return d.handleUpdate(ctx, msg.Payload)
	case strings.HasSuffix(msg.Topic, "/action/"+id):
		return d.handleAction(ctx, msg.Payload)
	default:
		metrics.RecordCommand("unknown", "ignored")
		d.logger.Debug("ignoring message", "topic", msg.Topic)
		return nil
	}
}

func (d *Dispatcher) handleUpdate(ctx context.Context, payload []byte) error {
	if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		metrics.RecordCommand("update", "malformed")
		d.logger.Warn("dropping malformed update")
		return ErrMalformedPayload
	}

	if newID := gjson.GetBytes(payload, "id").String(); newID != "" {
		if err := d.identity.SetDeviceID(ctx, newID); err != nil {
			d.logger.Error("applying device id from update failed", "error", err)
		}
	}

	d.mu.Lock()
	d.config = append([]byte(nil), payload...)
	d.mu.Unlock()

	if err := d.kv.Put(ctx, store.KeyConfig, string(payload)); err != nil {
		d.logger.Error("persisting configuration failed", "error", err)
	}

	metrics.RecordCommand("update", "ok")
	d.logger.Info("configuration updated")
	return nil
}

func (d *Dispatcher) handleAction(ctx context.Context, payload []byte) error {
	action, err := parseAction(payload)
	if err != nil {
		metrics.RecordCommand("action", "malformed")
		d.logger.Warn("dropping malformed action", "error", err)
		return err
	}

	d.invoke(action)

	if !d.session.Publish(d.topics.AckAction(), ackPayload, false) {
		d.logger.Warn("action acknowledgement not delivered")
	}
	metrics.RecordCommand("action", "ok")

	if !action.Reboot {
		return nil
	}

	if d.cfg.RebootSecret != "" {
		if err := VerifyRebootToken(action.Token, d.cfg.RebootSecret, d.identity.DeviceID()); err != nil {
			d.logger.Warn("reboot directive refused", "error", err)
			return nil
		}
	}

	d.logger.Info("reboot directive received, restarting")
	d.session.Disconnect()
	d.identity.Invalidate()
	if d.restarter == nil {
		d.logger.Error("no restarter configured, reboot skipped")
		return nil
	}
	if err := d.restarter.Restart(ctx); err != nil {
		d.logger.Error("restart failed", "error", err)
		return fmt.Errorf("restarting: %w", err)
	}
	return nil
}

// invoke runs the application callback. A panic is logged and swallowed:
// callback failures are not observable to the dispatcher.
func (d *Dispatcher) invoke(action Action) {
	if d.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action handler panic recovered", "panic", r)
		}
	}()
	d.handler(action)
}

func parseAction(payload []byte) (Action, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Action{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if doc == nil {
		return Action{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	reboot, _ := doc["reboot"].(bool)
	token, _ := doc["token"].(string)
	return Action{
		Payload: doc,
		Raw:     append([]byte(nil), payload...),
		Reboot:  reboot,
		Token:   token,
	}, nil
}
