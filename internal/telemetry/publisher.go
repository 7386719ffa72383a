package telemetry

import (
	"encoding/json"
	"maps"

	"github.com/nerrad567/automata-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/automata-agent/internal/metrics"
)

// Document kinds, used for metrics, the event stream and the mirror.
const (
	KindLive     = "live"
	KindSnapshot = "snapshot"
	KindAction   = "action"
)

// deviceIDField is injected into every outbound document.
const deviceIDField = "device_id"

// Session is the messaging session documents are published on.
type Session interface {
	Publish(topic string, payload []byte, retained bool) bool
}

// Identity supplies the device id stamped on documents.
type Identity interface {
	DeviceID() string
}

// EventSink receives the local live-data stream.
type EventSink interface {
	Broadcast(event string, payload any)
}

// Mirror receives a copy of every snapshot.
type Mirror interface {
	WriteTelemetry(deviceID, kind string, doc map[string]any)
}

// Logger defines the logging interface for the publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher stamps and publishes outbound documents.
type Publisher struct {
	session  Session
	identity Identity
	topics   mqtt.Topics
	sink     EventSink
	mirror   Mirror
	logger   Logger
}

// New creates a publisher. sink, mirror and logger may be nil.
func New(baseTopic string, session Session, identity Identity, sink EventSink, mirror Mirror, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{
		session:  session,
		identity: identity,
		topics:   mqtt.Topics{Base: baseTopic},
		sink:     sink,
		mirror:   mirror,
		logger:   logger,
	}
}

// PublishLive publishes an on-demand reading and fans it out locally.
// It reports whether the session accepted the publish.
func (p *Publisher) PublishLive(data map[string]any) bool {
	doc := p.stamp(data)
	if p.sink != nil {
		p.sink.Broadcast(KindLive, doc)
	}
	return p.publish(KindLive, p.topics.LiveData(), doc)
}

// PublishSnapshot publishes a periodic snapshot.
func (p *Publisher) PublishSnapshot(data map[string]any) bool {
	doc := p.stamp(data)
	if p.mirror != nil {
		p.mirror.WriteTelemetry(p.identity.DeviceID(), KindSnapshot, doc)
	}
	return p.publish(KindSnapshot, p.topics.Data(), doc)
}

// PublishAction publishes a device-originated action.
func (p *Publisher) PublishAction(data map[string]any) bool {
	return p.publish(KindAction, p.topics.Action(), p.stamp(data))
}

func (p *Publisher) stamp(data map[string]any) map[string]any {
	doc := make(map[string]any, len(data)+1)
	maps.Copy(doc, data)
	doc[deviceIDField] = p.identity.DeviceID()
	return doc
}

func (p *Publisher) publish(kind, topic string, doc map[string]any) bool {
	payload, err := json.Marshal(doc)
	if err != nil {
		p.logger.Warn("dropping unserialisable document", "kind", kind, "error", err)
		metrics.RecordPublish(kind, false)
		return false
	}

	ok := p.session.Publish(topic, payload, false)
	metrics.RecordPublish(kind, ok)
	if !ok {
		p.logger.Debug("document not delivered", "kind", kind, "topic", topic)
	}
	return ok
}
