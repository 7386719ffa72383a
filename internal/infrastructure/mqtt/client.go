package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps paho.mqtt.golang for a single device session.
//
// Unlike a long-lived service client it never reconnects on its own: the
// owner observes IsConnected and calls Connect again, which discards the
// previous paho client and builds a fresh one.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Inbound messages are delivered on paho goroutines to ConnectOptions.OnMessage.
type Client struct {
	mu     sync.RWMutex
	client pahomqtt.Client

	// newClient builds the paho client; replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
type MessageHandler func(topic string, payload []byte)

// NewClient returns a disconnected client.
func NewClient() *Client {
	return &Client{newClient: pahomqtt.NewClient}
}

// Connect establishes a connection to the broker described by opts.
//
// Any previous connection is torn down first. Every message received on
// any subscription is delivered to opts.OnMessage.
func (c *Client) Connect(opts ConnectOptions) error {
	if opts.Host == "" {
		return fmt.Errorf("%w: broker host is empty", ErrConnectionFailed)
	}
	if opts.ClientID == "" {
		return fmt.Errorf("%w: client id is empty", ErrConnectionFailed)
	}

	c.Disconnect()

	pahoOpts := buildClientOptions(opts)
	if opts.OnMessage != nil {
		pahoOpts.SetDefaultPublishHandler(c.wrapHandler(opts.OnMessage))
	}
	if opts.OnConnectionLost != nil {
		lost := opts.OnConnectionLost
		pahoOpts.SetConnectionLostHandler(func(pc pahomqtt.Client, err error) {
			// A replaced client may still report its own loss.
			c.mu.RLock()
			current := c.client == pc
			c.mu.RUnlock()
			if current {
				lost(err)
			}
		})
	}

	client := c.newClient(pahoOpts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	return nil
}

// Disconnect closes the current connection, if any. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// IsConnected reports whether the underlying connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected when the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetLogger sets a logger for error and panic logging.
// If not set, handler panics are recovered silently.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// current returns the live paho client or ErrNotConnected.
func (c *Client) current() (pahomqtt.Client, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return client, nil
}

// wrapHandler wraps a MessageHandler with panic recovery.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		handler(msg.Topic(), msg.Payload())
	}
}
