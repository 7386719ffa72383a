package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/automata-agent/internal/metrics"
)

// LinkState is the association state of the device.
type LinkState int32

const (
	Disconnected LinkState = iota
	Associating
	Associated
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Associating:
		return "associating"
	case Associated:
		return "associated"
	default:
		return "unknown"
	}
}

// Credential is one (network-name, secret) pair.
type Credential struct {
	SSID     string
	Password string
}

// Associator joins networks and reports link status.
type Associator interface {
	// Associate joins the given network, blocking until it succeeds or fails.
	Associate(ctx context.Context, cred Credential) error

	// Connected reports whether the link is currently up. It must be cheap
	// enough to call every tick.
	Connected(ctx context.Context) bool
}

// Hook is a setup step run once per association event.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// Logger defines the logging interface for the controller.
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

// Controller is the network association state machine.
//
// Poll, Configure and AddHook are called from the lifecycle loop only.
// State may be read from any goroutine.
type Controller struct {
	associator Associator
	limiter    *rate.Limiter
	logger     Logger

	credMu sync.RWMutex
	creds  []Credential

	hooks     []Hook
	setupDone bool

	state atomic.Int32
}

// NewController creates a controller that waits retryDelay between
// association attempts.
func NewController(associator Associator, retryDelay time.Duration, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &Controller{
		associator: associator,
		limiter:    rate.NewLimiter(rate.Every(retryDelay), 1),
		logger:     logger,
	}
}

// Configure registers credentials. Entries with an empty name are ignored
// and a name already known keeps its first secret. Order is preserved.
func (c *Controller) Configure(creds []Credential) {
	c.credMu.Lock()
	defer c.credMu.Unlock()

	for _, cred := range creds {
		if cred.SSID == "" {
			continue
		}
		known := false
		for _, existing := range c.creds {
			if existing.SSID == cred.SSID {
				known = true
				break
			}
		}
		if !known {
			c.creds = append(c.creds, cred)
		}
	}
}

// Credentials returns a copy of the credential set in attempt order.
func (c *Controller) Credentials() []Credential {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	out := make([]Credential, len(c.creds))
	copy(out, c.creds)
	return out
}

// AddHook registers a setup step. Hooks run in registration order.
func (c *Controller) AddHook(name string, run func(ctx context.Context) error) {
	c.hooks = append(c.hooks, Hook{Name: name, Run: run})
}

// State returns the current link state.
func (c *Controller) State() LinkState {
	return LinkState(c.state.Load())
}

func (c *Controller) setState(s LinkState) {
	c.state.Store(int32(s))
	metrics.SetLinkState(int(s))
}

// Poll advances the state machine by one step and returns the resulting state.
//
// While Associated it only checks the link. Otherwise, if the retry delay
// has elapsed, it tries each candidate in order until one succeeds.
func (c *Controller) Poll(ctx context.Context, now time.Time) LinkState {
	if c.State() == Associated {
		if c.associator.Connected(ctx) {
			return Associated
		}
		c.logger.Warn("network link lost")
		c.markDisconnected()
	}

	if !c.limiter.AllowN(now, 1) {
		return c.State()
	}

	// The link may have come up on its own (wired, or joined by the OS).
	if c.associator.Connected(ctx) {
		c.markAssociated(ctx, "")
		return Associated
	}

	c.setState(Associating)
	if err := c.associate(ctx); err != nil {
		c.logger.Warn("network association failed", "error", err)
		c.markDisconnected()
		return Disconnected
	}
	return Associated
}

func (c *Controller) associate(ctx context.Context) error {
	creds := c.Credentials()
	if len(creds) == 0 {
		metrics.RecordAssociation(false)
		return ErrNoCredentials
	}

	var errs []error
	for _, cred := range creds {
		err := c.associator.Associate(ctx, cred)
		metrics.RecordAssociation(err == nil)
		if err == nil {
			c.markAssociated(ctx, cred.SSID)
			return nil
		}
		c.logger.Debug("candidate network failed", "ssid", cred.SSID, "error", err)
		errs = append(errs, err)
	}
	return errors.Join(append([]error{ErrAssociationFailed}, errs...)...)
}

func (c *Controller) markDisconnected() {
	c.setState(Disconnected)
	c.setupDone = false
}

func (c *Controller) markAssociated(ctx context.Context, ssid string) {
	c.setState(Associated)
	c.logger.Info("network associated", "ssid", ssid)

	if c.setupDone {
		return
	}
	c.setupDone = true

	for _, h := range c.hooks {
		if err := h.Run(ctx); err != nil {
			c.logger.Warn("network setup step failed", "step", h.Name, "error", err)
			continue
		}
		c.logger.Debug("network setup step done", "step", h.Name)
	}
}
