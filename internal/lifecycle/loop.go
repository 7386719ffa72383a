package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/automata-agent/internal/network"
	"github.com/nerrad567/automata-agent/internal/session"
)

// DefaultTickInterval is the delay between ticks.
const DefaultTickInterval = 50 * time.Millisecond

// DefaultUpdateInterval is the periodic update interval.
const DefaultUpdateInterval = 60 * time.Second

// Network is the association controller.
type Network interface {
	Poll(ctx context.Context, now time.Time) network.LinkState
}

// Registrar is the registration manager.
type Registrar interface {
	Registered() bool
	Due(now time.Time) bool
	Attempt(ctx context.Context, now time.Time) error
}

// Session is the messaging session manager.
type Session interface {
	EnsureConnected(ctx context.Context) error
	Connected() bool
	Pump(handler func(session.Message)) int
	Disconnect()
}

// Dispatcher handles inbound commands.
type Dispatcher interface {
	Handle(ctx context.Context, msg session.Message) error
}

// Clock supplies the loop time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Logger defines the logging interface for the loop.
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

// Config holds loop timing.
type Config struct {
	TickInterval   time.Duration
	UpdateInterval time.Duration
}

// Deps are the loop collaborators.
type Deps struct {
	Network    Network
	Registrar  Registrar
	Session    Session
	Dispatcher Dispatcher
	Restarter  Restarter
	Clock      Clock  // optional, defaults to SystemClock
	Logger     Logger // optional
}

// Loop is the lifecycle loop.
type Loop struct {
	cfg        Config
	network    Network
	registrar  Registrar
	session    Session
	dispatcher Dispatcher
	restarter  Restarter
	clock      Clock
	logger     Logger

	periodic     func()
	lastPeriodic time.Time
	started      bool
	linkUp       bool

	restartRequested atomic.Bool
}

// New creates a loop.
func New(cfg Config, deps Deps) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Restarter == nil {
		deps.Restarter = ExitRestarter{}
	}
	return &Loop{
		cfg:        cfg,
		network:    deps.Network,
		registrar:  deps.Registrar,
		session:    deps.Session,
		dispatcher: deps.Dispatcher,
		restarter:  deps.Restarter,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// OnPeriodicUpdate registers the callback fired every UpdateInterval.
// Must be called before Run.
func (l *Loop) OnPeriodicUpdate(fn func()) {
	l.periodic = fn
}

// RequestRestart asks the loop to tear down and restart at the end of the
// current or next tick. Safe for concurrent use.
func (l *Loop) RequestRestart() {
	l.restartRequested.Store(true)
}

// Restart records a restart request. It lets the loop stand in as the
// restart collaborator for components running on the loop goroutine.
func (l *Loop) Restart(context.Context) error {
	l.RequestRestart()
	return nil
}

// Run ticks until ctx is cancelled (nil) or a restart is due
// (ErrRestartRequested, or the restarter's error).
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	l.logger.Info("lifecycle loop started", "tick_interval", l.cfg.TickInterval)
	for {
		if err := l.Tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			l.session.Disconnect()
			l.logger.Info("lifecycle loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one ordered pass over the loop steps.
func (l *Loop) Tick(ctx context.Context) error {
	now := l.clock.Now()
	if !l.started {
		l.started = true
		l.lastPeriodic = now
	}

	if l.network.Poll(ctx, now) != network.Associated {
		if l.linkUp {
			l.linkUp = false
			l.logger.Warn("link lost, tearing down session")
			l.session.Disconnect()
		}
		return l.handleRestart(ctx)
	}
	l.linkUp = true

	if l.registrar.Due(now) {
		if err := l.registrar.Attempt(ctx, now); err != nil {
			l.logger.Debug("registration attempt failed", "error", err)
		}
	}

	// A successful attempt above is followed by session establishment in
	// the same tick. One connect try per tick at most.
	if l.registrar.Registered() {
		l.ensureSession(ctx)
	}

	l.session.Pump(func(msg session.Message) {
		if err := l.dispatcher.Handle(ctx, msg); err != nil {
			l.logger.Debug("command not handled", "topic", msg.Topic, "error", err)
		}
	})

	if now.Sub(l.lastPeriodic) >= l.cfg.UpdateInterval {
		l.lastPeriodic = now
		l.firePeriodic()
	}

	return l.handleRestart(ctx)
}

func (l *Loop) ensureSession(ctx context.Context) {
	if err := l.session.EnsureConnected(ctx); err != nil && !errors.Is(err, session.ErrNotRegistered) {
		l.logger.Debug("session not established", "error", err)
	}
}

func (l *Loop) firePeriodic() {
	if l.periodic == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("periodic update panic recovered", "panic", r)
		}
	}()
	l.periodic()
}

func (l *Loop) handleRestart(ctx context.Context) error {
	if !l.restartRequested.Swap(false) {
		return nil
	}

	l.logger.Info("restarting device")
	l.session.Disconnect()
	return l.restarter.Restart(ctx)
}
