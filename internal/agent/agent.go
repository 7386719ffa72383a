package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nerrad567/automata-agent/internal/backend"
	"github.com/nerrad567/automata-agent/internal/diagnostics"
	"github.com/nerrad567/automata-agent/internal/dispatch"
	"github.com/nerrad567/automata-agent/internal/infrastructure/config"
	"github.com/nerrad567/automata-agent/internal/infrastructure/database"
	"github.com/nerrad567/automata-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/automata-agent/internal/infrastructure/logging"
	"github.com/nerrad567/automata-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/automata-agent/internal/lifecycle"
	"github.com/nerrad567/automata-agent/internal/network"
	"github.com/nerrad567/automata-agent/internal/process"
	"github.com/nerrad567/automata-agent/internal/registration"
	"github.com/nerrad567/automata-agent/internal/session"
	"github.com/nerrad567/automata-agent/internal/store"
	"github.com/nerrad567/automata-agent/internal/telemetry"
	"github.com/nerrad567/automata-agent/migrations"
)

// Options overrides collaborators. Zero values select the production
// implementation derived from the configuration.
type Options struct {
	Version string
	Logger  *logging.Logger

	// Store replaces the SQLite store opened from cfg.Database.
	Store store.KV

	// Associator replaces the associator selected by cfg.Network.Backend.
	Associator network.Associator

	// Transport replaces the MQTT client.
	Transport session.Transport

	// Poster replaces the HTTP backend client.
	Poster registration.Poster

	// Restarter replaces the restarter derived from cfg.Commands.
	Restarter lifecycle.Restarter

	// Clock drives the lifecycle loop.
	Clock lifecycle.Clock

	// Identity replaces interface discovery.
	Identity *network.HostIdentity
}

// Identity is the device identity as currently known.
type Identity struct {
	DeviceID   string
	MAC        string
	IP         string
	Registered bool
}

// Agent is a running device agent.
type Agent struct {
	cfg    *config.Config
	logger *logging.Logger

	host       network.HostIdentity
	discover   bool
	db         *database.DB
	kv         store.KV
	network    *network.Controller
	registrar  *registration.Manager
	session    *session.Manager
	dispatcher *dispatch.Dispatcher
	publisher  *telemetry.Publisher
	loop       *lifecycle.Loop
	hub        *diagnostics.Hub
	diag       *diagnostics.Server
	influx     *influxdb.Client
	timeSync   *network.TimeSync
	advertiser *network.Advertiser
}

// New builds an agent from cfg. Nothing touches the network until Run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Agent, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	a := &Agent{cfg: cfg, logger: logger}

	if err := a.resolveIdentity(opts.Identity); err != nil {
		return nil, err
	}

	if err := a.openStore(ctx, opts.Store); err != nil {
		return nil, err
	}

	runner := process.NewRunner(0)
	runner.SetLogger(logger.With("component", "process"))

	a.buildNetwork(opts.Associator, runner)

	if err := a.buildRegistrar(ctx, opts.Poster); err != nil {
		a.Close()
		return nil, err
	}
	a.network.Configure(a.registrar.CachedNetworkList(ctx))

	transport := opts.Transport
	if transport == nil {
		client := mqtt.NewClient()
		client.SetLogger(logger.With("component", "mqtt"))
		transport = client
	}
	a.session = session.New(session.Config{
		DeviceName:           cfg.Device.Name,
		MAC:                  a.host.MAC,
		Username:             cfg.MQTT.Auth.Username,
		Password:             cfg.MQTT.Auth.Password,
		TLS:                  cfg.MQTT.Broker.TLS,
		KeepAlive:            cfg.GetKeepAlive(),
		BaseTopic:            cfg.MQTT.BaseTopic,
		StatusTopic:          cfg.MQTT.StatusTopic,
		UseServerCredentials: cfg.MQTT.UseServerCredentials,
		InboxSize:            cfg.MQTT.InboxSize,
		SubscribeQoS:         byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
	}, transport, a.registrar, logger.With("component", "session"))

	restarter := opts.Restarter
	if restarter == nil {
		restarter = lifecycle.ExitRestarter{}
		if len(cfg.Commands.RestartCommand) > 0 {
			restarter = lifecycle.NewCommandRestarter(runner, cfg.Commands.RestartCommand)
		}
	}

	a.dispatcher = dispatch.New(dispatch.Config{
		BaseTopic:    cfg.MQTT.BaseTopic,
		RebootSecret: cfg.Commands.RebootSecret,
	}, a.session, a.registrar, a.kv, nil, logger.With("component", "dispatch"))

	a.loop = lifecycle.New(lifecycle.Config{
		TickInterval:   cfg.GetTickInterval(),
		UpdateInterval: cfg.GetUpdateInterval(),
	}, lifecycle.Deps{
		Network:    a.network,
		Registrar:  a.registrar,
		Session:    a.session,
		Dispatcher: a.dispatcher,
		Restarter:  restarter,
		Clock:      opts.Clock,
		Logger:     logger.With("component", "lifecycle"),
	})
	// Reboot directives are turned into loop restart requests so the
	// teardown and restart happen on the loop's own schedule.
	a.dispatcher.SetRestarter(a.loop)
	a.dispatcher.Load(ctx)

	var mirror telemetry.Mirror
	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			logger.Warn("telemetry mirror unavailable", "error", err)
		} else {
			client.SetOnError(func(err error) {
				logger.Warn("telemetry mirror write failed", "error", err)
			})
			a.influx = client
			mirror = client
		}
	}

	a.hub = diagnostics.NewHub(cfg.Diagnostics, logger.With("component", "events"))
	if cfg.Diagnostics.Enabled {
		diag, err := diagnostics.New(diagnostics.Deps{
			Config:    cfg.Diagnostics,
			Logger:    logger.With("component", "diagnostics"),
			Status:    a,
			Restarter: a.loop,
			Hub:       a.hub,
			Version:   opts.Version,
			Checks:    a.healthChecks(transport),
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating diagnostics server: %w", err)
		}
		a.diag = diag
	}

	a.publisher = telemetry.New(cfg.MQTT.BaseTopic, a.session, a.registrar, a.hub, mirror, logger.With("component", "telemetry"))

	a.addSetupHooks()
	return a, nil
}

func (a *Agent) resolveIdentity(override *network.HostIdentity) error {
	if override != nil {
		a.host = *override
	} else {
		host, err := network.DiscoverIdentity(a.cfg.Device.Interface)
		if err != nil && a.cfg.Device.MACAddress == "" {
			return fmt.Errorf("discovering host identity: %w", err)
		}
		a.host = host
		a.discover = err == nil
	}
	if a.cfg.Device.MACAddress != "" {
		a.host.MAC = a.cfg.Device.MACAddress
	}
	if a.host.MAC == "" {
		return fmt.Errorf("no MAC address for interface %q; set device.mac_address", a.host.Interface)
	}
	return nil
}

func (a *Agent) openStore(ctx context.Context, kv store.KV) error {
	if kv != nil {
		a.kv = kv
		return nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("migrating database: %w", err)
	}

	a.db = db
	a.kv = store.NewSQLiteStore(db.DB)
	return nil
}

func (a *Agent) buildNetwork(assoc network.Associator, runner *process.Runner) {
	if assoc == nil {
		switch a.cfg.Network.Backend {
		case "nmcli":
			assoc = network.NewNmcli(runner, a.cfg.Network.Interface)
		default:
			assoc = network.Static{}
		}
	}

	a.network = network.NewController(assoc, a.cfg.GetNetworkRetryDelay(), a.logger.With("component", "network"))

	creds := make([]network.Credential, 0, len(a.cfg.Network.Candidates))
	for _, c := range a.cfg.Network.Candidates {
		creds = append(creds, network.Credential{SSID: c.SSID, Password: c.Password})
	}
	a.network.Configure(creds)
}

func (a *Agent) buildRegistrar(ctx context.Context, poster registration.Poster) error {
	if poster == nil {
		poster = backend.New(backend.Config{
			Host:               a.cfg.Backend.Host,
			Port:               a.cfg.Backend.Port,
			TLS:                a.cfg.Backend.TLS,
			BasePath:           a.cfg.Backend.BasePath,
			InsecureSkipVerify: a.cfg.Backend.InsecureSkipVerify,
			Timeout:            a.cfg.GetBackendTimeout(),
		})
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
	}

	reg := a.cfg.Registration
	a.registrar = registration.NewManager(registration.Config{
		Name:           a.cfg.Device.Name,
		Category:       a.cfg.Device.Category,
		Type:           a.cfg.Device.Type,
		UpdateInterval: a.cfg.GetUpdateInterval(),
		Hostname:       hostname,
		MAC:            a.host.MAC,
		IP:             a.host.IP,
		RetryInterval:  a.cfg.GetRetryInterval(),
		Backoff:        reg.Backoff,
		BaseDelay:      a.cfg.GetBackoffBase(),
		MaxBackoff:     a.cfg.GetMaxBackoff(),
		MaxRetries:     uint32(max(reg.MaxRetries, 0)), //nolint:gosec // clamped non-negative
	}, poster, a.kv, registration.Broker{
		Host: a.cfg.MQTT.Broker.Host,
		Port: a.cfg.MQTT.Broker.Port,
	}, a.logger.With("component", "registration"))

	if err := a.registrar.Load(ctx); err != nil {
		return fmt.Errorf("loading registration state: %w", err)
	}
	return nil
}

// healthChecks collects the infrastructure reported on /health.
func (a *Agent) healthChecks(transport session.Transport) map[string]diagnostics.HealthChecker {
	checks := make(map[string]diagnostics.HealthChecker)
	if a.db != nil {
		checks["database"] = a.db
	}
	if hc, ok := transport.(diagnostics.HealthChecker); ok {
		checks["mqtt"] = hc
	}
	if a.influx != nil {
		checks["influxdb"] = a.influx
	}
	return checks
}

// addSetupHooks registers the once-per-association steps.
func (a *Agent) addSetupHooks() {
	if a.discover {
		a.network.AddHook("address", func(context.Context) error {
			host, err := network.DiscoverIdentity(a.host.Interface)
			if err != nil {
				return err
			}
			if host.IP != "" {
				a.registrar.SetIP(host.IP)
			}
			return nil
		})
	}

	if a.cfg.Network.NTPServer != "" {
		a.timeSync = network.NewTimeSync(a.cfg.Network.NTPServer)
		a.network.AddHook("time-sync", a.timeSync.Run)
	}

	if a.cfg.Network.MDNS {
		instance := session.ClientID(a.cfg.Device.Name, a.host.CompactMAC())
		a.advertiser = network.NewAdvertiser(instance, a.cfg.Diagnostics.Port, func() []string {
			return network.TXTRecord(a.registrar.DeviceID(), a.registrar.IP())
		})
		a.network.AddHook("mdns", a.advertiser.Run)
	}

	if a.cfg.Network.FetchFromBackend {
		a.network.AddHook("network-list", func(ctx context.Context) error {
			creds, err := a.registrar.FetchNetworkList(ctx)
			if err != nil {
				return err
			}
			a.network.Configure(creds)
			return nil
		})
	}
}

// AddAttribute declares a reported attribute. Only allowed before the
// first registration attempt.
func (a *Agent) AddAttribute(attr registration.Attribute) error {
	return a.registrar.AddAttribute(attr)
}

// OnAction registers the action callback.
func (a *Agent) OnAction(h dispatch.ActionHandler) {
	a.dispatcher.OnAction(h)
}

// OnPeriodicUpdate registers the callback fired every device.update_interval.
func (a *Agent) OnPeriodicUpdate(fn func()) {
	a.loop.OnPeriodicUpdate(fn)
}

// SendLive publishes an on-demand reading and streams it to local clients.
func (a *Agent) SendLive(data map[string]any) bool {
	return a.publisher.PublishLive(data)
}

// SendData publishes a periodic snapshot.
func (a *Agent) SendData(data map[string]any) bool {
	return a.publisher.PublishSnapshot(data)
}

// SendAction publishes a device-originated action.
func (a *Agent) SendAction(data map[string]any) bool {
	return a.publisher.PublishAction(data)
}

// Identity returns the current device identity.
func (a *Agent) Identity() Identity {
	return Identity{
		DeviceID:   a.registrar.DeviceID(),
		MAC:        a.registrar.MAC(),
		IP:         a.registrar.IP(),
		Registered: a.registrar.Registered(),
	}
}

// Configuration returns the last configuration document received from the
// backend, or nil.
func (a *Agent) Configuration() []byte {
	return a.dispatcher.Config()
}

// Status implements diagnostics.StatusSource.
func (a *Agent) Status() diagnostics.Status {
	return diagnostics.Status{
		DeviceID:         a.registrar.DeviceID(),
		MAC:              a.registrar.MAC(),
		IP:               a.registrar.IP(),
		LinkState:        a.network.State().String(),
		Registered:       a.registrar.Registered(),
		RetryCount:       a.registrar.Record().RetryCount,
		SessionConnected: a.session.Connected(),
	}
}

// Run starts the diagnostics server and drives the lifecycle loop until
// ctx is cancelled or a restart is requested.
func (a *Agent) Run(ctx context.Context) error {
	if a.diag != nil {
		if err := a.diag.Start(ctx); err != nil {
			return fmt.Errorf("starting diagnostics server: %w", err)
		}
	}

	a.logger.Info("agent starting",
		"device", a.cfg.Device.Name,
		"mac", a.host.MAC,
		"network_backend", a.cfg.Network.Backend,
	)

	err := a.loop.Run(ctx)
	if errors.Is(err, lifecycle.ErrRestartRequested) {
		a.logger.Info("agent stopping for restart")
	}
	return err
}

// Close releases resources. Safe to call more than once.
func (a *Agent) Close() error {
	var errs []error

	if a.advertiser != nil {
		a.advertiser.Shutdown()
		a.advertiser = nil
	}
	if a.diag != nil {
		if err := a.diag.Close(); err != nil {
			errs = append(errs, err)
		}
		a.diag = nil
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, err)
		}
		a.influx = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
		a.db = nil
	}
	return errors.Join(errs...)
}
