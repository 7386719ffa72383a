package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/grandcat/zeroconf"
)

// ntpTimeout bounds the time-sync query.
const ntpTimeout = 5 * time.Second

// TimeSync queries an NTP server once per association and records the
// local clock offset. The agent does not step the system clock.
type TimeSync struct {
	server string
	query  func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// NewTimeSync creates a time-sync step for server.
func NewTimeSync(server string) *TimeSync {
	return &TimeSync{server: server, query: ntp.QueryWithOptions}
}

// Run performs one query. It matches the Hook signature.
func (t *TimeSync) Run(_ context.Context) error {
	resp, err := t.query(t.server, ntp.QueryOptions{Timeout: ntpTimeout})
	if err != nil {
		return fmt.Errorf("querying %s: %w", t.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("validating response from %s: %w", t.server, err)
	}

	t.mu.Lock()
	t.offset = resp.ClockOffset
	t.synced = true
	t.mu.Unlock()
	return nil
}

// Offset returns the last measured clock offset and whether a sync happened.
func (t *TimeSync) Offset() (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.offset, t.synced
}

// mDNS service parameters.
const (
	mdnsService = "_automata._tcp"
	mdnsDomain  = "local."
)

// Advertiser announces the device on the local network via mDNS.
// Each Run replaces the previous announcement so the TXT record carries
// the current device id and address.
type Advertiser struct {
	instance string
	port     int
	txt      func() []string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser for instance on port. txt is called on
// every Run to build the TXT record.
func NewAdvertiser(instance string, port int, txt func() []string) *Advertiser {
	return &Advertiser{instance: instance, port: port, txt: txt}
}

// Run (re-)registers the mDNS service. It matches the Hook signature.
func (a *Advertiser) Run(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(a.instance, mdnsService, mdnsDomain, a.port, a.txt(), nil)
	if err != nil {
		return fmt.Errorf("registering mdns service: %w", err)
	}
	a.server = server
	return nil
}

// Shutdown withdraws the announcement.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// TXTRecord formats the device TXT entries.
func TXTRecord(deviceID, ip string) []string {
	return []string{"deviceId=" + deviceID, "ip=" + ip}
}
