package network

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/automata-agent/internal/process"
)

// Static is an associator for hosts whose link is managed elsewhere.
// It always reports an associated link.
type Static struct{}

func (Static) Associate(context.Context, Credential) error { return nil }
func (Static) Connected(context.Context) bool              { return true }

// CommandRunner runs an external command. Satisfied by *process.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv ...string) (process.Result, error)
}

// nmcliStatusInterval bounds how often Connected shells out.
const nmcliStatusInterval = time.Second

// Nmcli joins wireless networks through NetworkManager's command line tool.
type Nmcli struct {
	runner    CommandRunner
	iface     string
	binary    string
	now       func() time.Time
	mu        sync.Mutex
	lastCheck time.Time
	lastState bool
}

// NewNmcli creates an associator bound to a wireless interface.
func NewNmcli(runner CommandRunner, iface string) *Nmcli {
	return &Nmcli{runner: runner, iface: iface, binary: "nmcli", now: time.Now}
}

// Associate runs "nmcli device wifi connect".
func (n *Nmcli) Associate(ctx context.Context, cred Credential) error {
	argv := []string{n.binary, "device", "wifi", "connect", cred.SSID}
	if cred.Password != "" {
		argv = append(argv, "password", cred.Password)
	}
	argv = append(argv, "ifname", n.iface)

	res, err := n.runner.Run(ctx, argv...)
	n.mu.Lock()
	n.lastCheck = time.Time{}
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAssociationFailed, strings.TrimSpace(res.Stderr), err)
	}
	return nil
}

// Connected reports whether NetworkManager considers the interface connected.
// The answer is cached for nmcliStatusInterval.
func (n *Nmcli) Connected(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if !n.lastCheck.IsZero() && now.Sub(n.lastCheck) < nmcliStatusInterval {
		return n.lastState
	}

	res, err := n.runner.Run(ctx, n.binary, "-t", "-f", "GENERAL.STATE", "device", "show", n.iface)
	n.lastCheck = now
	n.lastState = err == nil && parseDeviceState(res.Stdout)
	return n.lastState
}

// parseDeviceState reads "GENERAL.STATE:100 (connected)" style output.
func parseDeviceState(out string) bool {
	for _, line := range strings.Split(out, "\n") {
		value, found := strings.CutPrefix(strings.TrimSpace(line), "GENERAL.STATE:")
		if !found {
			continue
		}
		return strings.HasPrefix(value, "100")
	}
	return false
}
