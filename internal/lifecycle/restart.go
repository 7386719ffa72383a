package lifecycle

import (
	"context"
	"fmt"

	"github.com/nerrad567/automata-agent/internal/process"
)

// Restarter restarts the device.
type Restarter interface {
	Restart(ctx context.Context) error
}

// ExitRestarter makes the loop return ErrRestartRequested.
type ExitRestarter struct{}

// Restart implements Restarter.
func (ExitRestarter) Restart(context.Context) error {
	return ErrRestartRequested
}

// CommandRunner runs an external command.
type CommandRunner interface {
	Run(ctx context.Context, argv ...string) (process.Result, error)
}

// CommandRestarter restarts the device with a configured command, such as
// "systemctl restart automata-agent" or "reboot".
type CommandRestarter struct {
	runner CommandRunner
	argv   []string
}

// NewCommandRestarter creates a restarter running argv.
func NewCommandRestarter(runner CommandRunner, argv []string) *CommandRestarter {
	return &CommandRestarter{runner: runner, argv: argv}
}

// Restart implements Restarter.
func (r *CommandRestarter) Restart(ctx context.Context) error {
	res, err := r.runner.Run(ctx, r.argv...)
	if err != nil {
		return fmt.Errorf("running restart command: %w (stderr: %s)", err, res.Stderr)
	}
	return nil
}
