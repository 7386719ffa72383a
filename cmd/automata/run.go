package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/automata-agent/internal/agent"
	"github.com/nerrad567/automata-agent/internal/dispatch"
	"github.com/nerrad567/automata-agent/internal/infrastructure/config"
	"github.com/nerrad567/automata-agent/internal/infrastructure/logging"
	"github.com/nerrad567/automata-agent/internal/registration"
)

func newRunCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted or restarted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), state.cfg)
		},
	}
}

// runAgent runs the agent with host metrics as its telemetry source.
func runAgent(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting automata agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	a, err := agent.New(ctx, cfg, agent.Options{Version: version, Logger: log})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Error("error closing agent", "error", closeErr)
		}
	}()

	for _, attr := range hostAttributes() {
		if err := a.AddAttribute(attr); err != nil {
			return fmt.Errorf("declaring attribute %s: %w", attr.Key, err)
		}
	}

	a.OnAction(func(act dispatch.Action) {
		log.Info("action received", "payload", string(act.Raw), "reboot", act.Reboot)
		if _, ok := act.Payload["live"]; ok {
			a.SendLive(hostTelemetry(ctx))
		}
	})
	a.OnPeriodicUpdate(func() {
		a.SendData(hostTelemetry(ctx))
	})

	return a.Run(ctx)
}

func hostAttributes() []registration.Attribute {
	return []registration.Attribute{
		{Key: "mem_used_percent", DisplayName: "Memory used", Unit: "%"},
		{Key: "load1", DisplayName: "Load (1m)"},
		{Key: "uptime", DisplayName: "Uptime", Unit: "s"},
	}
}
