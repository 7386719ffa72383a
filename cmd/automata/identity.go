package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/automata-agent/internal/infrastructure/config"
	"github.com/nerrad567/automata-agent/internal/infrastructure/database"
	"github.com/nerrad567/automata-agent/internal/network"
	"github.com/nerrad567/automata-agent/internal/store"
	"github.com/nerrad567/automata-agent/migrations"
)

func newIdentityCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect or reset the persisted device identity",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored device id and host identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), state.cfg, func(kv store.KV) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "device_id: %s\n", valueOrNone(cmd.Context(), kv, store.KeyDeviceID))

				mac := state.cfg.Device.MACAddress
				if host, err := network.DiscoverIdentity(state.cfg.Device.Interface); err == nil {
					if mac == "" {
						mac = host.MAC
					}
					fmt.Fprintf(out, "interface: %s\n", host.Interface)
					fmt.Fprintf(out, "ip: %s\n", host.IP)
				}
				fmt.Fprintf(out, "mac: %s\n", mac)

				_, err := kv.Get(cmd.Context(), store.KeyConfig)
				fmt.Fprintf(out, "config_cached: %t\n", err == nil)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the device id, cached configuration and network list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), state.cfg, func(kv store.KV) error {
				for _, key := range []string{store.KeyDeviceID, store.KeyConfig, store.KeyWiFiList} {
					if err := kv.Delete(cmd.Context(), key); err != nil {
						return fmt.Errorf("deleting %s: %w", key, err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "identity reset; the device registers afresh on next start")
				return nil
			})
		},
	})

	return cmd
}

// withStore opens the configured database for the duration of fn.
func withStore(ctx context.Context, cfg *config.Config, fn func(store.KV) error) error {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return fn(store.NewSQLiteStore(db.DB))
}

func valueOrNone(ctx context.Context, kv store.KV, key string) string {
	v, err := kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) || v == "" {
		return "(none)"
	}
	if err != nil {
		return "(error: " + err.Error() + ")"
	}
	return v
}
