package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/automata-agent/internal/dispatch"
)

func newTokenCmd(state *cliState) *cobra.Command {
	var (
		deviceID string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed reboot token for a device",
		Long: `Issue an HS256 token authorising a reboot directive for one device.
The token is signed with commands.reboot_secret (or AUTOMATA_REBOOT_SECRET)
and goes in the "token" field of the action payload.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := state.cfg.Commands.RebootSecret
			if secret == "" {
				return errors.New("commands.reboot_secret is not set")
			}
			if deviceID == "" {
				return errors.New("--device is required")
			}

			token, err := dispatch.GenerateRebootToken(deviceID, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "device id the token is valid for")
	cmd.Flags().DurationVar(&ttl, "ttl", 5*time.Minute, "token lifetime")
	return cmd
}
