package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nerrad567/automata-agent/internal/infrastructure/config"
)

// Default file locations.
const (
	defaultConfigPath = "configs/automata.yaml"
	defaultEnvFile    = ".env"
)

// cliState is shared by all subcommands of one invocation.
type cliState struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:           "automata",
		Short:         "Automata device agent",
		Long:          "Automata connects a device to its backend: network association, registration, messaging and command handling.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return state.load()
		},
	}

	root.PersistentFlags().StringVar(&state.configPath, "config", "", "config file (default $AUTOMATA_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&state.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config")

	root.AddCommand(
		newRunCmd(state),
		newVersionCmd(),
		newIdentityCmd(state),
		newTokenCmd(state),
	)
	return root
}

// load reads the dotenv file, then the configuration. Variables already in
// the environment win over the dotenv file.
func (s *cliState) load() error {
	if s.envFile != "" {
		if err := godotenv.Load(s.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", s.envFile, err)
		}
	}

	path := s.configPath
	if path == "" {
		path = os.Getenv("AUTOMATA_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	s.cfg = cfg
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "automata %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
