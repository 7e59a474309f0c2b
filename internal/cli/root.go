// Package cli provides the command-line interface for leapshard.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapshard/internal/cli/commands"
	"github.com/leapstack-labs/leapshard/internal/cli/config"
)

// Version information (set at build time).
var (
	Version = "0.1.0"
)

var (
	cfgFile   string
	statePath string
	verbose   bool
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapshard",
		Short: "LeapShard - shard routing and cross-shard tooling",
		Long: `LeapShard routes records across horizontally partitioned databases.

It maintains the shard topology, translates primary keys between
shard-local and global forms, and coordinates schema-migration locks
across shards.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			cmd.SetContext(commands.WithEnv(cmd.Context(), cfg, logger))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default leapshard.yaml)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state-path", "", "Path to the lock metadata database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		commands.NewShardsCommand(),
		commands.NewIDCommand(),
		commands.NewDoctorCommand(),
		commands.NewLockCommand(),
		commands.NewVersionCommand(Version),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
