package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapshard/internal/state"
	"github.com/leapstack-labs/leapshard/pkg/migrate"
	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// NewLockCommand creates the lock command group.
func NewLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect migration advisory locks",
	}
	cmd.AddCommand(newLockStatusCommand(), newLockIDCommand())
	return cmd
}

// newLockStatusCommand reads held lock ids from the metadata store. It
// needs no live connection to any shard.
func newLockStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration locks currently recorded as held",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := envFrom(cmd.Context())

			path := env.Config.StatePath
			if dir := filepath.Dir(path); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create state directory: %w", err)
				}
			}

			store := state.NewStore()
			if err := store.Open(path); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(); err != nil {
				return err
			}

			locks, err := store.HeldLocks()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(locks) == 0 {
				fmt.Fprintln(out, "No migration locks held")
				return nil
			}
			for _, l := range locks {
				fmt.Fprintf(out, "  %-20s lock_id=%-20d holder=%s acquired=%s\n",
					l.ShardName, l.LockID, l.Holder, l.AcquiredAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

// newLockIDCommand prints the derived advisory-lock id for a shard name.
func newLockIDCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "id <shard-name>",
		Short: "Print the advisory-lock id derived from a shard name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), migrate.LockID(&shard.Shard{Name: args[0]}))
			return nil
		},
	}
}
