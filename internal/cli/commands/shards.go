package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapshard/pkg/migrate"
)

// NewShardsCommand creates the shards command.
func NewShardsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shards",
		Short: "List the configured shard topology",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := envFrom(cmd.Context())

			reg, err := env.Config.BuildRegistry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Shards (%d total):\n\n", reg.Count())
			for _, s := range reg.All() {
				marker := " "
				if def := reg.Default(s.Category); def != nil && def.ID == s.ID {
					marker = "*"
				}
				fmt.Fprintf(out, " %s %3d  %-20s %-10s %s/%s  lock_id=%d\n",
					marker, s.ID, s.Name, s.Category,
					s.Descriptor.Host, s.Descriptor.Database, migrate.LockID(s))
			}
			if reg.Count() > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "* default shard for its category")
			}
			return nil
		},
	}
}
