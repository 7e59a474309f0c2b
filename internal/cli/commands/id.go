package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// NewIDCommand creates the id command, which translates keys between
// their global and shard-local forms using the configured id width.
func NewIDCommand() *cobra.Command {
	var shardName string
	cmd := &cobra.Command{
		Use:   "id <value>",
		Short: "Translate a key between its global and shard-local forms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFrom(cmd.Context())

			value, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse id %q: %w", args[0], err)
			}

			reg, err := env.Config.BuildRegistry()
			if err != nil {
				return err
			}
			tr := shard.NewTranslator(reg, env.Config.IDWidth)

			out := cmd.OutOrStdout()
			if tr.IsGlobal(value) {
				home, local, err := tr.LocalID(value)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "global=%d shard=%s local=%d\n", value, home.Name, local)
				return nil
			}

			if shardName == "" {
				return fmt.Errorf("%d is a local id; pass --shard to encode it", value)
			}
			var home *shard.Shard
			for _, s := range reg.All() {
				if s.Name == shardName {
					home = s
					break
				}
			}
			if home == nil {
				return fmt.Errorf("no shard named %q in the topology", shardName)
			}
			global, err := tr.GlobalID(value, home.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "local=%d shard=%s global=%d\n", value, home.Name, global)
			return nil
		},
	}
	cmd.Flags().StringVar(&shardName, "shard", "", "home shard name for encoding a local id")
	return cmd
}
