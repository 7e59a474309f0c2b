package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapshard/pkg/pool"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to every configured shard",
		Long: `Dial every shard in the configured topology and report health.

Each shard is dialed once through the connection pool; failures are
reported per shard with the underlying error, and the command exits
non-zero if any shard is unreachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := envFrom(cmd.Context())

			reg, err := env.Config.BuildRegistry()
			if err != nil {
				return err
			}

			p := pool.New(reg, nil, pool.Options{Logger: env.Logger})
			defer func() { _ = p.Close() }()

			out := cmd.OutOrStdout()
			unhealthy := 0
			for _, s := range reg.All() {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				_, err := p.Get(ctx, s, s.Category)
				cancel()

				if err != nil {
					unhealthy++
					fmt.Fprintf(out, "  FAIL %-20s %v\n", s.Name, err)
					continue
				}
				fmt.Fprintf(out, "  ok   %-20s %s/%s\n", s.Name, s.Descriptor.Host, s.Descriptor.Database)
			}

			st := p.Stats()
			fmt.Fprintf(out, "\n%d shards checked, %d unhealthy (%d dials)\n", reg.Count(), unhealthy, st.Dials)
			if unhealthy > 0 {
				return fmt.Errorf("%d of %d shards unreachable", unhealthy, reg.Count())
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-shard dial timeout")
	return cmd
}
