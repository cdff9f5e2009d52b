package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/internal/api"
	"github.com/matzehuels/chainsat/pkg/config"
)

// serveCommand creates the "serve" command running the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the graph and operation endpoints.

With the in-memory queue, workers always run in process. With Redis they
default to none, leaving the queue to "chainsat worker" processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if addr == "" {
				addr = a.Config.HTTP.Addr
			}
			if !cmd.Flags().Changed("workers") && a.Config.Queue.Backend == config.BackendMemory {
				workers = buildWorkers
			}
			a.runWorkers(ctx, workers)

			srv := api.New(a.Builder, a.Ops, a.Graph, a.Docs,
				api.WithLogger(a.Logger),
				api.WithCommitDater(commitDater{gh: a.GitHub}),
				api.WithGatherer(a.Metrics),
				api.WithBackground(ctx),
			)
			printInfo("Listening on %s (%d workers)", StyleHighlight.Render(addr), workers)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "in-process queue workers")
	return cmd
}
