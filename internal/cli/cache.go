package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/cache"
	"github.com/matzehuels/chainsat/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage registry response and operation caches",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var httpOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached registry responses, SMT formulas and operation results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if cl, ok := a.Cache.(cache.Clearer); ok {
				n, err := cl.Clear(ctx)
				if err != nil {
					return fmt.Errorf("clear registry cache: %w", err)
				}
				printSuccess("Cleared %d registry responses", n)
			}
			if httpOnly {
				return nil
			}
			n, err := a.Ops.ClearCaches(ctx)
			if err != nil {
				return fmt.Errorf("clear operation caches: %w", err)
			}
			printSuccess("Cleared %d formulas and operation results", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&httpOnly, "http-only", false, "only clear registry responses")
	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the registry cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Queue.Backend == config.BackendRedis {
				printInfo("Registry responses are cached in Redis at %s", cfg.Redis.Addr)
				return nil
			}
			dir, err := httpCacheDir(cfg)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(dir)
			return nil
		},
	}
}
