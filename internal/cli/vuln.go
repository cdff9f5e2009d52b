package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/config"
	"github.com/matzehuels/chainsat/pkg/vuln"
)

// vulnCommand groups advisory management commands.
func (c *CLI) vulnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vuln",
		Short: "Manage vulnerability advisories",
	}
	cmd.AddCommand(c.vulnImportCommand())
	return cmd
}

func (c *CLI) vulnImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <nvd.json>...",
		Short: "Import NVD CVE 2.0 JSON feeds into the advisory store",
		Long: `Import NVD CVE 2.0 JSON feeds. Advisories are keyed by CVE id, so
re-importing a feed updates scores and ranges in place.

Advisories persist only with the mongo document backend; otherwise they
live for the duration of the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if a.Config.Docs.Backend != config.BackendMongo {
				printWarning("docs backend is %s; imported advisories are not persisted", a.Config.Docs.Backend)
			}
			total := 0
			for _, path := range args {
				n, err := importFeed(cmd.Context(), a.Advisories, path)
				if err != nil {
					return err
				}
				printDetail("%s: %d advisories", path, n)
				total += n
			}
			printSuccess("Imported %d advisories", total)
			return nil
		},
	}
}

func importFeed(ctx context.Context, store vuln.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	advisories, err := vuln.ParseNVD(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return store.Upsert(ctx, advisories)
}
