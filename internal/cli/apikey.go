package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/config"
	"github.com/matzehuels/chainsat/pkg/docstore"
)

// apikeyCommand groups API key management.
func (c *CLI) apikeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP API",
	}
	cmd.AddCommand(c.apikeyCreateCommand())
	return cmd
}

func (c *CLI) apikeyCreateCommand() *cobra.Command {
	var (
		user  string
		email string
		name  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a user (if needed) and issue an API key",
		Example: `  chainsat apikey create --user alice --name laptop --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if a.Config.Docs.Backend == config.BackendMemory {
				printWarning("docs backend is memory; the key is lost when this command exits")
			}
			now := time.Now()
			if err := a.Docs.CreateUser(ctx, docstore.User{ID: user, Email: email, CreatedAt: now.UTC()}); err != nil {
				return err
			}
			secret, key, err := docstore.NewAPIKey(user, name, ttl, now)
			if err != nil {
				return err
			}
			if err := a.Docs.CreateAPIKey(ctx, key); err != nil {
				return err
			}

			printSuccess("Created key %s for %s", StyleHighlight.Render(key.ID), user)
			if !key.ExpiresAt.IsZero() {
				printDetail("Expires %s", key.ExpiresAt.Format(time.RFC3339))
			}
			printWarning("Store this secret now; it is not shown again")
			printKeyValue("X-API-Key", secret)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().DurationVar(&ttl, "ttl", docstore.DefaultKeyTTL, "key lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
