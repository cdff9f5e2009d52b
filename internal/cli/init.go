package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/builder"
	"github.com/matzehuels/chainsat/pkg/integrations/github"
	"github.com/matzehuels/chainsat/pkg/version"
)

// initCommand creates the "init" command that builds graphs.
func (c *CLI) initCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Build the dependency graph of a repository or package",
	}
	cmd.AddCommand(c.initRepoCommand())
	cmd.AddCommand(c.initPackageCommand())
	return cmd
}

func (c *CLI) initRepoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repo <owner/repo>",
		Short: "Parse a GitHub repository's manifests and resolve every dependency",
		Example: `  chainsat init repo psf/requests
  chainsat init repo https://github.com/expressjs/express`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := github.ParseRepoArg(args[0])
			if err != nil {
				return err
			}
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			build, err := buildRepository(cmd.Context(), a, owner, name)
			if err != nil {
				return err
			}
			if build.UpToDate {
				printSuccess("%s/%s is up to date", owner, name)
			} else {
				printSuccess("Built %s/%s", owner, name)
			}
			for _, f := range build.Files {
				printDetail("%s (%s, %d requirements)", f.Name, f.Ecosystem, len(f.Packages))
			}
			printNextStep("Find the lowest-risk configuration", fmt.Sprintf("chainsat smt minimize_impact --repo %s/%s", owner, name))
			return nil
		},
	}
}

func (c *CLI) initPackageCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "package <ecosystem> <name>",
		Short:   "Resolve a package and its dependencies",
		Example: `  chainsat init package pypi requests --refresh`,
		Args:    cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, prefix string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return completeEcosystems(cmd, args, prefix)
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			eco, err := version.ParseEcosystem(args[0])
			if err != nil {
				return err
			}
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if err := buildPackage(cmd.Context(), a, eco, args[1], refresh); err != nil {
				return err
			}
			printSuccess("Resolved %s/%s", eco, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the package even if it is fresh")
	return cmd
}

// buildRepository builds owner/name with in-process workers draining the
// queue until completion.
func buildRepository(ctx context.Context, a *App, owner, name string) (*builder.Build, error) {
	lastCommit, err := commitDater{gh: a.GitHub}.LastCommit(ctx, owner, name)
	if err != nil {
		a.Logger.Debug("commit date lookup failed, using snapshot", "err", err)
		lastCommit = time.Time{}
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.runWorkers(workCtx, buildWorkers)

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Building %s/%s...", owner, name))
	spinner.Start()
	prog := newProgress(a.Logger)
	build, err := a.Builder.BuildRepository(ctx, owner, name, cliUser, lastCommit)
	spinner.Stop()
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Built %s/%s", owner, name))
	return build, nil
}

// buildPackage resolves one package and everything it pulls in.
func buildPackage(ctx context.Context, a *App, eco version.Ecosystem, name string, refresh bool) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.runWorkers(workCtx, buildWorkers)

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Resolving %s/%s...", eco, name))
	spinner.Start()
	defer spinner.Stop()

	prog := newProgress(a.Logger)
	enqueued, err := a.Builder.InitPackage(ctx, eco, name, refresh)
	if err != nil {
		return err
	}
	if enqueued {
		if err := a.Builder.Wait(ctx); err != nil {
			return err
		}
	}
	prog.done(fmt.Sprintf("Resolved %s/%s", eco, name))
	return nil
}
