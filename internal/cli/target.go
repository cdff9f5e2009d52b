package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/integrations/github"
	"github.com/matzehuels/chainsat/pkg/version"
)

// cliUser owns repositories built from the command line.
const cliUser = "cli"

// targetFlags select the root of a graph read.
type targetFlags struct {
	repo      string
	file      string
	ecosystem string
	pkg       string
	version   string
	depth     int
}

func (t *targetFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&t.repo, "repo", "", "build owner/repo first and resolve --file by name within it")
	f.StringVar(&t.file, "file", "", "requirement file id (or name with --repo)")
	f.StringVarP(&t.ecosystem, "ecosystem", "e", "", "package ecosystem (pypi, npm, maven, nuget, cargo, rubygems)")
	f.StringVarP(&t.pkg, "package", "p", "", "package name")
	f.StringVar(&t.version, "version-name", "", "package version (requires --package)")
	f.IntVarP(&t.depth, "depth", "d", 3, "maximum dependency depth")
	_ = cmd.RegisterFlagCompletionFunc("ecosystem", completeEcosystems)
}

// root resolves the flags to a graph root, building the repository or
// package first when it is not in the store yet.
func (t *targetFlags) root(ctx context.Context, a *App) (graph.Root, error) {
	if t.depth < 0 {
		return graph.Root{}, fmt.Errorf("--depth must be >= 0")
	}
	if t.pkg != "" {
		eco, err := version.ParseEcosystem(t.ecosystem)
		if err != nil {
			return graph.Root{}, err
		}
		if err := ensurePackage(ctx, a, eco, t.pkg); err != nil {
			return graph.Root{}, err
		}
		if t.version != "" {
			return graph.VersionRoot(eco, t.pkg, t.version), nil
		}
		return graph.PackageRoot(eco, t.pkg), nil
	}
	if t.repo == "" {
		if t.file == "" {
			return graph.Root{}, fmt.Errorf("one of --repo, --file or --package is required")
		}
		return graph.FileRoot(t.file), nil
	}

	owner, name, err := github.ParseRepoArg(t.repo)
	if err != nil {
		return graph.Root{}, err
	}
	if err := ensureRepository(ctx, a, owner, name); err != nil {
		return graph.Root{}, err
	}
	files, err := a.Graph.RequirementFiles(ctx, owner, name)
	if err != nil {
		return graph.Root{}, err
	}
	if t.file == "" && len(files) > 1 && interactive() {
		return selectFile(files)
	}
	return pickFile(files, t.file)
}

// pickFile selects a file by id or name. With no selector the repository
// must have exactly one file.
func pickFile(files []graph.RequirementFile, sel string) (graph.Root, error) {
	if len(files) == 0 {
		return graph.Root{}, fmt.Errorf("repository has no requirement files")
	}
	if sel == "" {
		if len(files) == 1 {
			return graph.FileRoot(files[0].ID), nil
		}
		return graph.Root{}, fmt.Errorf("repository has %d requirement files, choose one with --file: %s", len(files), fileNames(files))
	}
	for _, f := range files {
		if f.ID == sel || f.Name == sel {
			return graph.FileRoot(f.ID), nil
		}
	}
	return graph.Root{}, fmt.Errorf("no requirement file %q (have %s)", sel, fileNames(files))
}

func fileNames(files []graph.RequirementFile) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

// ensureRepository builds owner/name unless a complete graph is stored.
func ensureRepository(ctx context.Context, a *App, owner, name string) error {
	repo, err := a.Graph.GetRepository(ctx, owner, name)
	if err == nil && repo.IsComplete {
		return nil
	}
	if err != nil && !errors.Is(err, graph.ErrNotFound) {
		return err
	}
	_, err = buildRepository(ctx, a, owner, name)
	return err
}

// ensurePackage resolves a package's graph in process unless it is stored.
func ensurePackage(ctx context.Context, a *App, eco version.Ecosystem, name string) error {
	_, err := a.Graph.GetPackage(ctx, graph.PackageKey{Ecosystem: eco, Name: name})
	if err == nil {
		return nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return err
	}
	return buildPackage(ctx, a, eco, name, false)
}
