// Package cli implements the chainsat command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/buildinfo"
	"github.com/matzehuels/chainsat/pkg/config"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "chainsat"

	// envConfig names the config file when --config is not given.
	envConfig = "CHAINSAT_CONFIG"

	// buildWorkers is the number of in-process workers draining the queue
	// while a command builds a graph.
	buildWorkers = 4
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	getenv     func(string) string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		getenv: os.Getenv,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "chainsat builds dependency graphs and reasons over them with SMT",
		Long:         `chainsat resolves the dependency graphs of GitHub repositories and packages across PyPI, NPM, Maven, NuGet, Cargo and RubyGems, attributes known vulnerabilities to every version, and answers configuration questions (lowest-risk set of versions, completions, thresholds) with an SMT solver.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (TOML); defaults to $"+envConfig)

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.workerCommand())
	root.AddCommand(c.initCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.smtCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.vulnCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.apikeyCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig resolves the config file and environment into a validated
// configuration.
func (c *CLI) loadConfig() (config.Config, error) {
	path := c.configPath
	if path == "" {
		path = c.getenv(envConfig)
	}
	return config.Load(path, c.getenv)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/chainsat/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// httpCacheDir is the registry response cache directory, honouring
// registry.cache_dir.
func httpCacheDir(cfg config.Config) (string, error) {
	if cfg.Registry.CacheDir != "" {
		return cfg.Registry.CacheDir, nil
	}
	return cacheDir()
}
