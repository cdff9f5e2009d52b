// Package config loads chainsat settings from a TOML file and the
// environment. Environment variables win over the file; anything left
// unset falls back to [Default].
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendNeo4j  = "neo4j"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"

	SolverZ3   = "z3"
	SolverEnum = "enum"
)

// Duration is a time.Duration read from "3s"-style strings or integer
// milliseconds.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

type Graph struct {
	Backend   string   `toml:"backend"`
	URI       string   `toml:"uri"`
	User      string   `toml:"user"`
	Password  string   `toml:"password"`
	Database  string   `toml:"database"`
	TxTimeout Duration `toml:"tx_timeout"`
}

type Docs struct {
	Backend  string `toml:"backend"`
	URI      string `toml:"uri"`
	Database string `toml:"database"`
	Path     string `toml:"path"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type Queue struct {
	Backend string `toml:"backend"`
	Stream  string `toml:"stream"`
	Group   string `toml:"group"`
}

type SMT struct {
	Solver  string   `toml:"solver"`
	Z3Path  string   `toml:"z3_path"`
	Timeout Duration `toml:"timeout"`
}

type Registry struct {
	GitHubToken string   `toml:"github_token"`
	PythonFloor string   `toml:"python_floor"`
	CacheDir    string   `toml:"cache_dir"`
	CacheTTL    Duration `toml:"cache_ttl"`
}

type HTTP struct {
	Addr string `toml:"addr"`
}

// Config is the full process configuration.
type Config struct {
	Graph    Graph    `toml:"graph"`
	Docs     Docs     `toml:"docs"`
	Redis    Redis    `toml:"redis"`
	Queue    Queue    `toml:"queue"`
	SMT      SMT      `toml:"smt"`
	Registry Registry `toml:"registry"`
	HTTP     HTTP     `toml:"http"`
}

// Default returns a configuration that runs entirely in process.
func Default() Config {
	return Config{
		Graph: Graph{
			Backend:   BackendMemory,
			URI:       "neo4j://localhost:7687",
			User:      "neo4j",
			TxTimeout: Duration{3 * time.Second},
		},
		Docs: Docs{
			Backend:  BackendMemory,
			URI:      "mongodb://localhost:27017",
			Database: "chainsat",
			Path:     "chainsat.db",
		},
		Redis: Redis{Addr: "localhost:6379"},
		Queue: Queue{
			Backend: BackendMemory,
			Stream:  "package_extraction",
			Group:   "extractors",
		},
		SMT: SMT{
			Solver:  SolverZ3,
			Z3Path:  "z3",
			Timeout: Duration{3000 * time.Millisecond},
		},
		Registry: Registry{
			PythonFloor: "3.9",
			CacheTTL:    Duration{24 * time.Hour},
		},
		HTTP: HTTP{Addr: ":8000"},
	}
}

// Parse decodes TOML from r over the defaults.
func Parse(r io.Reader) (Config, error) {
	c := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return c, fmt.Errorf("could not read config file: %w", err)
	}
	if _, err := toml.Decode(string(data), &c); err != nil {
		return c, fmt.Errorf("could not decode toml: %w", err)
	}
	return c, nil
}

// Load reads path (when non-empty), applies environment overrides and
// validates the result.
func Load(path string, getenv func(string) string) (Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return c, fmt.Errorf("could not open config file: %w", err)
		}
		defer f.Close()
		if c, err = Parse(f); err != nil {
			return c, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := c.applyEnv(getenv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"CHAINSAT_GRAPH_BACKEND":  &c.Graph.Backend,
		"CHAINSAT_GRAPH_URI":      &c.Graph.URI,
		"CHAINSAT_GRAPH_USER":     &c.Graph.User,
		"CHAINSAT_GRAPH_PASSWORD": &c.Graph.Password,
		"CHAINSAT_DOCS_BACKEND":   &c.Docs.Backend,
		"CHAINSAT_DOCS_URI":       &c.Docs.URI,
		"CHAINSAT_DOCS_DATABASE":  &c.Docs.Database,
		"CHAINSAT_DOCS_PATH":      &c.Docs.Path,
		"CHAINSAT_REDIS_ADDR":     &c.Redis.Addr,
		"CHAINSAT_REDIS_PASSWORD": &c.Redis.Password,
		"CHAINSAT_QUEUE_BACKEND":  &c.Queue.Backend,
		"CHAINSAT_QUEUE_STREAM":   &c.Queue.Stream,
		"CHAINSAT_QUEUE_GROUP":    &c.Queue.Group,
		"CHAINSAT_SMT_SOLVER":     &c.SMT.Solver,
		"CHAINSAT_Z3_PATH":        &c.SMT.Z3Path,
		"CHAINSAT_GITHUB_TOKEN":   &c.Registry.GitHubToken,
		"CHAINSAT_PYTHON_FLOOR":   &c.Registry.PythonFloor,
		"CHAINSAT_CACHE_DIR":      &c.Registry.CacheDir,
		"CHAINSAT_HTTP_ADDR":      &c.HTTP.Addr,
	}
	for name, dst := range strs {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"CHAINSAT_GRAPH_TX_TIMEOUT": &c.Graph.TxTimeout,
		"CHAINSAT_SMT_TIMEOUT":      &c.SMT.Timeout,
		"CHAINSAT_CACHE_TTL":        &c.Registry.CacheTTL,
	}
	for name, dst := range durations {
		v := getenv(name)
		if v == "" {
			continue
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if v := getenv("CHAINSAT_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHAINSAT_REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	return nil
}

// Validate checks backend names and timeouts.
func (c *Config) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"graph.backend", c.Graph.Backend, []string{BackendMemory, BackendNeo4j}},
		{"docs.backend", c.Docs.Backend, []string{BackendMemory, BackendMongo, BackendSQLite}},
		{"queue.backend", c.Queue.Backend, []string{BackendMemory, BackendRedis}},
		{"smt.solver", c.SMT.Solver, []string{SolverZ3, SolverEnum}},
	}
	for _, ch := range checks {
		ok := false
		for _, a := range ch.allowed {
			if ch.value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%s: unsupported value %q (want one of %s)", ch.field, ch.value, strings.Join(ch.allowed, ", "))
		}
	}
	if c.SMT.Timeout.Duration <= 0 {
		return fmt.Errorf("smt.timeout must be positive")
	}
	if c.Graph.TxTimeout.Duration <= 0 {
		return fmt.Errorf("graph.tx_timeout must be positive")
	}
	if c.Queue.Stream == "" || c.Queue.Group == "" {
		return fmt.Errorf("queue.stream and queue.group are required")
	}
	return nil
}
