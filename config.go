package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MoverConfig holds the full migration configuration, read from TOML or YAML.
type MoverConfig struct {
	Project         string                       `toml:"project" yaml:"project"`
	Engine          string                       `toml:"engine" yaml:"engine"` // mysql|postgres
	Dependencies    []string                     `toml:"dependencies" yaml:"dependencies"`
	IgnoreTables    []string                     `toml:"ignore_tables" yaml:"ignore_tables"`
	DumpDir         string                       `toml:"dump_dir" yaml:"dump_dir"`
	DryRun          bool                         `toml:"dry_run" yaml:"dry_run"`
	Debug           int                          `toml:"debug" yaml:"debug"`
	RewriteMode     string                       `toml:"rewrite_mode" yaml:"rewrite_mode"` // token|substring
	StrictViews     bool                         `toml:"strict_views" yaml:"strict_views"`
	CreateDatabases bool                         `toml:"create_databases" yaml:"create_databases"`
	Journal         string                       `toml:"journal" yaml:"journal"`
	Tools           ToolsConfig                  `toml:"tools" yaml:"tools"`
	Guard           GuardConfig                  `toml:"guard" yaml:"guard"`
	Hooks           HooksConfig                  `toml:"hooks" yaml:"hooks"`
	Environments    map[string]EnvironmentConfig `toml:"environments" yaml:"environments"`

	// configDir is the directory containing the config file, used to resolve relative paths.
	configDir string
}

// ToolsConfig names the external binaries used to dump and restore.
type ToolsConfig struct {
	Dump        string   `toml:"dump" yaml:"dump"`
	Client      string   `toml:"client" yaml:"client"`
	Admin       string   `toml:"admin" yaml:"admin"`
	DumpOptions []string `toml:"dump_options" yaml:"dump_options"`
}

// GuardConfig controls the sanity checks run before destructive steps.
type GuardConfig struct {
	SafeMarkers       []string `toml:"safe_markers" yaml:"safe_markers"`
	ProductionMarkers []string `toml:"production_markers" yaml:"production_markers"`
	Pause             string   `toml:"pause" yaml:"pause"`

	pause time.Duration
}

type HooksConfig struct {
	AfterLoad  []string `toml:"after_load" yaml:"after_load"`
	AfterViews []string `toml:"after_views" yaml:"after_views"`
}

// EnvironmentConfig describes where one environment's databases live.
type EnvironmentConfig struct {
	Host         string   `toml:"host" yaml:"host"`
	Port         int      `toml:"port" yaml:"port"`
	Username     string   `toml:"username" yaml:"username"`
	Password     string   `toml:"password" yaml:"password"`
	PasswordEnv  string   `toml:"password_env" yaml:"password_env"` // read the password from this variable
	Database     string   `toml:"database" yaml:"database"`         // default: <project>_<environment>
	Dependencies []string `toml:"dependencies" yaml:"dependencies"` // explicit names; default derived from top-level dependencies
}

func defaultMoverConfig() MoverConfig {
	return MoverConfig{
		Engine:      "mysql",
		DumpDir:     "dumps",
		RewriteMode: rewriteModeToken,
		Guard: GuardConfig{
			SafeMarkers:       []string{"development", "dev", "test"},
			ProductionMarkers: []string{"production", "prod"},
			Pause:             "10s",
		},
	}
}

// loadConfig reads a TOML or YAML config file (by extension) and returns a
// MoverConfig with defaults applied.
func loadConfig(path string) (*MoverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultMoverConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MoverConfig) validate() error {
	c.Project = strings.TrimSpace(c.Project)
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}

	if c.Engine == "" {
		c.Engine = "mysql"
	}
	engine, err := newEngine(c.Engine)
	if err != nil {
		return err
	}

	switch c.RewriteMode {
	case "":
		c.RewriteMode = rewriteModeToken
	case rewriteModeToken, rewriteModeSubstring:
	default:
		return fmt.Errorf("rewrite_mode must be one of: token, substring")
	}

	if c.Debug < 0 {
		return fmt.Errorf("debug must be >= 0")
	}

	if c.Guard.Pause == "" {
		c.Guard.pause = 0
	} else {
		d, err := time.ParseDuration(c.Guard.Pause)
		if err != nil {
			return fmt.Errorf("guard.pause: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("guard.pause must not be negative")
		}
		c.Guard.pause = d
	}
	if len(c.Guard.ProductionMarkers) == 0 {
		return fmt.Errorf("guard.production_markers must not be empty")
	}

	defaults := engine.DefaultTools()
	if c.Tools.Dump == "" {
		c.Tools.Dump = defaults.Dump
	}
	if c.Tools.Client == "" {
		c.Tools.Client = defaults.Client
	}
	if c.Tools.Admin == "" {
		c.Tools.Admin = defaults.Admin
	}

	if c.DumpDir == "" {
		c.DumpDir = "dumps"
	}
	c.DumpDir = c.resolvePath(c.DumpDir)
	if c.Journal != "" {
		c.Journal = c.resolvePath(c.Journal)
	}

	if len(c.Environments) == 0 {
		return fmt.Errorf("at least one [environments.<name>] section is required")
	}
	for _, name := range c.environmentNames() {
		env := c.Environments[name]
		if env.Host == "" {
			return fmt.Errorf("environments.%s.host is required", name)
		}
		if env.Username == "" {
			return fmt.Errorf("environments.%s.username is required", name)
		}
		if env.Port < 0 || env.Port > 65535 {
			return fmt.Errorf("environments.%s.port must be between 0 and 65535", name)
		}
		if env.Password != "" && env.PasswordEnv != "" {
			return fmt.Errorf("environments.%s: password and password_env are mutually exclusive", name)
		}
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *MoverConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

func (c *MoverConfig) environmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *MoverConfig) environment(name string) (EnvironmentConfig, error) {
	env, ok := c.Environments[name]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("unknown environment %q (configured: %s)", name, strings.Join(c.environmentNames(), ", "))
	}
	return env, nil
}

// endpoint returns the connection details of an environment.
func (c *MoverConfig) endpoint(name string) (Endpoint, error) {
	env, err := c.environment(name)
	if err != nil {
		return Endpoint{}, err
	}
	ep := Endpoint{
		Host:     env.Host,
		Port:     env.Port,
		Username: env.Username,
		Password: env.Password,
		Database: env.Database,
	}
	if env.PasswordEnv != "" {
		pw, ok := os.LookupEnv(env.PasswordEnv)
		if !ok {
			return Endpoint{}, fmt.Errorf("environments.%s.password_env: %s is not set", name, env.PasswordEnv)
		}
		ep.Password = pw
	}
	if ep.Database == "" {
		ep.Database = databaseName(c.Project, name)
	}
	return ep, nil
}

// databaseSet returns the primary database of an environment followed by its
// dependency databases.
func (c *MoverConfig) databaseSet(name string) (DatabaseSet, error) {
	env, err := c.environment(name)
	if err != nil {
		return DatabaseSet{}, err
	}
	primary := env.Database
	if primary == "" {
		primary = databaseName(c.Project, name)
	}
	set := DatabaseSet{Environment: name, Names: []string{primary}}
	if len(env.Dependencies) > 0 {
		set.Names = append(set.Names, env.Dependencies...)
		return set, nil
	}
	for _, base := range c.Dependencies {
		set.Names = append(set.Names, databaseName(expandProject(base, c.Project), name))
	}
	return set, nil
}

// ignoreTablesFor returns the configured ignore-table entries that apply to
// database. Entries are either "table" (every database) or "database.table".
func (c *MoverConfig) ignoreTablesFor(database string) []string {
	var out []string
	for _, entry := range c.IgnoreTables {
		db, table, qualified := strings.Cut(entry, ".")
		switch {
		case !qualified:
			out = append(out, entry)
		case db == database:
			out = append(out, table)
		}
	}
	return out
}
