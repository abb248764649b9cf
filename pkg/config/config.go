package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dittosync/cvsync/pkg/collection"
)

// Config represents a cvsync server's static configuration.
//
// This structure captures everything needed to stand up a server: which
// collections it serves, how it logs, which digest algorithm it prefers,
// and the ACL and refuse-pattern sources that gate and filter connections.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CVSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ListenAddress is the address the server binds to.
	// Empty means "all interfaces".
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// ListenPort is the TCP port the server accepts connections on.
	ListenPort int `mapstructure:"listen_port" validate:"required,min=1,max=65535" yaml:"listen_port"`

	// MaxClients is the global concurrent-connection ceiling enforced by
	// pkg/acl's Evaluator, independent of any per-rule Max.
	MaxClients int `mapstructure:"max_clients" validate:"omitempty,min=1" yaml:"max_clients"`

	// Hash is the server's preferred digest algorithm name, offered
	// during negotiation (md5, sha1, rmd160).
	Hash string `mapstructure:"hash" validate:"required,oneof=md5 sha1 rmd160" yaml:"hash"`

	// Collections lists every collection this server serves.
	Collections []CollectionConfig `mapstructure:"collections" validate:"required,min=1,dive" yaml:"collections"`

	// ACLSource is the path to the ACL rule file consulted on every
	// accepted connection. Empty yields no rules, and the evaluator's
	// default deny then rejects every connection.
	ACLSource string `mapstructure:"acl_source" yaml:"acl_source,omitempty"`

	// RefuseSource is the path to the global refuse-pattern file applied
	// to every collection's directory walk. It is the only refuse list
	// the server applies.
	RefuseSource string `mapstructure:"refuse_source" yaml:"refuse_source,omitempty"`

	// HaltFile, if present on disk, tells the server to stop accepting
	// new connections while letting in-flight sessions finish.
	HaltFile string `mapstructure:"halt_file" yaml:"halt_file,omitempty"`

	// ShutdownTimeout bounds how long the server waits for in-flight
	// sessions to finish during a graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CollectionConfig is the on-disk representation of a collection.Collection,
// converted via BuildCollections.
type CollectionConfig struct {
	// Name is the collection's identifier, as offered by clients.
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Release selects the kind of tree the collection serves: "list" or
	// "rcs".
	Release string `mapstructure:"release" validate:"required,oneof=list rcs" yaml:"release"`

	// Prefix is the collection's filesystem path, or its sub-prefix
	// relative to Super when Super is set.
	Prefix string `mapstructure:"prefix" validate:"required" yaml:"prefix"`

	// RPrefix, if set, is the prefix reported to the client in place of
	// Prefix.
	RPrefix string `mapstructure:"rprefix" yaml:"rprefix,omitempty"`

	// Umask is the policy umask ANDed against every client-requested
	// umask for this collection.
	Umask uint16 `mapstructure:"umask" yaml:"umask,omitempty"`

	// ErrorMode controls how the compare side reacts to local filesystem
	// inconsistencies: "abort" or "fixup".
	ErrorMode string `mapstructure:"error_mode" validate:"omitempty,oneof=abort fixup" yaml:"error_mode,omitempty"`

	// SymFollow is carried onto collection.Collection. The directory walk
	// does not consult it: pkg/scanner's ListLocal reports each symlink as
	// a SYMLINK entry and never follows it.
	SymFollow bool `mapstructure:"symlink_follow" yaml:"symlink_follow,omitempty"`

	// DistPath, if set, overrides ScanPath for distribution responses.
	DistPath string `mapstructure:"dist_path" yaml:"dist_path,omitempty"`

	// ScanPath is the local filesystem root scanned for this collection.
	ScanPath string `mapstructure:"scan_path" validate:"required" yaml:"scan_path"`

	// Super, if set, names another entry in Collections this one
	// inherits Prefix/DistPath/ScanPath from.
	Super string `mapstructure:"super" yaml:"super,omitempty"`

	// Refuse lists refuse patterns for this collection. They are decoded
	// and saved with the configuration, but cvsyncd does not apply them;
	// the directory walk uses only the RefuseSource list.
	Refuse []string `mapstructure:"refuse" yaml:"refuse,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file
	// path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, the metrics HTTP endpoint is not served; the
// metrics themselves are still registered and updated.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CVSYNC_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return nil, fmt.Errorf("cvsync: no configuration file found at %q", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("cvsync: failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("cvsync: configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format, respecting yaml struct tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cvsync: failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cvsync: failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("cvsync: failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variable and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("cvsync: failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined mapstructure decode hook for
// custom types (currently just time.Duration).
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/cvsync,
// falling back to ~/.config/cvsync, or "." if the home directory cannot be
// determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cvsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "cvsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// BuildCollections converts every CollectionConfig entry into a
// collection.Collection, resolving Super references within the same list.
// Entries naming a Super are built after their parent.
func BuildCollections(entries []CollectionConfig) (map[string]*collection.Collection, error) {
	byName := make(map[string]*collection.Collection, len(entries))
	byConfig := make(map[string]CollectionConfig, len(entries))
	for _, e := range entries {
		if _, dup := byConfig[e.Name]; dup {
			return nil, fmt.Errorf("cvsync: duplicate collection name %q", e.Name)
		}
		byConfig[e.Name] = e
	}

	var build func(name string, seen map[string]bool) (*collection.Collection, error)
	build = func(name string, seen map[string]bool) (*collection.Collection, error) {
		if c, ok := byName[name]; ok {
			return c, nil
		}
		e, ok := byConfig[name]
		if !ok {
			return nil, fmt.Errorf("cvsync: collection %q references unknown super %q", name, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("cvsync: collection %q has a cyclic super chain", name)
		}
		seen[name] = true

		opts := []collection.Option{
			collection.WithUmask(e.Umask),
			collection.WithSymFollow(e.SymFollow),
			collection.WithDistPath(e.DistPath),
			collection.WithScanPath(e.ScanPath),
		}
		if e.RPrefix != "" {
			opts = append(opts, collection.WithRPrefix(e.RPrefix))
		}
		if e.ErrorMode != "" {
			opts = append(opts, collection.WithErrorMode(collection.ErrorMode(e.ErrorMode)))
		}
		if e.Super != "" {
			parent, err := build(e.Super, seen)
			if err != nil {
				return nil, err
			}
			opts = append(opts, collection.WithSuper(parent))
		}

		c, err := collection.New(e.Name, collection.Release(e.Release), e.Prefix, opts...)
		if err != nil {
			return nil, fmt.Errorf("cvsync: building collection %q: %w", e.Name, err)
		}
		byName[e.Name] = c
		return c, nil
	}

	for name := range byConfig {
		if _, err := build(name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return byName, nil
}
