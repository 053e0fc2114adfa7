package merkledb

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the options needed to open a database.
type Config struct {
	// Backend is one of memory, bolt, badger or leveldb.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	// NoSync lets the backend skip fsync on commit.
	NoSync bool `yaml:"no_sync"`

	JournalDir  string `yaml:"journal_dir"`
	JournalSync bool   `yaml:"journal_sync"`

	CacheSize              int  `yaml:"cache_size"`
	RejectConcurrentMerges bool `yaml:"reject_concurrent_merges"`

	Verbose  bool   `yaml:"verbose"`
	LogLevel string `yaml:"log_level"`
}

const (
	BackendMemory  = "memory"
	BackendBolt    = "bolt"
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
)

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseConfig(raw []byte) (*Config, error) {
	cfg := &Config{Backend: BackendBolt}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBolt, BackendBadger, BackendLevelDB:
		if c.Path == "" {
			return fmt.Errorf("%s backend requires a path", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid cache_size %d", c.CacheSize)
	}
	if c.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
	}
	return nil
}

// Logger returns a text logger to stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	lvl := slog.LevelInfo
	if c.LogLevel != "" {
		ensure(lvl.UnmarshalText([]byte(c.LogLevel)))
	} else if c.Verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Options merges the config into base. Fields the config does not cover,
// such as Schema and Registerer, are taken from base.
func (c *Config) Options(base Options) Options {
	opt := base
	if opt.Logger == nil {
		opt.Logger = c.Logger()
	}
	opt.Verbose = opt.Verbose || c.Verbose
	if c.CacheSize != 0 {
		opt.CacheSize = c.CacheSize
	}
	opt.RejectConcurrentMerges = opt.RejectConcurrentMerges || c.RejectConcurrentMerges
	if c.JournalDir != "" {
		opt.JournalDir = c.JournalDir
		opt.JournalSync = c.JournalSync
	}
	return opt
}

// OpenStorage opens the configured backend.
func (c *Config) OpenStorage(logger *slog.Logger) (Storage, error) {
	switch c.Backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendBolt:
		return OpenBoltStorage(c.Path, BoltOptions{NoSync: c.NoSync})
	case BackendBadger:
		return OpenBadgerStorage(BadgerOptions{Path: c.Path, SyncWrites: !c.NoSync, Logger: logger})
	case BackendLevelDB:
		return OpenLevelDBStorage(c.Path, !c.NoSync)
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// Open opens the configured storage and a database over it.
func (c *Config) Open(base Options) (*DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opt := c.Options(base)
	st, err := c.OpenStorage(opt.Logger)
	if err != nil {
		return nil, err
	}
	return Open(st, opt)
}
