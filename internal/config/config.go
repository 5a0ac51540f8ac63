package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vjranagit/rangeql/pkg/storage"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	ListenAddr string        `mapstructure:"listen_addr"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	Path             string        `mapstructure:"path"`
	RetentionDays    int           `mapstructure:"retention_days"`
	CompressionLevel int           `mapstructure:"compression_level"`
	MaxOpenFiles     int           `mapstructure:"max_open_files"`
	EnableWAL        bool          `mapstructure:"enable_wal"`
	EnableCache      bool          `mapstructure:"enable_cache"`
	CacheCapacity    int           `mapstructure:"cache_capacity"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// EngineConfig holds the query engine's tunables: timeouts,
// grouping/reduction bounds, the dataset-to-shard routing table, and a
// free-form feature-flag set consulted via Has.
type EngineConfig struct {
	AskTimeout                     time.Duration     `mapstructure:"ask_timeout"`
	StaleSampleAfter               time.Duration     `mapstructure:"stale_sample_after"`
	MinStep                        time.Duration     `mapstructure:"min_step"`
	FastReduceMaxWindows           int               `mapstructure:"fastreduce_max_windows"`
	Routing                        map[string]string `mapstructure:"routing"`
	Parser                         string            `mapstructure:"parser"`
	TranslatePromToFiloDBHistogram bool              `mapstructure:"translate_prom_to_filodb_histogram"`
	FeatureFlags                   map[string]bool   `mapstructure:"feature_flags"`
}

// Has reports whether a feature flag is set, defaulting to false for
// any name not present in the map.
func (e EngineConfig) Has(name string) bool {
	return e.FeatureFlags[name]
}

// RegisterFlags declares the config's CLI flags on flags. Call this
// once, before the owning command's Execute parses argv; registering
// the same flag set twice panics with "flag redefined".
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("listen-addr", ":9090", "HTTP listen address")
	flags.Duration("server-timeout", 30*time.Second, "loaded into Server.Timeout; the API server does not read it and uses fixed 30s read/write timeouts")
	flags.String("storage-path", "./data", "on-disk storage directory")
	flags.Int("retention-days", 30, "sample retention in days")
	flags.Int("compression-level", 3, "zstd compression level (1-4)")
	flags.Int("max-open-files", 1000, "maximum open storage files")
	flags.Bool("enable-wal", true, "enable the write-ahead log")
	flags.Bool("enable-cache", true, "enable the read-through query cache")
	flags.Int("cache-capacity", 10000, "maximum number of cached query results")
	flags.Duration("cache-ttl", 5*time.Minute, "cached query result lifetime")
	flags.Duration("ask-timeout", 30*time.Second, "per-query timeout")
	flags.Duration("stale-sample-after", 5*time.Minute, "how long a sample remains valid for carry-forward")
	flags.Duration("min-step", time.Second, "minimum allowed step between output timestamps")
	flags.Int("fastreduce-max-windows", 64, "fast-reduce window bound; serve passes it to the query scheduler as its parallelism")
	flags.String("parser", "promql", "query parser identifier")
	flags.Bool("translate-prom-to-filodb-histogram", false, "translate Prometheus histograms to FiloDB bucket layout")
}

// BindFlags binds an already-registered flag set (see RegisterFlags)
// to a fresh viper instance, with environment-variable overrides under
// the RANGEQL_ prefix. Safe to call on every invocation of the owning
// command, since it only reads flags, never declares new ones.
func BindFlags(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("RANGEQL")
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
	return v
}

// FromViper materializes a Config from a bound viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: v.GetString("listen-addr"),
			Timeout:    v.GetDuration("server-timeout"),
		},
		Storage: StorageConfig{
			Path:             v.GetString("storage-path"),
			RetentionDays:    v.GetInt("retention-days"),
			CompressionLevel: v.GetInt("compression-level"),
			MaxOpenFiles:     v.GetInt("max-open-files"),
			EnableWAL:        v.GetBool("enable-wal"),
			EnableCache:      v.GetBool("enable-cache"),
			CacheCapacity:    v.GetInt("cache-capacity"),
			CacheTTL:         v.GetDuration("cache-ttl"),
		},
		Engine: EngineConfig{
			AskTimeout:                     v.GetDuration("ask-timeout"),
			StaleSampleAfter:               v.GetDuration("stale-sample-after"),
			MinStep:                        v.GetDuration("min-step"),
			FastReduceMaxWindows:           v.GetInt("fastreduce-max-windows"),
			Routing:                        v.GetStringMapString("routing"),
			Parser:                         v.GetString("parser"),
			TranslatePromToFiloDBHistogram: v.GetBool("translate-prom-to-filodb-histogram"),
			FeatureFlags:                   castStringBoolMap(v.Get("feature-flags")),
		},
	}
}

func castStringBoolMap(raw interface{}) map[string]bool {
	flags := map[string]bool{}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return flags
	}
	for k, v := range m {
		if b, ok := v.(bool); ok {
			flags[k] = b
		}
	}
	return flags
}

// DefaultConfig returns default configuration, used by tests and by any
// caller that doesn't go through the CLI flag set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			Timeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Path:             "./data",
			RetentionDays:    30,
			CompressionLevel: 3,
			MaxOpenFiles:     1000,
			EnableWAL:        true,
			EnableCache:      true,
			CacheCapacity:    10000,
			CacheTTL:         5 * time.Minute,
		},
		Engine: EngineConfig{
			AskTimeout:           30 * time.Second,
			StaleSampleAfter:     5 * time.Minute,
			MinStep:              time.Second,
			FastReduceMaxWindows: 64,
			Parser:               "promql",
			FeatureFlags:         map[string]bool{},
		},
	}
}

// ToStorageConfig converts to storage.Config.
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		RetentionDays:    c.Storage.RetentionDays,
		CompressionLevel: c.Storage.CompressionLevel,
		MaxOpenFiles:     c.Storage.MaxOpenFiles,
		EnableWAL:        c.Storage.EnableWAL,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Engine.MinStep <= 0 {
		return fmt.Errorf("engine min step must be positive")
	}

	if c.Engine.FastReduceMaxWindows < 1 {
		return fmt.Errorf("fastreduce max windows must be at least 1")
	}

	return nil
}
