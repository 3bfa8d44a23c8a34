// Package config loads chainloom settings from a YAML file and
// CHAINLOOM_* environment variables via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joshharrison/chainloom/internal/buffer"
	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/logging"
	"github.com/joshharrison/chainloom/internal/snapshot"
	"github.com/joshharrison/chainloom/internal/storage"
)

// EnvPrefix prefixes environment overrides, e.g. CHAINLOOM_ZONES_GREEN_MAX.
const EnvPrefix = "CHAINLOOM"

// Config is the full chainloom configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Zones    ZonesConfig    `mapstructure:"zones"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// StorageConfig controls the buffer database.
type StorageConfig struct {
	Path              string `mapstructure:"path"`
	InMemory          bool   `mapstructure:"in_memory"`
	SyncWrites        bool   `mapstructure:"sync_writes"`
	GCIntervalMinutes int    `mapstructure:"gc_interval_minutes"`
}

// AnalysisConfig holds the buffer sizing and leveling policy.
type AnalysisConfig struct {
	SizingMethod          string  `mapstructure:"sizing_method"`
	DurationFraction      float64 `mapstructure:"duration_fraction"`
	MaxLevelingIterations int     `mapstructure:"max_leveling_iterations"`
}

// ZonesConfig holds the consumption ratio thresholds.
type ZonesConfig struct {
	GreenMax  float64 `mapstructure:"green_max"`
	YellowMax float64 `mapstructure:"yellow_max"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	Quiet bool   `mapstructure:"quiet"`
}

// SnapshotConfig locates the working snapshot file.
type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

// Default returns the stock configuration.
func Default() *Config {
	policy := chain.DefaultPolicy()
	zones := buffer.DefaultZonePolicy()
	return &Config{
		Storage: StorageConfig{
			Path:              filepath.Join(".chainloom", "buffers"),
			SyncWrites:        true,
			GCIntervalMinutes: 5,
		},
		Analysis: AnalysisConfig{
			SizingMethod:          string(policy.Method),
			DurationFraction:      policy.DurationFraction,
			MaxLevelingIterations: policy.MaxLevelingIterations,
		},
		Zones: ZonesConfig{
			GreenMax:  zones.GreenMax,
			YellowMax: zones.YellowMax,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Snapshot: SnapshotConfig{
			Path: snapshot.DefaultPath,
		},
	}
}

// SetDefaults registers every default on v so that env overrides work
// for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.in_memory", d.Storage.InMemory)
	v.SetDefault("storage.sync_writes", d.Storage.SyncWrites)
	v.SetDefault("storage.gc_interval_minutes", d.Storage.GCIntervalMinutes)

	v.SetDefault("analysis.sizing_method", d.Analysis.SizingMethod)
	v.SetDefault("analysis.duration_fraction", d.Analysis.DurationFraction)
	v.SetDefault("analysis.max_leveling_iterations", d.Analysis.MaxLevelingIterations)

	v.SetDefault("zones.green_max", d.Zones.GreenMax)
	v.SetDefault("zones.yellow_max", d.Zones.YellowMax)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
	v.SetDefault("logging.quiet", d.Logging.Quiet)

	v.SetDefault("snapshot.path", d.Snapshot.Path)
}

// NewViper returns a viper instance with defaults, env binding and, when
// configFile is non-empty, that file loaded. Without an explicit file it
// looks for chainloom.yaml in the working directory and ConfigDir; a
// missing file there is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("chainloom")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(ConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the user's chainloom config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chainloom")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainloom"
	}
	return filepath.Join(home, ".config", "chainloom")
}

// Policy converts the analysis section to a chain.Policy.
func (c *Config) Policy() chain.Policy {
	return chain.Policy{
		Method:                chain.SizingMethod(c.Analysis.SizingMethod),
		DurationFraction:      c.Analysis.DurationFraction,
		MaxLevelingIterations: c.Analysis.MaxLevelingIterations,
	}
}

// ZonePolicy converts the zones section to a buffer.ZonePolicy.
func (c *Config) ZonePolicy() buffer.ZonePolicy {
	return buffer.ZonePolicy{GreenMax: c.Zones.GreenMax, YellowMax: c.Zones.YellowMax}
}

// StorageConfig converts the storage section to a storage.Config.
func (c *Config) StorageConfig() storage.Config {
	if c.Storage.InMemory {
		return storage.InMemoryConfig()
	}
	sc := storage.DefaultConfig(c.Storage.Path)
	sc.SyncWrites = c.Storage.SyncWrites
	sc.GCInterval = time.Duration(c.Storage.GCIntervalMinutes) * time.Minute
	return sc
}

// LoggingConfig converts the logging section to a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		Service: "chainloom",
		JSON:    c.Logging.JSON,
		Quiet:   c.Logging.Quiet,
	}
}
