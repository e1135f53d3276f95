package internal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/feature"
	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/locate"
	"github.com/goplus/coinbuild/internal/metadata"
	"github.com/goplus/coinbuild/internal/vcs"
)

// AcquireConfig selects how vendored sources are checked out.
type AcquireConfig struct {
	Backend string `mapstructure:"backend"`
}

// Config holds the options read from .coinbuild.yaml and COINBUILD_* env
// vars. The cargo-style build environment stays the primary input.
type Config struct {
	Library           string        `mapstructure:"library"`
	Features          []string      `mapstructure:"features"`
	Policy            string        `mapstructure:"policy"`
	DefineFormat      string        `mapstructure:"define_format"`
	DynamicHint       bool          `mapstructure:"dynamic_hint"`
	Acquire           AcquireConfig `mapstructure:"acquire"`
	ExcludedPlatforms []string      `mapstructure:"excluded_platforms"`
	MetadataDir       string        `mapstructure:"metadata_dir"`
	Jobs              int           `mapstructure:"jobs"`
	LogLevel          string        `mapstructure:"log_level"`
}

// Values of metadata_dir with a special meaning. Any other non-empty value
// is the store directory.
const (
	metadataOff  = "off"
	metadataUser = "user"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("library", "Osi")
	v.SetDefault("features", []string{})
	v.SetDefault("policy", feature.Independent.String())
	v.SetDefault("define_format", feature.DefaultDefineFormat)
	v.SetDefault("dynamic_hint", true)
	v.SetDefault("acquire.backend", vcs.BackendExec)
	v.SetDefault("excluded_platforms", locate.DefaultExcluded)
	v.SetDefault("metadata_dir", "")
	v.SetDefault("jobs", 1)
	v.SetDefault("log_level", "info")
}

// LoadConfig reads v, applying built-in defaults for any value not set by
// the config file, the environment or flags.
func LoadConfig(v *viper.Viper) (Config, error) {
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Jobs < 1 {
		return Config{}, fmt.Errorf("config: jobs must be at least 1, got %d", cfg.Jobs)
	}
	return cfg, nil
}

// FeatureOptions validates the policy and define format.
func (c Config) FeatureOptions() (feature.Options, error) {
	policy, err := feature.ParsePolicy(c.Policy)
	if err != nil {
		return feature.Options{}, err
	}
	if err := feature.CheckDefineFormat(c.DefineFormat); err != nil {
		return feature.Options{}, err
	}
	return feature.Options{Policy: policy, DefineFormat: c.DefineFormat}, nil
}

// LoadLibrary returns the configured descriptor: a built-in name such as
// "Osi", or the path of a .toml descriptor.
func (c Config) LoadLibrary() (*library.Library, error) {
	if IsDescriptorPath(c.Library) {
		return library.Load(c.Library)
	}
	return library.Builtin(c.Library)
}

// IsDescriptorPath reports whether name refers to a descriptor on disk.
func IsDescriptorPath(name string) bool {
	return strings.HasSuffix(name, ".toml") || strings.ContainsRune(name, filepath.Separator) || strings.Contains(name, "/")
}

// Store returns the metadata store, or nil when it is disabled. The store is
// off unless metadata_dir is set: "user" selects the per-user cache
// directory, anything else but "off" is used as the directory.
func (c Config) Store() (*metadata.Store, error) {
	switch c.MetadataDir {
	case "", metadataOff:
		return nil, nil
	case metadataUser:
		dir, err := env.MetadataDir()
		if err != nil {
			return nil, err
		}
		return metadata.NewStore(dir), nil
	}
	return metadata.NewStore(c.MetadataDir), nil
}
