// Package config loads clrdump settings from clrdump.yaml and the
// environment.
package config

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names, e.g.
// CLRDUMP_OUTPUT_PRETTY.
const EnvPrefix = "CLRDUMP"

// Config represents the clrdump configuration
type Config struct {
	Output  OutputConfig  `mapstructure:"output"`
	Extract ExtractConfig `mapstructure:"extract"`
	Workers int           `mapstructure:"workers"`
}

// OutputConfig controls how results are printed
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Pretty bool   `mapstructure:"pretty"`
	Color  bool   `mapstructure:"color"`
}

// ExtractConfig controls the extract command
type ExtractConfig struct {
	Compress bool   `mapstructure:"compress"`
	Level    string `mapstructure:"level"`
}

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

var compressionLevels = []string{"fastest", "default", "better", "best"}

// Load reads the configuration. When path is empty, clrdump.yaml is looked
// up in the working directory and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("output.format", FormatJSON)
	v.SetDefault("output.pretty", false)
	v.SetDefault("output.color", true)
	v.SetDefault("extract.compress", false)
	v.SetDefault("extract.level", "default")
	v.SetDefault("workers", 4)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clrdump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Output:  OutputConfig{Format: FormatJSON, Color: true},
		Extract: ExtractConfig{Level: "default"},
		Workers: 4,
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Output.Format {
	case FormatJSON, FormatText:
	default:
		return errors.Newf("output.format must be %q or %q, got: %q", FormatJSON, FormatText, cfg.Output.Format)
	}
	if cfg.Workers <= 0 {
		return errors.Newf("workers must be positive, got: %d", cfg.Workers)
	}
	if !slices.Contains(compressionLevels, cfg.Extract.Level) {
		return errors.Newf("extract.level must be one of %s, got: %q",
			strings.Join(compressionLevels, ", "), cfg.Extract.Level)
	}
	return nil
}
