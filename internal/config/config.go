// Package config provides configuration management for provmark.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/provmark/provmark/pkg/keys"
	"github.com/provmark/provmark/pkg/watermark"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PROVMARK"

// Config represents the application configuration.
type Config struct {
	Keys      KeysConfig       `mapstructure:"keys" yaml:"keys"`
	Watermark watermark.Config `mapstructure:"watermark" yaml:"watermark"`
	Log       LogConfig        `mapstructure:"log" yaml:"log"`
	Verify    VerifyConfig     `mapstructure:"verify" yaml:"verify"`
}

// KeysConfig contains key generation and storage settings.
type KeysConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	Name          string `mapstructure:"name" yaml:"name"`
	Algorithm     string `mapstructure:"algorithm" yaml:"algorithm"`
	KeySize       int    `mapstructure:"key_size" yaml:"key_size"`
	KDFIterations int    `mapstructure:"kdf_iterations" yaml:"kdf_iterations"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// VerifyConfig contains batch verification settings.
type VerifyConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Load loads configuration from file and environment variables.
// An empty configPath searches for .provmark.yaml in the home directory, ~/.provmark and the
// working directory; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// PROVMARK_KEYS_DIR overrides keys.dir
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".provmark")
		v.SetConfigType("yaml")
		v.AddConfigPath(homeDir())
		v.AddConfigPath(filepath.Join(homeDir(), ".provmark"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	wm := watermark.DefaultConfig()
	return &Config{
		Keys: KeysConfig{
			Dir:           "keys",
			Name:          "signing_key",
			Algorithm:     string(keys.RSA),
			KeySize:       keys.DefaultRSAKeySize,
			KDFIterations: keys.DefaultKDFIterations,
		},
		Watermark: wm,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Verify: VerifyConfig{
			Concurrency: 4,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("keys.dir", d.Keys.Dir)
	v.SetDefault("keys.name", d.Keys.Name)
	v.SetDefault("keys.algorithm", d.Keys.Algorithm)
	v.SetDefault("keys.key_size", d.Keys.KeySize)
	v.SetDefault("keys.kdf_iterations", d.Keys.KDFIterations)

	v.SetDefault("watermark.token", d.Watermark.Token)
	v.SetDefault("watermark.software", d.Watermark.Software)
	v.SetDefault("watermark.version", d.Watermark.Version)
	v.SetDefault("watermark.seed", d.Watermark.Seed)
	v.SetDefault("watermark.min_pixels", d.Watermark.MinPixels)
	v.SetDefault("watermark.small_image_pixels", d.Watermark.SmallImagePixels)
	v.SetDefault("watermark.small_capacity", d.Watermark.SmallCapacity)
	v.SetDefault("watermark.large_capacity", d.Watermark.LargeCapacity)
	v.SetDefault("watermark.detect_bits", d.Watermark.DetectBits)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("verify.concurrency", d.Verify.Concurrency)
}

// Validate checks the configuration for values the tools cannot work with.
func (c *Config) Validate() error {
	if _, err := c.Algorithm(); err != nil {
		return errors.Wrap(err, "invalid keys.algorithm")
	}
	if c.Keys.KDFIterations <= 0 {
		return errors.Errorf("keys.kdf_iterations must be positive, got %d", c.Keys.KDFIterations)
	}
	if err := c.Watermark.Validate(); err != nil {
		return errors.Wrap(err, "invalid watermark configuration")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Verify.Concurrency <= 0 {
		return errors.Errorf("verify.concurrency must be positive, got %d", c.Verify.Concurrency)
	}
	return nil
}

// Algorithm returns the configured signature algorithm.
func (c *Config) Algorithm() (keys.Algorithm, error) {
	return keys.ParseAlgorithm(c.Keys.Algorithm)
}

// WatermarkConfig returns the watermark scheme parameters.
func (c *Config) WatermarkConfig() watermark.Config {
	return c.Watermark
}

// KeyPaths returns the file names of the configured key pair.
func (c *Config) KeyPaths() *keys.Paths {
	return keys.PathsFor(c.Keys.Dir, c.Keys.Name)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return home
}
