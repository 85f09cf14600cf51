package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig is read from diamondfx.toml, .env and DIAMONDFX_* variables.
type AppConfig struct {
	Effect      EffectConfig      `mapstructure:"effect"`
	Compression CompressionConfig `mapstructure:"compression"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
}

type EffectConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CompressionConfig struct {
	MaxSizeMB        float64 `mapstructure:"max_size_mb"`
	MaxWidthOrHeight int     `mapstructure:"max_width_or_height"`
	UseWebWorker     bool    `mapstructure:"use_web_worker"`
}

func (c CompressionConfig) Options() CompressOptions {
	return CompressOptions{
		MaxSizeMB:        c.MaxSizeMB,
		MaxWidthOrHeight: c.MaxWidthOrHeight,
		UseWebWorker:     c.UseWebWorker,
	}
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
	// BodyLimit caps request bodies in bytes; uploads arrive uncompressed.
	BodyLimit int `mapstructure:"body_limit"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig reads configuration. An empty path looks for diamondfx.toml in
// the working directory; a missing file is not an error unless path was given.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DIAMONDFX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("diamondfx")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultCompressOptions()

	v.SetDefault("effect.endpoint", DefaultEffectEndpoint)
	v.SetDefault("effect.timeout", "0s")

	v.SetDefault("compression.max_size_mb", defaults.MaxSizeMB)
	v.SetDefault("compression.max_width_or_height", defaults.MaxWidthOrHeight)
	v.SetDefault("compression.use_web_worker", defaults.UseWebWorker)

	v.SetDefault("server.listen", "localhost:0")
	v.SetDefault("server.body_limit", defaultBodyLimit)
	v.SetDefault("log.level", "info")
}

func validateConfig(config *AppConfig) error {
	if config.Effect.Endpoint == "" {
		return errors.New("effect endpoint is required")
	}
	if config.Effect.Timeout < 0 {
		return errors.New("effect timeout cannot be negative")
	}
	if config.Compression.MaxSizeMB <= 0 {
		return errors.New("invalid compression max size")
	}
	if config.Server.BodyLimit <= 0 {
		return errors.New("invalid server body limit")
	}
	if config.Compression.MaxWidthOrHeight <= 0 {
		return errors.New("invalid compression max width or height")
	}
	return nil
}
