// Package config loads build settings with viper from an optional
// ssg.config.yaml, SSG_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/3-lines-studio/ssg/internal/adapters/env"
	"github.com/3-lines-studio/ssg/internal/adapters/objectstore"
	"github.com/3-lines-studio/ssg/internal/core"
	"github.com/3-lines-studio/ssg/internal/logging"
	"github.com/3-lines-studio/ssg/internal/postprocess"
)

const (
	EnvPrefix      = "SSG"
	ConfigFileEnv  = "SSG_CONFIG_FILE"
	ConfigFileName = "ssg.config"
	DefaultRuntime = "node"
)

type Config struct {
	Root        string            `mapstructure:"root"`
	OutDir      string            `mapstructure:"outDir"`
	Entry       string            `mapstructure:"entry"`
	Script      core.ScriptMode   `mapstructure:"script"`
	Format      core.ModuleFormat `mapstructure:"format"`
	Formatting  core.Formatting   `mapstructure:"formatting"`
	Mode        string            `mapstructure:"mode"`
	Concurrency int               `mapstructure:"concurrency"`
	Runtime     string            `mapstructure:"runtime"`
	LogLevel    string            `mapstructure:"logLevel"`
	Critical    CriticalConfig    `mapstructure:"critical"`
	Publish     PublishConfig     `mapstructure:"publish"`
}

type CriticalConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Preload          string `mapstructure:"preload"`
	InlineFonts      bool   `mapstructure:"inlineFonts"`
	Compress         bool   `mapstructure:"compress"`
	MergeStylesheets bool   `mapstructure:"mergeStylesheets"`
	PreloadFonts     bool   `mapstructure:"preloadFonts"`
}

func (c CriticalConfig) Options() postprocess.CriticalOptions {
	return postprocess.CriticalOptions{
		Preload:          c.Preload,
		InlineFonts:      c.InlineFonts,
		Compress:         c.Compress,
		MergeStylesheets: c.MergeStylesheets,
		PreloadFonts:     c.PreloadFonts,
	}
}

type PublishConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

func (p PublishConfig) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:  p.Endpoint,
		AccessKey: p.AccessKey,
		SecretKey: p.SecretKey,
		Region:    p.Region,
		Bucket:    p.Bucket,
		Prefix:    p.Prefix,
		UseSSL:    p.UseSSL,
	}
}

// SetDefaults registers every key so SSG_* variables reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("outDir", "")
	v.SetDefault("entry", "")
	v.SetDefault("script", string(core.ScriptSync))
	v.SetDefault("format", string(core.FormatESM))
	v.SetDefault("formatting", "")
	v.SetDefault("mode", env.DetectMode())
	v.SetDefault("concurrency", core.DefaultConcurrency)
	v.SetDefault("runtime", DefaultRuntime)
	v.SetDefault("logLevel", logging.DefaultLevel)

	v.SetDefault("critical.enabled", true)
	v.SetDefault("critical.preload", postprocess.PreloadMedia)
	v.SetDefault("critical.inlineFonts", true)
	v.SetDefault("critical.compress", true)
	v.SetDefault("critical.mergeStylesheets", true)
	v.SetDefault("critical.preloadFonts", true)

	v.SetDefault("publish.endpoint", "")
	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.accessKey", "")
	v.SetDefault("publish.secretKey", "")
	v.SetDefault("publish.region", "")
	v.SetDefault("publish.useSSL", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadConfigFile reads path, else $SSG_CONFIG_FILE, else ssg.config.yaml
// in dir. Only an explicitly named file must exist.
func ReadConfigFile(v *viper.Viper, path, dir string) error {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: reading %s: %v", core.ErrConfig, path, err)
		}
		return nil
	}

	v.AddConfigPath(dir)
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", core.ErrConfig, filepath.Join(dir, ConfigFileName+".yaml"), err)
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}

	if cfg.Mode == "" {
		cfg.Mode = env.DefaultMode
	}
	if cfg.Formatting == "" {
		cfg.Formatting = core.FormattingNone
		if cfg.Mode == env.DefaultMode {
			cfg.Formatting = core.FormattingMinify
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !core.ValidScriptMode(c.Script) {
		return core.ConfigError("unknown script mode %q", c.Script)
	}
	switch c.Format {
	case core.FormatESM, core.FormatCJS:
	default:
		return core.ConfigError("unknown format %q", c.Format)
	}
	switch c.Formatting {
	case core.FormattingMinify, core.FormattingPrettify, core.FormattingNone:
	default:
		return core.ConfigError("unknown formatting %q", c.Formatting)
	}
	switch c.Critical.Preload {
	case postprocess.PreloadMedia, postprocess.PreloadSwap, postprocess.PreloadBody, postprocess.PreloadNone:
	default:
		return core.ConfigError("unknown critical preload strategy %q", c.Critical.Preload)
	}
	if c.Concurrency < 1 {
		return core.ConfigError("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if strings.TrimSpace(c.Runtime) == "" {
		return core.ConfigError("runtime is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return core.ConfigError("%v", err)
	}
	if store := c.Publish.ObjectStore(); store.Enabled() {
		if err := store.Validate(); err != nil {
			return core.ConfigError("publish: %v", err)
		}
	}
	return nil
}

// OutPath resolves OutDir against Root. An empty OutDir defers to the
// project's vite build.outDir and yields "".
func (c *Config) OutPath() string {
	if c.OutDir == "" {
		return ""
	}
	if filepath.IsAbs(c.OutDir) {
		return c.OutDir
	}
	return filepath.Join(c.Root, c.OutDir)
}
