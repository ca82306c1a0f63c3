// Package config layers bundlespec settings from flags, BUNDLESPEC_*
// environment variables, an optional config file and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/provide-io/bundlespec/pkg/driver"
	"github.com/provide-io/bundlespec/pkg/logging"
)

const (
	// AppName is the config file base name and the environment prefix.
	AppName = "bundlespec"

	// EnvPrefix prefixes every environment override, e.g. BUNDLESPEC_DRIVER.
	EnvPrefix = "BUNDLESPEC"

	// DefaultDriver is used when no driver is configured.
	DefaultDriver = "pyinstaller"
)

// Config holds every CLI setting.
type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	Driver      string            `mapstructure:"driver"`
	PyInstaller PyInstallerConfig `mapstructure:"pyinstaller"`
	Native      NativeConfig      `mapstructure:"native"`
}

// PyInstallerConfig mirrors driver.PyInstallerConfig.
type PyInstallerConfig struct {
	Command   string   `mapstructure:"command"`
	DistDir   string   `mapstructure:"dist_dir"`
	WorkDir   string   `mapstructure:"work_dir"`
	Clean     bool     `mapstructure:"clean"`
	ExtraArgs []string `mapstructure:"extra_args"`
}

// NativeConfig mirrors driver.NativeConfig.
type NativeConfig struct {
	Launcher       string `mapstructure:"launcher"`
	Codec          string `mapstructure:"codec"`
	OutputDir      string `mapstructure:"output_dir"`
	KeySeed        string `mapstructure:"key_seed"`
	PrivateKeyPath string `mapstructure:"private_key"`
	PublicKeyPath  string `mapstructure:"public_key"`
	StripTool      string `mapstructure:"strip_tool"`
	Concurrency    int    `mapstructure:"concurrency"`
	Timestamp      int64  `mapstructure:"timestamp"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: logging.DefaultLevel,
		Driver:   DefaultDriver,
		PyInstaller: PyInstallerConfig{
			Command: driver.DefaultPyInstallerCommand,
		},
		Native: NativeConfig{
			Codec:     "gzip",
			StripTool: "strip",
		},
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string

	// SearchDirs are searched for bundlespec.{yaml,toml,json} when ConfigFile
	// is empty. A missing file is not an error.
	SearchDirs []string

	// Flags are bound by name, see flagKeys.
	Flags *pflag.FlagSet
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"driver":     "driver",
	"launcher":   "native.launcher",
	"output-dir": "native.output_dir",
	"timestamp":  "native.timestamp",
}

// Load resolves the configuration. It returns the settings and the config
// file used, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("driver", defaults.Driver)
	v.SetDefault("pyinstaller.command", defaults.PyInstaller.Command)
	v.SetDefault("pyinstaller.dist_dir", "")
	v.SetDefault("pyinstaller.work_dir", "")
	v.SetDefault("pyinstaller.clean", false)
	v.SetDefault("pyinstaller.extra_args", []string{})
	v.SetDefault("native.launcher", "")
	v.SetDefault("native.codec", defaults.Native.Codec)
	v.SetDefault("native.output_dir", "")
	v.SetDefault("native.key_seed", "")
	v.SetDefault("native.private_key", "")
	v.SetDefault("native.public_key", "")
	v.SetDefault("native.strip_tool", defaults.Native.StripTool)
	v.SetDefault("native.concurrency", 0)
	v.SetDefault("native.timestamp", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	} else if len(opts.SearchDirs) > 0 {
		v.SetConfigName(AppName)
		for _, dir := range opts.SearchDirs {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// DriverConfig maps the settings onto driver.Config.
func (c *Config) DriverConfig(logger hclog.Logger) driver.Config {
	return driver.Config{
		Logger: logger,
		PyInstaller: driver.PyInstallerConfig{
			Command:   c.PyInstaller.Command,
			DistDir:   c.PyInstaller.DistDir,
			WorkDir:   c.PyInstaller.WorkDir,
			Clean:     c.PyInstaller.Clean,
			ExtraArgs: c.PyInstaller.ExtraArgs,
		},
		Native: driver.NativeConfig{
			Launcher:       c.Native.Launcher,
			Codec:          c.Native.Codec,
			OutputDir:      c.Native.OutputDir,
			KeySeed:        c.Native.KeySeed,
			PrivateKeyPath: c.Native.PrivateKeyPath,
			PublicKeyPath:  c.Native.PublicKeyPath,
			StripTool:      c.Native.StripTool,
			Concurrency:    c.Native.Concurrency,
			Timestamp:      c.Native.Timestamp,
		},
	}
}
