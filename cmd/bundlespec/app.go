package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/internal/config"
	"github.com/provide-io/bundlespec/pkg/logging"
)

// app carries state shared by every command.
type app struct {
	configFile string
	cfg        *config.Config
	logger     hclog.Logger

	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		cfg:    config.DefaultConfig(),
		logger: hclog.NewNullLogger(),
		stdout: stdout,
		stderr: stderr,
	}
}

// load resolves configuration and builds the logger for cmd.
func (a *app) load(cmd *cobra.Command) error {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, config.AppName))
	}

	cfg, used, err := config.Load(config.LoadOptions{
		ConfigFile: a.configFile,
		SearchDirs: dirs,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Options{
		Name:   "bundlespec",
		Level:  cfg.LogLevel,
		Output: a.stderr,
		Prefix: "📦 ",
	})
	if used != "" {
		a.logger.Debug("⚙️ Loaded config file", "path", used)
	}
	return nil
}
