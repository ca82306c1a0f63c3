package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"mvdan.cc/sh/v3/shell"

	"github.com/provide-io/bundlespec/pkg/descriptor"
)

// DefaultPyInstallerCommand is used when no command is configured.
const DefaultPyInstallerCommand = "pyinstaller"

// exitCommandNotFound mirrors the shell's code for a missing command.
const exitCommandNotFound = 127

// PyInstallerConfig configures the PyInstaller driver.
type PyInstallerConfig struct {
	// Command is a shell-style command line, e.g. "python -m PyInstaller".
	Command string

	// DistDir and WorkDir map to --distpath and --workpath.
	DistDir string
	WorkDir string

	// Clean removes PyInstaller caches before building.
	Clean bool

	ExtraArgs []string

	// Env is appended to the process environment.
	Env []string
}

// PyInstaller runs PyInstaller as an external tool.
type PyInstaller struct {
	cfg    PyInstallerConfig
	logger hclog.Logger
}

// NewPyInstaller returns a PyInstaller driver.
func NewPyInstaller(cfg PyInstallerConfig, logger hclog.Logger) *PyInstaller {
	if cfg.Command == "" {
		cfg.Command = DefaultPyInstallerCommand
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PyInstaller{cfg: cfg, logger: logger.Named("pyinstaller")}
}

func (p *PyInstaller) Name() string { return "pyinstaller" }

// BuildArgs renders spec as PyInstaller arguments, entry script last.
func BuildArgs(spec *descriptor.BundleSpec, cfg PyInstallerConfig) []string {
	sep := string(os.PathListSeparator)

	args := []string{"--noconfirm", "--onefile", "--name", spec.ArtifactName()}
	if spec.Console {
		args = append(args, "--console")
	} else {
		args = append(args, "--windowed")
	}
	if !spec.Compress {
		args = append(args, "--noupx")
	}
	if spec.Debug {
		args = append(args, "--debug=all")
	}
	if spec.Strip {
		args = append(args, "--strip")
	}
	for _, sp := range spec.SearchPaths {
		args = append(args, "--paths", sp)
	}
	for _, r := range spec.Binaries {
		args = append(args, "--add-binary", r.Source+sep+r.Dest())
	}
	for _, r := range spec.DataFiles {
		args = append(args, "--add-data", r.Source+sep+r.Dest())
	}
	for _, m := range spec.Modules() {
		args = append(args, "--hidden-import", m)
	}
	for _, m := range spec.ExcludedModules {
		args = append(args, "--exclude-module", m)
	}
	if spec.Icon != "" {
		args = append(args, "--icon", spec.Icon)
	}
	if spec.UACAdmin {
		args = append(args, "--uac-admin")
	}
	if spec.VersionFile != "" {
		args = append(args, "--version-file", spec.VersionFile)
	}
	if cfg.DistDir != "" {
		args = append(args, "--distpath", cfg.DistDir)
	}
	if cfg.WorkDir != "" {
		args = append(args, "--workpath", cfg.WorkDir)
	}
	if cfg.Clean {
		args = append(args, "--clean")
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, spec.EntryPoint())
}

// Build runs PyInstaller in spec.BaseDir and returns its exit code through
// *Failure on error.
func (p *PyInstaller) Build(ctx context.Context, spec *descriptor.BundleSpec) (*Result, error) {
	command, err := shell.Fields(p.cfg.Command, nil)
	if err != nil {
		return nil, fail(p.Name(), 1, fmt.Errorf("invalid command %q: %w", p.cfg.Command, err))
	}
	if len(command) == 0 {
		return nil, fail(p.Name(), 1, errors.New("empty command"))
	}

	args := append(command[1:len(command):len(command)], BuildArgs(spec, p.cfg)...)
	if spec.Version != "" && spec.VersionFile == "" {
		p.logger.Debug("PyInstaller takes versions from a version file; ignoring version", "version", spec.Version)
	}

	p.logger.Info("🔨 Running PyInstaller", "command", command[0], "dir", spec.BaseDir)
	p.logger.Debug("PyInstaller arguments", "args", args)

	out := newToolOutput(p.logger, hclog.Info)
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = spec.BaseDir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(os.Environ(), p.cfg.Env...)

	err = cmd.Run()
	out.Flush()
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			p.logger.Error("❌ PyInstaller failed", "exit_code", exitErr.ExitCode())
			return nil, &Failure{Driver: p.Name(), ExitCode: exitErr.ExitCode(), Message: out.String()}
		case errors.Is(err, exec.ErrNotFound):
			return nil, fail(p.Name(), exitCommandNotFound, err)
		}
		return nil, fail(p.Name(), 1, err)
	}

	artifact := p.artifactPath(spec)
	p.logger.Info("✅ PyInstaller finished", "artifact", artifact)
	return &Result{Driver: p.Name(), Artifact: artifact, Args: append(command[:1:1], args...)}, nil
}

func (p *PyInstaller) artifactPath(spec *descriptor.BundleSpec) string {
	dist := p.cfg.DistDir
	if dist == "" {
		dist = "dist"
	}
	if !filepath.IsAbs(dist) {
		dist = filepath.Join(spec.BaseDir, dist)
	}
	name := spec.ArtifactName()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(dist, name)
}
