// Package driver turns validated bundle descriptors into executables.
//
// A Driver only ever receives specs that passed descriptor.Validate. Every
// failure it reports is a *Failure wrapping ErrPackagingDriverFailure.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/bundlespec/pkg/descriptor"
)

// ErrPackagingDriverFailure is wrapped by every *Failure.
var ErrPackagingDriverFailure = errors.New("packaging driver failure")

// Failure reports a driver that did not produce an artifact.
type Failure struct {
	Driver string

	// ExitCode is the packaging tool's exit code, or 1 when the driver
	// failed without running a tool.
	ExitCode int

	// Message is the tool's own diagnostic, verbatim.
	Message string

	Err error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PackagingDriverFailure: %s: exit code %d", f.Driver, f.ExitCode)
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{ErrPackagingDriverFailure}
	}
	return []error{ErrPackagingDriverFailure, f.Err}
}

func fail(driver string, code int, err error) *Failure {
	return &Failure{Driver: driver, ExitCode: code, Err: err}
}

// Result describes a produced artifact.
type Result struct {
	Driver   string
	Artifact string

	// Args is the packaging tool command line, when one was run.
	Args []string

	// Modules lists what the driver bundled, when it resolves modules itself.
	Modules  []string
	External []string
}

// Driver builds one artifact from a validated spec.
type Driver interface {
	Name() string
	Build(ctx context.Context, spec *descriptor.BundleSpec) (*Result, error)
}

// Config carries the settings of every driver.
type Config struct {
	Logger      hclog.Logger
	PyInstaller PyInstallerConfig
	Native      NativeConfig
}

type factory func(Config) Driver

var registry = map[string]factory{
	"pyinstaller": func(c Config) Driver { return NewPyInstaller(c.PyInstaller, c.Logger) },
	"native":      func(c Config) Driver { return NewNative(c.Native, c.Logger) },
}

// Names lists the registered drivers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the driver registered under name.
func New(name string, cfg Config) (Driver, error) {
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return f(cfg), nil
}
