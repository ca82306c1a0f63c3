package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/provide-io/bundlespec/pkg/descriptor"
	"github.com/provide-io/bundlespec/pkg/driver"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"bundlespec": run,
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			env.Setenv("BUNDLESPEC_CACHE_DIR", filepath.Join(env.WorkDir, "cache"))
			env.Setenv("BUNDLESPEC_NATIVE_KEY_SEED", "testscript")
			env.Setenv("SOURCE_DATE_EPOCH", "1700000000")
			return nil
		},
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, 0},
		{"generic", errors.New("boom"), 1},
		{"malformed", &descriptor.Error{Kind: descriptor.ErrMalformedDescriptor}, 2},
		{"missing entry point", &descriptor.Error{Kind: descriptor.ErrMissingEntryPoint}, 3},
		{"source path", &descriptor.Error{Kind: descriptor.ErrSourcePathNotFound}, 4},
		{"module conflict", &descriptor.Error{Kind: descriptor.ErrModuleListConflict}, 5},
		{"driver exit code", &driver.Failure{Driver: "pyinstaller", ExitCode: 17}, 17},
		{"driver without code", &driver.Failure{Driver: "native"}, 1},
		{"driver killed by signal", &driver.Failure{Driver: "pyinstaller", ExitCode: -1}, 1},
		{"wrapped driver failure", fmt.Errorf("build: %w", &driver.Failure{ExitCode: 127}), 127},
		{"explicit", &exitErr{code: 9}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintError(t *testing.T) {
	var stderr bytes.Buffer
	a := newApp(&bytes.Buffer{}, &stderr)
	a.printError(&descriptor.Error{
		Kind:  descriptor.ErrSourcePathNotFound,
		Field: "analysis.data_files[0].source",
		Path:  "missing.py",
	})
	if got, want := stderr.String(), "SourcePathNotFound: analysis.data_files[0].source: missing.py\n"; got != want {
		t.Errorf("printError() = %q, want %q", got, want)
	}

	stderr.Reset()
	a.printError(errors.New("no such file"))
	if got, want := stderr.String(), "Error: no such file\n"; got != want {
		t.Errorf("printError() = %q, want %q", got, want)
	}
}
