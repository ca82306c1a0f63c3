package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/bundlespec/pkg/bundle"
	"github.com/provide-io/bundlespec/pkg/descriptor"
)

func testLogger(t *testing.T) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   t.Name(),
		Level:  hclog.Trace,
		Output: testWriter{t},
	})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// launcherSpec is the two-script application with one data file and the
// modules the original build forced in.
func launcherSpec(t *testing.T) *descriptor.BundleSpec {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"launcher.py":          "import sys\nimport main_simple\n\nmain_simple.run(sys.argv)\n",
		"main_simple.py":       "import os, json\nfrom helpers.text import banner\n\ndef run(argv):\n    print(banner())\n",
		"helpers/__init__.py":  "",
		"helpers/text.py":      "from . import util\n\ndef banner():\n    return 'hi'\n",
		"helpers/util.py":      "import PyQt5\n",
		"config/settings.json": `{"theme": "dark"}`,
		"assets/a.txt":         "a",
		"assets/deep/b.txt":    "b",
	})
	return &descriptor.BundleSpec{
		EntryPoints:     []string{"launcher.py"},
		DataFiles:       []descriptor.Resource{{Source: "main_simple.py", Destination: "."}, {Source: "config/settings.json", Destination: "config"}},
		ForcedModules:   []string{"pynput", "PyQt5", "pyautogui"},
		ExcludedModules: []string{"PyQt5"},
		OutputName:      "GoStealthAI",
		Console:         true,
		Compress:        true,
		BaseDir:         dir,
	}
}

func TestNew(t *testing.T) {
	if got, want := Names(), []string{"native", "pyinstaller"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	for _, name := range []string{"native", "PyInstaller"} {
		d, err := New(name, Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if d.Name() != strings.ToLower(name) {
			t.Errorf("Name() = %q", d.Name())
		}
	}
	if _, err := New("nuitka", Config{}); err == nil {
		t.Error("expected unknown driver error")
	}
}

func TestFailureError(t *testing.T) {
	f := &Failure{Driver: "pyinstaller", ExitCode: 2, Message: "ERROR: script not found"}
	if got, want := f.Error(), "PackagingDriverFailure: pyinstaller: exit code 2: ERROR: script not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	cause := errors.New("boom")
	f = fail("native", 1, cause)
	if !errors.Is(f, ErrPackagingDriverFailure) || !errors.Is(f, cause) {
		t.Error("Failure should unwrap to the sentinel and its cause")
	}
}

func TestToolOutput(t *testing.T) {
	out := newToolOutput(testLogger(t), hclog.Info)
	fmt.Fprint(out, "one\ntwo\r\n\nthr")
	fmt.Fprint(out, "ee\nfour")
	out.Flush()
	if got, want := out.String(), "one\ntwo\nthree\nfour"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBuildArgs(t *testing.T) {
	sep := string(os.PathListSeparator)
	tests := []struct {
		name string
		edit func(*descriptor.BundleSpec)
		cfg  PyInstallerConfig
		want []string
	}{
		{
			name: "launcher",
			want: []string{
				"--noconfirm", "--onefile", "--name", "GoStealthAI", "--console",
				"--add-data", "main_simple.py" + sep + ".",
				"--add-data", "config/settings.json" + sep + "config",
				"--hidden-import", "pynput", "--hidden-import", "pyautogui",
				"--exclude-module", "PyQt5",
				"launcher.py",
			},
		},
		{
			name: "windowed debug build",
			edit: func(s *descriptor.BundleSpec) {
				s.DataFiles = nil
				s.ForcedModules, s.ExcludedModules = nil, nil
				s.Console, s.Compress, s.Debug, s.Strip = false, false, true, true
				s.SearchPaths = []string{"lib"}
				s.Binaries = []descriptor.Resource{{Source: "bin/tool.dll"}}
				s.Icon, s.UACAdmin, s.VersionFile = "icon.ico", true, "version_info.txt"
			},
			cfg: PyInstallerConfig{DistDir: "out", WorkDir: "build", Clean: true, ExtraArgs: []string{"--log-level", "WARN"}},
			want: []string{
				"--noconfirm", "--onefile", "--name", "GoStealthAI", "--windowed",
				"--noupx", "--debug=all", "--strip",
				"--paths", "lib",
				"--add-binary", "bin/tool.dll" + sep + ".",
				"--icon", "icon.ico", "--uac-admin", "--version-file", "version_info.txt",
				"--distpath", "out", "--workpath", "build", "--clean",
				"--log-level", "WARN",
				"launcher.py",
			},
		},
		{
			name: "name derived from entry point",
			edit: func(s *descriptor.BundleSpec) {
				s.OutputName = ""
				s.DataFiles, s.ForcedModules, s.ExcludedModules = nil, nil, nil
			},
			want: []string{"--noconfirm", "--onefile", "--name", "launcher", "--console", "launcher.py"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := launcherSpec(t)
			if tt.edit != nil {
				tt.edit(spec)
			}
			if got := BuildArgs(spec, tt.cfg); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}

// TestHelperProcess stands in for PyInstaller. It is not a real test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) > 0 {
		args = args[1:]
	}

	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT_CODE"))
	noise, _ := strconv.Atoi(os.Getenv("HELPER_NOISE"))
	for i := 1; i <= noise; i++ {
		fmt.Fprintf(os.Stderr, "INFO: step %d\n", i)
	}
	if code != 0 {
		fmt.Fprintln(os.Stderr, "ERROR: "+os.Getenv("HELPER_MESSAGE"))
		os.Exit(code)
	}

	var name string
	for i, a := range args {
		if a == "--name" && i+1 < len(args) {
			name = args[i+1]
		}
	}
	fmt.Println("INFO: building", name)
	os.MkdirAll("dist", 0o755)
	os.WriteFile(filepath.Join("dist", name), []byte(strings.Join(args, "\n")), 0o755)
	os.Exit(0)
}

func helperConfig(code int, message string) PyInstallerConfig {
	return PyInstallerConfig{
		Command: fmt.Sprintf("'%s' -test.run=TestHelperProcess --", os.Args[0]),
		Env: []string{
			"GO_WANT_HELPER_PROCESS=1",
			"HELPER_EXIT_CODE=" + strconv.Itoa(code),
			"HELPER_MESSAGE=" + message,
		},
	}
}

func TestPyInstallerBuild(t *testing.T) {
	spec := launcherSpec(t)
	d := NewPyInstaller(helperConfig(0, ""), testLogger(t))

	res, err := d.Build(context.Background(), spec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(spec.BaseDir, "dist", "GoStealthAI"))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if !strings.HasSuffix(string(data), "launcher.py") {
		t.Errorf("entry point should be the last argument, got %q", data)
	}
	if res.Args[0] != os.Args[0] {
		t.Errorf("Args[0] = %q", res.Args[0])
	}
	if filepath.Base(res.Artifact) != "GoStealthAI" && filepath.Base(res.Artifact) != "GoStealthAI.exe" {
		t.Errorf("Artifact = %q", res.Artifact)
	}
}

func TestPyInstallerExitCodePropagates(t *testing.T) {
	spec := launcherSpec(t)
	d := NewPyInstaller(helperConfig(3, "Script file 'launcher.py' does not exist."), testLogger(t))

	_, err := d.Build(context.Background(), spec)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", f.ExitCode)
	}
	if !strings.Contains(f.Message, "Script file 'launcher.py' does not exist.") {
		t.Errorf("Message = %q", f.Message)
	}
	if !errors.Is(err, ErrPackagingDriverFailure) {
		t.Error("expected ErrPackagingDriverFailure")
	}
}

func TestPyInstallerFailureKeepsFullOutput(t *testing.T) {
	spec := launcherSpec(t)
	cfg := helperConfig(2, "boom")
	cfg.Env = append(cfg.Env, "HELPER_NOISE=40")
	d := NewPyInstaller(cfg, testLogger(t))

	_, err := d.Build(context.Background(), spec)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	for _, line := range []string{"INFO: step 1", "INFO: step 40", "ERROR: boom"} {
		if !strings.Contains(f.Message, line) {
			t.Errorf("Message is missing %q", line)
		}
	}
}

func TestPyInstallerCommandNotFound(t *testing.T) {
	spec := launcherSpec(t)
	d := NewPyInstaller(PyInstallerConfig{Command: "bundlespec-no-such-pyinstaller --version"}, testLogger(t))

	_, err := d.Build(context.Background(), spec)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.ExitCode != exitCommandNotFound {
		t.Errorf("ExitCode = %d, want %d", f.ExitCode, exitCommandNotFound)
	}
}

func TestPyInstallerInvalidCommand(t *testing.T) {
	d := NewPyInstaller(PyInstallerConfig{Command: "'unterminated"}, testLogger(t))
	_, err := d.Build(context.Background(), launcherSpec(t))
	var f *Failure
	if !errors.As(err, &f) || f.ExitCode != 1 {
		t.Fatalf("expected exit code 1 failure, got %v", err)
	}
}

func TestResolveModules(t *testing.T) {
	spec := launcherSpec(t)
	entry := spec.ResolvePath("launcher.py")

	c, err := ResolveModules(entry, nil, spec.ForcedModules, spec.ExcludedModules)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Names(), []string{"helpers", "main_simple"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Bundled = %v, want %v", got, want)
	}
	if got, want := c.External, []string{"pynput", "pyautogui"}; !reflect.DeepEqual(got, want) {
		t.Errorf("External = %v, want %v", got, want)
	}
	if got, want := c.Excluded, []string{"PyQt5"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Excluded = %v, want %v", got, want)
	}
	for _, m := range c.Bundled {
		if m.Name == "helpers" && !m.IsPackage {
			t.Error("helpers should resolve as a package")
		}
	}
}

func TestResolveModulesSearchPaths(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"app/main.py":        "import shared.core\n",
		"lib/shared.py":      "import vendored\n",
		"vendor/vendored.py": "x = 1\n",
	})
	c, err := ResolveModules(filepath.Join(dir, "app", "main.py"),
		[]string{filepath.Join(dir, "lib"), filepath.Join(dir, "vendor")}, []string{"vendored"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Names(), []string{"shared", "vendored"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Bundled = %v, want %v", got, want)
	}
	if len(c.External) != 0 {
		t.Errorf("External = %v", c.External)
	}
}

func TestResolveModulesExcludesSubmodulesOnly(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"launcher.py":            "import helper\nimport PyQt5.QtWidgets\n",
		"helper/__init__.py":     "from . import core\n",
		"helper/core.py":         "import json\n",
		"helper/extra.py":        "import heavy\n",
		"helper/web/__init__.py": "",
		"helper/web/view.py":     "",
		"heavy.py":               "x = 1\n",
	})

	c, err := ResolveModules(filepath.Join(dir, "launcher.py"), nil,
		[]string{"PyQt5"}, []string{"PyQt5.QtWebEngine", "helper.extra", "helper.web"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Names(), []string{"helper"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Bundled = %v, want %v", got, want)
	}
	if got, want := c.External, []string{"PyQt5"}; !reflect.DeepEqual(got, want) {
		t.Errorf("External = %v, want %v", got, want)
	}
	if got, want := c.Excluded, []string{"helper.extra", "helper.web"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Excluded = %v, want %v", got, want)
	}
	if got, want := c.Bundled[0].Omit, []string{"extra.py", "web"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Omit = %v, want %v", got, want)
	}
}

func TestResolveModulesExcludedParentCoversForcedSubmodule(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"launcher.py": "print('hi')\n"})

	c, err := ResolveModules(filepath.Join(dir, "launcher.py"), nil,
		[]string{"PyQt5.QtWidgets", "pynput"}, []string{"PyQt5"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.External, []string{"pynput"}; !reflect.DeepEqual(got, want) {
		t.Errorf("External = %v, want %v", got, want)
	}
}

func TestScanImports(t *testing.T) {
	dir := t.TempDir()
	src := strings.Join([]string{
		"import os, sys as system",
		"import xml.etree.ElementTree as ET  # parse",
		"from PyQt5.QtWidgets import QApplication",
		"from . import sibling",
		"from .pkg import thing",
		"    import pynput",
		"# import commented",
		"print('import not_a_module')",
		"import os",
	}, "\n")
	writeTree(t, dir, map[string]string{"m.py": src})

	got, err := ScanImports(filepath.Join(dir, "m.py"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"os", "sys", "xml", "PyQt5", "pynput"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScanImports() = %v, want %v", got, want)
	}
}

func TestNativePlan(t *testing.T) {
	spec := launcherSpec(t)
	spec.DataFiles = append(spec.DataFiles,
		descriptor.Resource{Source: "assets/**/*.txt", Destination: "res"},
		descriptor.Resource{Source: "assets", Destination: "raw"},
		descriptor.Resource{Source: "main_simple.py", Destination: "."},
	)
	n := NewNative(NativeConfig{}, testLogger(t))

	m, _, cleanup, err := n.Plan(context.Background(), spec)
	defer cleanup()
	if err != nil {
		t.Fatal(err)
	}

	type slot struct {
		kind   bundle.SlotKind
		target string
	}
	var got []slot
	for _, s := range m.Slots {
		got = append(got, slot{s.Kind, s.Target})
	}
	want := []slot{
		{bundle.KindEntry, "launcher.py"},
		{bundle.KindModule, "helpers"},
		{bundle.KindModule, "main_simple.py"},
		{bundle.KindData, "config/settings.json"},
		{bundle.KindData, "res/a.txt"},
		{bundle.KindData, "res/deep/b.txt"},
		{bundle.KindData, "raw"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slots =\n  %v\nwant\n  %v", got, want)
	}
	if m.Entry.Path != "launcher.py" || m.Name != "GoStealthAI" {
		t.Errorf("manifest = %+v", m)
	}
}

func TestNativeBuild(t *testing.T) {
	spec := launcherSpec(t)
	launcher := filepath.Join(t.TempDir(), "launcher.bin")
	if err := os.WriteFile(launcher, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, codec := range []string{"gzip", "bzip2"} {
		t.Run(codec, func(t *testing.T) {
			d := NewNative(NativeConfig{
				Launcher:  launcher,
				Codec:     codec,
				KeySeed:   "driver-test",
				OutputDir: t.TempDir(),
			}, testLogger(t))

			res, err := d.Build(context.Background(), spec)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if filepath.Base(res.Artifact) != "GoStealthAI" {
				t.Errorf("Artifact = %q", res.Artifact)
			}
			if !reflect.DeepEqual(res.External, []string{"pynput", "pyautogui"}) {
				t.Errorf("External = %v", res.External)
			}

			report, err := bundle.Verify(res.Artifact, testLogger(t))
			if err != nil {
				t.Fatal(err)
			}
			if !report.OK() {
				t.Errorf("verification failed: %+v", report.Checks)
			}

			r, err := bundle.Open(res.Artifact)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			out := t.TempDir()
			if err := r.ExtractTo(out); err != nil {
				t.Fatal(err)
			}
			for _, p := range []string{"launcher.py", "main_simple.py", "config/settings.json", "helpers/text.py"} {
				if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(p))); err != nil {
					t.Errorf("missing %s: %v", p, err)
				}
			}
		})
	}
}

func TestNativeBuildFailures(t *testing.T) {
	spec := launcherSpec(t)
	tests := []struct {
		name string
		cfg  NativeConfig
	}{
		{"missing launcher", NativeConfig{Launcher: filepath.Join(t.TempDir(), "absent")}},
		{"bad codec", NativeConfig{Launcher: os.Args[0], Codec: "tar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNative(tt.cfg, testLogger(t)).Build(context.Background(), spec)
			var f *Failure
			if !errors.As(err, &f) || f.ExitCode != 1 {
				t.Fatalf("expected exit code 1 failure, got %v", err)
			}
		})
	}
}
