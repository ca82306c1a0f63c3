package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/bundlespec/pkg/bundle"
	"github.com/provide-io/bundlespec/pkg/bundle/operations"
	"github.com/provide-io/bundlespec/pkg/descriptor"
)

// LauncherName is the launcher binary looked up when none is configured.
const LauncherName = "bundlespec-launcher"

// NativeConfig configures the native driver.
type NativeConfig struct {
	// Launcher is the launcher binary prefixed to artifacts.
	Launcher string

	// Codec names the compression used when the descriptor enables compression:
	// "gzip" (default) or "bzip2".
	Codec string

	// OutputDir defaults to "dist" below the descriptor's directory.
	OutputDir string

	KeySeed        string
	PrivateKeyPath string
	PublicKeyPath  string

	// StripTool runs on binary copies when the descriptor enables stripping.
	StripTool string

	Concurrency int

	// Timestamp is the build time in Unix seconds. Zero falls back to
	// SOURCE_DATE_EPOCH, then the current time.
	Timestamp int64
}

// Native builds self-contained bundles without external packagers.
type Native struct {
	cfg    NativeConfig
	logger hclog.Logger
}

// NewNative returns a native driver.
func NewNative(cfg NativeConfig, logger hclog.Logger) *Native {
	if cfg.Codec == "" {
		cfg.Codec = "gzip"
	}
	if cfg.StripTool == "" {
		cfg.StripTool = "strip"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Native{cfg: cfg, logger: logger.Named("native")}
}

func (n *Native) Name() string { return "native" }

// Build resolves modules, collects slots and writes the artifact.
func (n *Native) Build(ctx context.Context, spec *descriptor.BundleSpec) (*Result, error) {
	launcher, err := n.launcherPath()
	if err != nil {
		return nil, fail(n.Name(), 1, err)
	}

	codec, err := n.codec(spec.Compress)
	if err != nil {
		return nil, fail(n.Name(), 1, err)
	}

	manifest, closure, cleanup, err := n.Plan(ctx, spec)
	defer cleanup()
	if err != nil {
		return nil, fail(n.Name(), 1, err)
	}
	manifest.Codec = codec

	signer, err := bundle.NewSigner(bundle.KeyConfig{
		PrivateKeyPath: n.cfg.PrivateKeyPath,
		PublicKeyPath:  n.cfg.PublicKeyPath,
		Seed:           n.cfg.KeySeed,
	})
	if err != nil {
		return nil, fail(n.Name(), 1, err)
	}
	n.logger.Debug("🔑 Signing key ready", "source", signer.Source)

	opts := []bundle.Option{
		bundle.WithLogger(n.logger),
		bundle.WithSigner(signer),
		bundle.WithConcurrency(n.cfg.Concurrency),
	}
	if n.cfg.Timestamp != 0 {
		opts = append(opts, bundle.WithTimestamp(time.Unix(n.cfg.Timestamp, 0).UTC()))
	}
	res := &bundle.Resources{
		RequireAdmin: spec.UACAdmin,
		Version:      spec.Version,
		ProductName:  spec.ArtifactName(),
	}
	if spec.Icon != "" {
		res.IconPath = spec.ResolvePath(spec.Icon)
	}
	if !res.Empty() {
		opts = append(opts, bundle.WithResources(res))
	}
	if spec.VersionFile != "" {
		n.logger.Warn("⚠️ Version files are PyInstaller specific; use the version field instead", "version_file", spec.VersionFile)
	}

	out := n.outputPath(spec, launcher)
	built, err := bundle.Build(ctx, manifest, launcher, out, opts...)
	if err != nil {
		return nil, fail(n.Name(), 1, err)
	}

	return &Result{
		Driver:   n.Name(),
		Artifact: built.Path,
		Modules:  closure.Names(),
		External: closure.External,
	}, nil
}

// Plan turns spec into a bundle manifest. cleanup removes temporary stripped
// binaries and is always safe to call.
func (n *Native) Plan(ctx context.Context, spec *descriptor.BundleSpec) (*bundle.Manifest, *Closure, func(), error) {
	tmpDirs := []string{}
	cleanup := func() {
		for _, d := range tmpDirs {
			os.RemoveAll(d)
		}
	}

	entry := spec.ResolvePath(spec.EntryPoint())
	searchDirs := make([]string, len(spec.SearchPaths))
	for i, sp := range spec.SearchPaths {
		searchDirs[i] = spec.ResolvePath(sp)
	}

	closure, err := ResolveModules(entry, searchDirs, spec.ForcedModules, spec.ExcludedModules)
	if err != nil {
		return nil, nil, cleanup, err
	}
	n.logger.Info("🔍 Resolved modules", "bundled", len(closure.Bundled), "external", closure.External)

	m := &bundle.Manifest{
		Name:        spec.ArtifactName(),
		Version:     spec.Version,
		Entry:       bundle.EntryInfo{Path: filepath.Base(entry), Interpreter: spec.Interpreter},
		SearchPaths: spec.SearchPaths,
		Console:     spec.Console,
		Debug:       spec.Debug,
		Strip:       spec.Strip,
		Modules: bundle.ModuleInfo{
			Bundled:  closure.Names(),
			External: closure.External,
			Excluded: closure.Excluded,
		},
	}

	seen := map[string]bool{}
	add := func(s bundle.Slot) {
		key := s.Target + "\x00" + s.Source
		if seen[key] {
			return
		}
		seen[key] = true
		m.Slots = append(m.Slots, s)
	}

	add(bundle.Slot{Kind: bundle.KindEntry, Source: entry, Target: m.Entry.Path})
	for _, mod := range closure.Bundled {
		target := mod.Name + ".py"
		if mod.IsPackage {
			target = mod.Name
		}
		add(bundle.Slot{Kind: bundle.KindModule, Source: mod.Path, Target: target, Omit: mod.Omit})
	}

	var stripDir string
	for _, r := range spec.Binaries {
		slots, err := resourceSlots(spec, r, bundle.KindBinary)
		if err != nil {
			return nil, nil, cleanup, err
		}
		for _, s := range slots {
			s.Mode = bundle.ExecutablePerms
			if spec.Strip {
				if stripDir == "" {
					stripDir, err = os.MkdirTemp("", "bundlespec-strip-")
					if err != nil {
						return nil, nil, cleanup, err
					}
					tmpDirs = append(tmpDirs, stripDir)
				}
				s.Source = n.stripCopy(ctx, s.Source, stripDir, len(m.Slots))
			}
			add(s)
		}
	}
	for _, r := range spec.DataFiles {
		slots, err := resourceSlots(spec, r, bundle.KindData)
		if err != nil {
			return nil, nil, cleanup, err
		}
		for _, s := range slots {
			add(s)
		}
	}
	return m, closure, cleanup, nil
}

// resourceSlots maps a resource to slots. Plain files land in the
// destination directory, plain directories unpack into it, glob matches keep
// their layout below the pattern's static prefix.
func resourceSlots(spec *descriptor.BundleSpec, r descriptor.Resource, kind bundle.SlotKind) ([]bundle.Slot, error) {
	matches, err := spec.Expand(r.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Source, err)
	}
	dest := path.Clean(filepath.ToSlash(r.Dest()))
	glob := descriptor.IsGlob(r.Source)

	slots := make([]bundle.Slot, 0, len(matches))
	for _, match := range matches {
		target := path.Join(dest, path.Base(filepath.ToSlash(match.Path)))
		switch {
		case glob:
			target = path.Join(dest, match.Rel)
		case match.IsDir:
			target = dest
		}
		slots = append(slots, bundle.Slot{Kind: kind, Source: match.Path, Target: target})
	}
	return slots, nil
}

// stripCopy strips a copy of a binary. Failures leave the original in place.
func (n *Native) stripCopy(ctx context.Context, src, dir string, id int) string {
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return src
	}
	tool, err := exec.LookPath(n.cfg.StripTool)
	if err != nil {
		n.logger.Warn("⚠️ Strip tool not found, bundling unstripped binary", "tool", n.cfg.StripTool, "binary", src)
		return src
	}

	dst := filepath.Join(dir, fmt.Sprintf("%d-%s", id, filepath.Base(src)))
	if err := copyFile(src, dst); err != nil {
		n.logger.Warn("⚠️ Failed to copy binary for stripping", "binary", src, "error", err)
		return src
	}
	out, err := exec.CommandContext(ctx, tool, dst).CombinedOutput()
	if err != nil {
		n.logger.Warn("⚠️ Strip failed, bundling unstripped binary", "binary", src,
			"error", err, "output", strings.TrimSpace(string(out)))
		return src
	}
	n.logger.Debug("✂️ Stripped binary", "binary", src)
	return dst
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, bundle.ExecutablePerms)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (n *Native) codec(compress bool) (uint8, error) {
	if !compress {
		return operations.OpNone, nil
	}
	packed, err := operations.Parse(n.cfg.Codec)
	if err != nil {
		return 0, err
	}
	ops := operations.Unpack(packed)
	if len(ops) != 1 || ops[0] == operations.OpTar {
		return 0, fmt.Errorf("codec must be a single compression operation, got %q", n.cfg.Codec)
	}
	return ops[0], nil
}

// launcherPath prefers the configured launcher, then one next to the running
// executable, then PATH.
func (n *Native) launcherPath() (string, error) {
	if n.cfg.Launcher != "" {
		if _, err := os.Stat(n.cfg.Launcher); err != nil {
			return "", fmt.Errorf("launcher: %w", err)
		}
		return n.cfg.Launcher, nil
	}

	name := LauncherName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", errors.New("launcher binary not found; set native.launcher or BUNDLESPEC_NATIVE_LAUNCHER")
}

func (n *Native) outputPath(spec *descriptor.BundleSpec, launcher string) string {
	dir := n.cfg.OutputDir
	if dir == "" {
		dir = "dist"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(spec.BaseDir, dir)
	}
	name := spec.ArtifactName()
	if strings.EqualFold(filepath.Ext(launcher), ".exe") {
		name += ".exe"
	}
	return filepath.Join(dir, name)
}
