// Package descriptor loads and validates bundle descriptors.
//
// A descriptor names the single entry script of an application, the data files
// and native binaries to embed next to it, the modules a packaging driver must
// force-include or exclude, and how the produced executable is configured.
// Load reads a descriptor file in any supported format; Validate checks the
// same invariants for a BundleSpec built in code.
package descriptor

import (
	"path/filepath"
	"strings"
)

// Resource is a (source, destination) pair embedded verbatim into the bundle.
// Source may be a doublestar glob; Destination is a directory relative to the
// bundle root, "." meaning the root itself.
type Resource struct {
	Source      string
	Destination string
}

// BundleSpec is the in-memory form of a bundle descriptor.
type BundleSpec struct {
	// EntryPoints must hold exactly one script.
	EntryPoints []string

	// SearchPaths are extra directories searched for importable modules.
	SearchPaths []string

	// Binaries are native dependencies copied verbatim.
	Binaries []Resource

	// DataFiles are non-code resources copied verbatim.
	DataFiles []Resource

	// ForcedModules must be bundled even when static analysis cannot see them.
	ForcedModules []string

	// ExcludedModules are omitted even when referenced.
	ExcludedModules []string

	OutputName string
	Console    bool
	Compress   bool
	Debug      bool
	Strip      bool

	// Icon, UACAdmin and VersionFile are handed to drivers that support them.
	Icon        string
	UACAdmin    bool
	VersionFile string

	// Version is an optional dotted numeric product version.
	Version string

	// Interpreter runs the entry point inside the bundle; empty means inferred.
	Interpreter string

	// BaseDir anchors relative paths. Load sets it to the descriptor's directory.
	BaseDir string
}

// EntryPoint returns the single entry script, or "" when the count is not one.
func (s *BundleSpec) EntryPoint() string {
	if len(s.EntryPoints) != 1 {
		return ""
	}
	return s.EntryPoints[0]
}

// ResolvePath anchors p at BaseDir unless it is already absolute.
func (s *BundleSpec) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.BaseDir, filepath.FromSlash(p))
}

// ArtifactName returns OutputName, or the entry point's base name without its
// extension when OutputName is empty.
func (s *BundleSpec) ArtifactName() string {
	if s.OutputName != "" {
		return s.OutputName
	}
	base := filepath.Base(filepath.FromSlash(s.EntryPoint()))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Modules returns ForcedModules minus ExcludedModules, deduplicated, in
// declaration order.
func (s *BundleSpec) Modules() []string {
	excluded := make(map[string]bool, len(s.ExcludedModules))
	for _, m := range s.ExcludedModules {
		excluded[m] = true
	}

	seen := make(map[string]bool, len(s.ForcedModules))
	var out []string
	for _, m := range s.ForcedModules {
		if excluded[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Dest returns r.Destination with "" normalized to ".".
func (r Resource) Dest() string {
	if r.Destination == "" {
		return "."
	}
	return r.Destination
}
