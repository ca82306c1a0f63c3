package descriptor

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/mod/semver"
)

var dottedVersion = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,3}$`)

// Validate checks spec and returns the first failure as an *Error. Checks run
// in this order: entry point count, module list conflict, entry point
// existence, structural checks, binaries, data files.
func Validate(spec *BundleSpec) error {
	if spec == nil {
		return newError(ErrMalformedDescriptor, "", "", errors.New("nil descriptor"))
	}

	if n := len(spec.EntryPoints); n != 1 {
		return newError(ErrMissingEntryPoint, "analysis.entry_points", "",
			fmt.Errorf("exactly one entry point required, got %d", n))
	}

	if m, ok := moduleConflict(spec.ForcedModules, spec.ExcludedModules); ok {
		return newError(ErrModuleListConflict, "analysis.excluded_modules", m,
			errors.New("module is both forced and excluded"))
	}

	if err := checkEntryPoint(spec); err != nil {
		return err
	}

	if err := checkStructure(spec); err != nil {
		return err
	}

	if err := checkResources(spec, "analysis.binaries", spec.Binaries); err != nil {
		return err
	}
	return checkResources(spec, "analysis.data_files", spec.DataFiles)
}

// moduleConflict returns the first module, in sorted order, present in both lists.
func moduleConflict(forced, excluded []string) (string, bool) {
	if len(forced) == 0 || len(excluded) == 0 {
		return "", false
	}
	ex := make(map[string]bool, len(excluded))
	for _, m := range excluded {
		ex[m] = true
	}
	var shared []string
	for _, m := range forced {
		if ex[m] {
			shared = append(shared, m)
		}
	}
	if len(shared) == 0 {
		return "", false
	}
	sort.Strings(shared)
	return shared[0], true
}

func checkEntryPoint(spec *BundleSpec) error {
	const field = "analysis.entry_points[0]"

	entry := spec.EntryPoints[0]
	if strings.TrimSpace(entry) == "" {
		return newError(ErrMissingEntryPoint, field, "", errors.New("entry point is empty"))
	}
	info, err := os.Stat(spec.ResolvePath(entry))
	if err != nil {
		return newError(ErrMissingEntryPoint, field, entry, errors.New("entry point does not exist"))
	}
	if info.IsDir() {
		return newError(ErrMissingEntryPoint, field, entry, errors.New("entry point is a directory"))
	}
	return nil
}

func checkStructure(spec *BundleSpec) error {
	if strings.ContainsAny(spec.OutputName, `/\`) {
		return newError(ErrMalformedDescriptor, "executable.name", spec.OutputName,
			errors.New("name must not contain path separators"))
	}

	for i, m := range spec.ForcedModules {
		if strings.TrimSpace(m) == "" {
			return newError(ErrMalformedDescriptor, fmt.Sprintf("analysis.forced_modules[%d]", i), "",
				errors.New("module name is empty"))
		}
	}
	for i, m := range spec.ExcludedModules {
		if strings.TrimSpace(m) == "" {
			return newError(ErrMalformedDescriptor, fmt.Sprintf("analysis.excluded_modules[%d]", i), "",
				errors.New("module name is empty"))
		}
	}

	for i, p := range spec.SearchPaths {
		if strings.TrimSpace(p) == "" {
			return newError(ErrMalformedDescriptor, fmt.Sprintf("analysis.search_paths[%d]", i), "",
				errors.New("search path is empty"))
		}
	}

	groups := []struct {
		field     string
		resources []Resource
	}{
		{"analysis.binaries", spec.Binaries},
		{"analysis.data_files", spec.DataFiles},
	}
	for _, g := range groups {
		for i, r := range g.resources {
			if strings.TrimSpace(r.Source) == "" {
				return newError(ErrMalformedDescriptor, fmt.Sprintf("%s[%d].source", g.field, i), "",
					errors.New("source is empty"))
			}
			if err := checkDestination(r.Dest()); err != nil {
				return newError(ErrMalformedDescriptor, fmt.Sprintf("%s[%d].destination", g.field, i),
					r.Destination, err)
			}
		}
	}

	if spec.Version != "" {
		if !validVersion(spec.Version) {
			return newError(ErrMalformedDescriptor, "executable.version", spec.Version,
				errors.New("version must be dotted numeric, e.g. 1.2.3"))
		}
	}
	return nil
}

// checkDestination rejects absolute destinations and ones escaping the bundle root.
func checkDestination(dest string) error {
	slashed := filepath.ToSlash(dest)
	if path.IsAbs(slashed) || filepath.IsAbs(dest) || filepath.VolumeName(dest) != "" {
		return errors.New("destination must be relative")
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.New("destination escapes the bundle root")
	}
	return nil
}

func checkResources(spec *BundleSpec, field string, resources []Resource) error {
	for i, r := range resources {
		if _, err := spec.Expand(r.Source); err != nil {
			f := fmt.Sprintf("%s[%d].source", field, i)
			if errors.Is(err, doublestar.ErrBadPattern) {
				return newError(ErrMalformedDescriptor, f, r.Source, err)
			}
			return newError(ErrSourcePathNotFound, f, r.Source, nil)
		}
	}
	return nil
}

// validVersion accepts up to four dotted numeric parts without leading zeros.
// The first three must also form a valid semantic version core.
func validVersion(v string) bool {
	if !dottedVersion.MatchString(v) {
		return false
	}
	parts := strings.Split(v, ".")
	core := parts[:min(len(parts), 3)]
	for _, p := range parts[len(core):] {
		if len(p) > 1 && p[0] == '0' {
			return false
		}
	}
	return semver.IsValid("v" + strings.Join(core, "."))
}
