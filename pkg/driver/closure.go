package driver

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	importLine = regexp.MustCompile(`^\s*import\s+(.+)$`)
	fromLine   = regexp.MustCompile(`^\s*from\s+([\w\.]+)\s+import\b`)
	identifier = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// LocalModule is a top-level module found on disk.
type LocalModule struct {
	Name string

	// Path is the .py file, or the package directory.
	Path string

	IsPackage bool

	// Omit lists slash-separated paths below a package directory that hold
	// excluded submodules.
	Omit []string
}

// Closure is the outcome of module resolution.
type Closure struct {
	// Bundled are local modules reachable from the entry point or forced,
	// sorted by name.
	Bundled []LocalModule

	// External are forced modules not found locally. They must come from
	// the target interpreter's environment.
	External []string

	// Excluded are excluded modules that the sources referenced.
	Excluded []string
}

// Names returns the bundled module names.
func (c *Closure) Names() []string {
	names := make([]string, len(c.Bundled))
	for i, m := range c.Bundled {
		names[i] = m.Name
	}
	return names
}

// ResolveModules walks the import graph from entry. Modules are looked up by
// top-level name in the entry's directory, then in searchDirs. Forced modules
// are added, excluded modules are never followed. Exclusions match full
// dotted names: excluding "pkg.sub" drops that submodule from a local package
// but keeps the rest of "pkg".
func ResolveModules(entry string, searchDirs, forced, excluded []string) (*Closure, error) {
	roots := append([]string{filepath.Dir(entry)}, searchDirs...)

	skip := make(map[string]bool, len(excluded))
	for _, m := range excluded {
		skip[m] = true
	}

	r := &resolver{
		roots:    roots,
		skip:     skip,
		found:    map[string]LocalModule{},
		missing:  map[string]bool{},
		excluded: map[string]bool{},
		scanned:  map[string]bool{},
	}

	if err := r.scanFile(entry); err != nil {
		return nil, err
	}

	var external []string
	for _, m := range forced {
		if r.isExcluded(m) {
			continue
		}
		ok, err := r.visit(topLevel(m))
		if err != nil {
			return nil, err
		}
		if !ok {
			external = append(external, m)
		}
	}

	c := &Closure{External: dedupe(external)}
	for _, m := range r.found {
		c.Bundled = append(c.Bundled, m)
	}
	sort.Slice(c.Bundled, func(i, j int) bool { return c.Bundled[i].Name < c.Bundled[j].Name })
	for m := range r.excluded {
		c.Excluded = append(c.Excluded, m)
	}
	sort.Strings(c.Excluded)
	return c, nil
}

type resolver struct {
	roots    []string
	skip     map[string]bool
	found    map[string]LocalModule
	missing  map[string]bool
	excluded map[string]bool
	scanned  map[string]bool
}

// visit resolves and scans a top-level module; false means not found locally.
func (r *resolver) visit(name string) (bool, error) {
	if r.skip[name] {
		r.excluded[name] = true
		return false, nil
	}
	if _, ok := r.found[name]; ok {
		return true, nil
	}
	if r.missing[name] {
		return false, nil
	}

	m, ok := r.lookup(name)
	if !ok {
		r.missing[name] = true
		return false, nil
	}

	if !m.IsPackage {
		r.found[name] = m
		return true, r.scanFile(m.Path)
	}

	var scan []string
	err := filepath.WalkDir(m.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == m.Path {
			return nil
		}
		if d.IsDir() && d.Name() == "__pycache__" {
			return filepath.SkipDir
		}
		if !d.IsDir() && !strings.HasSuffix(p, ".py") {
			return nil
		}
		rel, err := filepath.Rel(m.Path, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		module := submoduleName(name, rel)
		if module != name && r.isExcluded(module) {
			r.excluded[module] = true
			m.Omit = append(m.Omit, rel)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			scan = append(scan, p)
		}
		return nil
	})
	if err != nil {
		return true, err
	}
	r.found[name] = m

	for _, p := range scan {
		if err := r.scanFile(p); err != nil {
			return true, err
		}
	}
	return true, nil
}

// isExcluded reports whether module or one of its parent packages is excluded.
func (r *resolver) isExcluded(module string) bool {
	for {
		if r.skip[module] {
			return true
		}
		i := strings.LastIndexByte(module, '.')
		if i < 0 {
			return false
		}
		module = module[:i]
	}
}

// submoduleName maps "sub/extra.py" inside package pkg to "pkg.sub.extra".
func submoduleName(pkg, rel string) string {
	rel = strings.TrimSuffix(rel, ".py")
	if path.Base(rel) == "__init__" {
		rel = path.Dir(rel)
	}
	if rel == "." {
		return pkg
	}
	return pkg + "." + strings.ReplaceAll(rel, "/", ".")
}

func (r *resolver) lookup(name string) (LocalModule, bool) {
	for _, root := range r.roots {
		file := filepath.Join(root, name+".py")
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return LocalModule{Name: name, Path: file}, true
		}
		pkg := filepath.Join(root, name)
		if info, err := os.Stat(filepath.Join(pkg, "__init__.py")); err == nil && !info.IsDir() {
			return LocalModule{Name: name, Path: pkg, IsPackage: true}, true
		}
	}
	return LocalModule{}, false
}

func (r *resolver) scanFile(path string) error {
	if r.scanned[path] {
		return nil
	}
	r.scanned[path] = true

	names, err := ScanImports(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := r.visit(name); err != nil {
			return err
		}
	}
	return nil
}

// ScanImports returns the top-level names imported by a Python source file,
// in order of first appearance. Relative imports are skipped.
func ScanImports(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to scan imports: %w", err)
	}
	defer f.Close()

	var names []string
	seen := map[string]bool{}
	add := func(module string) {
		if strings.HasPrefix(module, ".") {
			return
		}
		name := topLevel(module)
		if identifier.MatchString(name) && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if m := fromLine.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := importLine.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(strings.TrimSuffix(strings.TrimSpace(m[1]), ";"), ",") {
				fields := strings.Fields(part)
				if len(fields) > 0 {
					add(fields[0])
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return names, nil
}

func topLevel(module string) string {
	if i := strings.IndexByte(module, '.'); i >= 0 {
		return module[:i]
	}
	return module
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
