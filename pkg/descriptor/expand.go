package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsGlob reports whether source contains doublestar metacharacters.
func IsGlob(source string) bool {
	return strings.ContainsAny(source, "*?[{")
}

// Match is one filesystem path a resource source resolved to.
type Match struct {
	// Path is the absolute or BaseDir-anchored path on disk.
	Path string

	// Rel is Path relative to the glob's static prefix, slash separated. For
	// plain sources it is the base name.
	Rel string

	IsDir bool
}

// Expand resolves a resource source against BaseDir. Plain sources yield one
// match when they exist; glob sources yield every match in lexical order.
// A source that matches nothing returns an error wrapping os.ErrNotExist.
func (s *BundleSpec) Expand(source string) ([]Match, error) {
	resolved := s.ResolvePath(source)

	if !IsGlob(source) {
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, err
		}
		return []Match{{Path: resolved, Rel: filepath.Base(resolved), IsDir: info.IsDir()}}, nil
	}

	paths, err := doublestar.FilepathGlob(resolved)
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", source, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("glob %q matched nothing: %w", source, os.ErrNotExist)
	}
	sort.Strings(paths)

	base, _ := doublestar.SplitPattern(filepath.ToSlash(resolved))
	base = filepath.FromSlash(base)

	matches := make([]Match, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		matches = append(matches, Match{Path: p, Rel: filepath.ToSlash(rel), IsDir: info.IsDir()})
	}
	return matches, nil
}
