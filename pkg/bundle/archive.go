package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TarDir archives the tree under root with sorted entries, zero owners and
// the given modification time, so equal trees produce equal bytes. Paths in
// omit, relative to root and slash-separated, are skipped with their subtrees.
func TarDir(root string, mtime time.Time, omit ...string) ([]byte, error) {
	skip := make(map[string]bool, len(omit))
	for _, o := range omit {
		skip[path.Clean(o)] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if len(skip) > 0 {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			if skip[filepath.ToSlash(rel)] {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, err
		}

		hdr := &tar.Header{
			Name:    filepath.ToSlash(rel),
			ModTime: mtime,
			Format:  tar.FormatPAX,
		}
		if info.IsDir() {
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
			hdr.Mode = DirPerms
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, err
			}
			continue
		}

		hdr.Typeflag = tar.TypeReg
		hdr.Size = info.Size()
		hdr.Mode = FilePerms
		if info.Mode()&0o111 != 0 {
			hdr.Mode = ExecutablePerms
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write header for %s: %w", rel, err)
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", rel, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Untar extracts a tar stream below dest. Entries escaping dest and links are
// rejected.
func Untar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := SafeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, DirPerms); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), DirPerms); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode)&fs.ModePerm)
			if err != nil {
				return err
			}
			_, err = io.Copy(f, tr)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
		default:
			return fmt.Errorf("unsupported archive entry %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
}

// SafeJoin joins a slash-separated relative name onto dir, refusing names
// that would land outside dir.
func SafeJoin(dir, name string) (string, error) {
	slashed := filepath.ToSlash(name)
	if path.IsAbs(slashed) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("path %q is absolute", name)
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes extraction root", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}
