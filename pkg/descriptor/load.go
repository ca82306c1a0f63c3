package descriptor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Load reads, decodes and validates the descriptor at path. BaseDir is set to
// the descriptor's directory so relative sources resolve next to it.
func Load(path string) (*BundleSpec, error) {
	spec, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// Read decodes the descriptor at path without validating it.
func Read(path string) (*BundleSpec, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, newError(ErrMalformedDescriptor, "", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open descriptor: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDescriptorSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}
	if len(data) > MaxDescriptorSize {
		return nil, newError(ErrMalformedDescriptor, "", path,
			fmt.Errorf("descriptor larger than %d bytes", MaxDescriptorSize))
	}

	spec, err := Decode(data, format, path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve descriptor path: %w", err)
	}
	spec.BaseDir = filepath.Dir(abs)
	return spec, nil
}
