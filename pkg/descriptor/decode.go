package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var cueSchema []byte

// MaxDescriptorSize bounds descriptor files read by Load.
const MaxDescriptorSize = 4 << 20

// Format names a descriptor encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCUE  Format = "cue"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML, FormatCUE}

// ParseFormat accepts a format name or a file extension with or without the dot.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("unsupported descriptor format %q", s)
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("descriptor %s has no extension", filepath.Base(path))
	}
	return ParseFormat(ext)
}

// Decode parses descriptor bytes. filename is only used in messages. The
// result is not validated; call Validate.
func Decode(data []byte, format Format, filename string) (*BundleSpec, error) {
	if filename == "" {
		filename = "<input>"
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newError(ErrMalformedDescriptor, "", filename, errors.New("empty descriptor"))
	}

	var (
		doc *document
		err error
	)
	switch format {
	case FormatJSON:
		doc, err = decodeJSON(data)
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatTOML:
		doc, err = decodeTOML(data)
	case FormatCUE:
		return decodeCUE(data, filename)
	default:
		err = fmt.Errorf("unsupported descriptor format %q", format)
	}
	if err != nil {
		return nil, newError(ErrMalformedDescriptor, "", filename, err)
	}
	return doc.toSpec(), nil
}

func decodeJSON(data []byte) (*document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top-level object")
	}
	return &doc, nil
}

func decodeYAML(data []byte) (*document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeTOML(data []byte) (*document, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, errors.New(strings.TrimSpace(strict.String()))
		}
		return nil, err
	}
	return &doc, nil
}

// decodeCUE follows the compile-schema, unify, validate, decode flow.
func decodeCUE(data []byte, filename string) (*BundleSpec, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(cueSchema)
	if schema.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile descriptor schema: %w", schema.Err())
	}
	root := schema.LookupPath(cue.ParsePath("#Bundle"))
	if root.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition #Bundle not found: %w", root.Err())
	}

	user := ctx.CompileBytes(data, cue.Filename(filename))
	if user.Err() != nil {
		return nil, cueError(user.Err(), filename)
	}

	unified := root.Unify(user)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(err, filename)
	}

	var doc document
	if err := unified.Decode(&doc); err != nil {
		return nil, cueError(err, filename)
	}
	return doc.toSpec(), nil
}

// cueError reports the first CUE error with its field path.
func cueError(err error, filename string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return newError(ErrMalformedDescriptor, "", filename, err)
	}

	first := errs[0]
	full := cueerrors.Path(first)
	field := formatCUEPath(fieldPath(full))
	msg := first.Error()
	if len(full) > 0 {
		msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, strings.Join(full, ".")), ":"))
	}
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, len(errs)-1)
	}
	return newError(ErrMalformedDescriptor, field, filename, errors.New(msg))
}

// fieldPath drops the schema definitions a unified value is reached through,
// so "#Bundle.executable.console" becomes "executable.console".
func fieldPath(path []string) []string {
	for len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	return path
}

// formatCUEPath renders ["analysis", "data_files", "0", "source"] as
// "analysis.data_files[0].source".
func formatCUEPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
