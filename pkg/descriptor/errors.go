package descriptor

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedDescriptor covers syntax errors, unknown fields, wrong types
	// and structurally invalid values.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrMissingEntryPoint is returned when zero or several entry points are
	// declared, or the single entry point is not a file.
	ErrMissingEntryPoint = errors.New("missing entry point")

	// ErrSourcePathNotFound is returned for data or binary sources that do not exist.
	ErrSourcePathNotFound = errors.New("source path not found")

	// ErrModuleListConflict is returned when a module is both forced and excluded.
	ErrModuleListConflict = errors.New("module list conflict")
)

var kindNames = []struct {
	err  error
	name string
}{
	{ErrMalformedDescriptor, "MalformedDescriptor"},
	{ErrMissingEntryPoint, "MissingEntryPoint"},
	{ErrSourcePathNotFound, "SourcePathNotFound"},
	{ErrModuleListConflict, "ModuleListConflict"},
}

// Error is a descriptor failure tied to a field and, usually, a path or value.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Field is the descriptor field in file notation, e.g. "analysis.data_files[1].source".
	Field string

	// Path is the offending path or value.
	Path string

	// Err is the underlying cause, if any.
	Err error
}

func newError(kind error, field, path string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Path: path, Err: cause}
}

// Error renders "<Kind>: <field>: <path>: <cause>" on one line.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(KindName(e.Kind))
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(e.Err.Error(), "\n", " "))
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns the taxonomy name for err, or "Error" when err carries no
// descriptor kind.
func KindName(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}
