package descriptor

import (
	"encoding/json"
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/format"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Encode writes spec in the given format. BaseDir is not part of the file
// layout and is dropped.
func Encode(w io.Writer, spec *BundleSpec, f Format) error {
	doc := fromSpec(spec)

	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()

	case FormatTOML:
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		return enc.Encode(doc)

	case FormatCUE:
		v := cuecontext.New().Encode(doc)
		if v.Err() != nil {
			return fmt.Errorf("failed to encode descriptor as CUE: %w", v.Err())
		}
		out, err := format.Node(v.Syntax(cue.Final(), cue.Concrete(true)))
		if err != nil {
			return fmt.Errorf("failed to format CUE descriptor: %w", err)
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
		_, err = io.WriteString(w, "\n")
		return err
	}
	return fmt.Errorf("unsupported descriptor format %q", f)
}
