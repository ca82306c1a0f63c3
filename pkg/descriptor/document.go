package descriptor

// document is the on-disk layout shared by every descriptor format.
type document struct {
	Analysis   analysisSection   `json:"analysis" yaml:"analysis" toml:"analysis"`
	Executable executableSection `json:"executable" yaml:"executable" toml:"executable"`
}

type analysisSection struct {
	EntryPoints     []string        `json:"entry_points" yaml:"entry_points" toml:"entry_points"`
	SearchPaths     []string        `json:"search_paths,omitempty" yaml:"search_paths,omitempty" toml:"search_paths,omitempty"`
	Binaries        []resourceEntry `json:"binaries,omitempty" yaml:"binaries,omitempty" toml:"binaries,omitempty"`
	DataFiles       []resourceEntry `json:"data_files,omitempty" yaml:"data_files,omitempty" toml:"data_files,omitempty"`
	ForcedModules   []string        `json:"forced_modules,omitempty" yaml:"forced_modules,omitempty" toml:"forced_modules,omitempty"`
	ExcludedModules []string        `json:"excluded_modules,omitempty" yaml:"excluded_modules,omitempty" toml:"excluded_modules,omitempty"`
}

type resourceEntry struct {
	Source      string `json:"source" yaml:"source" toml:"source"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty" toml:"destination,omitempty"`
}

type executableSection struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Console     *bool  `json:"console,omitempty" yaml:"console,omitempty" toml:"console,omitempty"`
	Compress    *bool  `json:"compress,omitempty" yaml:"compress,omitempty" toml:"compress,omitempty"`
	Debug       *bool  `json:"debug,omitempty" yaml:"debug,omitempty" toml:"debug,omitempty"`
	Strip       *bool  `json:"strip,omitempty" yaml:"strip,omitempty" toml:"strip,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	UACAdmin    *bool  `json:"uac_admin,omitempty" yaml:"uac_admin,omitempty" toml:"uac_admin,omitempty"`
	VersionFile string `json:"version_file,omitempty" yaml:"version_file,omitempty" toml:"version_file,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty" toml:"interpreter,omitempty"`
}

// Defaults applied to booleans a descriptor leaves unset.
const (
	DefaultConsole  = true
	DefaultCompress = true
	DefaultDebug    = false
	DefaultStrip    = false
)

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func boolPtr(b bool) *bool {
	return &b
}

func (d *document) toSpec() *BundleSpec {
	a, x := d.Analysis, d.Executable
	return &BundleSpec{
		EntryPoints:     a.EntryPoints,
		SearchPaths:     a.SearchPaths,
		Binaries:        toResources(a.Binaries),
		DataFiles:       toResources(a.DataFiles),
		ForcedModules:   a.ForcedModules,
		ExcludedModules: a.ExcludedModules,
		OutputName:      x.Name,
		Console:         boolOr(x.Console, DefaultConsole),
		Compress:        boolOr(x.Compress, DefaultCompress),
		Debug:           boolOr(x.Debug, DefaultDebug),
		Strip:           boolOr(x.Strip, DefaultStrip),
		Icon:            x.Icon,
		UACAdmin:        boolOr(x.UACAdmin, false),
		VersionFile:     x.VersionFile,
		Version:         x.Version,
		Interpreter:     x.Interpreter,
	}
}

// fromSpec writes every boolean explicitly so encoded descriptors do not
// depend on defaults.
func fromSpec(s *BundleSpec) *document {
	return &document{
		Analysis: analysisSection{
			EntryPoints:     s.EntryPoints,
			SearchPaths:     s.SearchPaths,
			Binaries:        fromResources(s.Binaries),
			DataFiles:       fromResources(s.DataFiles),
			ForcedModules:   s.ForcedModules,
			ExcludedModules: s.ExcludedModules,
		},
		Executable: executableSection{
			Name:        s.OutputName,
			Console:     boolPtr(s.Console),
			Compress:    boolPtr(s.Compress),
			Debug:       boolPtr(s.Debug),
			Strip:       boolPtr(s.Strip),
			Icon:        s.Icon,
			UACAdmin:    boolPtr(s.UACAdmin),
			VersionFile: s.VersionFile,
			Version:     s.Version,
			Interpreter: s.Interpreter,
		},
	}
}

func toResources(entries []resourceEntry) []Resource {
	if entries == nil {
		return nil
	}
	out := make([]Resource, len(entries))
	for i, e := range entries {
		out[i] = Resource{Source: e.Source, Destination: e.Destination}
	}
	return out
}

func fromResources(resources []Resource) []resourceEntry {
	if resources == nil {
		return nil
	}
	out := make([]resourceEntry, len(resources))
	for i, r := range resources {
		out[i] = resourceEntry{Source: r.Source, Destination: r.Destination}
	}
	return out
}
