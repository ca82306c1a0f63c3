package bundle

// Metadata is the JSON document stored after the launcher.
type Metadata struct {
	Format      string        `json:"format"`
	Package     PackageInfo   `json:"package"`
	Entry       EntryInfo     `json:"entry"`
	Options     OptionsInfo   `json:"options"`
	SearchPaths []string      `json:"search_paths,omitempty"`
	Modules     ModuleInfo    `json:"modules"`
	Slots       []SlotInfo    `json:"slots"`
	Build       *BuildInfo    `json:"build,omitempty"`
	Launcher    *LauncherInfo `json:"launcher,omitempty"`
}

type PackageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// EntryInfo names the entry script relative to the extraction root.
type EntryInfo struct {
	Path        string `json:"path"`
	Interpreter string `json:"interpreter,omitempty"`
}

type OptionsInfo struct {
	Console    bool `json:"console"`
	Compressed bool `json:"compressed"`
	Debug      bool `json:"debug"`
	Stripped   bool `json:"stripped"`
}

// ModuleInfo records the module resolution outcome.
type ModuleInfo struct {
	Bundled  []string `json:"bundled,omitempty"`
	External []string `json:"external,omitempty"`
	Excluded []string `json:"excluded,omitempty"`
}

type SlotInfo struct {
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	Source      string `json:"source,omitempty"`
	Target      string `json:"target"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
	Operations  string `json:"operations"`
	Permissions string `json:"permissions,omitempty"`
}

type BuildInfo struct {
	Tool        string `json:"tool"`
	ToolVersion string `json:"tool_version"`
	Timestamp   string `json:"timestamp"`
	Platform    string `json:"platform"`
	Host        string `json:"host,omitempty"`
}

type LauncherInfo struct {
	Size      int64  `json:"size"`
	Digest    string `json:"digest"`
	Subsystem string `json:"subsystem,omitempty"`
}
