package workenv

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Marker is written once every slot has been extracted.
type Marker struct {
	Timestamp time.Time `json:"timestamp"`
	Package   string    `json:"package"`
	Version   string    `json:"version,omitempty"`
	Checksum  string    `json:"checksum"`
	PID       int       `json:"pid"`
}

// MarkComplete records a finished extraction.
func (p *Paths) MarkComplete(pkg, version, checksum string) error {
	data, err := json.MarshalIndent(Marker{
		Timestamp: time.Now().UTC(),
		Package:   pkg,
		Version:   version,
		Checksum:  checksum,
		PID:       os.Getpid(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.Meta(), dirPerms); err != nil {
		return err
	}
	if err := os.WriteFile(p.CompleteFile(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// IsComplete reports whether a finished extraction of the same package,
// version and checksum exists.
func (p *Paths) IsComplete(pkg, version, checksum string) bool {
	data, err := os.ReadFile(p.CompleteFile())
	if err != nil {
		return false
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	if m.Package != pkg || m.Version != version || m.Checksum != checksum {
		return false
	}
	info, err := os.Stat(p.Workenv())
	return err == nil && info.IsDir()
}
