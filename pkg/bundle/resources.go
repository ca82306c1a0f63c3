package bundle

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/tc-hib/winres"
	"github.com/tc-hib/winres/version"
)

// Resources are the PE resources written into Windows launchers.
type Resources struct {
	// IconPath is an .ico file, or a .png resized into an icon group.
	IconPath string

	// RequireAdmin embeds a manifest requesting elevation.
	RequireAdmin bool

	// Version fills the file and product version resource.
	Version     string
	ProductName string
}

// Empty reports whether no resource would be written.
func (r *Resources) Empty() bool {
	return r.IconPath == "" && !r.RequireAdmin && r.Version == ""
}

var iconSizes = []int{16, 32, 48, 64, 128, 256}

// Apply returns a copy of exe carrying the resources. Existing resources of
// the launcher are preserved.
func (r *Resources) Apply(exe []byte) ([]byte, error) {
	rs, err := winres.LoadFromEXE(bytes.NewReader(exe))
	if err != nil {
		rs = &winres.ResourceSet{}
	}

	if r.IconPath != "" {
		icon, err := loadIcon(r.IconPath)
		if err != nil {
			return nil, err
		}
		if err := rs.SetIcon(winres.ID(1), icon); err != nil {
			return nil, fmt.Errorf("failed to set icon: %w", err)
		}
	}

	if r.RequireAdmin {
		rs.SetManifest(winres.AppManifest{ExecutionLevel: winres.RequireAdministrator})
	}

	if r.Version != "" {
		var vi version.Info
		vi.SetFileVersion(r.Version)
		vi.SetProductVersion(r.Version)
		if r.ProductName != "" {
			if err := vi.Set(version.LangDefault, version.ProductName, r.ProductName); err != nil {
				return nil, fmt.Errorf("failed to set product name: %w", err)
			}
			if err := vi.Set(version.LangDefault, version.OriginalFilename, r.ProductName+".exe"); err != nil {
				return nil, fmt.Errorf("failed to set original filename: %w", err)
			}
		}
		rs.SetVersionInfo(vi)
	}

	var out bytes.Buffer
	if err := rs.WriteToEXE(&out, bytes.NewReader(exe)); err != nil {
		return nil, fmt.Errorf("failed to write resources: %w", err)
	}
	return out.Bytes(), nil
}

func loadIcon(path string) (*winres.Icon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open icon: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".ico") {
		icon, err := winres.LoadICO(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load icon %s: %w", path, err)
		}
		return icon, nil
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon image %s: %w", path, err)
	}
	icon, err := winres.NewIconFromResizedImage(img, iconSizes)
	if err != nil {
		return nil, fmt.Errorf("failed to build icon from %s: %w", path, err)
	}
	return icon, nil
}
