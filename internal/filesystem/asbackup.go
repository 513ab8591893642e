package filesystem

import (
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/pkg/errors"
)

// Synthetic domains of filesystem paths
const (
	SharedDomain          = "shared/0"
	HomeDomain            = "HomeDomain"
	AppContainerPrefix    = "AppContainer-"
	AppGroupDomainPrefix  = "AppGroup-"
	DetailsFilesystemFile = "from filesystem acquisition"
)

// ExtractDomain derives a (domain, relative path) grouping from a normalized path.
// Android groups by package or shared storage, iOS by container GUID or HomeDomain.
// Anything else is grouped by its first path segment.
func ExtractDomain(normalized string, platform backup.Platform) (string, string) {
	trimmed := strings.Trim(normalized, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.Split(trimmed, "/")
	rest := func(from int) string {
		if len(parts) <= from {
			return ""
		}
		return strings.Join(parts[from:], "/")
	}

	switch platform {
	case backup.PlatformAndroid:
		switch {
		case len(parts) >= 3 && parts[0] == "data" && parts[1] == "data":
			return parts[2], rest(3)
		case len(parts) >= 4 && parts[0] == "data" && parts[1] == "user":
			return parts[3], rest(4)
		case len(parts) >= 3 && parts[0] == "data" && parts[1] == "app":
			pkg := parts[2]
			if i := strings.LastIndex(pkg, "-"); i > 0 {
				pkg = pkg[:i]
			}
			return pkg, rest(3)
		case parts[0] == "sdcard":
			return SharedDomain, rest(1)
		case len(parts) >= 3 && parts[0] == "storage" && parts[1] == "emulated":
			return SharedDomain, rest(3)
		case len(parts) >= 3 && parts[0] == "data" && parts[1] == "media":
			return SharedDomain, rest(3)
		}

	case backup.PlatformIOS:
		stripped := parts
		if stripped[0] == "private" {
			stripped = stripped[1:]
		}
		if len(stripped) >= 6 && stripped[0] == "var" && stripped[1] == "mobile" && stripped[2] == "Containers" {
			switch {
			case stripped[3] == "Data" && stripped[4] == "Application":
				return AppContainerPrefix + stripped[5], strings.Join(stripped[6:], "/")
			case stripped[3] == "Shared" && stripped[4] == "AppGroup":
				return AppGroupDomainPrefix + stripped[5], strings.Join(stripped[6:], "/")
			}
		}
		if len(stripped) >= 2 && stripped[0] == "var" && stripped[1] == "mobile" {
			return HomeDomain, strings.Join(stripped[2:], "/")
		}
	}

	return parts[0], rest(1)
}

// AsBackup presents an acquisition as a backup so it can be compared against another
// acquisition. Every file keeps its acquisition path as file id.
func AsBackup(acq *Acquisition) *backup.Container {
	c := backup.NewContainer(acq.Path, backup.KindFilesystem, acq.Platform)
	c.SetFormat(acq.Format)
	c.SetDevice(backup.DeviceInfo{
		Name:   filepath.Base(acq.Path),
		Zipped: acq.Format == FormatZip,
	})

	for _, f := range acq.Files {
		domain, rel := ExtractDomain(f.NormalizedPath(), acq.Platform)
		e := &backup.Entry{
			FileID:       f.Path,
			Domain:       domain,
			RelativePath: rel,
			ModTime:      f.ModTime,
		}
		if f.IsDir {
			e.Mode = backup.ModeDirPerm
			e.Flags = backup.FlagDirectory
		} else {
			e.Mode = backup.ModeRegular
			e.Flags = backup.FlagFile
			e.Size = f.Size
			e.SetActualSize(f.Size)
			e.Source = backup.ContentSource{Kind: backup.SourceFilesystem, Name: f.Path}
		}
		c.AddEntry(e, DetailsFilesystemFile)
	}
	c.SetRowCount(len(acq.Files))
	c.SetReader(&acquisitionReader{acq: acq})
	return c
}

// acquisitionReader serves backup entries created by AsBackup
type acquisitionReader struct {
	acq *Acquisition
}

func (r *acquisitionReader) ReadContent(e *backup.Entry) ([]byte, error) {
	if e.Source.Kind != backup.SourceFilesystem {
		return nil, errors.Wrap(commonerrors.ErrNotRegularFile, e.FullDomainPath())
	}
	return r.acq.ReadContent(&File{Path: e.Source.Name, Platform: r.acq.Platform})
}

func (r *acquisitionReader) Close() error {
	return r.acq.Close()
}
