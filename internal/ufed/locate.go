package ufed

import (
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/spf13/afero"
)

// BackupEntryName is where ALEX stores the adb backup inside its ZIP
const BackupEntryName = "backup/backup.ab"

// Location is a resolved extraction ZIP and the layout prefix of its entries
type Location struct {
	ZipPath string
	Prefix  string
}

// ABEntry returns the name of the backup.ab entry
func (l Location) ABEntry() string {
	return l.Prefix + BackupEntryName
}

// FindZip resolves path to an extraction ZIP. path may be the ZIP itself or a directory
// holding it, possibly one or more timestamped directories down.
func FindZip(fs afero.Fs, path string) (Location, bool) {
	if fsutil.FileExists(fs, path) {
		if prefix, ok := backupPrefix(fs, path); ok {
			return Location{ZipPath: path, Prefix: prefix}, true
		}
		return Location{}, false
	}
	if !fsutil.DirExists(fs, path) {
		return Location{}, false
	}

	names, err := fsutil.ListDir(fs, path)
	if err != nil {
		return Location{}, false
	}
	for _, name := range names {
		full := filepath.Join(path, name)
		if !strings.HasSuffix(strings.ToLower(name), ".zip") || !fsutil.FileExists(fs, full) {
			continue
		}
		if prefix, ok := backupPrefix(fs, full); ok {
			return Location{ZipPath: full, Prefix: prefix}, true
		}
	}
	for _, name := range names {
		full := filepath.Join(path, name)
		if !fsutil.DirExists(fs, full) {
			continue
		}
		if loc, ok := FindZip(fs, full); ok {
			return loc, true
		}
	}
	return Location{}, false
}

// backupPrefix returns the directory prefix under which backup/backup.ab sits in the ZIP
func backupPrefix(fs afero.Fs, zipPath string) (string, bool) {
	if !backup.IsZip(fs, zipPath) {
		return "", false
	}
	z, err := backup.OpenZipArchive(fs, zipPath)
	if err != nil {
		return "", false
	}
	defer z.Close()

	zf, ok := z.FindSuffix(BackupEntryName)
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(zf.Name, BackupEntryName), true
}
