package ios

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/spf13/afero"
)

const (
	ManifestDB    = "Manifest.db"
	ManifestPlist = "Manifest.plist"
	InfoPlist     = "Info.plist"
)

// store reads named files from a backup directory or from a ZIP holding one
type store interface {
	ReadFile(name string) ([]byte, error)
	Size(name string) (int64, bool)
	Format() string
	Close() error
}

// StoredName returns where a file's content lives relative to the backup root
func StoredName(fileID string) string {
	if len(fileID) < 2 {
		return fileID
	}
	return fileID[:2] + "/" + fileID
}

type dirStore struct {
	fs   afero.Fs
	root string
}

func (s *dirStore) ReadFile(name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrPathNotAccessible, name, err)
	}
	return data, nil
}

func (s *dirStore) Size(name string) (int64, bool) {
	info, err := s.fs.Stat(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

func (s *dirStore) Format() string {
	return "directory"
}

func (s *dirStore) Close() error {
	return nil
}

type zipStore struct {
	zip    *backup.ZipArchive
	prefix string
}

func (s *zipStore) lookup(name string) (string, bool) {
	if _, ok := s.zip.Lookup(s.prefix + name); ok {
		return s.prefix + name, true
	}
	if _, ok := s.zip.Lookup(name); ok {
		return name, true
	}
	return "", false
}

func (s *zipStore) ReadFile(name string) ([]byte, error) {
	full, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileNotFound, name)
	}
	return s.zip.ReadEntry(full)
}

func (s *zipStore) Size(name string) (int64, bool) {
	full, ok := s.lookup(name)
	if !ok {
		return 0, false
	}
	zf, _ := s.zip.Lookup(full)
	return int64(zf.UncompressedSize64), true
}

func (s *zipStore) Format() string {
	return "zip"
}

func (s *zipStore) Close() error {
	return s.zip.Close()
}

// IsBackup reports whether path is a backup directory holding Manifest.db and
// Manifest.plist, or a ZIP containing both.
func IsBackup(fs afero.Fs, path string) bool {
	if fsutil.DirExists(fs, path) {
		return fsutil.FileExists(fs, filepath.Join(path, ManifestDB)) &&
			fsutil.FileExists(fs, filepath.Join(path, ManifestPlist))
	}
	if !backup.IsZip(fs, path) {
		return false
	}
	z, err := backup.OpenZipArchive(fs, path)
	if err != nil {
		return false
	}
	defer z.Close()
	_, hasDB := z.FindSuffix(ManifestDB)
	_, hasPlist := z.FindSuffix(ManifestPlist)
	return hasDB && hasPlist
}

func openStore(fs afero.Fs, path string) (store, error) {
	if fsutil.DirExists(fs, path) {
		return &dirStore{fs: fs, root: path}, nil
	}
	z, err := backup.OpenZipArchive(fs, path)
	if err != nil {
		return nil, err
	}
	return &zipStore{zip: z, prefix: zipPrefix(z)}, nil
}

// zipPrefix returns the directory inside the ZIP that holds Manifest.db
func zipPrefix(z *backup.ZipArchive) string {
	zf, ok := z.FindSuffix(ManifestDB)
	if !ok {
		return ""
	}
	return strings.TrimSuffix(zf.Name, ManifestDB)
}
