package filesystem

import (
	"strings"
	"sync"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/pkg/errors"
)

// Acquisition is a loaded filesystem capture with its alias index and, for iOS, the
// container GUID mappings
type Acquisition struct {
	Path       string
	Format     string
	Platform   backup.Platform
	Files      []*File
	Containers *Containers

	index *Index
	mu    sync.Mutex
	src   source
}

// NewAcquisition builds an acquisition over files already in memory. Content reads
// are unavailable.
func NewAcquisition(path, format string, platform backup.Platform, files []*File) *Acquisition {
	for _, f := range files {
		f.Platform = platform
	}
	return &Acquisition{
		Path:       path,
		Format:     format,
		Platform:   platform,
		Files:      files,
		Containers: NewContainers(),
		index:      NewIndex(files, platform),
	}
}

// Index returns the alias index
func (a *Acquisition) Index() *Index {
	return a.index
}

// FindFile looks a path up through the alias index
func (a *Acquisition) FindFile(path string) (*File, bool) {
	return a.index.Find(path)
}

// FindFilesInDirectory returns every file under dir
func (a *Acquisition) FindFilesInDirectory(dir string) []*File {
	return a.index.FindInDirectory(dir)
}

// CountFiles returns the number of regular files and directories
func (a *Acquisition) CountFiles() (files, dirs int) {
	for _, f := range a.Files {
		if f.IsDir {
			dirs++
		} else {
			files++
		}
	}
	return files, dirs
}

// RegularFiles returns the non-directory files in load order
func (a *Acquisition) RegularFiles() []*File {
	out := make([]*File, 0, len(a.Files))
	for _, f := range a.Files {
		if !f.IsDir {
			out = append(out, f)
		}
	}
	return out
}

// ReadContent returns the bytes of f, reopening the acquisition as needed
func (a *Acquisition) ReadContent(f *File) ([]byte, error) {
	if f.IsDir {
		return nil, errors.Wrapf(commonerrors.ErrNotRegularFile, "%s is a directory", f.Path)
	}
	contents, err := a.readFiles([]string{f.Path})
	if err != nil {
		return nil, err
	}
	data, ok := contents[f.Path]
	if !ok {
		return nil, errors.Wrap(commonerrors.ErrFileNotFound, f.Path)
	}
	return data, nil
}

// readFiles reads several files in one pass over the acquisition
func (a *Acquisition) readFiles(paths []string) (map[string][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.src == nil {
		return nil, errors.Wrapf(commonerrors.ErrNotRegularFile, "acquisition %s has no readable source", a.Path)
	}
	wanted := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		wanted[p] = struct{}{}
	}
	return a.src.ReadFiles(wanted)
}

// findSuffix returns the first file whose path ends with suffix
func (a *Acquisition) findSuffix(suffix string) (*File, bool) {
	for _, f := range a.Files {
		if !f.IsDir && strings.HasSuffix(f.Path, suffix) {
			return f, true
		}
	}
	return nil, false
}

// Close releases the underlying archive
func (a *Acquisition) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.src == nil {
		return nil
	}
	return a.src.Close()
}
