package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/spf13/afero"
)

// ZipArchive gives random access to a ZIP on an afero filesystem. The handle is opened
// lazily and reopened after Close.
type ZipArchive struct {
	fs   afero.Fs
	path string

	mu     sync.Mutex
	file   afero.File
	reader *zip.Reader
	byName map[string]*zip.File
}

// OpenZipArchive opens and validates the ZIP at path
func OpenZipArchive(fs afero.Fs, path string) (*ZipArchive, error) {
	z := &ZipArchive{fs: fs, path: path}
	if _, err := z.Reader(); err != nil {
		return nil, err
	}
	return z, nil
}

// Path returns the location of the ZIP
func (z *ZipArchive) Path() string {
	return z.path
}

// Reader returns the open zip.Reader, opening the file if needed
func (z *ZipArchive) Reader() (*zip.Reader, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.open()
}

func (z *ZipArchive) open() (*zip.Reader, error) {
	if z.reader != nil {
		return z.reader, nil
	}

	f, err := z.fs.Open(z.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrPathNotAccessible, z.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrPathNotAccessible, z.path, err)
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrFormat, z.path, err)
	}

	z.byName = make(map[string]*zip.File, len(r.File))
	for _, zf := range r.File {
		z.byName[zf.Name] = zf
	}
	z.file = f
	z.reader = r
	return r, nil
}

// Files returns the ZIP's entries in central directory order
func (z *ZipArchive) Files() ([]*zip.File, error) {
	r, err := z.Reader()
	if err != nil {
		return nil, err
	}
	return r.File, nil
}

// Lookup finds an entry by exact name
func (z *ZipArchive) Lookup(name string) (*zip.File, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if _, err := z.open(); err != nil {
		return nil, false
	}
	zf, ok := z.byName[name]
	return zf, ok
}

// FindSuffix returns the first entry whose name is suffix or ends with "/"+suffix
func (z *ZipArchive) FindSuffix(suffix string) (*zip.File, bool) {
	files, err := z.Files()
	if err != nil {
		return nil, false
	}
	for _, zf := range files {
		if zf.Name == suffix || strings.HasSuffix(zf.Name, "/"+suffix) {
			return zf, true
		}
	}
	return nil, false
}

// ReadEntry returns the content of the named entry
func (z *ZipArchive) ReadEntry(name string) ([]byte, error) {
	zf, ok := z.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: zip entry %s", errors.ErrFileNotFound, name)
	}
	return ReadZipFile(zf)
}

// Close releases the file handle. Later reads reopen it.
func (z *ZipArchive) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.file == nil {
		return nil
	}
	err := z.file.Close()
	z.file = nil
	z.reader = nil
	z.byName = nil
	return err
}

// ReadZipFile reads a whole ZIP entry
func ReadZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptArchive, zf.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptArchive, zf.Name, err)
	}
	return data, nil
}

// IsZip reports whether path is a readable ZIP archive
func IsZip(fs afero.Fs, path string) bool {
	f, err := fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	_, err = zip.NewReader(f, info.Size())
	return err == nil
}
