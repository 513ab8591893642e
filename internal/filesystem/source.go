package filesystem

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	compression "github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil"
	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// scanFunc receives each file as it is read along with the fraction of the source
// consumed so far, in percent
type scanFunc func(f *File, percent int) error

// source enumerates and reads the files of one acquisition
type source interface {
	Format() string
	Scan(fn scanFunc) error
	// ReadFiles returns the content of every regular file whose Path is in paths
	ReadFiles(paths map[string]struct{}) (map[string][]byte, error)
	Close() error
}

// openSource probes path and returns the matching source
func openSource(fs afero.Fs, path string) (source, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrPathNotAccessible, "%s: %v", path, err)
	}
	if info.IsDir() {
		return &dirSource{fs: fs, root: path}, nil
	}

	format := compression.DetectArchiveFormat(fs, path)
	switch {
	case format == compression.FormatZip:
		z, err := backup.OpenZipArchive(fs, path)
		if err != nil {
			return nil, err
		}
		return &zipSource{zip: z}, nil
	case format.IsTarFamily():
		return &tarSource{fs: fs, path: path, size: info.Size()}, nil
	}
	return nil, errors.Wrapf(commonerrors.ErrFormat, "unknown filesystem acquisition format: %s", path)
}

// tarSource streams a plain or compressed tar. Nothing is kept in memory between calls.
type tarSource struct {
	fs   afero.Fs
	path string
	size int64
}

// countingReader tracks how far into the raw file the decompressor has read
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *tarSource) Format() string {
	return FormatTar
}

func (s *tarSource) each(fn func(hdr *tar.Header, tr *tar.Reader, consumed int64) (bool, error)) error {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return errors.Wrapf(commonerrors.ErrPathNotAccessible, "%s: %v", s.path, err)
	}
	defer f.Close()

	counter := &countingReader{r: f}
	rc, _, err := compression.NewAutoReader(counter)
	if err != nil {
		return errors.Wrap(err, "failed to open tar stream")
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(commonerrors.ErrCorruptArchive, "failed to load tar archive: %v", err)
		}
		more, err := fn(hdr, tr, counter.n)
		if err != nil || !more {
			return err
		}
	}
}

func (s *tarSource) Scan(fn scanFunc) error {
	return s.each(func(hdr *tar.Header, _ *tar.Reader, consumed int64) (bool, error) {
		path := memberPath(hdr.Name)
		if path == "/" {
			return true, nil
		}
		percent := 0
		if s.size > 0 {
			percent = int(min(consumed*100/s.size, 100))
		}
		return true, fn(&File{
			Path:    path,
			Size:    hdr.Size,
			IsDir:   hdr.Typeflag == tar.TypeDir,
			ModTime: hdr.ModTime,
		}, percent)
	})
}

func (s *tarSource) ReadFiles(paths map[string]struct{}) (map[string][]byte, error) {
	out := make(map[string][]byte, len(paths))
	err := s.each(func(hdr *tar.Header, tr *tar.Reader, _ int64) (bool, error) {
		if hdr.Typeflag == tar.TypeDir {
			return true, nil
		}
		path := memberPath(hdr.Name)
		if _, ok := paths[path]; !ok {
			return true, nil
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return false, errors.Wrapf(commonerrors.ErrCorruptArchive, "%s: %v", hdr.Name, err)
		}
		out[path] = data
		return len(out) < len(paths), nil
	})
	return out, err
}

func (s *tarSource) Close() error {
	return nil
}

type zipSource struct {
	zip *backup.ZipArchive
}

func (s *zipSource) Format() string {
	return FormatZip
}

func (s *zipSource) Scan(fn scanFunc) error {
	files, err := s.zip.Files()
	if err != nil {
		return err
	}
	for i, zf := range files {
		path := memberPath(zf.Name)
		if path == "/" {
			continue
		}
		err := fn(&File{
			Path:    path,
			Size:    int64(zf.UncompressedSize64),
			IsDir:   zf.FileInfo().IsDir(),
			ModTime: zf.Modified,
		}, (i+1)*100/len(files))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *zipSource) ReadFiles(paths map[string]struct{}) (map[string][]byte, error) {
	files, err := s.zip.Files()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(paths))
	for _, zf := range files {
		path := memberPath(zf.Name)
		if _, ok := paths[path]; !ok || zf.FileInfo().IsDir() {
			continue
		}
		data, err := backup.ReadZipFile(zf)
		if err != nil {
			return out, err
		}
		out[path] = data
	}
	return out, nil
}

func (s *zipSource) Close() error {
	return s.zip.Close()
}

type dirSource struct {
	fs   afero.Fs
	root string
}

func (s *dirSource) Format() string {
	return FormatDirectory
}

func (s *dirSource) Scan(fn scanFunc) error {
	return afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(commonerrors.ErrPathNotAccessible, "%s: %v", p, err)
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil || rel == "." {
			return nil
		}
		f := &File{
			Path:    "/" + filepath.ToSlash(rel),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}
		if !f.IsDir {
			f.Size = info.Size()
		}
		return fn(f, 0)
	})
}

func (s *dirSource) ReadFiles(paths map[string]struct{}) (map[string][]byte, error) {
	out := make(map[string][]byte, len(paths))
	for p := range paths {
		full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
		info, err := s.fs.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := afero.ReadFile(s.fs, full)
		if err != nil {
			return out, errors.Wrapf(commonerrors.ErrPathNotAccessible, "%s: %v", full, err)
		}
		out[p] = data
	}
	return out, nil
}

func (s *dirSource) Close() error {
	return nil
}
