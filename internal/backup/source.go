package backup

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
)

// SourceKind tags where the bytes of an entry live
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceTarMember
	SourceGzipTarMember
	SourceZipEntry
	SourceStoredFile
	SourceFilesystem
)

func (k SourceKind) String() string {
	switch k {
	case SourceTarMember:
		return "tar"
	case SourceGzipTarMember:
		return "gzip-tar"
	case SourceZipEntry:
		return "zip"
	case SourceStoredFile:
		return "stored-file"
	case SourceFilesystem:
		return "filesystem"
	default:
		return "none"
	}
}

// ContentSource locates an entry's bytes. Handle names the archive inside the container
// that owns the member, Name is the member name within it.
type ContentSource struct {
	Kind   SourceKind
	Handle string
	Name   string
}

// TarSource builds a source for a member of a plain in-memory tar
func TarSource(handle, member string) ContentSource {
	return ContentSource{Kind: SourceTarMember, Handle: handle, Name: member}
}

// GzipTarSource builds a source for a member of a gzip-compressed tar
func GzipTarSource(handle, member string) ContentSource {
	return ContentSource{Kind: SourceGzipTarMember, Handle: handle, Name: member}
}

// ZipSource builds a source for an entry of the container ZIP
func ZipSource(name string) ContentSource {
	return ContentSource{Kind: SourceZipEntry, Name: name}
}

// ContentReader resolves an entry to its bytes. Implementations may be invoked any
// number of times and reopen their backing archive on demand.
type ContentReader interface {
	ReadContent(e *Entry) ([]byte, error)
	Close() error
}

// ArchiveReader dispatches tar and zip sources to the archives a container owns
type ArchiveReader struct {
	mu   sync.RWMutex
	tars map[string]*TarArchive
	zip  *ZipArchive
}

// NewArchiveReader creates an empty ArchiveReader
func NewArchiveReader() *ArchiveReader {
	return &ArchiveReader{tars: make(map[string]*TarArchive)}
}

// AddTar registers an in-memory tar under handle
func (r *ArchiveReader) AddTar(handle string, archive *TarArchive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tars[handle] = archive
}

// SetZip registers the container ZIP
func (r *ArchiveReader) SetZip(z *ZipArchive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zip = z
}

// ReadContent implements ContentReader
func (r *ArchiveReader) ReadContent(e *Entry) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch e.Source.Kind {
	case SourceTarMember, SourceGzipTarMember:
		archive, ok := r.tars[e.Source.Handle]
		if !ok {
			return nil, fmt.Errorf("%w: no tar registered for %q", errors.ErrFileNotFound, e.Source.Handle)
		}
		return archive.ReadMember(e.Source.Name)
	case SourceZipEntry:
		if r.zip == nil {
			return nil, fmt.Errorf("%w: no zip registered", errors.ErrFileNotFound)
		}
		return r.zip.ReadEntry(e.Source.Name)
	default:
		return nil, fmt.Errorf("%w: unsupported source %s for %s", errors.ErrNotRegularFile, e.Source.Kind, e.FileID)
	}
}

// Close releases the container ZIP handle. Tar buffers are released with the reader.
func (r *ArchiveReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zip != nil {
		return r.zip.Close()
	}
	return nil
}
