package backup

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
)

// TarMember is one indexed member of a TarArchive
type TarMember struct {
	Header *tar.Header
	offset int64
}

// Name returns the member name as stored in the archive
func (m *TarMember) Name() string {
	return m.Header.Name
}

// IsDir reports whether the member is a directory
func (m *TarMember) IsDir() bool {
	return m.Header.Typeflag == tar.TypeDir
}

// IsRegular reports whether the member carries file content
func (m *TarMember) IsRegular() bool {
	return m.Header.Typeflag == tar.TypeReg || m.Header.Typeflag == tar.TypeRegA
}

// TarArchive is a tar stream held in memory and indexed by member name. It owns the
// buffer; member reads slice it at the recorded data offsets.
type TarArchive struct {
	data    []byte
	members []*TarMember
	byName  map[string]*TarMember
}

// NewTarArchive indexes every member of data. Duplicate names keep their first position
// and their last header.
func NewTarArchive(data []byte) (*TarArchive, error) {
	archive := &TarArchive{
		data:   data,
		byName: make(map[string]*TarMember),
	}

	br := bytes.NewReader(data)
	tr := tar.NewReader(br)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse tar data: %v", errors.ErrCorruptArchive, err)
		}

		member := &TarMember{Header: hdr, offset: br.Size() - int64(br.Len())}
		if existing, ok := archive.byName[hdr.Name]; ok {
			*existing = *member
			continue
		}
		archive.byName[hdr.Name] = member
		archive.members = append(archive.members, member)
	}
	return archive, nil
}

// Members returns the unique members in archive order
func (a *TarArchive) Members() []*TarMember {
	return a.members
}

// Len returns the number of unique members
func (a *TarArchive) Len() int {
	return len(a.members)
}

// Lookup finds a member by its stored name
func (a *TarArchive) Lookup(name string) (*TarMember, bool) {
	m, ok := a.byName[name]
	return m, ok
}

// ReadMember returns a copy of a regular member's content
func (a *TarArchive) ReadMember(name string) ([]byte, error) {
	m, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: tar member %s", errors.ErrFileNotFound, name)
	}
	if !m.IsRegular() {
		return nil, fmt.Errorf("%w: tar member %s", errors.ErrNotRegularFile, name)
	}
	end := m.offset + m.Header.Size
	if m.offset < 0 || end > int64(len(a.data)) {
		return nil, fmt.Errorf("%w: tar member %s extends past end of archive", errors.ErrCorruptArchive, name)
	}
	out := make([]byte, m.Header.Size)
	copy(out, a.data[m.offset:end])
	return out, nil
}
