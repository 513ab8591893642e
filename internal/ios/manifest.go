package ios

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/plistutil"
	"github.com/spf13/afero"
)

const filesQuery = `SELECT fileID, domain, relativePath, flags, file FROM Files`

// FileRow is one row of the Manifest.db Files table
type FileRow struct {
	FileID       string
	Domain       string
	RelativePath string
	Flags        int
	Blob         []byte
}

// FileMeta is the metadata decoded from a Files row's property list blob
type FileMeta struct {
	Size            int64
	Mode            uint32
	ModTime         time.Time
	ProtectionClass uint32
	EncryptionKey   []byte
	Keys            []string
}

// ParseFileBlob decodes the MBFile property list stored with each Files row. Archived
// and flat dictionaries are both accepted.
func ParseFileBlob(blob []byte) (*FileMeta, error) {
	raw, err := plistutil.DecodePlist(blob)
	if err != nil {
		return nil, err
	}
	file, ok := plistutil.ResolveKeyedArchive(raw)
	if !ok {
		return nil, fmt.Errorf("%w: malformed keyed archive", errors.ErrUnsupportedFile)
	}

	meta := &FileMeta{}
	for k := range file {
		if !strings.HasPrefix(k, "$") {
			meta.Keys = append(meta.Keys, k)
		}
	}
	sort.Strings(meta.Keys)

	if size, ok := plistutil.GetInt64(file, "Size"); ok {
		meta.Size = size
	}
	if mode, ok := plistutil.GetInt64(file, "Mode"); ok {
		meta.Mode = uint32(mode)
	}
	if t, ok := plistutil.GetTime(file, "LastModified"); ok {
		meta.ModTime = t
	}
	if class, ok := plistutil.GetInt64(file, "ProtectionClass"); ok {
		meta.ProtectionClass = uint32(class)
	}
	meta.EncryptionKey = dataValue(file["EncryptionKey"])
	return meta, nil
}

// dataValue unwraps NSData, archived as a dictionary with an NS.data key
func dataValue(v interface{}) []byte {
	switch d := v.(type) {
	case []byte:
		return d
	case map[string]interface{}:
		if b, ok := d["NS.data"].([]byte); ok {
			return b
		}
	}
	return nil
}

// ReadFileRows copies the Manifest.db bytes to a temporary file and reads the Files table
func ReadFileRows(db []byte, tempDir string) ([]FileRow, error) {
	osFs := afero.NewOsFs()
	tmp, err := afero.TempFile(osFs, tempDir, "manifest-*.db")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary manifest: %w", err)
	}
	defer osFs.Remove(tmp.Name())

	_, err = tmp.Write(db)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write temporary manifest: %w", err)
	}

	return QueryFileRows(tmp.Name())
}

// QueryFileRows reads every row of the Files table in the database at path
func QueryFileRows(path string) ([]FileRow, error) {
	conn, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", errors.ErrCorruptArchive, ManifestDB, err)
	}
	defer conn.Close()

	stmt, _, err := conn.PrepareTransient(filesQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptArchive, ManifestDB, err)
	}
	defer stmt.Finalize()

	var rows []FileRow
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptArchive, ManifestDB, err)
		}
		if !hasRow {
			break
		}

		row := FileRow{
			FileID:       stmt.GetText("fileID"),
			Domain:       stmt.GetText("domain"),
			RelativePath: stmt.GetText("relativePath"),
			Flags:        int(stmt.GetInt64("flags")),
		}
		if n := stmt.GetLen("file"); n > 0 {
			row.Blob = make([]byte, n)
			stmt.GetBytes("file", row.Blob)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
