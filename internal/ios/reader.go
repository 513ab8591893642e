package ios

import (
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
)

// storedReader reads file content from the hashed object store of a backup
type storedReader struct {
	store     store
	decryptor Decryptor
	meta      map[string]*FileMeta
}

func (r *storedReader) ReadContent(e *backup.Entry) ([]byte, error) {
	if e.Source.Kind != backup.SourceStoredFile {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotRegularFile, e.FullDomainPath())
	}
	data, err := r.store.ReadFile(e.Source.Name)
	if err != nil {
		return nil, err
	}
	if r.decryptor == nil {
		return data, nil
	}
	return r.decryptor.DecryptFile(r.meta[e.FileID], data)
}

func (r *storedReader) Close() error {
	return r.store.Close()
}
