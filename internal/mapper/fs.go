package mapper

import (
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
)

const notInReference = "Not found in reference filesystem"

// NewFilesystem returns the mapper for a filesystem acquisition loaded as a backup.
// Entries keep their source path, so mapping is a direct lookup.
func NewFilesystem(b backup.Backup, fs *filesystem.Acquisition) *Mapper {
	m := newMapper(b, fs, &fsResolver{platform: b.Platform()})
	m.impliedDirs = false
	m.notFoundNote = notInReference
	return m
}

type fsResolver struct {
	platform backup.Platform
}

func (r *fsResolver) resolve(e *backup.Entry) (string, bool, string) {
	path := e.FileID
	if e.Source.Kind == backup.SourceFilesystem && e.Source.Name != "" {
		path = e.Source.Name
	}
	return filesystem.NormalizePath(path, r.platform), true, ""
}
