// Package backup holds the normalized model every container decoder produces: entries,
// the container aggregate, the parsing log and the content sources behind each entry.
package backup

import (
	"time"
)

// Platform identifies the operating system a backup or acquisition came from
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Kind identifies the container format a backup was decoded from
type Kind string

const (
	KindIOS        Kind = "ios"
	KindAndroid    Kind = "android"
	KindUFED       Kind = "ufed"
	KindMagnet     Kind = "magnet"
	KindFilesystem Kind = "filesystem"
)

// Entry flags as stored in iOS manifests and synthesized by the Android decoders
const (
	FlagFile      = 1
	FlagDirectory = 2
	FlagSymlink   = 4
)

// Unix file type bits
const (
	ModeTypeMask  uint32 = 0o170000
	ModeDirectory uint32 = 0o040000
	ModeRegular   uint32 = 0o100644
	ModeDirPerm   uint32 = 0o040755
)

// Entry is one logical file or directory inside a backup container.
// Only ActualSize may change after decode.
type Entry struct {
	FileID       string
	Domain       string
	RelativePath string
	Size         int64
	ActualSize   *int64
	Mode         uint32
	Flags        int
	ModTime      time.Time
	Token        string
	Source       ContentSource
}

// IsDirectory derives directory-ness from the mode type bits, then the flags, then
// the empty-id/zero-size/zero-mode fallback.
func (e *Entry) IsDirectory() bool {
	if t := e.Mode & ModeTypeMask; t != 0 {
		return t == ModeDirectory
	}
	switch e.Flags {
	case FlagDirectory:
		return true
	case FlagFile, FlagSymlink:
		return false
	}
	return e.FileID == "" && e.Size == 0 && e.Mode == 0
}

// FullDomainPath returns domain/relative_path, or the domain alone for a domain root
func (e *Entry) FullDomainPath() string {
	return JoinDomainPath(e.Domain, e.RelativePath)
}

// SetActualSize records the size measured from the stored object
func (e *Entry) SetActualSize(size int64) {
	e.ActualSize = &size
}

// JoinDomainPath joins a domain and a relative path the way FullDomainPath does
func JoinDomainPath(domain, relativePath string) string {
	if relativePath == "" {
		return domain
	}
	return domain + "/" + relativePath
}

// NormalizeDirMode sets the directory type bit on modes that carry no type bits.
// Several Android tars store directories with bare permission bits.
func NormalizeDirMode(mode uint32) uint32 {
	if mode&ModeTypeMask == 0 {
		return mode | ModeDirectory
	}
	return mode
}
