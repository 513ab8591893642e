// Package filesystem loads raw filesystem acquisitions (tar, zip or an extracted
// directory), indexes every equivalent spelling of each path and resolves iOS app
// container GUIDs.
package filesystem

import (
	"strings"
	"time"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
)

// Acquisition formats
const (
	FormatTar       = "tar"
	FormatZip       = "zip"
	FormatDirectory = "directory"
)

// File is one file or directory of an acquisition. Path is the spelling stored in the
// archive with a single leading slash.
type File struct {
	Path     string
	Size     int64
	IsDir    bool
	ModTime  time.Time
	Platform backup.Platform
}

// NormalizedPath is the canonical lookup key for f
func (f *File) NormalizedPath() string {
	return NormalizePath(f.Path, f.Platform)
}

// NormalizePath canonicalizes path for platform. Android paths get a single leading
// slash. iOS paths are moved under /private when they are relative or start at /var.
func NormalizePath(path string, platform backup.Platform) string {
	if platform == backup.PlatformAndroid {
		path = strings.TrimPrefix(path, "./")
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return path
	}

	switch {
	case strings.HasPrefix(path, "/private/"):
		return path
	case strings.HasPrefix(path, "./"):
		path = path[2:]
	}
	switch {
	case strings.HasPrefix(path, "private/"):
		return "/" + path
	case strings.HasPrefix(path, "/var/"), path == "/var":
		return "/private" + path
	case strings.HasPrefix(path, "/"):
		return path
	}
	return "/private/" + path
}

// memberPath turns an archive member name into a File path
func memberPath(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return "/" + strings.TrimSuffix(name, "/")
		}
	}
}

// platformMarkers are matched case-insensitively against the first entries of an acquisition
var platformMarkers = []struct {
	marker   string
	platform backup.Platform
}{
	{"/data/data/", backup.PlatformAndroid},
	{"/data/app/", backup.PlatformAndroid},
	{"/system/app/", backup.PlatformAndroid},
	{"/system/framework/", backup.PlatformAndroid},
	{"/private/var/mobile/", backup.PlatformIOS},
	{"/containers/data/application/", backup.PlatformIOS},
}

// DetectPlatform scans up to limit files for characteristic paths. iOS is the default.
func DetectPlatform(files []*File, limit int) backup.Platform {
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	for _, f := range files {
		lower := strings.ToLower(f.Path)
		for _, m := range platformMarkers {
			if strings.Contains(lower, m.marker) {
				return m.platform
			}
		}
	}
	return backup.PlatformIOS
}
