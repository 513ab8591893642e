package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/magnet"
)

const (
	apkRoot          = "/data/app/"
	sharedPrefix     = "shared/"
	sharedMediaRoot  = "/data/media/"
	randomAPKDirMark = "~~"
)

// NewAndroid returns the mapper for AOSP-token backups (.ab, ALEX and Magnet)
func NewAndroid(b backup.Backup, fs *filesystem.Acquisition) *Mapper {
	return newMapper(b, fs, &androidResolver{apk: newAPKDirs(fs.Index())})
}

type androidResolver struct {
	apk *apkDirs
}

func (r *androidResolver) resolve(e *backup.Entry) (string, bool, string) {
	token, domain := e.Token, e.Domain

	if android.IsUnmappableToken(token) {
		return "", false, fmt.Sprintf("Token '%s' has no filesystem equivalent", token)
	}
	if domain == magnet.LiveDataDomain {
		return "", false, "Live Data has no filesystem equivalent"
	}

	if strings.HasPrefix(domain, sharedPrefix) {
		user := strings.TrimPrefix(domain, sharedPrefix)
		if user == "" {
			user = "0"
		}
		if e.RelativePath != "" {
			return sharedMediaRoot + user + "/" + e.RelativePath, true, "Shared storage"
		}
		return sharedMediaRoot + user, true, "Shared storage root"
	}

	if token == "" {
		return "", false, "Package root entry (no token)"
	}

	remaining := afterToken(e.RelativePath)

	if token == android.TokenAPK {
		if dir, ok := r.apk.lookup(domain); ok {
			return joinPath(apkRoot+dir, remaining), true, "APK dir resolved: " + dir
		}
		return joinPath(apkRoot+domain, remaining), true, "APK dir suffix not found (using package name as fallback)"
	}

	base, ok := android.TokenBasePath(token, domain)
	if !ok {
		return "", false, "Unknown token: " + token
	}
	return joinPath(base, remaining), true, fmt.Sprintf("Token '%s' mapping", token)
}

// afterToken drops the leading token segment of a relative path
func afterToken(relativePath string) string {
	if i := strings.Index(relativePath, "/"); i >= 0 {
		return relativePath[i+1:]
	}
	return ""
}

func joinPath(base, rest string) string {
	if rest == "" {
		return base
	}
	return base + "/" + rest
}

// apkDirs resolves a package to its installed APK directory. Installed directories
// carry a random suffix ("com.whatsapp-2", "com.whatsapp-Qx1==") and on newer releases
// sit under a random parent ("~~Ab3==/com.whatsapp-Qx1==").
type apkDirs struct {
	// dirs holds the directory names relative to /data/app/, sorted by package name
	dirs  []apkDir
	cache map[string]string
}

type apkDir struct {
	name string
	rel  string
}

func newAPKDirs(idx *filesystem.Index) *apkDirs {
	seen := make(map[string]struct{})
	a := &apkDirs{cache: make(map[string]string)}
	for _, p := range idx.WithPrefix(apkRoot) {
		parts := strings.Split(strings.TrimPrefix(p, apkRoot), "/")
		rel := parts[0]
		name := parts[0]
		if strings.HasPrefix(name, randomAPKDirMark) {
			if len(parts) < 2 {
				continue
			}
			name = parts[1]
			rel = parts[0] + "/" + parts[1]
		}
		if name == "" || !strings.Contains(name, "-") {
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		a.dirs = append(a.dirs, apkDir{name: name, rel: rel})
	}
	sort.SliceStable(a.dirs, func(i, j int) bool { return a.dirs[i].name < a.dirs[j].name })
	return a
}

// lookup returns the first directory, in name order, named <pkg>-<suffix>
func (a *apkDirs) lookup(pkg string) (string, bool) {
	if rel, ok := a.cache[pkg]; ok {
		return rel, rel != ""
	}
	prefix := pkg + "-"
	i := sort.Search(len(a.dirs), func(i int) bool { return a.dirs[i].name >= prefix })
	rel := ""
	if i < len(a.dirs) && strings.HasPrefix(a.dirs[i].name, prefix) {
		rel = a.dirs[i].rel
	}
	a.cache[pkg] = rel
	return rel, rel != ""
}
