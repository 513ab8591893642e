package filesystem

import (
	"sort"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
)

// Android locations that hold the same files
var (
	androidAppDataRoots = []string{"/data/data/", "/data/user/0/"}
	androidSharedRoots  = []string{"/data/media/0/", "/storage/emulated/0/", "/sdcard/"}
)

// Index maps every equivalent spelling of a path to its File. It is built once and
// never changes afterwards.
type Index struct {
	platform backup.Platform
	byPath   map[string]*File
}

// NewIndex indexes files under their normalized path and every alias of it
func NewIndex(files []*File, platform backup.Platform) *Index {
	idx := &Index{platform: platform, byPath: make(map[string]*File, len(files)*2)}
	for _, f := range files {
		for _, alias := range Aliases(f.NormalizedPath(), platform) {
			idx.byPath[alias] = f
		}
	}
	return idx
}

// Aliases returns normalized and every spelling equivalent to it, normalized first
func Aliases(normalized string, platform backup.Platform) []string {
	aliases := []string{normalized}
	if platform == backup.PlatformIOS {
		if strings.HasPrefix(normalized, "/private/") {
			aliases = append(aliases, strings.TrimPrefix(normalized, "/private"))
		}
		return aliases
	}
	aliases = append(aliases, swapRoot(normalized, androidAppDataRoots)...)
	aliases = append(aliases, swapRoot(normalized, androidSharedRoots)...)
	return aliases
}

// swapRoot rewrites path onto every other root of the group it starts with
func swapRoot(path string, roots []string) []string {
	for _, root := range roots {
		if !strings.HasPrefix(path, root) {
			continue
		}
		rest := path[len(root):]
		var out []string
		for _, other := range roots {
			if other != root {
				out = append(out, other+rest)
			}
		}
		return out
	}
	return nil
}

// Len returns the number of indexed spellings
func (idx *Index) Len() int {
	return len(idx.byPath)
}

// Find looks path up directly, then in its /private form on iOS or with a leading
// slash on Android. Prefix matches never succeed.
func (idx *Index) Find(path string) (*File, bool) {
	if f, ok := idx.byPath[path]; ok {
		return f, true
	}

	var alt string
	switch {
	case idx.platform == backup.PlatformIOS:
		switch {
		case strings.HasPrefix(path, "/private/"):
			return nil, false
		case strings.HasPrefix(path, "/"):
			alt = "/private" + path
		default:
			alt = "/private/" + path
		}
	case !strings.HasPrefix(path, "/"):
		alt = "/" + path
	default:
		return nil, false
	}
	f, ok := idx.byPath[alt]
	return f, ok
}

// FindInDirectory returns every file whose indexed spelling lies under dir, sorted by
// normalized path
func (idx *Index) FindInDirectory(dir string) []*File {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	seen := make(map[*File]struct{})
	var out []*File
	for p, f := range idx.byPath {
		if !strings.HasPrefix(p, dir) {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedPath() < out[j].NormalizedPath()
	})
	return out
}

// WithPrefix returns the indexed spellings starting with prefix, sorted
func (idx *Index) WithPrefix(prefix string) []string {
	var out []string
	for p := range idx.byPath {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
