package mapper

import (
	"sort"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// resolver predicts where a backup entry lives on the filesystem. ok is false for
// unmappable entries; notes explain the decision either way.
type resolver interface {
	resolve(e *backup.Entry) (path string, ok bool, notes string)
}

// Mapper matches the files of one backup against one filesystem acquisition
type Mapper struct {
	backup     backup.Backup
	filesystem *filesystem.Acquisition
	resolver   resolver

	// groupKey folds a domain into its breakdown group
	groupKey func(domain string) string
	// impliedDirs counts backup directories from file path prefixes instead of entries
	impliedDirs  bool
	notFoundNote string

	mappings []*Mapping
	stats    Statistics
	byEntry  map[*backup.Entry]*Mapping
	byFile   map[*filesystem.File]*Mapping
}

func newMapper(b backup.Backup, fs *filesystem.Acquisition, r resolver) *Mapper {
	return &Mapper{
		backup:      b,
		filesystem:  fs,
		resolver:    r,
		groupKey:    func(domain string) string { return domain },
		impliedDirs: true,
	}
}

// New picks the mapper for the backup: acquisitions wrapped as backups compare path to
// path, other Android-family backups use the token rules and iOS backups the domain rules.
func New(b backup.Backup, fs *filesystem.Acquisition) *Mapper {
	switch {
	case b.Kind() == backup.KindFilesystem:
		return NewFilesystem(b, fs)
	case b.Platform() == backup.PlatformAndroid:
		return NewAndroid(b, fs)
	default:
		return NewIOS(b, fs)
	}
}

// Backup returns the mapped backup
func (m *Mapper) Backup() backup.Backup {
	return m.backup
}

// Filesystem returns the reference acquisition
func (m *Mapper) Filesystem() *filesystem.Acquisition {
	return m.filesystem
}

// MapAll maps every non-directory backup entry and recomputes the statistics. Running
// it again replaces the previous results.
func (m *Mapper) MapAll() []*Mapping {
	entries := m.backup.Entries()

	m.mappings = make([]*Mapping, 0, len(entries))
	m.byEntry = make(map[*backup.Entry]*Mapping, len(entries))
	m.byFile = make(map[*filesystem.File]*Mapping)
	stats := Statistics{ManifestRowCount: m.backup.ManifestRowCount()}

	stats.TotalBackupFiles, stats.TotalBackupDirectories = m.countBackup(entries)
	stats.TotalFilesystemFiles, stats.TotalFilesystemDirectories = m.filesystem.CountFiles()

	for _, e := range entries {
		if e.IsDirectory() {
			continue
		}
		mapping := m.mapEntry(e)
		switch mapping.Status {
		case StatusMapped:
			stats.MappedFiles++
			if _, seen := m.byFile[mapping.File]; !seen {
				m.byFile[mapping.File] = mapping
			}
		case StatusNotFound:
			stats.NotFoundFiles++
		case StatusUnmappable:
			stats.UnmappableFiles++
		}
		m.mappings = append(m.mappings, mapping)
		m.byEntry[e] = mapping
	}

	stats.BackupOnlyFiles = stats.NotFoundFiles + stats.UnmappableFiles
	stats.FilesystemOnlyFiles = len(m.FilesystemOnlyEntries())
	stats.CoveragePercent = Coverage(stats.MappedFiles, stats.TotalFilesystemFiles)
	m.stats = stats

	logger.LogDebug("Mapping complete", map[string]interface{}{
		"mapped":     stats.MappedFiles,
		"not_found":  stats.NotFoundFiles,
		"unmappable": stats.UnmappableFiles,
		"coverage":   stats.CoveragePercent,
	})
	return m.mappings
}

func (m *Mapper) mapEntry(e *backup.Entry) *Mapping {
	path, ok, notes := m.resolver.resolve(e)
	if !ok {
		return &Mapping{Entry: e, Status: StatusUnmappable, Notes: notes}
	}
	mapping := &Mapping{Entry: e, FilesystemPath: path, Status: StatusNotFound, Notes: notes}
	if f, found := m.filesystem.FindFile(path); found {
		mapping.File = f
		mapping.Status = StatusMapped
	} else if mapping.Notes == "" {
		mapping.Notes = m.notFoundNote
	}
	return mapping
}

// countBackup returns the number of backup files and directories. Directories are
// either the directory entries or every domain-qualified prefix of a file path.
func (m *Mapper) countBackup(entries []*backup.Entry) (files, dirs int) {
	if !m.impliedDirs {
		return backup.CountEntries(entries)
	}
	implied := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDirectory() {
			continue
		}
		files++
		implied[e.Domain] = struct{}{}
		if i := strings.LastIndex(e.RelativePath, "/"); i > 0 {
			parts := strings.Split(e.RelativePath[:i], "/")
			for j := range parts {
				implied[e.Domain+"/"+strings.Join(parts[:j+1], "/")] = struct{}{}
			}
		}
	}
	return files, len(implied)
}

// Mappings returns the results of the last MapAll
func (m *Mapper) Mappings() []*Mapping {
	return m.mappings
}

// Statistics returns the counters of the last MapAll
func (m *Mapper) Statistics() Statistics {
	return m.stats
}

// MappingForEntry returns the mapping of a backup entry
func (m *Mapper) MappingForEntry(e *backup.Entry) (*Mapping, bool) {
	mapping, ok := m.byEntry[e]
	return mapping, ok
}

// MappingForFilesystemEntry returns the first mapping that matched f
func (m *Mapper) MappingForFilesystemEntry(f *filesystem.File) (*Mapping, bool) {
	mapping, ok := m.byFile[f]
	return mapping, ok
}

// MappingsByDomain groups the mappings by domain. iOS groups by base domain.
func (m *Mapper) MappingsByDomain() map[string][]*Mapping {
	out := make(map[string][]*Mapping)
	for _, mapping := range m.mappings {
		key := m.groupKey(mapping.Entry.Domain)
		out[key] = append(out[key], mapping)
	}
	return out
}

// DomainSummaries returns the per-domain breakdown sorted by domain
func (m *Mapper) DomainSummaries() []DomainSummary {
	groups := m.MappingsByDomain()
	out := make([]DomainSummary, 0, len(groups))
	for domain, mappings := range groups {
		s := DomainSummary{Domain: domain, Total: len(mappings)}
		for _, mapping := range mappings {
			if mapping.Status == StatusMapped {
				s.Mapped++
			}
		}
		s.Coverage = Coverage(s.Mapped, s.Total)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// UnmappedEntries returns the backup files that are not found or unmappable
func (m *Mapper) UnmappedEntries() []*backup.Entry {
	var out []*backup.Entry
	for _, mapping := range m.mappings {
		if mapping.Unmapped() {
			out = append(out, mapping.Entry)
		}
	}
	return out
}

// FilesystemOnlyEntries returns the filesystem files no backup file mapped to
func (m *Mapper) FilesystemOnlyEntries() []*filesystem.File {
	matched := make(map[string]struct{}, len(m.byFile))
	for f := range m.byFile {
		matched[f.NormalizedPath()] = struct{}{}
	}
	var out []*filesystem.File
	for _, f := range m.filesystem.Files {
		if f.IsDir {
			continue
		}
		if _, ok := matched[f.NormalizedPath()]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// DomainBasePaths returns, per domain, the filesystem directory its files map under.
// The first mapped path of each domain decides.
func (m *Mapper) DomainBasePaths() map[string]string {
	out := make(map[string]string)
	for _, mapping := range m.mappings {
		domain := mapping.Entry.Domain
		if _, done := out[domain]; done || mapping.FilesystemPath == "" {
			continue
		}
		base := mapping.FilesystemPath
		rel := mapping.Entry.RelativePath
		if rel != "" && strings.HasSuffix(base, rel) {
			base = strings.TrimRight(strings.TrimSuffix(base, rel), "/")
		}
		out[domain] = base
	}
	return out
}
