package report

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/mapper"
)

func writeText(w io.Writer, r Report, detailed bool) error {
	t := newTextWriter(w)
	stats := r.Mapper.Statistics()

	t.banner("COMPARISON SUMMARY")

	t.printf("\nBackup:\n")
	t.printf("  Total files: %d\n", stats.TotalBackupFiles)
	t.printf("  Total directories: %d\n", stats.TotalBackupDirectories)

	t.printf("\nFilesystem:\n")
	t.printf("  Total files: %d\n", stats.TotalFilesystemFiles)
	t.printf("  Total directories: %d\n", stats.TotalFilesystemDirectories)

	t.printf("\nMapping Results:\n")
	t.printf("  Successfully mapped: %d\n", stats.MappedFiles)
	t.printf("  Not found in filesystem: %d\n", stats.NotFoundFiles)
	t.printf("  Unmappable (unknown domain): %d\n", stats.UnmappableFiles)

	t.printf("\nCoverage Analysis:\n")
	t.printf("  Files only in backup: %d\n", stats.BackupOnlyFiles)
	t.printf("  Files only in filesystem: %d\n", stats.FilesystemOnlyFiles)
	t.printf("  Backup coverage of filesystem: %.1f%%\n", stats.CoveragePercent)

	t.printf("\nBy Domain:\n")
	for _, s := range r.Mapper.DomainSummaries() {
		t.printf("  %s: %s/%s (%.1f%%)\n", s.Domain, itoa(s.Mapped), itoa(s.Total), s.Coverage)
	}

	if r.Hashes != nil {
		writeHashes(t, r)
	}

	if detailed {
		if unmapped := r.Mapper.UnmappedEntries(); len(unmapped) > 0 {
			t.banner("UNMAPPED BACKUP FILES (" + itoa(len(unmapped)) + ")")
			for i, e := range unmapped {
				if i == r.ListLimit {
					break
				}
				t.printf("  %s/%s\n", e.Domain, e.RelativePath)
			}
			more(t, len(unmapped), r.ListLimit)
		}
		if fsOnly := r.Mapper.FilesystemOnlyEntries(); len(fsOnly) > 0 {
			t.banner("FILES ONLY IN FILESYSTEM (" + itoa(len(fsOnly)) + ")")
			for i, f := range fsOnly {
				if i == r.ListLimit {
					break
				}
				t.printf("  %s\n", f.Path)
			}
			more(t, len(fsOnly), r.ListLimit)
		}
	}
	return t.err
}

func writeHashes(t *textWriter, r Report) {
	s := mapper.Summarize(r.Hashes)
	t.printf("\nHash Verification:\n")
	t.printf("  Checked: %d\n", s.Checked)
	t.printf("  Matching: %d\n", s.Matched)
	t.printf("  Different: %d\n", s.Mismatched)
	t.printf("  Unreadable: %d\n", s.Failed)

	listed := 0
	for _, h := range r.Hashes {
		if h.Match || listed == r.ListLimit {
			continue
		}
		listed++
		if h.Err != nil {
			t.printf("  ERROR %s: %v\n", h.Mapping.Entry.FullDomainPath(), h.Err)
			continue
		}
		t.printf("  DIFFERS %s -> %s\n", h.Mapping.Entry.FullDomainPath(), h.Mapping.FilesystemPath)
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func more(t *textWriter, total, limit int) {
	if total > limit {
		t.printf("  ... and %d more\n", total-limit)
	}
}

func writeDomains(w io.Writer, r Report) error {
	t := newTextWriter(w)
	t.banner("DOMAIN TO FILESYSTEM PATH MAPPINGS")

	groups := map[string]map[string]string{}
	for domain, path := range r.Mapper.DomainBasePaths() {
		group := domainGroup(domain)
		if groups[group] == nil {
			groups[group] = map[string]string{}
		}
		groups[group][domain] = path
	}

	if other := groups[groupStandard]; len(other) > 0 {
		t.printf("\nStandard Domains:\n")
		for _, domain := range sortedKeys(other) {
			t.printf("  %s\n    -> %s\n", domain, other[domain])
		}
	}
	for _, g := range []struct {
		key, title string
		stripBase  bool
	}{
		{groupApp, "App Domains", true},
		{groupAppGroup, "App Group Domains", true},
		{groupPlugin, "Plugin Domains", true},
		{groupSystem, "System Container Domains", false},
	} {
		domains := groups[g.key]
		if len(domains) == 0 {
			continue
		}
		t.printf("\n%s (%d):\n", g.title, len(domains))
		for _, domain := range sortedKeys(domains) {
			label := domain
			if g.stripBase {
				_, label = mapper.ParseDomain(domain)
			}
			t.printf("  %s\n    -> %s\n", label, domains[domain])
		}
	}

	t.printf("\n")
	t.rule("-")
	t.printf("Container GUID Resolution (from filesystem metadata):\n")
	t.rule("-")

	containers := r.Mapper.Filesystem().Containers
	if containers != nil {
		writeContainers(t, "App Containers", containers.Mapping(filesystem.ContainerApp))
		writeContainers(t, "Group Containers", containers.Mapping(filesystem.ContainerGroup))
	}
	return t.err
}

func writeContainers(t *textWriter, title string, mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	t.printf("\n%s (%d):\n", title, len(mapping))
	for i, bundleID := range sortedKeys(mapping) {
		if i == containerListLimit {
			break
		}
		t.printf("  %s -> %s\n", bundleID, mapping[bundleID])
	}
	more(t, len(mapping), containerListLimit)
}

const (
	groupStandard = "standard"
	groupApp      = "app"
	groupAppGroup = "group"
	groupPlugin   = "plugin"
	groupSystem   = "system"
)

func domainGroup(domain string) string {
	switch {
	case strings.HasPrefix(domain, "AppDomainGroup-"):
		return groupAppGroup
	case strings.HasPrefix(domain, "AppDomainPlugin-"):
		return groupPlugin
	case strings.HasPrefix(domain, "AppDomain-"):
		return groupApp
	case strings.HasPrefix(domain, "SysContainerDomain-"), strings.HasPrefix(domain, "SysSharedContainerDomain-"):
		return groupSystem
	}
	return groupStandard
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
