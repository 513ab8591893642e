// Package mapper translates backup entries into filesystem paths, matches them against
// a filesystem acquisition and computes coverage statistics.
package mapper

import (
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
)

// Status is the outcome of mapping one backup file
type Status int

const (
	StatusMapped Status = iota
	StatusNotFound
	StatusUnmappable
)

func (s Status) String() string {
	switch s {
	case StatusMapped:
		return "mapped"
	case StatusNotFound:
		return "not_found"
	case StatusUnmappable:
		return "unmappable"
	}
	return "unknown"
}

// Mapping is the result of mapping one backup file. FilesystemPath is empty for
// unmappable entries and File is nil unless the path was found.
type Mapping struct {
	Entry          *backup.Entry
	FilesystemPath string
	File           *filesystem.File
	Status         Status
	Notes          string
}

// Unmapped reports whether the entry has no filesystem counterpart
func (m *Mapping) Unmapped() bool {
	return m.Status == StatusNotFound || m.Status == StatusUnmappable
}

// Statistics are the aggregate counters of a mapping pass
type Statistics struct {
	TotalBackupFiles           int     `json:"total_backup_files"`
	TotalBackupDirectories     int     `json:"total_backup_directories"`
	TotalFilesystemFiles       int     `json:"total_filesystem_files"`
	TotalFilesystemDirectories int     `json:"total_filesystem_directories"`
	MappedFiles                int     `json:"mapped_files"`
	NotFoundFiles              int     `json:"not_found_files"`
	UnmappableFiles            int     `json:"unmappable_files"`
	BackupOnlyFiles            int     `json:"backup_only_files"`
	FilesystemOnlyFiles        int     `json:"filesystem_only_files"`
	CoveragePercent            float64 `json:"backup_coverage_percent"`
	ManifestRowCount           int     `json:"manifest_row_count"`
}

// Coverage returns mapped as a percentage of total, 0 when total is 0
func Coverage(mapped, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(mapped) / float64(total) * 100
}

// DomainSummary is the mapping breakdown of one domain group
type DomainSummary struct {
	Domain   string
	Total    int
	Mapped   int
	Coverage float64
}
