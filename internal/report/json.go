package report

import (
	"io"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/jsonutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/mapper"
)

type jsonDocument struct {
	Backup           jsonBackup            `json:"backup"`
	Filesystem       jsonFilesystem        `json:"filesystem"`
	Mapping          jsonMapping           `json:"mapping"`
	ByDomain         map[string]jsonDomain `json:"by_domain"`
	HashVerification *jsonHashes           `json:"hash_verification,omitempty"`
}

type jsonBackup struct {
	Path             string `json:"path"`
	DeviceName       string `json:"device_name"`
	IsEncrypted      bool   `json:"is_encrypted"`
	TotalFiles       int    `json:"total_files"`
	TotalDirectories int    `json:"total_directories"`
	BackupType       string `json:"backup_type"`
	IOSVersion       string `json:"ios_version,omitempty"`
	AndroidVersion   string `json:"android_version,omitempty"`
	ProductType      string `json:"product_type,omitempty"`
}

type jsonFilesystem struct {
	Path             string `json:"path"`
	Platform         string `json:"platform"`
	TotalFiles       int    `json:"total_files"`
	TotalDirectories int    `json:"total_directories"`
	AppContainers    int    `json:"app_containers"`
	GroupContainers  int    `json:"group_containers"`
}

type jsonMapping struct {
	MappedFiles           int     `json:"mapped_files"`
	NotFoundFiles         int     `json:"not_found_files"`
	UnmappableFiles       int     `json:"unmappable_files"`
	BackupOnlyFiles       int     `json:"backup_only_files"`
	FilesystemOnlyFiles   int     `json:"filesystem_only_files"`
	BackupCoveragePercent float64 `json:"backup_coverage_percent"`
}

type jsonDomain struct {
	Total           int     `json:"total"`
	Mapped          int     `json:"mapped"`
	CoveragePercent float64 `json:"coverage_percent"`
}

type jsonHashes struct {
	Checked    int      `json:"checked"`
	Matched    int      `json:"matched"`
	Mismatched int      `json:"mismatched"`
	Failed     int      `json:"failed"`
	Differing  []string `json:"differing,omitempty"`
}

func writeJSON(w io.Writer, r Report) error {
	return jsonutil.Encode(w, buildDocument(r))
}

func buildDocument(r Report) jsonDocument {
	stats := r.Mapper.Statistics()
	b := r.Mapper.Backup()
	fs := r.Mapper.Filesystem()
	device := b.Device()

	doc := jsonDocument{
		Backup: jsonBackup{
			Path:             b.Path(),
			DeviceName:       device.Name,
			IsEncrypted:      device.Encrypted,
			TotalFiles:       stats.TotalBackupFiles,
			TotalDirectories: stats.TotalBackupDirectories,
			BackupType:       string(b.Kind()),
			ProductType:      device.ProductType,
		},
		Filesystem: jsonFilesystem{
			Path:             fs.Path,
			Platform:         string(fs.Platform),
			TotalFiles:       stats.TotalFilesystemFiles,
			TotalDirectories: stats.TotalFilesystemDirectories,
		},
		Mapping: jsonMapping{
			MappedFiles:           stats.MappedFiles,
			NotFoundFiles:         stats.NotFoundFiles,
			UnmappableFiles:       stats.UnmappableFiles,
			BackupOnlyFiles:       stats.BackupOnlyFiles,
			FilesystemOnlyFiles:   stats.FilesystemOnlyFiles,
			BackupCoveragePercent: jsonutil.Round(stats.CoveragePercent, 2),
		},
		ByDomain: make(map[string]jsonDomain),
	}

	if b.Platform() == backup.PlatformAndroid {
		doc.Backup.AndroidVersion = device.OSVersion
	} else {
		doc.Backup.IOSVersion = device.OSVersion
	}
	if fs.Containers != nil {
		doc.Filesystem.AppContainers = len(fs.Containers.Mapping(filesystem.ContainerApp))
		doc.Filesystem.GroupContainers = len(fs.Containers.Mapping(filesystem.ContainerGroup))
	}

	for _, s := range r.Mapper.DomainSummaries() {
		doc.ByDomain[s.Domain] = jsonDomain{
			Total:           s.Total,
			Mapped:          s.Mapped,
			CoveragePercent: jsonutil.Round(s.Coverage, 2),
		}
	}

	if r.Hashes != nil {
		s := mapper.Summarize(r.Hashes)
		h := &jsonHashes{Checked: s.Checked, Matched: s.Matched, Mismatched: s.Mismatched, Failed: s.Failed}
		for _, res := range r.Hashes {
			if !res.Match {
				h.Differing = append(h.Differing, res.Mapping.Entry.FullDomainPath())
			}
		}
		doc.HashVerification = h
	}
	return doc
}
