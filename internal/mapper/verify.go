package mapper

import (
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// HashResult is the content comparison of one mapped pair
type HashResult struct {
	Mapping        *Mapping
	BackupHash     string
	FilesystemHash string
	Match          bool
	Err            error
}

// HashSummary counts the outcomes of a verification pass
type HashSummary struct {
	Checked    int
	Matched    int
	Mismatched int
	Failed     int
}

// Summarize counts matches, mismatches and read failures
func Summarize(results []HashResult) HashSummary {
	var s HashSummary
	for _, r := range results {
		s.Checked++
		switch {
		case r.Err != nil:
			s.Failed++
		case r.Match:
			s.Matched++
		default:
			s.Mismatched++
		}
	}
	return s
}

// VerifyHashes hashes both sides of every MAPPED pair. A pair that cannot be read is
// reported in its result and does not stop the pass.
func VerifyHashes(b backup.Backup, fs *filesystem.Acquisition, mappings []*Mapping, hasher cryptoutil.Hasher) []HashResult {
	var results []HashResult
	for _, mapping := range mappings {
		if mapping.Status != StatusMapped || mapping.File == nil {
			continue
		}
		result := HashResult{Mapping: mapping}
		result.BackupHash, result.FilesystemHash, result.Err = hashPair(b, fs, mapping, hasher)
		result.Match = result.Err == nil && result.BackupHash == result.FilesystemHash
		if result.Err != nil {
			logger.LogWarn("Hash verification failed", map[string]interface{}{
				"path":  mapping.Entry.FullDomainPath(),
				"error": result.Err.Error(),
			})
		}
		results = append(results, result)
	}
	return results
}

func hashPair(b backup.Backup, fs *filesystem.Acquisition, mapping *Mapping, hasher cryptoutil.Hasher) (string, string, error) {
	data, err := b.ReadContent(mapping.Entry)
	if err != nil {
		return "", "", fmt.Errorf("reading backup file %s: %w", mapping.Entry.FullDomainPath(), err)
	}
	backupHash, err := hasher.Hash(data)
	if err != nil {
		return "", "", err
	}
	data, err = fs.ReadContent(mapping.File)
	if err != nil {
		return backupHash, "", fmt.Errorf("reading filesystem file %s: %w", mapping.File.Path, err)
	}
	fsHash, err := hasher.Hash(data)
	if err != nil {
		return backupHash, "", err
	}
	return backupHash, fsHash, nil
}

// VerifyHashes runs the hash check over the results of the last MapAll
func (m *Mapper) VerifyHashes(hasher cryptoutil.Hasher) []HashResult {
	return VerifyHashes(m.backup, m.filesystem, m.mappings, hasher)
}
