package config

import (
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
)

// DecodeOptionsFromConfig returns the decoder settings of Instance. Callbacks and the
// password are left for the caller.
func DecodeOptionsFromConfig() backup.DecodeOptions {
	return backup.DecodeOptions{
		PasswordFile:     Instance.Backup.PasswordFile,
		ProgressInterval: Instance.Backup.ProgressInterval,
		TempDir:          Instance.Backup.TempDir,
	}
}

// LoaderOptionsFromConfig returns the filesystem loader settings of Instance
func LoaderOptionsFromConfig() filesystem.LoaderOptions {
	return filesystem.LoaderOptions{
		PlatformDetectLimit: Instance.Filesystem.PlatformDetectLimit,
		ProgressInterval:    Instance.Filesystem.ProgressInterval,
		TempDir:             Instance.Backup.TempDir,
	}
}

// HasherFromConfig builds the hasher named by report.hash_algorithm
func HasherFromConfig() (cryptoutil.Hasher, error) {
	h, err := cryptoutil.NewHasher(cryptoutil.HashAlgorithm(Instance.Report.HashAlgorithm))
	if err != nil {
		return nil, fmt.Errorf("%w: report.hash_algorithm: %v", commonerrors.ErrConfigInvalid, err)
	}
	return h, nil
}
