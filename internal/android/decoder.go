package android

import (
	"fmt"
	"path/filepath"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// HandleAB names the .ab tar on a container's ArchiveReader
const HandleAB = "ab_tar"

// DefaultDeviceName is used because .ab files carry no device identity
const DefaultDeviceName = "Android Device"

// Decoder decodes a standalone .ab file
type Decoder struct {
	path string
	opts backup.DecodeOptions
}

// NewDecoder creates a decoder for the .ab file at path
func NewDecoder(path string, opts backup.DecodeOptions) *Decoder {
	opts = opts.WithDefaults()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Decoder{path: path, opts: opts}
}

// Detect reports whether the decoder's path is an Android backup
func (d *Decoder) Detect() bool {
	return IsAndroidBackup(d.opts.Fs, d.path)
}

// Decode reads, decrypts and indexes the backup. No container is returned on error.
func (d *Decoder) Decode() (*backup.Container, error) {
	if !d.Detect() {
		return nil, fmt.Errorf("%w: %s is not an Android backup", errors.ErrFormat, d.path)
	}

	f, err := d.opts.Fs.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrPathNotAccessible, d.path, err)
	}
	defer f.Close()

	payload, err := OpenPayload(f, d.opts, d.passwordFile)
	if err != nil {
		return nil, err
	}

	c := backup.NewContainer(d.path, backup.KindAndroid, backup.PlatformAndroid)
	c.SetFormat("ab")
	if err := AddTarMembers(c, payload.Tar, HandleAB, d.opts); err != nil {
		return nil, err
	}
	c.SetRowCount(payload.Tar.Len())

	if err := d.opts.Progress.Report(95, "Finalizing..."); err != nil {
		return nil, err
	}

	c.SetDevice(backup.DeviceInfo{
		Name:          DefaultDeviceName,
		OSVersion:     ManifestSDKVersion(payload.Tar),
		Encrypted:     payload.Header.Encrypted(),
		FormatVersion: payload.Header.FormatVersion,
	})

	reader := backup.NewArchiveReader()
	reader.AddTar(HandleAB, payload.Tar)
	c.SetReader(reader)

	files, dirs := c.CountFiles()
	logger.LogInfo("Android backup loaded", map[string]interface{}{
		"path":        d.path,
		"files":       files,
		"directories": dirs,
		"encrypted":   payload.Header.Encrypted(),
	})

	if err := d.opts.Progress.Report(100, "Android backup loaded"); err != nil {
		return nil, err
	}
	return c, nil
}

// passwordFile looks beside the backup, then in its parent directory
func (d *Decoder) passwordFile() (string, bool) {
	dir := filepath.Dir(d.path)
	return fsutil.FindPasswordFile(d.opts.Fs, d.opts.PasswordFile, dir, filepath.Dir(dir))
}
