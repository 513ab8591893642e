// Package ufed decodes ALEX extractions written in the UFED layout: a ZIP carrying an
// adb backup at backup/backup.ab, loose shared-storage files under sdcard/ and a .ufd
// device descriptor beside it.
package ufed

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// SharedDomain is the domain loose sdcard files are folded into
const SharedDomain = "shared/0"

// Decoder decodes an ALEX extraction ZIP
type Decoder struct {
	path string
	opts backup.DecodeOptions
}

// NewDecoder creates a decoder for the ZIP, or a directory holding it, at path
func NewDecoder(path string, opts backup.DecodeOptions) *Decoder {
	opts = opts.WithDefaults()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Decoder{path: path, opts: opts}
}

// Detect reports whether path resolves to a ZIP whose backup.ab carries the .ab magic
func (d *Decoder) Detect() bool {
	loc, ok := FindZip(d.opts.Fs, d.path)
	if !ok {
		return false
	}
	z, err := backup.OpenZipArchive(d.opts.Fs, loc.ZipPath)
	if err != nil {
		return false
	}
	defer z.Close()

	zf, ok := z.Lookup(loc.ABEntry())
	if !ok {
		return false
	}
	rc, err := zf.Open()
	if err != nil {
		return false
	}
	defer rc.Close()

	head := make([]byte, len(android.Magic))
	n, _ := io.ReadFull(rc, head)
	return android.HasMagic(head[:n])
}

// Decode parses the embedded backup and folds in the loose sdcard files. Entries from
// the backup win over ZIP entries with the same domain path.
func (d *Decoder) Decode() (*backup.Container, error) {
	loc, ok := FindZip(d.opts.Fs, d.path)
	if !ok {
		return nil, fmt.Errorf("%w: no ALEX extraction ZIP found at %s", errors.ErrFormat, d.path)
	}

	if err := d.opts.Progress.Report(0, "Opening ALEX extraction ZIP..."); err != nil {
		return nil, err
	}
	z, err := backup.OpenZipArchive(d.opts.Fs, loc.ZipPath)
	if err != nil {
		return nil, err
	}
	c, err := d.decode(z, loc)
	if err != nil {
		z.Close()
		return nil, err
	}
	return c, nil
}

func (d *Decoder) decode(z *backup.ZipArchive, loc Location) (*backup.Container, error) {
	if err := d.opts.Progress.Report(5, "Extracting backup.ab from ZIP..."); err != nil {
		return nil, err
	}
	abData, err := z.ReadEntry(loc.ABEntry())
	if err != nil {
		return nil, err
	}
	if !android.HasMagic(abData) {
		return nil, fmt.Errorf("%w: %s in %s is not an Android backup", errors.ErrFormat, loc.ABEntry(), loc.ZipPath)
	}

	payload, err := android.OpenPayload(bytes.NewReader(abData), d.opts, d.passwordFile(loc))
	if err != nil {
		return nil, err
	}

	c := backup.NewContainer(loc.ZipPath, backup.KindUFED, backup.PlatformAndroid)
	c.SetFormat("zip")
	if err := android.AddTarMembers(c, payload.Tar, android.HandleAB, d.opts); err != nil {
		return nil, err
	}

	if err := d.opts.Progress.Report(92, "Processing sdcard entries..."); err != nil {
		return nil, err
	}
	added, err := addSdcardEntries(c, z, loc.Prefix)
	if err != nil {
		return nil, err
	}
	if added > 0 {
		logger.LogDebug("Added sdcard files from ZIP", map[string]interface{}{"count": added})
	}

	ufd := deviceInfoNear(d.opts.Fs, loc.ZipPath)
	version := ufd.AndroidVersion()
	if version == "" {
		version = android.ManifestSDKVersion(payload.Tar)
	}
	c.SetDevice(backup.DeviceInfo{
		Name:          ufd.DeviceName(),
		OSVersion:     version,
		Encrypted:     payload.Header.Encrypted(),
		Zipped:        true,
		FormatVersion: payload.Header.FormatVersion,
	})
	c.SetRowCount(len(c.Entries()))

	reader := backup.NewArchiveReader()
	reader.AddTar(android.HandleAB, payload.Tar)
	reader.SetZip(z)
	c.SetReader(reader)

	logger.LogInfo("ALEX extraction loaded", map[string]interface{}{
		"path":        loc.ZipPath,
		"entries":     len(c.Entries()),
		"zip_entries": added,
	})
	if err := d.opts.Progress.Report(100, "ALEX extraction loaded"); err != nil {
		return nil, err
	}
	return c, nil
}

// addSdcardEntries folds backup/sdcard/* then sdcard/* into shared/0, skipping any
// domain path already present.
func addSdcardEntries(c *backup.Container, z *backup.ZipArchive, prefix string) (int, error) {
	files, err := z.Files()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, root := range []string{"backup/sdcard/", "sdcard/"} {
		full := prefix + root
		for _, zf := range files {
			if !strings.HasPrefix(zf.Name, full) {
				continue
			}
			rel := strings.TrimRight(zf.Name[len(full):], "/")
			if rel == "" || c.HasDomainPath(backup.JoinDomainPath(SharedDomain, rel)) {
				continue
			}

			isDir := strings.HasSuffix(zf.Name, "/")
			e := &backup.Entry{
				FileID:       "zip:" + zf.Name,
				Domain:       SharedDomain,
				RelativePath: rel,
				ModTime:      zf.Modified,
			}
			if isDir {
				e.Mode = backup.ModeDirPerm
				e.Flags = backup.FlagDirectory
			} else {
				e.Size = int64(zf.UncompressedSize64)
				e.Mode = backup.ModeRegular
				e.Flags = backup.FlagFile
				e.Source = backup.ZipSource(zf.Name)
				e.SetActualSize(e.Size)
			}
			c.AddEntry(e, fmt.Sprintf("from %s in ZIP", strings.SplitN(root, "/", 2)[0]+"/"))
			added++
		}
	}
	return added, nil
}

// passwordFile looks for a password file beside the extraction ZIP
func (d *Decoder) passwordFile(loc Location) backup.PasswordLookup {
	return func() (string, bool) {
		return fsutil.FindPasswordFile(d.opts.Fs, d.opts.PasswordFile, filepath.Dir(loc.ZipPath))
	}
}
