// Package magnet decodes Magnet Acquire Quick Images: a ZIP holding a raw adb backup tar
// (adb-data.tar), a gzipped tar of shared storage and agent-captured Live Data.
package magnet

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	compression "github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/spf13/afero"
)

const (
	// ADBTarEntry is the raw backup tar inside the image ZIP
	ADBTarEntry = "adb-data.tar"
	// SdcardTarEntry is the gzipped shared storage tar inside the image ZIP
	SdcardTarEntry = "sdcard.tar.gz"
	// LiveDataPrefix holds agent-captured artifacts
	LiveDataPrefix = "Live Data/"
	// LiveDataDomain groups Live Data entries. It has no filesystem equivalent.
	LiveDataDomain = "Live Data"

	SharedDomain = "shared/0"

	HandleADBTar    = "adb_tar"
	HandleSdcardTar = "sdcard_tar"

	// An empty gzipped tar is this size or smaller
	emptyGzipTarSize = 29
)

// Decoder decodes a Magnet Quick Image
type Decoder struct {
	path string
	opts backup.DecodeOptions
}

// NewDecoder creates a decoder for the image ZIP, or a directory holding it, at path
func NewDecoder(path string, opts backup.DecodeOptions) *Decoder {
	opts = opts.WithDefaults()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Decoder{path: path, opts: opts}
}

// Detect reports whether path is, or directly contains, a ZIP holding adb-data.tar
func (d *Decoder) Detect() bool {
	_, ok := d.findZip()
	return ok
}

func (d *Decoder) findZip() (string, bool) {
	fs := d.opts.Fs
	if fsutil.FileExists(fs, d.path) {
		return d.path, hasADBTar(fs, d.path)
	}
	if !fsutil.DirExists(fs, d.path) {
		return "", false
	}
	names, err := fsutil.ListDir(fs, d.path)
	if err != nil {
		return "", false
	}
	for _, name := range names {
		if !strings.HasSuffix(strings.ToLower(name), ".zip") {
			continue
		}
		full := filepath.Join(d.path, name)
		if hasADBTar(fs, full) {
			return full, true
		}
	}
	return "", false
}

func hasADBTar(fs afero.Fs, zipPath string) bool {
	if !backup.IsZip(fs, zipPath) {
		return false
	}
	z, err := backup.OpenZipArchive(fs, zipPath)
	if err != nil {
		return false
	}
	defer z.Close()
	_, ok := z.Lookup(ADBTarEntry)
	return ok
}

// Decode parses adb-data.tar, folds in sdcard.tar.gz and the Live Data entries
func (d *Decoder) Decode() (*backup.Container, error) {
	zipPath, ok := d.findZip()
	if !ok {
		return nil, fmt.Errorf("%w: no Magnet Quick Image ZIP found at %s", errors.ErrFormat, d.path)
	}
	if err := d.opts.Progress.Report(0, "Opening Magnet Quick Image ZIP..."); err != nil {
		return nil, err
	}

	z, err := backup.OpenZipArchive(d.opts.Fs, zipPath)
	if err != nil {
		return nil, err
	}
	c, err := d.decode(z, zipPath)
	if err != nil {
		z.Close()
		return nil, err
	}
	return c, nil
}

func (d *Decoder) decode(z *backup.ZipArchive, zipPath string) (*backup.Container, error) {
	if err := d.opts.Progress.Report(5, "Reading %s...", ADBTarEntry); err != nil {
		return nil, err
	}
	adbData, err := z.ReadEntry(ADBTarEntry)
	if err != nil {
		return nil, err
	}
	adbTar, err := backup.NewTarArchive(adbData)
	if err != nil {
		return nil, err
	}

	c := backup.NewContainer(zipPath, backup.KindMagnet, backup.PlatformAndroid)
	c.SetFormat("zip")
	if err := android.AddTarMembers(c, adbTar, HandleADBTar, d.opts); err != nil {
		return nil, err
	}

	reader := backup.NewArchiveReader()
	reader.AddTar(HandleADBTar, adbTar)
	reader.SetZip(z)

	if _, ok := z.Lookup(SdcardTarEntry); ok {
		if err := d.opts.Progress.Report(91, "Reading %s...", SdcardTarEntry); err != nil {
			return nil, err
		}
		sdcardTar, added, err := addSdcardTar(c, z)
		if err != nil {
			return nil, err
		}
		if sdcardTar != nil {
			reader.AddTar(HandleSdcardTar, sdcardTar)
			logger.LogDebug("Added files from sdcard.tar.gz", map[string]interface{}{"count": added})
		}
	}

	if err := d.opts.Progress.Report(94, "Processing Live Data..."); err != nil {
		return nil, err
	}
	if err := addLiveData(c, z); err != nil {
		return nil, err
	}

	info := imageInfoNear(d.opts.Fs, zipPath)
	device := backup.DeviceInfo{
		Name:      DefaultDeviceName,
		OSVersion: android.ManifestSDKVersion(adbTar),
		Zipped:    true,
	}
	if info.ProductModel != "" {
		device.Name = info.ProductModel
	}
	if device.OSVersion == "" && info.OSVersion != "" {
		device.OSVersion = "Android " + info.OSVersion
	}
	c.SetDevice(device)
	c.SetRowCount(len(c.Entries()))
	c.SetReader(reader)

	logger.LogInfo("Magnet Quick Image loaded", map[string]interface{}{
		"path":    zipPath,
		"entries": len(c.Entries()),
	})
	if err := d.opts.Progress.Report(100, "Magnet Quick Image loaded"); err != nil {
		return nil, err
	}
	return c, nil
}

// addSdcardTar folds sdcard.tar.gz into shared/0 without overriding adb-data.tar entries.
// Empty archives are skipped and return a nil tar.
func addSdcardTar(c *backup.Container, z *backup.ZipArchive) (*backup.TarArchive, int, error) {
	gz, err := z.ReadEntry(SdcardTarEntry)
	if err != nil {
		return nil, 0, err
	}
	if len(gz) <= emptyGzipTarSize {
		return nil, 0, nil
	}
	raw, err := compression.Gunzip(gz)
	if err != nil {
		return nil, 0, err
	}
	archive, err := backup.NewTarArchive(raw)
	if err != nil {
		return nil, 0, err
	}

	added := 0
	for _, m := range archive.Members() {
		hdr := m.Header
		rel := android.CleanMemberName(hdr.Name)
		switch {
		case rel == "sdcard":
			rel = ""
		case strings.HasPrefix(rel, "sdcard/"):
			rel = rel[len("sdcard/"):]
		}
		if c.HasDomainPath(backup.JoinDomainPath(SharedDomain, rel)) {
			continue
		}

		fileID := "sdcard_tar:" + hdr.Name
		e := &backup.Entry{
			FileID:       fileID,
			Domain:       SharedDomain,
			RelativePath: rel,
			ModTime:      android.MemberModTime(hdr),
		}
		switch {
		case m.IsDir():
			e.Mode = backup.NormalizeDirMode(uint32(hdr.Mode))
			e.Flags = backup.FlagDirectory
		case m.IsRegular():
			e.Size = hdr.Size
			e.Mode = uint32(hdr.Mode)
			e.Flags = backup.FlagFile
			e.Source = backup.GzipTarSource(HandleSdcardTar, hdr.Name)
			e.SetActualSize(hdr.Size)
		default:
			c.Skip(fileID, SharedDomain, rel, fmt.Sprintf("Not a regular file (type=%c)", hdr.Typeflag))
			continue
		}
		c.AddEntry(e, "from sdcard.tar.gz")
		added++
	}
	return archive, added, nil
}

// addLiveData adds every Live Data/ entry under its own unmappable domain
func addLiveData(c *backup.Container, z *backup.ZipArchive) error {
	files, err := z.Files()
	if err != nil {
		return err
	}
	for _, zf := range files {
		if !strings.HasPrefix(zf.Name, LiveDataPrefix) {
			continue
		}
		rel := strings.TrimRight(zf.Name[len(LiveDataPrefix):], "/")
		if rel == "" {
			continue
		}
		e := &backup.Entry{
			FileID:       "zip:" + zf.Name,
			Domain:       LiveDataDomain,
			RelativePath: rel,
			ModTime:      zf.Modified,
		}
		if strings.HasSuffix(zf.Name, "/") {
			e.Mode = backup.ModeDirPerm
			e.Flags = backup.FlagDirectory
		} else {
			e.Size = int64(zf.UncompressedSize64)
			e.Mode = backup.ModeRegular
			e.Flags = backup.FlagFile
			e.Source = backup.ZipSource(zf.Name)
			e.SetActualSize(e.Size)
		}
		c.AddEntry(e, "Live Data (agent-captured, not mappable)")
	}
	return nil
}
