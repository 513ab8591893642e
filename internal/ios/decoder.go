// Package ios decodes iTunes-style iOS backups stored as a directory or a ZIP: the
// Manifest.db file list, device metadata and, for encrypted backups, the keybag.
package ios

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/plistutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// Decoder decodes an iOS backup directory or ZIP
type Decoder struct {
	path     string
	opts     backup.DecodeOptions
	unlocker Unlocker
}

// NewDecoder creates a decoder for the backup at path using the built-in keybag unlocker
func NewDecoder(path string, opts backup.DecodeOptions) *Decoder {
	opts = opts.WithDefaults()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Decoder{path: path, opts: opts, unlocker: KeyBagUnlocker{}}
}

// WithUnlocker replaces the encrypted backup capability. A nil unlocker makes encrypted
// backups fail with ErrMissingDependency.
func (d *Decoder) WithUnlocker(u Unlocker) *Decoder {
	d.unlocker = u
	return d
}

// Detect reports whether path is an iOS backup
func (d *Decoder) Detect() bool {
	return IsBackup(d.opts.Fs, d.path)
}

// Decode reads the file list and measures the stored size of every file
func (d *Decoder) Decode() (*backup.Container, error) {
	if !d.Detect() {
		return nil, fmt.Errorf("%w: not a valid iOS backup: %s", errors.ErrFormat, d.path)
	}
	st, err := openStore(d.opts.Fs, d.path)
	if err != nil {
		return nil, err
	}
	c, err := d.decode(st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return c, nil
}

func (d *Decoder) decode(st store) (*backup.Container, error) {
	if err := d.opts.Progress.Report(0, "Reading device info..."); err != nil {
		return nil, err
	}

	manifest, err := d.readPlist(st, ManifestPlist)
	if err != nil {
		return nil, err
	}
	encrypted, _ := plistutil.GetBool(manifest, "IsEncrypted")
	zipped := st.Format() == "zip"
	if encrypted && zipped {
		return nil, errors.ErrEncryptedZipUnsupported
	}

	c := backup.NewContainer(d.path, backup.KindIOS, backup.PlatformIOS)
	c.SetFormat(st.Format())
	c.SetDevice(d.deviceInfo(st, manifest, encrypted, zipped))

	if err := d.opts.Progress.Report(10, "Parsing manifest.db..."); err != nil {
		return nil, err
	}

	dbData, err := st.ReadFile(ManifestDB)
	if err != nil {
		return nil, err
	}

	var decryptor Decryptor
	if encrypted {
		if d.unlocker == nil {
			return nil, fmt.Errorf("%w: no decryption capability for encrypted iOS backups", errors.ErrMissingDependency)
		}
		password, err := backup.ResolvePassword(d.opts, d.passwordFile)
		if err != nil {
			return nil, err
		}
		if decryptor, err = d.unlocker.Unlock(manifest, password); err != nil {
			return nil, err
		}
		if dbData, err = decryptor.DecryptManifestDB(dbData); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
		}
	}

	rows, err := ReadFileRows(dbData, d.opts.TempDir)
	if err != nil {
		return nil, err
	}
	c.SetRowCount(len(rows))

	reader := &storedReader{store: st, decryptor: decryptor, meta: make(map[string]*FileMeta)}
	for _, row := range rows {
		e, meta, err := entryFromRow(row)
		if err != nil {
			c.LogError(row.FileID, row.Domain, row.RelativePath, fmt.Sprintf("unreadable file metadata: %v", err))
		}
		if decryptor != nil && meta != nil {
			reader.meta[e.FileID] = meta
		}
		c.AddEntry(e, rowDetails(e, row, meta))
	}
	logger.LogDebug("Read Manifest.db", map[string]interface{}{"rows": len(rows), "encrypted": encrypted})

	if err := d.opts.Progress.Report(50, "Reading actual file sizes..."); err != nil {
		return nil, err
	}
	if err := d.measureStoredSizes(c, st); err != nil {
		return nil, err
	}

	c.SetReader(reader)

	files, dirs := c.CountFiles()
	logger.LogInfo("iOS backup loaded", map[string]interface{}{
		"path":            d.path,
		"files":           files,
		"directories":     dirs,
		"size_mismatches": c.Log().SizeMismatches,
	})
	if err := d.opts.Progress.Report(100, "Backup parsing complete"); err != nil {
		return nil, err
	}
	return c, nil
}

func entryFromRow(row FileRow) (*backup.Entry, *FileMeta, error) {
	e := &backup.Entry{
		FileID:       row.FileID,
		Domain:       row.Domain,
		RelativePath: row.RelativePath,
		Flags:        row.Flags,
	}
	var meta *FileMeta
	var err error
	if len(row.Blob) > 0 {
		if meta, err = ParseFileBlob(row.Blob); err == nil {
			e.Size = meta.Size
			e.Mode = meta.Mode
			e.ModTime = meta.ModTime
		}
	}
	if !e.IsDirectory() && e.FileID != "" {
		e.Source = backup.ContentSource{Kind: backup.SourceStoredFile, Name: StoredName(e.FileID)}
	}
	return e, meta, err
}

func rowDetails(e *backup.Entry, row FileRow, meta *FileMeta) string {
	if e.IsDirectory() {
		mode := "0"
		if e.Mode != 0 {
			mode = fmt.Sprintf("0o%o", e.Mode)
		}
		return fmt.Sprintf("flags=%d, mode=%s", row.Flags, mode)
	}
	details := fmt.Sprintf("size=%d, flags=%d", e.Size, row.Flags)
	if e.Size == 0 && meta != nil && len(meta.Keys) > 0 {
		details += fmt.Sprintf(", plist_keys=[%s]", strings.Join(meta.Keys, ", "))
	}
	return details
}

// measureStoredSizes records the on-disk size of every file entry and logs mismatches
// against the manifest size.
func (d *Decoder) measureStoredSizes(c *backup.Container, st store) error {
	var pending []*backup.Entry
	for _, e := range c.Entries() {
		if !e.IsDirectory() && e.FileID != "" {
			pending = append(pending, e)
		}
	}

	total := len(pending)
	for i, e := range pending {
		if size, ok := st.Size(StoredName(e.FileID)); ok {
			e.SetActualSize(size)
			c.Log().UpdateActualSize(e.FileID, size)
		}
		if i%d.opts.ProgressInterval == 0 || i == total-1 {
			pct := 50 + (i+1)*45/max(1, total)
			if err := d.opts.Progress.Report(pct, "Reading file sizes: %d/%d", i+1, total); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) readPlist(st store, name string) (map[string]interface{}, error) {
	data, err := st.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return plistutil.DecodePlist(data)
}

// deviceInfo reads Info.plist, filling gaps from the Lockdown dictionary of Manifest.plist
func (d *Decoder) deviceInfo(st store, manifest map[string]interface{}, encrypted, zipped bool) backup.DeviceInfo {
	info := backup.DeviceInfo{Encrypted: encrypted, Zipped: zipped}

	if plist, err := d.readPlist(st, InfoPlist); err == nil {
		info.Name, _ = plistutil.GetString(plist, "Device Name")
		info.ProductType, _ = plistutil.GetString(plist, "Product Type")
		info.OSVersion, _ = plistutil.GetString(plist, "Product Version")
		info.Serial, _ = plistutil.GetString(plist, "Serial Number")
		info.UDID, _ = plistutil.GetString(plist, "Unique Identifier")
	} else {
		logger.LogDebug("No readable Info.plist", map[string]interface{}{"path": d.path, "error": err.Error()})
	}

	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := plistutil.GetValue(manifest, "Lockdown."+key); ok {
			*dst, _ = v.(string)
		}
	}
	fill(&info.Name, "DeviceName")
	fill(&info.ProductType, "ProductType")
	fill(&info.OSVersion, "ProductVersion")
	fill(&info.Serial, "SerialNumber")
	fill(&info.UDID, "UniqueDeviceID")
	return info
}

// passwordFile looks inside the backup directory, then beside it
func (d *Decoder) passwordFile() (string, bool) {
	return fsutil.FindPasswordFile(d.opts.Fs, d.opts.PasswordFile, d.path, filepath.Dir(d.path))
}
