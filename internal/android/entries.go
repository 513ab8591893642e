package android

import (
	"archive/tar"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// AddTarMembers classifies every member of archive and adds the resulting entries to c.
// Directories get the directory type bit forced on. Non-regular members are logged
// as skipped. Entry content resolves through handle on the container's reader.
func AddTarMembers(c *backup.Container, archive *backup.TarArchive, handle string, opts backup.DecodeOptions) error {
	opts = opts.WithDefaults()
	members := archive.Members()
	total := len(members)

	if err := opts.Progress.Report(40, "Processing backup entries..."); err != nil {
		return err
	}

	for i, m := range members {
		if i%opts.ProgressInterval == 0 {
			pct := 40 + i*50/max(1, total)
			if err := opts.Progress.Report(pct, "Processing entries (%d/%d)...", i, total); err != nil {
				return err
			}
		}

		hdr := m.Header
		domain, token, rel := ParseTarPath(hdr.Name)
		details := ""
		if token != "" {
			details = "token=" + token
		}

		switch {
		case m.IsDir():
			c.AddEntry(&backup.Entry{
				FileID:       hdr.Name,
				Domain:       domain,
				RelativePath: rel,
				Mode:         backup.NormalizeDirMode(uint32(hdr.Mode)),
				Flags:        backup.FlagDirectory,
				ModTime:      MemberModTime(hdr),
				Token:        token,
			}, details)
		case m.IsRegular():
			e := &backup.Entry{
				FileID:       hdr.Name,
				Domain:       domain,
				RelativePath: rel,
				Size:         hdr.Size,
				Mode:         uint32(hdr.Mode),
				Flags:        backup.FlagFile,
				ModTime:      MemberModTime(hdr),
				Token:        token,
				Source:       backup.TarSource(handle, hdr.Name),
			}
			e.SetActualSize(hdr.Size)
			if IsUnmappableToken(token) {
				details += " (no filesystem equivalent)"
			}
			c.AddEntry(e, details)
		default:
			c.Skip(hdr.Name, domain, rel, fmt.Sprintf("Not a regular file (type=%c)", hdr.Typeflag))
		}
	}
	return nil
}

// MemberModTime returns the member's mtime, or the zero time when the archive stored none
func MemberModTime(hdr *tar.Header) time.Time {
	if hdr.ModTime.IsZero() || hdr.ModTime.Unix() == 0 {
		return time.Time{}
	}
	return hdr.ModTime
}

// ManifestSDKVersion reads the platform SDK from the first app _manifest whose fourth
// line is numeric. Unreadable manifests are skipped.
func ManifestSDKVersion(archive *backup.TarArchive) string {
	for _, m := range archive.Members() {
		if !m.IsRegular() || !strings.HasSuffix(m.Name(), "/"+TokenManifest) {
			continue
		}
		data, err := archive.ReadMember(m.Name())
		if err != nil {
			logger.LogDebug("Unreadable app manifest", map[string]interface{}{"member": m.Name(), "error": err.Error()})
			continue
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) < 4 {
			continue
		}
		sdk := strings.TrimSpace(lines[3])
		if _, err := strconv.ParseUint(sdk, 10, 32); err == nil {
			return "SDK " + sdk
		}
	}
	return ""
}
