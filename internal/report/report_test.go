package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/mapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const appGUID = "A1B2C3D4-E5F6-4711-8899-AABBCCDDEEFF"

func androidMapper(t *testing.T) *mapper.Mapper {
	t.Helper()
	c := backup.NewContainer("/cases/device.ab", backup.KindAndroid, backup.PlatformAndroid)
	c.SetDevice(backup.DeviceInfo{Name: "Pixel", OSVersion: "34", Encrypted: true})
	for _, member := range []string{
		"apps/com.whatsapp/_manifest",
		"apps/com.whatsapp/db/msgstore.db",
		"apps/com.whatsapp/f/notes, \"draft\".txt",
	} {
		domain, token, rel := android.ParseTarPath(member)
		c.AddEntry(&backup.Entry{
			FileID: member, Domain: domain, Token: token, RelativePath: rel,
			Size: 12, Mode: backup.ModeRegular, Flags: backup.FlagFile,
		}, "")
	}

	files := []*filesystem.File{
		{Path: "/data/data/com.whatsapp/databases/msgstore.db", Size: 12},
		{Path: "/data/data/com.other/files/x", Size: 3},
		{Path: "/data/data/com.other", IsDir: true},
	}
	acq := filesystem.NewAcquisition("/cases/fs.tar", filesystem.FormatTar, backup.PlatformAndroid, files)
	m := mapper.New(c, acq)
	m.MapAll()
	return m
}

func iosMapper(t *testing.T) *mapper.Mapper {
	t.Helper()
	c := backup.NewContainer("/cases/ios", backup.KindIOS, backup.PlatformIOS)
	c.SetDevice(backup.DeviceInfo{Name: "iPhone", ProductType: "iPhone12,1", OSVersion: "17.2"})
	for _, e := range []struct{ domain, rel string }{
		{"HomeDomain", "Library/SMS/sms.db"},
		{"AppDomain-com.example.app", "Documents/a.json"},
		{"AppDomainGroup-group.com.example", "Library/b.plist"},
		{"SysContainerDomain-com.apple.sys", "c"},
	} {
		c.AddEntry(&backup.Entry{
			FileID: e.domain + e.rel, Domain: e.domain, RelativePath: e.rel,
			Size: 1, Mode: backup.ModeRegular, Flags: backup.FlagFile,
		}, "")
	}
	acq := filesystem.NewAcquisition("/cases/ios.tar", filesystem.FormatTar, backup.PlatformIOS, []*filesystem.File{
		{Path: "/private/var/mobile/Library/SMS/sms.db", Size: 1},
		{Path: "/private/var/mobile/Containers/Data/Application/" + appGUID + "/Documents/a.json", Size: 1},
	})
	acq.Containers.Set(filesystem.ContainerApp, "com.example.app", appGUID)
	for i := 0; i < 22; i++ {
		acq.Containers.Set(filesystem.ContainerGroup, fmt.Sprintf("group.com.example%02d", i), appGUID)
	}
	m := mapper.New(c, acq)
	m.MapAll()
	return m
}

func render(t *testing.T, format Format, r Report) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, format, r))
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	got, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "csv-fs-only")
}

func TestStatsReport(t *testing.T) {
	out := render(t, FormatStats, Report{Mapper: androidMapper(t)})

	assert.Contains(t, out, "COMPARISON SUMMARY")
	assert.Contains(t, out, "  Successfully mapped: 1\n")
	assert.Contains(t, out, "  Not found in filesystem: 1\n")
	assert.Contains(t, out, "  Unmappable (unknown domain): 1\n")
	assert.Contains(t, out, "  Files only in backup: 2\n")
	assert.Contains(t, out, "  Files only in filesystem: 1\n")
	assert.Contains(t, out, "  Backup coverage of filesystem: 50.0%\n")
	assert.Contains(t, out, "  com.whatsapp: 1/3 (33.3%)\n")
	assert.NotContains(t, out, "UNMAPPED BACKUP FILES")
}

func TestDetailedReport(t *testing.T) {
	out := render(t, FormatDetailed, Report{Mapper: androidMapper(t), ListLimit: 1})

	assert.Contains(t, out, "UNMAPPED BACKUP FILES (2)")
	assert.Contains(t, out, "  com.whatsapp/_manifest\n")
	assert.Contains(t, out, "  ... and 1 more\n")
	assert.Contains(t, out, "FILES ONLY IN FILESYSTEM (1)")
	assert.Contains(t, out, "  /data/data/com.other/files/x\n")
}

func TestThousandsSeparator(t *testing.T) {
	var buf bytes.Buffer
	tw := newTextWriter(&buf)
	tw.printf("%d", 1234567)
	assert.Equal(t, "1,234,567", buf.String())
}

func TestDomainsReport(t *testing.T) {
	out := render(t, FormatDomains, Report{Mapper: iosMapper(t)})

	assert.Contains(t, out, "DOMAIN TO FILESYSTEM PATH MAPPINGS")
	assert.Contains(t, out, "Standard Domains:\n  HomeDomain\n    -> /private/var/mobile\n")
	assert.Contains(t, out, "App Domains (1):\n  com.example.app\n    -> /private/var/mobile/Containers/Data/Application/"+appGUID+"\n")
	assert.Contains(t, out, "App Group Domains (1):\n  group.com.example\n")
	assert.Contains(t, out, "System Container Domains (1):\n  SysContainerDomain-com.apple.sys\n")
	assert.Contains(t, out, "Container GUID Resolution (from filesystem metadata):")
	assert.Contains(t, out, "App Containers (1):\n  com.example.app -> "+appGUID+"\n")
	assert.Contains(t, out, "Group Containers (22):")
	assert.Contains(t, out, "  ... and 2 more\n")
	assert.NotContains(t, out, "group.com.example21 ->")
}

func TestJSONReport(t *testing.T) {
	out := render(t, FormatJSON, Report{Mapper: iosMapper(t)})

	require.True(t, gjson.Valid(out))

	for path, want := range map[string]interface{}{
		"backup.device_name":                    "iPhone",
		"backup.backup_type":                    "ios",
		"backup.ios_version":                    "17.2",
		"backup.product_type":                   "iPhone12,1",
		"backup.is_encrypted":                   false,
		"filesystem.platform":                   "ios",
		"filesystem.app_containers":             float64(1),
		"filesystem.group_containers":           float64(22),
		"mapping.mapped_files":                  float64(2),
		"mapping.not_found_files":               float64(2),
		"mapping.backup_coverage_percent":       float64(100),
		"by_domain.AppDomain.total":             float64(1),
		"by_domain.AppDomainGroup.mapped":       float64(0),
		"by_domain.HomeDomain.coverage_percent": float64(100),
	} {
		got := gjson.Get(out, path)
		require.True(t, got.Exists(), path)
		assert.Equal(t, want, got.Value(), path)
	}

	assert.False(t, gjson.Get(out, "backup.android_version").Exists())
	assert.False(t, gjson.Get(out, "hash_verification").Exists())
}

func TestJSONReportRoundsCoverage(t *testing.T) {
	out := render(t, FormatJSON, Report{Mapper: androidMapper(t)})
	require.True(t, gjson.Valid(out))

	assert.False(t, gjson.Get(out, "by_domain.com.whatsapp").Exists(), "dots in domain names are not path separators")
	assert.Equal(t, 33.33, gjson.Get(out, `by_domain.com\.whatsapp.coverage_percent`).Float())
	assert.Equal(t, "34", gjson.Get(out, "backup.android_version").String())
}

func TestCSVReports(t *testing.T) {
	m := androidMapper(t)

	rows := func(out string) [][]string {
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		return records
	}

	unmapped := rows(render(t, FormatCSVUnmapped, Report{Mapper: m}))
	require.Len(t, unmapped, 3)
	assert.Equal(t, []string{"domain", "relative_path", "file_size", "status", "notes"}, unmapped[0])
	assert.Equal(t, []string{"com.whatsapp", "_manifest", "12", "unmappable", "Token '_manifest' has no filesystem equivalent"}, unmapped[1])
	assert.Equal(t, "f/notes, \"draft\".txt", unmapped[2][1])
	assert.Equal(t, "not_found", unmapped[2][3])

	fsOnly := rows(render(t, FormatCSVFSOnly, Report{Mapper: m}))
	assert.Equal(t, [][]string{{"path", "size", "is_directory"}, {"/data/data/com.other/files/x", "3", "false"}}, fsOnly)

	all := rows(render(t, FormatCSVAll, Report{Mapper: m}))
	require.Len(t, all, 4)
	assert.Equal(t, []string{"domain", "relative_path", "filesystem_path", "status", "file_size", "notes"}, all[0])
	assert.Equal(t, "/data/data/com.whatsapp/databases/msgstore.db", all[2][2])
	assert.Equal(t, "mapped", all[2][3])
	assert.Empty(t, all[1][2])
}

func TestHashSection(t *testing.T) {
	m := androidMapper(t)
	hasher, err := cryptoutil.NewHasher(cryptoutil.SHA256)
	require.NoError(t, err)
	hashes := m.VerifyHashes(hasher)
	require.Len(t, hashes, 1)

	out := render(t, FormatStats, Report{Mapper: m, Hashes: hashes})
	assert.Contains(t, out, "Hash Verification:\n  Checked: 1\n")
	assert.Contains(t, out, "  Unreadable: 1\n")
	assert.Contains(t, out, "  ERROR com.whatsapp/db/msgstore.db")

	failed := gjson.Get(render(t, FormatJSON, Report{Mapper: m, Hashes: hashes}), "hash_verification.failed")
	require.True(t, failed.Exists())
	assert.EqualValues(t, 1, failed.Int())
}
